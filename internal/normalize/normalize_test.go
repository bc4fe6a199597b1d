package normalize

import "testing"

func TestDescription(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"empty", "", ""},
		{"case and punctuation", "ONDECK CAPITAL PMT", "ondeck capital pmt"},
		{"separators collapse", "  Square--Capital***ACH   Debit ", "square capital ach debit"},
		{"trace numbers dropped", "ACH DEBIT KABBAGE 0012345678 REF 99", "ach debit kabbage ref 99"},
		{"masked account dropped", "Transfer from CHK XXXX1234", "transfer from chk"},
		{"bare masks dropped", "ONLINE TRANSFER xxxx", "online transfer"},
		{"short numbers kept", "STORE 123 DEPOSIT", "store 123 deposit"},
		{"mixed alphanumerics kept", "POS 7ELEVEN #4411", "pos 7eleven"},
		{"only noise", "#### 12345 ****", ""},
		{"unicode letters", "Café Déjà Vu", "café déjà vu"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Description(tt.input); got != tt.want {
				t.Errorf("Description(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestDescriptionIsIdempotent(t *testing.T) {
	inputs := []string{
		"ONDECK CAPITAL PMT 000123456",
		"Mobile Deposit - Ref# 55555",
		"Wire Transfer In XX9876 FROM ACME",
	}
	for _, input := range inputs {
		once := Description(input)
		if twice := Description(once); twice != once {
			t.Errorf("Description not idempotent for %q: %q then %q", input, once, twice)
		}
	}
}

func TestContains(t *testing.T) {
	tests := []struct {
		description string
		pattern     string
		want        bool
	}{
		{"ach debit ondeck capital pmt", "ondeck capital", true},
		{"ach debit ondeck capital pmt", "ach debit ondeck capital pmt", true},
		{"ach debit ondeckcapital pmt", "ondeck capital", false},
		{"rapid finance payment", "rapid", true},
		{"rapidly growing", "rapid", false},
		{"anything", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.description+"/"+tt.pattern, func(t *testing.T) {
			if got := Contains(tt.description, tt.pattern); got != tt.want {
				t.Errorf("Contains(%q, %q) = %v, want %v", tt.description, tt.pattern, got, tt.want)
			}
		})
	}
}
