package models

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func decPtr(s string) *decimal.Decimal {
	d := dec(s)
	return &d
}

func TestTransactionType_IsValid(t *testing.T) {
	tests := []struct {
		txType TransactionType
		valid  bool
	}{
		{TransactionTypeDebit, true},
		{TransactionTypeCredit, true},
		{"transfer", false},
		{"", false},
	}

	for _, tt := range tests {
		t.Run(string(tt.txType), func(t *testing.T) {
			if got := tt.txType.IsValid(); got != tt.valid {
				t.Errorf("TransactionType.IsValid() = %v, want %v", got, tt.valid)
			}
		})
	}
}

func TestParseTransactionType(t *testing.T) {
	tests := []struct {
		input   string
		want    TransactionType
		wantErr bool
	}{
		{"credit", TransactionTypeCredit, false},
		{"CR", TransactionTypeCredit, false},
		{" Deposit ", TransactionTypeCredit, false},
		{"debit", TransactionTypeDebit, false},
		{"DR", TransactionTypeDebit, false},
		{"fee", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseTransactionType(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseTransactionType(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ParseTransactionType(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

func TestParseDecimalFromString(t *testing.T) {
	tests := []struct {
		input   string
		want    string
		wantErr bool
	}{
		{"1234.56", "1234.56", false},
		{"$1,234.56", "1234.56", false},
		{"(45.00)", "-45", false},
		{"", "", true},
		{"abc", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseDecimalFromString(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("error = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && !got.Equal(dec(tt.want)) {
				t.Errorf("got %s, want %s", got, tt.want)
			}
		})
	}
}

func TestParseStatementDate(t *testing.T) {
	want := time.Date(2024, 1, 5, 0, 0, 0, 0, time.UTC)
	for _, input := range []string{"2024-01-05", "01/05/2024", "1/5/2024", "01/05/24", "Jan 5, 2024", "2024-01-05T15:04:05Z"} {
		got, err := ParseStatementDate(input)
		if err != nil {
			t.Errorf("ParseStatementDate(%q) unexpected error: %v", input, err)
			continue
		}
		if !got.Equal(want) {
			t.Errorf("ParseStatementDate(%q) = %v, want %v", input, got, want)
		}
	}

	if _, err := ParseStatementDate("13/45/2024"); err == nil {
		t.Error("expected error for impossible date")
	}
}

func TestBeginningBalance(t *testing.T) {
	credit := &Transaction{Type: TransactionTypeCredit, Amount: dec("100"), EndingBalance: decPtr("250")}
	debit := &Transaction{Type: TransactionTypeDebit, Amount: dec("100"), EndingBalance: decPtr("250")}
	none := &Transaction{Type: TransactionTypeDebit, Amount: dec("100")}

	if got, ok := credit.BeginningBalance(); !ok || !got.Equal(dec("150")) {
		t.Errorf("credit beginning balance = %s, %v", got, ok)
	}
	if got, ok := debit.BeginningBalance(); !ok || !got.Equal(dec("350")) {
		t.Errorf("debit beginning balance = %s, %v", got, ok)
	}
	if _, ok := none.BeginningBalance(); ok {
		t.Error("expected no beginning balance without ending balance")
	}
}

func TestCloneIsDeep(t *testing.T) {
	original := &Transaction{ID: "a", EndingBalance: decPtr("10")}
	clone := original.Clone()
	*clone.EndingBalance = dec("99")

	if !original.EndingBalance.Equal(dec("10")) {
		t.Error("clone shares ending balance with original")
	}
}

func TestDaysInMonth(t *testing.T) {
	if got := DaysInMonth(2024, time.February); got != 29 {
		t.Errorf("leap February = %d", got)
	}
	if got := DaysInMonth(2023, time.February); got != 28 {
		t.Errorf("February = %d", got)
	}
	if got := DaysInMonth(2024, time.December); got != 31 {
		t.Errorf("December = %d", got)
	}
}

func TestPatternRecordOutranks(t *testing.T) {
	auto := &PatternRecord{Pattern: "ondeck capital payment", UsageCount: 50}
	manual := &PatternRecord{Pattern: "ondeck", IsManualOverride: true}
	longer := &PatternRecord{Pattern: "ondeck capital payment daily"}

	if !manual.Outranks(auto) {
		t.Error("manual override should outrank automatic pattern regardless of length")
	}
	if !longer.Outranks(auto) {
		t.Error("longer pattern should outrank shorter one")
	}
	if !auto.Outranks(nil) {
		t.Error("any record outranks nil")
	}
}

func TestPatternValueValidate(t *testing.T) {
	tests := []struct {
		name    string
		kind    PatternKind
		value   PatternValue
		wantErr bool
	}{
		{"lender", KindMCALender, PatternValue{LenderName: "Kabbage"}, false},
		{"excluded lender", KindMCALender, PatternValue{Excluded: true}, false},
		{"empty lender", KindMCALender, PatternValue{}, true},
		{"revenue", KindRevenueClassification, PatternValue{Classification: RevenueAdjustment}, false},
		{"bad revenue", KindRevenueClassification, PatternValue{Classification: "maybe"}, true},
		{"type", KindTypeCorrection, PatternValue{CorrectType: TransactionTypeDebit}, false},
		{"bad kind", "other", PatternValue{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.value.Validate(tt.kind)
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
