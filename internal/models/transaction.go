package models

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// DateLayout is the canonical statement-local date format.
const DateLayout = "2006-01-02"

// TransactionType represents the direction of a transaction
type TransactionType string

const (
	// TransactionTypeCredit is money into the account
	TransactionTypeCredit TransactionType = "credit"
	// TransactionTypeDebit is money out of the account
	TransactionTypeDebit TransactionType = "debit"
)

// String returns the string representation of TransactionType
func (t TransactionType) String() string {
	return string(t)
}

// IsValid checks if the transaction type is valid
func (t TransactionType) IsValid() bool {
	return t == TransactionTypeDebit || t == TransactionTypeCredit
}

// RevenueClass is the revenue classification of a credit.
type RevenueClass string

const (
	RevenueTrue       RevenueClass = "true_revenue"
	RevenueAdjustment RevenueClass = "adjustment"
)

// IsValid checks if the revenue classification is known
func (c RevenueClass) IsValid() bool {
	return c == RevenueTrue || c == RevenueAdjustment
}

// ClassificationSource records which layer decided a classification.
type ClassificationSource string

const (
	SourceLearned ClassificationSource = "learned"
	SourceDefault ClassificationSource = "default"
)

// Transaction is one extracted statement line plus the fields set by
// classification. Amount is never negative; direction lives in Type.
type Transaction struct {
	ID          string `json:"id"`
	StatementID string `json:"statement_id,omitempty"`
	Sequence    int    `json:"sequence"`

	Date      time.Time `json:"-"`
	RawDate   string    `json:"date"`
	DateValid bool      `json:"date_valid"`

	Description           string           `json:"description"`
	NormalizedDescription string           `json:"normalized_description,omitempty"`
	Amount                decimal.Decimal  `json:"amount"`
	Type                  TransactionType  `json:"type"`
	EndingBalance         *decimal.Decimal `json:"ending_balance,omitempty"`

	IsMCAPayment         bool                 `json:"is_mca_payment"`
	MCALenderID          string               `json:"mca_lender_id,omitempty"`
	MCALenderName        string               `json:"mca_lender_name,omitempty"`
	IsAdjustment         bool                 `json:"is_adjustment"`
	IsMCAFunding         bool                 `json:"is_mca_funding"`
	Classification       RevenueClass         `json:"classification,omitempty"`
	ClassificationReason string               `json:"classification_reason,omitempty"`
	ClassificationSource ClassificationSource `json:"classification_source,omitempty"`
	NeedsReview          bool                 `json:"needs_review"`
	WasCorrected         bool                 `json:"was_corrected"`
	Confidence           float64              `json:"confidence,omitempty"`
}

// IsCredit returns true if the transaction is a credit
func (t *Transaction) IsCredit() bool {
	return t.Type == TransactionTypeCredit
}

// IsDebit returns true if the transaction is a debit
func (t *Transaction) IsDebit() bool {
	return t.Type == TransactionTypeDebit
}

// HasBalance reports whether the extractor supplied a running balance.
func (t *Transaction) HasBalance() bool {
	return t.EndingBalance != nil
}

// BeginningBalance derives the balance immediately before this transaction.
func (t *Transaction) BeginningBalance() (decimal.Decimal, bool) {
	if t.EndingBalance == nil {
		return decimal.Zero, false
	}
	if t.IsCredit() {
		return t.EndingBalance.Sub(t.Amount), true
	}
	return t.EndingBalance.Add(t.Amount), true
}

// SignedAmount returns the amount with debits negated.
func (t *Transaction) SignedAmount() decimal.Decimal {
	if t.IsDebit() {
		return t.Amount.Neg()
	}
	return t.Amount
}

// MonthKey returns the YYYY-MM bucket key, or "" when the date is unusable.
func (t *Transaction) MonthKey() string {
	if !t.DateValid {
		return ""
	}
	return t.Date.Format("2006-01")
}

// ResetClassification clears every field set by classification so a
// transaction can be classified again from its raw inputs.
func (t *Transaction) ResetClassification() {
	t.IsMCAPayment = false
	t.MCALenderID = ""
	t.MCALenderName = ""
	t.IsAdjustment = false
	t.IsMCAFunding = false
	t.Classification = ""
	t.ClassificationReason = ""
	t.ClassificationSource = ""
	t.NeedsReview = false
	t.Confidence = 0
}

// Clone returns a deep copy of the transaction.
func (t *Transaction) Clone() *Transaction {
	c := *t
	if t.EndingBalance != nil {
		b := *t.EndingBalance
		c.EndingBalance = &b
	}
	return &c
}

// String returns a string representation of the Transaction
func (t *Transaction) String() string {
	return fmt.Sprintf("Transaction{ID: %s, Date: %s, Type: %s, Amount: %s, Description: %q}",
		t.ID, t.RawDate, t.Type, t.Amount.String(), t.Description)
}

// Statement is the unit of analysis: one business's extracted transactions.
type Statement struct {
	ID               string           `json:"statement_id"`
	BusinessName     string           `json:"business_name,omitempty"`
	BeginningBalance *decimal.Decimal `json:"beginning_balance,omitempty"`
	// ExistingDailyPayment is the payment-load override the statement was
	// last analysed with; reclassification reuses it.
	ExistingDailyPayment *decimal.Decimal `json:"existing_daily_payment,omitempty"`
	Transactions         []*Transaction   `json:"transactions"`
}

// ParseDecimalFromString parses an amount, tolerating currency symbols,
// thousands separators and accounting parentheses.
func ParseDecimalFromString(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero, fmt.Errorf("amount string cannot be empty")
	}

	negative := false
	if strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") {
		negative = true
		s = strings.TrimSuffix(strings.TrimPrefix(s, "("), ")")
	}

	s = strings.ReplaceAll(s, "$", "")
	s = strings.ReplaceAll(s, ",", "")
	s = strings.TrimSpace(s)

	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid decimal format '%s': %w", s, err)
	}
	if negative {
		d = d.Neg()
	}
	return d, nil
}

// ParseTransactionType parses a transaction type, accepting common bank
// abbreviations.
func ParseTransactionType(s string) (TransactionType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debit", "d", "dr", "withdrawal":
		return TransactionTypeDebit, nil
	case "credit", "c", "cr", "deposit":
		return TransactionTypeCredit, nil
	default:
		return "", fmt.Errorf("invalid transaction type '%s': must be credit or debit", s)
	}
}

var dateFormats = []string{
	DateLayout,
	"2006-01-02T15:04:05Z07:00",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"01/02/2006",
	"1/2/2006",
	"01/02/06",
	"1/2/06",
	"01-02-2006",
	"2006/01/02",
	"Jan 2, 2006",
	"January 2, 2006",
	"02 Jan 2006",
	"Jan 02 2006",
}

// ParseStatementDate parses the date formats seen in extractor output and
// returns a statement-local calendar date at UTC midnight.
func ParseStatementDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, fmt.Errorf("date string cannot be empty")
	}

	var lastErr error
	for _, format := range dateFormats {
		t, err := time.Parse(format, s)
		if err == nil {
			return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC), nil
		}
		lastErr = err
	}

	return time.Time{}, fmt.Errorf("unable to parse date '%s': %w", s, lastErr)
}

// DaysInMonth returns the number of calendar days in the given month.
func DaysInMonth(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}
