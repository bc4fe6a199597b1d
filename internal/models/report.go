package models

import (
	"github.com/shopspring/decimal"
)

// BalanceMethod describes how a month's daily balances were obtained.
type BalanceMethod string

const (
	// BalanceFromStatement means every day close came from extracted balances.
	BalanceFromStatement BalanceMethod = "ending_balance"
	// BalanceReconstructed means some day closes were computed from amounts.
	BalanceReconstructed BalanceMethod = "reconstructed"
	// BalanceNoData means no balance could be established; counts are zero.
	BalanceNoData BalanceMethod = "no_balance_data"
)

// TransactionRef is the compact form of a transaction listed in a bucket.
type TransactionRef struct {
	ID          string          `json:"id"`
	Date        string          `json:"date"`
	Description string          `json:"description"`
	Amount      decimal.Decimal `json:"amount"`
	Reason      string          `json:"reason,omitempty"`
}

// RefOf builds a TransactionRef from a classified transaction.
func RefOf(t *Transaction) TransactionRef {
	return TransactionRef{
		ID:          t.ID,
		Date:        t.RawDate,
		Description: t.Description,
		Amount:      t.Amount,
		Reason:      t.ClassificationReason,
	}
}

// MonthlyBucket is the derived monthly aggregate for one calendar month.
type MonthlyBucket struct {
	MonthKey     string          `json:"month_key"`
	CalendarDays int             `json:"calendar_days"`
	BusinessDays decimal.Decimal `json:"business_days"`

	TotalCredits      decimal.Decimal `json:"total_credits"`
	TotalDebits       decimal.Decimal `json:"total_debits"`
	ExcludedAmount    decimal.Decimal `json:"excluded_amount"`
	TrueRevenue       decimal.Decimal `json:"true_revenue"`
	NeedsReviewAmount decimal.Decimal `json:"needs_review_amount"`
	MCAPaymentTotal   decimal.Decimal `json:"mca_payment_total"`
	MCAFundingTotal   decimal.Decimal `json:"mca_funding_total"`

	TransactionCount        int              `json:"transaction_count"`
	CreditCount             int              `json:"credit_count"`
	DebitCount              int              `json:"debit_count"`
	ExcludedTransactions    []TransactionRef `json:"excluded_transactions"`
	NeedsReviewTransactions []TransactionRef `json:"needs_review_transactions"`

	AverageDailyRevenue decimal.Decimal `json:"average_daily_revenue"`
	RevenueRatio        decimal.Decimal `json:"revenue_ratio"`

	NegativeDaysCount   int              `json:"negative_days_count"`
	NegativeDates       []string         `json:"negative_dates"`
	BalanceMethod       BalanceMethod    `json:"balance_method"`
	AverageDailyBalance *decimal.Decimal `json:"average_daily_balance"`
	ClosingBalance      *decimal.Decimal `json:"closing_balance,omitempty"`

	NSFCount          int `json:"nsf_count"`
	NSFFeeCount       int `json:"nsf_fee_count"`
	ReturnedItemCount int `json:"returned_item_count"`
}

// NewMonthlyBucket returns a zeroed bucket for the given month.
func NewMonthlyBucket(monthKey string, calendarDays int, businessDays decimal.Decimal) *MonthlyBucket {
	return &MonthlyBucket{
		MonthKey:                monthKey,
		CalendarDays:            calendarDays,
		BusinessDays:            businessDays,
		ExcludedTransactions:    []TransactionRef{},
		NeedsReviewTransactions: []TransactionRef{},
		NegativeDates:           []string{},
		BalanceMethod:           BalanceNoData,
	}
}

// Totals sums bucket figures across the whole statement.
type Totals struct {
	Deposits    decimal.Decimal `json:"deposits"`
	Adjustments decimal.Decimal `json:"adjustments"`
	TrueRevenue decimal.Decimal `json:"true_revenue"`
	Debits      decimal.Decimal `json:"debits"`
	NeedsReview decimal.Decimal `json:"needs_review"`
}

// Averages are per-month means of the bucket figures.
type Averages struct {
	Deposits            decimal.Decimal  `json:"deposits"`
	Adjustments         decimal.Decimal  `json:"adjustments"`
	TrueRevenue         decimal.Decimal  `json:"true_revenue"`
	Debits              decimal.Decimal  `json:"debits"`
	AverageDailyBalance *decimal.Decimal `json:"average_daily_balance"`
}

// RawTotals covers every transaction, including ones whose date could not
// be bucketed.
type RawTotals struct {
	Credits          decimal.Decimal `json:"credits"`
	Debits           decimal.Decimal `json:"debits"`
	UndatedCredits   decimal.Decimal `json:"undated_credits"`
	UndatedDebits    decimal.Decimal `json:"undated_debits"`
	TransactionCount int             `json:"transaction_count"`
	UndatedCount     int             `json:"undated_count"`
}

// Volatility summarises month-to-month true revenue dispersion.
type Volatility struct {
	CoefficientOfVariation decimal.Decimal `json:"coefficient_of_variation"`
	StdDev                 decimal.Decimal `json:"std_dev"`
	Mean                   decimal.Decimal `json:"mean"`
	Months                 int             `json:"months"`
}

// PaymentFrequency is the estimated cadence of an MCA position.
type PaymentFrequency string

const (
	FrequencyDaily   PaymentFrequency = "daily"
	FrequencyWeekly  PaymentFrequency = "weekly"
	FrequencyMonthly PaymentFrequency = "monthly"
	FrequencyUnknown PaymentFrequency = "unknown"
)

// LenderExposure is the observed activity for one MCA funder.
type LenderExposure struct {
	LenderID       string           `json:"lender_id"`
	LenderName     string           `json:"lender_name"`
	PaymentCount   int              `json:"payment_count"`
	TotalPaid      decimal.Decimal  `json:"total_paid"`
	AveragePayment decimal.Decimal  `json:"average_payment"`
	Frequency      PaymentFrequency `json:"frequency"`
	FirstPayment   string           `json:"first_payment,omitempty"`
	LastPayment    string           `json:"last_payment,omitempty"`
	FundingCount   int              `json:"funding_count"`
	FundingTotal   decimal.Decimal  `json:"funding_total"`
}

// MCAExposure aggregates existing MCA positions.
type MCAExposure struct {
	TotalMCACount        int              `json:"total_mca_count"`
	TotalMCAPayments     int              `json:"total_mca_payments"`
	TotalMCAAmount       decimal.Decimal  `json:"total_mca_amount"`
	ExistingDailyPayment decimal.Decimal  `json:"existing_daily_payment"`
	Lenders              []LenderExposure `json:"lenders"`
}

// Capacity is the supportable new daily MCA payment.
type Capacity struct {
	DailyRevenue             decimal.Decimal `json:"daily_revenue"`
	MaxDailyPayment          decimal.Decimal `json:"max_daily_payment"`
	ExistingDailyPayment     decimal.Decimal `json:"existing_daily_payment"`
	RemainingDailyCapacity   decimal.Decimal `json:"remaining_daily_capacity"`
	RemainingWithholdPercent decimal.Decimal `json:"remaining_withhold_percent"`
	AtCapacity               bool            `json:"at_capacity"`
}

// DataQuality carries explicit markers for partial data.
type DataQuality struct {
	HasBalanceData      bool     `json:"has_balance_data"`
	HasNSFData          bool     `json:"has_nsf_data"`
	DuplicatesRemoved   int      `json:"duplicates_removed"`
	UndatedTransactions int      `json:"undated_transactions"`
	CorrectedTypes      int      `json:"corrected_types"`
	NeedsReviewCount    int      `json:"needs_review_count"`
	Warnings            []string `json:"warnings"`
}

// Report is the structured output handed to the reporting layer.
type Report struct {
	StatementID  string           `json:"statement_id"`
	BusinessName string           `json:"business_name,omitempty"`
	Months       []*MonthlyBucket `json:"months"`
	Totals       Totals           `json:"totals"`
	Averages     Averages         `json:"averages"`
	RawTotals    RawTotals        `json:"raw_totals"`
	RevenueRatio decimal.Decimal  `json:"revenue_ratio"`
	Volatility   Volatility       `json:"volatility"`
	MCAExposure  MCAExposure      `json:"mca_exposure"`
	MCACapacity  Capacity         `json:"mca_capacity"`
	DataQuality  DataQuality      `json:"data_quality"`
}
