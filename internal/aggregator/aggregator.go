// Package aggregator buckets classified transactions by calendar month and
// derives per-month and statement-level revenue totals.
package aggregator

import (
	"fmt"
	"sort"

	"mca-revenue-engine/internal/models"
	"mca-revenue-engine/pkg/errors"
	"mca-revenue-engine/pkg/logger"

	"github.com/shopspring/decimal"
)

// DefaultBusinessDaysPerMonth is the fixed business-day count applied to
// every month.
var DefaultBusinessDaysPerMonth = decimal.RequireFromString("21.67")

// Config controls aggregation.
type Config struct {
	BusinessDaysPerMonth decimal.Decimal
}

// DefaultConfig returns the default aggregation configuration.
func DefaultConfig() *Config {
	return &Config{BusinessDaysPerMonth: DefaultBusinessDaysPerMonth}
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	if !c.BusinessDaysPerMonth.IsPositive() {
		return errors.ConfigurationError(errors.CodeInvalidConfig, "business_days_per_month",
			c.BusinessDaysPerMonth.String(), fmt.Errorf("must be positive"))
	}
	return nil
}

// Aggregator groups transactions into monthly buckets.
type Aggregator struct {
	config *Config
	logger logger.Logger
}

// Result is the output of Aggregate.
type Result struct {
	Months    []*models.MonthlyBucket
	Undated   []*models.Transaction
	RawTotals models.RawTotals
}

// New creates an aggregator.
func New(config *Config) (*Aggregator, error) {
	if config == nil {
		config = DefaultConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &Aggregator{
		config: config,
		logger: logger.GetGlobalLogger().WithComponent("aggregator"),
	}, nil
}

// Aggregate buckets dated transactions by YYYY-MM. Undated transactions are
// kept out of the buckets but counted in RawTotals. Buckets are sorted by
// month key.
func (a *Aggregator) Aggregate(txns []*models.Transaction) *Result {
	result := &Result{}
	byMonth := make(map[string]*models.MonthlyBucket)

	for _, t := range txns {
		result.RawTotals.TransactionCount++
		if t.IsCredit() {
			result.RawTotals.Credits = result.RawTotals.Credits.Add(t.Amount)
		} else {
			result.RawTotals.Debits = result.RawTotals.Debits.Add(t.Amount)
		}

		key := t.MonthKey()
		if key == "" {
			result.Undated = append(result.Undated, t)
			result.RawTotals.UndatedCount++
			if t.IsCredit() {
				result.RawTotals.UndatedCredits = result.RawTotals.UndatedCredits.Add(t.Amount)
			} else {
				result.RawTotals.UndatedDebits = result.RawTotals.UndatedDebits.Add(t.Amount)
			}
			a.logger.WithFields(logger.Fields{
				"transaction_id": t.ID,
				"raw_date":       t.RawDate,
			}).Warn("Transaction has no usable date; excluded from monthly buckets")
			continue
		}

		bucket, ok := byMonth[key]
		if !ok {
			bucket = models.NewMonthlyBucket(key, models.DaysInMonth(t.Date.Year(), t.Date.Month()), a.config.BusinessDaysPerMonth)
			byMonth[key] = bucket
		}
		add(bucket, t)
	}

	for _, bucket := range byMonth {
		finish(bucket)
		result.Months = append(result.Months, bucket)
	}
	sort.Slice(result.Months, func(i, j int) bool {
		return result.Months[i].MonthKey < result.Months[j].MonthKey
	})

	return result
}

func add(b *models.MonthlyBucket, t *models.Transaction) {
	b.TransactionCount++

	if t.IsDebit() {
		b.DebitCount++
		b.TotalDebits = b.TotalDebits.Add(t.Amount)
		if t.IsMCAPayment {
			b.MCAPaymentTotal = b.MCAPaymentTotal.Add(t.Amount)
		}
		return
	}

	b.CreditCount++
	b.TotalCredits = b.TotalCredits.Add(t.Amount)
	if t.IsAdjustment {
		b.ExcludedAmount = b.ExcludedAmount.Add(t.Amount)
		b.ExcludedTransactions = append(b.ExcludedTransactions, models.RefOf(t))
	}
	if t.IsMCAFunding {
		b.MCAFundingTotal = b.MCAFundingTotal.Add(t.Amount)
	}
	if t.NeedsReview {
		b.NeedsReviewAmount = b.NeedsReviewAmount.Add(t.Amount)
		b.NeedsReviewTransactions = append(b.NeedsReviewTransactions, models.RefOf(t))
	}
}

func finish(b *models.MonthlyBucket) {
	b.TrueRevenue = b.TotalCredits.Sub(b.ExcludedAmount)
	if b.BusinessDays.IsPositive() {
		b.AverageDailyRevenue = b.TrueRevenue.Div(b.BusinessDays).Round(2)
	}
	b.RevenueRatio = ratio(b.TrueRevenue, b.TotalCredits)
}

func ratio(part, whole decimal.Decimal) decimal.Decimal {
	if !whole.IsPositive() {
		return decimal.Zero
	}
	return part.Div(whole).Round(4)
}

// Summary holds statement-level figures derived from the buckets.
type Summary struct {
	Totals       models.Totals
	Averages     models.Averages
	RevenueRatio decimal.Decimal
}

// Summarize sums and averages the buckets. Totals are taken from the buckets
// so that the sum of monthly true revenue always equals the total. The
// average daily balance covers only months that have balance data.
func Summarize(months []*models.MonthlyBucket) Summary {
	var s Summary
	if len(months) == 0 {
		return s
	}

	var (
		adbSum    decimal.Decimal
		adbMonths int64
	)
	for _, m := range months {
		s.Totals.Deposits = s.Totals.Deposits.Add(m.TotalCredits)
		s.Totals.Adjustments = s.Totals.Adjustments.Add(m.ExcludedAmount)
		s.Totals.TrueRevenue = s.Totals.TrueRevenue.Add(m.TrueRevenue)
		s.Totals.Debits = s.Totals.Debits.Add(m.TotalDebits)
		s.Totals.NeedsReview = s.Totals.NeedsReview.Add(m.NeedsReviewAmount)
		if m.AverageDailyBalance != nil {
			adbSum = adbSum.Add(*m.AverageDailyBalance)
			adbMonths++
		}
	}

	n := decimal.NewFromInt(int64(len(months)))
	s.Averages.Deposits = s.Totals.Deposits.Div(n).Round(2)
	s.Averages.Adjustments = s.Totals.Adjustments.Div(n).Round(2)
	s.Averages.TrueRevenue = s.Totals.TrueRevenue.Div(n).Round(2)
	s.Averages.Debits = s.Totals.Debits.Div(n).Round(2)
	if adbMonths > 0 {
		adb := adbSum.Div(decimal.NewFromInt(adbMonths)).Round(2)
		s.Averages.AverageDailyBalance = &adb
	}

	s.RevenueRatio = ratio(s.Totals.TrueRevenue, s.Totals.Deposits)
	return s
}
