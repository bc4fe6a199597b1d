package aggregator

import (
	"fmt"
	"math/rand"
	"testing"
	"time"

	"mca-revenue-engine/internal/models"
	"mca-revenue-engine/pkg/errors"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func dated(id, date, amount string, txType models.TransactionType) *models.Transaction {
	t := &models.Transaction{ID: id, RawDate: date, Amount: d(amount), Type: txType}
	if parsed, err := models.ParseStatementDate(date); err == nil {
		t.Date = parsed
		t.DateValid = true
	}
	return t
}

func newAggregator(t *testing.T) *Aggregator {
	t.Helper()
	a, err := New(nil)
	require.NoError(t, err)
	return a
}

func TestAggregate_OnDeckScenario(t *testing.T) {
	debit := dated("1", "2024-01-05", "500", models.TransactionTypeDebit)
	debit.IsMCAPayment = true
	credit := dated("2", "2024-01-10", "10000", models.TransactionTypeCredit)

	res := newAggregator(t).Aggregate([]*models.Transaction{debit, credit})
	require.Len(t, res.Months, 1)

	jan := res.Months[0]
	assert.Equal(t, "2024-01", jan.MonthKey)
	assert.Equal(t, 31, jan.CalendarDays)
	assert.True(t, jan.BusinessDays.Equal(d("21.67")))
	assert.True(t, jan.TotalCredits.Equal(d("10000")))
	assert.True(t, jan.TotalDebits.Equal(d("500")))
	assert.True(t, jan.TrueRevenue.Equal(d("10000")))
	assert.True(t, jan.ExcludedAmount.IsZero())
	assert.True(t, jan.MCAPaymentTotal.Equal(d("500")))
	assert.Equal(t, 2, jan.TransactionCount)
	assert.True(t, jan.AverageDailyRevenue.Equal(d("461.47")), "got %s", jan.AverageDailyRevenue)
	assert.True(t, jan.RevenueRatio.Equal(d("1")))
}

func TestAggregate_AdjustmentsAndReview(t *testing.T) {
	sales := dated("1", "2024-02-03", "1500.25", models.TransactionTypeCredit)
	transfer := dated("2", "2024-02-04", "499.75", models.TransactionTypeCredit)
	transfer.IsAdjustment = true
	transfer.ClassificationReason = "transfer: xfer"
	funding := dated("3", "2024-02-05", "20000", models.TransactionTypeCredit)
	funding.IsAdjustment = true
	funding.IsMCAFunding = true
	funding.NeedsReview = true
	weak := dated("4", "2024-02-06", "100", models.TransactionTypeCredit)
	weak.NeedsReview = true

	res := newAggregator(t).Aggregate([]*models.Transaction{sales, transfer, funding, weak})
	require.Len(t, res.Months, 1)
	feb := res.Months[0]

	assert.Equal(t, 29, feb.CalendarDays)
	assert.True(t, feb.TotalCredits.Equal(d("22100")))
	assert.True(t, feb.ExcludedAmount.Equal(d("20499.75")))
	assert.True(t, feb.TrueRevenue.Equal(d("1600.25")))
	assert.True(t, feb.NeedsReviewAmount.Equal(d("20100")))
	assert.True(t, feb.MCAFundingTotal.Equal(d("20000")))
	require.Len(t, feb.ExcludedTransactions, 2)
	assert.Equal(t, "transfer: xfer", feb.ExcludedTransactions[0].Reason)
	assert.Len(t, feb.NeedsReviewTransactions, 2)
}

func TestAggregate_UndatedKeptOutOfBuckets(t *testing.T) {
	good := dated("1", "2024-03-01", "100", models.TransactionTypeCredit)
	bad := dated("2", "not a date", "50", models.TransactionTypeCredit)
	badDebit := dated("3", "", "20", models.TransactionTypeDebit)

	res := newAggregator(t).Aggregate([]*models.Transaction{good, bad, badDebit})
	require.Len(t, res.Months, 1)
	assert.Len(t, res.Undated, 2)
	assert.Equal(t, 3, res.RawTotals.TransactionCount)
	assert.Equal(t, 2, res.RawTotals.UndatedCount)
	assert.True(t, res.RawTotals.Credits.Equal(d("150")))
	assert.True(t, res.RawTotals.UndatedCredits.Equal(d("50")))
	assert.True(t, res.RawTotals.UndatedDebits.Equal(d("20")))
	assert.True(t, res.Months[0].TotalCredits.Equal(d("100")))
}

func TestAggregate_SortedAscending(t *testing.T) {
	res := newAggregator(t).Aggregate([]*models.Transaction{
		dated("1", "2024-03-01", "1", models.TransactionTypeCredit),
		dated("2", "2023-12-31", "1", models.TransactionTypeCredit),
		dated("3", "2024-01-15", "1", models.TransactionTypeDebit),
	})
	var keys []string
	for _, m := range res.Months {
		keys = append(keys, m.MonthKey)
	}
	assert.Equal(t, []string{"2023-12", "2024-01", "2024-03"}, keys)
}

func TestAggregate_Empty(t *testing.T) {
	res := newAggregator(t).Aggregate(nil)
	assert.Empty(t, res.Months)

	s := Summarize(res.Months)
	assert.True(t, s.Totals.TrueRevenue.IsZero())
	assert.Nil(t, s.Averages.AverageDailyBalance)
	assert.True(t, s.RevenueRatio.IsZero())
}

func TestRevenueConservation(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	start := time.Date(2023, 10, 1, 0, 0, 0, 0, time.UTC)

	for run := 0; run < 20; run++ {
		var txns []*models.Transaction
		want := decimal.Zero
		for i := 0; i < 200; i++ {
			date := start.AddDate(0, 0, rng.Intn(180))
			amount := decimal.New(rng.Int63n(10000000), -2)
			txType := models.TransactionTypeCredit
			if rng.Intn(3) == 0 {
				txType = models.TransactionTypeDebit
			}
			tr := &models.Transaction{
				ID:        fmt.Sprintf("%d-%d", run, i),
				Date:      date,
				DateValid: true,
				Amount:    amount,
				Type:      txType,
			}
			if txType == models.TransactionTypeCredit {
				tr.IsAdjustment = rng.Intn(4) == 0
				tr.NeedsReview = rng.Intn(10) == 0
				if !tr.IsAdjustment {
					want = want.Add(amount)
				}
			}
			txns = append(txns, tr)
		}

		res := newAggregator(t).Aggregate(txns)
		monthly := decimal.Zero
		for _, m := range res.Months {
			assert.True(t, m.TrueRevenue.Equal(m.TotalCredits.Sub(m.ExcludedAmount)))
			monthly = monthly.Add(m.TrueRevenue)
		}
		summary := Summarize(res.Months)

		assert.True(t, monthly.Equal(want), "run %d: monthly %s want %s", run, monthly, want)
		assert.True(t, summary.Totals.TrueRevenue.Equal(want), "run %d: total %s want %s", run, summary.Totals.TrueRevenue, want)
	}
}

func TestSummarize(t *testing.T) {
	adb1 := d("1000")
	adb2 := d("2000.01")
	months := []*models.MonthlyBucket{
		{MonthKey: "2024-01", TotalCredits: d("10000"), ExcludedAmount: d("2000"), TrueRevenue: d("8000"), TotalDebits: d("5000"), AverageDailyBalance: &adb1},
		{MonthKey: "2024-02", TotalCredits: d("6000"), ExcludedAmount: d("0"), TrueRevenue: d("6000"), TotalDebits: d("7000"), AverageDailyBalance: &adb2},
		{MonthKey: "2024-03", TotalCredits: d("2000"), ExcludedAmount: d("1000"), TrueRevenue: d("1000"), TotalDebits: d("100")},
	}

	s := Summarize(months)
	assert.True(t, s.Totals.Deposits.Equal(d("18000")))
	assert.True(t, s.Totals.Adjustments.Equal(d("3000")))
	assert.True(t, s.Totals.TrueRevenue.Equal(d("15000")))
	assert.True(t, s.Averages.TrueRevenue.Equal(d("5000")))
	assert.True(t, s.Averages.Debits.Equal(d("4033.33")))
	require.NotNil(t, s.Averages.AverageDailyBalance)
	assert.True(t, s.Averages.AverageDailyBalance.Equal(d("1500.01")), "got %s", s.Averages.AverageDailyBalance)
	assert.True(t, s.RevenueRatio.Equal(d("0.8333")))
}

func TestConfigValidate(t *testing.T) {
	_, err := New(&Config{BusinessDaysPerMonth: decimal.Zero})
	assert.True(t, errors.HasCode(err, errors.CodeInvalidConfig))
}
