// Package balance rebuilds a best-effort daily balance timeline from
// transaction running balances to count negative-balance days and compute
// average daily balance.
package balance

import (
	"sort"
	"time"

	"mca-revenue-engine/internal/models"
	"mca-revenue-engine/pkg/logger"

	"github.com/shopspring/decimal"
)

// Period is an inclusive range of statement-local calendar dates.
type Period struct {
	Start time.Time
	End   time.Time
}

// Days returns the number of calendar days in the period.
func (p Period) Days() int {
	if p.End.Before(p.Start) {
		return 0
	}
	return int(p.End.Sub(p.Start).Hours()/24) + 1
}

// Result describes one month's balance timeline.
type Result struct {
	NegativeDaysCount   int
	NegativeDates       []string
	Method              models.BalanceMethod
	AverageDailyBalance *decimal.Decimal
	ClosingBalance      *decimal.Decimal
	DaysAnalyzed        int
}

// Analyzer builds daily balance timelines.
type Analyzer struct {
	logger logger.Logger
}

// NewAnalyzer creates an analyzer.
func NewAnalyzer() *Analyzer {
	return &Analyzer{logger: logger.GetGlobalLogger().WithComponent("balance")}
}

// AnalyzeNegativeDays walks every calendar day of period. A day with
// transactions closes at the ending balance of its last transaction in
// extraction order; transactions without an extracted balance are applied
// to the carried balance. Days without transactions carry the prior close.
//
// When no starting balance can be established (no opening balance and no
// extracted balances) the result is BalanceNoData with zero negative days.
func (a *Analyzer) AnalyzeNegativeDays(txns []*models.Transaction, opening *decimal.Decimal, period Period) Result {
	noData := Result{Method: models.BalanceNoData, NegativeDates: []string{}}
	if period.Days() == 0 {
		return noData
	}

	inPeriod := make([]*models.Transaction, 0, len(txns))
	for _, t := range txns {
		if !t.DateValid || t.Date.Before(period.Start) || t.Date.After(period.End) {
			continue
		}
		inPeriod = append(inPeriod, t)
	}
	sort.SliceStable(inPeriod, func(i, j int) bool {
		return inPeriod[i].Date.Before(inPeriod[j].Date)
	})

	start, derived, ok := startingBalance(inPeriod, opening)
	if !ok {
		return noData
	}

	result := Result{Method: models.BalanceFromStatement, NegativeDates: []string{}}
	if derived {
		result.Method = models.BalanceReconstructed
	}

	running := start
	sum := decimal.Zero
	next := 0
	for day := period.Start; !day.After(period.End); day = day.AddDate(0, 0, 1) {
		for next < len(inPeriod) && inPeriod[next].Date.Equal(day) {
			t := inPeriod[next]
			if t.EndingBalance != nil {
				running = *t.EndingBalance
			} else {
				running = running.Add(t.SignedAmount())
				result.Method = models.BalanceReconstructed
			}
			next++
		}

		if running.IsNegative() {
			result.NegativeDaysCount++
			result.NegativeDates = append(result.NegativeDates, day.Format(models.DateLayout))
		}
		sum = sum.Add(running)
		result.DaysAnalyzed++
	}

	adb := sum.Div(decimal.NewFromInt(int64(result.DaysAnalyzed))).Round(2)
	closing := running
	result.AverageDailyBalance = &adb
	result.ClosingBalance = &closing
	return result
}

// startingBalance returns the balance before the first transaction. It
// prefers the supplied opening balance, then the first transaction's own
// beginning balance, then backs out amounts from the first transaction that
// carries a balance. derived is true when the value was reconstructed.
func startingBalance(txns []*models.Transaction, opening *decimal.Decimal) (decimal.Decimal, bool, bool) {
	if opening != nil {
		return *opening, false, true
	}

	for i, t := range txns {
		begin, ok := t.BeginningBalance()
		if !ok {
			continue
		}
		if i == 0 {
			return begin, false, true
		}
		for _, earlier := range txns[:i] {
			begin = begin.Sub(earlier.SignedAmount())
		}
		return begin, true, true
	}
	return decimal.Zero, false, false
}

// StatementPeriod spans the first to the last dated transaction.
func StatementPeriod(txns []*models.Transaction) (Period, bool) {
	var p Period
	found := false
	for _, t := range txns {
		if !t.DateValid {
			continue
		}
		if !found || t.Date.Before(p.Start) {
			p.Start = t.Date
		}
		if !found || t.Date.After(p.End) {
			p.End = t.Date
		}
		found = true
	}
	return p, found
}

// MonthPeriod clips the statement period to the month named by key.
func MonthPeriod(statement Period, key string) (Period, bool) {
	first, err := time.Parse("2006-01", key)
	if err != nil {
		return Period{}, false
	}
	last := first.AddDate(0, 1, -1)

	p := Period{Start: first, End: last}
	if statement.Start.After(p.Start) {
		p.Start = statement.Start
	}
	if statement.End.Before(p.End) {
		p.End = statement.End
	}
	return p, p.Days() > 0
}

// Apply fills the balance fields of each bucket in month order. The first
// month opens at the statement's beginning balance when one is known; each
// later month opens at the previous month's close.
func (a *Analyzer) Apply(months []*models.MonthlyBucket, txns []*models.Transaction, beginning *decimal.Decimal) {
	period, ok := StatementPeriod(txns)
	if !ok {
		return
	}

	byMonth := make(map[string][]*models.Transaction)
	for _, t := range txns {
		if key := t.MonthKey(); key != "" {
			byMonth[key] = append(byMonth[key], t)
		}
	}

	opening := beginning
	for _, bucket := range months {
		monthPeriod, ok := MonthPeriod(period, bucket.MonthKey)
		if !ok {
			continue
		}

		res := a.AnalyzeNegativeDays(byMonth[bucket.MonthKey], opening, monthPeriod)
		bucket.BalanceMethod = res.Method
		bucket.NegativeDaysCount = res.NegativeDaysCount
		bucket.NegativeDates = res.NegativeDates
		bucket.AverageDailyBalance = res.AverageDailyBalance
		bucket.ClosingBalance = res.ClosingBalance

		if res.Method == models.BalanceNoData {
			a.logger.WithField("month", bucket.MonthKey).Debug("No balance data for month")
		}
		opening = res.ClosingBalance
	}
}
