// Package underwriting derives the figures an MCA offer is priced from:
// revenue volatility, remaining payment capacity and existing MCA exposure.
package underwriting

import (
	"fmt"
	"math"
	"sort"

	"mca-revenue-engine/internal/models"
	"mca-revenue-engine/pkg/errors"
	"mca-revenue-engine/pkg/logger"

	"github.com/shopspring/decimal"
)

var (
	// DefaultMaxWithholdPercentage caps total daily MCA payments as a share
	// of daily revenue.
	DefaultMaxWithholdPercentage = decimal.RequireFromString("0.20")
	// DefaultBusinessDaysPerMonth matches the aggregator's constant.
	DefaultBusinessDaysPerMonth = decimal.RequireFromString("21.67")
)

// Config holds underwriting policy.
type Config struct {
	MaxWithholdPercentage decimal.Decimal
	BusinessDaysPerMonth  decimal.Decimal
}

// DefaultConfig returns the default policy.
func DefaultConfig() *Config {
	return &Config{
		MaxWithholdPercentage: DefaultMaxWithholdPercentage,
		BusinessDaysPerMonth:  DefaultBusinessDaysPerMonth,
	}
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	if c.MaxWithholdPercentage.IsNegative() || c.MaxWithholdPercentage.GreaterThan(decimal.NewFromInt(1)) {
		return errors.ConfigurationError(errors.CodeInvalidConfig, "max_withhold_percentage",
			c.MaxWithholdPercentage.String(), fmt.Errorf("must be between 0 and 1"))
	}
	if !c.BusinessDaysPerMonth.IsPositive() {
		return errors.ConfigurationError(errors.CodeInvalidConfig, "business_days_per_month",
			c.BusinessDaysPerMonth.String(), fmt.Errorf("must be positive"))
	}
	return nil
}

// Engine computes underwriting metrics with a fixed policy.
type Engine struct {
	config *Config
	logger logger.Logger
}

// New creates an engine.
func New(config *Config) (*Engine, error) {
	if config == nil {
		config = DefaultConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &Engine{
		config: config,
		logger: logger.GetGlobalLogger().WithComponent("underwriting"),
	}, nil
}

// Volatility measures dispersion of monthly true revenue using the
// population standard deviation. The coefficient of variation is zero when
// the mean is zero.
func Volatility(months []*models.MonthlyBucket) models.Volatility {
	v := models.Volatility{Months: len(months)}
	if len(months) == 0 {
		return v
	}

	n := decimal.NewFromInt(int64(len(months)))
	sum := decimal.Zero
	for _, m := range months {
		sum = sum.Add(m.TrueRevenue)
	}
	mean := sum.Div(n)

	variance := decimal.Zero
	for _, m := range months {
		diff := m.TrueRevenue.Sub(mean)
		variance = variance.Add(diff.Mul(diff))
	}
	variance = variance.Div(n)

	// decimal has no square root.
	vf, _ := variance.Float64()
	stdDev := decimal.NewFromFloat(math.Sqrt(vf))

	v.Mean = mean.Round(2)
	v.StdDev = stdDev.Round(2)
	if mean.IsPositive() {
		v.CoefficientOfVariation = stdDev.Div(mean).Round(4)
	}
	return v
}

// CapacityInput is the input to Capacity.
type CapacityInput struct {
	AverageMonthlyTrueRevenue decimal.Decimal
	ExistingDailyPayment      decimal.Decimal
	MaxWithholdPercentage     decimal.Decimal
	BusinessDaysPerMonth      decimal.Decimal
}

// Capacity computes the new daily MCA payment the business can support:
//
//	daily_revenue            = avg_monthly_true_revenue / business_days
//	max_daily_payment        = daily_revenue * max_withhold
//	remaining_daily_capacity = max(0, max_daily_payment - existing)
//
// Zero or negative revenue yields zero capacity and AtCapacity.
func Capacity(in CapacityInput) models.Capacity {
	c := models.Capacity{ExistingDailyPayment: in.ExistingDailyPayment.Round(2)}

	if !in.AverageMonthlyTrueRevenue.IsPositive() || !in.BusinessDaysPerMonth.IsPositive() {
		c.AtCapacity = true
		return c
	}

	daily := in.AverageMonthlyTrueRevenue.Div(in.BusinessDaysPerMonth)
	maxPayment := daily.Mul(in.MaxWithholdPercentage)
	remaining := maxPayment.Sub(in.ExistingDailyPayment)
	if remaining.IsNegative() {
		remaining = decimal.Zero
	}

	c.DailyRevenue = daily.Round(2)
	c.MaxDailyPayment = maxPayment.Round(2)
	c.RemainingDailyCapacity = remaining.Round(2)
	c.RemainingWithholdPercent = remaining.Div(daily).Round(4)
	c.AtCapacity = !remaining.IsPositive()
	return c
}

// Capacity applies the engine's policy to Capacity.
func (e *Engine) Capacity(avgMonthlyTrueRevenue, existingDailyPayment decimal.Decimal) models.Capacity {
	return Capacity(CapacityInput{
		AverageMonthlyTrueRevenue: avgMonthlyTrueRevenue,
		ExistingDailyPayment:      existingDailyPayment,
		MaxWithholdPercentage:     e.config.MaxWithholdPercentage,
		BusinessDaysPerMonth:      e.config.BusinessDaysPerMonth,
	})
}

type lenderActivity struct {
	exposure models.LenderExposure
	dates    []string
}

// Exposure summarises MCA payments and fundings per lender. The existing
// daily payment is total payments spread over the months observed.
func (e *Engine) Exposure(txns []*models.Transaction, months []*models.MonthlyBucket) models.MCAExposure {
	exposure := models.MCAExposure{Lenders: []models.LenderExposure{}}
	byLender := make(map[string]*lenderActivity)

	activity := func(t *models.Transaction) *lenderActivity {
		key := t.MCALenderID
		if key == "" {
			key = t.MCALenderName
		}
		a, ok := byLender[key]
		if !ok {
			a = &lenderActivity{exposure: models.LenderExposure{
				LenderID:   t.MCALenderID,
				LenderName: t.MCALenderName,
				Frequency:  models.FrequencyUnknown,
			}}
			byLender[key] = a
		}
		return a
	}

	for _, t := range txns {
		switch {
		case t.IsDebit() && t.IsMCAPayment:
			a := activity(t)
			a.exposure.PaymentCount++
			a.exposure.TotalPaid = a.exposure.TotalPaid.Add(t.Amount)
			if t.DateValid {
				a.dates = append(a.dates, t.Date.Format(models.DateLayout))
			}
			exposure.TotalMCAPayments++
			exposure.TotalMCAAmount = exposure.TotalMCAAmount.Add(t.Amount)
		case t.IsCredit() && t.IsMCAFunding:
			a := activity(t)
			a.exposure.FundingCount++
			a.exposure.FundingTotal = a.exposure.FundingTotal.Add(t.Amount)
		}
	}

	for _, a := range byLender {
		le := a.exposure
		if le.PaymentCount > 0 {
			exposure.TotalMCACount++
			le.AveragePayment = le.TotalPaid.Div(decimal.NewFromInt(int64(le.PaymentCount))).Round(2)
		}
		if len(a.dates) > 0 {
			sort.Strings(a.dates)
			le.FirstPayment = a.dates[0]
			le.LastPayment = a.dates[len(a.dates)-1]
			le.Frequency = EstimateFrequency(a.dates)
		}
		exposure.Lenders = append(exposure.Lenders, le)
	}
	sort.Slice(exposure.Lenders, func(i, j int) bool {
		a, b := exposure.Lenders[i], exposure.Lenders[j]
		if !a.TotalPaid.Equal(b.TotalPaid) {
			return a.TotalPaid.GreaterThan(b.TotalPaid)
		}
		return a.LenderName < b.LenderName
	})

	if len(months) > 0 {
		days := e.config.BusinessDaysPerMonth.Mul(decimal.NewFromInt(int64(len(months))))
		exposure.ExistingDailyPayment = exposure.TotalMCAAmount.Div(days).Round(2)
	}

	e.logger.WithFields(logger.Fields{
		"positions": exposure.TotalMCACount,
		"payments":  exposure.TotalMCAPayments,
		"total":     exposure.TotalMCAAmount.String(),
	}).Debug("Computed MCA exposure")
	return exposure
}

// EstimateFrequency classifies a payment cadence from the median gap in
// calendar days between sorted payment dates (YYYY-MM-DD).
func EstimateFrequency(sortedDates []string) models.PaymentFrequency {
	if len(sortedDates) < 2 {
		return models.FrequencyUnknown
	}

	var gaps []int
	for i := 1; i < len(sortedDates); i++ {
		prev, err1 := models.ParseStatementDate(sortedDates[i-1])
		cur, err2 := models.ParseStatementDate(sortedDates[i])
		if err1 != nil || err2 != nil {
			continue
		}
		gap := int(cur.Sub(prev).Hours() / 24)
		if gap > 0 {
			gaps = append(gaps, gap)
		}
	}
	if len(gaps) == 0 {
		return models.FrequencyUnknown
	}
	sort.Ints(gaps)

	median := gaps[len(gaps)/2]
	switch {
	case median <= 3:
		return models.FrequencyDaily
	case median <= 10:
		return models.FrequencyWeekly
	case median <= 45:
		return models.FrequencyMonthly
	default:
		return models.FrequencyUnknown
	}
}
