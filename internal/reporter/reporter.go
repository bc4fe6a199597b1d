// Package reporter renders analysis reports for underwriters and downstream
// systems.
//
// Supported output formats:
//   - Console: human-readable sections for terminal display
//   - JSON: the full structured report for programmatic consumption
//   - CSV: one row per month for spreadsheet applications
//
// Example usage:
//
//	generator, err := reporter.NewReportGenerator(&reporter.ReportConfig{Format: reporter.FormatJSON})
//	err = generator.GenerateReport(report, os.Stdout)
package reporter

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"text/tabwriter"

	"mca-revenue-engine/internal/models"

	"github.com/shopspring/decimal"
)

// OutputFormat represents the supported report output formats.
type OutputFormat string

const (
	FormatConsole OutputFormat = "console"
	FormatJSON    OutputFormat = "json"
	FormatCSV     OutputFormat = "csv"
)

// IsValid checks if the output format is supported
func (f OutputFormat) IsValid() bool {
	switch f {
	case FormatConsole, FormatJSON, FormatCSV:
		return true
	default:
		return false
	}
}

// ReportConfig holds configuration options for report generation
type ReportConfig struct {
	Format OutputFormat `json:"format"`

	// Detail level options
	IncludeTransactions bool `json:"include_transactions"`
	IncludeLenders      bool `json:"include_lenders"`
	MaxListItems        int  `json:"max_list_items"`

	// CSV options
	CSVDelimiter rune `json:"csv_delimiter"`
	CSVHeaders   bool `json:"csv_headers"`
}

// DefaultReportConfig returns a default report configuration
func DefaultReportConfig() *ReportConfig {
	return &ReportConfig{
		Format:              FormatConsole,
		IncludeTransactions: true,
		IncludeLenders:      true,
		MaxListItems:        10,
		CSVDelimiter:        ',',
		CSVHeaders:          true,
	}
}

// Validate validates the report configuration
func (c *ReportConfig) Validate() error {
	if !c.Format.IsValid() {
		return fmt.Errorf("invalid output format: %s", c.Format)
	}
	if c.MaxListItems < 0 {
		return fmt.Errorf("max list items cannot be negative, got %d", c.MaxListItems)
	}
	if c.Format == FormatCSV && (c.CSVDelimiter == 0 || c.CSVDelimiter == '"' || c.CSVDelimiter == '\n') {
		return fmt.Errorf("invalid CSV delimiter %q", c.CSVDelimiter)
	}
	return nil
}

// ReportGenerator renders reports in the configured format.
type ReportGenerator struct {
	config *ReportConfig
}

// NewReportGenerator creates a new report generator with the specified configuration
func NewReportGenerator(config *ReportConfig) (*ReportGenerator, error) {
	if config == nil {
		config = DefaultReportConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid report configuration: %w", err)
	}
	return &ReportGenerator{config: config}, nil
}

// GenerateReport writes report to writer.
func (rg *ReportGenerator) GenerateReport(report *models.Report, writer io.Writer) error {
	if report == nil {
		return fmt.Errorf("report cannot be nil")
	}

	switch rg.config.Format {
	case FormatConsole:
		return rg.generateConsoleReport(report, writer)
	case FormatJSON:
		return rg.generateJSONReport(report, writer)
	case FormatCSV:
		return rg.generateCSVReport(report, writer)
	default:
		return fmt.Errorf("unsupported output format: %s", rg.config.Format)
	}
}

// GetConfiguration returns the current configuration
func (rg *ReportGenerator) GetConfiguration() *ReportConfig {
	return rg.config
}

func (rg *ReportGenerator) generateConsoleReport(report *models.Report, writer io.Writer) error {
	ew := &errWriter{w: writer}

	ew.printf("TRUE REVENUE REPORT\n")
	ew.printf("Statement: %s\n", report.StatementID)
	if report.BusinessName != "" {
		ew.printf("Business:  %s\n", report.BusinessName)
	}
	ew.printf("\n")

	ew.printf("=== MONTHLY SUMMARY ===\n")
	rg.printMonthTable(report.Months, ew)
	ew.printf("\n")

	ew.printf("=== TOTALS ===\n")
	rg.printTotals(report, ew)
	ew.printf("\n")

	ew.printf("=== VOLATILITY ===\n")
	ew.printf("Mean Monthly True Revenue: %s\n", report.Volatility.Mean.StringFixed(2))
	ew.printf("Standard Deviation:        %s\n", report.Volatility.StdDev.StringFixed(2))
	ew.printf("Coefficient of Variation:  %s\n", report.Volatility.CoefficientOfVariation.StringFixed(4))
	ew.printf("\n")

	ew.printf("=== MCA EXPOSURE ===\n")
	rg.printExposure(report.MCAExposure, ew)
	ew.printf("\n")

	ew.printf("=== MCA CAPACITY ===\n")
	rg.printCapacity(report.MCACapacity, ew)
	ew.printf("\n")

	ew.printf("=== DATA QUALITY ===\n")
	rg.printDataQuality(report.DataQuality, ew)

	if rg.config.IncludeTransactions {
		rg.printExcluded(report.Months, ew)
	}
	return ew.err
}

func (rg *ReportGenerator) printMonthTable(months []*models.MonthlyBucket, ew *errWriter) {
	if len(months) == 0 {
		ew.printf("No dated transactions.\n")
		return
	}

	tw := tabwriter.NewWriter(ew, 0, 0, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintln(tw, "Month\tDeposits\tAdjustments\tTrue Revenue\tRatio\tNeg Days\tNSF\tAvg Balance\t")
	for _, m := range months {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%d\t%d\t%s\t\n",
			m.MonthKey,
			m.TotalCredits.StringFixed(2),
			m.ExcludedAmount.StringFixed(2),
			m.TrueRevenue.StringFixed(2),
			percent(m.RevenueRatio),
			m.NegativeDaysCount,
			m.NSFCount,
			optional(m.AverageDailyBalance))
	}
	tw.Flush()
}

func (rg *ReportGenerator) printTotals(report *models.Report, ew *errWriter) {
	ew.printf("Deposits:         %s  (avg %s/month)\n", report.Totals.Deposits.StringFixed(2), report.Averages.Deposits.StringFixed(2))
	ew.printf("Adjustments:      %s  (avg %s/month)\n", report.Totals.Adjustments.StringFixed(2), report.Averages.Adjustments.StringFixed(2))
	ew.printf("True Revenue:     %s  (avg %s/month)\n", report.Totals.TrueRevenue.StringFixed(2), report.Averages.TrueRevenue.StringFixed(2))
	ew.printf("Debits:           %s  (avg %s/month)\n", report.Totals.Debits.StringFixed(2), report.Averages.Debits.StringFixed(2))
	ew.printf("Revenue Ratio:    %s\n", percent(report.RevenueRatio))
	ew.printf("Avg Daily Bal.:   %s\n", optional(report.Averages.AverageDailyBalance))
	if !report.Totals.NeedsReview.IsZero() {
		ew.printf("Needs Review:     %s\n", report.Totals.NeedsReview.StringFixed(2))
	}
}

func (rg *ReportGenerator) printExposure(exposure models.MCAExposure, ew *errWriter) {
	ew.printf("Active Positions:       %d\n", exposure.TotalMCACount)
	ew.printf("Payments Observed:      %d\n", exposure.TotalMCAPayments)
	ew.printf("Total Paid:             %s\n", exposure.TotalMCAAmount.StringFixed(2))
	ew.printf("Existing Daily Payment: %s\n", exposure.ExistingDailyPayment.StringFixed(2))

	if !rg.config.IncludeLenders || len(exposure.Lenders) == 0 {
		return
	}
	ew.printf("\n")
	tw := tabwriter.NewWriter(ew, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "Lender\tPayments\tTotal Paid\tAvg Payment\tFrequency\tFundings\t")
	for _, l := range exposure.Lenders {
		fmt.Fprintf(tw, "%s\t%d\t%s\t%s\t%s\t%s\t\n",
			l.LenderName,
			l.PaymentCount,
			l.TotalPaid.StringFixed(2),
			l.AveragePayment.StringFixed(2),
			l.Frequency,
			l.FundingTotal.StringFixed(2))
	}
	tw.Flush()
}

func (rg *ReportGenerator) printCapacity(capacity models.Capacity, ew *errWriter) {
	ew.printf("Daily True Revenue:       %s\n", capacity.DailyRevenue.StringFixed(2))
	ew.printf("Max Daily Payment:        %s\n", capacity.MaxDailyPayment.StringFixed(2))
	ew.printf("Existing Daily Payment:   %s\n", capacity.ExistingDailyPayment.StringFixed(2))
	ew.printf("Remaining Daily Capacity: %s\n", capacity.RemainingDailyCapacity.StringFixed(2))
	ew.printf("Remaining Withhold:       %s\n", percent(capacity.RemainingWithholdPercent))
	if capacity.AtCapacity {
		ew.printf("Status:                   AT CAPACITY\n")
	}
}

func (rg *ReportGenerator) printDataQuality(dq models.DataQuality, ew *errWriter) {
	ew.printf("Balance Data:        %s\n", yesNo(dq.HasBalanceData))
	ew.printf("NSF Data:            %s\n", yesNo(dq.HasNSFData))
	ew.printf("Duplicates Removed:  %d\n", dq.DuplicatesRemoved)
	ew.printf("Undated:             %d\n", dq.UndatedTransactions)
	ew.printf("Corrected Types:     %d\n", dq.CorrectedTypes)
	ew.printf("Needs Review:        %d\n", dq.NeedsReviewCount)
	for _, w := range dq.Warnings {
		ew.printf("  ! %s\n", w)
	}
}

func (rg *ReportGenerator) printExcluded(months []*models.MonthlyBucket, ew *errWriter) {
	for _, m := range months {
		if len(m.ExcludedTransactions) == 0 {
			continue
		}
		ew.printf("\n=== EXCLUDED %s (%d) ===\n", m.MonthKey, len(m.ExcludedTransactions))
		for i, ref := range m.ExcludedTransactions {
			if rg.config.MaxListItems > 0 && i >= rg.config.MaxListItems {
				ew.printf("  ... and %d more\n", len(m.ExcludedTransactions)-i)
				break
			}
			ew.printf("  %d. %s %s %s (%s)\n", i+1, ref.Date, ref.Description, ref.Amount.StringFixed(2), ref.Reason)
		}
	}
}

func (rg *ReportGenerator) generateJSONReport(report *models.Report, writer io.Writer) error {
	encoder := json.NewEncoder(writer)
	encoder.SetIndent("", "  ")
	return encoder.Encode(rg.filterReportForOutput(report))
}

// filterReportForOutput drops per-transaction lists when they are not
// wanted. The report itself is never modified.
func (rg *ReportGenerator) filterReportForOutput(report *models.Report) *models.Report {
	if rg.config.IncludeTransactions && rg.config.IncludeLenders {
		return report
	}
	out := *report
	if !rg.config.IncludeLenders {
		out.MCAExposure.Lenders = []models.LenderExposure{}
	}
	if !rg.config.IncludeTransactions {
		out.Months = make([]*models.MonthlyBucket, len(report.Months))
		for i, m := range report.Months {
			bucket := *m
			bucket.ExcludedTransactions = []models.TransactionRef{}
			bucket.NeedsReviewTransactions = []models.TransactionRef{}
			out.Months[i] = &bucket
		}
	}
	return &out
}

var csvHeaders = []string{
	"Month",
	"Calendar_Days",
	"Business_Days",
	"Total_Credits",
	"Total_Debits",
	"Excluded_Amount",
	"True_Revenue",
	"Needs_Review_Amount",
	"Revenue_Ratio",
	"Average_Daily_Revenue",
	"MCA_Payments",
	"MCA_Fundings",
	"Negative_Days",
	"Negative_Dates",
	"Balance_Method",
	"Average_Daily_Balance",
	"NSF_Events",
	"NSF_Fees",
	"Returned_Items",
}

func (rg *ReportGenerator) generateCSVReport(report *models.Report, writer io.Writer) error {
	csvWriter := csv.NewWriter(writer)
	csvWriter.Comma = rg.config.CSVDelimiter

	if rg.config.CSVHeaders {
		if err := csvWriter.Write(csvHeaders); err != nil {
			return fmt.Errorf("failed to write CSV headers: %w", err)
		}
	}

	for _, m := range report.Months {
		record := []string{
			m.MonthKey,
			strconv.Itoa(m.CalendarDays),
			m.BusinessDays.String(),
			m.TotalCredits.StringFixed(2),
			m.TotalDebits.StringFixed(2),
			m.ExcludedAmount.StringFixed(2),
			m.TrueRevenue.StringFixed(2),
			m.NeedsReviewAmount.StringFixed(2),
			m.RevenueRatio.StringFixed(4),
			m.AverageDailyRevenue.StringFixed(2),
			m.MCAPaymentTotal.StringFixed(2),
			m.MCAFundingTotal.StringFixed(2),
			strconv.Itoa(m.NegativeDaysCount),
			strings.Join(m.NegativeDates, " "),
			string(m.BalanceMethod),
			optionalCSV(m.AverageDailyBalance),
			strconv.Itoa(m.NSFCount),
			strconv.Itoa(m.NSFFeeCount),
			strconv.Itoa(m.ReturnedItemCount),
		}
		if err := csvWriter.Write(record); err != nil {
			return fmt.Errorf("failed to write month %s: %w", m.MonthKey, err)
		}
	}

	total := make([]string, len(csvHeaders))
	total[0] = "TOTAL"
	total[3] = report.Totals.Deposits.StringFixed(2)
	total[4] = report.Totals.Debits.StringFixed(2)
	total[5] = report.Totals.Adjustments.StringFixed(2)
	total[6] = report.Totals.TrueRevenue.StringFixed(2)
	total[7] = report.Totals.NeedsReview.StringFixed(2)
	total[8] = report.RevenueRatio.StringFixed(4)
	if err := csvWriter.Write(total); err != nil {
		return fmt.Errorf("failed to write totals: %w", err)
	}

	csvWriter.Flush()
	return csvWriter.Error()
}

// errWriter remembers the first write error so section printers stay flat.
type errWriter struct {
	w   io.Writer
	err error
}

func (ew *errWriter) Write(p []byte) (int, error) {
	if ew.err != nil {
		return 0, ew.err
	}
	n, err := ew.w.Write(p)
	ew.err = err
	return n, err
}

func (ew *errWriter) printf(format string, args ...interface{}) {
	fmt.Fprintf(ew, format, args...)
}

var hundred = decimal.NewFromInt(100)

func percent(ratio decimal.Decimal) string {
	return ratio.Mul(hundred).StringFixed(1) + "%"
}

func optional(v *decimal.Decimal) string {
	if v == nil {
		return "n/a"
	}
	return v.StringFixed(2)
}

func optionalCSV(v *decimal.Decimal) string {
	if v == nil {
		return ""
	}
	return v.StringFixed(2)
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}
