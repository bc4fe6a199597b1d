package reporter

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"mca-revenue-engine/internal/models"
	pkgerrors "mca-revenue-engine/pkg/errors"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func sampleReport() *models.Report {
	adb := d("812.40")
	jan := models.NewMonthlyBucket("2024-01", 31, d("21.67"))
	jan.TotalCredits = d("12500")
	jan.TotalDebits = d("9300")
	jan.ExcludedAmount = d("2500")
	jan.TrueRevenue = d("10000")
	jan.RevenueRatio = d("0.8")
	jan.AverageDailyRevenue = d("461.47")
	jan.MCAPaymentTotal = d("500")
	jan.NegativeDaysCount = 2
	jan.NegativeDates = []string{"2024-01-08", "2024-01-09"}
	jan.BalanceMethod = models.BalanceFromStatement
	jan.AverageDailyBalance = &adb
	jan.NSFCount = 1
	jan.NSFFeeCount = 1
	jan.ExcludedTransactions = []models.TransactionRef{
		{ID: "t9", Date: "2024-01-15", Description: "TRANSFER FROM SAVINGS", Amount: d("2500"), Reason: "transfer"},
	}

	feb := models.NewMonthlyBucket("2024-02", 29, d("21.67"))
	feb.TotalCredits = d("8000")
	feb.TrueRevenue = d("8000")
	feb.RevenueRatio = d("1")

	return &models.Report{
		StatementID:  "stmt-1",
		BusinessName: "Acme Bakery",
		Months:       []*models.MonthlyBucket{jan, feb},
		Totals: models.Totals{
			Deposits:    d("20500"),
			Adjustments: d("2500"),
			TrueRevenue: d("18000"),
			Debits:      d("9300"),
		},
		RevenueRatio: d("0.8780"),
		Volatility:   models.Volatility{Mean: d("9000"), StdDev: d("1000"), CoefficientOfVariation: d("0.1111"), Months: 2},
		MCAExposure: models.MCAExposure{
			TotalMCACount:    1,
			TotalMCAPayments: 1,
			TotalMCAAmount:   d("500"),
			Lenders: []models.LenderExposure{
				{LenderID: "ondeck", LenderName: "OnDeck Capital", PaymentCount: 1, TotalPaid: d("500"), Frequency: models.FrequencyUnknown},
			},
		},
		MCACapacity: models.Capacity{DailyRevenue: d("415.32"), MaxDailyPayment: d("83.06"), RemainingDailyCapacity: d("71.52")},
		DataQuality: models.DataQuality{HasBalanceData: true, HasNSFData: true, Warnings: []string{"no balance data for 2024-02"}},
	}
}

func TestNewReportGenerator(t *testing.T) {
	tests := []struct {
		name        string
		config      *ReportConfig
		expectError bool
	}{
		{name: "default config"},
		{name: "valid config", config: DefaultReportConfig()},
		{name: "invalid format", config: &ReportConfig{Format: "xml"}, expectError: true},
		{name: "negative list size", config: &ReportConfig{Format: FormatConsole, MaxListItems: -1}, expectError: true},
		{name: "csv without delimiter", config: &ReportConfig{Format: FormatCSV}, expectError: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			generator, err := NewReportGenerator(tt.config)
			if tt.expectError {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.NotNil(t, generator.GetConfiguration())
		})
	}
}

func TestGenerateReport_Console(t *testing.T) {
	generator, err := NewReportGenerator(nil)
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, generator.GenerateReport(sampleReport(), &buf))
	out := buf.String()

	for _, want := range []string{
		"TRUE REVENUE REPORT",
		"Business:  Acme Bakery",
		"=== MONTHLY SUMMARY ===",
		"2024-01",
		"10000.00",
		"80.0%",
		"812.40",
		"n/a",
		"OnDeck Capital",
		"Remaining Daily Capacity: 71.52",
		"! no balance data for 2024-02",
		"=== EXCLUDED 2024-01 (1) ===",
		"TRANSFER FROM SAVINGS",
	} {
		assert.Contains(t, out, want)
	}
}

func TestGenerateReport_ConsoleEmpty(t *testing.T) {
	generator, err := NewReportGenerator(nil)
	require.NoError(t, err)

	var buf bytes.Buffer
	report := &models.Report{StatementID: "empty", Months: []*models.MonthlyBucket{}, MCACapacity: models.Capacity{AtCapacity: true}}
	require.NoError(t, generator.GenerateReport(report, &buf))
	assert.Contains(t, buf.String(), "No dated transactions.")
	assert.Contains(t, buf.String(), "AT CAPACITY")
}

func TestGenerateReport_JSON(t *testing.T) {
	tests := []struct {
		name         string
		config       *ReportConfig
		wantExcluded int
		wantLenders  int
	}{
		{
			name:         "full detail",
			config:       &ReportConfig{Format: FormatJSON, IncludeTransactions: true, IncludeLenders: true},
			wantExcluded: 1,
			wantLenders:  1,
		},
		{
			name:   "summary only",
			config: &ReportConfig{Format: FormatJSON},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			generator, err := NewReportGenerator(tt.config)
			require.NoError(t, err)

			report := sampleReport()
			var buf bytes.Buffer
			require.NoError(t, generator.GenerateReport(report, &buf))

			var decoded models.Report
			require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
			assert.Equal(t, "stmt-1", decoded.StatementID)
			require.Len(t, decoded.Months, 2)
			assert.True(t, decoded.Months[0].TrueRevenue.Equal(d("10000")))
			assert.Len(t, decoded.Months[0].ExcludedTransactions, tt.wantExcluded)
			assert.Len(t, decoded.MCAExposure.Lenders, tt.wantLenders)

			assert.Len(t, report.Months[0].ExcludedTransactions, 1, "source report untouched")
		})
	}
}

func TestGenerateReport_CSV(t *testing.T) {
	generator, err := NewReportGenerator(&ReportConfig{Format: FormatCSV, CSVDelimiter: ',', CSVHeaders: true})
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, generator.GenerateReport(sampleReport(), &buf))

	records, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 4)

	assert.Equal(t, csvHeaders, records[0])
	assert.Equal(t, "2024-01", records[1][0])
	assert.Equal(t, "10000.00", records[1][6])
	assert.Equal(t, "2024-01-08 2024-01-09", records[1][13])
	assert.Equal(t, "812.40", records[1][15])
	assert.Equal(t, "", records[2][15])
	assert.Equal(t, "TOTAL", records[3][0])
	assert.Equal(t, "18000.00", records[3][6])
}

func TestGenerateReport_NilReport(t *testing.T) {
	generator, err := NewReportGenerator(nil)
	require.NoError(t, err)
	assert.Error(t, generator.GenerateReport(nil, &bytes.Buffer{}))
}

type failingWriter struct{ calls int }

func (w *failingWriter) Write(p []byte) (int, error) {
	w.calls++
	return 0, errors.New("broken pipe")
}

// flakyWriter fails once, then accepts everything.
type flakyWriter struct {
	failed bool
	buf    bytes.Buffer
}

func (w *flakyWriter) Write(p []byte) (int, error) {
	if !w.failed {
		w.failed = true
		return 0, errors.New("encoder hiccup")
	}
	return w.buf.Write(p)
}

func TestSafeReportGenerator(t *testing.T) {
	t.Run("nil report", func(t *testing.T) {
		srg, err := NewSafeReportGenerator(nil, nil)
		require.NoError(t, err)
		err = srg.GenerateReportSafely(nil, &bytes.Buffer{})
		assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeMissingField))
	})

	t.Run("invalid config", func(t *testing.T) {
		_, err := NewSafeReportGenerator(&ReportConfig{Format: "pdf"}, nil)
		assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeInvalidConfig))
	})

	t.Run("json falls back to console", func(t *testing.T) {
		srg, err := NewSafeReportGenerator(&ReportConfig{Format: FormatJSON}, nil)
		require.NoError(t, err)
		w := &flakyWriter{}
		require.NoError(t, srg.GenerateReportSafely(sampleReport(), w))
		assert.True(t, strings.HasPrefix(w.buf.String(), "NOTE: Report generated in fallback format"))
		assert.Contains(t, w.buf.String(), "TRUE REVENUE REPORT")
	})

	t.Run("console failure is reported", func(t *testing.T) {
		srg, err := NewSafeReportGenerator(nil, nil)
		require.NoError(t, err)
		err = srg.GenerateReportSafely(sampleReport(), &failingWriter{})
		require.Error(t, err)
		_, ok := pkgerrors.AsEngineError(err)
		assert.True(t, ok)
	})
}

func TestGenerateBackupPath(t *testing.T) {
	got := generateBackupPath(filepath.Join("out", "report.json"))
	assert.Equal(t, filepath.Join("out", "report_backup.json"), got)
}
