package config

import (
	"fmt"
	"os"
	"strings"

	"mca-revenue-engine/internal/aggregator"
	"mca-revenue-engine/internal/analysis"
	"mca-revenue-engine/internal/classifier"
	"mca-revenue-engine/internal/nsf"
	"mca-revenue-engine/internal/patterns"
	"mca-revenue-engine/internal/reporter"
	"mca-revenue-engine/internal/underwriting"
	"mca-revenue-engine/pkg/errors"
	"mca-revenue-engine/pkg/logger"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment variable read by the CLI.
const EnvPrefix = "MCAENGINE"

// Configuration keys. Each is also read from MCAENGINE_<KEY>.
const (
	KeyMaxWithholdPercentage     = "max_withhold_percentage"
	KeyBusinessDaysPerMonth      = "business_days_per_month"
	KeyMinimumPatternLength      = "minimum_pattern_length"
	KeyConfidenceThreshold       = "confidence_threshold_for_needs_review"
	KeyNSFPairWindowBusinessDays = "nsf_pair_window_business_days"
	KeyDatabase                  = "database"
	KeyLogLevel                  = "log_level"
	KeyLogFormat                 = "log_format"
)

// Settings is the resolved engine configuration.
type Settings struct {
	MaxWithholdPercentage             decimal.Decimal
	BusinessDaysPerMonth              decimal.Decimal
	MinimumPatternLength              int
	ConfidenceThresholdForNeedsReview float64
	NSFPairWindowBusinessDays         int
	Database                          string
	LogLevel                          string
	LogFormat                         string
}

// SetDefaults registers the default value of every key on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault(KeyMaxWithholdPercentage, underwriting.DefaultMaxWithholdPercentage.String())
	v.SetDefault(KeyBusinessDaysPerMonth, aggregator.DefaultBusinessDaysPerMonth.String())
	v.SetDefault(KeyMinimumPatternLength, patterns.DefaultConfig().MinimumPatternLength)
	v.SetDefault(KeyConfidenceThreshold, classifier.DefaultConfig().ConfidenceThresholdForNeedsReview)
	v.SetDefault(KeyNSFPairWindowBusinessDays, nsf.DefaultConfig().PairWindowBusinessDays)
	v.SetDefault(KeyDatabase, "")
	v.SetDefault(KeyLogLevel, string(logger.WarnLevel))
	v.SetDefault(KeyLogFormat, string(logger.TextFormat))
}

// LoadDotEnv loads path into the process environment when it exists.
// Variables already set are not overridden.
func LoadDotEnv(path string) error {
	if path == "" {
		return nil
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return errors.FileError(errors.CodeFileCorrupted, path, err).
			WithSuggestion("Check the KEY=value syntax of the env file")
	}
	return nil
}

// Load resolves Settings from v and validates them.
func Load(v *viper.Viper) (*Settings, error) {
	withhold, err := decimalSetting(v, KeyMaxWithholdPercentage)
	if err != nil {
		return nil, err
	}
	businessDays, err := decimalSetting(v, KeyBusinessDaysPerMonth)
	if err != nil {
		return nil, err
	}

	s := &Settings{
		MaxWithholdPercentage:             withhold,
		BusinessDaysPerMonth:              businessDays,
		MinimumPatternLength:              v.GetInt(KeyMinimumPatternLength),
		ConfidenceThresholdForNeedsReview: v.GetFloat64(KeyConfidenceThreshold),
		NSFPairWindowBusinessDays:         v.GetInt(KeyNSFPairWindowBusinessDays),
		Database:                          strings.TrimSpace(v.GetString(KeyDatabase)),
		LogLevel:                          strings.ToLower(v.GetString(KeyLogLevel)),
		LogFormat:                         strings.ToLower(v.GetString(KeyLogFormat)),
	}

	if err := s.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}

func decimalSetting(v *viper.Viper, key string) (decimal.Decimal, error) {
	raw := strings.TrimSpace(v.GetString(key))
	value, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, errors.ConfigurationError(errors.CodeInvalidConfig, key, raw, err).
			WithSuggestion(fmt.Sprintf("Set %s to a decimal number", key))
	}
	return value, nil
}

// Validate checks every setting against the component that consumes it.
func (s *Settings) Validate() error {
	ac := s.AnalysisConfig()
	for _, validate := range []func() error{
		ac.Classifier.Validate,
		ac.Aggregator.Validate,
		ac.NSF.Validate,
		ac.Underwriting.Validate,
		s.PatternConfig().Validate,
	} {
		if err := validate(); err != nil {
			return err
		}
	}

	if err := s.LoggerConfig(false).Validate(); err != nil {
		return errors.ConfigurationError(errors.CodeInvalidConfig, "logging",
			fmt.Sprintf("%s/%s", s.LogLevel, s.LogFormat), err).
			WithSuggestion("Use log_level debug|info|warn|error and log_format text|json")
	}
	return nil
}

// AnalysisConfig builds the pipeline configuration.
func (s *Settings) AnalysisConfig() *analysis.Config {
	config := analysis.DefaultConfig()
	config.Classifier.ConfidenceThresholdForNeedsReview = s.ConfidenceThresholdForNeedsReview
	config.Aggregator.BusinessDaysPerMonth = s.BusinessDaysPerMonth
	config.NSF.PairWindowBusinessDays = s.NSFPairWindowBusinessDays
	config.Underwriting.MaxWithholdPercentage = s.MaxWithholdPercentage
	config.Underwriting.BusinessDaysPerMonth = s.BusinessDaysPerMonth
	return config
}

// PatternConfig builds the pattern store configuration.
func (s *Settings) PatternConfig() *patterns.Config {
	return &patterns.Config{MinimumPatternLength: s.MinimumPatternLength}
}

// LoggerConfig builds the logger configuration. verbose forces debug level.
func (s *Settings) LoggerConfig(verbose bool) *logger.Config {
	config := logger.DefaultConfig()
	config.Level = logger.Level(s.LogLevel)
	config.Format = logger.Format(s.LogFormat)
	if verbose {
		config.Level = logger.DebugLevel
	}
	return config
}

// CreateReportConfig creates a report configuration for the specified output format
func CreateReportConfig(format string) (*reporter.ReportConfig, error) {
	config := reporter.DefaultReportConfig()

	switch reporter.OutputFormat(format) {
	case reporter.FormatConsole:
		config.Format = reporter.FormatConsole
	case reporter.FormatJSON:
		config.Format = reporter.FormatJSON
	case reporter.FormatCSV:
		config.Format = reporter.FormatCSV
		config.CSVHeaders = true
		config.CSVDelimiter = ','
		config.IncludeTransactions = false
	default:
		return nil, errors.ConfigurationError(errors.CodeInvalidConfig, "format", format,
			fmt.Errorf("unsupported output format")).
			WithSuggestion("Valid formats: console, json, csv")
	}

	return config, nil
}
