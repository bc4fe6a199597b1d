package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"mca-revenue-engine/cmd/mcaengine/config"
	"mca-revenue-engine/internal/analysis"
	"mca-revenue-engine/internal/parsers"
	"mca-revenue-engine/internal/reporter"
	"mca-revenue-engine/pkg/errors"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// Flags for the analyze command
var (
	outputFormat         string
	outputFile           string
	storeStatement       bool
	existingDailyPayment string
	statementID          string
	showProgress         bool
)

// analyzeCmd represents the analyze command
var analyzeCmd = &cobra.Command{
	Use:   "analyze <statement-file>",
	Short: "Compute true revenue and MCA capacity for one statement",
	Long: `Analyze reads the transactions extracted from one bank statement (JSON or
CSV), classifies every transaction, and reports monthly true revenue,
balances, NSF activity, existing MCA exposure and remaining MCA capacity.

Malformed rows are skipped and reported; they never abort the analysis.

Examples:
  # Console report
  mcaengine analyze statement.json

  # JSON report written to a file
  mcaengine analyze statement.csv --format json --output report.json

  # Store the classified statement so later corrections reclassify it
  mcaengine analyze statement.json --database patterns.db --store

  # Override the payment load observed on the statement
  mcaengine analyze statement.json --existing-daily-payment 125.50`,
	Args:    cobra.ExactArgs(1),
	PreRunE: validateAnalyzeFlags,
	RunE:    runAnalyze,
}

func init() {
	rootCmd.AddCommand(analyzeCmd)

	// Output flags
	analyzeCmd.Flags().StringVarP(&outputFormat, "format", "f", "console", "output format: console, json, csv")
	analyzeCmd.Flags().StringVarP(&outputFile, "output", "o", "", "output file path (default: stdout)")

	// Analysis flags
	analyzeCmd.Flags().BoolVar(&storeStatement, "store", false, "persist the classified statement (requires --database)")
	analyzeCmd.Flags().StringVar(&existingDailyPayment, "existing-daily-payment", "", "known daily MCA payment load, overriding the observed one")
	analyzeCmd.Flags().StringVar(&statementID, "statement-id", "", "statement ID to use instead of the one in the file")

	// UI flags
	analyzeCmd.Flags().BoolVar(&showProgress, "progress", false, "show progress indicators")

	// Bind flags to viper
	viper.BindPFlag("format", analyzeCmd.Flags().Lookup("format"))
	viper.BindPFlag("output", analyzeCmd.Flags().Lookup("output"))
	viper.BindPFlag("store", analyzeCmd.Flags().Lookup("store"))
	viper.BindPFlag("existing-daily-payment", analyzeCmd.Flags().Lookup("existing-daily-payment"))
	viper.BindPFlag("progress", analyzeCmd.Flags().Lookup("progress"))
}

func validateAnalyzeFlags(cmd *cobra.Command, args []string) error {
	// Get values from viper (allows override from config file)
	outputFormat = viper.GetString("format")
	outputFile = viper.GetString("output")
	storeStatement = viper.GetBool("store")
	existingDailyPayment = viper.GetString("existing-daily-payment")
	showProgress = viper.GetBool("progress")

	if len(args) != 1 {
		return errors.New(errors.CategoryConfiguration, errors.CodeMissingConfig, "a statement file is required")
	}
	if err := validateFileExists(args[0], "statement file"); err != nil {
		return err
	}

	if _, err := config.CreateReportConfig(outputFormat); err != nil {
		return err
	}

	if _, err := parseDailyPayment(existingDailyPayment); err != nil {
		return err
	}

	if storeStatement && (settings == nil || settings.Database == "") {
		return errors.ConfigurationError(errors.CodeMissingConfig, config.KeyDatabase, "",
			fmt.Errorf("--store needs a persistent database")).
			WithSuggestion("Pass --database <file> together with --store")
	}

	// Validate output file directory exists if specified
	if outputFile != "" {
		dir := filepath.Dir(outputFile)
		if dir != "." {
			if _, err := os.Stat(dir); os.IsNotExist(err) {
				return errors.FileError(errors.CodeFileNotFound, dir, err).
					WithSuggestion("Create the output directory first")
			}
		}
	}

	return nil
}

// parseDailyPayment returns nil for an empty value.
func parseDailyPayment(raw string) (*decimal.Decimal, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	value, err := decimal.NewFromString(raw)
	if err != nil || value.IsNegative() {
		if err == nil {
			err = fmt.Errorf("cannot be negative")
		}
		return nil, errors.ConfigurationError(errors.CodeInvalidConfig, "existing-daily-payment", raw, err).
			WithSuggestion("Pass a non-negative amount such as 125.50")
	}
	return &value, nil
}

func validateFileExists(filePath, description string) error {
	if filePath == "" {
		return errors.New(errors.CategoryFile, errors.CodeFileNotFound, fmt.Sprintf("%s path cannot be empty", description))
	}

	info, err := os.Stat(filePath)
	if os.IsNotExist(err) {
		return errors.FileError(errors.CodeFileNotFound, filePath, err)
	}
	if err != nil {
		return errors.FileError(errors.CodeFilePermission, filePath, err)
	}

	if info.IsDir() {
		return errors.FileError(errors.CodeFileCorrupted, filePath,
			fmt.Errorf("%s is a directory, expected a file", description))
	}

	// Check if file is readable
	file, err := os.Open(filePath)
	if err != nil {
		return errors.FileError(errors.CodeFilePermission, filePath, err)
	}
	file.Close()

	return nil
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	statementFile := args[0]

	if viper.GetBool("verbose") {
		fmt.Fprintf(os.Stderr, "Analyzing %s\n", statementFile)
		fmt.Fprintf(os.Stderr, "Output format: %s\n", outputFormat)
		if outputFile != "" {
			fmt.Fprintf(os.Stderr, "Output file: %s\n", outputFile)
		}
	}

	stmt, stats, err := parsers.ParseStatementFile(ctx, statementFile, nil)
	if err != nil {
		return err
	}
	if stats.HasErrors() {
		fmt.Fprintf(os.Stderr, "Warning: skipped %d malformed row(s) in %s\n", stats.ErrorCount, statementFile)
		if viper.GetBool("verbose") {
			rowErrors := make([]error, 0, len(stats.Errors))
			for _, rowErr := range stats.Errors {
				rowErrors = append(rowErrors, rowErr)
			}
			fmt.Fprintln(os.Stderr, FormatValidationErrors(rowErrors))
		}
	}
	if statementID != "" {
		stmt.ID = statementID
	}

	ws, err := openWorkspace(ctx, settings, storeStatement)
	if err != nil {
		return err
	}
	defer ws.Close()

	if showProgress {
		ws.engine.AddProgressCallback(func(progress *analysis.Progress) {
			fmt.Fprintf(os.Stderr, "\r[%d/%d] %s (%.1f%% complete)",
				progress.CompletedSteps, progress.TotalSteps,
				progress.CurrentStep, progress.PercentComplete)
		})
	}

	payment, err := parseDailyPayment(existingDailyPayment)
	if err != nil {
		return err
	}

	result, err := ws.engine.Analyze(ctx, stmt, &analysis.Options{
		Persist:              storeStatement,
		ExistingDailyPayment: payment,
	})
	if showProgress {
		fmt.Fprintf(os.Stderr, "\n") // New line after progress
	}
	if err != nil {
		return err
	}

	reportConfig, err := config.CreateReportConfig(outputFormat)
	if err != nil {
		return err
	}
	generator, err := reporter.NewSafeReportGenerator(reportConfig, nil)
	if err != nil {
		return err
	}

	// Determine output destination
	output := os.Stdout
	if outputFile != "" {
		output, err = os.Create(outputFile)
		if err != nil {
			return errors.FileError(errors.CodeFilePermission, outputFile, err)
		}
		defer output.Close()
	}

	if err := generator.GenerateReportSafely(result.Report, output); err != nil {
		return err
	}

	if viper.GetBool("verbose") {
		fmt.Fprintf(os.Stderr, "\nAnalysis of statement %s completed in %v.\n", result.Report.StatementID, result.Elapsed)
		fmt.Fprintf(os.Stderr, "Classified %d transactions: %d true revenue, %d adjustments, %d MCA payments, %d MCA fundings.\n",
			result.Stats.Transactions, result.Stats.TrueRevenue, result.Stats.Adjustments,
			result.Stats.MCAPayments, result.Stats.MCAFundings)
		if result.Stats.LearnedMatches > 0 {
			fmt.Fprintf(os.Stderr, "%d classification(s) came from learned patterns.\n", result.Stats.LearnedMatches)
		}
		if storeStatement {
			fmt.Fprintf(os.Stderr, "Statement stored in %s.\n", settings.Database)
		}
	}

	return nil
}
