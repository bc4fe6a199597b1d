package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"mca-revenue-engine/internal/models"
	"mca-revenue-engine/internal/patterns"
	"mca-revenue-engine/pkg/errors"
	"mca-revenue-engine/pkg/logger"

	"github.com/spf13/cobra"
)

var (
	patternKind string
	patternFile string
)

// patternsCmd groups the learned-pattern administration commands
var patternsCmd = &cobra.Command{
	Use:   "patterns",
	Short: "Inspect and maintain learned patterns",
	Long: `Patterns manages the learned patterns stored in the database given by
--database. Kinds: mca_lender, revenue_classification, type_correction.

Examples:
  mcaengine patterns list --database patterns.db --kind mca_lender
  mcaengine patterns reset "ACH DEBIT ACME FUNDING" --database patterns.db --kind mca_lender
  mcaengine patterns export --database patterns.db --file patterns.yaml
  mcaengine patterns import --database other.db --file patterns.yaml
  mcaengine patterns rekey --database patterns.db`,
}

var patternsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List learned patterns",
	Args:  cobra.NoArgs,
	RunE:  runPatternsList,
}

var patternsResetCmd = &cobra.Command{
	Use:   "reset <pattern>",
	Short: "Remove one learned pattern (requires --kind)",
	Args:  cobra.ExactArgs(1),
	RunE:  runPatternsReset,
}

var patternsClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Remove every learned pattern of a kind, or all kinds",
	Args:  cobra.NoArgs,
	RunE:  runPatternsClear,
}

var patternsExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export learned patterns as YAML",
	Args:  cobra.NoArgs,
	RunE:  runPatternsExport,
}

var patternsImportCmd = &cobra.Command{
	Use:   "import",
	Short: "Import learned patterns from a YAML export",
	Args:  cobra.NoArgs,
	RunE:  runPatternsImport,
}

var patternsRekeyCmd = &cobra.Command{
	Use:   "rekey",
	Short: "Re-normalize patterns written by an older normalizer",
	Args:  cobra.NoArgs,
	RunE:  runPatternsRekey,
}

func init() {
	rootCmd.AddCommand(patternsCmd)
	patternsCmd.AddCommand(patternsListCmd, patternsResetCmd, patternsClearCmd,
		patternsExportCmd, patternsImportCmd, patternsRekeyCmd)

	patternsCmd.PersistentFlags().StringVar(&patternKind, "kind", "", "pattern kind: mca_lender, revenue_classification, type_correction")
	patternsExportCmd.Flags().StringVar(&patternFile, "file", "", "output file (default: stdout)")
	patternsImportCmd.Flags().StringVar(&patternFile, "file", "", "YAML file to import (required)")
	patternsImportCmd.MarkFlagRequired("file")
}

// parsePatternKind returns "" for all kinds when allowAll is set.
func parsePatternKind(raw string, allowAll bool) (models.PatternKind, error) {
	kind := models.PatternKind(strings.ToLower(strings.TrimSpace(raw)))
	if kind == "" && allowAll {
		return "", nil
	}
	if !kind.IsValid() {
		return "", errors.New(errors.CategoryInput, errors.CodeInvalidFormat,
			fmt.Sprintf("unknown pattern kind '%s'", raw)).
			WithSuggestion("Valid kinds: mca_lender, revenue_classification, type_correction")
	}
	return kind, nil
}

func runPatternsList(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	kind, err := parsePatternKind(patternKind, true)
	if err != nil {
		return err
	}

	ws, err := openWorkspace(ctx, settings, true)
	if err != nil {
		return err
	}
	defer ws.Close()

	records, err := ws.store.List(ctx, kind)
	if err != nil {
		return err
	}
	return writePatternTable(cmd.OutOrStdout(), records)
}

func writePatternTable(w io.Writer, records []*models.PatternRecord) error {
	if len(records) == 0 {
		_, err := fmt.Fprintln(w, "No learned patterns.")
		return err
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "KIND\tPATTERN\tVALUE\tUSES\tMANUAL\tUPDATED")
	for _, rec := range records {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%t\t%s\n",
			rec.Kind, rec.Pattern, describeValue(rec), rec.UsageCount, rec.IsManualOverride,
			rec.UpdatedAt.Format("2006-01-02"))
	}
	return tw.Flush()
}

func describeValue(rec *models.PatternRecord) string {
	v := rec.Value
	switch rec.Kind {
	case models.KindMCALender:
		if v.Excluded {
			return "not an MCA"
		}
		return fmt.Sprintf("%s (%s)", v.LenderName, v.LenderID)
	case models.KindRevenueClassification:
		if v.IsMCAFunding {
			return fmt.Sprintf("mca_funding %s", v.LenderName)
		}
		return string(v.Classification)
	case models.KindTypeCorrection:
		return string(v.CorrectType)
	default:
		return ""
	}
}

func runPatternsReset(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	kind, err := parsePatternKind(patternKind, false)
	if err != nil {
		return err
	}

	ws, err := openWorkspace(ctx, settings, true)
	if err != nil {
		return err
	}
	defer ws.Close()

	if err := ws.store.Reset(ctx, kind, args[0]); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Removed %s pattern for %q\n", kind, args[0])
	return nil
}

func runPatternsClear(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	kind, err := parsePatternKind(patternKind, true)
	if err != nil {
		return err
	}

	ws, err := openWorkspace(ctx, settings, true)
	if err != nil {
		return err
	}
	defer ws.Close()

	n, err := ws.store.Clear(ctx, kind)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Removed %d pattern(s)\n", n)
	return nil
}

func runPatternsExport(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	kind, err := parsePatternKind(patternKind, true)
	if err != nil {
		return err
	}

	ws, err := openWorkspace(ctx, settings, true)
	if err != nil {
		return err
	}
	defer ws.Close()

	output := cmd.OutOrStdout()
	if patternFile != "" {
		file, err := os.Create(patternFile)
		if err != nil {
			return errors.FileError(errors.CodeFilePermission, patternFile, err)
		}
		defer file.Close()
		output = file
	}

	n, err := ws.store.Export(ctx, output, kind)
	if err != nil {
		return err
	}
	if patternFile != "" {
		fmt.Fprintf(cmd.OutOrStdout(), "Exported %d pattern(s) to %s\n", n, patternFile)
	}
	return nil
}

func runPatternsImport(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	if err := validateFileExists(patternFile, "pattern file"); err != nil {
		return err
	}

	ws, err := openWorkspace(ctx, settings, true)
	if err != nil {
		return err
	}
	defer ws.Close()

	file, err := os.Open(patternFile)
	if err != nil {
		return errors.FileError(errors.CodeFilePermission, patternFile, err)
	}
	defer file.Close()

	var summary patterns.ImportSummary
	err = logger.TimedOperation("import_patterns", nil, func() error {
		var importErr error
		summary, importErr = ws.store.Import(ctx, file)
		return importErr
	})
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Imported %d pattern(s), %d kept existing manual overrides, %d rejected\n",
		summary.Imported, summary.Conflicts, summary.Rejected)
	return nil
}

func runPatternsRekey(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	ws, err := openWorkspace(ctx, settings, true)
	if err != nil {
		return err
	}
	defer ws.Close()

	var summary patterns.RekeySummary
	err = logger.TimedOperation("rekey_patterns", nil, func() error {
		var rekeyErr error
		summary, rekeyErr = ws.store.Rekey(ctx)
		return rekeyErr
	})
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Examined %d, rekeyed %d, merged %d, unchanged %d\n",
		summary.Examined, summary.Rekeyed, summary.Merged, summary.Unchanged)
	for _, skipped := range summary.Skipped {
		fmt.Fprintf(out, "  skipped: %s\n", skipped)
	}
	return nil
}
