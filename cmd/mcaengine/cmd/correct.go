package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"mca-revenue-engine/internal/corrections"
	"mca-revenue-engine/pkg/errors"

	"github.com/spf13/cobra"
)

// Flags for the correct command
var (
	correctionStatement  string
	correctionTxID       string
	correctionField      string
	correctionOldValue   string
	correctionNewValue   string
	correctionActor      string
	correctionLenderID   string
	correctionLenderName string
	correctionJSON       bool
)

// correctCmd represents the correct command
var correctCmd = &cobra.Command{
	Use:   "correct",
	Short: "Record an underwriter correction and reclassify stored statements",
	Long: `Correct overrides one attribute of a stored transaction. The override is
saved as a manual learned pattern keyed by the transaction's normalized
description, and every stored statement containing a matching transaction
is reclassified.

Fields:
  type                    credit | debit
  revenue_classification  true_revenue | adjustment | mca_funding
  mca_status              true | false

Examples:
  mcaengine correct --database patterns.db --statement-id stmt-jan --transaction-id tx-42 \
    --field revenue_classification --old-value true_revenue --new-value adjustment

  mcaengine correct --database patterns.db --transaction-id tx-57 \
    --field mca_status --new-value true --lender-id acme --lender-name "Acme Funding"`,
	Args:    cobra.NoArgs,
	PreRunE: validateCorrectFlags,
	RunE:    runCorrect,
}

func init() {
	rootCmd.AddCommand(correctCmd)

	correctCmd.Flags().StringVar(&correctionTxID, "transaction-id", "", "ID of the stored transaction to correct (required)")
	correctCmd.Flags().StringVar(&correctionStatement, "statement-id", "", "statement holding the transaction (needed when several statements share the ID)")
	correctCmd.Flags().StringVar(&correctionField, "field", "", "field to correct: type, revenue_classification, mca_status (required)")
	correctCmd.Flags().StringVar(&correctionOldValue, "old-value", "", "value the underwriter saw")
	correctCmd.Flags().StringVar(&correctionNewValue, "new-value", "", "corrected value (required)")
	correctCmd.Flags().StringVar(&correctionActor, "actor", os.Getenv("USER"), "who made the correction")
	correctCmd.Flags().StringVar(&correctionLenderID, "lender-id", "", "lender ID when marking an MCA payment or funding")
	correctCmd.Flags().StringVar(&correctionLenderName, "lender-name", "", "lender name when marking an MCA payment or funding")
	correctCmd.Flags().BoolVar(&correctionJSON, "json", false, "print the result as JSON")

	// Mark required flags
	correctCmd.MarkFlagRequired("transaction-id")
	correctCmd.MarkFlagRequired("field")
	correctCmd.MarkFlagRequired("new-value")
}

func validateCorrectFlags(cmd *cobra.Command, args []string) error {
	switch corrections.Field(correctionField) {
	case corrections.FieldType, corrections.FieldRevenueClassification, corrections.FieldMCAStatus:
	default:
		return errors.New(errors.CategoryInput, errors.CodeUnknownCorrField,
			fmt.Sprintf("unknown correction field '%s'", correctionField)).
			WithSuggestion("Valid fields: type, revenue_classification, mca_status")
	}

	if strings.TrimSpace(correctionTxID) == "" {
		return errors.New(errors.CategoryInput, errors.CodeMissingField, "transaction-id cannot be empty")
	}
	if strings.TrimSpace(correctionNewValue) == "" {
		return errors.New(errors.CategoryInput, errors.CodeMissingField, "new-value cannot be empty")
	}
	return nil
}

func runCorrect(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	ws, err := openWorkspace(ctx, settings, true)
	if err != nil {
		return err
	}
	defer ws.Close()

	recorder, err := corrections.NewRecorder(ws.store, ws.statements, ws.engine)
	if err != nil {
		return err
	}

	result, err := recorder.Record(ctx, corrections.Request{
		StatementID:   correctionStatement,
		TransactionID: correctionTxID,
		Field:         corrections.Field(correctionField),
		OldValue:      correctionOldValue,
		NewValue:      correctionNewValue,
		ActorID:       correctionActor,
		LenderID:      correctionLenderID,
		LenderName:    correctionLenderName,
	})
	if err != nil {
		return err
	}

	if correctionJSON {
		encoder := json.NewEncoder(cmd.OutOrStdout())
		encoder.SetIndent("", "  ")
		return encoder.Encode(result)
	}
	printCorrectionResult(cmd.OutOrStdout(), result)
	return nil
}

func printCorrectionResult(w io.Writer, result *corrections.Result) {
	fmt.Fprintf(w, "Pattern:  %s (%s)\n", result.Record.Pattern, result.Record.Kind)
	fmt.Fprintf(w, "Outcome:  %s\n", result.Outcome)
	if result.StaleOldValue {
		fmt.Fprintf(w, "Warning: old value did not match the stored transaction.\n")
	}

	fmt.Fprintf(w, "Reclassified %d statement(s)\n", len(result.Reclassified))
	for _, id := range result.Reclassified {
		report := result.Reports[id]
		if report == nil {
			fmt.Fprintf(w, "  %s\n", id)
			continue
		}
		fmt.Fprintf(w, "  %s  true revenue %s  remaining daily capacity %s\n",
			id, report.Totals.TrueRevenue.StringFixed(2), report.MCACapacity.RemainingDailyCapacity.StringFixed(2))
	}
}
