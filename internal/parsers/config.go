package parsers

import (
	"fmt"
	"path/filepath"
	"strings"

	"mca-revenue-engine/pkg/errors"
)

// Standard column names. Extractor CSV headers are matched against these
// and their aliases, case-insensitively.
const (
	ColumnID            = "id"
	ColumnDate          = "date"
	ColumnDescription   = "description"
	ColumnAmount        = "amount"
	ColumnType          = "type"
	ColumnEndingBalance = "ending_balance"
	ColumnDebit         = "debit"
	ColumnCredit        = "credit"
)

// Format is an input file format.
type Format string

const (
	FormatJSON Format = "json"
	FormatCSV  Format = "csv"
)

// DetectFormat infers the format from the file extension.
func DetectFormat(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return FormatJSON, nil
	case ".csv", ".txt":
		return FormatCSV, nil
	default:
		return "", errors.InputError(errors.CodeInvalidFormat, 0, "file_extension", filepath.Ext(path),
			fmt.Errorf("unsupported statement file %s", path)).
			WithSuggestion("Use a .json or .csv statement file")
	}
}

// StatementParserConfig configures how extractor output maps onto
// transactions.
type StatementParserConfig struct {
	Delimiter rune `json:"delimiter"`
	// ColumnAliases maps a standard column name to the header names that
	// may carry it, in preference order.
	ColumnAliases map[string][]string `json:"column_aliases,omitempty"`
}

// DefaultStatementParserConfig returns aliases for the headers seen in
// extractor CSV.
func DefaultStatementParserConfig() *StatementParserConfig {
	return &StatementParserConfig{
		Delimiter: ',',
		ColumnAliases: map[string][]string{
			ColumnID:            {"id", "transaction_id", "txn_id"},
			ColumnDate:          {"date", "transaction_date", "posted_date", "post_date", "posting_date"},
			ColumnDescription:   {"description", "desc", "memo", "details", "narrative"},
			ColumnAmount:        {"amount", "transaction_amount", "amt"},
			ColumnType:          {"type", "transaction_type", "dr_cr", "direction"},
			ColumnEndingBalance: {"ending_balance", "balance", "running_balance", "daily_balance"},
			ColumnDebit:         {"debit", "debits", "withdrawal", "withdrawals"},
			ColumnCredit:        {"credit", "credits", "deposit", "deposits"},
		},
	}
}

// Validate checks that the columns every row needs can be mapped.
func (c *StatementParserConfig) Validate() error {
	if c.Delimiter == 0 || c.Delimiter == '\n' || c.Delimiter == '\r' {
		return fmt.Errorf("invalid delimiter %q", c.Delimiter)
	}
	for _, required := range []string{ColumnDate, ColumnDescription} {
		if len(c.ColumnAliases[required]) == 0 {
			return fmt.Errorf("no header aliases for column %s", required)
		}
	}
	if len(c.ColumnAliases[ColumnAmount]) == 0 &&
		(len(c.ColumnAliases[ColumnDebit]) == 0 || len(c.ColumnAliases[ColumnCredit]) == 0) {
		return fmt.Errorf("either amount or debit/credit column aliases are required")
	}
	return nil
}

// ResolveColumn returns the first header in parseCtx matching an alias of
// the standard column, or "". Headers match ignoring case, and spaces or
// hyphens count as underscores.
func (c *StatementParserConfig) ResolveColumn(parseCtx *ParseContext, standardName string) string {
	for _, alias := range c.ColumnAliases[standardName] {
		for _, header := range parseCtx.Headers {
			if headerKey(header) == headerKey(alias) {
				return header
			}
		}
	}
	return ""
}

var headerReplacer = strings.NewReplacer(" ", "_", "-", "_")

func headerKey(header string) string {
	return headerReplacer.Replace(strings.ToLower(strings.TrimSpace(header)))
}
