package parsers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"mca-revenue-engine/internal/models"
	"mca-revenue-engine/pkg/errors"
	"mca-revenue-engine/pkg/logger"

	"github.com/shopspring/decimal"
)

// flexDecimal accepts a JSON number or a string such as "$1,234.50".
// An empty string reads as unset.
type flexDecimal struct {
	Value decimal.Decimal
	Set   bool
}

func (f *flexDecimal) UnmarshalJSON(data []byte) error {
	raw := strings.TrimSpace(string(data))
	if raw == "null" {
		return nil
	}
	if strings.HasPrefix(raw, `"`) {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		if strings.TrimSpace(s) == "" {
			return nil
		}
		v, err := models.ParseDecimalFromString(s)
		if err != nil {
			return err
		}
		f.Value, f.Set = v, true
		return nil
	}
	v, err := decimal.NewFromString(raw)
	if err != nil {
		return fmt.Errorf("invalid decimal %s: %w", raw, err)
	}
	f.Value, f.Set = v, true
	return nil
}

func (f *flexDecimal) ptr() *decimal.Decimal {
	if f == nil || !f.Set {
		return nil
	}
	v := f.Value
	return &v
}

type jsonTransaction struct {
	ID            string       `json:"id"`
	TransactionID string       `json:"transaction_id"`
	Date          string       `json:"date"`
	Description   string       `json:"description"`
	Amount        flexDecimal  `json:"amount"`
	Type          string       `json:"type"`
	EndingBalance *flexDecimal `json:"ending_balance"`
	Balance       *flexDecimal `json:"balance"`
}

type jsonStatement struct {
	ID               string            `json:"id"`
	StatementID      string            `json:"statement_id"`
	BusinessName     string            `json:"business_name"`
	BeginningBalance *flexDecimal      `json:"beginning_balance"`
	Transactions     []json.RawMessage `json:"transactions"`
}

// JSONStatementParser reads extractor JSON: either a bare array of
// transactions or a statement object wrapping one.
type JSONStatementParser struct {
	base   *BaseParser
	logger logger.Logger
}

// NewJSONStatementParser creates a JSON parser.
func NewJSONStatementParser() *JSONStatementParser {
	return &JSONStatementParser{
		base:   NewBaseParser(nil),
		logger: logger.GetGlobalLogger().WithComponent("json_parser"),
	}
}

// ParseFile parses the JSON statement at path.
func (p *JSONStatementParser) ParseFile(ctx context.Context, path string) (*models.Statement, *ParseStats, error) {
	file, err := p.base.OpenFile(path)
	if err != nil {
		return nil, nil, err
	}
	defer file.Close()

	stmt, stats, err := p.Parse(ctx, file)
	if err != nil {
		return nil, stats, errors.WrapIfNeeded(err, errors.CategoryInput, errors.CodeInvalidFormat,
			"failed to parse JSON statement").WithContext("file_path", path)
	}
	return stmt, stats, nil
}

// Parse reads a JSON statement from r. Transactions that cannot be decoded
// are counted in the returned stats and skipped.
func (p *JSONStatementParser) Parse(ctx context.Context, r io.Reader) (*models.Statement, *ParseStats, error) {
	stats := NewParseStats()
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, stats, errors.InputError(errors.CodeInvalidFormat, 0, "document", "", err)
	}
	data = bytes.TrimSpace(bytes.TrimPrefix(data, []byte("\ufeff")))

	var doc jsonStatement
	switch {
	case len(data) == 0:
		return nil, stats, errors.InputError(errors.CodeMissingField, 0, "transactions", "", fmt.Errorf("empty document"))
	case data[0] == '[':
		if err := json.Unmarshal(data, &doc.Transactions); err != nil {
			return nil, stats, invalidDocument(err)
		}
	case data[0] == '{':
		if err := json.Unmarshal(data, &doc); err != nil {
			return nil, stats, invalidDocument(err)
		}
	default:
		return nil, stats, invalidDocument(fmt.Errorf("expected an array or object, got %q", data[0]))
	}

	stmt := &models.Statement{
		ID:               doc.StatementID,
		BusinessName:     doc.BusinessName,
		BeginningBalance: doc.BeginningBalance.ptr(),
		Transactions:     make([]*models.Transaction, 0, len(doc.Transactions)),
	}
	if stmt.ID == "" {
		stmt.ID = doc.ID
	}

	parseCtx := NewParseContext(ctx)
	for i, raw := range doc.Transactions {
		if parseCtx.IsCancelled() {
			return nil, stats, errors.AnalysisError(errors.CodeCancelled, "parsing", ctx.Err())
		}
		record := i + 1
		stats.RecordsParsed++

		txn, parseErr := decodeTransaction(record, raw)
		if parseErr != nil {
			p.logger.WithError(parseErr).WithField("record", record).Warn("Skipping malformed transaction")
			stats.AddError(parseErr)
			continue
		}
		stmt.Transactions = append(stmt.Transactions, txn)
		stats.RecordsValid++
	}
	stats.TotalLines = len(doc.Transactions)

	p.logger.WithFields(logger.Fields{
		"statement_id":  stmt.ID,
		"records":       stats.RecordsParsed,
		"records_valid": stats.RecordsValid,
		"error_count":   stats.ErrorCount,
	}).Info("JSON statement parsing completed")
	if stats.HasErrors() {
		p.logger.WithField("sample_errors", stats.GetSampleErrors(3)).Warn("Encountered errors during parsing")
	}
	return stmt, stats, nil
}

func decodeTransaction(record int, raw json.RawMessage) (*models.Transaction, *ParseError) {
	var in jsonTransaction
	if err := json.Unmarshal(raw, &in); err != nil {
		ierr := errors.InputError(errors.CodeInvalidFormat, record, "transaction", truncate(string(raw), 80), err)
		return nil, &ParseError{Line: record, Field: "transaction", Message: ierr.Message, Err: ierr}
	}
	if !in.Amount.Set {
		return nil, missingField(record, ColumnAmount)
	}

	txn := &models.Transaction{
		ID:            in.ID,
		RawDate:       strings.TrimSpace(in.Date),
		Description:   in.Description,
		EndingBalance: in.EndingBalance.ptr(),
	}
	if txn.ID == "" {
		txn.ID = in.TransactionID
	}
	if txn.EndingBalance == nil {
		txn.EndingBalance = in.Balance.ptr()
	}
	txn.Amount, txn.Type = resolveDirection(in.Amount.Value, in.Type)
	return txn, nil
}

func invalidDocument(err error) error {
	return errors.InputError(errors.CodeInvalidFormat, 0, "document", "", err).
		WithSuggestion("Provide a JSON array of transactions or an object with a transactions array")
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
