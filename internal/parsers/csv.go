package parsers

import (
	"context"
	"io"
	"strings"

	"mca-revenue-engine/internal/models"
	"mca-revenue-engine/pkg/errors"
	"mca-revenue-engine/pkg/logger"

	"github.com/shopspring/decimal"
)

// CSVStatementParser reads one statement from extractor CSV.
type CSVStatementParser struct {
	*BaseParser
	config *StatementParserConfig
	logger logger.Logger
}

// csvColumns are the resolved header names for one file.
type csvColumns struct {
	id, date, description, amount, txType, balance, debit, credit string
}

// NewCSVStatementParser creates a CSV parser.
func NewCSVStatementParser(config *StatementParserConfig) (*CSVStatementParser, error) {
	if config == nil {
		config = DefaultStatementParserConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, errors.ConfigurationError(errors.CodeInvalidConfig, "statement_parser_config", config, err).
			WithSuggestion("Check the statement parser column aliases")
	}

	parseConfig := DefaultParseConfig()
	parseConfig.Delimiter = config.Delimiter

	return &CSVStatementParser{
		BaseParser: NewBaseParser(parseConfig),
		config:     config,
		logger:     logger.GetGlobalLogger().WithComponent("csv_parser"),
	}, nil
}

// ParseFile parses the CSV statement at path.
func (p *CSVStatementParser) ParseFile(ctx context.Context, path string) (*models.Statement, *ParseStats, error) {
	file, err := p.OpenFile(path)
	if err != nil {
		return nil, nil, err
	}
	defer file.Close()

	stmt, stats, err := p.Parse(ctx, file)
	if err != nil {
		return nil, stats, errors.WrapIfNeeded(err, errors.CategoryInput, errors.CodeInvalidFormat,
			"failed to parse CSV statement").WithContext("file_path", path)
	}
	return stmt, stats, nil
}

// Parse reads a CSV statement from r. Rows that cannot be read are counted
// in the returned stats and skipped.
func (p *CSVStatementParser) Parse(ctx context.Context, r io.Reader) (*models.Statement, *ParseStats, error) {
	reader := p.NewReader(r)
	parseCtx := NewParseContext(ctx)
	stats := NewParseStats()

	if err := p.ReadHeaders(reader, parseCtx); err != nil {
		return nil, stats, err
	}
	cols, err := p.resolveColumns(parseCtx)
	if err != nil {
		return nil, stats, err
	}

	stmt := &models.Statement{Transactions: make([]*models.Transaction, 0)}
	for {
		record, err := p.ReadRecord(reader, parseCtx)
		if err != nil {
			if err == io.EOF {
				break
			}
			if errors.HasCode(err, errors.CodeCancelled) {
				return nil, stats, err
			}
			p.logger.WithError(err).WithField("line_number", parseCtx.LineNumber).Warn("Failed to read record")
			stats.AddError(&ParseError{Line: parseCtx.LineNumber, Field: "record", Message: "unreadable record", Err: err})
			continue
		}
		stats.RecordsParsed++

		txn, parseErr := p.parseRecord(record, parseCtx, cols)
		if parseErr != nil {
			p.logger.WithError(parseErr).WithField("line_number", parseCtx.LineNumber).Warn("Skipping malformed record")
			stats.AddError(parseErr)
			continue
		}
		stmt.Transactions = append(stmt.Transactions, txn)
		stats.RecordsValid++
	}
	stats.TotalLines = parseCtx.LineNumber

	p.logger.WithFields(logger.Fields{
		"total_lines":    stats.TotalLines,
		"records_parsed": stats.RecordsParsed,
		"records_valid":  stats.RecordsValid,
		"error_count":    stats.ErrorCount,
	}).Info("CSV statement parsing completed")
	if stats.HasErrors() {
		p.logger.WithField("sample_errors", stats.GetSampleErrors(3)).Warn("Encountered errors during parsing")
	}
	return stmt, stats, nil
}

func (p *CSVStatementParser) resolveColumns(parseCtx *ParseContext) (csvColumns, error) {
	cols := csvColumns{
		id:          p.config.ResolveColumn(parseCtx, ColumnID),
		date:        p.config.ResolveColumn(parseCtx, ColumnDate),
		description: p.config.ResolveColumn(parseCtx, ColumnDescription),
		amount:      p.config.ResolveColumn(parseCtx, ColumnAmount),
		txType:      p.config.ResolveColumn(parseCtx, ColumnType),
		balance:     p.config.ResolveColumn(parseCtx, ColumnEndingBalance),
		debit:       p.config.ResolveColumn(parseCtx, ColumnDebit),
		credit:      p.config.ResolveColumn(parseCtx, ColumnCredit),
	}

	var missing []string
	if cols.date == "" {
		missing = append(missing, ColumnDate)
	}
	if cols.description == "" {
		missing = append(missing, ColumnDescription)
	}
	if cols.amount == "" && cols.debit == "" && cols.credit == "" {
		missing = append(missing, ColumnAmount)
	}
	if len(missing) > 0 {
		p.logger.WithFields(logger.Fields{
			"missing_columns":   missing,
			"available_headers": parseCtx.Headers,
		}).Error("Required columns are missing")
		return cols, errors.InputError(errors.CodeMissingColumn, parseCtx.LineNumber, strings.Join(missing, ", "), "", nil).
			WithContext("available_headers", parseCtx.Headers)
	}
	return cols, nil
}

func (p *CSVStatementParser) parseRecord(record []string, parseCtx *ParseContext, cols csvColumns) (*models.Transaction, *ParseError) {
	field := func(column string) string { return p.GetFieldValue(record, parseCtx, column) }
	line := parseCtx.LineNumber

	txn := &models.Transaction{
		ID:          field(cols.id),
		RawDate:     field(cols.date),
		Description: field(cols.description),
	}

	if cols.amount != "" {
		raw := field(cols.amount)
		if raw == "" {
			return nil, missingField(line, cols.amount)
		}
		amount, err := models.ParseDecimalFromString(raw)
		if err != nil {
			return nil, invalidAmount(line, cols.amount, raw, err)
		}
		txn.Amount, txn.Type = resolveDirection(amount, field(cols.txType))
	} else {
		amount, txType, perr := p.splitColumns(line, field(cols.debit), field(cols.credit), cols)
		if perr != nil {
			return nil, perr
		}
		txn.Amount, txn.Type = amount, txType
	}

	if raw := field(cols.balance); raw != "" {
		balance, err := models.ParseDecimalFromString(raw)
		if err != nil {
			p.logger.WithFields(logger.Fields{
				"line_number": line,
				"value":       raw,
			}).Warn("Ignoring unparseable ending balance")
		} else {
			txn.EndingBalance = &balance
		}
	}
	return txn, nil
}

// splitColumns reads statements that carry separate debit and credit
// columns. The populated column gives the direction.
func (p *CSVStatementParser) splitColumns(line int, debitRaw, creditRaw string, cols csvColumns) (decimal.Decimal, models.TransactionType, *ParseError) {
	parse := func(column, raw string) (decimal.Decimal, bool, *ParseError) {
		if raw == "" {
			return decimal.Zero, false, nil
		}
		v, err := models.ParseDecimalFromString(raw)
		if err != nil {
			return decimal.Zero, false, invalidAmount(line, column, raw, err)
		}
		return v.Abs(), !v.IsZero(), nil
	}

	debit, hasDebit, perr := parse(cols.debit, debitRaw)
	if perr != nil {
		return decimal.Zero, "", perr
	}
	credit, hasCredit, perr := parse(cols.credit, creditRaw)
	if perr != nil {
		return decimal.Zero, "", perr
	}

	switch {
	case hasDebit && hasCredit:
		return decimal.Zero, "", &ParseError{
			Line:    line,
			Field:   cols.debit + "/" + cols.credit,
			Value:   debitRaw + "/" + creditRaw,
			Message: "both debit and credit populated",
			Err:     errors.InputError(errors.CodeInvalidAmount, line, cols.debit, debitRaw, nil),
		}
	case hasDebit:
		return debit, models.TransactionTypeDebit, nil
	case hasCredit:
		return credit, models.TransactionTypeCredit, nil
	case debitRaw != "":
		return decimal.Zero, models.TransactionTypeDebit, nil
	case creditRaw != "":
		return decimal.Zero, models.TransactionTypeCredit, nil
	}
	return decimal.Zero, "", missingField(line, ColumnAmount)
}

// resolveDirection applies an explicit type when present. Without one, a
// negative amount is a debit. An unrecognized type is kept verbatim so the
// classifier rejects it as a contract violation.
func resolveDirection(amount decimal.Decimal, rawType string) (decimal.Decimal, models.TransactionType) {
	rawType = strings.TrimSpace(rawType)
	if rawType == "" {
		if amount.IsNegative() {
			return amount.Abs(), models.TransactionTypeDebit
		}
		return amount, models.TransactionTypeCredit
	}
	if txType, err := models.ParseTransactionType(rawType); err == nil {
		return amount, txType
	}
	return amount, models.TransactionType(strings.ToLower(rawType))
}

func missingField(line int, field string) *ParseError {
	err := errors.InputError(errors.CodeMissingField, line, field, "", nil)
	return &ParseError{Line: line, Field: field, Message: err.Message, Err: err}
}

func invalidAmount(line int, field, value string, cause error) *ParseError {
	err := errors.InputError(errors.CodeInvalidAmount, line, field, value, cause)
	return &ParseError{Line: line, Field: field, Value: value, Message: err.Message, Err: err}
}
