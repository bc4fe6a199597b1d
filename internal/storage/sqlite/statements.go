package sqlite

import (
	"context"
	"database/sql"
	stderrors "errors"
	"time"

	"mca-revenue-engine/internal/analysis"
	"mca-revenue-engine/internal/models"
	"mca-revenue-engine/pkg/errors"

	"github.com/shopspring/decimal"
)

const transactionColumns = `id, statement_id, sequence, raw_date, date, description, normalized_description,
	amount, type, ending_balance, is_mca_payment, mca_lender_id, mca_lender_name, is_adjustment,
	is_mca_funding, classification, classification_reason, classification_source, needs_review,
	was_corrected, confidence`

// StatementRepository stores analysed statements and their classified
// transactions so corrections can reclassify history.
type StatementRepository struct {
	db *DB
}

// NewStatementRepository returns a repository over d.
func NewStatementRepository(d *DB) *StatementRepository {
	return &StatementRepository{db: d}
}

// SaveStatement replaces the stored copy of stmt and all its transactions.
func (r *StatementRepository) SaveStatement(ctx context.Context, stmt *models.Statement) error {
	now := formatTime(time.Now())

	return r.db.withTx(ctx, "save statement", func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO statements (id, business_name, beginning_balance, existing_daily_payment, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?)
			ON CONFLICT (id) DO UPDATE SET
				business_name = excluded.business_name,
				beginning_balance = excluded.beginning_balance,
				existing_daily_payment = excluded.existing_daily_payment,
				updated_at = excluded.updated_at`,
			stmt.ID, stmt.BusinessName, nullDecimal(stmt.BeginningBalance), nullDecimal(stmt.ExistingDailyPayment), now, now)
		if err != nil {
			return errors.StorageError(errors.CodeQueryFailed, "save statement", err)
		}

		if _, err := tx.ExecContext(ctx, `DELETE FROM statement_transactions WHERE statement_id = ?`, stmt.ID); err != nil {
			return errors.StorageError(errors.CodeQueryFailed, "save statement", err)
		}

		insert, err := tx.PrepareContext(ctx,
			`INSERT INTO statement_transactions (`+transactionColumns+`)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
		if err != nil {
			return errors.StorageError(errors.CodeQueryFailed, "save statement", err)
		}
		defer insert.Close()

		for _, t := range stmt.Transactions {
			var date sql.NullString
			if t.DateValid {
				date = sql.NullString{String: t.Date.Format(models.DateLayout), Valid: true}
			}
			_, err := insert.ExecContext(ctx,
				t.ID, stmt.ID, t.Sequence, t.RawDate, date, t.Description, t.NormalizedDescription,
				t.Amount.String(), string(t.Type), nullDecimal(t.EndingBalance),
				boolToInt(t.IsMCAPayment), t.MCALenderID, t.MCALenderName, boolToInt(t.IsAdjustment),
				boolToInt(t.IsMCAFunding), string(t.Classification), t.ClassificationReason,
				string(t.ClassificationSource), boolToInt(t.NeedsReview), boolToInt(t.WasCorrected), t.Confidence)
			if err != nil {
				return errors.StorageError(errors.CodeQueryFailed, "save statement", err).
					WithContext("transaction_id", t.ID)
			}
		}
		return nil
	})
}

// LoadStatement returns the stored statement with transactions in
// extraction order.
func (r *StatementRepository) LoadStatement(ctx context.Context, id string) (*models.Statement, error) {
	var (
		stmt               models.Statement
		beginning, payment sql.NullString
	)
	err := r.db.db.QueryRowContext(ctx,
		`SELECT id, business_name, beginning_balance, existing_daily_payment FROM statements WHERE id = ?`, id).
		Scan(&stmt.ID, &stmt.BusinessName, &beginning, &payment)
	if stderrors.Is(err, sql.ErrNoRows) {
		return nil, errors.StorageError(errors.CodeRecordNotFound, "load statement", nil).WithContext("statement_id", id)
	}
	if err != nil {
		return nil, errors.StorageError(errors.CodeQueryFailed, "load statement", err)
	}
	if stmt.BeginningBalance, err = parseNullDecimal(beginning); err != nil {
		return nil, errors.StorageError(errors.CodeQueryFailed, "load statement", err)
	}
	if stmt.ExistingDailyPayment, err = parseNullDecimal(payment); err != nil {
		return nil, errors.StorageError(errors.CodeQueryFailed, "load statement", err)
	}

	rows, err := r.db.db.QueryContext(ctx,
		`SELECT `+transactionColumns+` FROM statement_transactions WHERE statement_id = ? ORDER BY sequence`, id)
	if err != nil {
		return nil, errors.StorageError(errors.CodeQueryFailed, "load statement", err)
	}
	defer rows.Close()

	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, errors.StorageError(errors.CodeQueryFailed, "load statement", err)
		}
		stmt.Transactions = append(stmt.Transactions, t)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.StorageError(errors.CodeQueryFailed, "load statement", err)
	}
	return &stmt, nil
}

// FindTransaction returns one stored transaction. Without a statementID the
// ID must not be shared by several statements.
func (r *StatementRepository) FindTransaction(ctx context.Context, statementID, id string) (*models.Transaction, error) {
	query := `SELECT ` + transactionColumns + ` FROM statement_transactions WHERE id = ?`
	args := []interface{}{id}
	if statementID != "" {
		query += ` AND statement_id = ?`
		args = append(args, statementID)
	}
	// Two rows are enough to tell a unique match from an ambiguous one.
	query += ` ORDER BY statement_id LIMIT 2`

	rows, err := r.db.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.StorageError(errors.CodeQueryFailed, "find transaction", err)
	}
	defer rows.Close()

	var found []*models.Transaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, errors.StorageError(errors.CodeQueryFailed, "find transaction", err)
		}
		found = append(found, t)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.StorageError(errors.CodeQueryFailed, "find transaction", err)
	}
	return analysis.ResolveTransaction(found, statementID, id)
}

// StatementIDsMatching returns the statements holding at least one
// transaction whose normalized description contains pattern.
func (r *StatementRepository) StatementIDsMatching(ctx context.Context, pattern string) ([]string, error) {
	return r.ids(ctx, "match statements",
		`SELECT DISTINCT statement_id FROM statement_transactions
		WHERE instr(' ' || normalized_description || ' ', ' ' || ? || ' ') > 0
		ORDER BY statement_id`, pattern)
}

// ListStatementIDs returns every stored statement ID.
func (r *StatementRepository) ListStatementIDs(ctx context.Context) ([]string, error) {
	return r.ids(ctx, "list statements", `SELECT id FROM statements ORDER BY id`)
}

func (r *StatementRepository) ids(ctx context.Context, operation, query string, args ...interface{}) ([]string, error) {
	rows, err := r.db.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.StorageError(errors.CodeQueryFailed, operation, err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, errors.StorageError(errors.CodeQueryFailed, operation, err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.StorageError(errors.CodeQueryFailed, operation, err)
	}
	return ids, nil
}

func scanTransaction(row rowScanner) (*models.Transaction, error) {
	var (
		t                             models.Transaction
		date, ending                  sql.NullString
		amount, txType, class, source string
	)
	err := row.Scan(&t.ID, &t.StatementID, &t.Sequence, &t.RawDate, &date, &t.Description, &t.NormalizedDescription,
		&amount, &txType, &ending, &t.IsMCAPayment, &t.MCALenderID, &t.MCALenderName, &t.IsAdjustment,
		&t.IsMCAFunding, &class, &t.ClassificationReason, &source, &t.NeedsReview,
		&t.WasCorrected, &t.Confidence)
	if err != nil {
		return nil, err
	}

	if t.Amount, err = decimal.NewFromString(amount); err != nil {
		return nil, err
	}
	if t.EndingBalance, err = parseNullDecimal(ending); err != nil {
		return nil, err
	}
	if date.Valid {
		if d, err := time.Parse(models.DateLayout, date.String); err == nil {
			t.Date = d
			t.DateValid = true
		}
	}
	t.Type = models.TransactionType(txType)
	t.Classification = models.RevenueClass(class)
	t.ClassificationSource = models.ClassificationSource(source)
	return &t, nil
}

func nullDecimal(d *decimal.Decimal) sql.NullString {
	if d == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: d.String(), Valid: true}
}

func parseNullDecimal(s sql.NullString) (*decimal.Decimal, error) {
	if !s.Valid {
		return nil, nil
	}
	d, err := decimal.NewFromString(s.String)
	if err != nil {
		return nil, err
	}
	return &d, nil
}
