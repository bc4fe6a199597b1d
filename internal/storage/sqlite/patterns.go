package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	stderrors "errors"
	"time"

	"mca-revenue-engine/internal/models"
	"mca-revenue-engine/internal/patterns"
	"mca-revenue-engine/pkg/errors"
)

const patternColumns = `id, kind, pattern, value, usage_count, is_manual_override,
	created_by, normalizer_version, created_at, updated_at`

// upsertPattern is the compare-and-swap that protects manual overrides: the
// DO UPDATE only fires when the stored row is automatic or the incoming
// write is itself manual, and the override flag can only be raised.
const upsertPattern = `
INSERT INTO patterns (` + patternColumns + `)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (kind, pattern) DO UPDATE SET
	value = excluded.value,
	is_manual_override = MAX(patterns.is_manual_override, excluded.is_manual_override),
	created_by = excluded.created_by,
	normalizer_version = excluded.normalizer_version,
	usage_count = patterns.usage_count + 1,
	updated_at = excluded.updated_at
WHERE patterns.is_manual_override = 0 OR excluded.is_manual_override = 1`

// PatternRepository implements patterns.Repository on SQLite.
type PatternRepository struct {
	db *DB
}

// NewPatternRepository returns a repository over d.
func NewPatternRepository(d *DB) *PatternRepository {
	return &PatternRepository{db: d}
}

var _ patterns.Repository = (*PatternRepository)(nil)

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanPattern(row rowScanner) (*models.PatternRecord, error) {
	var (
		rec                  models.PatternRecord
		kind, value          string
		createdAt, updatedAt string
	)
	if err := row.Scan(&rec.ID, &kind, &rec.Pattern, &value, &rec.UsageCount, &rec.IsManualOverride,
		&rec.CreatedBy, &rec.NormalizerVersion, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	rec.Kind = models.PatternKind(kind)
	if err := json.Unmarshal([]byte(value), &rec.Value); err != nil {
		return nil, err
	}
	rec.CreatedAt = parseTime(createdAt)
	rec.UpdatedAt = parseTime(updatedAt)
	return &rec, nil
}

func (r *PatternRepository) query(ctx context.Context, operation, query string, args ...interface{}) ([]*models.PatternRecord, error) {
	rows, err := r.db.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.StorageError(errors.CodeQueryFailed, operation, err)
	}
	defer rows.Close()

	var out []*models.PatternRecord
	for rows.Next() {
		rec, err := scanPattern(rows)
		if err != nil {
			return nil, errors.StorageError(errors.CodeQueryFailed, operation, err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.StorageError(errors.CodeQueryFailed, operation, err)
	}
	return out, nil
}

// Match finds patterns contained in normalized on token boundaries.
func (r *PatternRepository) Match(ctx context.Context, kind models.PatternKind, normalized string) ([]*models.PatternRecord, error) {
	return r.query(ctx, "match patterns",
		`SELECT `+patternColumns+` FROM patterns
		WHERE kind = ? AND instr(' ' || ? || ' ', ' ' || pattern || ' ') > 0`,
		string(kind), normalized)
}

func (r *PatternRepository) Get(ctx context.Context, kind models.PatternKind, pattern string) (*models.PatternRecord, error) {
	row := r.db.db.QueryRowContext(ctx,
		`SELECT `+patternColumns+` FROM patterns WHERE kind = ? AND pattern = ?`,
		string(kind), pattern)
	rec, err := scanPattern(row)
	if stderrors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.StorageError(errors.CodeQueryFailed, "get pattern", err)
	}
	return rec, nil
}

func (r *PatternRepository) List(ctx context.Context, kind models.PatternKind) ([]*models.PatternRecord, error) {
	if kind == "" {
		return r.query(ctx, "list patterns",
			`SELECT `+patternColumns+` FROM patterns ORDER BY kind, pattern`)
	}
	return r.query(ctx, "list patterns",
		`SELECT `+patternColumns+` FROM patterns WHERE kind = ? ORDER BY pattern`, string(kind))
}

func (r *PatternRepository) Upsert(ctx context.Context, rec *models.PatternRecord) (patterns.UpsertOutcome, error) {
	value, err := json.Marshal(rec.Value)
	if err != nil {
		return patterns.Skipped, errors.InternalError(errors.CodeUnexpectedError, "encode pattern value", err)
	}

	outcome := patterns.Inserted
	err = r.db.withTx(ctx, "upsert pattern", func(tx *sql.Tx) error {
		var exists int
		err := tx.QueryRowContext(ctx,
			`SELECT COUNT(1) FROM patterns WHERE kind = ? AND pattern = ?`,
			string(rec.Kind), rec.Pattern).Scan(&exists)
		if err != nil {
			return errors.StorageError(errors.CodeQueryFailed, "upsert pattern", err)
		}

		res, err := tx.ExecContext(ctx, upsertPattern,
			rec.ID, string(rec.Kind), rec.Pattern, string(value), rec.UsageCount, boolToInt(rec.IsManualOverride),
			rec.CreatedBy, rec.NormalizerVersion, formatTime(rec.CreatedAt), formatTime(rec.UpdatedAt))
		if err != nil {
			return errors.StorageError(errors.CodeQueryFailed, "upsert pattern", err)
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return errors.StorageError(errors.CodeQueryFailed, "upsert pattern", err)
		}

		switch {
		case affected == 0:
			outcome = patterns.Skipped
		case exists > 0:
			outcome = patterns.Updated
		}
		return nil
	})
	return outcome, err
}

func (r *PatternRepository) Save(ctx context.Context, rec *models.PatternRecord) error {
	value, err := json.Marshal(rec.Value)
	if err != nil {
		return errors.InternalError(errors.CodeUnexpectedError, "encode pattern value", err)
	}

	_, err = r.db.db.ExecContext(ctx,
		`INSERT INTO patterns (`+patternColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (kind, pattern) DO UPDATE SET
			value = excluded.value,
			usage_count = excluded.usage_count,
			is_manual_override = excluded.is_manual_override,
			created_by = excluded.created_by,
			normalizer_version = excluded.normalizer_version,
			created_at = excluded.created_at,
			updated_at = excluded.updated_at`,
		rec.ID, string(rec.Kind), rec.Pattern, string(value), rec.UsageCount, boolToInt(rec.IsManualOverride),
		rec.CreatedBy, rec.NormalizerVersion, formatTime(rec.CreatedAt), formatTime(rec.UpdatedAt))
	if err != nil {
		return errors.StorageError(errors.CodeQueryFailed, "save pattern", err)
	}
	return nil
}

func (r *PatternRepository) IncrementUsage(ctx context.Context, kind models.PatternKind, pattern string) error {
	_, err := r.db.db.ExecContext(ctx,
		`UPDATE patterns SET usage_count = usage_count + 1, updated_at = ? WHERE kind = ? AND pattern = ?`,
		formatTime(time.Now()), string(kind), pattern)
	if err != nil {
		return errors.StorageError(errors.CodeQueryFailed, "increment pattern usage", err)
	}
	return nil
}

func (r *PatternRepository) Delete(ctx context.Context, kind models.PatternKind, pattern string) (bool, error) {
	res, err := r.db.db.ExecContext(ctx, `DELETE FROM patterns WHERE kind = ? AND pattern = ?`, string(kind), pattern)
	if err != nil {
		return false, errors.StorageError(errors.CodeQueryFailed, "delete pattern", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, errors.StorageError(errors.CodeQueryFailed, "delete pattern", err)
	}
	return n > 0, nil
}

func (r *PatternRepository) DeleteKind(ctx context.Context, kind models.PatternKind) (int64, error) {
	var (
		res sql.Result
		err error
	)
	if kind == "" {
		res, err = r.db.db.ExecContext(ctx, `DELETE FROM patterns`)
	} else {
		res, err = r.db.db.ExecContext(ctx, `DELETE FROM patterns WHERE kind = ?`, string(kind))
	}
	if err != nil {
		return 0, errors.StorageError(errors.CodeQueryFailed, "clear patterns", err)
	}
	return res.RowsAffected()
}
