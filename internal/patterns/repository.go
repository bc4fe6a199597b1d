package patterns

import (
	"context"

	"mca-revenue-engine/internal/models"
)

// UpsertOutcome reports what an Upsert did to the stored record.
type UpsertOutcome int

const (
	// Inserted means no record existed for (kind, pattern).
	Inserted UpsertOutcome = iota
	// Updated means the existing record's value was overwritten.
	Updated
	// Skipped means the existing record is a manual override and the
	// incoming write was automatic; nothing changed.
	Skipped
)

func (o UpsertOutcome) String() string {
	switch o {
	case Inserted:
		return "inserted"
	case Updated:
		return "updated"
	case Skipped:
		return "skipped"
	default:
		return "unknown"
	}
}

// Repository is the persistence boundary of the pattern store. Records are
// unique on (kind, pattern). Implementations must be safe for concurrent use.
type Repository interface {
	// Match returns every record of kind whose pattern occurs in the
	// normalized description on token boundaries.
	Match(ctx context.Context, kind models.PatternKind, normalized string) ([]*models.PatternRecord, error)

	// Get returns the record for (kind, pattern), or nil when absent.
	Get(ctx context.Context, kind models.PatternKind, pattern string) (*models.PatternRecord, error)

	// List returns all records of kind ordered by pattern. An empty kind
	// lists every table.
	List(ctx context.Context, kind models.PatternKind) ([]*models.PatternRecord, error)

	// Upsert inserts rec or overwrites the stored value in one atomic step.
	// An automatic write never replaces a manual override, and once a record
	// is a manual override it stays one. Updates increment usage_count.
	Upsert(ctx context.Context, rec *models.PatternRecord) (UpsertOutcome, error)

	// Save writes rec exactly as given, replacing any existing record for
	// (kind, pattern). Used by admin import and re-keying only.
	Save(ctx context.Context, rec *models.PatternRecord) error

	// IncrementUsage bumps usage_count for (kind, pattern) by one.
	IncrementUsage(ctx context.Context, kind models.PatternKind, pattern string) error

	// Delete removes one record and reports whether it existed.
	Delete(ctx context.Context, kind models.PatternKind, pattern string) (bool, error)

	// DeleteKind removes every record of kind (all kinds when empty) and
	// returns the number removed.
	DeleteKind(ctx context.Context, kind models.PatternKind) (int64, error)
}
