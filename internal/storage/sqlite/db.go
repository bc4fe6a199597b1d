// Package sqlite persists learned patterns and analysed statements in a
// single SQLite database file. The schema is managed by golang-migrate with
// migrations embedded in the binary.
package sqlite

import (
	"context"
	"database/sql"
	"embed"
	stderrors "errors"
	"fmt"
	"time"

	"mca-revenue-engine/pkg/errors"
	"mca-revenue-engine/pkg/logger"

	"github.com/golang-migrate/migrate/v4"
	migratesqlite "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

const timeLayout = time.RFC3339Nano

// DB wraps the database handle shared by the repositories in this package.
type DB struct {
	db     *sql.DB
	path   string
	logger logger.Logger
}

// Open opens (creating if needed) the database at path in WAL mode and
// applies pending migrations. SQLite allows one writer at a time, so the
// pool is limited to a single connection.
func Open(ctx context.Context, path string) (*DB, error) {
	log := logger.GetGlobalLogger().WithComponent("sqlite").WithField("path", path)

	dsn := fmt.Sprintf("%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(on)", path)
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, errors.StorageError(errors.CodeStorageUnavailable, "open database", err).WithContext("path", path)
	}
	sqlDB.SetMaxOpenConns(1)

	if err := sqlDB.PingContext(ctx); err != nil {
		sqlDB.Close()
		return nil, errors.StorageError(errors.CodeStorageUnavailable, "ping database", err).WithContext("path", path)
	}

	d := &DB{db: sqlDB, path: path, logger: log}
	if err := d.migrate(); err != nil {
		sqlDB.Close()
		return nil, err
	}

	log.Debug("Database opened")
	return d, nil
}

func (d *DB) migrate() error {
	source, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return errors.StorageError(errors.CodeMigrationFailed, "load migrations", err)
	}

	driver, err := migratesqlite.WithInstance(d.db, &migratesqlite.Config{})
	if err != nil {
		return errors.StorageError(errors.CodeMigrationFailed, "create migration driver", err)
	}

	// m.Close would close d.db through the driver, so only the source is released.
	m, err := migrate.NewWithInstance("iofs", source, "sqlite", driver)
	if err != nil {
		source.Close()
		return errors.StorageError(errors.CodeMigrationFailed, "create migrator", err)
	}
	defer source.Close()

	if err := m.Up(); err != nil {
		if stderrors.Is(err, migrate.ErrNoChange) {
			d.logger.Debug("No new database migrations to apply")
			return nil
		}
		return errors.StorageError(errors.CodeMigrationFailed, "apply migrations", err)
	}

	d.logger.Info("Database migrations applied")
	return nil
}

// Close closes the database.
func (d *DB) Close() error {
	return d.db.Close()
}

// Path returns the database file path.
func (d *DB) Path() string {
	return d.path
}

func (d *DB) withTx(ctx context.Context, operation string, fn func(tx *sql.Tx) error) error {
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.StorageError(errors.CodeStorageUnavailable, operation, err)
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return errors.StorageError(errors.CodeQueryFailed, operation, err)
	}
	return nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
