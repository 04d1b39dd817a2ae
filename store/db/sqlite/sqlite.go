package sqlite

import (
	"context"
	"database/sql"

	"github.com/pkg/errors"

	// Import the SQLite driver.
	_ "modernc.org/sqlite"

	"github.com/kestrelhq/dossier/internal/profile"
	"github.com/kestrelhq/dossier/store"
)

type DB struct {
	db      *sql.DB
	profile *profile.Profile
}

// NewDB opens (and if needed bootstraps) the SQLite L2 store.
func NewDB(profile *profile.Profile) (store.Driver, error) {
	if profile == nil {
		return nil, errors.New("profile is nil")
	}

	// journal_mode=WAL lets the async persist goroutine write while reads proceed.
	db, err := sql.Open("sqlite", profile.DSN+"?_pragma=foreign_keys(0)&_pragma=busy_timeout(10000)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open database: %s", profile.DSN)
	}

	// SQLite handles one writer at a time.
	db.SetMaxOpenConns(1)

	driver := &DB{db: db, profile: profile}
	if err := driver.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, errors.Wrap(err, "failed to migrate database")
	}

	return driver, nil
}

func (d *DB) GetDB() *sql.DB {
	return d.db
}

func (d *DB) Close() error {
	return d.db.Close()
}

func (d *DB) migrate(ctx context.Context) error {
	const schema = `
	CREATE TABLE IF NOT EXISTS analysis_cache (
		key TEXT PRIMARY KEY,
		payload BLOB NOT NULL,
		schema_version INTEGER NOT NULL,
		created_ts BIGINT NOT NULL,
		updated_ts BIGINT NOT NULL,
		expires_ts BIGINT NOT NULL
	);
	CREATE TABLE IF NOT EXISTS audit_entry (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id TEXT NOT NULL,
		cache_key TEXT NOT NULL,
		task_name TEXT NOT NULL,
		source TEXT NOT NULL,
		units INTEGER NOT NULL DEFAULT 0,
		created_ts BIGINT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_audit_entry_cache_key ON audit_entry (cache_key);
	CREATE INDEX IF NOT EXISTS idx_audit_entry_run_id ON audit_entry (run_id);
	`
	if _, err := d.db.ExecContext(ctx, schema); err != nil {
		return errors.Wrap(err, "failed to apply schema")
	}
	return nil
}
