package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	// Import the PostgreSQL driver.
	_ "github.com/lib/pq"
	"github.com/pkg/errors"

	"github.com/kestrelhq/dossier/internal/profile"
	"github.com/kestrelhq/dossier/store"
)

type DB struct {
	db      *sql.DB
	profile *profile.Profile
}

// NewDB opens the PostgreSQL L2 store for shared multi-instance deployments.
func NewDB(profile *profile.Profile) (store.Driver, error) {
	if profile == nil {
		return nil, errors.New("profile is nil")
	}

	db, err := sql.Open("postgres", profile.DSN)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open database: %s", profile.DSN)
	}

	db.SetMaxOpenConns(5)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(2 * time.Hour)
	db.SetConnMaxIdleTime(15 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, errors.Wrap(err, "failed to ping database")
	}

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
		payload BYTEA NOT NULL,
		schema_version INTEGER NOT NULL,
		created_ts BIGINT NOT NULL,
		updated_ts BIGINT NOT NULL,
		expires_ts BIGINT NOT NULL
	);
	CREATE TABLE IF NOT EXISTS audit_entry (
		id BIGSERIAL PRIMARY KEY,
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

// placeholder returns the n-th PostgreSQL placeholder.
func placeholder(n int) string {
	return fmt.Sprintf("$%d", n)
}

// placeholders returns n placeholders starting at $1.
func placeholders(n int) string {
	list := []string{}
	for i := 0; i < n; i++ {
		list = append(list, placeholder(i+1))
	}
	return strings.Join(list, ", ")
}
