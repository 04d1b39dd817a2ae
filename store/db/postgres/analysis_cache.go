package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/kestrelhq/dossier/store"
)

func (d *DB) UpsertAnalysisCache(ctx context.Context, upsert *store.AnalysisCache) (*store.AnalysisCache, error) {
	fields := []string{"key", "payload", "schema_version", "created_ts", "updated_ts", "expires_ts"}
	args := []any{upsert.Key, upsert.Payload, upsert.SchemaVersion, upsert.CreatedTs, upsert.UpdatedTs, upsert.ExpiresTs}

	stmt := `INSERT INTO analysis_cache (` + strings.Join(fields, ", ") + `)
		VALUES (` + placeholders(len(args)) + `)
		ON CONFLICT (key) DO UPDATE SET
			payload = EXCLUDED.payload,
			schema_version = EXCLUDED.schema_version,
			updated_ts = EXCLUDED.updated_ts,
			expires_ts = EXCLUDED.expires_ts`
	if _, err := d.db.ExecContext(ctx, stmt, args...); err != nil {
		return nil, fmt.Errorf("failed to upsert analysis_cache: %w", err)
	}
	return upsert, nil
}

func (d *DB) GetAnalysisCache(ctx context.Context, find *store.FindAnalysisCache) (*store.AnalysisCache, error) {
	where, args := []string{"key = $1"}, []any{find.Key}
	if find.SchemaVersion != nil {
		where, args = append(where, "schema_version = "+placeholder(len(args)+1)), append(args, *find.SchemaVersion)
	}

	query := `SELECT key, payload, schema_version, created_ts, updated_ts, expires_ts
		FROM analysis_cache WHERE ` + strings.Join(where, " AND ")

	c := &store.AnalysisCache{}
	if err := d.db.QueryRowContext(ctx, query, args...).Scan(
		&c.Key, &c.Payload, &c.SchemaVersion, &c.CreatedTs, &c.UpdatedTs, &c.ExpiresTs,
	); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get analysis_cache: %w", err)
	}
	return c, nil
}

func (d *DB) DeleteAnalysisCache(ctx context.Context, delete *store.DeleteAnalysisCache) error {
	if _, err := d.db.ExecContext(ctx, `DELETE FROM analysis_cache WHERE key = $1`, delete.Key); err != nil {
		return fmt.Errorf("failed to delete analysis_cache: %w", err)
	}
	return nil
}

func (d *DB) PurgeExpiredAnalysisCache(ctx context.Context, before int64) (int64, error) {
	result, err := d.db.ExecContext(ctx, `DELETE FROM analysis_cache WHERE expires_ts > 0 AND expires_ts < $1`, before)
	if err != nil {
		return 0, fmt.Errorf("failed to purge analysis_cache: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count purged rows: %w", err)
	}
	return n, nil
}
