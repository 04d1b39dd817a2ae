package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/kestrelhq/dossier/store"
)

func (d *DB) CreateAuditEntry(ctx context.Context, create *store.AuditEntry) (*store.AuditEntry, error) {
	fields := []string{"run_id", "cache_key", "task_name", "source", "units", "created_ts"}
	args := []any{create.RunID, create.CacheKey, create.TaskName, create.Source, create.Units, create.CreatedTs}

	stmt := `INSERT INTO audit_entry (` + strings.Join(fields, ", ") + `)
		VALUES (` + placeholders(len(args)) + `)
		RETURNING id`
	if err := d.db.QueryRowContext(ctx, stmt, args...).Scan(&create.ID); err != nil {
		return nil, fmt.Errorf("failed to create audit_entry: %w", err)
	}
	return create, nil
}

func (d *DB) ListAuditEntries(ctx context.Context, find *store.FindAuditEntry) ([]*store.AuditEntry, error) {
	where, args := []string{"1 = 1"}, []any{}
	if find.RunID != nil {
		where, args = append(where, "run_id = "+placeholder(len(args)+1)), append(args, *find.RunID)
	}
	if find.CacheKey != nil {
		where, args = append(where, "cache_key = "+placeholder(len(args)+1)), append(args, *find.CacheKey)
	}

	query := `SELECT id, run_id, cache_key, task_name, source, units, created_ts
		FROM audit_entry WHERE ` + strings.Join(where, " AND ") + ` ORDER BY created_ts DESC`
	if find.Limit != nil {
		query += fmt.Sprintf(" LIMIT %d", *find.Limit)
	}

	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list audit_entries: %w", err)
	}
	defer rows.Close()

	list := make([]*store.AuditEntry, 0)
	for rows.Next() {
		e := &store.AuditEntry{}
		if err := rows.Scan(&e.ID, &e.RunID, &e.CacheKey, &e.TaskName, &e.Source, &e.Units, &e.CreatedTs); err != nil {
			return nil, fmt.Errorf("failed to scan audit_entry: %w", err)
		}
		list = append(list, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate audit_entries: %w", err)
	}
	return list, nil
}

func (d *DB) DeleteAuditEntriesByCacheKey(ctx context.Context, cacheKey string) error {
	if _, err := d.db.ExecContext(ctx, `DELETE FROM audit_entry WHERE cache_key = $1`, cacheKey); err != nil {
		return fmt.Errorf("failed to delete audit_entries: %w", err)
	}
	return nil
}
