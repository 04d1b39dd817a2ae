package store

import (
	"context"
	"database/sql"
)

// Driver is the interface an L2 database driver implements.
type Driver interface {
	GetDB() *sql.DB
	Close() error

	// AnalysisCache model related methods.
	UpsertAnalysisCache(ctx context.Context, upsert *AnalysisCache) (*AnalysisCache, error)
	GetAnalysisCache(ctx context.Context, find *FindAnalysisCache) (*AnalysisCache, error)
	DeleteAnalysisCache(ctx context.Context, delete *DeleteAnalysisCache) error
	PurgeExpiredAnalysisCache(ctx context.Context, before int64) (int64, error)

	// AuditEntry model related methods.
	CreateAuditEntry(ctx context.Context, create *AuditEntry) (*AuditEntry, error)
	ListAuditEntries(ctx context.Context, find *FindAuditEntry) ([]*AuditEntry, error)
	DeleteAuditEntriesByCacheKey(ctx context.Context, cacheKey string) error
}

// AnalysisCache is one persisted analysis record, schema-version tagged.
type AnalysisCache struct {
	Key           string
	Payload       []byte
	SchemaVersion int
	CreatedTs     int64
	UpdatedTs     int64
	ExpiresTs     int64
}

// FindAnalysisCache selects a persisted record.
type FindAnalysisCache struct {
	Key string
	// SchemaVersion, when non-nil, restricts the lookup to records written
	// under that exact version. A mismatch behaves as absence.
	SchemaVersion *int
}

// DeleteAnalysisCache removes a persisted record.
type DeleteAnalysisCache struct {
	Key string
}

// AuditEntry links one task execution to the cache key it contributed to.
// Rows reference cache keys, so invalidating a key must clear them too.
type AuditEntry struct {
	ID        int64
	RunID     string
	CacheKey  string
	TaskName  string
	Source    string
	Units     int
	CreatedTs int64
}

// FindAuditEntry selects audit entries.
type FindAuditEntry struct {
	RunID    *string
	CacheKey *string
	Limit    *int
}
