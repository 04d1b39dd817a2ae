// Package store provides persistent (L2) access to assembled analysis
// records and their audit trail, behind a database-agnostic Driver.
package store

import (
	"context"

	"github.com/kestrelhq/dossier/internal/profile"
)

// Store provides database access to all persisted objects.
type Store struct {
	profile *profile.Profile
	driver  Driver
}

// New creates a new instance of Store.
func New(driver Driver, profile *profile.Profile) *Store {
	return &Store{
		driver:  driver,
		profile: profile,
	}
}

func (s *Store) GetDriver() Driver {
	return s.driver
}

func (s *Store) Close() error {
	return s.driver.Close()
}

func (s *Store) UpsertAnalysisCache(ctx context.Context, upsert *AnalysisCache) (*AnalysisCache, error) {
	return s.driver.UpsertAnalysisCache(ctx, upsert)
}

func (s *Store) GetAnalysisCache(ctx context.Context, find *FindAnalysisCache) (*AnalysisCache, error) {
	return s.driver.GetAnalysisCache(ctx, find)
}

func (s *Store) DeleteAnalysisCache(ctx context.Context, delete *DeleteAnalysisCache) error {
	return s.driver.DeleteAnalysisCache(ctx, delete)
}

func (s *Store) PurgeExpiredAnalysisCache(ctx context.Context, before int64) (int64, error) {
	return s.driver.PurgeExpiredAnalysisCache(ctx, before)
}

func (s *Store) CreateAuditEntry(ctx context.Context, create *AuditEntry) (*AuditEntry, error) {
	return s.driver.CreateAuditEntry(ctx, create)
}

func (s *Store) ListAuditEntries(ctx context.Context, find *FindAuditEntry) ([]*AuditEntry, error) {
	return s.driver.ListAuditEntries(ctx, find)
}

func (s *Store) DeleteAuditEntriesByCacheKey(ctx context.Context, cacheKey string) error {
	return s.driver.DeleteAuditEntriesByCacheKey(ctx, cacheKey)
}
