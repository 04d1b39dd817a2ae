// Package cache implements the two-tier cache: an in-memory LRU (L1) in
// front of an optional persistent store (L2), with schema-versioned entries,
// sliding expiration and pending-request coalescing.
package cache

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/kestrelhq/dossier/store"
)

// ServiceConfig configures the cache service.
type ServiceConfig struct {
	Capacity        int           // Maximum number of L1 entries (default: 500)
	DefaultTTL      time.Duration // Default TTL for entries (default: 12 hours)
	CleanupInterval time.Duration // Interval for expired entry cleanup (default: 5 minutes)
	PendingTimeout  time.Duration // Safety bound on a pending registration (default: 2 minutes)
	SchemaVersion   int           // Current record schema version
}

// Service is the two-tier cache with request coalescing.
type Service struct {
	l1      *LRUCache
	store   *store.Store // nil disables L2
	pending *pendingRegistry
	version int

	defaultTTL      time.Duration
	cleanupInterval time.Duration

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewService creates the cache service. A nil store runs L1-only.
func NewService(cfg ServiceConfig, st *store.Store) *Service {
	if cfg.Capacity <= 0 {
		cfg.Capacity = 500
	}
	if cfg.DefaultTTL <= 0 {
		cfg.DefaultTTL = 12 * time.Hour
	}
	if cfg.CleanupInterval <= 0 {
		cfg.CleanupInterval = 5 * time.Minute
	}
	if cfg.SchemaVersion <= 0 {
		cfg.SchemaVersion = 1
	}

	ctx, cancel := context.WithCancel(context.Background())

	s := &Service{
		l1:              NewLRUCache(cfg.Capacity, cfg.DefaultTTL),
		store:           st,
		pending:         newPendingRegistry(cfg.PendingTimeout),
		version:         cfg.SchemaVersion,
		defaultTTL:      cfg.DefaultTTL,
		cleanupInterval: cfg.CleanupInterval,
		ctx:             ctx,
		cancel:          cancel,
	}

	s.wg.Add(1)
	go s.cleanupLoop()

	return s
}

// Close stops the cache service.
func (s *Service) Close() {
	s.cancel()
	s.wg.Wait()
}

// SchemaVersion returns the version new entries are tagged with.
func (s *Service) SchemaVersion() int {
	return s.version
}

// Get retrieves a cached value: L1 first, then L2 with promotion. A schema
// version mismatch at either tier is a miss, never an error.
func (s *Service) Get(ctx context.Context, key string) ([]byte, bool) {
	if value, ok := s.l1.Get(key, s.version); ok {
		return value, true
	}

	if s.store == nil || !IsFullAnalysis(key) {
		return nil, false
	}

	record, err := s.store.GetAnalysisCache(ctx, &store.FindAnalysisCache{
		Key:           key,
		SchemaVersion: &s.version,
	})
	if err != nil {
		slog.Warn("L2 cache lookup failed", "cache_key", key, "error", err)
		return nil, false
	}
	if record == nil {
		return nil, false
	}
	if record.ExpiresTs > 0 && record.ExpiresTs < time.Now().Unix() {
		return nil, false
	}

	// Promote to L1 so the next read is memory-speed.
	s.l1.Set(key, record.Payload, s.version, s.defaultTTL)
	return record.Payload, true
}

// Set writes L1 immediately. Full-analysis keys are additionally persisted
// to L2 asynchronously; persistence failure is non-fatal since L1 still
// serves reads.
func (s *Service) Set(ctx context.Context, key string, value []byte, ttl time.Duration) {
	if ttl <= 0 {
		ttl = s.defaultTTL
	}
	s.l1.Set(key, value, s.version, ttl)

	if s.store == nil || !IsFullAnalysis(key) {
		return
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		now := time.Now()
		_, err := s.store.UpsertAnalysisCache(s.ctx, &store.AnalysisCache{
			Key:           key,
			Payload:       value,
			SchemaVersion: s.version,
			CreatedTs:     now.Unix(),
			UpdatedTs:     now.Unix(),
			ExpiresTs:     now.Add(ttl).Unix(),
		})
		if err != nil {
			slog.Warn("L2 cache persist failed", "cache_key", key, "error", err)
		}
	}()
}

// RegisterPending registers an in-flight fetch for key. The second return
// reports whether the caller owns the fetch; a non-owner should Wait on the
// returned request instead of fetching.
func (s *Service) RegisterPending(key string) (*PendingRequest, bool) {
	return s.pending.register(key)
}

// WaitPending awaits an in-flight fetch for key, if one exists.
func (s *Service) WaitPending(ctx context.Context, key string) ([]byte, bool, error) {
	p, ok := s.pending.lookup(key)
	if !ok {
		return nil, false, nil
	}
	value, err := p.Wait(ctx)
	return value, true, err
}

// ClearPending resolves the in-flight fetch for key, waking all waiters.
func (s *Service) ClearPending(key string, value []byte, err error) {
	s.pending.clear(key, value, err)
}

// PendingCount returns the number of in-flight registrations.
func (s *Service) PendingCount() int {
	return s.pending.size()
}

// Delete removes a key from L1 only.
func (s *Service) Delete(key string) {
	s.l1.Delete(key)
}

// DeleteFromAllSources invalidates a key across L1, L2 and the audit entries
// referencing it. Used whenever a read-time validation check fails.
func (s *Service) DeleteFromAllSources(ctx context.Context, key string) error {
	s.l1.Delete(key)

	if s.store == nil {
		return nil
	}
	if err := s.store.DeleteAnalysisCache(ctx, &store.DeleteAnalysisCache{Key: key}); err != nil {
		return errors.Wrapf(err, "failed to delete %s from L2", key)
	}
	if err := s.store.DeleteAuditEntriesByCacheKey(ctx, key); err != nil {
		return errors.Wrapf(err, "failed to delete audit entries for %s", key)
	}
	return nil
}

// PurgeAll drops every record from both tiers. Audit history is kept; it
// describes runs, not cache state. Returns the number of records removed,
// counting a record once even when it lived in both tiers.
func (s *Service) PurgeAll(ctx context.Context) (int64, error) {
	removed := int64(s.l1.Size())
	s.l1.Clear()

	if s.store == nil {
		return removed, nil
	}
	// Every row has expires_ts below any far-future bound.
	n, err := s.store.PurgeExpiredAnalysisCache(ctx, time.Now().Add(100*24*365*time.Hour).Unix())
	if err != nil {
		return removed, errors.Wrap(err, "failed to purge L2")
	}
	if n > removed {
		removed = n
	}
	return removed, nil
}

// Size returns the number of L1 entries.
func (s *Service) Size() int {
	return s.l1.Size()
}

// cleanupLoop periodically removes expired entries from both tiers.
func (s *Service) cleanupLoop() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			removed := s.l1.CleanupExpired()
			if removed > 0 {
				slog.Debug("L1 cleanup removed expired entries", "count", removed)
			}
			if s.store != nil {
				if n, err := s.store.PurgeExpiredAnalysisCache(s.ctx, time.Now().Unix()); err == nil && n > 0 {
					slog.Debug("L2 cleanup purged expired records", "count", n)
				}
			}
		}
	}
}
