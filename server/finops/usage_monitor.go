// Package finops aggregates provider consumption out of the audit trail.
// Every task execution writes an audit entry; this package turns those rows
// into per-task and per-source usage reports.
package finops

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/kestrelhq/dossier/store"
)

// TaskStats aggregates consumption for one task template.
type TaskStats struct {
	Task       string `json:"task"`
	Executions int64  `json:"executions"`
	Units      int64  `json:"units"`
}

// UsageReport is a point-in-time consumption summary.
type UsageReport struct {
	GeneratedAt time.Time        `json:"generatedAt"`
	Runs        int64            `json:"runs"`
	TotalUnits  int64            `json:"totalUnits"`
	ByTask      []*TaskStats     `json:"byTask"`
	BySource    map[string]int64 `json:"bySource"`
}

// UsageMonitor builds usage reports from audit entries, with a short-lived
// in-memory cache so repeated report calls do not hammer the store.
type UsageMonitor struct {
	store  *store.Store
	logger *slog.Logger

	mu          sync.RWMutex
	cached      *UsageReport
	cacheTTL    time.Duration
	lastRefresh time.Time

	// runUnitBudget, when positive, triggers a warning log for any run whose
	// total consumption exceeds it.
	runUnitBudget int64
}

type MonitorOption func(*UsageMonitor)

// WithCacheTTL overrides the report cache lifetime.
func WithCacheTTL(ttl time.Duration) MonitorOption {
	return func(m *UsageMonitor) { m.cacheTTL = ttl }
}

// WithRunUnitBudget sets the per-run consumption level worth warning about.
func WithRunUnitBudget(units int64) MonitorOption {
	return func(m *UsageMonitor) { m.runUnitBudget = units }
}

func NewUsageMonitor(st *store.Store, logger *slog.Logger, opts ...MonitorOption) *UsageMonitor {
	if logger == nil {
		logger = slog.Default()
	}
	m := &UsageMonitor{
		store:    st,
		logger:   logger,
		cacheTTL: 5 * time.Minute,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Report aggregates the most recent audit entries, at most limit rows.
// A zero limit reads everything.
func (m *UsageMonitor) Report(ctx context.Context, limit int) (*UsageReport, error) {
	m.mu.RLock()
	if m.cached != nil && time.Since(m.lastRefresh) < m.cacheTTL {
		report := m.cached
		m.mu.RUnlock()
		return report, nil
	}
	m.mu.RUnlock()

	find := &store.FindAuditEntry{}
	if limit > 0 {
		find.Limit = &limit
	}
	entries, err := m.store.ListAuditEntries(ctx, find)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list audit entries")
	}

	report := buildReport(entries)
	m.warnOverBudgetRuns(entries)

	m.mu.Lock()
	m.cached = report
	m.lastRefresh = time.Now()
	m.mu.Unlock()
	return report, nil
}

// ReportForKey aggregates the audit entries behind one cache key, bypassing
// the cache; per-key reports are rare and always want fresh rows.
func (m *UsageMonitor) ReportForKey(ctx context.Context, cacheKey string) (*UsageReport, error) {
	entries, err := m.store.ListAuditEntries(ctx, &store.FindAuditEntry{CacheKey: &cacheKey})
	if err != nil {
		return nil, errors.Wrapf(err, "failed to list audit entries for %s", cacheKey)
	}
	return buildReport(entries), nil
}

// Invalidate drops the cached report.
func (m *UsageMonitor) Invalidate() {
	m.mu.Lock()
	m.cached = nil
	m.mu.Unlock()
}

func buildReport(entries []*store.AuditEntry) *UsageReport {
	byTask := map[string]*TaskStats{}
	bySource := map[string]int64{}
	runs := map[string]bool{}
	var total int64

	for _, e := range entries {
		stats, ok := byTask[e.TaskName]
		if !ok {
			stats = &TaskStats{Task: e.TaskName}
			byTask[e.TaskName] = stats
		}
		stats.Executions++
		stats.Units += int64(e.Units)
		bySource[e.Source] += int64(e.Units)
		runs[e.RunID] = true
		total += int64(e.Units)
	}

	tasks := make([]*TaskStats, 0, len(byTask))
	for _, s := range byTask {
		tasks = append(tasks, s)
	}
	sort.Slice(tasks, func(i, j int) bool {
		if tasks[i].Units != tasks[j].Units {
			return tasks[i].Units > tasks[j].Units
		}
		return tasks[i].Task < tasks[j].Task
	})

	return &UsageReport{
		GeneratedAt: time.Now().UTC(),
		Runs:        int64(len(runs)),
		TotalUnits:  total,
		ByTask:      tasks,
		BySource:    bySource,
	}
}

func (m *UsageMonitor) warnOverBudgetRuns(entries []*store.AuditEntry) {
	if m.runUnitBudget <= 0 {
		return
	}
	perRun := map[string]int64{}
	for _, e := range entries {
		perRun[e.RunID] += int64(e.Units)
	}
	for runID, units := range perRun {
		if units > m.runUnitBudget {
			m.logger.Warn("run exceeded unit budget",
				slog.String("run_id", runID),
				slog.Int64("units", units),
				slog.Int64("budget", m.runUnitBudget))
		}
	}
}
