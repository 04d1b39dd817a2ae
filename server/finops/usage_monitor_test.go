package finops

import (
	"context"
	"database/sql"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kestrelhq/dossier/internal/profile"
	"github.com/kestrelhq/dossier/store"
)

// fakeDriver serves canned audit entries and counts list calls.
type fakeDriver struct {
	entries   []*store.AuditEntry
	listCalls int
}

func (d *fakeDriver) GetDB() *sql.DB { return nil }
func (d *fakeDriver) Close() error   { return nil }

func (d *fakeDriver) UpsertAnalysisCache(context.Context, *store.AnalysisCache) (*store.AnalysisCache, error) {
	return nil, nil
}
func (d *fakeDriver) GetAnalysisCache(context.Context, *store.FindAnalysisCache) (*store.AnalysisCache, error) {
	return nil, nil
}
func (d *fakeDriver) DeleteAnalysisCache(context.Context, *store.DeleteAnalysisCache) error {
	return nil
}
func (d *fakeDriver) PurgeExpiredAnalysisCache(context.Context, int64) (int64, error) {
	return 0, nil
}
func (d *fakeDriver) CreateAuditEntry(_ context.Context, create *store.AuditEntry) (*store.AuditEntry, error) {
	d.entries = append(d.entries, create)
	return create, nil
}
func (d *fakeDriver) DeleteAuditEntriesByCacheKey(context.Context, string) error { return nil }

func (d *fakeDriver) ListAuditEntries(_ context.Context, find *store.FindAuditEntry) ([]*store.AuditEntry, error) {
	d.listCalls++
	out := []*store.AuditEntry{}
	for _, e := range d.entries {
		if find.CacheKey != nil && e.CacheKey != *find.CacheKey {
			continue
		}
		if find.RunID != nil && e.RunID != *find.RunID {
			continue
		}
		out = append(out, e)
	}
	if find.Limit != nil && len(out) > *find.Limit {
		out = out[:*find.Limit]
	}
	return out, nil
}

func seededMonitor(t *testing.T, opts ...MonitorOption) (*UsageMonitor, *fakeDriver) {
	t.Helper()
	driver := &fakeDriver{entries: []*store.AuditEntry{
		{RunID: "run-1", CacheKey: "company:acme-corp", TaskName: "company.financials", Source: "knowledge", Units: 30},
		{RunID: "run-1", CacheKey: "company:acme-corp", TaskName: "company.news", Source: "knowledge", Units: 20},
		{RunID: "run-1", CacheKey: "company:acme-corp", TaskName: "technology_stack", Source: "primary", Units: 1},
		{RunID: "run-2", CacheKey: "person:jo-ward:acme-corp", TaskName: "person.profile", Source: "knowledge", Units: 25},
	}}
	st := store.New(driver, &profile.Profile{Driver: "none"})
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewUsageMonitor(st, logger, opts...), driver
}

func TestUsageMonitorReport(t *testing.T) {
	m, _ := seededMonitor(t)

	report, err := m.Report(context.Background(), 0)
	require.NoError(t, err)
	assert.Equal(t, int64(2), report.Runs)
	assert.Equal(t, int64(76), report.TotalUnits)
	assert.Equal(t, int64(75), report.BySource["knowledge"])
	assert.Equal(t, int64(1), report.BySource["primary"])

	// Sorted by units, heaviest task first.
	require.NotEmpty(t, report.ByTask)
	assert.Equal(t, "company.financials", report.ByTask[0].Task)
	assert.Equal(t, int64(30), report.ByTask[0].Units)
}

func TestUsageMonitorReportCaching(t *testing.T) {
	m, driver := seededMonitor(t, WithCacheTTL(time.Hour))

	_, err := m.Report(context.Background(), 0)
	require.NoError(t, err)
	_, err = m.Report(context.Background(), 0)
	require.NoError(t, err)
	assert.Equal(t, 1, driver.listCalls)

	m.Invalidate()
	_, err = m.Report(context.Background(), 0)
	require.NoError(t, err)
	assert.Equal(t, 2, driver.listCalls)
}

func TestUsageMonitorReportForKey(t *testing.T) {
	m, driver := seededMonitor(t)

	report, err := m.ReportForKey(context.Background(), "person:jo-ward:acme-corp")
	require.NoError(t, err)
	assert.Equal(t, int64(1), report.Runs)
	assert.Equal(t, int64(25), report.TotalUnits)

	// Per-key reports never come out of the cache.
	_, err = m.ReportForKey(context.Background(), "person:jo-ward:acme-corp")
	require.NoError(t, err)
	assert.Equal(t, 2, driver.listCalls)
}
