package orchestrator

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/kestrelhq/dossier/server/extract"
	taskerrors "github.com/kestrelhq/dossier/internal/errors"
	"github.com/kestrelhq/dossier/server/internal/observability"
	"github.com/kestrelhq/dossier/server/taskreg"
	"github.com/kestrelhq/dossier/plugin/provider"
	"github.com/kestrelhq/dossier/store/cache"
)

const batchCompanyCore = "company.batch1"

// AnalyzeCompany assembles the full company record: cache lookup, request
// coalescing, then three batches of tasks against the adapters. Exactly one
// caller per key does the work; everyone else waits on its outcome.
func (o *Orchestrator) AnalyzeCompany(ctx context.Context, name string) (*CompanyResult, error) {
	rc := observability.NewRequestContext(o.logger, "company", name)
	ctx = observability.WithRequestContext(ctx, rc)
	key := cache.CompanyKey(name)

	if res, ok := o.cachedCompany(ctx, rc, key); ok {
		return res, nil
	}

	pending, owner := o.cache.RegisterPending(key)
	if !owner {
		payload, err := pending.Wait(ctx)
		if err != nil {
			return nil, err
		}
		var analysis CompanyAnalysis
		if uerr := json.Unmarshal(payload, &analysis); uerr != nil {
			return nil, taskerrors.Wrap(uerr, taskerrors.ErrCodeResponseParseFailed, "decoding coalesced record")
		}
		rc.Info("served from coalesced request", slog.String(observability.LogFieldCacheKey, key))
		return &CompanyResult{Success: true, Data: &analysis, Cached: true}, nil
	}

	// A previous owner may have completed between the first lookup and this
	// registration; serve its record instead of fetching again.
	if payload, ok := o.cache.Get(ctx, key); ok && o.cache.ValidateCompanyRecord(payload).Valid {
		var analysis CompanyAnalysis
		if json.Unmarshal(payload, &analysis) == nil {
			o.cache.ClearPending(key, payload, nil)
			return &CompanyResult{Success: true, Data: &analysis, Cached: true}, nil
		}
	}

	res, err := o.assembleCompany(ctx, rc, key, name)
	if err != nil {
		o.cache.ClearPending(key, nil, err)
		return nil, err
	}
	payload, merr := json.Marshal(res.Data)
	if merr != nil {
		err = taskerrors.Wrap(merr, taskerrors.ErrCodeTaskExecutionFailed, "encoding company record")
		o.cache.ClearPending(key, nil, err)
		return nil, err
	}
	o.cache.Set(ctx, key, payload, o.profile.CacheTTL)
	o.cache.ClearPending(key, payload, nil)
	rc.Info("company analysis complete",
		slog.String(observability.LogFieldCacheKey, key),
		slog.Int64(observability.LogFieldDuration, rc.DurationMs()),
		slog.Int("units", res.Usage.Units))
	return res, nil
}

// cachedCompany serves a hit when the stored record still validates against
// the current schema. Invalid records are purged from every tier.
func (o *Orchestrator) cachedCompany(ctx context.Context, rc *observability.RequestContext, key string) (*CompanyResult, bool) {
	payload, ok := o.cache.Get(ctx, key)
	if !ok {
		return nil, false
	}
	if report := o.cache.ValidateCompanyRecord(payload); !report.Valid {
		rc.Warn("purging invalid cached record",
			slog.String(observability.LogFieldCacheKey, key),
			slog.String("reasons", strings.Join(report.Errors, "; ")))
		if err := o.cache.DeleteFromAllSources(ctx, key); err != nil {
			rc.Error("cache purge failed", err, slog.String(observability.LogFieldCacheKey, key))
		}
		return nil, false
	}
	var analysis CompanyAnalysis
	if err := json.Unmarshal(payload, &analysis); err != nil {
		return nil, false
	}
	rc.Info("served from cache", slog.String(observability.LogFieldCacheKey, key))
	return &CompanyResult{Success: true, Data: &analysis, Cached: true}, true
}

func (o *Orchestrator) assembleCompany(ctx context.Context, rc *observability.RequestContext, key, name string) (*CompanyResult, error) {
	runID := newRunID()
	usage := Usage{}
	breakdown := CostBreakdown{}
	sources := map[string]bool{}

	account := func(task string, res *TaskResult) {
		usage.add(res.Usage)
		breakdown[task] += res.Usage.Units
		if res.Success {
			sources[res.Source] = true
		}
		o.recordAudit(ctx, runID, key, task, res.Source, res.Usage.Units)
	}

	domain := o.resolveDomain(ctx, name, account)
	args := taskreg.Args{Name: name, Domain: domain}

	core, err := o.runCoreBatch(ctx, rc, args, account)
	if err != nil {
		// Fail-fast: nothing is cached, waiters get the error.
		return nil, err
	}

	funding := o.resolveFunding(ctx, rc, key, args, core.financials, account)

	enrich := o.runEnrichmentBatch(ctx, rc, name, domain, account)

	intelligence, activity := o.runSynthesisBatch(ctx, args, core, account)

	analysis := &CompanyAnalysis{
		CompanyName:  name,
		Domain:       domain,
		Overview:     core.financials,
		News:         core.news,
		Growth:       core.growth,
		Risk:         core.risk,
		Industry:     core.industry,
		Funding:      funding,
		TechStack:    enrich.techStack,
		Contacts:     enrich.contacts,
		Organization: enrich.organization,
		Intelligence: intelligence,
		Activity:     activity,
		Metadata: Metadata{
			SchemaVersion: o.profile.SchemaVersion,
			Sources:       sortedSources(sources),
			GeneratedAt:   time.Now().UTC(),
		},
	}
	return &CompanyResult{Success: true, Data: analysis, Usage: usage, CostBreakdown: breakdown}, nil
}

// resolveDomain asks the knowledge adapter for the company's primary domain
// and falls back to a deterministic guess so enrichment always has a key.
func (o *Orchestrator) resolveDomain(ctx context.Context, name string, account func(string, *TaskResult)) string {
	res, err := o.ExecuteTask(ctx, "company.domain", taskreg.Args{Name: name})
	account("company.domain", res)
	if err == nil {
		var payload struct {
			Domain string `json:"domain"`
		}
		if json.Unmarshal(res.Data, &payload) == nil && payload.Domain != "" {
			return strings.ToLower(strings.TrimSpace(payload.Domain))
		}
	}
	return deriveDomain(name)
}

// deriveDomain builds a best-guess domain from the company name: lowercase,
// punctuation and spaces removed, ".com" appended. Deterministic so repeated
// failures always key the same enrichment lookups.
func deriveDomain(name string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(name) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}
	if b.Len() == 0 {
		return ""
	}
	return b.String() + ".com"
}

type coreSections struct {
	financials json.RawMessage
	news       json.RawMessage
	growth     json.RawMessage
	risk       json.RawMessage
	industry   json.RawMessage
}

// runCoreBatch executes the five foundational tasks concurrently. Under the
// default fail-fast policy any failure aborts the whole analysis; under the
// tolerant policy failed sections are replaced with defaults, except
// financials, which has no meaningful default and stays fail-fast.
func (o *Orchestrator) runCoreBatch(ctx context.Context, rc *observability.RequestContext, args taskreg.Args, account func(string, *TaskResult)) (*coreSections, error) {
	out := &coreSections{}
	items := []struct {
		task string
		slot *json.RawMessage
		def  json.RawMessage
	}{
		{"company.financials", &out.financials, nil},
		{"company.news", &out.news, defaultNews},
		{"company.growth", &out.growth, defaultGrowth},
		{"company.risk", &out.risk, defaultRisk},
		{"company.industry", &out.industry, defaultIndustry},
	}

	failFast := o.profile.IsFailFast(batchCompanyCore)
	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	for _, it := range items {
		g.Go(func() error {
			res, err := o.ExecuteTask(gctx, it.task, args)
			mu.Lock()
			account(it.task, res)
			mu.Unlock()
			if err != nil {
				if failFast || it.def == nil {
					return err
				}
				rc.Warn("tolerant batch task failed, using default",
					slog.String(observability.LogFieldBatch, batchCompanyCore),
					slog.String(observability.LogFieldTask, it.task))
				*it.slot = it.def
				return nil
			}
			*it.slot = res.Data
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		rc.Error("core batch failed", err, slog.String(observability.LogFieldBatch, batchCompanyCore))
		return nil, err
	}
	return out, nil
}

// resolveFunding fetches private-company funding data and filters it through
// the fabrication heuristic. Public companies and failed lookups both yield
// no funding section beyond the disclosed sentinel defaults.
func (o *Orchestrator) resolveFunding(ctx context.Context, rc *observability.RequestContext, key string, args taskreg.Args, financials json.RawMessage, account func(string, *TaskResult)) json.RawMessage {
	var overview struct {
		IsPublic *bool `json:"isPublic"`
	}
	if json.Unmarshal(financials, &overview) != nil || overview.IsPublic == nil || *overview.IsPublic {
		return nil
	}

	res, err := o.ExecuteTask(ctx, "company.private_financials", args)
	account("company.private_financials", res)
	if err != nil {
		rc.Warn("private financials unavailable, using default",
			slog.String(observability.LogFieldTask, "company.private_financials"))
		return defaultFunding
	}

	filtered, suspected, signals := extract.FilterFunding(res.Data, o.profile.FabricationSignalThreshold, time.Now())
	if suspected {
		rc.Warn("funding data downgraded to sentinels",
			slog.String(observability.LogFieldCacheKey, key),
			slog.String(observability.LogFieldErrorCode, string(taskerrors.ErrCodeFabricationSuspected)),
			slog.String("signals", strings.Join(signals, "; ")))
	} else if len(signals) > 0 {
		rc.Info("funding data kept with fabrication signals below threshold",
			slog.String(observability.LogFieldCacheKey, key),
			slog.Int("signalCount", len(signals)),
			slog.String("signals", strings.Join(signals, "; ")))
	}
	return filtered
}

type enrichSections struct {
	techStack    json.RawMessage
	contacts     json.RawMessage
	organization json.RawMessage
}

type enrichItem struct {
	capability string
	fallback   string
	def        json.RawMessage
	slot       *json.RawMessage
}

// runEnrichmentBatch queries the primary-source adapter per capability and
// falls back to knowledge tasks when the adapter is unconfigured, errors, or
// returns nothing. Always tolerant: a section that fails both ways gets its
// default.
func (o *Orchestrator) runEnrichmentBatch(ctx context.Context, rc *observability.RequestContext, name, domain string, account func(string, *TaskResult)) *enrichSections {
	out := &enrichSections{}
	items := []enrichItem{
		{provider.CapTechnologyStack, "company.tech_stack_fallback", defaultTechStack, &out.techStack},
		{provider.CapExecutiveContacts, "company.contacts_fallback", defaultContacts, &out.contacts},
		{provider.CapOrganization, "company.org_fallback", defaultOrganization, &out.organization},
	}

	var mu sync.Mutex
	var wg sync.WaitGroup
	for _, it := range items {
		wg.Add(1)
		go func() {
			defer wg.Done()
			data := o.enrichSection(ctx, rc, it, name, domain, func(task string, res *TaskResult) {
				mu.Lock()
				account(task, res)
				mu.Unlock()
			})
			*it.slot = data
		}()
	}
	wg.Wait()
	return out
}

func (o *Orchestrator) enrichSection(ctx context.Context, rc *observability.RequestContext, it enrichItem, name, domain string, account func(string, *TaskResult)) json.RawMessage {
	if o.primary != nil && o.primary.Configured() {
		res, err := o.executePrimary(ctx, it.capability, domain)
		account(it.capability, res)
		if err == nil && len(res.Data) > 0 {
			return res.Data
		}
		if err != nil && !taskerrors.IsCode(err, taskerrors.ErrCodeProviderUnavailable) {
			rc.Warn("primary source failed, falling back",
				slog.String(observability.LogFieldTask, it.capability),
				slog.String("error", err.Error()))
		}
	}

	res, err := o.ExecuteTask(ctx, it.fallback, taskreg.Args{Name: name, Domain: domain})
	account(it.fallback, res)
	if err != nil {
		rc.Warn("enrichment fallback failed, using default",
			slog.String(observability.LogFieldTask, it.fallback))
		return it.def
	}
	return res.Data
}

// runSynthesisBatch produces the cross-section intelligence summary and the
// recent-activity digest. Tolerant; synthesis runs without web search over a
// context built from the core sections.
func (o *Orchestrator) runSynthesisBatch(ctx context.Context, args taskreg.Args, core *coreSections, account func(string, *TaskResult)) (json.RawMessage, json.RawMessage) {
	intelligence := defaultIntelligence
	activity := defaultActivity

	synthArgs := args
	synthArgs.Extra = map[string]string{"context": synthesisContext(core)}

	var mu sync.Mutex
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		res, err := o.ExecuteTask(ctx, "company.synthesis", synthArgs)
		mu.Lock()
		account("company.synthesis", res)
		if err == nil {
			intelligence = res.Data
		}
		mu.Unlock()
	}()
	go func() {
		defer wg.Done()
		res, err := o.ExecuteTask(ctx, "company.activity", args)
		mu.Lock()
		account("company.activity", res)
		if err == nil {
			activity = res.Data
		}
		mu.Unlock()
	}()
	wg.Wait()
	return intelligence, activity
}

// synthesisContext flattens the core sections into the synthesis prompt body.
func synthesisContext(core *coreSections) string {
	parts := map[string]json.RawMessage{
		"overview": core.financials,
		"news":     core.news,
		"growth":   core.growth,
		"risk":     core.risk,
		"industry": core.industry,
	}
	b, err := json.Marshal(parts)
	if err != nil {
		return ""
	}
	return string(b)
}

func sortedSources(set map[string]bool) []string {
	// Stable order: knowledge before primary, anything else after.
	order := []string{sourceKnowledge, sourcePrimary}
	out := make([]string, 0, len(set))
	for _, s := range order {
		if set[s] {
			out = append(out, s)
		}
	}
	for s := range set {
		if s != sourceKnowledge && s != sourcePrimary {
			out = append(out, s)
		}
	}
	return out
}
