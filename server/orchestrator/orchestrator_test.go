package orchestrator

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kestrelhq/dossier/internal/profile"
	"github.com/kestrelhq/dossier/plugin/provider"
	taskerrors "github.com/kestrelhq/dossier/internal/errors"
	"github.com/kestrelhq/dossier/server/taskreg"
	"github.com/kestrelhq/dossier/store/cache"
)

// stubKnowledge serves canned task responses keyed by task name. A task may
// have a sequence of responses (consumed one per attempt) on top of its
// steady-state response.
type stubKnowledge struct {
	mu        sync.Mutex
	calls     map[string]int
	responses map[string]string
	sequences map[string][]string
	errs      map[string]error
}

func newStubKnowledge(responses map[string]string) *stubKnowledge {
	return &stubKnowledge{
		calls:     map[string]int{},
		responses: responses,
		sequences: map[string][]string{},
		errs:      map[string]error{},
	}
}

func (s *stubKnowledge) Name() string     { return "stub-knowledge" }
func (s *stubKnowledge) Configured() bool { return true }

func (s *stubKnowledge) Query(_ context.Context, req *provider.Request) (*provider.Response, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls[req.Identifier]++
	if err, ok := s.errs[req.Identifier]; ok {
		return nil, err
	}
	text := s.responses[req.Identifier]
	if seq := s.sequences[req.Identifier]; len(seq) > 0 {
		text = seq[0]
		s.sequences[req.Identifier] = seq[1:]
	}
	return &provider.Response{
		Success:          true,
		Text:             text,
		PromptTokens:     10,
		CompletionTokens: 20,
		UnitsConsumed:    30,
	}, nil
}

func (s *stubKnowledge) callCount(task string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[task]
}

func (s *stubKnowledge) totalCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	total := 0
	for _, n := range s.calls {
		total += n
	}
	return total
}

// stubPrimary serves canned structured payloads keyed by capability.
type stubPrimary struct {
	mu         sync.Mutex
	configured bool
	data       map[string]json.RawMessage
	errs       map[string]error
	calls      map[string]int
}

func newStubPrimary(data map[string]json.RawMessage) *stubPrimary {
	return &stubPrimary{configured: true, data: data, errs: map[string]error{}, calls: map[string]int{}}
}

func (s *stubPrimary) Name() string     { return "stub-primary" }
func (s *stubPrimary) Configured() bool { return s.configured }

func (s *stubPrimary) Query(_ context.Context, req *provider.Request) (*provider.Response, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls[req.Capability]++
	if err, ok := s.errs[req.Capability]; ok {
		return nil, err
	}
	return &provider.Response{Success: true, Data: s.data[req.Capability], UnitsConsumed: 1}, nil
}

func goodCompanyResponses() map[string]string {
	return map[string]string{
		"company.domain":             `{"domain": "acme.com"}`,
		"company.financials":         `{"isPublic": true, "ticker": "ACME", "marketCap": 1000000000, "employeeCount": 1200}`,
		"company.news":               `{"items": [{"headline": "Acme ships v2", "date": "2026-08-01", "source": "TechWire", "url": null, "summary": "major release"}]}`,
		"company.growth":             `{"events": [{"type": "launch", "date": "2026-05-01", "description": "v2 launch", "source": null}]}`,
		"company.risk":               `{"signals": []}`,
		"company.industry":           `{"industry": "Software", "competitors": ["Globex"]}`,
		"company.private_financials": `{"totalRaised": 12000000, "lastRound": {"type": "Series A", "amount": 12000000, "date": "2024-05-01", "source": "TechCrunch", "sourceUrl": "https://techcrunch.com/acme"}, "investors": ["North Fund"], "estimatedRevenue": null, "verified": true}`,
		"company.tech_stack_fallback": `{"technologies": [{"name": "Go", "category": "language"}]}`,
		"company.contacts_fallback":   `{"contacts": [{"name": "Ana Ruiz", "title": "CEO", "linkedinUrl": "https://linkedin.com/in/ana-ruiz"}]}`,
		"company.org_fallback":        `{"headquarters": "Berlin", "founded": 2015}`,
		"company.synthesis":           `{"summary": "Acme is growing", "talkingPoints": ["v2 launch"], "redFlags": []}`,
		"company.activity":            `{"events": []}`,
	}
}

func goodPersonResponses() map[string]string {
	return map[string]string{
		"person.profile":      `{"fullName": "Jo Ward", "linkedinUrl": "https://linkedin.com/in/jo-ward"}`,
		"person.career":       `{"currentRole": "CTO", "history": []}`,
		"person.publications": `{"speakingEngagements": ["DevConf 2025"], "articles": [], "awards": [], "mediaMentions": []}`,
		"person.social":       `{"recentActivity": "Shipped v2", "topics": ["go"], "engagementLevel": "high"}`,
		"person.education":    `{"degrees": ["BSc"], "institutions": ["TU Berlin"]}`,
	}
}

func testProfile() *profile.Profile {
	return &profile.Profile{
		Mode:                       "dev",
		Driver:                     "none",
		CacheTTL:                   time.Hour,
		PendingTimeout:             time.Minute,
		SchemaVersion:              3,
		MaxAttempts:                2,
		FabricationSignalThreshold: 2,
		FailFastBatches:            []string{"company.batch1"},
	}
}

func newTestOrchestrator(t *testing.T, knowledge provider.Adapter, primary provider.Adapter, prof *profile.Profile) *Orchestrator {
	t.Helper()
	return newTestOrchestratorWithLogs(t, knowledge, primary, prof, io.Discard)
}

func newTestOrchestratorWithLogs(t *testing.T, knowledge provider.Adapter, primary provider.Adapter, prof *profile.Profile, logs io.Writer) *Orchestrator {
	t.Helper()
	svc := cache.NewService(cache.ServiceConfig{
		Capacity:       100,
		DefaultTTL:     prof.CacheTTL,
		PendingTimeout: prof.PendingTimeout,
		SchemaVersion:  prof.SchemaVersion,
	}, nil)
	t.Cleanup(svc.Close)

	o := New(Config{
		Registry:  taskreg.NewRegistry(),
		Knowledge: knowledge,
		Primary:   primary,
		Cache:     svc,
		Profile:   prof,
		Logger:    slog.New(slog.NewTextHandler(logs, nil)),
	})
	o.retryDelay = time.Millisecond
	return o
}

func TestExecuteTask(t *testing.T) {
	t.Run("UnknownTaskIsBuildFailure", func(t *testing.T) {
		knowledge := newStubKnowledge(nil)
		o := newTestOrchestrator(t, knowledge, nil, testProfile())

		res, err := o.ExecuteTask(context.Background(), "company.nonexistent", taskreg.Args{Name: "Acme"})
		require.Error(t, err)
		assert.True(t, taskerrors.IsCode(err, taskerrors.ErrCodeTaskBuildFailed))
		assert.False(t, res.Success)
		assert.Equal(t, 0, knowledge.totalCalls())
	})

	t.Run("MissingArgsIsBuildFailure", func(t *testing.T) {
		knowledge := newStubKnowledge(nil)
		o := newTestOrchestrator(t, knowledge, nil, testProfile())

		_, err := o.ExecuteTask(context.Background(), "company.financials", taskreg.Args{})
		require.Error(t, err)
		assert.True(t, taskerrors.IsCode(err, taskerrors.ErrCodeTaskBuildFailed))
		assert.Equal(t, 0, knowledge.totalCalls())
	})

	t.Run("RetriesParseFailureThenSucceeds", func(t *testing.T) {
		knowledge := newStubKnowledge(goodCompanyResponses())
		knowledge.sequences["company.financials"] = []string{"this is not json at all"}
		o := newTestOrchestrator(t, knowledge, nil, testProfile())

		res, err := o.ExecuteTask(context.Background(), "company.financials", taskreg.Args{Name: "Acme"})
		require.NoError(t, err)
		assert.True(t, res.Success)
		assert.Equal(t, 2, res.Attempts)
		assert.Equal(t, 2, knowledge.callCount("company.financials"))
		// Usage accumulates across attempts, failed ones included.
		assert.Equal(t, 60, res.Usage.Units)
	})

	t.Run("RetriesValidationFailure", func(t *testing.T) {
		knowledge := newStubKnowledge(goodCompanyResponses())
		knowledge.sequences["company.financials"] = []string{`{"ticker": "ACME"}`}
		o := newTestOrchestrator(t, knowledge, nil, testProfile())

		res, err := o.ExecuteTask(context.Background(), "company.financials", taskreg.Args{Name: "Acme"})
		require.NoError(t, err)
		assert.Equal(t, 2, res.Attempts)
	})

	t.Run("ExhaustedRetriesSurfaceExecutionFailure", func(t *testing.T) {
		knowledge := newStubKnowledge(map[string]string{"company.financials": "garbage every time"})
		o := newTestOrchestrator(t, knowledge, nil, testProfile())

		res, err := o.ExecuteTask(context.Background(), "company.financials", taskreg.Args{Name: "Acme"})
		require.Error(t, err)
		assert.True(t, taskerrors.IsCode(err, taskerrors.ErrCodeTaskExecutionFailed))
		assert.Equal(t, 2, res.Attempts)
		assert.Contains(t, err.Error(), "company.financials")
	})

	t.Run("ProviderUnavailableIsNotRetried", func(t *testing.T) {
		knowledge := newStubKnowledge(nil)
		knowledge.errs["company.financials"] = taskerrors.ProviderUnavailable("stub-knowledge")
		o := newTestOrchestrator(t, knowledge, nil, testProfile())

		_, err := o.ExecuteTask(context.Background(), "company.financials", taskreg.Args{Name: "Acme"})
		require.Error(t, err)
		assert.Equal(t, 1, knowledge.callCount("company.financials"))
	})
}

func TestAnalyzeCompany(t *testing.T) {
	t.Run("FullAssembly", func(t *testing.T) {
		knowledge := newStubKnowledge(goodCompanyResponses())
		primary := newStubPrimary(map[string]json.RawMessage{
			provider.CapTechnologyStack:   json.RawMessage(`{"technologies": [{"name": "Kubernetes"}]}`),
			provider.CapExecutiveContacts: json.RawMessage(`{"contacts": [{"name": "Ana Ruiz"}]}`),
			provider.CapOrganization:      json.RawMessage(`{"headcount": 1200}`),
		})
		o := newTestOrchestrator(t, knowledge, primary, testProfile())

		res, err := o.AnalyzeCompany(context.Background(), "Acme Corp")
		require.NoError(t, err)
		require.True(t, res.Success)
		assert.False(t, res.Cached)
		assert.Equal(t, "Acme Corp", res.Data.CompanyName)
		assert.Equal(t, "acme.com", res.Data.Domain)
		assert.JSONEq(t, `{"technologies": [{"name": "Kubernetes"}]}`, string(res.Data.TechStack))
		assert.Equal(t, 3, res.Data.Metadata.SchemaVersion)
		assert.ElementsMatch(t, []string{"knowledge", "primary"}, res.Data.Metadata.Sources)
		// Public company carries no funding section.
		assert.Nil(t, res.Data.Funding)
		assert.Equal(t, 0, knowledge.callCount("company.private_financials"))
		// Primary data means no knowledge fallbacks fired.
		assert.Equal(t, 0, knowledge.callCount("company.tech_stack_fallback"))
		assert.NotZero(t, res.Usage.Units)
		assert.NotZero(t, res.CostBreakdown["company.financials"])
	})

	t.Run("SecondCallServedFromCache", func(t *testing.T) {
		knowledge := newStubKnowledge(goodCompanyResponses())
		o := newTestOrchestrator(t, knowledge, nil, testProfile())

		_, err := o.AnalyzeCompany(context.Background(), "Acme Corp")
		require.NoError(t, err)
		calls := knowledge.totalCalls()

		res, err := o.AnalyzeCompany(context.Background(), "Acme Corp")
		require.NoError(t, err)
		assert.True(t, res.Cached)
		assert.Equal(t, calls, knowledge.totalCalls())
	})

	t.Run("FailFastLeavesNothingCached", func(t *testing.T) {
		knowledge := newStubKnowledge(goodCompanyResponses())
		knowledge.responses["company.risk"] = "never valid"
		knowledge.sequences["company.risk"] = nil
		o := newTestOrchestrator(t, knowledge, nil, testProfile())

		_, err := o.AnalyzeCompany(context.Background(), "Acme Corp")
		require.Error(t, err)

		_, ok := o.cache.Get(context.Background(), cache.CompanyKey("Acme Corp"))
		assert.False(t, ok)
		assert.Equal(t, 0, o.cache.PendingCount())
	})

	t.Run("TolerantCoreBatchUsesDefaults", func(t *testing.T) {
		knowledge := newStubKnowledge(goodCompanyResponses())
		knowledge.responses["company.risk"] = "never valid"
		prof := testProfile()
		prof.FailFastBatches = nil
		o := newTestOrchestrator(t, knowledge, nil, prof)

		res, err := o.AnalyzeCompany(context.Background(), "Acme Corp")
		require.NoError(t, err)
		assert.JSONEq(t, string(defaultRisk), string(res.Data.Risk))
		// The other sections are real data, not defaults.
		assert.Contains(t, string(res.Data.News), "Acme ships v2")
	})

	t.Run("FinancialsFailureAbortsEvenWhenTolerant", func(t *testing.T) {
		knowledge := newStubKnowledge(goodCompanyResponses())
		knowledge.responses["company.financials"] = "never valid"
		prof := testProfile()
		prof.FailFastBatches = nil
		o := newTestOrchestrator(t, knowledge, nil, prof)

		_, err := o.AnalyzeCompany(context.Background(), "Acme Corp")
		require.Error(t, err)
	})

	t.Run("FailedSynthesisBatchTaskUsesDefault", func(t *testing.T) {
		knowledge := newStubKnowledge(goodCompanyResponses())
		knowledge.responses["company.activity"] = "never valid"
		o := newTestOrchestrator(t, knowledge, nil, testProfile())

		res, err := o.AnalyzeCompany(context.Background(), "Acme Corp")
		require.NoError(t, err)
		assert.True(t, res.Success)
		assert.JSONEq(t, string(defaultActivity), string(res.Data.Activity))
		assert.Contains(t, string(res.Data.Intelligence), "Acme is growing")
	})

	t.Run("PrivateCompanyFundingKept", func(t *testing.T) {
		knowledge := newStubKnowledge(goodCompanyResponses())
		knowledge.responses["company.financials"] = `{"isPublic": false, "employeeCount": 80}`
		o := newTestOrchestrator(t, knowledge, nil, testProfile())

		res, err := o.AnalyzeCompany(context.Background(), "Acme Corp")
		require.NoError(t, err)
		assert.Contains(t, string(res.Data.Funding), "TechCrunch")
	})

	t.Run("BelowThresholdFundingSignalsAreLogged", func(t *testing.T) {
		knowledge := newStubKnowledge(goodCompanyResponses())
		knowledge.responses["company.financials"] = `{"isPublic": false, "employeeCount": 80}`
		// One signal (missing source URL) stays under the threshold of two.
		knowledge.responses["company.private_financials"] = `{"totalRaised": 12000000, "lastRound": {"type": "Series A", "amount": 12000000, "date": "2024-05-01", "source": "TechCrunch", "sourceUrl": null}, "investors": ["North Fund"], "estimatedRevenue": null, "verified": true}`
		var logs bytes.Buffer
		o := newTestOrchestratorWithLogs(t, knowledge, nil, testProfile(), &logs)

		res, err := o.AnalyzeCompany(context.Background(), "Acme Corp")
		require.NoError(t, err)
		assert.Contains(t, string(res.Data.Funding), "TechCrunch")
		assert.NotContains(t, string(res.Data.Funding), "not disclosed")
		assert.Contains(t, logs.String(), "kept with fabrication signals below threshold")
		assert.Contains(t, logs.String(), "missing or placeholder source URL")
	})

	t.Run("FabricatedFundingDowngradedToSentinels", func(t *testing.T) {
		knowledge := newStubKnowledge(goodCompanyResponses())
		knowledge.responses["company.financials"] = `{"isPublic": false}`
		knowledge.responses["company.private_financials"] = `{"totalRaised": 600000000, "lastRound": {"type": "Series F", "amount": 600000000, "date": "2024-01-15", "source": "press", "sourceUrl": null}, "investors": [], "estimatedRevenue": null, "verified": false}`
		o := newTestOrchestrator(t, knowledge, nil, testProfile())

		res, err := o.AnalyzeCompany(context.Background(), "Acme Corp")
		require.NoError(t, err)
		assert.Contains(t, string(res.Data.Funding), "not disclosed")
		assert.NotContains(t, string(res.Data.Funding), "600000000")
	})

	t.Run("UnconfiguredPrimaryFallsBackToKnowledge", func(t *testing.T) {
		knowledge := newStubKnowledge(goodCompanyResponses())
		primary := newStubPrimary(nil)
		primary.configured = false
		o := newTestOrchestrator(t, knowledge, primary, testProfile())

		res, err := o.AnalyzeCompany(context.Background(), "Acme Corp")
		require.NoError(t, err)
		assert.Equal(t, 1, knowledge.callCount("company.tech_stack_fallback"))
		assert.Contains(t, string(res.Data.Contacts), "Ana Ruiz")
		assert.Equal(t, []string{"knowledge"}, res.Data.Metadata.Sources)
	})

	t.Run("EmptyPrimaryResponseFallsBack", func(t *testing.T) {
		knowledge := newStubKnowledge(goodCompanyResponses())
		primary := newStubPrimary(map[string]json.RawMessage{
			provider.CapTechnologyStack:   json.RawMessage(`{}`),
			provider.CapExecutiveContacts: json.RawMessage(`null`),
			provider.CapOrganization:      json.RawMessage(`{"headcount": 1200}`),
		})
		o := newTestOrchestrator(t, knowledge, primary, testProfile())

		res, err := o.AnalyzeCompany(context.Background(), "Acme Corp")
		require.NoError(t, err)
		assert.Equal(t, 1, knowledge.callCount("company.tech_stack_fallback"))
		assert.Equal(t, 1, knowledge.callCount("company.contacts_fallback"))
		assert.Equal(t, 0, knowledge.callCount("company.org_fallback"))
		assert.Contains(t, string(res.Data.TechStack), "Go")
	})

	t.Run("ConcurrentCallsCoalesce", func(t *testing.T) {
		knowledge := newStubKnowledge(goodCompanyResponses())
		o := newTestOrchestrator(t, knowledge, nil, testProfile())

		var wg sync.WaitGroup
		results := make([]*CompanyResult, 4)
		errs := make([]error, 4)
		for i := 0; i < 4; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				results[i], errs[i] = o.AnalyzeCompany(context.Background(), "Acme Corp")
			}(i)
		}
		wg.Wait()

		for i := 0; i < 4; i++ {
			require.NoError(t, errs[i])
			assert.Equal(t, "acme.com", results[i].Data.Domain)
		}
		// Exactly one assembly ran: one domain resolution, no matter how many callers.
		assert.Equal(t, 1, knowledge.callCount("company.domain"))
	})
}

func TestAnalyzePerson(t *testing.T) {
	t.Run("FullAssembly", func(t *testing.T) {
		knowledge := newStubKnowledge(goodPersonResponses())
		o := newTestOrchestrator(t, knowledge, nil, testProfile())

		res, err := o.AnalyzePerson(context.Background(), "Jo Ward", "CTO", "Acme Corp")
		require.NoError(t, err)
		require.True(t, res.Success)
		assert.Equal(t, "Jo Ward", res.Data.Name)
		assert.Contains(t, string(res.Data.Profile), "jo-ward")
		assert.Contains(t, string(res.Data.ThoughtLeadership), "DevConf 2025")
		assert.Equal(t, 3, res.Data.Metadata.SchemaVersion)
	})

	t.Run("FailedSectionGetsDefault", func(t *testing.T) {
		knowledge := newStubKnowledge(goodPersonResponses())
		knowledge.responses["person.career"] = "never valid"
		o := newTestOrchestrator(t, knowledge, nil, testProfile())

		res, err := o.AnalyzePerson(context.Background(), "Jo Ward", "CTO", "Acme Corp")
		require.NoError(t, err)
		assert.JSONEq(t, string(defaultCareer), string(res.Data.Career))
		assert.Contains(t, string(res.Data.Education), "TU Berlin")
	})

	t.Run("ThoughtLeadershipRecoveredFromSocial", func(t *testing.T) {
		knowledge := newStubKnowledge(goodPersonResponses())
		knowledge.responses["person.publications"] = `{"speakingEngagements": [], "articles": [], "awards": [], "mediaMentions": []}`
		knowledge.responses["person.social"] = `{"recentActivity": "Jo spoke at DevConf 2026 about platform reliability. Won the CTO of the Year award. Featured in TechWire's infrastructure issue.", "topics": [], "engagementLevel": "medium"}`
		o := newTestOrchestrator(t, knowledge, nil, testProfile())

		res, err := o.AnalyzePerson(context.Background(), "Jo Ward", "CTO", "Acme Corp")
		require.NoError(t, err)

		var tl thoughtLeadership
		require.NoError(t, json.Unmarshal(res.Data.ThoughtLeadership, &tl))
		assert.Len(t, tl.SpeakingEngagements, 1)
		assert.Len(t, tl.Awards, 1)
		assert.Len(t, tl.MediaMentions, 1)
	})

	t.Run("CachedByNameAndCompany", func(t *testing.T) {
		knowledge := newStubKnowledge(goodPersonResponses())
		o := newTestOrchestrator(t, knowledge, nil, testProfile())

		_, err := o.AnalyzePerson(context.Background(), "Jo Ward", "CTO", "Acme Corp")
		require.NoError(t, err)
		calls := knowledge.totalCalls()

		res, err := o.AnalyzePerson(context.Background(), "Jo Ward", "CTO", "Acme Corp")
		require.NoError(t, err)
		assert.True(t, res.Cached)
		assert.Equal(t, calls, knowledge.totalCalls())

		// Same name at a different company is a different entity.
		_, err = o.AnalyzePerson(context.Background(), "Jo Ward", "CTO", "Globex")
		require.NoError(t, err)
		assert.Greater(t, knowledge.totalCalls(), calls)
	})
}

func TestDeriveDomain(t *testing.T) {
	assert.Equal(t, "acmecorp.com", deriveDomain("Acme Corp"))
	assert.Equal(t, "acmecorp.com", deriveDomain("Acme, Corp!"))
	assert.Equal(t, "42signals.com", deriveDomain("42 Signals"))
	assert.Equal(t, "", deriveDomain("!!!"))
}

func TestExtractLeadershipSignals(t *testing.T) {
	tl := extractLeadershipSignals("Gave the keynote at CloudSummit; quoted in the Register. Nothing else of note")
	assert.Len(t, tl.SpeakingEngagements, 1)
	assert.Len(t, tl.MediaMentions, 1)
	assert.Empty(t, tl.Awards)
}
