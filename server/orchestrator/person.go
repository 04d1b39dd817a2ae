package orchestrator

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"sync"
	"time"

	taskerrors "github.com/kestrelhq/dossier/internal/errors"
	"github.com/kestrelhq/dossier/server/internal/observability"
	"github.com/kestrelhq/dossier/server/taskreg"
	"github.com/kestrelhq/dossier/store/cache"
)

// AnalyzePerson assembles the person record. All five sections are tolerant:
// a failed task yields its default, never an aborted analysis.
func (o *Orchestrator) AnalyzePerson(ctx context.Context, name, title, company string) (*PersonResult, error) {
	rc := observability.NewRequestContext(o.logger, "person", name)
	ctx = observability.WithRequestContext(ctx, rc)
	key := cache.PersonKey(name, company)

	if res, ok := o.cachedPerson(ctx, rc, key); ok {
		return res, nil
	}

	pending, owner := o.cache.RegisterPending(key)
	if !owner {
		payload, err := pending.Wait(ctx)
		if err != nil {
			return nil, err
		}
		var analysis PersonAnalysis
		if uerr := json.Unmarshal(payload, &analysis); uerr != nil {
			return nil, taskerrors.Wrap(uerr, taskerrors.ErrCodeResponseParseFailed, "decoding coalesced record")
		}
		rc.Info("served from coalesced request", slog.String(observability.LogFieldCacheKey, key))
		return &PersonResult{Success: true, Data: &analysis, Cached: true}, nil
	}

	// A previous owner may have completed between the first lookup and this
	// registration; serve its record instead of fetching again.
	if payload, ok := o.cache.Get(ctx, key); ok && o.cache.ValidatePersonRecord(payload).Valid {
		var analysis PersonAnalysis
		if json.Unmarshal(payload, &analysis) == nil {
			o.cache.ClearPending(key, payload, nil)
			return &PersonResult{Success: true, Data: &analysis, Cached: true}, nil
		}
	}

	res := o.assemblePerson(ctx, rc, key, name, title, company)
	payload, merr := json.Marshal(res.Data)
	if merr != nil {
		err := taskerrors.Wrap(merr, taskerrors.ErrCodeTaskExecutionFailed, "encoding person record")
		o.cache.ClearPending(key, nil, err)
		return nil, err
	}
	o.cache.Set(ctx, key, payload, o.profile.CacheTTL)
	o.cache.ClearPending(key, payload, nil)
	rc.Info("person analysis complete",
		slog.String(observability.LogFieldCacheKey, key),
		slog.Int64(observability.LogFieldDuration, rc.DurationMs()),
		slog.Int("units", res.Usage.Units))
	return res, nil
}

func (o *Orchestrator) cachedPerson(ctx context.Context, rc *observability.RequestContext, key string) (*PersonResult, bool) {
	payload, ok := o.cache.Get(ctx, key)
	if !ok {
		return nil, false
	}
	if report := o.cache.ValidatePersonRecord(payload); !report.Valid {
		rc.Warn("purging invalid cached record",
			slog.String(observability.LogFieldCacheKey, key),
			slog.String("reasons", strings.Join(report.Errors, "; ")))
		if err := o.cache.DeleteFromAllSources(ctx, key); err != nil {
			rc.Error("cache purge failed", err, slog.String(observability.LogFieldCacheKey, key))
		}
		return nil, false
	}
	var analysis PersonAnalysis
	if err := json.Unmarshal(payload, &analysis); err != nil {
		return nil, false
	}
	rc.Info("served from cache", slog.String(observability.LogFieldCacheKey, key))
	return &PersonResult{Success: true, Data: &analysis, Cached: true}, true
}

func (o *Orchestrator) assemblePerson(ctx context.Context, rc *observability.RequestContext, key, name, title, company string) *PersonResult {
	runID := newRunID()
	args := taskreg.Args{Name: name, Title: title, Company: company}

	usage := Usage{}
	sources := map[string]bool{}
	var mu sync.Mutex
	account := func(task string, res *TaskResult) {
		mu.Lock()
		usage.add(res.Usage)
		if res.Success {
			sources[res.Source] = true
		}
		mu.Unlock()
		o.recordAudit(ctx, runID, key, task, res.Source, res.Usage.Units)
	}

	sections := map[string]json.RawMessage{}
	items := []struct {
		task string
		def  json.RawMessage
	}{
		{"person.profile", defaultPersonProfile},
		{"person.career", defaultCareer},
		{"person.publications", defaultThoughtLeadership},
		{"person.social", defaultSocial},
		{"person.education", defaultEducation},
	}

	var wg sync.WaitGroup
	for _, it := range items {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := o.ExecuteTask(ctx, it.task, args)
			account(it.task, res)
			data := it.def
			if err == nil {
				data = res.Data
			} else {
				rc.Warn("person task failed, using default",
					slog.String(observability.LogFieldTask, it.task))
			}
			mu.Lock()
			sections[it.task] = data
			mu.Unlock()
		}()
	}
	wg.Wait()

	leadership := o.recoverThoughtLeadership(rc, sections["person.publications"], sections["person.social"])

	analysis := &PersonAnalysis{
		Name:              name,
		Title:             title,
		Company:           company,
		Profile:           sections["person.profile"],
		Career:            sections["person.career"],
		ThoughtLeadership: leadership,
		Social:            sections["person.social"],
		Education:         sections["person.education"],
		Metadata: Metadata{
			SchemaVersion: o.profile.SchemaVersion,
			Sources:       sortedSources(sources),
			GeneratedAt:   time.Now().UTC(),
		},
	}
	return &PersonResult{Success: true, Data: analysis, Usage: usage}
}

type thoughtLeadership struct {
	SpeakingEngagements []string `json:"speakingEngagements"`
	Articles            []string `json:"articles"`
	Awards              []string `json:"awards"`
	MediaMentions       []string `json:"mediaMentions"`
}

func (t *thoughtLeadership) empty() bool {
	return len(t.SpeakingEngagements) == 0 && len(t.Articles) == 0 &&
		len(t.Awards) == 0 && len(t.MediaMentions) == 0
}

// recoverThoughtLeadership backfills an empty publications section from the
// social section's free-text activity. A sentence mentioning a talk, award or
// press feature is good enough to keep the section from going out blank.
func (o *Orchestrator) recoverThoughtLeadership(rc *observability.RequestContext, publications, social json.RawMessage) json.RawMessage {
	var tl thoughtLeadership
	if err := json.Unmarshal(publications, &tl); err != nil {
		return publications
	}
	if !tl.empty() {
		return publications
	}

	var soc struct {
		RecentActivity string `json:"recentActivity"`
	}
	if json.Unmarshal(social, &soc) != nil || soc.RecentActivity == "" {
		return publications
	}

	recovered := extractLeadershipSignals(soc.RecentActivity)
	if recovered.empty() {
		return publications
	}
	rc.Info("thought leadership recovered from social activity",
		slog.Int("speaking", len(recovered.SpeakingEngagements)),
		slog.Int("awards", len(recovered.Awards)),
		slog.Int("media", len(recovered.MediaMentions)))
	out, err := json.Marshal(&recovered)
	if err != nil {
		return publications
	}
	return out
}

var (
	speakingKeywords = []string{"spoke at", "speaker", "keynote", "panelist", "panel at", "presented at"}
	awardKeywords    = []string{"award", "prize", "winner", "honored", "recognized as"}
	mediaKeywords    = []string{"featured in", "interviewed", "quoted in", "profiled in"}
)

// extractLeadershipSignals scans free text sentence by sentence for speaking,
// award and media mentions.
func extractLeadershipSignals(text string) thoughtLeadership {
	tl := thoughtLeadership{
		SpeakingEngagements: []string{},
		Articles:            []string{},
		Awards:              []string{},
		MediaMentions:       []string{},
	}
	for _, sentence := range splitSentences(text) {
		lower := strings.ToLower(sentence)
		switch {
		case containsAny(lower, speakingKeywords):
			tl.SpeakingEngagements = append(tl.SpeakingEngagements, sentence)
		case containsAny(lower, awardKeywords):
			tl.Awards = append(tl.Awards, sentence)
		case containsAny(lower, mediaKeywords):
			tl.MediaMentions = append(tl.MediaMentions, sentence)
		}
	}
	return tl
}

func splitSentences(text string) []string {
	parts := strings.FieldsFunc(text, func(r rune) bool {
		return r == '.' || r == ';' || r == '\n'
	})
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if s := strings.TrimSpace(p); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func containsAny(s string, keywords []string) bool {
	for _, k := range keywords {
		if strings.Contains(s, k) {
			return true
		}
	}
	return false
}
