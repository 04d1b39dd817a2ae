package orchestrator

import (
	"context"
	"encoding/json"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/lithammer/shortuuid/v4"

	"github.com/kestrelhq/dossier/internal/profile"
	"github.com/kestrelhq/dossier/plugin/provider"
	"github.com/kestrelhq/dossier/server/extract"
	taskerrors "github.com/kestrelhq/dossier/internal/errors"
	"github.com/kestrelhq/dossier/server/internal/observability"
	"github.com/kestrelhq/dossier/server/taskreg"
	"github.com/kestrelhq/dossier/store"
	"github.com/kestrelhq/dossier/store/cache"
)

const (
	sourceKnowledge = "knowledge"
	sourcePrimary   = "primary"

	baseRetryDelay = 500 * time.Millisecond
)

// Orchestrator drives task execution and record assembly. It owns no
// goroutines of its own; all concurrency is scoped to a single analysis call.
type Orchestrator struct {
	registry  *taskreg.Registry
	knowledge provider.Adapter
	primary   provider.Adapter
	cache     *cache.Service
	store     *store.Store
	profile   *profile.Profile
	logger    *slog.Logger

	// retryDelay is overridable in tests to keep backoff out of the clock.
	retryDelay time.Duration
}

type Config struct {
	Registry  *taskreg.Registry
	Knowledge provider.Adapter
	Primary   provider.Adapter
	Cache     *cache.Service
	Store     *store.Store
	Profile   *profile.Profile
	Logger    *slog.Logger
}

func New(cfg Config) *Orchestrator {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{
		registry:   cfg.Registry,
		knowledge:  cfg.Knowledge,
		primary:    cfg.Primary,
		cache:      cfg.Cache,
		store:      cfg.Store,
		profile:    cfg.Profile,
		logger:     logger,
		retryDelay: baseRetryDelay,
	}
}

// ExecuteTask runs a registered task against the knowledge adapter with
// bounded retries. Parse and validation failures are retried; build
// failures, provider unavailability, and cancellation are not.
func (o *Orchestrator) ExecuteTask(ctx context.Context, name string, args taskreg.Args) (*TaskResult, error) {
	result := &TaskResult{Source: sourceKnowledge}

	spec, rerr := o.registry.Get(name)
	if rerr != nil {
		err := taskerrors.Wrap(rerr, taskerrors.ErrCodeTaskBuildFailed, "resolving task").WithTask(name)
		result.ErrMessage = err.Error()
		return result, err
	}
	prompt, err := spec.BuildPrompt(args)
	if err != nil {
		werr := taskerrors.Wrap(err, taskerrors.ErrCodeTaskBuildFailed, "building prompt").WithTask(name)
		result.ErrMessage = werr.Error()
		return result, werr
	}

	maxAttempts := o.profile.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if attempt > 0 {
			delay := time.Duration(math.Pow(2, float64(attempt-1))) * o.retryDelay
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				cerr := taskerrors.ContextCanceled(ctx.Err()).WithTask(name)
				result.ErrMessage = cerr.Error()
				return result, cerr
			}
		}
		result.Attempts = attempt + 1

		data, usage, aerr := o.attemptTask(ctx, spec, name, prompt)
		result.Usage.add(usage)
		if aerr == nil {
			result.Success = true
			result.Data = data
			return result, nil
		}
		lastErr = aerr
		o.logTaskFailure(ctx, name, attempt+1, aerr)
		if !taskerrors.IsRetryable(aerr) {
			break
		}
	}

	ferr := taskerrors.Wrap(lastErr, taskerrors.ErrCodeTaskExecutionFailed, "task failed after retries").WithTask(name)
	result.ErrMessage = ferr.Error()
	return result, ferr
}

func (o *Orchestrator) attemptTask(ctx context.Context, spec *taskreg.Spec, name, prompt string) (json.RawMessage, Usage, error) {
	resp, err := o.knowledge.Query(ctx, &provider.Request{
		Identifier:   name,
		Prompt:       prompt,
		Instructions: spec.Instructions,
		MaxTokens:    spec.MaxTokens,
		Temperature:  spec.Temperature,
		Search:       spec.Search,
	})
	usage := Usage{}
	if resp != nil {
		usage = Usage{
			PromptTokens:     resp.PromptTokens,
			CompletionTokens: resp.CompletionTokens,
			TotalTokens:      resp.PromptTokens + resp.CompletionTokens,
			Units:            resp.UnitsConsumed,
		}
	}
	if err != nil {
		return nil, usage, err
	}
	data, err := extract.Structure(resp.Text)
	if err != nil {
		return nil, usage, err
	}
	if report := extract.Validate(data, name); !report.Valid {
		return nil, usage, taskerrors.ValidationFailed(strings.Join(report.Errors, "; ")).WithTask(name)
	}
	return data, usage, nil
}

func (o *Orchestrator) logTaskFailure(ctx context.Context, name string, attempt int, err error) {
	attrs := []slog.Attr{
		slog.String(observability.LogFieldTask, name),
		slog.Int(observability.LogFieldAttempt, attempt),
		slog.String(observability.LogFieldErrorCode, string(taskerrors.CodeOf(err, taskerrors.ErrCodeTaskExecutionFailed))),
	}
	if rc, ok := observability.FromContext(ctx); ok {
		rc.Warn("task attempt failed", append(attrs, slog.String("error", err.Error()))...)
		return
	}
	o.logger.LogAttrs(ctx, slog.LevelWarn, "task attempt failed",
		append(attrs, slog.String("error", err.Error()))...)
}

// executePrimary queries the structured primary-source adapter for one
// capability. The caller decides whether an error or empty response
// triggers a knowledge fallback.
func (o *Orchestrator) executePrimary(ctx context.Context, capability, identifier string) (*TaskResult, error) {
	result := &TaskResult{Attempts: 1, Source: sourcePrimary}
	if o.primary == nil || !o.primary.Configured() {
		err := taskerrors.ProviderUnavailable(o.primaryName())
		result.ErrMessage = err.Error()
		return result, err
	}
	resp, err := o.primary.Query(ctx, &provider.Request{
		Identifier: identifier,
		Capability: capability,
	})
	if resp != nil {
		result.Usage.Units = resp.UnitsConsumed
	}
	if err != nil {
		result.ErrMessage = err.Error()
		return result, err
	}
	result.Success = true
	if !resp.Empty() {
		result.Data = resp.Data
	}
	return result, nil
}

func (o *Orchestrator) primaryName() string {
	if o.primary == nil {
		return "primary"
	}
	return o.primary.Name()
}

// recordAudit persists one audit row per completed task. Audit failures
// never fail an analysis.
func (o *Orchestrator) recordAudit(ctx context.Context, runID, cacheKey, task, source string, units int) {
	if o.store == nil {
		return
	}
	_, err := o.store.CreateAuditEntry(ctx, &store.AuditEntry{
		RunID:     runID,
		CacheKey:  cacheKey,
		TaskName:  task,
		Source:    source,
		Units:     units,
		CreatedTs: time.Now().Unix(),
	})
	if err != nil {
		o.logger.Warn("audit write failed",
			slog.String(observability.LogFieldTask, task),
			slog.String(observability.LogFieldCacheKey, cacheKey),
			slog.String("error", err.Error()))
	}
}

func newRunID() string {
	return shortuuid.New()
}
