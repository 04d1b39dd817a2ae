package provider

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/sashabaranov/go-openai"
	"golang.org/x/time/rate"

	taskerrors "github.com/kestrelhq/dossier/internal/errors"
)

// KnowledgeConfig configures the web-search-augmented knowledge adapter.
type KnowledgeConfig struct {
	APIKey      string
	BaseURL     string
	Model       string
	CallTimeout time.Duration
	// RequestsPerSecond caps the outbound call rate; burst is twice the rate.
	RequestsPerSecond float64
}

// DefaultKnowledgeConfig returns the default adapter configuration.
func DefaultKnowledgeConfig() *KnowledgeConfig {
	return &KnowledgeConfig{
		BaseURL:           "https://api.openai.com/v1",
		Model:             "gpt-4o-mini-search-preview",
		CallTimeout:       60 * time.Second,
		RequestsPerSecond: 5,
	}
}

// KnowledgeAdapter queries a general-purpose, web-search-augmented provider.
// Output is free text the caller must parse into structure.
type KnowledgeAdapter struct {
	client  *openai.Client
	config  *KnowledgeConfig
	limiter *rate.Limiter
}

// NewKnowledgeAdapter creates the adapter. A missing API key is allowed;
// the adapter then reports itself unconfigured and refuses queries.
func NewKnowledgeAdapter(cfg *KnowledgeConfig) *KnowledgeAdapter {
	if cfg == nil {
		cfg = DefaultKnowledgeConfig()
	}
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = 60 * time.Second
	}
	if cfg.RequestsPerSecond <= 0 {
		cfg.RequestsPerSecond = 5
	}

	clientConfig := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientConfig.BaseURL = cfg.BaseURL
	}

	return &KnowledgeAdapter{
		client:  openai.NewClientWithConfig(clientConfig),
		config:  cfg,
		limiter: rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), int(cfg.RequestsPerSecond*2)),
	}
}

// Name implements Adapter.
func (a *KnowledgeAdapter) Name() string {
	return "knowledge"
}

// Configured implements Adapter.
func (a *KnowledgeAdapter) Configured() bool {
	return a.config.APIKey != ""
}

// Query implements Adapter.
func (a *KnowledgeAdapter) Query(ctx context.Context, req *Request) (*Response, error) {
	if !a.Configured() {
		return nil, taskerrors.ProviderUnavailable(a.Name())
	}
	if err := a.limiter.Wait(ctx); err != nil {
		return nil, taskerrors.ContextCanceled(err)
	}

	callCtx, cancel := context.WithTimeout(ctx, a.config.CallTimeout)
	defer cancel()

	chatReq := openai.ChatCompletionRequest{
		Model: a.config.Model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: a.instructions(req)},
			{Role: openai.ChatMessageRoleUser, Content: req.Prompt},
		},
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
	}

	start := time.Now()
	resp, err := a.client.CreateChatCompletion(callCtx, chatReq)
	if err != nil {
		if callCtx.Err() == context.DeadlineExceeded {
			return nil, taskerrors.Timeout(fmt.Sprintf("knowledge call exceeded %s", a.config.CallTimeout))
		}
		if ctx.Err() != nil {
			return nil, taskerrors.ContextCanceled(ctx.Err())
		}
		return nil, taskerrors.TaskExecutionFailed("knowledge provider call failed", err)
	}
	if len(resp.Choices) == 0 {
		return nil, taskerrors.TaskExecutionFailed("knowledge provider returned no choices", nil)
	}

	slog.Debug("knowledge query completed",
		"model", a.config.Model,
		"duration_ms", time.Since(start).Milliseconds(),
		"total_tokens", resp.Usage.TotalTokens)

	return &Response{
		Success:          true,
		Text:             resp.Choices[0].Message.Content,
		UnitsConsumed:    resp.Usage.TotalTokens,
		PromptTokens:     resp.Usage.PromptTokens,
		CompletionTokens: resp.Usage.CompletionTokens,
	}, nil
}

// instructions renders the task instructions plus the declarative search
// configuration. The provider has no per-request recency parameter, so
// recency and context budget are expressed as instruction constraints.
func (a *KnowledgeAdapter) instructions(req *Request) string {
	out := req.Instructions
	if !req.Search.Enabled {
		return out + " Do not search the web; answer from the prompt alone."
	}
	if req.Search.Recency != "" {
		out += fmt.Sprintf(" Prefer sources published within the last %s.", req.Search.Recency)
	}
	switch req.Search.ContextSize {
	case "low":
		out += " Consult only the most authoritative source."
	case "high":
		out += " Cross-check across multiple independent sources."
	}
	return out
}
