package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/time/rate"

	taskerrors "github.com/kestrelhq/dossier/internal/errors"
)

// Primary-source capabilities.
const (
	CapTechnologyStack   = "technology_stack"
	CapExecutiveContacts = "executive_contacts"
	CapOrganization      = "organization"
	CapPersonProfile     = "person_profile"
)

// PrimaryConfig configures the structured organization/people-data adapter.
type PrimaryConfig struct {
	APIKey            string
	BaseURL           string
	CallTimeout       time.Duration
	RequestsPerSecond float64
}

// PrimaryAdapter queries a vetted provider that returns pre-structured,
// higher-trust data keyed by company domain or person name.
type PrimaryAdapter struct {
	config  *PrimaryConfig
	client  *http.Client
	limiter *rate.Limiter
}

// NewPrimaryAdapter creates the adapter. Missing credentials are allowed;
// the orchestrator falls back to knowledge retrieval per capability.
func NewPrimaryAdapter(cfg *PrimaryConfig) *PrimaryAdapter {
	if cfg == nil {
		cfg = &PrimaryConfig{}
	}
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = 30 * time.Second
	}
	if cfg.RequestsPerSecond <= 0 {
		cfg.RequestsPerSecond = 10
	}

	return &PrimaryAdapter{
		config:  cfg,
		client:  &http.Client{Timeout: cfg.CallTimeout},
		limiter: rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), int(cfg.RequestsPerSecond*2)),
	}
}

// Name implements Adapter.
func (a *PrimaryAdapter) Name() string {
	return "primary"
}

// Configured implements Adapter.
func (a *PrimaryAdapter) Configured() bool {
	return a.config.APIKey != "" && a.config.BaseURL != ""
}

// primaryEnvelope is the provider's native response shape.
type primaryEnvelope struct {
	Data    json.RawMessage `json:"data"`
	Credits int             `json:"credits_consumed"`
	Error   string          `json:"error,omitempty"`
}

// Query implements Adapter.
func (a *PrimaryAdapter) Query(ctx context.Context, req *Request) (*Response, error) {
	if !a.Configured() {
		return nil, taskerrors.ProviderUnavailable(a.Name())
	}
	if err := a.limiter.Wait(ctx); err != nil {
		return nil, taskerrors.ContextCanceled(err)
	}

	endpoint, err := a.endpoint(req)
	if err != nil {
		return nil, err
	}

	callCtx, cancel := context.WithTimeout(ctx, a.config.CallTimeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(callCtx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, taskerrors.TaskExecutionFailed("building primary-source request", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+a.config.APIKey)
	httpReq.Header.Set("Accept", "application/json")

	resp, err := a.client.Do(httpReq)
	if err != nil {
		if callCtx.Err() == context.DeadlineExceeded {
			return nil, taskerrors.Timeout(fmt.Sprintf("primary-source call exceeded %s", a.config.CallTimeout))
		}
		if ctx.Err() != nil {
			return nil, taskerrors.ContextCanceled(ctx.Err())
		}
		return nil, taskerrors.TaskExecutionFailed("primary-source call failed", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, taskerrors.TaskExecutionFailed("reading primary-source response", err)
	}

	switch {
	case resp.StatusCode == http.StatusNotFound:
		// Unknown entity is an empty result, not a failure.
		return &Response{Success: true, Data: nil}, nil
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, taskerrors.TaskExecutionFailed("primary-source rate limited", nil)
	case resp.StatusCode >= 400:
		return nil, taskerrors.TaskExecutionFailed(fmt.Sprintf("primary-source returned status %d", resp.StatusCode), nil)
	}

	var envelope primaryEnvelope
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, taskerrors.ResponseParseFailed("decoding primary-source envelope", err)
	}
	if envelope.Error != "" {
		return nil, taskerrors.TaskExecutionFailed("primary-source error: "+envelope.Error, nil)
	}

	return &Response{
		Success:       true,
		Data:          envelope.Data,
		UnitsConsumed: envelope.Credits,
	}, nil
}

func (a *PrimaryAdapter) endpoint(req *Request) (string, error) {
	var path string
	switch req.Capability {
	case CapTechnologyStack:
		path = "/v1/company/technologies"
	case CapExecutiveContacts:
		path = "/v1/company/contacts"
	case CapOrganization:
		path = "/v1/company/profile"
	case CapPersonProfile:
		path = "/v1/person/profile"
	default:
		return "", taskerrors.TaskBuildFailed(fmt.Sprintf("unknown primary-source capability: %s", req.Capability))
	}

	q := url.Values{}
	q.Set("id", req.Identifier)
	return a.config.BaseURL + path + "?" + q.Encode(), nil
}
