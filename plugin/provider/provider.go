// Package provider gives the orchestrator one uniform envelope over both
// external data providers. The orchestrator never sees either provider's
// native wire format, which keeps primary-vs-knowledge fallback a pure
// policy decision.
package provider

import (
	"bytes"
	"context"
	"encoding/json"

	"github.com/kestrelhq/dossier/server/taskreg"
)

// Request asks an adapter for one capability about one entity.
type Request struct {
	// Identifier is the canonical entity identifier (company domain or person name).
	Identifier string
	// Capability names a structured primary-source query, e.g. "technology_stack".
	// Ignored by the knowledge adapter.
	Capability string
	// Prompt and Instructions drive free-text knowledge retrieval.
	// Ignored by the primary adapter.
	Prompt       string
	Instructions string
	MaxTokens    int
	Temperature  float32
	Search       taskreg.SearchConfig
}

// Response is the uniform result envelope.
type Response struct {
	Success bool
	// Data holds pre-structured payloads from the primary source.
	Data json.RawMessage
	// Text holds raw free-text output from the knowledge provider,
	// which the caller must parse.
	Text string
	Err  string
	// UnitsConsumed is the provider's own cost unit (tokens or credits).
	UnitsConsumed    int
	PromptTokens     int
	CompletionTokens int
}

// Empty reports whether the response carries no usable payload.
func (r *Response) Empty() bool {
	if r == nil || !r.Success {
		return true
	}
	if r.Text != "" {
		return false
	}
	data := bytes.TrimSpace(r.Data)
	switch string(data) {
	case "", "null", "{}", "[]":
		return true
	}
	return false
}

// Adapter is the boundary to one external provider.
type Adapter interface {
	// Name identifies the adapter in logs, usage stats and audit entries.
	Name() string
	// Configured reports whether the adapter has credentials to operate.
	Configured() bool
	// Query issues one request. Implementations bound the call with their
	// own wall-clock timeout; a timeout is returned as a typed error.
	Query(ctx context.Context, req *Request) (*Response, error)
}
