package orchestrator

import (
	"encoding/json"
	"time"
)

// Usage aggregates provider consumption across task executions.
type Usage struct {
	PromptTokens     int `json:"promptTokens"`
	CompletionTokens int `json:"completionTokens"`
	TotalTokens      int `json:"totalTokens"`
	// Units is the provider-neutral cost unit (tokens or credits).
	Units int `json:"units"`
}

func (u *Usage) add(other Usage) {
	u.PromptTokens += other.PromptTokens
	u.CompletionTokens += other.CompletionTokens
	u.TotalTokens += other.TotalTokens
	u.Units += other.Units
}

// CostBreakdown maps task names to the units they consumed.
type CostBreakdown map[string]int

// TaskResult is the outcome of one task execution, retries included.
// Never persisted directly; only combined records reach the cache.
type TaskResult struct {
	Success    bool            `json:"success"`
	Data       json.RawMessage `json:"data,omitempty"`
	ErrMessage string          `json:"errorMessage,omitempty"`
	Attempts   int             `json:"attemptCount"`
	Usage      Usage           `json:"usageStats"`
	// Source names the adapter that produced the data.
	Source string `json:"source,omitempty"`
}

// Metadata tags every assembled record.
type Metadata struct {
	SchemaVersion int       `json:"schemaVersion"`
	Sources       []string  `json:"sources"`
	GeneratedAt   time.Time `json:"generatedAt"`
}

// CompanyAnalysis is the merged company record.
type CompanyAnalysis struct {
	CompanyName  string          `json:"companyName"`
	Domain       string          `json:"domain"`
	Overview     json.RawMessage `json:"overview"`
	News         json.RawMessage `json:"news"`
	Growth       json.RawMessage `json:"growth"`
	Risk         json.RawMessage `json:"risk"`
	Industry     json.RawMessage `json:"industry"`
	Funding      json.RawMessage `json:"funding,omitempty"`
	TechStack    json.RawMessage `json:"techStack"`
	Contacts     json.RawMessage `json:"contacts"`
	Organization json.RawMessage `json:"organization"`
	Intelligence json.RawMessage `json:"intelligence"`
	Activity     json.RawMessage `json:"activity"`
	Metadata     Metadata        `json:"metadata"`
}

// PersonAnalysis is the merged person record.
type PersonAnalysis struct {
	Name              string          `json:"name"`
	Title             string          `json:"title,omitempty"`
	Company           string          `json:"company,omitempty"`
	Profile           json.RawMessage `json:"profile"`
	Career            json.RawMessage `json:"career"`
	ThoughtLeadership json.RawMessage `json:"thoughtLeadership"`
	Social            json.RawMessage `json:"social"`
	Education         json.RawMessage `json:"education"`
	Metadata          Metadata        `json:"metadata"`
}

// CompanyResult is what analyzeCompany hands back to callers.
type CompanyResult struct {
	Success       bool             `json:"success"`
	Data          *CompanyAnalysis `json:"data"`
	Usage         Usage            `json:"usage"`
	CostBreakdown CostBreakdown    `json:"costBreakdown"`
	// Cached reports whether the record was served without external calls.
	Cached bool `json:"cached"`
}

// PersonResult is what analyzePerson hands back to callers.
type PersonResult struct {
	Success bool            `json:"success"`
	Data    *PersonAnalysis `json:"data"`
	Usage   Usage           `json:"usage"`
	Cached  bool            `json:"cached"`
}
