// Package taskreg defines the closed registry of named task templates.
// Every query the orchestrator can issue against an external provider is
// declared here once, at startup, as an immutable Spec.
package taskreg

import (
	"sort"

	"github.com/pkg/errors"
)

// SearchConfig controls the web-search behaviour of a knowledge-retrieval task.
type SearchConfig struct {
	// Enabled turns web search on for the task.
	Enabled bool
	// Recency restricts results by age: "", "day", "week", "month" or "year".
	Recency string
	// ContextSize is the search context budget: "low", "medium" or "high".
	ContextSize string
}

// Args carries the entity parameters a prompt builder may use.
type Args struct {
	Name    string
	Title   string
	Company string
	Domain  string
	Extra   map[string]string
}

// Spec is a named, parameterized task definition. Immutable after startup.
type Spec struct {
	Name         string
	Instructions string
	BuildPrompt  func(Args) (string, error)
	MaxTokens    int
	Temperature  float32
	Search       SearchConfig
}

// Registry is the closed set of task specs, resolved once at startup.
type Registry struct {
	specs map[string]*Spec
}

// NewRegistry builds the registry with every known task template.
func NewRegistry() *Registry {
	r := &Registry{specs: make(map[string]*Spec)}
	for _, s := range companySpecs() {
		r.specs[s.Name] = s
	}
	for _, s := range personSpecs() {
		r.specs[s.Name] = s
	}
	for _, s := range verifySpecs() {
		r.specs[s.Name] = s
	}
	return r
}

// Get resolves a task spec by name.
func (r *Registry) Get(name string) (*Spec, error) {
	s, ok := r.specs[name]
	if !ok {
		return nil, errors.Errorf("unknown task: %s", name)
	}
	return s, nil
}

// Names returns all registered task names, sorted.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.specs))
	for name := range r.specs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Validate checks every registered spec. Run once at startup so a malformed
// template is a boot failure, not a mid-analysis surprise.
func (r *Registry) Validate() error {
	for name, s := range r.specs {
		if s.Name != name {
			return errors.Errorf("task %s: registered under mismatched name %s", name, s.Name)
		}
		if s.Instructions == "" {
			return errors.Errorf("task %s: empty instructions", name)
		}
		if s.BuildPrompt == nil {
			return errors.Errorf("task %s: nil prompt builder", name)
		}
		if s.MaxTokens <= 0 {
			return errors.Errorf("task %s: max tokens must be positive, got %d", name, s.MaxTokens)
		}
		if s.Temperature < 0 || s.Temperature > 2 {
			return errors.Errorf("task %s: temperature %v out of range [0, 2]", name, s.Temperature)
		}
		switch s.Search.Recency {
		case "", "day", "week", "month", "year":
		default:
			return errors.Errorf("task %s: unknown search recency %q", name, s.Search.Recency)
		}
		switch s.Search.ContextSize {
		case "", "low", "medium", "high":
		default:
			return errors.Errorf("task %s: unknown search context size %q", name, s.Search.ContextSize)
		}
	}
	return nil
}
