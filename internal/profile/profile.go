package profile

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/kestrelhq/dossier/internal/version"
)

// Profile is the runtime configuration for the dossier engine.
type Profile struct {
	// Mode can be "prod" or "dev"
	Mode string
	// Data is the data directory
	Data string
	// Driver is the L2 database driver ("sqlite", "postgres" or "none")
	Driver string
	// DSN points to where dossier persists assembled records
	DSN string

	// Knowledge-retrieval provider (web-search-augmented LLM)
	OpenAIAPIKey  string // DOSSIER_OPENAI_API_KEY
	OpenAIBaseURL string // DOSSIER_OPENAI_BASE_URL
	OpenAIModel   string // DOSSIER_OPENAI_MODEL (default: gpt-4o-mini-search-preview)

	// Primary-source provider (structured organization/people data)
	PrimaryAPIKey  string // DOSSIER_PRIMARY_API_KEY
	PrimaryBaseURL string // DOSSIER_PRIMARY_BASE_URL

	// Cache settings
	CacheCapacity        int           // DOSSIER_CACHE_CAPACITY (default: 500)
	CacheTTL             time.Duration // DOSSIER_CACHE_TTL (default: 12h)
	CacheCleanupInterval time.Duration // DOSSIER_CACHE_CLEANUP_INTERVAL (default: 5m)
	PendingTimeout       time.Duration // DOSSIER_PENDING_TIMEOUT (default: 2m)
	SchemaVersion        int

	// Task execution settings
	TaskTimeout time.Duration // DOSSIER_TASK_TIMEOUT (default: 60s)
	MaxAttempts int           // DOSSIER_TASK_MAX_ATTEMPTS (default: 2)

	// FabricationSignalThreshold is the number of suspicion signals at which
	// funding data is discarded and replaced with sentinels.
	FabricationSignalThreshold int // DOSSIER_FABRICATION_THRESHOLD (default: 2)

	// FailFastBatches names the orchestrator batches joined with fail-fast
	// semantics; every other batch degrades failures to defaults.
	FailFastBatches []string // DOSSIER_FAIL_FAST_BATCHES (default: company.batch1)
}

func (p *Profile) IsDev() bool {
	return p.Mode != "prod"
}

// IsPrimarySourceEnabled reports whether the structured-data provider is configured.
func (p *Profile) IsPrimarySourceEnabled() bool {
	return p.PrimaryAPIKey != "" && p.PrimaryBaseURL != ""
}

// IsFailFast reports whether the named batch uses the fail-fast join discipline.
func (p *Profile) IsFailFast(batch string) bool {
	for _, b := range p.FailFastBatches {
		if b == batch {
			return true
		}
	}
	return false
}

// getEnvOrDefault returns the environment variable value or the default value.
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

// FromEnv loads configuration from DOSSIER_* environment variables.
// Values already set on the profile (e.g. from flags) take precedence.
func (p *Profile) FromEnv() {
	if p.Mode == "" {
		p.Mode = getEnvOrDefault("DOSSIER_MODE", "dev")
	}
	if p.Data == "" {
		p.Data = getEnvOrDefault("DOSSIER_DATA", ".")
	}
	if p.Driver == "" {
		p.Driver = getEnvOrDefault("DOSSIER_DRIVER", "sqlite")
	}
	if p.DSN == "" {
		p.DSN = os.Getenv("DOSSIER_DSN")
	}

	if p.OpenAIAPIKey == "" {
		p.OpenAIAPIKey = os.Getenv("DOSSIER_OPENAI_API_KEY")
	}
	if p.OpenAIBaseURL == "" {
		p.OpenAIBaseURL = getEnvOrDefault("DOSSIER_OPENAI_BASE_URL", "https://api.openai.com/v1")
	}
	if p.OpenAIModel == "" {
		p.OpenAIModel = getEnvOrDefault("DOSSIER_OPENAI_MODEL", "gpt-4o-mini-search-preview")
	}

	if p.PrimaryAPIKey == "" {
		p.PrimaryAPIKey = os.Getenv("DOSSIER_PRIMARY_API_KEY")
	}
	if p.PrimaryBaseURL == "" {
		p.PrimaryBaseURL = os.Getenv("DOSSIER_PRIMARY_BASE_URL")
	}

	if p.CacheCapacity == 0 {
		p.CacheCapacity = getEnvInt("DOSSIER_CACHE_CAPACITY", 500)
	}
	if p.CacheTTL == 0 {
		p.CacheTTL = getEnvDuration("DOSSIER_CACHE_TTL", 12*time.Hour)
	}
	if p.CacheCleanupInterval == 0 {
		p.CacheCleanupInterval = getEnvDuration("DOSSIER_CACHE_CLEANUP_INTERVAL", 5*time.Minute)
	}
	if p.PendingTimeout == 0 {
		p.PendingTimeout = getEnvDuration("DOSSIER_PENDING_TIMEOUT", 2*time.Minute)
	}
	if p.SchemaVersion == 0 {
		p.SchemaVersion = version.SchemaVersion
	}

	if p.TaskTimeout == 0 {
		p.TaskTimeout = getEnvDuration("DOSSIER_TASK_TIMEOUT", 60*time.Second)
	}
	if p.MaxAttempts == 0 {
		p.MaxAttempts = getEnvInt("DOSSIER_TASK_MAX_ATTEMPTS", 2)
	}

	if p.FabricationSignalThreshold == 0 {
		p.FabricationSignalThreshold = getEnvInt("DOSSIER_FABRICATION_THRESHOLD", 2)
	}
	if len(p.FailFastBatches) == 0 {
		raw := getEnvOrDefault("DOSSIER_FAIL_FAST_BATCHES", "company.batch1")
		for _, b := range strings.Split(raw, ",") {
			if b = strings.TrimSpace(b); b != "" {
				p.FailFastBatches = append(p.FailFastBatches, b)
			}
		}
	}
}

// Validate checks the profile for values the engine cannot start with.
func (p *Profile) Validate() error {
	switch p.Driver {
	case "sqlite", "postgres", "none":
	default:
		return errors.Errorf("unknown driver %q: only 'sqlite', 'postgres' and 'none' are supported", p.Driver)
	}
	if p.Driver != "none" && p.DSN == "" {
		if p.Driver == "postgres" {
			return errors.New("postgres driver requires DOSSIER_DSN")
		}
		p.DSN = p.Data + "/dossier.db"
	}
	if p.CacheCapacity < 0 {
		return errors.Errorf("cache capacity must not be negative, got %d", p.CacheCapacity)
	}
	if p.MaxAttempts < 1 {
		return errors.Errorf("task max attempts must be at least 1, got %d", p.MaxAttempts)
	}
	if p.FabricationSignalThreshold < 1 {
		return errors.Errorf("fabrication threshold must be at least 1, got %d", p.FabricationSignalThreshold)
	}
	return nil
}
