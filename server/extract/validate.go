package extract

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

// marketCapFlagThreshold is the magnitude above which a market cap is flagged
// as implausible. Flagged, not rejected: a handful of real companies sit near it.
const marketCapFlagThreshold = 15e12

// Result is the outcome of a structural validation pass.
type Result struct {
	Valid    bool
	Errors   []string
	Warnings []string
}

func (r *Result) addError(format string, args ...any) {
	r.Errors = append(r.Errors, fmt.Sprintf(format, args...))
	r.Valid = false
}

func (r *Result) addWarning(format string, args ...any) {
	r.Warnings = append(r.Warnings, fmt.Sprintf(format, args...))
}

// Validate applies per-task-type structural checks to parsed data.
// Task types without registered checks pass by default; the parse step has
// already guaranteed well-formed JSON.
func Validate(data json.RawMessage, taskType string) *Result {
	res := &Result{Valid: true}

	var obj map[string]any
	if err := json.Unmarshal(data, &obj); err != nil {
		// Array-rooted payloads have no field checks.
		return res
	}

	switch taskType {
	case "company.domain":
		validateDomain(obj, res)
	case "company.financials":
		validateFinancials(obj, res)
	case "company.news":
		requireArray(obj, "items", res)
	case "company.growth":
		requireArray(obj, "events", res)
	case "company.risk":
		requireArray(obj, "signals", res)
	case "company.industry":
		requireString(obj, "industry", res)
	case "company.private_financials":
		// Shape only; trustworthiness goes through the fabrication filter.
		if _, ok := obj["lastRound"]; !ok {
			res.addError("missing required field: lastRound")
		}
	case "company.contacts_fallback":
		validateContacts(obj, res)
	case "person.profile":
		validatePersonProfile(obj, res)
	}

	return res
}

func requireArray(obj map[string]any, field string, res *Result) {
	v, ok := obj[field]
	if !ok {
		res.addError("missing required field: %s", field)
		return
	}
	if _, ok := v.([]any); !ok {
		res.addError("field %s must be an array", field)
	}
}

func requireString(obj map[string]any, field string, res *Result) {
	v, ok := obj[field]
	if !ok || v == nil {
		res.addError("missing required field: %s", field)
		return
	}
	s, ok := v.(string)
	if !ok || strings.TrimSpace(s) == "" {
		res.addError("field %s must be a non-empty string", field)
	}
}

func validateDomain(obj map[string]any, res *Result) {
	requireString(obj, "domain", res)
	if !res.Valid {
		return
	}
	domain := obj["domain"].(string)
	if strings.ContainsAny(domain, " /:") || !strings.Contains(domain, ".") {
		res.addError("domain %q is not a bare domain", domain)
	}
}

func validateFinancials(obj map[string]any, res *Result) {
	if _, ok := obj["isPublic"].(bool); !ok {
		res.addError("missing or non-boolean field: isPublic")
	}
	if mc, ok := obj["marketCap"].(float64); ok {
		if mc < 0 {
			res.addError("marketCap must not be negative")
		} else if mc > marketCapFlagThreshold {
			res.addWarning("marketCap %.0f exceeds plausibility threshold", mc)
		}
	}
	if ec, ok := obj["employeeCount"].(float64); ok && ec < 0 {
		res.addError("employeeCount must not be negative")
	}
	if rev, ok := obj["annualRevenue"].(float64); ok && rev < 0 {
		res.addError("annualRevenue must not be negative")
	}
}

func validateContacts(obj map[string]any, res *Result) {
	contacts, ok := obj["contacts"].([]any)
	if !ok {
		res.addError("missing required field: contacts")
		return
	}
	for i, raw := range contacts {
		c, ok := raw.(map[string]any)
		if !ok {
			res.addError("contact %d is not an object", i)
			continue
		}
		if name, _ := c["name"].(string); strings.TrimSpace(name) == "" {
			res.addError("contact %d has no name", i)
		}
		if u, ok := c["linkedinUrl"].(string); ok && u != "" && !ValidProfileURL(u) {
			res.addError("contact %d has an invalid profile URL: %s", i, u)
		}
	}
}

func validatePersonProfile(obj map[string]any, res *Result) {
	requireString(obj, "fullName", res)
	if u, ok := obj["linkedinUrl"].(string); ok && u != "" && !ValidProfileURL(u) {
		res.addError("invalid profile URL: %s", u)
	}
}

var (
	profileURLPattern = regexp.MustCompile(`^https?://(www\.)?linkedin\.com/(in|company)/[A-Za-z0-9\-_%]+/?$`)
	numericSlug       = regexp.MustCompile(`^[0-9]+$`)
)

// syntheticSlugs are slugs providers emit when they fabricate a profile
// instead of admitting they found none.
var syntheticSlugs = []string{"example", "johndoe", "john-doe", "janedoe", "jane-doe", "username", "profile", "xxxx", "sample"}

// ValidProfileURL reports whether a URL has the expected provider shape and
// is not an obviously synthetic placeholder.
func ValidProfileURL(u string) bool {
	if !profileURLPattern.MatchString(u) {
		return false
	}
	slug := strings.ToLower(strings.Trim(u[strings.LastIndex(strings.TrimRight(u, "/"), "/")+1:], "/"))
	if numericSlug.MatchString(slug) {
		return false
	}
	for _, s := range syntheticSlugs {
		if slug == s {
			return false
		}
	}
	return true
}
