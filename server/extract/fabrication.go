package extract

import (
	"encoding/json"
	"strings"
	"time"
)

// NotDisclosed is the sentinel substituted for funding data the fabrication
// heuristic declined to trust.
const NotDisclosed = "not disclosed"

// implausibleRoundForUnverified is the round size above which an unverified
// company's reported round counts as a suspicion signal.
const implausibleRoundForUnverified = 500e6

// Funding is the funding substructure of a private-financials result.
type Funding struct {
	TotalRaised      any       `json:"totalRaised"`
	LastRound        LastRound `json:"lastRound"`
	Investors        []string  `json:"investors"`
	EstimatedRevenue any       `json:"estimatedRevenue"`
	Verified         bool      `json:"verified"`
}

// LastRound describes the most recent funding round.
type LastRound struct {
	Type      any     `json:"type"`
	Amount    any     `json:"amount"`
	Date      *string `json:"date"`
	Source    any     `json:"source"`
	SourceURL *string `json:"sourceUrl"`
}

// genericSourceLabels are source attributions too vague to verify anything.
var genericSourceLabels = []string{"news", "internet", "web", "online", "press", "various", "unknown", "media", "reports"}

// FundingSignals counts fabrication suspicion signals in a funding result.
// The individual signals are each survivable; their accumulation is what the
// heuristic acts on.
func FundingSignals(f *Funding, now time.Time) []string {
	var signals []string

	// A result that reports no round at all is an honest empty answer,
	// not a fabrication candidate.
	if f.LastRound.Amount == nil && f.LastRound.Date == nil && f.LastRound.Type == nil {
		return nil
	}

	if amount, ok := f.LastRound.Amount.(float64); ok && amount > implausibleRoundForUnverified && !f.Verified {
		signals = append(signals, "implausible round size for unverified company")
	}

	if f.LastRound.Date != nil {
		if d, err := time.Parse("2006-01-02", *f.LastRound.Date); err == nil && d.After(now) {
			signals = append(signals, "future-dated round")
		}
	}

	if f.LastRound.SourceURL == nil || placeholderURL(*f.LastRound.SourceURL) {
		signals = append(signals, "missing or placeholder source URL")
	}

	if genericSource(f.LastRound.Source) {
		signals = append(signals, "generic source label")
	}

	return signals
}

func placeholderURL(u string) bool {
	u = strings.ToLower(strings.TrimSpace(u))
	if u == "" || u == "n/a" || u == "none" {
		return true
	}
	return strings.Contains(u, "example.com") || strings.Contains(u, "placeholder")
}

func genericSource(source any) bool {
	s, ok := source.(string)
	if !ok || strings.TrimSpace(s) == "" {
		return true
	}
	s = strings.ToLower(strings.TrimSpace(s))
	for _, label := range genericSourceLabels {
		if s == label {
			return true
		}
	}
	return false
}

// FilterFunding applies the fabrication heuristic to a raw private-financials
// payload. At or above threshold signals the entire funding substructure is
// discarded and replaced with explicit sentinels; below it the data passes
// through untouched. The second return reports whether filtering occurred;
// the third lists the signals found either way.
func FilterFunding(raw json.RawMessage, threshold int, now time.Time) (json.RawMessage, bool, []string) {
	var f Funding
	if err := json.Unmarshal(raw, &f); err != nil {
		// Unparseable funding data is indistinguishable from fabricated.
		return sentinelFunding(), true, []string{"unparseable funding payload"}
	}

	signals := FundingSignals(&f, now)
	if len(signals) >= threshold {
		return sentinelFunding(), true, signals
	}
	return raw, false, signals
}

func sentinelFunding() json.RawMessage {
	sentinel := Funding{
		TotalRaised: NotDisclosed,
		LastRound: LastRound{
			Type:   NotDisclosed,
			Amount: NotDisclosed,
			Source: NotDisclosed,
		},
		Investors:        []string{},
		EstimatedRevenue: NotDisclosed,
		Verified:         false,
	}
	out, _ := json.Marshal(sentinel)
	return out
}
