package cache

import (
	"strings"
	"unicode"
)

// Entity namespaces. Keys under company/person hold full analysis records
// and are the only ones persisted to L2; task keys hold component sub-fetches
// and live in L1 only.
const (
	NamespaceCompany = "company"
	NamespacePerson  = "person"
	NamespaceTask    = "task"
)

// Normalize canonicalizes an identifier: lower-cased, punctuation stripped,
// whitespace collapsed to single hyphens. Cosmetically different inputs
// ("Acme, Inc." vs "ACME INC") collide on one cache entry.
func Normalize(s string) string {
	var b strings.Builder
	b.Grow(len(s))

	lastHyphen := true // suppress a leading hyphen
	for _, r := range strings.ToLower(s) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
			lastHyphen = false
		case unicode.IsSpace(r):
			if !lastHyphen {
				b.WriteByte('-')
				lastHyphen = true
			}
		default:
			// punctuation dropped outright
		}
	}
	return strings.TrimSuffix(b.String(), "-")
}

// CompanyKey builds the cache key for a full company analysis.
func CompanyKey(name string) string {
	return NamespaceCompany + ":" + Normalize(name)
}

// PersonKey builds the cache key for a full person analysis. The company is
// a secondary identifier: the same name at two companies is two entries.
func PersonKey(name, company string) string {
	key := NamespacePerson + ":" + Normalize(name)
	if company != "" {
		key += ":" + Normalize(company)
	}
	return key
}

// TaskKey builds the cache key for a component sub-fetch.
func TaskKey(taskName, identifier string) string {
	return NamespaceTask + ":" + taskName + ":" + Normalize(identifier)
}

// IsFullAnalysis reports whether the key names a full analysis record,
// which is the class of entries worth persisting to L2.
func IsFullAnalysis(key string) bool {
	ns, _, ok := strings.Cut(key, ":")
	if !ok {
		return false
	}
	return ns == NamespaceCompany || ns == NamespacePerson
}
