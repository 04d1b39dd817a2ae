// Package extract turns noisy provider output into validated structures.
// Knowledge-retrieval providers wrap JSON in prose, markdown fences and the
// occasional malformed escape; everything best-effort about recovering from
// that lives here, behind explicit, unit-tested repair rules.
package extract

import (
	"encoding/json"
	"strings"

	taskerrors "github.com/kestrelhq/dossier/internal/errors"
)

// Structure extracts the first balanced JSON value from text, tolerating
// explanatory prose before and after it. Unrecoverable input returns a
// RESPONSE_PARSE_FAILED error.
func Structure(text string) (json.RawMessage, error) {
	text = stripFences(strings.TrimSpace(text))

	start := strings.IndexAny(text, "{[")
	if start < 0 {
		return nil, taskerrors.ResponseParseFailed("no JSON anchor in response", nil)
	}

	candidate, ok := scanBalanced(text[start:])
	if !ok {
		// Unbalanced output is usually truncation; a repair pass cannot
		// reconstruct missing structure.
		return nil, taskerrors.ResponseParseFailed("unterminated JSON structure", nil)
	}

	if json.Valid([]byte(candidate)) {
		return json.RawMessage(candidate), nil
	}

	repaired := repairEscapes(candidate)
	if json.Valid([]byte(repaired)) {
		return json.RawMessage(repaired), nil
	}

	return nil, taskerrors.ResponseParseFailed("response is not valid JSON after repair", nil)
}

// stripFences removes surrounding markdown code fences, with or without a
// language tag.
func stripFences(text string) string {
	if !strings.Contains(text, "```") {
		return text
	}
	first := strings.Index(text, "```")
	rest := text[first+3:]
	// Drop the language tag line, e.g. "json".
	if nl := strings.IndexByte(rest, '\n'); nl >= 0 && len(strings.TrimSpace(rest[:nl])) <= 8 {
		rest = rest[nl+1:]
	}
	if end := strings.LastIndex(rest, "```"); end >= 0 {
		rest = rest[:end]
	}
	return strings.TrimSpace(rest)
}

// scanBalanced captures a balanced JSON value from the start of text using
// quote- and escape-aware bracket counting.
func scanBalanced(text string) (string, bool) {
	depth := 0
	inString := false
	escaped := false

	for i := 0; i < len(text); i++ {
		c := text[i]
		if escaped {
			escaped = false
			continue
		}
		switch {
		case c == '\\' && inString:
			escaped = true
		case c == '"':
			inString = !inString
		case inString:
		case c == '{' || c == '[':
			depth++
		case c == '}' || c == ']':
			depth--
			if depth == 0 {
				return text[:i+1], true
			}
		}
	}
	return "", false
}

// repairEscapes applies the documented escape repairs:
//   - `\'` is not a legal JSON escape; providers emit it for apostrophes.
//   - a backslash before a character with no escape meaning is dropped.
func repairEscapes(text string) string {
	var b strings.Builder
	b.Grow(len(text))

	inString := false
	for i := 0; i < len(text); i++ {
		c := text[i]
		if c == '"' && (i == 0 || text[i-1] != '\\') {
			inString = !inString
		}
		if inString && c == '\\' && i+1 < len(text) {
			next := text[i+1]
			switch next {
			case '"', '\\', '/', 'b', 'f', 'n', 'r', 't', 'u':
				// legal escape, keep as-is
			case '\'':
				b.WriteByte('\'')
				i++
				continue
			default:
				// drop the stray backslash
				continue
			}
		}
		b.WriteByte(c)
	}
	return b.String()
}
