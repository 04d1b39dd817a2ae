package extract

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	taskerrors "github.com/kestrelhq/dossier/internal/errors"
)

func TestStructure(t *testing.T) {
	t.Run("PlainObject", func(t *testing.T) {
		got, err := Structure(`{"domain": "acme.com"}`)
		require.NoError(t, err)
		assert.JSONEq(t, `{"domain": "acme.com"}`, string(got))
	})

	t.Run("SurroundingProse", func(t *testing.T) {
		got, err := Structure("Here is what I found:\n{\"a\": 1, \"b\": [2, 3]}\nLet me know if you need more.")
		require.NoError(t, err)
		assert.JSONEq(t, `{"a": 1, "b": [2, 3]}`, string(got))
	})

	t.Run("MarkdownFence", func(t *testing.T) {
		got, err := Structure("```json\n{\"items\": []}\n```")
		require.NoError(t, err)
		assert.JSONEq(t, `{"items": []}`, string(got))
	})

	t.Run("ArrayRoot", func(t *testing.T) {
		got, err := Structure(`The results: [1, 2, 3] as requested.`)
		require.NoError(t, err)
		assert.JSONEq(t, `[1, 2, 3]`, string(got))
	})

	t.Run("BracesInsideStrings", func(t *testing.T) {
		got, err := Structure(`{"note": "uses {braces} and ]brackets["} trailing`)
		require.NoError(t, err)
		assert.JSONEq(t, `{"note": "uses {braces} and ]brackets["}`, string(got))
	})

	t.Run("EscapedQuoteInString", func(t *testing.T) {
		got, err := Structure(`{"quote": "she said \"hi\""}`)
		require.NoError(t, err)
		var obj map[string]string
		require.NoError(t, json.Unmarshal(got, &obj))
		assert.Equal(t, `she said "hi"`, obj["quote"])
	})

	t.Run("RepairsInvalidEscapedApostrophe", func(t *testing.T) {
		got, err := Structure(`{"name": "O\'Brien & Co"}`)
		require.NoError(t, err)
		var obj map[string]string
		require.NoError(t, json.Unmarshal(got, &obj))
		assert.Equal(t, "O'Brien & Co", obj["name"])
	})

	t.Run("NoAnchor", func(t *testing.T) {
		_, err := Structure("I could not find any information about that company.")
		require.Error(t, err)
		assert.True(t, taskerrors.IsCode(err, taskerrors.ErrCodeResponseParseFailed))
	})

	t.Run("Truncated", func(t *testing.T) {
		_, err := Structure(`{"items": [{"headline": "Acme raises`)
		require.Error(t, err)
		assert.True(t, taskerrors.IsCode(err, taskerrors.ErrCodeResponseParseFailed))
	})
}

func TestValidate(t *testing.T) {
	t.Run("FinancialsValid", func(t *testing.T) {
		res := Validate(json.RawMessage(`{"isPublic": true, "marketCap": 2000000000, "employeeCount": 5000}`), "company.financials")
		assert.True(t, res.Valid)
		assert.Empty(t, res.Errors)
		assert.Empty(t, res.Warnings)
	})

	t.Run("FinancialsMissingIsPublic", func(t *testing.T) {
		res := Validate(json.RawMessage(`{"marketCap": 100}`), "company.financials")
		assert.False(t, res.Valid)
	})

	t.Run("HugeMarketCapFlaggedNotRejected", func(t *testing.T) {
		res := Validate(json.RawMessage(`{"isPublic": true, "marketCap": 99000000000000}`), "company.financials")
		assert.True(t, res.Valid)
		assert.NotEmpty(t, res.Warnings)
	})

	t.Run("NegativeEmployeeCountRejected", func(t *testing.T) {
		res := Validate(json.RawMessage(`{"isPublic": false, "employeeCount": -3}`), "company.financials")
		assert.False(t, res.Valid)
	})

	t.Run("NewsRequiresItemsArray", func(t *testing.T) {
		assert.False(t, Validate(json.RawMessage(`{"items": "none"}`), "company.news").Valid)
		assert.True(t, Validate(json.RawMessage(`{"items": []}`), "company.news").Valid)
	})

	t.Run("DomainShape", func(t *testing.T) {
		assert.True(t, Validate(json.RawMessage(`{"domain": "acme.com"}`), "company.domain").Valid)
		assert.False(t, Validate(json.RawMessage(`{"domain": "https://acme.com"}`), "company.domain").Valid)
		assert.False(t, Validate(json.RawMessage(`{"domain": "acme"}`), "company.domain").Valid)
	})

	t.Run("ContactsProfileURL", func(t *testing.T) {
		res := Validate(json.RawMessage(`{"contacts": [{"name": "Dana Reed", "linkedinUrl": "https://www.linkedin.com/in/danareed"}]}`), "company.contacts_fallback")
		assert.True(t, res.Valid)

		res = Validate(json.RawMessage(`{"contacts": [{"name": "Dana Reed", "linkedinUrl": "https://www.linkedin.com/in/johndoe"}]}`), "company.contacts_fallback")
		assert.False(t, res.Valid)
	})

	t.Run("UnknownTaskTypePasses", func(t *testing.T) {
		assert.True(t, Validate(json.RawMessage(`{"whatever": 1}`), "company.activity").Valid)
	})
}

func TestValidProfileURL(t *testing.T) {
	valid := []string{
		"https://www.linkedin.com/in/dana-reed",
		"https://linkedin.com/in/dreed42",
		"http://linkedin.com/company/acme-corp/",
	}
	for _, u := range valid {
		assert.True(t, ValidProfileURL(u), u)
	}

	invalid := []string{
		"https://twitter.com/danareed",
		"https://linkedin.com/in/example",
		"https://linkedin.com/in/johndoe",
		"https://linkedin.com/in/12345",
		"linkedin.com/in/dana",
		"https://linkedin.com/in/",
	}
	for _, u := range invalid {
		assert.False(t, ValidProfileURL(u), u)
	}
}
