package provider

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	taskerrors "github.com/kestrelhq/dossier/internal/errors"
	"github.com/kestrelhq/dossier/server/taskreg"
)

func TestResponseEmpty(t *testing.T) {
	assert.True(t, (*Response)(nil).Empty())
	assert.True(t, (&Response{Success: false, Text: "content"}).Empty())
	assert.True(t, (&Response{Success: true}).Empty())
	assert.True(t, (&Response{Success: true, Data: json.RawMessage("null")}).Empty())
	assert.True(t, (&Response{Success: true, Data: json.RawMessage(" {} ")}).Empty())
	assert.True(t, (&Response{Success: true, Data: json.RawMessage("[]")}).Empty())

	assert.False(t, (&Response{Success: true, Text: "raw output"}).Empty())
	assert.False(t, (&Response{Success: true, Data: json.RawMessage(`{"a":1}`)}).Empty())
}

func TestKnowledgeAdapterUnconfigured(t *testing.T) {
	a := NewKnowledgeAdapter(&KnowledgeConfig{})
	assert.False(t, a.Configured())

	_, err := a.Query(context.Background(), &Request{Prompt: "anything"})
	require.Error(t, err)
	assert.True(t, taskerrors.IsCode(err, taskerrors.ErrCodeProviderUnavailable))
}

func TestKnowledgeInstructions(t *testing.T) {
	a := NewKnowledgeAdapter(&KnowledgeConfig{APIKey: "k"})

	t.Run("SearchDisabled", func(t *testing.T) {
		got := a.instructions(&Request{Instructions: "Base."})
		assert.Contains(t, got, "Do not search the web")
	})

	t.Run("RecencyAndContext", func(t *testing.T) {
		got := a.instructions(&Request{
			Instructions: "Base.",
			Search:       taskreg.SearchConfig{Enabled: true, Recency: "week", ContextSize: "high"},
		})
		assert.Contains(t, got, "last week")
		assert.Contains(t, got, "multiple independent sources")
	})
}

func TestPrimaryAdapterUnconfigured(t *testing.T) {
	a := NewPrimaryAdapter(nil)
	assert.False(t, a.Configured())

	_, err := a.Query(context.Background(), &Request{Capability: CapOrganization, Identifier: "acme.com"})
	require.Error(t, err)
	assert.True(t, taskerrors.IsCode(err, taskerrors.ErrCodeProviderUnavailable))
}

func TestPrimaryAdapterQuery(t *testing.T) {
	t.Run("StructuredPayload", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/v1/company/technologies", r.URL.Path)
			assert.Equal(t, "acme.com", r.URL.Query().Get("id"))
			assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
			_, _ = w.Write([]byte(`{"data":{"technologies":[{"name":"Go","category":"language"}]},"credits_consumed":2}`))
		}))
		defer srv.Close()

		a := NewPrimaryAdapter(&PrimaryConfig{APIKey: "secret", BaseURL: srv.URL})
		resp, err := a.Query(context.Background(), &Request{
			Capability: CapTechnologyStack,
			Identifier: "acme.com",
		})
		require.NoError(t, err)
		assert.True(t, resp.Success)
		assert.False(t, resp.Empty())
		assert.Equal(t, 2, resp.UnitsConsumed)
	})

	t.Run("NotFoundIsEmptyNotError", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusNotFound)
		}))
		defer srv.Close()

		a := NewPrimaryAdapter(&PrimaryConfig{APIKey: "secret", BaseURL: srv.URL})
		resp, err := a.Query(context.Background(), &Request{
			Capability: CapOrganization,
			Identifier: "unknown.example",
		})
		require.NoError(t, err)
		assert.True(t, resp.Empty())
	})

	t.Run("ServerErrorIsRetryable", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusBadGateway)
		}))
		defer srv.Close()

		a := NewPrimaryAdapter(&PrimaryConfig{APIKey: "secret", BaseURL: srv.URL})
		_, err := a.Query(context.Background(), &Request{
			Capability: CapOrganization,
			Identifier: "acme.com",
		})
		require.Error(t, err)
		assert.True(t, taskerrors.IsCode(err, taskerrors.ErrCodeTaskExecutionFailed))
		assert.True(t, taskerrors.IsRetryable(err))
	})

	t.Run("UnknownCapability", func(t *testing.T) {
		a := NewPrimaryAdapter(&PrimaryConfig{APIKey: "secret", BaseURL: "http://localhost"})
		_, err := a.Query(context.Background(), &Request{Capability: "astrology", Identifier: "acme.com"})
		require.Error(t, err)
		assert.True(t, taskerrors.IsCode(err, taskerrors.ErrCodeTaskBuildFailed))
	})
}
