package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func modelResponse(text string) string {
	resp := map[string]any{
		"candidates": []map[string]any{
			{"content": map[string]any{"parts": []map[string]string{{"text": text}}}},
		},
	}
	b, _ := json.Marshal(resp)
	return string(b)
}

func TestAnalyzeHappyPath(t *testing.T) {
	var gotReq generateRequest
	var gotAuth string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotReq))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(modelResponse(`[{"summary": "Fed decision", "relevance_score": 66}]`)))
	}))
	defer server.Close()

	client := NewClient(Config{Endpoint: server.URL, APIKey: "test-key", Temperature: 0.2})
	entries, raw, err := client.Analyze(context.Background(), "[ID: a] some text", "system prompt")
	require.NoError(t, err)

	require.Len(t, entries, 1)
	assert.Equal(t, "Fed decision", entries[0].Summary)
	assert.Equal(t, 66, entries[0].RelevanceScore)
	assert.JSONEq(t, `[{"summary": "Fed decision", "relevance_score": 66}]`, string(raw))

	assert.Equal(t, "Bearer test-key", gotAuth)
	require.Len(t, gotReq.Contents, 1)
	assert.Equal(t, "[ID: a] some text", gotReq.Contents[0].Parts[0].Text)
	require.NotNil(t, gotReq.SystemInstruction)
	assert.Equal(t, "system prompt", gotReq.SystemInstruction.Parts[0].Text)
	assert.Equal(t, "application/json", gotReq.GenerationConfig.ResponseMimeType)
	assert.InDelta(t, 0.2, gotReq.GenerationConfig.Temperature, 1e-9)

	assert.Equal(t, int64(1), client.Calls())
}

func TestAnalyzeTransientErrors(t *testing.T) {
	for _, status := range []int{http.StatusTooManyRequests, http.StatusInternalServerError, http.StatusBadGateway} {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(status)
		}))
		_, _, err := NewClient(Config{Endpoint: server.URL}).Analyze(context.Background(), "text", "prompt")
		assert.ErrorIs(t, err, ErrTransient, "status %d", status)
		server.Close()
	}
}

func TestAnalyzeMalformedErrors(t *testing.T) {
	t.Run("4xx is permanent", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadRequest)
		}))
		defer server.Close()
		_, _, err := NewClient(Config{Endpoint: server.URL}).Analyze(context.Background(), "text", "prompt")
		assert.ErrorIs(t, err, ErrMalformed)
	})
	t.Run("empty candidates", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"candidates": []}`))
		}))
		defer server.Close()
		_, _, err := NewClient(Config{Endpoint: server.URL}).Analyze(context.Background(), "text", "prompt")
		assert.ErrorIs(t, err, ErrMalformed)
	})
	t.Run("unparseable model text", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(modelResponse("sorry, I cannot help with that")))
		}))
		defer server.Close()
		_, _, err := NewClient(Config{Endpoint: server.URL}).Analyze(context.Background(), "text", "prompt")
		assert.ErrorIs(t, err, ErrMalformed)
	})
}

func TestAnalyzeNetworkErrorIsTransient(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	server.Close() // refuse connections

	_, _, err := NewClient(Config{Endpoint: server.URL}).Analyze(context.Background(), "text", "prompt")
	assert.ErrorIs(t, err, ErrTransient)
}

func TestGenerateFreeForm(t *testing.T) {
	var gotReq generateRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotReq))
		w.Write([]byte(modelResponse("deep dive text")))
	}))
	defer server.Close()

	out, err := NewClient(Config{Endpoint: server.URL}).Generate(context.Background(), "input", "prompt")
	require.NoError(t, err)
	assert.Equal(t, "deep dive text", out)
	// Free-form generation does not force JSON output.
	assert.Empty(t, gotReq.GenerationConfig.ResponseMimeType)
}
