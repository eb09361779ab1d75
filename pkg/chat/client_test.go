package chat

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSendPayload(t *testing.T) {
	var gotAuth string
	var gotBody map[string]json.RawMessage
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		w.Write([]byte(`{"ok": true}`))
	}))
	defer server.Close()

	client := NewClient(Config{Endpoint: server.URL, Token: "secret"})
	err := client.Send(context.Background(), Message{
		ChatID: "-100123",
		Text:   "<b>hello</b>",
		Board: &Keyboard{Rows: [][]Button{{
			{Text: "Go", Data: "CALLBACK:div:item-1"},
		}}},
	})
	require.NoError(t, err)

	assert.Equal(t, "Bearer secret", gotAuth)
	assert.JSONEq(t, `"-100123"`, string(gotBody["chat_id"]))
	assert.JSONEq(t, `"<b>hello</b>"`, string(gotBody["text"]))
	assert.JSONEq(t, `"HTML"`, string(gotBody["parse_mode"]))
	assert.JSONEq(t,
		`{"inline_keyboard": [[{"text": "Go", "callback_data": "CALLBACK:div:item-1"}]]}`,
		string(gotBody["reply_markup"]))
}

func TestSendOmitsEmptyKeyboard(t *testing.T) {
	var gotBody map[string]json.RawMessage
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
	}))
	defer server.Close()

	err := NewClient(Config{Endpoint: server.URL}).Send(context.Background(),
		Message{ChatID: "c", Text: "t"})
	require.NoError(t, err)
	assert.NotContains(t, gotBody, "reply_markup")
}

func TestSendErrorClassification(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		retryable bool
	}{
		{"rate limited", http.StatusTooManyRequests, true},
		{"server error", http.StatusInternalServerError, true},
		{"bad gateway", http.StatusBadGateway, true},
		{"bad request is permanent", http.StatusBadRequest, false},
		{"forbidden is permanent", http.StatusForbidden, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
			}))
			defer server.Close()

			err := NewClient(Config{Endpoint: server.URL}).Send(context.Background(),
				Message{ChatID: "c", Text: "t"})
			require.Error(t, err)
			assert.Equal(t, tt.retryable, errors.Is(err, ErrRetryable))
		})
	}
}

func TestSendNetworkErrorIsRetryable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	server.Close()

	err := NewClient(Config{Endpoint: server.URL}).Send(context.Background(),
		Message{ChatID: "c", Text: "t"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrRetryable))
}
