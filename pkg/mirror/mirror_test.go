package mirror

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/moecapital/refinery/pkg/chat"
	"github.com/moecapital/refinery/pkg/models"
)

// fakeSender records sends and fails a configurable number of times.
type fakeSender struct {
	failures int
	failWith error
	sent     []chat.Message
}

func (f *fakeSender) Send(ctx context.Context, msg chat.Message) error {
	if f.failures > 0 {
		f.failures--
		return f.failWith
	}
	f.sent = append(f.sent, msg)
	return nil
}

func newTestMirror(sender chat.Sender) *Mirror {
	m := New(Config{PrimaryChatID: "primary", SecondaryChatID: "secondary"}, sender)
	m.sleep = func(ctx context.Context, d time.Duration) error { return nil }
	return m
}

func TestRoute(t *testing.T) {
	m := newTestMirror(&fakeSender{})

	assert.Equal(t, "primary", m.Route(100))
	assert.Equal(t, "primary", m.Route(80))
	assert.Equal(t, "secondary", m.Route(79))
	assert.Equal(t, "secondary", m.Route(60))
	assert.Empty(t, m.Route(59))
	assert.Empty(t, m.Route(0))
}

func TestPublishRoutesByTier(t *testing.T) {
	sender := &fakeSender{}
	m := newTestMirror(sender)

	attempted, err := m.Publish(context.Background(), &models.Signal{
		Summary: "big news", RelevanceScore: 85,
	})
	require.NoError(t, err)
	assert.True(t, attempted)

	attempted, err = m.Publish(context.Background(), &models.Signal{
		Summary: "medium news", RelevanceScore: 65,
	})
	require.NoError(t, err)
	assert.True(t, attempted)

	attempted, err = m.Publish(context.Background(), &models.Signal{
		Summary: "noise", RelevanceScore: 41,
	})
	require.NoError(t, err)
	assert.False(t, attempted, "below secondary tier: dropped silently")

	require.Len(t, sender.sent, 2)
	assert.Equal(t, "primary", sender.sent[0].ChatID)
	assert.Equal(t, "secondary", sender.sent[1].ChatID)
}

func TestRouteCustomThresholds(t *testing.T) {
	m := New(Config{
		PrimaryChatID: "primary", SecondaryChatID: "secondary",
		PrimaryThreshold: 90, SecondaryThreshold: 70,
	}, &fakeSender{})

	assert.Equal(t, "primary", m.Route(90))
	assert.Equal(t, "secondary", m.Route(89))
	assert.Equal(t, "secondary", m.Route(70))
	assert.Empty(t, m.Route(69))
}

func TestPublishUrgentCopiesToAdmin(t *testing.T) {
	sender := &fakeSender{}
	m := New(Config{PrimaryChatID: "primary", SecondaryChatID: "secondary", AdminChatID: "admin"}, sender)
	m.sleep = func(ctx context.Context, d time.Duration) error { return nil }

	_, err := m.Publish(context.Background(), &models.Signal{
		Summary: "urgent news", RelevanceScore: 90, Urgent: true,
	})
	require.NoError(t, err)
	require.Len(t, sender.sent, 2)
	assert.Equal(t, "primary", sender.sent[0].ChatID)
	assert.Equal(t, "admin", sender.sent[1].ChatID)

	// Non-urgent signals stay on their tier.
	sender.sent = nil
	_, err = m.Publish(context.Background(), &models.Signal{
		Summary: "calm news", RelevanceScore: 90,
	})
	require.NoError(t, err)
	require.Len(t, sender.sent, 1)
	assert.Equal(t, "primary", sender.sent[0].ChatID)

	// No double delivery when the tier chat is the admin chat.
	m2 := New(Config{PrimaryChatID: "admin", AdminChatID: "admin"}, sender)
	sender.sent = nil
	_, err = m2.Publish(context.Background(), &models.Signal{
		Summary: "urgent news", RelevanceScore: 90, Urgent: true,
	})
	require.NoError(t, err)
	assert.Len(t, sender.sent, 1)
}

func TestPublishUnconfiguredTier(t *testing.T) {
	sender := &fakeSender{}
	m := New(Config{PrimaryChatID: "primary"}, sender) // no secondary

	attempted, err := m.Publish(context.Background(), &models.Signal{
		Summary: "medium news", RelevanceScore: 70,
	})
	require.NoError(t, err)
	assert.False(t, attempted)
	assert.Empty(t, sender.sent)
}

func TestSendWithRetry(t *testing.T) {
	t.Run("recovers from transient failures", func(t *testing.T) {
		sender := &fakeSender{failures: 2, failWith: fmt.Errorf("wrap: %w", chat.ErrRetryable)}
		m := newTestMirror(sender)

		_, err := m.Publish(context.Background(), &models.Signal{Summary: "s", RelevanceScore: 90})
		require.NoError(t, err)
		assert.Len(t, sender.sent, 1)
	})

	t.Run("gives up after max attempts", func(t *testing.T) {
		sender := &fakeSender{failures: 10, failWith: fmt.Errorf("wrap: %w", chat.ErrRetryable)}
		m := newTestMirror(sender)

		_, err := m.Publish(context.Background(), &models.Signal{Summary: "s", RelevanceScore: 90})
		require.Error(t, err)
		assert.Equal(t, 7, sender.failures, "exactly 3 attempts consumed")
	})

	t.Run("permanent failure returns immediately", func(t *testing.T) {
		sender := &fakeSender{failures: 10, failWith: fmt.Errorf("send rejected: HTTP 400")}
		m := newTestMirror(sender)

		_, err := m.Publish(context.Background(), &models.Signal{Summary: "s", RelevanceScore: 90})
		require.Error(t, err)
		assert.Equal(t, 9, sender.failures, "no retry on permanent failure")
	})
}

func TestRenderCard(t *testing.T) {
	sig := &models.Signal{
		Summary:        "Fed cuts rates by 50bps",
		Analysis:       "Bigger cut than consensus expected.",
		FactCheck:      "Confirmed by the official statement.",
		Sentiment:      models.SentimentBullish,
		RelevanceScore: 91,
		Urgent:         true,
		Tickers:        []string{"SPY", "TLT"},
		Tags:           []string{"macro", "rates"},
		SourceName:     "Market Wire",
	}
	card := RenderCard(sig)

	assert.Contains(t, card, "🚨 <b>URGENT</b>")
	assert.Contains(t, card, "<b>Fed cuts rates by 50bps</b>")
	assert.Contains(t, card, "Bigger cut than consensus expected.")
	assert.Contains(t, card, "<i>Fact check: Confirmed by the official statement.</i>")
	assert.Contains(t, card, "Score: 91 | Sentiment: 📈 bullish")
	assert.Contains(t, card, "Tickers: SPY TLT")
	assert.Contains(t, card, "Tags: macro, rates")
	assert.Contains(t, card, "Source: Market Wire")
}

func TestRenderCardEscapesHTML(t *testing.T) {
	card := RenderCard(&models.Signal{
		Summary:        `<script>alert("x")</script> & more`,
		RelevanceScore: 70,
	})
	assert.NotContains(t, card, "<script>")
	assert.Contains(t, card, "&lt;script&gt;")
	assert.Contains(t, card, "&amp; more")
}

func TestRenderCardMinimal(t *testing.T) {
	card := RenderCard(&models.Signal{Summary: "quiet day", RelevanceScore: 62})
	assert.NotContains(t, card, "URGENT")
	assert.NotContains(t, card, "Fact check")
	assert.NotContains(t, card, "Tickers")
	assert.Contains(t, card, "Sentiment: ➖ neutral")
}

func TestCallbackKeyboard(t *testing.T) {
	sig := &models.Signal{Summary: "s", RelevanceScore: 85, SourceItemIDs: []string{"item-7", "item-8"}}
	board := callbackKeyboard(sig)
	require.NotNil(t, board)
	require.Len(t, board.Rows, 1)
	require.Len(t, board.Rows[0], 3)
	assert.Equal(t, "CALLBACK:chk:item-7", board.Rows[0][0].Data)
	assert.Equal(t, "CALLBACK:syn:item-7", board.Rows[0][1].Data)
	assert.Equal(t, "CALLBACK:div:item-7", board.Rows[0][2].Data)

	assert.Nil(t, callbackKeyboard(&models.Signal{Summary: "s"}))
}

func TestTruncateOnWord(t *testing.T) {
	t.Run("short text unchanged", func(t *testing.T) {
		assert.Equal(t, "hello world", TruncateOnWord("hello world", 100))
	})

	t.Run("cuts on word boundary", func(t *testing.T) {
		got := TruncateOnWord("alpha beta gamma delta", 17)
		assert.Equal(t, "alpha beta…", got)
	})

	t.Run("exact limit unchanged", func(t *testing.T) {
		text := strings.Repeat("a", 50)
		assert.Equal(t, text, TruncateOnWord(text, 50))
	})

	t.Run("no space falls back to hard cut", func(t *testing.T) {
		text := strings.Repeat("a", 100)
		got := TruncateOnWord(text, 20)
		assert.LessOrEqual(t, len([]rune(got)), 20)
		assert.True(t, strings.HasSuffix(got, "…"))
	})

	t.Run("rendered card capped", func(t *testing.T) {
		card := RenderCard(&models.Signal{
			Summary:        strings.Repeat("word ", 2000),
			RelevanceScore: 85,
		})
		assert.LessOrEqual(t, len([]rune(card)), MaxMessageLen)
	})
}
