// Package mirror publishes promoted signals to chat destinations, routed by
// relevance tier. Delivery is best-effort: a signal that cannot be delivered
// is still persisted upstream.
package mirror

import (
	"context"
	"errors"
	"fmt"
	"html"
	"log/slog"
	"strings"
	"time"

	"github.com/moecapital/refinery/pkg/chat"
	"github.com/moecapital/refinery/pkg/models"
)

// Default tier thresholds on relevance_score.
const (
	DefaultPrimaryThreshold   = 80
	DefaultSecondaryThreshold = 60
)

// MaxMessageLen is the platform limit a rendered card is truncated to.
const MaxMessageLen = 4000

// maxAttempts and backoff schedule for retryable send failures.
const maxAttempts = 3

var backoff = []time.Duration{time.Second, 2 * time.Second, 4 * time.Second}

// Config names the destination chats per tier. An empty chat id disables
// that tier. Zero thresholds take the defaults.
type Config struct {
	PrimaryChatID   string
	SecondaryChatID string
	// AdminChatID additionally receives urgent signals, whatever their tier.
	AdminChatID string

	PrimaryThreshold   int
	SecondaryThreshold int
}

// Mirror renders and delivers signal cards.
type Mirror struct {
	cfg    Config
	sender chat.Sender
	logger *slog.Logger

	sleep func(context.Context, time.Duration) error
}

// New creates a mirror over the given sender.
func New(cfg Config, sender chat.Sender) *Mirror {
	if cfg.PrimaryThreshold <= 0 {
		cfg.PrimaryThreshold = DefaultPrimaryThreshold
	}
	if cfg.SecondaryThreshold <= 0 {
		cfg.SecondaryThreshold = DefaultSecondaryThreshold
	}
	return &Mirror{
		cfg:    cfg,
		sender: sender,
		logger: slog.Default().With("component", "mirror"),
		sleep:  sleepCtx,
	}
}

// Route returns the destination chat for a relevance score, or "" when the
// score falls below the secondary tier.
func (m *Mirror) Route(score int) string {
	switch {
	case score >= m.cfg.PrimaryThreshold:
		return m.cfg.PrimaryChatID
	case score >= m.cfg.SecondaryThreshold:
		return m.cfg.SecondaryChatID
	default:
		return ""
	}
}

// Publish renders the signal as a card and delivers it to the tier's chat.
// Signals below the secondary tier, and tiers with no configured chat, are
// dropped silently. Returns whether a send was attempted.
func (m *Mirror) Publish(ctx context.Context, sig *models.Signal) (bool, error) {
	chatID := m.Route(sig.RelevanceScore)
	if chatID == "" {
		return false, nil
	}

	msg := chat.Message{
		ChatID: chatID,
		Text:   RenderCard(sig),
		Board:  callbackKeyboard(sig),
	}
	err := m.sendWithRetry(ctx, msg)

	// Urgent signals also land in the admin chat. Best-effort; the tier
	// delivery result is what Publish reports.
	if sig.Urgent && m.cfg.AdminChatID != "" && m.cfg.AdminChatID != chatID {
		adminMsg := msg
		adminMsg.ChatID = m.cfg.AdminChatID
		if aerr := m.sendWithRetry(ctx, adminMsg); aerr != nil {
			m.logger.Warn("Urgent copy to admin chat failed",
				"chat_id", adminMsg.ChatID, "error", aerr)
		}
	}
	return true, err
}

// sendWithRetry delivers a message, retrying retryable failures with fixed
// backoff. Permanent failures return immediately.
func (m *Mirror) sendWithRetry(ctx context.Context, msg chat.Message) error {
	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if attempt > 0 {
			if err := m.sleep(ctx, backoff[attempt-1]); err != nil {
				return err
			}
		}
		lastErr = m.sender.Send(ctx, msg)
		if lastErr == nil {
			return nil
		}
		if !errors.Is(lastErr, chat.ErrRetryable) {
			return lastErr
		}
		m.logger.Warn("Signal delivery attempt failed",
			"chat_id", msg.ChatID, "attempt", attempt+1, "error", lastErr)
	}
	return fmt.Errorf("delivery failed after %d attempts: %w", maxAttempts, lastErr)
}

// RenderCard formats a signal as an HTML chat message. All model-derived
// text is escaped; the card is truncated to the platform limit on a word
// boundary.
func RenderCard(sig *models.Signal) string {
	var b strings.Builder

	if sig.Urgent {
		b.WriteString("🚨 <b>URGENT</b>\n")
	}
	fmt.Fprintf(&b, "<b>%s</b>\n\n", html.EscapeString(sig.Summary))

	if sig.Analysis != "" {
		b.WriteString(html.EscapeString(sig.Analysis))
		b.WriteString("\n\n")
	}
	if sig.FactCheck != "" {
		fmt.Fprintf(&b, "<i>Fact check: %s</i>\n\n", html.EscapeString(sig.FactCheck))
	}

	fmt.Fprintf(&b, "Score: %d | Sentiment: %s",
		sig.RelevanceScore, sentimentBadge(sig.Sentiment))
	if len(sig.Tickers) > 0 {
		fmt.Fprintf(&b, "\nTickers: %s", html.EscapeString(strings.Join(sig.Tickers, " ")))
	}
	if len(sig.Tags) > 0 {
		fmt.Fprintf(&b, "\nTags: %s", html.EscapeString(strings.Join(sig.Tags, ", ")))
	}
	if sig.SourceName != "" {
		fmt.Fprintf(&b, "\nSource: %s", html.EscapeString(sig.SourceName))
	}

	return TruncateOnWord(b.String(), MaxMessageLen)
}

func sentimentBadge(sentiment models.Sentiment) string {
	switch sentiment {
	case models.SentimentBullish:
		return "📈 bullish"
	case models.SentimentBearish:
		return "📉 bearish"
	default:
		return "➖ neutral"
	}
}

// callbackKeyboard builds the per-signal action row. Buttons carry the first
// source item id so deep dives resolve against stored content.
func callbackKeyboard(sig *models.Signal) *chat.Keyboard {
	if len(sig.SourceItemIDs) == 0 {
		return nil
	}
	itemID := sig.SourceItemIDs[0]
	return &chat.Keyboard{Rows: [][]chat.Button{{
		{Text: "Fact-check", Data: "CALLBACK:chk:" + itemID},
		{Text: "Synthesize", Data: "CALLBACK:syn:" + itemID},
		{Text: "Deep dive", Data: "CALLBACK:div:" + itemID},
	}}}
}

// TruncateOnWord caps text at max runes, cutting back to the last word
// boundary and appending an ellipsis. Text at or under the limit is returned
// unchanged.
func TruncateOnWord(text string, max int) string {
	runes := []rune(text)
	if len(runes) <= max {
		return text
	}
	const ellipsis = "…"
	cut := runes[:max-1]
	if idx := lastSpace(cut); idx > 0 {
		cut = cut[:idx]
	}
	return strings.TrimRight(string(cut), " \n\t") + ellipsis
}

func lastSpace(runes []rune) int {
	for i := len(runes) - 1; i >= 0; i-- {
		switch runes[i] {
		case ' ', '\n', '\t':
			return i
		}
	}
	return -1
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
