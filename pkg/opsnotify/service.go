package opsnotify

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	goslack "github.com/slack-go/slack"
)

const (
	postTimeout = 5 * time.Second

	// Incident suppression: the same incident key is reported at most once
	// per window so a flapping feed does not flood the channel.
	suppressWindow = time.Hour
	suppressSize   = 256
)

// ServiceConfig holds the parameters needed to construct a Service.
type ServiceConfig struct {
	Token   string
	Channel string
}

// Service handles operator notification delivery.
// Nil-safe: all methods are no-ops when service is nil.
type Service struct {
	client *Client
	recent *expirable.LRU[string, struct{}]
	logger *slog.Logger
}

// NewService creates a notification service.
// Returns nil if Token or Channel is empty.
func NewService(cfg ServiceConfig) *Service {
	if cfg.Token == "" || cfg.Channel == "" {
		return nil
	}
	return newService(NewClient(cfg.Token, cfg.Channel))
}

// NewServiceWithClient creates a Service backed by a pre-built Client.
// Useful for testing with a mock API server.
func NewServiceWithClient(client *Client) *Service {
	return newService(client)
}

func newService(client *Client) *Service {
	return &Service{
		client: client,
		recent: expirable.NewLRU[string, struct{}](suppressSize, nil, suppressWindow),
		logger: slog.Default().With("component", "opsnotify"),
	}
}

// NotifyItemFailed reports an item that exhausted its retries.
// Fail-open: errors are logged, never returned.
func (s *Service) NotifyItemFailed(ctx context.Context, itemID, lastError string) {
	if s == nil || s.suppressed("item:"+itemID) {
		return
	}
	text := fmt.Sprintf(":x: *Analysis gave up on item* `%s`\nLast error: %s",
		itemID, truncate(lastError, 500))
	s.post(ctx, text)
}

// NotifyFeedFailing reports a feed channel with consecutive poll failures.
func (s *Service) NotifyFeedFailing(ctx context.Context, channelName string, failures int) {
	if s == nil || s.suppressed("feed:"+channelName) {
		return
	}
	text := fmt.Sprintf(":warning: *Feed channel failing* `%s` (%d consecutive failures)",
		channelName, failures)
	s.post(ctx, text)
}

// NotifyUrgentSignal reports an urgent signal so the operator sees it even
// when away from the mirror channels.
func (s *Service) NotifyUrgentSignal(ctx context.Context, signalID, summary string) {
	if s == nil || s.suppressed("signal:"+signalID) {
		return
	}
	text := fmt.Sprintf(":rotating_light: *Urgent signal* %s", truncate(summary, 500))
	s.post(ctx, text)
}

func (s *Service) post(ctx context.Context, text string) {
	blocks := []goslack.Block{
		goslack.NewSectionBlock(
			goslack.NewTextBlockObject(goslack.MarkdownType, text, false, false),
			nil, nil,
		),
	}
	if err := s.client.PostMessage(ctx, blocks, postTimeout); err != nil {
		s.logger.Error("Failed to send operator notification", "error", err)
	}
}

// suppressed records the key and reports whether it was already reported
// inside the window.
func (s *Service) suppressed(key string) bool {
	if _, seen := s.recent.Get(key); seen {
		return true
	}
	s.recent.Add(key, struct{}{})
	return false
}

func truncate(text string, max int) string {
	if len(text) <= max {
		return text
	}
	return text[:max] + "..."
}
