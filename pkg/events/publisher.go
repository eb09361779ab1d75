// Package events broadcasts pipeline notifications over Postgres NOTIFY so
// a dashboard can react to new items and signals without polling.
package events

import (
	"context"
	"database/sql"
	"encoding/json"
	"log/slog"
	"time"
)

// Notification channels.
const (
	SignalsChannel = "refinery_signals"
	ItemsChannel   = "refinery_items"
)

// maxNotifyPayload stays under PostgreSQL's 8000-byte NOTIFY limit.
const maxNotifyPayload = 7900

// SignalCreatedPayload announces a newly persisted signal.
type SignalCreatedPayload struct {
	Type           string    `json:"type"` // always "signal.created"
	SignalID       string    `json:"signal_id"`
	Summary        string    `json:"summary"`
	RelevanceScore int       `json:"relevance_score"`
	Urgent         bool      `json:"urgent"`
	CreatedAt      time.Time `json:"created_at"`
}

// ItemIngestedPayload announces a newly stored content item.
type ItemIngestedPayload struct {
	Type     string `json:"type"` // always "item.ingested"
	ItemID   string `json:"item_id"`
	SourceID string `json:"source_id"`
}

// Publisher broadcasts transient events via pg_notify. All methods are
// nil-safe and best-effort: a nil receiver and notify failures are no-ops
// beyond a log line, since events are a convenience surface.
type Publisher struct {
	db *sql.DB
}

// NewPublisher creates a publisher over the store's *sql.DB.
func NewPublisher(db *sql.DB) *Publisher {
	return &Publisher{db: db}
}

// SignalCreated broadcasts a signal.created event.
func (p *Publisher) SignalCreated(ctx context.Context, payload SignalCreatedPayload) {
	payload.Type = "signal.created"
	p.notify(ctx, SignalsChannel, payload)
}

// ItemIngested broadcasts an item.ingested event.
func (p *Publisher) ItemIngested(ctx context.Context, payload ItemIngestedPayload) {
	payload.Type = "item.ingested"
	p.notify(ctx, ItemsChannel, payload)
}

func (p *Publisher) notify(ctx context.Context, channel string, payload any) {
	if p == nil || p.db == nil {
		return
	}
	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		slog.Warn("Failed to marshal event payload", "channel", channel, "error", err)
		return
	}
	if len(payloadJSON) > maxNotifyPayload {
		slog.Warn("Event payload exceeds NOTIFY limit, dropping",
			"channel", channel, "size", len(payloadJSON))
		return
	}
	if _, err := p.db.ExecContext(ctx, "SELECT pg_notify($1, $2)", channel, string(payloadJSON)); err != nil {
		slog.Warn("pg_notify failed", "channel", channel, "error", err)
	}
}
