package models

import "time"

// ChannelType classifies an upstream source.
type ChannelType string

// Channel types.
const (
	ChannelTypeChat    ChannelType = "chat"
	ChannelTypeFeed    ChannelType = "feed"
	ChannelTypeWebhook ChannelType = "webhook"
)

// IsValid reports whether the channel type is one of the known values.
func (t ChannelType) IsValid() bool {
	switch t {
	case ChannelTypeChat, ChannelTypeFeed, ChannelTypeWebhook:
		return true
	}
	return false
}

// ChannelStatus is the operator-controlled state of a channel.
type ChannelStatus string

// Channel statuses.
const (
	ChannelStatusActive  ChannelStatus = "active"
	ChannelStatusIgnored ChannelStatus = "ignored"
)

// Channel is a known upstream source. Channels are upserted on first
// sighting and updated by the feed poller and operator commands.
type Channel struct {
	ID           string        `json:"id"`
	Name         string        `json:"name"`
	Type         ChannelType   `json:"type"`
	FeedURL      string        `json:"feed_url,omitempty"`
	LastPolledAt *time.Time    `json:"last_polled_at,omitempty"`
	SuccessCount int           `json:"success_count"`
	FailureCount int           `json:"failure_count"`
	Status       ChannelStatus `json:"status"`
	CreatedAt    time.Time     `json:"created_at"`
}

// InternalLog is a time-stamped pipeline state record kept in storage for
// operator debugging. Pruned by the janitor.
type InternalLog struct {
	ID        int64          `json:"id"`
	Module    string         `json:"module"`
	Message   string         `json:"message"`
	Context   map[string]any `json:"context,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

// Stats holds the O(1) pipeline counters.
type Stats struct {
	Items    int64 `json:"items"`
	Signals  int64 `json:"signals"`
	Channels int64 `json:"channels"`
}
