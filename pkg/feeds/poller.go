package feeds

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/moecapital/refinery/pkg/models"
	"github.com/moecapital/refinery/pkg/opsnotify"
	"github.com/moecapital/refinery/pkg/store"
)

// Staleness is how old a channel's last poll must be before the poller
// fetches it again.
const Staleness = 15 * time.Minute

// failureNotifyThreshold is the recorded failure count at which a feed is
// reported to the operator channel.
const failureNotifyThreshold = 3

// Sink receives normalized records from polled feeds. Implemented by the
// ingest pipeline; stored reports whether a new item was persisted, so the
// poller's activity count ignores duplicates of already-seen entries.
type Sink interface {
	Ingest(ctx context.Context, rec models.IngestRecord) (stored bool, err error)
}

// SinkFunc adapts a function to the Sink interface.
type SinkFunc func(ctx context.Context, rec models.IngestRecord) (bool, error)

// Ingest implements Sink.
func (f SinkFunc) Ingest(ctx context.Context, rec models.IngestRecord) (bool, error) {
	return f(ctx, rec)
}

// Poller walks registered feed channels and ingests new entries. Duplicate
// entries are absorbed downstream by content-hash deduplication, so the
// poller keeps no per-entry state.
type Poller struct {
	store      *store.Store
	sink       Sink
	ops        *opsnotify.Service
	httpClient *http.Client
	logger     *slog.Logger

	now func() time.Time
}

// NewPoller creates a feed poller. The ops service may be nil.
func NewPoller(st *store.Store, sink Sink, ops *opsnotify.Service) *Poller {
	return &Poller{
		store:      st,
		sink:       sink,
		ops:        ops,
		httpClient: &http.Client{Timeout: FetchTimeout},
		logger:     slog.Default().With("component", "feed-poller"),
		now:        time.Now,
	}
}

// PollDue fetches every active feed channel whose last poll is older than
// the staleness window (or that has never been polled). Per-channel errors
// are recorded on the channel and logged; they do not abort the sweep.
// Returns the number of newly stored items.
func (p *Poller) PollDue(ctx context.Context) (int, error) {
	channels, err := p.store.ListChannels(ctx, models.ChannelTypeFeed)
	if err != nil {
		return 0, err
	}

	now := p.now()
	ingested := 0
	for _, ch := range channels {
		if ch.Status != models.ChannelStatusActive || ch.FeedURL == "" {
			continue
		}
		if ch.LastPolledAt != nil && now.Sub(*ch.LastPolledAt) < Staleness {
			continue
		}
		n, err := p.pollChannel(ctx, ch)
		ingested += n
		if err != nil {
			p.logger.Warn("Feed poll failed",
				"channel", ch.Name, "url", ch.FeedURL, "error", err)
			if terr := p.store.TouchChannel(ctx, ch.ID, 0, 1, p.now()); terr != nil {
				p.logger.Warn("Failed to record poll failure", "channel", ch.Name, "error", terr)
			}
			if failures := ch.FailureCount + 1; failures >= failureNotifyThreshold {
				p.ops.NotifyFeedFailing(ctx, ch.Name, failures)
			}
			continue
		}
		if terr := p.store.TouchChannel(ctx, ch.ID, 1, 0, p.now()); terr != nil {
			p.logger.Warn("Failed to record poll success", "channel", ch.Name, "error", terr)
		}
	}
	return ingested, nil
}

func (p *Poller) pollChannel(ctx context.Context, ch *models.Channel) (int, error) {
	feed, err := Fetch(ctx, p.httpClient, ch.FeedURL)
	if err != nil {
		return 0, err
	}

	ingested := 0
	for _, entry := range feed.Entries {
		text := entry.RawText()
		if text == "" {
			continue
		}
		rec := models.IngestRecord{
			ChatID:    ch.Name,
			MessageID: entry.ID,
			Title:     feed.Title,
			Text:      text,
		}
		if !entry.Published.IsZero() {
			published := entry.Published
			rec.CreatedAt = &published
		}
		stored, err := p.sink.Ingest(ctx, rec)
		if err != nil {
			p.logger.Warn("Feed entry ingest failed",
				"channel", ch.Name, "entry", entry.ID, "error", err)
			continue
		}
		if stored {
			ingested++
		}
	}

	p.logger.Debug("Polled feed channel",
		"channel", ch.Name, "entries", len(feed.Entries), "ingested", ingested)
	return ingested, nil
}
