// Package ingest implements the write path from a normalized record to a
// deduplicated content item: loop guard, PII scrub, media enrichment,
// fingerprinting, analysis reuse, and heartbeat tickle.
package ingest

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"strings"
	"time"

	"github.com/moecapital/refinery/pkg/llm"
	"github.com/moecapital/refinery/pkg/models"
	"github.com/moecapital/refinery/pkg/scrub"
	"github.com/moecapital/refinery/pkg/store"
)

// DefaultAnalysisReuseWindow is how recent a cached analysis must be to be
// reused instead of issuing a fresh LLM call.
const DefaultAnalysisReuseWindow = 24 * time.Hour

// Outcome classifies what the pipeline did with a record.
type Outcome string

// Pipeline outcomes.
const (
	OutcomeStored    Outcome = "stored"     // new item persisted, pending analysis
	OutcomeDuplicate Outcome = "duplicate"  // hash collision, existing id reused
	OutcomeReused    Outcome = "reused"     // cached analysis replayed, no LLM call
	OutcomeDropped   Outcome = "dropped"    // loop guard or scrubber veto
	OutcomeNoContent Outcome = "no_content" // empty text after enrichment
)

// Result is the pipeline's answer for one record.
type Result struct {
	Outcome Outcome
	ItemID  string
}

// Tickler preempts the heartbeat so a freshly stored item is analyzed
// promptly. Implemented by the heartbeat scheduler.
type Tickler interface {
	Preempt()
}

// Promoter replays cached analysis entries into signals. Implemented by the
// analyzer; reused here so analysis reuse mirrors through the same tiered
// routing as fresh analysis. A replay always yields a new signal row, so the
// analyzer's duplicate suppression is bypassed on this path.
type Promoter interface {
	ReplayEntries(ctx context.Context, entries []models.AnalysisEntry, items []*models.ContentItem) (int, error)
}

// Pipeline is the ingest write path. Safe for use from the single writer
// loop; not safe for concurrent Ingest calls by construction of the
// coordinator.
type Pipeline struct {
	store          *store.Store
	scrubber       *scrub.Scrubber
	enricher       MediaEnricher
	tickler        Tickler
	promoter       Promoter
	reuseWindow    time.Duration
	outboundLabels map[string]struct{}
	logger         *slog.Logger
}

// Options configures a Pipeline.
type Options struct {
	// OutboundLabels are the display names of the mirror's own destination
	// channels. Records whose title matches one are dropped (loop guard).
	OutboundLabels []string
	Enricher       MediaEnricher
	Tickler        Tickler
	Promoter       Promoter
	// ReuseWindow overrides DefaultAnalysisReuseWindow when positive.
	ReuseWindow time.Duration
}

// New creates an ingest pipeline.
func New(st *store.Store, scrubber *scrub.Scrubber, opts Options) *Pipeline {
	labels := make(map[string]struct{}, len(opts.OutboundLabels))
	for _, l := range opts.OutboundLabels {
		labels[strings.ToLower(strings.TrimSpace(l))] = struct{}{}
	}
	enricher := opts.Enricher
	if enricher == nil {
		enricher = NoopEnricher{}
	}
	reuseWindow := opts.ReuseWindow
	if reuseWindow <= 0 {
		reuseWindow = DefaultAnalysisReuseWindow
	}
	return &Pipeline{
		store:          st,
		scrubber:       scrubber,
		enricher:       enricher,
		tickler:        opts.Tickler,
		promoter:       opts.Promoter,
		reuseWindow:    reuseWindow,
		outboundLabels: labels,
		logger:         slog.Default().With("component", "ingest"),
	}
}

// SetTickler installs the heartbeat hook. Called once during wiring, after
// the scheduler exists; the pipeline and the scheduler reference each other.
func (p *Pipeline) SetTickler(t Tickler) {
	p.tickler = t
}

// Ingest runs one record through the pipeline. Drops are not errors: the
// returned Result says what happened, and error is reserved for storage
// failures.
func (p *Pipeline) Ingest(ctx context.Context, rec models.IngestRecord) (Result, error) {
	if p.isOutbound(rec.Title) {
		p.logger.Debug("Dropped record matching outbound label", "title", rec.Title)
		return Result{Outcome: OutcomeDropped}, nil
	}

	text, ok := p.scrubber.Scrub(rec.Text)
	if !ok {
		p.logger.Warn("Record vetoed by scrubber", "chat_id", rec.ChatID)
		return Result{Outcome: OutcomeDropped}, nil
	}

	if rec.Media != nil {
		extra, err := p.enricher.Enrich(ctx, rec.Media)
		if err != nil {
			p.logger.Warn("Media enrichment failed, continuing with text only",
				"file_id", rec.Media.FileID, "error", err)
		} else if extra != "" {
			if scrubbed, ok := p.scrubber.Scrub(extra); ok {
				if text != "" {
					text += "\n\n"
				}
				text += scrubbed
			}
		}
	}

	text = strings.TrimSpace(text)
	if text == "" {
		return Result{Outcome: OutcomeNoContent}, nil
	}

	hash := ContentHash(text)

	cached, err := p.store.RecentAnalysisByHash(ctx, hash, p.reuseWindow)
	if err != nil {
		return Result{}, err
	}

	item := &models.ContentItem{
		SourceID:    rec.ChatID,
		SourceName:  sourceName(rec),
		RawText:     text,
		ContentHash: hash,
	}
	if rec.CreatedAt != nil {
		item.CreatedAt = *rec.CreatedAt
	}
	up, err := p.store.UpsertContentItem(ctx, item)
	if err != nil {
		return Result{}, err
	}

	if len(cached) > 0 {
		return p.reuseAnalysis(ctx, up.ID, item, cached)
	}

	if !up.Inserted {
		return Result{Outcome: OutcomeDuplicate, ItemID: up.ID}, nil
	}

	if p.tickler != nil {
		p.tickler.Preempt()
	}
	return Result{Outcome: OutcomeStored, ItemID: up.ID}, nil
}

// reuseAnalysis replays a cached processed_json against the current item id:
// a new Signal row, mirror routing recomputed, zero LLM calls.
func (p *Pipeline) reuseAnalysis(ctx context.Context, itemID string, item *models.ContentItem, cached []byte) (Result, error) {
	entries, err := llm.ParseEntries(string(cached))
	if err != nil {
		p.logger.Warn("Cached analysis unparseable, treating as duplicate",
			"item_id", itemID, "error", err)
		return Result{Outcome: OutcomeDuplicate, ItemID: itemID}, nil
	}

	if p.promoter != nil {
		replay := *item
		replay.ID = itemID
		if _, err := p.promoter.ReplayEntries(ctx, entries, []*models.ContentItem{&replay}); err != nil {
			return Result{}, err
		}
	}
	p.store.LogState(ctx, "ingest", "analysis reused from cache",
		map[string]any{"item_id": itemID, "entries": len(entries)})
	return Result{Outcome: OutcomeReused, ItemID: itemID}, nil
}

func (p *Pipeline) isOutbound(title string) bool {
	_, ok := p.outboundLabels[strings.ToLower(strings.TrimSpace(title))]
	return ok
}

// ContentHash fingerprints scrubbed text: SHA-256, lowercase hex.
func ContentHash(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}

func sourceName(rec models.IngestRecord) string {
	if rec.Title != "" {
		return rec.Title
	}
	return rec.ChatID
}
