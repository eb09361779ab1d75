// Package analyzer converts pending content items into signals through
// batched LLM calls, with per-source grouping, retry bookkeeping, and
// duplicate suppression on promotion.
package analyzer

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync/atomic"
	"time"

	"github.com/moecapital/refinery/pkg/events"
	"github.com/moecapital/refinery/pkg/llm"
	"github.com/moecapital/refinery/pkg/mirror"
	"github.com/moecapital/refinery/pkg/models"
	"github.com/moecapital/refinery/pkg/opsnotify"
	"github.com/moecapital/refinery/pkg/store"
)

// Default batch and promotion parameters.
const (
	// DefaultBatchMax caps how many pending items one invocation takes.
	DefaultBatchMax = 20
	// DefaultMaxRetries is the terminal retry cap; at the cap an item moves
	// to the failed state and is never re-analyzed.
	DefaultMaxRetries = 5
	// PromoteThreshold: entries scoring above it become signals.
	PromoteThreshold = 40
	// DefaultDupSuppressWindow suppresses a signal whose fingerprint matches
	// one created inside the window.
	DefaultDupSuppressWindow = 6 * time.Hour
	// DefaultDigestLookback selects never-promoted items for digest
	// synthesis.
	DefaultDigestLookback = 24 * time.Hour
	// digestBatchLimit caps how many items one digest pass considers.
	digestBatchLimit = 100
)

// Params tunes the analysis loop. Zero fields take the defaults above.
type Params struct {
	BatchMax          int
	MaxRetries        int
	DupSuppressWindow time.Duration
	DigestLookback    time.Duration
}

func (p Params) withDefaults() Params {
	if p.BatchMax <= 0 {
		p.BatchMax = DefaultBatchMax
	}
	if p.MaxRetries <= 0 {
		p.MaxRetries = DefaultMaxRetries
	}
	if p.DupSuppressWindow <= 0 {
		p.DupSuppressWindow = DefaultDupSuppressWindow
	}
	if p.DigestLookback <= 0 {
		p.DigestLookback = DefaultDigestLookback
	}
	return p
}

// Outcome summarizes one analyzer invocation.
type Outcome struct {
	Taken    int  // items taken from the pending set
	Promoted int  // signals created
	Failed   int  // items whose retry counter was bumped
	Backlog  bool // pending items remain after this pass
}

// Analyzer runs the batch analysis loop. Invoked only from the single
// writer; two concurrent invocations are forbidden.
type Analyzer struct {
	store  *store.Store
	llm    *llm.Client
	mirror *mirror.Mirror
	events *events.Publisher
	ops    *opsnotify.Service
	params Params
	logger *slog.Logger

	// generation increments on every saved signal; read-side caches key
	// their entries on it so a new signal invalidates them.
	generation atomic.Int64
}

// New creates an analyzer. The events publisher and ops service may be nil.
func New(st *store.Store, client *llm.Client, m *mirror.Mirror, pub *events.Publisher, ops *opsnotify.Service, params Params) *Analyzer {
	return &Analyzer{
		store:  st,
		llm:    client,
		mirror: m,
		events: pub,
		ops:    ops,
		params: params.withDefaults(),
		logger: slog.Default().With("component", "analyzer"),
	}
}

// Generation returns the signal-write generation counter.
func (a *Analyzer) Generation() int64 {
	return a.generation.Load()
}

// RunOnce takes one batch of pending items and processes it: group by
// source, one LLM call per group, write-back, promotion. Group failures are
// absorbed into retry bookkeeping and never abort the other groups.
func (a *Analyzer) RunOnce(ctx context.Context) (Outcome, error) {
	items, err := a.store.TakePendingBatch(ctx, a.params.BatchMax, a.params.MaxRetries)
	if err != nil {
		return Outcome{}, err
	}
	if len(items) == 0 {
		return Outcome{}, nil
	}

	out := Outcome{Taken: len(items)}
	for _, group := range groupBySource(items) {
		promoted, err := a.analyzeGroup(ctx, group, llm.AnalysisSystemPrompt, true)
		if err != nil {
			out.Failed += len(group)
			a.bumpGroup(ctx, group, err)
			continue
		}
		out.Promoted += promoted
	}

	pending, err := a.store.CountPending(ctx, a.params.MaxRetries)
	if err != nil {
		a.logger.Warn("Failed to count pending backlog", "error", err)
	}
	out.Backlog = pending > 0

	a.logger.Info("Analyzer pass complete",
		"taken", out.Taken, "promoted", out.Promoted,
		"failed", out.Failed, "backlog", out.Backlog)
	return out, nil
}

// analyzeGroup sends one per-source group to the model and handles
// write-back and promotion. writeBack controls whether processed_json is
// attached to the items (digest synthesis skips it).
func (a *Analyzer) analyzeGroup(ctx context.Context, group []*models.ContentItem, systemPrompt string, writeBack bool) (int, error) {
	entries, raw, err := a.llm.Analyze(ctx, BatchText(group), systemPrompt)
	if err != nil {
		return 0, err
	}

	if writeBack {
		analyzedAt := time.Now()
		for _, item := range group {
			if err := a.store.WriteAnalysis(ctx, item.ID, raw, analyzedAt); err != nil {
				return 0, fmt.Errorf("write analysis for %s: %w", item.ID, err)
			}
		}
	}

	return a.PromoteEntries(ctx, entries, group)
}

// PromoteEntries turns qualifying analysis entries into signals: threshold
// check, fingerprint-based duplicate suppression, persistence, promotion of
// the referenced items, and mirror delivery.
func (a *Analyzer) PromoteEntries(ctx context.Context, entries []models.AnalysisEntry, group []*models.ContentItem) (int, error) {
	return a.promote(ctx, entries, group, true)
}

// ReplayEntries is the ingest pipeline's analysis-reuse path: a cached
// analysis replayed against a re-ingested item always yields a fresh signal,
// so the fingerprint suppression that guards fresh analysis does not apply.
func (a *Analyzer) ReplayEntries(ctx context.Context, entries []models.AnalysisEntry, group []*models.ContentItem) (int, error) {
	return a.promote(ctx, entries, group, false)
}

func (a *Analyzer) promote(ctx context.Context, entries []models.AnalysisEntry, group []*models.ContentItem, suppressDuplicates bool) (int, error) {
	byID := make(map[string]*models.ContentItem, len(group))
	for _, item := range group {
		byID[item.ID] = item
	}

	promoted := 0
	for _, entry := range entries {
		if entry.RelevanceScore <= PromoteThreshold {
			continue
		}

		sourceIDs := resolveSourceIDs(entry.SourceIDs, byID, group)
		if len(sourceIDs) == 0 {
			continue
		}

		fp := models.SignalFingerprint(sourceIDs, entry.Summary)
		if suppressDuplicates {
			dup, err := a.store.RecentSignalByFingerprint(ctx, fp, a.params.DupSuppressWindow)
			if err != nil {
				return promoted, err
			}
			if dup {
				a.logger.Debug("Suppressed duplicate signal", "summary", entry.Summary)
				continue
			}
		}

		sig := &models.Signal{
			SourceItemIDs:  sourceIDs,
			SourceName:     byID[sourceIDs[0]].SourceName,
			Summary:        entry.Summary,
			Analysis:       entry.Analysis,
			FactCheck:      entry.FactCheck,
			Sentiment:      models.ParseSentiment(entry.Sentiment),
			RelevanceScore: entry.RelevanceScore,
			Urgent:         entry.IsUrgent,
			Tickers:        canonicalTickers(entry.Tickers),
			Tags:           entry.Tags,
			Fingerprint:    fp,
		}
		if err := a.store.SaveSignal(ctx, sig); err != nil {
			return promoted, err
		}
		for _, id := range sourceIDs {
			if err := a.store.MarkPromoted(ctx, id); err != nil {
				return promoted, err
			}
		}
		promoted++
		a.generation.Add(1)

		if sig.Urgent {
			a.ops.NotifyUrgentSignal(ctx, sig.ID, sig.Summary)
		}
		a.events.SignalCreated(ctx, events.SignalCreatedPayload{
			SignalID:       sig.ID,
			Summary:        sig.Summary,
			RelevanceScore: sig.RelevanceScore,
			Urgent:         sig.Urgent,
			CreatedAt:      sig.CreatedAt,
		})

		if a.mirror != nil {
			if _, err := a.mirror.Publish(ctx, sig); err != nil {
				// Delivery is best-effort; the signal row is already durable.
				a.logger.Warn("Signal delivery failed", "signal_id", sig.ID, "error", err)
				a.store.LogState(ctx, "mirror", "signal delivery failed",
					map[string]any{"signal_id": sig.ID, "error": err.Error()})
			}
		}
	}
	return promoted, nil
}

// RunDigest synthesizes cross-item themes from recent never-promoted items.
// One LLM call over the whole candidate set; resulting signals go through
// the standard promotion path. processed_json on the items is untouched so
// a later direct re-analysis stays possible.
func (a *Analyzer) RunDigest(ctx context.Context) (int, error) {
	cutoff := time.Now().Add(-a.params.DigestLookback)
	items, err := a.store.ItemsWithoutSignalSince(ctx, cutoff, digestBatchLimit)
	if err != nil {
		return 0, err
	}
	if len(items) == 0 {
		return 0, nil
	}

	promoted, err := a.analyzeGroup(ctx, items, llm.DigestSystemPrompt, false)
	if err != nil {
		a.store.LogState(ctx, "analyzer", "digest synthesis failed",
			map[string]any{"items": len(items), "error": err.Error()})
		return 0, err
	}
	a.store.LogState(ctx, "analyzer", "digest synthesis complete",
		map[string]any{"items": len(items), "signals": promoted})
	return promoted, nil
}

// Reanalyze forces a fresh LLM pass over specific items regardless of their
// current analysis state. Serves the operator's directed-digest endpoint.
func (a *Analyzer) Reanalyze(ctx context.Context, ids []string) (int, error) {
	items, err := a.store.ItemsByIDs(ctx, ids)
	if err != nil {
		return 0, err
	}
	if len(items) == 0 {
		return 0, store.ErrNotFound
	}

	promoted := 0
	for _, group := range groupBySource(items) {
		n, err := a.analyzeGroup(ctx, group, llm.AnalysisSystemPrompt, true)
		if err != nil {
			a.bumpGroup(ctx, group, err)
			continue
		}
		promoted += n
	}
	return promoted, nil
}

func (a *Analyzer) bumpGroup(ctx context.Context, group []*models.ContentItem, cause error) {
	a.logger.Warn("Analysis group failed", "items", len(group), "error", cause)
	for _, item := range group {
		if err := a.store.BumpRetry(ctx, item.ID, cause, a.params.MaxRetries); err != nil {
			a.logger.Error("Failed to bump retry counter", "item_id", item.ID, "error", err)
			continue
		}
		if item.RetryCount+1 >= a.params.MaxRetries {
			a.ops.NotifyItemFailed(ctx, item.ID, cause.Error())
		}
	}
	a.store.LogState(ctx, "analyzer", "analysis group failed",
		map[string]any{"items": len(group), "error": cause.Error()})
}

// groupBySource splits a batch into per-source groups, preserving
// created_at order inside each group. Group iteration order is stable
// (sorted by source id) so runs are reproducible.
func groupBySource(items []*models.ContentItem) [][]*models.ContentItem {
	bySource := make(map[string][]*models.ContentItem)
	for _, item := range items {
		bySource[item.SourceID] = append(bySource[item.SourceID], item)
	}

	sources := make([]string, 0, len(bySource))
	for src := range bySource {
		sources = append(sources, src)
	}
	sort.Strings(sources)

	groups := make([][]*models.ContentItem, 0, len(sources))
	for _, src := range sources {
		groups = append(groups, bySource[src])
	}
	return groups
}

// BatchText concatenates a group into the model input: "[ID: <uuid>] <text>"
// per item, separated by "---" lines.
func BatchText(items []*models.ContentItem) string {
	parts := make([]string, 0, len(items))
	for _, item := range items {
		parts = append(parts, fmt.Sprintf("[ID: %s] %s", item.ID, item.RawText))
	}
	return strings.Join(parts, "\n---\n")
}

// canonicalTickers normalizes model-supplied tickers to unique uppercase
// symbols, preserving first-seen order.
func canonicalTickers(tickers []string) []string {
	var out []string
	seen := make(map[string]struct{}, len(tickers))
	for _, t := range tickers {
		sym := strings.ToUpper(strings.TrimSpace(t))
		if sym == "" {
			continue
		}
		if _, ok := seen[sym]; ok {
			continue
		}
		seen[sym] = struct{}{}
		out = append(out, sym)
	}
	return out
}

// resolveSourceIDs maps the model's echoed ids back to known group items,
// tolerating the "[ID: ...]" decoration. Falls back to the whole group when
// the model cited nothing recognizable.
func resolveSourceIDs(echoed []string, byID map[string]*models.ContentItem, group []*models.ContentItem) []string {
	var ids []string
	for _, raw := range echoed {
		id := strings.TrimSpace(raw)
		id = strings.TrimPrefix(id, "[ID:")
		id = strings.TrimSuffix(id, "]")
		id = strings.TrimSpace(id)
		if _, ok := byID[id]; ok {
			ids = append(ids, id)
		}
	}
	if len(ids) == 0 {
		for _, item := range group {
			ids = append(ids, item.ID)
		}
	}
	return ids
}
