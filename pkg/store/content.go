package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/moecapital/refinery/pkg/models"
)

// UpsertResult reports the outcome of an UpsertContentItem call.
type UpsertResult struct {
	ID       string
	Inserted bool
}

const contentItemColumns = `id, source_id, source_name, raw_text, content_hash,
	created_at, processed_json, is_signal, last_analyzed_at, retry_count,
	COALESCE(last_error, ''), knowledge_synced`

// UpsertContentItem inserts a new content item, deduplicating on
// content_hash. On conflict the existing id is returned unchanged; the
// existing row is never overwritten.
func (s *Store) UpsertContentItem(ctx context.Context, item *models.ContentItem) (UpsertResult, error) {
	if item.ID == "" {
		item.ID = uuid.NewString()
	}
	if item.CreatedAt.IsZero() {
		item.CreatedAt = time.Now()
	}

	var id string
	err := s.db.QueryRowContext(ctx,
		`INSERT INTO content_items (id, source_id, source_name, raw_text, content_hash, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (content_hash) DO NOTHING
		 RETURNING id`,
		item.ID, item.SourceID, item.SourceName, item.RawText, item.ContentHash, item.CreatedAt,
	).Scan(&id)
	if err == nil {
		s.adjustCounters(func() { s.itemCount++ })
		return UpsertResult{ID: id, Inserted: true}, nil
	}
	if err != sql.ErrNoRows {
		return UpsertResult{}, fmt.Errorf("insert content item: %w", err)
	}

	// Hash conflict — resolve to the existing row.
	existing, err := s.ExistsByHash(ctx, item.ContentHash)
	if err != nil {
		return UpsertResult{}, err
	}
	return UpsertResult{ID: existing, Inserted: false}, nil
}

// ExistsByHash returns the id of the content item with the given hash,
// or ErrNotFound.
func (s *Store) ExistsByHash(ctx context.Context, hash string) (string, error) {
	var id string
	err := s.db.QueryRowContext(ctx,
		`SELECT id FROM content_items WHERE content_hash = $1`, hash).Scan(&id)
	if err == sql.ErrNoRows {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("query content item by hash: %w", err)
	}
	return id, nil
}

// GetContentItem fetches a content item by id, or ErrNotFound.
func (s *Store) GetContentItem(ctx context.Context, id string) (*models.ContentItem, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+contentItemColumns+` FROM content_items WHERE id = $1`, id)
	item, err := scanContentItem(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query content item: %w", err)
	}
	return item, nil
}

// RecentAnalysisByHash returns the most recent processed_json for the given
// hash whose last_analyzed_at falls inside the window, or nil when no
// reusable analysis exists.
func (s *Store) RecentAnalysisByHash(ctx context.Context, hash string, within time.Duration) ([]byte, error) {
	cutoff := time.Now().Add(-within)
	var processed []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT processed_json FROM content_items
		 WHERE content_hash = $1
		   AND processed_json IS NOT NULL
		   AND last_analyzed_at >= $2
		 ORDER BY last_analyzed_at DESC
		 LIMIT 1`,
		hash, cutoff).Scan(&processed)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query recent analysis: %w", err)
	}
	return processed, nil
}

// TakePendingBatch returns up to limit unanalyzed items in created_at order.
// Non-destructive: the caller writes results back via WriteAnalysis or
// BumpRetry. Items at the retry cap or in the failed terminal state are
// never returned.
func (s *Store) TakePendingBatch(ctx context.Context, limit, maxRetries int) ([]*models.ContentItem, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+contentItemColumns+` FROM content_items
		 WHERE processed_json IS NULL
		   AND retry_count < $1
		   AND is_signal <> -1
		 ORDER BY created_at ASC
		 LIMIT $2`,
		maxRetries, limit)
	if err != nil {
		return nil, fmt.Errorf("query pending batch: %w", err)
	}
	defer rows.Close()
	return collectContentItems(rows)
}

// ItemsByIDs fetches content items by id, preserving created_at order.
// Missing ids are silently skipped.
func (s *Store) ItemsByIDs(ctx context.Context, ids []string) ([]*models.ContentItem, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	idsJSON, err := json.Marshal(ids)
	if err != nil {
		return nil, fmt.Errorf("marshal ids: %w", err)
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+contentItemColumns+` FROM content_items
		 WHERE id::text IN (SELECT jsonb_array_elements_text($1::jsonb))
		 ORDER BY created_at ASC`,
		idsJSON)
	if err != nil {
		return nil, fmt.Errorf("query items by ids: %w", err)
	}
	defer rows.Close()
	return collectContentItems(rows)
}

// ItemsWithoutSignalSince returns analyzed-or-not items created after the
// cutoff that were never promoted. Used by the digest synthesizer.
func (s *Store) ItemsWithoutSignalSince(ctx context.Context, cutoff time.Time, limit int) ([]*models.ContentItem, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+contentItemColumns+` FROM content_items
		 WHERE created_at >= $1 AND is_signal = 0
		 ORDER BY created_at ASC
		 LIMIT $2`,
		cutoff, limit)
	if err != nil {
		return nil, fmt.Errorf("query digest candidates: %w", err)
	}
	defer rows.Close()
	return collectContentItems(rows)
}

// WriteAnalysis attaches the LLM output to an item and clears its retry
// bookkeeping. Promotion to is_signal = 1 happens separately through
// MarkPromoted so the signal counter tracks state transitions exactly.
func (s *Store) WriteAnalysis(ctx context.Context, itemID string, processedJSON []byte, analyzedAt time.Time) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE content_items
		 SET processed_json = $2, last_analyzed_at = $3, last_error = NULL
		 WHERE id = $1`,
		itemID, processedJSON, analyzedAt)
	if err != nil {
		return fmt.Errorf("write analysis: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// MarkPromoted transitions an item to is_signal = 1. Idempotent: the signal
// counter is only adjusted when the state actually changes.
func (s *Store) MarkPromoted(ctx context.Context, itemID string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE content_items SET is_signal = 1 WHERE id = $1 AND is_signal <> 1`,
		itemID)
	if err != nil {
		return fmt.Errorf("mark promoted: %w", err)
	}
	if n, _ := res.RowsAffected(); n > 0 {
		s.adjustCounters(func() { s.signalCount++ })
	}
	return nil
}

// BumpRetry increments an item's retry counter and records the error. When
// the counter reaches maxRetries the item is moved to the failed terminal
// state and never re-analyzed.
func (s *Store) BumpRetry(ctx context.Context, itemID string, cause error, maxRetries int) error {
	msg := ""
	if cause != nil {
		msg = cause.Error()
	}
	_, err := s.db.ExecContext(ctx,
		`UPDATE content_items
		 SET retry_count = retry_count + 1,
		     last_error = $2,
		     is_signal = CASE WHEN retry_count + 1 >= $3 THEN -1 ELSE is_signal END
		 WHERE id = $1 AND is_signal <> -1`,
		itemID, msg, maxRetries)
	if err != nil {
		return fmt.Errorf("bump retry: %w", err)
	}
	return nil
}

// CountPending returns the number of items still awaiting analysis.
func (s *Store) CountPending(ctx context.Context, maxRetries int) (int64, error) {
	var n int64
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM content_items
		 WHERE processed_json IS NULL AND retry_count < $1 AND is_signal <> -1`,
		maxRetries).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count pending: %w", err)
	}
	return n, nil
}

// UnsyncedAnalyzed returns promoted items not yet exported to the knowledge
// graph side-output.
func (s *Store) UnsyncedAnalyzed(ctx context.Context, limit int) ([]*models.ContentItem, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+contentItemColumns+` FROM content_items
		 WHERE is_signal = 1 AND NOT knowledge_synced
		 ORDER BY created_at ASC
		 LIMIT $1`,
		limit)
	if err != nil {
		return nil, fmt.Errorf("query unsynced items: %w", err)
	}
	defer rows.Close()
	return collectContentItems(rows)
}

// MarkKnowledgeSynced flags the given items as exported.
func (s *Store) MarkKnowledgeSynced(ctx context.Context, ids []string) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	idsJSON, err := json.Marshal(ids)
	if err != nil {
		return 0, fmt.Errorf("marshal ids: %w", err)
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE content_items SET knowledge_synced = TRUE
		 WHERE id::text IN (SELECT jsonb_array_elements_text($1::jsonb))`,
		idsJSON)
	if err != nil {
		return 0, fmt.Errorf("mark knowledge synced: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// rowScanner abstracts *sql.Row and *sql.Rows for scanContentItem.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanContentItem(row rowScanner) (*models.ContentItem, error) {
	var (
		item       models.ContentItem
		processed  []byte
		analyzedAt sql.NullTime
		isSignal   int
	)
	err := row.Scan(
		&item.ID, &item.SourceID, &item.SourceName, &item.RawText,
		&item.ContentHash, &item.CreatedAt, &processed, &isSignal,
		&analyzedAt, &item.RetryCount, &item.LastError, &item.KnowledgeSynced,
	)
	if err != nil {
		return nil, err
	}
	item.ProcessedJSON = processed
	if analyzedAt.Valid {
		t := analyzedAt.Time
		item.LastAnalyzedAt = &t
	}
	item.IsSignal = models.SignalState(isSignal)
	return &item, nil
}

func collectContentItems(rows *sql.Rows) ([]*models.ContentItem, error) {
	var items []*models.ContentItem
	for rows.Next() {
		item, err := scanContentItem(rows)
		if err != nil {
			return nil, fmt.Errorf("scan content item: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate content items: %w", err)
	}
	return items, nil
}
