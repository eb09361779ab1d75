package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/moecapital/refinery/pkg/models"
)

// SaveSignal persists a new signal row. The caller is responsible for
// duplicate suppression via RecentSignalByFingerprint.
func (s *Store) SaveSignal(ctx context.Context, sig *models.Signal) error {
	if sig.ID == "" {
		sig.ID = uuid.NewString()
	}
	if sig.CreatedAt.IsZero() {
		sig.CreatedAt = time.Now()
	}
	if sig.Fingerprint == "" {
		sig.Fingerprint = models.SignalFingerprint(sig.SourceItemIDs, sig.Summary)
	}

	sourceIDs, err := json.Marshal(sig.SourceItemIDs)
	if err != nil {
		return fmt.Errorf("marshal source item ids: %w", err)
	}
	tickers, err := json.Marshal(emptyIfNil(sig.Tickers))
	if err != nil {
		return fmt.Errorf("marshal tickers: %w", err)
	}
	tags, err := json.Marshal(emptyIfNil(sig.Tags))
	if err != nil {
		return fmt.Errorf("marshal tags: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO signals (id, source_item_ids, source_name, summary, analysis,
		     fact_check, sentiment, relevance_score, urgent, tickers, tags,
		     fingerprint, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		sig.ID, sourceIDs, sig.SourceName, sig.Summary, sig.Analysis,
		sig.FactCheck, string(sig.Sentiment), sig.RelevanceScore, sig.Urgent,
		tickers, tags, sig.Fingerprint, sig.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert signal: %w", err)
	}
	return nil
}

// RecentSignalByFingerprint reports whether a signal with the given
// fingerprint was saved inside the suppression window.
func (s *Store) RecentSignalByFingerprint(ctx context.Context, fingerprint string, within time.Duration) (bool, error) {
	cutoff := time.Now().Add(-within)
	var exists bool
	err := s.db.QueryRowContext(ctx,
		`SELECT EXISTS (
		     SELECT 1 FROM signals WHERE fingerprint = $1 AND created_at >= $2
		 )`,
		fingerprint, cutoff).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("query signal fingerprint: %w", err)
	}
	return exists, nil
}

// ListSignals returns a filtered, paginated page of signals (newest first)
// along with the total row count matching the filters.
func (s *Store) ListSignals(ctx context.Context, filters models.SignalFilters) ([]*models.Signal, int, error) {
	where, args := buildSignalFilters(filters)

	var total int
	countQuery := `SELECT COUNT(*) FROM signals` + where
	if err := s.db.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count signals: %w", err)
	}

	limit := filters.Limit
	if limit <= 0 {
		limit = 50
	}
	query := `SELECT id, source_item_ids, source_name, summary, analysis, fact_check,
	          sentiment, relevance_score, urgent, tickers, tags, fingerprint, created_at
	          FROM signals` + where +
		fmt.Sprintf(` ORDER BY created_at DESC LIMIT $%d OFFSET $%d`, len(args)+1, len(args)+2)
	args = append(args, limit, filters.Offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("query signals: %w", err)
	}
	defer rows.Close()

	var signals []*models.Signal
	for rows.Next() {
		sig, err := scanSignal(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan signal: %w", err)
		}
		signals = append(signals, sig)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate signals: %w", err)
	}
	return signals, total, nil
}

// DistinctSignalSources returns the distinct source names across all signals.
func (s *Store) DistinctSignalSources(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT DISTINCT source_name FROM signals WHERE source_name <> '' ORDER BY source_name`)
	if err != nil {
		return nil, fmt.Errorf("query signal sources: %w", err)
	}
	defer rows.Close()

	var sources []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scan signal source: %w", err)
		}
		sources = append(sources, name)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate signal sources: %w", err)
	}
	return sources, nil
}

func buildSignalFilters(filters models.SignalFilters) (string, []any) {
	var (
		clauses []string
		args    []any
	)
	add := func(clause string, value any) {
		args = append(args, value)
		clauses = append(clauses, fmt.Sprintf(clause, len(args)))
	}

	if filters.Source != "" {
		add(`source_name = $%d`, filters.Source)
	}
	if filters.Sentiment != "" {
		add(`sentiment = $%d`, filters.Sentiment)
	}
	if filters.Urgent != nil {
		add(`urgent = $%d`, *filters.Urgent)
	}
	if filters.From != nil {
		add(`created_at >= $%d`, *filters.From)
	}
	if filters.To != nil {
		add(`created_at <= $%d`, *filters.To)
	}
	if filters.Query != "" {
		args = append(args, filters.Query)
		n := len(args)
		clauses = append(clauses, fmt.Sprintf(
			`(summary ILIKE '%%' || $%d || '%%' OR analysis ILIKE '%%' || $%d || '%%')`, n, n))
	}

	if len(clauses) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}

func scanSignal(rows *sql.Rows) (*models.Signal, error) {
	var (
		sig       models.Signal
		sourceIDs []byte
		tickers   []byte
		tags      []byte
		sentiment string
	)
	err := rows.Scan(
		&sig.ID, &sourceIDs, &sig.SourceName, &sig.Summary, &sig.Analysis,
		&sig.FactCheck, &sentiment, &sig.RelevanceScore, &sig.Urgent,
		&tickers, &tags, &sig.Fingerprint, &sig.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(sourceIDs, &sig.SourceItemIDs); err != nil {
		return nil, fmt.Errorf("unmarshal source item ids: %w", err)
	}
	if err := json.Unmarshal(tickers, &sig.Tickers); err != nil {
		return nil, fmt.Errorf("unmarshal tickers: %w", err)
	}
	if err := json.Unmarshal(tags, &sig.Tags); err != nil {
		return nil, fmt.Errorf("unmarshal tags: %w", err)
	}
	sig.Sentiment = models.Sentiment(sentiment)
	return &sig, nil
}

func emptyIfNil(ss []string) []string {
	if ss == nil {
		return []string{}
	}
	return ss
}
