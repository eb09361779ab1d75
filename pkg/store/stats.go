package store

import (
	"context"
	"fmt"

	"github.com/moecapital/refinery/pkg/models"
)

// Stats returns the pipeline counters. O(1) after the first call: counters
// are materialized once from the durable tables and maintained in memory by
// every write path.
func (s *Store) Stats(ctx context.Context) (models.Stats, error) {
	s.countersMu.Lock()
	defer s.countersMu.Unlock()

	if !s.countersInit {
		if err := s.materializeCountersLocked(ctx); err != nil {
			return models.Stats{}, err
		}
	}
	return models.Stats{
		Items:    s.itemCount,
		Signals:  s.signalCount,
		Channels: s.channelCount,
	}, nil
}

// materializeCountersLocked runs the one-time COUNT(*) pass. Caller holds
// countersMu.
func (s *Store) materializeCountersLocked(ctx context.Context) error {
	err := s.db.QueryRowContext(ctx,
		`SELECT
		     (SELECT COUNT(*) FROM content_items),
		     (SELECT COUNT(*) FROM content_items WHERE is_signal = 1),
		     (SELECT COUNT(*) FROM channels)`,
	).Scan(&s.itemCount, &s.signalCount, &s.channelCount)
	if err != nil {
		return fmt.Errorf("materialize counters: %w", err)
	}
	s.countersInit = true
	s.logger.Info("Counters materialized",
		"items", s.itemCount, "signals", s.signalCount, "channels", s.channelCount)
	return nil
}

// adjustCounters applies a counter delta if the cache has been materialized.
// Before materialization the durable tables are still the source of truth,
// so deltas can be skipped.
func (s *Store) adjustCounters(apply func()) {
	s.countersMu.Lock()
	defer s.countersMu.Unlock()
	if s.countersInit {
		apply()
	}
}
