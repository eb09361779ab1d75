package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/moecapital/refinery/pkg/models"
)

const channelColumns = `id, name, type, COALESCE(feed_url, ''), last_polled_at,
	success_count, failure_count, status, created_at`

// UpsertChannel registers a channel on first sighting, keyed on (name, type).
// An existing channel keeps its id and counters; only feed_url is refreshed.
// Returns the channel id and whether a new row was created.
func (s *Store) UpsertChannel(ctx context.Context, ch *models.Channel) (string, bool, error) {
	if ch.ID == "" {
		ch.ID = uuid.NewString()
	}
	if ch.Status == "" {
		ch.Status = models.ChannelStatusActive
	}

	var (
		id       string
		inserted bool
	)
	// xmax = 0 distinguishes an insert from a conflict-update.
	err := s.db.QueryRowContext(ctx,
		`INSERT INTO channels (id, name, type, feed_url, status)
		 VALUES ($1, $2, $3, NULLIF($4, ''), $5)
		 ON CONFLICT (name, type) DO UPDATE
		     SET feed_url = COALESCE(NULLIF(EXCLUDED.feed_url, ''), channels.feed_url)
		 RETURNING id, (xmax = 0)`,
		ch.ID, ch.Name, string(ch.Type), ch.FeedURL, string(ch.Status),
	).Scan(&id, &inserted)
	if err != nil {
		return "", false, fmt.Errorf("upsert channel: %w", err)
	}
	if inserted {
		s.adjustCounters(func() { s.channelCount++ })
	}
	ch.ID = id
	return id, inserted, nil
}

// GetChannel fetches a channel by id, or ErrNotFound.
func (s *Store) GetChannel(ctx context.Context, id string) (*models.Channel, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+channelColumns+` FROM channels WHERE id = $1`, id)
	ch, err := scanChannel(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query channel: %w", err)
	}
	return ch, nil
}

// ListChannels returns channels of the given type (all types when empty),
// oldest first.
func (s *Store) ListChannels(ctx context.Context, channelType models.ChannelType) ([]*models.Channel, error) {
	query := `SELECT ` + channelColumns + ` FROM channels`
	var args []any
	if channelType != "" {
		query += ` WHERE type = $1`
		args = append(args, string(channelType))
	}
	query += ` ORDER BY created_at ASC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query channels: %w", err)
	}
	defer rows.Close()

	var channels []*models.Channel
	for rows.Next() {
		ch, err := scanChannel(rows)
		if err != nil {
			return nil, fmt.Errorf("scan channel: %w", err)
		}
		channels = append(channels, ch)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate channels: %w", err)
	}
	return channels, nil
}

// TouchChannel records a poll outcome: success/failure deltas and the poll
// timestamp.
func (s *Store) TouchChannel(ctx context.Context, id string, successDelta, failureDelta int, polledAt time.Time) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE channels
		 SET success_count = success_count + $2,
		     failure_count = failure_count + $3,
		     last_polled_at = $4
		 WHERE id = $1`,
		id, successDelta, failureDelta, polledAt)
	if err != nil {
		return fmt.Errorf("touch channel: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// SetChannelStatus updates a channel's operator-controlled status.
func (s *Store) SetChannelStatus(ctx context.Context, id string, status models.ChannelStatus) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE channels SET status = $2 WHERE id = $1`, id, string(status))
	if err != nil {
		return fmt.Errorf("set channel status: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteChannel removes a channel registration.
func (s *Store) DeleteChannel(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM channels WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete channel: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	s.adjustCounters(func() { s.channelCount-- })
	return nil
}

func scanChannel(row rowScanner) (*models.Channel, error) {
	var (
		ch       models.Channel
		chType   string
		status   string
		polledAt sql.NullTime
	)
	err := row.Scan(
		&ch.ID, &ch.Name, &chType, &ch.FeedURL, &polledAt,
		&ch.SuccessCount, &ch.FailureCount, &status, &ch.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	if polledAt.Valid {
		t := polledAt.Time
		ch.LastPolledAt = &t
	}
	ch.Type = models.ChannelType(chType)
	ch.Status = models.ChannelStatus(status)
	return &ch, nil
}
