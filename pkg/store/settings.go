package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// Setting keys owned by the refinery core.
const (
	SettingHeartbeatInterval = "heartbeat.next_interval_ms"
	SettingDigestLastRun     = "digest.last_run_ms"
	SettingJanitorLastRun    = "janitor.last_run_ms"
)

// GetSetting unmarshals the JSON value stored under key into out.
// Returns ErrNotFound when the key has never been written.
func (s *Store) GetSetting(ctx context.Context, key string, out any) error {
	var value []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT value FROM settings WHERE key = $1`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("query setting %q: %w", key, err)
	}
	if err := json.Unmarshal(value, out); err != nil {
		return fmt.Errorf("unmarshal setting %q: %w", key, err)
	}
	return nil
}

// PutSetting stores value as JSON under key, overwriting any prior value.
func (s *Store) PutSetting(ctx context.Context, key string, value any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("marshal setting %q: %w", key, err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO settings (key, value, updated_at) VALUES ($1, $2, $3)
		 ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = EXCLUDED.updated_at`,
		key, data, time.Now())
	if err != nil {
		return fmt.Errorf("put setting %q: %w", key, err)
	}
	return nil
}
