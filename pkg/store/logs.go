package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// LogState records a pipeline state transition in internal_logs. Failures
// are logged and swallowed — internal logging must never break a write path.
func (s *Store) LogState(ctx context.Context, module, message string, logContext map[string]any) {
	var contextJSON []byte
	if len(logContext) > 0 {
		var err error
		contextJSON, err = json.Marshal(logContext)
		if err != nil {
			s.logger.Warn("Failed to marshal internal log context",
				"module", module, "error", err)
			contextJSON = nil
		}
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO internal_logs (module, message, context) VALUES ($1, $2, $3)`,
		module, message, contextJSON)
	if err != nil {
		s.logger.Warn("Failed to write internal log",
			"module", module, "message", message, "error", err)
	}
}

// PruneInternalLogsOlderThan deletes internal logs past the retention cutoff
// and returns the number of rows removed.
func (s *Store) PruneInternalLogsOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM internal_logs WHERE created_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("prune internal logs: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}
