package security

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// PGSink stores events in the security_events table.
type PGSink struct {
	pool *pgxpool.Pool
}

// NewPGSink returns a PGSink backed by pool.
func NewPGSink(pool *pgxpool.Pool) *PGSink {
	return &PGSink{pool: pool}
}

// Publish inserts the event. Re-publishing the same id is a no-op.
func (s *PGSink) Publish(ctx context.Context, event Event) error {
	if s == nil || s.pool == nil {
		return errors.New("security: pg sink not initialised")
	}
	details, err := json.Marshal(event.Details)
	if err != nil {
		details = []byte(`{}`)
	}
	_, err = s.pool.Exec(ctx, `INSERT INTO security_events
(id, type, severity, source_ip, user_agent, user_id, endpoint, method, details, resolved, occurred_at)
VALUES ($1, $2, $3, $4, $5, NULLIF($6, ''), $7, $8, $9, $10, $11)
ON CONFLICT (id) DO NOTHING`,
		event.ID, string(event.Type), string(event.Severity), event.SourceIP, event.UserAgent,
		event.UserID, event.Endpoint, event.Method, details, event.Resolved, event.Timestamp)
	if err != nil {
		return fmt.Errorf("security: insert event: %w", err)
	}
	return nil
}

// Purge deletes events that occurred before cutoff and returns the number
// of rows removed.
func (s *PGSink) Purge(ctx context.Context, cutoff time.Time) (int64, error) {
	if s == nil || s.pool == nil {
		return 0, errors.New("security: pg sink not initialised")
	}
	tag, err := s.pool.Exec(ctx, `DELETE FROM security_events WHERE occurred_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("security: purge events: %w", err)
	}
	return tag.RowsAffected(), nil
}

var _ Sink = (*PGSink)(nil)
