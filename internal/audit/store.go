package audit

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Sink receives audit records emitted by guarded routes.
type Sink interface {
	Write(ctx context.Context, record Record) error
}

// PGStore writes records into audit_records and serves them back for the
// timeline.
type PGStore struct {
	pool *pgxpool.Pool
}

// NewPGStore returns a new PGStore.
func NewPGStore(pool *pgxpool.Pool) *PGStore {
	return &PGStore{pool: pool}
}

// Write persists the record.
func (s *PGStore) Write(ctx context.Context, record Record) error {
	if s == nil || s.pool == nil {
		return errors.New("audit: store not initialised")
	}
	if record.Operation == "" || record.Resource == "" {
		return errors.New("audit: record requires operation and resource")
	}
	if record.ID == "" {
		record.ID = uuid.NewString()
	}
	if record.At.IsZero() {
		record.At = time.Now().UTC()
	}
	_, err := s.pool.Exec(ctx, `INSERT INTO audit_records (id, user_id, role, operation, resource, method, url, ip, status, user_agent, occurred_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		record.ID, record.UserID, record.Role, record.Operation, record.Resource,
		record.Method, record.URL, record.IP, record.Status, record.UserAgent, record.At)
	return err
}

// ListRecords returns records newest first.
func (s *PGStore) ListRecords(ctx context.Context, params ListParams) ([]Record, error) {
	if s == nil || s.pool == nil {
		return nil, errors.New("audit: store not initialised")
	}
	limit := pgtype.Int8{}
	if params.Limit > 0 {
		limit = pgtype.Int8{Int64: int64(params.Limit), Valid: true}
	}
	rows, err := s.pool.Query(ctx, `SELECT id, user_id, role, operation, resource, method, url, ip, status, user_agent, occurred_at
FROM audit_records
WHERE ($1::timestamptz IS NULL OR occurred_at >= $1)
  AND ($2::timestamptz IS NULL OR occurred_at < $2)
  AND ($3::text IS NULL OR user_id = $3)
  AND ($4::text IS NULL OR resource = $4)
  AND ($5::text IS NULL OR operation = $5)
ORDER BY occurred_at DESC, id DESC
OFFSET $6
LIMIT $7`,
		toPgTime(params.From), toPgTime(params.To),
		optionalText(params.Actor), optionalText(params.Resource), optionalText(params.Operation),
		params.Offset, limit)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (Record, error) {
		var r Record
		err := row.Scan(&r.ID, &r.UserID, &r.Role, &r.Operation, &r.Resource, &r.Method, &r.URL, &r.IP, &r.Status, &r.UserAgent, &r.At)
		return r, err
	})
}

func toPgTime(t time.Time) pgtype.Timestamptz {
	if t.IsZero() {
		return pgtype.Timestamptz{}
	}
	return pgtype.Timestamptz{Time: t, Valid: true}
}

func optionalText(value string) pgtype.Text {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return pgtype.Text{}
	}
	return pgtype.Text{String: trimmed, Valid: true}
}

var (
	_ Sink       = (*PGStore)(nil)
	_ Repository = (*PGStore)(nil)
)
