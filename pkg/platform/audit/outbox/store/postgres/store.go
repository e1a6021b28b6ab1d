package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"fedcred/pkg/platform/audit/outbox"

	"github.com/google/uuid"
)

// maxFetchBatch caps a single relay poll.
const maxFetchBatch = 1000

// Store implements outbox.Store using PostgreSQL.
type Store struct {
	db *sql.DB
	tx *sql.Tx
}

func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// NewTx binds the store to an open transaction so Append commits with the business write.
func NewTx(tx *sql.Tx) *Store {
	return &Store{tx: tx}
}

type dbExecutor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *Store) execer() dbExecutor {
	if s.tx != nil {
		return s.tx
	}
	return s.db
}

func (s *Store) Append(ctx context.Context, entry *outbox.Entry) error {
	_, err := s.execer().ExecContext(ctx, `
		INSERT INTO outbox (id, aggregate_type, aggregate_id, event_type, payload, created_at)
		VALUES ($1, $2, $3, $4, $5::jsonb, $6)
	`, entry.ID, entry.AggregateType, entry.AggregateID, entry.EventType, string(entry.Payload), entry.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert outbox entry: %w", err)
	}
	return nil
}

// FetchUnprocessed uses FOR UPDATE SKIP LOCKED so concurrent relays do not block each other.
func (s *Store) FetchUnprocessed(ctx context.Context, limit int) ([]*outbox.Entry, error) {
	if limit <= 0 {
		return nil, nil
	}
	if limit > maxFetchBatch {
		limit = maxFetchBatch
	}
	rows, err := s.execer().QueryContext(ctx, `
		SELECT id, aggregate_type, aggregate_id, event_type, payload, created_at, processed_at
		FROM outbox
		WHERE processed_at IS NULL
		ORDER BY created_at ASC
		LIMIT $1
		FOR UPDATE SKIP LOCKED
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("fetch unprocessed entries: %w", err)
	}
	defer rows.Close()

	var entries []*outbox.Entry
	for rows.Next() {
		var e outbox.Entry
		var payload []byte
		var processedAt sql.NullTime
		if err := rows.Scan(&e.ID, &e.AggregateType, &e.AggregateID, &e.EventType, &payload, &e.CreatedAt, &processedAt); err != nil {
			return nil, fmt.Errorf("scan outbox entry: %w", err)
		}
		e.Payload = payload
		if processedAt.Valid {
			e.ProcessedAt = &processedAt.Time
		}
		entries = append(entries, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate outbox entries: %w", err)
	}
	return entries, nil
}

func (s *Store) MarkProcessed(ctx context.Context, id uuid.UUID, processedAt time.Time) error {
	result, err := s.execer().ExecContext(ctx,
		`UPDATE outbox SET processed_at = $2 WHERE id = $1 AND processed_at IS NULL`, id, processedAt)
	if err != nil {
		return fmt.Errorf("mark outbox entry processed: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("outbox entry not found or already processed: %s", id)
	}
	return nil
}

func (s *Store) CountPending(ctx context.Context) (int64, error) {
	var count int64
	if err := s.execer().QueryRowContext(ctx, `SELECT COUNT(*) FROM outbox WHERE processed_at IS NULL`).Scan(&count); err != nil {
		return 0, fmt.Errorf("count pending entries: %w", err)
	}
	return count, nil
}

func (s *Store) DeleteProcessedBefore(ctx context.Context, before time.Time) (int64, error) {
	result, err := s.execer().ExecContext(ctx,
		`DELETE FROM outbox WHERE processed_at IS NOT NULL AND processed_at < $1`, before)
	if err != nil {
		return 0, fmt.Errorf("delete processed entries: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("get rows affected: %w", err)
	}
	return rowsAffected, nil
}
