package outbox

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Appender is the write side used inside business transactions.
type Appender interface {
	Append(ctx context.Context, entry *Entry) error
}

// Store is the full outbox persistence contract used by the relay worker.
// Implementations must be safe for concurrent use.
type Store interface {
	Appender

	// FetchUnprocessed returns up to limit pending entries, oldest first.
	FetchUnprocessed(ctx context.Context, limit int) ([]*Entry, error)

	MarkProcessed(ctx context.Context, id uuid.UUID, processedAt time.Time) error

	CountPending(ctx context.Context) (int64, error)

	// DeleteProcessedBefore removes relayed entries older than before and returns how many were removed.
	DeleteProcessedBefore(ctx context.Context, before time.Time) (int64, error)
}
