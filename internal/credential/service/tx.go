package service

import (
	"context"
	"time"

	"fedcred/internal/credential/metrics"
	dErrors "fedcred/pkg/domain-errors"
	"fedcred/pkg/platform/audit/outbox"
	platformsync "fedcred/pkg/platform/sync"
)

// StoreTx provides the atomic boundary for every read-modify-write on a credential.
// keys serialize units on the same credential or the same federation number; a unit
// holding several keys acquires them in a fixed order. Implementations wrap a database
// transaction or, in memory, per-key locks.
type StoreTx interface {
	RunInTx(ctx context.Context, keys []string, fn func(ctx context.Context, store Store, events outbox.Appender) error) error
}

// IssuanceLockKey serializes issuance of the same federation number and subject type.
func IssuanceLockKey(subjectType, number string) string {
	return "fed:" + subjectType + ":" + number
}

type shardedTx struct {
	mu      *platformsync.ShardedMutex
	store   Store
	events  outbox.Appender
	timeout time.Duration
	metrics *metrics.Metrics
}

func newShardedTx(store Store, events outbox.Appender, timeout time.Duration, m *metrics.Metrics) *shardedTx {
	if timeout <= 0 {
		timeout = DefaultStoreTimeout
	}
	return &shardedTx{
		mu:      platformsync.NewShardedMutex(),
		store:   store,
		events:  events,
		timeout: timeout,
		metrics: m,
	}
}

func (t *shardedTx) RunInTx(ctx context.Context, keys []string, fn func(ctx context.Context, store Store, events outbox.Appender) error) error {
	if err := ctx.Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "transaction aborted: context cancelled")
	}

	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.timeout)
		defer cancel()
	}

	lockStart := time.Now()
	t.mu.LockAll(keys...)
	if t.metrics != nil {
		t.metrics.ObserveShardLockWait(time.Since(lockStart).Seconds())
	}
	defer t.mu.UnlockAll(keys...)

	if err := ctx.Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "transaction aborted: context cancelled")
	}

	return fn(ctx, t.store, t.events)
}
