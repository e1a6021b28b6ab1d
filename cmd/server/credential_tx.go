package main

import (
	"context"
	"database/sql"
	"slices"
	"time"

	credentialservice "fedcred/internal/credential/service"
	credentialstore "fedcred/internal/credential/store"
	dErrors "fedcred/pkg/domain-errors"
	"fedcred/pkg/platform/audit/outbox"
	outboxpostgres "fedcred/pkg/platform/audit/outbox/store/postgres"
)

const defaultCredentialTxTimeout = 5 * time.Second

// credentialPostgresTx runs each unit of work in one database transaction.
// Transaction-scoped advisory locks on the keys serialize units across replicas,
// and the outbox shares the transaction so events commit with the state change.
type credentialPostgresTx struct {
	db      *sql.DB
	timeout time.Duration
}

func newCredentialPostgresTx(db *sql.DB, timeout time.Duration) *credentialPostgresTx {
	return &credentialPostgresTx{db: db, timeout: timeout}
}

func (t *credentialPostgresTx) RunInTx(ctx context.Context, keys []string, fn func(ctx context.Context, store credentialservice.Store, events outbox.Appender) error) error {
	if err := ctx.Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "transaction aborted: context cancelled")
	}

	timeout := t.timeout
	if timeout == 0 {
		timeout = defaultCredentialTxTimeout
	}
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	tx, err := t.db.BeginTx(ctx, nil)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeStoreUnavailable, "failed to begin transaction")
	}
	defer func() {
		_ = tx.Rollback() //nolint:errcheck // rollback after commit is no-op; error already captured
	}()

	// sorted so units holding a credential and a federation number lock in the same order
	keys = slices.Compact(slices.Sorted(slices.Values(keys)))
	for _, key := range keys {
		if key == "" {
			continue
		}
		if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, key); err != nil {
			if ctx.Err() != nil {
				return dErrors.Wrap(err, dErrors.CodeTimeout, "timed out waiting for credential lock")
			}
			return dErrors.Wrap(err, dErrors.CodeStoreUnavailable, "failed to acquire credential lock")
		}
	}

	if err := fn(ctx, credentialstore.NewPostgresTx(tx), outboxpostgres.NewTx(tx)); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeStoreUnavailable, "failed to commit transaction")
	}
	return nil
}
