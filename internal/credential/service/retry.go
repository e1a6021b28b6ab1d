package service

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"

	dErrors "fedcred/pkg/domain-errors"
)

// maxReadRetries bounds retries of idempotent units. Writes are never retried.
const maxReadRetries = 1

// withReadRetry runs op and retries once with exponential backoff when it fails with
// store_unavailable or timeout. Store errors are translated before classification.
func withReadRetry[T any](ctx context.Context, s *Service, op func(ctx context.Context) (T, error)) (T, error) {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = s.cfg.RetryInitialInterval
	policy.MaxInterval = 4 * s.cfg.RetryInitialInterval

	attempt := 0
	var result T
	err := backoff.RetryNotify(func() error {
		attempt++
		if attempt > 1 && s.metrics != nil {
			s.metrics.IncReadRetry()
		}
		var err error
		result, err = op(ctx)
		err = translateStoreError(err, "read failed")
		if err != nil && !dErrors.IsTransient(err) {
			return backoff.Permanent(err)
		}
		return err
	}, backoff.WithContext(backoff.WithMaxRetries(policy, maxReadRetries), ctx), func(err error, wait time.Duration) {
		s.logger.WarnContext(ctx, "retrying read after transient store failure", "error", err, "wait", wait)
	})
	if err != nil {
		// the backoff reports a bare context error when ctx ends between attempts
		return result, translateStoreError(err, "read interrupted")
	}
	return result, nil
}
