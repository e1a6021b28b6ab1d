package service

import (
	"context"
	"time"

	"fedcred/internal/credential/lifecycle"
	"fedcred/internal/credential/models"
	"fedcred/internal/platform/tracer"
	"fedcred/pkg/platform/audit"
	"fedcred/pkg/platform/audit/outbox"
)

// ExpireLapsed persists the derived expired status for active and pending credentials whose
// expiration has passed, in batches of SweepBatchSize. Records that fail their integrity check
// are left untouched. It returns the number of credentials transitioned.
func (s *Service) ExpireLapsed(ctx context.Context) (expired int, err error) {
	ctx, span := s.tracer.Start(ctx, tracer.SpanSweep)
	defer func() {
		span.SetAttributes(tracer.Int(tracer.AttrSweepExpired, expired))
		span.End(err)
	}()

	start := time.Now()
	now := s.now(ctx)
	// tampered records stay lapsed, so later pages are widened past them
	skipped := make(map[models.CredentialID]struct{})
	for {
		limit := s.cfg.SweepBatchSize + len(skipped)
		ids, err := withReadRetry(ctx, s, func(ctx context.Context) ([]models.CredentialID, error) {
			return s.store.ListLapsed(ctx, now, limit)
		})
		if err != nil {
			return expired, err
		}

		fresh := 0
		for _, credID := range ids {
			if _, ok := skipped[credID]; ok {
				continue
			}
			fresh++
			ok, err := s.expireOne(ctx, credID, now)
			if err != nil {
				return expired, err
			}
			if !ok {
				skipped[credID] = struct{}{}
				continue
			}
			expired++
		}

		if len(ids) < limit || fresh == 0 {
			break
		}
	}

	if s.metrics != nil {
		s.metrics.ObserveSweep(expired, time.Since(start).Seconds())
	}
	if expired > 0 {
		s.invalidateStats(ctx)
		s.auditor.Log(ctx, string(audit.EventCredentialsExpired),
			"count", expired,
			"actor", models.ActorSystem,
		)
	}
	s.logger.InfoContext(ctx, "expiry sweep completed", "expired", expired, "skipped", len(skipped))
	return expired, nil
}

func (s *Service) expireOne(ctx context.Context, credID models.CredentialID, now time.Time) (bool, error) {
	transitioned := false
	err := s.tx.RunInTx(ctx, []string{credID.String()}, func(ctx context.Context, store Store, events outbox.Appender) error {
		cred, err := store.FindByIDForUpdate(ctx, credID)
		if err != nil {
			return err
		}
		if !cred.IsLapsed(now) {
			return nil
		}
		if !s.codec.VerifyChecksum(cred) {
			s.logger.WarnContext(ctx, "sweep skipped credential with failed integrity check", "credential_id", credID.String())
			return nil
		}
		from := cred.Status
		if err := lifecycle.Apply(cred, lifecycle.Transition{
			Trigger: lifecycle.TriggerExpiry,
			To:      models.StatusExpired,
			Actor:   models.ActorSystem,
			At:      now,
		}); err != nil {
			return err
		}
		s.codec.Seal(cred)
		if err := store.Update(ctx, cred); err != nil {
			return err
		}
		transitioned = true
		return appendLifecycle(ctx, events, EventExpired, cred, from, "", models.ActorSystem, now)
	})
	if err != nil {
		return false, translateStoreError(err, "failed to expire credential")
	}
	if transitioned && s.metrics != nil {
		s.metrics.IncTransition(string(lifecycle.TriggerExpiry), models.StatusExpired.String())
	}
	return transitioned, nil
}
