package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"fedcred/internal/credential/integrity"
	"fedcred/internal/credential/lifecycle"
	"fedcred/internal/credential/models"
	"fedcred/internal/platform/privacy"
	"fedcred/internal/platform/tracer"
	"fedcred/pkg/platform/audit/outbox"
	"fedcred/pkg/platform/sentinel"
)

// Verify runs the trust check for one presented id. Invalid credentials are reported in the
// result, not as errors; an error means the check itself could not complete (store unavailable
// or timeout after one retry).
func (s *Service) Verify(ctx context.Context, in models.VerifyInput) (result *models.VerificationResult, err error) {
	if in.Verifier.Channel == "" {
		in.Verifier.Channel = models.ChannelSingle
	}
	ctx, span := s.tracer.Start(ctx, tracer.SpanVerify,
		tracer.String(tracer.AttrCredentialID, in.CredentialID),
		tracer.String(tracer.AttrChannel, string(in.Verifier.Channel)),
	)
	defer func() { span.End(err) }()

	start := time.Now()
	result, err = withReadRetry(ctx, s, func(ctx context.Context) (*models.VerificationResult, error) {
		return s.verifyOnce(ctx, in, span)
	})
	if err != nil {
		s.logger.ErrorContext(ctx, "verification failed",
			"credential_id", in.CredentialID,
			"channel", in.Verifier.Channel,
			"error", err,
		)
		return nil, err
	}

	span.SetAttributes(
		tracer.Bool(tracer.AttrValid, result.Valid),
		tracer.String(tracer.AttrReason, string(result.Reason)),
	)
	if s.metrics != nil {
		s.metrics.ObserveVerification(string(in.Verifier.Channel), result.Valid, string(result.Reason), time.Since(start).Seconds())
	}
	s.logger.InfoContext(ctx, "credential verified",
		"credential_id", result.CredentialID,
		"valid", result.Valid,
		"reason", result.Reason,
		"channel", in.Verifier.Channel,
		"client_ip", privacy.AnonymizeIP(in.Verifier.ClientIP),
	)
	return result, nil
}

// verifyOnce is one atomic unit: lookup, checksum, effective status, lazy expiry,
// counter update, event and outbox append.
func (s *Service) verifyOnce(ctx context.Context, in models.VerifyInput, span tracer.Span) (*models.VerificationResult, error) {
	now := s.now(ctx)
	presented := strings.TrimSpace(in.CredentialID)
	result := &models.VerificationResult{CredentialID: presented, VerifiedAt: now}

	credID, parseErr := models.ParseCredentialID(presented)
	key := presented
	if parseErr == nil {
		key = credID.String()
		result.CredentialID = key
	}

	var lazyExpired bool
	err := s.tx.RunInTx(ctx, []string{key}, func(ctx context.Context, store Store, events outbox.Appender) error {
		reason := models.ReasonNotFound
		var cred *models.Credential
		if parseErr == nil {
			found, err := store.FindByIDForUpdate(ctx, credID)
			switch {
			case errors.Is(err, sentinel.ErrNotFound):
			case err != nil:
				return err
			default:
				cred = found
			}
		}

		if cred != nil {
			stored := cred.Status
			dirty := false
			reason, dirty, lazyExpired = s.evaluate(cred, in.PresentedChecksum, now)
			if reason == models.ReasonNone {
				cred.VerificationCount++
				verifiedAt := now
				cred.LastVerified = &verifiedAt
				dirty = true
			}
			if dirty {
				if err := store.Update(ctx, cred); err != nil {
					return err
				}
			}
			if lazyExpired {
				if err := appendLifecycle(ctx, events, EventExpired, cred, stored, "", models.ActorSystem, now); err != nil {
					return err
				}
			}
		}

		event := models.NewVerificationEvent(result.CredentialID, now, reason, in.Verifier)
		if err := store.AppendEvent(ctx, event); err != nil {
			return err
		}
		if err := appendVerification(ctx, events, event); err != nil {
			return err
		}

		result.Valid = event.Valid
		result.Reason = reason
		if event.Valid {
			result.Credential = cred.Clone()
		}
		return nil
	})
	if err != nil {
		return nil, translateStoreError(err, "failed to verify credential")
	}
	if lazyExpired {
		span.AddEvent(tracer.EventLazyExpired, tracer.String(tracer.AttrCredentialID, result.CredentialID))
		s.invalidateStats(ctx)
	}
	return result, nil
}

// evaluate decides the outcome for a stored record and applies the lazy expired transition
// when the stored status lags behind the expiration. A tampered record is never rewritten.
func (s *Service) evaluate(cred *models.Credential, presentedChecksum string, now time.Time) (reason models.ReasonCode, dirty, expired bool) {
	if !s.codec.VerifyChecksum(cred) {
		return models.ReasonTampered, false, false
	}
	if presentedChecksum != "" && !integrity.Equal(presentedChecksum, cred.Checksum) {
		return models.ReasonTampered, false, false
	}

	effective := cred.EffectiveStatus(now)
	if cred.IsLapsed(now) {
		if err := lifecycle.Apply(cred, lifecycle.Transition{
			Trigger: lifecycle.TriggerExpiry,
			To:      models.StatusExpired,
			Actor:   models.ActorSystem,
			At:      now,
		}); err == nil {
			s.codec.Seal(cred)
			dirty, expired = true, true
		}
	}
	return models.ReasonForStatus(effective), dirty, expired
}
