package service

import (
	"context"
	"fmt"

	"fedcred/internal/credential/models"
	"fedcred/internal/platform/tracer"
	id "fedcred/pkg/domain"
	dErrors "fedcred/pkg/domain-errors"
)

// Get returns one credential by id.
func (s *Service) Get(ctx context.Context, credID models.CredentialID) (*models.Credential, error) {
	parsed, err := models.ParseCredentialID(credID.String())
	if err != nil {
		return nil, dErrors.New(dErrors.CodeNotFound, "credential not found")
	}
	return withReadRetry(ctx, s, func(ctx context.Context) (*models.Credential, error) {
		return s.store.FindByID(ctx, parsed)
	})
}

// ListEvents returns the verification audit trail for a credential, newest first.
func (s *Service) ListEvents(ctx context.Context, credID string, page models.Page) (models.PageResult[models.VerificationEvent], error) {
	page = page.Normalize()
	key := credID
	if parsed, err := models.ParseCredentialID(credID); err == nil {
		key = parsed.String()
	}
	return withReadRetry(ctx, s, func(ctx context.Context) (models.PageResult[models.VerificationEvent], error) {
		return s.store.ListEvents(ctx, key, page)
	})
}

// ListBySubject lists the credentials owned by a user, newest first.
func (s *Service) ListBySubject(ctx context.Context, userID id.UserID, page models.Page) (models.PageResult[*models.Credential], error) {
	page = page.Normalize()
	return withReadRetry(ctx, s, func(ctx context.Context) (models.PageResult[*models.Credential], error) {
		return s.store.ListBySubject(ctx, userID, page)
	})
}

// ListByState lists credentials issued in a state. The status filter matches effective status.
func (s *Service) ListByState(ctx context.Context, filter models.StateFilter, page models.Page) (models.PageResult[*models.Credential], error) {
	if filter.StateID.IsNil() {
		return models.PageResult[*models.Credential]{}, dErrors.New(dErrors.CodeValidation, "stateId is required")
	}
	if filter.Status != "" && !filter.Status.IsValid() {
		return models.PageResult[*models.Credential]{}, dErrors.New(dErrors.CodeValidation, "unknown status filter")
	}
	if filter.SubjectType != "" && !filter.SubjectType.IsValid() {
		return models.PageResult[*models.Credential]{}, dErrors.New(dErrors.CodeValidation, "unknown userType filter")
	}
	filter.Now = s.now(ctx)
	page = page.Normalize()
	return withReadRetry(ctx, s, func(ctx context.Context) (models.PageResult[*models.Credential], error) {
		return s.store.ListByState(ctx, filter, page)
	})
}

// Expiring lists active credentials whose expiration falls within the next days days,
// soonest first. days of 0 selects DefaultExpiringDays.
func (s *Service) Expiring(ctx context.Context, days int, page models.Page) (models.PageResult[*models.Credential], error) {
	if days == 0 {
		days = DefaultExpiringDays
	}
	if days < 1 || days > MaxExpiringDays {
		return models.PageResult[*models.Credential]{}, dErrors.New(dErrors.CodeValidation,
			fmt.Sprintf("days must be between 1 and %d", MaxExpiringDays))
	}
	q := models.ExpiringQuery{Now: s.now(ctx), Days: days}
	page = page.Normalize()
	return withReadRetry(ctx, s, func(ctx context.Context) (models.PageResult[*models.Credential], error) {
		return s.store.ListExpiring(ctx, q, page)
	})
}

// Stats returns aggregate counts by effective status and subject type, served from the
// cache when one is configured. Cache failures fall through to the store.
func (s *Service) Stats(ctx context.Context) (stats *models.Stats, err error) {
	ctx, span := s.tracer.Start(ctx, tracer.SpanStats)
	defer func() { span.End(err) }()

	if s.cache != nil {
		cached, hit, cacheErr := s.cache.Get(ctx)
		switch {
		case cacheErr != nil:
			s.recordCache("error")
			s.logger.WarnContext(ctx, "stats cache read failed", "error", cacheErr)
		case hit:
			s.recordCache("hit")
			span.SetAttributes(tracer.Bool(tracer.AttrCacheHit, true))
			return cached, nil
		default:
			s.recordCache("miss")
		}
	}
	span.SetAttributes(tracer.Bool(tracer.AttrCacheHit, false))

	var version int64
	cacheable := false
	if s.cache != nil {
		v, err := s.cache.Version(ctx)
		if err != nil {
			s.logger.WarnContext(ctx, "stats cache version read failed", "error", err)
		} else {
			version, cacheable = v, true
		}
	}

	now := s.now(ctx)
	stats, err = withReadRetry(ctx, s, func(ctx context.Context) (*models.Stats, error) {
		return s.store.Stats(ctx, now)
	})
	if err != nil {
		return nil, err
	}
	if cacheable {
		stored, err := s.cache.Set(ctx, stats, version)
		switch {
		case err != nil:
			s.logger.WarnContext(ctx, "stats cache write failed", "error", err)
		case !stored:
			s.recordCache("stale")
		}
	}
	return stats, nil
}

func (s *Service) recordCache(outcome string) {
	if s.metrics != nil {
		s.metrics.IncStatsCache(outcome)
	}
}

// CheckTrust is the read-only gate for artifact export: the credential must exist, pass its
// integrity check and be effectively active. It does not count as a verification.
func (s *Service) CheckTrust(ctx context.Context, credID models.CredentialID) (*models.Credential, error) {
	cred, err := s.Get(ctx, credID)
	if err != nil {
		return nil, err
	}
	if !s.codec.VerifyChecksum(cred) {
		return nil, dErrors.New(dErrors.CodeIntegrityViolation, "stored credential failed its integrity check")
	}
	if status := cred.EffectiveStatus(s.now(ctx)); status != models.StatusActive {
		return nil, dErrors.New(dErrors.CodeConflict, "credential is "+status.String())
	}
	return cred, nil
}
