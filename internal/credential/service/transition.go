package service

import (
	"context"
	"time"

	"fedcred/internal/credential/lifecycle"
	"fedcred/internal/credential/models"
	"fedcred/internal/platform/tracer"
	dErrors "fedcred/pkg/domain-errors"
	"fedcred/pkg/platform/audit"
	"fedcred/pkg/platform/audit/outbox"
)

// ChangeStatus applies an administrative transition. The reason is mandatory and is
// persisted in the credential history. Writes are never retried.
func (s *Service) ChangeStatus(ctx context.Context, req models.StatusChangeRequest) (cred *models.Credential, err error) {
	ctx, span := s.tracer.Start(ctx, tracer.SpanTransition,
		tracer.String(tracer.AttrCredentialID, req.ID.String()),
		tracer.String(tracer.AttrStatus, req.Target.String()),
	)
	defer func() { span.End(err) }()

	if !req.Target.IsValid() {
		return nil, dErrors.New(dErrors.CodeValidation, "status must be one of pending, active, suspended, revoked, expired")
	}

	actor := actorFrom(ctx, req.Actor)
	now := s.now(ctx)
	var from models.Status
	cred, err = s.mutate(ctx, req.ID, nil, func(ctx context.Context, _ Store, c *models.Credential, events outbox.Appender) error {
		from = c.EffectiveStatus(now)
		if err := lifecycle.Apply(c, lifecycle.Transition{
			Trigger: lifecycle.TriggerAdmin,
			To:      req.Target,
			Reason:  req.Reason,
			Actor:   actor,
			At:      now,
		}); err != nil {
			return err
		}
		return appendLifecycle(ctx, events, EventStatusChanged, c, from, req.Reason, actor, now)
	})
	if err != nil {
		s.logger.WarnContext(ctx, "status change rejected",
			"credential_id", req.ID.String(),
			"target", req.Target,
			"error", err,
		)
		return nil, err
	}

	if s.metrics != nil {
		s.metrics.IncTransition(string(lifecycle.TriggerAdmin), cred.Status.String())
	}
	s.auditor.Log(ctx, string(audit.EventCredentialStatusChanged),
		"credential_id", cred.ID.String(),
		"from", from.String(),
		"to", cred.Status.String(),
		"reason", req.Reason,
		"actor", actor,
	)
	return cred, nil
}

// Renew extends the validity window from the later of now and the current expiration,
// restoring active when the credential had lapsed. A lapsed credential is not restored
// while another live credential of its subject type holds the same federation number.
func (s *Service) Renew(ctx context.Context, req models.RenewRequest) (cred *models.Credential, err error) {
	ctx, span := s.tracer.Start(ctx, tracer.SpanRenew, tracer.String(tracer.AttrCredentialID, req.ID.String()))
	defer func() { span.End(err) }()

	months, err := lifecycle.NormalizeExtension(req.ExtensionMonths)
	if err != nil {
		return nil, err
	}

	issuanceKey, err := s.issuanceKeyOf(ctx, req.ID)
	if err != nil {
		return nil, err
	}

	actor := actorFrom(ctx, req.Actor)
	now := s.now(ctx)
	var from models.Status
	cred, err = s.mutate(ctx, req.ID, []string{issuanceKey}, func(ctx context.Context, store Store, c *models.Credential, events outbox.Appender) error {
		from = c.EffectiveStatus(now)
		if from == models.StatusExpired {
			taken, err := store.HasLiveFederationID(ctx, c.SubjectType, c.FederationIDNumber, c.ID, now)
			if err != nil {
				return err
			}
			if taken {
				return dErrors.New(dErrors.CodeDuplicateFederationID,
					"federation id number has been reissued to a live "+c.SubjectType.String()+" credential")
			}
		}
		if err := lifecycle.Apply(c, lifecycle.Transition{
			Trigger:         lifecycle.TriggerRenewal,
			To:              models.StatusActive,
			Actor:           actor,
			At:              now,
			ExtensionMonths: months,
		}); err != nil {
			return err
		}
		return appendLifecycle(ctx, events, EventRenewed, c, from, "", actor, now)
	})
	if err != nil {
		s.logger.WarnContext(ctx, "renewal rejected", "credential_id", req.ID.String(), "error", err)
		return nil, err
	}

	if s.metrics != nil {
		s.metrics.IncRenewal()
		if from != models.StatusActive {
			s.metrics.IncTransition(string(lifecycle.TriggerRenewal), models.StatusActive.String())
		}
	}
	s.auditor.Log(ctx, string(audit.EventCredentialRenewed),
		"credential_id", cred.ID.String(),
		"extension_months", months,
		"expiration_date", cred.ExpirationDate.Format(time.RFC3339),
		"actor", actor,
	)
	return cred, nil
}

// issuanceKeyOf reads the credential outside the unit to learn which federation number
// lock renewal must also hold. The snapshot is immutable, so the key cannot go stale.
// Unknown or malformed ids yield no key; mutate reports them.
func (s *Service) issuanceKeyOf(ctx context.Context, credID models.CredentialID) (string, error) {
	credID, err := models.ParseCredentialID(credID.String())
	if err != nil {
		return "", nil
	}
	cred, err := withReadRetry(ctx, s, func(ctx context.Context) (*models.Credential, error) {
		return s.store.FindByID(ctx, credID)
	})
	if dErrors.HasCode(err, dErrors.CodeNotFound) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return IssuanceLockKey(cred.SubjectType.String(), cred.FederationIDNumber), nil
}

// mutate runs one locked read-modify-write on a credential: load, integrity check,
// apply, reseal, update. extraKeys are locked alongside the credential. A record whose
// stored checksum no longer matches is refused so it cannot be laundered by a fresh seal.
func (s *Service) mutate(ctx context.Context, credID models.CredentialID, extraKeys []string, apply func(ctx context.Context, store Store, c *models.Credential, events outbox.Appender) error) (*models.Credential, error) {
	credID, err := models.ParseCredentialID(credID.String())
	if err != nil {
		return nil, dErrors.New(dErrors.CodeNotFound, "credential not found")
	}

	var out *models.Credential
	keys := append([]string{credID.String()}, extraKeys...)
	err = s.tx.RunInTx(ctx, keys, func(ctx context.Context, store Store, events outbox.Appender) error {
		cred, err := store.FindByIDForUpdate(ctx, credID)
		if err != nil {
			return err
		}
		if !s.codec.VerifyChecksum(cred) {
			return dErrors.New(dErrors.CodeIntegrityViolation, "stored credential failed its integrity check")
		}
		if err := apply(ctx, store, cred, events); err != nil {
			return err
		}
		s.codec.Seal(cred)
		if err := store.Update(ctx, cred); err != nil {
			return err
		}
		out = cred.Clone()
		return nil
	})
	if err != nil {
		return nil, translateStoreError(err, "failed to update credential")
	}
	s.invalidateStats(ctx)
	return out, nil
}
