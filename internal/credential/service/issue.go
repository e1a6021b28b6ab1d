package service

import (
	"context"
	"strings"
	"time"

	"fedcred/internal/credential/lifecycle"
	"fedcred/internal/credential/models"
	"fedcred/internal/platform/tracer"
	dErrors "fedcred/pkg/domain-errors"
	"fedcred/pkg/platform/audit"
	"fedcred/pkg/platform/audit/outbox"
)

// Issue creates a credential from a subject snapshot. The federation number must not
// already be held by a live (pending, active or suspended) credential of the same subject type.
func (s *Service) Issue(ctx context.Context, req models.IssueRequest) (cred *models.Credential, err error) {
	ctx, span := s.tracer.Start(ctx, tracer.SpanIssue,
		tracer.String(tracer.AttrSubjectType, string(req.SubjectType)),
		tracer.String(tracer.AttrFederationID, tracer.HashFederationID(req.FederationIDNumber)),
	)
	defer func() { span.End(err) }()

	snap := normalizeSnapshot(req.Snapshot)
	if err := validateSnapshot(snap); err != nil {
		return nil, err
	}

	now := s.now(ctx)
	expiration := lifecycle.DefaultExpiration(now, s.cfg.DefaultValidityMonths)
	if req.ExpirationDate != nil {
		expiration = req.ExpirationDate.UTC().Truncate(time.Second)
	}
	if !expiration.After(now) {
		return nil, dErrors.New(dErrors.CodeValidation, "expirationDate must be after the issue date")
	}

	actor := actorFrom(ctx, req.Actor)
	cred = &models.Credential{
		ID:             models.NewCredentialID(),
		Snapshot:       snap,
		IssuedDate:     now,
		ExpirationDate: expiration,
		Status:         s.cfg.InitialStatus,
	}
	cred.VerificationURL = models.VerificationURL(s.cfg.BaseURL, cred.ID)
	cred.AppendHistory(models.HistoryEntry{
		Kind:     models.HistoryIssued,
		At:       now,
		Actor:    actor,
		ToStatus: cred.Status,
	})
	s.codec.Seal(cred)

	key := IssuanceLockKey(snap.SubjectType.String(), snap.FederationIDNumber)
	err = s.tx.RunInTx(ctx, []string{key}, func(ctx context.Context, store Store, events outbox.Appender) error {
		taken, err := store.HasLiveFederationID(ctx, snap.SubjectType, snap.FederationIDNumber, "", now)
		if err != nil {
			return err
		}
		if taken {
			return dErrors.New(dErrors.CodeDuplicateFederationID,
				"federation id number is already held by a live "+snap.SubjectType.String()+" credential")
		}
		if err := store.Create(ctx, cred); err != nil {
			return err
		}
		return appendLifecycle(ctx, events, EventIssued, cred, "", "", actor, now)
	})
	if err != nil {
		return nil, translateStoreError(err, "failed to issue credential")
	}

	span.SetAttributes(tracer.String(tracer.AttrCredentialID, cred.ID.String()))
	s.invalidateStats(ctx)
	if s.metrics != nil {
		s.metrics.IncIssued(snap.SubjectType.String())
	}
	s.auditor.Log(ctx, string(audit.EventCredentialIssued),
		"credential_id", cred.ID.String(),
		"subject_type", snap.SubjectType.String(),
		"state_id", snap.StateID.String(),
		"actor", actor,
	)
	return cred.Clone(), nil
}

func normalizeSnapshot(snap models.Snapshot) models.Snapshot {
	snap.FullName = strings.TrimSpace(snap.FullName)
	snap.StateName = strings.TrimSpace(snap.StateName)
	snap.FederationIDNumber = strings.TrimSpace(snap.FederationIDNumber)
	snap.Nationality = strings.TrimSpace(snap.Nationality)
	snap.Ranking = strings.TrimSpace(snap.Ranking)
	snap.ClubName = strings.TrimSpace(snap.ClubName)
	snap.Level = strings.TrimSpace(snap.Level)
	return snap
}

// validateSnapshot reports every missing required field in one error.
func validateSnapshot(snap models.Snapshot) error {
	var missing []string
	if snap.SubjectUserID.IsNil() {
		missing = append(missing, "subjectUserId")
	}
	if !snap.SubjectType.IsValid() {
		missing = append(missing, "subjectType")
	}
	if snap.FullName == "" {
		missing = append(missing, "fullName")
	}
	if snap.StateID.IsNil() {
		missing = append(missing, "stateId")
	}
	if snap.StateName == "" {
		missing = append(missing, "stateName")
	}
	if snap.FederationIDNumber == "" {
		missing = append(missing, "federationIdNumber")
	}
	if snap.Nationality == "" {
		missing = append(missing, "nationality")
	}
	if len(missing) > 0 {
		return dErrors.New(dErrors.CodeInvalidSubject, "missing or invalid snapshot fields: "+strings.Join(missing, ", "))
	}
	return nil
}
