package service

import (
	"context"
	"time"

	"fedcred/internal/credential/models"
	"fedcred/pkg/platform/audit/outbox"
)

// AggregateType tags credential entries in the outbox.
const AggregateType = "credential"

// Outbox event types.
const (
	EventIssued        = "credential.issued"
	EventStatusChanged = "credential.status_changed"
	EventRenewed       = "credential.renewed"
	EventExpired       = "credential.expired"
	EventVerified      = "credential.verified"
)

type lifecyclePayload struct {
	CredentialID   string    `json:"credentialId"`
	SubjectUserID  string    `json:"subjectUserId"`
	SubjectType    string    `json:"subjectType"`
	StateID        string    `json:"stateId"`
	FromStatus     string    `json:"fromStatus,omitempty"`
	Status         string    `json:"status"`
	ExpirationDate time.Time `json:"expirationDate"`
	Reason         string    `json:"reason,omitempty"`
	Actor          string    `json:"actor"`
	OccurredAt     time.Time `json:"occurredAt"`
}

type verificationPayload struct {
	EventID      string    `json:"eventId"`
	CredentialID string    `json:"credentialId"`
	Valid        bool      `json:"valid"`
	Reason       string    `json:"reason,omitempty"`
	Channel      string    `json:"channel"`
	VerifierID   string    `json:"verifierId,omitempty"`
	RequestID    string    `json:"requestId,omitempty"`
	OccurredAt   time.Time `json:"occurredAt"`
}

func appendLifecycle(ctx context.Context, events outbox.Appender, eventType string, cred *models.Credential, from models.Status, reason, actor string, at time.Time) error {
	entry, err := outbox.NewJSONEntry(AggregateType, cred.ID.String(), eventType, lifecyclePayload{
		CredentialID:   cred.ID.String(),
		SubjectUserID:  cred.SubjectUserID.String(),
		SubjectType:    cred.SubjectType.String(),
		StateID:        cred.StateID.String(),
		FromStatus:     string(from),
		Status:         cred.Status.String(),
		ExpirationDate: cred.ExpirationDate,
		Reason:         reason,
		Actor:          actor,
		OccurredAt:     at,
	}, at)
	if err != nil {
		return err
	}
	return events.Append(ctx, entry)
}

func appendVerification(ctx context.Context, events outbox.Appender, event models.VerificationEvent) error {
	payload := verificationPayload{
		EventID:      event.ID,
		CredentialID: event.CredentialID,
		Valid:        event.Valid,
		Reason:       string(event.Reason),
		Channel:      string(event.Verifier.Channel),
		RequestID:    event.Verifier.RequestID,
		OccurredAt:   event.Timestamp,
	}
	if !event.Verifier.UserID.IsNil() {
		payload.VerifierID = event.Verifier.UserID.String()
	}
	entry, err := outbox.NewJSONEntry(AggregateType, event.CredentialID, EventVerified, payload, event.Timestamp)
	if err != nil {
		return err
	}
	return events.Append(ctx, entry)
}
