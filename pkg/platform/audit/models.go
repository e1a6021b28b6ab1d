package audit

import (
	"time"

	id "fedcred/pkg/domain"
)

// Event is emitted from domain logic to capture administrative actions on
// credentials. Keep it transport-agnostic so sinks can fan out.
type Event struct {
	Timestamp    time.Time `json:"timestamp"`
	ActorID      id.UserID `json:"-"`
	Actor        string    `json:"actor"`
	Action       string    `json:"action"`
	CredentialID string    `json:"credentialId,omitempty"`
	Reason       string    `json:"reason,omitempty"`
	RequestID    string    `json:"requestId,omitempty"`
}

type AuditEvent string

const (
	EventCredentialIssued        AuditEvent = "credential_issued"
	EventCredentialStatusChanged AuditEvent = "credential_status_changed"
	EventCredentialRenewed       AuditEvent = "credential_renewed"
	EventCredentialsExpired      AuditEvent = "credentials_expired"
	EventCredentialsExported     AuditEvent = "credentials_exported"
	EventBulkVerification        AuditEvent = "bulk_verification"
)

// AggregateType tags audit entries in the outbox.
const AggregateType = "audit"
