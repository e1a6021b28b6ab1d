package models

import (
	"time"

	"github.com/google/uuid"

	id "fedcred/pkg/domain"
)

// ReasonCode explains a failed verification. Outcomes are values, not errors.
type ReasonCode string

const (
	ReasonNone             ReasonCode = ""
	ReasonNotFound         ReasonCode = "not_found"
	ReasonTampered         ReasonCode = "tampered"
	ReasonExpired          ReasonCode = "expired"
	ReasonSuspended        ReasonCode = "suspended"
	ReasonRevoked          ReasonCode = "revoked"
	ReasonPending          ReasonCode = "pending"
	ReasonTimeout          ReasonCode = "timeout"
	ReasonStoreUnavailable ReasonCode = "store_unavailable"
)

// ReasonForStatus maps a non-active effective status to its outcome reason.
func ReasonForStatus(s Status) ReasonCode {
	switch s {
	case StatusExpired:
		return ReasonExpired
	case StatusSuspended:
		return ReasonSuspended
	case StatusRevoked:
		return ReasonRevoked
	case StatusPending:
		return ReasonPending
	default:
		return ReasonNone
	}
}

// Channel distinguishes single scans from bulk checks in the audit trail.
type Channel string

const (
	ChannelSingle Channel = "single"
	ChannelBulk   Channel = "bulk"
)

// VerifierContext identifies who asked for a verification and from where. All fields are optional.
type VerifierContext struct {
	UserID    id.UserID
	Role      id.Role
	ClientIP  string
	UserAgent string
	Device    string
	RequestID string
	Channel   Channel
}

// VerificationEvent is one immutable audit record. CredentialID is the raw presented value,
// which may not be a well formed id.
type VerificationEvent struct {
	ID           string
	CredentialID string
	Timestamp    time.Time
	Valid        bool
	Reason       ReasonCode
	Verifier     VerifierContext
}

func NewVerificationEvent(credentialID string, at time.Time, reason ReasonCode, verifier VerifierContext) VerificationEvent {
	return VerificationEvent{
		ID:           uuid.NewString(),
		CredentialID: credentialID,
		Timestamp:    at,
		Valid:        reason == ReasonNone,
		Reason:       reason,
		Verifier:     verifier,
	}
}

// Result returns "valid" or "invalid".
func (e VerificationEvent) Result() string {
	if e.Valid {
		return "valid"
	}
	return "invalid"
}

// VerificationResult is the outcome of one verification. Credential is set only when Valid.
type VerificationResult struct {
	CredentialID string
	Valid        bool
	Reason       ReasonCode
	Credential   *Credential
	VerifiedAt   time.Time
}

// VerifyInput is a single verification request.
type VerifyInput struct {
	CredentialID string
	// PresentedChecksum, when set, must match the stored checksum.
	PresentedChecksum string
	Verifier          VerifierContext
}
