package models

import (
	"time"
)

// IssueRequest is the service input for issuance.
type IssueRequest struct {
	Snapshot
	// ExpirationDate overrides the policy default validity when set.
	ExpirationDate *time.Time
	Actor          string
}

// StatusChangeRequest is an administrative lifecycle transition.
type StatusChangeRequest struct {
	ID     CredentialID
	Target Status
	Reason string
	Actor  string
}

// RenewRequest extends a credential. ExtensionMonths of 0 means the policy default.
type RenewRequest struct {
	ID              CredentialID
	ExtensionMonths int
	Actor           string
}
