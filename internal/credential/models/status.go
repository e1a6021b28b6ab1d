package models

import (
	"strings"
	"time"

	dErrors "fedcred/pkg/domain-errors"
)

// Status is the persisted lifecycle state of a credential.
type Status string

const (
	StatusPending   Status = "pending"
	StatusActive    Status = "active"
	StatusSuspended Status = "suspended"
	StatusRevoked   Status = "revoked"
	StatusExpired   Status = "expired"
)

// AllStatuses lists every status in a stable order for reports.
var AllStatuses = []Status{StatusPending, StatusActive, StatusSuspended, StatusRevoked, StatusExpired}

func ParseStatus(value string) (Status, error) {
	s := Status(strings.ToLower(strings.TrimSpace(value)))
	if !s.IsValid() {
		if value == "" {
			return "", dErrors.New(dErrors.CodeInvalidInput, "status is required")
		}
		return "", dErrors.New(dErrors.CodeInvalidInput, "unknown status")
	}
	return s, nil
}

func (s Status) IsValid() bool {
	switch s {
	case StatusPending, StatusActive, StatusSuspended, StatusRevoked, StatusExpired:
		return true
	}
	return false
}

func (s Status) String() string { return string(s) }

// EffectiveStatus applies the expiry predicate to a stored status.
// Suspended and revoked win over expiry; otherwise a lapsed credential is expired.
func EffectiveStatus(stored Status, expirationDate, now time.Time) Status {
	switch stored {
	case StatusSuspended, StatusRevoked:
		return stored
	}
	if now.After(expirationDate) {
		return StatusExpired
	}
	return stored
}
