// Package domain provides type-safe identifiers to prevent mixing up IDs at compile time.
package domain

import (
	"regexp"
	"strings"

	"github.com/google/uuid"

	dErrors "fedcred/pkg/domain-errors"
)

// UserID references a federation member account. Credentials hold it as a weak
// reference: the account does not own the credential lifecycle.
type UserID uuid.UUID

// StateID identifies the state federation a credential was issued under.
type StateID string

var stateIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,64}$`)

// Parse functions - use at trust boundaries (handlers, API inputs).

func ParseUserID(s string) (UserID, error) {
	id, err := parseUUID(s, "user ID")
	return UserID(id), err
}

func ParseStateID(s string) (StateID, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", dErrors.New(dErrors.CodeInvalidInput, "state ID cannot be empty")
	}
	if !stateIDPattern.MatchString(s) {
		return "", dErrors.New(dErrors.CodeInvalidInput, "invalid state ID format")
	}
	return StateID(s), nil
}

func (id UserID) String() string  { return uuid.UUID(id).String() }
func (id StateID) String() string { return string(id) }

func (id UserID) IsNil() bool  { return uuid.UUID(id) == uuid.Nil }
func (id StateID) IsNil() bool { return id == "" }

// parseUUID is the shared validation logic. Nil UUIDs are rejected.
func parseUUID(s, label string) (uuid.UUID, error) {
	if s == "" {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, label+" cannot be empty")
	}
	id, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, "invalid "+label+" format")
	}
	if id == uuid.Nil {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, label+" cannot be nil")
	}
	return id, nil
}
