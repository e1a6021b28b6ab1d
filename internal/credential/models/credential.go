package models

import (
	"time"

	id "fedcred/pkg/domain"
)

// Snapshot holds the subject attributes captured at issuance. It is not kept in sync with the member record.
type Snapshot struct {
	SubjectUserID      id.UserID
	SubjectType        SubjectType
	FullName           string
	StateID            id.StateID
	StateName          string
	FederationIDNumber string
	Nationality        string
	Ranking            string
	ClubName           string
	Level              string
}

// Credential is the persisted trust record.
type Credential struct {
	ID CredentialID
	Snapshot
	IssuedDate        time.Time
	ExpirationDate    time.Time
	Status            Status
	Checksum          string
	VerificationURL   string
	VerificationCount int64
	LastVerified      *time.Time
	History           []HistoryEntry
}

// EffectiveStatus is the status a verifier or report must act on at now.
func (c *Credential) EffectiveStatus(now time.Time) Status {
	return EffectiveStatus(c.Status, c.ExpirationDate, now)
}

// IsLapsed reports whether the stored status still needs the derived expired transition.
func (c *Credential) IsLapsed(now time.Time) bool {
	return (c.Status == StatusActive || c.Status == StatusPending) && now.After(c.ExpirationDate)
}

// Clone returns a deep copy so callers can mutate without touching stored state.
func (c *Credential) Clone() *Credential {
	if c == nil {
		return nil
	}
	out := *c
	if c.LastVerified != nil {
		lv := *c.LastVerified
		out.LastVerified = &lv
	}
	if c.History != nil {
		out.History = make([]HistoryEntry, len(c.History))
		copy(out.History, c.History)
	}
	return &out
}

// AppendHistory adds an entry to the append-only log.
func (c *Credential) AppendHistory(e HistoryEntry) {
	c.History = append(c.History, e)
}
