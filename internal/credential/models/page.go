package models

import (
	"time"

	id "fedcred/pkg/domain"
)

const (
	DefaultPageLimit = 20
	MaxPageLimit     = 100
)

// Page is a limit/offset window.
type Page struct {
	Limit  int
	Offset int
}

// Normalize applies defaults and clamps the limit.
func (p Page) Normalize() Page {
	if p.Limit <= 0 {
		p.Limit = DefaultPageLimit
	}
	if p.Limit > MaxPageLimit {
		p.Limit = MaxPageLimit
	}
	if p.Offset < 0 {
		p.Offset = 0
	}
	return p
}

// PageResult is a window of items plus the unpaged total.
type PageResult[T any] struct {
	Items  []T
	Total  int
	Limit  int
	Offset int
}

// StateFilter narrows a state listing. Status filters on effective status.
type StateFilter struct {
	StateID     id.StateID
	SubjectType SubjectType
	Status      Status
	Now         time.Time
}

// ExpiringQuery selects active credentials whose expiration falls in [Now, Now+Days].
type ExpiringQuery struct {
	Now  time.Time
	Days int
}

// Until returns the upper bound of the window.
func (q ExpiringQuery) Until() time.Time {
	return q.Now.AddDate(0, 0, q.Days)
}
