// Package store persists credentials and their verification audit trail.
//
// Error contract:
//   - sentinel.ErrNotFound when the credential does not exist
//   - sentinel.ErrConflict when an insert collides with an existing id
//   - sentinel.ErrUnavailable (wrapped) when the backing database cannot be reached
//   - context errors are passed through so callers can report timeouts
package store

import (
	"slices"
	"strings"
	"time"

	"fedcred/internal/credential/models"
)

// liveStatuses block re-issuance of the same federation number.
var liveStatuses = []models.Status{models.StatusPending, models.StatusActive, models.StatusSuspended}

// lapsibleStatuses are stored statuses the expiry transition applies to.
var lapsibleStatuses = []models.Status{models.StatusActive, models.StatusPending}

func statusStrings(statuses []models.Status) []string {
	out := make([]string, len(statuses))
	for i, s := range statuses {
		out[i] = string(s)
	}
	return out
}

// byIssuedDesc orders listings newest first with the id as tie-breaker.
func byIssuedDesc(a, b *models.Credential) int {
	if c := b.IssuedDate.Compare(a.IssuedDate); c != 0 {
		return c
	}
	return strings.Compare(string(a.ID), string(b.ID))
}

func byExpirationAsc(a, b *models.Credential) int {
	if c := a.ExpirationDate.Compare(b.ExpirationDate); c != 0 {
		return c
	}
	return strings.Compare(string(a.ID), string(b.ID))
}

func window[T any](items []T, page models.Page) models.PageResult[T] {
	page = page.Normalize()
	total := len(items)
	start := min(page.Offset, total)
	end := min(start+page.Limit, total)
	out := make([]T, end-start)
	copy(out, items[start:end])
	return models.PageResult[T]{Items: out, Total: total, Limit: page.Limit, Offset: page.Offset}
}

func inWindow(exp time.Time, q models.ExpiringQuery) bool {
	return !exp.Before(q.Now) && !exp.After(q.Until())
}

func containsStatus(statuses []models.Status, s models.Status) bool {
	return slices.Contains(statuses, s)
}
