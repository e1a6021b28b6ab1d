// Package lifecycle owns every legal status change of a credential.
// Callers never assign Status directly; they apply a Transition here and reseal the checksum.
package lifecycle

import (
	"strings"
	"time"

	"fedcred/internal/credential/models"
	dErrors "fedcred/pkg/domain-errors"
)

// Trigger is what caused a transition.
type Trigger string

const (
	TriggerAdmin   Trigger = "admin"
	TriggerExpiry  Trigger = "expiry"
	TriggerRenewal Trigger = "renewal"
)

const (
	DefaultExtensionMonths = 12
	MinExtensionMonths     = 1
	MaxExtensionMonths     = 60
	MaxReasonLength        = 500
)

type edge struct {
	from, to models.Status
}

var adminEdges = map[edge]struct{}{
	{models.StatusPending, models.StatusActive}:    {},
	{models.StatusActive, models.StatusSuspended}:  {},
	{models.StatusSuspended, models.StatusActive}:  {},
	{models.StatusPending, models.StatusRevoked}:   {},
	{models.StatusActive, models.StatusRevoked}:    {},
	{models.StatusSuspended, models.StatusRevoked}: {},
	{models.StatusExpired, models.StatusRevoked}:   {},
}

// CanTransition reports whether from→to is legal for trigger. from is the effective status.
func CanTransition(from, to models.Status, trigger Trigger) bool {
	switch trigger {
	case TriggerAdmin:
		_, ok := adminEdges[edge{from, to}]
		return ok
	case TriggerExpiry:
		return to == models.StatusExpired && (from == models.StatusActive || from == models.StatusPending)
	case TriggerRenewal:
		return to == models.StatusActive && (from == models.StatusActive || from == models.StatusExpired)
	}
	return false
}

// Transition is a requested change. Reason is required for admin transitions;
// ExtensionMonths applies to renewal only (0 selects the default).
type Transition struct {
	Trigger         Trigger
	To              models.Status
	Reason          string
	Actor           string
	At              time.Time
	ExtensionMonths int
}

// Apply validates t against c's effective status at t.At and mutates c on success.
// On error c is left unchanged. The caller must reseal the checksum afterwards.
func Apply(c *models.Credential, t Transition) error {
	from := c.EffectiveStatus(t.At)
	switch t.Trigger {
	case TriggerAdmin:
		return applyAdmin(c, from, t)
	case TriggerExpiry:
		return applyExpiry(c, t)
	case TriggerRenewal:
		return applyRenewal(c, from, t)
	default:
		return dErrors.New(dErrors.CodeInternal, "unknown transition trigger")
	}
}

func applyAdmin(c *models.Credential, from models.Status, t Transition) error {
	reason := strings.TrimSpace(t.Reason)
	if reason == "" {
		return dErrors.New(dErrors.CodeValidation, "reason is required")
	}
	if len(reason) > MaxReasonLength {
		return dErrors.Newf(dErrors.CodeValidation, "reason exceeds max length of %d", MaxReasonLength)
	}
	if !CanTransition(from, t.To, TriggerAdmin) {
		return illegal(from, t.To)
	}
	c.Status = t.To
	c.AppendHistory(models.HistoryEntry{
		Kind:       models.HistoryStatusChanged,
		At:         t.At,
		Actor:      t.Actor,
		FromStatus: from,
		ToStatus:   t.To,
		Reason:     reason,
	})
	return nil
}

// applyExpiry persists the derived expired status. It only applies to lapsed active/pending records.
func applyExpiry(c *models.Credential, t Transition) error {
	if !c.IsLapsed(t.At) {
		return illegal(c.Status, models.StatusExpired)
	}
	from := c.Status
	c.Status = models.StatusExpired
	actor := t.Actor
	if actor == "" {
		actor = models.ActorSystem
	}
	c.AppendHistory(models.HistoryEntry{
		Kind:       models.HistoryExpired,
		At:         t.At,
		Actor:      actor,
		FromStatus: from,
		ToStatus:   models.StatusExpired,
	})
	return nil
}

func applyRenewal(c *models.Credential, from models.Status, t Transition) error {
	months, err := NormalizeExtension(t.ExtensionMonths)
	if err != nil {
		return err
	}
	if !CanTransition(from, models.StatusActive, TriggerRenewal) {
		return illegal(from, models.StatusActive)
	}
	previous := c.ExpirationDate
	next := RenewedExpiration(previous, t.At, months)
	c.ExpirationDate = next
	c.Status = models.StatusActive
	c.AppendHistory(models.HistoryEntry{
		Kind:               models.HistoryRenewed,
		At:                 t.At,
		Actor:              t.Actor,
		FromStatus:         from,
		ToStatus:           models.StatusActive,
		PreviousExpiration: &previous,
		NewExpiration:      &next,
		ExtensionMonths:    months,
	})
	return nil
}

// NormalizeExtension applies the default and enforces the allowed range.
func NormalizeExtension(months int) (int, error) {
	if months == 0 {
		return DefaultExtensionMonths, nil
	}
	if months < MinExtensionMonths || months > MaxExtensionMonths {
		return 0, dErrors.Newf(dErrors.CodeValidation,
			"extensionMonths must be between %d and %d", MinExtensionMonths, MaxExtensionMonths)
	}
	return months, nil
}

// RenewedExpiration extends from the later of now and the current expiration.
func RenewedExpiration(current, now time.Time, months int) time.Time {
	base := current
	if now.After(base) {
		base = now
	}
	return base.UTC().Truncate(time.Second).AddDate(0, months, 0)
}

// DefaultExpiration is the policy expiration for a credential issued at issued.
func DefaultExpiration(issued time.Time, validityMonths int) time.Time {
	if validityMonths <= 0 {
		validityMonths = DefaultExtensionMonths
	}
	return issued.AddDate(0, validityMonths, 0)
}

func illegal(from, to models.Status) error {
	return dErrors.Newf(dErrors.CodeIllegalTransition, "cannot transition from %s to %s", from, to)
}
