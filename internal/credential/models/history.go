package models

import "time"

// HistoryKind tags an entry in a credential's append-only history.
type HistoryKind string

const (
	HistoryIssued        HistoryKind = "issued"
	HistoryStatusChanged HistoryKind = "status_changed"
	HistoryRenewed       HistoryKind = "renewed"
	HistoryExpired       HistoryKind = "expired"
)

// HistoryEntry is one typed record in the credential's metadata log.
// Fields not relevant to Kind are left empty.
type HistoryEntry struct {
	Kind               HistoryKind `json:"kind"`
	At                 time.Time   `json:"at"`
	Actor              string      `json:"actor,omitempty"`
	FromStatus         Status      `json:"fromStatus,omitempty"`
	ToStatus           Status      `json:"toStatus,omitempty"`
	Reason             string      `json:"reason,omitempty"`
	PreviousExpiration *time.Time  `json:"previousExpiration,omitempty"`
	NewExpiration      *time.Time  `json:"newExpiration,omitempty"`
	ExtensionMonths    int         `json:"extensionMonths,omitempty"`
}

// ActorSystem marks entries written by background jobs or lazy expiry.
const ActorSystem = "system"
