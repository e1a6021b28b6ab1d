package outbox

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Entry is one event waiting to be relayed to the broker.
// It is written in the same transaction as the state change it describes.
type Entry struct {
	ID            uuid.UUID
	AggregateType string // "credential"
	AggregateID   string // credential id, or the presented id for unknown credentials
	EventType     string // "credential.verified", "credential.status_changed", ...
	Payload       []byte // JSON
	CreatedAt     time.Time
	ProcessedAt   *time.Time // nil while pending
}

func (e *Entry) IsPending() bool {
	return e.ProcessedAt == nil
}

// NewEntry creates a pending entry with a generated id.
func NewEntry(aggregateType, aggregateID, eventType string, payload []byte, createdAt time.Time) *Entry {
	return &Entry{
		ID:            uuid.New(),
		AggregateType: aggregateType,
		AggregateID:   aggregateID,
		EventType:     eventType,
		Payload:       payload,
		CreatedAt:     createdAt,
	}
}

// NewJSONEntry marshals payload and wraps it in a pending entry.
func NewJSONEntry(aggregateType, aggregateID, eventType string, payload any, createdAt time.Time) (*Entry, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal outbox payload: %w", err)
	}
	return NewEntry(aggregateType, aggregateID, eventType, raw, createdAt), nil
}
