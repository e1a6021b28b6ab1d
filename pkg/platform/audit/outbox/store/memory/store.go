// Package memory is an in-process outbox used when no database is configured and in tests.
package memory

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"fedcred/pkg/platform/audit/outbox"
)

type Store struct {
	mu      sync.Mutex
	entries []*outbox.Entry
}

func New() *Store {
	return &Store{}
}

func (s *Store) Append(_ context.Context, entry *outbox.Entry) error {
	if entry == nil {
		return fmt.Errorf("outbox entry is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *entry
	s.entries = append(s.entries, &cp)
	return nil
}

func (s *Store) FetchUnprocessed(_ context.Context, limit int) ([]*outbox.Entry, error) {
	if limit <= 0 {
		return nil, nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*outbox.Entry
	for _, e := range s.entries {
		if e.IsPending() {
			cp := *e
			out = append(out, &cp)
		}
	}
	slices.SortStableFunc(out, func(a, b *outbox.Entry) int { return a.CreatedAt.Compare(b.CreatedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Store) MarkProcessed(_ context.Context, id uuid.UUID, processedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range s.entries {
		if e.ID == id && e.IsPending() {
			at := processedAt
			e.ProcessedAt = &at
			return nil
		}
	}
	return fmt.Errorf("outbox entry not found or already processed: %s", id)
}

func (s *Store) CountPending(_ context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for _, e := range s.entries {
		if e.IsPending() {
			n++
		}
	}
	return n, nil
}

func (s *Store) DeleteProcessedBefore(_ context.Context, before time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.entries[:0]
	var removed int64
	for _, e := range s.entries {
		if e.ProcessedAt != nil && e.ProcessedAt.Before(before) {
			removed++
			continue
		}
		kept = append(kept, e)
	}
	s.entries = kept
	return removed, nil
}

// All returns a copy of every entry, for assertions in tests.
func (s *Store) All() []outbox.Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]outbox.Entry, 0, len(s.entries))
	for _, e := range s.entries {
		out = append(out, *e)
	}
	return out
}
