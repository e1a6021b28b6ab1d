package store

import (
	"context"
	"slices"
	"sync"
	"time"

	"fedcred/internal/credential/models"
	id "fedcred/pkg/domain"
	"fedcred/pkg/platform/sentinel"
)

// InMemoryStore keeps credentials and verification events in process memory.
// Callers serialize read-modify-write sequences per credential; each method is atomic on its own.
type InMemoryStore struct {
	mu          sync.RWMutex
	credentials map[models.CredentialID]*models.Credential
	events      []models.VerificationEvent
}

func NewInMemory() *InMemoryStore {
	return &InMemoryStore{credentials: make(map[models.CredentialID]*models.Credential)}
}

func (s *InMemoryStore) Create(_ context.Context, cred *models.Credential) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.credentials[cred.ID]; ok {
		return sentinel.ErrConflict
	}
	s.credentials[cred.ID] = cred.Clone()
	return nil
}

func (s *InMemoryStore) FindByID(_ context.Context, credID models.CredentialID) (*models.Credential, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cred, ok := s.credentials[credID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return cred.Clone(), nil
}

// FindByIDForUpdate is FindByID; row locking is provided by the caller's sharded mutex.
func (s *InMemoryStore) FindByIDForUpdate(ctx context.Context, credID models.CredentialID) (*models.Credential, error) {
	return s.FindByID(ctx, credID)
}

func (s *InMemoryStore) Update(_ context.Context, cred *models.Credential) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.credentials[cred.ID]; !ok {
		return sentinel.ErrNotFound
	}
	s.credentials[cred.ID] = cred.Clone()
	return nil
}

func (s *InMemoryStore) HasLiveFederationID(_ context.Context, subjectType models.SubjectType, number string, exclude models.CredentialID, now time.Time) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, cred := range s.credentials {
		if cred.ID == exclude || cred.SubjectType != subjectType || cred.FederationIDNumber != number {
			continue
		}
		if containsStatus(liveStatuses, cred.EffectiveStatus(now)) {
			return true, nil
		}
	}
	return false, nil
}

func (s *InMemoryStore) ListBySubject(_ context.Context, userID id.UserID, page models.Page) (models.PageResult[*models.Credential], error) {
	return s.list(page, byIssuedDesc, func(c *models.Credential) bool {
		return c.SubjectUserID == userID
	}), nil
}

func (s *InMemoryStore) ListByState(_ context.Context, filter models.StateFilter, page models.Page) (models.PageResult[*models.Credential], error) {
	return s.list(page, byIssuedDesc, func(c *models.Credential) bool {
		if c.StateID != filter.StateID {
			return false
		}
		if filter.SubjectType != "" && c.SubjectType != filter.SubjectType {
			return false
		}
		if filter.Status != "" && c.EffectiveStatus(filter.Now) != filter.Status {
			return false
		}
		return true
	}), nil
}

func (s *InMemoryStore) ListExpiring(_ context.Context, q models.ExpiringQuery, page models.Page) (models.PageResult[*models.Credential], error) {
	return s.list(page, byExpirationAsc, func(c *models.Credential) bool {
		return c.EffectiveStatus(q.Now) == models.StatusActive && inWindow(c.ExpirationDate, q)
	}), nil
}

func (s *InMemoryStore) list(page models.Page, order func(a, b *models.Credential) int, keep func(*models.Credential) bool) models.PageResult[*models.Credential] {
	s.mu.RLock()
	matched := make([]*models.Credential, 0)
	for _, cred := range s.credentials {
		if keep(cred) {
			matched = append(matched, cred.Clone())
		}
	}
	s.mu.RUnlock()
	slices.SortFunc(matched, order)
	return window(matched, page)
}

func (s *InMemoryStore) Stats(_ context.Context, now time.Time) (*models.Stats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	stats := models.NewStats(now)
	for _, cred := range s.credentials {
		stats.Total++
		stats.ByStatus[cred.EffectiveStatus(now)]++
		stats.BySubjectType[cred.SubjectType]++
	}
	return stats, nil
}

// ListLapsed returns ids whose stored status is active or pending but whose expiration has passed,
// oldest expiration first.
func (s *InMemoryStore) ListLapsed(_ context.Context, now time.Time, limit int) ([]models.CredentialID, error) {
	s.mu.RLock()
	lapsed := make([]*models.Credential, 0)
	for _, cred := range s.credentials {
		if containsStatus(lapsibleStatuses, cred.Status) && now.After(cred.ExpirationDate) {
			lapsed = append(lapsed, cred)
		}
	}
	s.mu.RUnlock()
	slices.SortFunc(lapsed, byExpirationAsc)
	if limit > 0 && len(lapsed) > limit {
		lapsed = lapsed[:limit]
	}
	ids := make([]models.CredentialID, len(lapsed))
	for i, cred := range lapsed {
		ids[i] = cred.ID
	}
	return ids, nil
}

func (s *InMemoryStore) AppendEvent(_ context.Context, event models.VerificationEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
	return nil
}

// ListEvents returns the audit trail for a presented id, newest first.
func (s *InMemoryStore) ListEvents(_ context.Context, credentialID string, page models.Page) (models.PageResult[models.VerificationEvent], error) {
	s.mu.RLock()
	matched := make([]models.VerificationEvent, 0)
	for i := len(s.events) - 1; i >= 0; i-- {
		if s.events[i].CredentialID == credentialID {
			matched = append(matched, s.events[i])
		}
	}
	s.mu.RUnlock()
	slices.SortStableFunc(matched, func(a, b models.VerificationEvent) int {
		return b.Timestamp.Compare(a.Timestamp)
	})
	return window(matched, page), nil
}

// EventCount returns the number of recorded verification events.
func (s *InMemoryStore) EventCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.events)
}
