package testutil

import (
	"time"

	"github.com/google/uuid"

	"fedcred/internal/credential/models"
	id "fedcred/pkg/domain"
)

// TestIDs provides convenient pre-generated IDs for tests.
// Use these for deterministic test data.
var TestIDs = struct {
	UserID1       id.UserID
	UserID2       id.UserID
	AdminID       id.UserID
	StateID1      id.StateID
	StateID2      id.StateID
	CredentialID1 models.CredentialID
	CredentialID2 models.CredentialID
}{
	UserID1:       id.UserID(uuid.MustParse("11111111-1111-1111-1111-111111111111")),
	UserID2:       id.UserID(uuid.MustParse("22222222-2222-2222-2222-222222222222")),
	AdminID:       id.UserID(uuid.MustParse("aaaa0000-0000-0000-0000-000000000001")),
	StateID1:      id.StateID("lagos"),
	StateID2:      id.StateID("kano"),
	CredentialID1: models.CredentialID("cred_cccc0000-0000-0000-0000-000000000001"),
	CredentialID2: models.CredentialID("cred_cccc0000-0000-0000-0000-000000000002"),
}

// NewTestSnapshot returns a complete player snapshot.
func NewTestSnapshot() models.Snapshot {
	return models.Snapshot{
		SubjectUserID:      TestIDs.UserID1,
		SubjectType:        models.SubjectPlayer,
		FullName:           "Ada Okafor",
		StateID:            TestIDs.StateID1,
		StateName:          "Lagos",
		FederationIDNumber: "NGF-000123",
		Nationality:        "NG",
		Ranking:            "12",
		ClubName:           "Lagos Lions",
		Level:              "senior",
	}
}

// CredentialBuilder provides a fluent interface for building test credentials.
// Build does not seal the checksum; tests that verify must seal with a codec.
type CredentialBuilder struct {
	cred *models.Credential
}

// NewCredentialBuilder creates an active credential issued now and valid for a year.
func NewCredentialBuilder() *CredentialBuilder {
	now := time.Now().UTC().Truncate(time.Second)
	return &CredentialBuilder{
		cred: &models.Credential{
			ID:             models.NewCredentialID(),
			Snapshot:       NewTestSnapshot(),
			IssuedDate:     now,
			ExpirationDate: now.AddDate(1, 0, 0),
			Status:         models.StatusActive,
		},
	}
}

func (b *CredentialBuilder) WithID(credID models.CredentialID) *CredentialBuilder {
	b.cred.ID = credID
	return b
}

func (b *CredentialBuilder) WithSubject(userID id.UserID, subjectType models.SubjectType) *CredentialBuilder {
	b.cred.SubjectUserID = userID
	b.cred.SubjectType = subjectType
	return b
}

func (b *CredentialBuilder) WithState(stateID id.StateID, name string) *CredentialBuilder {
	b.cred.StateID = stateID
	b.cred.StateName = name
	return b
}

func (b *CredentialBuilder) WithFederationID(number string) *CredentialBuilder {
	b.cred.FederationIDNumber = number
	return b
}

func (b *CredentialBuilder) WithStatus(status models.Status) *CredentialBuilder {
	b.cred.Status = status
	return b
}

func (b *CredentialBuilder) IssuedAt(t time.Time) *CredentialBuilder {
	b.cred.IssuedDate = t.UTC().Truncate(time.Second)
	return b
}

func (b *CredentialBuilder) ExpiresAt(t time.Time) *CredentialBuilder {
	b.cred.ExpirationDate = t.UTC().Truncate(time.Second)
	return b
}

// Expired moves the expiration into the past without touching the stored status.
func (b *CredentialBuilder) Expired() *CredentialBuilder {
	b.cred.ExpirationDate = time.Now().UTC().Truncate(time.Second).Add(-24 * time.Hour)
	return b
}

func (b *CredentialBuilder) WithVerificationURL(baseURL string) *CredentialBuilder {
	b.cred.VerificationURL = models.VerificationURL(baseURL, b.cred.ID)
	return b
}

func (b *CredentialBuilder) Build() *models.Credential {
	return b.cred.Clone()
}

// NewTestCredential returns an active credential for the given subject.
func NewTestCredential(userID id.UserID, subjectType models.SubjectType) *models.Credential {
	return NewCredentialBuilder().WithSubject(userID, subjectType).Build()
}
