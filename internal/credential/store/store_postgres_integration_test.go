//go:build integration

package store_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"fedcred/internal/credential/models"
	"fedcred/internal/credential/store"
	"fedcred/pkg/platform/sentinel"
	"fedcred/pkg/testutil"
	"fedcred/pkg/testutil/containers"
)

type PostgresStoreSuite struct {
	suite.Suite
	postgres *containers.PostgresContainer
	store    *store.PostgresStore
	now      time.Time
}

func TestPostgresStoreSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(PostgresStoreSuite))
}

func (s *PostgresStoreSuite) SetupSuite() {
	s.postgres = containers.GetManager().GetPostgres(s.T())
	s.store = store.NewPostgres(s.postgres.DB)
}

func (s *PostgresStoreSuite) SetupTest() {
	s.Require().NoError(s.postgres.TruncateAll(context.Background()))
	s.now = time.Now().UTC().Truncate(time.Second)
}

func (s *PostgresStoreSuite) TestRoundTripWithHistory() {
	ctx := context.Background()
	cred := testutil.NewCredentialBuilder().WithVerificationURL("https://verify.example.org").Build()
	cred.Checksum = "abc123"
	cred.AppendHistory(models.HistoryEntry{Kind: models.HistoryIssued, At: cred.IssuedDate, Actor: "admin", ToStatus: models.StatusActive})
	s.Require().NoError(s.store.Create(ctx, cred))

	found, err := s.store.FindByID(ctx, cred.ID)
	s.Require().NoError(err)
	s.Equal(cred.Snapshot, found.Snapshot)
	s.True(cred.IssuedDate.Equal(found.IssuedDate))
	s.True(cred.ExpirationDate.Equal(found.ExpirationDate))
	s.Equal(cred.Checksum, found.Checksum)
	s.Require().Len(found.History, 1)
	s.Equal(models.HistoryIssued, found.History[0].Kind)
	s.Nil(found.LastVerified)

	s.ErrorIs(s.store.Create(ctx, cred), sentinel.ErrConflict)
}

func (s *PostgresStoreSuite) TestUpdateInsideTransactionWithLock() {
	ctx := context.Background()
	cred := testutil.NewCredentialBuilder().Build()
	s.Require().NoError(s.store.Create(ctx, cred))

	tx, err := s.postgres.DB.BeginTx(ctx, nil)
	s.Require().NoError(err)
	txStore := store.NewPostgresTx(tx)

	locked, err := txStore.FindByIDForUpdate(ctx, cred.ID)
	s.Require().NoError(err)
	verified := s.now
	locked.VerificationCount++
	locked.LastVerified = &verified
	s.Require().NoError(txStore.Update(ctx, locked))
	s.Require().NoError(tx.Commit())

	found, err := s.store.FindByID(ctx, cred.ID)
	s.Require().NoError(err)
	s.Equal(int64(1), found.VerificationCount)
	s.Require().NotNil(found.LastVerified)
	s.True(verified.Equal(*found.LastVerified))
}

func (s *PostgresStoreSuite) TestFindForUpdateRequiresTransaction() {
	_, err := s.store.FindByIDForUpdate(context.Background(), testutil.TestIDs.CredentialID1)
	s.Error(err)
}

func (s *PostgresStoreSuite) TestMissing() {
	ctx := context.Background()
	_, err := s.store.FindByID(ctx, testutil.TestIDs.CredentialID1)
	s.ErrorIs(err, sentinel.ErrNotFound)
	s.ErrorIs(s.store.Update(ctx, testutil.NewCredentialBuilder().Build()), sentinel.ErrNotFound)
}

func (s *PostgresStoreSuite) TestEffectiveStatusQueries() {
	ctx := context.Background()
	state := testutil.TestIDs.StateID2
	live := testutil.NewCredentialBuilder().WithState(state, "Kano").WithFederationID("K-1").
		IssuedAt(s.now.AddDate(0, -1, 0)).ExpiresAt(s.now.AddDate(0, 0, 10)).Build()
	lapsed := testutil.NewCredentialBuilder().WithState(state, "Kano").WithFederationID("K-2").
		IssuedAt(s.now.AddDate(-2, 0, 0)).ExpiresAt(s.now.AddDate(0, 0, -1)).Build()
	revoked := testutil.NewCredentialBuilder().WithState(state, "Kano").WithFederationID("K-3").WithStatus(models.StatusRevoked).
		IssuedAt(s.now.AddDate(0, -1, 0)).ExpiresAt(s.now.AddDate(1, 0, 0)).Build()
	for _, c := range []*models.Credential{live, lapsed, revoked} {
		s.Require().NoError(s.store.Create(ctx, c))
	}

	exists, err := s.store.HasLiveFederationID(ctx, models.SubjectPlayer, "K-1", "", s.now)
	s.Require().NoError(err)
	s.True(exists)
	exists, err = s.store.HasLiveFederationID(ctx, models.SubjectPlayer, "K-2", "", s.now)
	s.Require().NoError(err)
	s.False(exists)

	expired, err := s.store.ListByState(ctx, models.StateFilter{StateID: state, Status: models.StatusExpired, Now: s.now}, models.Page{})
	s.Require().NoError(err)
	s.Equal(1, expired.Total)
	s.Equal(lapsed.ID, expired.Items[0].ID)

	all, err := s.store.ListByState(ctx, models.StateFilter{StateID: state, Now: s.now}, models.Page{Limit: 2})
	s.Require().NoError(err)
	s.Equal(3, all.Total)
	s.Len(all.Items, 2)

	expiring, err := s.store.ListExpiring(ctx, models.ExpiringQuery{Now: s.now, Days: 30}, models.Page{})
	s.Require().NoError(err)
	s.Require().Len(expiring.Items, 1)
	s.Equal(live.ID, expiring.Items[0].ID)

	stats, err := s.store.Stats(ctx, s.now)
	s.Require().NoError(err)
	s.Equal(3, stats.Total)
	s.Equal(1, stats.ByStatus[models.StatusActive])
	s.Equal(1, stats.ByStatus[models.StatusExpired])
	s.Equal(1, stats.ByStatus[models.StatusRevoked])
	s.Equal(3, stats.BySubjectType[models.SubjectPlayer])

	lapsedIDs, err := s.store.ListLapsed(ctx, s.now, 10)
	s.Require().NoError(err)
	s.Equal([]models.CredentialID{lapsed.ID}, lapsedIDs)
}

func (s *PostgresStoreSuite) TestVerificationEvents() {
	ctx := context.Background()
	credID := string(testutil.TestIDs.CredentialID1)
	verifier := models.VerifierContext{UserID: testutil.TestIDs.UserID2, ClientIP: "10.0.0.1", Channel: models.ChannelBulk}
	first := models.NewVerificationEvent(credID, s.now, models.ReasonNone, verifier)
	second := models.NewVerificationEvent(credID, s.now.Add(time.Second), models.ReasonExpired, models.VerifierContext{})
	s.Require().NoError(s.store.AppendEvent(ctx, first))
	s.Require().NoError(s.store.AppendEvent(ctx, second))

	page, err := s.store.ListEvents(ctx, credID, models.Page{})
	s.Require().NoError(err)
	s.Equal(2, page.Total)
	s.Require().Len(page.Items, 2)
	s.Equal(second.ID, page.Items[0].ID)
	s.Equal(models.ReasonExpired, page.Items[0].Reason)
	s.True(page.Items[0].Verifier.UserID.IsNil())
	s.Equal(testutil.TestIDs.UserID2, page.Items[1].Verifier.UserID)
	s.Equal(models.ChannelBulk, page.Items[1].Verifier.Channel)
	s.True(page.Items[1].Valid)
}
