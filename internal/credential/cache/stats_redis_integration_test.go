//go:build integration

package cache_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"fedcred/internal/credential/cache"
	"fedcred/internal/credential/models"
	"fedcred/pkg/testutil/containers"
)

type StatsCacheSuite struct {
	suite.Suite
	redis *containers.RedisContainer
	cache *cache.StatsCache
}

func TestStatsCacheSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(StatsCacheSuite))
}

func (s *StatsCacheSuite) SetupSuite() {
	s.redis = containers.GetManager().GetRedis(s.T())
	s.cache = cache.NewStatsCache(s.redis.Client, time.Minute)
}

func (s *StatsCacheSuite) SetupTest() {
	s.Require().NoError(s.redis.FlushAll(context.Background()))
}

func (s *StatsCacheSuite) TestMissThenHit() {
	ctx := context.Background()

	got, ok, err := s.cache.Get(ctx)
	s.Require().NoError(err)
	s.False(ok)
	s.Nil(got)

	stats := models.NewStats(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	stats.Total = 3
	stats.ByStatus[models.StatusActive] = 2
	stats.ByStatus[models.StatusExpired] = 1
	stats.BySubjectType[models.SubjectPlayer] = 3
	stored, err := s.cache.Set(ctx, stats, 0)
	s.Require().NoError(err)
	s.Require().True(stored)

	got, ok, err = s.cache.Get(ctx)
	s.Require().NoError(err)
	s.Require().True(ok)
	s.Equal(3, got.Total)
	s.Equal(2, got.ByStatus[models.StatusActive])
	s.Equal(3, got.BySubjectType[models.SubjectPlayer])
	s.True(stats.GeneratedAt.Equal(got.GeneratedAt))
}

func (s *StatsCacheSuite) TestInvalidate() {
	ctx := context.Background()
	_, err := s.cache.Set(ctx, models.NewStats(time.Now()), 0)
	s.Require().NoError(err)
	s.Require().NoError(s.cache.Invalidate(ctx))

	_, ok, err := s.cache.Get(ctx)
	s.Require().NoError(err)
	s.False(ok)

	version, err := s.cache.Version(ctx)
	s.Require().NoError(err)
	s.Equal(int64(1), version)

	// deleting an absent key is not an error
	s.NoError(s.cache.Invalidate(ctx))
}

func (s *StatsCacheSuite) TestEntriesExpire() {
	ctx := context.Background()
	short := cache.NewStatsCache(s.redis.Client, 50*time.Millisecond)
	_, err := short.Set(ctx, models.NewStats(time.Now()), 0)
	s.Require().NoError(err)

	s.Eventually(func() bool {
		_, ok, err := short.Get(ctx)
		return err == nil && !ok
	}, 2*time.Second, 20*time.Millisecond)
}

func (s *StatsCacheSuite) TestSetAfterInvalidationIsDropped() {
	ctx := context.Background()
	version, err := s.cache.Version(ctx)
	s.Require().NoError(err)

	// a write lands while the aggregate is being computed
	s.Require().NoError(s.cache.Invalidate(ctx))

	stored, err := s.cache.Set(ctx, models.NewStats(time.Now()), version)
	s.Require().NoError(err)
	s.False(stored)
	_, ok, err := s.cache.Get(ctx)
	s.Require().NoError(err)
	s.False(ok)

	current, err := s.cache.Version(ctx)
	s.Require().NoError(err)
	stored, err = s.cache.Set(ctx, models.NewStats(time.Now()), current)
	s.Require().NoError(err)
	s.True(stored)
}
