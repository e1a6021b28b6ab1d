package cache

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fedcred/internal/credential/models"
	"fedcred/pkg/platform/circuit"
)

// unreachable points at a closed port so every command fails fast.
func unreachable(t *testing.T) *redis.Client {
	t.Helper()
	client := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 100 * time.Millisecond,
		MaxRetries:  -1,
	})
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func TestStatsCache_BreakerOpensOnRedisFailures(t *testing.T) {
	ctx := context.Background()
	breaker := circuit.New("stats_cache", circuit.WithFailureThreshold(2), circuit.WithCooldown(time.Hour))
	c := NewStatsCache(unreachable(t), 0, WithBreaker(breaker))

	_, _, err := c.Get(ctx)
	require.Error(t, err)
	_, err = c.Set(ctx, models.NewStats(time.Now()), 0)
	require.Error(t, err)
	assert.Equal(t, circuit.StateOpen, breaker.State())

	got, ok, err := c.Get(ctx)
	require.NoError(t, err, "open breaker reads as a miss")
	assert.False(t, ok)
	assert.Nil(t, got)
	stored, err := c.Set(ctx, models.NewStats(time.Now()), 0)
	assert.NoError(t, err, "open breaker skips writes")
	assert.False(t, stored)
	version, err := c.Version(ctx)
	assert.NoError(t, err)
	assert.Zero(t, version)

	assert.Error(t, c.Invalidate(ctx), "invalidation still reaches redis")
}

func TestStatsCache_SetRequiresStats(t *testing.T) {
	c := NewStatsCache(unreachable(t), time.Minute)
	_, err := c.Set(context.Background(), nil, 0)
	assert.Error(t, err)
	assert.Equal(t, time.Minute, c.ttl)
	assert.Equal(t, DefaultStatsTTL, NewStatsCache(unreachable(t), -1).ttl)
}
