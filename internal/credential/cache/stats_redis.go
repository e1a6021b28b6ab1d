// Package cache keeps aggregate credential stats in Redis between writes.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"fedcred/internal/credential/models"
	"fedcred/pkg/platform/circuit"
)

// Both keys share a hash tag so the conditional write stays on one cluster slot.
const (
	statsKey        = "{fedcred:stats}:data"
	versionKey      = "{fedcred:stats}:version"
	DefaultStatsTTL = 30 * time.Second
)

// setIfVersion writes the aggregate only while the version key still holds ARGV[1].
// A missing version key reads as 0.
const setIfVersion = `
if (redis.call('GET', KEYS[1]) or '0') ~= ARGV[1] then
	return 0
end
redis.call('SET', KEYS[2], ARGV[2], 'PX', ARGV[3])
return 1
`

// StatsCache persists the stats aggregate in Redis with TTL-based eviction.
// While Redis keeps failing the breaker opens and the cache behaves as always-miss.
type StatsCache struct {
	client  redis.Cmdable
	ttl     time.Duration
	breaker *circuit.Breaker
	logger  *slog.Logger
}

type Option func(*StatsCache)

func WithBreaker(b *circuit.Breaker) Option {
	return func(c *StatsCache) {
		if b != nil {
			c.breaker = b
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(c *StatsCache) {
		c.logger = logger
	}
}

// NewStatsCache constructs a Redis-backed stats cache. ttl <= 0 selects DefaultStatsTTL.
func NewStatsCache(client redis.Cmdable, ttl time.Duration, opts ...Option) *StatsCache {
	if ttl <= 0 {
		ttl = DefaultStatsTTL
	}
	c := &StatsCache{
		client:  client,
		ttl:     ttl,
		breaker: circuit.New("stats_cache"),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		c.logger = slog.New(slog.DiscardHandler)
	}
	return c
}

// Get loads the cached aggregate. A miss is (nil, false, nil), also while the breaker is open.
//
// Errors: wraps Redis or JSON decode errors.
func (c *StatsCache) Get(ctx context.Context) (*models.Stats, bool, error) {
	if !c.breaker.Allow() {
		return nil, false, nil
	}
	data, err := c.client.Get(ctx, statsKey).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			c.succeeded(ctx)
			return nil, false, nil
		}
		c.failed(ctx, err)
		return nil, false, fmt.Errorf("find stats cache: %w", err)
	}
	c.succeeded(ctx)

	var stats models.Stats
	if err := json.Unmarshal(data, &stats); err != nil {
		return nil, false, fmt.Errorf("decode stats cache: %w", err)
	}
	return &stats, true, nil
}

// Version returns the invalidation counter. Read it before computing the aggregate
// and pass it to Set. While the breaker is open it reports 0; Set is skipped then anyway.
func (c *StatsCache) Version(ctx context.Context) (int64, error) {
	if !c.breaker.Allow() {
		return 0, nil
	}
	v, err := c.client.Get(ctx, versionKey).Int64()
	if errors.Is(err, redis.Nil) {
		c.succeeded(ctx)
		return 0, nil
	}
	if err != nil {
		c.failed(ctx, err)
		return 0, fmt.Errorf("read stats cache version: %w", err)
	}
	c.succeeded(ctx)
	return v, nil
}

// Set stores the aggregate unless an invalidation happened since version was read.
// stored is false when the write was skipped.
func (c *StatsCache) Set(ctx context.Context, stats *models.Stats, version int64) (stored bool, err error) {
	if stats == nil {
		return false, fmt.Errorf("stats are required")
	}
	payload, err := json.Marshal(stats)
	if err != nil {
		return false, fmt.Errorf("encode stats cache: %w", err)
	}
	if !c.breaker.Allow() {
		return false, nil
	}
	n, err := c.client.Eval(ctx, setIfVersion, []string{versionKey, statsKey},
		strconv.FormatInt(version, 10), payload, c.ttl.Milliseconds()).Int()
	if err != nil {
		c.failed(ctx, err)
		return false, fmt.Errorf("save stats cache: %w", err)
	}
	c.succeeded(ctx)
	return n == 1, nil
}

// Invalidate bumps the version and drops the cached aggregate after a write that
// changes counts. It bypasses the breaker.
func (c *StatsCache) Invalidate(ctx context.Context) error {
	_, err := c.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Incr(ctx, versionKey)
		pipe.Del(ctx, statsKey)
		return nil
	})
	if err != nil {
		c.failed(ctx, err)
		return fmt.Errorf("invalidate stats cache: %w", err)
	}
	c.succeeded(ctx)
	return nil
}

func (c *StatsCache) failed(ctx context.Context, err error) {
	if change := c.breaker.RecordFailure(); change.Opened {
		c.logger.ErrorContext(ctx, "circuit breaker opened", "circuit", c.breaker.Name(), "error", err)
	}
}

func (c *StatsCache) succeeded(ctx context.Context) {
	if change := c.breaker.RecordSuccess(); change.Closed {
		c.logger.InfoContext(ctx, "circuit breaker closed", "circuit", c.breaker.Name())
	}
}
