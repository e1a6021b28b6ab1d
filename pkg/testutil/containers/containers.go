//go:build integration

// Package containers starts the backing services integration suites run against:
// Postgres for the credential store and outbox, Redis for the stats cache and
// Redpanda for the outbox relay. Each is started once per test binary.
package containers

import (
	"sync"
	"testing"
)

type lazy[T any] struct {
	once sync.Once
	v    T
}

// get starts the container on first use. A failed start fails that test and leaves
// the zero value behind, so later suites fail fast on a nil container.
func (l *lazy[T]) get(t *testing.T, start func(*testing.T) T) T {
	t.Helper()
	l.once.Do(func() { l.v = start(t) })
	return l.v
}

type Manager struct {
	postgres lazy[*PostgresContainer]
	kafka    lazy[*KafkaContainer]
	redis    lazy[*RedisContainer]
}

var manager = &Manager{}

func GetManager() *Manager {
	return manager
}

func (m *Manager) GetPostgres(t *testing.T) *PostgresContainer {
	t.Helper()
	return m.postgres.get(t, NewPostgresContainer)
}

func (m *Manager) GetKafka(t *testing.T) *KafkaContainer {
	t.Helper()
	return m.kafka.get(t, NewKafkaContainer)
}

func (m *Manager) GetRedis(t *testing.T) *RedisContainer {
	t.Helper()
	return m.redis.get(t, NewRedisContainer)
}
