package sync

import (
	"hash/fnv"
	"slices"
	"sync"
)

// DefaultShards is the shard count used by NewShardedMutex.
const DefaultShards = 32

// ShardedMutex spreads per-key locking across a fixed set of mutexes.
// Two keys may share a shard; the same key always maps to the same shard.
type ShardedMutex struct {
	shards []sync.Mutex
}

func NewShardedMutex() *ShardedMutex {
	return NewShardedMutexN(DefaultShards)
}

// NewShardedMutexN builds a mutex with n shards (minimum 1).
func NewShardedMutexN(n int) *ShardedMutex {
	if n < 1 {
		n = 1
	}
	return &ShardedMutex{shards: make([]sync.Mutex, n)}
}

func (m *ShardedMutex) Lock(key string) {
	m.shards[m.shardFor(key)].Lock()
}

// TryLock acquires the key's shard without blocking.
func (m *ShardedMutex) TryLock(key string) bool {
	return m.shards[m.shardFor(key)].TryLock()
}

func (m *ShardedMutex) Unlock(key string) {
	m.shards[m.shardFor(key)].Unlock()
}

// LockAll acquires the shards of every key in ascending shard order, each shard once,
// so two callers locking overlapping key sets cannot deadlock.
func (m *ShardedMutex) LockAll(keys ...string) {
	for _, shard := range m.shardsFor(keys) {
		m.shards[shard].Lock()
	}
}

func (m *ShardedMutex) UnlockAll(keys ...string) {
	shards := m.shardsFor(keys)
	for i := len(shards) - 1; i >= 0; i-- {
		m.shards[shards[i]].Unlock()
	}
}

func (m *ShardedMutex) shardsFor(keys []string) []int {
	shards := make([]int, 0, len(keys))
	for _, key := range keys {
		shards = append(shards, m.shardFor(key))
	}
	slices.Sort(shards)
	return slices.Compact(shards)
}

func (m *ShardedMutex) shardFor(key string) int {
	if key == "" || len(m.shards) == 1 {
		return 0
	}
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return int(h.Sum32() % uint32(len(m.shards)))
}
