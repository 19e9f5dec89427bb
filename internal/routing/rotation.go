package routing

import (
	"context"
	"sync"
	"time"

	"cloudcall-platform/pkg/utils"

	"github.com/redis/go-redis/v9"
)

// RedisRotationStore persists rotation pointers in Redis so the round-robin
// assignment stays fair across restarts and across processes.
type RedisRotationStore struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewRedisRotationStore(rdb *redis.Client) *RedisRotationStore {
	return &RedisRotationStore{rdb: rdb, ttl: 30 * 24 * time.Hour}
}

func (s *RedisRotationStore) Next(ctx context.Context, key string, size int) (int, error) {
	return utils.NextRotationIndex(ctx, s.rdb, "rotation:"+key, size, s.ttl)
}

// MemoryRotationStore is an in-process RotationStore for tests and
// single-node development setups.
type MemoryRotationStore struct {
	mu       sync.Mutex
	counters map[string]int
}

func NewMemoryRotationStore() *MemoryRotationStore {
	return &MemoryRotationStore{counters: make(map[string]int)}
}

func (s *MemoryRotationStore) Next(ctx context.Context, key string, size int) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	idx := s.counters[key] % size
	s.counters[key]++
	return idx, nil
}
