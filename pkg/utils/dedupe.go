package utils

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// EventDeduper answers "is this the first time we have seen this event id".
// Lifecycle services use it to make webhook side effects fire at most once
// even when the provider redelivers.
type EventDeduper interface {
	// MarkOnce records the key and reports whether it was previously unseen.
	MarkOnce(ctx context.Context, key string) (bool, error)
}

// RedisDeduper backs dedupe with SET NX EX so it holds across processes.
type RedisDeduper struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewRedisDeduper(rdb *redis.Client, ttl time.Duration) *RedisDeduper {
	return &RedisDeduper{rdb: rdb, ttl: ttl}
}

func (d *RedisDeduper) MarkOnce(ctx context.Context, key string) (bool, error) {
	return MarkEventOnce(ctx, d.rdb, "dedupe:"+key, d.ttl)
}

// MemoryDeduper is an in-process EventDeduper for tests and single-node use.
// It grows unboundedly; production setups use Redis with a TTL.
type MemoryDeduper struct {
	mu   sync.Mutex
	seen map[string]struct{}
}

func NewMemoryDeduper() *MemoryDeduper {
	return &MemoryDeduper{seen: make(map[string]struct{})}
}

func (d *MemoryDeduper) MarkOnce(ctx context.Context, key string) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.seen[key]; ok {
		return false, nil
	}
	d.seen[key] = struct{}{}
	return true, nil
}
