package calls

import (
	"context"
	"encoding/json"

	"github.com/redis/go-redis/v9"
)

// RedisOrphanQueue persists orphan records in a Redis list so they survive a
// process crash between gateway accept and the reconciliation pass.
type RedisOrphanQueue struct {
	rdb *redis.Client
	key string
}

func NewRedisOrphanQueue(rdb *redis.Client) *RedisOrphanQueue {
	return &RedisOrphanQueue{rdb: rdb, key: "calls:orphans"}
}

func (q *RedisOrphanQueue) Enqueue(ctx context.Context, o Orphan) error {
	data, err := json.Marshal(o)
	if err != nil {
		return err
	}
	return q.rdb.RPush(ctx, q.key, data).Err()
}

func (q *RedisOrphanQueue) DequeueBatch(ctx context.Context, n int) ([]Orphan, error) {
	if n <= 0 {
		return nil, nil
	}
	vals, err := q.rdb.LPopCount(ctx, q.key, n).Result()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, err
	}
	out := make([]Orphan, 0, len(vals))
	for _, v := range vals {
		var o Orphan
		if err := json.Unmarshal([]byte(v), &o); err != nil {
			// A corrupt entry cannot be reprocessed; skip it rather than
			// wedging the whole queue.
			continue
		}
		out = append(out, o)
	}
	return out, nil
}
