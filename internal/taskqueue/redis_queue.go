package taskqueue

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisQueue is a Queue backed by Redis. Immediately eligible tasks live in
// a list consumed with BRPOP; delayed tasks wait in a sorted set scored by
// their NotBefore time and are promoted to the list when due.
//
//	<prefix>tasks         => LIST of encoded tasks, ready to run
//	<prefix>tasks:delayed => ZSET of encoded tasks, score = NotBefore (ns)
type RedisQueue struct {
	client       *redis.Client
	keyReady     string
	keyDelayed   string
	pollInterval time.Duration
}

// NewRedisQueue constructs a Redis-backed Queue. prefix is optional but
// recommended (e.g. "genflow:").
func NewRedisQueue(client *redis.Client, prefix string) *RedisQueue {
	if prefix == "" {
		prefix = "genflow:"
	}
	return &RedisQueue{
		client:       client,
		keyReady:     prefix + "tasks",
		keyDelayed:   prefix + "tasks:delayed",
		pollInterval: 100 * time.Millisecond,
	}
}

var _ Queue = (*RedisQueue)(nil)

func (q *RedisQueue) Enqueue(ctx context.Context, t Task) error {
	if t.EnqueuedAt.IsZero() {
		t.EnqueuedAt = time.Now()
	}

	data, err := EncodeTask(t)
	if err != nil {
		return err
	}

	if !t.NotBefore.IsZero() && t.NotBefore.After(time.Now()) {
		member := redis.Z{Score: float64(t.NotBefore.UnixNano()), Member: data}
		return q.client.ZAdd(ctx, q.keyDelayed, member).Err()
	}
	return q.client.LPush(ctx, q.keyReady, data).Err()
}

func (q *RedisQueue) Dequeue(ctx context.Context) (*Task, error) {
	for {
		if err := q.promoteDue(ctx); err != nil {
			return nil, err
		}

		res, err := q.client.BRPop(ctx, q.pollInterval, q.keyReady).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				// Timed out; loop to promote newly due delayed tasks.
				select {
				case <-ctx.Done():
					return nil, ctx.Err()
				default:
					continue
				}
			}
			return nil, err
		}
		if len(res) != 2 {
			continue
		}
		return DecodeTask([]byte(res[1]))
	}
}

// promoteDue moves delayed tasks whose time has come onto the ready list.
func (q *RedisQueue) promoteDue(ctx context.Context) error {
	now := strconv.FormatInt(time.Now().UnixNano(), 10)
	due, err := q.client.ZRangeByScore(ctx, q.keyDelayed, &redis.ZRangeBy{
		Min: "-inf",
		Max: now,
	}).Result()
	if err != nil {
		return err
	}

	for _, member := range due {
		// ZRem before LPush so two pollers cannot both promote the same task.
		removed, err := q.client.ZRem(ctx, q.keyDelayed, member).Result()
		if err != nil {
			return err
		}
		if removed == 0 {
			continue
		}
		if err := q.client.LPush(ctx, q.keyReady, member).Err(); err != nil {
			return err
		}
	}
	return nil
}

func (q *RedisQueue) Len() int {
	ctx := context.Background()
	ready, err := q.client.LLen(ctx, q.keyReady).Result()
	if err != nil {
		return 0
	}
	delayed, err := q.client.ZCard(ctx, q.keyDelayed).Result()
	if err != nil {
		return int(ready)
	}
	return int(ready + delayed)
}
