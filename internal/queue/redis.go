package queue

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// DefaultKeyPrefix namespaces queue lists in Redis.
const DefaultKeyPrefix = "elric:queue:"

// RedisQueue appends payloads to a Redis list. Workers pop from the head.
type RedisQueue struct {
	rdb redis.Cmdable
	key string
}

// NewRedisQueue creates a queue stored under the list key
func NewRedisQueue(rdb redis.Cmdable, key string) *RedisQueue {
	return &RedisQueue{rdb: rdb, key: key}
}

// Key returns the Redis list key
func (q *RedisQueue) Key() string {
	return q.key
}

func (q *RedisQueue) Enqueue(ctx context.Context, payload []byte) error {
	if err := q.rdb.RPush(ctx, q.key, payload).Err(); err != nil {
		return fmt.Errorf("failed to push to %s: %w", q.key, err)
	}
	return nil
}

// Len returns the number of payloads waiting in the list
func (q *RedisQueue) Len(ctx context.Context) (int64, error) {
	n, err := q.rdb.LLen(ctx, q.key).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to get length of %s: %w", q.key, err)
	}
	return n, nil
}

// RedisFactory builds a queue per routing key under prefix
func RedisFactory(rdb redis.Cmdable, prefix string) Factory {
	return func(key string) (Queue, error) {
		return NewRedisQueue(rdb, prefix+key), nil
	}
}

// RedisOptions configures NewRedisClient
type RedisOptions struct {
	Addr     string
	Password string
	DB       int
}

// NewRedisClient connects to Redis and checks the connection
func NewRedisClient(ctx context.Context, opts RedisOptions) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", opts.Addr, err)
	}
	return rdb, nil
}
