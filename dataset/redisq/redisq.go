// Package redisq provides a Redis-list dataset, typically used as a shared
// frontier so multiple engine processes can drain one crawl.
package redisq

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/redis/go-redis/v9"

	"github.com/spindleworks/spindle"
)

// Queue is a FIFO dataset over a Redis list with JSON-encoded items.
type Queue[T any] struct {
	client *redis.Client
	key    string
}

// New builds a Queue over the given list key.
func New[T any](client *redis.Client, key string) (*Queue[T], error) {
	if client == nil {
		return nil, spindle.Errorf(spindle.KindDataset, "redis queue requires a client")
	}
	if key == "" {
		return nil, spindle.Errorf(spindle.KindDataset, "redis queue requires a list key")
	}
	return &Queue[T]{client: client, key: key}, nil
}

// Push LPUSHes the JSON-encoded item.
func (q *Queue[T]) Push(ctx context.Context, item T) error {
	data, err := json.Marshal(item)
	if err != nil {
		return spindle.Errorf(spindle.KindDataset, "encode item: %w", err)
	}
	if err := q.client.LPush(ctx, q.key, data).Err(); err != nil {
		return spindle.Errorf(spindle.KindDataset, "lpush %s: %w", q.key, err)
	}
	return nil
}

// Pop RPOPs the next item. An empty list is not an error.
func (q *Queue[T]) Pop(ctx context.Context) (T, bool, error) {
	var zero T
	data, err := q.client.RPop(ctx, q.key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return zero, false, nil
		}
		return zero, false, spindle.Errorf(spindle.KindDataset, "rpop %s: %w", q.key, err)
	}
	var item T
	if err := json.Unmarshal(data, &item); err != nil {
		return zero, false, spindle.Errorf(spindle.KindDataset, "decode item: %w", err)
	}
	return item, true, nil
}

// Len returns the list length.
func (q *Queue[T]) Len(ctx context.Context) (int64, error) {
	n, err := q.client.LLen(ctx, q.key).Result()
	if err != nil {
		return 0, spindle.Errorf(spindle.KindDataset, "llen %s: %w", q.key, err)
	}
	return n, nil
}
