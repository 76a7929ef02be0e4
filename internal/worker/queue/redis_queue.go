// Package queue is the redis-backed batch queue shared by the API (LPUSH on
// batch creation) and the worker (blocking BRPOP).
package queue

import (
	"context"

	"github.com/redis/go-redis/v9"
)

// DefaultName is the redis list both sides use unless overridden.
const DefaultName = "certforge:batches"

type RedisQueue struct {
	rdb       *redis.Client
	queueName string
}

func NewRedisQueue(rdb *redis.Client, queueName string) *RedisQueue {
	if queueName == "" {
		queueName = DefaultName
	}
	return &RedisQueue{rdb: rdb, queueName: queueName}
}

// Pop blocks until a batch ID is available (BRPOP).
func (q *RedisQueue) Pop(ctx context.Context) (string, error) {
	res, err := q.rdb.BRPop(ctx, 0, q.queueName).Result()
	if err != nil {
		return "", err
	}
	if len(res) < 2 {
		return "", nil
	}
	return res[1], nil
}
