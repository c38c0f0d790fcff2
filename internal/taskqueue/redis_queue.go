package taskqueue

import (
	"context"
	"log"

	"github.com/redis/go-redis/v9"
)

// RedisQueue implements the Queue interface using Redis.
//
// It uses a single Redis list with key:
//
//	<prefix>tasks
//
// Values are gob-encoded Task structs. Like the in-memory queue, the list
// carries no scheduling: Task.NotBefore is transported but not enforced, so
// delayed retries become eligible as soon as they are pushed.
type RedisQueue struct {
	client *redis.Client
	key    string
}

// NewRedisQueue constructs a Redis-backed Queue.
// prefix is optional but recommended (e.g. "series:").
func NewRedisQueue(client *redis.Client, prefix string) *RedisQueue {
	if prefix == "" {
		prefix = "series:"
	}
	return &RedisQueue{
		client: client,
		key:    prefix + "tasks",
	}
}

// Ensure RedisQueue implements Queue.
var _ Queue = (*RedisQueue)(nil)

// Enqueue pushes a task onto the Redis list (LPUSH).
func (q *RedisQueue) Enqueue(ctx context.Context, t Task) error {
	data, err := EncodeTask(t)
	if err != nil {
		return err
	}
	return q.client.LPush(ctx, q.key, data).Err()
}

// Dequeue blocks on BRPOP until a task is available or ctx is cancelled.
func (q *RedisQueue) Dequeue(ctx context.Context) (*Task, error) {
	// BRPop returns [key, value]
	res, err := q.client.BRPop(ctx, 0, q.key).Result()
	if err != nil {
		// If ctx is cancelled, BRPop should return an error with ctx.Err().
		return nil, err
	}
	if len(res) != 2 {
		// Unexpected shape; log and try again.
		log.Printf("RedisQueue: BRPop returned unexpected result: %#v", res)
		return nil, nil
	}

	data := []byte(res[1])
	return DecodeTask(data)
}

// Len returns the approximate number of tasks queued (LLEN).
// Advisory only; a failed read counts as empty.
func (q *RedisQueue) Len() int {
	n, err := q.client.LLen(context.Background(), q.key).Result()
	if err != nil {
		log.Printf("RedisQueue: Len failed: %v", err)
		return 0
	}
	return int(n)
}
