package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/jordanhubbard/skein/pkg/models"
)

const (
	redisTaskKey     = "skein:tasks"
	redisAnalysisKey = "skein:analysis"
)

// RedisTaskQueue is a TaskQueue backed by a Redis list. RPUSH/LPOP keep
// FIFO order, and LPOP is atomic so two consumers never receive the same
// sub-task.
type RedisTaskQueue struct {
	rdb *redis.Client
	key string
}

// NewRedisTaskQueue creates a task queue on the given Redis connection.
func NewRedisTaskQueue(rdb *redis.Client) *RedisTaskQueue {
	return &RedisTaskQueue{rdb: rdb, key: redisTaskKey}
}

// EnqueueMany appends the sub-tasks in order.
func (q *RedisTaskQueue) EnqueueMany(ctx context.Context, subtasks []models.Subtask) error {
	if len(subtasks) == 0 {
		return nil
	}
	values := make([]interface{}, 0, len(subtasks))
	for _, st := range subtasks {
		data, err := json.Marshal(st)
		if err != nil {
			return fmt.Errorf("failed to serialize subtask: %w", err)
		}
		values = append(values, data)
	}
	if err := q.rdb.RPush(ctx, q.key, values...).Err(); err != nil {
		return fmt.Errorf("failed to enqueue subtasks: %w", err)
	}
	return nil
}

// DequeueOne removes and returns the head, or ErrEmpty.
func (q *RedisTaskQueue) DequeueOne(ctx context.Context) (*models.Subtask, error) {
	data, err := q.rdb.LPop(ctx, q.key).Result()
	if errors.Is(err, redis.Nil) {
		return nil, ErrEmpty
	}
	if err != nil {
		return nil, fmt.Errorf("failed to dequeue subtask: %w", err)
	}
	var st models.Subtask
	if err := json.Unmarshal([]byte(data), &st); err != nil {
		return nil, fmt.Errorf("failed to deserialize subtask: %w", err)
	}
	return &st, nil
}

// Len returns the number of queued sub-tasks.
func (q *RedisTaskQueue) Len(ctx context.Context) (int, error) {
	n, err := q.rdb.LLen(ctx, q.key).Result()
	return int(n), err
}

// RedisAnalysisQueue is an AnalysisQueue backed by a Redis list. LPOP with a
// count removes the whole batch in one atomic operation.
type RedisAnalysisQueue struct {
	rdb *redis.Client
	key string
}

// NewRedisAnalysisQueue creates an analysis queue on the given Redis connection.
func NewRedisAnalysisQueue(rdb *redis.Client) *RedisAnalysisQueue {
	return &RedisAnalysisQueue{rdb: rdb, key: redisAnalysisKey}
}

// Enqueue appends one experience id.
func (q *RedisAnalysisQueue) Enqueue(ctx context.Context, id string) error {
	return q.rdb.RPush(ctx, q.key, id).Err()
}

// EnqueueBatch appends the ids in order.
func (q *RedisAnalysisQueue) EnqueueBatch(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	values := make([]interface{}, len(ids))
	for i, id := range ids {
		values[i] = id
	}
	return q.rdb.RPush(ctx, q.key, values...).Err()
}

// Dequeue removes and returns up to batchSize ids in FIFO order.
func (q *RedisAnalysisQueue) Dequeue(ctx context.Context, batchSize int) ([]string, error) {
	if batchSize <= 0 {
		return nil, nil
	}
	ids, err := q.rdb.LPopCount(ctx, q.key, batchSize).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to dequeue analysis batch: %w", err)
	}
	return ids, nil
}

// Size returns the number of queued ids.
func (q *RedisAnalysisQueue) Size(ctx context.Context) (int, error) {
	n, err := q.rdb.LLen(ctx, q.key).Result()
	return int(n), err
}

// IsEmpty reports whether the queue holds nothing.
func (q *RedisAnalysisQueue) IsEmpty(ctx context.Context) (bool, error) {
	n, err := q.Size(ctx)
	return n == 0, err
}

var (
	_ TaskQueue     = (*RedisTaskQueue)(nil)
	_ AnalysisQueue = (*RedisAnalysisQueue)(nil)
)
