package queue

import (
	"context"
	"sync"

	"github.com/jordanhubbard/skein/pkg/models"
)

// MemoryTaskQueue is an in-process TaskQueue. Safe for concurrent use.
type MemoryTaskQueue struct {
	mu    sync.Mutex
	items []models.Subtask
}

// NewMemoryTaskQueue creates an empty in-memory task queue.
func NewMemoryTaskQueue() *MemoryTaskQueue {
	return &MemoryTaskQueue{}
}

// EnqueueMany appends the sub-tasks in order.
func (q *MemoryTaskQueue) EnqueueMany(_ context.Context, subtasks []models.Subtask) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.items = append(q.items, subtasks...)
	return nil
}

// DequeueOne removes and returns the head, or ErrEmpty.
func (q *MemoryTaskQueue) DequeueOne(_ context.Context) (*models.Subtask, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		return nil, ErrEmpty
	}
	head := q.items[0]
	q.items = q.items[1:]
	return &head, nil
}

// Len returns the number of queued sub-tasks.
func (q *MemoryTaskQueue) Len(_ context.Context) (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items), nil
}

// MemoryAnalysisQueue is an in-process AnalysisQueue. Safe for concurrent
// use, but not durable across restarts; production deployments use the
// Redis or NATS variants.
type MemoryAnalysisQueue struct {
	mu  sync.Mutex
	ids []string
}

// NewMemoryAnalysisQueue creates an empty in-memory analysis queue.
func NewMemoryAnalysisQueue() *MemoryAnalysisQueue {
	return &MemoryAnalysisQueue{}
}

// Enqueue appends one experience id.
func (q *MemoryAnalysisQueue) Enqueue(_ context.Context, id string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.ids = append(q.ids, id)
	return nil
}

// EnqueueBatch appends the ids in order.
func (q *MemoryAnalysisQueue) EnqueueBatch(_ context.Context, ids []string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.ids = append(q.ids, ids...)
	return nil
}

// Dequeue removes and returns up to batchSize ids in FIFO order.
func (q *MemoryAnalysisQueue) Dequeue(_ context.Context, batchSize int) ([]string, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if batchSize <= 0 || len(q.ids) == 0 {
		return nil, nil
	}
	n := batchSize
	if n > len(q.ids) {
		n = len(q.ids)
	}
	batch := make([]string, n)
	copy(batch, q.ids[:n])
	q.ids = q.ids[n:]
	return batch, nil
}

// Size returns the number of queued ids.
func (q *MemoryAnalysisQueue) Size(_ context.Context) (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.ids), nil
}

// IsEmpty reports whether the queue holds nothing.
func (q *MemoryAnalysisQueue) IsEmpty(ctx context.Context) (bool, error) {
	n, err := q.Size(ctx)
	return n == 0, err
}

var (
	_ TaskQueue     = (*MemoryTaskQueue)(nil)
	_ AnalysisQueue = (*MemoryAnalysisQueue)(nil)
)
