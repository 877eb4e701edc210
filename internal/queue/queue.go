// Package queue provides the two shared work queues of the coordination
// loop: the FIFO sub-task queue feeding downstream executors, and the
// analysis queue of experience ids awaiting insight mining.
package queue

import (
	"context"
	"errors"

	"github.com/jordanhubbard/skein/pkg/models"
)

// ErrEmpty is returned by dequeue operations when the queue holds nothing.
var ErrEmpty = errors.New("queue is empty")

// TaskQueue holds sub-tasks awaiting execution in strict FIFO order. No
// priority, no deduplication: breakdown-stage order is authoritative.
type TaskQueue interface {
	// EnqueueMany appends the sub-tasks in the order given.
	EnqueueMany(ctx context.Context, subtasks []models.Subtask) error
	// DequeueOne removes and returns the head, or ErrEmpty.
	DequeueOne(ctx context.Context) (*models.Subtask, error)
	// Len returns the number of queued sub-tasks.
	Len(ctx context.Context) (int, error)
}

// AnalysisQueue is a durable FIFO work queue of experience ids. Consumers
// get at-least-once semantics: a crash between dequeue and processing loses
// the batch from the queue but not the underlying experiences.
type AnalysisQueue interface {
	Enqueue(ctx context.Context, id string) error
	EnqueueBatch(ctx context.Context, ids []string) error
	// Dequeue removes and returns up to batchSize ids in FIFO order,
	// fewer if the queue is shorter. An empty queue returns an empty
	// slice, not an error.
	Dequeue(ctx context.Context, batchSize int) ([]string, error)
	Size(ctx context.Context) (int, error)
	IsEmpty(ctx context.Context) (bool, error)
}
