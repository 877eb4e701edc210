package queue

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/jordanhubbard/skein/pkg/models"
)

func TestMemoryTaskQueue_FIFO(t *testing.T) {
	ctx := context.Background()
	q := NewMemoryTaskQueue()

	subtasks := []models.Subtask{
		{Title: "A", Persona: "backend"},
		{Title: "B", Persona: "backend"},
		{Title: "C", Persona: "qa"},
	}
	require.NoError(t, q.EnqueueMany(ctx, subtasks))

	for _, want := range []string{"A", "B", "C"} {
		got, err := q.DequeueOne(ctx)
		require.NoError(t, err)
		require.Equal(t, want, got.Title)
	}

	_, err := q.DequeueOne(ctx)
	require.ErrorIs(t, err, ErrEmpty)
}

func TestMemoryTaskQueue_ConcurrentConsumers(t *testing.T) {
	ctx := context.Background()
	q := NewMemoryTaskQueue()

	const n = 200
	subtasks := make([]models.Subtask, n)
	for i := range subtasks {
		subtasks[i] = models.Subtask{ID: fmt.Sprintf("st-%d", i), Title: "t"}
	}
	require.NoError(t, q.EnqueueMany(ctx, subtasks))

	var mu sync.Mutex
	seen := make(map[string]int)
	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				st, err := q.DequeueOne(ctx)
				if errors.Is(err, ErrEmpty) {
					return
				}
				require.NoError(t, err)
				mu.Lock()
				seen[st.ID]++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	require.Len(t, seen, n)
	for id, count := range seen {
		require.Equal(t, 1, count, "subtask %s dequeued more than once", id)
	}
}

func TestMemoryAnalysisQueue_BatchSemantics(t *testing.T) {
	ctx := context.Background()
	q := NewMemoryAnalysisQueue()

	empty, err := q.IsEmpty(ctx)
	require.NoError(t, err)
	require.True(t, empty)

	require.NoError(t, q.Enqueue(ctx, "e1"))
	require.NoError(t, q.EnqueueBatch(ctx, []string{"e2", "e3", "e4", "e5"}))

	size, err := q.Size(ctx)
	require.NoError(t, err)
	require.Equal(t, 5, size)

	batch, err := q.Dequeue(ctx, 3)
	require.NoError(t, err)
	require.Equal(t, []string{"e1", "e2", "e3"}, batch)

	// Fewer than batchSize when the queue is shorter.
	batch, err = q.Dequeue(ctx, 10)
	require.NoError(t, err)
	require.Equal(t, []string{"e4", "e5"}, batch)

	batch, err = q.Dequeue(ctx, 10)
	require.NoError(t, err)
	require.Empty(t, batch)
}

func TestMemoryAnalysisQueue_ConcurrentDequeueNoDuplicates(t *testing.T) {
	ctx := context.Background()
	q := NewMemoryAnalysisQueue()

	const n = 500
	ids := make([]string, n)
	for i := range ids {
		ids[i] = fmt.Sprintf("exp-%d", i)
	}
	require.NoError(t, q.EnqueueBatch(ctx, ids))

	var mu sync.Mutex
	seen := make(map[string]int)
	var wg sync.WaitGroup
	for w := 0; w < 6; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				batch, err := q.Dequeue(ctx, 7)
				require.NoError(t, err)
				if len(batch) == 0 {
					return
				}
				mu.Lock()
				for _, id := range batch {
					seen[id]++
				}
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	require.Len(t, seen, n)
	for id, count := range seen {
		require.Equal(t, 1, count, "id %s handed out more than once", id)
	}
}
