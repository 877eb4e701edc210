package queue

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNatsConfigDefaults(t *testing.T) {
	cfg := NatsConfig{}.withDefaults()
	assert.Equal(t, "nats://localhost:4222", cfg.URL)
	assert.Equal(t, "SKEIN_ANALYSIS", cfg.StreamName)
	assert.Equal(t, "skein.analysis.experience", cfg.Subject)
	assert.Equal(t, "skein-insight-engine", cfg.Durable)
	assert.Equal(t, 10*time.Second, cfg.Timeout)
	assert.Equal(t, 2*time.Second, cfg.FetchWait)
}

func TestNatsConfigDefaultsKeepExplicitValues(t *testing.T) {
	cfg := NatsConfig{
		URL:        "nats://queue.internal:4222",
		StreamName: "CUSTOM",
		FetchWait:  500 * time.Millisecond,
	}.withDefaults()
	assert.Equal(t, "nats://queue.internal:4222", cfg.URL)
	assert.Equal(t, "CUSTOM", cfg.StreamName)
	assert.Equal(t, 500*time.Millisecond, cfg.FetchWait)
	// Unset fields still get defaults.
	assert.Equal(t, "skein.analysis.experience", cfg.Subject)
	assert.Equal(t, "skein-insight-engine", cfg.Durable)
}

// TestNatsAnalysisQueueRoundTrip needs a reachable JetStream server; set
// SKEIN_TEST_NATS_URL to run it (e.g. against `nats-server -js`).
func TestNatsAnalysisQueueRoundTrip(t *testing.T) {
	url := os.Getenv("SKEIN_TEST_NATS_URL")
	if url == "" {
		t.Skip("SKEIN_TEST_NATS_URL not set")
	}

	q, err := NewNatsAnalysisQueue(NatsConfig{
		URL:        url,
		StreamName: "SKEIN_ANALYSIS_TEST",
		Subject:    "skein.test.analysis.experience",
		Durable:    "skein-test-consumer",
		FetchWait:  time.Second,
	})
	require.NoError(t, err)
	defer q.Close()

	ctx := context.Background()
	require.NoError(t, q.EnqueueBatch(ctx, []string{"exp-1", "exp-2", "exp-3"}))

	ids, err := q.Dequeue(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, []string{"exp-1", "exp-2"}, ids)

	ids, err = q.Dequeue(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, []string{"exp-3"}, ids)

	empty, err := q.IsEmpty(ctx)
	require.NoError(t, err)
	assert.True(t, empty)
}
