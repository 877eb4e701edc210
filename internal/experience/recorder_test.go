package experience

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jordanhubbard/skein/internal/queue"
	"github.com/jordanhubbard/skein/internal/store"
	"github.com/jordanhubbard/skein/pkg/models"
)

func sampleExperience() *models.Experience {
	return &models.Experience{
		Type: models.ExperienceSubtaskExecution,
		Context: models.ExperienceContext{
			ProjectID: "proj-1",
			SubtaskID: "subtask-1",
		},
		Outcome: models.ExperienceOutcome{
			Status:     models.OutcomeSuccess,
			DurationMs: 1200,
		},
		Metadata: models.ExperienceMetadata{Source: "executor"},
	}
}

func waitForCount(t *testing.T, st store.ExperienceStore, want int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		n, err := st.CountExperiences(context.Background(), store.ExperienceFilter{})
		require.NoError(t, err)
		if n >= want {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("store never reached %d experiences", want)
}

func TestRecorderPersistsAndNotifies(t *testing.T) {
	st := store.NewMemoryExperienceStore()
	aq := queue.NewMemoryAnalysisQueue()
	r := NewRecorder(st, aq, Config{SystemVersion: "1.2.0"})
	defer r.Close()

	require.True(t, r.Record(sampleExperience()))
	waitForCount(t, st, 1)

	exps, err := st.FindExperiences(context.Background(), store.ExperienceFilter{}, 10, 0)
	require.NoError(t, err)
	require.Len(t, exps, 1)
	assert.Equal(t, "1.2.0", exps[0].Metadata.SystemVersion)

	// The persisted id lands on the analysis queue.
	ids, err := aq.Dequeue(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, ids, 1)
	assert.Equal(t, exps[0].ID, ids[0])
}

func TestRecorderKeepsExistingSystemVersion(t *testing.T) {
	st := store.NewMemoryExperienceStore()
	r := NewRecorder(st, nil, Config{SystemVersion: "1.2.0"})
	defer r.Close()

	exp := sampleExperience()
	exp.Metadata.SystemVersion = "0.9.0"
	require.True(t, r.Record(exp))
	waitForCount(t, st, 1)

	exps, err := st.FindExperiences(context.Background(), store.ExperienceFilter{}, 10, 0)
	require.NoError(t, err)
	assert.Equal(t, "0.9.0", exps[0].Metadata.SystemVersion)
}

func TestRecorderCloseDrainsBuffer(t *testing.T) {
	st := store.NewMemoryExperienceStore()
	r := NewRecorder(st, nil, Config{BufferSize: 64})

	for i := 0; i < 20; i++ {
		require.True(t, r.Record(sampleExperience()))
	}
	r.Close()
	waitForCount(t, st, 20)
}

func TestRecorderRejectsAfterClose(t *testing.T) {
	st := store.NewMemoryExperienceStore()
	r := NewRecorder(st, nil, Config{})
	r.Close()

	assert.False(t, r.Record(sampleExperience()))
	assert.False(t, r.Record(nil))
}

func TestOutcomeForError(t *testing.T) {
	assert.Equal(t, models.OutcomeSuccess, OutcomeForError(nil))
	assert.Equal(t, models.OutcomeTimedOut, OutcomeForError(context.DeadlineExceeded))
	assert.Equal(t, models.OutcomeFailure, OutcomeForError(assert.AnError))
}
