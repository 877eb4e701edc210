package store

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jordanhubbard/skein/pkg/models"
)

func sampleExperience() *models.Experience {
	return &models.Experience{
		Type: models.ExperiencePromptExecution,
		Context: models.ExperienceContext{
			ProjectID: "proj-1",
			PromptID:  "understand-v2",
			Model:     "gpt-4",
			Extra:     map[string]string{"region": "eu"},
		},
		Outcome: models.ExperienceOutcome{
			Status:     models.OutcomeSuccess,
			DurationMs: 420,
			Metrics:    map[string]float64{"tokens": 812},
		},
		Metadata: models.ExperienceMetadata{
			Source:        "orchestrator",
			SystemVersion: "1.2.0",
			Tags:          []string{"planning"},
		},
	}
}

func TestLogExperience_RoundTrip(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryExperienceStore()

	in := sampleExperience()
	id, err := s.LogExperience(ctx, in)
	require.NoError(t, err)
	require.NotEmpty(t, id)

	// The caller's copy is untouched.
	require.Empty(t, in.ID)

	got, err := s.GetExperienceByID(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, id, got.ID)
	assert.False(t, got.Timestamp.IsZero())

	// Everything except server-assigned id/timestamp round-trips.
	got.ID = ""
	got.Timestamp = time.Time{}
	assert.Equal(t, in, got)
}

func TestLogExperience_RejectsBadEnums(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryExperienceStore()

	bad := sampleExperience()
	bad.Type = "nonsense"
	_, err := s.LogExperience(ctx, bad)
	require.Error(t, err)
	var we *WriteError
	require.ErrorAs(t, err, &we)
}

func TestLogExperience_UniqueIDsUnderConcurrency(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryExperienceStore()

	const n = 300
	ids := make(chan string, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			id, err := s.LogExperience(ctx, sampleExperience())
			require.NoError(t, err)
			ids <- id
		}()
	}
	wg.Wait()
	close(ids)

	seen := make(map[string]bool)
	for id := range ids {
		require.False(t, seen[id], "id %s assigned twice", id)
		seen[id] = true
	}
	require.Len(t, seen, n)
}

func TestFindExperiences_Filters(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryExperienceStore()

	fail := sampleExperience()
	fail.Outcome.Status = models.OutcomeFailure
	fail.Outcome.Error = &models.ErrorDetail{Code: "E_TIMEOUT", Message: "llm timed out"}
	fail.Metadata.Tags = []string{"planning", "flaky"}

	slow := sampleExperience()
	slow.Outcome.DurationMs = 9000
	slow.Context.ProjectID = "proj-2"

	_, err := s.LogExperience(ctx, sampleExperience())
	require.NoError(t, err)
	failID, err := s.LogExperience(ctx, fail)
	require.NoError(t, err)
	_, err = s.LogExperience(ctx, slow)
	require.NoError(t, err)

	byCode, err := s.FindExperiences(ctx, ExperienceFilter{ErrorCode: "E_TIMEOUT"}, 0, 0)
	require.NoError(t, err)
	require.Len(t, byCode, 1)
	assert.Equal(t, failID, byCode[0].ID)

	byTag, err := s.FindExperiences(ctx, ExperienceFilter{Tags: []string{"flaky"}}, 0, 0)
	require.NoError(t, err)
	require.Len(t, byTag, 1)

	byDuration, err := s.FindExperiences(ctx, ExperienceFilter{MinDurationMs: 5000}, 0, 0)
	require.NoError(t, err)
	require.Len(t, byDuration, 1)
	assert.Equal(t, "proj-2", byDuration[0].Context.ProjectID)

	byStatus, err := s.CountExperiences(ctx, ExperienceFilter{Statuses: []models.OutcomeStatus{models.OutcomeSuccess}})
	require.NoError(t, err)
	assert.Equal(t, 2, byStatus)

	byIDs, err := s.FindExperiences(ctx, ExperienceFilter{IDs: []string{failID}}, 0, 0)
	require.NoError(t, err)
	require.Len(t, byIDs, 1)
}

func TestFindExperiences_LimitOffset(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryExperienceStore()
	for i := 0; i < 5; i++ {
		_, err := s.LogExperience(ctx, sampleExperience())
		require.NoError(t, err)
	}

	page, err := s.FindExperiences(ctx, ExperienceFilter{}, 2, 2)
	require.NoError(t, err)
	require.Len(t, page, 2)

	tail, err := s.FindExperiences(ctx, ExperienceFilter{}, 10, 4)
	require.NoError(t, err)
	require.Len(t, tail, 1)
}

func TestPruneOldExperiences_ExactAndIdempotent(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryExperienceStore()

	old := sampleExperience()
	old.Timestamp = time.Now().UTC().Add(-48 * time.Hour)
	oldID, err := s.LogExperience(ctx, old)
	require.NoError(t, err)

	atCutoff := sampleExperience()
	cutoff := time.Now().UTC().Add(-24 * time.Hour)
	atCutoff.Timestamp = cutoff
	atID, err := s.LogExperience(ctx, atCutoff)
	require.NoError(t, err)

	freshID, err := s.LogExperience(ctx, sampleExperience())
	require.NoError(t, err)

	removed, err := s.PruneOldExperiences(ctx, cutoff)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	_, err = s.GetExperienceByID(ctx, oldID)
	require.ErrorIs(t, err, ErrNotFound)

	// Strictly before: the record exactly at the cutoff survives.
	_, err = s.GetExperienceByID(ctx, atID)
	require.NoError(t, err)
	_, err = s.GetExperienceByID(ctx, freshID)
	require.NoError(t, err)

	removed, err = s.PruneOldExperiences(ctx, cutoff)
	require.NoError(t, err)
	assert.Equal(t, 0, removed)
}

func sampleInsight() *models.LearnedInsight {
	return &models.LearnedInsight{
		Type:        models.InsightPromptEffectiveness,
		Description: "understand-v2 on gpt-4 succeeds 92% of the time",
		Confidence:  0.4,
		Status:      models.InsightStatusNew,
		Pattern: models.PatternDetails{
			Key:       "understand-v2/gpt-4",
			Metrics:   map[string]float64{"success_rate": 0.92},
			Frequency: 12,
		},
	}
}

func TestInsightStore_PatternLookup(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryInsightStore()

	id, err := s.CreateInsight(ctx, sampleInsight())
	require.NoError(t, err)

	found, err := s.FindInsightByPattern(ctx, models.InsightPromptEffectiveness, "understand-v2/gpt-4")
	require.NoError(t, err)
	assert.Equal(t, id, found.ID)

	_, err = s.FindInsightByPattern(ctx, models.InsightErrorFrequency, "understand-v2/gpt-4")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestInsightStore_StatusTransitions(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryInsightStore()
	id, err := s.CreateInsight(ctx, sampleInsight())
	require.NoError(t, err)

	require.NoError(t, s.UpdateInsightStatus(ctx, id, models.InsightStatusValidated, "confidence crossed 0.5"))
	require.NoError(t, s.UpdateInsightStatus(ctx, id, models.InsightStatusActionSuggested, ""))

	// Backwards is rejected.
	err = s.UpdateInsightStatus(ctx, id, models.InsightStatusNew, "")
	require.Error(t, err)

	require.NoError(t, s.UpdateInsightStatus(ctx, id, models.InsightStatusRejected, "operator overrode"))

	// Terminal means terminal.
	err = s.UpdateInsightStatus(ctx, id, models.InsightStatusApplied, "")
	require.Error(t, err)

	got, err := s.GetInsightByID(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, models.InsightStatusRejected, got.Status)
	assert.Len(t, got.ValidationHistory, 3)
}

func TestIncrementInsightUsage_ConcurrentSplit(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryInsightStore()
	id, err := s.CreateInsight(ctx, sampleInsight())
	require.NoError(t, err)

	const successes, failures = 40, 25
	var wg sync.WaitGroup
	for i := 0; i < successes; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			require.NoError(t, s.IncrementInsightUsage(ctx, id, true))
		}()
	}
	for i := 0; i < failures; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			require.NoError(t, s.IncrementInsightUsage(ctx, id, false))
		}()
	}
	wg.Wait()

	got, err := s.GetInsightByID(ctx, id)
	require.NoError(t, err)
	ev := got.Evaluation
	require.NotNil(t, ev)
	assert.Equal(t, successes+failures, ev.TimesApplied)
	assert.Equal(t, successes, ev.SuccessfulApplications)
	assert.Equal(t, failures, ev.TimesAppliedFailed)
	assert.Equal(t, ev.TimesApplied, ev.SuccessfulApplications+ev.TimesAppliedFailed)
	assert.InDelta(t, float64(successes)/float64(successes+failures), ev.EffectivenessScore, 1e-9)
}

func TestMarkStaleInsights(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryInsightStore()

	fresh := sampleInsight()
	freshID, err := s.CreateInsight(ctx, fresh)
	require.NoError(t, err)

	old := sampleInsight()
	old.Pattern.Key = "old-key"
	old.DiscoveredAt = time.Now().UTC().Add(-60 * 24 * time.Hour)
	oldID, err := s.CreateInsight(ctx, old)
	require.NoError(t, err)

	rejected := sampleInsight()
	rejected.Pattern.Key = "rejected-key"
	rejected.DiscoveredAt = time.Now().UTC().Add(-60 * 24 * time.Hour)
	rejectedID, err := s.CreateInsight(ctx, rejected)
	require.NoError(t, err)
	require.NoError(t, s.UpdateInsightStatus(ctx, rejectedID, models.InsightStatusRejected, ""))

	moved, err := s.MarkStaleInsights(ctx, time.Now().UTC().Add(-30*24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 1, moved)

	gotOld, err := s.GetInsightByID(ctx, oldID)
	require.NoError(t, err)
	assert.Equal(t, models.InsightStatusStale, gotOld.Status)

	gotFresh, err := s.GetInsightByID(ctx, freshID)
	require.NoError(t, err)
	assert.Equal(t, models.InsightStatusNew, gotFresh.Status)
}
