package orchestrator

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jordanhubbard/skein/internal/analyzer"
	"github.com/jordanhubbard/skein/internal/llmparse"
	"github.com/jordanhubbard/skein/internal/provider"
	"github.com/jordanhubbard/skein/internal/queue"
	"github.com/jordanhubbard/skein/pkg/models"
)

type fakeAnalyzer struct {
	analysis *analyzer.RepoAnalysis
	err      error
	calls    int
}

func (f *fakeAnalyzer) Analyze(_ context.Context, repoURL string) (*analyzer.RepoAnalysis, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	if f.analysis != nil {
		return f.analysis, nil
	}
	return &analyzer.RepoAnalysis{RepoURL: repoURL}, nil
}

type fakeInsights struct {
	byStatus map[models.InsightStatus][]*models.LearnedInsight
}

func (f *fakeInsights) ListInsights(_ context.Context, status models.InsightStatus, _ int) ([]*models.LearnedInsight, error) {
	return f.byStatus[status], nil
}

func TestProcessUserRequestToTasks(t *testing.T) {
	llm := provider.NewMockProvider(
		`Sure! {"goal":"add logging"}`,
		`{"steps":["choose a logger","wire it into the request path"]}`,
		`[{"title":"add logger","persona":"backend"},{"title":"wire middleware","persona":"backend"}]`,
	)
	tasks := queue.NewMemoryTaskQueue()
	o := New(llm, tasks, nil, nil, DefaultConfig())

	subtasks, err := o.ProcessUserRequestToTasks(context.Background(), "please add logging", ProjectContext{ProjectID: "proj-1"})
	require.NoError(t, err)
	require.Len(t, subtasks, 2)
	assert.Equal(t, "add logger", subtasks[0].Title)
	assert.Equal(t, "wire middleware", subtasks[1].Title)
	assert.Equal(t, "backend", subtasks[0].Persona)
	assert.Equal(t, 3, llm.Calls())

	// The queue holds the same subtasks in the same order.
	first, err := tasks.DequeueOne(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "add logger", first.Title)
	second, err := tasks.DequeueOne(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "wire middleware", second.Title)
	_, err = tasks.DequeueOne(context.Background())
	assert.ErrorIs(t, err, queue.ErrEmpty)
}

func TestProcessUserRequestParseFailure(t *testing.T) {
	llm := provider.NewMockProvider(
		`I could not find anything actionable in that request.`,
	)
	tasks := queue.NewMemoryTaskQueue()
	o := New(llm, tasks, nil, nil, DefaultConfig())

	_, err := o.ProcessUserRequestToTasks(context.Background(), "do the thing", ProjectContext{})
	require.Error(t, err)

	var perr *llmparse.ParseError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, StageUnderstand, perr.Stage)

	// Nothing reaches the queue when an early stage fails.
	n, err := tasks.Len(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestProcessUserRequestProviderFailure(t *testing.T) {
	provErr := errors.New("upstream unavailable")
	llm := provider.NewMockProvider(
		`{"goal":"refactor"}`,
		`{"steps":["a"]}`,
	).FailAt(1, provErr)
	o := New(llm, queue.NewMemoryTaskQueue(), nil, nil, DefaultConfig())

	_, err := o.ProcessUserRequestToTasks(context.Background(), "refactor", ProjectContext{})
	require.Error(t, err)
	assert.ErrorIs(t, err, provErr)
	assert.Contains(t, err.Error(), StagePlan)
}

func TestUnderstandRequestFoldsRepositoryAnalysis(t *testing.T) {
	llm := provider.NewMockProvider(`{"goal":"map the codebase"}`)
	repos := &fakeAnalyzer{analysis: &analyzer.RepoAnalysis{
		RepoURL:   "https://example.com/repo.git",
		Files:     []string{"main.go"},
		MainFiles: []analyzer.FileAnalysis{{Path: "main.go"}},
	}}
	o := New(llm, queue.NewMemoryTaskQueue(), repos, nil, DefaultConfig())

	_, err := o.UnderstandRequest(context.Background(), "what does this repo do", ProjectContext{
		ProjectID: "proj-2",
		RepoURL:   "https://example.com/repo.git",
	})
	require.NoError(t, err)
	assert.Equal(t, 1, repos.calls)
	assert.Contains(t, llm.Prompts[0], "https://example.com/repo.git")
}

func TestUnderstandRequestAbortsOnAnalysisParseError(t *testing.T) {
	llm := provider.NewMockProvider(`{"goal":"should never be reached"}`)
	repos := &fakeAnalyzer{err: &llmparse.ParseError{
		Stage: "file_analysis",
		Raw:   "the model refused to emit JSON",
		Err:   errors.New("no JSON found"),
	}}
	tasks := queue.NewMemoryTaskQueue()
	o := New(llm, tasks, repos, nil, DefaultConfig())

	_, err := o.ProcessUserRequestToTasks(context.Background(), "map this repo", ProjectContext{
		RepoURL: "https://example.com/repo.git",
	})
	require.Error(t, err)

	var perr *llmparse.ParseError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, "file_analysis", perr.Stage)

	// The planning model was never consulted and nothing was enqueued.
	assert.Equal(t, 0, llm.Calls())
	n, err := tasks.Len(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestUnderstandRequestProceedsOnPartialAnalysis(t *testing.T) {
	llm := provider.NewMockProvider(`{"goal":"plan without repo context"}`)
	repos := &fakeAnalyzer{analysis: &analyzer.RepoAnalysis{
		RepoURL:         "https://example.com/repo.git",
		PartialAnalysis: true,
		Error:           "clone failed: connection refused",
	}}
	o := New(llm, queue.NewMemoryTaskQueue(), repos, nil, DefaultConfig())

	_, err := o.UnderstandRequest(context.Background(), "what does this repo do", ProjectContext{
		RepoURL: "https://example.com/repo.git",
	})
	require.NoError(t, err)
	assert.Contains(t, llm.Prompts[0], "partial_analysis")
}

func TestUnderstandRequestSkipsAnalyzerWithoutRepoURL(t *testing.T) {
	llm := provider.NewMockProvider(`{"goal":"anything"}`)
	repos := &fakeAnalyzer{}
	o := New(llm, queue.NewMemoryTaskQueue(), repos, nil, DefaultConfig())

	_, err := o.UnderstandRequest(context.Background(), "no repo here", ProjectContext{ProjectID: "proj-3"})
	require.NoError(t, err)
	assert.Equal(t, 0, repos.calls)
}

func TestUnderstandRequestFoldsInsightHints(t *testing.T) {
	llm := provider.NewMockProvider(`{"goal":"tune prompts"}`)
	insights := &fakeInsights{byStatus: map[models.InsightStatus][]*models.LearnedInsight{
		models.InsightStatusActionSuggested: {
			{Description: "lower temperature for breakdown prompts", Confidence: 0.9},
			{Description: "too uncertain to mention", Confidence: 0.3},
		},
	}}
	o := New(llm, queue.NewMemoryTaskQueue(), nil, insights, DefaultConfig())

	_, err := o.UnderstandRequest(context.Background(), "improve planning", ProjectContext{})
	require.NoError(t, err)
	assert.Contains(t, llm.Prompts[0], "lower temperature for breakdown prompts")
	assert.NotContains(t, llm.Prompts[0], "too uncertain to mention")
}

func TestSetConfigTakesEffectOnNextCall(t *testing.T) {
	llm := provider.NewMockProvider(`{"goal":"a"}`, `{"goal":"b"}`)
	o := New(llm, queue.NewMemoryTaskQueue(), nil, nil, DefaultConfig())

	_, err := o.UnderstandRequest(context.Background(), "first", ProjectContext{})
	require.NoError(t, err)

	cfg := DefaultConfig()
	cfg.Temperature = 0.9
	o.SetConfig(cfg)

	_, err = o.UnderstandRequest(context.Background(), "second", ProjectContext{})
	require.NoError(t, err)
	require.Len(t, llm.Options, 2)
	assert.Equal(t, 0.2, llm.Options[0].Temperature)
	assert.Equal(t, 0.9, llm.Options[1].Temperature)
}

func TestBreakdownAssignsSubtaskIDs(t *testing.T) {
	llm := provider.NewMockProvider(
		`[{"title":"first","persona":"backend"},{"id":"custom","title":"second","persona":"qa"}]`,
	)
	o := New(llm, queue.NewMemoryTaskQueue(), nil, nil, DefaultConfig())

	subtasks, err := o.BreakdownPlanIntoSubtasks(context.Background(), models.StrategicPlan{"steps": []string{"x"}}, models.Understanding{"goal": "y"})
	require.NoError(t, err)
	require.Len(t, subtasks, 2)
	assert.Equal(t, "subtask-1", subtasks[0].ID)
	assert.Equal(t, "custom", subtasks[1].ID)
}
