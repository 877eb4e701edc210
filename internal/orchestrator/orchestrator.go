// Package orchestrator turns a free-text user request into an ordered set
// of executable sub-tasks through three sequential LLM planning stages:
// understanding, strategic plan, sub-task breakdown.
package orchestrator

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/jordanhubbard/skein/internal/analyzer"
	"github.com/jordanhubbard/skein/internal/llmparse"
	"github.com/jordanhubbard/skein/internal/metrics"
	"github.com/jordanhubbard/skein/internal/prompts"
	"github.com/jordanhubbard/skein/internal/provider"
	"github.com/jordanhubbard/skein/internal/queue"
	"github.com/jordanhubbard/skein/pkg/models"
)

// Stage names used in parse errors and stage timing.
const (
	StageUnderstand = "understanding"
	StagePlan       = "strategic_plan"
	StageBreakdown  = "subtask_breakdown"
)

// RepoAnalyzer abstracts the repository analyzer so tests can substitute it.
type RepoAnalyzer interface {
	Analyze(ctx context.Context, repoURL string) (*analyzer.RepoAnalysis, error)
}

// InsightReader is the feedback edge: the orchestrator reads suggested and
// applied insights to enrich the understanding-stage context. The decision
// policy for acting on them lives elsewhere; this is only the read path.
type InsightReader interface {
	ListInsights(ctx context.Context, status models.InsightStatus, limit int) ([]*models.LearnedInsight, error)
}

// ProjectContext carries what the caller knows about the project the
// request concerns. A non-empty RepoURL asks for repository analysis before
// the understanding stage.
type ProjectContext struct {
	ProjectID   string
	SessionID   string
	Description string
	RepoURL     string
}

// Config tunes the orchestrator.
type Config struct {
	StageTimeout    time.Duration // Per-stage cap on LLM latency (0 = none)
	Temperature     float64
	MaxOutputTokens int
	// MinInsightConfidence filters which insights get folded into the
	// planning context.
	MinInsightConfidence float64
}

// DefaultConfig returns the default orchestrator tuning.
func DefaultConfig() Config {
	return Config{
		StageTimeout:         120 * time.Second,
		Temperature:          0.2,
		MaxOutputTokens:      4096,
		MinInsightConfidence: 0.75,
	}
}

// Orchestrator runs the planning pipeline. Construct one per dependency
// set; instances are safe for concurrent use.
type Orchestrator struct {
	llm      provider.Generator
	tasks    queue.TaskQueue
	repos    RepoAnalyzer  // optional
	insights InsightReader // optional
	metrics  *metrics.Metrics

	mu  sync.RWMutex
	cfg Config
}

// New creates an orchestrator. repos and insights may be nil; the
// corresponding enrichments are then skipped.
func New(llm provider.Generator, tasks queue.TaskQueue, repos RepoAnalyzer, insights InsightReader, cfg Config) *Orchestrator {
	return &Orchestrator{
		llm:      llm,
		tasks:    tasks,
		repos:    repos,
		insights: insights,
		metrics:  metrics.NewMetrics(),
		cfg:      cfg,
	}
}

// SetConfig swaps the tuning for subsequent requests. In-flight requests
// finish under the config they started with.
func (o *Orchestrator) SetConfig(cfg Config) {
	o.mu.Lock()
	o.cfg = cfg
	o.mu.Unlock()
}

func (o *Orchestrator) config() Config {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.cfg
}

// UnderstandRequest runs the first stage: it builds the planning context
// (folding in repository analysis when the project has a repository, and
// high-confidence insights when an insight reader is wired), prompts the
// model, and parses the response.
func (o *Orchestrator) UnderstandRequest(ctx context.Context, userInput string, pc ProjectContext) (models.Understanding, error) {
	promptCtx, err := o.buildContext(ctx, pc)
	if err != nil {
		return nil, err
	}

	system, user := prompts.UnderstandRequest(userInput, promptCtx)
	raw, err := o.runStage(ctx, StageUnderstand, system, user)
	if err != nil {
		return nil, err
	}

	var understanding models.Understanding
	if err := o.decode(StageUnderstand, raw, &understanding); err != nil {
		return nil, err
	}
	return understanding, nil
}

// DevelopStrategicPlan runs the second stage on the parsed understanding.
func (o *Orchestrator) DevelopStrategicPlan(ctx context.Context, understanding models.Understanding) (models.StrategicPlan, error) {
	system, user := prompts.StrategicPlan(understanding)
	raw, err := o.runStage(ctx, StagePlan, system, user)
	if err != nil {
		return nil, err
	}

	var plan models.StrategicPlan
	if err := o.decode(StagePlan, raw, &plan); err != nil {
		return nil, err
	}
	return plan, nil
}

// BreakdownPlanIntoSubtasks runs the third stage and returns the ordered
// sub-task list, each annotated with an execution persona.
func (o *Orchestrator) BreakdownPlanIntoSubtasks(ctx context.Context, plan models.StrategicPlan, understanding models.Understanding) ([]models.Subtask, error) {
	system, user := prompts.BreakdownPlan(plan, understanding)
	raw, err := o.runStage(ctx, StageBreakdown, system, user)
	if err != nil {
		return nil, err
	}

	var subtasks []models.Subtask
	if err := o.decode(StageBreakdown, raw, &subtasks); err != nil {
		return nil, err
	}
	for i := range subtasks {
		if subtasks[i].ID == "" {
			subtasks[i].ID = fmt.Sprintf("subtask-%d", i+1)
		}
	}
	return subtasks, nil
}

// ProcessUserRequestToTasks composes the three stages, enqueues the
// resulting sub-tasks in order, and returns the same sequence.
func (o *Orchestrator) ProcessUserRequestToTasks(ctx context.Context, userInput string, pc ProjectContext) ([]models.Subtask, error) {
	understanding, err := o.UnderstandRequest(ctx, userInput, pc)
	if err != nil {
		return nil, err
	}

	plan, err := o.DevelopStrategicPlan(ctx, understanding)
	if err != nil {
		return nil, err
	}

	subtasks, err := o.BreakdownPlanIntoSubtasks(ctx, plan, understanding)
	if err != nil {
		return nil, err
	}

	if err := o.tasks.EnqueueMany(ctx, subtasks); err != nil {
		return nil, fmt.Errorf("failed to enqueue subtasks: %w", err)
	}
	o.metrics.SubtasksEnqueued.Add(float64(len(subtasks)))

	log.Printf("[Orchestrator] request produced %d subtasks", len(subtasks))
	return subtasks, nil
}

// buildContext assembles the understanding-stage context map. Repository
// access trouble comes back from the analyzer as a non-error partial
// result and planning proceeds; an actual error from Analyze is a raised
// parse failure and aborts the request.
func (o *Orchestrator) buildContext(ctx context.Context, pc ProjectContext) (map[string]any, error) {
	promptCtx := make(map[string]any)
	if pc.ProjectID != "" {
		promptCtx["project_id"] = pc.ProjectID
	}
	if pc.Description != "" {
		promptCtx["description"] = pc.Description
	}

	if pc.RepoURL != "" && o.repos != nil {
		analysis, err := o.repos.Analyze(ctx, pc.RepoURL)
		if err != nil {
			return nil, fmt.Errorf("repository analysis of %s: %w", pc.RepoURL, err)
		}
		promptCtx["repository"] = analysis
		if analysis.PartialAnalysis {
			log.Printf("[Orchestrator] proceeding with partial analysis of %s: %s", pc.RepoURL, analysis.Error)
		}
	}

	if o.insights != nil {
		if hints := o.collectInsightHints(ctx); len(hints) > 0 {
			promptCtx["learned_hints"] = hints
		}
	}
	return promptCtx, nil
}

// collectInsightHints pulls suggested and applied insight descriptions
// above the confidence floor. Failures here never block planning.
func (o *Orchestrator) collectInsightHints(ctx context.Context) []string {
	var hints []string
	for _, status := range []models.InsightStatus{models.InsightStatusActionSuggested, models.InsightStatusApplied} {
		insights, err := o.insights.ListInsights(ctx, status, 10)
		if err != nil {
			log.Printf("[Orchestrator] insight lookup failed: %v", err)
			return nil
		}
		for _, insight := range insights {
			if insight.Confidence >= o.config().MinInsightConfidence {
				hints = append(hints, insight.Description)
			}
		}
	}
	return hints
}

// runStage runs one model call under the per-stage timeout, recording
// stage duration and failure counts.
func (o *Orchestrator) runStage(ctx context.Context, stage, system, user string) (string, error) {
	start := time.Now()
	raw, err := o.generate(ctx, system, user)
	o.metrics.StageDuration.WithLabelValues(stage).Observe(time.Since(start).Seconds())
	if err != nil {
		o.metrics.StageErrors.WithLabelValues(stage, "provider").Inc()
		return "", fmt.Errorf("%s stage: %w", stage, err)
	}
	return raw, nil
}

func (o *Orchestrator) decode(stage, raw string, v any) error {
	if err := llmparse.Decode(stage, raw, v); err != nil {
		o.metrics.StageErrors.WithLabelValues(stage, "parse").Inc()
		return err
	}
	return nil
}

// generate runs one model call under the per-stage timeout.
func (o *Orchestrator) generate(ctx context.Context, system, user string) (string, error) {
	cfg := o.config()
	if cfg.StageTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.StageTimeout)
		defer cancel()
	}
	return o.llm.GenerateText(ctx, user, provider.GenerateOptions{
		SystemPrompt:    system,
		Temperature:     cfg.Temperature,
		MaxOutputTokens: cfg.MaxOutputTokens,
	})
}
