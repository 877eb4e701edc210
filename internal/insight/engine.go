// Package insight implements the learning half of the loop: a background
// engine that drains the analysis queue in batches, mines the referenced
// experiences for recurring patterns, and maintains the insight store.
package insight

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"time"

	"github.com/jordanhubbard/skein/internal/metrics"
	"github.com/jordanhubbard/skein/internal/queue"
	"github.com/jordanhubbard/skein/internal/store"
	"github.com/jordanhubbard/skein/pkg/models"
)

// Config tunes the insight engine.
type Config struct {
	// Interval between analysis cycles.
	Interval time.Duration
	// BatchSize caps how many experience ids one cycle consumes.
	BatchSize int
	// ValidateThreshold is the confidence at which a NEW insight moves
	// to VALIDATED. SuggestThreshold moves VALIDATED insights that carry
	// a recommendation to ACTION_SUGGESTED.
	ValidateThreshold float64
	SuggestThreshold  float64
	// StaleAfter bounds how long an insight may go unconfirmed before
	// the stale sweep retires it. Zero disables the sweep.
	StaleAfter time.Duration
	// MinSamples is the smallest group size worth forming a pattern
	// over. Groups below it are skipped, not rejected.
	MinSamples int
}

// DefaultConfig returns the default engine tuning.
func DefaultConfig() Config {
	return Config{
		Interval:          time.Minute,
		BatchSize:         100,
		ValidateThreshold: 0.5,
		SuggestThreshold:  0.75,
		StaleAfter:        14 * 24 * time.Hour,
		MinSamples:        3,
	}
}

// Engine owns the analyze-and-learn cycle. Start it with Run; RunOnce is
// exposed for one-shot callers and tests.
type Engine struct {
	analysis    queue.AnalysisQueue
	experiences store.ExperienceStore
	insights    store.InsightStore
	cfg         Config
	metrics     *metrics.Metrics
}

// NewEngine wires an engine over the given queue and stores.
func NewEngine(aq queue.AnalysisQueue, es store.ExperienceStore, is store.InsightStore, cfg Config) *Engine {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultConfig().BatchSize
	}
	if cfg.MinSamples <= 0 {
		cfg.MinSamples = DefaultConfig().MinSamples
	}
	return &Engine{
		analysis:    aq,
		experiences: es,
		insights:    is,
		cfg:         cfg,
		metrics:     metrics.NewMetrics(),
	}
}

// Run executes analysis cycles on the configured interval until ctx is
// cancelled.
func (e *Engine) Run(ctx context.Context) error {
	interval := e.cfg.Interval
	if interval <= 0 {
		interval = DefaultConfig().Interval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	log.Printf("[Insight] engine running, interval %s, batch size %d", interval, e.cfg.BatchSize)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := e.RunOnce(ctx); err != nil && !errors.Is(err, context.Canceled) {
				log.Printf("[Insight] analysis cycle failed: %v", err)
			}
		}
	}
}

// RunOnce drains one batch from the analysis queue, mines it, and runs
// the stale sweep. A cycle with an empty queue is a no-op, not an error.
func (e *Engine) RunOnce(ctx context.Context) error {
	ids, err := e.analysis.Dequeue(ctx, e.cfg.BatchSize)
	if err != nil {
		return fmt.Errorf("failed to dequeue analysis batch: %w", err)
	}

	if len(ids) > 0 {
		e.metrics.AnalysisBatches.Inc()
		exps, err := e.experiences.FindExperiences(ctx, store.ExperienceFilter{IDs: ids}, len(ids), 0)
		if err != nil {
			return fmt.Errorf("failed to load experiences for analysis: %w", err)
		}
		if missing := len(ids) - len(exps); missing > 0 {
			// Ids can outlive their experiences when retention pruning
			// ran between enqueue and analysis.
			log.Printf("[Insight] %d of %d queued experiences no longer exist", missing, len(ids))
		}
		e.mine(ctx, exps)
	}

	if size, err := e.analysis.Size(ctx); err == nil {
		e.metrics.AnalysisBacklog.Set(float64(size))
	}

	if e.cfg.StaleAfter > 0 {
		cutoff := time.Now().UTC().Add(-e.cfg.StaleAfter)
		n, err := e.insights.MarkStaleInsights(ctx, cutoff)
		if err != nil {
			return fmt.Errorf("stale sweep failed: %w", err)
		}
		if n > 0 {
			log.Printf("[Insight] retired %d stale insights", n)
		}
	}

	e.refreshStatusGauges(ctx)
	return nil
}

func (e *Engine) refreshStatusGauges(ctx context.Context) {
	statuses := []models.InsightStatus{
		models.InsightStatusNew,
		models.InsightStatusValidated,
		models.InsightStatusActionSuggested,
		models.InsightStatusApplied,
		models.InsightStatusRejected,
		models.InsightStatusStale,
	}
	for _, status := range statuses {
		insights, err := e.insights.ListInsights(ctx, status, 0)
		if err != nil {
			return
		}
		e.metrics.InsightsByStatus.WithLabelValues(string(status)).Set(float64(len(insights)))
	}
}

// mine runs every pattern miner over the batch. Miner failures are
// logged per pattern and never abort the batch.
func (e *Engine) mine(ctx context.Context, exps []*models.Experience) {
	for _, candidate := range minePromptEffectiveness(exps, e.cfg.MinSamples) {
		if err := e.upsert(ctx, candidate); err != nil {
			log.Printf("[Insight] failed to record %s/%s: %v", candidate.Type, candidate.Pattern.Key, err)
		}
	}
	for _, candidate := range mineErrorFrequency(exps, e.cfg.MinSamples) {
		if err := e.upsert(ctx, candidate); err != nil {
			log.Printf("[Insight] failed to record %s/%s: %v", candidate.Type, candidate.Pattern.Key, err)
		}
	}
}

// upsert folds a freshly mined candidate into the store: existing
// insights with the same type and derivation key absorb the new evidence,
// everything else is created NEW. Either way the lifecycle thresholds are
// applied afterwards.
func (e *Engine) upsert(ctx context.Context, candidate *models.LearnedInsight) error {
	existing, err := e.insights.FindInsightByPattern(ctx, candidate.Type, candidate.Pattern.Key)
	switch {
	case errors.Is(err, store.ErrNotFound):
		id, err := e.insights.CreateInsight(ctx, candidate)
		if err != nil {
			return err
		}
		candidate.ID = id
		e.metrics.InsightsCreated.WithLabelValues(string(candidate.Type)).Inc()
		log.Printf("[Insight] new %s insight %s (%s)", candidate.Type, id, candidate.Pattern.Key)
		return e.applyThresholds(ctx, candidate.ID)
	case err != nil:
		return err
	}

	if existing.Status.Terminal() {
		// Evidence for a retired insight does not resurrect it.
		return nil
	}

	now := time.Now().UTC()
	existing.Pattern.Frequency += candidate.Pattern.Frequency
	existing.Pattern.Metrics = candidate.Pattern.Metrics
	existing.Description = candidate.Description
	// Confidence reflects all accumulated evidence, not just this batch.
	if rate, ok := candidate.Pattern.Metrics["success_rate"]; ok {
		existing.Confidence = Confidence(existing.Pattern.Frequency, rate)
	} else {
		existing.Confidence = CountConfidence(existing.Pattern.Frequency)
	}
	existing.Recommendation = candidate.Recommendation
	existing.LastValidatedAt = &now
	existing.ValidationHistory = append(existing.ValidationHistory, models.ValidationRecord{
		Timestamp: now,
		Method:    "batch_analysis",
		Result:    "confirmed",
		Notes:     fmt.Sprintf("pattern recurred across %d experiences", candidate.Pattern.Frequency),
	})

	if err := e.insights.UpdateInsight(ctx, existing); err != nil {
		return err
	}
	e.metrics.InsightsUpdated.WithLabelValues(string(existing.Type)).Inc()
	return e.applyThresholds(ctx, existing.ID)
}

// applyThresholds walks the insight forward through the lifecycle as far
// as its confidence allows.
func (e *Engine) applyThresholds(ctx context.Context, id string) error {
	insight, err := e.insights.GetInsightByID(ctx, id)
	if err != nil {
		return err
	}

	if insight.Status == models.InsightStatusNew && insight.Confidence >= e.cfg.ValidateThreshold {
		note := fmt.Sprintf("confidence %.2f reached validation threshold %.2f", insight.Confidence, e.cfg.ValidateThreshold)
		if err := e.insights.UpdateInsightStatus(ctx, id, models.InsightStatusValidated, note); err != nil {
			return err
		}
		insight.Status = models.InsightStatusValidated
	}

	if insight.Status == models.InsightStatusValidated &&
		insight.Recommendation != nil &&
		insight.Confidence >= e.cfg.SuggestThreshold {
		note := fmt.Sprintf("confidence %.2f reached suggestion threshold %.2f", insight.Confidence, e.cfg.SuggestThreshold)
		if err := e.insights.UpdateInsightStatus(ctx, id, models.InsightStatusActionSuggested, note); err != nil {
			return err
		}
	}
	return nil
}

type promptGroup struct {
	promptID  string
	model     string
	total     int
	successes int
	totalMs   int64
}

// minePromptEffectiveness groups prompt executions by prompt id and
// model and emits one candidate per group with enough samples.
func minePromptEffectiveness(exps []*models.Experience, minSamples int) []*models.LearnedInsight {
	groups := make(map[string]*promptGroup)
	for _, exp := range exps {
		if exp.Type != models.ExperiencePromptExecution || exp.Context.PromptID == "" {
			continue
		}
		key := exp.Context.PromptID + "/" + exp.Context.Model
		g := groups[key]
		if g == nil {
			g = &promptGroup{promptID: exp.Context.PromptID, model: exp.Context.Model}
			groups[key] = g
		}
		g.total++
		if exp.Outcome.Status == models.OutcomeSuccess {
			g.successes++
		}
		g.totalMs += exp.Outcome.DurationMs
	}

	keys := make([]string, 0, len(groups))
	for key := range groups {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	var out []*models.LearnedInsight
	for _, key := range keys {
		g := groups[key]
		if g.total < minSamples {
			continue
		}
		rate := float64(g.successes) / float64(g.total)
		candidate := &models.LearnedInsight{
			Type: models.InsightPromptEffectiveness,
			Description: fmt.Sprintf("prompt %s on %s succeeds %.0f%% of the time over %d runs",
				g.promptID, g.model, rate*100, g.total),
			Confidence:   Confidence(g.total, rate),
			DiscoveredAt: time.Now().UTC(),
			Status:       models.InsightStatusNew,
			Pattern: models.PatternDetails{
				Key: key,
				Metrics: map[string]float64{
					"success_rate":    rate,
					"avg_duration_ms": float64(g.totalMs) / float64(g.total),
				},
				Context: map[string]string{
					"prompt_id": g.promptID,
					"model":     g.model,
				},
				Frequency: g.total,
			},
		}
		if rate < 0.5 {
			candidate.Recommendation = &models.Recommendation{
				Action: "revise_prompt",
				Parameters: map[string]string{
					"prompt_id": g.promptID,
					"model":     g.model,
				},
				Justification: fmt.Sprintf("success rate %.0f%% across %d runs", rate*100, g.total),
			}
		}
		out = append(out, candidate)
	}
	return out
}

// mineErrorFrequency groups failed experiences by error code.
func mineErrorFrequency(exps []*models.Experience, minSamples int) []*models.LearnedInsight {
	counts := make(map[string]int)
	for _, exp := range exps {
		if exp.Outcome.Error == nil || exp.Outcome.Error.Code == "" {
			continue
		}
		counts[exp.Outcome.Error.Code]++
	}

	codes := make([]string, 0, len(counts))
	for code := range counts {
		codes = append(codes, code)
	}
	sort.Strings(codes)

	var out []*models.LearnedInsight
	for _, code := range codes {
		n := counts[code]
		if n < minSamples {
			continue
		}
		out = append(out, &models.LearnedInsight{
			Type:         models.InsightErrorFrequency,
			Description:  fmt.Sprintf("error %s occurred %d times in one analysis batch", code, n),
			Confidence:   CountConfidence(n),
			DiscoveredAt: time.Now().UTC(),
			Status:       models.InsightStatusNew,
			Pattern: models.PatternDetails{
				Key:       code,
				Metrics:   map[string]float64{"occurrences": float64(n)},
				Context:   map[string]string{"error_code": code},
				Frequency: n,
			},
			Recommendation: &models.Recommendation{
				Action:        "investigate_error",
				Parameters:    map[string]string{"error_code": code},
				Justification: fmt.Sprintf("%d occurrences in a single batch", n),
			},
		})
	}
	return out
}
