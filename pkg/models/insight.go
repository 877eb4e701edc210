package models

import (
	"fmt"
	"time"
)

// InsightType categorizes what kind of pattern an insight claims.
type InsightType string

const (
	InsightPromptEffectiveness InsightType = "prompt_effectiveness"
	InsightErrorFrequency      InsightType = "error_frequency"
	InsightDurationAnomaly     InsightType = "duration_anomaly"
	InsightPersonaPerformance  InsightType = "persona_performance"
)

// InsightStatus is one step of the insight lifecycle. Forward movement is
// NEW → VALIDATED → ACTION_SUGGESTED → APPLIED; REJECTED and STALE are
// terminal side exits reachable from any non-terminal state.
type InsightStatus string

const (
	InsightStatusNew             InsightStatus = "new"
	InsightStatusValidated       InsightStatus = "validated"
	InsightStatusActionSuggested InsightStatus = "action_suggested"
	InsightStatusApplied         InsightStatus = "applied"
	InsightStatusRejected        InsightStatus = "rejected"
	InsightStatusStale           InsightStatus = "stale"
)

var insightStatusRank = map[InsightStatus]int{
	InsightStatusNew:             0,
	InsightStatusValidated:       1,
	InsightStatusActionSuggested: 2,
	InsightStatusApplied:         3,
}

// Terminal reports whether no further transitions are allowed from s.
func (s InsightStatus) Terminal() bool {
	return s == InsightStatusRejected || s == InsightStatusStale
}

// CanTransition reports whether moving from one status to another is legal:
// strictly forward along the main lifecycle, or a jump to a terminal side
// exit from any non-terminal state.
func CanTransition(from, to InsightStatus) bool {
	if from.Terminal() {
		return false
	}
	if to.Terminal() {
		return true
	}
	fromRank, ok := insightStatusRank[from]
	if !ok {
		return false
	}
	toRank, ok := insightStatusRank[to]
	if !ok {
		return false
	}
	return toRank > fromRank
}

// PatternDetails holds the evidence behind an insight. Key is the derivation
// key the engine groups experiences by (e.g. "prompt-id/model" for prompt
// effectiveness, an error code for frequency patterns); it is what makes an
// existing insight findable for update instead of duplication.
type PatternDetails struct {
	Key       string             `json:"key"`
	Metrics   map[string]float64 `json:"metrics,omitempty"`
	Context   map[string]string  `json:"context,omitempty"`
	Frequency int                `json:"frequency"`
}

// Recommendation proposes a concrete change justified by the pattern.
type Recommendation struct {
	Action        string            `json:"action"`
	Parameters    map[string]string `json:"parameters,omitempty"`
	Justification string            `json:"justification,omitempty"`
}

// Evaluation tracks how the insight performed once applied.
type Evaluation struct {
	TimesApplied           int     `json:"times_applied"`
	SuccessfulApplications int     `json:"successful_applications"`
	TimesAppliedFailed     int     `json:"times_applied_failed"`
	EffectivenessScore     float64 `json:"effectiveness_score"`
}

// ValidationRecord is one entry of an insight's append-only validation history.
type ValidationRecord struct {
	Timestamp time.Time `json:"timestamp"`
	Method    string    `json:"method"`
	Result    string    `json:"result"`
	Notes     string    `json:"notes,omitempty"`
}

// LearnedInsight is a derived, mutable claim about a pattern observed across
// experiences.
type LearnedInsight struct {
	ID                string             `json:"id"`
	Type              InsightType        `json:"type"`
	Description       string             `json:"description"`
	Confidence        float64            `json:"confidence"`
	DiscoveredAt      time.Time          `json:"discovered_at"`
	LastValidatedAt   *time.Time         `json:"last_validated_at,omitempty"`
	Status            InsightStatus      `json:"status"`
	Pattern           PatternDetails     `json:"pattern"`
	Recommendation    *Recommendation    `json:"recommendation,omitempty"`
	Evaluation        *Evaluation        `json:"evaluation,omitempty"`
	ValidationHistory []ValidationRecord `json:"validation_history,omitempty"`
}

// Validate checks the evaluation counter invariant and confidence bounds.
func (i *LearnedInsight) Validate() error {
	if i.Confidence < 0 || i.Confidence > 1 {
		return fmt.Errorf("confidence %f out of range [0,1]", i.Confidence)
	}
	if ev := i.Evaluation; ev != nil {
		if ev.SuccessfulApplications+ev.TimesAppliedFailed > ev.TimesApplied {
			return fmt.Errorf("evaluation counters inconsistent: %d successes + %d failures > %d applications",
				ev.SuccessfulApplications, ev.TimesAppliedFailed, ev.TimesApplied)
		}
	}
	return nil
}
