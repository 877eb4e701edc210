package models

import (
	"fmt"
	"time"
)

// ExperienceType categorizes the execution event an experience records.
type ExperienceType string

const (
	ExperienceSubtaskExecution ExperienceType = "subtask_execution"
	ExperienceOrchestration    ExperienceType = "orchestration_run"
	ExperiencePromptExecution  ExperienceType = "prompt_execution"
	ExperienceErrorRecovery    ExperienceType = "error_recovery"
	ExperienceRepoAnalysis     ExperienceType = "repository_analysis"
	ExperienceSystemHealth     ExperienceType = "system_health"
)

// Valid reports whether t is a known experience type.
func (t ExperienceType) Valid() bool {
	switch t {
	case ExperienceSubtaskExecution, ExperienceOrchestration, ExperiencePromptExecution,
		ExperienceErrorRecovery, ExperienceRepoAnalysis, ExperienceSystemHealth:
		return true
	}
	return false
}

// OutcomeStatus is the terminal (or in-flight) status of a recorded operation.
type OutcomeStatus string

const (
	OutcomeSuccess    OutcomeStatus = "success"
	OutcomeFailure    OutcomeStatus = "failure"
	OutcomePartial    OutcomeStatus = "partial"
	OutcomeSkipped    OutcomeStatus = "skipped"
	OutcomeInProgress OutcomeStatus = "in_progress"
	OutcomeTimedOut   OutcomeStatus = "timed_out"
)

// Valid reports whether s is a known outcome status.
func (s OutcomeStatus) Valid() bool {
	switch s {
	case OutcomeSuccess, OutcomeFailure, OutcomePartial, OutcomeSkipped,
		OutcomeInProgress, OutcomeTimedOut:
		return true
	}
	return false
}

// ExperienceContext identifies what the experience was about. The known
// identifier fields cover the common correlation axes; Extra carries any
// additional keys callers want preserved without a schema change.
type ExperienceContext struct {
	ProjectID string            `json:"project_id,omitempty"`
	RequestID string            `json:"request_id,omitempty"`
	SessionID string            `json:"session_id,omitempty"`
	SubtaskID string            `json:"subtask_id,omitempty"`
	PromptID  string            `json:"prompt_id,omitempty"`
	Model     string            `json:"model,omitempty"`
	Extra     map[string]string `json:"extra,omitempty"`
}

// ErrorDetail describes a failure in a form the insight engine can group on.
type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message,omitempty"`
}

// ExperienceOutcome records how the operation ended.
type ExperienceOutcome struct {
	Status     OutcomeStatus      `json:"status"`
	DurationMs int64              `json:"duration_ms,omitempty"`
	Error      *ErrorDetail       `json:"error,omitempty"`
	Artifacts  []string           `json:"artifacts,omitempty"`
	Metrics    map[string]float64 `json:"metrics,omitempty"`
}

// ExperienceMetadata records where the experience came from.
type ExperienceMetadata struct {
	Source        string   `json:"source"`
	SystemVersion string   `json:"system_version,omitempty"`
	Tags          []string `json:"tags,omitempty"`
	Notes         string   `json:"notes,omitempty"`
}

// Experience is an immutable record of one execution event. ID and Timestamp
// are assigned by the store at log time; callers leave them zero.
type Experience struct {
	ID        string             `json:"id"`
	Timestamp time.Time          `json:"timestamp"`
	Type      ExperienceType     `json:"type"`
	Context   ExperienceContext  `json:"context"`
	Outcome   ExperienceOutcome  `json:"outcome"`
	Metadata  ExperienceMetadata `json:"metadata"`
}

// Validate checks the closed enumerations. Everything else is accepted as-is.
func (e *Experience) Validate() error {
	if !e.Type.Valid() {
		return fmt.Errorf("unknown experience type %q", e.Type)
	}
	if !e.Outcome.Status.Valid() {
		return fmt.Errorf("unknown outcome status %q", e.Outcome.Status)
	}
	return nil
}

// HasTag reports whether the experience carries the given metadata tag.
func (e *Experience) HasTag(tag string) bool {
	for _, t := range e.Metadata.Tags {
		if t == tag {
			return true
		}
	}
	return false
}
