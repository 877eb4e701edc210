// Package store defines the persistence contracts for experiences and
// learned insights, plus an in-process implementation. The SQL-backed
// implementation lives in internal/database.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jordanhubbard/skein/pkg/models"
)

// ErrNotFound is returned when a lookup matches nothing.
var ErrNotFound = errors.New("not found")

// WriteError wraps a persistence-layer write failure.
type WriteError struct {
	Op  string
	Err error
}

func (e *WriteError) Error() string { return fmt.Sprintf("store write failed (%s): %v", e.Op, e.Err) }
func (e *WriteError) Unwrap() error { return e.Err }

// ReadError wraps a persistence-layer read failure.
type ReadError struct {
	Op  string
	Err error
}

func (e *ReadError) Error() string { return fmt.Sprintf("store read failed (%s): %v", e.Op, e.Err) }
func (e *ReadError) Unwrap() error { return e.Err }

// ExperienceFilter selects experiences. Zero-valued fields match everything.
type ExperienceFilter struct {
	Types         []models.ExperienceType
	Since         time.Time
	Until         time.Time
	ProjectID     string
	SubtaskID     string
	Statuses      []models.OutcomeStatus
	Tags          []string
	MinDurationMs int64
	PromptID      string
	ErrorCode     string
	IDs           []string
}

// Matches reports whether the experience satisfies every set filter field.
func (f *ExperienceFilter) Matches(e *models.Experience) bool {
	if len(f.Types) > 0 && !containsType(f.Types, e.Type) {
		return false
	}
	if !f.Since.IsZero() && e.Timestamp.Before(f.Since) {
		return false
	}
	if !f.Until.IsZero() && !e.Timestamp.Before(f.Until) {
		return false
	}
	if f.ProjectID != "" && e.Context.ProjectID != f.ProjectID {
		return false
	}
	if f.SubtaskID != "" && e.Context.SubtaskID != f.SubtaskID {
		return false
	}
	if len(f.Statuses) > 0 && !containsStatus(f.Statuses, e.Outcome.Status) {
		return false
	}
	for _, tag := range f.Tags {
		if !e.HasTag(tag) {
			return false
		}
	}
	if f.MinDurationMs > 0 && e.Outcome.DurationMs < f.MinDurationMs {
		return false
	}
	if f.PromptID != "" && e.Context.PromptID != f.PromptID {
		return false
	}
	if f.ErrorCode != "" && (e.Outcome.Error == nil || e.Outcome.Error.Code != f.ErrorCode) {
		return false
	}
	if len(f.IDs) > 0 {
		found := false
		for _, id := range f.IDs {
			if e.ID == id {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

func containsType(types []models.ExperienceType, t models.ExperienceType) bool {
	for _, x := range types {
		if x == t {
			return true
		}
	}
	return false
}

func containsStatus(statuses []models.OutcomeStatus, s models.OutcomeStatus) bool {
	for _, x := range statuses {
		if x == s {
			return true
		}
	}
	return false
}

// ExperienceStore is the append-mostly log of execution experiences. The
// store is the sole assigner of ids and the sole owner of records after
// logging.
type ExperienceStore interface {
	// LogExperience assigns a fresh unique id, stamps the timestamp if
	// absent, persists the experience, and returns the id.
	LogExperience(ctx context.Context, exp *models.Experience) (string, error)
	GetExperienceByID(ctx context.Context, id string) (*models.Experience, error)
	FindExperiences(ctx context.Context, filter ExperienceFilter, limit, offset int) ([]*models.Experience, error)
	CountExperiences(ctx context.Context, filter ExperienceFilter) (int, error)
	// PruneOldExperiences removes experiences timestamped strictly before
	// cutoff and returns how many were removed. Destructive and idempotent.
	PruneOldExperiences(ctx context.Context, cutoff time.Time) (int, error)
}

// InsightStore is the durable, mutable store of learned insights. The
// insight engine is the only writer of new insights; any component may
// increment usage counters.
type InsightStore interface {
	CreateInsight(ctx context.Context, insight *models.LearnedInsight) (string, error)
	GetInsightByID(ctx context.Context, id string) (*models.LearnedInsight, error)
	// FindInsightByPattern returns the insight with the given type and
	// derivation key, or ErrNotFound.
	FindInsightByPattern(ctx context.Context, typ models.InsightType, key string) (*models.LearnedInsight, error)
	ListInsights(ctx context.Context, status models.InsightStatus, limit int) ([]*models.LearnedInsight, error)
	// UpdateInsight persists changes to pattern details, confidence,
	// recommendation, validation history, and timestamps. Status changes
	// go through UpdateInsightStatus.
	UpdateInsight(ctx context.Context, insight *models.LearnedInsight) error
	// UpdateInsightStatus transitions the insight's lifecycle status,
	// rejecting illegal transitions, and appends a validation record.
	UpdateInsightStatus(ctx context.Context, id string, to models.InsightStatus, note string) error
	// IncrementInsightUsage atomically bumps timesApplied plus one of the
	// success/failure counters and recomputes effectivenessScore.
	IncrementInsightUsage(ctx context.Context, id string, succeeded bool) error
	// MarkStaleInsights moves non-terminal insights whose last validation
	// (or discovery) predates cutoff to STALE, returning how many moved.
	MarkStaleInsights(ctx context.Context, cutoff time.Time) (int, error)
}
