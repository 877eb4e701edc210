package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jordanhubbard/skein/pkg/models"
)

// MemoryExperienceStore is an in-process ExperienceStore. Records are
// deep-copied on the way in and out so nothing outside the store can mutate
// a logged experience.
type MemoryExperienceStore struct {
	mu    sync.RWMutex
	order []string
	byID  map[string]*models.Experience
}

// NewMemoryExperienceStore creates an empty in-memory experience store.
func NewMemoryExperienceStore() *MemoryExperienceStore {
	return &MemoryExperienceStore{byID: make(map[string]*models.Experience)}
}

// LogExperience assigns id and timestamp, validates enums, and persists.
func (s *MemoryExperienceStore) LogExperience(_ context.Context, exp *models.Experience) (string, error) {
	if err := exp.Validate(); err != nil {
		return "", &WriteError{Op: "log experience", Err: err}
	}

	stored := cloneExperience(exp)
	stored.ID = uuid.New().String()
	if stored.Timestamp.IsZero() {
		stored.Timestamp = time.Now().UTC()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.byID[stored.ID] = stored
	s.order = append(s.order, stored.ID)
	return stored.ID, nil
}

// GetExperienceByID returns the experience, or ErrNotFound.
func (s *MemoryExperienceStore) GetExperienceByID(_ context.Context, id string) (*models.Experience, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	exp, ok := s.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneExperience(exp), nil
}

// FindExperiences returns matching experiences in log order.
func (s *MemoryExperienceStore) FindExperiences(_ context.Context, filter ExperienceFilter, limit, offset int) ([]*models.Experience, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*models.Experience
	skipped := 0
	for _, id := range s.order {
		exp := s.byID[id]
		if !filter.Matches(exp) {
			continue
		}
		if skipped < offset {
			skipped++
			continue
		}
		out = append(out, cloneExperience(exp))
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

// CountExperiences counts matching experiences.
func (s *MemoryExperienceStore) CountExperiences(_ context.Context, filter ExperienceFilter) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	count := 0
	for _, exp := range s.byID {
		if filter.Matches(exp) {
			count++
		}
	}
	return count, nil
}

// PruneOldExperiences removes experiences timestamped strictly before cutoff.
func (s *MemoryExperienceStore) PruneOldExperiences(_ context.Context, cutoff time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	kept := s.order[:0]
	for _, id := range s.order {
		if s.byID[id].Timestamp.Before(cutoff) {
			delete(s.byID, id)
			removed++
			continue
		}
		kept = append(kept, id)
	}
	s.order = kept
	return removed, nil
}

func cloneExperience(exp *models.Experience) *models.Experience {
	data, _ := json.Marshal(exp)
	var out models.Experience
	_ = json.Unmarshal(data, &out)
	return &out
}

// MemoryInsightStore is an in-process InsightStore.
type MemoryInsightStore struct {
	mu   sync.RWMutex
	ids  []string
	byID map[string]*models.LearnedInsight
}

// NewMemoryInsightStore creates an empty in-memory insight store.
func NewMemoryInsightStore() *MemoryInsightStore {
	return &MemoryInsightStore{byID: make(map[string]*models.LearnedInsight)}
}

// CreateInsight assigns an id and persists the insight.
func (s *MemoryInsightStore) CreateInsight(_ context.Context, insight *models.LearnedInsight) (string, error) {
	if err := insight.Validate(); err != nil {
		return "", &WriteError{Op: "create insight", Err: err}
	}

	stored := cloneInsight(insight)
	if stored.ID == "" {
		stored.ID = uuid.New().String()
	}
	if stored.DiscoveredAt.IsZero() {
		stored.DiscoveredAt = time.Now().UTC()
	}
	if stored.Status == "" {
		stored.Status = models.InsightStatusNew
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.byID[stored.ID]; exists {
		return "", &WriteError{Op: "create insight", Err: fmt.Errorf("duplicate id %s", stored.ID)}
	}
	s.byID[stored.ID] = stored
	s.ids = append(s.ids, stored.ID)
	return stored.ID, nil
}

// GetInsightByID returns the insight, or ErrNotFound.
func (s *MemoryInsightStore) GetInsightByID(_ context.Context, id string) (*models.LearnedInsight, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	insight, ok := s.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneInsight(insight), nil
}

// FindInsightByPattern returns the insight with the given type and
// derivation key, or ErrNotFound.
func (s *MemoryInsightStore) FindInsightByPattern(_ context.Context, typ models.InsightType, key string) (*models.LearnedInsight, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, id := range s.ids {
		insight := s.byID[id]
		if insight.Type == typ && insight.Pattern.Key == key {
			return cloneInsight(insight), nil
		}
	}
	return nil, ErrNotFound
}

// ListInsights returns insights in creation order, optionally filtered by
// status.
func (s *MemoryInsightStore) ListInsights(_ context.Context, status models.InsightStatus, limit int) ([]*models.LearnedInsight, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*models.LearnedInsight
	for _, id := range s.ids {
		insight := s.byID[id]
		if status != "" && insight.Status != status {
			continue
		}
		out = append(out, cloneInsight(insight))
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

// UpdateInsight replaces the stored insight's mutable fields. Status and
// evaluation counters keep their stored values; they have dedicated
// operations.
func (s *MemoryInsightStore) UpdateInsight(_ context.Context, insight *models.LearnedInsight) error {
	if err := insight.Validate(); err != nil {
		return &WriteError{Op: "update insight", Err: err}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.byID[insight.ID]
	if !ok {
		return ErrNotFound
	}

	updated := cloneInsight(insight)
	updated.Status = existing.Status
	updated.Evaluation = existing.Evaluation
	s.byID[insight.ID] = updated
	return nil
}

// UpdateInsightStatus transitions the lifecycle status, appending a
// validation record.
func (s *MemoryInsightStore) UpdateInsightStatus(_ context.Context, id string, to models.InsightStatus, note string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	insight, ok := s.byID[id]
	if !ok {
		return ErrNotFound
	}
	if !models.CanTransition(insight.Status, to) {
		return &WriteError{Op: "update insight status",
			Err: fmt.Errorf("illegal transition %s -> %s", insight.Status, to)}
	}
	insight.Status = to
	insight.ValidationHistory = append(insight.ValidationHistory, models.ValidationRecord{
		Timestamp: time.Now().UTC(),
		Method:    "status_transition",
		Result:    string(to),
		Notes:     note,
	})
	return nil
}

// IncrementInsightUsage atomically bumps the usage counters.
func (s *MemoryInsightStore) IncrementInsightUsage(_ context.Context, id string, succeeded bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	insight, ok := s.byID[id]
	if !ok {
		return ErrNotFound
	}
	if insight.Evaluation == nil {
		insight.Evaluation = &models.Evaluation{}
	}
	ev := insight.Evaluation
	ev.TimesApplied++
	if succeeded {
		ev.SuccessfulApplications++
	} else {
		ev.TimesAppliedFailed++
	}
	ev.EffectivenessScore = float64(ev.SuccessfulApplications) / float64(ev.TimesApplied)
	return nil
}

// MarkStaleInsights moves non-terminal insights last validated (or, never
// validated, discovered) before cutoff to STALE.
func (s *MemoryInsightStore) MarkStaleInsights(_ context.Context, cutoff time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	moved := 0
	for _, insight := range s.byID {
		if insight.Status.Terminal() {
			continue
		}
		ref := insight.DiscoveredAt
		if insight.LastValidatedAt != nil {
			ref = *insight.LastValidatedAt
		}
		if ref.Before(cutoff) {
			insight.Status = models.InsightStatusStale
			moved++
		}
	}
	return moved, nil
}

func cloneInsight(insight *models.LearnedInsight) *models.LearnedInsight {
	data, _ := json.Marshal(insight)
	var out models.LearnedInsight
	_ = json.Unmarshal(data, &out)
	return &out
}

var (
	_ ExperienceStore = (*MemoryExperienceStore)(nil)
	_ InsightStore    = (*MemoryInsightStore)(nil)
)
