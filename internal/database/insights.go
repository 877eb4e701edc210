package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/jordanhubbard/skein/internal/store"
	"github.com/jordanhubbard/skein/pkg/models"
)

// CreateInsight assigns an id (unless preset) and inserts the insight.
func (d *Database) CreateInsight(ctx context.Context, insight *models.LearnedInsight) (string, error) {
	if err := insight.Validate(); err != nil {
		return "", &store.WriteError{Op: "create insight", Err: err}
	}

	id := insight.ID
	if id == "" {
		id = uuid.New().String()
	}
	discovered := insight.DiscoveredAt
	if discovered.IsZero() {
		discovered = time.Now().UTC()
	}
	status := insight.Status
	if status == "" {
		status = models.InsightStatusNew
	}

	var ev models.Evaluation
	if insight.Evaluation != nil {
		ev = *insight.Evaluation
	}

	_, err := d.db.ExecContext(ctx, d.rebind(`
		INSERT INTO insights (
			id, type, description, confidence, discovered_at, last_validated_at, status,
			pattern_key, pattern, recommendation,
			times_applied, successful_applications, times_applied_failed, effectiveness_score,
			validation_history
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`),
		id, insight.Type, insight.Description, insight.Confidence, discovered,
		nullableTime(insight.LastValidatedAt), status,
		insight.Pattern.Key, marshalJSON(insight.Pattern), marshalJSON(insight.Recommendation),
		ev.TimesApplied, ev.SuccessfulApplications, ev.TimesAppliedFailed, ev.EffectivenessScore,
		marshalJSON(insight.ValidationHistory),
	)
	if err != nil {
		return "", &store.WriteError{Op: "create insight", Err: err}
	}
	return id, nil
}

// GetInsightByID returns the insight, or store.ErrNotFound.
func (d *Database) GetInsightByID(ctx context.Context, id string) (*models.LearnedInsight, error) {
	row := d.db.QueryRowContext(ctx, d.rebind(insightColumns+` FROM insights WHERE id = ?`), id)
	return d.scanInsightRow(row, "get insight")
}

// FindInsightByPattern returns the insight keyed by (type, derivation key),
// or store.ErrNotFound.
func (d *Database) FindInsightByPattern(ctx context.Context, typ models.InsightType, key string) (*models.LearnedInsight, error) {
	row := d.db.QueryRowContext(ctx, d.rebind(
		insightColumns+` FROM insights WHERE type = ? AND pattern_key = ?`), typ, key)
	return d.scanInsightRow(row, "find insight by pattern")
}

// ListInsights returns insights ordered by discovery time, optionally
// filtered by status.
func (d *Database) ListInsights(ctx context.Context, status models.InsightStatus, limit int) ([]*models.LearnedInsight, error) {
	query := insightColumns + ` FROM insights`
	var args []any
	if status != "" {
		query += ` WHERE status = ?`
		args = append(args, status)
	}
	query += ` ORDER BY discovered_at, id`
	if limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", limit)
	}

	rows, err := d.db.QueryContext(ctx, d.rebind(query), args...)
	if err != nil {
		return nil, &store.ReadError{Op: "list insights", Err: err}
	}
	defer rows.Close()

	var out []*models.LearnedInsight
	for rows.Next() {
		insight, err := scanInsight(rows)
		if err != nil {
			return nil, &store.ReadError{Op: "list insights", Err: err}
		}
		out = append(out, insight)
	}
	return out, rows.Err()
}

// UpdateInsight persists pattern, confidence, recommendation, validation
// history, and lastValidatedAt. Status and usage counters are untouched.
func (d *Database) UpdateInsight(ctx context.Context, insight *models.LearnedInsight) error {
	if err := insight.Validate(); err != nil {
		return &store.WriteError{Op: "update insight", Err: err}
	}

	res, err := d.db.ExecContext(ctx, d.rebind(`
		UPDATE insights SET
			description = ?, confidence = ?, last_validated_at = ?,
			pattern_key = ?, pattern = ?, recommendation = ?, validation_history = ?
		WHERE id = ?`),
		insight.Description, insight.Confidence, nullableTime(insight.LastValidatedAt),
		insight.Pattern.Key, marshalJSON(insight.Pattern), marshalJSON(insight.Recommendation),
		marshalJSON(insight.ValidationHistory), insight.ID,
	)
	if err != nil {
		return &store.WriteError{Op: "update insight", Err: err}
	}
	return requireRowAffected(res)
}

// UpdateInsightStatus transitions the lifecycle status with a
// compare-and-swap on the current status so concurrent transitions cannot
// interleave, and appends a validation record.
func (d *Database) UpdateInsightStatus(ctx context.Context, id string, to models.InsightStatus, note string) error {
	insight, err := d.GetInsightByID(ctx, id)
	if err != nil {
		return err
	}
	if !models.CanTransition(insight.Status, to) {
		return &store.WriteError{Op: "update insight status",
			Err: fmt.Errorf("illegal transition %s -> %s", insight.Status, to)}
	}

	history := append(insight.ValidationHistory, models.ValidationRecord{
		Timestamp: time.Now().UTC(),
		Method:    "status_transition",
		Result:    string(to),
		Notes:     note,
	})

	res, err := d.db.ExecContext(ctx, d.rebind(`
		UPDATE insights SET status = ?, validation_history = ? WHERE id = ? AND status = ?`),
		to, marshalJSON(history), id, insight.Status,
	)
	if err != nil {
		return &store.WriteError{Op: "update insight status", Err: err}
	}
	n, err := res.RowsAffected()
	if err != nil {
		return &store.WriteError{Op: "update insight status", Err: err}
	}
	if n == 0 {
		return &store.WriteError{Op: "update insight status",
			Err: fmt.Errorf("concurrent status change on %s", id)}
	}
	return nil
}

// IncrementInsightUsage bumps the usage counters in a single UPDATE so
// concurrent appliers are both counted.
func (d *Database) IncrementInsightUsage(ctx context.Context, id string, succeeded bool) error {
	succ, fail := 0, 0
	if succeeded {
		succ = 1
	} else {
		fail = 1
	}
	res, err := d.db.ExecContext(ctx, d.rebind(`
		UPDATE insights SET
			times_applied = times_applied + 1,
			successful_applications = successful_applications + ?,
			times_applied_failed = times_applied_failed + ?,
			effectiveness_score = CAST(successful_applications + ? AS REAL) / (times_applied + 1)
		WHERE id = ?`),
		succ, fail, succ, id,
	)
	if err != nil {
		return &store.WriteError{Op: "increment insight usage", Err: err}
	}
	return requireRowAffected(res)
}

// MarkStaleInsights moves non-terminal insights whose last validation (or
// discovery) predates cutoff to STALE.
func (d *Database) MarkStaleInsights(ctx context.Context, cutoff time.Time) (int, error) {
	res, err := d.db.ExecContext(ctx, d.rebind(`
		UPDATE insights SET status = ?
		WHERE status NOT IN (?, ?)
		  AND COALESCE(last_validated_at, discovered_at) < ?`),
		models.InsightStatusStale, models.InsightStatusRejected, models.InsightStatusStale, cutoff,
	)
	if err != nil {
		return 0, &store.WriteError{Op: "mark stale insights", Err: err}
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, &store.WriteError{Op: "mark stale insights", Err: err}
	}
	return int(n), nil
}

const insightColumns = `SELECT id, type, description, confidence, discovered_at, last_validated_at, status,
	pattern, recommendation,
	times_applied, successful_applications, times_applied_failed, effectiveness_score,
	validation_history`

func (d *Database) scanInsightRow(row *sql.Row, op string) (*models.LearnedInsight, error) {
	insight, err := scanInsight(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, &store.ReadError{Op: op, Err: err}
	}
	return insight, nil
}

func scanInsight(row rowScanner) (*models.LearnedInsight, error) {
	var (
		insight        models.LearnedInsight
		lastValidated  sql.NullTime
		pattern        string
		recommendation string
		history        string
		ev             models.Evaluation
	)
	err := row.Scan(
		&insight.ID, &insight.Type, &insight.Description, &insight.Confidence,
		&insight.DiscoveredAt, &lastValidated, &insight.Status,
		&pattern, &recommendation,
		&ev.TimesApplied, &ev.SuccessfulApplications, &ev.TimesAppliedFailed, &ev.EffectivenessScore,
		&history,
	)
	if err != nil {
		return nil, err
	}
	if lastValidated.Valid {
		t := lastValidated.Time
		insight.LastValidatedAt = &t
	}
	unmarshalJSON(pattern, &insight.Pattern)
	if recommendation != "" {
		insight.Recommendation = &models.Recommendation{}
		unmarshalJSON(recommendation, insight.Recommendation)
	}
	if ev != (models.Evaluation{}) {
		insight.Evaluation = &ev
	}
	unmarshalJSON(history, &insight.ValidationHistory)
	return &insight, nil
}

func nullableTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return *t
}

func requireRowAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return &store.WriteError{Op: "rows affected", Err: err}
	}
	if n == 0 {
		return store.ErrNotFound
	}
	return nil
}

var _ store.InsightStore = (*Database)(nil)
