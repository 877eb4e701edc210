package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/jordanhubbard/skein/internal/store"
	"github.com/jordanhubbard/skein/pkg/models"
)

// LogExperience assigns a fresh id, stamps the timestamp if absent, and
// inserts the record.
func (d *Database) LogExperience(ctx context.Context, exp *models.Experience) (string, error) {
	if err := exp.Validate(); err != nil {
		return "", &store.WriteError{Op: "log experience", Err: err}
	}

	id := uuid.New().String()
	ts := exp.Timestamp
	if ts.IsZero() {
		ts = time.Now().UTC()
	}

	var errCode, errMsg string
	if exp.Outcome.Error != nil {
		errCode = exp.Outcome.Error.Code
		errMsg = exp.Outcome.Error.Message
	}

	_, err := d.db.ExecContext(ctx, d.rebind(`
		INSERT INTO experiences (
			id, timestamp, type,
			project_id, request_id, session_id, subtask_id, prompt_id, model, context_extra,
			status, duration_ms, error_code, error_message, artifacts, metrics,
			source, system_version, tags, notes
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`),
		id, ts, exp.Type,
		exp.Context.ProjectID, exp.Context.RequestID, exp.Context.SessionID,
		exp.Context.SubtaskID, exp.Context.PromptID, exp.Context.Model,
		marshalJSON(exp.Context.Extra),
		exp.Outcome.Status, exp.Outcome.DurationMs, errCode, errMsg,
		marshalJSON(exp.Outcome.Artifacts), marshalJSON(exp.Outcome.Metrics),
		exp.Metadata.Source, exp.Metadata.SystemVersion,
		marshalJSON(exp.Metadata.Tags), exp.Metadata.Notes,
	)
	if err != nil {
		return "", &store.WriteError{Op: "log experience", Err: err}
	}
	return id, nil
}

// GetExperienceByID returns the experience, or store.ErrNotFound.
func (d *Database) GetExperienceByID(ctx context.Context, id string) (*models.Experience, error) {
	row := d.db.QueryRowContext(ctx, d.rebind(
		experienceColumns+` FROM experiences WHERE id = ?`), id)
	exp, err := scanExperience(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, &store.ReadError{Op: "get experience", Err: err}
	}
	return exp, nil
}

// FindExperiences returns matching experiences ordered by timestamp.
func (d *Database) FindExperiences(ctx context.Context, filter store.ExperienceFilter, limit, offset int) ([]*models.Experience, error) {
	where, args := buildExperienceWhere(filter)
	query := experienceColumns + ` FROM experiences` + where + ` ORDER BY timestamp, id`
	if limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", limit)
	}
	if offset > 0 {
		query += fmt.Sprintf(" OFFSET %d", offset)
	}

	rows, err := d.db.QueryContext(ctx, d.rebind(query), args...)
	if err != nil {
		return nil, &store.ReadError{Op: "find experiences", Err: err}
	}
	defer rows.Close()

	var out []*models.Experience
	for rows.Next() {
		exp, err := scanExperience(rows)
		if err != nil {
			return nil, &store.ReadError{Op: "find experiences", Err: err}
		}
		out = append(out, exp)
	}
	return out, rows.Err()
}

// CountExperiences counts matching experiences.
func (d *Database) CountExperiences(ctx context.Context, filter store.ExperienceFilter) (int, error) {
	where, args := buildExperienceWhere(filter)
	var count int
	err := d.db.QueryRowContext(ctx, d.rebind(`SELECT COUNT(*) FROM experiences`+where), args...).Scan(&count)
	if err != nil {
		return 0, &store.ReadError{Op: "count experiences", Err: err}
	}
	return count, nil
}

// PruneOldExperiences deletes experiences timestamped strictly before cutoff.
func (d *Database) PruneOldExperiences(ctx context.Context, cutoff time.Time) (int, error) {
	res, err := d.db.ExecContext(ctx, d.rebind(`DELETE FROM experiences WHERE timestamp < ?`), cutoff)
	if err != nil {
		return 0, &store.WriteError{Op: "prune experiences", Err: err}
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, &store.WriteError{Op: "prune experiences", Err: err}
	}
	return int(n), nil
}

const experienceColumns = `SELECT id, timestamp, type,
	project_id, request_id, session_id, subtask_id, prompt_id, model, context_extra,
	status, duration_ms, error_code, error_message, artifacts, metrics,
	source, system_version, tags, notes`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanExperience(row rowScanner) (*models.Experience, error) {
	var (
		exp             models.Experience
		extra           string
		errCode, errMsg string
		artifacts       string
		metricsJSON     string
		tags            string
	)
	err := row.Scan(
		&exp.ID, &exp.Timestamp, &exp.Type,
		&exp.Context.ProjectID, &exp.Context.RequestID, &exp.Context.SessionID,
		&exp.Context.SubtaskID, &exp.Context.PromptID, &exp.Context.Model, &extra,
		&exp.Outcome.Status, &exp.Outcome.DurationMs, &errCode, &errMsg,
		&artifacts, &metricsJSON,
		&exp.Metadata.Source, &exp.Metadata.SystemVersion, &tags, &exp.Metadata.Notes,
	)
	if err != nil {
		return nil, err
	}
	if errCode != "" || errMsg != "" {
		exp.Outcome.Error = &models.ErrorDetail{Code: errCode, Message: errMsg}
	}
	unmarshalJSON(extra, &exp.Context.Extra)
	unmarshalJSON(artifacts, &exp.Outcome.Artifacts)
	unmarshalJSON(metricsJSON, &exp.Outcome.Metrics)
	unmarshalJSON(tags, &exp.Metadata.Tags)
	return &exp, nil
}

func buildExperienceWhere(filter store.ExperienceFilter) (string, []any) {
	var conds []string
	var args []any

	if len(filter.Types) > 0 {
		placeholders := make([]string, len(filter.Types))
		for i, t := range filter.Types {
			placeholders[i] = "?"
			args = append(args, t)
		}
		conds = append(conds, fmt.Sprintf("type IN (%s)", strings.Join(placeholders, ", ")))
	}
	if !filter.Since.IsZero() {
		conds = append(conds, "timestamp >= ?")
		args = append(args, filter.Since)
	}
	if !filter.Until.IsZero() {
		conds = append(conds, "timestamp < ?")
		args = append(args, filter.Until)
	}
	if filter.ProjectID != "" {
		conds = append(conds, "project_id = ?")
		args = append(args, filter.ProjectID)
	}
	if filter.SubtaskID != "" {
		conds = append(conds, "subtask_id = ?")
		args = append(args, filter.SubtaskID)
	}
	if len(filter.Statuses) > 0 {
		placeholders := make([]string, len(filter.Statuses))
		for i, s := range filter.Statuses {
			placeholders[i] = "?"
			args = append(args, s)
		}
		conds = append(conds, fmt.Sprintf("status IN (%s)", strings.Join(placeholders, ", ")))
	}
	// Tags are stored as a JSON array of strings; match on the quoted form.
	for _, tag := range filter.Tags {
		conds = append(conds, "tags LIKE ?")
		args = append(args, "%"+fmt.Sprintf("%q", tag)+"%")
	}
	if filter.MinDurationMs > 0 {
		conds = append(conds, "duration_ms >= ?")
		args = append(args, filter.MinDurationMs)
	}
	if filter.PromptID != "" {
		conds = append(conds, "prompt_id = ?")
		args = append(args, filter.PromptID)
	}
	if filter.ErrorCode != "" {
		conds = append(conds, "error_code = ?")
		args = append(args, filter.ErrorCode)
	}
	if len(filter.IDs) > 0 {
		placeholders := make([]string, len(filter.IDs))
		for i, id := range filter.IDs {
			placeholders[i] = "?"
			args = append(args, id)
		}
		conds = append(conds, fmt.Sprintf("id IN (%s)", strings.Join(placeholders, ", ")))
	}

	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

func marshalJSON(v any) string {
	if v == nil {
		return ""
	}
	data, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	s := string(data)
	if s == "null" {
		return ""
	}
	return s
}

func unmarshalJSON[T any](s string, dst *T) {
	if s == "" {
		return
	}
	_ = json.Unmarshal([]byte(s), dst)
}

var _ store.ExperienceStore = (*Database)(nil)
