package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/jmoiron/sqlx/types"

	"github.com/slotwise/slotwise-api/internal/models"
)

// RunRepository persists versioned schedule runs.
type RunRepository struct {
	db *sqlx.DB
}

// NewRunRepository constructs repository.
func NewRunRepository(db *sqlx.DB) *RunRepository {
	return &RunRepository{db: db}
}

func (r *RunRepository) exec(exec sqlx.ExtContext) sqlx.ExtContext {
	if exec != nil {
		return exec
	}
	return r.db
}

// CreateVersioned inserts a run assigning the next version for its room.
func (r *RunRepository) CreateVersioned(ctx context.Context, exec sqlx.ExtContext, run *models.ScheduleRun) error {
	if run == nil {
		return fmt.Errorf("run payload is nil")
	}
	if run.RoomID == "" {
		return fmt.Errorf("room_id is required")
	}
	if run.ID == "" {
		run.ID = uuid.NewString()
	}
	if run.Status == "" {
		run.Status = models.ScheduleRunStatusDraft
	}
	if len(run.Meta) == 0 {
		run.Meta = types.JSONText(`{}`)
	}
	now := time.Now().UTC()
	if run.CreatedAt.IsZero() {
		run.CreatedAt = now
	}
	run.UpdatedAt = now

	target := r.exec(exec)

	const nextVersionQuery = `SELECT COALESCE(MAX(version), 0) + 1 FROM schedule_runs WHERE room_id = $1`
	if err := sqlx.GetContext(ctx, target, &run.Version, nextVersionQuery, run.RoomID); err != nil {
		return fmt.Errorf("compute next schedule run version: %w", err)
	}

	const insertQuery = `
INSERT INTO schedule_runs (id, room_id, version, status, week_start, num_weeks, meta, created_at, updated_at)
VALUES (:id, :room_id, :version, :status, :week_start, :num_weeks, :meta, :created_at, :updated_at)`
	if _, err := sqlx.NamedExecContext(ctx, target, insertQuery, run); err != nil {
		return fmt.Errorf("insert schedule run: %w", err)
	}
	return nil
}

// FindByID loads a run by its identifier.
func (r *RunRepository) FindByID(ctx context.Context, id string) (*models.ScheduleRun, error) {
	const query = `SELECT id, room_id, version, status, week_start, num_weeks, meta, created_at, updated_at
FROM schedule_runs WHERE id = $1`
	var run models.ScheduleRun
	if err := r.db.GetContext(ctx, &run, query, id); err != nil {
		return nil, err
	}
	return &run, nil
}

// ListByRoom returns all versions for the provided room, newest first.
func (r *RunRepository) ListByRoom(ctx context.Context, roomID string) ([]models.ScheduleRun, error) {
	const query = `SELECT id, room_id, version, status, week_start, num_weeks, meta, created_at, updated_at
FROM schedule_runs WHERE room_id = $1 ORDER BY version DESC`
	var runs []models.ScheduleRun
	if err := r.db.SelectContext(ctx, &runs, query, roomID); err != nil {
		return nil, fmt.Errorf("list schedule runs: %w", err)
	}
	return runs, nil
}

// FindPublishedByRoom returns the room's currently published run, if any.
func (r *RunRepository) FindPublishedByRoom(ctx context.Context, roomID string) (*models.ScheduleRun, error) {
	const query = `SELECT id, room_id, version, status, week_start, num_weeks, meta, created_at, updated_at
FROM schedule_runs WHERE room_id = $1 AND status = 'PUBLISHED' ORDER BY version DESC LIMIT 1`
	var run models.ScheduleRun
	if err := r.db.GetContext(ctx, &run, query, roomID); err != nil {
		return nil, err
	}
	return &run, nil
}

// UpdateStatus updates the lifecycle status of a run.
func (r *RunRepository) UpdateStatus(ctx context.Context, exec sqlx.ExtContext, id string, status models.ScheduleRunStatus) error {
	target := r.exec(exec)
	const query = `UPDATE schedule_runs SET status = $1, updated_at = $2 WHERE id = $3`
	result, err := target.ExecContext(ctx, query, status, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("update schedule run status: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("schedule run status rows affected: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// ArchivePublished demotes any published run of the room to ARCHIVED.
func (r *RunRepository) ArchivePublished(ctx context.Context, exec sqlx.ExtContext, roomID string) error {
	target := r.exec(exec)
	const query = `UPDATE schedule_runs SET status = 'ARCHIVED', updated_at = $1 WHERE room_id = $2 AND status = 'PUBLISHED'`
	if _, err := target.ExecContext(ctx, query, time.Now().UTC(), roomID); err != nil {
		return fmt.Errorf("archive published runs: %w", err)
	}
	return nil
}

// Delete removes a stored run version.
func (r *RunRepository) Delete(ctx context.Context, exec sqlx.ExtContext, id string) error {
	target := r.exec(exec)
	const query = `DELETE FROM schedule_runs WHERE id = $1`
	result, err := target.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("delete schedule run: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("schedule run rows affected: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}
