package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/slotwise/slotwise-api/internal/models"
)

// SlotRepository persists the concrete slots a run produced.
type SlotRepository struct {
	db *sqlx.DB
}

// NewSlotRepository constructs repository.
func NewSlotRepository(db *sqlx.DB) *SlotRepository {
	return &SlotRepository{db: db}
}

func (r *SlotRepository) exec(exec sqlx.ExtContext) sqlx.ExtContext {
	if exec != nil {
		return exec
	}
	return r.db
}

// UpsertBatch writes a run's slots inside the caller's transaction.
func (r *SlotRepository) UpsertBatch(ctx context.Context, exec sqlx.ExtContext, slots []models.ScheduleSlot) error {
	target := r.exec(exec)
	const query = `INSERT INTO schedule_slots (id, run_id, room_id, member_id, date, start_minute, end_minute, created_at)
		VALUES (:id, :run_id, :room_id, :member_id, :date, :start_minute, :end_minute, :created_at)
		ON CONFLICT (run_id, member_id, date, start_minute)
		DO UPDATE SET end_minute = EXCLUDED.end_minute`
	now := time.Now().UTC()
	for i := range slots {
		if slots[i].ID == "" {
			slots[i].ID = uuid.NewString()
		}
		slots[i].CreatedAt = now
		if _, err := sqlx.NamedExecContext(ctx, target, query, slots[i]); err != nil {
			return fmt.Errorf("upsert schedule slot: %w", err)
		}
	}
	return nil
}

// ListByRun returns all slots of a run in calendar order.
func (r *SlotRepository) ListByRun(ctx context.Context, runID string) ([]models.ScheduleSlot, error) {
	const query = `SELECT id, run_id, room_id, member_id, date, start_minute, end_minute, created_at
		FROM schedule_slots WHERE run_id = $1 ORDER BY date, start_minute, member_id`
	var slots []models.ScheduleSlot
	if err := r.db.SelectContext(ctx, &slots, query, runID); err != nil {
		return nil, err
	}
	return slots, nil
}

// ListPublishedByRoomWeek returns slots of the room's published run overlapping [from, to).
func (r *SlotRepository) ListPublishedByRoomWeek(ctx context.Context, roomID string, from, to time.Time) ([]models.ScheduleSlot, error) {
	const query = `SELECT s.id, s.run_id, s.room_id, s.member_id, s.date, s.start_minute, s.end_minute, s.created_at
		FROM schedule_slots s
		JOIN schedule_runs r ON r.id = s.run_id
		WHERE s.room_id = $1 AND r.status = 'PUBLISHED' AND s.date >= $2 AND s.date < $3
		ORDER BY s.date, s.start_minute, s.member_id`
	var slots []models.ScheduleSlot
	if err := r.db.SelectContext(ctx, &slots, query, roomID, from, to); err != nil {
		return nil, err
	}
	return slots, nil
}

// DeleteByRun removes a run's slots inside the caller's transaction.
func (r *SlotRepository) DeleteByRun(ctx context.Context, exec sqlx.ExtContext, runID string) error {
	target := r.exec(exec)
	if _, err := target.ExecContext(ctx, `DELETE FROM schedule_slots WHERE run_id = $1`, runID); err != nil {
		return fmt.Errorf("delete slots for run: %w", err)
	}
	return nil
}
