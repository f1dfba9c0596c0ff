package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/slotwise/slotwise-api/internal/models"
)

// MemberRepository loads room members with their scheduling inputs.
type MemberRepository struct {
	db *sqlx.DB
}

// NewMemberRepository constructs the repository.
func NewMemberRepository(db *sqlx.DB) *MemberRepository {
	return &MemberRepository{db: db}
}

type memberRow struct {
	ID        string          `db:"id"`
	RoomID    string          `db:"room_id"`
	Name      string          `db:"name"`
	Priority  int             `db:"priority"`
	Lat       sql.NullFloat64 `db:"lat"`
	Lng       sql.NullFloat64 `db:"lng"`
	CreatedAt time.Time       `db:"created_at"`
	UpdatedAt time.Time       `db:"updated_at"`
}

// FindByID returns one member without hydrated relations.
func (r *MemberRepository) FindByID(ctx context.Context, id string) (*models.Member, error) {
	const query = `SELECT id, room_id, name, priority, lat, lng, created_at, updated_at FROM members WHERE id = $1`
	var row memberRow
	if err := r.db.GetContext(ctx, &row, query, id); err != nil {
		return nil, err
	}
	m := row.toModel()
	return &m, nil
}

// ListByRoom returns all members of a room with availability, personal time,
// and carry-over history hydrated.
func (r *MemberRepository) ListByRoom(ctx context.Context, roomID string) ([]models.Member, error) {
	const query = `SELECT id, room_id, name, priority, lat, lng, created_at, updated_at
		FROM members WHERE room_id = $1 ORDER BY id`
	var rows []memberRow
	if err := r.db.SelectContext(ctx, &rows, query, roomID); err != nil {
		return nil, err
	}
	members := make([]models.Member, 0, len(rows))
	for _, row := range rows {
		m := row.toModel()
		availability, err := listAvailability(ctx, r.db, "MEMBER", m.ID)
		if err != nil {
			return nil, fmt.Errorf("load availability for member %s: %w", m.ID, err)
		}
		m.Availability = availability

		const blockedQuery = `SELECT id, owner_type, owner_ref, name, kind, day_of_week, date, start_minute, end_minute
			FROM blocked_times WHERE owner_type = 'MEMBER' AND owner_ref = $1 ORDER BY day_of_week, start_minute`
		if err := r.db.SelectContext(ctx, &m.PersonalTimes, blockedQuery, m.ID); err != nil {
			return nil, fmt.Errorf("load personal times for member %s: %w", m.ID, err)
		}

		const carryQuery = `SELECT id, member_id, amount, reason, timestamp
			FROM carry_over_entries WHERE member_id = $1 ORDER BY timestamp`
		if err := r.db.SelectContext(ctx, &m.CarryOverHistory, carryQuery, m.ID); err != nil {
			return nil, fmt.Errorf("load carry-over for member %s: %w", m.ID, err)
		}
		members = append(members, m)
	}
	return members, nil
}

// ReplaceAvailability swaps a member's availability set atomically.
func (r *MemberRepository) ReplaceAvailability(ctx context.Context, tx *sqlx.Tx, memberID string, windows []models.Availability) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM availability WHERE owner_type = 'MEMBER' AND owner_ref = $1`, memberID); err != nil {
		return fmt.Errorf("clear availability: %w", err)
	}
	const insert = `INSERT INTO availability (id, owner_type, owner_ref, kind, day_of_week, date, start_minute, end_minute, priority, created_at)
		VALUES (:id, :owner_type, :owner_ref, :kind, :day_of_week, :date, :start_minute, :end_minute, :priority, :created_at)`
	now := time.Now().UTC()
	for i := range windows {
		windows[i].ID = uuid.NewString()
		windows[i].OwnerType = "MEMBER"
		windows[i].OwnerRef = memberID
		windows[i].CreatedAt = now
		if _, err := tx.NamedExecContext(ctx, insert, windows[i]); err != nil {
			return fmt.Errorf("insert availability: %w", err)
		}
	}
	return nil
}

// AppendCarryOver records deficit entries produced by a run.
func (r *MemberRepository) AppendCarryOver(ctx context.Context, tx *sqlx.Tx, entries []models.CarryOverEntry) error {
	const insert = `INSERT INTO carry_over_entries (id, member_id, amount, reason, timestamp)
		VALUES (:id, :member_id, :amount, :reason, :timestamp)`
	for i := range entries {
		if entries[i].ID == "" {
			entries[i].ID = uuid.NewString()
		}
		if _, err := tx.NamedExecContext(ctx, insert, entries[i]); err != nil {
			return fmt.Errorf("insert carry-over entry: %w", err)
		}
	}
	return nil
}

func (row memberRow) toModel() models.Member {
	m := models.Member{
		ID:        row.ID,
		RoomID:    row.RoomID,
		Name:      row.Name,
		Priority:  row.Priority,
		CreatedAt: row.CreatedAt,
		UpdatedAt: row.UpdatedAt,
	}
	if row.Lat.Valid && row.Lng.Valid {
		m.Location = &models.Coordinates{Lat: row.Lat.Float64, Lng: row.Lng.Float64}
	}
	return m
}
