package repository

import (
	"context"
	"database/sql"

	"github.com/jmoiron/sqlx"

	"github.com/slotwise/slotwise-api/internal/models"
)

// RoomRepository loads rooms, their owners, and room-level blocked windows.
type RoomRepository struct {
	db *sqlx.DB
}

// NewRoomRepository constructs the repository.
func NewRoomRepository(db *sqlx.DB) *RoomRepository {
	return &RoomRepository{db: db}
}

type roomRow struct {
	ID                string  `db:"id"`
	OwnerID           string  `db:"owner_id"`
	Name              string  `db:"name"`
	ScheduleStartHour int     `db:"schedule_start_hour"`
	ScheduleEndHour   int     `db:"schedule_end_hour"`
	MinHoursPerWeek   float64 `db:"min_hours_per_week"`
	NumWeeks          int     `db:"num_weeks"`
	AssignmentMode    string  `db:"assignment_mode"`
	TransportMode     string  `db:"transport_mode"`
	ClassMinutes      int     `db:"class_minutes"`
}

// FindByID returns a room with its settings and blocked windows hydrated.
func (r *RoomRepository) FindByID(ctx context.Context, id string) (*models.Room, error) {
	const query = `SELECT id, owner_id, name, schedule_start_hour, schedule_end_hour,
		min_hours_per_week, num_weeks, assignment_mode, transport_mode, class_minutes
		FROM rooms WHERE id = $1`
	var row roomRow
	if err := r.db.GetContext(ctx, &row, query, id); err != nil {
		return nil, err
	}
	room := &models.Room{
		ID:      row.ID,
		OwnerID: row.OwnerID,
		Name:    row.Name,
		Settings: models.RoomSettings{
			ScheduleStartHour: row.ScheduleStartHour,
			ScheduleEndHour:   row.ScheduleEndHour,
			MinHoursPerWeek:   row.MinHoursPerWeek,
			NumWeeks:          row.NumWeeks,
			AssignmentMode:    models.AssignmentMode(row.AssignmentMode),
			TransportMode:     models.TransportMode(row.TransportMode),
			ClassMinutes:      row.ClassMinutes,
		},
	}
	blocked, err := r.listBlocked(ctx, "ROOM", id)
	if err != nil {
		return nil, err
	}
	room.Settings.BlockedTimes = blocked
	exceptions, err := r.listBlocked(ctx, "ROOM_EXCEPTION", id)
	if err != nil {
		return nil, err
	}
	room.Settings.Exceptions = exceptions
	return room, nil
}

// FindOwner returns the owner with availability and personal time hydrated.
func (r *RoomRepository) FindOwner(ctx context.Context, ownerID string) (*models.Owner, error) {
	const query = `SELECT id, name, lat, lng FROM owners WHERE id = $1`
	var row struct {
		ID   string          `db:"id"`
		Name string          `db:"name"`
		Lat  sql.NullFloat64 `db:"lat"`
		Lng  sql.NullFloat64 `db:"lng"`
	}
	if err := r.db.GetContext(ctx, &row, query, ownerID); err != nil {
		return nil, err
	}
	owner := &models.Owner{ID: row.ID, Name: row.Name}
	if row.Lat.Valid && row.Lng.Valid {
		owner.Location = &models.Coordinates{Lat: row.Lat.Float64, Lng: row.Lng.Float64}
	}
	availability, err := listAvailability(ctx, r.db, "OWNER", ownerID)
	if err != nil {
		return nil, err
	}
	owner.Availability = availability
	personal, err := r.listBlocked(ctx, "OWNER", ownerID)
	if err != nil {
		return nil, err
	}
	owner.PersonalTimes = personal
	return owner, nil
}

func (r *RoomRepository) listBlocked(ctx context.Context, ownerType, ref string) ([]models.BlockedTime, error) {
	const query = `SELECT id, owner_type, owner_ref, name, kind, day_of_week, date, start_minute, end_minute
		FROM blocked_times WHERE owner_type = $1 AND owner_ref = $2 ORDER BY day_of_week, start_minute`
	var out []models.BlockedTime
	if err := r.db.SelectContext(ctx, &out, query, ownerType, ref); err != nil {
		return nil, err
	}
	return out, nil
}

func listAvailability(ctx context.Context, q sqlx.QueryerContext, ownerType, ref string) ([]models.Availability, error) {
	const query = `SELECT id, owner_type, owner_ref, kind, day_of_week, date, start_minute, end_minute, priority, created_at
		FROM availability WHERE owner_type = $1 AND owner_ref = $2 ORDER BY day_of_week, start_minute`
	var out []models.Availability
	if err := sqlx.SelectContext(ctx, q, &out, query, ownerType, ref); err != nil {
		return nil, err
	}
	return out, nil
}
