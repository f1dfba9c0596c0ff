package models

import "time"

// AssignmentMode selects the allocation policy for a room.
type AssignmentMode string

const (
	AssignmentModeDefault AssignmentMode = "DEFAULT"
	AssignmentModeTransit AssignmentMode = "TRANSIT"
)

// TransportMode is passed through to the directions service.
type TransportMode string

const (
	TransportModeDriving TransportMode = "driving"
	TransportModeTransit TransportMode = "transit"
	TransportModeWalking TransportMode = "walking"
)

// RoomSettings governs one room's scheduling window and policy.
type RoomSettings struct {
	ScheduleStartHour int            `db:"schedule_start_hour" json:"schedule_start_hour"`
	ScheduleEndHour   int            `db:"schedule_end_hour" json:"schedule_end_hour"`
	MinHoursPerWeek   float64        `db:"min_hours_per_week" json:"min_hours_per_week"`
	NumWeeks          int            `db:"num_weeks" json:"num_weeks"`
	AssignmentMode    AssignmentMode `db:"assignment_mode" json:"assignment_mode"`
	TransportMode     TransportMode  `db:"transport_mode" json:"transport_mode"`
	ClassMinutes      int            `db:"class_minutes" json:"class_minutes"`
	BlockedTimes      []BlockedTime  `json:"blocked_times"`
	Exceptions        []BlockedTime  `json:"exceptions"`
}

// Room ties an owner, settings, and members together.
type Room struct {
	ID        string       `db:"id" json:"id"`
	OwnerID   string       `db:"owner_id" json:"owner_id"`
	Name      string       `db:"name" json:"name"`
	Settings  RoomSettings `json:"settings"`
	CreatedAt time.Time    `db:"created_at" json:"created_at"`
	UpdatedAt time.Time    `db:"updated_at" json:"updated_at"`
}
