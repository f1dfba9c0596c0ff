package dto

import (
	"time"

	"github.com/slotwise/slotwise-api/internal/models"
	"github.com/slotwise/slotwise-api/internal/scheduler"
)

// GenerateRunRequest asks the engine to build a schedule for a room starting
// at the given week.
type GenerateRunRequest struct {
	RoomID    string    `json:"roomId" validate:"required"`
	WeekStart time.Time `json:"weekStart" validate:"required"`
}

// RunResponse returns the persisted run together with the engine outcome.
type RunResponse struct {
	RunID        string                             `json:"runId"`
	Version      int                                `json:"version"`
	Status       models.ScheduleRunStatus           `json:"status"`
	Assignments  map[string]*models.Assignment      `json:"assignments"`
	CarryOver    map[string][]models.CarryOverEntry `json:"carryOverAssignments"`
	Unassigned   []models.UnassignedMemberInfo      `json:"unassignedMembersInfo"`
	Negotiations []scheduler.Negotiation            `json:"negotiations"`
	Stats        scheduler.RunStats                 `json:"stats"`
}

// RunQuery filters run listings by room.
type RunQuery struct {
	RoomID string `form:"roomId" json:"roomId"`
}

// AvailabilityWindow is the API shape for one declared preference window.
type AvailabilityWindow struct {
	Kind        string     `json:"kind" validate:"required,oneof=RECURRING DATED"`
	DayOfWeek   int        `json:"dayOfWeek" validate:"omitempty,min=0,max=6"`
	Date        *time.Time `json:"date,omitempty"`
	StartMinute int        `json:"startMinute" validate:"min=0,max=1440"`
	EndMinute   int        `json:"endMinute" validate:"min=0,max=1440"`
	Priority    int        `json:"priority" validate:"required,min=1,max=10"`
}

// ReplaceAvailabilityRequest swaps a member's full availability set.
type ReplaceAvailabilityRequest struct {
	Windows []AvailabilityWindow `json:"windows" validate:"required,dive"`
}

// ExportRequest triggers generation of a downloadable schedule grid.
type ExportRequest struct {
	RunID  string `json:"runId" validate:"required"`
	Format string `json:"format" validate:"required,oneof=csv pdf"`
}

// ExportResponse acknowledges a queued export.
type ExportResponse struct {
	JobID    string    `json:"jobId"`
	Token    string    `json:"token,omitempty"`
	ExpireAt time.Time `json:"expireAt,omitempty"`
}
