package models

import "time"

// Coordinates is a WGS84 point used for travel-time estimation.
type Coordinates struct {
	Lat float64 `db:"lat" json:"lat"`
	Lng float64 `db:"lng" json:"lng"`
}

// Member is a participant competing for slots in a shared space.
type Member struct {
	ID               string           `db:"id" json:"id"`
	RoomID           string           `db:"room_id" json:"room_id"`
	Name             string           `db:"name" json:"name"`
	Priority         int              `db:"priority" json:"priority"`
	Location         *Coordinates     `json:"location,omitempty"`
	Availability     []Availability   `json:"availability"`
	PersonalTimes    []BlockedTime    `json:"personal_times"`
	CarryOverHistory []CarryOverEntry `json:"carry_over_history"`
	CreatedAt        time.Time        `db:"created_at" json:"created_at"`
	UpdatedAt        time.Time        `db:"updated_at" json:"updated_at"`
}

// Owner is the shared-space owner whose availability bounds every member's.
type Owner struct {
	ID            string         `db:"id" json:"id"`
	Name          string         `db:"name" json:"name"`
	Location      *Coordinates   `json:"location,omitempty"`
	Availability  []Availability `json:"availability"`
	PersonalTimes []BlockedTime  `json:"personal_times"`
}
