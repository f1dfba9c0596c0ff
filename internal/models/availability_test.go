package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testMonday = time.Date(2026, time.March, 2, 0, 0, 0, 0, time.UTC)

func TestAvailabilityValidate(t *testing.T) {
	tests := []struct {
		name    string
		window  Availability
		wantErr string
	}{
		{
			name:   "valid recurring",
			window: NewRecurring(time.Monday, 540, 660, 1),
		},
		{
			name:   "valid dated",
			window: NewDated(testMonday, 540, 660, 1),
		},
		{
			name:    "recurring with date",
			window:  func() Availability { a := NewRecurring(time.Monday, 540, 660, 1); a.Date = &testMonday; return a }(),
			wantErr: "must not carry a date",
		},
		{
			name:    "dated without date",
			window:  Availability{Kind: AvailabilityDated, StartMinute: 540, EndMinute: 660},
			wantErr: "requires a date",
		},
		{
			name:    "weekend recurring",
			window:  NewRecurring(time.Saturday, 540, 660, 1),
			wantErr: "weekend",
		},
		{
			name:    "weekend dated",
			window:  NewDated(testMonday.AddDate(0, 0, 5), 540, 660, 1),
			wantErr: "weekend",
		},
		{
			name:    "off-grid start",
			window:  NewRecurring(time.Monday, 545, 660, 1),
			wantErr: "30-minute grid",
		},
		{
			name:    "inverted window",
			window:  NewRecurring(time.Monday, 660, 540, 1),
			wantErr: "invalid",
		},
		{
			name:    "unknown kind",
			window:  Availability{Kind: "SOMETIMES", StartMinute: 540, EndMinute: 660},
			wantErr: "unknown availability kind",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.window.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestAvailabilityAppliesTo(t *testing.T) {
	recurring := NewRecurring(time.Monday, 540, 660, 1)
	assert.True(t, recurring.AppliesTo(testMonday))
	assert.True(t, recurring.AppliesTo(testMonday.AddDate(0, 0, 7)))
	assert.False(t, recurring.AppliesTo(testMonday.AddDate(0, 0, 1)))

	dated := NewDated(testMonday, 540, 660, 1)
	assert.True(t, dated.AppliesTo(testMonday))
	assert.True(t, dated.AppliesTo(testMonday.Add(13*time.Hour)))
	assert.False(t, dated.AppliesTo(testMonday.AddDate(0, 0, 7)))
}

func TestBlockedTimeCovers(t *testing.T) {
	block := BlockedTime{
		Kind:        AvailabilityRecurring,
		DayOfWeek:   time.Monday,
		StartMinute: 600,
		EndMinute:   660,
	}

	assert.True(t, block.Covers(testMonday, 570, 630))
	assert.True(t, block.Covers(testMonday, 630, 690))
	assert.False(t, block.Covers(testMonday, 540, 600))
	assert.False(t, block.Covers(testMonday, 660, 720))
	assert.False(t, block.Covers(testMonday.AddDate(0, 0, 1), 600, 660))
}

func TestAssignmentDeficit(t *testing.T) {
	a := Assignment{RequiredSlots: 6, AssignedSlots: 4}
	assert.Equal(t, 2, a.Deficit())
	assert.Equal(t, 2.0, a.AssignedHours())

	a.AssignedSlots = 8
	assert.Equal(t, 0, a.Deficit())
}
