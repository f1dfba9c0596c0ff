package service

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/slotwise/slotwise-api/internal/dto"
	"github.com/slotwise/slotwise-api/internal/models"
	appErrors "github.com/slotwise/slotwise-api/pkg/errors"
)

type availabilityMemberStub struct {
	missing  bool
	replaced []models.Availability
}

func (s *availabilityMemberStub) FindByID(ctx context.Context, id string) (*models.Member, error) {
	if s.missing {
		return nil, sql.ErrNoRows
	}
	return &models.Member{ID: id, Name: "Member"}, nil
}

func (s *availabilityMemberStub) ReplaceAvailability(ctx context.Context, tx *sqlx.Tx, memberID string, windows []models.Availability) error {
	s.replaced = windows
	return nil
}

func TestAvailabilityServiceReplace(t *testing.T) {
	txProvider, mock := newTxProviderMock(t)
	repo := &availabilityMemberStub{}
	svc := NewAvailabilityService(repo, txProvider, nil, zap.NewNop())

	mock.ExpectBegin()
	mock.ExpectCommit()

	date := time.Date(2025, 3, 5, 0, 0, 0, 0, time.UTC)
	windows, err := svc.Replace(context.Background(), "member-1", dto.ReplaceAvailabilityRequest{
		Windows: []dto.AvailabilityWindow{
			{Kind: "RECURRING", DayOfWeek: 1, StartMinute: 540, EndMinute: 660, Priority: 5},
			{Kind: "DATED", Date: &date, StartMinute: 600, EndMinute: 720, Priority: 3},
		},
	})
	require.NoError(t, err)
	require.Len(t, windows, 2)
	assert.Equal(t, models.AvailabilityRecurring, windows[0].Kind)
	assert.Equal(t, "member-1", windows[0].OwnerRef)
	assert.Equal(t, models.AvailabilityDated, windows[1].Kind)
	require.Len(t, repo.replaced, 2)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAvailabilityServiceReplaceRejectsWeekend(t *testing.T) {
	repo := &availabilityMemberStub{}
	svc := NewAvailabilityService(repo, noopTxProvider{}, nil, zap.NewNop())

	_, err := svc.Replace(context.Background(), "member-1", dto.ReplaceAvailabilityRequest{
		Windows: []dto.AvailabilityWindow{
			{Kind: "RECURRING", DayOfWeek: 6, StartMinute: 540, EndMinute: 660, Priority: 5},
		},
	})
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErr.Code)
}

func TestAvailabilityServiceReplaceDatedRequiresDate(t *testing.T) {
	repo := &availabilityMemberStub{}
	svc := NewAvailabilityService(repo, noopTxProvider{}, nil, zap.NewNop())

	_, err := svc.Replace(context.Background(), "member-1", dto.ReplaceAvailabilityRequest{
		Windows: []dto.AvailabilityWindow{
			{Kind: "DATED", StartMinute: 540, EndMinute: 660, Priority: 5},
		},
	})
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErr.Code)
}

func TestAvailabilityServiceMemberMissing(t *testing.T) {
	repo := &availabilityMemberStub{missing: true}
	svc := NewAvailabilityService(repo, noopTxProvider{}, nil, zap.NewNop())

	_, err := svc.Get(context.Background(), "member-x")
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErr.Code)
}
