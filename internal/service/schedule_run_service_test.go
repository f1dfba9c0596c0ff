package service

import (
	"context"
	"database/sql"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/slotwise/slotwise-api/internal/dto"
	"github.com/slotwise/slotwise-api/internal/models"
	"github.com/slotwise/slotwise-api/internal/scheduler"
	appErrors "github.com/slotwise/slotwise-api/pkg/errors"
)

func TestScheduleRunServiceGenerateSuccess(t *testing.T) {
	txProvider, mock := newTxProviderMock(t)
	fixture := newRunServiceFixture(t, runFixtureConfig{tx: txProvider})

	mock.ExpectBegin()
	mock.ExpectCommit()

	resp, err := fixture.service.Generate(context.Background(), dto.GenerateRunRequest{
		RoomID:    "room-1",
		WeekStart: time.Date(2025, 3, 3, 0, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	assert.Equal(t, models.ScheduleRunStatusDraft, resp.Status)
	assert.Equal(t, 1, resp.Version)
	assert.Len(t, resp.Assignments, 1)
	require.Len(t, fixture.slots.items["run-stub-1"], 2)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestScheduleRunServiceGenerateRoomMissing(t *testing.T) {
	fixture := newRunServiceFixture(t, runFixtureConfig{roomMissing: true})

	_, err := fixture.service.Generate(context.Background(), dto.GenerateRunRequest{
		RoomID:    "room-x",
		WeekStart: time.Date(2025, 3, 3, 0, 0, 0, 0, time.UTC),
	})
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErr.Code)
}

func TestScheduleRunServiceGenerateNoMembers(t *testing.T) {
	fixture := newRunServiceFixture(t, runFixtureConfig{noMembers: true})

	_, err := fixture.service.Generate(context.Background(), dto.GenerateRunRequest{
		RoomID:    "room-1",
		WeekStart: time.Date(2025, 3, 3, 0, 0, 0, 0, time.UTC),
	})
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrPreconditionFailed.Code, appErr.Code)
}

func TestScheduleRunServiceGenerateNormalisesWeekStart(t *testing.T) {
	txProvider, mock := newTxProviderMock(t)
	fixture := newRunServiceFixture(t, runFixtureConfig{tx: txProvider})

	mock.ExpectBegin()
	mock.ExpectCommit()

	monday := time.Date(2025, 3, 3, 0, 0, 0, 0, time.UTC)
	resp, err := fixture.service.Generate(context.Background(), dto.GenerateRunRequest{
		RoomID:    "room-1",
		WeekStart: monday.AddDate(0, 0, 2),
	})
	require.NoError(t, err)

	// The published-slot window and the persisted run line up with the
	// Monday the engine schedules against, not the raw request date.
	assert.True(t, fixture.slots.from.Equal(monday))
	assert.True(t, fixture.slots.to.Equal(monday.AddDate(0, 0, 7)))
	require.Len(t, fixture.runs.items, 1)
	assert.True(t, fixture.runs.items[0].WeekStart.Equal(monday))
	require.Contains(t, resp.Assignments, "member-1")
	require.NotEmpty(t, resp.Assignments["member-1"].Slots)
	assert.True(t, resp.Assignments["member-1"].Slots[0].Date.Equal(monday))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestScheduleRunServicePublishDraft(t *testing.T) {
	txProvider, mock := newTxProviderMock(t)
	fixture := newRunServiceFixture(t, runFixtureConfig{tx: txProvider})
	fixture.runs.items = []models.ScheduleRun{{ID: "run-1", RoomID: "room-1", Status: models.ScheduleRunStatusDraft}}

	mock.ExpectBegin()
	mock.ExpectCommit()

	require.NoError(t, fixture.service.Publish(context.Background(), "run-1"))
	assert.Equal(t, models.ScheduleRunStatusPublished, fixture.runs.items[0].Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestScheduleRunServicePublishRejectsPublished(t *testing.T) {
	fixture := newRunServiceFixture(t, runFixtureConfig{})
	fixture.runs.items = []models.ScheduleRun{{ID: "run-1", RoomID: "room-1", Status: models.ScheduleRunStatusPublished}}

	err := fixture.service.Publish(context.Background(), "run-1")
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErr.Code)
}

func TestScheduleRunServiceDeleteRejectsPublished(t *testing.T) {
	fixture := newRunServiceFixture(t, runFixtureConfig{})
	fixture.runs.items = []models.ScheduleRun{{ID: "run-1", RoomID: "room-1", Status: models.ScheduleRunStatusPublished}}

	err := fixture.service.Delete(context.Background(), "run-1")
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErr.Code)
}

func TestScheduleRunServiceDeleteDraft(t *testing.T) {
	txProvider, mock := newTxProviderMock(t)
	fixture := newRunServiceFixture(t, runFixtureConfig{tx: txProvider})
	fixture.runs.items = []models.ScheduleRun{{ID: "run-1", RoomID: "room-1", Status: models.ScheduleRunStatusDraft}}

	mock.ExpectBegin()
	mock.ExpectCommit()

	require.NoError(t, fixture.service.Delete(context.Background(), "run-1"))
	assert.Empty(t, fixture.runs.items)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestScheduleRunServiceListRequiresRoom(t *testing.T) {
	fixture := newRunServiceFixture(t, runFixtureConfig{})

	_, err := fixture.service.List(context.Background(), dto.RunQuery{})
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErr.Code)
}

// --- Fixtures ---

type runFixtureConfig struct {
	tx          txProvider
	roomMissing bool
	noMembers   bool
}

type runServiceFixture struct {
	service *ScheduleRunService
	runs    *runRepoStub
	slots   *slotRepoStub
	members *memberRepoStub
}

func newRunServiceFixture(t *testing.T, cfg runFixtureConfig) *runServiceFixture {
	t.Helper()
	rooms := roomRepoStub{missing: cfg.roomMissing}
	members := &memberRepoStub{empty: cfg.noMembers}
	runs := &runRepoStub{}
	slots := &slotRepoStub{}
	tx := cfg.tx
	if tx == nil {
		tx = noopTxProvider{}
	}
	service := NewScheduleRunService(rooms, members, runs, slots, engineStub{}, tx, nil, nil, zap.NewNop())
	return &runServiceFixture{service: service, runs: runs, slots: slots, members: members}
}

type roomRepoStub struct {
	missing bool
}

func (s roomRepoStub) FindByID(ctx context.Context, id string) (*models.Room, error) {
	if s.missing {
		return nil, sql.ErrNoRows
	}
	return &models.Room{
		ID:      id,
		OwnerID: "owner-1",
		Settings: models.RoomSettings{
			ScheduleStartHour: 9,
			ScheduleEndHour:   17,
			MinHoursPerWeek:   2,
			NumWeeks:          1,
		},
	}, nil
}

func (s roomRepoStub) FindOwner(ctx context.Context, ownerID string) (*models.Owner, error) {
	return &models.Owner{ID: ownerID, Name: "Owner"}, nil
}

type memberRepoStub struct {
	empty     bool
	carryOver []models.CarryOverEntry
}

func (s *memberRepoStub) ListByRoom(ctx context.Context, roomID string) ([]models.Member, error) {
	if s.empty {
		return nil, nil
	}
	return []models.Member{{ID: "member-1", RoomID: roomID, Name: "Member One"}}, nil
}

func (s *memberRepoStub) AppendCarryOver(ctx context.Context, tx *sqlx.Tx, entries []models.CarryOverEntry) error {
	s.carryOver = append(s.carryOver, entries...)
	return nil
}

type runRepoStub struct {
	items []models.ScheduleRun
}

func (s *runRepoStub) CreateVersioned(ctx context.Context, exec sqlx.ExtContext, run *models.ScheduleRun) error {
	run.ID = stubRunID(len(s.items) + 1)
	run.Version = len(s.items) + 1
	s.items = append(s.items, *run)
	return nil
}

func (s *runRepoStub) FindByID(ctx context.Context, id string) (*models.ScheduleRun, error) {
	for _, item := range s.items {
		if item.ID == id {
			return &item, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (s *runRepoStub) ListByRoom(ctx context.Context, roomID string) ([]models.ScheduleRun, error) {
	return s.items, nil
}

func (s *runRepoStub) UpdateStatus(ctx context.Context, exec sqlx.ExtContext, id string, status models.ScheduleRunStatus) error {
	for idx := range s.items {
		if s.items[idx].ID == id {
			s.items[idx].Status = status
			return nil
		}
	}
	return sql.ErrNoRows
}

func (s *runRepoStub) ArchivePublished(ctx context.Context, exec sqlx.ExtContext, roomID string) error {
	for idx := range s.items {
		if s.items[idx].RoomID == roomID && s.items[idx].Status == models.ScheduleRunStatusPublished {
			s.items[idx].Status = models.ScheduleRunStatusArchived
		}
	}
	return nil
}

func (s *runRepoStub) Delete(ctx context.Context, exec sqlx.ExtContext, id string) error {
	for idx, item := range s.items {
		if item.ID == id {
			s.items = append(s.items[:idx], s.items[idx+1:]...)
			return nil
		}
	}
	return sql.ErrNoRows
}

type slotRepoStub struct {
	items map[string][]models.ScheduleSlot
	from  time.Time
	to    time.Time
}

func (s *slotRepoStub) UpsertBatch(ctx context.Context, exec sqlx.ExtContext, slots []models.ScheduleSlot) error {
	if s.items == nil {
		s.items = make(map[string][]models.ScheduleSlot)
	}
	for _, slot := range slots {
		s.items[slot.RunID] = append(s.items[slot.RunID], slot)
	}
	return nil
}

func (s *slotRepoStub) ListByRun(ctx context.Context, runID string) ([]models.ScheduleSlot, error) {
	return s.items[runID], nil
}

func (s *slotRepoStub) ListPublishedByRoomWeek(ctx context.Context, roomID string, from, to time.Time) ([]models.ScheduleSlot, error) {
	s.from = from
	s.to = to
	return nil, nil
}

func (s *slotRepoStub) DeleteByRun(ctx context.Context, exec sqlx.ExtContext, runID string) error {
	delete(s.items, runID)
	return nil
}

type engineStub struct{}

func (engineStub) Run(ctx context.Context, in scheduler.Input) (*scheduler.Result, error) {
	day := in.WeekStart
	return &scheduler.Result{
		Assignments: map[string]*models.Assignment{
			"member-1": {
				MemberID:      "member-1",
				AssignedSlots: 4,
				RequiredSlots: 4,
				Slots: []models.AssignedSlot{
					{Date: day, DayOfWeek: day.Weekday(), StartMinute: 540, EndMinute: 600},
					{Date: day.AddDate(0, 0, 1), DayOfWeek: day.AddDate(0, 0, 1).Weekday(), StartMinute: 540, EndMinute: 600},
				},
			},
		},
		CarryOver: map[string][]models.CarryOverEntry{},
		Stats:     scheduler.RunStats{Weeks: 1},
	}, nil
}

type noopTxProvider struct{}

func (noopTxProvider) BeginTxx(ctx context.Context, opts *sql.TxOptions) (*sqlx.Tx, error) {
	return nil, appErrors.Clone(appErrors.ErrInternal, "transaction provider unavailable")
}

type txProviderMock struct {
	db *sqlx.DB
}

func newTxProviderMock(t *testing.T) (txProvider, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	sqlxdb := sqlx.NewDb(db, "sqlmock")
	t.Cleanup(func() { db.Close() })
	return &txProviderMock{db: sqlxdb}, mock
}

func (t *txProviderMock) BeginTxx(ctx context.Context, opts *sql.TxOptions) (*sqlx.Tx, error) {
	return t.db.BeginTxx(ctx, opts)
}

func stubRunID(v int) string {
	switch v {
	case 1:
		return "run-stub-1"
	default:
		return "run-stub-n"
	}
}
