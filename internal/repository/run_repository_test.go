package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/jmoiron/sqlx/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/slotwise/slotwise-api/internal/models"
)

func newRunRepoMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

func TestRunRepositoryCreateVersioned(t *testing.T) {
	db, mock, cleanup := newRunRepoMock(t)
	defer cleanup()
	repo := NewRunRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT COALESCE(MAX(version), 0) + 1 FROM schedule_runs WHERE room_id = $1")).
		WithArgs("room-1").
		WillReturnRows(sqlmock.NewRows([]string{"next"}).AddRow(3))

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO schedule_runs")).
		WithArgs(sqlmock.AnyArg(), "room-1", 3, string(models.ScheduleRunStatusDraft), sqlmock.AnyArg(), 2, sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	payload := &models.ScheduleRun{
		RoomID:    "room-1",
		WeekStart: time.Date(2025, 3, 3, 0, 0, 0, 0, time.UTC),
		NumWeeks:  2,
		Meta:      types.JSONText(`{"conflict_blocks":1}`),
	}
	err := repo.CreateVersioned(context.Background(), nil, payload)
	require.NoError(t, err)
	assert.Equal(t, 3, payload.Version)
	assert.NotEmpty(t, payload.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRunRepositoryCreateVersionedMissingRoom(t *testing.T) {
	db, _, cleanup := newRunRepoMock(t)
	defer cleanup()
	repo := NewRunRepository(db)

	err := repo.CreateVersioned(context.Background(), nil, &models.ScheduleRun{})
	assert.Error(t, err)
}

func TestRunRepositoryListByRoom(t *testing.T) {
	db, mock, cleanup := newRunRepoMock(t)
	defer cleanup()
	repo := NewRunRepository(db)

	rows := sqlmock.NewRows([]string{"id", "room_id", "version", "status", "week_start", "num_weeks", "meta", "created_at", "updated_at"}).
		AddRow("run-2", "room-1", 2, string(models.ScheduleRunStatusDraft), time.Now(), 1, types.JSONText(`{}`), time.Now(), time.Now()).
		AddRow("run-1", "room-1", 1, string(models.ScheduleRunStatusPublished), time.Now(), 1, types.JSONText(`{}`), time.Now(), time.Now())
	mock.ExpectQuery("SELECT id, room_id, version, status, week_start, num_weeks, meta, created_at, updated_at").
		WithArgs("room-1").
		WillReturnRows(rows)

	list, err := repo.ListByRoom(context.Background(), "room-1")
	require.NoError(t, err)
	assert.Len(t, list, 2)
	assert.Equal(t, 2, list[0].Version)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRunRepositoryUpdateStatus(t *testing.T) {
	db, mock, cleanup := newRunRepoMock(t)
	defer cleanup()
	repo := NewRunRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE schedule_runs SET status = $1, updated_at = $2 WHERE id = $3")).
		WithArgs(string(models.ScheduleRunStatusPublished), sqlmock.AnyArg(), "run-1").
		WillReturnResult(sqlmock.NewResult(1, 1))

	err := repo.UpdateStatus(context.Background(), nil, "run-1", models.ScheduleRunStatusPublished)
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRunRepositoryUpdateStatusNotFound(t *testing.T) {
	db, mock, cleanup := newRunRepoMock(t)
	defer cleanup()
	repo := NewRunRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE schedule_runs SET status = $1, updated_at = $2 WHERE id = $3")).
		WithArgs(string(models.ScheduleRunStatusArchived), sqlmock.AnyArg(), "run-missing").
		WillReturnResult(sqlmock.NewResult(1, 0))

	err := repo.UpdateStatus(context.Background(), nil, "run-missing", models.ScheduleRunStatusArchived)
	assert.ErrorIs(t, err, sql.ErrNoRows)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRunRepositoryDelete(t *testing.T) {
	db, mock, cleanup := newRunRepoMock(t)
	defer cleanup()
	repo := NewRunRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM schedule_runs WHERE id = $1")).
		WithArgs("run-1").
		WillReturnResult(sqlmock.NewResult(1, 1))

	require.NoError(t, repo.Delete(context.Background(), nil, "run-1"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRunRepositoryDeleteNotFound(t *testing.T) {
	db, mock, cleanup := newRunRepoMock(t)
	defer cleanup()
	repo := NewRunRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM schedule_runs WHERE id = $1")).
		WithArgs("run-1").
		WillReturnResult(sqlmock.NewResult(1, 0))

	err := repo.Delete(context.Background(), nil, "run-1")
	assert.ErrorIs(t, err, sql.ErrNoRows)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSlotRepositoryUpsertBatch(t *testing.T) {
	db, mock, cleanup := newRunRepoMock(t)
	defer cleanup()
	repo := NewSlotRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO schedule_slots")).
		WithArgs(sqlmock.AnyArg(), "run-1", "room-1", "member-1", sqlmock.AnyArg(), 540, 600, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	slots := []models.ScheduleSlot{{
		RunID:       "run-1",
		RoomID:      "room-1",
		MemberID:    "member-1",
		Date:        time.Date(2025, 3, 3, 0, 0, 0, 0, time.UTC),
		StartMinute: 540,
		EndMinute:   600,
	}}
	err := repo.UpsertBatch(context.Background(), nil, slots)
	require.NoError(t, err)
	assert.NotEmpty(t, slots[0].ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSlotRepositoryListByRun(t *testing.T) {
	db, mock, cleanup := newRunRepoMock(t)
	defer cleanup()
	repo := NewSlotRepository(db)

	rows := sqlmock.NewRows([]string{"id", "run_id", "room_id", "member_id", "date", "start_minute", "end_minute", "created_at"}).
		AddRow("slot-1", "run-1", "room-1", "member-1", time.Now(), 540, 600, time.Now()).
		AddRow("slot-2", "run-1", "room-1", "member-2", time.Now(), 600, 660, time.Now())
	mock.ExpectQuery("SELECT id, run_id, room_id, member_id, date, start_minute, end_minute, created_at").
		WithArgs("run-1").
		WillReturnRows(rows)

	list, err := repo.ListByRun(context.Background(), "run-1")
	require.NoError(t, err)
	assert.Len(t, list, 2)
	assert.NoError(t, mock.ExpectationsWereMet())
}
