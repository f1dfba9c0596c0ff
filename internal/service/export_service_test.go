package service

import (
	"context"
	"database/sql"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/slotwise/slotwise-api/internal/models"
	"github.com/slotwise/slotwise-api/pkg/storage"
)

type exportRunStub struct{}

func (exportRunStub) FindByID(ctx context.Context, id string) (*models.ScheduleRun, error) {
	if id == "run-missing" {
		return nil, sql.ErrNoRows
	}
	return &models.ScheduleRun{
		ID:        id,
		RoomID:    "room-1",
		Version:   2,
		Status:    models.ScheduleRunStatusPublished,
		WeekStart: time.Date(2025, 3, 3, 0, 0, 0, 0, time.UTC),
		NumWeeks:  1,
	}, nil
}

type exportSlotStub struct{}

func (exportSlotStub) ListByRun(ctx context.Context, runID string) ([]models.ScheduleSlot, error) {
	return []models.ScheduleSlot{
		{RunID: runID, RoomID: "room-1", MemberID: "member-1", Date: time.Date(2025, 3, 3, 0, 0, 0, 0, time.UTC), StartMinute: 540, EndMinute: 660},
		{RunID: runID, RoomID: "room-1", MemberID: "member-2", Date: time.Date(2025, 3, 4, 0, 0, 0, 0, time.UTC), StartMinute: 600, EndMinute: 720},
	}, nil
}

type exportMemberStub struct{}

func (exportMemberStub) ListByRoom(ctx context.Context, roomID string) ([]models.Member, error) {
	return []models.Member{
		{ID: "member-1", RoomID: roomID, Name: "Ana"},
		{ID: "member-2", RoomID: roomID, Name: "Ben"},
	}, nil
}

func newExportServiceForTest(t *testing.T) (*ExportService, *storage.LocalStorage) {
	t.Helper()
	dir := t.TempDir()
	store, err := storage.NewLocalStorage(dir)
	require.NoError(t, err)
	signer := storage.NewSignedURLSigner("secret", time.Hour)
	cfg := ExportConfig{APIPrefix: "/api/v1", ResultTTL: time.Hour}
	svc := NewExportService(exportRunStub{}, exportSlotStub{}, exportMemberStub{}, store, signer, cfg, nil, zap.NewNop())
	return svc, store
}

func TestExportServiceGenerateCSV(t *testing.T) {
	svc, store := newExportServiceForTest(t)

	status, err := svc.generate(context.Background(), "job-1", exportJobPayload{RunID: "run-1", Format: "csv"})
	require.NoError(t, err)
	assert.Equal(t, ExportJobCompleted, status.State)
	assert.NotEmpty(t, status.Token)
	assert.Contains(t, status.URL, "/exports/")

	jobID, relPath, _, err := svc.ParseToken(status.Token, false)
	require.NoError(t, err)
	assert.Equal(t, "job-1", jobID)

	info, err := os.Stat(store.Path(relPath))
	require.NoError(t, err)
	assert.Greater(t, info.Size(), int64(0))
}

func TestExportServiceGeneratePDF(t *testing.T) {
	svc, store := newExportServiceForTest(t)

	status, err := svc.generate(context.Background(), "job-2", exportJobPayload{RunID: "run-1", Format: "pdf"})
	require.NoError(t, err)
	assert.Equal(t, "pdf", status.Format)

	_, relPath, _, err := svc.ParseToken(status.Token, false)
	require.NoError(t, err)
	info, err := os.Stat(store.Path(relPath))
	require.NoError(t, err)
	assert.Greater(t, info.Size(), int64(0))
}

func TestExportServiceGenerateUnknownFormat(t *testing.T) {
	svc, _ := newExportServiceForTest(t)

	_, err := svc.generate(context.Background(), "job-3", exportJobPayload{RunID: "run-1", Format: "xlsx"})
	require.Error(t, err)
}

func TestExportServiceStatusLifecycle(t *testing.T) {
	svc, _ := newExportServiceForTest(t)

	svc.setStatus(&ExportJobStatus{JobID: "job-4", State: ExportJobQueued, Format: "csv"})
	status, err := svc.Status("job-4")
	require.NoError(t, err)
	assert.Equal(t, ExportJobQueued, status.State)

	svc.failJob("job-4", "boom")
	status, err = svc.Status("job-4")
	require.NoError(t, err)
	assert.Equal(t, ExportJobFailed, status.State)
	assert.Equal(t, "boom", status.Error)

	_, err = svc.Status("unknown")
	require.Error(t, err)
}
