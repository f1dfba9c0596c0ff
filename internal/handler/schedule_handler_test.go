package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/slotwise/slotwise-api/internal/dto"
	"github.com/slotwise/slotwise-api/internal/models"
	appErrors "github.com/slotwise/slotwise-api/pkg/errors"
)

type scheduleRunnerMock struct {
	generateResp *dto.RunResponse
	generateErr  error
	listResp     []models.ScheduleRun
	slotsResp    []models.ScheduleSlot
	publishErr   error
	deleteErr    error
}

func (m *scheduleRunnerMock) Generate(ctx context.Context, req dto.GenerateRunRequest) (*dto.RunResponse, error) {
	return m.generateResp, m.generateErr
}

func (m *scheduleRunnerMock) Publish(ctx context.Context, runID string) error {
	return m.publishErr
}

func (m *scheduleRunnerMock) List(ctx context.Context, query dto.RunQuery) ([]models.ScheduleRun, error) {
	return m.listResp, nil
}

func (m *scheduleRunnerMock) GetSlots(ctx context.Context, runID string) ([]models.ScheduleSlot, error) {
	return m.slotsResp, nil
}

func (m *scheduleRunnerMock) Delete(ctx context.Context, runID string) error {
	return m.deleteErr
}

func newGinContext(method, path string, body []byte) (*gin.Context, *httptest.ResponseRecorder) {
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req, _ := http.NewRequest(method, path, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	c.Request = req
	return c, w
}

func TestScheduleRunHandlerGenerate(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mockSvc := &scheduleRunnerMock{
		generateResp: &dto.RunResponse{RunID: "run-1", Version: 1, Status: models.ScheduleRunStatusDraft},
	}
	handler := &ScheduleRunHandler{service: mockSvc}

	payload, _ := json.Marshal(dto.GenerateRunRequest{RoomID: "room-1", WeekStart: time.Date(2025, 3, 3, 0, 0, 0, 0, time.UTC)})
	c, w := newGinContext(http.MethodPost, "/schedules/runs", payload)

	handler.Generate(c)
	require.Equal(t, http.StatusCreated, w.Code)
}

func TestScheduleRunHandlerGenerateBadPayload(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := &ScheduleRunHandler{service: &scheduleRunnerMock{}}

	c, w := newGinContext(http.MethodPost, "/schedules/runs", []byte(`{invalid`))

	handler.Generate(c)
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestScheduleRunHandlerPublishConflict(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mockSvc := &scheduleRunnerMock{publishErr: appErrors.Clone(appErrors.ErrConflict, "only draft runs can be published")}
	handler := &ScheduleRunHandler{service: mockSvc}

	c, w := newGinContext(http.MethodPost, "/schedules/runs/run-1/publish", nil)
	c.Params = gin.Params{{Key: "id", Value: "run-1"}}

	handler.Publish(c)
	require.Equal(t, http.StatusConflict, w.Code)
}

func TestScheduleRunHandlerSlots(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mockSvc := &scheduleRunnerMock{
		slotsResp: []models.ScheduleSlot{{ID: "slot-1", RunID: "run-1", MemberID: "member-1", StartMinute: 540, EndMinute: 600}},
	}
	handler := &ScheduleRunHandler{service: mockSvc}

	c, w := newGinContext(http.MethodGet, "/schedules/runs/run-1/slots", nil)
	c.Params = gin.Params{{Key: "id", Value: "run-1"}}

	handler.Slots(c)
	require.Equal(t, http.StatusOK, w.Code)
}

func TestScheduleRunHandlerDelete(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := &ScheduleRunHandler{service: &scheduleRunnerMock{}}

	c, w := newGinContext(http.MethodDelete, "/schedules/runs/run-1", nil)
	c.Params = gin.Params{{Key: "id", Value: "run-1"}}

	handler.Delete(c)
	c.Writer.WriteHeaderNow()
	require.Equal(t, http.StatusNoContent, w.Code)
}
