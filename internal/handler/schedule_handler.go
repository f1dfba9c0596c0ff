package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/slotwise/slotwise-api/internal/dto"
	"github.com/slotwise/slotwise-api/internal/models"
	"github.com/slotwise/slotwise-api/internal/service"
	appErrors "github.com/slotwise/slotwise-api/pkg/errors"
	"github.com/slotwise/slotwise-api/pkg/response"
)

type scheduleRunner interface {
	Generate(ctx context.Context, req dto.GenerateRunRequest) (*dto.RunResponse, error)
	Publish(ctx context.Context, runID string) error
	List(ctx context.Context, query dto.RunQuery) ([]models.ScheduleRun, error)
	GetSlots(ctx context.Context, runID string) ([]models.ScheduleSlot, error)
	Delete(ctx context.Context, runID string) error
}

// ScheduleRunHandler exposes run lifecycle endpoints.
type ScheduleRunHandler struct {
	service scheduleRunner
}

// NewScheduleRunHandler constructs handler.
func NewScheduleRunHandler(svc *service.ScheduleRunService) *ScheduleRunHandler {
	return &ScheduleRunHandler{service: svc}
}

// Generate runs the engine for a room and stores the outcome as a draft.
func (h *ScheduleRunHandler) Generate(c *gin.Context) {
	var req dto.GenerateRunRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid generate payload"))
		return
	}
	result, err := h.service.Generate(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, result)
}

// List returns run versions for a room.
func (h *ScheduleRunHandler) List(c *gin.Context) {
	query := dto.RunQuery{RoomID: c.Query("roomId")}
	runs, err := h.service.List(c.Request.Context(), query)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, runs, nil)
}

// Slots returns the persisted slots of a run.
func (h *ScheduleRunHandler) Slots(c *gin.Context) {
	slots, err := h.service.GetSlots(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, slots, nil)
}

// Publish promotes a draft run to the room's published schedule.
func (h *ScheduleRunHandler) Publish(c *gin.Context) {
	if err := h.service.Publish(c.Request.Context(), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, gin.H{"status": models.ScheduleRunStatusPublished}, nil)
}

// Delete removes a draft run.
func (h *ScheduleRunHandler) Delete(c *gin.Context) {
	if err := h.service.Delete(c.Request.Context(), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}
