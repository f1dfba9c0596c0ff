package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"github.com/jmoiron/sqlx/types"
	"go.uber.org/zap"

	"github.com/slotwise/slotwise-api/internal/dto"
	"github.com/slotwise/slotwise-api/internal/models"
	"github.com/slotwise/slotwise-api/internal/scheduler"
	appErrors "github.com/slotwise/slotwise-api/pkg/errors"
)

type roomReader interface {
	FindByID(ctx context.Context, id string) (*models.Room, error)
	FindOwner(ctx context.Context, ownerID string) (*models.Owner, error)
}

type memberReader interface {
	ListByRoom(ctx context.Context, roomID string) ([]models.Member, error)
	AppendCarryOver(ctx context.Context, tx *sqlx.Tx, entries []models.CarryOverEntry) error
}

type runRepository interface {
	CreateVersioned(ctx context.Context, exec sqlx.ExtContext, run *models.ScheduleRun) error
	FindByID(ctx context.Context, id string) (*models.ScheduleRun, error)
	ListByRoom(ctx context.Context, roomID string) ([]models.ScheduleRun, error)
	UpdateStatus(ctx context.Context, exec sqlx.ExtContext, id string, status models.ScheduleRunStatus) error
	ArchivePublished(ctx context.Context, exec sqlx.ExtContext, roomID string) error
	Delete(ctx context.Context, exec sqlx.ExtContext, id string) error
}

type slotRepository interface {
	UpsertBatch(ctx context.Context, exec sqlx.ExtContext, slots []models.ScheduleSlot) error
	ListByRun(ctx context.Context, runID string) ([]models.ScheduleSlot, error)
	ListPublishedByRoomWeek(ctx context.Context, roomID string, from, to time.Time) ([]models.ScheduleSlot, error)
	DeleteByRun(ctx context.Context, exec sqlx.ExtContext, runID string) error
}

type assignmentEngine interface {
	Run(ctx context.Context, in scheduler.Input) (*scheduler.Result, error)
}

type txProvider interface {
	BeginTxx(ctx context.Context, opts *sql.TxOptions) (*sqlx.Tx, error)
}

// ScheduleRunService orchestrates engine runs and their persisted lifecycle.
type ScheduleRunService struct {
	rooms     roomReader
	members   memberReader
	runs      runRepository
	slots     slotRepository
	engine    assignmentEngine
	tx        txProvider
	metrics   *MetricsService
	validator *validator.Validate
	logger    *zap.Logger
}

// NewScheduleRunService wires run dependencies.
func NewScheduleRunService(
	rooms roomReader,
	members memberReader,
	runs runRepository,
	slots slotRepository,
	engine assignmentEngine,
	tx txProvider,
	metrics *MetricsService,
	validate *validator.Validate,
	logger *zap.Logger,
) *ScheduleRunService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ScheduleRunService{
		rooms:     rooms,
		members:   members,
		runs:      runs,
		slots:     slots,
		engine:    engine,
		tx:        tx,
		metrics:   metrics,
		validator: validate,
		logger:    logger,
	}
}

// Generate executes the engine for a room and persists the outcome as a new draft run.
func (s *ScheduleRunService) Generate(ctx context.Context, req dto.GenerateRunRequest) (*dto.RunResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid run generation payload")
	}

	room, err := s.rooms.FindByID(ctx, req.RoomID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "room not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load room")
	}
	owner, err := s.rooms.FindOwner(ctx, room.OwnerID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "room owner not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load room owner")
	}
	roomMembers, err := s.members.ListByRoom(ctx, req.RoomID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load room members")
	}
	if len(roomMembers) == 0 {
		return nil, appErrors.Clone(appErrors.ErrPreconditionFailed, "room has no members to schedule")
	}

	weeks := room.Settings.NumWeeks
	if weeks < 1 {
		weeks = 1
	}
	// Load and persist against the same Monday the engine normalises to, so
	// published slots from a mid-week request still seed the re-run.
	weekStart := scheduler.WeekStartOf(req.WeekStart)
	windowEnd := weekStart.AddDate(0, 0, 7*weeks)
	existing, err := s.slots.ListPublishedByRoomWeek(ctx, req.RoomID, weekStart, windowEnd)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load published slots")
	}

	started := time.Now()
	result, err := s.engine.Run(ctx, scheduler.Input{
		Room:          *room,
		Owner:         *owner,
		Members:       roomMembers,
		WeekStart:     weekStart,
		ExistingSlots: existing,
	})
	mode := string(room.Settings.AssignmentMode)
	if err != nil {
		s.metrics.ObserveRun(mode, false, time.Since(started), 0, 0, 0)
		return nil, err
	}
	s.metrics.ObserveRun(mode, true, time.Since(started), result.Stats.ConflictBlocks, result.Stats.AutoResolved, result.Stats.TravelFallbacks)

	run, err := s.persistRun(ctx, room, weekStart, weeks, result)
	if err != nil {
		return nil, err
	}

	s.logger.Info("schedule run generated",
		zap.String("room_id", room.ID),
		zap.String("run_id", run.ID),
		zap.Int("version", run.Version),
		zap.Int("conflict_blocks", result.Stats.ConflictBlocks),
		zap.Int("auto_resolved", result.Stats.AutoResolved))

	return &dto.RunResponse{
		RunID:        run.ID,
		Version:      run.Version,
		Status:       run.Status,
		Assignments:  result.Assignments,
		CarryOver:    result.CarryOver,
		Unassigned:   result.Unassigned,
		Negotiations: result.Negotiations,
		Stats:        result.Stats,
	}, nil
}

func (s *ScheduleRunService) persistRun(ctx context.Context, room *models.Room, weekStart time.Time, weeks int, result *scheduler.Result) (*models.ScheduleRun, error) {
	if s.tx == nil {
		return nil, appErrors.Clone(appErrors.ErrInternal, "transaction provider missing")
	}
	tx, err := s.tx.BeginTxx(ctx, nil)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to begin transaction")
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	metaBytes, marshalErr := json.Marshal(result.Stats)
	if marshalErr != nil {
		err = appErrors.Wrap(marshalErr, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to encode run metadata")
		return nil, err
	}

	run := &models.ScheduleRun{
		RoomID:    room.ID,
		Status:    models.ScheduleRunStatusDraft,
		WeekStart: weekStart,
		NumWeeks:  weeks,
		Meta:      types.JSONText(metaBytes),
	}
	if err = s.runs.CreateVersioned(ctx, tx, run); err != nil {
		err = appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create schedule run")
		return nil, err
	}

	slotModels := flattenAssignments(run.ID, room.ID, result.Assignments)
	if len(slotModels) > 0 {
		if err = s.slots.UpsertBatch(ctx, tx, slotModels); err != nil {
			err = appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to persist schedule slots")
			return nil, err
		}
	}

	var entries []models.CarryOverEntry
	for _, memberEntries := range result.CarryOver {
		entries = append(entries, memberEntries...)
	}
	if len(entries) > 0 {
		if err = s.members.AppendCarryOver(ctx, tx, entries); err != nil {
			err = appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to record carry-over entries")
			return nil, err
		}
	}

	if err = tx.Commit(); err != nil {
		err = appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to commit run transaction")
		return nil, err
	}
	return run, nil
}

// Publish promotes a draft run, archiving any previously published version.
func (s *ScheduleRunService) Publish(ctx context.Context, runID string) error {
	run, err := s.loadRun(ctx, runID)
	if err != nil {
		return err
	}
	if run.Status != models.ScheduleRunStatusDraft {
		return appErrors.Clone(appErrors.ErrConflict, "only draft runs can be published")
	}
	if s.tx == nil {
		return appErrors.Clone(appErrors.ErrInternal, "transaction provider missing")
	}
	tx, err := s.tx.BeginTxx(ctx, nil)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to begin transaction")
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()
	if err = s.runs.ArchivePublished(ctx, tx, run.RoomID); err != nil {
		err = appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to archive previous run")
		return err
	}
	if err = s.runs.UpdateStatus(ctx, tx, runID, models.ScheduleRunStatusPublished); err != nil {
		err = appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to publish run")
		return err
	}
	if err = tx.Commit(); err != nil {
		err = appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to commit publish transaction")
		return err
	}
	s.logger.Info("schedule run published", zap.String("run_id", runID), zap.String("room_id", run.RoomID))
	return nil
}

// List returns all run versions for a room.
func (s *ScheduleRunService) List(ctx context.Context, query dto.RunQuery) ([]models.ScheduleRun, error) {
	if query.RoomID == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "roomId is required")
	}
	runs, err := s.runs.ListByRoom(ctx, query.RoomID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list schedule runs")
	}
	return runs, nil
}

// GetSlots returns the persisted slots of a run.
func (s *ScheduleRunService) GetSlots(ctx context.Context, runID string) ([]models.ScheduleSlot, error) {
	if _, err := s.loadRun(ctx, runID); err != nil {
		return nil, err
	}
	slots, err := s.slots.ListByRun(ctx, runID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list run slots")
	}
	return slots, nil
}

// Delete removes a draft run and its slots.
func (s *ScheduleRunService) Delete(ctx context.Context, runID string) error {
	run, err := s.loadRun(ctx, runID)
	if err != nil {
		return err
	}
	if run.Status != models.ScheduleRunStatusDraft {
		return appErrors.Clone(appErrors.ErrConflict, "only draft runs can be deleted")
	}
	if s.tx == nil {
		return appErrors.Clone(appErrors.ErrInternal, "transaction provider missing")
	}
	tx, err := s.tx.BeginTxx(ctx, nil)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to begin transaction")
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()
	if err = s.slots.DeleteByRun(ctx, tx, runID); err != nil {
		err = appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete run slots")
		return err
	}
	if err = s.runs.Delete(ctx, tx, runID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			err = appErrors.Clone(appErrors.ErrNotFound, "schedule run not found")
			return err
		}
		err = appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete schedule run")
		return err
	}
	if err = tx.Commit(); err != nil {
		err = appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to commit delete transaction")
		return err
	}
	return nil
}

func (s *ScheduleRunService) loadRun(ctx context.Context, runID string) (*models.ScheduleRun, error) {
	if runID == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "run id is required")
	}
	run, err := s.runs.FindByID(ctx, runID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "schedule run not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load schedule run")
	}
	return run, nil
}

func flattenAssignments(runID, roomID string, assignments map[string]*models.Assignment) []models.ScheduleSlot {
	var slots []models.ScheduleSlot
	for memberID, assignment := range assignments {
		if assignment == nil {
			continue
		}
		for _, slot := range assignment.Slots {
			slots = append(slots, models.ScheduleSlot{
				RunID:       runID,
				RoomID:      roomID,
				MemberID:    memberID,
				Date:        slot.Date,
				StartMinute: slot.StartMinute,
				EndMinute:   slot.EndMinute,
			})
		}
	}
	return slots
}
