package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/slotwise/slotwise-api/internal/dto"
	"github.com/slotwise/slotwise-api/internal/models"
	appErrors "github.com/slotwise/slotwise-api/pkg/errors"
	"github.com/slotwise/slotwise-api/pkg/export"
	"github.com/slotwise/slotwise-api/pkg/jobs"
	"github.com/slotwise/slotwise-api/pkg/storage"
)

type exportRunReader interface {
	FindByID(ctx context.Context, id string) (*models.ScheduleRun, error)
}

type exportSlotReader interface {
	ListByRun(ctx context.Context, runID string) ([]models.ScheduleSlot, error)
}

type exportMemberReader interface {
	ListByRoom(ctx context.Context, roomID string) ([]models.Member, error)
}

type fileStorage interface {
	Save(filename string, data []byte) (string, error)
	Open(filename string) (*os.File, error)
	Delete(filename string) error
	CleanupOlderThan(ttl time.Duration) ([]string, error)
}

type csvRenderer interface {
	Render(data export.Dataset) ([]byte, error)
}

type pdfRenderer interface {
	Render(data export.Dataset, title string) ([]byte, error)
}

// ExportConfig tunes export behaviour.
type ExportConfig struct {
	APIPrefix string
	ResultTTL time.Duration
	Workers   int
}

// ExportJobState tracks the lifecycle of a queued export.
type ExportJobState string

const (
	ExportJobQueued    ExportJobState = "QUEUED"
	ExportJobCompleted ExportJobState = "COMPLETED"
	ExportJobFailed    ExportJobState = "FAILED"
)

// ExportJobStatus is the queryable outcome of one export job.
type ExportJobStatus struct {
	JobID     string         `json:"jobId"`
	State     ExportJobState `json:"state"`
	Format    string         `json:"format"`
	Token     string         `json:"token,omitempty"`
	URL       string         `json:"url,omitempty"`
	ExpiresAt time.Time      `json:"expiresAt,omitempty"`
	Error     string         `json:"error,omitempty"`
}

type exportJobPayload struct {
	RunID  string
	Format string
}

// ExportService renders schedule grids to CSV or PDF through a background queue.
type ExportService struct {
	runs      exportRunReader
	slots     exportSlotReader
	members   exportMemberReader
	storage   fileStorage
	csv       csvRenderer
	pdf       pdfRenderer
	signer    *storage.SignedURLSigner
	queue     *jobs.Queue
	validator *validator.Validate
	logger    *zap.Logger
	cfg       ExportConfig

	mu     sync.RWMutex
	status map[string]*ExportJobStatus
}

// NewExportService constructs an ExportService with its own job queue.
func NewExportService(
	runs exportRunReader,
	slots exportSlotReader,
	members exportMemberReader,
	store fileStorage,
	signer *storage.SignedURLSigner,
	cfg ExportConfig,
	validate *validator.Validate,
	logger *zap.Logger,
) *ExportService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.ResultTTL <= 0 {
		cfg.ResultTTL = 24 * time.Hour
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 2
	}
	s := &ExportService{
		runs:      runs,
		slots:     slots,
		members:   members,
		storage:   store,
		csv:       export.NewCSVExporter(),
		pdf:       export.NewPDFExporter(),
		signer:    signer,
		validator: validate,
		logger:    logger,
		cfg:       cfg,
		status:    make(map[string]*ExportJobStatus),
	}
	s.queue = jobs.NewQueue("schedule-exports", s.process, jobs.QueueConfig{
		Workers: cfg.Workers,
		Logger:  logger,
	})
	return s
}

// Start launches the export workers.
func (s *ExportService) Start(ctx context.Context) {
	s.queue.Start(ctx)
}

// Stop drains the export workers.
func (s *ExportService) Stop() {
	s.queue.Stop()
}

// Enqueue registers an export job for a run and returns its identifier.
func (s *ExportService) Enqueue(ctx context.Context, req dto.ExportRequest) (*dto.ExportResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid export payload")
	}
	if _, err := s.runs.FindByID(ctx, req.RunID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "schedule run not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load schedule run")
	}

	jobID := uuid.NewString()
	s.setStatus(&ExportJobStatus{JobID: jobID, State: ExportJobQueued, Format: req.Format})
	err := s.queue.Enqueue(jobs.Job{
		ID:      jobID,
		Type:    "export",
		Payload: exportJobPayload{RunID: req.RunID, Format: req.Format},
	})
	if err != nil {
		s.clearStatus(jobID)
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to enqueue export job")
	}
	return &dto.ExportResponse{JobID: jobID}, nil
}

// Status returns the current state of an export job.
func (s *ExportService) Status(jobID string) (*ExportJobStatus, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	status, ok := s.status[jobID]
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "export job not found")
	}
	copied := *status
	return &copied, nil
}

// ParseToken validates download token metadata.
func (s *ExportService) ParseToken(token string, allowExpired bool) (jobID, relPath string, expiresAt time.Time, err error) {
	return s.signer.Parse(token, allowExpired)
}

// Open returns a handle to the stored file.
func (s *ExportService) Open(relPath string) (*os.File, error) {
	return s.storage.Open(relPath)
}

// Cleanup removes rendered files older than ttl (defaults to configured ResultTTL when ttl <= 0).
func (s *ExportService) Cleanup(ttl time.Duration) ([]string, error) {
	if ttl <= 0 {
		ttl = s.cfg.ResultTTL
	}
	return s.storage.CleanupOlderThan(ttl)
}

func (s *ExportService) process(ctx context.Context, job jobs.Job) error {
	payload, ok := job.Payload.(exportJobPayload)
	if !ok {
		s.failJob(job.ID, "invalid export payload")
		return nil
	}

	result, err := s.generate(ctx, job.ID, payload)
	if err != nil {
		s.failJob(job.ID, err.Error())
		return err
	}
	s.setStatus(result)
	return nil
}

func (s *ExportService) generate(ctx context.Context, jobID string, payload exportJobPayload) (*ExportJobStatus, error) {
	run, err := s.runs.FindByID(ctx, payload.RunID)
	if err != nil {
		return nil, fmt.Errorf("load run: %w", err)
	}
	slots, err := s.slots.ListByRun(ctx, payload.RunID)
	if err != nil {
		return nil, fmt.Errorf("load run slots: %w", err)
	}
	roomMembers, err := s.members.ListByRoom(ctx, run.RoomID)
	if err != nil {
		return nil, fmt.Errorf("load room members: %w", err)
	}

	dataset, title := buildScheduleDataset(run, slots, roomMembers)

	var rendered []byte
	switch payload.Format {
	case "csv":
		rendered, err = s.csv.Render(dataset)
	case "pdf":
		rendered, err = s.pdf.Render(dataset, title)
	default:
		err = fmt.Errorf("unsupported format %s", payload.Format)
	}
	if err != nil {
		return nil, err
	}

	filename := fmt.Sprintf("schedule_%s_v%d_%s.%s", sanitizeFilename(run.RoomID), run.Version, time.Now().UTC().Format("20060102_150405"), payload.Format)
	relPath, err := s.storage.Save(filename, rendered)
	if err != nil {
		return nil, fmt.Errorf("store export: %w", err)
	}

	token, expiresAt, err := s.signer.Generate(jobID, relPath)
	if err != nil {
		return nil, fmt.Errorf("sign export url: %w", err)
	}
	prefix := strings.TrimRight(s.cfg.APIPrefix, "/")
	if prefix == "" {
		prefix = "/api/v1"
	}

	s.logger.Info("schedule export generated",
		zap.String("job_id", jobID),
		zap.String("run_id", run.ID),
		zap.String("format", payload.Format),
		zap.String("path", relPath))

	return &ExportJobStatus{
		JobID:     jobID,
		State:     ExportJobCompleted,
		Format:    payload.Format,
		Token:     token,
		URL:       fmt.Sprintf("%s/exports/%s", prefix, token),
		ExpiresAt: expiresAt,
	}, nil
}

func (s *ExportService) setStatus(status *ExportJobStatus) {
	s.mu.Lock()
	s.status[status.JobID] = status
	s.mu.Unlock()
}

func (s *ExportService) clearStatus(jobID string) {
	s.mu.Lock()
	delete(s.status, jobID)
	s.mu.Unlock()
}

func (s *ExportService) failJob(jobID, reason string) {
	s.mu.Lock()
	if status, ok := s.status[jobID]; ok {
		status.State = ExportJobFailed
		status.Error = reason
	}
	s.mu.Unlock()
}

func buildScheduleDataset(run *models.ScheduleRun, slots []models.ScheduleSlot, roomMembers []models.Member) (export.Dataset, string) {
	names := make(map[string]string, len(roomMembers))
	for _, m := range roomMembers {
		names[m.ID] = m.Name
	}

	rows := make([]map[string]string, 0, len(slots))
	for _, slot := range slots {
		name := names[slot.MemberID]
		if name == "" {
			name = slot.MemberID
		}
		rows = append(rows, map[string]string{
			"Date":   slot.Date.UTC().Format("2006-01-02"),
			"Day":    slot.Date.UTC().Weekday().String(),
			"Start":  minuteClock(slot.StartMinute),
			"End":    minuteClock(slot.EndMinute),
			"Member": name,
		})
	}

	dataset := export.Dataset{
		Headers: []string{"Date", "Day", "Start", "End", "Member"},
		Rows:    rows,
	}
	title := fmt.Sprintf("Schedule v%d starting %s", run.Version, run.WeekStart.UTC().Format("2006-01-02"))
	return dataset, title
}

func minuteClock(minute int) string {
	return fmt.Sprintf("%02d:%02d", minute/60, minute%60)
}

func sanitizeFilename(raw string) string {
	if raw == "" {
		return "na"
	}
	replacer := strings.NewReplacer(" ", "_", "/", "-", "\\", "-", ":", "-", "..", ".", "__", "_")
	result := replacer.Replace(raw)
	if len(result) > 100 {
		return result[:100]
	}
	return result
}
