package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/slotwise/slotwise-api/internal/dto"
	"github.com/slotwise/slotwise-api/internal/models"
	appErrors "github.com/slotwise/slotwise-api/pkg/errors"
)

type availabilityMemberRepo interface {
	FindByID(ctx context.Context, id string) (*models.Member, error)
	ReplaceAvailability(ctx context.Context, tx *sqlx.Tx, memberID string, windows []models.Availability) error
}

// AvailabilityService manages member preference windows.
type AvailabilityService struct {
	members   availabilityMemberRepo
	tx        txProvider
	validator *validator.Validate
	logger    *zap.Logger
}

// NewAvailabilityService wires availability dependencies.
func NewAvailabilityService(members availabilityMemberRepo, tx txProvider, validate *validator.Validate, logger *zap.Logger) *AvailabilityService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AvailabilityService{members: members, tx: tx, validator: validate, logger: logger}
}

// Replace swaps a member's full availability set atomically.
func (s *AvailabilityService) Replace(ctx context.Context, memberID string, req dto.ReplaceAvailabilityRequest) ([]models.Availability, error) {
	if memberID == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "member id is required")
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid availability payload")
	}

	member, err := s.members.FindByID(ctx, memberID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "member not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load member")
	}

	windows := make([]models.Availability, 0, len(req.Windows))
	for i, window := range req.Windows {
		converted, convErr := convertWindow(memberID, window)
		if convErr != nil {
			return nil, appErrors.Wrap(convErr, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status,
				fmt.Sprintf("invalid availability window at index %d", i))
		}
		windows = append(windows, converted)
	}

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
	if err = s.members.ReplaceAvailability(ctx, tx, memberID, windows); err != nil {
		err = appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to replace availability")
		return nil, err
	}
	if err = tx.Commit(); err != nil {
		err = appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to commit availability transaction")
		return nil, err
	}

	s.logger.Info("member availability replaced",
		zap.String("member_id", member.ID),
		zap.Int("windows", len(windows)))
	return windows, nil
}

// Get returns the member's stored availability windows.
func (s *AvailabilityService) Get(ctx context.Context, memberID string) ([]models.Availability, error) {
	if memberID == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "member id is required")
	}
	member, err := s.members.FindByID(ctx, memberID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "member not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load member")
	}
	return member.Availability, nil
}

func convertWindow(memberID string, window dto.AvailabilityWindow) (models.Availability, error) {
	var availability models.Availability
	switch models.AvailabilityKind(window.Kind) {
	case models.AvailabilityRecurring:
		availability = models.NewRecurring(time.Weekday(window.DayOfWeek), window.StartMinute, window.EndMinute, window.Priority)
	case models.AvailabilityDated:
		if window.Date == nil {
			return models.Availability{}, fmt.Errorf("dated window requires a date")
		}
		availability = models.NewDated(*window.Date, window.StartMinute, window.EndMinute, window.Priority)
	default:
		return models.Availability{}, fmt.Errorf("unknown availability kind %s", window.Kind)
	}
	availability.OwnerType = "MEMBER"
	availability.OwnerRef = memberID
	if err := availability.Validate(); err != nil {
		return models.Availability{}, err
	}
	return availability, nil
}
