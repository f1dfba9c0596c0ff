package scheduler

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/slotwise/slotwise-api/internal/models"
	appErrors "github.com/slotwise/slotwise-api/pkg/errors"
)

// Termination caps for the fixed-point assignment loops. The caps are a
// guarantee, not an expected stop: hitting one before convergence emits a
// diagnostic log entry.
const (
	// MaxAssignRounds bounds each round-robin assignment loop.
	MaxAssignRounds = 64
	// FairnessGapSlots is the minimum lead (in 30-minute slots) between the
	// least- and second-least-assigned contenders that auto-awards a block
	// to the trailing member.
	FairnessGapSlots = 2
	// MaxPartialBlocks limits best-effort fragmented awards per member in
	// the targeted pass.
	MaxPartialBlocks = 3
	// InterventionShortfallStreak is the number of consecutive weekly
	// shortfalls after which a member is flagged for intervention.
	InterventionShortfallStreak = 2
	// EveningBlockStartMinute starts the unconditional 17:00-24:00 block
	// enforced by the transit policy.
	EveningBlockStartMinute = 17 * 60
)

// Config tunes engine behaviour. Zero values fall back to the package defaults.
type Config struct {
	HighTierPriority     int
	MaxAssignRounds      int
	FairnessGapSlots     int
	MaxPartialBlocks     int
	DefaultTravelMinutes int
	OwnerClaimsContested bool
}

// DefaultConfig returns production defaults.
func DefaultConfig() Config {
	return Config{
		HighTierPriority:     5,
		MaxAssignRounds:      MaxAssignRounds,
		FairnessGapSlots:     FairnessGapSlots,
		MaxPartialBlocks:     MaxPartialBlocks,
		DefaultTravelMinutes: 20,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.HighTierPriority <= 0 {
		c.HighTierPriority = d.HighTierPriority
	}
	if c.MaxAssignRounds <= 0 {
		c.MaxAssignRounds = d.MaxAssignRounds
	}
	if c.FairnessGapSlots <= 0 {
		c.FairnessGapSlots = d.FairnessGapSlots
	}
	if c.MaxPartialBlocks <= 0 {
		c.MaxPartialBlocks = d.MaxPartialBlocks
	}
	if c.DefaultTravelMinutes <= 0 {
		c.DefaultTravelMinutes = d.DefaultTravelMinutes
	}
	return c
}

// TravelEstimator estimates travel time between two coordinates. Implementations
// must degrade to a default duration instead of failing the run.
type TravelEstimator interface {
	Estimate(ctx context.Context, origin, dest models.Coordinates, mode models.TransportMode) (time.Duration, error)
	EstimateBatch(ctx context.Context, origin models.Coordinates, dests map[string]models.Coordinates, mode models.TransportMode) (map[string]time.Duration, error)
}

// Input is everything one run needs. The engine never reaches outside it
// except through the travel estimator.
type Input struct {
	Room          models.Room
	Owner         models.Owner
	Members       []models.Member
	WeekStart     time.Time
	ExistingSlots []models.ScheduleSlot
}

// Negotiation is reserved output for a future interactive flow; the active
// algorithm always auto-resolves and leaves it empty.
type Negotiation struct {
	BlockID   string   `json:"block_id"`
	MemberIDs []string `json:"member_ids"`
}

// RunStats summarises one engine execution.
type RunStats struct {
	Weeks           int `json:"weeks"`
	ConflictBlocks  int `json:"conflict_blocks"`
	AutoResolved    int `json:"auto_resolved"`
	RoundCapHits    int `json:"round_cap_hits"`
	TravelFallbacks int `json:"travel_fallbacks"`
}

// Result is the complete outcome of a run.
type Result struct {
	Assignments  map[string]*models.Assignment      `json:"assignments"`
	CarryOver    map[string][]models.CarryOverEntry `json:"carry_over_assignments"`
	Unassigned   []models.UnassignedMemberInfo      `json:"unassigned_members_info"`
	Negotiations []Negotiation                      `json:"negotiations"`
	Stats        RunStats                           `json:"stats"`
}

// Engine is the single entry point wiring the allocation phases for either
// policy. It is synchronous and single-threaded over state it exclusively owns.
type Engine struct {
	cfg    Config
	travel TravelEstimator
	logger *zap.Logger
}

// New builds an engine. The travel estimator may be nil when no room uses the
// transit policy.
func New(cfg Config, travel TravelEstimator, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{cfg: cfg.withDefaults(), travel: travel, logger: logger}
}

// Run executes the configured policy over the requested window and returns a
// complete assignment set, or an error with nothing scheduled.
func (e *Engine) Run(ctx context.Context, in Input) (*Result, error) {
	if err := e.validateInput(in); err != nil {
		return nil, err
	}
	in.WeekStart = WeekStartOf(in.WeekStart)

	if in.Room.Settings.AssignmentMode == models.AssignmentModeTransit {
		return e.runTransit(ctx, in)
	}
	return e.runWeeks(ctx, in)
}

func (e *Engine) validateInput(in Input) error {
	if in.WeekStart.IsZero() {
		return appErrors.Clone(appErrors.ErrValidation, "week start is required")
	}
	if in.Room.Settings.MinHoursPerWeek <= 0 {
		return appErrors.Clone(appErrors.ErrValidation, "minimum hours per week must be positive")
	}
	if in.Room.Settings.NumWeeks < 1 {
		return appErrors.Clone(appErrors.ErrValidation, "number of weeks must be at least 1")
	}
	if in.Room.Settings.ScheduleStartHour < 0 || in.Room.Settings.ScheduleEndHour > 24 ||
		in.Room.Settings.ScheduleStartHour >= in.Room.Settings.ScheduleEndHour {
		return appErrors.Clone(appErrors.ErrValidation, "schedule window hours are invalid")
	}
	if len(in.Members) == 0 {
		return appErrors.Clone(appErrors.ErrValidation, "at least one member is required")
	}
	seen := make(map[string]bool, len(in.Members))
	for _, m := range in.Members {
		if m.ID == "" {
			return appErrors.Clone(appErrors.ErrValidation, "member id is required")
		}
		if seen[m.ID] {
			return appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("duplicate member id %s", m.ID))
		}
		seen[m.ID] = true
		for _, a := range m.Availability {
			if err := a.Validate(); err != nil {
				return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status,
					fmt.Sprintf("invalid availability for member %s", m.ID))
			}
		}
	}
	for _, a := range in.Owner.Availability {
		if err := a.Validate(); err != nil {
			return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid owner availability")
		}
	}
	if in.Room.Settings.AssignmentMode == models.AssignmentModeTransit && e.travel == nil {
		return appErrors.Clone(appErrors.ErrPreconditionFailed, "transit mode requires a travel estimator")
	}
	return nil
}

// runWeek executes the default single-week pipeline on a prepared state.
func (e *Engine) runWeek(st *runState, stats *RunStats) {
	st.blocks = identifyConflicts(st)
	stats.ConflictBlocks += len(st.blocks)

	deficitFirstPass(st)
	assignUndisputed(st, e.logger)
	assignTargeted(st, e.logger)
	assignIterative(st, e.logger)
	resolveOwnerFallback(st)
	stats.AutoResolved += negotiateBlocks(st, e.logger)
	stats.RoundCapHits += st.roundCapHits
}
