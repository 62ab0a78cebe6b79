package chaos

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/smallbiznis/lifecyclesim/internal/calendar"
	"github.com/smallbiznis/lifecyclesim/internal/event"
)

// Step kinds.
const (
	StepRename             = "rename"
	StepAddFields          = "add_fields"
	StepDuplicate          = "duplicate"
	StepCoerceString       = "coerce_string"
	StepReferralNoise      = "referral_noise"
	StepTimestampCollision = "timestamp_collision"
	StepNullSpike          = "null_spike"
	StepPlanMigration      = "plan_migration"
	StepTimeShift          = "time_shift"
)

// ScenarioLateArrival labels the always-on pass in logs and metrics.
const (
	ScenarioLateArrival = "late_arrival"
	ScenarioSticky      = "sticky_migration"
)

var (
	ErrUnknownStep    = errors.New("unknown_chaos_step")
	ErrInvalidRate    = errors.New("invalid_chaos_rate")
	ErrInvalidStep    = errors.New("invalid_chaos_step")
	ErrInvalidMonth   = errors.New("invalid_chaos_month")
	ErrMissingMapping = errors.New("missing_migration_mapping")
)

// Step is one corruption applied to a batch. Which fields matter depends on Kind.
type Step struct {
	Kind string
	// Field is the record field the step targets. Empty picks the kind's default.
	Field string
	From  string
	To    string
	Rate  float64
	// DirtyRate and StaleRate split plan_migration outcomes; the rest is clean.
	DirtyRate float64
	StaleRate float64
	// MaxShift bounds time_shift offsets in either direction.
	MaxShift time.Duration
	Fields   map[string]any
	// Datasets limits the step to the named datasets. Empty means all.
	Datasets []string
}

// AppliesTo reports whether the step targets dataset.
func (s Step) AppliesTo(dataset string) bool {
	if len(s.Datasets) == 0 {
		return true
	}
	for _, d := range s.Datasets {
		if d == dataset {
			return true
		}
	}
	return false
}

func (s Step) field() string {
	if s.Field != "" {
		return s.Field
	}
	switch s.Kind {
	case StepCoerceString:
		return event.FieldAmountUSD
	case StepReferralNoise:
		return event.FieldReferralCode
	default:
		return event.FieldPlan
	}
}

// Validate checks the step is well formed.
func (s Step) Validate() error {
	for _, r := range []float64{s.Rate, s.DirtyRate, s.StaleRate} {
		if r < 0 || r > 1 {
			return fmt.Errorf("%w: %s rate %v", ErrInvalidRate, s.Kind, r)
		}
	}
	switch s.Kind {
	case StepRename:
		if s.From == "" || s.To == "" {
			return fmt.Errorf("%w: rename needs from and to", ErrInvalidStep)
		}
	case StepAddFields:
		if len(s.Fields) == 0 {
			return fmt.Errorf("%w: add_fields needs fields", ErrInvalidStep)
		}
	case StepPlanMigration:
		if s.DirtyRate+s.StaleRate > 1 {
			return fmt.Errorf("%w: plan_migration dirty+stale > 1", ErrInvalidRate)
		}
	case StepTimeShift:
		if s.MaxShift <= 0 {
			return fmt.Errorf("%w: time_shift needs max_shift", ErrInvalidStep)
		}
	case StepDuplicate, StepCoerceString, StepReferralNoise, StepTimestampCollision, StepNullSpike:
	default:
		return fmt.Errorf("%w: %q", ErrUnknownStep, s.Kind)
	}
	return nil
}

// Scenario is a named bundle of steps fired in one month. Several steps model
// compounding failures.
type Scenario struct {
	Name  string
	Steps []Step
}

// Sticky re-applies steps every month from FromMonth onward.
type Sticky struct {
	FromMonth int
	Steps     []Step
}

// Migration describes the plan rename carried by plan_migration steps.
type Migration struct {
	// Mapping sends prior-era plan names to current ones.
	Mapping map[string]string
	// DirtyVariants are the malformed labels a sloppy migration leaks.
	DirtyVariants []string
}

// Schedule is the corruption plan of one era.
type Schedule struct {
	Start           time.Time
	LateArrivalRate float64
	// Scenarios is keyed by 1-based month index.
	Scenarios map[int]Scenario
	Sticky    *Sticky
	Migration Migration
}

// Validate checks every step and month index.
func (s Schedule) Validate() error {
	if s.LateArrivalRate < 0 || s.LateArrivalRate > 1 {
		return fmt.Errorf("%w: late arrival %v", ErrInvalidRate, s.LateArrivalRate)
	}
	needsMapping := false
	for month, sc := range s.Scenarios {
		if month < 1 {
			return fmt.Errorf("%w: %d", ErrInvalidMonth, month)
		}
		for _, step := range sc.Steps {
			if err := step.Validate(); err != nil {
				return fmt.Errorf("%s: %w", sc.Name, err)
			}
			needsMapping = needsMapping || step.Kind == StepPlanMigration
		}
	}
	if s.Sticky != nil {
		if s.Sticky.FromMonth < 1 {
			return fmt.Errorf("%w: sticky from %d", ErrInvalidMonth, s.Sticky.FromMonth)
		}
		for _, step := range s.Sticky.Steps {
			if err := step.Validate(); err != nil {
				return fmt.Errorf("%s: %w", ScenarioSticky, err)
			}
			needsMapping = needsMapping || step.Kind == StepPlanMigration
		}
	}
	if needsMapping && len(s.Migration.Mapping) == 0 {
		return ErrMissingMapping
	}
	return nil
}

// MonthIndex returns the 1-based index of month within the era.
func (s Schedule) MonthIndex(month time.Time) int {
	return calendar.MonthIndex(calendar.MonthStart(s.Start), calendar.MonthStart(month))
}

// ScenarioAt returns the scheduled scenario for month, if any.
func (s Schedule) ScenarioAt(month time.Time) (Scenario, bool) {
	sc, ok := s.Scenarios[s.MonthIndex(month)]
	if ok && strings.TrimSpace(sc.Name) == "" {
		sc.Name = "unnamed"
	}
	return sc, ok
}

// StickyActive reports whether the sticky pass runs in month.
func (s Schedule) StickyActive(month time.Time) bool {
	return s.Sticky != nil && s.MonthIndex(month) >= s.Sticky.FromMonth
}
