package simulation

import (
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/smallbiznis/lifecyclesim/internal/calendar"
	"github.com/smallbiznis/lifecyclesim/internal/chaos"
	"github.com/smallbiznis/lifecyclesim/internal/lifecycle"
)

var (
	ErrInvalidMonthRange = errors.New("invalid_month_range")
	ErrInvalidGrowth     = errors.New("invalid_growth_range")
)

// GrowthRange bounds the number of users acquired in a month, inclusive.
type GrowthRange struct {
	Min int
	Max int
}

// Draw returns a uniform count in [Min, Max].
func (g GrowthRange) Draw(rng *rand.Rand) int {
	if g.Max <= g.Min {
		return g.Min
	}
	return g.Min + rng.Intn(g.Max-g.Min+1)
}

func (g GrowthRange) validate() error {
	if g.Min < 0 || g.Max < g.Min {
		return fmt.Errorf("%w: [%d, %d]", ErrInvalidGrowth, g.Min, g.Max)
	}
	return nil
}

// Plan describes one era run: the month window, seed and growth curve.
type Plan struct {
	Era          string
	Start        time.Time
	End          time.Time
	Seed         int64
	InitialUsers int
	Growth       GrowthRange
	// GrowthByMonth overrides Growth for the given 1-based month index.
	GrowthByMonth map[int]GrowthRange
	// CarryOver bootstraps the population from the prior era's users snapshot.
	CarryOver bool
}

// Validate checks the window and growth bounds.
func (p Plan) Validate() error {
	start, end := calendar.MonthStart(p.Start), calendar.MonthStart(p.End)
	if p.Start.IsZero() || end.Before(start) {
		return fmt.Errorf("%w: %s..%s", ErrInvalidMonthRange, start.Format("2006-01"), end.Format("2006-01"))
	}
	if p.InitialUsers < 0 {
		return fmt.Errorf("%w: initial users %d", ErrInvalidGrowth, p.InitialUsers)
	}
	if err := p.Growth.validate(); err != nil {
		return err
	}
	for idx, g := range p.GrowthByMonth {
		if err := g.validate(); err != nil {
			return fmt.Errorf("month %d: %w", idx, err)
		}
	}
	return nil
}

// Months returns the month starts of the window in order.
func (p Plan) Months() []time.Time {
	return calendar.MonthRange(p.Start, p.End)
}

// GrowthFor returns the acquisition range of the 1-based month index.
func (p Plan) GrowthFor(idx int) GrowthRange {
	if g, ok := p.GrowthByMonth[idx]; ok {
		return g
	}
	return p.Growth
}

// Settings is everything a Runner needs for one era.
type Settings struct {
	Plan    Plan
	Machine lifecycle.Config
	Chaos   chaos.Schedule
}
