package chaos

import (
	"errors"
	"math/rand"
	"time"

	"github.com/smallbiznis/lifecyclesim/internal/event"
	"go.uber.org/zap"
)

var ErrMissingRandom = errors.New("missing_random_source")

// Recorder receives one call per injector that touched at least one record.
type Recorder interface {
	RecordInjection(scenario, dataset string, records int)
}

// Engine corrupts monthly batches according to a Schedule.
type Engine struct {
	schedule Schedule
	rng      *rand.Rand
	log      *zap.Logger
	recorder Recorder
}

// Option customizes an Engine.
type Option func(*Engine)

// WithRecorder reports injections to r.
func WithRecorder(r Recorder) Option {
	return func(e *Engine) {
		e.recorder = r
	}
}

// NewEngine validates the schedule and binds the shared random source.
func NewEngine(schedule Schedule, rng *rand.Rand, log *zap.Logger, opts ...Option) (*Engine, error) {
	if rng == nil {
		return nil, ErrMissingRandom
	}
	if err := schedule.Validate(); err != nil {
		return nil, err
	}
	if log == nil {
		log = zap.NewNop()
	}
	e := &Engine{
		schedule: schedule,
		rng:      rng,
		log:      log.Named("chaos"),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Schedule returns the schedule the engine runs.
func (e *Engine) Schedule() Schedule {
	return e.schedule
}

// Apply returns a corrupted copy of batch; batch itself is never modified.
// Passes run in a fixed order: late arrival, the sticky pass once it is
// active, then the scenario scheduled for month, if any.
func (e *Engine) Apply(batch event.Batch, month time.Time, dataset, tsField string) event.Batch {
	if len(batch) == 0 {
		return event.Batch{}
	}
	out := batch.Clone()

	if n := lateArrival(e.rng, out, tsField, e.schedule.LateArrivalRate); n > 0 {
		e.record(ScenarioLateArrival, dataset, n)
	}

	if e.schedule.StickyActive(month) {
		for _, step := range e.schedule.Sticky.Steps {
			out = e.applyStep(ScenarioSticky, step, out, dataset, tsField)
		}
	}

	if sc, ok := e.schedule.ScenarioAt(month); ok {
		for _, step := range sc.Steps {
			out = e.applyStep(sc.Name, step, out, dataset, tsField)
		}
		e.log.Debug("chaos.scenario.applied",
			zap.String("scenario", sc.Name),
			zap.String("dataset", dataset),
			zap.Int("month_index", e.schedule.MonthIndex(month)),
			zap.Int("records", len(out)),
		)
	}
	return out
}

func (e *Engine) applyStep(scenario string, step Step, b event.Batch, dataset, tsField string) event.Batch {
	if !step.AppliesTo(dataset) {
		return b
	}
	field := step.field()
	var n int
	switch step.Kind {
	case StepRename:
		n = rename(b, field, step.From, step.To)
	case StepAddFields:
		n = addFields(b, step.Fields)
	case StepDuplicate:
		b, n = duplicate(e.rng, b, step.Rate)
	case StepCoerceString:
		n = coerceString(b, field)
	case StepReferralNoise:
		n = referralNoise(e.rng, b, field, step.Rate)
	case StepTimestampCollision:
		n = timestampCollision(e.rng, b, tsFieldFor(step, tsField), step.Rate)
	case StepNullSpike:
		n = nullSpike(e.rng, b, field, step.Rate)
	case StepPlanMigration:
		n = planMigration(e.rng, b, field, e.schedule.Migration, step.DirtyRate, step.StaleRate)
	case StepTimeShift:
		n = timeShift(e.rng, b, tsFieldFor(step, tsField), step.Rate, step.MaxShift)
	}
	if n > 0 {
		e.record(scenario, dataset, n)
	}
	return b
}

func tsFieldFor(step Step, tsField string) string {
	if step.Field != "" {
		return step.Field
	}
	return tsField
}

func (e *Engine) record(scenario, dataset string, n int) {
	if e.recorder != nil {
		e.recorder.RecordInjection(scenario, dataset, n)
	}
}
