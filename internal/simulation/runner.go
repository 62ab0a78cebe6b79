package simulation

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/lifecyclesim/internal/calendar"
	"github.com/smallbiznis/lifecyclesim/internal/chaos"
	"github.com/smallbiznis/lifecyclesim/internal/clock"
	"github.com/smallbiznis/lifecyclesim/internal/event"
	"github.com/smallbiznis/lifecyclesim/internal/lifecycle"
	obslogger "github.com/smallbiznis/lifecyclesim/internal/observability/logger"
	"github.com/smallbiznis/lifecyclesim/internal/observability/metrics"
	"github.com/smallbiznis/lifecyclesim/internal/observability/tracing"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// Sink lands one dataset batch.
type Sink interface {
	Write(ctx context.Context, batch event.Batch, dataset, tsField string) error
}

// Loader returns the prior era's users rows.
type Loader interface {
	Load(ctx context.Context) (event.Batch, error)
}

// SnapshotSaver keeps the final users rows for the next era.
type SnapshotSaver interface {
	Save(ctx context.Context, era string, rows event.Batch) error
}

// Observer sees every month's written batches, keyed by dataset.
type Observer interface {
	ObserveMonth(month time.Time, batches map[string]event.Batch)
}

// Datasets are written in this order each month.
var Datasets = []string{
	event.DatasetSubscriptions,
	event.DatasetPayments,
	event.DatasetProduct,
}

var ErrMissingSink = errors.New("missing_sink")

type Option func(*Runner)

func WithLoader(l Loader) Option {
	return func(r *Runner) { r.loader = l }
}

func WithSnapshotSaver(s SnapshotSaver) Option {
	return func(r *Runner) { r.saver = s }
}

func WithMetrics(m *metrics.SimulationMetrics) Option {
	return func(r *Runner) { r.metrics = m }
}

func WithObserver(o Observer) Option {
	return func(r *Runner) {
		if o != nil {
			r.observers = append(r.observers, o)
		}
	}
}

// ProgressFunc is called after every month with the months done and total.
type ProgressFunc func(done, total int)

func WithProgress(fn ProgressFunc) Option {
	return func(r *Runner) { r.progress = fn }
}

func WithClock(c clock.Clock) Option {
	return func(r *Runner) {
		if c != nil {
			r.clock = c
		}
	}
}

// WithIDNode sets the snowflake node run ids are drawn from.
func WithIDNode(n *snowflake.Node) Option {
	return func(r *Runner) {
		if n != nil {
			r.ids = n
		}
	}
}

// Runner drives one era: lifecycle month by month, chaos on each batch,
// sink writes, then the users snapshot.
type Runner struct {
	settings Settings
	sink     Sink
	loader   Loader
	saver    SnapshotSaver
	metrics  *metrics.SimulationMetrics
	log      *zap.Logger
	clock    clock.Clock
	ids      *snowflake.Node

	observers []Observer
	progress  ProgressFunc
}

func NewRunner(settings Settings, sink Sink, log *zap.Logger, opts ...Option) (*Runner, error) {
	if sink == nil {
		return nil, ErrMissingSink
	}
	if err := settings.Plan.Validate(); err != nil {
		return nil, err
	}
	if log == nil {
		log = zap.NewNop()
	}
	node, err := snowflake.NewNode(1)
	if err != nil {
		return nil, err
	}
	r := &Runner{
		settings: settings,
		sink:     sink,
		log:      log.Named("simulation"),
		clock:    clock.Real(),
		ids:      node,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// Settings returns what the runner was built with.
func (r *Runner) Settings() Settings {
	return r.settings
}

// Run simulates every month of the plan. Generation never retries: the
// first sink error aborts the run.
func (r *Runner) Run(ctx context.Context) (Summary, error) {
	plan := r.settings.Plan
	runID := r.ids.Generate().String()
	ctx = obslogger.WithRun(ctx, runID, plan.Era)
	log := obslogger.WithContext(ctx, r.log)

	ctx, span := tracing.Tracer().Start(ctx, "simulation.run",
		trace.WithAttributes(
			attribute.String("era", plan.Era),
			attribute.String("run_id", runID),
			attribute.Int64("seed", plan.Seed),
		),
	)
	defer span.End()

	summary := Summary{
		RunID:   runID,
		Era:     plan.Era,
		Seed:    plan.Seed,
		Start:   calendar.MonthStart(plan.Start),
		End:     calendar.MonthStart(plan.End),
		Started: r.clock.Now(),
	}

	rng := rand.New(rand.NewSource(plan.Seed))
	machine, err := lifecycle.NewMachine(r.settings.Machine, rng, calendar.NewZones(r.log))
	if err != nil {
		return summary, err
	}
	chaosSchedule := r.settings.Chaos
	if chaosSchedule.Start.IsZero() {
		chaosSchedule.Start = summary.Start
	}
	var engineOpts []chaos.Option
	if r.metrics != nil {
		engineOpts = append(engineOpts, chaos.WithRecorder(r.metrics))
	}
	engine, err := chaos.NewEngine(chaosSchedule, rng, r.log, engineOpts...)
	if err != nil {
		return summary, err
	}

	months := plan.Months()
	var population []*lifecycle.Entity
	for i, month := range months {
		idx := i + 1
		var added int
		if i == 0 {
			population, summary.CarriedOver, err = r.bootstrap(ctx, machine, month)
			if err != nil {
				return r.fail(span, summary, err)
			}
			added = len(population)
		} else {
			added = plan.GrowthFor(idx).Draw(rng)
			for n := 0; n < added; n++ {
				population = append(population, machine.NewEntity(month))
			}
		}

		ms, err := r.runMonth(ctx, machine, engine, population, month, idx, added)
		if err != nil {
			return r.fail(span, summary, err)
		}
		summary.Months = append(summary.Months, ms)
		if r.progress != nil {
			r.progress(idx, len(months))
		}
	}

	rows := make(event.Batch, 0, len(population))
	for _, e := range population {
		rows = append(rows, machine.SnapshotRow(e))
	}
	if err := r.write(ctx, rows, event.DatasetUsers); err != nil {
		return r.fail(span, summary, err)
	}
	if r.saver != nil {
		if err := r.saver.Save(ctx, plan.Era, rows); err != nil {
			return r.fail(span, summary, fmt.Errorf("save snapshot: %w", err))
		}
	}

	summary.Users = len(rows)
	summary.Finished = r.clock.Now()
	r.metrics.MarkSuccess(summary.Finished)
	log.Info("simulation.run.done",
		zap.Int("months", len(summary.Months)),
		zap.Int("users", summary.Users),
		zap.Duration("elapsed", summary.Finished.Sub(summary.Started)),
	)
	return summary, nil
}

func (r *Runner) fail(span trace.Span, summary Summary, err error) (Summary, error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return summary, err
}

// bootstrap builds the month-1 population: the carried-over prior era when
// enabled and available, otherwise a fresh trial cohort.
func (r *Runner) bootstrap(ctx context.Context, machine *lifecycle.Machine, month time.Time) ([]*lifecycle.Entity, int, error) {
	plan := r.settings.Plan
	log := obslogger.WithContext(ctx, r.log)

	if plan.CarryOver && r.loader != nil {
		rows, err := r.loader.Load(ctx)
		if err != nil {
			return nil, 0, fmt.Errorf("load snapshot: %w", err)
		}
		population := make([]*lifecycle.Entity, 0, len(rows))
		for _, row := range rows {
			if e, ok := machine.CarryOver(row, month); ok {
				population = append(population, e)
			}
		}
		if len(population) > 0 {
			log.Info("simulation.era.bootstrap",
				zap.String("source", "carry_over"),
				zap.Int("rows", len(rows)),
				zap.Int("users", len(population)),
			)
			return population, len(population), nil
		}
	}

	if plan.CarryOver {
		log.Warn("simulation.era.bootstrap",
			zap.String("source", "fresh"),
			zap.String("reason", "no prior era snapshot"),
			zap.Int("users", plan.InitialUsers),
		)
	} else {
		log.Info("simulation.era.bootstrap",
			zap.String("source", "fresh"),
			zap.Int("users", plan.InitialUsers),
		)
	}
	population := make([]*lifecycle.Entity, 0, plan.InitialUsers)
	for n := 0; n < plan.InitialUsers; n++ {
		population = append(population, machine.NewEntity(month))
	}
	return population, 0, nil
}

func (r *Runner) runMonth(ctx context.Context, machine *lifecycle.Machine, engine *chaos.Engine, population []*lifecycle.Entity, month time.Time, idx, added int) (MonthSummary, error) {
	start := r.clock.Now()
	label := event.FormatBatchMonth(month)
	ctx, span := tracing.Tracer().Start(ctx, "simulation.month",
		trace.WithAttributes(
			attribute.String("month", label),
			attribute.Int("month_index", idx),
		),
	)
	defer span.End()

	log := obslogger.WithContext(ctx, r.log).With(zap.String("month", label), zap.Int("month_index", idx))
	log.Info("simulation.month.start", zap.Int("new", added), zap.Int("total", len(population)))

	var out lifecycle.Output
	for _, e := range population {
		machine.Step(e, month)
		drained := e.Drain()
		out.Subscriptions = append(out.Subscriptions, drained.Subscriptions...)
		out.Payments = append(out.Payments, drained.Payments...)
		out.Usage = append(out.Usage, drained.Usage...)
	}

	clean := map[string]event.Batch{
		event.DatasetSubscriptions: out.Subscriptions,
		event.DatasetPayments:      out.Payments,
		event.DatasetProduct:       out.Usage,
	}

	ms := MonthSummary{
		Month:     month,
		Index:     idx,
		New:       added,
		Total:     len(population),
		Generated: make(map[string]int, len(Datasets)),
		Written:   make(map[string]int, len(Datasets)),
	}
	if sc, ok := engine.Schedule().ScenarioAt(month); ok {
		ms.Scenario = sc.Name
	}

	written := make(map[string]event.Batch, len(Datasets))
	for _, dataset := range Datasets {
		batch := clean[dataset]
		ms.Generated[dataset] = len(batch)
		r.metrics.AddGenerated(dataset, len(batch))

		dirty := engine.Apply(batch, month, dataset, event.UTCTimeField(dataset))
		if err := r.write(ctx, dirty, dataset); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return ms, err
		}
		ms.Written[dataset] = len(dirty)
		written[dataset] = dirty
	}

	for _, e := range population {
		if e.State.Status == lifecycle.StatusActive {
			ms.Active++
		} else {
			ms.Churned++
		}
	}

	for _, o := range r.observers {
		o.ObserveMonth(month, written)
	}

	ms.Duration = r.clock.Now().Sub(start)
	r.metrics.SetPopulation(ms.Active, ms.Churned)
	r.metrics.ObserveMonth(ms.Duration)

	log.Info("simulation.month.done",
		zap.Int("total", ms.Total),
		zap.Int("active", ms.Active),
		zap.Int("churned", ms.Churned),
		zap.Int("new", ms.New),
		zap.Int("subscription_events", ms.Written[event.DatasetSubscriptions]),
		zap.Int("payments", ms.Written[event.DatasetPayments]),
		zap.Int("product_events", ms.Written[event.DatasetProduct]),
		zap.String("scenario", ms.Scenario),
	)
	return ms, nil
}

func (r *Runner) write(ctx context.Context, batch event.Batch, dataset string) error {
	if len(batch) == 0 {
		return nil
	}
	if err := r.sink.Write(ctx, batch, dataset, event.UTCTimeField(dataset)); err != nil {
		r.metrics.IncSinkError(dataset, sinkErrorReason(err))
		return fmt.Errorf("write %s: %w", dataset, err)
	}
	r.metrics.AddWritten(dataset, len(batch))
	return nil
}

func sinkErrorReason(err error) string {
	switch {
	case errors.Is(err, context.Canceled):
		return "canceled"
	case errors.Is(err, context.DeadlineExceeded):
		return "deadline_exceeded"
	default:
		return "write_failed"
	}
}
