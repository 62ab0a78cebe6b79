package sink

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/smallbiznis/lifecyclesim/internal/event"
	"github.com/smallbiznis/lifecyclesim/internal/observability/metrics"
	"github.com/smallbiznis/lifecyclesim/internal/observability/tracing"
	"github.com/smallbiznis/lifecyclesim/pkg/db"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

//go:generate mockgen -destination=mocks/mock_sink.go -package=mocks github.com/smallbiznis/lifecyclesim/internal/sink Sink

var (
	ErrNoSinks     = errors.New("no_sinks_configured")
	ErrUnknownSink = errors.New("unknown_sink")
)

// Sink lands one dataset batch. Records are partitioned by the date of
// tsField; an empty batch writes nothing.
type Sink interface {
	Write(ctx context.Context, batch event.Batch, dataset, tsField string) error
}

// Multi writes every batch to each sink in order. All sinks are attempted;
// failures are joined.
type Multi []Sink

func (m Multi) Write(ctx context.Context, batch event.Batch, dataset, tsField string) error {
	if len(batch) == 0 {
		return nil
	}
	var errs []error
	for _, s := range m {
		if s == nil {
			continue
		}
		if err := s.Write(ctx, batch, dataset, tsField); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Instrumented wraps a sink with a span and the OTel sink counters.
type Instrumented struct {
	name    string
	next    Sink
	metrics *metrics.Metrics
}

func Instrument(name string, next Sink, m *metrics.Metrics) *Instrumented {
	return &Instrumented{name: name, next: next, metrics: m}
}

func (s *Instrumented) Write(ctx context.Context, batch event.Batch, dataset, tsField string) error {
	if len(batch) == 0 {
		return nil
	}
	ctx, span := tracing.Tracer().Start(ctx, "sink.write",
		trace.WithAttributes(
			attribute.String("sink", s.name),
			attribute.String("dataset", dataset),
			attribute.Int("records", len(batch)),
		),
	)
	defer span.End()

	start := time.Now()
	err := s.next.Write(ctx, batch, dataset, tsField)
	reason := ""
	if err != nil {
		reason = db.ErrorReason(err)
		span.RecordError(err)
		span.SetStatus(codes.Error, reason)
		err = fmt.Errorf("%s sink: %w", s.name, err)
	}
	s.metrics.RecordSinkWrite(ctx, s.name, dataset, len(batch), time.Since(start), reason)
	return err
}
