package sink_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/golang/mock/gomock"
	"github.com/smallbiznis/lifecyclesim/internal/config"
	"github.com/smallbiznis/lifecyclesim/internal/event"
	"github.com/smallbiznis/lifecyclesim/internal/observability/metrics"
	"github.com/smallbiznis/lifecyclesim/internal/sink"
	"github.com/smallbiznis/lifecyclesim/internal/sink/mocks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	"go.uber.org/fx/fxtest"
	"go.uber.org/zap"
)

func batch() event.Batch {
	return event.Batch{
		{event.FieldPaymentID: "p1", event.FieldPaymentTimeUTC: time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)},
	}
}

func TestMultiWritesEverySinkAndJoinsErrors(t *testing.T) {
	ctrl := gomock.NewController(t)
	first := mocks.NewMockSink(ctrl)
	second := mocks.NewMockSink(ctrl)
	third := mocks.NewMockSink(ctrl)

	b := batch()
	boom := errors.New("boom")
	gomock.InOrder(
		first.EXPECT().Write(gomock.Any(), b, event.DatasetPayments, event.FieldPaymentTimeUTC).Return(boom),
		second.EXPECT().Write(gomock.Any(), b, event.DatasetPayments, event.FieldPaymentTimeUTC).Return(nil),
		third.EXPECT().Write(gomock.Any(), b, event.DatasetPayments, event.FieldPaymentTimeUTC).Return(nil),
	)

	err := sink.Multi{first, nil, second, third}.Write(context.Background(), b, event.DatasetPayments, event.FieldPaymentTimeUTC)
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
}

func TestMultiSkipsEmptyBatch(t *testing.T) {
	ctrl := gomock.NewController(t)
	s := mocks.NewMockSink(ctrl)
	s.EXPECT().Write(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).Times(0)

	require.NoError(t, sink.Multi{s}.Write(context.Background(), event.Batch{}, event.DatasetUsers, event.FieldCreatedAtUTC))
}

func TestInstrumentedRecordsWrites(t *testing.T) {
	reader := metric.NewManualReader()
	provider := metric.NewMeterProvider(metric.WithReader(reader))
	m, err := metrics.New(metrics.Config{ServiceName: "test"}, provider)
	require.NoError(t, err)

	ctrl := gomock.NewController(t)
	next := mocks.NewMockSink(ctrl)
	next.EXPECT().Write(gomock.Any(), gomock.Any(), event.DatasetPayments, event.FieldPaymentTimeUTC).Return(nil)
	next.EXPECT().Write(gomock.Any(), gomock.Any(), event.DatasetPayments, event.FieldPaymentTimeUTC).Return(context.DeadlineExceeded)

	s := sink.Instrument("file", next, m)
	require.NoError(t, s.Write(context.Background(), batch(), event.DatasetPayments, event.FieldPaymentTimeUTC))
	err = s.Write(context.Background(), batch(), event.DatasetPayments, event.FieldPaymentTimeUTC)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Contains(t, err.Error(), "file sink")

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))
	sums := map[string]int64{}
	for _, sm := range rm.ScopeMetrics {
		for _, mm := range sm.Metrics {
			if sum, ok := mm.Data.(metricdata.Sum[int64]); ok {
				for _, dp := range sum.DataPoints {
					sums[mm.Name] += dp.Value
				}
			}
		}
	}
	assert.Equal(t, int64(2), sums["lifecyclesim_sink_writes_total"])
	assert.Equal(t, int64(1), sums["lifecyclesim_sink_records_total"])
	assert.Equal(t, int64(1), sums["lifecyclesim_sink_errors_total"])
}

func TestNewBuildsConfiguredSinks(t *testing.T) {
	lc := fxtest.NewLifecycle(t)
	cfg := config.Config{Sinks: []string{"file"}, OutputDir: t.TempDir()}

	s, err := sink.New(sink.Params{Lifecycle: lc, Config: cfg, Logger: zap.NewNop()})
	require.NoError(t, err)
	require.Len(t, s.(sink.Multi), 1)

	_, err = sink.New(sink.Params{Lifecycle: lc, Config: config.Config{}, Logger: zap.NewNop()})
	assert.ErrorIs(t, err, sink.ErrNoSinks)

	_, err = sink.New(sink.Params{Lifecycle: lc, Config: config.Config{Sinks: []string{"kafka"}}, Logger: zap.NewNop()})
	assert.ErrorIs(t, err, sink.ErrUnknownSink)

	_, err = sink.New(sink.Params{Lifecycle: lc, Config: config.Config{Sinks: []string{"redis"}}, Logger: zap.NewNop()})
	assert.Error(t, err, "redis requires an address")
}
