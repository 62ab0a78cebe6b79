package metrics

import (
	"context"
	"testing"
	"time"

	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func TestFilterAttributesDropsForbiddenLabels(t *testing.T) {
	attrs := FilterAttributes(
		attribute.String("dataset", "payments"),
		attribute.String("user_id", "456"),
		attribute.String("sink", "file"),
	)
	if len(attrs) != 2 {
		t.Fatalf("expected 2 attributes, got %d", len(attrs))
	}
	if attrs[0].Key != "dataset" && attrs[1].Key != "dataset" {
		t.Fatalf("expected dataset to be retained")
	}
	if attrs[0].Key != "sink" && attrs[1].Key != "sink" {
		t.Fatalf("expected sink to be retained")
	}
}

func TestRecordSinkWrite(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	m, err := New(Config{ServiceName: "lifecyclesim"}, provider)
	if err != nil {
		t.Fatalf("new metrics: %v", err)
	}

	ctx := context.Background()
	m.RecordSinkWrite(ctx, "file", "payments", 12, time.Millisecond, "")
	m.RecordSinkWrite(ctx, "sql", "payments", 3, time.Millisecond, "deadlock")

	var rm metricdata.ResourceMetrics
	if err := reader.Collect(ctx, &rm); err != nil {
		t.Fatalf("collect: %v", err)
	}
	sums := map[string]int64{}
	for _, sm := range rm.ScopeMetrics {
		for _, md := range sm.Metrics {
			if data, ok := md.Data.(metricdata.Sum[int64]); ok {
				for _, dp := range data.DataPoints {
					sums[md.Name] += dp.Value
				}
			}
		}
	}
	if sums["lifecyclesim_sink_writes_total"] != 2 {
		t.Fatalf("expected 2 writes, got %d", sums["lifecyclesim_sink_writes_total"])
	}
	if sums["lifecyclesim_sink_records_total"] != 12 {
		t.Fatalf("expected 12 records, got %d", sums["lifecyclesim_sink_records_total"])
	}
	if sums["lifecyclesim_sink_errors_total"] != 1 {
		t.Fatalf("expected 1 error, got %d", sums["lifecyclesim_sink_errors_total"])
	}

	var nilMetrics *Metrics
	nilMetrics.RecordSinkWrite(ctx, "file", "payments", 1, 0, "")
}
