package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestSimulationMetricsCounters(t *testing.T) {
	registry := prometheus.NewRegistry()
	m := NewSimulationMetrics(registry, Config{ServiceName: "lifecyclesim", Environment: "test"})

	m.AddGenerated("payments", 10)
	m.AddGenerated("payments", 0)
	m.RecordInjection("late_arrival", "payments", 2)
	m.RecordInjection("duplicate_payments", "payments", 1)
	m.AddWritten("payments", 11)
	m.IncSinkError("payments", "")
	m.SetPopulation(40, 9)
	m.ObserveMonth(250 * time.Millisecond)
	m.MarkSuccess(time.Unix(1700000000, 0))

	if got := testutil.ToFloat64(m.eventsGenerated.WithLabelValues("payments")); got != 10 {
		t.Fatalf("expected 10 generated, got %v", got)
	}
	if got := testutil.ToFloat64(m.chaosInjections.WithLabelValues("late_arrival", "payments")); got != 2 {
		t.Fatalf("expected 2 late injections, got %v", got)
	}
	if got := testutil.ToFloat64(m.recordsWritten.WithLabelValues("payments")); got != 11 {
		t.Fatalf("expected 11 written, got %v", got)
	}
	if got := testutil.ToFloat64(m.sinkErrors.WithLabelValues("payments", "unknown")); got != 1 {
		t.Fatalf("expected 1 sink error, got %v", got)
	}
	if got := testutil.ToFloat64(m.population.WithLabelValues(StatusChurned)); got != 9 {
		t.Fatalf("expected 9 churned, got %v", got)
	}
	if got := testutil.ToFloat64(m.monthsDone); got != 1 {
		t.Fatalf("expected 1 month, got %v", got)
	}
	if got := testutil.CollectAndCount(m.monthDuration); got != 1 {
		t.Fatalf("expected month histogram, got %d series", got)
	}

	families, err := registry.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	for _, mf := range families {
		for _, metric := range mf.GetMetric() {
			labels := map[string]string{}
			for _, lp := range metric.GetLabel() {
				labels[lp.GetName()] = lp.GetValue()
			}
			if labels["service"] != "lifecyclesim" || labels["env"] != "test" {
				t.Fatalf("%s missing const labels: %v", mf.GetName(), labels)
			}
		}
	}
}

func TestSimulationMetricsNilSafe(t *testing.T) {
	var m *SimulationMetrics
	m.AddGenerated("payments", 1)
	m.RecordInjection("x", "payments", 1)
	m.SetPopulation(1, 1)
	m.ObserveMonth(time.Second)
}
