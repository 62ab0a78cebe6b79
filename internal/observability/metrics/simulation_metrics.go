package metrics

import (
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Population statuses.
const (
	StatusActive  = "active"
	StatusChurned = "churned"
)

// SimulationMetrics captures per-run generation signals. A run is a batch
// job, so the registry is pushed once at the end rather than scraped.
type SimulationMetrics struct {
	eventsGenerated *prometheus.CounterVec
	chaosInjections *prometheus.CounterVec
	recordsWritten  *prometheus.CounterVec
	sinkErrors      *prometheus.CounterVec
	population      *prometheus.GaugeVec
	monthDuration   prometheus.Histogram
	monthsDone      prometheus.Counter
	lastSuccess     prometheus.Gauge
}

// NewSimulationMetrics registers the run collectors on registerer.
func NewSimulationMetrics(registerer prometheus.Registerer, cfg Config) *SimulationMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	serviceName := strings.TrimSpace(cfg.ServiceName)
	if serviceName == "" {
		serviceName = "lifecyclesim"
	}
	environment := strings.TrimSpace(cfg.Environment)
	if environment == "" {
		environment = "unknown"
	}
	constLabels := prometheus.Labels{
		"service": serviceName,
		"env":     environment,
	}

	m := &SimulationMetrics{
		eventsGenerated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "lifecyclesim_events_generated_total",
			Help:        "Clean records produced by the lifecycle engine before chaos.",
			ConstLabels: constLabels,
		}, []string{"dataset"}),
		chaosInjections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "lifecyclesim_chaos_injections_total",
			Help:        "Records touched by each chaos scenario.",
			ConstLabels: constLabels,
		}, []string{"scenario", "dataset"}),
		recordsWritten: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "lifecyclesim_records_written_total",
			Help:        "Records handed to the sink after chaos.",
			ConstLabels: constLabels,
		}, []string{"dataset"}),
		sinkErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "lifecyclesim_sink_errors_total",
			Help:        "Failed sink writes by low-cardinality reason.",
			ConstLabels: constLabels,
		}, []string{"dataset", "reason"}),
		population: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name:        "lifecyclesim_population",
			Help:        "Simulated users by status at the end of the last completed month.",
			ConstLabels: constLabels,
		}, []string{"status"}),
		monthDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:        "lifecyclesim_month_duration_seconds",
			Help:        "Wall time to simulate, corrupt and write one month.",
			Buckets:     []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
			ConstLabels: constLabels,
		}),
		monthsDone: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "lifecyclesim_months_completed_total",
			Help:        "Months fully written.",
			ConstLabels: constLabels,
		}),
		lastSuccess: prometheus.NewGauge(prometheus.GaugeOpts{
			Name:        "lifecyclesim_last_success_timestamp_seconds",
			Help:        "Unix time the last run finished without error.",
			ConstLabels: constLabels,
		}),
	}

	registerer.MustRegister(
		m.eventsGenerated,
		m.chaosInjections,
		m.recordsWritten,
		m.sinkErrors,
		m.population,
		m.monthDuration,
		m.monthsDone,
		m.lastSuccess,
	)
	return m
}

// AddGenerated adds n clean records of dataset.
func (m *SimulationMetrics) AddGenerated(dataset string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.eventsGenerated.WithLabelValues(dataset).Add(float64(n))
}

// RecordInjection implements chaos.Recorder.
func (m *SimulationMetrics) RecordInjection(scenario, dataset string, records int) {
	if m == nil || records <= 0 {
		return
	}
	m.chaosInjections.WithLabelValues(scenario, dataset).Add(float64(records))
}

// AddWritten adds n records accepted by the sink for dataset.
func (m *SimulationMetrics) AddWritten(dataset string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.recordsWritten.WithLabelValues(dataset).Add(float64(n))
}

// IncSinkError counts a failed write.
func (m *SimulationMetrics) IncSinkError(dataset, reason string) {
	if m == nil {
		return
	}
	if reason == "" {
		reason = "unknown"
	}
	m.sinkErrors.WithLabelValues(dataset, reason).Inc()
}

// SetPopulation records the status split after a month.
func (m *SimulationMetrics) SetPopulation(active, churned int) {
	if m == nil {
		return
	}
	m.population.WithLabelValues(StatusActive).Set(float64(active))
	m.population.WithLabelValues(StatusChurned).Set(float64(churned))
}

// ObserveMonth records how long a month took end to end.
func (m *SimulationMetrics) ObserveMonth(d time.Duration) {
	if m == nil {
		return
	}
	m.monthDuration.Observe(d.Seconds())
	m.monthsDone.Inc()
}

// MarkSuccess stamps the end of a successful run.
func (m *SimulationMetrics) MarkSuccess(at time.Time) {
	if m == nil {
		return
	}
	m.lastSuccess.Set(float64(at.Unix()))
}
