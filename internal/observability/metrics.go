package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus collectors for the alert engine.
type Metrics struct {
	CyclesTotal        *prometheus.CounterVec   // labels: trigger={schedule,manual}, outcome={ok,source_unavailable,error}
	CycleDuration      prometheus.Histogram
	ActiveSchedules    prometheus.Gauge
	Observations       *prometheus.CounterVec   // labels: source={sensor,forecast}
	SourceErrors       *prometheus.CounterVec   // labels: source
	SkippedSensors     prometheus.Counter
	GenerationAttempts prometheus.Counter
	GenerationFallback prometheus.Counter
	AlertsTotal        *prometheus.CounterVec   // labels: severity
	ChannelOutcomes    *prometheus.CounterVec   // labels: channel, outcome={success,failed,skipped}
	ChannelDuration    *prometheus.HistogramVec // labels: channel
	LedgerErrors       prometheus.Counter
}

// NewMetrics creates and registers all metrics with the default Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics()
	prometheus.MustRegister(
		m.CyclesTotal,
		m.CycleDuration,
		m.ActiveSchedules,
		m.Observations,
		m.SourceErrors,
		m.SkippedSensors,
		m.GenerationAttempts,
		m.GenerationFallback,
		m.AlertsTotal,
		m.ChannelOutcomes,
		m.ChannelDuration,
		m.LedgerErrors,
	)
	return m
}

// NewMetricsForTesting creates unregistered metrics so tests can build as many as they like.
func NewMetricsForTesting() *Metrics {
	return newMetrics()
}

func newMetrics() *Metrics {
	return &Metrics{
		CyclesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "flood_alert",
			Name:      "cycles_total",
			Help:      "Evaluation cycles by trigger and outcome.",
		}, []string{"trigger", "outcome"}),
		CycleDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "flood_alert",
			Name:      "cycle_duration_seconds",
			Help:      "Duration of one user evaluation cycle.",
			Buckets:   []float64{0.05, 0.1, 0.5, 1, 2.5, 5, 10, 20, 30, 60},
		}),
		ActiveSchedules: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "flood_alert",
			Name:      "active_schedules",
			Help:      "Users with a running scheduler entry.",
		}),
		Observations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "flood_alert",
			Name:      "observations_total",
			Help:      "Hazard observations produced by source.",
		}, []string{"source"}),
		SourceErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "flood_alert",
			Name:      "source_errors_total",
			Help:      "Failed reads of a hazard source.",
		}, []string{"source"}),
		SkippedSensors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "flood_alert",
			Name:      "skipped_sensors_total",
			Help:      "Sensor records dropped for missing coordinates.",
		}),
		GenerationAttempts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "flood_alert",
			Name:      "generation_attempts_total",
			Help:      "Calls made to the generative text provider.",
		}),
		GenerationFallback: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "flood_alert",
			Name:      "generation_fallback_total",
			Help:      "Alerts that used the templated fallback content.",
		}),
		AlertsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "flood_alert",
			Name:      "alerts_total",
			Help:      "Alert events created by severity.",
		}, []string{"severity"}),
		ChannelOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "flood_alert",
			Name:      "channel_outcomes_total",
			Help:      "Delivery outcomes by channel.",
		}, []string{"channel", "outcome"}),
		ChannelDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "flood_alert",
			Name:      "channel_duration_seconds",
			Help:      "Delivery latency by channel.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}, []string{"channel"}),
		LedgerErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "flood_alert",
			Name:      "ledger_errors_total",
			Help:      "Failed ledger writes.",
		}),
	}
}
