package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Evaluation pipeline metrics
	EvaluationRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pulse_alert_evaluation_runs_total",
			Help: "Total number of evaluation runs",
		},
		[]string{"status"}, // status: completed, failed, skipped
	)

	EvaluationDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "pulse_alert_evaluation_duration_seconds",
			Help:    "Time taken by one evaluation run",
			Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30},
		},
	)

	ScopeOutcomesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pulse_alert_scope_outcomes_total",
			Help: "Total number of per-scope evaluation outcomes",
		},
		[]string{"state"},
	)

	// Consumer metrics
	ConsumerErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pulse_alert_consumer_errors_total",
			Help: "Total number of errors inside outcome-event consumers",
		},
		[]string{"consumer"}, // state_updater, history_logger
	)

	PanicsRecovered = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pulse_alert_panics_recovered_total",
			Help: "Total number of panics recovered",
		},
		[]string{"component"},
	)

	// Notification metrics
	NotificationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pulse_alert_notifications_total",
			Help: "Total number of notification deliveries attempted",
		},
		[]string{"status"}, // status: sent, failed, suppressed
	)
)
