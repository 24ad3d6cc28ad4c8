package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Result label values.
const (
	ResultSuccess  = "success"
	ResultCanceled = "canceled"
	ResultError    = "error"
	ResultPanic    = "panic"
)

// Mode metrics
var (
	ModeTransitionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "indexmode_mode_transitions_total",
			Help: "Total number of smart/dumb mode transitions",
		},
		[]string{"direction"}, // "enter_dumb", "exit_dumb"
	)

	ModeDumb = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "indexmode_mode_dumb",
			Help: "Whether the session is in dumb mode (1 = dumb, 0 = smart)",
		},
	)

	ModeDumbCounter = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "indexmode_mode_dumb_counter",
			Help: "Current value of the reentrant dumb counter",
		},
	)
)

// Executor metrics
var (
	TasksExecutedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "indexmode_tasks_executed_total",
			Help: "Total number of background tasks executed",
		},
		[]string{"result"},
	)

	TaskDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "indexmode_task_duration_seconds",
			Help:    "Background task run time in seconds",
			Buckets: []float64{0.001, 0.01, 0.1, 0.5, 1, 5, 15, 60, 300},
		},
	)

	QueueLength = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "indexmode_queue_length",
			Help: "Number of pending background tasks",
		},
	)

	ExecutorRunning = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "indexmode_executor_running",
			Help: "Whether the background drain loop is running (1 = running, 0 = idle)",
		},
	)

	SuspensionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "indexmode_suspensions_active",
			Help: "Number of outstanding suspension requests",
		},
	)
)

// Idle callback metrics
var (
	IdleCallbacksPending = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "indexmode_idle_callbacks_pending",
			Help: "Number of queued idle callbacks",
		},
	)

	IdleCallbacksExecutedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "indexmode_idle_callbacks_executed_total",
			Help: "Total number of idle callbacks executed",
		},
		[]string{"result"},
	)
)

// BoolToFloat converts a flag to a gauge value.
func BoolToFloat(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
