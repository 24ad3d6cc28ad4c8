// Package metrics provides Prometheus instrumentation for indexmode.
//
// All metrics are registered with the default registry through promauto and
// prefixed with "indexmode_".
//
// # Metric Categories
//
// ## Mode Metrics
//
//   - ModeTransitionsTotal: Counter of smart/dumb crossings by direction
//   - ModeDumb: Gauge, 1 while dumb
//   - ModeDumbCounter: Gauge of the reentrant dumb counter
//
// ## Executor Metrics
//
//   - TasksExecutedTotal: Counter of executed tasks by result
//   - TaskDuration: Histogram of task run time
//   - QueueLength: Gauge of pending tasks
//   - ExecutorRunning: Gauge, 1 while the drain loop runs
//   - SuspensionsActive: Gauge of outstanding pause requests
//
// ## Idle Callback Metrics
//
//   - IdleCallbacksPending: Gauge of queued idle callbacks
//   - IdleCallbacksExecutedTotal: Counter of executed callbacks by result
//
// To expose them, run a Server or mount promhttp.Handler() on a router.
package metrics
