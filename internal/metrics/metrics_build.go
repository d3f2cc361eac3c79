package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ModuleRebuildCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "semodwatch_module_rebuild_total",
			Help: "Total number of module rebuilds by compile and install status",
		},
		[]string{"compile_status", "install_status"},
	)

	ModuleRebuildFailed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "semodwatch_module_rebuild_failed_total",
			Help: "Number of module rebuilds that did not complete",
		},
		[]string{"error_type"},
	)

	ModuleRebuildDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "semodwatch_module_rebuild_duration_seconds",
			Help:    "Module compile and install duration in seconds",
			Buckets: []float64{0.5, 1, 2, 5, 10, 20, 30, 60, 120, 300},
		},
	)

	HookCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "semodwatch_hook_total",
			Help: "Total number of relabelling hook executions",
		},
		[]string{"result"},
	)

	CycleCount = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "semodwatch_cycle_total",
			Help: "Total number of trigger cycles",
		},
	)

	LastCycleEnd = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "semodwatch_last_cycle_end_timestamp",
			Help: "Unix timestamp of when the last trigger cycle ended",
		},
	)

	PendingModuleCount = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "semodwatch_pending_modules",
			Help: "Number of modules waiting for the next cycle",
		},
	)

	SyncCount = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "semodwatch_git_sync_total",
			Help: "Total number of working copy sync operations",
		},
	)

	SyncFailedCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "semodwatch_git_sync_failed_total",
			Help: "Total number of failed working copy sync operations",
		},
		[]string{"step"},
	)

	SyncDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "semodwatch_git_sync_duration_seconds",
			Help:    "Working copy sync duration in seconds",
			Buckets: []float64{0.1, 0.2, 0.5, 1, 2, 5, 10, 30, 60},
		},
	)
)

// ModuleRebuilt records the statuses and duration of one rebuild.
func ModuleRebuilt(compileStatus, installStatus int, d time.Duration) {
	ModuleRebuildCount.WithLabelValues(strconv.Itoa(compileStatus), strconv.Itoa(installStatus)).Inc()
	ModuleRebuildDuration.Observe(d.Seconds())
}

// ModuleRebuildAborted records a rebuild that failed before its statuses
// were known.
func ModuleRebuildAborted(errorType string) {
	ModuleRebuildFailed.WithLabelValues(errorType).Inc()
}

// HookExecuted records a hook run. A nil error with a zero status is "ok".
func HookExecuted(status int, err error) {
	result := "ok"
	switch {
	case err != nil:
		result = "error"
	case status != 0:
		result = "failed"
	}
	HookCount.WithLabelValues(result).Inc()
}

// CycleCompleted records the end of a trigger cycle.
func CycleCompleted(end time.Time) {
	CycleCount.Inc()
	LastCycleEnd.Set(float64(end.Unix()))
}

// PendingModules sets the pending module gauge.
func PendingModules(n int) {
	PendingModuleCount.Set(float64(n))
}

// SyncCompleted records a sync attempt that did not fail.
func SyncCompleted(d time.Duration) {
	SyncCount.Inc()
	SyncDuration.Observe(d.Seconds())
}

// SyncFailed records a failed sync step ("fetch" or "pull").
func SyncFailed(step string) {
	SyncCount.Inc()
	SyncFailedCount.WithLabelValues(step).Inc()
}
