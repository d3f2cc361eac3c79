package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	WatchEventCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "semodwatch_watch_events_total",
			Help: "Total number of change notifications by kind",
		},
		[]string{"kind"},
	)

	WatchedDirectoryCount = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "semodwatch_watched_directories",
			Help: "Number of directories currently registered with the watcher",
		},
	)
)

// EventObserved counts one change notification.
func EventObserved(kind string) {
	WatchEventCount.WithLabelValues(kind).Inc()
}

// WatchedDirectories sets the registered directory gauge.
func WatchedDirectories(n int) {
	WatchedDirectoryCount.Set(float64(n))
}
