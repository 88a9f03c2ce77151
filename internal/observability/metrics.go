package observability

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce sync.Once

	commandsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "chamctl",
			Subsystem: "device",
			Name:      "commands_total",
			Help:      "Total device commands dispatched.",
		},
		[]string{"priority", "success"},
	)
	commandDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "chamctl",
			Subsystem: "device",
			Name:      "command_duration_seconds",
			Help:      "Device command I/O duration in seconds.",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2, 3, 5, 10},
		},
		[]string{"priority", "success"},
	)
	queueDepth = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "chamctl",
			Subsystem: "scheduler",
			Name:      "queue_depth",
			Help:      "Pending requests per priority queue.",
		},
		[]string{"priority"},
	)
	breakerFailures = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "chamctl",
			Subsystem: "scheduler",
			Name:      "breaker_consecutive_failures",
			Help:      "Consecutive dispatch failures tracked by the circuit breaker.",
		},
	)
	refreshCycles = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "chamctl",
			Subsystem: "refresh",
			Name:      "cycles_total",
			Help:      "Background refresh cycles by outcome.",
		},
		[]string{"outcome"},
	)
)

func RegisterMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(commandsTotal, commandDuration, queueDepth, breakerFailures, refreshCycles)
	})
}

func RecordCommand(priority string, success bool, duration time.Duration) {
	RegisterMetrics()
	successLabel := strconv.FormatBool(success)
	commandsTotal.WithLabelValues(priority, successLabel).Inc()
	commandDuration.WithLabelValues(priority, successLabel).Observe(duration.Seconds())
}

func SetQueueDepths(high, low int) {
	RegisterMetrics()
	queueDepth.WithLabelValues("HIGH").Set(float64(high))
	queueDepth.WithLabelValues("LOW").Set(float64(low))
}

func SetBreakerFailures(n int) {
	RegisterMetrics()
	breakerFailures.Set(float64(n))
}

// RecordRefreshCycle counts one background refresh pass. Outcome is one of
// "ok", "skipped", or "failed".
func RecordRefreshCycle(outcome string) {
	RegisterMetrics()
	refreshCycles.WithLabelValues(outcome).Inc()
}
