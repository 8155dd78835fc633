// Package metrics provides Prometheus metrics for monitoring turnstiled.
package metrics

import (
	"net/http"
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// TasksTotal counts submitted tasks by terminal status.
	TasksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "turnstiled_tasks_total",
			Help: "Total number of solve tasks by terminal status",
		},
		[]string{"status"},
	)

	// SolveDuration tracks solve duration by outcome.
	SolveDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "turnstiled_solve_duration_seconds",
			Help:    "Solve duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.25, 2, 10), // 0.25s to ~128s
		},
		[]string{"outcome"},
	)

	// SolveFailures counts failed solves by reason.
	SolveFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "turnstiled_solve_failures_total",
			Help: "Total solve failures by reason",
		},
		[]string{"reason"},
	)

	// PoolInstances shows the number of live browser instances.
	PoolInstances = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "turnstiled_pool_instances",
			Help: "Live browser instances in the pool",
		},
	)

	// PoolLeases shows the number of page slots currently leased.
	PoolLeases = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "turnstiled_pool_leases",
			Help: "Page slots currently leased to tasks",
		},
	)

	// PoolCapacity shows the configured maximum concurrent leases.
	PoolCapacity = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "turnstiled_pool_capacity",
			Help: "Maximum concurrent page slot leases",
		},
	)

	// RegistryTasks shows tasks currently held by the registry.
	RegistryTasks = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "turnstiled_registry_tasks",
			Help: "Tasks currently held in the registry",
		},
	)

	// MemoryUsageBytes shows current memory usage.
	MemoryUsageBytes = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "turnstiled_memory_usage_bytes",
			Help: "Current memory usage in bytes (alloc)",
		},
	)

	// GoroutineCount shows current goroutine count.
	GoroutineCount = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "turnstiled_goroutines",
			Help: "Current number of goroutines",
		},
	)

	// BuildInfo provides build information as labels.
	BuildInfo = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "turnstiled_build_info",
			Help: "Build information",
		},
		[]string{"version", "go_version"},
	)
)

func init() {
	prometheus.MustRegister(
		TasksTotal,
		SolveDuration,
		SolveFailures,
		PoolInstances,
		PoolLeases,
		PoolCapacity,
		RegistryTasks,
		MemoryUsageBytes,
		GoroutineCount,
		BuildInfo,
	)
}

// Handler returns the Prometheus HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// SetBuildInfo sets the build info metric.
func SetBuildInfo(version, goVersion string) {
	BuildInfo.WithLabelValues(version, goVersion).Set(1)
}

// StartMemoryCollector starts a goroutine that periodically updates memory metrics.
func StartMemoryCollector(interval time.Duration, stopCh <-chan struct{}) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			var m runtime.MemStats
			runtime.ReadMemStats(&m)
			MemoryUsageBytes.Set(float64(m.Alloc))
			GoroutineCount.Set(float64(runtime.NumGoroutine()))
		case <-stopCh:
			return
		}
	}
}

// RecordTask records a task reaching a terminal status.
func RecordTask(status string) {
	TasksTotal.WithLabelValues(status).Inc()
}

// RecordSolve records a completed solve attempt.
func RecordSolve(outcome string, duration time.Duration) {
	SolveDuration.WithLabelValues(outcome).Observe(duration.Seconds())
}

// RecordSolveFailure records a failed solve with its reason.
func RecordSolveFailure(reason string) {
	SolveFailures.WithLabelValues(reason).Inc()
}

// UpdatePoolMetrics updates browser pool gauges.
func UpdatePoolMetrics(instances, leases, capacity int) {
	PoolInstances.Set(float64(instances))
	PoolLeases.Set(float64(leases))
	PoolCapacity.Set(float64(capacity))
}

// UpdateRegistryMetrics updates the registry gauge.
func UpdateRegistryMetrics(count int) {
	RegistryTasks.Set(float64(count))
}
