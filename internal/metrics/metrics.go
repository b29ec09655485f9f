package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Scan outcomes used as the "result" label.
const (
	ResultSuccess      = "success"
	ResultIOFailure    = "io_failure"
	ResultOtherFailure = "other_failure"
	ResultNoLocation   = "no_location"
	ResultShutdown     = "shutdown"
)

var (
	ScannerScanCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "torua",
			Subsystem: "scanner",
			Name:      "scans_total",
			Help:      "The counter of catalog region scan attempts",
		}, []string{"scanner", "result"})

	ScannerScanDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "torua",
			Subsystem: "scanner",
			Name:      "scan_duration_seconds",
			Help:      "Bucketed histogram of the time spent scanning one catalog region",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 16), // 1ms ~ 32s
		}, []string{"scanner"})

	ScannerInitialScanGauge = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "torua",
			Subsystem: "scanner",
			Name:      "initial_scan_complete",
			Help:      "1 once the scanner has completed its initial scan",
		}, []string{"scanner"})

	HealthCheckCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "torua",
			Subsystem: "health",
			Name:      "checks_total",
			Help:      "The counter of region server health checks",
		}, []string{"result"}) // result: healthy, failed

	FileSystemCheckCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "torua",
			Subsystem: "filesystem",
			Name:      "checks_total",
			Help:      "The counter of coordinator filesystem probes",
		}, []string{"result"}) // result: ok, failed, throttled

	CatalogRowsGauge = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "torua",
			Subsystem: "catalog",
			Name:      "rows",
			Help:      "Rows seen by the last scan of each catalog region, by assignment state",
		}, []string{"region", "state"}) // state: assigned, unassigned, offline
)

// InitMetrics registers all coordinator metrics.
func InitMetrics(registry *prometheus.Registry) {
	registry.MustRegister(ScannerScanCounter)
	registry.MustRegister(ScannerScanDuration)
	registry.MustRegister(ScannerInitialScanGauge)
	registry.MustRegister(HealthCheckCounter)
	registry.MustRegister(FileSystemCheckCounter)
	registry.MustRegister(CatalogRowsGauge)
}
