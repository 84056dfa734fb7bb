package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// HTTP metrics
var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_catalog_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "media_catalog_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	HTTPRequestsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "media_catalog_http_requests_in_flight",
			Help: "Number of HTTP requests currently being processed",
		},
	)
)

// Database metrics
var (
	DBQueryTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_catalog_db_queries_total",
			Help: "Total number of database queries",
		},
		[]string{"operation", "status"},
	)

	DBQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "media_catalog_db_query_duration_seconds",
			Help:    "Database query duration in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		},
		[]string{"operation"},
	)

	DBTransactionDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "media_catalog_db_transaction_duration_seconds",
			Help:    "Database transaction duration in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30},
		},
		[]string{"type"}, // "commit" or "rollback"
	)

	DBConnectionsOpen = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "media_catalog_db_connections_open",
			Help: "Number of open database connections",
		},
	)
)

// Scanner metrics
var (
	ScannerRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_catalog_scanner_runs_total",
			Help: "Total number of scan runs",
		},
		[]string{"status"}, // "success", "error", "canceled"
	)

	ScannerFilesSeen = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "media_catalog_scanner_files_seen_total",
			Help: "Total number of media files encountered during scans",
		},
	)

	ScannerFilesHashed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "media_catalog_scanner_files_hashed_total",
			Help: "Total number of files hashed because they were new or changed",
		},
	)

	ScannerFilesUnchanged = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "media_catalog_scanner_files_unchanged_total",
			Help: "Total number of files skipped because size and mtime matched the catalog",
		},
	)

	ScannerFilesRemoved = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "media_catalog_scanner_files_removed_total",
			Help: "Total number of catalog rows removed because the file was no longer present",
		},
	)

	ScannerHashTimeouts = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "media_catalog_scanner_hash_timeouts_total",
			Help: "Total number of files whose content hash timed out",
		},
	)

	ScannerErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "media_catalog_scanner_errors_total",
			Help: "Total number of per-file scan errors",
		},
	)

	ScannerIsRunning = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "media_catalog_scanner_running",
			Help: "Whether a scan is currently running (1 = running, 0 = idle)",
		},
	)

	ScannerLastRunTimestamp = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "media_catalog_scanner_last_run_timestamp",
			Help: "Unix timestamp of the last completed scan",
		},
	)

	ScannerLastRunDuration = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "media_catalog_scanner_last_run_duration_seconds",
			Help: "Duration of the last completed scan in seconds",
		},
	)
)

// Sync metrics
var (
	SyncSweepsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_catalog_sync_sweeps_total",
			Help: "Total number of sync sweeps",
		},
		[]string{"status"},
	)

	SyncFilesClaimed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "media_catalog_sync_files_claimed_total",
			Help: "Total number of file rows whose ownership was taken over during sync",
		},
	)

	SyncFilesDeleted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "media_catalog_sync_files_deleted_total",
			Help: "Total number of file rows deleted during sync because the file was verifiably gone",
		},
	)

	SyncBindingsClaimed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "media_catalog_sync_bindings_claimed_total",
			Help: "Total number of mount bindings whose ownership was taken over during sync",
		},
	)

	SyncBindingsDeactivated = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "media_catalog_sync_bindings_deactivated_total",
			Help: "Total number of mount bindings deactivated during sync",
		},
	)

	SyncErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "media_catalog_sync_errors_total",
			Help: "Total number of sync sweep errors",
		},
	)

	SyncLastSweepTimestamp = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "media_catalog_sync_last_sweep_timestamp",
			Help: "Unix timestamp of the last completed sync sweep",
		},
	)
)

// Device metrics
var (
	DevicesAttached = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "media_catalog_devices_attached",
			Help: "Number of storage devices currently detected on this system",
		},
	)

	DeviceResolutionErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "media_catalog_device_resolution_errors_total",
			Help: "Total number of device identity resolution failures",
		},
	)
)

// Catalog size metrics, refreshed by the Collector.
var (
	CatalogDevicesTotal = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "media_catalog_devices_total",
			Help: "Total number of devices known to the catalog",
		},
	)

	CatalogBindingsTotal = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "media_catalog_bindings_total",
			Help: "Total number of mount bindings by state",
		},
		[]string{"state"}, // "active", "inactive"
	)

	CatalogFilesTotal = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "media_catalog_files_total",
			Help: "Total number of file records in the catalog",
		},
	)
)

// Application info metric
var (
	AppInfo = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "media_catalog_app_info",
			Help: "Application information",
		},
		[]string{"version", "commit", "go_version"},
	)
)

// SetAppInfo sets the application info metric
func SetAppInfo(version, commit, goVersion string) {
	AppInfo.WithLabelValues(version, commit, goVersion).Set(1)
}
