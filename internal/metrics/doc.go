// Package metrics declares the Prometheus instrumentation for the catalog.
//
// All metrics are registered at package init time via promauto and share the
// media_catalog_ prefix. The package is organized by subsystem:
//
//   - HTTP: request counts, durations, and in-flight gauge, driven by the
//     server middleware.
//   - Database: per-operation query counters and duration histograms plus
//     transaction commit/rollback timing, driven by the catalog stores.
//   - Scanner: per-run and per-file counters (seen, hashed, unchanged,
//     removed, hash timeouts, errors) and last-run gauges.
//   - Sync: sweep counters and ownership takeover / deletion counters.
//   - Device: attached-device gauge and resolution failure counter.
//   - Catalog size: device, binding, and file totals, refreshed periodically
//     by the Collector from a StatsProvider.
//
// Call InitializeMetrics once at startup so every expected label combination
// is present from the first scrape.
package metrics
