package metrics

// InitializeMetrics pre-populates all expected label combinations so that
// every metric is exported from the first Prometheus scrape.
// Call this once at startup after metric registration.
func InitializeMetrics() {
	// --- DB query operations ---
	for _, op := range []string{"upsert_device", "upsert_binding", "mark_bindings_inactive",
		"upsert_file", "touch_file", "delete_missing_files", "save_checkpoint",
		"claim_file", "delete_file", "claim_binding", "deactivate_binding"} {
		DBQueryTotal.WithLabelValues(op, "success")
		DBQueryTotal.WithLabelValues(op, "error")
		DBQueryDuration.WithLabelValues(op)
	}

	for _, t := range []string{"commit", "rollback"} {
		DBTransactionDuration.WithLabelValues(t)
	}

	// --- Scanner and sync run outcomes ---
	for _, s := range []string{"success", "error", "canceled"} {
		ScannerRunsTotal.WithLabelValues(s)
		SyncSweepsTotal.WithLabelValues(s)
	}

	// --- Catalog gauges ---
	CatalogBindingsTotal.WithLabelValues("active")
	CatalogBindingsTotal.WithLabelValues("inactive")
}
