// Package scanner walks mounted devices and records their media files in the
// catalog. Scans are incremental: files whose size and mtime match the stored
// record are only marked as seen, new or changed files are re-hashed, and
// rows whose files disappeared are removed once a walk completes. Progress
// checkpoints are written periodically so an interrupted scan can be resumed
// without losing the work already committed.
package scanner
