package scanner

import (
	"context"
	"database/sql"
	"errors"
	"io/fs"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"media-catalog/internal/catalog"
	"media-catalog/internal/logging"
	"media-catalog/internal/mediatypes"
	"media-catalog/internal/metrics"
	"media-catalog/internal/pathutil"
)

// Options controls how a scan walks, hashes, and checkpoints.
type Options struct {
	// HashTimeout bounds the time spent hashing a single file.
	HashTimeout time.Duration
	// HashMaxBytes bounds how many leading bytes of a file are hashed.
	// Zero means the whole file.
	HashMaxBytes int64
	// BlockSize is the read size used while hashing.
	BlockSize int
	// CheckpointInterval is how often scan progress is flushed and a
	// checkpoint row written.
	CheckpointInterval time.Duration
	// BatchSize is the maximum number of file operations per transaction.
	BatchSize int
	// SkipDirPrefixes lists absolute path prefixes that are never entered.
	SkipDirPrefixes []string
	// Extensions is the set of file extensions recorded, lowercase with
	// leading dot. Empty means every file.
	Extensions []string
}

// DefaultSkipDirPrefixes covers the system paths that never hold user media.
var DefaultSkipDirPrefixes = []string{
	"/System", "/Volumes/Recovery", "/private", "/Library", "/bin", "/sbin", "/usr",
	"/proc", "/sys", "/dev", "/run", "/boot",
}

// DefaultExtensions is the default media extension allow-list.
var DefaultExtensions = mediatypes.AllExtensions()

// DefaultOptions returns the scan settings used when no configuration
// overrides them.
func DefaultOptions() Options {
	return Options{
		HashTimeout:        10 * time.Second,
		HashMaxBytes:       10 * 1024 * 1024,
		BlockSize:          65536,
		CheckpointInterval: 30 * time.Second,
		BatchSize:          500,
		SkipDirPrefixes:    DefaultSkipDirPrefixes,
		Extensions:         DefaultExtensions,
	}
}

// Result summarizes a single device scan.
type Result struct {
	DeviceID       string
	MountPath      string
	FilesSeen      int64
	FilesHashed    int64
	FilesUnchanged int64
	FilesRemoved   int64
	HashTimeouts   int64
	Errors         int64
	Duration       time.Duration
}

// Scanner walks devices and keeps the catalog in step with what is on disk.
type Scanner struct {
	store      catalog.Store
	systemID   string
	opts       Options
	extensions map[string]bool
}

// New creates a scanner writing records for the given system ID.
func New(store catalog.Store, systemID string, opts Options) *Scanner {
	if opts.BlockSize <= 0 {
		opts.BlockSize = 65536
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = 500
	}
	exts := make(map[string]bool, len(opts.Extensions))
	for _, e := range opts.Extensions {
		exts[strings.ToLower(e)] = true
	}
	return &Scanner{store: store, systemID: systemID, opts: opts, extensions: exts}
}

// ScanDevice walks the device mounted at mountPath and reconciles the
// catalog's records for it. The walk is incremental: unchanged files are only
// marked as seen, new or modified files are hashed and upserted, and rows not
// seen by a completed walk are deleted. A canceled or failed walk commits the
// progress made so far and leaves the remaining rows untouched, so the next
// scan picks up where this one stopped.
func (s *Scanner) ScanDevice(ctx context.Context, deviceID, mountPath string) (*Result, error) {
	scanStart := time.Now().UTC()
	res := &Result{DeviceID: deviceID, MountPath: mountPath}

	metrics.ScannerIsRunning.Set(1)
	defer metrics.ScannerIsRunning.Set(0)

	logging.Info("Scanning device %s at %s", deviceID, mountPath)

	tx, err := s.store.BeginBatch()
	if err != nil {
		metrics.ScannerRunsTotal.WithLabelValues("error").Inc()
		return res, err
	}

	batchCount := 0
	lastCheckpoint := time.Now()

	// Commits the open batch and writes a progress checkpoint, then opens
	// a fresh transaction for the next batch.
	flush := func() error {
		if err := s.store.EndBatch(tx, nil); err != nil {
			return err
		}
		s.saveCheckpoint(ctx, deviceID, res)
		batchCount = 0
		lastCheckpoint = time.Now()
		tx, err = s.store.BeginBatch()
		return err
	}

	walkErr := filepath.WalkDir(mountPath, func(path string, d fs.DirEntry, err error) error {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if err != nil {
			if path == mountPath {
				return err
			}
			logging.Debug("Skipping unreadable entry %s: %v", path, err)
			res.Errors++
			metrics.ScannerErrors.Inc()
			return nil
		}

		if d.IsDir() {
			if path != mountPath && s.skipDir(path, d.Name()) {
				return filepath.SkipDir
			}
			return nil
		}
		if !s.wantFile(d.Name()) {
			return nil
		}

		res.FilesSeen++
		metrics.ScannerFilesSeen.Inc()

		if err := s.scanFile(ctx, tx, deviceID, mountPath, path, d, res); err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return err
			}
			logging.Warn("Failed to record %s: %v", path, err)
			res.Errors++
			metrics.ScannerErrors.Inc()
			return nil
		}
		batchCount++

		if batchCount >= s.opts.BatchSize ||
			(s.opts.CheckpointInterval > 0 && time.Since(lastCheckpoint) >= s.opts.CheckpointInterval) {
			return flush()
		}
		return nil
	})

	if walkErr != nil {
		// Keep the progress already made; the stale-row cleanup is only
		// safe after a complete walk.
		if err := s.store.EndBatch(tx, nil); err != nil {
			logging.Error("Failed to commit partial scan batch: %v", err)
		}
		s.saveCheckpoint(ctx, deviceID, res)
		res.Duration = time.Since(scanStart)
		if errors.Is(walkErr, context.Canceled) || errors.Is(walkErr, context.DeadlineExceeded) {
			metrics.ScannerRunsTotal.WithLabelValues("canceled").Inc()
			logging.Warn("Scan of %s canceled after %d files", deviceID, res.FilesSeen)
		} else {
			metrics.ScannerRunsTotal.WithLabelValues("error").Inc()
			logging.Error("Scan of %s failed: %v", deviceID, walkErr)
		}
		return res, walkErr
	}

	removed, err := s.store.DeleteFilesBefore(tx, deviceID, s.systemID, scanStart)
	if err != nil {
		metrics.ScannerRunsTotal.WithLabelValues("error").Inc()
		return res, s.store.EndBatch(tx, err)
	}
	res.FilesRemoved = removed
	metrics.ScannerFilesRemoved.Add(float64(removed))

	if err := s.store.EndBatch(tx, nil); err != nil {
		metrics.ScannerRunsTotal.WithLabelValues("error").Inc()
		return res, err
	}
	s.saveCheckpoint(ctx, deviceID, res)

	res.Duration = time.Since(scanStart)
	metrics.ScannerRunsTotal.WithLabelValues("success").Inc()
	metrics.ScannerLastRunTimestamp.SetToCurrentTime()
	metrics.ScannerLastRunDuration.Set(res.Duration.Seconds())

	logging.Info("Scan of %s complete: %d seen, %d hashed, %d unchanged, %d removed, %d timeouts, %d errors in %v",
		deviceID, res.FilesSeen, res.FilesHashed, res.FilesUnchanged, res.FilesRemoved,
		res.HashTimeouts, res.Errors, res.Duration.Round(time.Millisecond))
	return res, nil
}

// ScanAll scans every mount in the map, in deterministic order. Per-device
// failures are collected; a canceled context stops the sweep.
func (s *Scanner) ScanAll(ctx context.Context, mounts map[string]string) ([]Result, error) {
	paths := make([]string, 0, len(mounts))
	for p := range mounts {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	var results []Result
	var errs []error
	for _, mountPath := range paths {
		res, err := s.ScanDevice(ctx, mounts[mountPath], mountPath)
		if res != nil {
			results = append(results, *res)
		}
		if err != nil {
			errs = append(errs, err)
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				break
			}
		}
	}
	return results, errors.Join(errs...)
}

// scanFile records a single regular file, hashing it only when it is new or
// its size/mtime no longer match the stored record.
func (s *Scanner) scanFile(ctx context.Context, tx *sql.Tx, deviceID, mountPath, path string, d fs.DirEntry, res *Result) error {
	info, err := d.Info()
	if err != nil {
		return err
	}
	if !info.Mode().IsRegular() {
		return nil
	}

	relPath := pathutil.Relativize(pathutil.Normalize(path), pathutil.Normalize(mountPath))
	now := time.Now().UTC()
	modTime := info.ModTime().UTC().Truncate(time.Second)

	meta, err := s.store.GetFileMeta(ctx, deviceID, relPath, s.systemID)
	known := err == nil
	if known && meta.Size == info.Size() && meta.ModifiedTime.UTC().Truncate(time.Second).Equal(modTime) {
		res.FilesUnchanged++
		metrics.ScannerFilesUnchanged.Inc()
		return s.store.TouchFile(tx, deviceID, relPath, s.systemID, now)
	}
	if err != nil && !errors.Is(err, catalog.ErrNotFound) {
		return err
	}

	hash, err := HashFile(ctx, path, s.opts.HashTimeout, s.opts.HashMaxBytes, s.opts.BlockSize)
	if errors.Is(err, ErrHashTimeout) {
		res.HashTimeouts++
		metrics.ScannerHashTimeouts.Inc()
		logging.Warn("Hash timed out, skipping %s", path)
		if known {
			// A half-read file must not overwrite a good hash, but the
			// file was enumerated: mark it seen so the reconcile pass
			// leaves the row for the next scan to retry.
			return s.store.TouchFile(tx, deviceID, relPath, s.systemID, now)
		}
		return nil
	}
	if err != nil {
		return err
	}

	res.FilesHashed++
	metrics.ScannerFilesHashed.Inc()
	return s.store.UpsertFile(tx, &catalog.FileRecord{
		DeviceID:     deviceID,
		RelativePath: relPath,
		ContentHash:  hash,
		Size:         info.Size(),
		ModifiedTime: modTime,
		ScannedTime:  now,
		SystemID:     s.systemID,
	})
}

func (s *Scanner) saveCheckpoint(ctx context.Context, deviceID string, res *Result) {
	cp := &catalog.ScanCheckpoint{
		DeviceID:    deviceID,
		SystemID:    s.systemID,
		FilesSeen:   res.FilesSeen,
		FilesNew:    res.FilesHashed,
		LastUpdated: time.Now().UTC(),
	}
	if err := s.store.SaveCheckpoint(ctx, cp); err != nil {
		logging.Warn("Failed to save scan checkpoint for %s: %v", deviceID, err)
	}
}

// skipDir reports whether a directory should be pruned from the walk.
// Hidden directories and configured system path prefixes are never entered.
func (s *Scanner) skipDir(path, name string) bool {
	if strings.HasPrefix(name, ".") {
		return true
	}
	normalized := pathutil.Normalize(path)
	for _, prefix := range s.opts.SkipDirPrefixes {
		if normalized == prefix || strings.HasPrefix(normalized, prefix+"/") {
			return true
		}
	}
	return false
}

// wantFile reports whether a file name passes the hidden-file and extension
// filters.
func (s *Scanner) wantFile(name string) bool {
	if strings.HasPrefix(name, ".") {
		return false
	}
	if len(s.extensions) == 0 {
		return true
	}
	return s.extensions[strings.ToLower(filepath.Ext(name))]
}
