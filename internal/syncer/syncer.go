package syncer

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"time"

	"media-catalog/internal/catalog"
	"media-catalog/internal/logging"
	"media-catalog/internal/metrics"
	"media-catalog/internal/pathutil"
	"media-catalog/internal/registry"
)

// Result summarizes a single sync sweep.
type Result struct {
	FilesExamined       int
	FilesClaimed        int
	FilesDeleted        int
	BindingsExamined    int
	BindingsClaimed     int
	BindingsDeactivated int
	Duration            time.Duration
}

// Engine reconciles this system's view of the catalog with records written
// by other systems sharing the same store.
type Engine struct {
	store    catalog.Store
	registry *registry.Registry
	systemID string
	interval time.Duration

	lastSweep time.Time
}

// New creates a sync engine. interval is only used by Run.
func New(store catalog.Store, reg *registry.Registry, systemID string, interval time.Duration) *Engine {
	return &Engine{store: store, registry: reg, systemID: systemID, interval: interval}
}

// Run sweeps immediately and then on every tick until the context ends.
// Sweep failures are logged and retried at the next tick.
func (e *Engine) Run(ctx context.Context) error {
	if _, err := e.Sweep(ctx); err != nil {
		logging.Error("Sync sweep failed: %v", err)
	}

	ticker := time.NewTicker(e.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if _, err := e.Sweep(ctx); err != nil {
				logging.Error("Sync sweep failed: %v", err)
			}
		}
	}
}

// Sweep reconciles every file and binding record not synced since the last
// successful sweep. Each table is processed in its own transaction; a failure
// rolls the transaction back and leaves the records for the next sweep.
func (e *Engine) Sweep(ctx context.Context) (*Result, error) {
	sweepStart := time.Now().UTC()
	res := &Result{}

	logging.Debug("Starting sync sweep (window since %v)", e.lastSweep)

	if err := e.sweepFiles(ctx, res); err != nil {
		metrics.SyncSweepsTotal.WithLabelValues("error").Inc()
		metrics.SyncErrors.Inc()
		return res, err
	}
	if err := e.sweepBindings(ctx, res); err != nil {
		metrics.SyncSweepsTotal.WithLabelValues("error").Inc()
		metrics.SyncErrors.Inc()
		return res, err
	}

	e.lastSweep = sweepStart
	res.Duration = time.Since(sweepStart)
	metrics.SyncSweepsTotal.WithLabelValues("success").Inc()
	metrics.SyncLastSweepTimestamp.SetToCurrentTime()

	logging.Info("Sync sweep complete: %d/%d files claimed, %d deleted; %d/%d bindings claimed, %d deactivated in %v",
		res.FilesClaimed, res.FilesExamined, res.FilesDeleted,
		res.BindingsClaimed, res.BindingsExamined, res.BindingsDeactivated,
		res.Duration.Round(time.Millisecond))
	return res, nil
}

func (e *Engine) sweepFiles(ctx context.Context, res *Result) error {
	files, err := e.store.StaleFiles(ctx, e.systemID, e.lastSweep)
	if err != nil {
		return err
	}
	if len(files) == 0 {
		return nil
	}
	res.FilesExamined = len(files)

	now := time.Now().UTC()
	tx, err := e.store.BeginBatch()
	if err != nil {
		return err
	}

	for i := range files {
		f := &files[i]
		if err := ctx.Err(); err != nil {
			return e.abort(tx, err)
		}

		switch e.probeFile(ctx, f) {
		case probeGone:
			if err := e.store.DeleteFile(tx, f.DeviceID, f.RelativePath, f.SystemID); err != nil {
				return e.abort(tx, err)
			}
			res.FilesDeleted++
			metrics.SyncFilesDeleted.Inc()
		default:
			// Present, or unverifiable. Either way the record survives
			// and this system becomes its owner.
			if err := e.store.ClaimFile(tx, f, e.systemID, now); err != nil {
				return e.abort(tx, err)
			}
			res.FilesClaimed++
			metrics.SyncFilesClaimed.Inc()
		}
	}

	return e.store.EndBatch(tx, nil)
}

func (e *Engine) sweepBindings(ctx context.Context, res *Result) error {
	bindings, err := e.store.StaleBindings(ctx, e.systemID, e.lastSweep)
	if err != nil {
		return err
	}
	if len(bindings) == 0 {
		return nil
	}

	now := time.Now().UTC()
	tx, err := e.store.BeginBatch()
	if err != nil {
		return err
	}

	for i := range bindings {
		b := &bindings[i]
		if err := ctx.Err(); err != nil {
			return e.abort(tx, err)
		}

		if b.SystemID != e.systemID {
			// Another system's binding. Only take it over when the
			// device is verifiably attached here; otherwise it is that
			// system's business.
			own, err := e.store.GetBinding(ctx, b.DeviceID, e.systemID)
			if err == nil && own.IsActive && mountPresent(own.MountPath) {
				res.BindingsExamined++
				if err := e.store.ClaimBinding(tx, b, e.systemID, own.MountPath, now); err != nil {
					return e.abort(tx, err)
				}
				res.BindingsClaimed++
				metrics.SyncBindingsClaimed.Inc()
			} else if err != nil && !errors.Is(err, catalog.ErrNotFound) {
				return e.abort(tx, err)
			}
			continue
		}

		res.BindingsExamined++
		if mountPresent(b.MountPath) {
			if err := e.store.ClaimBinding(tx, b, e.systemID, b.MountPath, now); err != nil {
				return e.abort(tx, err)
			}
			res.BindingsClaimed++
			metrics.SyncBindingsClaimed.Inc()
		} else {
			if err := e.store.DeactivateBinding(tx, b.DeviceID, b.SystemID, now); err != nil {
				return e.abort(tx, err)
			}
			res.BindingsDeactivated++
			metrics.SyncBindingsDeactivated.Inc()
		}
	}

	return e.store.EndBatch(tx, nil)
}

type probeOutcome int

const (
	probePresent probeOutcome = iota
	probeGone
	probeUnknown
)

// probeFile checks whether a cataloged file is still on disk. The check can
// only be conclusive when the device is mounted here: a missing file on a
// reachable device is gone, anything else is unknown and treated as present.
func (e *Engine) probeFile(ctx context.Context, f *catalog.FileRecord) probeOutcome {
	mountPath, err := e.registry.ResolveMountPoint(ctx, f.DeviceID)
	if err != nil {
		return probeUnknown
	}
	if !mountPresent(mountPath) {
		return probeUnknown
	}

	full := pathutil.ToPlatformPath(f.RelativePath, mountPath)
	if _, err := os.Stat(full); err != nil {
		if os.IsNotExist(err) {
			return probeGone
		}
		return probeUnknown
	}
	return probePresent
}

func (e *Engine) abort(tx *sql.Tx, err error) error {
	return e.store.EndBatch(tx, err)
}

func mountPresent(mountPath string) bool {
	info, err := os.Stat(mountPath)
	return err == nil && info.IsDir()
}
