package registry

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"sort"
	"strings"
	"time"

	"media-catalog/internal/catalog"
	"media-catalog/internal/logging"
	"media-catalog/internal/metrics"
	"media-catalog/internal/pathutil"
)

// Registry records which devices are attached to this system and where they
// are mounted.
type Registry struct {
	store    catalog.Store
	systemID string
}

// New creates a registry writing bindings for the given system ID.
func New(store catalog.Store, systemID string) *Registry {
	return &Registry{store: store, systemID: systemID}
}

// SystemID returns the system this registry writes bindings for.
func (r *Registry) SystemID() string {
	return r.systemID
}

// Register records a single device as attached at the given mount path.
func (r *Registry) Register(ctx context.Context, deviceID, mountPath string, now time.Time) error {
	label := deviceLabel(deviceID, mountPath)
	if err := r.store.UpsertDevice(ctx, &catalog.Device{DeviceID: deviceID, Label: label}); err != nil {
		return fmt.Errorf("failed to register device %s: %w", deviceID, err)
	}
	binding := &catalog.MountBinding{
		DeviceID:  deviceID,
		SystemID:  r.systemID,
		MountPath: pathutil.Normalize(mountPath),
		LastSeen:  now,
	}
	if err := r.store.UpsertBinding(ctx, binding); err != nil {
		return fmt.Errorf("failed to record binding for %s: %w", deviceID, err)
	}
	return nil
}

// RegisterAll records a binding for every attached device and deactivates
// bindings for devices that are no longer present. mounts maps mount path to
// device ID, as returned by deviceid.Resolver.ListAll. Devices that fail to
// register are logged and skipped; the rest of the sweep proceeds.
func (r *Registry) RegisterAll(ctx context.Context, mounts map[string]string) ([]string, error) {
	now := time.Now().UTC()

	// Deterministic order keeps logs and retries stable.
	paths := make([]string, 0, len(mounts))
	for p := range mounts {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	var active []string
	for _, mountPath := range paths {
		deviceID := mounts[mountPath]
		if err := r.Register(ctx, deviceID, mountPath, now); err != nil {
			logging.Error("Skipping device %s at %s: %v", deviceID, mountPath, err)
			continue
		}
		logging.Debug("Registered device %s at %s", deviceID, mountPath)
		active = append(active, deviceID)
	}

	metrics.DevicesAttached.Set(float64(len(active)))

	if len(active) == 0 {
		// An empty set usually means enumeration failed, not that every
		// device was detached. Deactivating everything here would wipe
		// the system's bindings on a transient failure.
		logging.Warn("No devices registered; leaving existing bindings untouched")
		return nil, nil
	}

	n, err := r.store.MarkBindingsInactive(ctx, r.systemID, active)
	if err != nil {
		return active, fmt.Errorf("failed to deactivate stale bindings: %w", err)
	}
	if n > 0 {
		logging.Info("Deactivated %d stale mount bindings", n)
	}
	return active, nil
}

// ResolveMountPoint returns the mount path recorded for the device. It
// prefers this system's binding and falls back to the most recent binding
// from any system, which at least tells the caller where the device was last
// seen.
func (r *Registry) ResolveMountPoint(ctx context.Context, deviceID string) (string, error) {
	b, err := r.store.GetBinding(ctx, deviceID, r.systemID)
	if err == nil {
		if !b.IsActive {
			logging.Warn("Device %s binding on this system is inactive; mount path may be stale", deviceID)
		}
		return b.MountPath, nil
	}
	if !errors.Is(err, catalog.ErrNotFound) {
		return "", err
	}

	b, err = r.store.AnyBinding(ctx, deviceID)
	if errors.Is(err, catalog.ErrNotFound) {
		return "", fmt.Errorf("device %s has no recorded mount binding: %w", deviceID, catalog.ErrNotFound)
	}
	if err != nil {
		return "", err
	}
	logging.Warn("Device %s was never mounted on this system; using mount path from system %s", deviceID, b.SystemID)
	return b.MountPath, nil
}

// ResolveFilePath turns a device-relative catalog path into an absolute path
// on this system, using the device's current mount binding.
func (r *Registry) ResolveFilePath(ctx context.Context, deviceID, relPath string) (string, error) {
	mountPath, err := r.ResolveMountPoint(ctx, deviceID)
	if err != nil {
		return "", err
	}
	full := pathutil.ToPlatformPath(relPath, mountPath)
	if _, statErr := os.Stat(full); statErr != nil {
		logging.Debug("Resolved path %s is not currently readable: %v", full, statErr)
	}
	return full, nil
}

// deviceLabel derives a human-readable label from the mount path. Home
// pseudo-devices get a fixed label since their mount path is a home
// directory, not a volume name.
func deviceLabel(deviceID, mountPath string) string {
	if strings.HasPrefix(deviceID, "home_") {
		return "home"
	}
	base := path.Base(strings.TrimRight(pathutil.Normalize(mountPath), "/"))
	if base == "." || base == "/" || base == "" {
		return "root"
	}
	return base
}
