package deviceid

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"media-catalog/internal/logging"
	"media-catalog/internal/pathutil"
)

// FingerprintPrefix tags identifiers derived from mount-point metadata rather
// than a true volume UUID.
const FingerprintPrefix = "fp_"

// HomeDevicePrefix tags the synthetic identifier of the home pseudo-device.
const HomeDevicePrefix = "home_"

// commandTimeout bounds a single volume-tooling invocation.
const commandTimeout = 5 * time.Second

// ErrDeviceUnavailable indicates the mount point could not be accessed at
// all. It is fatal for that single device, not for a whole enumeration.
var ErrDeviceUnavailable = errors.New("device unavailable")

// UnavailableError wraps ErrDeviceUnavailable with the offending mount path.
type UnavailableError struct {
	MountPath string
	Err       error
}

func (e *UnavailableError) Error() string {
	return fmt.Sprintf("device unavailable at %s: %v", e.MountPath, e.Err)
}

func (e *UnavailableError) Unwrap() error { return ErrDeviceUnavailable }

// Resolver maps mount points to device identifiers using platform-specific
// volume tooling with a deterministic fingerprint fallback.
type Resolver struct {
	platform pathutil.Platform

	// run executes a volume-tooling command. Overridable in tests.
	run func(name string, args ...string) ([]byte, error)
}

// NewResolver creates a Resolver for the current host platform.
func NewResolver() *Resolver {
	return &Resolver{
		platform: pathutil.CurrentPlatform(),
		run:      runCommand,
	}
}

func runCommand(name string, args ...string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()
	return exec.CommandContext(ctx, name, args...).Output()
}

// Resolve returns the stable identifier for the device mounted at mountPath.
//
// The platform volume UUID is authoritative and survives remounts at
// different paths. When the platform cannot supply one, a fingerprint of the
// mount point's stat data is used instead: less persistent, but available on
// any filesystem. An inaccessible mount path yields an UnavailableError.
func (r *Resolver) Resolve(mountPath string) (string, error) {
	if _, err := os.Stat(mountPath); err != nil {
		return "", &UnavailableError{MountPath: mountPath, Err: err}
	}

	if id, err := r.volumeUUID(mountPath); err != nil {
		logging.Debug("volume UUID lookup failed for %s: %v", mountPath, err)
	} else if id != "" {
		return id, nil
	}

	return r.fingerprint(mountPath)
}

// volumeUUID queries the platform's volume-management tooling. An empty
// result with nil error means the platform has no UUID for this mount.
func (r *Resolver) volumeUUID(mountPath string) (string, error) {
	switch r.platform {
	case pathutil.PlatformDarwin:
		return r.darwinVolumeUUID(mountPath)
	case pathutil.PlatformLinux:
		return r.linuxVolumeUUID(mountPath)
	default:
		return "", nil
	}
}

func (r *Resolver) darwinVolumeUUID(mountPath string) (string, error) {
	out, err := r.run("diskutil", "info", mountPath)
	if err != nil {
		return "", fmt.Errorf("diskutil info: %w", err)
	}

	for _, line := range strings.Split(string(out), "\n") {
		if !strings.Contains(line, "Volume UUID") {
			continue
		}
		if _, value, ok := strings.Cut(line, ":"); ok {
			return strings.TrimSpace(value), nil
		}
	}
	return "", nil
}

func (r *Resolver) linuxVolumeUUID(mountPath string) (string, error) {
	devicePath, err := r.devicePathFor(mountPath)
	if err != nil {
		return "", err
	}
	if devicePath == "" {
		return "", nil
	}

	out, err := r.run("blkid", devicePath)
	if err != nil {
		return "", fmt.Errorf("blkid %s: %w", devicePath, err)
	}

	for _, field := range strings.Fields(string(out)) {
		if strings.HasPrefix(field, "UUID=") {
			return strings.Trim(strings.TrimPrefix(field, "UUID="), `"`), nil
		}
	}
	return "", nil
}

// devicePathFor finds the block device backing a mount path from the mount
// table.
func (r *Resolver) devicePathFor(mountPath string) (string, error) {
	entries, err := r.mountEntries()
	if err != nil {
		return "", err
	}
	for _, e := range entries {
		if e.Path == mountPath {
			return e.Device, nil
		}
	}
	return "", nil
}

// fingerprint derives a device identifier from the mount point's own stat
// data. The digest input mirrors the fields a volume keeps across remounts at
// the same path: device number, inode, and change time.
func (r *Resolver) fingerprint(mountPath string) (string, error) {
	st, err := mountStat(mountPath)
	if err != nil {
		return "", &UnavailableError{MountPath: mountPath, Err: err}
	}

	raw := fmt.Sprintf("%s:%d:%d:%d", mountPath, st.Dev, st.Ino, st.ChangeTime.UnixNano())
	sum := sha256.Sum256([]byte(raw))
	return FingerprintPrefix + hex.EncodeToString(sum[:]), nil
}

// HomeDeviceID returns the synthetic identifier for the home pseudo-device
// of the given host and user. It is stable per machine and user, independent
// of any mount table.
func HomeDeviceID(hostname, username string) string {
	sum := sha256.Sum256([]byte(hostname + ":" + username))
	return HomeDevicePrefix + hex.EncodeToString(sum[:16])
}
