package pathutil

import (
	"path/filepath"
	"regexp"
	"runtime"
	"strings"

	"media-catalog/internal/logging"
)

// Platform identifies a mount-point naming convention.
type Platform string

const (
	// PlatformDarwin uses /Volumes/<name> mount points.
	PlatformDarwin Platform = "darwin"
	// PlatformLinux uses /media/<user>/<name> mount points.
	PlatformLinux Platform = "linux"
	// PlatformWindows uses drive-letter mount points.
	PlatformWindows Platform = "windows"
)

// CurrentPlatform returns the Platform for the running host.
func CurrentPlatform() Platform {
	switch runtime.GOOS {
	case "darwin":
		return PlatformDarwin
	case "windows":
		return PlatformWindows
	default:
		return PlatformLinux
	}
}

// Normalize converts directory separators to forward slashes. It is
// idempotent and passes empty input through unchanged. Repeated slashes are
// preserved; only separator style changes.
func Normalize(path string) string {
	if path == "" {
		return ""
	}
	return strings.ReplaceAll(path, "\\", "/")
}

// Relativize strips the mount point prefix from an absolute path, producing
// the device-relative path used as the file's catalog identity.
//
// When the mount point is not an exact prefix, a fuzzy match is attempted on
// the mount point's last path segment: the corresponding segment of the full
// path matches when either contains the other. This covers truncated or
// renamed volume labels ("/Volumes/Externa" vs "/Volumes/External").
//
// If neither match succeeds the full path is returned unchanged. That is a
// degraded mode, not a failure: the caller should treat the result as already
// relative and log a warning.
func Relativize(fullPath, mountPoint string) string {
	fullPath = Normalize(fullPath)
	mountPoint = Normalize(mountPoint)

	mountPoint = strings.TrimRight(mountPoint, "/")

	mountWithSlash := mountPoint
	if mountPoint != "" {
		mountWithSlash = mountPoint + "/"
	}

	if strings.HasPrefix(fullPath, mountWithSlash) {
		return fullPath[len(mountWithSlash):]
	}

	if rel, ok := fuzzyRelativize(fullPath, mountPoint); ok {
		return rel
	}

	logging.Warn("path %s does not start with mount point %s", fullPath, mountPoint)
	return fullPath
}

// fuzzyRelativize compares path segments up to the mount point's last
// segment. All leading segments must match exactly; the final mount segment
// only needs to contain or be contained by the corresponding full-path
// segment. Without an exact common prefix there is no match, which guards
// against false positives across unrelated volumes.
func fuzzyRelativize(fullPath, mountPoint string) (string, bool) {
	partsFull := strings.Split(fullPath, "/")
	partsMount := strings.Split(mountPoint, "/")

	if len(partsMount) < 2 || len(partsFull) < len(partsMount) {
		return "", false
	}

	for i := 0; i < len(partsMount)-1; i++ {
		if partsFull[i] != partsMount[i] {
			return "", false
		}
	}

	mountLast := partsMount[len(partsMount)-1]
	fullLast := partsFull[len(partsMount)-1]
	if mountLast == "" || fullLast == "" {
		return "", false
	}

	if strings.Contains(fullLast, mountLast) || strings.Contains(mountLast, fullLast) {
		rel := strings.Join(partsFull[len(partsMount):], "/")
		logging.Debug("fuzzy mount match: mount=%q full=%q rel=%q", mountLast, fullLast, rel)
		return rel, true
	}

	return "", false
}

// ToPlatformPath joins a device-relative path back onto a mount point,
// producing a path openable on the current host.
func ToPlatformPath(relPath, mountPoint string) string {
	relPath = Normalize(relPath)
	mountPoint = Normalize(mountPoint)

	mountPoint = strings.TrimSuffix(mountPoint, "/")
	relPath = strings.TrimPrefix(relPath, "/")

	return filepath.FromSlash(mountPoint + "/" + relPath)
}

var (
	darwinMountPattern  = regexp.MustCompile(`^/Volumes/([^/]+)`)
	linuxMountPattern   = regexp.MustCompile(`^/media/([^/]+)/([^/]+)`)
	windowsMountPattern = regexp.MustCompile(`^([A-Za-z]:)`)
)

// ExtractMountPoint reconstructs the canonical mount prefix from a path using
// the given platform's naming convention. Returns "" when the path matches no
// known pattern.
func ExtractMountPoint(path string, platform Platform) string {
	if path == "" {
		return ""
	}
	path = Normalize(path)

	switch platform {
	case PlatformDarwin:
		if m := darwinMountPattern.FindStringSubmatch(path); m != nil {
			return "/Volumes/" + m[1]
		}
	case PlatformWindows:
		if m := windowsMountPattern.FindStringSubmatch(path); m != nil {
			return m[1]
		}
	case PlatformLinux:
		if m := linuxMountPattern.FindStringSubmatch(path); m != nil {
			return "/media/" + m[1] + "/" + m[2]
		}
	default:
		logging.Warn("unknown platform %q, using linux mount pattern", platform)
		if m := linuxMountPattern.FindStringSubmatch(path); m != nil {
			return "/media/" + m[1] + "/" + m[2]
		}
	}

	return ""
}
