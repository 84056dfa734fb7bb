package deviceid

import (
	"fmt"
	"os"
	"os/user"
	"strconv"
	"strings"

	"media-catalog/internal/logging"
	"media-catalog/internal/pathutil"
)

// mountEntry is one row of the platform's mount table.
type mountEntry struct {
	Device string
	Path   string
	FSType string
}

// pseudoFSTypes are filesystem types that never hold cataloged media.
var pseudoFSTypes = map[string]bool{
	"proc": true, "procfs": true, "sysfs": true, "devfs": true,
	"devtmpfs": true, "devpts": true, "tmpfs": true, "ramfs": true,
	"cgroup": true, "cgroup2": true, "pstore": true, "securityfs": true,
	"debugfs": true, "tracefs": true, "configfs": true, "fusectl": true,
	"autofs": true, "binfmt_misc": true, "mqueue": true, "hugetlbfs": true,
	"rpc_pipefs": true, "nsfs": true, "efivarfs": true, "bpf": true,
	"squashfs": true, "overlay": true, "fuse.gvfsd-fuse": true,
}

// skipPathPrefixes are mount locations for system and virtual volumes.
var skipPathPrefixes = []string{
	"/proc", "/sys", "/dev", "/run", "/boot", "/snap",
	"/System/Volumes/VM", "/System/Volumes/Preboot", "/System/Volumes/Update",
	"/private/var/vm",
}

// ListAll enumerates every mounted device on this system and resolves each to
// its identifier, returning a mount_path -> device_id mapping.
//
// Pseudo-filesystems and transient automount entries are skipped. The user's
// home directory is always included as a pseudo-device so files on the system
// volume catalog under a consistent identity. A failure on one entry logs and
// skips that entry only.
func (r *Resolver) ListAll() (map[string]string, error) {
	entries, err := r.mountEntries()
	if err != nil {
		return nil, fmt.Errorf("reading mount table: %w", err)
	}

	devices := make(map[string]string)
	for _, e := range entries {
		if !r.eligibleMount(e) {
			continue
		}
		id, err := r.Resolve(e.Path)
		if err != nil {
			logging.Warn("skipping %s: %v", e.Path, err)
			continue
		}
		devices[e.Path] = id
	}

	if home, id, err := homePseudoDevice(); err != nil {
		logging.Warn("home pseudo-device unavailable: %v", err)
	} else {
		devices[home] = id
	}

	return devices, nil
}

// eligibleMount applies the platform's media-bearing mount conventions.
func (r *Resolver) eligibleMount(e mountEntry) bool {
	if pseudoFSTypes[e.FSType] {
		return false
	}
	for _, prefix := range skipPathPrefixes {
		if e.Path == prefix || strings.HasPrefix(e.Path, prefix+"/") {
			return false
		}
	}

	switch r.platform {
	case pathutil.PlatformDarwin:
		return e.Path == "/" || strings.HasPrefix(e.Path, "/Volumes/")
	case pathutil.PlatformLinux:
		return e.Path == "/" ||
			strings.HasPrefix(e.Path, "/media/") ||
			strings.HasPrefix(e.Path, "/mnt/") ||
			strings.HasPrefix(e.Path, "/home/")
	default:
		return false
	}
}

func homePseudoDevice() (string, string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", "", err
	}
	hostname, err := os.Hostname()
	if err != nil {
		return "", "", err
	}

	username := ""
	if u, err := user.Current(); err == nil {
		username = u.Username
	} else {
		username = os.Getenv("USER")
	}

	return home, HomeDeviceID(hostname, username), nil
}

// mountEntries reads the platform mount table.
func (r *Resolver) mountEntries() ([]mountEntry, error) {
	if r.platform == pathutil.PlatformLinux {
		data, err := os.ReadFile("/proc/mounts")
		if err == nil {
			return parseProcMounts(string(data)), nil
		}
		logging.Debug("reading /proc/mounts failed, falling back to mount: %v", err)
	}

	out, err := r.run("mount")
	if err != nil {
		return nil, err
	}
	return parseMountOutput(string(out)), nil
}

// parseProcMounts parses /proc/mounts lines: "device path fstype opts 0 0".
// Paths with spaces are octal-escaped.
func parseProcMounts(data string) []mountEntry {
	var entries []mountEntry
	for _, line := range strings.Split(data, "\n") {
		fields := strings.Fields(line)
		if len(fields) < 3 {
			continue
		}
		entries = append(entries, mountEntry{
			Device: unescapeMountPath(fields[0]),
			Path:   unescapeMountPath(fields[1]),
			FSType: fields[2],
		})
	}
	return entries
}

// parseMountOutput parses BSD-style mount output:
// "/dev/disk1s1 on /Volumes/External (apfs, local, nodev)".
func parseMountOutput(data string) []mountEntry {
	var entries []mountEntry
	for _, line := range strings.Split(data, "\n") {
		device, rest, ok := strings.Cut(line, " on ")
		if !ok {
			continue
		}

		path := rest
		fstype := ""
		if before, opts, ok := strings.Cut(rest, " ("); ok {
			path = before
			// The type is the first option; with a single option there is
			// no comma and the whole parenthetical is the type.
			t, _, _ := strings.Cut(opts, ",")
			fstype = strings.TrimSpace(strings.TrimSuffix(t, ")"))
		}

		path = strings.TrimSpace(path)
		if path == "" {
			continue
		}
		entries = append(entries, mountEntry{
			Device: strings.TrimSpace(device),
			Path:   path,
			FSType: fstype,
		})
	}
	return entries
}

// unescapeMountPath decodes the octal escapes /proc/mounts uses for spaces
// and other separators (e.g. "\040").
func unescapeMountPath(s string) string {
	if !strings.Contains(s, "\\") {
		return s
	}

	var b strings.Builder
	for i := 0; i < len(s); i++ {
		if s[i] == '\\' && i+3 < len(s) {
			if n, err := strconv.ParseUint(s[i+1:i+4], 8, 8); err == nil {
				b.WriteByte(byte(n))
				i += 3
				continue
			}
		}
		b.WriteByte(s[i])
	}
	return b.String()
}
