// Package deviceid resolves storage volume mount points to stable device
// identifiers.
//
// A device identifier is, in priority order: the volume UUID reported by the
// platform's volume tooling (diskutil on macOS, blkid on Linux), or a
// content-derived fingerprint of the mount point itself prefixed with "fp_".
// The prefix lets catalog consumers tell authoritative UUIDs from best-effort
// fingerprints at a glance. The user's home directory is always enumerated as
// a pseudo-device with a "home_"-prefixed identifier derived from hostname
// and username, so files outside removable media still catalog under a
// consistent identity.
package deviceid
