package catalog

import (
	"database/sql"
	"time"
)

// Device is a physical or logical storage volume. Identity is derived once
// per volume and is immutable for the volume's lifetime; devices are never
// deleted, only their bindings go inactive.
type Device struct {
	DeviceID string `json:"deviceId"`
	Label    string `json:"label,omitempty"`
}

// MountBinding records that a system currently or previously saw a device at
// a mount path. Unique on (device_id, system_id).
type MountBinding struct {
	DeviceID  string       `json:"deviceId"`
	SystemID  string       `json:"systemId"`
	MountPath string       `json:"mountPath"`
	FirstSeen time.Time    `json:"firstSeen"`
	LastSeen  time.Time    `json:"lastSeen"`
	LastSync  sql.NullTime `json:"-"`
	IsActive  bool         `json:"isActive"`
}

// FileRecord is one cataloged file. RelativePath is always device-mount
// independent, so the same physical file scanned from two mount points
// resolves to the same identity. Unique on (device_id, relative_path,
// system_id) before sync; sync collapses toward one row per
// (device_id, relative_path).
type FileRecord struct {
	ID           int64        `json:"id"`
	DeviceID     string       `json:"deviceId"`
	RelativePath string       `json:"relativePath"`
	ContentHash  string       `json:"contentHash,omitempty"`
	Size         int64        `json:"size"`
	ModifiedTime time.Time    `json:"modifiedTime"`
	ScannedTime  time.Time    `json:"scannedTime"`
	SystemID     string       `json:"systemId"`
	LastSync     sql.NullTime `json:"-"`
}

// FileMeta is the cheap subset of a FileRecord consulted before hashing.
type FileMeta struct {
	Size         int64
	ModifiedTime time.Time
}

// ScanCheckpoint is the upsert-only progress marker for one
// (device_id, system_id) scan. It exists for observability and resume
// hinting, not correctness: a restarted scan re-derives truth from the
// filesystem.
type ScanCheckpoint struct {
	DeviceID    string    `json:"deviceId"`
	SystemID    string    `json:"systemId"`
	FilesSeen   int64     `json:"filesSeen"`
	FilesNew    int64     `json:"filesNew"`
	LastUpdated time.Time `json:"lastUpdated"`
}

// Stats summarizes catalog contents for the metrics collector.
type Stats struct {
	Devices        int64
	Bindings       int64
	ActiveBindings int64
	Files          int64
}
