package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// ErrNotFound is returned by point lookups when no row matches.
var ErrNotFound = errors.New("catalog: not found")

// PersistenceError wraps a failed transactional write. The unit of work it
// covers rolls back; the caller logs and continues with the next unit.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("catalog: %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// Store is the catalog persistence interface. Two implementations exist,
// SQLite and PostgreSQL, selected at construction time.
//
// Methods taking a *sql.Tx participate in a batch started with BeginBatch;
// the transaction's lifetime bounds the unit of work. Everything else runs as
// a single statement on the pooled connection.
type Store interface {
	Close() error
	Ping(ctx context.Context) error

	// BeginBatch starts a transaction for batch operations. The caller is
	// responsible for calling EndBatch when done.
	BeginBatch() (*sql.Tx, error)
	// EndBatch commits the transaction, or rolls it back when err is
	// non-nil and returns err (joined with any rollback failure).
	EndBatch(tx *sql.Tx, err error) error

	UpsertDevice(ctx context.Context, d *Device) error
	GetDevice(ctx context.Context, deviceID string) (*Device, error)

	// UpsertBinding inserts a binding with first_seen = last_seen, or
	// refreshes mount_path, last_seen and is_active on conflict.
	UpsertBinding(ctx context.Context, b *MountBinding) error
	// MarkBindingsInactive flips is_active off for every binding of
	// systemID whose device is absent from activeDeviceIDs.
	MarkBindingsInactive(ctx context.Context, systemID string, activeDeviceIDs []string) (int64, error)
	GetBinding(ctx context.Context, deviceID, systemID string) (*MountBinding, error)
	// AnyBinding returns the most recently seen binding for a device on
	// any system.
	AnyBinding(ctx context.Context, deviceID string) (*MountBinding, error)
	ListBindings(ctx context.Context, systemID string) ([]MountBinding, error)

	// GetFileMeta returns size and modified time for an existing record,
	// or ErrNotFound. Consulted before hashing as a cheap short-circuit.
	GetFileMeta(ctx context.Context, deviceID, relPath, systemID string) (*FileMeta, error)
	GetFile(ctx context.Context, deviceID, relPath string) (*FileRecord, error)
	UpsertFile(tx *sql.Tx, f *FileRecord) error
	// TouchFile refreshes scanned_time only, marking an unchanged file as
	// observed by the current pass.
	TouchFile(tx *sql.Tx, deviceID, relPath, systemID string, seen time.Time) error
	// DeleteFilesBefore purges rows of one (device, system) scope whose
	// scanned_time predates the cutoff. Other devices' and systems' rows
	// are never touched.
	DeleteFilesBefore(tx *sql.Tx, deviceID, systemID string, cutoff time.Time) (int64, error)

	SaveCheckpoint(ctx context.Context, cp *ScanCheckpoint) error
	GetCheckpoint(ctx context.Context, deviceID, systemID string) (*ScanCheckpoint, error)
	ListCheckpoints(ctx context.Context) ([]ScanCheckpoint, error)

	// StaleFiles selects sync candidates: rows whose last_sync is older
	// than since, or owned by a system other than ownSystemID.
	StaleFiles(ctx context.Context, ownSystemID string, since time.Time) ([]FileRecord, error)
	// ClaimFile transfers a foreign row to ownSystemID, dropping any
	// pre-existing own-system row for the same logical file so exactly one
	// row survives.
	ClaimFile(tx *sql.Tx, f *FileRecord, ownSystemID string, now time.Time) error
	DeleteFile(tx *sql.Tx, deviceID, relPath, systemID string) error

	StaleBindings(ctx context.Context, ownSystemID string, since time.Time) ([]MountBinding, error)
	// ClaimBinding transfers a foreign binding to ownSystemID at the given
	// locally-verified mount path.
	ClaimBinding(tx *sql.Tx, b *MountBinding, ownSystemID, mountPath string, now time.Time) error
	// DeactivateBinding marks a binding inactive without deleting it.
	DeactivateBinding(tx *sql.Tx, deviceID, systemID string, now time.Time) error

	Stats(ctx context.Context) (*Stats, error)
}
