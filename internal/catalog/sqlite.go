package catalog

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3" // SQLite3 driver

	"media-catalog/internal/catalog/migrations"
	"media-catalog/internal/logging"
)

// SQLiteStore is the Store implementation backed by a local SQLite file.
type SQLiteStore struct {
	baseStore
	dbPath string
}

// NewSQLiteStore opens (or creates) the catalog database at dbPath and brings
// its schema to the latest version. The parent directory must exist and be
// writable. Use ":memory:" for an ephemeral catalog.
func NewSQLiteStore(ctx context.Context, dbPath string) (*SQLiteStore, error) {
	logging.Info("Catalog database: sqlite %s", dbPath)

	// WAL mode and a busy timeout keep concurrent scanner connections from
	// tripping over "database is locked" errors.
	connStr := fmt.Sprintf("%s?_journal_mode=WAL&_synchronous=NORMAL&_cache_size=10000&_busy_timeout=5000", dbPath)

	db, err := sql.Open("sqlite3", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		if closeErr := db.Close(); closeErr != nil {
			logging.Error("failed to close database after ping failure: %v", closeErr)
		}
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(time.Hour)

	if err := migrations.Up(db, migrations.DialectSQLite); err != nil {
		if closeErr := db.Close(); closeErr != nil {
			logging.Error("failed to close database after migration failure: %v", closeErr)
		}
		return nil, fmt.Errorf("failed to migrate database schema: %w", err)
	}

	return &SQLiteStore{baseStore: baseStore{db: db}, dbPath: dbPath}, nil
}

func (s *SQLiteStore) UpsertDevice(ctx context.Context, d *Device) error {
	start := time.Now()
	ctx, cancel := opContext(ctx)
	defer cancel()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO devices (device_id, label) VALUES (?, ?)
		ON CONFLICT(device_id) DO UPDATE SET
			label = CASE WHEN excluded.label != '' THEN excluded.label ELSE devices.label END
	`, d.DeviceID, d.Label)
	observe("upsert_device", start, err)
	return persist("upsert device", err)
}

func (s *SQLiteStore) GetDevice(ctx context.Context, deviceID string) (*Device, error) {
	ctx, cancel := opContext(ctx)
	defer cancel()

	var d Device
	err := s.db.QueryRowContext(ctx,
		"SELECT device_id, label FROM devices WHERE device_id = ?", deviceID,
	).Scan(&d.DeviceID, &d.Label)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &d, nil
}

func (s *SQLiteStore) UpsertBinding(ctx context.Context, b *MountBinding) error {
	start := time.Now()
	ctx, cancel := opContext(ctx)
	defer cancel()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO mount_bindings (device_id, system_id, mount_path, first_seen, last_seen, is_active)
		VALUES (?, ?, ?, ?, ?, 1)
		ON CONFLICT(device_id, system_id) DO UPDATE SET
			mount_path = excluded.mount_path,
			last_seen = excluded.last_seen,
			is_active = 1
	`, b.DeviceID, b.SystemID, b.MountPath, b.LastSeen, b.LastSeen)
	observe("upsert_binding", start, err)
	return persist("upsert binding", err)
}

func (s *SQLiteStore) MarkBindingsInactive(ctx context.Context, systemID string, activeDeviceIDs []string) (int64, error) {
	start := time.Now()
	ctx, cancel := opContext(ctx)
	defer cancel()

	query := "UPDATE mount_bindings SET is_active = 0 WHERE system_id = ? AND is_active = 1"
	args := []any{systemID}
	if len(activeDeviceIDs) > 0 {
		query += " AND device_id NOT IN (?" + repeatPlaceholder(len(activeDeviceIDs)-1) + ")"
		for _, id := range activeDeviceIDs {
			args = append(args, id)
		}
	}

	res, err := s.db.ExecContext(ctx, query, args...)
	observe("mark_bindings_inactive", start, err)
	if err != nil {
		return 0, persist("mark bindings inactive", err)
	}
	return res.RowsAffected()
}

func (s *SQLiteStore) GetBinding(ctx context.Context, deviceID, systemID string) (*MountBinding, error) {
	ctx, cancel := opContext(ctx)
	defer cancel()

	return scanBinding(s.db.QueryRowContext(ctx,
		"SELECT "+bindingColumns+" FROM mount_bindings WHERE device_id = ? AND system_id = ?",
		deviceID, systemID))
}

func (s *SQLiteStore) AnyBinding(ctx context.Context, deviceID string) (*MountBinding, error) {
	ctx, cancel := opContext(ctx)
	defer cancel()

	return scanBinding(s.db.QueryRowContext(ctx,
		"SELECT "+bindingColumns+" FROM mount_bindings WHERE device_id = ? ORDER BY last_seen DESC LIMIT 1",
		deviceID))
}

func (s *SQLiteStore) ListBindings(ctx context.Context, systemID string) ([]MountBinding, error) {
	ctx, cancel := opContext(ctx)
	defer cancel()

	rows, err := s.db.QueryContext(ctx,
		"SELECT "+bindingColumns+" FROM mount_bindings WHERE system_id = ? ORDER BY last_seen DESC",
		systemID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var bindings []MountBinding
	for rows.Next() {
		b, err := scanBinding(rows)
		if err != nil {
			return nil, err
		}
		bindings = append(bindings, *b)
	}
	return bindings, rows.Err()
}

func (s *SQLiteStore) GetFileMeta(ctx context.Context, deviceID, relPath, systemID string) (*FileMeta, error) {
	ctx, cancel := opContext(ctx)
	defer cancel()

	var meta FileMeta
	var modified sql.NullTime
	err := s.db.QueryRowContext(ctx,
		"SELECT size, modified_time FROM files WHERE device_id = ? AND relative_path = ? AND system_id = ?",
		deviceID, relPath, systemID,
	).Scan(&meta.Size, &modified)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	meta.ModifiedTime = modified.Time
	return &meta, nil
}

func (s *SQLiteStore) GetFile(ctx context.Context, deviceID, relPath string) (*FileRecord, error) {
	ctx, cancel := opContext(ctx)
	defer cancel()

	return scanFile(s.db.QueryRowContext(ctx,
		"SELECT "+fileColumns+" FROM files WHERE device_id = ? AND relative_path = ? ORDER BY scanned_time DESC LIMIT 1",
		deviceID, relPath))
}

func (s *SQLiteStore) UpsertFile(tx *sql.Tx, f *FileRecord) error {
	start := time.Now()
	_, err := tx.Exec(`
		INSERT INTO files (device_id, relative_path, content_hash, size, modified_time, scanned_time, system_id)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(device_id, relative_path, system_id) DO UPDATE SET
			content_hash = excluded.content_hash,
			size = excluded.size,
			modified_time = excluded.modified_time,
			scanned_time = excluded.scanned_time
	`, f.DeviceID, f.RelativePath, nullIfEmpty(f.ContentHash), f.Size, f.ModifiedTime, f.ScannedTime, f.SystemID)
	observe("upsert_file", start, err)
	return persist("upsert file", err)
}

func (s *SQLiteStore) TouchFile(tx *sql.Tx, deviceID, relPath, systemID string, seen time.Time) error {
	start := time.Now()
	_, err := tx.Exec(
		"UPDATE files SET scanned_time = ? WHERE device_id = ? AND relative_path = ? AND system_id = ?",
		seen, deviceID, relPath, systemID)
	observe("touch_file", start, err)
	return persist("touch file", err)
}

func (s *SQLiteStore) DeleteFilesBefore(tx *sql.Tx, deviceID, systemID string, cutoff time.Time) (int64, error) {
	start := time.Now()
	res, err := tx.Exec(
		"DELETE FROM files WHERE device_id = ? AND system_id = ? AND scanned_time < ?",
		deviceID, systemID, cutoff)
	observe("delete_missing_files", start, err)
	if err != nil {
		return 0, persist("delete missing files", err)
	}
	return res.RowsAffected()
}

func (s *SQLiteStore) SaveCheckpoint(ctx context.Context, cp *ScanCheckpoint) error {
	start := time.Now()
	ctx, cancel := opContext(ctx)
	defer cancel()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO scan_checkpoints (device_id, system_id, files_seen, files_new, last_updated)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(device_id, system_id) DO UPDATE SET
			files_seen = excluded.files_seen,
			files_new = excluded.files_new,
			last_updated = excluded.last_updated
	`, cp.DeviceID, cp.SystemID, cp.FilesSeen, cp.FilesNew, cp.LastUpdated)
	observe("save_checkpoint", start, err)
	return persist("save checkpoint", err)
}

func (s *SQLiteStore) GetCheckpoint(ctx context.Context, deviceID, systemID string) (*ScanCheckpoint, error) {
	ctx, cancel := opContext(ctx)
	defer cancel()

	return scanCheckpoint(s.db.QueryRowContext(ctx, `
		SELECT device_id, system_id, files_seen, files_new, last_updated
		FROM scan_checkpoints WHERE device_id = ? AND system_id = ?
	`, deviceID, systemID))
}

func (s *SQLiteStore) ListCheckpoints(ctx context.Context) ([]ScanCheckpoint, error) {
	ctx, cancel := opContext(ctx)
	defer cancel()

	rows, err := s.db.QueryContext(ctx, `
		SELECT device_id, system_id, files_seen, files_new, last_updated
		FROM scan_checkpoints ORDER BY last_updated DESC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var cps []ScanCheckpoint
	for rows.Next() {
		cp, err := scanCheckpoint(rows)
		if err != nil {
			return nil, err
		}
		cps = append(cps, *cp)
	}
	return cps, rows.Err()
}

func (s *SQLiteStore) StaleFiles(ctx context.Context, ownSystemID string, since time.Time) ([]FileRecord, error) {
	ctx, cancel := opContext(ctx)
	defer cancel()

	rows, err := s.db.QueryContext(ctx,
		"SELECT "+fileColumns+" FROM files WHERE last_sync IS NULL OR last_sync < ? OR system_id != ?",
		since, ownSystemID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var files []FileRecord
	for rows.Next() {
		f, err := scanFile(rows)
		if err != nil {
			return nil, err
		}
		files = append(files, *f)
	}
	return files, rows.Err()
}

func (s *SQLiteStore) ClaimFile(tx *sql.Tx, f *FileRecord, ownSystemID string, now time.Time) error {
	start := time.Now()

	// Drop any stale own-system row first so the claimed row's unique key
	// does not collide; the later confirmation fully overwrites.
	if f.SystemID != ownSystemID {
		if _, err := tx.Exec(
			"DELETE FROM files WHERE device_id = ? AND relative_path = ? AND system_id = ?",
			f.DeviceID, f.RelativePath, ownSystemID); err != nil {
			observe("claim_file", start, err)
			return persist("claim file", err)
		}
	}

	_, err := tx.Exec(
		"UPDATE files SET system_id = ?, last_sync = ? WHERE device_id = ? AND relative_path = ? AND system_id = ?",
		ownSystemID, now, f.DeviceID, f.RelativePath, f.SystemID)
	observe("claim_file", start, err)
	return persist("claim file", err)
}

func (s *SQLiteStore) DeleteFile(tx *sql.Tx, deviceID, relPath, systemID string) error {
	start := time.Now()
	_, err := tx.Exec(
		"DELETE FROM files WHERE device_id = ? AND relative_path = ? AND system_id = ?",
		deviceID, relPath, systemID)
	observe("delete_file", start, err)
	return persist("delete file", err)
}

func (s *SQLiteStore) StaleBindings(ctx context.Context, ownSystemID string, since time.Time) ([]MountBinding, error) {
	ctx, cancel := opContext(ctx)
	defer cancel()

	rows, err := s.db.QueryContext(ctx,
		"SELECT "+bindingColumns+" FROM mount_bindings WHERE last_sync IS NULL OR last_sync < ? OR system_id != ?",
		since, ownSystemID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var bindings []MountBinding
	for rows.Next() {
		b, err := scanBinding(rows)
		if err != nil {
			return nil, err
		}
		bindings = append(bindings, *b)
	}
	return bindings, rows.Err()
}

func (s *SQLiteStore) ClaimBinding(tx *sql.Tx, b *MountBinding, ownSystemID, mountPath string, now time.Time) error {
	start := time.Now()

	if b.SystemID != ownSystemID {
		if _, err := tx.Exec(
			"DELETE FROM mount_bindings WHERE device_id = ? AND system_id = ?",
			b.DeviceID, ownSystemID); err != nil {
			observe("claim_binding", start, err)
			return persist("claim binding", err)
		}
	}

	_, err := tx.Exec(`
		UPDATE mount_bindings
		SET system_id = ?, mount_path = ?, last_seen = ?, last_sync = ?, is_active = 1
		WHERE device_id = ? AND system_id = ?
	`, ownSystemID, mountPath, now, now, b.DeviceID, b.SystemID)
	observe("claim_binding", start, err)
	return persist("claim binding", err)
}

func (s *SQLiteStore) DeactivateBinding(tx *sql.Tx, deviceID, systemID string, now time.Time) error {
	start := time.Now()
	_, err := tx.Exec(
		"UPDATE mount_bindings SET is_active = 0, last_sync = ? WHERE device_id = ? AND system_id = ?",
		now, deviceID, systemID)
	observe("deactivate_binding", start, err)
	return persist("deactivate binding", err)
}

func (s *SQLiteStore) Stats(ctx context.Context) (*Stats, error) {
	ctx, cancel := opContext(ctx)
	defer cancel()

	var st Stats
	err := s.db.QueryRowContext(ctx, `
		SELECT
			(SELECT COUNT(*) FROM devices),
			(SELECT COUNT(*) FROM mount_bindings),
			(SELECT COUNT(*) FROM mount_bindings WHERE is_active = 1),
			(SELECT COUNT(*) FROM files)
	`).Scan(&st.Devices, &st.Bindings, &st.ActiveBindings, &st.Files)
	if err != nil {
		return nil, err
	}
	return &st, nil
}

// repeatPlaceholder returns n copies of ", ?".
func repeatPlaceholder(n int) string {
	out := ""
	for i := 0; i < n; i++ {
		out += ", ?"
	}
	return out
}
