package catalog

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq" // PostgreSQL driver

	"media-catalog/internal/catalog/migrations"
	"media-catalog/internal/logging"
)

// PostgresConfig holds the connection settings for a shared central catalog.
type PostgresConfig struct {
	Host     string
	Port     int
	Database string
	Username string
	Password string
	SSLMode  string
}

// DSN renders the lib/pq connection string.
func (c PostgresConfig) DSN() string {
	sslMode := c.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	return fmt.Sprintf("host=%s port=%d dbname=%s user=%s password=%s sslmode=%s",
		c.Host, c.Port, c.Database, c.Username, c.Password, sslMode)
}

// PostgresStore is the Store implementation backed by a PostgreSQL server,
// typically shared by multiple systems converging through SyncEngine sweeps.
type PostgresStore struct {
	baseStore
}

// NewPostgresStore connects to the configured server and brings the schema to
// the latest version.
func NewPostgresStore(ctx context.Context, cfg PostgresConfig) (*PostgresStore, error) {
	logging.Info("Catalog database: postgres %s:%d/%s", cfg.Host, cfg.Port, cfg.Database)

	db, err := sql.Open("postgres", cfg.DSN())
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

	if err := migrations.Up(db, migrations.DialectPostgres); err != nil {
		if closeErr := db.Close(); closeErr != nil {
			logging.Error("failed to close database after migration failure: %v", closeErr)
		}
		return nil, fmt.Errorf("failed to migrate database schema: %w", err)
	}

	return &PostgresStore{baseStore: baseStore{db: db}}, nil
}

func (s *PostgresStore) UpsertDevice(ctx context.Context, d *Device) error {
	start := time.Now()
	ctx, cancel := opContext(ctx)
	defer cancel()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO devices (device_id, label) VALUES ($1, $2)
		ON CONFLICT (device_id) DO UPDATE SET
			label = CASE WHEN excluded.label != '' THEN excluded.label ELSE devices.label END
	`, d.DeviceID, d.Label)
	observe("upsert_device", start, err)
	return persist("upsert device", err)
}

func (s *PostgresStore) GetDevice(ctx context.Context, deviceID string) (*Device, error) {
	ctx, cancel := opContext(ctx)
	defer cancel()

	var d Device
	err := s.db.QueryRowContext(ctx,
		"SELECT device_id, label FROM devices WHERE device_id = $1", deviceID,
	).Scan(&d.DeviceID, &d.Label)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &d, nil
}

func (s *PostgresStore) UpsertBinding(ctx context.Context, b *MountBinding) error {
	start := time.Now()
	ctx, cancel := opContext(ctx)
	defer cancel()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO mount_bindings (device_id, system_id, mount_path, first_seen, last_seen, is_active)
		VALUES ($1, $2, $3, $4, $5, TRUE)
		ON CONFLICT (device_id, system_id) DO UPDATE SET
			mount_path = excluded.mount_path,
			last_seen = excluded.last_seen,
			is_active = TRUE
	`, b.DeviceID, b.SystemID, b.MountPath, b.LastSeen, b.LastSeen)
	observe("upsert_binding", start, err)
	return persist("upsert binding", err)
}

func (s *PostgresStore) MarkBindingsInactive(ctx context.Context, systemID string, activeDeviceIDs []string) (int64, error) {
	start := time.Now()
	ctx, cancel := opContext(ctx)
	defer cancel()

	query := "UPDATE mount_bindings SET is_active = FALSE WHERE system_id = $1 AND is_active = TRUE"
	args := []any{systemID}
	if len(activeDeviceIDs) > 0 {
		query += " AND device_id NOT IN ("
		for i, id := range activeDeviceIDs {
			if i > 0 {
				query += ", "
			}
			query += fmt.Sprintf("$%d", i+2)
			args = append(args, id)
		}
		query += ")"
	}

	res, err := s.db.ExecContext(ctx, query, args...)
	observe("mark_bindings_inactive", start, err)
	if err != nil {
		return 0, persist("mark bindings inactive", err)
	}
	return res.RowsAffected()
}

func (s *PostgresStore) GetBinding(ctx context.Context, deviceID, systemID string) (*MountBinding, error) {
	ctx, cancel := opContext(ctx)
	defer cancel()

	return scanBinding(s.db.QueryRowContext(ctx,
		"SELECT "+bindingColumns+" FROM mount_bindings WHERE device_id = $1 AND system_id = $2",
		deviceID, systemID))
}

func (s *PostgresStore) AnyBinding(ctx context.Context, deviceID string) (*MountBinding, error) {
	ctx, cancel := opContext(ctx)
	defer cancel()

	return scanBinding(s.db.QueryRowContext(ctx,
		"SELECT "+bindingColumns+" FROM mount_bindings WHERE device_id = $1 ORDER BY last_seen DESC LIMIT 1",
		deviceID))
}

func (s *PostgresStore) ListBindings(ctx context.Context, systemID string) ([]MountBinding, error) {
	ctx, cancel := opContext(ctx)
	defer cancel()

	rows, err := s.db.QueryContext(ctx,
		"SELECT "+bindingColumns+" FROM mount_bindings WHERE system_id = $1 ORDER BY last_seen DESC",
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

func (s *PostgresStore) GetFileMeta(ctx context.Context, deviceID, relPath, systemID string) (*FileMeta, error) {
	ctx, cancel := opContext(ctx)
	defer cancel()

	var meta FileMeta
	var modified sql.NullTime
	err := s.db.QueryRowContext(ctx,
		"SELECT size, modified_time FROM files WHERE device_id = $1 AND relative_path = $2 AND system_id = $3",
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

func (s *PostgresStore) GetFile(ctx context.Context, deviceID, relPath string) (*FileRecord, error) {
	ctx, cancel := opContext(ctx)
	defer cancel()

	return scanFile(s.db.QueryRowContext(ctx,
		"SELECT "+fileColumns+" FROM files WHERE device_id = $1 AND relative_path = $2 ORDER BY scanned_time DESC LIMIT 1",
		deviceID, relPath))
}

func (s *PostgresStore) UpsertFile(tx *sql.Tx, f *FileRecord) error {
	start := time.Now()
	_, err := tx.Exec(`
		INSERT INTO files (device_id, relative_path, content_hash, size, modified_time, scanned_time, system_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (device_id, relative_path, system_id) DO UPDATE SET
			content_hash = excluded.content_hash,
			size = excluded.size,
			modified_time = excluded.modified_time,
			scanned_time = excluded.scanned_time
	`, f.DeviceID, f.RelativePath, nullIfEmpty(f.ContentHash), f.Size, f.ModifiedTime, f.ScannedTime, f.SystemID)
	observe("upsert_file", start, err)
	return persist("upsert file", err)
}

func (s *PostgresStore) TouchFile(tx *sql.Tx, deviceID, relPath, systemID string, seen time.Time) error {
	start := time.Now()
	_, err := tx.Exec(
		"UPDATE files SET scanned_time = $1 WHERE device_id = $2 AND relative_path = $3 AND system_id = $4",
		seen, deviceID, relPath, systemID)
	observe("touch_file", start, err)
	return persist("touch file", err)
}

func (s *PostgresStore) DeleteFilesBefore(tx *sql.Tx, deviceID, systemID string, cutoff time.Time) (int64, error) {
	start := time.Now()
	res, err := tx.Exec(
		"DELETE FROM files WHERE device_id = $1 AND system_id = $2 AND scanned_time < $3",
		deviceID, systemID, cutoff)
	observe("delete_missing_files", start, err)
	if err != nil {
		return 0, persist("delete missing files", err)
	}
	return res.RowsAffected()
}

func (s *PostgresStore) SaveCheckpoint(ctx context.Context, cp *ScanCheckpoint) error {
	start := time.Now()
	ctx, cancel := opContext(ctx)
	defer cancel()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO scan_checkpoints (device_id, system_id, files_seen, files_new, last_updated)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (device_id, system_id) DO UPDATE SET
			files_seen = excluded.files_seen,
			files_new = excluded.files_new,
			last_updated = excluded.last_updated
	`, cp.DeviceID, cp.SystemID, cp.FilesSeen, cp.FilesNew, cp.LastUpdated)
	observe("save_checkpoint", start, err)
	return persist("save checkpoint", err)
}

func (s *PostgresStore) GetCheckpoint(ctx context.Context, deviceID, systemID string) (*ScanCheckpoint, error) {
	ctx, cancel := opContext(ctx)
	defer cancel()

	return scanCheckpoint(s.db.QueryRowContext(ctx, `
		SELECT device_id, system_id, files_seen, files_new, last_updated
		FROM scan_checkpoints WHERE device_id = $1 AND system_id = $2
	`, deviceID, systemID))
}

func (s *PostgresStore) ListCheckpoints(ctx context.Context) ([]ScanCheckpoint, error) {
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

func (s *PostgresStore) StaleFiles(ctx context.Context, ownSystemID string, since time.Time) ([]FileRecord, error) {
	ctx, cancel := opContext(ctx)
	defer cancel()

	rows, err := s.db.QueryContext(ctx,
		"SELECT "+fileColumns+" FROM files WHERE last_sync IS NULL OR last_sync < $1 OR system_id != $2",
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

func (s *PostgresStore) ClaimFile(tx *sql.Tx, f *FileRecord, ownSystemID string, now time.Time) error {
	start := time.Now()

	if f.SystemID != ownSystemID {
		if _, err := tx.Exec(
			"DELETE FROM files WHERE device_id = $1 AND relative_path = $2 AND system_id = $3",
			f.DeviceID, f.RelativePath, ownSystemID); err != nil {
			observe("claim_file", start, err)
			return persist("claim file", err)
		}
	}

	_, err := tx.Exec(
		"UPDATE files SET system_id = $1, last_sync = $2 WHERE device_id = $3 AND relative_path = $4 AND system_id = $5",
		ownSystemID, now, f.DeviceID, f.RelativePath, f.SystemID)
	observe("claim_file", start, err)
	return persist("claim file", err)
}

func (s *PostgresStore) DeleteFile(tx *sql.Tx, deviceID, relPath, systemID string) error {
	start := time.Now()
	_, err := tx.Exec(
		"DELETE FROM files WHERE device_id = $1 AND relative_path = $2 AND system_id = $3",
		deviceID, relPath, systemID)
	observe("delete_file", start, err)
	return persist("delete file", err)
}

func (s *PostgresStore) StaleBindings(ctx context.Context, ownSystemID string, since time.Time) ([]MountBinding, error) {
	ctx, cancel := opContext(ctx)
	defer cancel()

	rows, err := s.db.QueryContext(ctx,
		"SELECT "+bindingColumns+" FROM mount_bindings WHERE last_sync IS NULL OR last_sync < $1 OR system_id != $2",
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

func (s *PostgresStore) ClaimBinding(tx *sql.Tx, b *MountBinding, ownSystemID, mountPath string, now time.Time) error {
	start := time.Now()

	if b.SystemID != ownSystemID {
		if _, err := tx.Exec(
			"DELETE FROM mount_bindings WHERE device_id = $1 AND system_id = $2",
			b.DeviceID, ownSystemID); err != nil {
			observe("claim_binding", start, err)
			return persist("claim binding", err)
		}
	}

	_, err := tx.Exec(`
		UPDATE mount_bindings
		SET system_id = $1, mount_path = $2, last_seen = $3, last_sync = $4, is_active = TRUE
		WHERE device_id = $5 AND system_id = $6
	`, ownSystemID, mountPath, now, now, b.DeviceID, b.SystemID)
	observe("claim_binding", start, err)
	return persist("claim binding", err)
}

func (s *PostgresStore) DeactivateBinding(tx *sql.Tx, deviceID, systemID string, now time.Time) error {
	start := time.Now()
	_, err := tx.Exec(
		"UPDATE mount_bindings SET is_active = FALSE, last_sync = $1 WHERE device_id = $2 AND system_id = $3",
		now, deviceID, systemID)
	observe("deactivate_binding", start, err)
	return persist("deactivate binding", err)
}

func (s *PostgresStore) Stats(ctx context.Context) (*Stats, error) {
	ctx, cancel := opContext(ctx)
	defer cancel()

	var st Stats
	err := s.db.QueryRowContext(ctx, `
		SELECT
			(SELECT COUNT(*) FROM devices),
			(SELECT COUNT(*) FROM mount_bindings),
			(SELECT COUNT(*) FROM mount_bindings WHERE is_active),
			(SELECT COUNT(*) FROM files)
	`).Scan(&st.Devices, &st.Bindings, &st.ActiveBindings, &st.Files)
	if err != nil {
		return nil, err
	}
	return &st, nil
}
