package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"media-catalog/internal/metrics"
)

// defaultTimeout bounds single-statement database operations.
const defaultTimeout = 5 * time.Second

// baseStore carries the connection handling shared by both dialect
// implementations.
type baseStore struct {
	db      *sql.DB
	txStart time.Time // transaction start time for metrics
}

func (s *baseStore) Close() error { return s.db.Close() }

func (s *baseStore) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()
	return s.db.PingContext(ctx)
}

// BeginBatch starts a transaction for batch operations. The transaction
// lifetime is managed by EndBatch, not a timeout context.
func (s *baseStore) BeginBatch() (*sql.Tx, error) {
	s.txStart = time.Now()
	return s.db.BeginTx(context.Background(), nil)
}

// EndBatch commits or rolls back a transaction.
func (s *baseStore) EndBatch(tx *sql.Tx, err error) error {
	duration := time.Since(s.txStart).Seconds()

	if err != nil {
		metrics.DBTransactionDuration.WithLabelValues("rollback").Observe(duration)
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			return errors.Join(err, fmt.Errorf("rollback also failed: %w", rbErr))
		}
		return err
	}

	metrics.DBTransactionDuration.WithLabelValues("commit").Observe(duration)
	return tx.Commit()
}

// observe records per-query metrics.
func observe(op string, start time.Time, err error) {
	metrics.DBQueryDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
	status := "success"
	if err != nil && !errors.Is(err, ErrNotFound) {
		status = "error"
	}
	metrics.DBQueryTotal.WithLabelValues(op, status).Inc()
}

// opContext returns a bounded context for a single statement.
func opContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, defaultTimeout)
}

// nullIfEmpty maps "" to SQL NULL for nullable text columns.
func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}

type rowScanner interface {
	Scan(dest ...any) error
}

const bindingColumns = "device_id, system_id, mount_path, first_seen, last_seen, last_sync, is_active"

func scanBinding(row rowScanner) (*MountBinding, error) {
	var b MountBinding
	err := row.Scan(&b.DeviceID, &b.SystemID, &b.MountPath, &b.FirstSeen, &b.LastSeen, &b.LastSync, &b.IsActive)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &b, nil
}

const fileColumns = "id, device_id, relative_path, content_hash, size, modified_time, scanned_time, system_id, last_sync"

func scanFile(row rowScanner) (*FileRecord, error) {
	var f FileRecord
	var hash sql.NullString
	var modified sql.NullTime
	err := row.Scan(&f.ID, &f.DeviceID, &f.RelativePath, &hash, &f.Size, &modified, &f.ScannedTime, &f.SystemID, &f.LastSync)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	f.ContentHash = hash.String
	f.ModifiedTime = modified.Time
	return &f, nil
}

func scanCheckpoint(row rowScanner) (*ScanCheckpoint, error) {
	var cp ScanCheckpoint
	err := row.Scan(&cp.DeviceID, &cp.SystemID, &cp.FilesSeen, &cp.FilesNew, &cp.LastUpdated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &cp, nil
}

// persist wraps a write-path error as a PersistenceError.
func persist(op string, err error) error {
	if err == nil {
		return nil
	}
	return &PersistenceError{Op: op, Err: err}
}
