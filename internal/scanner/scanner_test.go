package scanner

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"media-catalog/internal/catalog"
)

func newTestScanner(t *testing.T) (*Scanner, catalog.Store) {
	t.Helper()
	store, err := catalog.NewSQLiteStore(context.Background(), filepath.Join(t.TempDir(), "catalog.db"))
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	opts := DefaultOptions()
	opts.CheckpointInterval = 0 // checkpoint only at batch boundaries in tests
	return New(store, "sys-test", opts), store
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func sha256Hex(content string) string {
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])
}

func TestScanDeviceRecordsMediaFiles(t *testing.T) {
	s, store := newTestScanner(t)
	ctx := context.Background()
	mount := t.TempDir()

	writeFile(t, mount, "photos/a.jpg", "jpeg-bytes")
	writeFile(t, mount, "videos/clip.mp4", "mp4-bytes")
	writeFile(t, mount, "notes.txt", "not media")
	writeFile(t, mount, ".hidden.jpg", "hidden")
	writeFile(t, mount, ".cache/thumb.jpg", "cached")

	res, err := s.ScanDevice(ctx, "dev-1", mount)
	if err != nil {
		t.Fatalf("ScanDevice: %v", err)
	}
	if res.FilesSeen != 2 || res.FilesHashed != 2 {
		t.Errorf("result = %+v, want 2 seen and 2 hashed", res)
	}

	f, err := store.GetFile(ctx, "dev-1", "photos/a.jpg")
	if err != nil {
		t.Fatalf("GetFile: %v", err)
	}
	if f.ContentHash != sha256Hex("jpeg-bytes") {
		t.Errorf("hash = %q, want sha256 of content", f.ContentHash)
	}
	if f.Size != int64(len("jpeg-bytes")) {
		t.Errorf("size = %d", f.Size)
	}
	if f.SystemID != "sys-test" {
		t.Errorf("system = %q", f.SystemID)
	}

	// Non-media, hidden, and dotted-directory files never get rows.
	for _, rel := range []string{"notes.txt", ".hidden.jpg", ".cache/thumb.jpg"} {
		if _, err := store.GetFile(ctx, "dev-1", rel); err == nil {
			t.Errorf("unexpected record for %s", rel)
		}
	}

	cp, err := store.GetCheckpoint(ctx, "dev-1", "sys-test")
	if err != nil {
		t.Fatalf("GetCheckpoint: %v", err)
	}
	if cp.FilesSeen != 2 || cp.FilesNew != 2 {
		t.Errorf("checkpoint = %+v", cp)
	}
}

func TestScanDeviceIncremental(t *testing.T) {
	s, store := newTestScanner(t)
	ctx := context.Background()
	mount := t.TempDir()

	writeFile(t, mount, "a.jpg", "aaa")
	removed := writeFile(t, mount, "b.jpg", "bbb")

	if _, err := s.ScanDevice(ctx, "dev-1", mount); err != nil {
		t.Fatalf("first scan: %v", err)
	}

	if err := os.Remove(removed); err != nil {
		t.Fatal(err)
	}

	res, err := s.ScanDevice(ctx, "dev-1", mount)
	if err != nil {
		t.Fatalf("second scan: %v", err)
	}
	if res.FilesUnchanged != 1 {
		t.Errorf("unchanged = %d, want 1", res.FilesUnchanged)
	}
	if res.FilesHashed != 0 {
		t.Errorf("hashed = %d, want 0", res.FilesHashed)
	}
	if res.FilesRemoved != 1 {
		t.Errorf("removed = %d, want 1", res.FilesRemoved)
	}

	if _, err := store.GetFile(ctx, "dev-1", "b.jpg"); err == nil {
		t.Error("record for deleted file survived reconciliation")
	}
	if _, err := store.GetFile(ctx, "dev-1", "a.jpg"); err != nil {
		t.Errorf("record for present file was removed: %v", err)
	}
}

func TestScanDeviceDetectsModification(t *testing.T) {
	s, store := newTestScanner(t)
	ctx := context.Background()
	mount := t.TempDir()

	path := writeFile(t, mount, "a.jpg", "original")
	if _, err := s.ScanDevice(ctx, "dev-1", mount); err != nil {
		t.Fatalf("first scan: %v", err)
	}

	if err := os.WriteFile(path, []byte("rewritten!"), 0o644); err != nil {
		t.Fatal(err)
	}
	// Force an mtime the second-granularity comparison cannot miss.
	newTime := time.Now().Add(time.Hour)
	if err := os.Chtimes(path, newTime, newTime); err != nil {
		t.Fatal(err)
	}

	res, err := s.ScanDevice(ctx, "dev-1", mount)
	if err != nil {
		t.Fatalf("second scan: %v", err)
	}
	if res.FilesHashed != 1 {
		t.Errorf("hashed = %d, want 1", res.FilesHashed)
	}

	f, err := store.GetFile(ctx, "dev-1", "a.jpg")
	if err != nil {
		t.Fatalf("GetFile: %v", err)
	}
	if f.ContentHash != sha256Hex("rewritten!") {
		t.Errorf("hash = %q, want hash of new content", f.ContentHash)
	}
}

func TestScanDeviceHashTimeoutKeepsRecord(t *testing.T) {
	s, store := newTestScanner(t)
	ctx := context.Background()
	mount := t.TempDir()

	path := writeFile(t, mount, "a.jpg", "original")
	if _, err := s.ScanDevice(ctx, "dev-1", mount); err != nil {
		t.Fatalf("first scan: %v", err)
	}

	if err := os.WriteFile(path, []byte("rewritten!"), 0o644); err != nil {
		t.Fatal(err)
	}
	newTime := time.Now().Add(time.Hour)
	if err := os.Chtimes(path, newTime, newTime); err != nil {
		t.Fatal(err)
	}

	opts := DefaultOptions()
	opts.CheckpointInterval = 0
	opts.HashTimeout = time.Nanosecond
	slow := New(store, "sys-test", opts)

	res, err := slow.ScanDevice(ctx, "dev-1", mount)
	if err != nil {
		t.Fatalf("second scan: %v", err)
	}
	if res.HashTimeouts != 1 {
		t.Errorf("timeouts = %d, want 1", res.HashTimeouts)
	}
	if res.FilesRemoved != 0 {
		t.Errorf("removed = %d, want 0: the file is still on disk", res.FilesRemoved)
	}

	// The record survives with its last good hash until a scan can re-hash.
	f, err := store.GetFile(ctx, "dev-1", "a.jpg")
	if err != nil {
		t.Fatalf("GetFile: %v", err)
	}
	if f.ContentHash != sha256Hex("original") {
		t.Errorf("hash = %q, want the previous hash kept", f.ContentHash)
	}
}

func TestScanDeviceCanceledKeepsProgress(t *testing.T) {
	s, store := newTestScanner(t)
	mount := t.TempDir()
	writeFile(t, mount, "a.jpg", "aaa")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := s.ScanDevice(ctx, "dev-1", mount)
	if err == nil {
		t.Fatal("expected cancellation error")
	}

	// Nothing was walked, so nothing may have been reconciled away either.
	if _, err := store.Stats(context.Background()); err != nil {
		t.Fatalf("Stats: %v", err)
	}
}

func TestScanAllSweepsEveryMount(t *testing.T) {
	s, store := newTestScanner(t)
	ctx := context.Background()

	mountA := t.TempDir()
	mountB := t.TempDir()
	writeFile(t, mountA, "a.jpg", "aaa")
	writeFile(t, mountB, "b.jpg", "bbb")

	results, err := s.ScanAll(ctx, map[string]string{
		mountA: "dev-a",
		mountB: "dev-b",
	})
	if err != nil {
		t.Fatalf("ScanAll: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("results = %d, want 2", len(results))
	}

	for _, probe := range []struct{ dev, rel string }{
		{"dev-a", "a.jpg"},
		{"dev-b", "b.jpg"},
	} {
		if _, err := store.GetFile(ctx, probe.dev, probe.rel); err != nil {
			t.Errorf("missing record for %s/%s: %v", probe.dev, probe.rel, err)
		}
	}
}

func TestSkipDir(t *testing.T) {
	s, _ := newTestScanner(t)

	tests := []struct {
		path string
		name string
		want bool
	}{
		{"/Volumes/Externa/photos", "photos", false},
		{"/Volumes/Externa/.Trashes", ".Trashes", true},
		{"/proc/1234", "1234", true},
		{"/System/Library", "Library", true},
		{"/Volumes/Externa/systemic", "systemic", false},
	}
	for _, tt := range tests {
		if got := s.skipDir(tt.path, tt.name); got != tt.want {
			t.Errorf("skipDir(%q) = %v, want %v", tt.path, got, tt.want)
		}
	}
}

func TestWantFile(t *testing.T) {
	s, _ := newTestScanner(t)

	tests := []struct {
		name string
		want bool
	}{
		{"photo.jpg", true},
		{"PHOTO.JPG", true},
		{"clip.mp4", true},
		{"song.flac", true},
		{"doc.pdf", true},
		{"binary.exe", false},
		{".DS_Store", false},
		{"noext", false},
	}
	for _, tt := range tests {
		if got := s.wantFile(tt.name); got != tt.want {
			t.Errorf("wantFile(%q) = %v, want %v", tt.name, got, tt.want)
		}
	}
}

func TestHashFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "f")
	if err := os.WriteFile(path, []byte("hello"), 0o644); err != nil {
		t.Fatal(err)
	}

	got, err := HashFile(context.Background(), path, time.Minute, 0, 8)
	if err != nil {
		t.Fatalf("HashFile: %v", err)
	}
	if got != sha256Hex("hello") {
		t.Errorf("hash = %q, want sha256 of hello", got)
	}
}

func TestHashFileMaxBytes(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "f")
	if err := os.WriteFile(path, []byte("0123456789"), 0o644); err != nil {
		t.Fatal(err)
	}

	got, err := HashFile(context.Background(), path, time.Minute, 4, 64)
	if err != nil {
		t.Fatalf("HashFile: %v", err)
	}
	if got != sha256Hex("0123") {
		t.Errorf("hash = %q, want sha256 of first 4 bytes", got)
	}
}

func TestHashFileCanceled(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "f")
	if err := os.WriteFile(path, []byte("content"), 0o644); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	// A canceled caller is not a hash timeout.
	_, err := HashFile(ctx, path, time.Minute, 0, 64)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if errors.Is(err, ErrHashTimeout) {
		t.Fatal("cancellation misreported as a hash timeout")
	}
}

func TestHashFileDeadline(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "f")
	if err := os.WriteFile(path, []byte("content"), 0o644); err != nil {
		t.Fatal(err)
	}

	if _, err := HashFile(context.Background(), path, time.Nanosecond, 0, 64); !errors.Is(err, ErrHashTimeout) {
		t.Fatalf("err = %v, want ErrHashTimeout", err)
	}
}

func TestHashFileMissing(t *testing.T) {
	if _, err := HashFile(context.Background(), filepath.Join(t.TempDir(), "nope"), time.Minute, 0, 64); err == nil {
		t.Fatal("expected error for missing file")
	}
}
