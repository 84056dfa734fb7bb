package registry

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"media-catalog/internal/catalog"
)

func newTestRegistry(t *testing.T, systemID string) (*Registry, catalog.Store) {
	t.Helper()
	store, err := catalog.NewSQLiteStore(context.Background(), filepath.Join(t.TempDir(), "catalog.db"))
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return New(store, systemID), store
}

func TestRegisterAllRecordsBindings(t *testing.T) {
	r, store := newTestRegistry(t, "sys-a")
	ctx := context.Background()

	active, err := r.RegisterAll(ctx, map[string]string{
		"/Volumes/Externa": "ABCD-1234",
		"/Volumes/Backup":  "EF56-7890",
	})
	if err != nil {
		t.Fatalf("RegisterAll: %v", err)
	}
	if len(active) != 2 {
		t.Fatalf("active = %v, want 2 devices", active)
	}

	b, err := store.GetBinding(ctx, "ABCD-1234", "sys-a")
	if err != nil {
		t.Fatalf("GetBinding: %v", err)
	}
	if b.MountPath != "/Volumes/Externa" || !b.IsActive {
		t.Errorf("binding = %+v", b)
	}

	d, err := store.GetDevice(ctx, "ABCD-1234")
	if err != nil {
		t.Fatalf("GetDevice: %v", err)
	}
	if d.Label != "Externa" {
		t.Errorf("label = %q, want Externa", d.Label)
	}
}

func TestRegisterAllDeactivatesDetached(t *testing.T) {
	r, store := newTestRegistry(t, "sys-a")
	ctx := context.Background()

	if _, err := r.RegisterAll(ctx, map[string]string{
		"/Volumes/Externa": "ABCD-1234",
		"/Volumes/Backup":  "EF56-7890",
	}); err != nil {
		t.Fatalf("RegisterAll: %v", err)
	}

	// Backup was unplugged before the second sweep.
	if _, err := r.RegisterAll(ctx, map[string]string{
		"/Volumes/Externa": "ABCD-1234",
	}); err != nil {
		t.Fatalf("RegisterAll: %v", err)
	}

	b, err := store.GetBinding(ctx, "EF56-7890", "sys-a")
	if err != nil {
		t.Fatalf("GetBinding: %v", err)
	}
	if b.IsActive {
		t.Error("detached device binding still active")
	}

	b, err = store.GetBinding(ctx, "ABCD-1234", "sys-a")
	if err != nil {
		t.Fatalf("GetBinding: %v", err)
	}
	if !b.IsActive {
		t.Error("attached device binding deactivated")
	}
}

func TestRegisterAllEmptySetLeavesBindings(t *testing.T) {
	r, store := newTestRegistry(t, "sys-a")
	ctx := context.Background()

	if _, err := r.RegisterAll(ctx, map[string]string{
		"/Volumes/Externa": "ABCD-1234",
	}); err != nil {
		t.Fatalf("RegisterAll: %v", err)
	}

	// A sweep that found nothing must not wipe the existing bindings.
	if _, err := r.RegisterAll(ctx, nil); err != nil {
		t.Fatalf("RegisterAll (empty): %v", err)
	}

	b, err := store.GetBinding(ctx, "ABCD-1234", "sys-a")
	if err != nil {
		t.Fatalf("GetBinding: %v", err)
	}
	if !b.IsActive {
		t.Error("binding deactivated by an empty registration sweep")
	}
}

func TestResolveMountPointPrefersOwnBinding(t *testing.T) {
	r, store := newTestRegistry(t, "sys-a")
	ctx := context.Background()
	now := time.Now().UTC()

	if err := store.UpsertDevice(ctx, &catalog.Device{DeviceID: "dev-1"}); err != nil {
		t.Fatalf("UpsertDevice: %v", err)
	}
	if err := store.UpsertBinding(ctx, &catalog.MountBinding{DeviceID: "dev-1", SystemID: "sys-a", MountPath: "/Volumes/Externa", LastSeen: now}); err != nil {
		t.Fatalf("UpsertBinding: %v", err)
	}
	if err := store.UpsertBinding(ctx, &catalog.MountBinding{DeviceID: "dev-1", SystemID: "sys-b", MountPath: "/media/user/Externa", LastSeen: now.Add(time.Hour)}); err != nil {
		t.Fatalf("UpsertBinding: %v", err)
	}

	got, err := r.ResolveMountPoint(ctx, "dev-1")
	if err != nil {
		t.Fatalf("ResolveMountPoint: %v", err)
	}
	if got != "/Volumes/Externa" {
		t.Errorf("mount point = %q, want this system's binding", got)
	}
}

func TestResolveMountPointFallsBackToOtherSystem(t *testing.T) {
	r, store := newTestRegistry(t, "sys-a")
	ctx := context.Background()

	if err := store.UpsertDevice(ctx, &catalog.Device{DeviceID: "dev-1"}); err != nil {
		t.Fatalf("UpsertDevice: %v", err)
	}
	if err := store.UpsertBinding(ctx, &catalog.MountBinding{DeviceID: "dev-1", SystemID: "sys-b", MountPath: "/media/user/Externa", LastSeen: time.Now()}); err != nil {
		t.Fatalf("UpsertBinding: %v", err)
	}

	got, err := r.ResolveMountPoint(ctx, "dev-1")
	if err != nil {
		t.Fatalf("ResolveMountPoint: %v", err)
	}
	if got != "/media/user/Externa" {
		t.Errorf("mount point = %q, want the sys-b binding", got)
	}
}

func TestResolveMountPointUnknownDevice(t *testing.T) {
	r, _ := newTestRegistry(t, "sys-a")

	_, err := r.ResolveMountPoint(context.Background(), "missing")
	if !errors.Is(err, catalog.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestResolveFilePath(t *testing.T) {
	r, store := newTestRegistry(t, "sys-a")
	ctx := context.Background()

	mount := t.TempDir()
	if err := os.MkdirAll(filepath.Join(mount, "photos"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(mount, "photos", "a.jpg"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	if err := store.UpsertDevice(ctx, &catalog.Device{DeviceID: "dev-1"}); err != nil {
		t.Fatalf("UpsertDevice: %v", err)
	}
	if err := store.UpsertBinding(ctx, &catalog.MountBinding{DeviceID: "dev-1", SystemID: "sys-a", MountPath: mount, LastSeen: time.Now()}); err != nil {
		t.Fatalf("UpsertBinding: %v", err)
	}

	got, err := r.ResolveFilePath(ctx, "dev-1", "photos/a.jpg")
	if err != nil {
		t.Fatalf("ResolveFilePath: %v", err)
	}
	want := filepath.Join(mount, "photos", "a.jpg")
	if got != want {
		t.Errorf("resolved = %q, want %q", got, want)
	}
}

func TestDeviceLabel(t *testing.T) {
	tests := []struct {
		deviceID  string
		mountPath string
		want      string
	}{
		{"ABCD-1234", "/Volumes/Externa", "Externa"},
		{"ABCD-1234", "/media/user/My Disk", "My Disk"},
		{"fp_0011", "/mnt/raid0", "raid0"},
		{"home_aabbccdd", "/home/user", "home"},
		{"ABCD-1234", "/", "root"},
	}
	for _, tt := range tests {
		if got := deviceLabel(tt.deviceID, tt.mountPath); got != tt.want {
			t.Errorf("deviceLabel(%q, %q) = %q, want %q", tt.deviceID, tt.mountPath, got, tt.want)
		}
	}
}
