package config

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"
)

func TestReadWriteRoundTrip(t *testing.T) {
	cfg := NewConfig("/var/lib/mediacat")
	cfg.SystemID = "macbook"
	cfg.Scan.SkipDirs = []string{"/System", "/proc"}
	cfg.Scan.Extensions = []string{".jpg", ".mp4"}

	m := &Manager{}
	var buf bytes.Buffer
	if err := m.Write(&buf, cfg); err != nil {
		t.Fatalf("Write: %v", err)
	}

	got, err := m.Read(&buf)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if got.SystemID != "macbook" {
		t.Errorf("system_id = %q", got.SystemID)
	}
	if got.Database.Type != "sqlite" || got.Database.Path != "/var/lib/mediacat/catalog.db" {
		t.Errorf("database = %+v", got.Database)
	}
	if got.Scan.HashTimeoutSeconds != 10 || got.Scan.BatchSize != 500 {
		t.Errorf("scan = %+v", got.Scan)
	}
	if len(got.Scan.Extensions) != 2 {
		t.Errorf("extensions = %v", got.Scan.Extensions)
	}
}

func TestReadPostgresConfig(t *testing.T) {
	input := `
system_id = "nas"

[database]
type = "postgres"
host = "db.local"
port = 5432
database = "media_catalog"
username = "catalog"
password = "secret"
`
	m := &Manager{}
	cfg, err := m.Read(strings.NewReader(input))
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if cfg.Database.Type != "postgres" || cfg.Database.Host != "db.local" || cfg.Database.Port != 5432 {
		t.Errorf("database = %+v", cfg.Database)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate: %v", err)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"defaults", func(c *Config) {}, false},
		{"missing sqlite path", func(c *Config) { c.Database.Path = "" }, true},
		{"unknown db type", func(c *Config) { c.Database.Type = "oracle" }, true},
		{"postgres without host", func(c *Config) {
			c.Database.Type = "postgres"
			c.Database.Database = "media"
		}, true},
		{"empty system id", func(c *Config) { c.SystemID = "" }, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := NewConfig(t.TempDir())
			tt.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestResolveSystemID(t *testing.T) {
	cfg := NewConfig(t.TempDir())
	cfg.SystemID = "fixed-name"
	if got := cfg.ResolveSystemID(); got != "fixed-name" {
		t.Errorf("ResolveSystemID = %q", got)
	}

	cfg.SystemID = "auto"
	got := cfg.ResolveSystemID()
	if got == "" || got == "auto" {
		t.Errorf("auto system ID = %q", got)
	}
	if got != strings.ToLower(got) {
		t.Errorf("auto system ID %q is not lowercase", got)
	}
}

func TestInitRefusesExisting(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	cfg := NewConfig(t.TempDir())

	if err := Init(path, cfg); err != nil {
		t.Fatalf("Init: %v", err)
	}
	if err := Init(path, cfg); err == nil {
		t.Error("second Init succeeded, want error")
	}

	got, err := ReadFromFile(path)
	if err != nil {
		t.Fatalf("ReadFromFile: %v", err)
	}
	if got.SystemID != "auto" {
		t.Errorf("system_id = %q", got.SystemID)
	}
}
