package config

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/google/uuid"
)

// Config represents the main configuration for mediacat.
type Config struct {
	SystemID string         `toml:"system_id"` // "auto" derives one from the hostname
	LogLevel string         `toml:"log_level"`
	Database DatabaseConfig `toml:"database"`
	Scan     ScanConfig     `toml:"scan"`
	Sync     SyncConfig     `toml:"sync"`
	Server   ServerConfig   `toml:"server"`
}

// DatabaseConfig represents configuration for the catalog database.
// This uses a tagged union pattern - the Type field determines which other fields are relevant.
type DatabaseConfig struct {
	Type string `toml:"type"`           // "sqlite" or "postgres"
	Path string `toml:"path,omitempty"` // only used for type=sqlite

	// Postgres-specific fields (only used when Type == "postgres")
	Host     string `toml:"host,omitempty"`
	Port     int    `toml:"port,omitempty"`
	Database string `toml:"database,omitempty"`
	Username string `toml:"username,omitempty"`
	Password string `toml:"password,omitempty"`
	SSLMode  string `toml:"ssl_mode,omitempty"`
}

// ScanConfig holds the file scanning settings. IntervalSeconds only applies
// to the serve command; zero disables the periodic scan loop.
type ScanConfig struct {
	IntervalSeconds           int      `toml:"interval_seconds"`
	HashTimeoutSeconds        int      `toml:"hash_timeout_seconds"`
	HashMaxBytes              int64    `toml:"hash_max_bytes"`
	BlockSize                 int      `toml:"block_size"`
	CheckpointIntervalSeconds int      `toml:"checkpoint_interval_seconds"`
	BatchSize                 int      `toml:"batch_size"`
	SkipDirs                  []string `toml:"skip_dirs"`
	Extensions                []string `toml:"extensions"`
}

// SyncConfig holds the cross-system sync settings.
type SyncConfig struct {
	IntervalSeconds int `toml:"interval_seconds"`
}

// ServerConfig holds the HTTP server settings.
type ServerConfig struct {
	Addr        string `toml:"addr"`
	MetricsAddr string `toml:"metrics_addr"`
}

// NewConfig creates a Config populated with defaults. dataDir holds the
// SQLite database unless the config is switched to postgres.
func NewConfig(dataDir string) *Config {
	return &Config{
		SystemID: "auto",
		LogLevel: "INFO",
		Database: DatabaseConfig{
			Type: "sqlite",
			Path: filepath.Join(dataDir, "catalog.db"),
		},
		Scan: ScanConfig{
			IntervalSeconds:           3600,
			HashTimeoutSeconds:        10,
			HashMaxBytes:              10 * 1024 * 1024,
			BlockSize:                 65536,
			CheckpointIntervalSeconds: 30,
			BatchSize:                 500,
		},
		Sync: SyncConfig{
			IntervalSeconds: 300,
		},
		Server: ServerConfig{
			Addr:        ":8080",
			MetricsAddr: ":9090",
		},
	}
}

// Interval returns the periodic scan interval as a duration.
func (c *ScanConfig) Interval() time.Duration {
	return time.Duration(c.IntervalSeconds) * time.Second
}

// HashTimeout returns the scan hash timeout as a duration.
func (c *ScanConfig) HashTimeout() time.Duration {
	return time.Duration(c.HashTimeoutSeconds) * time.Second
}

// CheckpointInterval returns the checkpoint interval as a duration.
func (c *ScanConfig) CheckpointInterval() time.Duration {
	return time.Duration(c.CheckpointIntervalSeconds) * time.Second
}

// Interval returns the sync interval as a duration.
func (c *SyncConfig) Interval() time.Duration {
	return time.Duration(c.IntervalSeconds) * time.Second
}

// Validate checks the config for contradictions before anything opens a
// database with it.
func (c *Config) Validate() error {
	switch c.Database.Type {
	case "sqlite":
		if c.Database.Path == "" {
			return fmt.Errorf("database.path is required for sqlite")
		}
	case "postgres":
		if c.Database.Host == "" || c.Database.Database == "" {
			return fmt.Errorf("database.host and database.database are required for postgres")
		}
	default:
		return fmt.Errorf("unknown database type %q", c.Database.Type)
	}
	if c.SystemID == "" {
		return fmt.Errorf("system_id must be set (use \"auto\" to derive one)")
	}
	return nil
}

// ResolveSystemID returns the configured system ID, deriving one from the
// hostname when set to "auto". Hostname lookup failures fall back to a random
// UUID so two unrelated systems never silently share an identity.
func (c *Config) ResolveSystemID() string {
	if c.SystemID != "auto" {
		return c.SystemID
	}
	hostname, err := os.Hostname()
	if err != nil || hostname == "" {
		return "system-" + uuid.NewString()[:8]
	}
	return strings.ToLower(strings.SplitN(hostname, ".", 2)[0])
}

// Manager handles reading and writing configuration.
type Manager struct{}

// Read decodes a Config from the provided reader.
func (m *Manager) Read(r io.Reader) (*Config, error) {
	var cfg Config
	if _, err := toml.NewDecoder(r).Decode(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	return &cfg, nil
}

// Write encodes a Config to the provided writer.
func (m *Manager) Write(w io.Writer, cfg *Config) error {
	if err := toml.NewEncoder(w).Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	return nil
}

// ReadFromFile reads a Config from the specified file path.
func ReadFromFile(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer f.Close()

	m := &Manager{}
	cfg, err := m.Read(f)
	if err != nil {
		return nil, fmt.Errorf("reading config from %s: %w", path, err)
	}
	return cfg, nil
}

// writeToFile writes a Config to the specified file path.
func writeToFile(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	defer f.Close()

	m := &Manager{}
	if err := m.Write(f, cfg); err != nil {
		return fmt.Errorf("writing config to %s: %w", path, err)
	}
	return nil
}

// Init initializes a new config file at the specified path with the provided Config.
func Init(path string, cfg *Config) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists at %s", path)
	}

	if err := writeToFile(path, cfg); err != nil {
		return fmt.Errorf("initializing config: %w", err)
	}
	return nil
}
