package startup

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"media-catalog/internal/catalog"
	"media-catalog/internal/config"
	"media-catalog/internal/logging"
)

// Build-time variables (injected via -ldflags)
var (
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
	GoVersion = runtime.Version()
)

// BuildInfo contains version and build information
type BuildInfo struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildTime string `json:"buildTime"`
	GoVersion string `json:"goVersion"`
	OS        string `json:"os"`
	Arch      string `json:"arch"`
}

// GetBuildInfo returns the current build information
func GetBuildInfo() BuildInfo {
	return BuildInfo{
		Version:   Version,
		Commit:    Commit,
		BuildTime: BuildTime,
		GoVersion: GoVersion,
		OS:        runtime.GOOS,
		Arch:      runtime.GOARCH,
	}
}

// Paths holds the default file locations for the current user.
type Paths struct {
	ConfigPath string
	DataDir    string
}

// DefaultPaths resolves the config and data locations, honoring
// MEDIACAT_CONFIG and MEDIACAT_DATA_DIR overrides.
func DefaultPaths() (Paths, error) {
	if custom := os.Getenv("MEDIACAT_CONFIG"); custom != "" {
		dataDir := os.Getenv("MEDIACAT_DATA_DIR")
		if dataDir == "" {
			dataDir = filepath.Dir(custom)
		}
		return Paths{ConfigPath: custom, DataDir: dataDir}, nil
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return Paths{}, fmt.Errorf("failed to resolve home directory: %w", err)
	}

	dataDir := os.Getenv("MEDIACAT_DATA_DIR")
	if dataDir == "" {
		dataDir = filepath.Join(home, ".local", "share", "mediacat")
	}
	return Paths{
		ConfigPath: filepath.Join(home, ".config", "mediacat", "config.toml"),
		DataDir:    dataDir,
	}, nil
}

// OpenStore opens the catalog store the config selects. The caller must close
// the returned store.
func OpenStore(ctx context.Context, cfg *config.Config) (catalog.Store, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	switch cfg.Database.Type {
	case "sqlite":
		if err := os.MkdirAll(filepath.Dir(cfg.Database.Path), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
		return catalog.NewSQLiteStore(ctx, cfg.Database.Path)
	case "postgres":
		return catalog.NewPostgresStore(ctx, catalog.PostgresConfig{
			Host:     cfg.Database.Host,
			Port:     cfg.Database.Port,
			Database: cfg.Database.Database,
			Username: cfg.Database.Username,
			Password: cfg.Database.Password,
			SSLMode:  cfg.Database.SSLMode,
		})
	default:
		return nil, fmt.Errorf("unknown database type %q", cfg.Database.Type)
	}
}

// LogStartup logs version, system, and configuration information the way
// every long-running command starts.
func LogStartup(cfg *config.Config, systemID string) {
	logging.Info("media-catalog %s (%s, built %s)", Version, Commit, BuildTime)
	logging.Info("  Go version: %s, OS/Arch: %s/%s, CPUs: %d",
		runtime.Version(), runtime.GOOS, runtime.GOARCH, runtime.NumCPU())
	logging.Info("  System ID:  %s", systemID)
	logging.Info("  Database:   %s", describeDatabase(cfg))
	logging.Info("  Log level:  %s", logging.GetLevel())
}

func describeDatabase(cfg *config.Config) string {
	if cfg.Database.Type == "postgres" {
		return fmt.Sprintf("postgres %s:%d/%s", cfg.Database.Host, cfg.Database.Port, cfg.Database.Database)
	}
	return "sqlite " + cfg.Database.Path
}

// LogShutdown logs a shutdown trigger and how long the process ran.
func LogShutdown(reason string, started time.Time) {
	logging.Info("Shutting down (%s) after %v", reason, time.Since(started).Round(time.Second))
}
