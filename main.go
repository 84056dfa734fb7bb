package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"media-catalog/internal/catalog"
	"media-catalog/internal/config"
	"media-catalog/internal/deviceid"
	"media-catalog/internal/logging"
	"media-catalog/internal/metrics"
	"media-catalog/internal/registry"
	"media-catalog/internal/scanner"
	"media-catalog/internal/server"
	"media-catalog/internal/startup"
	"media-catalog/internal/syncer"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// app bundles the pieces every catalog command needs. The caller must defer
// app.Close().
type app struct {
	cfg      *config.Config
	store    catalog.Store
	systemID string
	registry *registry.Registry
	resolver *deviceid.Resolver
}

func newApp(ctx context.Context) (*app, error) {
	paths, err := startup.DefaultPaths()
	if err != nil {
		return nil, err
	}

	cfg, err := config.ReadFromFile(paths.ConfigPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("no config at %s (run \"mediacat config init\" first)", paths.ConfigPath)
		}
		return nil, err
	}
	logging.SetLevel(logging.ParseLevel(cfg.LogLevel))

	systemID := cfg.ResolveSystemID()
	store, err := startup.OpenStore(ctx, cfg)
	if err != nil {
		return nil, err
	}

	return &app{
		cfg:      cfg,
		store:    store,
		systemID: systemID,
		registry: registry.New(store, systemID),
		resolver: deviceid.NewResolver(),
	}, nil
}

func (a *app) Close() {
	if err := a.store.Close(); err != nil {
		logging.Error("Failed to close store: %v", err)
	}
}

func (a *app) scanOptions() scanner.Options {
	opts := scanner.DefaultOptions()
	sc := a.cfg.Scan
	if sc.HashTimeoutSeconds > 0 {
		opts.HashTimeout = sc.HashTimeout()
	}
	if sc.HashMaxBytes > 0 {
		opts.HashMaxBytes = sc.HashMaxBytes
	}
	if sc.BlockSize > 0 {
		opts.BlockSize = sc.BlockSize
	}
	if sc.CheckpointIntervalSeconds > 0 {
		opts.CheckpointInterval = sc.CheckpointInterval()
	}
	if sc.BatchSize > 0 {
		opts.BatchSize = sc.BatchSize
	}
	if len(sc.SkipDirs) > 0 {
		opts.SkipDirPrefixes = sc.SkipDirs
	}
	if len(sc.Extensions) > 0 {
		opts.Extensions = sc.Extensions
	}
	return opts
}

// scanLoop re-enumerates attached devices and scans them on the configured
// interval. Failures are logged and retried at the next tick.
func (a *app) scanLoop(ctx context.Context) {
	sc := scanner.New(a.store, a.systemID, a.scanOptions())

	run := func() {
		mounts, err := a.resolver.ListAll()
		if err != nil {
			logging.Error("Scheduled scan: device enumeration failed: %v", err)
			return
		}
		if _, err := a.registry.RegisterAll(ctx, mounts); err != nil {
			logging.Error("Scheduled scan: device registration failed: %v", err)
			return
		}
		if _, err := sc.ScanAll(ctx, mounts); err != nil && !errors.Is(err, context.Canceled) {
			logging.Error("Scheduled scan failed: %v", err)
		}
	}

	run()
	ticker := time.NewTicker(a.cfg.Scan.Interval())
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			run()
		}
	}
}

// signalContext returns a context canceled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}

var rootCmd = &cobra.Command{
	Use:   "mediacat",
	Short: "Media catalog across removable drives and systems",
}

// config command
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		paths, err := startup.DefaultPaths()
		if err != nil {
			return err
		}

		cfg := config.NewConfig(paths.DataDir)
		if err := config.Init(paths.ConfigPath, cfg); err != nil {
			return fmt.Errorf("failed to initialize config: %w", err)
		}

		fmt.Printf("Configuration initialized at %s\n", paths.ConfigPath)
		fmt.Printf("System ID: %s (derived from hostname)\n", cfg.ResolveSystemID())
		fmt.Printf("Database:  %s\n", cfg.Database.Path)
		return nil
	},
}

var configListCmd = &cobra.Command{
	Use:   "list",
	Short: "View configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		paths, err := startup.DefaultPaths()
		if err != nil {
			return err
		}
		cfg, err := config.ReadFromFile(paths.ConfigPath)
		if err != nil {
			return err
		}

		fmt.Printf("Configuration from %s:\n\n", paths.ConfigPath)
		m := &config.Manager{}
		return m.Write(os.Stdout, cfg)
	},
}

// devices command
var devicesCmd = &cobra.Command{
	Use:   "devices",
	Short: "Detect attached devices and record their mount bindings",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := signalContext()
		defer cancel()

		a, err := newApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		mounts, err := a.resolver.ListAll()
		if err != nil {
			return fmt.Errorf("enumerating devices: %w", err)
		}
		if _, err := a.registry.RegisterAll(ctx, mounts); err != nil {
			return err
		}

		bindings, err := a.store.ListBindings(ctx, a.systemID)
		if err != nil {
			return err
		}
		if len(bindings) == 0 {
			fmt.Println("No devices recorded.")
			return nil
		}
		for _, b := range bindings {
			state := "active"
			if !b.IsActive {
				state = "inactive"
			}
			fmt.Printf("%-40s  %-8s  %s\n", b.DeviceID, state, b.MountPath)
		}
		return nil
	},
}

// scan command
var scanCmd = &cobra.Command{
	Use:   "scan [MOUNT_PATH...]",
	Short: "Scan mounted devices into the catalog",
	RunE: func(cmd *cobra.Command, args []string) error {
		all, _ := cmd.Flags().GetBool("all")
		if !all && len(args) == 0 {
			return fmt.Errorf("pass mount paths to scan, or --all for every attached device")
		}

		ctx, cancel := signalContext()
		defer cancel()

		a, err := newApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		mounts := make(map[string]string)
		if all {
			mounts, err = a.resolver.ListAll()
			if err != nil {
				return fmt.Errorf("enumerating devices: %w", err)
			}
		} else {
			for _, arg := range args {
				mountPath, err := filepath.Abs(arg)
				if err != nil {
					return fmt.Errorf("resolving path %s: %w", arg, err)
				}
				deviceID, err := a.resolver.Resolve(mountPath)
				if err != nil {
					return fmt.Errorf("resolving device for %s: %w", mountPath, err)
				}
				mounts[mountPath] = deviceID
			}
		}

		if _, err := a.registry.RegisterAll(ctx, mounts); err != nil {
			return err
		}

		sc := scanner.New(a.store, a.systemID, a.scanOptions())
		results, err := sc.ScanAll(ctx, mounts)
		for _, res := range results {
			fmt.Printf("%s: %d seen, %d hashed, %d unchanged, %d removed, %d timeouts, %d errors (%v)\n",
				res.DeviceID, res.FilesSeen, res.FilesHashed, res.FilesUnchanged,
				res.FilesRemoved, res.HashTimeouts, res.Errors, res.Duration.Round(time.Millisecond))
		}
		return err
	},
}

// sync command
var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Reconcile catalog records written by other systems",
	RunE: func(cmd *cobra.Command, args []string) error {
		loop, _ := cmd.Flags().GetBool("loop")

		ctx, cancel := signalContext()
		defer cancel()

		a, err := newApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		engine := syncer.New(a.store, a.registry, a.systemID, a.cfg.Sync.Interval())
		if loop {
			err := engine.Run(ctx)
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		}

		res, err := engine.Sweep(ctx)
		if err != nil {
			return err
		}
		fmt.Printf("files: %d claimed, %d deleted; bindings: %d claimed, %d deactivated (%v)\n",
			res.FilesClaimed, res.FilesDeleted, res.BindingsClaimed,
			res.BindingsDeactivated, res.Duration.Round(time.Millisecond))
		return nil
	},
}

// resolve command
var resolveCmd = &cobra.Command{
	Use:   "resolve DEVICE_ID RELATIVE_PATH",
	Short: "Resolve a catalog path to a local filesystem path",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := signalContext()
		defer cancel()

		a, err := newApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		full, err := a.registry.ResolveFilePath(ctx, args[0], args[1])
		if err != nil {
			return err
		}
		fmt.Println(full)
		return nil
	},
}

// serve command
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the status API, metrics endpoint, and background sync",
	RunE: func(cmd *cobra.Command, args []string) error {
		started := time.Now()
		ctx, cancel := signalContext()
		defer cancel()

		a, err := newApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		startup.LogStartup(a.cfg, a.systemID)
		metrics.InitializeMetrics()
		info := startup.GetBuildInfo()
		metrics.SetAppInfo(info.Version, info.Commit, info.GoVersion)

		// Record what is attached before anything asks.
		if mounts, err := a.resolver.ListAll(); err != nil {
			logging.Warn("Device enumeration failed: %v", err)
		} else if _, err := a.registry.RegisterAll(ctx, mounts); err != nil {
			logging.Warn("Device registration failed: %v", err)
		}

		collector := metrics.NewCollector(&storeStats{store: a.store}, time.Minute)
		collector.Start()
		defer collector.Stop()

		engine := syncer.New(a.store, a.registry, a.systemID, a.cfg.Sync.Interval())
		go func() {
			if err := engine.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logging.Error("Sync loop stopped: %v", err)
			}
		}()

		if a.cfg.Scan.IntervalSeconds > 0 {
			go a.scanLoop(ctx)
		}

		srv := server.New(a.store, a.registry, a.systemID, startup.Version,
			a.cfg.Server.Addr, a.cfg.Server.MetricsAddr)
		err = srv.Run(ctx)
		startup.LogShutdown("signal", started)
		return err
	},
}

// version command
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		info := startup.GetBuildInfo()
		fmt.Printf("mediacat %s (commit %s, built %s, %s %s/%s)\n",
			info.Version, info.Commit, info.BuildTime, info.GoVersion, info.OS, info.Arch)
	},
}

// storeStats adapts the catalog store to the metrics collector.
type storeStats struct {
	store catalog.Store
}

func (s *storeStats) GetStats() metrics.Stats {
	st, err := s.store.Stats(context.Background())
	if err != nil {
		logging.Warn("Failed to collect catalog stats: %v", err)
		return metrics.Stats{}
	}
	return metrics.Stats{
		Devices:        int(st.Devices),
		Bindings:       int(st.Bindings),
		ActiveBindings: int(st.ActiveBindings),
		Files:          int(st.Files),
	}
}

func init() {
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configListCmd)

	scanCmd.Flags().Bool("all", false, "Scan every attached device")
	syncCmd.Flags().Bool("loop", false, "Keep syncing on the configured interval")

	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(devicesCmd)
	rootCmd.AddCommand(scanCmd)
	rootCmd.AddCommand(syncCmd)
	rootCmd.AddCommand(resolveCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(versionCmd)
}
