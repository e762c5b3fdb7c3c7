// ============================================================================
// gridpath CLI - Command Line Interface
// ============================================================================
//
// Package: internal/cli
// File: cli.go
// Purpose: Provides user-friendly command line interface based on Cobra framework
//
// Command Structure:
//   gridpath                       # Root command
//   ├── run                        # Batch run: spawn or load requests, drain, export
//   │   ├── --scenario, -s        # TOML scenario file
//   │   └── --requests, -n        # Number of spawned requests
//   ├── solve                      # One synchronous solve with a coloured map
//   │   ├── --from x,y
//   │   └── --to x,y
//   ├── serve                      # Continuous mode with metrics and gRPC health
//   ├── status                     # Configuration summary and exported runs
//   ├── --config, -c              # Config file (default: configs/default.yaml)
//   └── --version
//
// Configuration Management:
//   Uses YAML format config file (default: configs/default.yaml)
//   Sections: grid, solver, scheduler, ledger, spawner, export, metrics, grpc
//   Durations are Go duration strings ("10ms", "30s").
//
// serve Command:
//   1. Build scheduler and first grid
//   2. Start Metrics HTTP server and gRPC health server (if enabled)
//   3. Loop: tick every scheduler.tick_interval, spawn spawner.requests every
//      spawner.interval, export every export.interval, optionally rebuild
//      the grid every grid.rebuild_interval
//   4. On SIGINT / SIGTERM: drain in-flight work, final export, shutdown
//
// ============================================================================

package cli

import (
	"errors"
	"fmt"
	"os"

	"github.com/ChuLiYu/gridpath/internal/checkpoint"
	"github.com/ChuLiYu/gridpath/internal/export"
	"github.com/spf13/cobra"
)

var configFile string

func BuildCLI() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "gridpath",
		Short: "gridpath: a parallel grid A* pathfinding engine",
		Long: `gridpath computes shortest paths on weighted grids with:
- a bounded worker pool solving batches concurrently
- non-blocking tick scheduling with at-most-once result delivery
- bounded per-path memory with truncation reporting
- JSON / text / msgpack / SQLite export and Prometheus metrics`,
		Version: "1.0.0",
	}

	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "configs/default.yaml", "config file path")

	rootCmd.AddCommand(buildRunCommand())
	rootCmd.AddCommand(buildSolveCommand())
	rootCmd.AddCommand(buildServeCommand())
	rootCmd.AddCommand(buildStatusCommand())

	return rootCmd
}

func buildStatusCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show configuration and exported runs",
		Long:  "Display the effective configuration and, when SQLite export is enabled, the exported runs",
		RunE: func(cmd *cobra.Command, args []string) error {
			return showStatus()
		},
	}
	return cmd
}

func showStatus() error {
	cfg, err := loadConfig(configFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	fmt.Println("\n╔═══════════════════════════════════════════════════════════╗")
	fmt.Println("║                gridpath Engine Status                     ║")
	fmt.Println("╚═══════════════════════════════════════════════════════════╝")
	fmt.Println()

	fmt.Println("📋 Configuration:")
	fmt.Printf("  ├─ Config File:     %s\n", configFile)
	if cfg.Grid.Scenario != "" {
		fmt.Printf("  ├─ Scenario:        %s\n", cfg.Grid.Scenario)
	} else {
		fmt.Printf("  ├─ Grid:            %dx%d, %.0f%% obstacles, seed %d\n",
			cfg.Grid.Width, cfg.Grid.Height, cfg.Grid.ObstacleRatio*100, cfg.Grid.Seed)
	}
	fmt.Printf("  ├─ Workers:         %d (0 = all CPUs)\n", cfg.Scheduler.Workers)
	fmt.Printf("  ├─ Path Capacity:   %d\n", cfg.Solver.PathCapacity)
	fmt.Printf("  ├─ Tick Interval:   %s\n", cfg.Scheduler.TickInterval)
	fmt.Printf("  └─ Retention:       %d results\n", cfg.Ledger.Retention)
	fmt.Println()

	fmt.Println("💾 Export:")
	fmt.Printf("  ├─ Directory:       %s\n", cfg.Export.Dir)
	fmt.Printf("  ├─ Format:          %s\n", cfg.Export.Format)
	fmt.Printf("  ├─ Max Paths:       %d\n", cfg.Export.MaxPaths)
	fmt.Printf("  └─ Writers:         %v\n", cfg.Export.Writers)
	fmt.Println()

	if hasWriter(cfg, "sqlite") {
		if _, err := os.Stat(cfg.Export.SQLitePath); err == nil {
			if err := printRuns(cfg.Export.SQLitePath); err != nil {
				return err
			}
		}
	}

	if cfg.Ledger.Checkpoint != "-" {
		if err := printCheckpoint(cfg.Ledger.Checkpoint); err != nil {
			return err
		}
	}

	fmt.Println("📡 Endpoints:")
	if cfg.Metrics.Enabled {
		fmt.Printf("  ├─ Metrics: ✅ http://localhost:%d/metrics\n", cfg.Metrics.Port)
	} else {
		fmt.Println("  ├─ Metrics: ⚠️  Disabled")
	}
	if cfg.GRPC.Enabled {
		fmt.Printf("  └─ gRPC health: ✅ localhost:%d\n", cfg.GRPC.Port)
	} else {
		fmt.Println("  └─ gRPC health: ⚠️  Disabled")
	}
	fmt.Println()

	fmt.Println("═══════════════════════════════════════════════════════════")
	return nil
}

func printRuns(path string) error {
	w, err := export.OpenSQLite(path)
	if err != nil {
		return err
	}
	defer w.Close()

	runs, err := w.Runs()
	if err != nil {
		return err
	}
	fmt.Printf("📊 Exported Runs (%s):\n", path)
	if len(runs) == 0 {
		fmt.Println("  └─ none yet")
	}
	for i, r := range runs {
		branch := "├─"
		if i == len(runs)-1 {
			branch = "└─"
		}
		fmt.Printf("  %s %s  %-11s %4d paths  %5.1f%% success\n",
			branch, r.RunID[:8], r.Format, r.Total, r.SuccessRate*100)
	}
	fmt.Println()
	return nil
}

func printCheckpoint(path string) error {
	m := checkpoint.NewManager(path)
	if !m.Exists() {
		return nil
	}
	data, err := m.Load()
	if err != nil {
		return fmt.Errorf("failed to load checkpoint: %w", err)
	}
	s := checkpoint.Summarize(data)
	fmt.Printf("🗂  Ledger Checkpoint (%s):\n", path)
	fmt.Printf("  ├─ Pending:     %d\n", s.Pending)
	fmt.Printf("  ├─ Processing:  %d\n", s.Processing)
	fmt.Printf("  ├─ Complete:    %d\n", s.Complete)
	fmt.Printf("  ├─ Undelivered: %d\n", s.Undelivered)
	fmt.Printf("  └─ Next ID:     %d\n", s.NextID)
	fmt.Println()
	return nil
}

func hasWriter(cfg *Config, name string) bool {
	for _, w := range cfg.Export.Writers {
		if w == name {
			return true
		}
	}
	return false
}

func ensureDir(dir string) error {
	if dir == "" || dir == "." {
		return nil
	}
	if err := os.MkdirAll(dir, 0755); err != nil && !errors.Is(err, os.ErrExist) {
		return fmt.Errorf("failed to create %s: %w", dir, err)
	}
	return nil
}
