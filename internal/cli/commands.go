package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/ChuLiYu/gridpath/internal/grid"
	"github.com/ChuLiYu/gridpath/internal/metrics"
	"github.com/ChuLiYu/gridpath/internal/scenario"
	"github.com/ChuLiYu/gridpath/internal/scheduler"
	"github.com/ChuLiYu/gridpath/internal/server"
	"github.com/ChuLiYu/gridpath/pkg/types"
	"github.com/gookit/color"
	"github.com/spf13/cobra"
)

var ErrBadPoint = errors.New("point must be x,y")

// ============================================================================
// run
// ============================================================================

func buildRunCommand() *cobra.Command {
	var scenarioPath string
	var requests int

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Start a batch run and export the results",
		Long:  "Submit spawned or scenario requests, tick until everything is solved, then export",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBatch(scenarioPath, requests)
		},
	}

	cmd.Flags().StringVarP(&scenarioPath, "scenario", "s", "", "TOML scenario file")
	cmd.Flags().IntVarP(&requests, "requests", "n", 0, "spawned request count (default spawner.requests)")

	return cmd
}

// tally summarizes collected results for the run report
type tally struct {
	total, success, truncated, unreachable int
	cost                                   int
}

func (t *tally) add(results ...types.PathResult) {
	for _, r := range results {
		t.total++
		switch metrics.Outcome(r) {
		case metrics.OutcomeSuccess:
			t.success++
			t.cost += r.Cost
		case metrics.OutcomeTruncated:
			t.truncated++
		default:
			t.unreachable++
		}
	}
}

func runBatch(scenarioPath string, requests int) error {
	cfg, err := loadConfig(configFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if requests <= 0 {
		requests = cfg.Spawner.Requests
	}

	eng, err := newEngine(cfg, scenarioPath, nil)
	if err != nil {
		return err
	}
	defer eng.close()

	pairs, err := eng.pairs(requests, cfg.Spawner.Seed)
	if err != nil {
		return err
	}
	for _, p := range pairs {
		if _, err := eng.sched.Submit(p.Start, p.Target); err != nil {
			return fmt.Errorf("failed to submit request: %w", err)
		}
	}

	g := eng.sched.Grid()
	log.Printf("Solving %d requests on %dx%d grid (version %d)\n", len(pairs), g.Width(), g.Height(), g.Version())

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var sum tally
	batches := 0
	started := time.Now()
	ticker := time.NewTicker(cfg.Scheduler.TickInterval)
	defer ticker.Stop()

	for !eng.sched.Idle() {
		ev := eng.sched.Tick()
		if ev.Err != nil {
			return ev.Err
		}
		if ev.Kind == scheduler.EventCollected {
			batches++
			sum.add(ev.Results...)
		}
		if ev.Kind != scheduler.EventWaiting && ev.Kind != scheduler.EventDispatched {
			continue
		}
		select {
		case <-ctx.Done():
			log.Println("Interrupted, exporting what was collected")
			return exportAndReport(eng, sum, batches, time.Since(started))
		case <-ticker.C:
		}
	}
	return exportAndReport(eng, sum, batches, time.Since(started))
}

func exportAndReport(eng *engine, sum tally, batches int, elapsed time.Duration) error {
	locs, err := eng.flush()
	if err != nil {
		return fmt.Errorf("export failed: %w", err)
	}
	if err := eng.saveCheckpoint(); err != nil {
		log.Printf("Checkpoint failed: %v\n", err)
	}

	fmt.Println()
	fmt.Printf("Batches:      %d in %s\n", batches, elapsed.Round(time.Microsecond))
	fmt.Printf("Requests:     %d\n", sum.total)
	fmt.Printf("  success:     %s\n", color.Green.Sprint(sum.success))
	fmt.Printf("  truncated:   %s\n", color.Yellow.Sprint(sum.truncated))
	fmt.Printf("  unreachable: %s\n", color.Red.Sprint(sum.unreachable))
	if sum.total > 0 {
		fmt.Printf("Success rate: %.1f%%\n", float64(sum.success)/float64(sum.total)*100)
	}
	if sum.success > 0 {
		fmt.Printf("Avg cost:     %.1f\n", float64(sum.cost)/float64(sum.success))
	}
	for _, l := range locs {
		fmt.Printf("Exported:     %s\n", l)
	}
	return nil
}

// ============================================================================
// solve
// ============================================================================

func buildSolveCommand() *cobra.Command {
	var from, to, scenarioPath string
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "solve",
		Short: "Solve one request synchronously and draw the path",
		RunE: func(cmd *cobra.Command, args []string) error {
			start, err := parsePoint(from)
			if err != nil {
				return fmt.Errorf("--from: %w", err)
			}
			target, err := parsePoint(to)
			if err != nil {
				return fmt.Errorf("--to: %w", err)
			}
			return solveOnce(scenarioPath, start, target, asJSON)
		},
	}

	cmd.Flags().StringVar(&from, "from", "0,0", "start point x,y")
	cmd.Flags().StringVar(&to, "to", "", "target point x,y")
	cmd.Flags().StringVarP(&scenarioPath, "scenario", "s", "", "TOML scenario file for the grid")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the result as JSON instead of a map")
	cmd.MarkFlagRequired("to")

	return cmd
}

func solveOnce(scenarioPath string, start, target types.Point, asJSON bool) error {
	cfg, err := loadConfig(configFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	cfg.Scheduler.Workers = 1
	cfg.Export.Writers = nil
	cfg.Ledger.Checkpoint = "-"

	eng, err := newEngine(cfg, scenarioPath, nil)
	if err != nil {
		return err
	}
	defer eng.close()

	r, err := eng.sched.SolveNow(start, target)
	if err != nil {
		return err
	}

	if asJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(r)
	}

	for _, row := range colourMap(eng.sched.Grid(), r) {
		fmt.Println(row)
	}
	fmt.Println()

	switch {
	case r.Success:
		fmt.Println(color.Green.Sprintf("Path found: %d cells, cost %d", len(r.Positions), r.Cost))
	case r.Truncated:
		fmt.Println(color.Yellow.Sprintf("Path truncated: stored %d cells, cost %d", len(r.Positions), r.Cost))
	default:
		fmt.Println(color.Red.Sprint("No path"))
	}
	if r.Elapsed != nil {
		fmt.Printf("Elapsed: %s\n", *r.Elapsed)
	}
	return nil
}

// colourMap renders the grid like grid.RenderMap with ANSI colours
func colourMap(s *grid.Snapshot, r types.PathResult) []string {
	onPath := make(map[types.Point]struct{}, len(r.Positions))
	for _, p := range r.Positions {
		onPath[p] = struct{}{}
	}

	rows := make([]string, 0, s.Height())
	var b strings.Builder
	for y := s.Height() - 1; y >= 0; y-- {
		b.Reset()
		for x := 0; x < s.Width(); x++ {
			sym := grid.Symbol(s, types.Point{X: x, Y: y}, r.Start, r.Target, onPath)
			switch sym {
			case grid.SymbolStart:
				b.WriteString(color.Green.Sprint(string(sym)))
			case grid.SymbolEnd:
				b.WriteString(color.Red.Sprint(string(sym)))
			case grid.SymbolPath:
				b.WriteString(color.Yellow.Sprint(string(sym)))
			case grid.SymbolBlocked:
				b.WriteString(color.Gray.Sprint(string(sym)))
			default:
				b.WriteRune(sym)
			}
		}
		rows = append(rows, b.String())
	}
	return rows
}

func parsePoint(s string) (types.Point, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 2 {
		return types.Point{}, fmt.Errorf("%w: %q", ErrBadPoint, s)
	}
	x, err := strconv.Atoi(strings.TrimSpace(parts[0]))
	if err != nil {
		return types.Point{}, fmt.Errorf("%w: %q", ErrBadPoint, s)
	}
	y, err := strconv.Atoi(strings.TrimSpace(parts[1]))
	if err != nil {
		return types.Point{}, fmt.Errorf("%w: %q", ErrBadPoint, s)
	}
	return types.Point{X: x, Y: y}, nil
}

// ============================================================================
// serve
// ============================================================================

func buildServeCommand() *cobra.Command {
	var scenarioPath string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the engine in continuous mode",
		Long:  "Spawn requests periodically, tick the scheduler, export on an interval, expose metrics and gRPC health",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(configFile)
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return serve(ctx, cfg, scenarioPath)
		},
	}

	cmd.Flags().StringVarP(&scenarioPath, "scenario", "s", "", "TOML scenario file for the grid")
	return cmd
}

func serve(ctx context.Context, cfg *Config, scenarioPath string) error {
	var m *metrics.Collector
	if cfg.Metrics.Enabled {
		m = metrics.NewCollector()
		go func() {
			log.Printf("Starting metrics server on :%d\n", cfg.Metrics.Port)
			if err := metrics.StartServer(cfg.Metrics.Port); err != nil {
				log.Printf("Metrics server error: %v\n", err)
			}
		}()
	}

	eng, err := newEngine(cfg, scenarioPath, m)
	if err != nil {
		return err
	}
	defer eng.close()

	var health *server.Server
	if cfg.GRPC.Enabled {
		health = server.NewServer(eng.sched)
		if err := health.ListenAndServe(cfg.GRPC.Port); err != nil {
			return err
		}
		defer health.Stop()
	}

	spawner := scenario.NewSpawner(eng.sched.Grid(), cfg.Spawner.Seed)
	spawnedFor := eng.sched.GridVersion()

	tick := time.NewTicker(cfg.Scheduler.TickInterval)
	defer tick.Stop()
	spawn := time.NewTicker(cfg.Spawner.Interval)
	defer spawn.Stop()
	exportT := time.NewTicker(cfg.Export.Interval)
	defer exportT.Stop()

	var rebuild <-chan time.Time
	if cfg.Grid.RebuildInterval > 0 {
		t := time.NewTicker(cfg.Grid.RebuildInterval)
		defer t.Stop()
		rebuild = t.C
	}
	rebuilds := int64(0)

	log.Println("Engine started successfully")

	for {
		select {
		case <-ctx.Done():
			log.Println("\nReceived shutdown signal, stopping gracefully...")
			drainCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			if err := eng.sched.Drain(drainCtx, cfg.Scheduler.TickInterval); err != nil {
				log.Printf("Drain incomplete: %v\n", err)
			}
			cancel()
			if _, err := eng.flush(); err != nil {
				log.Printf("Final export failed: %v\n", err)
			}
			if err := eng.saveCheckpoint(); err != nil {
				log.Printf("Checkpoint failed: %v\n", err)
			}
			log.Println("Engine stopped. Goodbye!")
			return nil

		case <-tick.C:
			eng.sched.Tick()
			if health != nil {
				health.Refresh()
			}

		case <-spawn.C:
			if v := eng.sched.GridVersion(); v != spawnedFor {
				spawner = scenario.NewSpawner(eng.sched.Grid(), cfg.Spawner.Seed+int64(v))
				spawnedFor = v
			}
			for _, p := range spawner.Pairs(cfg.Spawner.Requests) {
				if _, err := eng.sched.Submit(p.Start, p.Target); err != nil {
					log.Printf("Submit failed: %v\n", err)
					break
				}
			}

		case <-exportT.C:
			if _, err := eng.flush(); err != nil {
				log.Printf("Export failed: %v\n", err)
			}

		case <-rebuild:
			rebuilds++
			p := eng.params
			p.Seed += rebuilds
			if _, err := eng.sched.RebuildGrid(p); err != nil {
				log.Printf("Grid rebuild failed: %v\n", err)
			}
		}
	}
}
