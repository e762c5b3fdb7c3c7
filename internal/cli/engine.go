package cli

import (
	"errors"
	"fmt"
	"io"
	"log"
	"path/filepath"

	"github.com/ChuLiYu/gridpath/internal/checkpoint"
	"github.com/ChuLiYu/gridpath/internal/export"
	"github.com/ChuLiYu/gridpath/internal/grid"
	"github.com/ChuLiYu/gridpath/internal/metrics"
	"github.com/ChuLiYu/gridpath/internal/scenario"
	"github.com/ChuLiYu/gridpath/internal/scheduler"
)

var ErrUnknownWriter = errors.New("unknown export writer")

// engine bundles the scheduler with its export collaborator
type engine struct {
	sched     *scheduler.Scheduler
	collector *export.Collector
	scenario  *scenario.File
	params    grid.Params         // parameters of the first grid, reused by serve rebuilds
	ckpt      *checkpoint.Manager // nil when disabled
	closers   []io.Closer
}

// newEngine builds the scheduler, publishes the first grid and wires the
// collector as retention handler. scenarioPath overrides cfg.Grid.Scenario.
func newEngine(cfg *Config, scenarioPath string, m *metrics.Collector) (*engine, error) {
	if scenarioPath == "" {
		scenarioPath = cfg.Grid.Scenario
	}

	format, err := export.ParseFormat(cfg.Export.Format)
	if err != nil {
		return nil, err
	}

	e := &engine{}
	if cfg.Ledger.Checkpoint != "-" {
		e.ckpt = checkpoint.NewManager(cfg.Ledger.Checkpoint)
	}
	writers, err := e.buildWriters(cfg)
	if err != nil {
		e.close()
		return nil, err
	}
	e.collector = export.NewCollector(export.Config{MaxPaths: cfg.Export.MaxPaths, Format: format}, writers...)

	e.sched, err = scheduler.New(scheduler.Config{
		Workers:      cfg.Scheduler.Workers,
		PathCapacity: cfg.Solver.PathCapacity,
		Retention:    cfg.Ledger.Retention,
		QueueSize:    cfg.Scheduler.QueueSize,
		MaxBatch:     cfg.Scheduler.MaxBatch,
	},
		scheduler.WithMetrics(m),
		scheduler.WithRetentionHandler(e.harvest),
	)
	if err != nil {
		e.close()
		return nil, fmt.Errorf("failed to create scheduler: %w", err)
	}

	params := gridParams(cfg)
	if scenarioPath != "" {
		if e.scenario, err = scenario.Load(scenarioPath); err != nil {
			e.close()
			return nil, fmt.Errorf("failed to load scenario: %w", err)
		}
		if params, err = e.scenario.GridParams(); err != nil {
			e.close()
			return nil, fmt.Errorf("invalid scenario grid: %w", err)
		}
	}
	if _, err := e.sched.RebuildGrid(params); err != nil {
		e.close()
		return nil, err
	}
	e.params = params
	return e, nil
}

func gridParams(cfg *Config) grid.Params {
	return grid.Params{
		Width:         cfg.Grid.Width,
		Height:        cfg.Grid.Height,
		ObstacleRatio: cfg.Grid.ObstacleRatio,
		Seed:          cfg.Grid.Seed,
	}
}

func (e *engine) buildWriters(cfg *Config) ([]export.Writer, error) {
	var writers []export.Writer
	for _, name := range cfg.Export.Writers {
		switch name {
		case "json":
			writers = append(writers, export.JSONWriter{Dir: cfg.Export.Dir})
		case "text":
			writers = append(writers, export.TextWriter{Dir: cfg.Export.Dir})
		case "msgpack":
			writers = append(writers, export.MsgpackWriter{Dir: cfg.Export.Dir})
		case "sqlite":
			if err := ensureDir(filepath.Dir(cfg.Export.SQLitePath)); err != nil {
				return nil, err
			}
			w, err := export.OpenSQLite(cfg.Export.SQLitePath)
			if err != nil {
				return nil, err
			}
			e.closers = append(e.closers, w)
			writers = append(writers, w)
		default:
			return nil, fmt.Errorf("%w: %q", ErrUnknownWriter, name)
		}
	}
	return writers, nil
}

// harvest is the scheduler retention handler
func (e *engine) harvest(s *scheduler.Scheduler) {
	if err := e.collector.Harvest(s); err != nil {
		log.Printf("Export failed: %v\n", err)
	}
}

// pairs returns scenario requests, or n spawned ones when no scenario is loaded
func (e *engine) pairs(n int, seed int64) ([]scenario.Pair, error) {
	if e.scenario != nil {
		return e.scenario.Pairs(e.sched.Grid())
	}
	return scenario.NewSpawner(e.sched.Grid(), seed).Pairs(n), nil
}

// flush moves remaining completions into the collector and exports them
func (e *engine) flush() ([]string, error) {
	if err := e.collector.Harvest(e.sched); err != nil {
		return nil, err
	}
	locs, err := e.collector.Export()
	if errors.Is(err, export.ErrEmptyDataset) {
		return nil, nil
	}
	return locs, err
}

// saveCheckpoint writes the ledger state for the status command
func (e *engine) saveCheckpoint() error {
	if e.ckpt == nil {
		return nil
	}
	return e.ckpt.Write(e.sched.LedgerSnapshot())
}

func (e *engine) close() {
	if e.sched != nil {
		e.sched.Stop()
	}
	for _, c := range e.closers {
		c.Close()
	}
}
