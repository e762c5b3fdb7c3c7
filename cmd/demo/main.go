package main

import (
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ChuLiYu/gridpath/internal/grid"
	"github.com/ChuLiYu/gridpath/internal/scenario"
	"github.com/ChuLiYu/gridpath/internal/scheduler"
	"github.com/ChuLiYu/gridpath/pkg/types"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Grid struct {
		Width         int     `yaml:"width"`
		Height        int     `yaml:"height"`
		ObstacleRatio float64 `yaml:"obstacle_ratio"`
		Seed          int64   `yaml:"seed"`
	} `yaml:"grid"`
	Solver struct {
		PathCapacity int `yaml:"path_capacity"`
	} `yaml:"solver"`
	Scheduler struct {
		Workers int `yaml:"workers"`
	} `yaml:"scheduler"`
}

func main() {
	if len(os.Args) < 2 {
		fmt.Println("Usage: go run cmd/demo/main.go <sync|batch|compare> [requests]")
		os.Exit(1)
	}

	mode := os.Args[1]
	n := 200
	if len(os.Args) > 2 {
		if _, err := fmt.Sscanf(os.Args[2], "%d", &n); err != nil || n <= 0 {
			log.Fatalf("Invalid request count %q", os.Args[2])
		}
	}

	cfg, err := loadConfig("configs/default.yaml")
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	sched, err := scheduler.New(scheduler.Config{
		Workers:      cfg.Scheduler.Workers,
		PathCapacity: cfg.Solver.PathCapacity,
		Retention:    n,
	})
	if err != nil {
		log.Fatalf("Failed to create scheduler: %v", err)
	}
	defer sched.Stop()

	if _, err := sched.RebuildGrid(grid.Params{
		Width:         cfg.Grid.Width,
		Height:        cfg.Grid.Height,
		ObstacleRatio: cfg.Grid.ObstacleRatio,
		Seed:          cfg.Grid.Seed,
	}); err != nil {
		log.Fatalf("Failed to build grid: %v", err)
	}

	g := sched.Grid()
	pairs := scenario.NewSpawner(g, cfg.Grid.Seed).Pairs(n)
	fmt.Printf("✓ Grid %dx%d ready (version %d, %d walkable cells, %d workers)\n",
		g.Width(), g.Height(), g.Version(), g.WalkableCount(), sched.Config().Workers)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	switch mode {
	case "sync":
		report("Sync", runSync(sched, pairs))
	case "batch":
		report("Batch", runBatch(sched, pairs, sigChan))
	case "compare":
		s := runSync(sched, pairs)
		b := runBatch(sched, pairs, sigChan)
		report("Sync", s)
		report("Batch", b)
		if b.elapsed > 0 {
			fmt.Printf("\n⚡ Speedup: %.2fx with %d workers\n",
				float64(s.elapsed)/float64(b.elapsed), sched.Config().Workers)
		}
		if s.cost != b.cost {
			fmt.Printf("\n⚠️  Total cost differs: sync=%d batch=%d\n", s.cost, b.cost)
		} else {
			fmt.Printf("💡 Same total cost (%d) in both modes\n", s.cost)
		}
	default:
		log.Fatalf("Unknown mode %q", mode)
	}
}

type summary struct {
	solved, success, truncated int
	cost                       int
	elapsed                    time.Duration
}

func (s *summary) add(r types.PathResult) {
	s.solved++
	if r.Success {
		s.success++
		s.cost += r.Cost
	}
	if r.Truncated {
		s.truncated++
	}
}

func runSync(sched *scheduler.Scheduler, pairs []scenario.Pair) summary {
	var s summary
	started := time.Now()
	for _, p := range pairs {
		r, err := sched.SolveNow(p.Start, p.Target)
		if err != nil {
			log.Fatalf("SolveNow failed: %v", err)
		}
		s.add(r)
	}
	s.elapsed = time.Since(started)
	sched.CollectNewCompletions()
	sched.PruneDelivered()
	return s
}

func runBatch(sched *scheduler.Scheduler, pairs []scenario.Pair, sigChan <-chan os.Signal) summary {
	var s summary
	for _, p := range pairs {
		if _, err := sched.Submit(p.Start, p.Target); err != nil {
			log.Fatalf("Submit failed: %v", err)
		}
	}

	started := time.Now()
	for !sched.Idle() {
		select {
		case <-sigChan:
			fmt.Println("\n\nReceived shutdown signal, stopping...")
			s.elapsed = time.Since(started)
			return s
		default:
		}

		ev := sched.Tick()
		switch ev.Kind {
		case scheduler.EventCollected:
			for _, r := range ev.Results {
				s.add(r)
			}
			fmt.Printf("📊 Batch %d collected: %d results\n", ev.BatchID, len(ev.Results))
		case scheduler.EventWaiting:
			time.Sleep(100 * time.Microsecond)
		}
	}
	s.elapsed = time.Since(started)
	sched.CollectNewCompletions()
	sched.PruneDelivered()
	return s
}

func report(name string, s summary) {
	fmt.Printf("\n📊 %s:\n", name)
	fmt.Printf("  Solved:    %d\n", s.solved)
	fmt.Printf("  Success:   %d\n", s.success)
	fmt.Printf("  Truncated: %d\n", s.truncated)
	fmt.Printf("  Cost:      %d\n", s.cost)
	fmt.Printf("  Elapsed:   %s\n", s.elapsed)
}

func loadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}
