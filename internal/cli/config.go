package cli

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the complete engine configuration
// Maps config file fields through YAML tags
type Config struct {
	Grid struct {
		Width           int           `yaml:"width"`
		Height          int           `yaml:"height"`
		ObstacleRatio   float64       `yaml:"obstacle_ratio"`
		Seed            int64         `yaml:"seed"`
		Scenario        string        `yaml:"scenario"`         // optional TOML scenario, overrides the fields above
		RebuildInterval time.Duration `yaml:"rebuild_interval"` // serve only, 0 disables
	} `yaml:"grid"`

	Solver struct {
		PathCapacity int `yaml:"path_capacity"`
	} `yaml:"solver"`

	Scheduler struct {
		Workers      int           `yaml:"workers"`
		QueueSize    int           `yaml:"queue_size"`
		MaxBatch     int           `yaml:"max_batch"`
		TickInterval time.Duration `yaml:"tick_interval"`
	} `yaml:"scheduler"`

	Ledger struct {
		Retention  int    `yaml:"retention"`
		Checkpoint string `yaml:"checkpoint"` // ledger state written on shutdown, "-" disables
	} `yaml:"ledger"`

	Spawner struct {
		Requests int           `yaml:"requests"`
		Interval time.Duration `yaml:"interval"`
		Seed     int64         `yaml:"seed"`
	} `yaml:"spawner"`

	Export struct {
		Dir        string        `yaml:"dir"`
		Format     string        `yaml:"format"`
		MaxPaths   int           `yaml:"max_paths"`
		Interval   time.Duration `yaml:"interval"`
		Writers    []string      `yaml:"writers"` // json, text, msgpack, sqlite
		SQLitePath string        `yaml:"sqlite_path"`
	} `yaml:"export"`

	Metrics struct {
		Enabled bool `yaml:"enabled"`
		Port    int  `yaml:"port"`
	} `yaml:"metrics"`

	GRPC struct {
		Enabled bool `yaml:"enabled"`
		Port    int  `yaml:"port"`
	} `yaml:"grpc"`
}

func loadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config YAML: %w", err)
	}
	cfg.applyDefaults()

	return &cfg, nil
}

// applyDefaults fills zero values; an explicit 0 worker count keeps meaning NumCPU
func (c *Config) applyDefaults() {
	if c.Grid.Width == 0 {
		c.Grid.Width = 20
	}
	if c.Grid.Height == 0 {
		c.Grid.Height = 20
	}
	if c.Scheduler.TickInterval <= 0 {
		c.Scheduler.TickInterval = 10 * time.Millisecond
	}
	if c.Scheduler.QueueSize <= 0 {
		c.Scheduler.QueueSize = 256
	}
	if c.Spawner.Requests <= 0 {
		c.Spawner.Requests = 10
	}
	if c.Spawner.Interval <= 0 {
		c.Spawner.Interval = time.Second
	}
	if c.Export.Dir == "" {
		c.Export.Dir = "PathfindingData"
	}
	if c.Export.Interval <= 0 {
		c.Export.Interval = 30 * time.Second
	}
	if c.Export.SQLitePath == "" {
		c.Export.SQLitePath = c.Export.Dir + "/paths.db"
	}
	if c.Ledger.Checkpoint == "" {
		c.Ledger.Checkpoint = c.Export.Dir + "/ledger.json"
	}
	if c.Metrics.Port == 0 {
		c.Metrics.Port = 9090
	}
	if c.GRPC.Port == 0 {
		c.GRPC.Port = 50051
	}
}
