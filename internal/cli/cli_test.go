package cli

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ChuLiYu/gridpath/internal/checkpoint"
	"github.com/ChuLiYu/gridpath/internal/export"
	"github.com/ChuLiYu/gridpath/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildCLI(t *testing.T) {
	cmd := BuildCLI()

	assert.NotNil(t, cmd, "BuildCLI should return a non-nil command")
	assert.Equal(t, "gridpath", cmd.Use, "Root command should be 'gridpath'")
	assert.Equal(t, "1.0.0", cmd.Version, "Version should be 1.0.0")

	// 檢查子命令
	commands := cmd.Commands()
	assert.Len(t, commands, 4, "Should have 4 subcommands")

	commandNames := make(map[string]bool)
	for _, c := range commands {
		commandNames[c.Use] = true
	}

	assert.True(t, commandNames["run"], "Should have 'run' command")
	assert.True(t, commandNames["solve"], "Should have 'solve' command")
	assert.True(t, commandNames["serve"], "Should have 'serve' command")
	assert.True(t, commandNames["status"], "Should have 'status' command")

	// 檢查持久化標誌
	configFlag := cmd.PersistentFlags().Lookup("config")
	assert.NotNil(t, configFlag, "Should have --config flag")
	assert.Equal(t, "configs/default.yaml", configFlag.DefValue, "Default config path should be configs/default.yaml")
}

func TestBuildRunCommand(t *testing.T) {
	cmd := buildRunCommand()

	assert.Equal(t, "run", cmd.Use)
	assert.Contains(t, cmd.Short, "Start", "Short description should mention 'Start'")
	assert.NotNil(t, cmd.RunE, "RunE function should be set")

	scenarioFlag := cmd.Flags().Lookup("scenario")
	require.NotNil(t, scenarioFlag, "Should have --scenario flag")
	assert.Equal(t, "s", scenarioFlag.Shorthand)

	requestsFlag := cmd.Flags().Lookup("requests")
	require.NotNil(t, requestsFlag, "Should have --requests flag")
	assert.Equal(t, "n", requestsFlag.Shorthand)
}

func TestBuildSolveCommand(t *testing.T) {
	cmd := buildSolveCommand()

	assert.Equal(t, "solve", cmd.Use)
	assert.NotNil(t, cmd.Flags().Lookup("from"))
	assert.NotNil(t, cmd.Flags().Lookup("to"))
	assert.NotNil(t, cmd.Flags().Lookup("json"))
}

func TestBuildStatusCommand(t *testing.T) {
	cmd := buildStatusCommand()

	assert.Equal(t, "status", cmd.Use)
	assert.NotNil(t, cmd.RunE, "RunE function should be set")
}

func TestLoadConfig_ValidYAML(t *testing.T) {
	// 創建臨時配置文件
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "test_config.yaml")

	configContent := `
grid:
  width: 32
  height: 16
  obstacle_ratio: 0.25
  seed: 99
solver:
  path_capacity: 128
scheduler:
  workers: 4
  max_batch: 50
  tick_interval: 5ms
ledger:
  retention: 200
export:
  dir: /tmp/out
  format: maps
  max_paths: 20
  writers: [json, sqlite]
metrics:
  enabled: true
  port: 9191
`
	require.NoError(t, os.WriteFile(configPath, []byte(configContent), 0644))

	cfg, err := loadConfig(configPath)
	require.NoError(t, err, "loadConfig should not return an error for valid YAML")

	assert.Equal(t, 32, cfg.Grid.Width)
	assert.Equal(t, 16, cfg.Grid.Height)
	assert.InDelta(t, 0.25, cfg.Grid.ObstacleRatio, 1e-9)
	assert.Equal(t, int64(99), cfg.Grid.Seed)
	assert.Equal(t, 128, cfg.Solver.PathCapacity)
	assert.Equal(t, 4, cfg.Scheduler.Workers)
	assert.Equal(t, 50, cfg.Scheduler.MaxBatch)
	assert.Equal(t, 5*time.Millisecond, cfg.Scheduler.TickInterval)
	assert.Equal(t, 200, cfg.Ledger.Retention)
	assert.Equal(t, "maps", cfg.Export.Format)
	assert.Equal(t, 20, cfg.Export.MaxPaths)
	assert.Equal(t, []string{"json", "sqlite"}, cfg.Export.Writers)
	assert.Equal(t, "/tmp/out/paths.db", cfg.Export.SQLitePath, "SQLite path defaults under the export dir")
	assert.True(t, cfg.Metrics.Enabled)
	assert.Equal(t, 9191, cfg.Metrics.Port)
}

func TestLoadConfig_FileNotFound(t *testing.T) {
	cfg, err := loadConfig("/nonexistent/config.yaml")

	assert.Error(t, err, "loadConfig should return an error for nonexistent file")
	assert.Nil(t, cfg, "Config should be nil on error")
	assert.Contains(t, err.Error(), "failed to read config file")
}

func TestLoadConfig_InvalidYAML(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "invalid.yaml")

	invalidYAML := `
grid:
  width: "not a number"
  invalid yaml structure
    broken indentation
`
	require.NoError(t, os.WriteFile(configPath, []byte(invalidYAML), 0644))

	cfg, err := loadConfig(configPath)

	assert.Error(t, err)
	assert.Nil(t, cfg, "Config should be nil on parse error")
	assert.Contains(t, err.Error(), "failed to parse config YAML")
}

func TestLoadConfig_EmptyFileGetsDefaults(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "empty.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte(""), 0644))

	cfg, err := loadConfig(configPath)
	require.NoError(t, err, "Empty YAML file should parse without error")

	assert.Equal(t, 20, cfg.Grid.Width)
	assert.Equal(t, 20, cfg.Grid.Height)
	assert.Equal(t, 10*time.Millisecond, cfg.Scheduler.TickInterval)
	assert.Equal(t, 256, cfg.Scheduler.QueueSize)
	assert.Equal(t, 0, cfg.Scheduler.Workers, "0 workers keeps meaning all CPUs")
	assert.Equal(t, 10, cfg.Spawner.Requests)
	assert.Equal(t, time.Second, cfg.Spawner.Interval)
	assert.Equal(t, "PathfindingData", cfg.Export.Dir)
	assert.Equal(t, 30*time.Second, cfg.Export.Interval)
	assert.Equal(t, "PathfindingData/ledger.json", cfg.Ledger.Checkpoint)
	assert.Equal(t, 9090, cfg.Metrics.Port)
	assert.Equal(t, 50051, cfg.GRPC.Port)
}

func TestParsePoint(t *testing.T) {
	p, err := parsePoint("3,4")
	require.NoError(t, err)
	assert.Equal(t, types.Point{X: 3, Y: 4}, p)

	p, err = parsePoint(" 7 , -1 ")
	require.NoError(t, err)
	assert.Equal(t, types.Point{X: 7, Y: -1}, p)

	for _, bad := range []string{"", "3", "3,4,5", "a,1", "1,b"} {
		_, err := parsePoint(bad)
		assert.ErrorIs(t, err, ErrBadPoint, "input %q", bad)
	}
}

// writeConfig 寫入測試用配置並返回路徑
func writeConfig(t *testing.T, dir, body string) string {
	t.Helper()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0644))
	return path
}

func TestNewEngine_RandomGrid(t *testing.T) {
	dir := t.TempDir()
	cfg, err := loadConfig(writeConfig(t, dir, `
grid:
  width: 12
  height: 8
  obstacle_ratio: 0.1
  seed: 3
scheduler:
  workers: 2
export:
  dir: `+dir+`
`))
	require.NoError(t, err)

	eng, err := newEngine(cfg, "", nil)
	require.NoError(t, err)
	defer eng.close()

	g := eng.sched.Grid()
	require.NotNil(t, g)
	assert.Equal(t, 12, g.Width())
	assert.Equal(t, 8, g.Height())
	assert.Equal(t, uint64(1), g.Version())

	pairs, err := eng.pairs(5, 1)
	require.NoError(t, err)
	assert.Len(t, pairs, 5)
}

func TestNewEngine_Scenario(t *testing.T) {
	dir := t.TempDir()
	scenarioPath := filepath.Join(dir, "s.toml")
	require.NoError(t, os.WriteFile(scenarioPath, []byte(`
[grid]
layout = [
  "....",
  ".##.",
  "....",
]

[[request]]
start = [0, 0]
target = [3, 2]
`), 0644))

	cfg, err := loadConfig(writeConfig(t, dir, "export:\n  dir: "+dir+"\n"))
	require.NoError(t, err)

	eng, err := newEngine(cfg, scenarioPath, nil)
	require.NoError(t, err)
	defer eng.close()

	assert.Equal(t, 4, eng.sched.Grid().Width())
	assert.Equal(t, 3, eng.sched.Grid().Height())

	pairs, err := eng.pairs(100, 0)
	require.NoError(t, err)
	require.Len(t, pairs, 1, "scenario requests win over spawned ones")
	assert.Equal(t, types.Point{X: 3, Y: 2}, pairs[0].Target)
}

func TestNewEngine_UnknownWriter(t *testing.T) {
	dir := t.TempDir()
	cfg, err := loadConfig(writeConfig(t, dir, "export:\n  dir: "+dir+"\n  writers: [parquet]\n"))
	require.NoError(t, err)

	_, err = newEngine(cfg, "", nil)
	assert.ErrorIs(t, err, ErrUnknownWriter)
}

func TestNewEngine_UnknownFormat(t *testing.T) {
	dir := t.TempDir()
	cfg, err := loadConfig(writeConfig(t, dir, "export:\n  format: svg\n"))
	require.NoError(t, err)

	_, err = newEngine(cfg, "", nil)
	assert.ErrorIs(t, err, export.ErrUnknownFormat)
}

func TestRunBatch_ExportsResults(t *testing.T) {
	dir := t.TempDir()
	configFile = writeConfig(t, dir, `
grid:
  width: 16
  height: 16
  obstacle_ratio: 0.1
  seed: 5
scheduler:
  workers: 2
  tick_interval: 1ms
spawner:
  seed: 11
export:
  dir: `+dir+`
  writers: [json, sqlite]
`)
	t.Cleanup(func() { configFile = "configs/default.yaml" })

	require.NoError(t, runBatch("", 8))

	matches, err := filepath.Glob(filepath.Join(dir, "paths_*.json"))
	require.NoError(t, err)
	assert.Len(t, matches, 1, "one JSON export expected")

	w, err := export.OpenSQLite(filepath.Join(dir, "paths.db"))
	require.NoError(t, err)
	defer w.Close()

	runs, err := w.Runs()
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, 8, runs[0].Total)

	ckpt, err := checkpoint.NewManager(filepath.Join(dir, "ledger.json")).Load()
	require.NoError(t, err)
	assert.Equal(t, types.RequestID(9), ckpt.NextID, "8 requests were submitted")

	require.NoError(t, showStatus(), "status should read the exported runs and the checkpoint")
}

func TestSolveOnce_JSON(t *testing.T) {
	dir := t.TempDir()
	configFile = writeConfig(t, dir, `
grid:
  width: 6
  height: 6
  obstacle_ratio: 0
export:
  dir: `+dir+`
  writers: [json]
`)
	t.Cleanup(func() { configFile = "configs/default.yaml" })

	assert.NoError(t, solveOnce("", types.Point{X: 0, Y: 0}, types.Point{X: 5, Y: 5}, true))
	assert.NoError(t, solveOnce("", types.Point{X: 0, Y: 0}, types.Point{X: 5, Y: 5}, false))

	matches, _ := filepath.Glob(filepath.Join(dir, "paths_*"))
	assert.Empty(t, matches, "solve does not export")
	_, err := os.Stat(filepath.Join(dir, "ledger.json"))
	assert.True(t, os.IsNotExist(err), "solve does not write a checkpoint")
}

func TestTally(t *testing.T) {
	var sum tally
	sum.add(
		types.PathResult{Success: true, ReachedTarget: true, Cost: 10},
		types.PathResult{Success: true, ReachedTarget: true, Cost: 20},
		types.PathResult{Truncated: true},
		types.PathResult{},
	)

	assert.Equal(t, 4, sum.total)
	assert.Equal(t, 2, sum.success)
	assert.Equal(t, 1, sum.truncated)
	assert.Equal(t, 1, sum.unreachable)
	assert.Equal(t, 30, sum.cost)
}
