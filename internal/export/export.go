// ============================================================================
// gridpath Export - 尋路結果資料收集與匯出
// ============================================================================
//
// Package: internal/export
// 文件: export.go
// 功能: 從排程器收集已完成的路徑，整理成資料集並交給 Writer 匯出
//
// 資料流:
//   scheduler.CollectNewCompletions() ──> Collector.Record() ──> Dataset
//                                                              │
//                                 MaxPaths 已滿 / Export() ────┘
//                                              │
//                         JSONWriter / TextWriter / MsgpackWriter / SQLiteWriter
//
// 匯出格式:
//   - basic: 只有成功與否、長度、耗時
//   - coordinates: 加上路徑座標字串 "(x,y) → (x,y)"，截斷時附加 [TRUNCATED]
//   - maps: 再加上每條路徑的 ASCII 地圖
//
// 統計:
//   avg_length 只計算成功路徑；avg_time_ms 只計算帶有耗時的同步結果。
//
// ============================================================================

package export

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/ChuLiYu/gridpath/internal/grid"
	"github.com/ChuLiYu/gridpath/pkg/types"
	"github.com/google/uuid"
	"gonum.org/v1/gonum/stat"
)

var log = slog.Default()

// ============================================================================
// 錯誤定義
// ============================================================================

var (
	// ErrUnknownFormat 不支援的匯出格式
	ErrUnknownFormat = errors.New("export: unknown format")
	// ErrEmptyDataset 資料集沒有任何路徑
	ErrEmptyDataset = errors.New("export: empty dataset")
)

// DefaultMaxPaths 資料集預設上限
const DefaultMaxPaths = 100

// Format 匯出詳細程度
type Format string

const (
	FormatBasic       Format = "basic"
	FormatCoordinates Format = "coordinates"
	FormatMaps        Format = "maps"
)

// ParseFormat 解析格式字串，空字串視為 coordinates
func ParseFormat(s string) (Format, error) {
	switch Format(strings.ToLower(strings.TrimSpace(s))) {
	case "":
		return FormatCoordinates, nil
	case FormatBasic:
		return FormatBasic, nil
	case FormatCoordinates:
		return FormatCoordinates, nil
	case FormatMaps:
		return FormatMaps, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownFormat, s)
}

// ============================================================================
// 資料結構定義
// ============================================================================

// Record 一條路徑的匯出紀錄
type Record struct {
	ID            types.RequestID `json:"id" msgpack:"id"`
	Start         types.Point     `json:"start" msgpack:"start"`
	End           types.Point     `json:"end" msgpack:"end"`
	Success       bool            `json:"success" msgpack:"success"`
	ReachedTarget bool            `json:"reached_target" msgpack:"reached_target"`
	Truncated     bool            `json:"truncated" msgpack:"truncated"`
	Length        int             `json:"length" msgpack:"length"`
	Cost          int             `json:"cost" msgpack:"cost"`
	TimeMs        float64         `json:"time_ms" msgpack:"time_ms"`
	Timed         bool            `json:"timed" msgpack:"timed"`
	GridVersion   uint64          `json:"grid_version" msgpack:"grid_version"`
	Coordinates   string          `json:"coordinates,omitempty" msgpack:"coordinates,omitempty"`
	Map           []string        `json:"map,omitempty" msgpack:"map,omitempty"`
}

// Stats 資料集統計
type Stats struct {
	Total       int     `json:"total" msgpack:"total"`
	Successful  int     `json:"successful" msgpack:"successful"`
	Truncated   int     `json:"truncated" msgpack:"truncated"`
	SuccessRate float64 `json:"success_rate" msgpack:"success_rate"`
	AvgLength   float64 `json:"avg_length" msgpack:"avg_length"`
	AvgTimeMs   float64 `json:"avg_time_ms" msgpack:"avg_time_ms"`
}

// Dataset 一次匯出的完整資料
type Dataset struct {
	RunID       string    `json:"run_id" msgpack:"run_id"`
	Timestamp   time.Time `json:"timestamp" msgpack:"timestamp"`
	Format      Format    `json:"format" msgpack:"format"`
	GridWidth   int       `json:"grid_width" msgpack:"grid_width"`
	GridHeight  int       `json:"grid_height" msgpack:"grid_height"`
	Fingerprint string    `json:"grid_fingerprint" msgpack:"grid_fingerprint"`
	Paths       []Record  `json:"paths" msgpack:"paths"`
	Stats       Stats     `json:"stats" msgpack:"stats"`
}

// Writer 將資料集寫到某個目的地，回傳位置描述（檔案路徑等）
type Writer interface {
	Write(d Dataset) (string, error)
}

// Source 可被收集的結果來源（scheduler.Scheduler 滿足此介面）
type Source interface {
	CollectNewCompletions() []types.PathResult
	PruneDelivered() int
	Grid() *grid.Snapshot
}

// Config Collector 配置
type Config struct {
	MaxPaths int    // 資料集上限，<= 0 使用 DefaultMaxPaths
	Format   Format // 空值使用 coordinates
}

// Collector 資料收集器
type Collector struct {
	mu      sync.Mutex
	cfg     Config
	writers []Writer
	data    Dataset
	exports int
}

// ============================================================================
// 核心方法實作
// ============================================================================

// NewCollector 建立收集器
func NewCollector(cfg Config, writers ...Writer) *Collector {
	if cfg.MaxPaths <= 0 {
		cfg.MaxPaths = DefaultMaxPaths
	}
	if cfg.Format == "" {
		cfg.Format = FormatCoordinates
	}
	c := &Collector{cfg: cfg, writers: writers}
	c.reset(nil)
	return c
}

func (c *Collector) reset(snap *grid.Snapshot) {
	c.data = Dataset{
		RunID:     uuid.NewString(),
		Timestamp: time.Now(),
		Format:    c.cfg.Format,
		Paths:     make([]Record, 0, c.cfg.MaxPaths),
	}
	c.setGrid(snap)
}

func (c *Collector) setGrid(snap *grid.Snapshot) {
	if snap == nil {
		return
	}
	c.data.GridWidth = snap.Width()
	c.data.GridHeight = snap.Height()
	c.data.Fingerprint = fmt.Sprintf("%016x", snap.Fingerprint())
}

// Record 加入結果；資料集達到 MaxPaths 時自動匯出並重置
//
// snap 用於繪製地圖與記錄網格尺寸，可為 nil（此時不產生地圖）。
func (c *Collector) Record(snap *grid.Snapshot, results ...types.PathResult) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.data.Paths) == 0 {
		c.setGrid(snap)
	}

	var errs []error
	for _, r := range results {
		c.data.Paths = append(c.data.Paths, c.newRecord(snap, r))
		if len(c.data.Paths) >= c.cfg.MaxPaths {
			if _, err := c.exportLocked(); err != nil {
				errs = append(errs, err)
			}
			c.reset(snap)
		}
	}
	return errors.Join(errs...)
}

func (c *Collector) newRecord(snap *grid.Snapshot, r types.PathResult) Record {
	rec := Record{
		ID:            r.RequestID,
		Start:         r.Start,
		End:           r.Target,
		Success:       r.Success,
		ReachedTarget: r.ReachedTarget,
		Truncated:     r.Truncated,
		Length:        len(r.Positions),
		Cost:          r.Cost,
		GridVersion:   r.GridVersion,
	}
	if r.Elapsed != nil {
		rec.TimeMs = float64(*r.Elapsed) / float64(time.Millisecond)
		rec.Timed = true
	}
	if c.cfg.Format != FormatBasic && len(r.Positions) > 0 {
		rec.Coordinates = FormatCoordinatesString(r.Positions, r.Truncated)
	}
	if c.cfg.Format == FormatMaps && snap != nil && snap.Version() == r.GridVersion {
		rec.Map = grid.RenderMap(snap, r.Start, r.Target, r.Positions)
	}
	return rec
}

// Harvest 從來源收集新完成的結果並釋放已交付的紀錄
//
// 適合作為 scheduler 的 retention handler。
func (c *Collector) Harvest(src Source) error {
	results := src.CollectNewCompletions()
	err := c.Record(src.Grid(), results...)
	src.PruneDelivered()
	return err
}

// Export 匯出目前資料集並重置；資料集為空時回傳 ErrEmptyDataset
func (c *Collector) Export() ([]string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.data.Paths) == 0 {
		return nil, ErrEmptyDataset
	}
	locations, err := c.exportLocked()
	c.resetKeepGrid()
	return locations, err
}

func (c *Collector) resetKeepGrid() {
	w, h, fp := c.data.GridWidth, c.data.GridHeight, c.data.Fingerprint
	c.reset(nil)
	c.data.GridWidth, c.data.GridHeight, c.data.Fingerprint = w, h, fp
}

func (c *Collector) exportLocked() ([]string, error) {
	c.data.Stats = computeStats(c.data.Paths)

	var locations []string
	var errs []error
	for _, w := range c.writers {
		loc, err := w.Write(c.data)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		locations = append(locations, loc)
	}
	c.exports++

	log.Info("Exported paths",
		"run", c.data.RunID,
		"paths", len(c.data.Paths),
		"success_rate", fmt.Sprintf("%.1f%%", c.data.Stats.SuccessRate*100),
		"avg_time_ms", fmt.Sprintf("%.3f", c.data.Stats.AvgTimeMs),
		"locations", locations)
	return locations, errors.Join(errs...)
}

// ============================================================================
// 查詢方法
// ============================================================================

// Stats 目前資料集的統計
func (c *Collector) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return computeStats(c.data.Paths)
}

// Len 目前資料集的路徑數
func (c *Collector) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.data.Paths)
}

// Exports 已執行的匯出次數
func (c *Collector) Exports() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.exports
}

// Dataset 目前資料集的副本（含最新統計）
func (c *Collector) Dataset() Dataset {
	c.mu.Lock()
	defer c.mu.Unlock()

	d := c.data
	d.Paths = append([]Record(nil), c.data.Paths...)
	d.Stats = computeStats(d.Paths)
	return d
}

// ============================================================================
// 工具函數
// ============================================================================

// FormatCoordinatesString 將路徑轉為 "(x,y) → (x,y)"，截斷時附加 [TRUNCATED]
func FormatCoordinatesString(positions []types.Point, truncated bool) string {
	var b strings.Builder
	for i, p := range positions {
		if i > 0 {
			b.WriteString(" → ")
		}
		b.WriteString(p.String())
	}
	if truncated {
		b.WriteString(" [TRUNCATED]")
	}
	return b.String()
}

func computeStats(paths []Record) Stats {
	s := Stats{Total: len(paths)}
	if s.Total == 0 {
		return s
	}

	var lengths, times []float64
	for _, p := range paths {
		if p.Success {
			s.Successful++
			lengths = append(lengths, float64(p.Length))
		}
		if p.Truncated {
			s.Truncated++
		}
		if p.Timed {
			times = append(times, p.TimeMs)
		}
	}

	s.SuccessRate = float64(s.Successful) / float64(s.Total)
	if len(lengths) > 0 {
		s.AvgLength = stat.Mean(lengths, nil)
	}
	if len(times) > 0 {
		s.AvgTimeMs = stat.Mean(times, nil)
	}
	return s
}
