// ============================================================================
// gridpath Scheduler - 批次尋路排程器
// ============================================================================
//
// Package: internal/scheduler
// 文件: scheduler.go
// 功能: 引擎的協調者，串接 Grid Manager、Ledger 與 Worker Pool
//
// 兩種執行模式:
//   1. 同步：SolveNow() 直接在呼叫端 goroutine 求解一次
//   2. 非同步：Submit() 排入 ledger，由外部週期性呼叫 Tick() 推進
//
// Tick 狀態機 (每次呼叫最多一次轉換，永不阻塞):
//
//   Idle ──(有 pending)──> Dispatching ──SubmitBatch──> InFlight
//    ↑                                                     │
//    │                                          batch.Done()？
//    │                                           否: EventWaiting
//    └──── Collecting <──────────────────────────── 是
//          (寫入 ledger、套用暫存網格)
//
// 網格重建:
//   批次執行中呼叫 RebuildGrid() 時，新快照只被暫存 (staged)，
//   等本批次收集後才發佈。執行中的 worker 永遠只看到分派時的快照。
//
// 保留上限:
//   收集後若 ledger 已達保留上限，在釋放鎖之後呼叫 retention handler
//   (通常是 export collector 匯出並 PruneDelivered)。
//
// 並發安全:
//   - mu 保護狀態機欄位 (state / batch / staged / stopped)
//   - ledger 與 grid.Manager 有各自的鎖
//   - worker 只寫自己的 Results[i]，收集端在 done 關閉後才讀取
//
// ============================================================================

package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/ChuLiYu/gridpath/internal/grid"
	"github.com/ChuLiYu/gridpath/internal/ledger"
	"github.com/ChuLiYu/gridpath/internal/metrics"
	"github.com/ChuLiYu/gridpath/internal/solver"
	"github.com/ChuLiYu/gridpath/internal/worker"
	"github.com/ChuLiYu/gridpath/pkg/types"
)

var log = slog.Default()

// ============================================================================
// 錯誤定義
// ============================================================================

var (
	// ErrGridNotInitialized 尚未建立任何網格
	ErrGridNotInitialized = errors.New("scheduler: grid not initialized")
	// ErrStopped 排程器已停止
	ErrStopped = errors.New("scheduler: stopped")
)

// ============================================================================
// 資料結構定義
// ============================================================================

// Config 排程器配置
type Config struct {
	Workers      int // Worker 數量，<= 0 使用 CPU 核心數
	PathCapacity int // 每條路徑最多保存的點數，<= 0 使用 solver.DefaultCapacity
	Retention    int // ledger 保留上限，<= 0 使用 ledger.DefaultRetention
	QueueSize    int // worker 任務通道緩衝
	MaxBatch     int // 每批次最多請求數，<= 0 代表全部 pending
}

// RetentionHandler 在 ledger 達到保留上限時被呼叫（不持有排程器鎖）
type RetentionHandler func(s *Scheduler)

// Option 排程器選項
type Option func(*Scheduler)

// WithMetrics 設定 Prometheus collector
func WithMetrics(c *metrics.Collector) Option {
	return func(s *Scheduler) { s.metrics = c }
}

// WithRetentionHandler 設定保留上限處理器
func WithRetentionHandler(h RetentionHandler) Option {
	return func(s *Scheduler) { s.onRetention = h }
}

// Scheduler 批次排程器
type Scheduler struct {
	mu          sync.Mutex
	cfg         Config
	grids       *grid.Manager
	ledger      *ledger.Ledger
	pool        *worker.Pool
	metrics     *metrics.Collector
	onRetention RetentionHandler

	state   State
	batch   *worker.Batch
	staged  *grid.Snapshot
	stopped bool
}

// ============================================================================
// 核心方法實作
// ============================================================================

// New 建立排程器並啟動 Worker Pool；網格需另外透過 RebuildGrid 建立
func New(cfg Config, opts ...Option) (*Scheduler, error) {
	if cfg.PathCapacity <= 0 {
		cfg.PathCapacity = solver.DefaultCapacity
	}

	s := &Scheduler{
		cfg:    cfg,
		grids:  grid.NewManager(),
		ledger: ledger.New(cfg.Retention),
		pool:   worker.NewPool(cfg.QueueSize),
		state:  StateIdle,
	}
	for _, opt := range opts {
		opt(s)
	}

	if err := s.pool.Start(cfg.Workers); err != nil {
		return nil, fmt.Errorf("failed to start worker pool: %w", err)
	}
	s.cfg.Workers = s.pool.GetWorkerCount()

	log.Info("Scheduler started",
		"workers", s.cfg.Workers,
		"path_capacity", s.cfg.PathCapacity,
		"retention", s.ledger.Retention())
	return s, nil
}

// Submit 新增一個非同步請求
func (s *Scheduler) Submit(start, target types.Point) (types.RequestID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return 0, ErrStopped
	}
	if s.grids.Current() == nil {
		return 0, ErrGridNotInitialized
	}

	req := s.ledger.Submit(start, target)
	s.metrics.RecordSubmit()
	s.updateGauges()
	return req.ID, nil
}

// Tick 推進一步狀態機，永不阻塞
func (s *Scheduler) Tick() Event {
	s.mu.Lock()
	ev, full := s.step()
	handler := s.onRetention
	s.mu.Unlock()

	if full && handler != nil {
		handler(s)
	}
	return ev
}

func (s *Scheduler) step() (Event, bool) {
	switch s.state {
	case StateInFlight:
		if !s.batch.Done() {
			return Event{Kind: EventWaiting, BatchID: s.batch.ID, Requests: len(s.batch.Requests)}, false
		}
		return s.collect()
	case StateIdle:
		if s.stopped {
			return Event{Kind: EventNone}, false
		}
		return s.dispatch(), false
	default:
		// Dispatching / Collecting 只存在於持有鎖期間
		panic(fmt.Sprintf("scheduler: tick in transient state %s", s.state))
	}
}

// dispatch 取出 pending 請求並交給 worker pool
func (s *Scheduler) dispatch() Event {
	if s.ledger.Stats()["pending"] == 0 {
		return Event{Kind: EventNone}
	}

	snap := s.grids.Current()
	if snap == nil {
		panic("scheduler: dispatch without a grid")
	}

	s.state = StateDispatching
	reqs := s.ledger.TakePending(s.cfg.MaxBatch, snap.Version())
	b := worker.NewBatch(snap, reqs, s.cfg.PathCapacity)

	if err := s.pool.SubmitBatch(b); err != nil {
		for _, req := range reqs {
			if rqErr := s.ledger.Requeue(req.ID); rqErr != nil {
				log.Error("Failed to requeue request", "request", req.ID, "error", rqErr)
			}
		}
		s.state = StateIdle
		s.updateGauges()
		log.Error("Failed to dispatch batch", "batch", b.ID, "error", err)
		return Event{Kind: EventNone, Err: fmt.Errorf("dispatch batch: %w", err)}
	}

	s.batch = b
	s.state = StateInFlight
	s.metrics.RecordDispatch(len(reqs))
	s.updateGauges()

	log.Debug("Batch dispatched",
		"batch", b.ID,
		"requests", len(reqs),
		"grid_version", snap.Version())
	return Event{Kind: EventDispatched, BatchID: b.ID, Requests: len(reqs)}
}

// collect 將批次結果寫入 ledger，並套用暫存網格
func (s *Scheduler) collect() (Event, bool) {
	s.state = StateCollecting
	b := s.batch

	results := make([]types.PathResult, 0, len(b.Results))
	full := false
	for _, r := range b.Results {
		atCap, err := s.ledger.Complete(r)
		if err != nil {
			// Clear() 之後回來的結果直接丟棄
			log.Debug("Discarding result", "request", r.RequestID, "error", err)
			continue
		}
		full = full || atCap
		s.metrics.RecordResult(r)
		results = append(results, r)
	}
	s.metrics.RecordBatchLatency(b.SolveTime().Seconds())

	if s.staged != nil {
		s.grids.Publish(s.staged)
		s.metrics.SetGridVersion(s.staged.Version())
		log.Info("Staged grid published", "version", s.staged.Version())
		s.staged = nil
	}

	s.batch = nil
	s.state = StateIdle
	s.updateGauges()

	log.Debug("Batch collected",
		"batch", b.ID,
		"results", len(results),
		"solve_time", b.SolveTime(),
		"collect_delay", time.Since(b.FinishedAt))
	return Event{Kind: EventCollected, BatchID: b.ID, Requests: len(b.Requests), Results: results}, full
}

// SolveNow 在呼叫端 goroutine 同步求解一次
//
// 結果同時寫入 ledger（使用相同的 ID 計數器），因此也會出現在
// CollectNewCompletions 中；不影響批次狀態機。
func (s *Scheduler) SolveNow(start, target types.Point) (types.PathResult, error) {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return types.PathResult{}, ErrStopped
	}
	snap := s.grids.Current()
	if snap == nil {
		s.mu.Unlock()
		return types.PathResult{}, ErrGridNotInitialized
	}
	req := s.ledger.Begin(start, target, snap.Version())
	capacity := s.cfg.PathCapacity
	handler := s.onRetention
	s.mu.Unlock()

	began := time.Now()
	r := worker.Execute(snap, req, capacity)
	elapsed := time.Since(began)
	r.Elapsed = &elapsed

	s.metrics.RecordSolveLatency(elapsed.Seconds())
	s.metrics.RecordResult(r)

	full, err := s.ledger.Complete(r)
	if err != nil {
		log.Debug("Synchronous result not recorded", "request", r.RequestID, "error", err)
	}
	if full && handler != nil {
		handler(s)
	}
	return r, nil
}

// RebuildGrid 建立新版本網格；批次執行中時暫存至收集後發佈
func (s *Scheduler) RebuildGrid(p grid.Params) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return 0, ErrStopped
	}

	snap, err := s.grids.Prepare(p)
	if err != nil {
		return 0, fmt.Errorf("rebuild grid: %w", err)
	}

	if s.state == StateInFlight {
		s.staged = snap
		log.Info("Grid rebuild staged", "version", snap.Version(), "batch", s.batch.ID)
		return snap.Version(), nil
	}

	s.grids.Publish(snap)
	s.metrics.SetGridVersion(snap.Version())
	log.Info("Grid published",
		"version", snap.Version(),
		"size", fmt.Sprintf("%dx%d", snap.Width(), snap.Height()),
		"walkable", snap.WalkableCount(),
		"fingerprint", fmt.Sprintf("%016x", snap.Fingerprint()))
	return snap.Version(), nil
}

// Drain 反覆 Tick 直到沒有 pending 也沒有執行中的批次
//
// 批次執行中時阻塞在 batch.Wait 上，不輪詢；其餘情況每 interval 重試一次
// (interval <= 0 時使用 1ms)。ctx 是呼叫端的看門狗。排程器停止後仍有
// pending 請求時返回 ErrStopped。
func (s *Scheduler) Drain(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		interval = time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if ev := s.Tick(); ev.Err != nil {
			return ev.Err
		}
		if s.Idle() {
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		b, stopped := s.inFlight()
		if b != nil {
			if err := b.Wait(ctx); err != nil {
				return err
			}
			continue
		}
		if stopped {
			return ErrStopped
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (s *Scheduler) inFlight() (*worker.Batch, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateInFlight {
		return s.batch, s.stopped
	}
	return nil, s.stopped
}

// Stop 停止排程器與 Worker Pool
//
// 執行中的批次會跑完並寫入 ledger，因此停止後不會有請求卡在
// processing；尚未分派的請求留在 pending。
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.stopped = true
	s.mu.Unlock()

	// pool.Stop 返回時所有已接受的批次都已完成
	s.pool.Stop()

	s.mu.Lock()
	var ev Event
	full := false
	if s.state == StateInFlight {
		ev, full = s.collect()
	}
	handler := s.onRetention
	s.mu.Unlock()

	if full && handler != nil {
		handler(s)
	}
	log.Info("Scheduler stopped", "collected", len(ev.Results))
}

// ============================================================================
// 收集與查詢
// ============================================================================

// CollectNewCompletions 回傳尚未交付的結果，每個 ID 最多一次
func (s *Scheduler) CollectNewCompletions() []types.PathResult {
	return s.ledger.CollectNewCompletions()
}

// PruneDelivered 移除已交付的結果
func (s *Scheduler) PruneDelivered() int {
	n := s.ledger.PruneDelivered()
	s.updateGauges()
	return n
}

// Clear 丟棄所有請求與結果；執行中批次的結果會在收集時被丟棄
func (s *Scheduler) Clear() {
	s.ledger.Clear()
	s.updateGauges()
}

// AtCapacity ledger 是否已達保留上限
func (s *Scheduler) AtCapacity() bool {
	return s.ledger.AtCapacity()
}

// LedgerSnapshot 回傳 ledger 深拷貝
func (s *Scheduler) LedgerSnapshot() types.LedgerSnapshot {
	return s.ledger.Snapshot()
}

// Grid 回傳目前發佈的網格快照
func (s *Scheduler) Grid() *grid.Snapshot {
	return s.grids.Current()
}

// GridVersion 目前發佈的網格版本，尚未建立時為 0
func (s *Scheduler) GridVersion() uint64 {
	if snap := s.grids.Current(); snap != nil {
		return snap.Version()
	}
	return 0
}

// State 目前狀態
func (s *Scheduler) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Idle 沒有 pending 請求且沒有執行中的批次
func (s *Scheduler) Idle() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state == StateIdle && s.ledger.Stats()["pending"] == 0
}

// Config 回傳生效中的配置
func (s *Scheduler) Config() Config {
	return s.cfg
}

// Status 取得排程器狀態摘要
func (s *Scheduler) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()

	stats := s.ledger.Stats()
	st := Status{
		State:       s.state,
		GridVersion: s.GridVersion(),
		Pending:     stats["pending"],
		Processing:  stats["processing"],
		Completed:   stats["completed"],
		Undelivered: stats["undelivered"],
	}
	if s.batch != nil {
		st.Batch = s.batch.ID
		st.Remaining = s.batch.Remaining()
	}
	if s.staged != nil {
		st.StagedGrid = s.staged.Version()
	}
	return st
}

func (s *Scheduler) updateGauges() {
	if s.metrics == nil {
		return
	}
	stats := s.ledger.Stats()
	s.metrics.UpdateLedgerStats(stats["pending"], stats["processing"])
}
