// ============================================================================
// gridpath Worker Pool - 並發尋路執行器
// ============================================================================
//
// Package: internal/worker
// 文件: worker_pool.go
// 功能: 管理多個 Worker goroutine 的生命週期和批次任務分發
//
// 設計模式:
//   採用 Worker Pool 模式（工作池模式）：
//   1. 固定數量的 Worker goroutine 持續運行
//   2. 通過共享的任務 channel 分發任務
//   3. 結果直接寫入 Batch 中預先分配的槽位（不經 channel）
//   4. 避免頻繁創建和銷毀 goroutine 的開銷
//
// 架構組件:
//   ┌─────────────┐
//   │ Scheduler   │ --SubmitBatch()--> feeder goroutine --> taskCh
//   └─────────────┘
//         ↑
//    batch.Done()
//         ↑
//   ┌─────────────┐
//   │   Pool      │
//   │  ┌────────┐ │
//   │  │Worker 1│←── taskCh ──→ batch.Results[i]
//   │  │Worker 2│←── taskCh ──→ batch.Results[j]
//   │  └────────┘ │
//   └─────────────┘
//
// 非阻塞提交:
//   SubmitBatch() 只啟動一個 feeder goroutine 後立即返回，呼叫端（scheduler
//   tick）永遠不會因 taskCh 滿載而阻塞。
//
// 優雅關閉:
//   Stop() 流程：
//   1. 拒絕新的 SubmitBatch
//   2. 等待所有 feeder 送完已接受批次的任務（之後才能安全關閉 taskCh）
//   3. 關閉 taskCh，Worker 處理完剩餘任務後退出
//   4. WaitGroup.Wait() 等待所有 Worker 完成
//   已接受的批次因此一定會完成，batch.Done() 不會卡住。
//
// 錯誤處理:
//   - ErrPoolNotStarted: Pool 未啟動時提交
//   - ErrPoolClosed: Pool 已關閉時提交
//
// ============================================================================

package worker

import (
	"errors"
	"runtime"
	"sync"
)

// ============================================================================
// 錯誤定義
// ============================================================================

var (
	// ErrPoolClosed 表示當前 Pool 已關閉，無法提交新任務
	ErrPoolClosed = errors.New("worker pool is closed")
	// ErrPoolNotStarted 表示 Pool 尚未啟動，無法提交任務
	ErrPoolNotStarted = errors.New("worker pool not started")
	// ErrPoolStarted 表示 Pool 已啟動過
	ErrPoolStarted = errors.New("worker pool already started")
)

// ============================================================================
// 資料結構定義
// ============================================================================

// Pool 代表 Worker 池，管理多個並發的 Worker
type Pool struct {
	workers []*Worker      // Worker 列表
	taskCh  chan Task      // 任務通道
	wg      sync.WaitGroup // 等待所有 Worker 完成
	feedWg  sync.WaitGroup // 等待所有 feeder 退出
	started bool
	stopped bool
	mu      sync.Mutex // 保護 started / stopped 與 feedWg.Add
}

// ============================================================================
// 核心方法實作
// ============================================================================

// NewPool 建立新的 Worker Pool
// 參數：
//   - bufferSize: 任務通道的緩衝大小
func NewPool(bufferSize int) *Pool {
	if bufferSize < 0 {
		bufferSize = 0
	}
	return &Pool{
		workers: make([]*Worker, 0),
		taskCh:  make(chan Task, bufferSize),
	}
}

// Start 啟動指定數量的 Worker；workerCount <= 0 時使用 CPU 核心數
func (p *Pool) Start(workerCount int) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.started {
		return ErrPoolStarted
	}
	if workerCount <= 0 {
		workerCount = runtime.NumCPU()
	}

	for i := 0; i < workerCount; i++ {
		worker := newWorker(i, p.taskCh)
		p.workers = append(p.workers, worker)

		p.wg.Add(1)
		go func(w *Worker) {
			defer p.wg.Done()
			w.Run()
		}(worker)
	}

	p.started = true
	return nil
}

// SubmitBatch 將批次中的每個請求排入任務通道，不阻塞呼叫端
//
// 返回值：
//   - error: 如果 Pool 未啟動或已關閉則返回錯誤；此時批次不會被執行
func (p *Pool) SubmitBatch(b *Batch) error {
	p.mu.Lock()
	if !p.started {
		p.mu.Unlock()
		return ErrPoolNotStarted
	}
	if p.stopped {
		p.mu.Unlock()
		return ErrPoolClosed
	}
	p.feedWg.Add(1)
	p.mu.Unlock()

	go p.feed(b)
	return nil
}

// feed 依序送出批次的所有任務
func (p *Pool) feed(b *Batch) {
	defer p.feedWg.Done()
	for i := range b.Requests {
		p.taskCh <- Task{Batch: b, Index: i}
	}
}

// Stop 優雅地關閉 Worker Pool；已接受的批次會全部執行完畢後才返回
func (p *Pool) Stop() {
	p.mu.Lock()
	if !p.started || p.stopped {
		p.mu.Unlock()
		return
	}
	p.stopped = true
	p.mu.Unlock()

	p.feedWg.Wait()
	close(p.taskCh)
	p.wg.Wait()
}

// GetWorkerCount 返回當前 Worker 數量
func (p *Pool) GetWorkerCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.workers)
}

// IsStarted 檢查 Pool 是否已啟動
func (p *Pool) IsStarted() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.started
}
