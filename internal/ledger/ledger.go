// ============================================================================
// gridpath Request Ledger - 請求生命週期狀態機
// ============================================================================
//
// Package: internal/ledger
// 文件: ledger.go
// 功能: 追蹤每個尋路請求從提交到結果交付的完整生命週期
//
// 狀態轉換 (State Machine):
//   Pending (待處理)
//      ↓ TakePending()
//   Processing (批次執行中 / 同步求解中)
//      ↓ Complete()              ↺ Requeue() (批次無法交給 worker pool)
//   Complete (已完成)
//      ↓ CollectNewCompletions()
//   Delivered (已交付，每個 ID 最多一次)
//
// 數據結構設計:
//   requests map[RequestID]*PathRequest - 主存儲 (Single Source of Truth)
//   queue    []RequestID                - pending FIFO
//   processing / results                - 狀態索引
//   order    []RequestID                - 完成順序，CollectNewCompletions 依此輸出
//   delivered map                       - 已交付 ID，保證 at-most-once
//
// 保留上限 (Retention):
//   results 數量達到上限時 Complete() 回報 atCapacity，由外部協作者
//   (export collector) 匯出並呼叫 PruneDelivered()。ledger 本身從不丟棄結果。
//
// Clear():
//   清空所有狀態但不重置 ID 計數器；批次執行中被清除的請求在結果回來時
//   Complete() 回傳 ErrRequestNotFound，結果被丟棄。
//
// 並發安全:
//   sync.RWMutex 保護所有資料結構
//
// ============================================================================

package ledger

import (
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/ChuLiYu/gridpath/pkg/types"
)

// ============================================================================
// 錯誤定義
// ============================================================================

var (
	// 請求不存在（從未提交或已被 Clear）
	ErrRequestNotFound = errors.New("ledger: request not found")
	// 請求不在 processing 狀態
	ErrNotProcessing = errors.New("ledger: request not processing")
)

// DefaultRetention 預設保留上限
const DefaultRetention = 100

// ============================================================================
// 資料結構定義
// ============================================================================

// Ledger 請求帳本
type Ledger struct {
	mu         sync.RWMutex
	nextID     types.RequestID
	retention  int
	requests   map[types.RequestID]*types.PathRequest
	queue      []types.RequestID
	processing map[types.RequestID]struct{}
	results    map[types.RequestID]*types.PathResult
	order      []types.RequestID
	delivered  map[types.RequestID]struct{}
}

// New 建立帳本；retention <= 0 時使用 DefaultRetention
func New(retention int) *Ledger {
	if retention <= 0 {
		retention = DefaultRetention
	}
	l := &Ledger{nextID: 1, retention: retention}
	l.reset()
	return l
}

func (l *Ledger) reset() {
	l.requests = make(map[types.RequestID]*types.PathRequest)
	l.queue = make([]types.RequestID, 0)
	l.processing = make(map[types.RequestID]struct{})
	l.results = make(map[types.RequestID]*types.PathResult)
	l.order = make([]types.RequestID, 0)
	l.delivered = make(map[types.RequestID]struct{})
}

// ============================================================================
// 核心方法實作
// ============================================================================

// Submit 新增 pending 請求並分配 ID
func (l *Ledger) Submit(start, target types.Point) types.PathRequest {
	l.mu.Lock()
	defer l.mu.Unlock()

	req := l.newRequest(start, target, types.StatePending)
	l.queue = append(l.queue, req.ID)
	return *req
}

// Begin 直接建立 processing 狀態的請求（同步求解使用，不進入 pending 佇列）
func (l *Ledger) Begin(start, target types.Point, gridVersion uint64) types.PathRequest {
	l.mu.Lock()
	defer l.mu.Unlock()

	req := l.newRequest(start, target, types.StateProcessing)
	req.GridVersion = gridVersion
	l.processing[req.ID] = struct{}{}
	return *req
}

func (l *Ledger) newRequest(start, target types.Point, state types.RequestState) *types.PathRequest {
	now := time.Now().UnixMilli()
	req := &types.PathRequest{
		ID:          l.nextID,
		Start:       start,
		Target:      target,
		State:       state,
		SubmittedAt: now,
		UpdatedAt:   now,
	}
	l.nextID++
	l.requests[req.ID] = req
	return req
}

// TakePending 依 FIFO 取出最多 max 個 pending 請求並標記為 processing
//
// 參數說明：
//   - max: 上限，<= 0 代表全部
//   - gridVersion: 本批次使用的網格版本
func (l *Ledger) TakePending(max int, gridVersion uint64) []types.PathRequest {
	l.mu.Lock()
	defer l.mu.Unlock()

	n := len(l.queue)
	if max > 0 && max < n {
		n = max
	}
	if n == 0 {
		return nil
	}

	now := time.Now().UnixMilli()
	taken := make([]types.PathRequest, 0, n)
	for _, id := range l.queue[:n] {
		req := l.requests[id]
		req.State = types.StateProcessing
		req.GridVersion = gridVersion
		req.UpdatedAt = now
		l.processing[id] = struct{}{}
		taken = append(taken, *req)
	}
	l.queue = l.queue[n:]
	return taken
}

// Requeue 將 processing 請求放回 pending 佇列尾端
func (l *Ledger) Requeue(id types.RequestID) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	req, exists := l.requests[id]
	if !exists {
		return ErrRequestNotFound
	}
	if req.State != types.StateProcessing {
		return ErrNotProcessing
	}

	req.State = types.StatePending
	req.UpdatedAt = time.Now().UnixMilli()
	delete(l.processing, id)
	l.queue = append(l.queue, id)
	return nil
}

// Complete 寫入結果並將請求標記為完成
//
// 返回值：
//   - atCapacity: 完成後保留的結果數量已達上限
//   - error: ErrRequestNotFound（已被 Clear，結果丟棄）或 ErrNotProcessing
func (l *Ledger) Complete(result types.PathResult) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	req, exists := l.requests[result.RequestID]
	if !exists {
		return false, ErrRequestNotFound
	}
	if req.State != types.StateProcessing {
		return false, ErrNotProcessing
	}

	req.State = types.StateComplete
	req.UpdatedAt = time.Now().UnixMilli()
	delete(l.processing, req.ID)

	r := result
	l.results[req.ID] = &r
	l.order = append(l.order, req.ID)

	return len(l.results) >= l.retention, nil
}

// CollectNewCompletions 回傳尚未交付的結果（依完成順序），並標記為已交付
func (l *Ledger) CollectNewCompletions() []types.PathResult {
	l.mu.Lock()
	defer l.mu.Unlock()

	var out []types.PathResult
	for _, id := range l.order {
		if _, done := l.delivered[id]; done {
			continue
		}
		r, ok := l.results[id]
		if !ok {
			continue
		}
		l.delivered[id] = struct{}{}
		out = append(out, *r)
	}
	return out
}

// PruneDelivered 移除已交付的結果與其請求，回傳移除數量
//
// ID 永不重用，結果移除後不可能再被交付，因此 delivered 記錄一併刪除。
func (l *Ledger) PruneDelivered() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	kept := l.order[:0]
	pruned := 0
	for _, id := range l.order {
		if _, done := l.delivered[id]; done {
			delete(l.results, id)
			delete(l.requests, id)
			delete(l.delivered, id)
			pruned++
			continue
		}
		kept = append(kept, id)
	}
	l.order = kept
	return pruned
}

// Clear 丟棄所有請求與結果；ID 計數器不重置
func (l *Ledger) Clear() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.reset()
}

// ============================================================================
// 查詢方法
// ============================================================================

// Get 取得請求副本
func (l *Ledger) Get(id types.RequestID) (types.PathRequest, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	req, ok := l.requests[id]
	if !ok {
		return types.PathRequest{}, false
	}
	return *req, true
}

// Result 取得結果副本
func (l *Ledger) Result(id types.RequestID) (types.PathResult, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	r, ok := l.results[id]
	if !ok {
		return types.PathResult{}, false
	}
	return *r, true
}

// AtCapacity 保留的結果數量是否已達上限
func (l *Ledger) AtCapacity() bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.results) >= l.retention
}

func (l *Ledger) Retention() int { return l.retention }

// Stats 取得各狀態統計
//
// 鍵值: pending, processing, completed, undelivered
func (l *Ledger) Stats() map[string]int {
	l.mu.RLock()
	defer l.mu.RUnlock()

	undelivered := 0
	for id := range l.results {
		if _, done := l.delivered[id]; !done {
			undelivered++
		}
	}
	return map[string]int{
		"pending":     len(l.queue),
		"processing":  len(l.processing),
		"completed":   len(l.results),
		"undelivered": undelivered,
	}
}

// Snapshot 產生深拷貝快照
func (l *Ledger) Snapshot() types.LedgerSnapshot {
	l.mu.RLock()
	defer l.mu.RUnlock()

	snap := types.LedgerSnapshot{
		Requests:  make(map[types.RequestID]types.PathRequest, len(l.requests)),
		Results:   make(map[types.RequestID]types.PathResult, len(l.results)),
		Delivered: make([]types.RequestID, 0, len(l.delivered)),
		NextID:    l.nextID,
		SchemaVer: 1,
	}
	for id, req := range l.requests {
		snap.Requests[id] = *req
	}
	for id, r := range l.results {
		cp := *r
		cp.Positions = append([]types.Point(nil), r.Positions...)
		snap.Results[id] = cp
	}
	for id := range l.delivered {
		snap.Delivered = append(snap.Delivered, id)
	}
	sort.Slice(snap.Delivered, func(i, j int) bool { return snap.Delivered[i] < snap.Delivered[j] })
	return snap
}
