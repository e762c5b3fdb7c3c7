package worker

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/ChuLiYu/gridpath/internal/grid"
	"github.com/ChuLiYu/gridpath/pkg/types"
	"github.com/google/uuid"
)

// Task 代表一個待求解的請求：Batch 中第 Index 個
type Task struct {
	Batch *Batch
	Index int
}

// Batch 一次分派的請求集合
//
// Results[i] 只由處理 Requests[i] 的 worker 寫入；所有 worker 完成後 done
// 被關閉，之後控制端才可讀取 Results。
type Batch struct {
	ID           string
	Snapshot     *grid.Snapshot
	Requests     []types.PathRequest
	Results      []types.PathResult
	Capacity     int
	DispatchedAt time.Time
	FinishedAt   time.Time // 最後一個任務完成的時間，done 關閉後才可讀

	remaining atomic.Int64
	done      chan struct{}
}

// NewBatch 建立批次；空批次立即視為完成
func NewBatch(snapshot *grid.Snapshot, requests []types.PathRequest, capacity int) *Batch {
	b := &Batch{
		ID:           uuid.NewString(),
		Snapshot:     snapshot,
		Requests:     requests,
		Results:      make([]types.PathResult, len(requests)),
		Capacity:     capacity,
		DispatchedAt: time.Now(),
		done:         make(chan struct{}),
	}
	b.remaining.Store(int64(len(requests)))
	if len(requests) == 0 {
		b.FinishedAt = b.DispatchedAt
		close(b.done)
	}
	return b
}

// Done 非阻塞檢查批次是否完成
func (b *Batch) Done() bool {
	select {
	case <-b.done:
		return true
	default:
		return false
	}
}

// Wait 阻塞直到批次完成或 ctx 結束
func (b *Batch) Wait(ctx context.Context) error {
	select {
	case <-b.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Remaining 尚未完成的任務數
func (b *Batch) Remaining() int {
	return int(b.remaining.Load())
}

func (b *Batch) complete(index int, result types.PathResult) {
	b.Results[index] = result
	if b.remaining.Add(-1) == 0 {
		b.FinishedAt = time.Now()
		close(b.done)
	}
}

// SolveTime 從分派到最後一個任務完成的時間；批次未完成時為 0
func (b *Batch) SolveTime() time.Duration {
	if !b.Done() {
		return 0
	}
	return b.FinishedAt.Sub(b.DispatchedAt)
}
