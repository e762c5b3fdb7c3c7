// Package types 定義 gridpath 引擎共用的領域模型
package types

import (
	"fmt"
	"time"
)

// Point is a grid coordinate.
type Point struct {
	X int `json:"x" msgpack:"x"`
	Y int `json:"y" msgpack:"y"`
}

// String renders the point as (x,y).
func (p Point) String() string {
	return fmt.Sprintf("(%d,%d)", p.X, p.Y)
}

// RequestID 請求唯一識別碼，由 ledger 單調遞增分配，永不重用
type RequestID uint64

// RequestState 請求生命週期狀態
type RequestState string

const (
	StatePending    RequestState = "pending"    // 已提交，等待下一個批次
	StateProcessing RequestState = "processing" // 已分派給 worker 或正在同步求解
	StateComplete   RequestState = "complete"   // 結果已寫入 ledger
)

// PathRequest 一次 (start, target) 尋路請求
type PathRequest struct {
	ID          RequestID    `json:"id"`
	Start       Point        `json:"start"`
	Target      Point        `json:"target"`
	State       RequestState `json:"state"`
	GridVersion uint64       `json:"grid_version,omitempty"` // 分派時使用的網格版本
	SubmittedAt int64        `json:"submitted_at"`           // Unix 毫秒
	UpdatedAt   int64        `json:"updated_at"`             // Unix 毫秒
}

// PathResult 求解結果
//
// Positions 從 start 到 target（含兩端），長度不超過容量。
// ReachedTarget 表示 Positions 最後一點即終點；Truncated 表示完整路徑超出容量，
// 此時只保留前段，ReachedTarget 必為 false。
// Success = ReachedTarget && !Truncated。
type PathResult struct {
	RequestID     RequestID      `json:"request_id" msgpack:"request_id"`
	Start         Point          `json:"start" msgpack:"start"`
	Target        Point          `json:"target" msgpack:"target"`
	Positions     []Point        `json:"positions" msgpack:"positions"`
	ReachedTarget bool           `json:"reached_target" msgpack:"reached_target"`
	Truncated     bool           `json:"truncated" msgpack:"truncated"`
	Success       bool           `json:"success" msgpack:"success"`
	Cost          int            `json:"cost" msgpack:"cost"`
	Elapsed       *time.Duration `json:"elapsed_ns,omitempty" msgpack:"elapsed_ns,omitempty"` // 僅同步模式設定
	GridVersion   uint64         `json:"grid_version" msgpack:"grid_version"`
}

// LedgerSnapshot ledger 狀態的深拷貝，用於狀態查詢與匯出
type LedgerSnapshot struct {
	Requests  map[RequestID]PathRequest `json:"requests"`
	Results   map[RequestID]PathResult  `json:"results"`
	Delivered []RequestID               `json:"delivered"`
	NextID    RequestID                 `json:"next_id"`
	SchemaVer int                       `json:"schema_ver"`
}
