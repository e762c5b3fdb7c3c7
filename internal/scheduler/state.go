package scheduler

import (
	"github.com/ChuLiYu/gridpath/pkg/types"
)

// State 排程器狀態
type State int

const (
	StateIdle State = iota
	StateDispatching
	StateInFlight
	StateCollecting
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateDispatching:
		return "dispatching"
	case StateInFlight:
		return "in_flight"
	case StateCollecting:
		return "collecting"
	default:
		return "unknown"
	}
}

// EventKind 描述一次 Tick 做了什麼
type EventKind int

const (
	EventNone EventKind = iota
	EventDispatched
	EventWaiting
	EventCollected
)

func (k EventKind) String() string {
	switch k {
	case EventNone:
		return "none"
	case EventDispatched:
		return "dispatched"
	case EventWaiting:
		return "waiting"
	case EventCollected:
		return "collected"
	default:
		return "unknown"
	}
}

// Event Tick 的回傳值
//
// Results 只在 EventCollected 時有值，內容是本批次寫入 ledger 的結果；
// 已被 Clear 的請求結果不在其中。Err 只在分派失敗時有值。
type Event struct {
	Kind     EventKind
	BatchID  string
	Requests int
	Results  []types.PathResult
	Err      error
}

// Status 排程器狀態摘要
type Status struct {
	State       State  `json:"state"`
	GridVersion uint64 `json:"grid_version"`
	StagedGrid  uint64 `json:"staged_grid,omitempty"`
	Batch       string `json:"batch,omitempty"`
	Remaining   int    `json:"remaining"`
	Pending     int    `json:"pending"`
	Processing  int    `json:"processing"`
	Completed   int    `json:"completed"`
	Undelivered int    `json:"undelivered"`
}
