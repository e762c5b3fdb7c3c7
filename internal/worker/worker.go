// ============================================================================
// gridpath Worker - Path Solving Unit
// ============================================================================
//
// Package: internal/worker
// File: worker.go
// Function: Work unit that runs one A* search per task, each Worker runs in
// an independent goroutine
//
// How it works:
//   Each Worker is an independent goroutine that continuously executes the following loop:
//   1. Receive task from taskCh (blocking wait)
//   2. Solve the request against the batch's grid snapshot
//   3. Write the result into the task's own slot in the batch
//   4. Repeat until taskCh is closed
//
// Execution Model:
//   ┌─────────────────────────────────────┐
//   │  Worker Goroutine                   │
//   │  ┌──────────────────────────────┐   │
//   │  │ for task := range taskCh     │   │
//   │  │   ├─ solver.Solve(...)       │   │
//   │  │   └─ batch.Results[i] = r    │   │
//   │  └──────────────────────────────┘   │
//   └─────────────────────────────────────┘
//
// Ownership:
//   A worker only writes Results[task.Index]. The snapshot is read-only and
//   shared by every worker of the batch, so no locking is needed.
//
// Cancellation:
//   A started search always runs to completion. Stopping the pool refuses
//   new batches but finishes every task of the batches already accepted.
//
// ============================================================================

package worker

import (
	"github.com/ChuLiYu/gridpath/internal/grid"
	"github.com/ChuLiYu/gridpath/internal/solver"
	"github.com/ChuLiYu/gridpath/pkg/types"
)

// Worker represents a work execution unit
type Worker struct {
	id     int         // Worker unique identifier, used for logging and debugging
	taskCh <-chan Task // Task channel (read-only)
}

// newWorker creates a new Worker instance
func newWorker(id int, taskCh <-chan Task) *Worker {
	return &Worker{
		id:     id,
		taskCh: taskCh,
	}
}

// Run is the main loop of Worker
func (w *Worker) Run() {
	for task := range w.taskCh {
		b := task.Batch
		b.complete(task.Index, Execute(b.Snapshot, b.Requests[task.Index], b.Capacity))
	}
}

// Execute solves one request and packs the outcome as a PathResult.
// The synchronous path in the scheduler calls it too.
func Execute(snapshot *grid.Snapshot, req types.PathRequest, capacity int) types.PathResult {
	out := solver.Solve(snapshot, req.Start, req.Target, capacity)
	return types.PathResult{
		RequestID:     req.ID,
		Start:         req.Start,
		Target:        req.Target,
		Positions:     out.Positions,
		ReachedTarget: out.ReachedTarget,
		Truncated:     out.Truncated,
		Success:       out.Success(),
		Cost:          out.Cost,
		GridVersion:   snapshot.Version(),
	}
}
