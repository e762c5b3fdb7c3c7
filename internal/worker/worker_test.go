package worker

// ============================================================================
// Worker Pool Test File
// Purpose: Verify batch execution, slot ownership, graceful shutdown
// ============================================================================

import (
	"context"
	"runtime"
	"sync"
	"testing"
	"time"

	"github.com/ChuLiYu/gridpath/internal/grid"
	"github.com/ChuLiYu/gridpath/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ============================================================================
// Helpers
// ============================================================================

func openGrid(t testing.TB, w, h int) *grid.Snapshot {
	t.Helper()
	s, err := grid.Build(grid.Params{Width: w, Height: h}, 1)
	require.NoError(t, err)
	return s
}

// diagonalRequests asks for (0,0) -> (i,i) for i in [1, n]
func diagonalRequests(n int) []types.PathRequest {
	reqs := make([]types.PathRequest, n)
	for i := range reqs {
		reqs[i] = types.PathRequest{
			ID:     types.RequestID(i + 1),
			Start:  types.Point{},
			Target: types.Point{X: i + 1, Y: i + 1},
		}
	}
	return reqs
}

func waitBatch(t *testing.T, b *Batch) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, b.Wait(ctx))
}

// ============================================================================
// Basic Functionality Tests
// ============================================================================

// TestNewPool tests creating Worker Pool
func TestNewPool(t *testing.T) {
	pool := NewPool(10)
	assert.NotNil(t, pool)
	assert.Equal(t, 0, pool.GetWorkerCount())
	assert.False(t, pool.IsStarted())
}

// TestPoolStart tests starting Worker Pool
func TestPoolStart(t *testing.T) {
	pool := NewPool(10)

	err := pool.Start(8)
	require.NoError(t, err)
	assert.Equal(t, 8, pool.GetWorkerCount())
	assert.True(t, pool.IsStarted())

	// Try to start again
	err = pool.Start(4)
	assert.ErrorIs(t, err, ErrPoolStarted)

	pool.Stop()
}

// TestPoolStartDefaultsToNumCPU tests the zero worker count fallback
func TestPoolStartDefaultsToNumCPU(t *testing.T) {
	pool := NewPool(0)
	require.NoError(t, pool.Start(0))
	defer pool.Stop()

	assert.Equal(t, runtime.NumCPU(), pool.GetWorkerCount())
}

// TestBatchExecution tests that every slot receives its own result
func TestBatchExecution(t *testing.T) {
	pool := NewPool(4)
	require.NoError(t, pool.Start(4))
	defer pool.Stop()

	s := openGrid(t, 32, 32)
	reqs := diagonalRequests(20)
	b := NewBatch(s, reqs, 0)

	require.NoError(t, pool.SubmitBatch(b))
	waitBatch(t, b)

	assert.True(t, b.Done())
	assert.Equal(t, 0, b.Remaining())
	for i, r := range b.Results {
		assert.Equal(t, reqs[i].ID, r.RequestID, "slot %d", i)
		assert.True(t, r.Success, "slot %d", i)
		assert.Len(t, r.Positions, i+2, "slot %d", i)
		assert.Equal(t, 14*(i+1), r.Cost, "slot %d", i)
		assert.Equal(t, s.Version(), r.GridVersion)
		assert.Nil(t, r.Elapsed, "batch results carry no timing")
	}
}

// TestEmptyBatch tests that an empty batch is done immediately
func TestEmptyBatch(t *testing.T) {
	b := NewBatch(openGrid(t, 2, 2), nil, 0)
	assert.True(t, b.Done())
	assert.NotEmpty(t, b.ID)
	assert.Equal(t, time.Duration(0), b.SolveTime())
}

// TestBatchSolveTime tests that solve time stops at the last completed task
func TestBatchSolveTime(t *testing.T) {
	pool := NewPool(4)
	require.NoError(t, pool.Start(2))
	defer pool.Stop()

	b := NewBatch(openGrid(t, 32, 32), diagonalRequests(10), 0)
	assert.Equal(t, time.Duration(0), b.SolveTime(), "unfinished batch has no solve time")

	require.NoError(t, pool.SubmitBatch(b))
	waitBatch(t, b)
	finished := b.FinishedAt

	assert.False(t, finished.Before(b.DispatchedAt))
	assert.Equal(t, finished.Sub(b.DispatchedAt), b.SolveTime())

	// reading later must not stretch the measurement
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, finished, b.FinishedAt)
	assert.Less(t, b.SolveTime(), time.Since(b.DispatchedAt))
}

// TestSubmitBatchDoesNotBlock tests that submission returns before work starts
func TestSubmitBatchDoesNotBlock(t *testing.T) {
	// unbuffered channel and a single worker: a blocking submit would stall here
	pool := NewPool(0)
	require.NoError(t, pool.Start(1))
	defer pool.Stop()

	b := NewBatch(openGrid(t, 64, 64), diagonalRequests(60), 0)

	done := make(chan error, 1)
	go func() { done <- pool.SubmitBatch(b) }()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("SubmitBatch blocked")
	}
	waitBatch(t, b)
}

// ============================================================================
// Concurrency Tests
// ============================================================================

// TestConcurrentBatches tests several batches sharing one pool
func TestConcurrentBatches(t *testing.T) {
	pool := NewPool(16)
	require.NoError(t, pool.Start(4))
	defer pool.Stop()

	s := openGrid(t, 40, 40)
	batches := make([]*Batch, 8)
	var wg sync.WaitGroup
	for i := range batches {
		batches[i] = NewBatch(s, diagonalRequests(30), 0)
		wg.Add(1)
		go func(b *Batch) {
			defer wg.Done()
			assert.NoError(t, pool.SubmitBatch(b))
		}(batches[i])
	}
	wg.Wait()

	for _, b := range batches {
		waitBatch(t, b)
		for i, r := range b.Results {
			assert.Equal(t, types.RequestID(i+1), r.RequestID)
		}
	}
}

// TestBatchWaitContext tests that Wait honours cancellation
func TestBatchWaitContext(t *testing.T) {
	b := NewBatch(openGrid(t, 2, 2), diagonalRequests(1), 0) // never submitted

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, b.Wait(ctx), context.DeadlineExceeded)
	assert.False(t, b.Done())
}

// ============================================================================
// Graceful Shutdown Tests
// ============================================================================

// TestStopBeforeStart tests stopping before starting
func TestStopBeforeStart(t *testing.T) {
	pool := NewPool(10)
	assert.NotPanics(t, func() {
		pool.Stop()
	})
}

// TestStopIsIdempotent tests calling Stop twice
func TestStopIsIdempotent(t *testing.T) {
	pool := NewPool(10)
	require.NoError(t, pool.Start(2))
	pool.Stop()
	assert.NotPanics(t, func() {
		pool.Stop()
	})
}

// TestStopWhileFeeding tests that Stop finishes a batch it already accepted
func TestStopWhileFeeding(t *testing.T) {
	pool := NewPool(0)
	require.NoError(t, pool.Start(1))

	reqs := diagonalRequests(120)
	b := NewBatch(openGrid(t, 128, 128), reqs, 0)
	require.NoError(t, pool.SubmitBatch(b))

	assert.NotPanics(t, func() {
		pool.Stop()
	})

	require.True(t, b.Done(), "accepted batch must complete before Stop returns")
	assert.Equal(t, 0, b.Remaining())
	for i, r := range b.Results {
		assert.Equal(t, reqs[i].ID, r.RequestID, "slot %d", i)
		assert.True(t, r.Success, "slot %d", i)
	}
}

// TestSubmitAfterStop tests submitting after shutdown
func TestSubmitAfterStop(t *testing.T) {
	pool := NewPool(10)
	require.NoError(t, pool.Start(2))
	pool.Stop()

	err := pool.SubmitBatch(NewBatch(openGrid(t, 2, 2), diagonalRequests(1), 0))
	assert.ErrorIs(t, err, ErrPoolClosed)
}

// TestSubmitBeforeStart tests submitting before starting
func TestSubmitBeforeStart(t *testing.T) {
	pool := NewPool(10)
	err := pool.SubmitBatch(NewBatch(openGrid(t, 2, 2), diagonalRequests(1), 0))
	assert.ErrorIs(t, err, ErrPoolNotStarted)
}

// ============================================================================
// Execute Tests
// ============================================================================

// TestExecuteTruncation tests capacity handling through Execute
func TestExecuteTruncation(t *testing.T) {
	s := openGrid(t, 20, 1)
	req := types.PathRequest{ID: 7, Start: types.Point{}, Target: types.Point{X: 19}}

	r := Execute(s, req, 5)

	assert.Equal(t, types.RequestID(7), r.RequestID)
	assert.Len(t, r.Positions, 5)
	assert.True(t, r.Truncated)
	assert.False(t, r.ReachedTarget, "stored prefix stops short of the target")
	assert.False(t, r.Success)
}

// TestExecuteUnwalkable tests failure results
func TestExecuteUnwalkable(t *testing.T) {
	s := openGrid(t, 4, 4)
	req := types.PathRequest{ID: 1, Start: types.Point{X: -1}, Target: types.Point{X: 3, Y: 3}}

	r := Execute(s, req, 0)

	assert.Empty(t, r.Positions)
	assert.False(t, r.Success)
	assert.False(t, r.ReachedTarget)
}

// ============================================================================
// Benchmark Tests
// ============================================================================

// BenchmarkBatchThroughput measures a full batch round trip
func BenchmarkBatchThroughput(b *testing.B) {
	pool := NewPool(256)
	pool.Start(0)
	defer pool.Stop()

	s := openGrid(b, 64, 64)
	reqs := diagonalRequests(63)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		batch := NewBatch(s, reqs, 0)
		pool.SubmitBatch(batch)
		batch.Wait(context.Background())
	}
}
