package worker

// ============================================================================
// Worker Pool Test File
// Purpose: Verify concurrent execution, panic recovery, graceful shutdown
// ============================================================================

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func removeAll(context.Context, string) (bool, error) { return true, nil }

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

	err := pool.Start(context.Background(), 8, removeAll)
	require.NoError(t, err)
	assert.Equal(t, 8, pool.GetWorkerCount())
	assert.True(t, pool.IsStarted())

	// Try to start again
	err = pool.Start(context.Background(), 4, removeAll)
	assert.ErrorIs(t, err, ErrPoolStarted)

	pool.Stop()
}

// TestWorkerExecution tests every submitted tile produces one result
func TestWorkerExecution(t *testing.T) {
	pool := NewPool(10)
	require.NoError(t, pool.Start(context.Background(), 1, removeAll))

	taskCount := 10
	for i := 0; i < taskCount; i++ {
		require.NoError(t, pool.Submit(Task{Path: fmt.Sprintf("tile-%d.png", i)}))
	}

	results := make(map[string]Result)
	for i := 0; i < taskCount; i++ {
		result, err := pool.ReceiveResult()
		require.NoError(t, err)
		results[result.Path] = result
	}

	assert.Len(t, results, taskCount)
	for _, r := range results {
		assert.True(t, r.Removed)
		assert.NoError(t, r.Err)
	}

	pool.Stop()
}

// TestConcurrency tests tiles run in parallel
func TestConcurrency(t *testing.T) {
	var running, peak int32
	fn := func(context.Context, string) (bool, error) {
		n := atomic.AddInt32(&running, 1)
		for {
			p := atomic.LoadInt32(&peak)
			if n <= p || atomic.CompareAndSwapInt32(&peak, p, n) {
				break
			}
		}
		time.Sleep(20 * time.Millisecond)
		atomic.AddInt32(&running, -1)
		return false, nil
	}

	paths := make([]string, 16)
	for i := range paths {
		paths[i] = fmt.Sprintf("%d.png", i)
	}

	start := time.Now()
	results, err := RunBatch(context.Background(), paths, 8, fn)
	require.NoError(t, err)
	assert.Len(t, results, 16)
	assert.Greater(t, atomic.LoadInt32(&peak), int32(1), "tiles should run concurrently")
	assert.Less(t, time.Since(start), 16*20*time.Millisecond)
}

// TestErrorsAreReturnedPerTile tests a failing tile does not stop the batch
func TestErrorsAreReturnedPerTile(t *testing.T) {
	boom := errors.New("decode failed")
	fn := func(_ context.Context, path string) (bool, error) {
		switch path {
		case "bad.png":
			return false, boom
		case "panic.png":
			panic("corrupt header")
		default:
			return true, nil
		}
	}

	results, err := RunBatch(context.Background(), []string{"a.png", "bad.png", "panic.png", "b.png"}, 2, fn)
	require.NoError(t, err)
	require.Len(t, results, 4)

	removed, failed := 0, 0
	for _, r := range results {
		if r.Removed {
			removed++
		}
		if r.Err != nil {
			failed++
		}
	}
	assert.Equal(t, 2, removed)
	assert.Equal(t, 2, failed)
}

// TestRunBatchEmpty tests an empty batch starts no goroutines
func TestRunBatchEmpty(t *testing.T) {
	results, err := RunBatch(context.Background(), nil, 4, removeAll)
	require.NoError(t, err)
	assert.Empty(t, results)
}

// ============================================================================
// Lifecycle Tests
// ============================================================================

// TestStopBeforeStart tests stopping before starting
func TestStopBeforeStart(t *testing.T) {
	pool := NewPool(10)
	assert.NotPanics(t, pool.Stop)
}

// TestSubmitBeforeStart tests submitting before starting
func TestSubmitBeforeStart(t *testing.T) {
	pool := NewPool(10)
	err := pool.Submit(Task{Path: "a.png"})
	assert.ErrorIs(t, err, ErrPoolNotStarted)
}

// TestSubmitAfterStop tests submitting after shutdown
func TestSubmitAfterStop(t *testing.T) {
	pool := NewPool(10)
	require.NoError(t, pool.Start(context.Background(), 2, removeAll))
	pool.Stop()

	err := pool.Submit(Task{Path: "a.png"})
	assert.ErrorIs(t, err, ErrPoolClosed)

	// Stop is idempotent
	assert.NotPanics(t, pool.Stop)
}

// TestGracefulShutdown tests queued tiles finish before Stop returns
func TestGracefulShutdown(t *testing.T) {
	var done int32
	fn := func(context.Context, string) (bool, error) {
		time.Sleep(5 * time.Millisecond)
		atomic.AddInt32(&done, 1)
		return false, nil
	}

	pool := NewPool(20)
	require.NoError(t, pool.Start(context.Background(), 4, fn))
	for i := 0; i < 20; i++ {
		require.NoError(t, pool.Submit(Task{Path: fmt.Sprintf("%d.png", i)}))
	}
	pool.Stop()

	assert.Equal(t, int32(20), atomic.LoadInt32(&done))

	// Buffered results remain readable after Stop
	count := 0
	for {
		if _, err := pool.ReceiveResult(); err != nil {
			assert.ErrorIs(t, err, ErrPoolClosed)
			break
		}
		count++
	}
	assert.Equal(t, 20, count)
}

// ============================================================================
// Benchmarks
// ============================================================================

func BenchmarkRunBatch(b *testing.B) {
	paths := make([]string, 5000)
	for i := range paths {
		paths[i] = fmt.Sprintf("%d.png", i)
	}
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := RunBatch(context.Background(), paths, 64, removeAll); err != nil {
			b.Fatal(err)
		}
	}
}
