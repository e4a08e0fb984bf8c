package threadpool_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tigerroll/stepcore/pkg/batch/core/config"
	"github.com/tigerroll/stepcore/pkg/batch/infrastructure/threadpool"
)

func TestPool_SizeFromConfiguration(t *testing.T) {
	p := threadpool.NewPool(0)
	require.NoError(t, p.Init(config.Properties{config.KeyThreadPoolMaxSize: "3"}))
	assert.Equal(t, 3, p.Size())

	fixed := threadpool.NewPool(2)
	require.NoError(t, fixed.Init(config.Properties{config.KeyThreadPoolMaxSize: "7"}))
	assert.Equal(t, 2, fixed.Size())
}

func TestPool_BoundsConcurrency(t *testing.T) {
	p := threadpool.NewPool(2)
	ctx := context.Background()

	var running, peak int32
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		require.NoError(t, p.ExecuteTask(ctx, func(context.Context) {
			defer wg.Done()
			n := atomic.AddInt32(&running, 1)
			for {
				old := atomic.LoadInt32(&peak)
				if n <= old || atomic.CompareAndSwapInt32(&peak, old, n) {
					break
				}
			}
			time.Sleep(5 * time.Millisecond)
			atomic.AddInt32(&running, -1)
		}))
	}
	wg.Wait()
	assert.LessOrEqual(t, atomic.LoadInt32(&peak), int32(2))
}

func TestPool_ShutdownWaitsAndRejects(t *testing.T) {
	p := threadpool.NewPool(1)
	ctx := context.Background()

	var finished atomic.Bool
	require.NoError(t, p.ExecuteTask(ctx, func(context.Context) {
		time.Sleep(10 * time.Millisecond)
		finished.Store(true)
	}))
	require.NoError(t, p.Shutdown(ctx))
	assert.True(t, finished.Load())

	err := p.ExecuteTask(ctx, func(context.Context) {})
	assert.ErrorIs(t, err, threadpool.ErrPoolShutdown)
}

func TestPool_PanickingTaskFreesItsSlot(t *testing.T) {
	p := threadpool.NewPool(1)
	ctx := context.Background()

	require.NoError(t, p.ExecuteTask(ctx, func(context.Context) { panic("boom") }))
	done := make(chan struct{})
	require.NoError(t, p.ExecuteTask(ctx, func(context.Context) { close(done) }))
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("second task never ran")
	}
}

func TestPool_ExecuteTaskHonoursContext(t *testing.T) {
	p := threadpool.NewPool(1)
	release := make(chan struct{})
	require.NoError(t, p.ExecuteTask(context.Background(), func(context.Context) { <-release }))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	assert.Error(t, p.ExecuteTask(ctx, func(context.Context) {}))
	close(release)
}

func TestPool_RequiresInit(t *testing.T) {
	assert.Error(t, threadpool.NewPool(0).ExecuteTask(context.Background(), func(context.Context) {}))
}
