// Package threadpool provides the default ThreadPoolService, a bounded pool of
// goroutines.
package threadpool

import (
	"context"
	"errors"
	"runtime"
	"sync"

	"golang.org/x/sync/semaphore"

	"github.com/tigerroll/stepcore/pkg/batch/core/application/port"
	"github.com/tigerroll/stepcore/pkg/batch/core/config"
	"github.com/tigerroll/stepcore/pkg/batch/support/util/exception"
	"github.com/tigerroll/stepcore/pkg/batch/support/util/logger"
)

const moduleName = "threadpool"

// ErrPoolShutdown is returned by ExecuteTask after Shutdown.
var ErrPoolShutdown = errors.New("thread pool is shut down")

// Pool runs at most MaxSize tasks concurrently. ExecuteTask blocks while the
// pool is saturated.
type Pool struct {
	mu      sync.RWMutex
	sem     *semaphore.Weighted
	size    int
	closed  bool
	running sync.WaitGroup
}

// NewPool creates a pool of size goroutines. A non-positive size is resolved at
// Init from batchcore.threadpool.max-size, falling back to the CPU count.
func NewPool(size int) *Pool {
	p := &Pool{}
	if size > 0 {
		p.resize(size)
	}
	return p
}

func (p *Pool) resize(size int) {
	p.size = size
	p.sem = semaphore.NewWeighted(int64(size))
}

// Init implements port.BatchService.
func (p *Pool) Init(props config.Properties) error {
	if p.sem != nil {
		return nil
	}
	settings, err := config.BindSettings(props)
	if err != nil {
		return err
	}
	size := settings.ThreadPoolMaxSize
	if size <= 0 {
		size = runtime.NumCPU()
	}
	p.resize(size)
	logger.Debugf("Thread pool initialized with %d workers.", size)
	return nil
}

// Size returns the maximum number of concurrently running tasks.
func (p *Pool) Size() int {
	return p.size
}

// ExecuteTask runs task on its own goroutine once a slot is free.
func (p *Pool) ExecuteTask(ctx context.Context, task func(ctx context.Context)) error {
	if p.sem == nil {
		return exception.NewBatchErrorf(moduleName, "thread pool is not initialized")
	}
	if err := p.sem.Acquire(ctx, 1); err != nil {
		return exception.NewBatchError(moduleName, "no worker became available", err, false, true)
	}

	p.mu.RLock()
	if p.closed {
		p.mu.RUnlock()
		p.sem.Release(1)
		return ErrPoolShutdown
	}
	p.running.Add(1)
	p.mu.RUnlock()

	go func() {
		defer p.running.Done()
		defer p.sem.Release(1)
		defer func() {
			if r := recover(); r != nil {
				logger.Errorf("Task panicked in thread pool: %v", exception.FromPanic(moduleName, r))
			}
		}()
		task(ctx)
	}()
	return nil
}

// Shutdown stops accepting tasks and waits for running ones until ctx is done.
func (p *Pool) Shutdown(ctx context.Context) error {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()

	done := make(chan struct{})
	go func() {
		p.running.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return exception.NewBatchError(moduleName, "timed out waiting for running tasks", ctx.Err(), false, false)
	}
}

var (
	_ port.ThreadPoolService = (*Pool)(nil)
	_ port.Shutdowner        = (*Pool)(nil)
)
