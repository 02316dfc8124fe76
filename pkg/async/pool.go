// Package async provides a bounded background task queue for fire-and-forget
// work. Callers submit named tasks and continue immediately; task failures are
// isolated and logged, never propagated.
package async

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

type task struct {
	name string
	fn   func(context.Context) error
}

// Pool is a fixed-size worker pool draining a bounded task queue.
type Pool struct {
	tasks   chan task
	workers int
	timeout time.Duration
	logger  *zap.Logger

	startOnce sync.Once
	stopOnce  sync.Once
	wg        sync.WaitGroup

	mu      sync.RWMutex // guards stopped and the send into tasks
	stopped bool
}

// NewPool creates a pool with the given worker count and queue depth.
// Each task runs with its own timeout so a stuck task cannot wedge a worker forever.
func NewPool(workers, queueDepth int, taskTimeout time.Duration, logger *zap.Logger) *Pool {
	if workers < 1 {
		workers = 1
	}
	if queueDepth < 1 {
		queueDepth = 1
	}
	return &Pool{
		tasks:   make(chan task, queueDepth),
		workers: workers,
		timeout: taskTimeout,
		logger:  logger,
	}
}

// Start launches the worker goroutines
func (p *Pool) Start(ctx context.Context) {
	p.startOnce.Do(func() {
		for i := 0; i < p.workers; i++ {
			p.wg.Add(1)
			go p.worker(ctx, i)
		}
		p.logger.Info("Background task pool started",
			zap.Int("workers", p.workers),
			zap.Int("queueDepth", cap(p.tasks)),
		)
	})
}

// Submit enqueues a task without blocking. If the queue is full the task is
// dropped and false is returned; the caller already treats this work as
// best-effort, so dropping is logged and tolerated.
func (p *Pool) Submit(name string, fn func(context.Context) error) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.stopped {
		p.logger.Warn("Task submitted after pool shutdown", zap.String("task", name))
		return false
	}

	select {
	case p.tasks <- task{name: name, fn: fn}:
		return true
	default:
		p.logger.Warn("Background task queue full, dropping task", zap.String("task", name))
		return false
	}
}

// Stop prevents new submissions and waits for in-flight tasks to finish
func (p *Pool) Stop() {
	p.stopOnce.Do(func() {
		p.mu.Lock()
		p.stopped = true
		p.mu.Unlock()

		close(p.tasks)
		p.wg.Wait()
		p.logger.Info("Background task pool stopped")
	})
}

func (p *Pool) worker(ctx context.Context, id int) {
	defer p.wg.Done()

	for t := range p.tasks {
		p.run(ctx, t, id)
	}
}

func (p *Pool) run(ctx context.Context, t task, workerID int) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("Background task panicked",
				zap.String("task", t.name),
				zap.Int("worker", workerID),
				zap.String("panic", fmt.Sprintf("%v", r)),
			)
		}
	}()

	taskCtx := ctx
	if p.timeout > 0 {
		var cancel context.CancelFunc
		taskCtx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}

	start := time.Now()
	if err := t.fn(taskCtx); err != nil {
		p.logger.Warn("Background task failed",
			zap.String("task", t.name),
			zap.Duration("duration", time.Since(start)),
			zap.Error(err),
		)
		return
	}

	p.logger.Debug("Background task completed",
		zap.String("task", t.name),
		zap.Duration("duration", time.Since(start)),
	)
}
