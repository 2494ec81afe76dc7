// Package worker dispatches step run executions onto a bounded pool and
// reaps runs that exceed their wall-clock budget.
package worker

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

var ErrQueueFull = errors.New("dispatch queue is full")

// ExecuteFunc runs one step run to a terminal state.
type ExecuteFunc func(ctx context.Context, runID string) error

type Config struct {
	Workers   int
	QueueSize int
	// TaskBudget bounds each execution's wall clock; zero disables the
	// per-task timeout.
	TaskBudget time.Duration
}

// Pool is a fixed-size dispatch pool. Dispatching an id that is already
// queued or executing is a no-op, so redelivered triggers collapse into the
// in-flight execution.
type Pool struct {
	cfg     Config
	execute ExecuteFunc
	queue   chan string
	logger  *slog.Logger

	mu       sync.Mutex
	inflight map[string]struct{}
	wg       sync.WaitGroup
}

func NewPool(cfg Config, execute ExecuteFunc, logger *slog.Logger) *Pool {
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 64
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Pool{
		cfg:      cfg,
		execute:  execute,
		queue:    make(chan string, cfg.QueueSize),
		logger:   logger,
		inflight: make(map[string]struct{}),
	}
}

// Start launches the workers. They drain until ctx is canceled; Wait blocks
// until all have exited.
func (p *Pool) Start(ctx context.Context) {
	for i := 0; i < p.cfg.Workers; i++ {
		p.wg.Add(1)
		go p.worker(ctx)
	}
}

func (p *Pool) Wait() {
	p.wg.Wait()
}

// Dispatch enqueues a run for execution.
func (p *Pool) Dispatch(runID string) error {
	p.mu.Lock()
	if _, ok := p.inflight[runID]; ok {
		p.mu.Unlock()
		p.logger.Info("run already in flight, dispatch ignored", "step_run_id", runID)
		return nil
	}
	p.inflight[runID] = struct{}{}
	p.mu.Unlock()

	select {
	case p.queue <- runID:
		return nil
	default:
		p.mu.Lock()
		delete(p.inflight, runID)
		p.mu.Unlock()
		return ErrQueueFull
	}
}

func (p *Pool) worker(ctx context.Context) {
	defer p.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case runID := <-p.queue:
			p.run(ctx, runID)
		}
	}
}

func (p *Pool) run(ctx context.Context, runID string) {
	defer func() {
		p.mu.Lock()
		delete(p.inflight, runID)
		p.mu.Unlock()
	}()

	runCtx := ctx
	if p.cfg.TaskBudget > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, p.cfg.TaskBudget)
		defer cancel()
	}

	if err := p.execute(runCtx, runID); err != nil {
		p.logger.Error("step run execution failed", "step_run_id", runID, "error", err.Error())
	}
}
