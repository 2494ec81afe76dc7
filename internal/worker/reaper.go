package worker

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/cellforge-labs/cellforge-go/internal/domain"
	"github.com/cellforge-labs/cellforge-go/internal/repo"
)

// Reaper marks RUNNING runs whose start time predates the staleness window
// as FAILED. Covers executions orphaned by a crashed worker: nothing else
// would ever move them to a terminal state.
type Reaper struct {
	runs     repo.StepRunRepository
	maxAge   time.Duration
	interval time.Duration
	logger   *slog.Logger
	now      func() time.Time
}

func NewReaper(runRepo repo.StepRunRepository, maxAge, interval time.Duration, logger *slog.Logger) *Reaper {
	if maxAge <= 0 {
		maxAge = 30 * time.Minute
	}
	if interval <= 0 {
		interval = time.Minute
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Reaper{
		runs:     runRepo,
		maxAge:   maxAge,
		interval: interval,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Run loops until ctx is canceled.
func (r *Reaper) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := r.Sweep(ctx); err != nil {
				r.logger.Warn("stale run sweep failed", "error", err.Error())
			}
		}
	}
}

// Sweep performs one staleness pass and returns the first hard error.
func (r *Reaper) Sweep(ctx context.Context) error {
	running, err := r.runs.ListStepRuns(ctx, repo.StepRunFilter{Status: domain.RunRunning})
	if err != nil {
		return fmt.Errorf("list running step runs: %w", err)
	}

	cutoff := r.now().Add(-r.maxAge)
	for _, run := range running {
		if run.StartedAt == nil || run.StartedAt.After(cutoff) {
			continue
		}
		metrics := domain.Metadata{
			domain.MetricsErrorKey: fmt.Sprintf("exceeded wall-clock budget of %s", r.maxAge),
		}
		if err := r.runs.FinishStepRun(ctx, run.ID, domain.RunFailed, metrics, nil, r.now()); err != nil {
			r.logger.Warn("reap stale run failed", "step_run_id", run.ID, "error", err.Error())
			continue
		}
		r.logger.Info("stale run reaped", "step_run_id", run.ID, "started_at", run.StartedAt.Format(time.RFC3339))
	}
	return nil
}
