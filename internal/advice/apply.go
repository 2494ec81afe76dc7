package advice

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cellforge-labs/cellforge-go/internal/domain"
	"github.com/cellforge-labs/cellforge-go/internal/platform/auditlog"
	"github.com/cellforge-labs/cellforge-go/internal/repo"
)

var (
	ErrAlreadyApplied       = errors.New("advice already applied")
	ErrNotApplied           = errors.New("advice is not applied")
	ErrUnsupportedPatchKind = errors.New("advice patch kind is not machine-applicable")
	ErrNoRollbackData       = errors.New("advice has no rollback data")
)

// Applier executes the apply/rollback lifecycle of advice against its
// StepRun's params. The pre-apply snapshot is taken before merging, so a
// rollback restores the exact parameter map the run had.
type Applier struct {
	advice repo.AdviceRepository
	runs   repo.StepRunRepository
	audit  auditlog.QueryRower
	logger *slog.Logger
	now    func() time.Time
}

func NewApplier(adviceRepo repo.AdviceRepository, runRepo repo.StepRunRepository, audit auditlog.QueryRower, logger *slog.Logger) *Applier {
	if logger == nil {
		logger = slog.Default()
	}
	return &Applier{
		advice: adviceRepo,
		runs:   runRepo,
		audit:  audit,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Apply merges the advice patch into the run's params and records the
// pre-apply snapshot for rollback.
func (a *Applier) Apply(ctx context.Context, adviceID, appliedBy string) (domain.Advice, error) {
	if a == nil || a.advice == nil || a.runs == nil {
		return domain.Advice{}, fmt.Errorf("advice applier not initialized")
	}

	item, err := a.advice.GetAdvice(ctx, adviceID)
	if err != nil {
		return domain.Advice{}, err
	}
	if item.IsApplied {
		return domain.Advice{}, ErrAlreadyApplied
	}
	if !item.PatchKind.Applicable() {
		return domain.Advice{}, ErrUnsupportedPatchKind
	}

	run, err := a.runs.GetStepRun(ctx, item.StepRunID)
	if err != nil {
		return domain.Advice{}, err
	}

	snapshot := run.Params.Clone()
	merged := run.Params.Clone()
	for k, v := range item.Patch {
		merged[k] = v
	}

	if err := a.runs.UpdateStepRunParams(ctx, run.ID, merged); err != nil {
		return domain.Advice{}, fmt.Errorf("update run params: %w", err)
	}

	appliedAt := a.now()
	rollback := domain.Metadata{domain.RollbackParamsKey: map[string]any(snapshot)}
	if err := a.advice.MarkApplied(ctx, item.ID, appliedBy, appliedAt, rollback); err != nil {
		return domain.Advice{}, fmt.Errorf("mark applied: %w", err)
	}

	item.IsApplied = true
	item.AppliedAt = &appliedAt
	item.AppliedBy = appliedBy
	item.RollbackData = rollback

	a.recordAudit(ctx, auditlog.ActionUpdate, item, appliedBy, domain.Metadata{
		"patch":       map[string]any(item.Patch),
		"prev_params": map[string]any(snapshot),
	})
	a.logger.Info("advice applied", "advice_id", item.ID, "step_run_id", run.ID, "applied_by", appliedBy)
	return item, nil
}

// Rollback restores the pre-apply params snapshot and flips the applied
// flag back, returning the advice to a re-appliable condition.
func (a *Applier) Rollback(ctx context.Context, adviceID, actor string) (domain.Advice, error) {
	if a == nil || a.advice == nil || a.runs == nil {
		return domain.Advice{}, fmt.Errorf("advice applier not initialized")
	}

	item, err := a.advice.GetAdvice(ctx, adviceID)
	if err != nil {
		return domain.Advice{}, err
	}
	if !item.IsApplied {
		return domain.Advice{}, ErrNotApplied
	}

	snapshot, ok := item.RollbackParams()
	if !ok {
		return domain.Advice{}, ErrNoRollbackData
	}

	if err := a.runs.UpdateStepRunParams(ctx, item.StepRunID, snapshot); err != nil {
		return domain.Advice{}, fmt.Errorf("restore run params: %w", err)
	}
	if err := a.advice.ClearApplied(ctx, item.ID); err != nil {
		return domain.Advice{}, fmt.Errorf("clear applied: %w", err)
	}

	// Only the applied flag flips; applied_at, applied_by and the rollback
	// snapshot remain on the row so the apply history stays inspectable.
	item.IsApplied = false

	a.recordAudit(ctx, auditlog.ActionRollback, item, actor, domain.Metadata{
		"restored_params": map[string]any(snapshot),
	})
	a.logger.Info("advice rolled back", "advice_id", item.ID, "step_run_id", item.StepRunID, "actor", actor)
	return item, nil
}

func (a *Applier) recordAudit(ctx context.Context, action string, item domain.Advice, actor string, changes domain.Metadata) {
	if a.audit == nil {
		return
	}
	entry := auditlog.Entry{
		OccurredAt: a.now(),
		Actor:      actor,
		Action:     action,
		ObjectType: "advice",
		ObjectID:   item.ID,
		Changes:    map[string]any(changes),
		Metadata: map[string]any{
			"step_run_id": item.StepRunID,
		},
	}
	if _, err := auditlog.Insert(ctx, a.audit, entry); err != nil {
		a.logger.Warn("audit insert failed", "advice_id", item.ID, "action", action, "error", err.Error())
	}
}
