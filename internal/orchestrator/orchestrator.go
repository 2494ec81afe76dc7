// Package orchestrator drives StepRun executions through their state
// machine: it claims PENDING runs, resolves their input, invokes the step
// runner, persists outcomes and artifacts, and triggers advice generation.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/cellforge-labs/cellforge-go/internal/advice"
	"github.com/cellforge-labs/cellforge-go/internal/domain"
	"github.com/cellforge-labs/cellforge-go/internal/progress"
	"github.com/cellforge-labs/cellforge-go/internal/repo"
	"github.com/cellforge-labs/cellforge-go/internal/runner"
	"github.com/cellforge-labs/cellforge-go/internal/storage/objectstore"
)

// ErrMissingRawInput marks a first-stage run whose dataset has no uploaded
// raw object to read from.
var ErrMissingRawInput = errors.New("dataset has no raw input object")

// RunFailure wraps the cause of a failed execution after the FAILED state
// has been durably recorded.
type RunFailure struct {
	StepRunID string
	Cause     error
}

func (e *RunFailure) Error() string {
	return fmt.Sprintf("step run %s failed: %v", e.StepRunID, e.Cause)
}

func (e *RunFailure) Unwrap() error { return e.Cause }

type Orchestrator struct {
	runs      repo.StepRunRepository
	artifacts repo.ArtifactRepository
	sessions  repo.SessionRepository
	datasets  repo.DatasetRepository
	registry  *runner.Registry
	engine    *advice.Engine
	store     objectstore.Store
	bucket    string
	notifier  *progress.Notifier
	logger    *slog.Logger
	now       func() time.Time
	newID     func() string
}

type Deps struct {
	Runs      repo.StepRunRepository
	Artifacts repo.ArtifactRepository
	Sessions  repo.SessionRepository
	Datasets  repo.DatasetRepository
	Registry  *runner.Registry
	Engine    *advice.Engine
	Store     objectstore.Store
	Bucket    string
	Notifier  *progress.Notifier
	Logger    *slog.Logger
}

func New(deps Deps) *Orchestrator {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{
		runs:      deps.Runs,
		artifacts: deps.Artifacts,
		sessions:  deps.Sessions,
		datasets:  deps.Datasets,
		registry:  deps.Registry,
		engine:    deps.Engine,
		store:     deps.Store,
		bucket:    deps.Bucket,
		notifier:  deps.Notifier,
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
		newID:     func() string { return uuid.NewString() },
	}
}

// Execute drives one run from PENDING to a terminal state. A run that is
// not PENDING at entry is treated as a redelivered dispatch and skipped
// without error, so at-least-once delivery cannot double-execute. Exactly
// one terminal transition is recorded per execution.
func (o *Orchestrator) Execute(ctx context.Context, runID string) error {
	run, err := o.runs.GetStepRun(ctx, runID)
	if err != nil {
		return fmt.Errorf("load step run: %w", err)
	}

	claimed, err := o.runs.MarkRunning(ctx, run.ID, o.now())
	if err != nil {
		return fmt.Errorf("claim step run: %w", err)
	}
	if !claimed {
		o.logger.Info("step run not pending, skipping", "step_run_id", run.ID, "status", string(run.Status))
		return nil
	}

	topic := progress.TaskTopic(run.ID)
	o.publish(topic, progress.PhaseStart, fmt.Sprintf("%s started", run.StepType), 0, nil)

	dataURI, err := o.resolveInput(ctx, run)
	if err != nil {
		return o.fail(ctx, topic, run, err)
	}

	params := effectiveParams(run.Params)
	stepRunner, err := o.registry.For(run.StepType)
	if err != nil {
		return o.fail(ctx, topic, run, err)
	}

	result, err := stepRunner.Run(ctx, runner.Input{
		StepRunID: run.ID,
		SessionID: run.SessionID,
		DataURI:   dataURI,
		Params:    params,
	})
	if err != nil {
		return o.fail(ctx, topic, run, err)
	}

	metrics := normalizeMetrics(result.Metrics)
	if _, failed := metrics[domain.MetricsErrorKey]; failed {
		return o.failWithMetrics(ctx, topic, run, metrics, result.Evidence)
	}

	o.publish(topic, progress.PhaseSaving, "persisting outputs", 80, nil)
	if err := o.persistArtifacts(ctx, run, result.Artifacts); err != nil {
		// The runner already produced metrics and evidence; keep them on
		// the FAILED row alongside the persistence error.
		failMetrics := metrics.Clone()
		failMetrics[domain.MetricsErrorKey] = err.Error()
		return o.failWithMetrics(ctx, topic, run, failMetrics, result.Evidence)
	}

	if err := o.runs.FinishStepRun(ctx, run.ID, domain.RunSucceeded, metrics, result.Evidence, o.now()); err != nil {
		return fmt.Errorf("finish step run: %w", err)
	}

	// Advice generation is best effort: a broken analyzer or store must
	// not fail a run that already succeeded.
	o.publish(topic, progress.PhaseAdvice, "generating advice", 90, nil)
	run.Metrics = metrics
	run.Status = domain.RunSucceeded
	if _, adviceErr := o.engine.Generate(ctx, run); adviceErr != nil {
		o.logger.Warn("advice generation failed", "step_run_id", run.ID, "error", adviceErr.Error())
	}

	if err := o.sessions.TouchSession(ctx, run.SessionID, o.now()); err != nil {
		o.logger.Warn("touch session failed", "session_id", run.SessionID, "error", err.Error())
	}

	o.publish(topic, progress.PhaseDone, fmt.Sprintf("%s completed", run.StepType), 100, metrics)
	return nil
}

// resolveInput picks the object the runner reads. The first pipeline stage
// reads the dataset's raw upload and fails without one. Later stages prefer
// the latest succeeded run's processed matrix, then the raw upload, then
// nothing.
func (o *Orchestrator) resolveInput(ctx context.Context, run domain.StepRun) (string, error) {
	session, err := o.sessions.GetSession(ctx, run.SessionID)
	if err != nil {
		return "", fmt.Errorf("load session: %w", err)
	}
	dataset, err := o.datasets.GetDataset(ctx, session.DatasetID)
	if err != nil {
		return "", fmt.Errorf("load dataset: %w", err)
	}

	if domain.NormalizeStepType(string(run.StepType)) == domain.StepQC {
		if dataset.RawURI == "" {
			return "", ErrMissingRawInput
		}
		return dataset.RawURI, nil
	}

	_, artifact, err := o.runs.LatestSucceededWithArtifact(ctx, run.SessionID, run.ID, domain.ArtifactProcessedData)
	switch {
	case err == nil:
		return artifact.ObjectKey, nil
	case errors.Is(err, repo.ErrNotFound):
		return dataset.RawURI, nil
	default:
		return "", fmt.Errorf("resolve upstream artifact: %w", err)
	}
}

func (o *Orchestrator) persistArtifacts(ctx context.Context, run domain.StepRun, specs []runner.ArtifactSpec) error {
	for _, spec := range specs {
		artifactType := domain.NormalizeArtifactType(string(spec.Type))
		if artifactType == "" {
			return fmt.Errorf("runner reported unsupported artifact type %q for %q", spec.Type, spec.Name)
		}
		// Size comes from a fresh stat; an unstattable object is recorded
		// with size 0, never dropped.
		size := objectstore.SizeOrZero(ctx, o.store, o.bucket, spec.ObjectKey)
		artifact := domain.Artifact{
			ID:        o.newID(),
			StepRunID: run.ID,
			Name:      spec.Name,
			Type:      artifactType,
			ObjectKey: spec.ObjectKey,
			SizeBytes: size,
			SHA256:    spec.SHA256,
			Metadata:  spec.Metadata.Clone(),
			CreatedAt: o.now(),
		}
		if err := o.artifacts.CreateArtifact(ctx, artifact); err != nil {
			return fmt.Errorf("create artifact %q: %w", spec.Name, err)
		}
	}
	return nil
}

// fail records the FAILED terminal state with the cause in metrics, then
// re-raises so the dispatcher sees the failure.
func (o *Orchestrator) fail(ctx context.Context, topic string, run domain.StepRun, cause error) error {
	metrics := domain.Metadata{domain.MetricsErrorKey: cause.Error()}
	return o.failWithMetrics(ctx, topic, run, metrics, nil)
}

func (o *Orchestrator) failWithMetrics(ctx context.Context, topic string, run domain.StepRun, metrics, evidence domain.Metadata) error {
	cause := fmt.Errorf("%v", metrics[domain.MetricsErrorKey])
	if err := o.runs.FinishStepRun(ctx, run.ID, domain.RunFailed, metrics, evidence, o.now()); err != nil {
		o.logger.Error("persist failed state", "step_run_id", run.ID, "error", err.Error())
	}
	o.publish(topic, progress.PhaseError, cause.Error(), 100, metrics)
	o.logger.Error("step run failed", "step_run_id", run.ID, "step_type", string(run.StepType), "error", cause.Error())
	return &RunFailure{StepRunID: run.ID, Cause: cause}
}

func (o *Orchestrator) publish(topic, phase, message string, percent float64, metrics domain.Metadata) {
	if o.notifier == nil {
		return
	}
	o.notifier.Publish(topic, progress.Event{
		Phase:    phase,
		Message:  message,
		Progress: percent,
		Metrics:  metrics,
		TS:       o.now(),
	})
}

// effectiveParams aliases the legacy n_pcs spelling to n_components so
// runners see both. The stored params keep whatever key the user wrote.
func effectiveParams(params domain.Metadata) domain.Metadata {
	out := params.Clone()
	if _, ok := out["n_components"]; !ok {
		if v, ok := out["n_pcs"]; ok {
			out["n_components"] = v
		}
	}
	return out
}

// normalizeMetrics derives canonical metric keys from runner-specific
// spellings. Percent-scaled mito fractions are converted to the 0..1
// high_mito the QC analyzer reads.
func normalizeMetrics(metrics domain.Metadata) domain.Metadata {
	out := metrics.Clone()
	if _, ok := out.Float("high_mito"); !ok {
		for _, key := range []string{"pct_counts_mt", "pct_counts_mito", "high_mito_pct"} {
			if pct, ok := out.Float(key); ok {
				out["high_mito"] = pct / 100
				break
			}
		}
	}
	return out
}
