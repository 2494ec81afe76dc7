package runner

import (
	"context"
	"errors"
	"fmt"

	"github.com/cellforge-labs/cellforge-go/internal/domain"
)

var ErrUnknownStepType = errors.New("no runner registered for step type")

// Input carries everything a runner needs for one execution. DataURI is the
// resolved upstream object ("" when the step starts from nothing), Params is
// the merged parameter set after advice application.
type Input struct {
	StepRunID string
	SessionID string
	DataURI   string
	Params    domain.Metadata
}

// ArtifactSpec describes one output object the runner produced. SizeBytes
// and SHA256 are advisory; the orchestrator re-stats the object before
// recording the artifact row.
type ArtifactSpec struct {
	Name      string
	Type      domain.ArtifactType
	ObjectKey string
	SizeBytes int64
	SHA256    string
	Metadata  domain.Metadata
}

// Result is the runner's report for a completed execution. A runner signals
// domain-level failure by placing domain.MetricsErrorKey in Metrics; a
// returned error marks infrastructure failure.
type Result struct {
	Metrics   domain.Metadata
	Evidence  domain.Metadata
	Artifacts []ArtifactSpec
}

type Runner interface {
	StepType() domain.StepType
	Run(ctx context.Context, in Input) (Result, error)
}

// Registry owns the closed set of step runners. Dispatch is by canonical
// step type; registration of a duplicate type panics at wiring time.
type Registry struct {
	runners map[domain.StepType]Runner
}

func NewRegistry(runners ...Runner) *Registry {
	registry := &Registry{runners: make(map[domain.StepType]Runner, len(runners))}
	for _, r := range runners {
		registry.Register(r)
	}
	return registry
}

func (r *Registry) Register(runner Runner) {
	if runner == nil {
		panic("runner is nil")
	}
	stepType := domain.NormalizeStepType(string(runner.StepType()))
	if stepType == "" {
		panic(fmt.Sprintf("runner has unsupported step type %q", runner.StepType()))
	}
	if _, ok := r.runners[stepType]; ok {
		panic(fmt.Sprintf("runner already registered for step type %q", stepType))
	}
	r.runners[stepType] = runner
}

func (r *Registry) For(stepType domain.StepType) (Runner, error) {
	canonical := domain.NormalizeStepType(string(stepType))
	if canonical == "" {
		return nil, fmt.Errorf("%w: %q", ErrUnknownStepType, stepType)
	}
	runner, ok := r.runners[canonical]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownStepType, canonical)
	}
	return runner, nil
}

func (r *Registry) StepTypes() []domain.StepType {
	out := make([]domain.StepType, 0, len(r.runners))
	for stepType := range r.runners {
		out = append(out, stepType)
	}
	return out
}
