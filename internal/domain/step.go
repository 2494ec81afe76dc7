package domain

import (
	"errors"
	"strings"
	"time"
)

// StepType identifies one of the fixed analysis stages. The set is closed:
// dispatch to runners and advice analyzers keys off these values at compile
// time rather than through open-ended lookup.
type StepType string

const (
	StepQC              StepType = "qc"
	StepNormalization   StepType = "normalization"
	StepHVG             StepType = "hvg"
	StepPCA             StepType = "pca"
	StepUMAP            StepType = "umap"
	StepClustering      StepType = "clustering"
	StepBatchCorrection StepType = "batch_correction"
	StepAnnotation      StepType = "annotation"
	StepDifferential    StepType = "differential"
)

// NormalizeStepType maps free-form step type values to canonical ones.
// "cluster" is a legacy spelling of "clustering" kept for stored configs.
func NormalizeStepType(value string) StepType {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case string(StepQC):
		return StepQC
	case string(StepNormalization):
		return StepNormalization
	case string(StepHVG):
		return StepHVG
	case string(StepPCA):
		return StepPCA
	case string(StepUMAP):
		return StepUMAP
	case string(StepClustering), "cluster":
		return StepClustering
	case string(StepBatchCorrection):
		return StepBatchCorrection
	case string(StepAnnotation):
		return StepAnnotation
	case string(StepDifferential):
		return StepDifferential
	default:
		return ""
	}
}

// Step is a static stage definition with default parameters, used to build
// analysis pipelines.
type Step struct {
	ID            string
	Name          string
	Type          StepType
	Description   string
	RunnerImage   string
	RunnerCommand string
	DefaultParams Metadata
	CreatedAt     time.Time
}

func (s Step) Validate() error {
	if strings.TrimSpace(s.ID) == "" {
		return errors.New("step id is required")
	}
	if strings.TrimSpace(s.Name) == "" {
		return errors.New("step name is required")
	}
	if NormalizeStepType(string(s.Type)) == "" {
		return errors.New("step type is required")
	}
	return nil
}
