package domain

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// AdviceCategory classifies a proposed remediation.
type AdviceCategory string

const (
	AdviceParameterOptimization AdviceCategory = "parameter_optimization"
	AdviceQualityImprovement    AdviceCategory = "quality_improvement"
	AdviceMethodSuggestion      AdviceCategory = "method_suggestion"
	AdviceTroubleshooting       AdviceCategory = "troubleshooting"
)

// RiskLevel grades how disruptive applying an advice may be.
type RiskLevel string

const (
	RiskLow    RiskLevel = "low"
	RiskMedium RiskLevel = "medium"
	RiskHigh   RiskLevel = "high"
)

// PatchKind describes what an advice patch targets. Only params patches are
// machine-applicable in current scope.
type PatchKind string

const (
	PatchParams PatchKind = "params"
	PatchCode   PatchKind = "code"
	PatchBoth   PatchKind = "both"
)

// Applicable reports whether an advice with this patch kind can be applied
// to a StepRun's params.
func (k PatchKind) Applicable() bool {
	return k == PatchParams || k == PatchBoth
}

// RollbackParamsKey is the key under which the pre-apply params snapshot is
// stored in Advice.RollbackData.
const RollbackParamsKey = "prev_params"

// Advice is one proposed, reversible parameter patch for a StepRun,
// generated by the advice engine from the run's metrics. EvidenceText must
// restate the numeric condition that triggered the rule.
type Advice struct {
	ID           string
	StepRunID    string
	Category     AdviceCategory
	Risk         RiskLevel
	Title        string
	Description  string
	EvidenceText string
	Patch        Metadata
	PatchKind    PatchKind
	IsApplied    bool
	AppliedAt    *time.Time
	AppliedBy    string
	RollbackData Metadata
	CreatedAt    time.Time
}

func (a Advice) Validate() error {
	if strings.TrimSpace(a.ID) == "" {
		return errors.New("advice id is required")
	}
	if strings.TrimSpace(a.StepRunID) == "" {
		return errors.New("step run id is required")
	}
	switch a.Category {
	case AdviceParameterOptimization, AdviceQualityImprovement, AdviceMethodSuggestion, AdviceTroubleshooting:
	default:
		return fmt.Errorf("unsupported advice category: %q", a.Category)
	}
	switch a.Risk {
	case RiskLow, RiskMedium, RiskHigh:
	default:
		return fmt.Errorf("unsupported risk level: %q", a.Risk)
	}
	if strings.TrimSpace(a.Title) == "" {
		return errors.New("advice title is required")
	}
	if strings.TrimSpace(a.EvidenceText) == "" {
		return errors.New("advice evidence text is required")
	}
	switch a.PatchKind {
	case PatchParams, PatchCode, PatchBoth:
	default:
		return fmt.Errorf("unsupported patch kind: %q", a.PatchKind)
	}
	return nil
}

// RollbackParams extracts the pre-apply params snapshot, if any.
func (a Advice) RollbackParams() (Metadata, bool) {
	if a.RollbackData == nil {
		return nil, false
	}
	raw, ok := a.RollbackData[RollbackParamsKey]
	if !ok || raw == nil {
		return nil, false
	}
	switch typed := raw.(type) {
	case Metadata:
		return typed, true
	case map[string]any:
		return Metadata(typed), true
	default:
		return nil, false
	}
}
