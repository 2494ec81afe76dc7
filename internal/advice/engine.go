// Package advice derives parameter recommendations from completed step run
// metrics. Analyzers are pure functions over one run; the engine persists
// their proposals as reviewable, reversible advice rows.
package advice

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/cellforge-labs/cellforge-go/internal/domain"
	"github.com/cellforge-labs/cellforge-go/internal/repo"
)

// Proposal is one analyzer finding before persistence.
type Proposal struct {
	Category     domain.AdviceCategory
	Risk         domain.RiskLevel
	Title        string
	Description  string
	EvidenceText string
	Patch        domain.Metadata
}

// Analyzer inspects the metrics of one terminal run and proposes patches.
type Analyzer func(run domain.StepRun) []Proposal

// Engine generates and stores advice for completed runs.
type Engine struct {
	advice    repo.AdviceRepository
	analyzers map[domain.StepType]Analyzer
	logger    *slog.Logger
	now       func() time.Time
	newID     func() string
}

func NewEngine(adviceRepo repo.AdviceRepository, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		advice: adviceRepo,
		analyzers: map[domain.StepType]Analyzer{
			domain.StepQC:         AnalyzeQC,
			domain.StepHVG:        AnalyzeHVG,
			domain.StepPCA:        AnalyzePCA,
			domain.StepUMAP:       AnalyzeUMAP,
			domain.StepClustering: AnalyzeClustering,
		},
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
		newID:  func() string { return uuid.NewString() },
	}
}

// Generate runs the analyzer for the run's step type and persists every
// proposal. Step types without an analyzer yield no advice and no error.
// Proposals are independent: duplicates across repeated invocations are not
// deduplicated, each generation appends fresh rows.
func (e *Engine) Generate(ctx context.Context, run domain.StepRun) ([]domain.Advice, error) {
	if e == nil || e.advice == nil {
		return nil, fmt.Errorf("advice engine not initialized")
	}
	analyzer, ok := e.analyzers[domain.NormalizeStepType(string(run.StepType))]
	if !ok {
		return nil, nil
	}

	proposals := analyzer(run)
	if len(proposals) == 0 {
		return nil, nil
	}

	created := make([]domain.Advice, 0, len(proposals))
	for _, proposal := range proposals {
		item := domain.Advice{
			ID:           e.newID(),
			StepRunID:    run.ID,
			Category:     proposal.Category,
			Risk:         proposal.Risk,
			Title:        proposal.Title,
			Description:  proposal.Description,
			EvidenceText: proposal.EvidenceText,
			Patch:        proposal.Patch.Clone(),
			PatchKind:    domain.PatchParams,
			CreatedAt:    e.now(),
		}
		if err := e.advice.CreateAdvice(ctx, item); err != nil {
			return created, fmt.Errorf("create advice: %w", err)
		}
		created = append(created, item)
	}

	e.logger.Info("advice generated",
		"step_run_id", run.ID,
		"step_type", string(run.StepType),
		"count", len(created),
	)
	return created, nil
}

func metricFloat(run domain.StepRun, key string) (float64, bool) {
	if run.Metrics == nil {
		return 0, false
	}
	return run.Metrics.Float(key)
}

func paramFloat(run domain.StepRun, key string, def float64) float64 {
	if run.Params != nil {
		if v, ok := run.Params.Float(key); ok {
			return v
		}
	}
	return def
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
