package advice

import (
	"fmt"
	"math"

	"github.com/cellforge-labs/cellforge-go/internal/domain"
)

// AnalyzeQC inspects quality control metrics. Thresholds are strict: a
// mito fraction of exactly 0.15 does not fire.
func AnalyzeQC(run domain.StepRun) []Proposal {
	var proposals []Proposal

	if highMito, ok := metricFloat(run, "high_mito"); ok && highMito > 0.15 {
		suggested := math.Max(0.05, highMito*0.8)
		proposals = append(proposals, Proposal{
			Category:     domain.AdviceParameterOptimization,
			Risk:         domain.RiskMedium,
			Title:        "Tighten mitochondrial cutoff",
			Description:  fmt.Sprintf("The fraction of high-mito cells is %.3f; lowering max_mito to %.3f removes more stressed or dying cells.", highMito, suggested),
			EvidenceText: fmt.Sprintf("high_mito=%.3f exceeds 0.15", highMito),
			Patch: domain.Metadata{
				"max_mito": suggested,
			},
		})
	}

	if doubletRate, ok := metricFloat(run, "doublet_rate"); ok && doubletRate > 0.05 {
		proposals = append(proposals, Proposal{
			Category:     domain.AdviceQualityImprovement,
			Risk:         domain.RiskHigh,
			Title:        "Enable doublet filtering",
			Description:  fmt.Sprintf("The estimated doublet rate is %.3f; enabling the doublet filter at threshold 0.8 removes likely multiplets before downstream steps.", doubletRate),
			EvidenceText: fmt.Sprintf("doublet_rate=%.3f exceeds 0.05", doubletRate),
			Patch: domain.Metadata{
				"enable_doublet_filter": true,
				"doublet_threshold":     0.8,
			},
		})
	}

	if cells, ok := metricFloat(run, "cells"); ok && cells < 1000 {
		minGenes := paramFloat(run, "min_genes", 200)
		maxGenes := paramFloat(run, "max_genes", 5000)
		proposals = append(proposals, Proposal{
			Category:     domain.AdviceParameterOptimization,
			Risk:         domain.RiskMedium,
			Title:        "Relax gene-count filters",
			Description:  fmt.Sprintf("Only %.0f cells survived filtering; widening the gene-count window keeps more cells for downstream analysis.", cells),
			EvidenceText: fmt.Sprintf("cells=%.0f is below 1000", cells),
			Patch: domain.Metadata{
				"min_genes": math.Max(100, minGenes-50),
				"max_genes": maxGenes + 1000,
			},
		})
	}

	return proposals
}
