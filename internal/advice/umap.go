package advice

import (
	"fmt"
	"math"

	"github.com/cellforge-labs/cellforge-go/internal/domain"
)

// AnalyzeUMAP trades off global and local structure preservation against
// the neighborhood parameters.
func AnalyzeUMAP(run domain.StepRun) []Proposal {
	var proposals []Proposal

	nNeighbors := paramFloat(run, "n_neighbors", 15)
	minDist := paramFloat(run, "min_dist", 0.5)
	gsp, hasGSP := metricFloat(run, "global_structure_preservation")
	lsp, hasLSP := metricFloat(run, "local_structure_preservation")

	if hasGSP && gsp > 0 && gsp < 0.5 {
		suggested := math.Min(50, math.Max(nNeighbors+10, 20))
		proposals = append(proposals, Proposal{
			Category:     domain.AdviceParameterOptimization,
			Risk:         domain.RiskMedium,
			Title:        "Increase UMAP neighbors",
			Description:  fmt.Sprintf("Global structure preservation of %.2f is weak; raising n_neighbors to %.0f favors the global layout.", gsp, suggested),
			EvidenceText: fmt.Sprintf("global_structure_preservation=%.2f is below 0.5", gsp),
			Patch: domain.Metadata{
				"n_neighbors": suggested,
			},
		})
	}

	if hasLSP && lsp > 0 && lsp < 0.6 {
		suggested := math.Max(0.05, minDist*0.5)
		proposals = append(proposals, Proposal{
			Category:     domain.AdviceParameterOptimization,
			Risk:         domain.RiskLow,
			Title:        "Lower UMAP min_dist",
			Description:  fmt.Sprintf("Local structure preservation of %.2f suggests over-spread clusters; lowering min_dist to %.2f tightens local neighborhoods.", lsp, suggested),
			EvidenceText: fmt.Sprintf("local_structure_preservation=%.2f is below 0.6", lsp),
			Patch: domain.Metadata{
				"min_dist": suggested,
			},
		})
	}

	if hasGSP && hasLSP && gsp >= 0.5 && lsp >= 0.8 && nNeighbors > 20 {
		suggested := math.Max(15, math.Trunc(nNeighbors*0.8))
		proposals = append(proposals, Proposal{
			Category:     domain.AdviceParameterOptimization,
			Risk:         domain.RiskLow,
			Title:        "Reduce UMAP neighbors",
			Description:  fmt.Sprintf("Both structure scores are healthy (global %.2f, local %.2f); fewer neighbors (%.0f) compute faster with similar quality.", gsp, lsp, suggested),
			EvidenceText: fmt.Sprintf("global_structure_preservation=%.2f and local_structure_preservation=%.2f with n_neighbors=%.0f", gsp, lsp, nNeighbors),
			Patch: domain.Metadata{
				"n_neighbors": suggested,
			},
		})
	}

	return proposals
}
