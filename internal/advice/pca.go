package advice

import (
	"fmt"
	"math"

	"github.com/cellforge-labs/cellforge-go/internal/domain"
)

// AnalyzePCA inspects explained variance against the number of components.
// The component count is read from params (n_components, falling back to
// the legacy n_pcs spelling) with 30 as the default.
func AnalyzePCA(run domain.StepRun) []Proposal {
	var proposals []Proposal

	nComponents := paramFloat(run, "n_components", paramFloat(run, "n_pcs", 30))
	evr, hasEVR := metricFloat(run, "explained_variance_ratio_sum")
	if !hasEVR {
		return nil
	}

	if evr > 0 && evr < 0.6 {
		suggested := math.Min(50, nComponents+10)
		proposals = append(proposals, Proposal{
			Category:     domain.AdviceParameterOptimization,
			Risk:         domain.RiskMedium,
			Title:        "Increase PCA components",
			Description:  fmt.Sprintf("The first %.0f components explain only %.2f of variance; %.0f components capture more structure.", nComponents, evr, suggested),
			EvidenceText: fmt.Sprintf("explained_variance_ratio_sum=%.2f is below 0.6 at n_components=%.0f", evr, nComponents),
			Patch: domain.Metadata{
				"n_components": suggested,
				"n_pcs":        suggested,
			},
		})
	}

	if evr > 0.85 && nComponents > 40 {
		suggested := math.Max(20, math.Trunc(nComponents*0.7))
		proposals = append(proposals, Proposal{
			Category:     domain.AdviceParameterOptimization,
			Risk:         domain.RiskLow,
			Title:        "Reduce PCA components",
			Description:  fmt.Sprintf("%.2f of variance is already explained; trimming to %.0f components speeds up the neighbor graph without losing signal.", evr, suggested),
			EvidenceText: fmt.Sprintf("explained_variance_ratio_sum=%.2f exceeds 0.85 at n_components=%.0f", evr, nComponents),
			Patch: domain.Metadata{
				"n_components": suggested,
				"n_pcs":        suggested,
			},
		})
	}

	if evr >= 0.6 && evr <= 0.75 && nComponents <= 25 {
		proposals = append(proposals, Proposal{
			Category:     domain.AdviceParameterOptimization,
			Risk:         domain.RiskLow,
			Title:        "Try 35 PCA components",
			Description:  fmt.Sprintf("Variance coverage of %.2f at %.0f components sits in a borderline band; 35 components is worth comparing.", evr, nComponents),
			EvidenceText: fmt.Sprintf("explained_variance_ratio_sum=%.2f is between 0.6 and 0.75 at n_components=%.0f", evr, nComponents),
			Patch: domain.Metadata{
				"n_components": float64(35),
				"n_pcs":        float64(35),
			},
		})
	}

	return proposals
}
