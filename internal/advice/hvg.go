package advice

import (
	"fmt"
	"math"
	"strings"

	"github.com/cellforge-labs/cellforge-go/internal/domain"
)

// AnalyzeHVG inspects highly-variable-gene selection metrics.
func AnalyzeHVG(run domain.StepRun) []Proposal {
	var proposals []Proposal

	// A run that reported n_hvgs=0 carries no usable count, same as a run
	// that never reported it: the count-based rules stay quiet.
	nHVGs, _ := metricFloat(run, "n_hvgs")

	if nHVGs != 0 && nHVGs < 1000 {
		suggested := math.Max(1000, math.Min(3000, nHVGs*2))
		proposals = append(proposals, Proposal{
			Category:     domain.AdviceParameterOptimization,
			Risk:         domain.RiskMedium,
			Title:        "Select more variable genes",
			Description:  fmt.Sprintf("Only %.0f highly variable genes were selected; raising n_top_genes to %.0f preserves more biological signal.", nHVGs, suggested),
			EvidenceText: fmt.Sprintf("n_hvgs=%.0f is below 1000", nHVGs),
			Patch: domain.Metadata{
				"n_top_genes": suggested,
				"method":      "seurat_v3",
			},
		})
	}

	if nHVGs > 5000 {
		proposals = append(proposals, Proposal{
			Category:     domain.AdviceParameterOptimization,
			Risk:         domain.RiskLow,
			Title:        "Reduce variable gene count",
			Description:  fmt.Sprintf("%.0f highly variable genes inflate noise and memory use; 2000 is a common working set.", nHVGs),
			EvidenceText: fmt.Sprintf("n_hvgs=%.0f exceeds 5000", nHVGs),
			Patch: domain.Metadata{
				"n_top_genes": float64(2000),
			},
		})
	}

	method := metricString(run, "method")
	if method == "" {
		if v, ok := run.Params.String("method"); ok {
			method = v
		}
	}
	if strings.EqualFold(method, "cell_ranger") && nHVGs != 0 {
		proposals = append(proposals, Proposal{
			Category:     domain.AdviceMethodSuggestion,
			Risk:         domain.RiskLow,
			Title:        "Switch HVG method to seurat_v3",
			Description:  "The cell_ranger flavor underperforms on UMI data; seurat_v3 models count variance directly.",
			EvidenceText: fmt.Sprintf("method=%q with n_hvgs=%.0f", method, nHVGs),
			Patch: domain.Metadata{
				"method": "seurat_v3",
			},
		})
	}

	return proposals
}

func metricString(run domain.StepRun, key string) string {
	if run.Metrics == nil {
		return ""
	}
	v, _ := run.Metrics.String(key)
	return v
}
