package advice

import (
	"fmt"
	"math"
	"strings"

	"github.com/cellforge-labs/cellforge-go/internal/domain"
)

// AnalyzeClustering inspects cluster separation and granularity. Method and
// resolution fall back from params to metrics, then to leiden and 0.8;
// silhouette and cluster count default to zero when the run never reported
// them.
func AnalyzeClustering(run domain.StepRun) []Proposal {
	var proposals []Proposal

	method := ""
	if v, ok := run.Params.String("method"); ok && v != "" {
		method = v
	} else if v := metricString(run, "method"); v != "" {
		method = v
	} else {
		method = "leiden"
	}

	resolution := 0.8
	if v, ok := run.Params.Float("resolution"); ok {
		resolution = v
	} else if v, ok := metricFloat(run, "resolution"); ok {
		resolution = v
	}

	silhouette, _ := metricFloat(run, "silhouette_score")
	nClusters, _ := metricFloat(run, "n_clusters")

	if silhouette > 0 && silhouette < 0.35 {
		suggested := math.Min(1.5, round2(resolution+0.2))
		proposals = append(proposals, Proposal{
			Category:     domain.AdviceParameterOptimization,
			Risk:         domain.RiskMedium,
			Title:        "Raise clustering resolution",
			Description:  fmt.Sprintf("A silhouette score of %.2f indicates poorly separated clusters; resolution %.2f splits mixed communities further.", silhouette, suggested),
			EvidenceText: fmt.Sprintf("silhouette_score=%.2f is below 0.35", silhouette),
			Patch: domain.Metadata{
				"resolution": suggested,
			},
		})
	}

	if nClusters > 20 && resolution >= 0.8 {
		suggested := math.Max(0.4, round2(resolution*0.8))
		proposals = append(proposals, Proposal{
			Category:     domain.AdviceParameterOptimization,
			Risk:         domain.RiskLow,
			Title:        "Lower clustering resolution",
			Description:  fmt.Sprintf("%.0f clusters at resolution %.2f is likely over-partitioned; resolution %.2f merges fragmented communities.", nClusters, resolution, suggested),
			EvidenceText: fmt.Sprintf("n_clusters=%.0f exceeds 20 at resolution=%.2f", nClusters, resolution),
			Patch: domain.Metadata{
				"resolution": suggested,
			},
		})
	}

	// An unreported silhouette counts as zero here, so louvain without the
	// metric still gets the switch suggestion.
	if strings.EqualFold(method, "louvain") && silhouette < 0.4 {
		proposals = append(proposals, Proposal{
			Category:     domain.AdviceMethodSuggestion,
			Risk:         domain.RiskLow,
			Title:        "Switch clustering to leiden",
			Description:  "Leiden guarantees well-connected communities and usually improves separation over louvain.",
			EvidenceText: fmt.Sprintf("method=%q with silhouette_score=%.2f below 0.4", method, silhouette),
			Patch: domain.Metadata{
				"method": "leiden",
			},
		})
	}

	return proposals
}
