package stepconfig

import (
	"strings"
	"testing"

	"github.com/cellforge-labs/cellforge-go/internal/domain"
)

const validCatalog = `
schema: cellforge.steps.v1
steps:
  - id: step-qc
    name: Quality Control
    type: qc
    runner_image: cellforge/runner-scanpy
    runner_command: run_qc
    default_params:
      min_genes: 200
      max_genes: 5000
      max_mito: 0.1
  - id: step-clustering
    name: Clustering
    type: cluster
    default_params:
      method: leiden
      resolution: 0.8
`

func TestParseCatalog(t *testing.T) {
	catalog, err := ParseCatalog([]byte(validCatalog))
	if err != nil {
		t.Fatalf("ParseCatalog: %v", err)
	}
	if len(catalog.Steps) != 2 {
		t.Fatalf("steps=%d, want 2", len(catalog.Steps))
	}

	steps := catalog.Domain()
	if steps[0].Type != domain.StepQC {
		t.Fatalf("type=%s, want qc", steps[0].Type)
	}
	if v, _ := steps[0].DefaultParams.Float("min_genes"); v != 200 {
		t.Fatalf("min_genes=%v, want 200", v)
	}
	// The legacy spelling normalizes at conversion time.
	if steps[1].Type != domain.StepClustering {
		t.Fatalf("type=%s, want clustering", steps[1].Type)
	}
}

func TestParseCatalogRejectsBadSchema(t *testing.T) {
	bad := strings.Replace(validCatalog, "cellforge.steps.v1", "cellforge.steps.v2", 1)
	if _, err := ParseCatalog([]byte(bad)); err == nil {
		t.Fatalf("expected schema error")
	}
}

func TestParseCatalogRejectsDuplicateType(t *testing.T) {
	dup := validCatalog + `
  - id: step-clustering-2
    name: Clustering Again
    type: clustering
`
	if _, err := ParseCatalog([]byte(dup)); err == nil {
		t.Fatalf("expected duplicate type error")
	}
}

func TestParseCatalogRejectsUnknownType(t *testing.T) {
	bad := strings.Replace(validCatalog, "type: qc", "type: velocity", 1)
	if _, err := ParseCatalog([]byte(bad)); err == nil {
		t.Fatalf("expected unsupported type error")
	}
}

func TestParseCatalogRejectsEmptySteps(t *testing.T) {
	if _, err := ParseCatalog([]byte("schema: cellforge.steps.v1\nsteps: []\n")); err == nil {
		t.Fatalf("expected empty steps error")
	}
}
