package domain

import "testing"

func TestPatchKindApplicable(t *testing.T) {
	if !PatchParams.Applicable() {
		t.Fatalf("params patch should be applicable")
	}
	if !PatchBoth.Applicable() {
		t.Fatalf("both patch should be applicable")
	}
	if PatchCode.Applicable() {
		t.Fatalf("code patch should not be applicable")
	}
}

func TestAdviceRollbackParams(t *testing.T) {
	a := Advice{}
	if _, ok := a.RollbackParams(); ok {
		t.Fatalf("nil rollback data should yield no params")
	}

	a.RollbackData = Metadata{RollbackParamsKey: Metadata{"max_mito": 0.1}}
	params, ok := a.RollbackParams()
	if !ok {
		t.Fatalf("expected rollback params")
	}
	if v, _ := params.Float("max_mito"); v != 0.1 {
		t.Fatalf("max_mito=%v, want 0.1", v)
	}

	// A snapshot decoded from JSON arrives as map[string]any.
	a.RollbackData = Metadata{RollbackParamsKey: map[string]any{"min_genes": 200.0}}
	params, ok = a.RollbackParams()
	if !ok {
		t.Fatalf("expected rollback params from decoded map")
	}
	if v, _ := params.Float("min_genes"); v != 200 {
		t.Fatalf("min_genes=%v, want 200", v)
	}

	a.RollbackData = Metadata{RollbackParamsKey: "garbage"}
	if _, ok := a.RollbackParams(); ok {
		t.Fatalf("non-map snapshot should yield no params")
	}
}

func TestAdviceValidate(t *testing.T) {
	a := Advice{
		ID:           "adv-1",
		StepRunID:    "run-1",
		Category:     AdviceParameterOptimization,
		Risk:         RiskMedium,
		Title:        "Lower max_mito",
		EvidenceText: "high_mito = 0.18 exceeds 0.15",
		PatchKind:    PatchParams,
	}
	if err := a.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}

	bad := a
	bad.Category = "vibes"
	if err := bad.Validate(); err == nil {
		t.Fatalf("expected error for bad category")
	}
	bad = a
	bad.Risk = "extreme"
	if err := bad.Validate(); err == nil {
		t.Fatalf("expected error for bad risk")
	}
	bad = a
	bad.EvidenceText = " "
	if err := bad.Validate(); err == nil {
		t.Fatalf("expected error for missing evidence")
	}
}

func TestNormalizeArtifactType(t *testing.T) {
	cases := map[string]ArtifactType{
		"h5ad":           ArtifactProcessedData,
		"processed-data": ArtifactProcessedData,
		"csv":            ArtifactTabular,
		"png":            ArtifactImage,
		"pdf":            ArtifactDocument,
		"html":           ArtifactDocument,
		"json":           ArtifactStructured,
		"parquet":        "",
	}
	for in, want := range cases {
		if got := NormalizeArtifactType(in); got != want {
			t.Fatalf("NormalizeArtifactType(%q)=%q, want %q", in, got, want)
		}
	}
}

func TestMetadataClone(t *testing.T) {
	orig := Metadata{"resolution": 0.8}
	cp := orig.Clone()
	cp["resolution"] = 1.2
	if v, _ := orig.Float("resolution"); v != 0.8 {
		t.Fatalf("clone mutated the original: %v", v)
	}
	if got := Metadata(nil).Clone(); got == nil {
		t.Fatalf("cloning nil should yield an empty map")
	}
}
