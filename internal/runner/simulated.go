package runner

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/cellforge-labs/cellforge-go/internal/domain"
	"github.com/cellforge-labs/cellforge-go/internal/storage/objectstore"
)

// SimulatedRunners returns the full simulated pipeline. Each runner writes
// small synthetic outputs into the artifacts bucket and reports the metric
// shapes the advice analyzers consume, so the whole control plane is
// exercisable without a compute backend.
func SimulatedRunners(store objectstore.Store, bucket string) []Runner {
	return []Runner{
		&simQC{store: store, bucket: bucket},
		&simNormalization{store: store, bucket: bucket},
		&simHVG{store: store, bucket: bucket},
		&simPCA{store: store, bucket: bucket},
		&simUMAP{store: store, bucket: bucket},
		&simClustering{store: store, bucket: bucket},
	}
}

type simQC struct {
	store  objectstore.Store
	bucket string
}

func (r *simQC) StepType() domain.StepType { return domain.StepQC }

func (r *simQC) Run(ctx context.Context, in Input) (Result, error) {
	minGenes := paramFloat(in.Params, "min_genes", 200)
	maxGenes := paramFloat(in.Params, "max_genes", 5000)
	maxMito := paramFloat(in.Params, "max_mito", 0.1)

	metrics := domain.Metadata{
		"cells":        float64(10000),
		"genes":        float64(22000),
		"doublet_rate": 0.03,
		"high_mito":    0.08,
	}
	evidence := domain.Metadata{
		"filters": map[string]any{
			"min_genes": minGenes,
			"max_genes": maxGenes,
			"max_mito":  maxMito,
		},
		"input_uri": in.DataURI,
	}

	artifacts, err := writeStandardOutputs(ctx, r.store, r.bucket, in, "qc", metrics)
	if err != nil {
		return Result{}, err
	}
	return Result{Metrics: metrics, Evidence: evidence, Artifacts: artifacts}, nil
}

type simNormalization struct {
	store  objectstore.Store
	bucket string
}

func (r *simNormalization) StepType() domain.StepType { return domain.StepNormalization }

func (r *simNormalization) Run(ctx context.Context, in Input) (Result, error) {
	targetSum := paramFloat(in.Params, "target_sum", 10000)

	metrics := domain.Metadata{
		"cells":      float64(10000),
		"target_sum": targetSum,
		"log1p":      true,
	}
	evidence := domain.Metadata{"input_uri": in.DataURI}

	artifacts, err := writeStandardOutputs(ctx, r.store, r.bucket, in, "normalization", metrics)
	if err != nil {
		return Result{}, err
	}
	return Result{Metrics: metrics, Evidence: evidence, Artifacts: artifacts}, nil
}

type simHVG struct {
	store  objectstore.Store
	bucket string
}

func (r *simHVG) StepType() domain.StepType { return domain.StepHVG }

func (r *simHVG) Run(ctx context.Context, in Input) (Result, error) {
	nTopGenes := paramFloat(in.Params, "n_top_genes", 2000)
	method := paramString(in.Params, "method", "seurat_v3")

	metrics := domain.Metadata{
		"n_hvgs":         nTopGenes,
		"method":         method,
		"variance_ratio": 0.45,
	}
	evidence := domain.Metadata{"input_uri": in.DataURI}

	artifacts, err := writeStandardOutputs(ctx, r.store, r.bucket, in, "hvg", metrics)
	if err != nil {
		return Result{}, err
	}
	return Result{Metrics: metrics, Evidence: evidence, Artifacts: artifacts}, nil
}

type simPCA struct {
	store  objectstore.Store
	bucket string
}

func (r *simPCA) StepType() domain.StepType { return domain.StepPCA }

func (r *simPCA) Run(ctx context.Context, in Input) (Result, error) {
	nComponents := paramFloat(in.Params, "n_components", paramFloat(in.Params, "n_pcs", 30))

	metrics := domain.Metadata{
		"n_components":                 nComponents,
		"explained_variance_ratio_sum": 0.72,
	}
	evidence := domain.Metadata{"input_uri": in.DataURI}

	artifacts, err := writeStandardOutputs(ctx, r.store, r.bucket, in, "pca", metrics)
	if err != nil {
		return Result{}, err
	}
	return Result{Metrics: metrics, Evidence: evidence, Artifacts: artifacts}, nil
}

type simUMAP struct {
	store  objectstore.Store
	bucket string
}

func (r *simUMAP) StepType() domain.StepType { return domain.StepUMAP }

func (r *simUMAP) Run(ctx context.Context, in Input) (Result, error) {
	nNeighbors := paramFloat(in.Params, "n_neighbors", 15)
	minDist := paramFloat(in.Params, "min_dist", 0.5)

	metrics := domain.Metadata{
		"n_neighbors":                   nNeighbors,
		"min_dist":                      minDist,
		"global_structure_preservation": 0.65,
		"local_structure_preservation":  0.82,
	}
	evidence := domain.Metadata{"input_uri": in.DataURI}

	artifacts, err := writeStandardOutputs(ctx, r.store, r.bucket, in, "umap", metrics)
	if err != nil {
		return Result{}, err
	}

	plot, err := writeObject(ctx, r.store, r.bucket, in, "umap_embedding.png", domain.ArtifactImage, []byte("PNG\numap embedding placeholder\n"))
	if err != nil {
		return Result{}, err
	}
	artifacts = append(artifacts, plot)
	return Result{Metrics: metrics, Evidence: evidence, Artifacts: artifacts}, nil
}

type simClustering struct {
	store  objectstore.Store
	bucket string
}

func (r *simClustering) StepType() domain.StepType { return domain.StepClustering }

func (r *simClustering) Run(ctx context.Context, in Input) (Result, error) {
	method := paramString(in.Params, "method", "leiden")
	resolution := paramFloat(in.Params, "resolution", 0.8)

	metrics := domain.Metadata{
		"method":           method,
		"resolution":       resolution,
		"n_clusters":       float64(24),
		"silhouette_score": 0.31,
	}
	evidence := domain.Metadata{"input_uri": in.DataURI}

	artifacts, err := writeStandardOutputs(ctx, r.store, r.bucket, in, "clustering", metrics)
	if err != nil {
		return Result{}, err
	}

	assignments, err := writeObject(ctx, r.store, r.bucket, in, "cluster_assignments.csv", domain.ArtifactTabular, []byte("cell_id,cluster\ncell-0,0\ncell-1,3\n"))
	if err != nil {
		return Result{}, err
	}
	artifacts = append(artifacts, assignments)
	return Result{Metrics: metrics, Evidence: evidence, Artifacts: artifacts}, nil
}

// writeStandardOutputs emits the pair every simulated step produces: the
// processed matrix and a structured metrics report.
func writeStandardOutputs(ctx context.Context, store objectstore.Store, bucket string, in Input, stage string, metrics domain.Metadata) ([]ArtifactSpec, error) {
	matrix, err := writeObject(ctx, store, bucket, in, stage+"_matrix.h5ad", domain.ArtifactProcessedData, []byte("H5AD\nsimulated "+stage+" matrix\n"))
	if err != nil {
		return nil, err
	}

	report, err := json.Marshal(metrics)
	if err != nil {
		return nil, fmt.Errorf("marshal %s report: %w", stage, err)
	}
	reportSpec, err := writeObject(ctx, store, bucket, in, stage+"_report.json", domain.ArtifactStructured, report)
	if err != nil {
		return nil, err
	}
	return []ArtifactSpec{matrix, reportSpec}, nil
}

func writeObject(ctx context.Context, store objectstore.Store, bucket string, in Input, name string, artifactType domain.ArtifactType, body []byte) (ArtifactSpec, error) {
	key := fmt.Sprintf("sessions/%s/runs/%s/%s", in.SessionID, in.StepRunID, name)
	if store != nil {
		if err := store.Put(ctx, bucket, key, bytes.NewReader(body), int64(len(body)), "application/octet-stream"); err != nil {
			return ArtifactSpec{}, fmt.Errorf("put %s: %w", key, err)
		}
	}
	sum := sha256.Sum256(body)
	return ArtifactSpec{
		Name:      name,
		Type:      artifactType,
		ObjectKey: key,
		SizeBytes: int64(len(body)),
		SHA256:    hex.EncodeToString(sum[:]),
	}, nil
}

func paramFloat(params domain.Metadata, key string, def float64) float64 {
	if v, ok := params.Float(key); ok {
		return v
	}
	return def
}

func paramString(params domain.Metadata, key string, def string) string {
	if v, ok := params.String(key); ok && v != "" {
		return v
	}
	return def
}
