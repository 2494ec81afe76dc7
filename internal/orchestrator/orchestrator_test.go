package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/cellforge-labs/cellforge-go/internal/advice"
	"github.com/cellforge-labs/cellforge-go/internal/domain"
	"github.com/cellforge-labs/cellforge-go/internal/progress"
	"github.com/cellforge-labs/cellforge-go/internal/repo"
	"github.com/cellforge-labs/cellforge-go/internal/runner"
	"github.com/cellforge-labs/cellforge-go/internal/storage/objectstore"
)

type memRuns struct {
	runs map[string]domain.StepRun
	// artifacts mirrors the artifacts table, keyed by step run id.
	artifacts map[string][]domain.Artifact
}

func (s *memRuns) CreateStepRun(_ context.Context, run domain.StepRun) error {
	s.runs[run.ID] = run
	return nil
}

func (s *memRuns) GetStepRun(_ context.Context, id string) (domain.StepRun, error) {
	run, ok := s.runs[id]
	if !ok {
		return domain.StepRun{}, repo.ErrNotFound
	}
	return run, nil
}

func (s *memRuns) ListStepRuns(context.Context, repo.StepRunFilter) ([]domain.StepRun, error) {
	return nil, nil
}

func (s *memRuns) LatestStepRun(context.Context, string) (domain.StepRun, error) {
	return domain.StepRun{}, repo.ErrNotFound
}

// LatestSucceededWithArtifact applies the same selection as the SQL
// join: succeeded runs in the session, the current run excluded, newest
// by created_at with id as the tie-break, artifacts filtered by type.
func (s *memRuns) LatestSucceededWithArtifact(_ context.Context, sessionID, excludeRunID string, artifactType domain.ArtifactType) (domain.StepRun, domain.Artifact, error) {
	var bestRun domain.StepRun
	var bestArtifact domain.Artifact
	found := false
	for _, run := range s.runs {
		if run.SessionID != sessionID || run.ID == excludeRunID || run.Status != domain.RunSucceeded {
			continue
		}
		for _, artifact := range s.artifacts[run.ID] {
			if artifact.Type != artifactType {
				continue
			}
			if !found ||
				run.CreatedAt.After(bestRun.CreatedAt) ||
				(run.CreatedAt.Equal(bestRun.CreatedAt) && run.ID > bestRun.ID) ||
				(run.ID == bestRun.ID && (artifact.CreatedAt.After(bestArtifact.CreatedAt) ||
					(artifact.CreatedAt.Equal(bestArtifact.CreatedAt) && artifact.ID > bestArtifact.ID))) {
				bestRun = run
				bestArtifact = artifact
				found = true
			}
		}
	}
	if !found {
		return domain.StepRun{}, domain.Artifact{}, repo.ErrNotFound
	}
	return bestRun, bestArtifact, nil
}

func (s *memRuns) MarkRunning(_ context.Context, id string, startedAt time.Time) (bool, error) {
	run, ok := s.runs[id]
	if !ok {
		return false, repo.ErrNotFound
	}
	if run.Status != domain.RunPending {
		return false, nil
	}
	run.Status = domain.RunRunning
	run.StartedAt = &startedAt
	s.runs[id] = run
	return true, nil
}

func (s *memRuns) FinishStepRun(_ context.Context, id string, status domain.RunStatus, metrics, evidence domain.Metadata, finishedAt time.Time) error {
	run, ok := s.runs[id]
	if !ok {
		return repo.ErrNotFound
	}
	if run.Status != domain.RunRunning {
		return fmt.Errorf("step run %s is not RUNNING", id)
	}
	run.Status = status
	run.Metrics = metrics
	run.Evidence = evidence
	run.FinishedAt = &finishedAt
	s.runs[id] = run
	return nil
}

func (s *memRuns) UpdateStepRunParams(_ context.Context, id string, params domain.Metadata) error {
	run, ok := s.runs[id]
	if !ok {
		return repo.ErrNotFound
	}
	run.Params = params
	s.runs[id] = run
	return nil
}

func (s *memRuns) SetPinned(context.Context, string, bool) error { return nil }

type memArtifacts struct {
	created []domain.Artifact
	err     error
}

func (s *memArtifacts) CreateArtifact(_ context.Context, artifact domain.Artifact) error {
	if s.err != nil {
		return s.err
	}
	s.created = append(s.created, artifact)
	return nil
}

func (s *memArtifacts) GetArtifact(context.Context, string) (domain.Artifact, error) {
	return domain.Artifact{}, repo.ErrNotFound
}

func (s *memArtifacts) ListArtifacts(context.Context, repo.ArtifactFilter) ([]domain.Artifact, error) {
	return nil, nil
}

type memSessions struct {
	sessions map[string]domain.Session
	touched  []string
}

func (s *memSessions) CreateSession(_ context.Context, session domain.Session) error {
	s.sessions[session.ID] = session
	return nil
}

func (s *memSessions) GetSession(_ context.Context, id string) (domain.Session, error) {
	session, ok := s.sessions[id]
	if !ok {
		return domain.Session{}, repo.ErrNotFound
	}
	return session, nil
}

func (s *memSessions) ListSessions(context.Context, repo.SessionFilter) ([]domain.Session, error) {
	return nil, nil
}

func (s *memSessions) UpdateSessionStatus(context.Context, string, domain.SessionStatus) error {
	return nil
}

func (s *memSessions) TouchSession(_ context.Context, id string, _ time.Time) error {
	s.touched = append(s.touched, id)
	return nil
}

type memDatasets struct {
	datasets map[string]domain.Dataset
}

func (s *memDatasets) CreateDataset(_ context.Context, dataset domain.Dataset) error {
	s.datasets[dataset.ID] = dataset
	return nil
}

func (s *memDatasets) GetDataset(_ context.Context, id string) (domain.Dataset, error) {
	dataset, ok := s.datasets[id]
	if !ok {
		return domain.Dataset{}, repo.ErrNotFound
	}
	return dataset, nil
}

func (s *memDatasets) ListDatasets(context.Context, repo.DatasetFilter) ([]domain.Dataset, error) {
	return nil, nil
}

type memAdvice struct {
	created []domain.Advice
	err     error
}

func (s *memAdvice) CreateAdvice(_ context.Context, advice domain.Advice) error {
	if s.err != nil {
		return s.err
	}
	s.created = append(s.created, advice)
	return nil
}

func (s *memAdvice) GetAdvice(context.Context, string) (domain.Advice, error) {
	return domain.Advice{}, repo.ErrNotFound
}

func (s *memAdvice) ListAdvice(context.Context, repo.AdviceFilter) ([]domain.Advice, error) {
	return nil, nil
}

func (s *memAdvice) MarkApplied(context.Context, string, string, time.Time, domain.Metadata) error {
	return nil
}

func (s *memAdvice) ClearApplied(context.Context, string) error { return nil }

// fakeStore stats objects out of a fixed size table; unknown keys fail.
type fakeStore struct {
	sizes map[string]int64
}

func (s *fakeStore) Put(context.Context, string, string, io.Reader, int64, string) error {
	return nil
}

func (s *fakeStore) Get(context.Context, string, string) (io.ReadCloser, objectstore.ObjectInfo, error) {
	return nil, objectstore.ObjectInfo{}, errors.New("not implemented")
}

func (s *fakeStore) Stat(_ context.Context, _, key string) (objectstore.ObjectInfo, error) {
	size, ok := s.sizes[key]
	if !ok {
		return objectstore.ObjectInfo{}, errors.New("no such object")
	}
	return objectstore.ObjectInfo{Key: key, Size: size}, nil
}

func (s *fakeStore) Delete(context.Context, string, string) error { return nil }

type scriptedRunner struct {
	stepType domain.StepType
	result   runner.Result
	err      error
	lastIn   runner.Input
}

func (r *scriptedRunner) StepType() domain.StepType { return r.stepType }

func (r *scriptedRunner) Run(_ context.Context, in runner.Input) (runner.Result, error) {
	r.lastIn = in
	if r.err != nil {
		return runner.Result{}, r.err
	}
	return r.result, nil
}

type fixture struct {
	orch      *Orchestrator
	runs      *memRuns
	artifacts *memArtifacts
	sessions  *memSessions
	datasets  *memDatasets
	advice    *memAdvice
	store     *fakeStore
	notifier  *progress.Notifier
}

func newFixture(t *testing.T, runners ...runner.Runner) *fixture {
	t.Helper()
	f := &fixture{
		runs:      &memRuns{runs: map[string]domain.StepRun{}, artifacts: map[string][]domain.Artifact{}},
		artifacts: &memArtifacts{},
		sessions:  &memSessions{sessions: map[string]domain.Session{}},
		datasets:  &memDatasets{datasets: map[string]domain.Dataset{}},
		advice:    &memAdvice{},
		store:     &fakeStore{sizes: map[string]int64{}},
		notifier:  progress.NewNotifier(slog.Default()),
	}
	f.orch = New(Deps{
		Runs:      f.runs,
		Artifacts: f.artifacts,
		Sessions:  f.sessions,
		Datasets:  f.datasets,
		Registry:  runner.NewRegistry(runners...),
		Engine:    advice.NewEngine(f.advice, slog.Default()),
		Store:     f.store,
		Bucket:    "cellforge-artifacts",
		Notifier:  f.notifier,
		Logger:    slog.Default(),
	})

	f.datasets.datasets["ds-1"] = domain.Dataset{
		ID:        "ds-1",
		ProjectID: "proj-1",
		Name:      "pbmc3k",
		Type:      domain.DatasetSingleCell,
		RawURI:    "datasets/ds-1/raw.h5ad",
	}
	f.sessions.sessions["sess-1"] = domain.Session{
		ID:        "sess-1",
		DatasetID: "ds-1",
		Name:      "baseline",
		Status:    domain.SessionRunning,
	}
	return f
}

func (f *fixture) seedRun(id string, stepType domain.StepType, params domain.Metadata) {
	f.runs.runs[id] = domain.StepRun{
		ID:        id,
		SessionID: "sess-1",
		StepID:    "step-" + string(stepType),
		StepType:  stepType,
		Status:    domain.RunPending,
		Params:    params,
	}
}

func (f *fixture) seedSucceeded(id string, createdAt time.Time, artifactType domain.ArtifactType, objectKey string) {
	f.runs.runs[id] = domain.StepRun{
		ID:        id,
		SessionID: "sess-1",
		StepID:    "step-" + id,
		StepType:  domain.StepQC,
		Status:    domain.RunSucceeded,
		CreatedAt: createdAt,
	}
	f.runs.artifacts[id] = append(f.runs.artifacts[id], domain.Artifact{
		ID:        "art-" + id,
		StepRunID: id,
		Name:      "matrix.h5ad",
		Type:      artifactType,
		ObjectKey: objectKey,
		CreatedAt: createdAt,
	})
}

func drain(ch <-chan progress.Event) []progress.Event {
	var events []progress.Event
	for {
		select {
		case ev := <-ch:
			events = append(events, ev)
		default:
			return events
		}
	}
}

func TestExecuteSuccessPath(t *testing.T) {
	qc := &scriptedRunner{
		stepType: domain.StepQC,
		result: runner.Result{
			Metrics:  domain.Metadata{"cells": 10000.0, "pct_counts_mt": 8.0},
			Evidence: domain.Metadata{"filters": "min_genes>=200"},
			Artifacts: []runner.ArtifactSpec{
				{Name: "matrix.h5ad", Type: "h5ad", ObjectKey: "sessions/sess-1/runs/run-1/matrix.h5ad"},
			},
		},
	}
	f := newFixture(t, qc)
	f.seedRun("run-1", domain.StepQC, domain.Metadata{"min_genes": 200.0})
	f.store.sizes["sessions/sess-1/runs/run-1/matrix.h5ad"] = 4096

	events, cancel := f.notifier.Subscribe(progress.TaskTopic("run-1"))
	defer cancel()

	if err := f.orch.Execute(context.Background(), "run-1"); err != nil {
		t.Fatalf("Execute: %v", err)
	}

	run := f.runs.runs["run-1"]
	if run.Status != domain.RunSucceeded {
		t.Fatalf("status=%s, want SUCCEEDED", run.Status)
	}
	if run.StartedAt == nil || run.FinishedAt == nil {
		t.Fatalf("timestamps not set: %+v", run)
	}
	if v, _ := run.Metrics.Float("high_mito"); v != 0.08 {
		t.Fatalf("high_mito=%v, want 0.08 derived from pct_counts_mt", v)
	}
	if qc.lastIn.DataURI != "datasets/ds-1/raw.h5ad" {
		t.Fatalf("qc input=%q, want raw dataset object", qc.lastIn.DataURI)
	}

	if len(f.artifacts.created) != 1 {
		t.Fatalf("expected 1 artifact, got %d", len(f.artifacts.created))
	}
	artifact := f.artifacts.created[0]
	if artifact.Type != domain.ArtifactProcessedData {
		t.Fatalf("artifact type=%s, want processed-data", artifact.Type)
	}
	if artifact.SizeBytes != 4096 {
		t.Fatalf("artifact size=%d, want 4096", artifact.SizeBytes)
	}

	if len(f.sessions.touched) != 1 || f.sessions.touched[0] != "sess-1" {
		t.Fatalf("session not touched: %v", f.sessions.touched)
	}

	phases := []string{}
	for _, ev := range drain(events) {
		phases = append(phases, ev.Phase)
	}
	want := []string{progress.PhaseStart, progress.PhaseSaving, progress.PhaseAdvice, progress.PhaseDone}
	if len(phases) != len(want) {
		t.Fatalf("phases=%v, want %v", phases, want)
	}
	for i := range want {
		if phases[i] != want[i] {
			t.Fatalf("phase[%d]=%s, want %s", i, phases[i], want[i])
		}
	}
}

func TestExecuteRedeliveryIsNoop(t *testing.T) {
	f := newFixture(t, &scriptedRunner{stepType: domain.StepQC})
	f.seedRun("run-1", domain.StepQC, nil)
	run := f.runs.runs["run-1"]
	run.Status = domain.RunSucceeded
	f.runs.runs["run-1"] = run

	events, cancel := f.notifier.Subscribe(progress.TaskTopic("run-1"))
	defer cancel()

	if err := f.orch.Execute(context.Background(), "run-1"); err != nil {
		t.Fatalf("redelivered execute should be a no-op, got %v", err)
	}
	if got := f.runs.runs["run-1"].Status; got != domain.RunSucceeded {
		t.Fatalf("status=%s, want SUCCEEDED untouched", got)
	}
	if evs := drain(events); len(evs) != 0 {
		t.Fatalf("no events expected on redelivery, got %d", len(evs))
	}
}

func TestExecuteRunnerErrorPersistsFailure(t *testing.T) {
	f := newFixture(t, &scriptedRunner{stepType: domain.StepQC, err: errors.New("scanpy crashed")})
	f.seedRun("run-1", domain.StepQC, nil)

	events, cancel := f.notifier.Subscribe(progress.TaskTopic("run-1"))
	defer cancel()

	err := f.orch.Execute(context.Background(), "run-1")
	var failure *RunFailure
	if !errors.As(err, &failure) {
		t.Fatalf("expected RunFailure, got %v", err)
	}
	if failure.StepRunID != "run-1" {
		t.Fatalf("failure run id=%q", failure.StepRunID)
	}

	run := f.runs.runs["run-1"]
	if run.Status != domain.RunFailed {
		t.Fatalf("status=%s, want FAILED", run.Status)
	}
	if msg, _ := run.Metrics.String(domain.MetricsErrorKey); msg != "scanpy crashed" {
		t.Fatalf("error metric=%q", msg)
	}

	evs := drain(events)
	if len(evs) != 2 || evs[1].Phase != progress.PhaseError {
		t.Fatalf("expected START then ERROR, got %+v", evs)
	}
}

func TestExecuteMetricsErrorMarkerFails(t *testing.T) {
	f := newFixture(t, &scriptedRunner{
		stepType: domain.StepQC,
		result: runner.Result{
			Metrics: domain.Metadata{domain.MetricsErrorKey: "matrix unreadable"},
		},
	})
	f.seedRun("run-1", domain.StepQC, nil)

	err := f.orch.Execute(context.Background(), "run-1")
	var failure *RunFailure
	if !errors.As(err, &failure) {
		t.Fatalf("expected RunFailure, got %v", err)
	}
	if f.runs.runs["run-1"].Status != domain.RunFailed {
		t.Fatalf("status=%s, want FAILED", f.runs.runs["run-1"].Status)
	}
}

func TestExecuteQCRequiresRawInput(t *testing.T) {
	f := newFixture(t, &scriptedRunner{stepType: domain.StepQC})
	dataset := f.datasets.datasets["ds-1"]
	dataset.RawURI = ""
	f.datasets.datasets["ds-1"] = dataset
	f.seedRun("run-1", domain.StepQC, nil)

	err := f.orch.Execute(context.Background(), "run-1")
	if !errors.Is(err, ErrMissingRawInput) {
		t.Fatalf("expected ErrMissingRawInput, got %v", err)
	}
	if f.runs.runs["run-1"].Status != domain.RunFailed {
		t.Fatalf("missing input should fail the run")
	}
}

func TestExecuteDownstreamInputResolution(t *testing.T) {
	norm := &scriptedRunner{
		stepType: domain.StepNormalization,
		result:   runner.Result{Metrics: domain.Metadata{"cells": 9000.0}},
	}
	f := newFixture(t, norm)
	f.seedRun("run-2", domain.StepNormalization, nil)
	f.seedSucceeded("run-1", time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC),
		domain.ArtifactProcessedData, "sessions/sess-1/runs/run-1/matrix.h5ad")

	if err := f.orch.Execute(context.Background(), "run-2"); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if norm.lastIn.DataURI != "sessions/sess-1/runs/run-1/matrix.h5ad" {
		t.Fatalf("downstream input=%q, want upstream artifact key", norm.lastIn.DataURI)
	}

	// Without a succeeded upstream, the raw upload is the fallback.
	delete(f.runs.runs, "run-1")
	delete(f.runs.artifacts, "run-1")
	f.seedRun("run-3", domain.StepNormalization, nil)
	if err := f.orch.Execute(context.Background(), "run-3"); err != nil {
		t.Fatalf("Execute fallback: %v", err)
	}
	if norm.lastIn.DataURI != "datasets/ds-1/raw.h5ad" {
		t.Fatalf("fallback input=%q, want raw dataset object", norm.lastIn.DataURI)
	}
}

func TestExecutePicksNewestSucceededUpstream(t *testing.T) {
	norm := &scriptedRunner{
		stepType: domain.StepNormalization,
		result:   runner.Result{Metrics: domain.Metadata{"cells": 9000.0}},
	}
	f := newFixture(t, norm)
	f.seedRun("run-3", domain.StepNormalization, nil)

	// Two succeeded runs each left a processed matrix; the later-created
	// one must win. A newer plot-only run must not shadow it.
	f.seedSucceeded("run-1", time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC),
		domain.ArtifactProcessedData, "sessions/sess-1/runs/run-1/matrix.h5ad")
	f.seedSucceeded("run-2", time.Date(2026, 3, 1, 11, 0, 0, 0, time.UTC),
		domain.ArtifactProcessedData, "sessions/sess-1/runs/run-2/matrix.h5ad")
	f.seedSucceeded("run-9", time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		domain.ArtifactImage, "sessions/sess-1/runs/run-9/umap.png")

	if err := f.orch.Execute(context.Background(), "run-3"); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if norm.lastIn.DataURI != "sessions/sess-1/runs/run-2/matrix.h5ad" {
		t.Fatalf("input=%q, want the later-created run's matrix", norm.lastIn.DataURI)
	}
}

func TestExecuteArtifactPersistFailureKeepsMetrics(t *testing.T) {
	qc := &scriptedRunner{
		stepType: domain.StepQC,
		result: runner.Result{
			Metrics:  domain.Metadata{"cells": 10000.0, "pct_counts_mt": 8.0},
			Evidence: domain.Metadata{"filters": "min_genes>=200"},
			Artifacts: []runner.ArtifactSpec{
				{Name: "matrix.h5ad", Type: "h5ad", ObjectKey: "sessions/sess-1/runs/run-1/matrix.h5ad"},
			},
		},
	}
	f := newFixture(t, qc)
	f.artifacts.err = errors.New("artifact table unavailable")
	f.seedRun("run-1", domain.StepQC, nil)

	err := f.orch.Execute(context.Background(), "run-1")
	var failure *RunFailure
	if !errors.As(err, &failure) {
		t.Fatalf("expected RunFailure, got %v", err)
	}

	// The runner's outputs must survive on the FAILED row next to the
	// persistence error.
	run := f.runs.runs["run-1"]
	if run.Status != domain.RunFailed {
		t.Fatalf("status=%s, want FAILED", run.Status)
	}
	if v, _ := run.Metrics.Float("cells"); v != 10000 {
		t.Fatalf("cells metric lost on failure: %v", run.Metrics)
	}
	if v, _ := run.Metrics.Float("high_mito"); v != 0.08 {
		t.Fatalf("normalized high_mito lost on failure: %v", run.Metrics)
	}
	if msg, _ := run.Metrics.String(domain.MetricsErrorKey); msg == "" {
		t.Fatalf("error metric missing: %v", run.Metrics)
	}
	if v, _ := run.Evidence.String("filters"); v != "min_genes>=200" {
		t.Fatalf("evidence lost on failure: %v", run.Evidence)
	}
}

func TestExecuteUnstattableArtifactKeepsRow(t *testing.T) {
	qc := &scriptedRunner{
		stepType: domain.StepQC,
		result: runner.Result{
			Metrics: domain.Metadata{"cells": 10000.0},
			Artifacts: []runner.ArtifactSpec{
				{Name: "matrix.h5ad", Type: "h5ad", ObjectKey: "sessions/sess-1/runs/run-1/matrix.h5ad"},
			},
		},
	}
	f := newFixture(t, qc)
	f.seedRun("run-1", domain.StepQC, nil)
	// No entry in the stat table: Stat fails.

	if err := f.orch.Execute(context.Background(), "run-1"); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if len(f.artifacts.created) != 1 {
		t.Fatalf("artifact must be recorded even when Stat fails")
	}
	if f.artifacts.created[0].SizeBytes != 0 {
		t.Fatalf("size=%d, want 0", f.artifacts.created[0].SizeBytes)
	}
}

func TestExecuteAliasesComponentParams(t *testing.T) {
	pca := &scriptedRunner{
		stepType: domain.StepPCA,
		result:   runner.Result{Metrics: domain.Metadata{"explained_variance_ratio_sum": 0.72}},
	}
	f := newFixture(t, pca)
	f.seedRun("run-1", domain.StepPCA, domain.Metadata{"n_pcs": 30.0})

	if err := f.orch.Execute(context.Background(), "run-1"); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if v, _ := pca.lastIn.Params.Float("n_components"); v != 30 {
		t.Fatalf("runner should see n_components=30, got %v", v)
	}
	// Stored params keep the user's spelling only.
	stored := f.runs.runs["run-1"].Params
	if _, ok := stored["n_components"]; ok {
		t.Fatalf("stored params must not gain the alias: %v", stored)
	}
}

func TestExecuteAdviceFailureDoesNotFailRun(t *testing.T) {
	qc := &scriptedRunner{
		stepType: domain.StepQC,
		result:   runner.Result{Metrics: domain.Metadata{"high_mito": 0.2, "cells": 10000.0}},
	}
	f := newFixture(t, qc)
	f.advice.err = errors.New("advice store down")
	f.seedRun("run-1", domain.StepQC, nil)

	if err := f.orch.Execute(context.Background(), "run-1"); err != nil {
		t.Fatalf("advice failure must not fail the run: %v", err)
	}
	if f.runs.runs["run-1"].Status != domain.RunSucceeded {
		t.Fatalf("status=%s, want SUCCEEDED", f.runs.runs["run-1"].Status)
	}
}

func TestExecuteGeneratesAdviceOnSuccess(t *testing.T) {
	qc := &scriptedRunner{
		stepType: domain.StepQC,
		result:   runner.Result{Metrics: domain.Metadata{"high_mito": 0.2, "cells": 10000.0}},
	}
	f := newFixture(t, qc)
	f.seedRun("run-1", domain.StepQC, nil)

	if err := f.orch.Execute(context.Background(), "run-1"); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if len(f.advice.created) != 1 {
		t.Fatalf("expected 1 advice row, got %d", len(f.advice.created))
	}
	if f.advice.created[0].StepRunID != "run-1" {
		t.Fatalf("advice bound to %q", f.advice.created[0].StepRunID)
	}
}
