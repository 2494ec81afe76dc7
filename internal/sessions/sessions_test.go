package sessions

import (
	"context"
	"fmt"
	"log/slog"
	"reflect"
	"testing"
	"time"

	"github.com/cellforge-labs/cellforge-go/internal/domain"
	"github.com/cellforge-labs/cellforge-go/internal/repo"
)

type stubSessions struct {
	sessions map[string]domain.Session
}

func (s *stubSessions) CreateSession(_ context.Context, session domain.Session) error {
	s.sessions[session.ID] = session
	return nil
}

func (s *stubSessions) GetSession(_ context.Context, id string) (domain.Session, error) {
	session, ok := s.sessions[id]
	if !ok {
		return domain.Session{}, repo.ErrNotFound
	}
	return session, nil
}

func (s *stubSessions) ListSessions(context.Context, repo.SessionFilter) ([]domain.Session, error) {
	return nil, nil
}

func (s *stubSessions) UpdateSessionStatus(context.Context, string, domain.SessionStatus) error {
	return nil
}

func (s *stubSessions) TouchSession(context.Context, string, time.Time) error { return nil }

type stubRuns struct {
	runs   map[string]domain.StepRun
	latest map[string]domain.StepRun
}

func (s *stubRuns) CreateStepRun(_ context.Context, run domain.StepRun) error {
	s.runs[run.ID] = run
	return nil
}

func (s *stubRuns) GetStepRun(_ context.Context, id string) (domain.StepRun, error) {
	run, ok := s.runs[id]
	if !ok {
		return domain.StepRun{}, repo.ErrNotFound
	}
	return run, nil
}

func (s *stubRuns) ListStepRuns(context.Context, repo.StepRunFilter) ([]domain.StepRun, error) {
	return nil, nil
}

func (s *stubRuns) LatestStepRun(_ context.Context, sessionID string) (domain.StepRun, error) {
	run, ok := s.latest[sessionID]
	if !ok {
		return domain.StepRun{}, repo.ErrNotFound
	}
	return run, nil
}

func (s *stubRuns) LatestSucceededWithArtifact(context.Context, string, string, domain.ArtifactType) (domain.StepRun, domain.Artifact, error) {
	return domain.StepRun{}, domain.Artifact{}, repo.ErrNotFound
}

func (s *stubRuns) MarkRunning(context.Context, string, time.Time) (bool, error) {
	return false, nil
}

func (s *stubRuns) FinishStepRun(context.Context, string, domain.RunStatus, domain.Metadata, domain.Metadata, time.Time) error {
	return nil
}

func (s *stubRuns) UpdateStepRunParams(context.Context, string, domain.Metadata) error {
	return nil
}

func (s *stubRuns) SetPinned(context.Context, string, bool) error { return nil }

type stubArtifacts struct {
	byRun map[string][]domain.Artifact
}

func (s *stubArtifacts) CreateArtifact(context.Context, domain.Artifact) error { return nil }

func (s *stubArtifacts) GetArtifact(context.Context, string) (domain.Artifact, error) {
	return domain.Artifact{}, repo.ErrNotFound
}

func (s *stubArtifacts) ListArtifacts(_ context.Context, filter repo.ArtifactFilter) ([]domain.Artifact, error) {
	return s.byRun[filter.StepRunID], nil
}

func newTestService() (*Service, *stubSessions, *stubRuns, *stubArtifacts) {
	sessionStore := &stubSessions{sessions: map[string]domain.Session{}}
	runStore := &stubRuns{runs: map[string]domain.StepRun{}, latest: map[string]domain.StepRun{}}
	artifactStore := &stubArtifacts{byRun: map[string][]domain.Artifact{}}
	svc := NewService(sessionStore, runStore, artifactStore, nil, slog.Default())
	svc.now = func() time.Time { return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC) }
	n := 0
	svc.newID = func() string {
		n++
		return fmt.Sprintf("id-%d", n)
	}
	return svc, sessionStore, runStore, artifactStore
}

func TestCreateStartsPaused(t *testing.T) {
	svc, store, _, _ := newTestService()

	session, err := svc.Create(context.Background(), "ds-1", "  baseline ", "first pass", []string{"pbmc"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if session.Status != domain.SessionPaused {
		t.Fatalf("status=%s, want PAUSED", session.Status)
	}
	if session.Name != "baseline" {
		t.Fatalf("name=%q, want trimmed", session.Name)
	}
	if _, ok := store.sessions[session.ID]; !ok {
		t.Fatalf("session not persisted")
	}
}

func TestForkCopiesDescriptiveFieldsOnly(t *testing.T) {
	svc, store, runStore, _ := newTestService()

	store.sessions["parent"] = domain.Session{
		ID:          "parent",
		DatasetID:   "ds-1",
		Name:        "baseline",
		Description: "first pass",
		Tags:        []string{"pbmc", "v1"},
		Status:      domain.SessionRunning,
	}
	runStore.runs["run-1"] = domain.StepRun{ID: "run-1", SessionID: "parent"}

	fork, err := svc.Fork(context.Background(), "parent", "", "alice")
	if err != nil {
		t.Fatalf("Fork: %v", err)
	}
	if fork.Name != "baseline (fork)" {
		t.Fatalf("name=%q, want default fork name", fork.Name)
	}
	if fork.Status != domain.SessionPaused {
		t.Fatalf("fork status=%s, want PAUSED", fork.Status)
	}
	if fork.ParentSessionID != "parent" {
		t.Fatalf("parent link=%q", fork.ParentSessionID)
	}
	if fork.DatasetID != "ds-1" {
		t.Fatalf("dataset=%q", fork.DatasetID)
	}
	if !reflect.DeepEqual(fork.Tags, []string{"pbmc", "v1"}) {
		t.Fatalf("tags=%v", fork.Tags)
	}
	// No run history crosses a fork.
	if len(runStore.runs) != 1 {
		t.Fatalf("fork must not copy runs, have %d", len(runStore.runs))
	}

	named, err := svc.Fork(context.Background(), "parent", "tuned branch", "alice")
	if err != nil {
		t.Fatalf("Fork: %v", err)
	}
	if named.Name != "tuned branch" {
		t.Fatalf("name=%q, want explicit name", named.Name)
	}
}

func TestForkUnknownParent(t *testing.T) {
	svc, _, _, _ := newTestService()
	if _, err := svc.Fork(context.Background(), "missing", "", "alice"); err == nil {
		t.Fatalf("expected error for unknown parent")
	}
}

func TestForkFromRunSeedsPendingRun(t *testing.T) {
	svc, store, runStore, _ := newTestService()

	store.sessions["parent"] = domain.Session{ID: "parent", DatasetID: "ds-1", Name: "baseline", Status: domain.SessionRunning}
	runStore.runs["run-9"] = domain.StepRun{
		ID:          "run-9",
		SessionID:   "parent",
		StepID:      "step-clustering",
		StepType:    domain.StepClustering,
		Status:      domain.RunSucceeded,
		Params:      domain.Metadata{"resolution": 1.0},
		OrderIndex:  4,
		ParentRunID: "run-8",
	}

	fork, seeded, err := svc.ForkFromRun(context.Background(), "run-9", "retune", "alice")
	if err != nil {
		t.Fatalf("ForkFromRun: %v", err)
	}
	if seeded.SessionID != fork.ID {
		t.Fatalf("seeded run belongs to %q, want %q", seeded.SessionID, fork.ID)
	}
	if seeded.Status != domain.RunPending {
		t.Fatalf("seeded status=%s, want PENDING", seeded.Status)
	}
	if seeded.OrderIndex != 0 {
		t.Fatalf("seeded order=%d, want 0", seeded.OrderIndex)
	}
	if seeded.ParentRunID != "" {
		t.Fatalf("seeded run must not link a parent run, got %q", seeded.ParentRunID)
	}
	if v, _ := seeded.Params.Float("resolution"); v != 1.0 {
		t.Fatalf("seeded params=%v", seeded.Params)
	}

	// The params copy is independent of the source run.
	seeded.Params["resolution"] = 2.0
	if v, _ := runStore.runs["run-9"].Params.Float("resolution"); v != 1.0 {
		t.Fatalf("source params mutated: %v", v)
	}
}

func TestLatestState(t *testing.T) {
	svc, store, runStore, artifactStore := newTestService()

	store.sessions["sess-1"] = domain.Session{ID: "sess-1", DatasetID: "ds-1", Name: "baseline", Status: domain.SessionPaused}

	state, err := svc.LatestState(context.Background(), "sess-1")
	if err != nil {
		t.Fatalf("LatestState: %v", err)
	}
	if state.LatestRun != nil {
		t.Fatalf("fresh session should have no latest run")
	}

	run := domain.StepRun{ID: "run-1", SessionID: "sess-1", StepType: domain.StepQC, Status: domain.RunSucceeded}
	runStore.latest["sess-1"] = run
	artifactStore.byRun["run-1"] = []domain.Artifact{{ID: "art-1", StepRunID: "run-1"}}

	state, err = svc.LatestState(context.Background(), "sess-1")
	if err != nil {
		t.Fatalf("LatestState: %v", err)
	}
	if state.LatestRun == nil || state.LatestRun.ID != "run-1" {
		t.Fatalf("latest run missing: %+v", state.LatestRun)
	}
	if len(state.Artifacts) != 1 {
		t.Fatalf("artifacts=%d, want 1", len(state.Artifacts))
	}
}
