package repo

import (
	"context"
	"errors"
	"time"

	"github.com/cellforge-labs/cellforge-go/internal/domain"
)

// ErrNotFound is returned when a requested entity does not exist.
var ErrNotFound = errors.New("not found")

type DatasetFilter struct {
	ProjectID string
	Name      string
	Limit     int
}

type SessionFilter struct {
	DatasetID string
	Status    domain.SessionStatus
	Limit     int
}

type StepRunFilter struct {
	SessionID string
	StepType  domain.StepType
	Status    domain.RunStatus
	Pinned    *bool
	Limit     int
}

type ArtifactFilter struct {
	StepRunID string
	Type      domain.ArtifactType
	Limit     int
}

type AdviceFilter struct {
	StepRunID string
	Applied   *bool
	Limit     int
}

// DatasetRepository manages immutable raw datasets.
type DatasetRepository interface {
	CreateDataset(ctx context.Context, dataset domain.Dataset) error
	GetDataset(ctx context.Context, id string) (domain.Dataset, error)
	ListDatasets(ctx context.Context, filter DatasetFilter) ([]domain.Dataset, error)
}

// StepRepository manages the static step registry.
type StepRepository interface {
	UpsertStep(ctx context.Context, step domain.Step) error
	GetStep(ctx context.Context, id string) (domain.Step, error)
	GetStepByType(ctx context.Context, stepType domain.StepType) (domain.Step, error)
	ListSteps(ctx context.Context) ([]domain.Step, error)
}

// SessionRepository manages analysis sessions and their fork lineage.
type SessionRepository interface {
	CreateSession(ctx context.Context, session domain.Session) error
	GetSession(ctx context.Context, id string) (domain.Session, error)
	ListSessions(ctx context.Context, filter SessionFilter) ([]domain.Session, error)
	UpdateSessionStatus(ctx context.Context, id string, status domain.SessionStatus) error
	TouchSession(ctx context.Context, id string, lastActiveAt time.Time) error
}

// StepRunRepository manages step run state. Status, timestamps, metrics and
// evidence are written by the orchestrator only; params by explicit user
// actions only.
type StepRunRepository interface {
	CreateStepRun(ctx context.Context, run domain.StepRun) error
	GetStepRun(ctx context.Context, id string) (domain.StepRun, error)
	ListStepRuns(ctx context.Context, filter StepRunFilter) ([]domain.StepRun, error)
	// LatestStepRun returns the most recently created run in a session,
	// breaking creation-timestamp ties by id for determinism.
	LatestStepRun(ctx context.Context, sessionID string) (domain.StepRun, error)
	// LatestSucceededWithArtifact returns the most recent SUCCEEDED run in
	// the session (excluding excludeRunID) that owns at least one artifact
	// of the given type, together with that run's most recent such artifact.
	LatestSucceededWithArtifact(ctx context.Context, sessionID, excludeRunID string, artifactType domain.ArtifactType) (domain.StepRun, domain.Artifact, error)
	// MarkRunning performs the PENDING -> RUNNING transition as a
	// compare-and-set: it reports false without error when the run is not
	// PENDING, which callers treat as a redelivery no-op.
	MarkRunning(ctx context.Context, id string, startedAt time.Time) (bool, error)
	FinishStepRun(ctx context.Context, id string, status domain.RunStatus, metrics, evidence domain.Metadata, finishedAt time.Time) error
	UpdateStepRunParams(ctx context.Context, id string, params domain.Metadata) error
	SetPinned(ctx context.Context, id string, pinned bool) error
}

// ArtifactRepository is the append-only artifact ledger.
type ArtifactRepository interface {
	CreateArtifact(ctx context.Context, artifact domain.Artifact) error
	GetArtifact(ctx context.Context, id string) (domain.Artifact, error)
	ListArtifacts(ctx context.Context, filter ArtifactFilter) ([]domain.Artifact, error)
}

// AdviceRepository stores advice proposals and their apply lifecycle.
type AdviceRepository interface {
	CreateAdvice(ctx context.Context, advice domain.Advice) error
	GetAdvice(ctx context.Context, id string) (domain.Advice, error)
	ListAdvice(ctx context.Context, filter AdviceFilter) ([]domain.Advice, error)
	MarkApplied(ctx context.Context, id string, appliedBy string, appliedAt time.Time, rollback domain.Metadata) error
	ClearApplied(ctx context.Context, id string) error
}
