// Package sessions manages analysis session lifecycle and forking. A fork
// copies descriptive fields and records provenance; it never copies run
// history, so the new branch starts with a clean sequence.
package sessions

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/cellforge-labs/cellforge-go/internal/domain"
	"github.com/cellforge-labs/cellforge-go/internal/platform/lineageevent"
	"github.com/cellforge-labs/cellforge-go/internal/repo"
)

type Service struct {
	sessions  repo.SessionRepository
	runs      repo.StepRunRepository
	artifacts repo.ArtifactRepository
	lineage   lineageevent.QueryRower
	logger    *slog.Logger
	now       func() time.Time
	newID     func() string
}

func NewService(sessionRepo repo.SessionRepository, runRepo repo.StepRunRepository, artifactRepo repo.ArtifactRepository, lineage lineageevent.QueryRower, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		sessions:  sessionRepo,
		runs:      runRepo,
		artifacts: artifactRepo,
		lineage:   lineage,
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
		newID:     func() string { return uuid.NewString() },
	}
}

// Create starts a fresh session over a dataset.
func (s *Service) Create(ctx context.Context, datasetID, name, description string, tags []string) (domain.Session, error) {
	if s == nil || s.sessions == nil {
		return domain.Session{}, fmt.Errorf("session service not initialized")
	}
	session := domain.Session{
		ID:          s.newID(),
		DatasetID:   strings.TrimSpace(datasetID),
		Name:        strings.TrimSpace(name),
		Description: strings.TrimSpace(description),
		Tags:        append([]string(nil), tags...),
		Status:      domain.SessionPaused,
		CreatedAt:   s.now(),
	}
	if err := s.sessions.CreateSession(ctx, session); err != nil {
		return domain.Session{}, err
	}
	return session, nil
}

// Fork creates a blank sibling branch of an existing session. The fork
// copies name, description and tags, starts PAUSED with no runs, and links
// to its parent for provenance only.
func (s *Service) Fork(ctx context.Context, parentSessionID, name, actor string) (domain.Session, error) {
	if s == nil || s.sessions == nil {
		return domain.Session{}, fmt.Errorf("session service not initialized")
	}
	parent, err := s.sessions.GetSession(ctx, parentSessionID)
	if err != nil {
		return domain.Session{}, err
	}

	forkName := strings.TrimSpace(name)
	if forkName == "" {
		forkName = parent.Name + " (fork)"
	}
	fork := domain.Session{
		ID:              s.newID(),
		DatasetID:       parent.DatasetID,
		Name:            forkName,
		Description:     parent.Description,
		Tags:            append([]string(nil), parent.Tags...),
		Status:          domain.SessionPaused,
		ParentSessionID: parent.ID,
		CreatedAt:       s.now(),
	}
	if err := s.sessions.CreateSession(ctx, fork); err != nil {
		return domain.Session{}, err
	}

	s.recordLineage(ctx, actor, "session", fork.ID, lineageevent.PredicateForkedFrom, "session", parent.ID, nil)
	s.logger.Info("session forked", "session_id", fork.ID, "parent_session_id", parent.ID)
	return fork, nil
}

// ForkFromRun forks the run's session and seeds the new branch with one
// PENDING run copying the source run's step and params. The seeded run has
// order index 0 and no parent-run link: the branch owns its history from
// the first entry.
func (s *Service) ForkFromRun(ctx context.Context, stepRunID, name, actor string) (domain.Session, domain.StepRun, error) {
	if s == nil || s.sessions == nil || s.runs == nil {
		return domain.Session{}, domain.StepRun{}, fmt.Errorf("session service not initialized")
	}
	source, err := s.runs.GetStepRun(ctx, stepRunID)
	if err != nil {
		return domain.Session{}, domain.StepRun{}, err
	}

	fork, err := s.Fork(ctx, source.SessionID, name, actor)
	if err != nil {
		return domain.Session{}, domain.StepRun{}, err
	}

	seeded := domain.StepRun{
		ID:         s.newID(),
		SessionID:  fork.ID,
		StepID:     source.StepID,
		StepType:   source.StepType,
		Status:     domain.RunPending,
		Params:     source.Params.Clone(),
		OrderIndex: 0,
		CreatedAt:  s.now(),
	}
	if err := s.runs.CreateStepRun(ctx, seeded); err != nil {
		return domain.Session{}, domain.StepRun{}, fmt.Errorf("seed forked run: %w", err)
	}

	s.recordLineage(ctx, actor, "step_run", seeded.ID, lineageevent.PredicateSeededFrom, "step_run", source.ID, map[string]any{
		"session_id": fork.ID,
	})
	s.logger.Info("session forked from run", "session_id", fork.ID, "source_run_id", source.ID, "seeded_run_id", seeded.ID)
	return fork, seeded, nil
}

// State is the latest-state snapshot of a session: the newest run, if any,
// with its artifacts.
type State struct {
	Session   domain.Session
	LatestRun *domain.StepRun
	Artifacts []domain.Artifact
}

func (s *Service) LatestState(ctx context.Context, sessionID string) (State, error) {
	if s == nil || s.sessions == nil || s.runs == nil {
		return State{}, fmt.Errorf("session service not initialized")
	}
	session, err := s.sessions.GetSession(ctx, sessionID)
	if err != nil {
		return State{}, err
	}

	run, err := s.runs.LatestStepRun(ctx, sessionID)
	if errors.Is(err, repo.ErrNotFound) {
		return State{Session: session}, nil
	}
	if err != nil {
		return State{}, fmt.Errorf("latest step run: %w", err)
	}

	artifacts := []domain.Artifact{}
	if s.artifacts != nil {
		artifacts, err = s.artifacts.ListArtifacts(ctx, repo.ArtifactFilter{StepRunID: run.ID})
		if err != nil {
			return State{}, fmt.Errorf("list artifacts: %w", err)
		}
	}
	return State{Session: session, LatestRun: &run, Artifacts: artifacts}, nil
}

func (s *Service) recordLineage(ctx context.Context, actor, subjectType, subjectID, predicate, objectType, objectID string, metadata map[string]any) {
	if s.lineage == nil {
		return
	}
	if strings.TrimSpace(actor) == "" {
		actor = "system"
	}
	event := lineageevent.Event{
		OccurredAt:  s.now(),
		Actor:       actor,
		SubjectType: subjectType,
		SubjectID:   subjectID,
		Predicate:   predicate,
		ObjectType:  objectType,
		ObjectID:    objectID,
		Metadata:    metadata,
	}
	if _, err := lineageevent.Insert(ctx, s.lineage, event); err != nil {
		s.logger.Warn("lineage insert failed", "subject_id", subjectID, "predicate", predicate, "error", err.Error())
	}
}
