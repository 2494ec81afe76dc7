package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/cellforge-labs/cellforge-go/internal/domain"
	"github.com/cellforge-labs/cellforge-go/internal/repo"
)

type StepRunStore struct {
	db DB
}

func NewStepRunStore(db DB) *StepRunStore {
	if db == nil {
		return nil
	}
	return &StepRunStore{db: db}
}

const stepRunColumns = `step_run_id, session_id, step_id, step_type, status, params, order_index, runner_image_tag, git_commit_hash, input_files_hash, metrics, evidence, parent_run_id, is_pinned, created_at, started_at, finished_at`

func (s *StepRunStore) CreateStepRun(ctx context.Context, run domain.StepRun) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("step run store not initialized")
	}
	if err := run.Validate(); err != nil {
		return err
	}
	paramsJSON, err := encodeMetadata(run.Params)
	if err != nil {
		return fmt.Errorf("encode params: %w", err)
	}
	metricsJSON, err := encodeMetadata(run.Metrics)
	if err != nil {
		return fmt.Errorf("encode metrics: %w", err)
	}
	evidenceJSON, err := encodeMetadata(run.Evidence)
	if err != nil {
		return fmt.Errorf("encode evidence: %w", err)
	}
	createdAt := normalizeTime(run.CreatedAt)
	_, err = s.db.ExecContext(
		ctx,
		`INSERT INTO step_runs (
			step_run_id,
			session_id,
			step_id,
			step_type,
			status,
			params,
			order_index,
			runner_image_tag,
			git_commit_hash,
			input_files_hash,
			metrics,
			evidence,
			parent_run_id,
			is_pinned,
			created_at,
			started_at,
			finished_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17)`,
		strings.TrimSpace(run.ID),
		strings.TrimSpace(run.SessionID),
		strings.TrimSpace(run.StepID),
		string(run.StepType),
		string(run.Status),
		paramsJSON,
		run.OrderIndex,
		strings.TrimSpace(run.RunnerImageTag),
		strings.TrimSpace(run.GitCommitHash),
		strings.TrimSpace(run.InputFilesHash),
		metricsJSON,
		evidenceJSON,
		nullIfEmpty(run.ParentRunID),
		run.IsPinned,
		createdAt,
		nullTime(run.StartedAt),
		nullTime(run.FinishedAt),
	)
	if err != nil {
		return fmt.Errorf("insert step run: %w", err)
	}
	return nil
}

func (s *StepRunStore) GetStepRun(ctx context.Context, id string) (domain.StepRun, error) {
	if s == nil || s.db == nil {
		return domain.StepRun{}, fmt.Errorf("step run store not initialized")
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return domain.StepRun{}, fmt.Errorf("step run id is required")
	}
	row := s.db.QueryRowContext(
		ctx,
		`SELECT `+stepRunColumns+` FROM step_runs WHERE step_run_id = $1`,
		id,
	)
	return scanStepRun(row)
}

func (s *StepRunStore) ListStepRuns(ctx context.Context, filter repo.StepRunFilter) ([]domain.StepRun, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("step run store not initialized")
	}
	clauses := make([]string, 0, 4)
	args := make([]any, 0, 4)

	if strings.TrimSpace(filter.SessionID) != "" {
		args = append(args, strings.TrimSpace(filter.SessionID))
		clauses = append(clauses, fmt.Sprintf("session_id = $%d", len(args)))
	}
	if strings.TrimSpace(string(filter.StepType)) != "" {
		args = append(args, string(filter.StepType))
		clauses = append(clauses, fmt.Sprintf("step_type = $%d", len(args)))
	}
	if strings.TrimSpace(string(filter.Status)) != "" {
		args = append(args, string(filter.Status))
		clauses = append(clauses, fmt.Sprintf("status = $%d", len(args)))
	}
	if filter.Pinned != nil {
		args = append(args, *filter.Pinned)
		clauses = append(clauses, fmt.Sprintf("is_pinned = $%d", len(args)))
	}

	query := `SELECT ` + stepRunColumns + ` FROM step_runs`
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	query += " ORDER BY created_at DESC, step_run_id DESC"
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list step runs: %w", err)
	}
	defer rows.Close()

	runs := make([]domain.StepRun, 0)
	for rows.Next() {
		run, err := scanStepRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scan step run: %w", err)
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list step runs: %w", err)
	}
	return runs, nil
}

func (s *StepRunStore) LatestStepRun(ctx context.Context, sessionID string) (domain.StepRun, error) {
	if s == nil || s.db == nil {
		return domain.StepRun{}, fmt.Errorf("step run store not initialized")
	}
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return domain.StepRun{}, fmt.Errorf("session id is required")
	}
	row := s.db.QueryRowContext(
		ctx,
		`SELECT `+stepRunColumns+`
		 FROM step_runs
		 WHERE session_id = $1
		 ORDER BY created_at DESC, step_run_id DESC
		 LIMIT 1`,
		sessionID,
	)
	return scanStepRun(row)
}

func (s *StepRunStore) LatestSucceededWithArtifact(ctx context.Context, sessionID, excludeRunID string, artifactType domain.ArtifactType) (domain.StepRun, domain.Artifact, error) {
	if s == nil || s.db == nil {
		return domain.StepRun{}, domain.Artifact{}, fmt.Errorf("step run store not initialized")
	}
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return domain.StepRun{}, domain.Artifact{}, fmt.Errorf("session id is required")
	}
	row := s.db.QueryRowContext(
		ctx,
		`SELECT r.step_run_id, r.session_id, r.step_id, r.step_type, r.status, r.params, r.order_index, r.runner_image_tag, r.git_commit_hash, r.input_files_hash, r.metrics, r.evidence, r.parent_run_id, r.is_pinned, r.created_at, r.started_at, r.finished_at,
		        a.artifact_id, a.step_run_id, a.name, a.artifact_type, a.object_key, a.size_bytes, a.sha256, a.metadata, a.created_at
		 FROM step_runs r
		 JOIN artifacts a ON a.step_run_id = r.step_run_id
		 WHERE r.session_id = $1
		   AND r.status = $2
		   AND r.step_run_id <> $3
		   AND a.artifact_type = $4
		 ORDER BY r.created_at DESC, r.step_run_id DESC, a.created_at DESC, a.artifact_id DESC
		 LIMIT 1`,
		sessionID,
		string(domain.RunSucceeded),
		strings.TrimSpace(excludeRunID),
		string(artifactType),
	)

	var run domain.StepRun
	var artifact domain.Artifact
	var paramsJSON, metricsJSON, evidenceJSON, artifactMetaJSON []byte
	var parentRunID sql.NullString
	var startedAt, finishedAt sql.NullTime
	err := row.Scan(
		&run.ID,
		&run.SessionID,
		&run.StepID,
		&run.StepType,
		&run.Status,
		&paramsJSON,
		&run.OrderIndex,
		&run.RunnerImageTag,
		&run.GitCommitHash,
		&run.InputFilesHash,
		&metricsJSON,
		&evidenceJSON,
		&parentRunID,
		&run.IsPinned,
		&run.CreatedAt,
		&startedAt,
		&finishedAt,
		&artifact.ID,
		&artifact.StepRunID,
		&artifact.Name,
		&artifact.Type,
		&artifact.ObjectKey,
		&artifact.SizeBytes,
		&artifact.SHA256,
		&artifactMetaJSON,
		&artifact.CreatedAt,
	)
	if err != nil {
		return domain.StepRun{}, domain.Artifact{}, handleNotFound(err)
	}
	if run.Params, err = decodeMetadata(paramsJSON); err != nil {
		return domain.StepRun{}, domain.Artifact{}, fmt.Errorf("decode params: %w", err)
	}
	if run.Metrics, err = decodeMetadata(metricsJSON); err != nil {
		return domain.StepRun{}, domain.Artifact{}, fmt.Errorf("decode metrics: %w", err)
	}
	if run.Evidence, err = decodeMetadata(evidenceJSON); err != nil {
		return domain.StepRun{}, domain.Artifact{}, fmt.Errorf("decode evidence: %w", err)
	}
	if artifact.Metadata, err = decodeMetadata(artifactMetaJSON); err != nil {
		return domain.StepRun{}, domain.Artifact{}, fmt.Errorf("decode artifact metadata: %w", err)
	}
	run.ParentRunID = parentRunID.String
	run.StartedAt = timePtr(startedAt)
	run.FinishedAt = timePtr(finishedAt)
	return run, artifact, nil
}

func (s *StepRunStore) MarkRunning(ctx context.Context, id string, startedAt time.Time) (bool, error) {
	if s == nil || s.db == nil {
		return false, fmt.Errorf("step run store not initialized")
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return false, fmt.Errorf("step run id is required")
	}
	res, err := s.db.ExecContext(
		ctx,
		`UPDATE step_runs
		 SET status = $1, started_at = $2
		 WHERE step_run_id = $3 AND status = $4`,
		string(domain.RunRunning),
		normalizeTime(startedAt),
		id,
		string(domain.RunPending),
	)
	if err != nil {
		return false, fmt.Errorf("mark running: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("mark running: %w", err)
	}
	return affected == 1, nil
}

func (s *StepRunStore) FinishStepRun(ctx context.Context, id string, status domain.RunStatus, metrics, evidence domain.Metadata, finishedAt time.Time) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("step run store not initialized")
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return fmt.Errorf("step run id is required")
	}
	if !status.IsTerminal() {
		return fmt.Errorf("finish requires a terminal status (got %q)", status)
	}
	metricsJSON, err := encodeMetadata(metrics)
	if err != nil {
		return fmt.Errorf("encode metrics: %w", err)
	}
	evidenceJSON, err := encodeMetadata(evidence)
	if err != nil {
		return fmt.Errorf("encode evidence: %w", err)
	}
	res, err := s.db.ExecContext(
		ctx,
		`UPDATE step_runs
		 SET status = $1, metrics = $2, evidence = $3, finished_at = $4
		 WHERE step_run_id = $5 AND status = $6`,
		string(status),
		metricsJSON,
		evidenceJSON,
		normalizeTime(finishedAt),
		id,
		string(domain.RunRunning),
	)
	if err != nil {
		return fmt.Errorf("finish step run: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("finish step run: %w", err)
	}
	if affected == 0 {
		if _, getErr := s.GetStepRun(ctx, id); getErr != nil {
			return getErr
		}
		return fmt.Errorf("step run %s is not RUNNING", id)
	}
	return nil
}

func (s *StepRunStore) UpdateStepRunParams(ctx context.Context, id string, params domain.Metadata) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("step run store not initialized")
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return fmt.Errorf("step run id is required")
	}
	paramsJSON, err := encodeMetadata(params)
	if err != nil {
		return fmt.Errorf("encode params: %w", err)
	}
	res, err := s.db.ExecContext(
		ctx,
		`UPDATE step_runs SET params = $1 WHERE step_run_id = $2`,
		paramsJSON,
		id,
	)
	if err != nil {
		return fmt.Errorf("update step run params: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update step run params: %w", err)
	}
	if affected == 0 {
		return repo.ErrNotFound
	}
	return nil
}

func (s *StepRunStore) SetPinned(ctx context.Context, id string, pinned bool) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("step run store not initialized")
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return fmt.Errorf("step run id is required")
	}
	res, err := s.db.ExecContext(
		ctx,
		`UPDATE step_runs SET is_pinned = $1 WHERE step_run_id = $2`,
		pinned,
		id,
	)
	if err != nil {
		return fmt.Errorf("set pinned: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("set pinned: %w", err)
	}
	if affected == 0 {
		return repo.ErrNotFound
	}
	return nil
}

func scanStepRun(row rowScanner) (domain.StepRun, error) {
	var run domain.StepRun
	var paramsJSON, metricsJSON, evidenceJSON []byte
	var parentRunID sql.NullString
	var startedAt, finishedAt sql.NullTime
	err := row.Scan(
		&run.ID,
		&run.SessionID,
		&run.StepID,
		&run.StepType,
		&run.Status,
		&paramsJSON,
		&run.OrderIndex,
		&run.RunnerImageTag,
		&run.GitCommitHash,
		&run.InputFilesHash,
		&metricsJSON,
		&evidenceJSON,
		&parentRunID,
		&run.IsPinned,
		&run.CreatedAt,
		&startedAt,
		&finishedAt,
	)
	if err != nil {
		return domain.StepRun{}, handleNotFound(err)
	}
	if run.Params, err = decodeMetadata(paramsJSON); err != nil {
		return domain.StepRun{}, fmt.Errorf("decode params: %w", err)
	}
	if run.Metrics, err = decodeMetadata(metricsJSON); err != nil {
		return domain.StepRun{}, fmt.Errorf("decode metrics: %w", err)
	}
	if run.Evidence, err = decodeMetadata(evidenceJSON); err != nil {
		return domain.StepRun{}, fmt.Errorf("decode evidence: %w", err)
	}
	run.ParentRunID = parentRunID.String
	run.StartedAt = timePtr(startedAt)
	run.FinishedAt = timePtr(finishedAt)
	return run, nil
}
