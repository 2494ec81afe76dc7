package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/cellforge-labs/cellforge-go/internal/domain"
	"github.com/cellforge-labs/cellforge-go/internal/repo"
)

type ArtifactStore struct {
	db DB
}

func NewArtifactStore(db DB) *ArtifactStore {
	if db == nil {
		return nil
	}
	return &ArtifactStore{db: db}
}

func (s *ArtifactStore) CreateArtifact(ctx context.Context, artifact domain.Artifact) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("artifact store not initialized")
	}
	if err := artifact.Validate(); err != nil {
		return err
	}
	metadataJSON, err := encodeMetadata(artifact.Metadata)
	if err != nil {
		return fmt.Errorf("encode metadata: %w", err)
	}
	createdAt := normalizeTime(artifact.CreatedAt)
	_, err = s.db.ExecContext(
		ctx,
		`INSERT INTO artifacts (
			artifact_id,
			step_run_id,
			name,
			artifact_type,
			object_key,
			size_bytes,
			sha256,
			metadata,
			created_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
		strings.TrimSpace(artifact.ID),
		strings.TrimSpace(artifact.StepRunID),
		strings.TrimSpace(artifact.Name),
		string(artifact.Type),
		strings.TrimSpace(artifact.ObjectKey),
		artifact.SizeBytes,
		strings.TrimSpace(artifact.SHA256),
		metadataJSON,
		createdAt,
	)
	if err != nil {
		return fmt.Errorf("insert artifact: %w", err)
	}
	return nil
}

func (s *ArtifactStore) GetArtifact(ctx context.Context, id string) (domain.Artifact, error) {
	if s == nil || s.db == nil {
		return domain.Artifact{}, fmt.Errorf("artifact store not initialized")
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return domain.Artifact{}, fmt.Errorf("artifact id is required")
	}
	row := s.db.QueryRowContext(
		ctx,
		`SELECT artifact_id, step_run_id, name, artifact_type, object_key, size_bytes, sha256, metadata, created_at
		 FROM artifacts
		 WHERE artifact_id = $1`,
		id,
	)
	return scanArtifact(row)
}

func (s *ArtifactStore) ListArtifacts(ctx context.Context, filter repo.ArtifactFilter) ([]domain.Artifact, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("artifact store not initialized")
	}
	clauses := make([]string, 0, 2)
	args := make([]any, 0, 2)

	if strings.TrimSpace(filter.StepRunID) != "" {
		args = append(args, strings.TrimSpace(filter.StepRunID))
		clauses = append(clauses, fmt.Sprintf("step_run_id = $%d", len(args)))
	}
	if strings.TrimSpace(string(filter.Type)) != "" {
		args = append(args, string(filter.Type))
		clauses = append(clauses, fmt.Sprintf("artifact_type = $%d", len(args)))
	}

	query := `SELECT artifact_id, step_run_id, name, artifact_type, object_key, size_bytes, sha256, metadata, created_at FROM artifacts`
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	query += " ORDER BY created_at DESC, artifact_id DESC"
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list artifacts: %w", err)
	}
	defer rows.Close()

	artifacts := make([]domain.Artifact, 0)
	for rows.Next() {
		artifact, err := scanArtifact(rows)
		if err != nil {
			return nil, fmt.Errorf("scan artifact: %w", err)
		}
		artifacts = append(artifacts, artifact)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list artifacts: %w", err)
	}
	return artifacts, nil
}

func scanArtifact(row rowScanner) (domain.Artifact, error) {
	var artifact domain.Artifact
	var metadataJSON []byte
	err := row.Scan(
		&artifact.ID,
		&artifact.StepRunID,
		&artifact.Name,
		&artifact.Type,
		&artifact.ObjectKey,
		&artifact.SizeBytes,
		&artifact.SHA256,
		&metadataJSON,
		&artifact.CreatedAt,
	)
	if err != nil {
		return domain.Artifact{}, handleNotFound(err)
	}
	meta, err := decodeMetadata(metadataJSON)
	if err != nil {
		return domain.Artifact{}, fmt.Errorf("decode metadata: %w", err)
	}
	artifact.Metadata = meta
	return artifact, nil
}
