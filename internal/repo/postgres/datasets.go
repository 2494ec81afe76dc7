package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/cellforge-labs/cellforge-go/internal/domain"
	"github.com/cellforge-labs/cellforge-go/internal/repo"
)

type DatasetStore struct {
	db DB
}

func NewDatasetStore(db DB) *DatasetStore {
	if db == nil {
		return nil
	}
	return &DatasetStore{db: db}
}

func (s *DatasetStore) CreateDataset(ctx context.Context, dataset domain.Dataset) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("dataset store not initialized")
	}
	if err := dataset.Validate(); err != nil {
		return err
	}
	metadataJSON, err := encodeMetadata(dataset.Metadata)
	if err != nil {
		return fmt.Errorf("encode metadata: %w", err)
	}
	tagsJSON, err := encodeTags(dataset.Tags)
	if err != nil {
		return fmt.Errorf("encode tags: %w", err)
	}
	createdAt := normalizeTime(dataset.CreatedAt)
	updatedAt := normalizeTime(dataset.UpdatedAt)
	_, err = s.db.ExecContext(
		ctx,
		`INSERT INTO datasets (
			dataset_id,
			project_id,
			name,
			dataset_type,
			raw_uri,
			metadata,
			tags,
			notes,
			created_at,
			updated_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`,
		strings.TrimSpace(dataset.ID),
		strings.TrimSpace(dataset.ProjectID),
		strings.TrimSpace(dataset.Name),
		string(dataset.Type),
		strings.TrimSpace(dataset.RawURI),
		metadataJSON,
		tagsJSON,
		strings.TrimSpace(dataset.Notes),
		createdAt,
		updatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert dataset: %w", err)
	}
	return nil
}

func (s *DatasetStore) GetDataset(ctx context.Context, id string) (domain.Dataset, error) {
	if s == nil || s.db == nil {
		return domain.Dataset{}, fmt.Errorf("dataset store not initialized")
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return domain.Dataset{}, fmt.Errorf("dataset id is required")
	}
	row := s.db.QueryRowContext(
		ctx,
		`SELECT dataset_id, project_id, name, dataset_type, raw_uri, metadata, tags, notes, created_at, updated_at
		 FROM datasets
		 WHERE dataset_id = $1`,
		id,
	)
	return scanDataset(row)
}

func (s *DatasetStore) ListDatasets(ctx context.Context, filter repo.DatasetFilter) ([]domain.Dataset, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("dataset store not initialized")
	}
	clauses := make([]string, 0, 2)
	args := make([]any, 0, 2)

	if strings.TrimSpace(filter.ProjectID) != "" {
		args = append(args, strings.TrimSpace(filter.ProjectID))
		clauses = append(clauses, fmt.Sprintf("project_id = $%d", len(args)))
	}
	if strings.TrimSpace(filter.Name) != "" {
		args = append(args, strings.TrimSpace(filter.Name))
		clauses = append(clauses, fmt.Sprintf("name = $%d", len(args)))
	}

	query := `SELECT dataset_id, project_id, name, dataset_type, raw_uri, metadata, tags, notes, created_at, updated_at FROM datasets`
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	query += " ORDER BY created_at DESC"
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list datasets: %w", err)
	}
	defer rows.Close()

	datasets := make([]domain.Dataset, 0)
	for rows.Next() {
		dataset, err := scanDataset(rows)
		if err != nil {
			return nil, fmt.Errorf("scan dataset: %w", err)
		}
		datasets = append(datasets, dataset)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list datasets: %w", err)
	}
	return datasets, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDataset(row rowScanner) (domain.Dataset, error) {
	var dataset domain.Dataset
	var metadataJSON, tagsJSON []byte
	err := row.Scan(
		&dataset.ID,
		&dataset.ProjectID,
		&dataset.Name,
		&dataset.Type,
		&dataset.RawURI,
		&metadataJSON,
		&tagsJSON,
		&dataset.Notes,
		&dataset.CreatedAt,
		&dataset.UpdatedAt,
	)
	if err != nil {
		return domain.Dataset{}, handleNotFound(err)
	}
	meta, err := decodeMetadata(metadataJSON)
	if err != nil {
		return domain.Dataset{}, fmt.Errorf("decode metadata: %w", err)
	}
	tags, err := decodeTags(tagsJSON)
	if err != nil {
		return domain.Dataset{}, fmt.Errorf("decode tags: %w", err)
	}
	dataset.Metadata = meta
	dataset.Tags = tags
	return dataset, nil
}
