package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/cellforge-labs/cellforge-go/internal/domain"
)

type StepStore struct {
	db DB
}

func NewStepStore(db DB) *StepStore {
	if db == nil {
		return nil
	}
	return &StepStore{db: db}
}

func (s *StepStore) UpsertStep(ctx context.Context, step domain.Step) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("step store not initialized")
	}
	if err := step.Validate(); err != nil {
		return err
	}
	paramsJSON, err := encodeMetadata(step.DefaultParams)
	if err != nil {
		return fmt.Errorf("encode default params: %w", err)
	}
	createdAt := normalizeTime(step.CreatedAt)
	_, err = s.db.ExecContext(
		ctx,
		`INSERT INTO steps (
			step_id,
			name,
			step_type,
			description,
			runner_image,
			runner_command,
			default_params,
			created_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
		ON CONFLICT (step_type) DO UPDATE SET
			name = EXCLUDED.name,
			description = EXCLUDED.description,
			runner_image = EXCLUDED.runner_image,
			runner_command = EXCLUDED.runner_command,
			default_params = EXCLUDED.default_params`,
		strings.TrimSpace(step.ID),
		strings.TrimSpace(step.Name),
		string(step.Type),
		strings.TrimSpace(step.Description),
		strings.TrimSpace(step.RunnerImage),
		strings.TrimSpace(step.RunnerCommand),
		paramsJSON,
		createdAt,
	)
	if err != nil {
		return fmt.Errorf("upsert step: %w", err)
	}
	return nil
}

func (s *StepStore) GetStep(ctx context.Context, id string) (domain.Step, error) {
	if s == nil || s.db == nil {
		return domain.Step{}, fmt.Errorf("step store not initialized")
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return domain.Step{}, fmt.Errorf("step id is required")
	}
	row := s.db.QueryRowContext(
		ctx,
		`SELECT step_id, name, step_type, description, runner_image, runner_command, default_params, created_at
		 FROM steps
		 WHERE step_id = $1`,
		id,
	)
	return scanStep(row)
}

func (s *StepStore) GetStepByType(ctx context.Context, stepType domain.StepType) (domain.Step, error) {
	if s == nil || s.db == nil {
		return domain.Step{}, fmt.Errorf("step store not initialized")
	}
	if domain.NormalizeStepType(string(stepType)) == "" {
		return domain.Step{}, fmt.Errorf("step type is required")
	}
	row := s.db.QueryRowContext(
		ctx,
		`SELECT step_id, name, step_type, description, runner_image, runner_command, default_params, created_at
		 FROM steps
		 WHERE step_type = $1`,
		string(stepType),
	)
	return scanStep(row)
}

func (s *StepStore) ListSteps(ctx context.Context) ([]domain.Step, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("step store not initialized")
	}
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT step_id, name, step_type, description, runner_image, runner_command, default_params, created_at
		 FROM steps
		 ORDER BY created_at ASC`,
	)
	if err != nil {
		return nil, fmt.Errorf("list steps: %w", err)
	}
	defer rows.Close()

	steps := make([]domain.Step, 0)
	for rows.Next() {
		step, err := scanStep(rows)
		if err != nil {
			return nil, fmt.Errorf("scan step: %w", err)
		}
		steps = append(steps, step)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list steps: %w", err)
	}
	return steps, nil
}

func scanStep(row rowScanner) (domain.Step, error) {
	var step domain.Step
	var paramsJSON []byte
	err := row.Scan(
		&step.ID,
		&step.Name,
		&step.Type,
		&step.Description,
		&step.RunnerImage,
		&step.RunnerCommand,
		&paramsJSON,
		&step.CreatedAt,
	)
	if err != nil {
		return domain.Step{}, handleNotFound(err)
	}
	params, err := decodeMetadata(paramsJSON)
	if err != nil {
		return domain.Step{}, fmt.Errorf("decode default params: %w", err)
	}
	step.DefaultParams = params
	return step, nil
}
