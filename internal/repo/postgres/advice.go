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

type AdviceStore struct {
	db DB
}

func NewAdviceStore(db DB) *AdviceStore {
	if db == nil {
		return nil
	}
	return &AdviceStore{db: db}
}

const adviceColumns = `advice_id, step_run_id, category, risk, title, description, evidence_text, patch, patch_kind, is_applied, applied_at, applied_by, rollback_data, created_at`

func (s *AdviceStore) CreateAdvice(ctx context.Context, advice domain.Advice) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("advice store not initialized")
	}
	if err := advice.Validate(); err != nil {
		return err
	}
	patchJSON, err := encodeMetadata(advice.Patch)
	if err != nil {
		return fmt.Errorf("encode patch: %w", err)
	}
	rollbackJSON, err := encodeMetadata(advice.RollbackData)
	if err != nil {
		return fmt.Errorf("encode rollback data: %w", err)
	}
	createdAt := normalizeTime(advice.CreatedAt)
	_, err = s.db.ExecContext(
		ctx,
		`INSERT INTO advice (
			advice_id,
			step_run_id,
			category,
			risk,
			title,
			description,
			evidence_text,
			patch,
			patch_kind,
			is_applied,
			applied_at,
			applied_by,
			rollback_data,
			created_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)`,
		strings.TrimSpace(advice.ID),
		strings.TrimSpace(advice.StepRunID),
		string(advice.Category),
		string(advice.Risk),
		strings.TrimSpace(advice.Title),
		strings.TrimSpace(advice.Description),
		strings.TrimSpace(advice.EvidenceText),
		patchJSON,
		string(advice.PatchKind),
		advice.IsApplied,
		nullTime(advice.AppliedAt),
		nullIfEmpty(advice.AppliedBy),
		rollbackJSON,
		createdAt,
	)
	if err != nil {
		return fmt.Errorf("insert advice: %w", err)
	}
	return nil
}

func (s *AdviceStore) GetAdvice(ctx context.Context, id string) (domain.Advice, error) {
	if s == nil || s.db == nil {
		return domain.Advice{}, fmt.Errorf("advice store not initialized")
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return domain.Advice{}, fmt.Errorf("advice id is required")
	}
	row := s.db.QueryRowContext(
		ctx,
		`SELECT `+adviceColumns+` FROM advice WHERE advice_id = $1`,
		id,
	)
	return scanAdvice(row)
}

func (s *AdviceStore) ListAdvice(ctx context.Context, filter repo.AdviceFilter) ([]domain.Advice, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("advice store not initialized")
	}
	clauses := make([]string, 0, 2)
	args := make([]any, 0, 2)

	if strings.TrimSpace(filter.StepRunID) != "" {
		args = append(args, strings.TrimSpace(filter.StepRunID))
		clauses = append(clauses, fmt.Sprintf("step_run_id = $%d", len(args)))
	}
	if filter.Applied != nil {
		args = append(args, *filter.Applied)
		clauses = append(clauses, fmt.Sprintf("is_applied = $%d", len(args)))
	}

	query := `SELECT ` + adviceColumns + ` FROM advice`
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	query += " ORDER BY created_at DESC, advice_id DESC"
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list advice: %w", err)
	}
	defer rows.Close()

	items := make([]domain.Advice, 0)
	for rows.Next() {
		advice, err := scanAdvice(rows)
		if err != nil {
			return nil, fmt.Errorf("scan advice: %w", err)
		}
		items = append(items, advice)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list advice: %w", err)
	}
	return items, nil
}

func (s *AdviceStore) MarkApplied(ctx context.Context, id string, appliedBy string, appliedAt time.Time, rollback domain.Metadata) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("advice store not initialized")
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return fmt.Errorf("advice id is required")
	}
	rollbackJSON, err := encodeMetadata(rollback)
	if err != nil {
		return fmt.Errorf("encode rollback data: %w", err)
	}
	res, err := s.db.ExecContext(
		ctx,
		`UPDATE advice
		 SET is_applied = TRUE, applied_at = $1, applied_by = $2, rollback_data = $3
		 WHERE advice_id = $4`,
		normalizeTime(appliedAt),
		nullIfEmpty(appliedBy),
		rollbackJSON,
		id,
	)
	if err != nil {
		return fmt.Errorf("mark advice applied: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("mark advice applied: %w", err)
	}
	if affected == 0 {
		return repo.ErrNotFound
	}
	return nil
}

func (s *AdviceStore) ClearApplied(ctx context.Context, id string) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("advice store not initialized")
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return fmt.Errorf("advice id is required")
	}
	// Only the applied flag toggles back: applied_at, applied_by and the
	// rollback snapshot stay behind as inspectable history.
	res, err := s.db.ExecContext(
		ctx,
		`UPDATE advice SET is_applied = FALSE WHERE advice_id = $1`,
		id,
	)
	if err != nil {
		return fmt.Errorf("clear advice applied: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("clear advice applied: %w", err)
	}
	if affected == 0 {
		return repo.ErrNotFound
	}
	return nil
}

func scanAdvice(row rowScanner) (domain.Advice, error) {
	var advice domain.Advice
	var patchJSON, rollbackJSON []byte
	var appliedAt sql.NullTime
	var appliedBy sql.NullString
	err := row.Scan(
		&advice.ID,
		&advice.StepRunID,
		&advice.Category,
		&advice.Risk,
		&advice.Title,
		&advice.Description,
		&advice.EvidenceText,
		&patchJSON,
		&advice.PatchKind,
		&advice.IsApplied,
		&appliedAt,
		&appliedBy,
		&rollbackJSON,
		&advice.CreatedAt,
	)
	if err != nil {
		return domain.Advice{}, handleNotFound(err)
	}
	if advice.Patch, err = decodeMetadata(patchJSON); err != nil {
		return domain.Advice{}, fmt.Errorf("decode patch: %w", err)
	}
	if advice.RollbackData, err = decodeMetadata(rollbackJSON); err != nil {
		return domain.Advice{}, fmt.Errorf("decode rollback data: %w", err)
	}
	advice.AppliedAt = timePtr(appliedAt)
	advice.AppliedBy = appliedBy.String
	return advice, nil
}
