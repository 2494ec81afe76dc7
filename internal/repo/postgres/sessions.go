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

type SessionStore struct {
	db DB
}

func NewSessionStore(db DB) *SessionStore {
	if db == nil {
		return nil
	}
	return &SessionStore{db: db}
}

func (s *SessionStore) CreateSession(ctx context.Context, session domain.Session) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("session store not initialized")
	}
	if err := session.Validate(); err != nil {
		return err
	}
	tagsJSON, err := encodeTags(session.Tags)
	if err != nil {
		return fmt.Errorf("encode tags: %w", err)
	}
	createdAt := normalizeTime(session.CreatedAt)
	_, err = s.db.ExecContext(
		ctx,
		`INSERT INTO sessions (
			session_id,
			dataset_id,
			name,
			description,
			tags,
			status,
			current_step_id,
			parent_session_id,
			created_at,
			started_at,
			finished_at,
			last_active_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)`,
		strings.TrimSpace(session.ID),
		strings.TrimSpace(session.DatasetID),
		strings.TrimSpace(session.Name),
		strings.TrimSpace(session.Description),
		tagsJSON,
		string(session.Status),
		nullIfEmpty(session.CurrentStepID),
		nullIfEmpty(session.ParentSessionID),
		createdAt,
		nullTime(session.StartedAt),
		nullTime(session.FinishedAt),
		nullTime(session.LastActiveAt),
	)
	if err != nil {
		return fmt.Errorf("insert session: %w", err)
	}
	return nil
}

func (s *SessionStore) GetSession(ctx context.Context, id string) (domain.Session, error) {
	if s == nil || s.db == nil {
		return domain.Session{}, fmt.Errorf("session store not initialized")
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return domain.Session{}, fmt.Errorf("session id is required")
	}
	row := s.db.QueryRowContext(
		ctx,
		`SELECT session_id, dataset_id, name, description, tags, status, current_step_id, parent_session_id, created_at, started_at, finished_at, last_active_at
		 FROM sessions
		 WHERE session_id = $1`,
		id,
	)
	return scanSession(row)
}

func (s *SessionStore) ListSessions(ctx context.Context, filter repo.SessionFilter) ([]domain.Session, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("session store not initialized")
	}
	clauses := make([]string, 0, 2)
	args := make([]any, 0, 2)

	if strings.TrimSpace(filter.DatasetID) != "" {
		args = append(args, strings.TrimSpace(filter.DatasetID))
		clauses = append(clauses, fmt.Sprintf("dataset_id = $%d", len(args)))
	}
	if strings.TrimSpace(string(filter.Status)) != "" {
		args = append(args, string(filter.Status))
		clauses = append(clauses, fmt.Sprintf("status = $%d", len(args)))
	}

	query := `SELECT session_id, dataset_id, name, description, tags, status, current_step_id, parent_session_id, created_at, started_at, finished_at, last_active_at FROM sessions`
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
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	sessions := make([]domain.Session, 0)
	for rows.Next() {
		session, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		sessions = append(sessions, session)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	return sessions, nil
}

func (s *SessionStore) UpdateSessionStatus(ctx context.Context, id string, status domain.SessionStatus) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("session store not initialized")
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return fmt.Errorf("session id is required")
	}
	res, err := s.db.ExecContext(
		ctx,
		`UPDATE sessions SET status = $1 WHERE session_id = $2`,
		string(status),
		id,
	)
	if err != nil {
		return fmt.Errorf("update session status: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update session status: %w", err)
	}
	if affected == 0 {
		return repo.ErrNotFound
	}
	return nil
}

func (s *SessionStore) TouchSession(ctx context.Context, id string, lastActiveAt time.Time) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("session store not initialized")
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return fmt.Errorf("session id is required")
	}
	res, err := s.db.ExecContext(
		ctx,
		`UPDATE sessions SET last_active_at = $1 WHERE session_id = $2`,
		normalizeTime(lastActiveAt),
		id,
	)
	if err != nil {
		return fmt.Errorf("touch session: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("touch session: %w", err)
	}
	if affected == 0 {
		return repo.ErrNotFound
	}
	return nil
}

func scanSession(row rowScanner) (domain.Session, error) {
	var session domain.Session
	var tagsJSON []byte
	var currentStepID, parentSessionID sql.NullString
	var startedAt, finishedAt, lastActiveAt sql.NullTime
	err := row.Scan(
		&session.ID,
		&session.DatasetID,
		&session.Name,
		&session.Description,
		&tagsJSON,
		&session.Status,
		&currentStepID,
		&parentSessionID,
		&session.CreatedAt,
		&startedAt,
		&finishedAt,
		&lastActiveAt,
	)
	if err != nil {
		return domain.Session{}, handleNotFound(err)
	}
	tags, err := decodeTags(tagsJSON)
	if err != nil {
		return domain.Session{}, fmt.Errorf("decode tags: %w", err)
	}
	session.Tags = tags
	session.CurrentStepID = currentStepID.String
	session.ParentSessionID = parentSessionID.String
	session.StartedAt = timePtr(startedAt)
	session.FinishedAt = timePtr(finishedAt)
	session.LastActiveAt = timePtr(lastActiveAt)
	return session, nil
}
