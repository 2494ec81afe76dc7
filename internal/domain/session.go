package domain

import (
	"errors"
	"strings"
	"time"
)

// SessionStatus is the lifecycle state of an analysis session.
type SessionStatus string

const (
	SessionRunning   SessionStatus = "RUNNING"
	SessionPaused    SessionStatus = "PAUSED"
	SessionCompleted SessionStatus = "COMPLETED"
	SessionFailed    SessionStatus = "FAILED"
)

// Session is a named lineage of analysis over one Dataset. A forked session
// records its parent for provenance only: it starts with a fresh StepRun
// sequence and holds no runtime dependency on the parent.
type Session struct {
	ID              string
	DatasetID       string
	Name            string
	Description     string
	Tags            []string
	Status          SessionStatus
	CurrentStepID   string
	ParentSessionID string
	CreatedAt       time.Time
	StartedAt       *time.Time
	FinishedAt      *time.Time
	LastActiveAt    *time.Time
}

func (s Session) Validate() error {
	if strings.TrimSpace(s.ID) == "" {
		return errors.New("session id is required")
	}
	if strings.TrimSpace(s.DatasetID) == "" {
		return errors.New("dataset id is required")
	}
	if strings.TrimSpace(s.Name) == "" {
		return errors.New("session name is required")
	}
	switch s.Status {
	case SessionRunning, SessionPaused, SessionCompleted, SessionFailed:
	default:
		return errors.New("unsupported session status")
	}
	return nil
}
