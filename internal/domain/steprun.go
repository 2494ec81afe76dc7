package domain

import (
	"errors"
	"strings"
	"time"
)

// RunStatus is the state machine of one StepRun execution.
//
//	PENDING -> RUNNING -> SUCCEEDED | FAILED | CANCELED
//
// SUCCEEDED, FAILED and CANCELED are terminal. CANCELED exists in the type
// but is not reachable by any transition in current behavior; it is reserved
// for future use.
type RunStatus string

const (
	RunPending   RunStatus = "PENDING"
	RunRunning   RunStatus = "RUNNING"
	RunSucceeded RunStatus = "SUCCEEDED"
	RunFailed    RunStatus = "FAILED"
	RunCanceled  RunStatus = "CANCELED"
)

// IsTerminal reports whether no further status transition is permitted.
func (s RunStatus) IsTerminal() bool {
	switch s {
	case RunSucceeded, RunFailed, RunCanceled:
		return true
	default:
		return false
	}
}

// CanTransitionRunStatus enforces the StepRun state graph.
func CanTransitionRunStatus(current, next RunStatus) bool {
	switch current {
	case RunPending:
		return next == RunRunning
	case RunRunning:
		return next == RunSucceeded || next == RunFailed || next == RunCanceled
	default:
		return false
	}
}

// MetricsErrorKey is the sole failure signal a runner can embed in its
// metrics map; its presence marks the run FAILED.
const MetricsErrorKey = "error"

// StepRun is one timed, stateful execution of a step type within a Session.
// The orchestrator is the only writer of status, timestamps, metrics and
// evidence; user actions mutate params (advice apply/rollback) and the
// pinned flag only.
type StepRun struct {
	ID             string
	SessionID      string
	StepID         string
	StepType       StepType
	Status         RunStatus
	Params         Metadata
	OrderIndex     int
	RunnerImageTag string
	GitCommitHash  string
	InputFilesHash string
	Metrics        Metadata
	Evidence       Metadata
	ParentRunID    string
	IsPinned       bool
	CreatedAt      time.Time
	StartedAt      *time.Time
	FinishedAt     *time.Time
}

func (r StepRun) Validate() error {
	if strings.TrimSpace(r.ID) == "" {
		return errors.New("step run id is required")
	}
	if strings.TrimSpace(r.SessionID) == "" {
		return errors.New("session id is required")
	}
	if strings.TrimSpace(r.StepID) == "" {
		return errors.New("step id is required")
	}
	if NormalizeStepType(string(r.StepType)) == "" {
		return errors.New("step type is required")
	}
	switch r.Status {
	case RunPending, RunRunning, RunSucceeded, RunFailed, RunCanceled:
	default:
		return errors.New("unsupported run status")
	}
	return nil
}

// Failed reports whether the run's metrics carry the runner error marker.
func (r StepRun) FailedByMetrics() bool {
	if r.Metrics == nil {
		return false
	}
	_, ok := r.Metrics[MetricsErrorKey]
	return ok
}
