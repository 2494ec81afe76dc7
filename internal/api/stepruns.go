package api

import (
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/cellforge-labs/cellforge-go/internal/domain"
	"github.com/cellforge-labs/cellforge-go/internal/repo"
	"github.com/cellforge-labs/cellforge-go/internal/worker"
)

type stepRunResponse struct {
	StepRunID      string         `json:"step_run_id"`
	SessionID      string         `json:"session_id"`
	StepID         string         `json:"step_id"`
	StepType       string         `json:"step_type"`
	Status         string         `json:"status"`
	Params         map[string]any `json:"params"`
	OrderIndex     int            `json:"order_index"`
	RunnerImageTag string         `json:"runner_image_tag,omitempty"`
	GitCommitHash  string         `json:"git_commit_hash,omitempty"`
	InputFilesHash string         `json:"input_files_hash,omitempty"`
	Metrics        map[string]any `json:"metrics"`
	Evidence       map[string]any `json:"evidence"`
	ParentRunID    string         `json:"parent_run_id,omitempty"`
	IsPinned       bool           `json:"is_pinned"`
	CreatedAt      time.Time      `json:"created_at"`
	StartedAt      *time.Time     `json:"started_at,omitempty"`
	FinishedAt     *time.Time     `json:"finished_at,omitempty"`
}

func toStepRunResponse(run domain.StepRun) stepRunResponse {
	return stepRunResponse{
		StepRunID:      run.ID,
		SessionID:      run.SessionID,
		StepID:         run.StepID,
		StepType:       string(run.StepType),
		Status:         string(run.Status),
		Params:         map[string]any(run.Params),
		OrderIndex:     run.OrderIndex,
		RunnerImageTag: run.RunnerImageTag,
		GitCommitHash:  run.GitCommitHash,
		InputFilesHash: run.InputFilesHash,
		Metrics:        map[string]any(run.Metrics),
		Evidence:       map[string]any(run.Evidence),
		ParentRunID:    run.ParentRunID,
		IsPinned:       run.IsPinned,
		CreatedAt:      run.CreatedAt,
		StartedAt:      run.StartedAt,
		FinishedAt:     run.FinishedAt,
	}
}

type artifactResponse struct {
	ArtifactID string         `json:"artifact_id"`
	StepRunID  string         `json:"step_run_id"`
	Name       string         `json:"name"`
	Type       string         `json:"type"`
	ObjectKey  string         `json:"object_key"`
	SizeBytes  int64          `json:"size_bytes"`
	SHA256     string         `json:"sha256,omitempty"`
	Metadata   map[string]any `json:"metadata"`
	CreatedAt  time.Time      `json:"created_at"`
}

func toArtifactResponse(a domain.Artifact) artifactResponse {
	return artifactResponse{
		ArtifactID: a.ID,
		StepRunID:  a.StepRunID,
		Name:       a.Name,
		Type:       string(a.Type),
		ObjectKey:  a.ObjectKey,
		SizeBytes:  a.SizeBytes,
		SHA256:     a.SHA256,
		Metadata:   map[string]any(a.Metadata),
		CreatedAt:  a.CreatedAt,
	}
}

type triggerStepRunRequest struct {
	StepType    string         `json:"step_type"`
	Params      map[string]any `json:"params,omitempty"`
	ParentRunID string         `json:"parent_run_id,omitempty"`
}

// handleTriggerStepRun accepts a new execution: the run is recorded PENDING
// and handed to the pool, and the request returns 202 immediately.
func (api *API) handleTriggerStepRun(w http.ResponseWriter, r *http.Request) {
	var req triggerStepRunRequest
	if err := decodeJSON(r, &req); err != nil {
		api.writeError(w, r, http.StatusBadRequest, "invalid_json")
		return
	}

	stepType := domain.NormalizeStepType(req.StepType)
	if stepType == "" {
		api.writeError(w, r, http.StatusBadRequest, "unsupported_step_type")
		return
	}

	sessionID := r.PathValue("session_id")
	session, err := api.sessions.GetSession(r.Context(), sessionID)
	if err != nil {
		api.writeRepoError(w, r, err, "internal_error")
		return
	}

	step, err := api.steps.GetStepByType(r.Context(), stepType)
	if err != nil {
		api.writeRepoError(w, r, err, "internal_error")
		return
	}

	params := step.DefaultParams.Clone()
	for k, v := range req.Params {
		params[k] = v
	}

	existing, err := api.runs.ListStepRuns(r.Context(), repo.StepRunFilter{SessionID: session.ID})
	if err != nil {
		api.writeRepoError(w, r, err, "internal_error")
		return
	}

	run := domain.StepRun{
		ID:          uuid.NewString(),
		SessionID:   session.ID,
		StepID:      step.ID,
		StepType:    stepType,
		Status:      domain.RunPending,
		Params:      params,
		OrderIndex:  len(existing),
		ParentRunID: strings.TrimSpace(req.ParentRunID),
		CreatedAt:   time.Now().UTC(),
	}
	if err := api.runs.CreateStepRun(r.Context(), run); err != nil {
		if isForeignKeyViolation(err) {
			api.writeError(w, r, http.StatusBadRequest, "unknown_parent_run")
			return
		}
		api.writeRepoError(w, r, err, "internal_error")
		return
	}

	if err := api.pool.Dispatch(run.ID); err != nil {
		if err == worker.ErrQueueFull {
			// The run stays PENDING; a later dispatch or sweep picks it up.
			api.logger.Warn("dispatch queue full", "step_run_id", run.ID)
			api.writeJSON(w, http.StatusAccepted, map[string]any{
				"step_run": toStepRunResponse(run),
				"queued":   false,
			})
			return
		}
		api.writeRepoError(w, r, err, "internal_error")
		return
	}

	api.writeJSON(w, http.StatusAccepted, map[string]any{
		"step_run": toStepRunResponse(run),
		"queued":   true,
	})
}

func (api *API) handleGetStepRun(w http.ResponseWriter, r *http.Request) {
	run, err := api.runs.GetStepRun(r.Context(), r.PathValue("run_id"))
	if err != nil {
		api.writeRepoError(w, r, err, "internal_error")
		return
	}

	artifacts, err := api.artifacts.ListArtifacts(r.Context(), repo.ArtifactFilter{StepRunID: run.ID})
	if err != nil {
		api.writeRepoError(w, r, err, "internal_error")
		return
	}
	out := make([]artifactResponse, 0, len(artifacts))
	for _, artifact := range artifacts {
		out = append(out, toArtifactResponse(artifact))
	}
	api.writeJSON(w, http.StatusOK, map[string]any{
		"step_run":  toStepRunResponse(run),
		"artifacts": out,
	})
}

func (api *API) handleListStepRuns(w http.ResponseWriter, r *http.Request) {
	filter := repo.StepRunFilter{
		SessionID: r.PathValue("session_id"),
		StepType:  domain.NormalizeStepType(r.URL.Query().Get("step_type")),
		Status:    domain.RunStatus(strings.TrimSpace(r.URL.Query().Get("status"))),
		Limit:     clampInt(parseIntQuery(r, "limit", 100), 1, 500),
	}
	if v := strings.TrimSpace(r.URL.Query().Get("pinned")); v != "" {
		pinned := v == "true" || v == "1"
		filter.Pinned = &pinned
	}

	runs, err := api.runs.ListStepRuns(r.Context(), filter)
	if err != nil {
		api.writeRepoError(w, r, err, "internal_error")
		return
	}
	out := make([]stepRunResponse, 0, len(runs))
	for _, run := range runs {
		out = append(out, toStepRunResponse(run))
	}
	api.writeJSON(w, http.StatusOK, map[string]any{"step_runs": out})
}

func (api *API) handlePinStepRun(w http.ResponseWriter, r *http.Request) {
	api.setPinned(w, r, true)
}

func (api *API) handleUnpinStepRun(w http.ResponseWriter, r *http.Request) {
	api.setPinned(w, r, false)
}

func (api *API) setPinned(w http.ResponseWriter, r *http.Request, pinned bool) {
	runID := r.PathValue("run_id")
	if err := api.runs.SetPinned(r.Context(), runID, pinned); err != nil {
		api.writeRepoError(w, r, err, "internal_error")
		return
	}
	api.writeJSON(w, http.StatusOK, map[string]any{
		"step_run_id": runID,
		"is_pinned":   pinned,
	})
}
