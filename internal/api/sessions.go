package api

import (
	"net/http"
	"strings"
	"time"

	"github.com/cellforge-labs/cellforge-go/internal/domain"
	"github.com/cellforge-labs/cellforge-go/internal/platform/auth"
	"github.com/cellforge-labs/cellforge-go/internal/repo"
)

type sessionResponse struct {
	SessionID       string     `json:"session_id"`
	DatasetID       string     `json:"dataset_id"`
	Name            string     `json:"name"`
	Description     string     `json:"description,omitempty"`
	Tags            []string   `json:"tags"`
	Status          string     `json:"status"`
	CurrentStepID   string     `json:"current_step_id,omitempty"`
	ParentSessionID string     `json:"parent_session_id,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	StartedAt       *time.Time `json:"started_at,omitempty"`
	FinishedAt      *time.Time `json:"finished_at,omitempty"`
	LastActiveAt    *time.Time `json:"last_active_at,omitempty"`
}

func toSessionResponse(s domain.Session) sessionResponse {
	return sessionResponse{
		SessionID:       s.ID,
		DatasetID:       s.DatasetID,
		Name:            s.Name,
		Description:     s.Description,
		Tags:            s.Tags,
		Status:          string(s.Status),
		CurrentStepID:   s.CurrentStepID,
		ParentSessionID: s.ParentSessionID,
		CreatedAt:       s.CreatedAt,
		StartedAt:       s.StartedAt,
		FinishedAt:      s.FinishedAt,
		LastActiveAt:    s.LastActiveAt,
	}
}

type createSessionRequest struct {
	DatasetID   string   `json:"dataset_id"`
	Name        string   `json:"name"`
	Description string   `json:"description,omitempty"`
	Tags        []string `json:"tags,omitempty"`
}

func (api *API) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	if err := decodeJSON(r, &req); err != nil {
		api.writeError(w, r, http.StatusBadRequest, "invalid_json")
		return
	}
	if strings.TrimSpace(req.DatasetID) == "" || strings.TrimSpace(req.Name) == "" {
		api.writeError(w, r, http.StatusBadRequest, "dataset_id_and_name_required")
		return
	}

	session, err := api.svc.Create(r.Context(), req.DatasetID, req.Name, req.Description, req.Tags)
	if err != nil {
		if isForeignKeyViolation(err) {
			api.writeError(w, r, http.StatusBadRequest, "unknown_dataset")
			return
		}
		api.writeRepoError(w, r, err, "internal_error")
		return
	}
	api.writeJSON(w, http.StatusCreated, toSessionResponse(session))
}

func (api *API) handleGetSession(w http.ResponseWriter, r *http.Request) {
	session, err := api.sessions.GetSession(r.Context(), r.PathValue("session_id"))
	if err != nil {
		api.writeRepoError(w, r, err, "internal_error")
		return
	}
	api.writeJSON(w, http.StatusOK, toSessionResponse(session))
}

func (api *API) handleListSessions(w http.ResponseWriter, r *http.Request) {
	filter := repo.SessionFilter{
		DatasetID: strings.TrimSpace(r.URL.Query().Get("dataset_id")),
		Status:    domain.SessionStatus(strings.TrimSpace(r.URL.Query().Get("status"))),
		Limit:     clampInt(parseIntQuery(r, "limit", 100), 1, 500),
	}
	list, err := api.sessions.ListSessions(r.Context(), filter)
	if err != nil {
		api.writeRepoError(w, r, err, "internal_error")
		return
	}
	out := make([]sessionResponse, 0, len(list))
	for _, session := range list {
		out = append(out, toSessionResponse(session))
	}
	api.writeJSON(w, http.StatusOK, map[string]any{"sessions": out})
}

type forkRequest struct {
	Name string `json:"name,omitempty"`
}

func (api *API) handleForkSession(w http.ResponseWriter, r *http.Request) {
	var req forkRequest
	if r.ContentLength != 0 {
		if err := decodeJSON(r, &req); err != nil {
			api.writeError(w, r, http.StatusBadRequest, "invalid_json")
			return
		}
	}

	fork, err := api.svc.Fork(r.Context(), r.PathValue("session_id"), req.Name, auth.ActorFromContext(r.Context()))
	if err != nil {
		api.writeRepoError(w, r, err, "internal_error")
		return
	}
	api.writeJSON(w, http.StatusCreated, toSessionResponse(fork))
}

func (api *API) handleForkFromRun(w http.ResponseWriter, r *http.Request) {
	var req forkRequest
	if r.ContentLength != 0 {
		if err := decodeJSON(r, &req); err != nil {
			api.writeError(w, r, http.StatusBadRequest, "invalid_json")
			return
		}
	}

	fork, seeded, err := api.svc.ForkFromRun(r.Context(), r.PathValue("run_id"), req.Name, auth.ActorFromContext(r.Context()))
	if err != nil {
		api.writeRepoError(w, r, err, "internal_error")
		return
	}
	api.writeJSON(w, http.StatusCreated, map[string]any{
		"session":  toSessionResponse(fork),
		"step_run": toStepRunResponse(seeded),
	})
}

func (api *API) handleLatestState(w http.ResponseWriter, r *http.Request) {
	state, err := api.svc.LatestState(r.Context(), r.PathValue("session_id"))
	if err != nil {
		api.writeRepoError(w, r, err, "internal_error")
		return
	}

	body := map[string]any{
		"session": toSessionResponse(state.Session),
	}
	if state.LatestRun != nil {
		body["latest_run"] = toStepRunResponse(*state.LatestRun)
		artifacts := make([]artifactResponse, 0, len(state.Artifacts))
		for _, artifact := range state.Artifacts {
			artifacts = append(artifacts, toArtifactResponse(artifact))
		}
		body["artifacts"] = artifacts
	}
	api.writeJSON(w, http.StatusOK, body)
}
