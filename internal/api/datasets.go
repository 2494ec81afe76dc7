package api

import (
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/cellforge-labs/cellforge-go/internal/domain"
	"github.com/cellforge-labs/cellforge-go/internal/repo"
)

type datasetResponse struct {
	DatasetID string         `json:"dataset_id"`
	ProjectID string         `json:"project_id"`
	Name      string         `json:"name"`
	Type      string         `json:"type"`
	RawURI    string         `json:"raw_uri,omitempty"`
	Metadata  map[string]any `json:"metadata"`
	Tags      []string       `json:"tags"`
	Notes     string         `json:"notes,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
}

func toDatasetResponse(d domain.Dataset) datasetResponse {
	return datasetResponse{
		DatasetID: d.ID,
		ProjectID: d.ProjectID,
		Name:      d.Name,
		Type:      string(d.Type),
		RawURI:    d.RawURI,
		Metadata:  map[string]any(d.Metadata),
		Tags:      d.Tags,
		Notes:     d.Notes,
		CreatedAt: d.CreatedAt,
		UpdatedAt: d.UpdatedAt,
	}
}

type createDatasetRequest struct {
	ProjectID string         `json:"project_id"`
	Name      string         `json:"name"`
	Type      string         `json:"type"`
	RawURI    string         `json:"raw_uri"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	Tags      []string       `json:"tags,omitempty"`
	Notes     string         `json:"notes,omitempty"`
}

func (api *API) handleCreateDataset(w http.ResponseWriter, r *http.Request) {
	var req createDatasetRequest
	if err := decodeJSON(r, &req); err != nil {
		api.writeError(w, r, http.StatusBadRequest, "invalid_json")
		return
	}

	now := time.Now().UTC()
	dataset := domain.Dataset{
		ID:        uuid.NewString(),
		ProjectID: strings.TrimSpace(req.ProjectID),
		Name:      strings.TrimSpace(req.Name),
		Type:      domain.DatasetType(strings.TrimSpace(req.Type)),
		RawURI:    strings.TrimSpace(req.RawURI),
		Metadata:  domain.Metadata(req.Metadata),
		Tags:      req.Tags,
		Notes:     strings.TrimSpace(req.Notes),
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := dataset.Validate(); err != nil {
		api.writeError(w, r, http.StatusBadRequest, "invalid_dataset")
		return
	}

	if err := api.datasets.CreateDataset(r.Context(), dataset); err != nil {
		if isUniqueViolation(err) {
			api.writeError(w, r, http.StatusConflict, "dataset_exists")
			return
		}
		api.writeRepoError(w, r, err, "internal_error")
		return
	}
	api.writeJSON(w, http.StatusCreated, toDatasetResponse(dataset))
}

func (api *API) handleGetDataset(w http.ResponseWriter, r *http.Request) {
	dataset, err := api.datasets.GetDataset(r.Context(), r.PathValue("dataset_id"))
	if err != nil {
		api.writeRepoError(w, r, err, "internal_error")
		return
	}
	api.writeJSON(w, http.StatusOK, toDatasetResponse(dataset))
}

func (api *API) handleListDatasets(w http.ResponseWriter, r *http.Request) {
	filter := repo.DatasetFilter{
		ProjectID: strings.TrimSpace(r.URL.Query().Get("project_id")),
		Name:      strings.TrimSpace(r.URL.Query().Get("name")),
		Limit:     clampInt(parseIntQuery(r, "limit", 100), 1, 500),
	}
	datasets, err := api.datasets.ListDatasets(r.Context(), filter)
	if err != nil {
		api.writeRepoError(w, r, err, "internal_error")
		return
	}
	out := make([]datasetResponse, 0, len(datasets))
	for _, dataset := range datasets {
		out = append(out, toDatasetResponse(dataset))
	}
	api.writeJSON(w, http.StatusOK, map[string]any{"datasets": out})
}

type stepResponse struct {
	StepID        string         `json:"step_id"`
	Name          string         `json:"name"`
	Type          string         `json:"type"`
	Description   string         `json:"description,omitempty"`
	RunnerImage   string         `json:"runner_image,omitempty"`
	RunnerCommand string         `json:"runner_command,omitempty"`
	DefaultParams map[string]any `json:"default_params"`
}

func (api *API) handleListSteps(w http.ResponseWriter, r *http.Request) {
	steps, err := api.steps.ListSteps(r.Context())
	if err != nil {
		api.writeRepoError(w, r, err, "internal_error")
		return
	}
	out := make([]stepResponse, 0, len(steps))
	for _, step := range steps {
		out = append(out, stepResponse{
			StepID:        step.ID,
			Name:          step.Name,
			Type:          string(step.Type),
			Description:   step.Description,
			RunnerImage:   step.RunnerImage,
			RunnerCommand: step.RunnerCommand,
			DefaultParams: map[string]any(step.DefaultParams),
		})
	}
	api.writeJSON(w, http.StatusOK, map[string]any{"steps": out})
}
