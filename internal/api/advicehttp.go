package api

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/cellforge-labs/cellforge-go/internal/advice"
	"github.com/cellforge-labs/cellforge-go/internal/domain"
	"github.com/cellforge-labs/cellforge-go/internal/platform/auth"
	"github.com/cellforge-labs/cellforge-go/internal/repo"
)

type adviceResponse struct {
	AdviceID     string         `json:"advice_id"`
	StepRunID    string         `json:"step_run_id"`
	Category     string         `json:"category"`
	Risk         string         `json:"risk"`
	Title        string         `json:"title"`
	Description  string         `json:"description,omitempty"`
	EvidenceText string         `json:"evidence_text"`
	Patch        map[string]any `json:"patch"`
	PatchKind    string         `json:"patch_kind"`
	IsApplied    bool           `json:"is_applied"`
	AppliedAt    *time.Time     `json:"applied_at,omitempty"`
	AppliedBy    string         `json:"applied_by,omitempty"`
	CreatedAt    time.Time      `json:"created_at"`
}

func toAdviceResponse(a domain.Advice) adviceResponse {
	return adviceResponse{
		AdviceID:     a.ID,
		StepRunID:    a.StepRunID,
		Category:     string(a.Category),
		Risk:         string(a.Risk),
		Title:        a.Title,
		Description:  a.Description,
		EvidenceText: a.EvidenceText,
		Patch:        map[string]any(a.Patch),
		PatchKind:    string(a.PatchKind),
		IsApplied:    a.IsApplied,
		AppliedAt:    a.AppliedAt,
		AppliedBy:    a.AppliedBy,
		CreatedAt:    a.CreatedAt,
	}
}

func (api *API) handleListAdvice(w http.ResponseWriter, r *http.Request) {
	filter := repo.AdviceFilter{
		StepRunID: r.PathValue("run_id"),
		Limit:     clampInt(parseIntQuery(r, "limit", 100), 1, 500),
	}
	if v := strings.TrimSpace(r.URL.Query().Get("applied")); v != "" {
		applied := v == "true" || v == "1"
		filter.Applied = &applied
	}

	items, err := api.advice.ListAdvice(r.Context(), filter)
	if err != nil {
		api.writeRepoError(w, r, err, "internal_error")
		return
	}
	out := make([]adviceResponse, 0, len(items))
	for _, item := range items {
		out = append(out, toAdviceResponse(item))
	}
	api.writeJSON(w, http.StatusOK, map[string]any{"advice": out})
}

func (api *API) handleApplyAdvice(w http.ResponseWriter, r *http.Request) {
	item, err := api.applier.Apply(r.Context(), r.PathValue("advice_id"), auth.ActorFromContext(r.Context()))
	if err != nil {
		switch {
		case errors.Is(err, advice.ErrAlreadyApplied):
			api.writeError(w, r, http.StatusConflict, "advice_already_applied")
		case errors.Is(err, advice.ErrUnsupportedPatchKind):
			api.writeError(w, r, http.StatusUnprocessableEntity, "patch_not_applicable")
		default:
			api.writeRepoError(w, r, err, "internal_error")
		}
		return
	}
	api.writeJSON(w, http.StatusOK, toAdviceResponse(item))
}

func (api *API) handleRollbackAdvice(w http.ResponseWriter, r *http.Request) {
	item, err := api.applier.Rollback(r.Context(), r.PathValue("advice_id"), auth.ActorFromContext(r.Context()))
	if err != nil {
		switch {
		case errors.Is(err, advice.ErrNotApplied):
			api.writeError(w, r, http.StatusConflict, "advice_not_applied")
		case errors.Is(err, advice.ErrNoRollbackData):
			api.writeError(w, r, http.StatusUnprocessableEntity, "no_rollback_data")
		default:
			api.writeRepoError(w, r, err, "internal_error")
		}
		return
	}
	api.writeJSON(w, http.StatusOK, toAdviceResponse(item))
}
