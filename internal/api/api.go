// Package api exposes the pipeline control plane over HTTP. Handlers use
// the net/http ServeMux method patterns and return JSON envelopes carrying
// the request id for correlation.
package api

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/cellforge-labs/cellforge-go/internal/advice"
	"github.com/cellforge-labs/cellforge-go/internal/progress"
	"github.com/cellforge-labs/cellforge-go/internal/repo"
	"github.com/cellforge-labs/cellforge-go/internal/sessions"
)

// Dispatcher hands accepted runs to the execution pool.
type Dispatcher interface {
	Dispatch(runID string) error
}

type API struct {
	logger    *slog.Logger
	datasets  repo.DatasetRepository
	steps     repo.StepRepository
	sessions  repo.SessionRepository
	runs      repo.StepRunRepository
	artifacts repo.ArtifactRepository
	advice    repo.AdviceRepository
	svc       *sessions.Service
	applier   *advice.Applier
	notifier  *progress.Notifier
	pool      Dispatcher
}

type Deps struct {
	Logger    *slog.Logger
	Datasets  repo.DatasetRepository
	Steps     repo.StepRepository
	Sessions  repo.SessionRepository
	Runs      repo.StepRunRepository
	Artifacts repo.ArtifactRepository
	Advice    repo.AdviceRepository
	Service   *sessions.Service
	Applier   *advice.Applier
	Notifier  *progress.Notifier
	Pool      Dispatcher
}

func New(deps Deps) *API {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &API{
		logger:    logger,
		datasets:  deps.Datasets,
		steps:     deps.Steps,
		sessions:  deps.Sessions,
		runs:      deps.Runs,
		artifacts: deps.Artifacts,
		advice:    deps.Advice,
		svc:       deps.Service,
		applier:   deps.Applier,
		notifier:  deps.Notifier,
		pool:      deps.Pool,
	}
}

func (api *API) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /datasets", api.handleCreateDataset)
	mux.HandleFunc("GET /datasets", api.handleListDatasets)
	mux.HandleFunc("GET /datasets/{dataset_id}", api.handleGetDataset)

	mux.HandleFunc("GET /steps", api.handleListSteps)

	mux.HandleFunc("POST /sessions", api.handleCreateSession)
	mux.HandleFunc("GET /sessions", api.handleListSessions)
	mux.HandleFunc("GET /sessions/{session_id}", api.handleGetSession)
	mux.HandleFunc("POST /sessions/{session_id}/fork", api.handleForkSession)
	mux.HandleFunc("GET /sessions/{session_id}/latest-state", api.handleLatestState)
	mux.HandleFunc("GET /sessions/{session_id}/step-runs", api.handleListStepRuns)
	mux.HandleFunc("POST /sessions/{session_id}/step-runs", api.handleTriggerStepRun)

	mux.HandleFunc("GET /step-runs/{run_id}", api.handleGetStepRun)
	mux.HandleFunc("POST /step-runs/{run_id}/fork", api.handleForkFromRun)
	mux.HandleFunc("POST /step-runs/{run_id}/pin", api.handlePinStepRun)
	mux.HandleFunc("DELETE /step-runs/{run_id}/pin", api.handleUnpinStepRun)
	mux.HandleFunc("GET /step-runs/{run_id}/advice", api.handleListAdvice)
	mux.HandleFunc("GET /step-runs/{run_id}/events", api.handleStreamEvents)

	mux.HandleFunc("POST /advice/{advice_id}/apply", api.handleApplyAdvice)
	mux.HandleFunc("POST /advice/{advice_id}/rollback", api.handleRollbackAdvice)
}

func decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, 1<<20))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return err
	}
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		return errors.New("multiple JSON values")
	}
	return nil
}

func (api *API) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(true)
	_ = enc.Encode(body)
}

func (api *API) writeError(w http.ResponseWriter, r *http.Request, status int, code string) {
	api.writeJSON(w, status, map[string]any{
		"error":      code,
		"request_id": r.Header.Get("X-Request-Id"),
	})
}

func (api *API) writeRepoError(w http.ResponseWriter, r *http.Request, err error, code string) {
	if errors.Is(err, repo.ErrNotFound) {
		api.writeError(w, r, http.StatusNotFound, "not_found")
		return
	}
	api.logger.Error("request failed", "request_id", r.Header.Get("X-Request-Id"), "error", err.Error())
	api.writeError(w, r, http.StatusInternalServerError, code)
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}

func isForeignKeyViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23503"
	}
	return false
}

func parseIntQuery(r *http.Request, key string, def int) int {
	v := strings.TrimSpace(r.URL.Query().Get(key))
	if v == "" {
		return def
	}
	parsed, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return parsed
}

func clampInt(v int, min int, max int) int {
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}
