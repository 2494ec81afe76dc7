package api

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/cellforge-labs/cellforge-go/internal/progress"
)

// handleStreamEvents streams a run's progress events as server-sent events.
// The stream carries only events published after the subscription attaches;
// a caller reconnecting after the run finished sees nothing and should read
// the run status instead.
func (api *API) handleStreamEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		api.writeError(w, r, http.StatusInternalServerError, "streaming_unsupported")
		return
	}

	runID := r.PathValue("run_id")
	if _, err := api.runs.GetStepRun(r.Context(), runID); err != nil {
		api.writeRepoError(w, r, err, "internal_error")
		return
	}

	events, cancel := api.notifier.Subscribe(progress.TaskTopic(runID))
	defer cancel()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case event, ok := <-events:
			if !ok {
				return
			}
			payload, err := json.Marshal(event)
			if err != nil {
				api.logger.Warn("encode progress event", "step_run_id", runID, "error", err.Error())
				continue
			}
			fmt.Fprintf(w, "data: %s\n\n", payload)
			flusher.Flush()
			if event.Phase == progress.PhaseDone || event.Phase == progress.PhaseError {
				return
			}
		}
	}
}
