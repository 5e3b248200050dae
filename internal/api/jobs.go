package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/kalambet/salesdash/internal/ingest"
	"github.com/kalambet/salesdash/internal/storage"
)

// JobView is the public shape of a queued job.
type JobView struct {
	ID        string          `json:"id"`
	Type      string          `json:"type"`
	Status    string          `json:"status"`
	Attempts  int             `json:"attempts"`
	LastError string          `json:"last_error,omitempty"`
	Result    json.RawMessage `json:"result,omitempty"`
	CreatedAt string          `json:"created_at"`
	UpdatedAt string          `json:"updated_at"`
}

func newJobView(j storage.Job) JobView {
	v := JobView{
		ID:        j.ID,
		Type:      j.Type,
		Status:    j.Status,
		Attempts:  j.Attempts,
		LastError: j.LastError,
		CreatedAt: j.CreatedAt.Format(time.RFC3339),
		UpdatedAt: j.UpdatedAt.Format(time.RFC3339),
	}
	if j.ResultJSON != "" && json.Valid([]byte(j.ResultJSON)) {
		v.Result = json.RawMessage(j.ResultJSON)
	}
	return v
}

// handleInitDB queues a reload of the configured sales file. The worker
// performs the load.
func handleInitDB(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if deps.CSVPath == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "no sales file configured (set load.csv_path)")
			return
		}
		id, err := ingest.EnqueueLoad(deps.Jobs, deps.CSVPath)
		if err != nil {
			writeError(w, r, deps.Logger, err)
			return
		}
		writeJSON(w, http.StatusAccepted, map[string]string{
			"status":  "success",
			"message": "Sales data load queued",
			"job_id":  id,
		})
	}
}

func handleGetJob(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")

		job, err := deps.Jobs.GetJob(id)
		if errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found", "job not found")
			return
		}
		if err != nil {
			writeError(w, r, deps.Logger, err)
			return
		}
		writeJSON(w, http.StatusOK, newJobView(job))
	}
}
