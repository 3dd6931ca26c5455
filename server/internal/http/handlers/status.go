// Package handlers implements the thin internal ops HTTP surface: health,
// single-job status, and queue-wide stats. It deliberately does not
// reimplement the Ingress → Core submit_job boundary (spec's Non-goal);
// it exists only so an operator or the ingress process can poll queue
// state without opening a redis connection directly.
package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"server/internal/domain"
	"server/internal/queue"
)

var titleCaser = cases.Title(language.English)

// App holds the dependencies the ops handlers need.
type App struct {
	Queue *queue.Queue
}

// NewApp constructs an App.
func NewApp(q *queue.Queue) *App {
	return &App{Queue: q}
}

// Health answers liveness probes.
func (a *App) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// jobView is the wire shape for a single job, with display_name
// title-cased the way a reader-facing progress message should read.
type jobView struct {
	JobID       string          `json:"job_id"`
	DisplayName string          `json:"display_name"`
	Status      domain.JobStatus `json:"status"`
	Attempts    int             `json:"attempts"`
	ErrorMessage string         `json:"error_message,omitempty"`
}

// Job returns one job's current state.
func (a *App) Job(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "id")
	job, err := a.Queue.GetByID(r.Context(), jobID)
	if err != nil {
		if err == domain.ErrNotFound {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "job not found"})
			return
		}
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, jobView{
		JobID:        job.ID,
		DisplayName:  titleCaser.String(job.DisplayName),
		Status:       job.Status,
		Attempts:     job.Attempts,
		ErrorMessage: job.ErrorMessage,
	})
}

// QueueStats returns the queue's counts by state.
func (a *App) QueueStats(w http.ResponseWriter, r *http.Request) {
	stats, err := a.Queue.QueueStats(r.Context())
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
