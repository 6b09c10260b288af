package app

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"elric-go/internal/scheduler"
)

// submitRequest carries a serialized job to POST /v1/jobs. SerializedJob is
// base64 in JSON.
type submitRequest struct {
	SerializedJob []byte `json:"serialized_job" validate:"required"`
	JobKey        string `json:"job_key" validate:"required"`
	JobID         string `json:"job_id" validate:"omitempty,max=255"`
	ReplaceExist  bool   `json:"replace_exist"`
}

// updateRequest carries a stored job's new state to PUT /v1/jobs/{id}.
type updateRequest struct {
	JobKey        string    `json:"job_key" validate:"required"`
	NextRunTime   time.Time `json:"next_run_time" validate:"required"`
	SerializedJob []byte    `json:"serialized_job" validate:"required"`
}

type jobResponse struct {
	Outcome string `json:"outcome"`
	JobID   string `json:"job_id,omitempty"`
	Error   string `json:"error,omitempty"`
}

type healthResponse struct {
	Running bool     `json:"running"`
	Jobs    int      `json:"jobs"`
	Routes  []string `json:"routes"`
	Error   string   `json:"error,omitempty"`
}

func (a *Application) routes() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("POST /v1/jobs", a.requireToken(http.HandlerFunc(a.handleSubmit)))
	mux.Handle("PUT /v1/jobs/{id}", a.requireToken(http.HandlerFunc(a.handleUpdate)))
	mux.Handle("DELETE /v1/jobs/{id}", a.requireToken(http.HandlerFunc(a.handleRemove)))
	mux.HandleFunc("GET /healthz", a.handleHealth)
	return a.logRequests(mux)
}

//
// Job Handlers
//

// handleSubmit accepts a new job.
func (a *Application) handleSubmit(w http.ResponseWriter, r *http.Request) {
	var req submitRequest
	if !a.decodeRequest(w, r, &req) {
		return
	}

	receipt, err := a.Scheduler.SubmitWithReceipt(r.Context(), req.SerializedJob, req.JobKey, req.JobID, req.ReplaceExist)
	a.writeOutcome(w, receipt.JobID, receipt.Outcome, err)
}

// handleUpdate overwrites a stored job.
func (a *Application) handleUpdate(w http.ResponseWriter, r *http.Request) {
	var req updateRequest
	if !a.decodeRequest(w, r, &req) {
		return
	}

	id := r.PathValue("id")
	outcome, err := a.Scheduler.Update(r.Context(), id, req.JobKey, req.NextRunTime, req.SerializedJob)
	a.writeOutcome(w, id, outcome, err)
}

// handleRemove deletes a stored job.
func (a *Application) handleRemove(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	outcome, err := a.Scheduler.Remove(r.Context(), id)
	a.writeOutcome(w, id, outcome, err)
}

// handleHealth reports whether the loop is running along with the stored job
// count and the routing keys seen so far.
func (a *Application) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{
		Running: a.Scheduler.Running(),
		Routes:  a.Routes.Routes(),
	}
	n, err := a.Scheduler.Count(r.Context())
	if err != nil {
		a.Logger.Errorw("Health check failed", "error", err)
		resp.Error = err.Error()
		writeJSON(w, http.StatusServiceUnavailable, resp)
		return
	}
	resp.Jobs = n
	writeJSON(w, http.StatusOK, resp)
}

func (a *Application) decodeRequest(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeJSON(w, http.StatusBadRequest, jobResponse{Outcome: scheduler.OutcomeNone.String(), Error: "invalid request body: " + err.Error()})
		return false
	}
	if err := a.validate.Struct(dst); err != nil {
		writeJSON(w, http.StatusBadRequest, jobResponse{Outcome: scheduler.OutcomeNone.String(), Error: err.Error()})
		return false
	}
	return true
}

// writeOutcome maps a scheduler result onto a status. Conflicts and misses
// are not failures for the caller, so they answer 202 with the outcome.
func (a *Application) writeOutcome(w http.ResponseWriter, id string, outcome scheduler.Outcome, err error) {
	resp := jobResponse{Outcome: outcome.String(), JobID: id}
	switch {
	case errors.Is(err, scheduler.ErrInvalidJob):
		resp.Error = err.Error()
		writeJSON(w, http.StatusBadRequest, resp)
	case err != nil:
		a.Logger.Errorw("Job request failed", "job_id", id, "error", err)
		resp.Error = err.Error()
		writeJSON(w, http.StatusInternalServerError, resp)
	case outcome == scheduler.OutcomeConflict, outcome == scheduler.OutcomeNotFound:
		writeJSON(w, http.StatusAccepted, resp)
	default:
		writeJSON(w, http.StatusOK, resp)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
