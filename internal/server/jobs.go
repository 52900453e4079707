package server

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/Vamsi-o/collaborative-workspace/internal/jobs"
)

const maxJobBody = 1 << 20

type submitJobRequest struct {
	Payload json.RawMessage `json:"payload"`
}

type submitJobResponse struct {
	JobID  string      `json:"jobId"`
	Status jobs.Status `json:"status"`
}

func (a *App) submitJob(w http.ResponseWriter, r *http.Request) {
	var req submitJobRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxJobBody)).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	job, err := a.jobs.Submit(r.Context(), req.Payload)
	if errors.Is(err, jobs.ErrInvalidPayload) {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err != nil {
		a.logger.Error("Failed to submit job", slog.Any("error", err))
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusAccepted, submitJobResponse{JobID: job.ID, Status: job.Status})
}

func (a *App) getJob(w http.ResponseWriter, r *http.Request) {
	job, err := a.jobs.Get(r.Context(), r.PathValue("id"))
	if errors.Is(err, jobs.ErrJobNotFound) {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	if err != nil {
		a.logger.Error("Failed to load job", slog.Any("error", err))
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, job)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
