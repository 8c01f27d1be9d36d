package routes

import (
	"errors"
	"net/http"

	"pixopt/job"
	"pixopt/logger"
)

// CancelJobHandler cancels a pending mirror job by id.
func CancelJobHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodDelete {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	id := r.URL.Query().Get("id")
	if id == "" {
		http.Error(w, "Missing id parameter", http.StatusBadRequest)
		return
	}

	if err := job.CancelJob(id); err != nil {
		logger.Warnf("Failed to cancel job %s: %v", id, err)
		switch {
		case errors.Is(err, job.ErrJobNotFound):
			http.Error(w, "Job not found", http.StatusNotFound)
		case errors.Is(err, job.ErrJobNotCancelable):
			http.Error(w, err.Error(), http.StatusConflict)
		default:
			http.Error(w, "Internal server error", http.StatusInternalServerError)
		}
		return
	}

	logger.Infof("Job cancelled: %s", id)
	w.WriteHeader(http.StatusNoContent)
}
