package routes

import (
	"net/http"

	"pixopt/job"
	"pixopt/logger"
)

// JobStatusHandler returns the mirror jobs of a cache key (?key=) or one job
// (?id=).
func JobStatusHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if id := r.URL.Query().Get("id"); id != "" {
		state, exists := job.GetJobState(id)
		if !exists {
			http.Error(w, "Job not found", http.StatusNotFound)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"id": id, "state": state})
		return
	}

	key := r.URL.Query().Get("key")
	if key == "" {
		logger.Warn("Missing key parameter in status request")
		http.Error(w, "Missing key or id parameter", http.StatusBadRequest)
		return
	}

	jobs := job.GetJobStates(key)
	if jobs == nil {
		jobs = []job.Status{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"key":  key,
		"jobs": jobs,
	})
}
