package routes

import (
	"encoding/json"
	"net/http"

	"pixopt/history"
	"pixopt/logger"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Errorf("Failed to encode response: %v", err)
	}
}

// FailureQueryHandler returns the latest failure or fallback for a cache key.
func FailureQueryHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	key := r.URL.Query().Get("key")
	if key == "" {
		http.Error(w, "key parameter required", http.StatusBadRequest)
		return
	}

	record, err := history.GetFailure(key)
	if err != nil {
		logger.Errorf("Failed to query failure for key %s: %v", key, err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	if record == nil {
		writeJSON(w, http.StatusOK, map[string]any{
			"key":     key,
			"status":  "not_found",
			"message": "No failure recorded for this key",
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"key":    key,
		"status": record.Kind,
		"record": record,
	})
}

// FailureListHandler lists every failure record.
func FailureListHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	records, err := history.ListFailures()
	if err != nil {
		logger.Errorf("Failed to list failures: %v", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"failures": records,
		"count":    len(records),
	})
}

// SuccessQueryHandler returns the latest successful transcode for a cache key.
func SuccessQueryHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	key := r.URL.Query().Get("key")
	if key == "" {
		http.Error(w, "key parameter required", http.StatusBadRequest)
		return
	}

	record, err := history.GetSuccess(key)
	if err != nil {
		logger.Errorf("Failed to query success for key %s: %v", key, err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	if record == nil {
		writeJSON(w, http.StatusOK, map[string]any{
			"key":     key,
			"status":  "not_found",
			"message": "No success record found for this key",
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"key":    key,
		"status": record.Kind,
		"record": record,
	})
}

// SuccessListHandler lists every success record.
func SuccessListHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	records, err := history.ListSuccesses()
	if err != nil {
		logger.Errorf("Failed to list success records: %v", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success_records": records,
		"count":           len(records),
	})
}
