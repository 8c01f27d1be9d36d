package routes

import (
	"encoding/json"
	"net/http"

	"pixopt/credentials"
	"pixopt/logger"
	"pixopt/utils"
)

// CredentialsHandler registers (POST) or removes (DELETE ?key=) mirror
// credentials.
func CredentialsHandler(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		registerCredentials(w, r)
	case http.MethodDelete:
		deleteCredentials(w, r)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

func deleteCredentials(w http.ResponseWriter, r *http.Request) {
	key := r.URL.Query().Get("key")
	if key == "" {
		http.Error(w, "Missing key parameter", http.StatusBadRequest)
		return
	}
	if err := credentials.DeleteCredentials(key); err != nil {
		logger.Errorf("Failed to delete credentials %s: %v", key, err)
		http.Error(w, "Failed to delete credentials", http.StatusInternalServerError)
		return
	}
	logger.Infof("Deleted credentials %s", key)
	w.WriteHeader(http.StatusNoContent)
}

// registerCredentials stores a credential map for a mirror backend and
// returns the storage key to reference from the image config.
func registerCredentials(w http.ResponseWriter, r *http.Request) {

	credsBody := make(map[string]string)
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 64<<10)).Decode(&credsBody); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if len(credsBody) == 0 {
		http.Error(w, "Empty credentials", http.StatusBadRequest)
		return
	}

	keyString, err := utils.GenerateRandomHex(16)
	if err != nil {
		http.Error(w, "Failed to generate key", http.StatusInternalServerError)
		return
	}

	if err := credentials.StoreCredentials(keyString, credsBody); err != nil {
		logger.Errorf("Failed to store credentials: %v", err)
		http.Error(w, "Failed to store credentials", http.StatusInternalServerError)
		return
	}

	logger.Infof("Registered credentials under %s", keyString)
	writeJSON(w, http.StatusCreated, map[string]string{"storage_key": keyString})
}
