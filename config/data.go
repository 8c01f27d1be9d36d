package config

import (
	"os"
	"path/filepath"
)

// envOr returns the value of the environment variable key, or def when it is
// unset. Values are read on every call so tests and operators can change
// them without a restart.
func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// GetDataDir returns the directory holding pixopt's pebble databases.
// Priority: PIXOPT_DATA_DIR environment variable > "./data" default.
func GetDataDir() string {
	return envOr("PIXOPT_DATA_DIR", "./data")
}

// GetDistDir returns the root of the image cache. Cached files live under
// {DIST_DIR}/cache/images.
func GetDistDir() string {
	return envOr("PIXOPT_DIST_DIR", ".")
}

// GetPublicDir returns the directory rooted local image paths are read from.
func GetPublicDir() string {
	return envOr("PIXOPT_PUBLIC_DIR", "./public")
}

// GetDirectServeBaseDir returns the base directory for the directServe
// mirror. Only configurable by the operator, never by a request.
func GetDirectServeBaseDir() string {
	return envOr("PIXOPT_SERVE_DIR", "./serve")
}

// GetConfigPath returns the path of the YAML image configuration.
func GetConfigPath() string {
	return envOr("PIXOPT_CONFIG", "pixopt.yaml")
}

// GetLogLevel returns the configured log level name (debug, info, warn, error).
func GetLogLevel() string {
	return envOr("PIXOPT_LOG_LEVEL", "info")
}

// GetLogFile returns the optional log file path. Empty means console only.
func GetLogFile() string {
	return os.Getenv("PIXOPT_LOG_FILE")
}

// GetJWTSecret returns the HMAC secret for admin bearer tokens. Empty
// disables the admin routes.
func GetJWTSecret() string {
	return os.Getenv("PIXOPT_JWT_SECRET")
}

// GetCredentialsDBPath returns the path of the mirror credentials database.
// Path: {DATA_DIR}/credentials.db
func GetCredentialsDBPath() string {
	return filepath.Join(GetDataDir(), "credentials.db")
}

// GetHistoryDBPath returns the path of the transcode history database.
// Path: {DATA_DIR}/history.db
func GetHistoryDBPath() string {
	return filepath.Join(GetDataDir(), "history.db")
}

// GetMirrorQueueDBPath returns the path of the pending mirror job queue.
// Path: {DATA_DIR}/MirrorQueue.db
func GetMirrorQueueDBPath() string {
	return filepath.Join(GetDataDir(), "MirrorQueue.db")
}
