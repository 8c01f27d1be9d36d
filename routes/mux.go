// Package routes is pixopt's HTTP surface: the image endpoint plus the
// operational and admin routes.
package routes

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// NewMux registers every route. The image endpoint is mounted at the
// configured path.
func NewMux(images *ImageHandler) *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle(images.Config.Path, images)
	mux.HandleFunc("/health", HealthHandler)
	mux.HandleFunc("/version", VersionHandler)
	mux.Handle("/metrics", promhttp.Handler())

	mux.HandleFunc("/status", JobStatusHandler)
	mux.HandleFunc("/cancel", RequireAdmin(ScopeJobs, CancelJobHandler))
	mux.HandleFunc("/failures", RequireAdmin(ScopeHistory, FailureQueryHandler))
	mux.HandleFunc("/failures/list", RequireAdmin(ScopeHistory, FailureListHandler))
	mux.HandleFunc("/success", RequireAdmin(ScopeHistory, SuccessQueryHandler))
	mux.HandleFunc("/success/list", RequireAdmin(ScopeHistory, SuccessListHandler))
	mux.HandleFunc("/credentials", RequireAdmin(ScopeCredentials, CredentialsHandler))
	return mux
}
