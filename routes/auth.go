package routes

import (
	"net/http"
	"strings"
	"time"

	"go.trai.ch/zerr"

	"pixopt/config"
	"pixopt/logger"
	"pixopt/models"
	"pixopt/utils"
)

// Scopes checked on admin tokens.
const (
	ScopeHistory     = "history"
	ScopeCredentials = "credentials"
	ScopeJobs        = "jobs"
)

// adminSecret is read per request so tests can set the environment.
var adminSecret = config.GetJWTSecret

// verifyJWT verifies the bearer token of the request and returns its claims.
func verifyJWT(r *http.Request, scope string) (*models.AdminClaims, error) {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return nil, zerr.New("authorization header required")
	}
	token, ok := strings.CutPrefix(authHeader, "Bearer ")
	if !ok {
		return nil, zerr.New("invalid authorization header format")
	}
	return utils.VerifyAdminJWT(token, utils.VerifyConfig{
		SecretKey:     []byte(adminSecret()),
		RequiredScope: scope,
		ClockSkew:     time.Minute,
	})
}

// RequireAdmin wraps next with bearer token verification. Without a
// configured secret the admin routes answer 404.
func RequireAdmin(scope string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if adminSecret() == "" {
			http.NotFound(w, r)
			return
		}
		claims, err := verifyJWT(r, scope)
		if err != nil {
			logger.Warnf("Rejected admin request to %s from %s: %v", r.URL.Path, r.RemoteAddr, err)
			w.Header().Set("WWW-Authenticate", `Bearer realm="pixopt"`)
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		logger.Debugf("Admin request to %s by %s", r.URL.Path, claims.Subject)
		next(w, r)
	}
}
