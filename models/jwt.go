package models

// AdminClaims are the claims carried by bearer tokens on the admin routes
// (history queries, credential registration).
type AdminClaims struct {
	Issuer    string `json:"iss,omitempty"`
	Subject   string `json:"sub"`
	IssuedAt  int64  `json:"iat"`
	ExpiresAt int64  `json:"exp"`
	Scope     string `json:"scope,omitempty"` // space separated, e.g. "history credentials"
}
