package utils

import (
	"strings"
	"time"

	"github.com/go-jose/go-jose/v4"
	"github.com/go-jose/go-jose/v4/jwt"
	"go.trai.ch/zerr"

	"pixopt/models"
)

var (
	ErrInvalidToken     = zerr.New("invalid token format")
	ErrTokenExpired     = zerr.New("token has expired")
	ErrTokenNotYetValid = zerr.New("token not yet valid")
	ErrInvalidSignature = zerr.New("invalid token signature")
	ErrInvalidIssuer    = zerr.New("invalid issuer")
	ErrMissingScope     = zerr.New("token lacks required scope")
	ErrNoVerifyKey      = zerr.New("no verification key provided")
)

// VerifyConfig holds verification configuration
type VerifyConfig struct {
	SecretKey      []byte        // HS256
	PublicKey      any           // RS256, *rsa.PublicKey
	ExpectedIssuer string        // optional
	RequiredScope  string        // optional, one scope name
	ClockSkew      time.Duration // optional
	Now            func() time.Time
}

// VerifyAdminJWT verifies the signature and the time claims of an admin
// bearer token and returns its claims.
func VerifyAdminJWT(tokenString string, config VerifyConfig) (*models.AdminClaims, error) {
	if tokenString == "" {
		return nil, ErrInvalidToken
	}

	var allowedAlgs []jose.SignatureAlgorithm
	if config.SecretKey != nil {
		allowedAlgs = append(allowedAlgs, jose.HS256)
	}
	if config.PublicKey != nil {
		allowedAlgs = append(allowedAlgs, jose.RS256)
	}
	if len(allowedAlgs) == 0 {
		return nil, ErrNoVerifyKey
	}

	tok, err := jwt.ParseSigned(tokenString, allowedAlgs)
	if err != nil {
		return nil, zerr.With(zerr.Wrap(ErrInvalidToken, ""), "cause", err.Error())
	}

	claims := &models.AdminClaims{}
	var verifyErr error
	if config.SecretKey != nil {
		verifyErr = tok.Claims(config.SecretKey, claims)
	} else {
		verifyErr = tok.Claims(config.PublicKey, claims)
	}
	if verifyErr != nil {
		return nil, zerr.With(zerr.Wrap(ErrInvalidSignature, ""), "cause", verifyErr.Error())
	}

	nowFn := config.Now
	if nowFn == nil {
		nowFn = time.Now
	}
	now := nowFn().Unix()
	skew := int64(config.ClockSkew.Seconds())

	if claims.ExpiresAt > 0 && claims.ExpiresAt < now-skew {
		return nil, ErrTokenExpired
	}
	if claims.IssuedAt > 0 && claims.IssuedAt > now+skew {
		return nil, ErrTokenNotYetValid
	}
	if config.ExpectedIssuer != "" && claims.Issuer != config.ExpectedIssuer {
		return nil, zerr.With(zerr.With(zerr.Wrap(ErrInvalidIssuer, ""),
			"expected", config.ExpectedIssuer), "got", claims.Issuer)
	}
	if config.RequiredScope != "" && !HasScope(claims, config.RequiredScope) {
		return nil, zerr.With(zerr.Wrap(ErrMissingScope, ""), "scope", config.RequiredScope)
	}

	return claims, nil
}

// HasScope reports whether the space separated scope claim contains scope.
func HasScope(claims *models.AdminClaims, scope string) bool {
	for _, s := range strings.Fields(claims.Scope) {
		if s == scope {
			return true
		}
	}
	return false
}

// CreateAdminJWT signs claims with HS256.
func CreateAdminJWT(claims *models.AdminClaims, secret []byte) (string, error) {
	if claims == nil {
		return "", zerr.New("claims cannot be nil")
	}
	if len(secret) == 0 {
		return "", ErrNoVerifyKey
	}

	signer, err := jose.NewSigner(jose.SigningKey{Algorithm: jose.HS256, Key: secret}, nil)
	if err != nil {
		return "", zerr.Wrap(err, "failed to create signer")
	}

	token, err := jwt.Signed(signer).Claims(claims).Serialize()
	if err != nil {
		return "", zerr.Wrap(err, "failed to create JWT")
	}
	return token, nil
}
