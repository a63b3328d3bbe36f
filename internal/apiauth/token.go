package apiauth

import (
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// TokenClaims is the JWT body of a bearer token. Scope is space separated.
type TokenClaims struct {
	Scope string `json:"scope,omitempty"`
	jwt.RegisteredClaims
}

// Scopes splits the scope claim.
func (c TokenClaims) Scopes() []string {
	return strings.Fields(c.Scope)
}

// IssueToken signs an HS256 bearer token. The issuer is the first allowed
// issuer and the audience the configured one.
func (a *Authenticator) IssueToken(subject string, scope []string, ttl time.Duration) (string, error) {
	now := a.clock()
	claims := TokenClaims{
		Scope: strings.Join(scope, " "),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			ID:        uuid.NewString(),
		},
	}
	if len(a.cfg.AllowedIssuers) > 0 {
		claims.Issuer = a.cfg.AllowedIssuers[0]
	}
	if a.cfg.Audience != "" {
		claims.Audience = jwt.ClaimStrings{a.cfg.Audience}
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.cfg.SigningKey)
}

// parseToken verifies only the signature and algorithm. Time based claims are
// checked afterwards so an expired but authentic token reports TokenExpired.
func (a *Authenticator) parseToken(raw string) (*TokenClaims, error) {
	claims := &TokenClaims{}
	_, err := jwt.ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) {
		return a.cfg.SigningKey, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithoutClaimsValidation(),
	)
	if err != nil {
		return nil, err
	}
	return claims, nil
}
