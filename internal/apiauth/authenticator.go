// Package apiauth authenticates programmatic clients presenting bearer tokens
// or structured claim sets.
package apiauth

import (
	"context"
	"crypto/rand"
	"errors"
	"log/slog"
	"slices"
	"time"

	"golang.org/x/crypto/bcrypt"

	"trustmesh/internal/apiauth/secrets"
	"trustmesh/internal/models"
	"trustmesh/internal/platform/config"
	dErrors "trustmesh/pkg/domain-errors"
	"trustmesh/pkg/platform/sentinel"
)

// RevocationList records revoked token ids until they would have expired anyway.
type RevocationList interface {
	RevokeToken(ctx context.Context, jti string, ttl time.Duration) error
	RevokeTokens(ctx context.Context, jtis []string, ttl time.Duration) error
	IsRevoked(ctx context.Context, jti string) (bool, error)
}

// ClientStore resolves claim-set subjects to registered clients.
type ClientStore interface {
	FindBySubject(ctx context.Context, subject string) (models.APIClient, error)
}

// Principal is an authenticated programmatic caller.
type Principal struct {
	Subject   string
	Issuer    string
	TokenID   string
	Scope     []string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// Result is a completed API authentication.
type Result struct {
	Principal  Principal
	Properties models.SecurityProperties
}

type Authenticator struct {
	cfg     config.APIAuthConfig
	trl     RevocationList
	clients ClientStore
	logger  *slog.Logger
	clock   func() time.Time

	// dummyHash is compared against for unknown subjects so a miss costs the
	// same as a wrong secret.
	dummyHash string
}

type Option func(*Authenticator)

func WithLogger(logger *slog.Logger) Option {
	return func(a *Authenticator) {
		a.logger = logger
	}
}

func WithClock(clock func() time.Time) Option {
	return func(a *Authenticator) {
		a.clock = clock
	}
}

// WithHashCost sets the bcrypt cost of the dummy hash. It should match the
// cost registered secrets were hashed with.
func WithHashCost(cost int) Option {
	return func(a *Authenticator) {
		a.dummyHash = dummyHash(cost)
	}
}

func New(cfg config.APIAuthConfig, trl RevocationList, clients ClientStore, opts ...Option) *Authenticator {
	a := &Authenticator{
		cfg:     cfg,
		trl:     trl,
		clients: clients,
		logger:  slog.Default(),
		clock:   time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.dummyHash == "" {
		a.dummyHash = dummyHash(bcrypt.DefaultCost)
	}
	return a
}

func dummyHash(cost int) string {
	buf := make([]byte, 32)
	_, _ = rand.Read(buf)
	hash, err := bcrypt.GenerateFromPassword(buf, cost)
	if err != nil {
		panic("apiauth: generate dummy hash: " + err.Error())
	}
	return string(hash)
}

// EstablishConnection authenticates remote's credentials and returns the
// principal the session is bound to. Bearer tokens take precedence over
// claim sets when both are present.
func (a *Authenticator) EstablishConnection(ctx context.Context, remote models.EntityInfo, params models.NegotiatedParameters) (*Result, error) {
	principal, err := a.Authenticate(ctx, remote.Credentials, params.RequiredScopes)
	if err != nil {
		return nil, err
	}
	return &Result{
		Principal: principal,
		Properties: models.SecurityProperties{
			Protocol:        models.ProtocolAPIAuthentication,
			PeerIdentity:    principal.Subject,
			Scope:           slices.Clone(principal.Scope),
			CredentialID:    principal.TokenID,
			AuthenticatedAt: a.clock(),
		},
	}, nil
}

// Authenticate dispatches on the credential kind.
func (a *Authenticator) Authenticate(ctx context.Context, creds models.Credentials, required []string) (Principal, error) {
	switch {
	case creds.BearerToken != "":
		return a.VerifyToken(ctx, creds.BearerToken, required)
	case creds.Claims != nil:
		return a.VerifyClaims(ctx, *creds.Claims, required)
	default:
		return Principal{}, dErrors.AuthenticationFailed("no bearer token or claim set presented")
	}
}

// VerifyToken checks, in order: signature, issuer, audience, lifetime,
// revocation and scope. The first failure is returned.
func (a *Authenticator) VerifyToken(ctx context.Context, raw string, required []string) (Principal, error) {
	claims, err := a.parseToken(raw)
	if err != nil {
		a.logger.DebugContext(ctx, "bearer token rejected", "error", err)
		return Principal{}, dErrors.AuthenticationFailed("invalid token signature")
	}

	if err := a.checkIssuer(claims.Issuer); err != nil {
		return Principal{}, err
	}
	if a.cfg.Audience != "" && !slices.Contains(claims.Audience, a.cfg.Audience) {
		return Principal{}, dErrors.AuthenticationFailed("token audience mismatch")
	}
	if claims.Subject == "" {
		return Principal{}, dErrors.AuthenticationFailed("token has no subject")
	}
	if claims.ExpiresAt == nil {
		return Principal{}, dErrors.AuthenticationFailed("token has no expiry")
	}

	p := Principal{
		Subject:   claims.Subject,
		Issuer:    claims.Issuer,
		TokenID:   claims.ID,
		Scope:     claims.Scopes(),
		ExpiresAt: claims.ExpiresAt.Time,
	}
	if claims.IssuedAt != nil {
		p.IssuedAt = claims.IssuedAt.Time
	}
	if err := a.checkLifetime(p.IssuedAt, p.ExpiresAt); err != nil {
		return Principal{}, err
	}
	if err := a.CheckRevoked(ctx, p.TokenID); err != nil {
		return Principal{}, err
	}
	if err := a.checkScope(p.Scope, required); err != nil {
		return Principal{}, err
	}
	return p, nil
}

// VerifyClaims authenticates a structured claim set against the registered
// client's secret, then applies the same policy as bearer tokens.
func (a *Authenticator) VerifyClaims(ctx context.Context, claims models.ClaimSet, required []string) (Principal, error) {
	client, err := a.clients.FindBySubject(ctx, claims.Subject)
	known := err == nil
	if err != nil && !errors.Is(err, sentinel.ErrNotFound) {
		return Principal{}, dErrors.Wrap(err, dErrors.CodeInternal, "look up api client")
	}

	hash := a.dummyHash
	if known {
		hash = client.SecretHash
	}
	verifyErr := secrets.Verify(claims.Secret, hash)
	if !known || client.Disabled || verifyErr != nil {
		if verifyErr != nil && !dErrors.HasCode(verifyErr, dErrors.CodeAuthenticationFailed) {
			a.logger.ErrorContext(ctx, "verify api client secret", "error", verifyErr, "subject", claims.Subject)
		}
		return Principal{}, dErrors.AuthenticationFailed("invalid client credentials")
	}

	if err := a.checkIssuer(claims.Issuer); err != nil {
		return Principal{}, err
	}
	if claims.Expiry.IsZero() {
		return Principal{}, dErrors.AuthenticationFailed("claim set has no expiry")
	}
	if err := a.checkLifetime(time.Time{}, claims.Expiry); err != nil {
		return Principal{}, err
	}
	if !client.Allows(claims.Scope) {
		return Principal{}, dErrors.AuthenticationFailed("claimed scope exceeds client registration")
	}
	if err := a.CheckRevoked(ctx, claims.ID); err != nil {
		return Principal{}, err
	}
	if err := a.checkScope(claims.Scope, required); err != nil {
		return Principal{}, err
	}
	return Principal{
		Subject:   claims.Subject,
		Issuer:    claims.Issuer,
		TokenID:   claims.ID,
		Scope:     slices.Clone(claims.Scope),
		ExpiresAt: claims.Expiry,
	}, nil
}

// RevokeToken revokes an authentic bearer token until its expiry. Expired
// tokens are accepted and need no entry.
func (a *Authenticator) RevokeToken(ctx context.Context, raw string) (Principal, error) {
	claims, err := a.parseToken(raw)
	if err != nil {
		return Principal{}, dErrors.AuthenticationFailed("invalid token signature")
	}
	if claims.ID == "" {
		return Principal{}, dErrors.New(dErrors.CodeInvalidInput, "token has no id")
	}
	p := Principal{Subject: claims.Subject, Issuer: claims.Issuer, TokenID: claims.ID, Scope: claims.Scopes()}

	ttl := a.cfg.MaxTokenLifetime
	if claims.ExpiresAt != nil {
		p.ExpiresAt = claims.ExpiresAt.Time
		ttl = p.ExpiresAt.Add(a.cfg.ClockSkew).Sub(a.clock())
	}
	if ttl <= 0 {
		return p, nil
	}
	if err := a.trl.RevokeToken(ctx, claims.ID, ttl); err != nil {
		return Principal{}, dErrors.Wrap(err, dErrors.CodeInternal, "revoke token")
	}
	return p, nil
}

// RevokeTokenIDs revokes token ids directly, for tokens the caller no longer
// holds. Entries live for the maximum token lifetime.
func (a *Authenticator) RevokeTokenIDs(ctx context.Context, ids []string) error {
	ttl := a.cfg.MaxTokenLifetime + a.cfg.ClockSkew
	if err := a.trl.RevokeTokens(ctx, ids, ttl); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "revoke token ids")
	}
	return nil
}

func (a *Authenticator) checkIssuer(issuer string) error {
	if len(a.cfg.AllowedIssuers) > 0 && !slices.Contains(a.cfg.AllowedIssuers, issuer) {
		return dErrors.AuthenticationFailed("issuer not allowed", "issuer="+issuer)
	}
	return nil
}

func (a *Authenticator) checkLifetime(issuedAt, expiresAt time.Time) error {
	now := a.clock()
	if !now.Before(expiresAt.Add(a.cfg.ClockSkew)) {
		return dErrors.New(dErrors.CodeTokenExpired, "token has expired")
	}
	if !issuedAt.IsZero() && issuedAt.After(now.Add(a.cfg.ClockSkew)) {
		return dErrors.AuthenticationFailed("token issued in the future")
	}
	if a.cfg.MaxTokenLifetime > 0 {
		from := issuedAt
		if from.IsZero() {
			from = now
		}
		if expiresAt.Sub(from) > a.cfg.MaxTokenLifetime+a.cfg.ClockSkew {
			return dErrors.AuthenticationFailed("token lifetime exceeds policy")
		}
	}
	return nil
}

// CheckRevoked returns a TokenRevoked error for a revoked token id. It fails
// closed: a revocation list that cannot be consulted rejects the token.
func (a *Authenticator) CheckRevoked(ctx context.Context, jti string) error {
	if jti == "" {
		return nil
	}
	revoked, err := a.trl.IsRevoked(ctx, jti)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "check token revocation")
	}
	if revoked {
		return dErrors.New(dErrors.CodeTokenRevoked, "token has been revoked")
	}
	return nil
}

func (a *Authenticator) checkScope(granted, required []string) error {
	var missing []string
	for _, s := range append(slices.Clone(a.cfg.RequiredScopes), required...) {
		if !slices.Contains(granted, s) && !slices.Contains(missing, s) {
			missing = append(missing, s)
		}
	}
	if len(missing) > 0 {
		return dErrors.WithDetails(dErrors.CodeInsufficientScope, "token lacks required scope", missing...)
	}
	return nil
}
