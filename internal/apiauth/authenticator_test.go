package apiauth

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/suite"
	"golang.org/x/crypto/bcrypt"

	"trustmesh/internal/apiauth/secrets"
	clientstore "trustmesh/internal/apiauth/store/client"
	"trustmesh/internal/apiauth/store/revocation"
	"trustmesh/internal/models"
	"trustmesh/internal/platform/config"
	dErrors "trustmesh/pkg/domain-errors"
)

const (
	testIssuer   = "https://issuer.trustmesh.test"
	testAudience = "trustmesh"
	clientSecret = "correct horse battery staple"
)

type AuthenticatorSuite struct {
	suite.Suite
	ctx     context.Context
	now     time.Time
	cfg     config.APIAuthConfig
	trl     *revocation.InMemoryTRL
	clients *clientstore.InMemoryStore
	auth    *Authenticator
}

func TestAuthenticatorSuite(t *testing.T) {
	suite.Run(t, new(AuthenticatorSuite))
}

func (s *AuthenticatorSuite) SetupTest() {
	s.ctx = context.Background()
	s.now = time.Date(2026, 5, 4, 10, 0, 0, 0, time.UTC)
	clock := func() time.Time { return s.now }

	s.cfg = config.Default().APIAuth
	s.cfg.SigningKey = []byte("0123456789abcdef0123456789abcdef")
	s.cfg.AllowedIssuers = []string{testIssuer}
	s.cfg.Audience = testAudience

	s.trl = revocation.NewInMemoryTRL(revocation.WithMemoryClock(clock))
	s.clients = clientstore.NewInMemory()
	hash, err := secrets.HashWithCost(clientSecret, bcrypt.MinCost)
	s.Require().NoError(err)
	s.Require().NoError(s.clients.Save(s.ctx, models.APIClient{
		Subject:    "agent-7",
		SecretHash: hash,
		Scopes:     []string{"read", "write"},
	}))

	s.auth = s.newAuthenticator(s.trl)
}

func (s *AuthenticatorSuite) newAuthenticator(trl RevocationList) *Authenticator {
	return New(s.cfg, trl, s.clients,
		WithClock(func() time.Time { return s.now }),
		WithHashCost(bcrypt.MinCost),
	)
}

func (s *AuthenticatorSuite) token(subject string, scope []string, ttl time.Duration) string {
	raw, err := s.auth.IssueToken(subject, scope, ttl)
	s.Require().NoError(err)
	return raw
}

func (s *AuthenticatorSuite) claims() models.ClaimSet {
	return models.ClaimSet{
		ID:      "claim-1",
		Issuer:  testIssuer,
		Subject: "agent-7",
		Scope:   []string{"read"},
		Expiry:  s.now.Add(time.Hour),
		Secret:  clientSecret,
	}
}

func (s *AuthenticatorSuite) requireCode(err error, code dErrors.Code) {
	s.Require().Error(err)
	s.Equal(code, dErrors.CodeOf(err), err.Error())
}

func (s *AuthenticatorSuite) TestValidBearerToken() {
	p, err := s.auth.VerifyToken(s.ctx, s.token("agent-7", []string{"read", "write"}, time.Hour), []string{"read"})
	s.Require().NoError(err)
	s.Equal("agent-7", p.Subject)
	s.Equal(testIssuer, p.Issuer)
	s.Equal([]string{"read", "write"}, p.Scope)
	s.NotEmpty(p.TokenID)
	s.WithinDuration(s.now.Add(time.Hour), p.ExpiresAt, 0)
}

func (s *AuthenticatorSuite) TestSignatureIsCheckedBeforeExpiry() {
	other := *s.auth
	other.cfg.SigningKey = []byte("another key entirely, 32 bytes!!")
	forged, err := other.IssueToken("agent-7", []string{"read"}, -time.Hour)
	s.Require().NoError(err)

	_, err = s.auth.VerifyToken(s.ctx, forged, nil)
	s.requireCode(err, dErrors.CodeAuthenticationFailed)

	_, err = s.auth.VerifyToken(s.ctx, s.token("agent-7", []string{"read"}, -time.Hour), nil)
	s.requireCode(err, dErrors.CodeTokenExpired)
}

func (s *AuthenticatorSuite) TestRejectsUnsignedTokens() {
	unsigned, err := jwt.NewWithClaims(jwt.SigningMethodNone, TokenClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "agent-7",
			Issuer:    testIssuer,
			Audience:  jwt.ClaimStrings{testAudience},
			ExpiresAt: jwt.NewNumericDate(s.now.Add(time.Hour)),
		},
	}).SignedString(jwt.UnsafeAllowNoneSignatureType)
	s.Require().NoError(err)

	_, err = s.auth.VerifyToken(s.ctx, unsigned, nil)
	s.requireCode(err, dErrors.CodeAuthenticationFailed)

	_, err = s.auth.VerifyToken(s.ctx, "not.a.jwt", nil)
	s.requireCode(err, dErrors.CodeAuthenticationFailed)
}

func (s *AuthenticatorSuite) TestPolicy() {
	s.Run("clock skew tolerates just-expired tokens", func() {
		raw := s.token("agent-7", nil, time.Minute)
		s.now = s.now.Add(time.Minute + 10*time.Second)
		_, err := s.auth.VerifyToken(s.ctx, raw, nil)
		s.NoError(err)
	})

	s.Run("issuer", func() {
		s.cfg.AllowedIssuers = []string{"https://other"}
		strict := s.newAuthenticator(s.trl)
		_, err := strict.VerifyToken(s.ctx, s.token("agent-7", nil, time.Hour), nil)
		s.requireCode(err, dErrors.CodeAuthenticationFailed)
		s.cfg.AllowedIssuers = []string{testIssuer}
	})

	s.Run("audience", func() {
		s.cfg.Audience = "someone-else"
		strict := s.newAuthenticator(s.trl)
		_, err := strict.VerifyToken(s.ctx, s.token("agent-7", nil, time.Hour), nil)
		s.requireCode(err, dErrors.CodeAuthenticationFailed)
		s.cfg.Audience = testAudience
	})

	s.Run("maximum lifetime", func() {
		_, err := s.auth.VerifyToken(s.ctx, s.token("agent-7", nil, 48*time.Hour), nil)
		s.requireCode(err, dErrors.CodeAuthenticationFailed)
	})
}

func (s *AuthenticatorSuite) TestInsufficientScope() {
	s.cfg.RequiredScopes = []string{"read"}
	auth := s.newAuthenticator(s.trl)

	_, err := auth.VerifyToken(s.ctx, s.token("agent-7", []string{"write"}, time.Hour), []string{"admin", "read"})
	s.requireCode(err, dErrors.CodeInsufficientScope)
	s.ElementsMatch([]string{"read", "admin"}, dErrors.DetailsOf(err))
}

func (s *AuthenticatorSuite) TestRevocation() {
	raw := s.token("agent-7", []string{"read"}, time.Hour)
	_, err := s.auth.VerifyToken(s.ctx, raw, nil)
	s.Require().NoError(err)

	p, err := s.auth.RevokeToken(s.ctx, raw)
	s.Require().NoError(err)
	s.Equal("agent-7", p.Subject)

	_, err = s.auth.VerifyToken(s.ctx, raw, nil)
	s.requireCode(err, dErrors.CodeTokenRevoked)

	s.Run("forged tokens cannot be used to revoke", func() {
		_, err := s.auth.RevokeToken(s.ctx, "garbage")
		s.requireCode(err, dErrors.CodeAuthenticationFailed)
	})

	s.Run("revocation list outage fails closed", func() {
		broken := s.newAuthenticator(failingTRL{})
		_, err := broken.VerifyToken(s.ctx, s.token("agent-7", nil, time.Hour), nil)
		s.requireCode(err, dErrors.CodeInternal)
	})
}

func (s *AuthenticatorSuite) TestFailuresAreDistinct() {
	expired := s.token("agent-7", []string{"read"}, -time.Hour)
	revoked := s.token("agent-7", []string{"read"}, time.Hour)
	_, err := s.auth.RevokeToken(s.ctx, revoked)
	s.Require().NoError(err)
	narrow := s.token("agent-7", []string{"read"}, time.Hour)

	codes := map[dErrors.Code]bool{}
	for _, raw := range []string{expired, revoked, narrow} {
		_, err := s.auth.VerifyToken(s.ctx, raw, []string{"write"})
		s.Require().Error(err)
		codes[dErrors.CodeOf(err)] = true
	}
	s.Equal(map[dErrors.Code]bool{
		dErrors.CodeTokenExpired:      true,
		dErrors.CodeTokenRevoked:      true,
		dErrors.CodeInsufficientScope: true,
	}, codes)
}

func (s *AuthenticatorSuite) TestClaimSets() {
	s.Run("valid", func() {
		p, err := s.auth.VerifyClaims(s.ctx, s.claims(), []string{"read"})
		s.Require().NoError(err)
		s.Equal("agent-7", p.Subject)
		s.Equal("claim-1", p.TokenID)
	})

	s.Run("wrong secret and unknown subject look the same", func() {
		wrong := s.claims()
		wrong.Secret = "correct horse battery stapler"
		_, errWrong := s.auth.VerifyClaims(s.ctx, wrong, nil)
		s.requireCode(errWrong, dErrors.CodeAuthenticationFailed)

		unknown := s.claims()
		unknown.Subject = "agent-404"
		_, errUnknown := s.auth.VerifyClaims(s.ctx, unknown, nil)
		s.requireCode(errUnknown, dErrors.CodeAuthenticationFailed)
		s.Equal(errWrong.Error(), errUnknown.Error())
	})

	s.Run("disabled client", func() {
		c, err := s.clients.FindBySubject(s.ctx, "agent-7")
		s.Require().NoError(err)
		c.Subject = "agent-off"
		c.Disabled = true
		s.Require().NoError(s.clients.Save(s.ctx, c))

		off := s.claims()
		off.Subject = "agent-off"
		_, err = s.auth.VerifyClaims(s.ctx, off, nil)
		s.requireCode(err, dErrors.CodeAuthenticationFailed)
	})

	s.Run("expired", func() {
		old := s.claims()
		old.Expiry = s.now.Add(-time.Hour)
		_, err := s.auth.VerifyClaims(s.ctx, old, nil)
		s.requireCode(err, dErrors.CodeTokenExpired)
	})

	s.Run("scope beyond registration", func() {
		greedy := s.claims()
		greedy.Scope = []string{"read", "admin"}
		_, err := s.auth.VerifyClaims(s.ctx, greedy, nil)
		s.requireCode(err, dErrors.CodeAuthenticationFailed)
	})

	s.Run("insufficient scope", func() {
		_, err := s.auth.VerifyClaims(s.ctx, s.claims(), []string{"write"})
		s.requireCode(err, dErrors.CodeInsufficientScope)
	})

	s.Run("revoked by id", func() {
		s.Require().NoError(s.auth.RevokeTokenIDs(s.ctx, []string{"claim-1"}))
		_, err := s.auth.VerifyClaims(s.ctx, s.claims(), nil)
		s.requireCode(err, dErrors.CodeTokenRevoked)
	})
}

func (s *AuthenticatorSuite) TestEstablishConnection() {
	remote := models.EntityInfo{
		ID:          "agent-7",
		Credentials: models.Credentials{BearerToken: s.token("agent-7", []string{"read"}, time.Hour)},
	}
	result, err := s.auth.EstablishConnection(s.ctx, remote, models.NegotiatedParameters{RequiredScopes: []string{"read"}})
	s.Require().NoError(err)
	s.Equal(models.ProtocolAPIAuthentication, result.Properties.Protocol)
	s.Equal("agent-7", result.Properties.PeerIdentity)
	s.Equal([]string{"read"}, result.Properties.Scope)
	s.Equal(s.now, result.Properties.AuthenticatedAt)

	_, err = s.auth.EstablishConnection(s.ctx, models.EntityInfo{ID: "empty"}, models.NegotiatedParameters{})
	s.requireCode(err, dErrors.CodeAuthenticationFailed)
}

type failingTRL struct{}

func (failingTRL) RevokeToken(context.Context, string, time.Duration) error {
	return errors.New("redis: connection refused")
}

func (failingTRL) RevokeTokens(context.Context, []string, time.Duration) error {
	return errors.New("redis: connection refused")
}

func (failingTRL) IsRevoked(context.Context, string) (bool, error) {
	return false, errors.New("redis: connection refused")
}
