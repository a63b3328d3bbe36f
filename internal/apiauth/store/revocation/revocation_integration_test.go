//go:build integration

package revocation_test

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/suite"

	"trustmesh/internal/apiauth/store/revocation"
	"trustmesh/pkg/platform/tx"
	"trustmesh/pkg/testutil/containers"
)

type trl interface {
	RevokeToken(ctx context.Context, jti string, ttl time.Duration) error
	RevokeTokens(ctx context.Context, jtis []string, ttl time.Duration) error
	IsRevoked(ctx context.Context, jti string) (bool, error)
}

type RevocationSuite struct {
	suite.Suite
	redis    *containers.RedisContainer
	postgres *containers.PostgresContainer
	now      time.Time
	backends map[string]trl
}

func TestRevocationSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(RevocationSuite))
}

func (s *RevocationSuite) SetupSuite() {
	mgr := containers.GetManager()
	s.redis = mgr.GetRedis(s.T())
	s.postgres = mgr.GetPostgres(s.T())

	s.now = time.Now()
	pg := revocation.NewPostgresTRL(s.postgres.DB, revocation.WithPostgresClock(func() time.Time { return s.now }))
	s.Require().NoError(pg.EnsureSchema(context.Background()))

	latency := prometheus.NewHistogram(prometheus.HistogramOpts{Name: "test_revocation_latency"})
	s.backends = map[string]trl{
		"redis":    revocation.NewRedisTRL(s.redis.Client, revocation.WithLatencyObserver(latency)),
		"postgres": pg,
	}
}

func (s *RevocationSuite) SetupTest() {
	ctx := context.Background()
	s.now = time.Now()
	s.Require().NoError(s.redis.FlushAll(ctx))
	s.Require().NoError(s.postgres.Exec(ctx, "TRUNCATE token_revocations"))
}

func (s *RevocationSuite) TestRevokeAndCheck() {
	ctx := context.Background()
	for name, backend := range s.backends {
		s.Run(name, func() {
			s.Require().NoError(backend.RevokeToken(ctx, name+"-jti", time.Minute))
			revoked, err := backend.IsRevoked(ctx, name+"-jti")
			s.Require().NoError(err)
			s.True(revoked)

			revoked, err = backend.IsRevoked(ctx, name+"-other")
			s.Require().NoError(err)
			s.False(revoked)
		})
	}
}

func (s *RevocationSuite) TestBatch() {
	ctx := context.Background()
	for name, backend := range s.backends {
		s.Run(name, func() {
			jtis := []string{name + "-1", "", name + "-2"}
			s.Require().NoError(backend.RevokeTokens(ctx, jtis, time.Minute))
			for _, jti := range []string{name + "-1", name + "-2"} {
				revoked, err := backend.IsRevoked(ctx, jti)
				s.Require().NoError(err)
				s.True(revoked, jti)
			}
		})
	}
}

func (s *RevocationSuite) TestPostgresExpiryAndPurge() {
	ctx := context.Background()
	pg := s.backends["postgres"].(*revocation.PostgresTRL)

	s.Require().NoError(pg.RevokeToken(ctx, "short", time.Second))
	s.now = s.now.Add(time.Minute)

	revoked, err := pg.IsRevoked(ctx, "short")
	s.Require().NoError(err)
	s.False(revoked)

	purged, err := pg.Purge(ctx)
	s.Require().NoError(err)
	s.Equal(int64(1), purged)
}

func (s *RevocationSuite) TestPostgresJoinsContextTransaction() {
	ctx := context.Background()
	pg := s.backends["postgres"].(*revocation.PostgresTRL)

	sqlTx, err := s.postgres.DB.BeginTx(ctx, nil)
	s.Require().NoError(err)
	txCtx := tx.WithTx(ctx, sqlTx)
	s.Require().NoError(pg.RevokeToken(txCtx, "in-tx", time.Hour))

	revoked, err := pg.IsRevoked(txCtx, "in-tx")
	s.Require().NoError(err)
	s.True(revoked, "visible inside the transaction")

	s.Require().NoError(sqlTx.Rollback())
	revoked, err = pg.IsRevoked(ctx, "in-tx")
	s.Require().NoError(err)
	s.False(revoked, "rolled back with the transaction")
}
