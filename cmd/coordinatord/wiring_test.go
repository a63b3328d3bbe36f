package main

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"trustmesh/internal/apiauth"
	"trustmesh/internal/apiauth/store/revocation"
	"trustmesh/internal/models"
	"trustmesh/internal/platform/config"
	dErrors "trustmesh/pkg/domain-errors"
)

func TestSeededClientsAuthenticateClaimSets(t *testing.T) {
	ctx := context.Background()
	hash, err := bcrypt.GenerateFromPassword([]byte("s3cret"), bcrypt.MinCost)
	require.NoError(t, err)
	seeds, err := config.ParseAPIClients("agent-7:" + string(hash) + ":read")
	require.NoError(t, err)

	now := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
	clients, err := seedAPIClients(ctx, seeds, now)
	require.NoError(t, err)
	stored, err := clients.FindBySubject(ctx, "agent-7")
	require.NoError(t, err)
	assert.Equal(t, now, stored.CreatedAt)

	cfg := config.Default().APIAuth
	cfg.SigningKey = []byte("0123456789abcdef0123456789abcdef")
	auth := apiauth.New(cfg, revocation.NewInMemoryTRL(), clients, apiauth.WithHashCost(bcrypt.MinCost))

	claims := models.ClaimSet{
		ID:      "claims-1",
		Subject: "agent-7",
		Scope:   []string{"read"},
		Expiry:  time.Now().Add(time.Minute),
		Secret:  "s3cret",
	}
	p, err := auth.VerifyClaims(ctx, claims, nil)
	require.NoError(t, err)
	assert.Equal(t, "agent-7", p.Subject)

	claims.Secret = "wrong"
	_, err = auth.VerifyClaims(ctx, claims, nil)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeAuthenticationFailed))
}
