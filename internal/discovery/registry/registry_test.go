package registry

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trustmesh/internal/models"
	"trustmesh/pkg/platform/sentinel"
)

func TestInMemoryRegistry(t *testing.T) {
	ctx := context.Background()
	r := NewInMemory()

	_, err := r.Get(ctx, "missing")
	assert.ErrorIs(t, err, sentinel.ErrNotFound)

	at := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	for _, id := range []string{"b", "a"} {
		require.NoError(t, r.Register(ctx, models.RegisteredDevice{
			Device:       models.DeviceInfo{ID: id},
			TrustLevel:   models.TrustTrusted,
			RegisteredAt: at,
		}))
	}
	require.NoError(t, r.Register(ctx, models.RegisteredDevice{
		Device:       models.DeviceInfo{ID: "a", Name: "refreshed"},
		TrustLevel:   models.TrustTrusted,
		RegisteredAt: at.Add(time.Hour),
	}))

	got, err := r.Get(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, "refreshed", got.Device.Name)

	list, err := r.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "a", list[0].Device.ID)
	assert.Equal(t, "b", list[1].Device.ID)

	require.NoError(t, r.SetTrustLevel(ctx, "b", models.TrustRevoked))
	got, err = r.Get(ctx, "b")
	require.NoError(t, err)
	assert.Equal(t, models.TrustRevoked, got.TrustLevel)
	assert.ErrorIs(t, r.SetTrustLevel(ctx, "missing", models.TrustRevoked), sentinel.ErrNotFound)
}
