package natsbus

import (
	"testing"

	"github.com/fxamacker/cbor/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trustmesh/internal/models"
)

func TestBeaconEncodingIsDeterministic(t *testing.T) {
	beacon := models.DiscoveryBeacon{
		DeviceID:               "thermostat-1",
		AdvertisedCapabilities: []string{"user_pairing"},
		ProtocolVersions:       []string{"1.3"},
		CipherSuites:           []string{"TLS_AES_128_GCM_SHA256"},
		PublicKey:              make([]byte, 32),
		Nonce:                  []byte{1, 2, 3},
	}
	first, err := encMode.Marshal(beacon)
	require.NoError(t, err)
	second, err := encMode.Marshal(beacon)
	require.NoError(t, err)
	assert.Equal(t, first, second)

	var decoded models.DiscoveryBeacon
	require.NoError(t, cbor.Unmarshal(first, &decoded))
	assert.Equal(t, beacon.DeviceID, decoded.DeviceID)
	assert.Equal(t, beacon.Nonce, decoded.Nonce)
}

func TestTrustSubject(t *testing.T) {
	subject, err := trustSubject("lock-42")
	require.NoError(t, err)
	assert.Equal(t, "trustmesh.discovery.trust.lock-42", subject)

	for _, bad := range []string{"", "a.b", "wild*", "a b", ">"} {
		_, err := trustSubject(bad)
		assert.Error(t, err, bad)
	}
}
