package pairing

import (
	"bytes"
	"context"
	"crypto/ed25519"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trustmesh/internal/models"
	"trustmesh/internal/pairing/store"
	"trustmesh/internal/platform/config"
	dErrors "trustmesh/pkg/domain-errors"
	"trustmesh/pkg/testutil"
)

const phoneUA = "Mozilla/5.0 (iPhone; CPU iPhone OS 17_0 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.0 Mobile/15E148 Safari/604.1"

type fixture struct {
	ctx      context.Context
	now      time.Time
	bindings *store.InMemoryStore
	svc      *Service
	pub      ed25519.PublicKey
	priv     ed25519.PrivateKey
	device   models.DeviceInfo
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	pub, priv, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)
	f := &fixture{
		ctx:      context.Background(),
		now:      time.Date(2026, 6, 1, 9, 0, 0, 0, time.UTC),
		bindings: store.NewInMemory(),
		pub:      pub,
		priv:     priv,
		device:   models.DeviceInfo{ID: "phone-1", UserAgent: phoneUA},
	}
	f.svc = New(config.Default().UserPairing, f.bindings, WithClock(func() time.Time { return f.now }))
	return f
}

func (f *fixture) creds(userID string, offerKey bool) models.PairingCredentials {
	c := models.PairingCredentials{UserID: userID, Device: f.device}
	if offerKey {
		c.PublicKey = f.pub
	}
	return c
}

func (f *fixture) pair(t *testing.T, userID string, offerKey bool) models.PairingResult {
	t.Helper()
	challenge, err := f.svc.InitiatePairing(f.ctx, f.creds(userID, offerKey), f.device, models.NegotiatedParameters{})
	require.NoError(t, err)
	result, err := f.svc.CompleteChallenge(f.ctx, SignChallenge(f.priv, challenge))
	require.NoError(t, err)
	return result
}

func TestPairingLifecycle(t *testing.T) {
	testutil.Given(t, "a new device offering its key", func(t *testing.T) {
		f := newFixture(t)
		challenge, err := f.svc.InitiatePairing(f.ctx, f.creds("alice", true), f.device, models.NegotiatedParameters{})
		require.NoError(t, err)

		testutil.Then(t, "a fresh challenge is issued", func(t *testing.T) {
			assert.Len(t, challenge.Nonce, nonceSize)
			assert.Equal(t, 120*time.Second, challenge.TTL)
			assert.Equal(t, f.now.Add(120*time.Second), challenge.ExpiresAt())
			state, ok := f.svc.State(challenge.ChallengeID)
			require.True(t, ok)
			assert.Equal(t, models.PairingChallengeIssued, state)
		})

		testutil.When(t, "the device signs the nonce", func(t *testing.T) {
			result, err := f.svc.CompleteChallenge(f.ctx, SignChallenge(f.priv, challenge))
			require.NoError(t, err)

			testutil.Then(t, "the user is paired and the binding persisted", func(t *testing.T) {
				assert.Equal(t, "alice", result.UserIdentity)
				assert.True(t, result.NewBinding)
				assert.Equal(t, Fingerprint(f.device), result.Binding.Fingerprint)
				assert.Contains(t, result.Binding.DisplayName, "Safari")

				stored, err := f.bindings.Get(f.ctx, "phone-1")
				require.NoError(t, err)
				assert.Equal(t, f.pub, stored.PublicKey)

				state, _ := f.svc.State(challenge.ChallengeID)
				assert.Equal(t, models.PairingPaired, state)
			})
		})

		testutil.When(t, "the same response is replayed", func(t *testing.T) {
			_, err := f.svc.CompleteChallenge(f.ctx, SignChallenge(f.priv, challenge))
			testutil.Then(t, "it is rejected as expired", func(t *testing.T) {
				assert.True(t, dErrors.HasCode(err, dErrors.CodeChallengeExpired))
			})
		})
	})

	testutil.Given(t, "a device paired before", func(t *testing.T) {
		f := newFixture(t)
		first := f.pair(t, "alice", true)
		f.now = f.now.Add(time.Hour)

		testutil.Then(t, "later pairings skip registration", func(t *testing.T) {
			second := f.pair(t, "alice", false)
			assert.False(t, second.NewBinding)
			assert.Equal(t, first.Binding.CreatedAt, second.Binding.CreatedAt)
			assert.Equal(t, f.now, second.Binding.LastPairedAt)
		})

		testutil.Then(t, "another user cannot pair it", func(t *testing.T) {
			_, err := f.svc.InitiatePairing(f.ctx, f.creds("mallory", true), f.device, models.NegotiatedParameters{})
			assert.True(t, dErrors.HasCode(err, dErrors.CodeDeviceNotRecognized))
		})

		testutil.Then(t, "a different key is refused", func(t *testing.T) {
			otherPub, _, err := ed25519.GenerateKey(nil)
			require.NoError(t, err)
			creds := f.creds("alice", false)
			creds.PublicKey = otherPub
			_, err = f.svc.InitiatePairing(f.ctx, creds, f.device, models.NegotiatedParameters{})
			assert.True(t, dErrors.HasCode(err, dErrors.CodeDeviceNotRecognized))
		})

		testutil.When(t, "the device is unbound", func(t *testing.T) {
			require.NoError(t, f.svc.Unbind(f.ctx, "phone-1"))
			_, err := f.svc.InitiatePairing(f.ctx, f.creds("alice", false), f.device, models.NegotiatedParameters{})
			testutil.Then(t, "it is no longer recognized", func(t *testing.T) {
				assert.True(t, dErrors.HasCode(err, dErrors.CodeDeviceNotRecognized))
			})
		})
	})
}

func TestConcurrentFirstPairingsKeepFirstKey(t *testing.T) {
	f := newFixture(t)
	otherPub, otherPriv, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)

	mine, err := f.svc.InitiatePairing(f.ctx, f.creds("alice", true), f.device, models.NegotiatedParameters{})
	require.NoError(t, err)
	theirs := f.creds("alice", false)
	theirs.PublicKey = otherPub
	rival, err := f.svc.InitiatePairing(f.ctx, theirs, f.device, models.NegotiatedParameters{})
	require.NoError(t, err)

	_, err = f.svc.CompleteChallenge(f.ctx, SignChallenge(f.priv, mine))
	require.NoError(t, err)

	_, err = f.svc.CompleteChallenge(f.ctx, SignChallenge(otherPriv, rival))
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeDeviceNotRecognized))
	state, _ := f.svc.State(rival.ChallengeID)
	assert.Equal(t, models.PairingFailed, state)

	stored, err := f.bindings.Get(f.ctx, "phone-1")
	require.NoError(t, err)
	assert.Equal(t, f.pub, stored.PublicKey)
}

func TestPairingFailures(t *testing.T) {
	t.Run("unknown device without key", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.svc.InitiatePairing(f.ctx, f.creds("alice", false), f.device, models.NegotiatedParameters{})
		assert.True(t, dErrors.HasCode(err, dErrors.CodeDeviceNotRecognized))
	})

	t.Run("challenge older than ttl", func(t *testing.T) {
		f := newFixture(t)
		challenge, err := f.svc.InitiatePairing(f.ctx, f.creds("alice", true), f.device, models.NegotiatedParameters{})
		require.NoError(t, err)
		f.now = f.now.Add(121 * time.Second)

		_, err = f.svc.CompleteChallenge(f.ctx, SignChallenge(f.priv, challenge))
		assert.True(t, dErrors.HasCode(err, dErrors.CodeChallengeExpired))
		_, err = f.bindings.Get(f.ctx, "phone-1")
		assert.Error(t, err, "nothing may be persisted")
	})

	t.Run("negotiated ttl overrides configuration", func(t *testing.T) {
		f := newFixture(t)
		challenge, err := f.svc.InitiatePairing(f.ctx, f.creds("alice", true), f.device, models.NegotiatedParameters{PairingTTL: 10 * time.Second})
		require.NoError(t, err)
		assert.Equal(t, 10*time.Second, challenge.TTL)
	})

	t.Run("bad signature fails the attempt for good", func(t *testing.T) {
		f := newFixture(t)
		challenge, err := f.svc.InitiatePairing(f.ctx, f.creds("alice", true), f.device, models.NegotiatedParameters{})
		require.NoError(t, err)

		_, impostor, err := ed25519.GenerateKey(nil)
		require.NoError(t, err)
		_, err = f.svc.CompleteChallenge(f.ctx, SignChallenge(impostor, challenge))
		assert.True(t, dErrors.HasCode(err, dErrors.CodeSignatureInvalid))
		assert.False(t, dErrors.Retryable(err))

		state, _ := f.svc.State(challenge.ChallengeID)
		assert.Equal(t, models.PairingFailed, state)

		_, err = f.svc.CompleteChallenge(f.ctx, SignChallenge(f.priv, challenge))
		assert.True(t, dErrors.HasCode(err, dErrors.CodeChallengeExpired), "a failed attempt cannot be retried")
	})

	t.Run("signature over a different nonce", func(t *testing.T) {
		f := newFixture(t)
		first, err := f.svc.InitiatePairing(f.ctx, f.creds("alice", true), f.device, models.NegotiatedParameters{})
		require.NoError(t, err)
		second, err := f.svc.InitiatePairing(f.ctx, f.creds("alice", true), f.device, models.NegotiatedParameters{})
		require.NoError(t, err)

		resp := SignChallenge(f.priv, first)
		resp.ChallengeID = second.ChallengeID
		_, err = f.svc.CompleteChallenge(f.ctx, resp)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeChallengeExpired))
	})
}

type repeatingReader struct{}

func (repeatingReader) Read(p []byte) (int, error) {
	for i := range p {
		p[i] = 7
	}
	return len(p), nil
}

func TestNonceNeverReused(t *testing.T) {
	f := newFixture(t)
	seen := map[string]bool{}
	for range 200 {
		c, err := f.svc.InitiatePairing(f.ctx, f.creds("alice", true), f.device, models.NegotiatedParameters{})
		require.NoError(t, err)
		require.False(t, seen[string(c.Nonce)])
		seen[string(c.Nonce)] = true
	}

	stuck := New(config.Default().UserPairing, f.bindings, WithRandom(repeatingReader{}))
	_, err := stuck.InitiatePairing(f.ctx, f.creds("alice", true), f.device, models.NegotiatedParameters{})
	require.NoError(t, err)
	_, err = stuck.InitiatePairing(f.ctx, f.creds("alice", true), f.device, models.NegotiatedParameters{})
	assert.True(t, dErrors.HasCode(err, dErrors.CodeInternal))
}

type signingResponder struct {
	key   ed25519.PrivateKey
	delay time.Duration
}

func (r signingResponder) Respond(ctx context.Context, c models.PairingChallenge) (models.PairingResponse, error) {
	select {
	case <-time.After(r.delay):
		return SignChallenge(r.key, c), nil
	case <-ctx.Done():
		return models.PairingResponse{}, ctx.Err()
	}
}

type refusingResponder struct{}

func (refusingResponder) Respond(context.Context, models.PairingChallenge) (models.PairingResponse, error) {
	return models.PairingResponse{}, errors.New("user declined")
}

func TestPair(t *testing.T) {
	t.Run("full exchange", func(t *testing.T) {
		f := newFixture(t)
		creds := f.creds("alice", true)
		creds.Responder = signingResponder{key: f.priv}
		result, err := f.svc.Pair(f.ctx, creds, models.NegotiatedParameters{})
		require.NoError(t, err)
		assert.Equal(t, "alice", result.UserIdentity)
	})

	t.Run("slow device times out and nothing is persisted", func(t *testing.T) {
		f := newFixture(t)
		cfg := config.Default().UserPairing
		cfg.ResponseTimeout = 20 * time.Millisecond
		svc := New(cfg, f.bindings)

		creds := f.creds("alice", true)
		creds.Responder = signingResponder{key: f.priv, delay: time.Second}
		_, err := svc.Pair(f.ctx, creds, models.NegotiatedParameters{})
		assert.True(t, dErrors.HasCode(err, dErrors.CodeTimeout))
		assert.True(t, dErrors.Retryable(err))
		_, err = f.bindings.Get(f.ctx, "phone-1")
		assert.Error(t, err)
	})

	t.Run("declined", func(t *testing.T) {
		f := newFixture(t)
		creds := f.creds("alice", true)
		creds.Responder = refusingResponder{}
		_, err := f.svc.Pair(f.ctx, creds, models.NegotiatedParameters{})
		assert.True(t, dErrors.HasCode(err, dErrors.CodeAuthenticationFailed))
	})

	t.Run("no responder", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.svc.Pair(f.ctx, f.creds("alice", true), models.NegotiatedParameters{})
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})
}

func TestSweep(t *testing.T) {
	f := newFixture(t)
	f.pair(t, "alice", true)
	pending, err := f.svc.InitiatePairing(f.ctx, f.creds("alice", false), f.device, models.NegotiatedParameters{})
	require.NoError(t, err)

	assert.Equal(t, 1, f.svc.Sweep(f.now))
	_, ok := f.svc.State(pending.ChallengeID)
	assert.True(t, ok)

	assert.Equal(t, 1, f.svc.Sweep(f.now.Add(time.Hour)))
	_, ok = f.svc.State(pending.ChallengeID)
	assert.False(t, ok)
}

func TestChallengeMessageBindsChallengeID(t *testing.T) {
	f := newFixture(t)
	a, err := f.svc.InitiatePairing(f.ctx, f.creds("alice", true), f.device, models.NegotiatedParameters{})
	require.NoError(t, err)
	b := a
	b.ChallengeID = [16]byte{1}
	assert.False(t, bytes.Equal(ChallengeMessage(a), ChallengeMessage(b)))
}
