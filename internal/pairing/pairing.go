// Package pairing runs the challenge-response exchange that binds a human
// user's device to their identity.
//
// Each attempt moves Idle → ChallengeIssued → ChallengeAnswered → Paired or
// Failed. A challenge is answered at most once: the first response consumes
// it whatever the outcome.
package pairing

import (
	"bytes"
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"errors"
	"io"
	"log/slog"
	"sync"
	"time"

	"trustmesh/internal/models"
	"trustmesh/internal/platform/config"
	"trustmesh/pkg/domain"
	dErrors "trustmesh/pkg/domain-errors"
	"trustmesh/pkg/platform/sentinel"
)

const (
	nonceSize = 32
	// messagePrefix separates pairing signatures from any other use of the
	// device key.
	messagePrefix = "trustmesh/pairing/v1\x00"
)

// BindingStore persists device bindings keyed by device id.
type BindingStore interface {
	Get(ctx context.Context, deviceID string) (models.DeviceBinding, error)
	Save(ctx context.Context, binding models.DeviceBinding) error
	// Create stores a binding only if the device has none, returning
	// sentinel.ErrConflict otherwise.
	Create(ctx context.Context, binding models.DeviceBinding) error
	Delete(ctx context.Context, deviceID string) error
}

type attempt struct {
	state       models.PairingState
	challenge   models.PairingChallenge
	userID      string
	device      models.DeviceInfo
	fingerprint string
	publicKey   ed25519.PublicKey
	existing    *models.DeviceBinding
}

type Service struct {
	cfg      config.UserPairingConfig
	bindings BindingStore
	logger   *slog.Logger
	clock    func() time.Time
	random   io.Reader

	mu       sync.Mutex
	attempts map[domain.ChallengeID]*attempt
	nonces   *nonceWindow
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithClock(clock func() time.Time) Option {
	return func(s *Service) {
		s.clock = clock
	}
}

// WithRandom replaces the nonce source; tests only.
func WithRandom(r io.Reader) Option {
	return func(s *Service) {
		s.random = r
	}
}

func New(cfg config.UserPairingConfig, bindings BindingStore, opts ...Option) *Service {
	s := &Service{
		cfg:      cfg,
		bindings: bindings,
		logger:   slog.Default(),
		clock:    time.Now,
		random:   rand.Reader,
		attempts: make(map[domain.ChallengeID]*attempt),
		nonces:   newNonceWindow(cfg.NonceWindow),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ChallengeMessage is the byte string a device signs to answer challenge.
func ChallengeMessage(challenge models.PairingChallenge) []byte {
	id := challenge.ChallengeID
	msg := make([]byte, 0, len(messagePrefix)+len(id)+len(challenge.Nonce))
	msg = append(msg, messagePrefix...)
	msg = append(msg, id[:]...)
	return append(msg, challenge.Nonce...)
}

// SignChallenge answers challenge with key. Devices and tests use it.
func SignChallenge(key ed25519.PrivateKey, challenge models.PairingChallenge) models.PairingResponse {
	return models.PairingResponse{
		ChallengeID:        challenge.ChallengeID,
		Nonce:              bytes.Clone(challenge.Nonce),
		SignatureOverNonce: ed25519.Sign(key, ChallengeMessage(challenge)),
	}
}

// InitiatePairing issues a fresh challenge for the device. A device seen
// before must be paired by the same user with the bound key; a new device
// must offer its public key.
func (s *Service) InitiatePairing(ctx context.Context, creds models.PairingCredentials, device models.DeviceInfo, params models.NegotiatedParameters) (models.PairingChallenge, error) {
	if creds.UserID == "" {
		return models.PairingChallenge{}, dErrors.New(dErrors.CodeInvalidInput, "user id required")
	}
	if device.ID == "" {
		return models.PairingChallenge{}, dErrors.New(dErrors.CodeInvalidInput, "device id required")
	}

	a := &attempt{
		userID:      creds.UserID,
		device:      device,
		fingerprint: Fingerprint(device),
	}

	binding, err := s.bindings.Get(ctx, device.ID)
	switch {
	case err == nil:
		if binding.UserID != creds.UserID {
			return models.PairingChallenge{}, dErrors.New(dErrors.CodeDeviceNotRecognized, "device is bound to another user")
		}
		if len(creds.PublicKey) > 0 && !bytes.Equal(creds.PublicKey, binding.PublicKey) {
			return models.PairingChallenge{}, dErrors.New(dErrors.CodeDeviceNotRecognized, "offered key does not match the bound key")
		}
		a.publicKey = binding.PublicKey
		a.existing = &binding
		if _, drift := CompareFingerprints(binding.Fingerprint, a.fingerprint); drift {
			s.logger.InfoContext(ctx, "device fingerprint drift",
				"device_id", device.ID,
				"user_id", creds.UserID,
			)
		}
	case errors.Is(err, sentinel.ErrNotFound):
		if len(creds.PublicKey) != ed25519.PublicKeySize {
			return models.PairingChallenge{}, dErrors.New(dErrors.CodeDeviceNotRecognized, "device has no binding and offered no public key")
		}
		a.publicKey = bytes.Clone(creds.PublicKey)
	default:
		return models.PairingChallenge{}, dErrors.Wrap(err, dErrors.CodeInternal, "load device binding")
	}

	ttl := s.cfg.NonceTTL
	if params.PairingTTL > 0 {
		ttl = params.PairingTTL
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	nonce, err := s.freshNonce()
	if err != nil {
		return models.PairingChallenge{}, dErrors.Wrap(err, dErrors.CodeInternal, "generate nonce")
	}
	a.challenge = models.PairingChallenge{
		ChallengeID: domain.NewChallengeID(),
		Nonce:       nonce,
		TTL:         ttl,
		IssuedAt:    s.clock(),
	}
	a.state = models.PairingChallengeIssued
	s.attempts[a.challenge.ChallengeID] = a

	s.logger.DebugContext(ctx, "pairing challenge issued",
		"challenge_id", a.challenge.ChallengeID.String(),
		"device_id", device.ID,
	)
	challenge := a.challenge
	challenge.Nonce = bytes.Clone(nonce)
	return challenge, nil
}

// freshNonce draws nonces until one is outside the recent window.
// Caller holds s.mu.
func (s *Service) freshNonce() ([]byte, error) {
	for range 4 {
		nonce := make([]byte, nonceSize)
		if _, err := io.ReadFull(s.random, nonce); err != nil {
			return nil, err
		}
		if s.nonces.add(nonce) {
			return nonce, nil
		}
	}
	return nil, errors.New("entropy source repeated nonces")
}

// CompleteChallenge verifies the device's answer. Any failure is terminal for
// the attempt: the caller must initiate a new pairing.
func (s *Service) CompleteChallenge(ctx context.Context, resp models.PairingResponse) (models.PairingResult, error) {
	a, err := s.consume(resp)
	if err != nil {
		return models.PairingResult{}, err
	}

	now := s.clock()
	if now.After(a.challenge.ExpiresAt()) {
		s.finish(a, models.PairingFailed)
		return models.PairingResult{}, dErrors.New(dErrors.CodeChallengeExpired, "challenge has expired")
	}
	if !bytes.Equal(resp.Nonce, a.challenge.Nonce) {
		s.finish(a, models.PairingFailed)
		return models.PairingResult{}, dErrors.New(dErrors.CodeChallengeExpired, "response carries a stale nonce")
	}
	if !ed25519.Verify(a.publicKey, ChallengeMessage(a.challenge), resp.SignatureOverNonce) {
		s.finish(a, models.PairingFailed)
		s.logger.WarnContext(ctx, "pairing signature rejected",
			"challenge_id", a.challenge.ChallengeID.String(),
			"device_id", a.device.ID,
		)
		return models.PairingResult{}, dErrors.New(dErrors.CodeSignatureInvalid, "signature over nonce is invalid")
	}

	binding := models.DeviceBinding{
		Fingerprint:  a.fingerprint,
		UserID:       a.userID,
		DeviceID:     a.device.ID,
		DisplayName:  displayName(a.device),
		PublicKey:    bytes.Clone(a.publicKey),
		CreatedAt:    now,
		LastPairedAt: now,
	}
	if a.existing != nil {
		binding.CreatedAt = a.existing.CreatedAt
		err = s.bindings.Save(ctx, binding)
	} else {
		err = s.bindings.Create(ctx, binding)
	}
	switch {
	case errors.Is(err, sentinel.ErrConflict):
		s.finish(a, models.PairingFailed)
		s.logger.WarnContext(ctx, "device bound by a concurrent pairing",
			"challenge_id", a.challenge.ChallengeID.String(),
			"device_id", a.device.ID,
		)
		return models.PairingResult{}, dErrors.New(dErrors.CodeDeviceNotRecognized, "device was bound by a concurrent pairing")
	case err != nil:
		s.finish(a, models.PairingFailed)
		return models.PairingResult{}, dErrors.Wrap(err, dErrors.CodeInternal, "persist device binding")
	}

	s.finish(a, models.PairingPaired)
	return models.PairingResult{
		UserIdentity: a.userID,
		Binding:      binding,
		NewBinding:   a.existing == nil,
	}, nil
}

// consume moves the attempt from ChallengeIssued to ChallengeAnswered. Unknown
// and already answered challenges are both reported as expired.
func (s *Service) consume(resp models.PairingResponse) (*attempt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.attempts[resp.ChallengeID]
	if !ok || a.state != models.PairingChallengeIssued {
		return nil, dErrors.New(dErrors.CodeChallengeExpired, "challenge unknown or already used")
	}
	a.state = models.PairingChallengeAnswered
	return a, nil
}

func (s *Service) finish(a *attempt, state models.PairingState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a.state = state
}

// Pair drives a whole exchange: it issues a challenge, waits for the
// credentials' responder within the response timeout and verifies the answer.
// On cancellation the attempt is failed and nothing is persisted.
func (s *Service) Pair(ctx context.Context, creds models.PairingCredentials, params models.NegotiatedParameters) (models.PairingResult, error) {
	if creds.Responder == nil {
		return models.PairingResult{}, dErrors.New(dErrors.CodeInvalidInput, "pairing credentials have no responder")
	}
	challenge, err := s.InitiatePairing(ctx, creds, creds.Device, params)
	if err != nil {
		return models.PairingResult{}, err
	}

	waitCtx := ctx
	if s.cfg.ResponseTimeout > 0 {
		var cancel context.CancelFunc
		waitCtx, cancel = context.WithTimeout(ctx, s.cfg.ResponseTimeout)
		defer cancel()
	}
	resp, err := s.await(waitCtx, creds.Responder, challenge)
	if err != nil {
		s.abandon(challenge.ChallengeID)
		if waitCtx.Err() != nil {
			return models.PairingResult{}, dErrors.Wrap(err, dErrors.CodeTimeout, "pairing response not received in time")
		}
		return models.PairingResult{}, dErrors.Wrap(err, dErrors.CodeAuthenticationFailed, "device did not answer the challenge")
	}
	return s.CompleteChallenge(ctx, resp)
}

// await runs the responder so that a responder ignoring its context cannot
// outlive the deadline.
func (s *Service) await(ctx context.Context, responder models.ChallengeResponder, challenge models.PairingChallenge) (models.PairingResponse, error) {
	type answer struct {
		resp models.PairingResponse
		err  error
	}
	done := make(chan answer, 1)
	go func() {
		resp, err := responder.Respond(ctx, challenge)
		done <- answer{resp, err}
	}()
	select {
	case a := <-done:
		return a.resp, a.err
	case <-ctx.Done():
		return models.PairingResponse{}, ctx.Err()
	}
}

func (s *Service) abandon(id domain.ChallengeID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if a, ok := s.attempts[id]; ok && !a.state.IsTerminal() {
		a.state = models.PairingFailed
	}
}

// State reports the state of a pairing attempt still held in memory.
func (s *Service) State(id domain.ChallengeID) (models.PairingState, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.attempts[id]
	if !ok {
		return models.PairingIdle, false
	}
	return a.state, true
}

// Sweep forgets attempts that are terminal or whose challenge expired before
// now. Their nonces stay in the recent window.
func (s *Service) Sweep(now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	for id, a := range s.attempts {
		if a.state.IsTerminal() || now.After(a.challenge.ExpiresAt()) {
			delete(s.attempts, id)
			removed++
		}
	}
	return removed
}

// Unbind removes a device binding so the device must register again.
func (s *Service) Unbind(ctx context.Context, deviceID string) error {
	if err := s.bindings.Delete(ctx, deviceID); err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return dErrors.New(dErrors.CodeNotFound, "device binding not found")
		}
		return dErrors.Wrap(err, dErrors.CodeInternal, "delete device binding")
	}
	return nil
}

func displayName(device models.DeviceInfo) string {
	if device.Name != "" {
		return device.Name
	}
	return ParseUserAgent(device.UserAgent)
}
