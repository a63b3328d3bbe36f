package discovery

import (
	"bytes"
	"context"
	"crypto/ed25519"
	"errors"
	"io"
	"sync"

	"trustmesh/internal/models"
	dErrors "trustmesh/pkg/domain-errors"
	"trustmesh/pkg/platform/sentinel"
)

const (
	trustNonceSize = 32
	messagePrefix  = "trustmesh/discovery/v1\x00"
)

// CoordinatorMessage is what the coordinator signs to answer a beacon nonce.
func CoordinatorMessage(coordinatorID, deviceID string, beaconNonce []byte) []byte {
	return message("coordinator", coordinatorID, deviceID, beaconNonce)
}

// DeviceMessage is what a device signs to answer the coordinator's nonce.
func DeviceMessage(coordinatorID, deviceID string, nonce []byte) []byte {
	return message("device", coordinatorID, deviceID, nonce)
}

// EndorsementMessage is what a trust anchor signs to endorse a device key.
func EndorsementMessage(deviceID string, publicKey ed25519.PublicKey) []byte {
	msg := make([]byte, 0, len(deviceID)+len(publicKey))
	msg = append(msg, deviceID...)
	return append(msg, publicKey...)
}

func message(role, coordinatorID, deviceID string, nonce []byte) []byte {
	var b bytes.Buffer
	b.WriteString(messagePrefix)
	b.WriteString(role)
	b.WriteByte(0)
	b.WriteString(coordinatorID)
	b.WriteByte(0)
	b.WriteString(deviceID)
	b.WriteByte(0)
	b.Write(nonce)
	return b.Bytes()
}

// AnswerChallenge is the device side of a trust exchange: it checks the
// coordinator's proof over the beacon nonce and signs the coordinator's
// nonce. A challenge with a bad proof is declined.
func AnswerChallenge(key ed25519.PrivateKey, beaconNonce []byte, challenge models.TrustChallenge) models.DiscoveryResponse {
	proof := CoordinatorMessage(challenge.CoordinatorID, challenge.DeviceID, beaconNonce)
	if len(challenge.CoordinatorKey) != ed25519.PublicKeySize ||
		!ed25519.Verify(challenge.CoordinatorKey, proof, challenge.CoordinatorSignature) {
		return models.DiscoveryResponse{Ack: false}
	}
	return models.DiscoveryResponse{
		Ack:        true,
		TrustToken: ed25519.Sign(key, DeviceMessage(challenge.CoordinatorID, challenge.DeviceID, challenge.Nonce)),
	}
}

// EstablishTrust grades a discovered device:
//   - Revoked: the device id or key is on the revocation list, or the registry
//     holds the device as Revoked; no exchange runs.
//   - Untrusted: the device did not acknowledge, answered badly or timed out.
//   - Provisional: the device proved possession of its key.
//   - Trusted: as Provisional, and a trust anchor endorsed the key.
//
// The returned error explains an Untrusted grade.
func (s *Service) EstablishTrust(ctx context.Context, device models.DiscoveredDevice) (models.TrustLevel, error) {
	if s.revoked.isRevoked(device.Device.ID, device.PublicKey) || s.registeredRevoked(ctx, device.Device.ID) {
		return models.TrustRevoked, nil
	}
	if s.identity.Key == nil {
		return models.TrustUntrusted, dErrors.New(dErrors.CodeInternal, "discovery has no signing identity")
	}

	nonce := make([]byte, trustNonceSize)
	if _, err := io.ReadFull(s.random, nonce); err != nil {
		return models.TrustUntrusted, dErrors.Wrap(err, dErrors.CodeInternal, "generate trust nonce")
	}
	challenge := models.TrustChallenge{
		DeviceID:             device.Device.ID,
		CoordinatorID:        s.identity.ID,
		CoordinatorKey:       s.identity.Key.Public().(ed25519.PublicKey),
		CoordinatorSignature: ed25519.Sign(s.identity.Key, CoordinatorMessage(s.identity.ID, device.Device.ID, device.Nonce)),
		Nonce:                nonce,
	}

	exchangeCtx := ctx
	if s.cfg.TrustTimeout > 0 {
		var cancel context.CancelFunc
		exchangeCtx, cancel = context.WithTimeout(ctx, s.cfg.TrustTimeout)
		defer cancel()
	}
	resp, err := s.exchanger.Exchange(exchangeCtx, device.Device.ID, challenge)
	if err != nil {
		if exchangeCtx.Err() != nil {
			return models.TrustUntrusted, dErrors.Wrap(err, dErrors.CodeTimeout, "trust exchange timed out")
		}
		return models.TrustUntrusted, dErrors.Wrap(err, dErrors.CodeInternal, "trust exchange failed")
	}
	if !resp.Ack {
		return models.TrustUntrusted, dErrors.New(dErrors.CodeDeviceNotRecognized, "device declined the trust challenge")
	}
	if !ed25519.Verify(device.PublicKey, DeviceMessage(s.identity.ID, device.Device.ID, nonce), resp.TrustToken) {
		return models.TrustUntrusted, dErrors.New(dErrors.CodeSignatureInvalid, "device trust token is invalid")
	}

	msg := EndorsementMessage(device.Device.ID, device.PublicKey)
	for _, anchor := range s.anchors {
		if len(device.Endorsement) > 0 && ed25519.Verify(anchor, msg, device.Endorsement) {
			return models.TrustTrusted, nil
		}
	}
	return models.TrustProvisional, nil
}

// RevokeDevice puts a device id on the revocation list and downgrades a
// registered copy to Revoked. Revoking an unregistered device is not an error.
func (s *Service) RevokeDevice(ctx context.Context, deviceID string) error {
	s.revoked.revokeDevice(deviceID)
	return s.markRevoked(ctx, deviceID)
}

// RevokeKey puts a device key on the revocation list and downgrades every
// registered device holding that key.
func (s *Service) RevokeKey(ctx context.Context, key ed25519.PublicKey) error {
	s.revoked.revokeKey(key)
	devices, err := s.registry.List(ctx)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "list registered devices")
	}
	for _, d := range devices {
		if !bytes.Equal(d.PublicKey, key) || d.TrustLevel == models.TrustRevoked {
			continue
		}
		if err := s.markRevoked(ctx, d.Device.ID); err != nil {
			return err
		}
	}
	return nil
}

func (s *Service) markRevoked(ctx context.Context, deviceID string) error {
	err := s.registry.SetTrustLevel(ctx, deviceID, models.TrustRevoked)
	if err == nil || errors.Is(err, sentinel.ErrNotFound) {
		return nil
	}
	return dErrors.Wrap(err, dErrors.CodeInternal, "revoke registered device")
}

// registeredRevoked reports whether the registry already holds deviceID as
// Revoked, so a revocation outlives the in-memory list.
func (s *Service) registeredRevoked(ctx context.Context, deviceID string) bool {
	d, err := s.registry.Get(ctx, deviceID)
	return err == nil && d.TrustLevel == models.TrustRevoked
}

type revocationList struct {
	mu      sync.RWMutex
	devices map[string]struct{}
	keys    map[string]struct{}
}

func newRevocationList() *revocationList {
	return &revocationList{
		devices: make(map[string]struct{}),
		keys:    make(map[string]struct{}),
	}
}

func (r *revocationList) revokeDevice(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.devices[id] = struct{}{}
}

func (r *revocationList) revokeKey(key ed25519.PublicKey) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.keys[string(key)] = struct{}{}
}

func (r *revocationList) isRevoked(id string, key ed25519.PublicKey) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, byID := r.devices[id]
	_, byKey := r.keys[string(key)]
	return byID || byKey
}
