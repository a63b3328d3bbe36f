// Package discovery finds devices announcing themselves on the network,
// checks their advertised security capabilities and runs a mutual challenge
// to grade how far they can be trusted. Only Trusted devices are registered.
package discovery

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"io"
	"log/slog"
	"time"

	"trustmesh/internal/models"
	"trustmesh/internal/platform/config"
)

// BeaconSource delivers beacons until ctx is done, then closes the channel.
type BeaconSource interface {
	Subscribe(ctx context.Context) (<-chan models.DiscoveryBeacon, error)
}

// TrustExchanger carries a trust challenge to a device and returns its answer.
type TrustExchanger interface {
	Exchange(ctx context.Context, deviceID string, challenge models.TrustChallenge) (models.DiscoveryResponse, error)
}

// Registry persists registered devices. Implementations return sentinel errors.
type Registry interface {
	Register(ctx context.Context, device models.RegisteredDevice) error
	Get(ctx context.Context, deviceID string) (models.RegisteredDevice, error)
	List(ctx context.Context) ([]models.RegisteredDevice, error)
	// SetTrustLevel changes the level of a registered device, returning
	// sentinel.ErrNotFound when it is absent.
	SetTrustLevel(ctx context.Context, deviceID string, level models.TrustLevel) error
}

// Identity is the coordinator's signing identity in trust exchanges.
type Identity struct {
	ID  string
	Key ed25519.PrivateKey
}

type Service struct {
	cfg       config.DeviceDiscoveryConfig
	identity  Identity
	source    BeaconSource
	exchanger TrustExchanger
	registry  Registry
	anchors   []ed25519.PublicKey
	revoked   *revocationList
	logger    *slog.Logger
	clock     func() time.Time
	random    io.Reader
	parallel  int
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

// WithTrustAnchors sets the keys whose endorsement lifts a device to Trusted.
func WithTrustAnchors(anchors ...ed25519.PublicKey) Option {
	return func(s *Service) {
		s.anchors = append(s.anchors, anchors...)
	}
}

// WithRevokedDevices marks device ids as revoked from the start.
func WithRevokedDevices(deviceIDs ...string) Option {
	return func(s *Service) {
		for _, id := range deviceIDs {
			s.revoked.revokeDevice(id)
		}
	}
}

// WithParallelism bounds concurrent verification during DiscoverAndRegister.
func WithParallelism(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.parallel = n
		}
	}
}

func New(cfg config.DeviceDiscoveryConfig, identity Identity, source BeaconSource, exchanger TrustExchanger, registry Registry, opts ...Option) *Service {
	s := &Service{
		cfg:       cfg,
		identity:  identity,
		source:    source,
		exchanger: exchanger,
		registry:  registry,
		revoked:   newRevocationList(),
		logger:    slog.Default(),
		clock:     time.Now,
		random:    rand.Reader,
		parallel:  16,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Discover listens for one window (bounded further by ctx) and returns the
// devices seen, deduplicated by device id with the latest beacon winning.
// Beacons that cannot describe a device are dropped. Callers invoke it again
// for a new batch.
func (s *Service) Discover(ctx context.Context) ([]models.DiscoveredDevice, error) {
	window := s.cfg.Window
	if window <= 0 {
		window = 5 * time.Second
	}
	listenCtx, cancel := context.WithTimeout(ctx, window)
	defer cancel()

	beacons, err := s.source.Subscribe(listenCtx)
	if err != nil {
		return nil, err
	}

	var order []string
	seen := make(map[string]models.DiscoveredDevice)
	for {
		select {
		case <-listenCtx.Done():
			return collect(order, seen), nil
		case b, ok := <-beacons:
			if !ok {
				return collect(order, seen), nil
			}
			device, valid := s.fromBeacon(b)
			if !valid {
				s.logger.DebugContext(ctx, "discarding malformed beacon", "device_id", b.DeviceID)
				continue
			}
			if _, dup := seen[device.Device.ID]; !dup {
				if s.cfg.MaxBatch > 0 && len(order) >= s.cfg.MaxBatch {
					return collect(order, seen), nil
				}
				order = append(order, device.Device.ID)
			}
			seen[device.Device.ID] = device
		}
	}
}

func collect(order []string, seen map[string]models.DiscoveredDevice) []models.DiscoveredDevice {
	out := make([]models.DiscoveredDevice, 0, len(order))
	for _, id := range order {
		out = append(out, seen[id])
	}
	return out
}

func (s *Service) fromBeacon(b models.DiscoveryBeacon) (models.DiscoveredDevice, bool) {
	if b.DeviceID == "" || len(b.PublicKey) != ed25519.PublicKeySize || len(b.Nonce) == 0 {
		return models.DiscoveredDevice{}, false
	}
	var protocols []models.ProtocolKind
	for _, name := range b.AdvertisedCapabilities {
		if p, ok := models.ParseProtocolKind(name); ok {
			protocols = append(protocols, p)
		}
	}
	return models.DiscoveredDevice{
		Device: models.DeviceInfo{ID: b.DeviceID, Name: b.Name},
		Capabilities: models.SecurityCapabilities{
			Protocols:        protocols,
			ProtocolVersions: b.ProtocolVersions,
			CipherSuites:     b.CipherSuites,
		},
		PublicKey:   ed25519.PublicKey(b.PublicKey),
		Endorsement: b.Endorsement,
		Nonce:       b.Nonce,
		ObservedAt:  s.clock(),
	}, true
}
