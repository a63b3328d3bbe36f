// Package natsbus carries discovery traffic over NATS. Beacons are published
// on one subject; each device answers trust challenges on its own subject.
// Payloads are CBOR.
package natsbus

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/fxamacker/cbor/v2"
	"github.com/nats-io/nats.go"

	"trustmesh/internal/models"
)

const (
	DefaultBeaconSubject = "trustmesh.discovery.beacons"
	trustSubjectPrefix   = "trustmesh.discovery.trust."
)

var encMode = mustEncMode()

func mustEncMode() cbor.EncMode {
	em, err := cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic(err)
	}
	return em
}

type Bus struct {
	nc            *nats.Conn
	beaconSubject string
	buffer        int
	logger        *slog.Logger
}

type Option func(*Bus)

func WithBeaconSubject(subject string) Option {
	return func(b *Bus) {
		b.beaconSubject = subject
	}
}

// WithBuffer sets how many undelivered beacons a subscription holds before
// dropping new ones.
func WithBuffer(n int) Option {
	return func(b *Bus) {
		if n > 0 {
			b.buffer = n
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(b *Bus) {
		b.logger = logger
	}
}

func New(nc *nats.Conn, opts ...Option) *Bus {
	b := &Bus{
		nc:            nc,
		beaconSubject: DefaultBeaconSubject,
		buffer:        256,
		logger:        slog.Default(),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Subscribe delivers decoded beacons until ctx is done. Undecodable payloads
// are skipped.
func (b *Bus) Subscribe(ctx context.Context) (<-chan models.DiscoveryBeacon, error) {
	out := make(chan models.DiscoveryBeacon, b.buffer)
	var (
		mu     sync.Mutex
		closed bool
	)
	sub, err := b.nc.Subscribe(b.beaconSubject, func(msg *nats.Msg) {
		var beacon models.DiscoveryBeacon
		if err := cbor.Unmarshal(msg.Data, &beacon); err != nil {
			b.logger.Debug("discarding undecodable beacon", "error", err)
			return
		}
		mu.Lock()
		defer mu.Unlock()
		if closed {
			return
		}
		select {
		case out <- beacon:
		default:
			b.logger.Warn("beacon buffer full, dropping beacon", "device_id", beacon.DeviceID)
		}
	})
	if err != nil {
		return nil, fmt.Errorf("subscribe to beacons: %w", err)
	}

	go func() {
		<-ctx.Done()
		_ = sub.Unsubscribe()
		mu.Lock()
		closed = true
		close(out)
		mu.Unlock()
	}()
	return out, nil
}

// Exchange sends challenge to the device and waits for its answer until ctx
// is done.
func (b *Bus) Exchange(ctx context.Context, deviceID string, challenge models.TrustChallenge) (models.DiscoveryResponse, error) {
	subject, err := trustSubject(deviceID)
	if err != nil {
		return models.DiscoveryResponse{}, err
	}
	data, err := encMode.Marshal(challenge)
	if err != nil {
		return models.DiscoveryResponse{}, fmt.Errorf("encode trust challenge: %w", err)
	}
	msg, err := b.nc.RequestWithContext(ctx, subject, data)
	if err != nil {
		return models.DiscoveryResponse{}, fmt.Errorf("trust exchange with %s: %w", deviceID, err)
	}
	var resp models.DiscoveryResponse
	if err := cbor.Unmarshal(msg.Data, &resp); err != nil {
		return models.DiscoveryResponse{}, fmt.Errorf("decode discovery response: %w", err)
	}
	return resp, nil
}

// Announce publishes a beacon. Devices use it.
func (b *Bus) Announce(beacon models.DiscoveryBeacon) error {
	data, err := encMode.Marshal(beacon)
	if err != nil {
		return fmt.Errorf("encode beacon: %w", err)
	}
	return b.nc.Publish(b.beaconSubject, data)
}

// ServeTrust answers trust challenges addressed to deviceID. Devices use it.
func (b *Bus) ServeTrust(deviceID string, answer func(models.TrustChallenge) models.DiscoveryResponse) (*nats.Subscription, error) {
	subject, err := trustSubject(deviceID)
	if err != nil {
		return nil, err
	}
	return b.nc.Subscribe(subject, func(msg *nats.Msg) {
		var challenge models.TrustChallenge
		resp := models.DiscoveryResponse{}
		if err := cbor.Unmarshal(msg.Data, &challenge); err == nil {
			resp = answer(challenge)
		}
		data, err := encMode.Marshal(resp)
		if err != nil {
			return
		}
		_ = msg.Respond(data)
	})
}

func trustSubject(deviceID string) (string, error) {
	if deviceID == "" || strings.ContainsAny(deviceID, ".*> \t\r\n") {
		return "", fmt.Errorf("device id %q is not a valid subject token", deviceID)
	}
	return trustSubjectPrefix + deviceID, nil
}
