package discovery

import (
	"context"
	"slices"
	"strings"

	"golang.org/x/sync/errgroup"

	"trustmesh/internal/models"
	dErrors "trustmesh/pkg/domain-errors"
)

// Stage names where a device's registration stopped.
type Stage string

const (
	StageCapabilities Stage = "capabilities"
	StageTrust        Stage = "trust"
	StageRegistry     Stage = "registry"
	StageRegistered   Stage = "registered"
)

// Outcome is what happened to one discovered device.
type Outcome struct {
	DeviceID string
	Stage    Stage
	Level    models.TrustLevel
	Err      error
}

// Report summarises one discovery batch.
type Report struct {
	Discovered []models.DiscoveredDevice
	Registered []models.RegisteredDevice
	Outcomes   []Outcome
}

// DiscoverAndRegister runs one discovery window, then verifies every device
// concurrently. A device is registered only when capability verification and
// trust establishment both succeed with Trusted; any other result leaves no
// new registry entry. A registered device graded Revoked is downgraded in place.
func (s *Service) DiscoverAndRegister(ctx context.Context) (Report, error) {
	devices, err := s.Discover(ctx)
	if err != nil {
		return Report{}, dErrors.Wrap(err, dErrors.CodeInternal, "discover devices")
	}

	outcomes := make([]Outcome, len(devices))
	registered := make([]*models.RegisteredDevice, len(devices))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.parallel)
	for i, device := range devices {
		g.Go(func() error {
			outcomes[i], registered[i] = s.admit(gctx, device)
			return nil
		})
	}
	_ = g.Wait()

	report := Report{Discovered: devices, Outcomes: outcomes}
	for _, r := range registered {
		if r != nil {
			report.Registered = append(report.Registered, *r)
		}
	}
	slices.SortFunc(report.Registered, func(a, b models.RegisteredDevice) int {
		return strings.Compare(a.Device.ID, b.Device.ID)
	})
	return report, nil
}

func (s *Service) admit(ctx context.Context, device models.DiscoveredDevice) (Outcome, *models.RegisteredDevice) {
	out := Outcome{DeviceID: device.Device.ID, Level: models.TrustUntrusted}

	if err := s.VerifySecurityCapabilities(device); err != nil {
		out.Stage, out.Err = StageCapabilities, err
		s.logger.InfoContext(ctx, "device rejected by capability policy",
			"device_id", device.Device.ID,
			"details", dErrors.DetailsOf(err),
		)
		return out, nil
	}

	level, err := s.EstablishTrust(ctx, device)
	out.Level = level
	if level == models.TrustRevoked {
		if err := s.markRevoked(ctx, device.Device.ID); err != nil {
			out.Stage, out.Err = StageRegistry, err
			return out, nil
		}
	}
	if level != models.TrustTrusted {
		out.Stage, out.Err = StageTrust, err
		s.logger.InfoContext(ctx, "device not trusted",
			"device_id", device.Device.ID,
			"trust_level", level.String(),
			"error", err,
		)
		return out, nil
	}

	reg := models.RegisteredDevice{
		Device:       device.Device,
		Capabilities: device.Capabilities,
		TrustLevel:   level,
		PublicKey:    device.PublicKey,
		RegisteredAt: s.clock(),
	}
	if err := s.registry.Register(ctx, reg); err != nil {
		out.Stage, out.Err = StageRegistry, dErrors.Wrap(err, dErrors.CodeInternal, "register device")
		return out, nil
	}
	out.Stage = StageRegistered
	return out, &reg
}

// Registered lists the registry contents.
func (s *Service) Registered(ctx context.Context) ([]models.RegisteredDevice, error) {
	devices, err := s.registry.List(ctx)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "list registered devices")
	}
	return devices, nil
}
