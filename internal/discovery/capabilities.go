package discovery

import (
	"crypto/tls"
	"slices"

	"trustmesh/internal/models"
	"trustmesh/internal/platform/config"
	dErrors "trustmesh/pkg/domain-errors"
)

// VerifySecurityCapabilities requires at least one advertised protocol
// version at or above the floor and at least one allowed cipher suite.
// Unrecognised version and suite names count for nothing.
func (s *Service) VerifySecurityCapabilities(device models.DiscoveredDevice) error {
	var problems []string

	best := uint16(0)
	for _, v := range device.Capabilities.ProtocolVersions {
		if id, err := config.ParseTLSVersion(v); err == nil {
			best = max(best, id)
		}
	}
	if best == 0 {
		problems = append(problems, "no recognised protocol version")
	} else if best < s.cfg.MinProtocolVersion {
		problems = append(problems, "best protocol version "+tls.VersionName(best)+" below floor "+tls.VersionName(s.cfg.MinProtocolVersion))
	}

	allowed := false
	for _, name := range device.Capabilities.CipherSuites {
		id, ok := config.CipherSuiteID(name)
		if ok && (len(s.cfg.AllowedCipherSuites) == 0 || slices.Contains(s.cfg.AllowedCipherSuites, id)) {
			allowed = true
			break
		}
	}
	if !allowed {
		problems = append(problems, "no allowed cipher suite")
	}

	if len(problems) > 0 {
		return dErrors.WithDetails(dErrors.CodeProtocolViolation, "device capabilities below policy", problems...)
	}
	return nil
}
