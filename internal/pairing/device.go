package pairing

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"strings"

	"github.com/mssola/useragent"

	"trustmesh/internal/models"
)

// ParseUserAgent renders a display name such as "Chrome on macOS".
func ParseUserAgent(userAgent string) string {
	if strings.TrimSpace(userAgent) == "" {
		return "Unknown Device"
	}
	ua := useragent.New(userAgent)
	browser, _ := ua.Browser()
	if browser == "" {
		browser = "Unknown Browser"
	}
	os := ua.OS()
	if os == "" {
		os = ua.Platform()
	}
	if os == "" {
		os = "Unknown OS"
	}
	return strings.TrimSpace(browser + " on " + os)
}

// Fingerprint derives a stable device fingerprint from the device id and the
// coarse user agent: browser name, browser major version, OS and platform.
// Patch releases do not change it, major upgrades do.
func Fingerprint(device models.DeviceInfo) string {
	ua := useragent.New(device.UserAgent)
	browser, version := ua.Browser()
	major, _, _ := strings.Cut(version, ".")
	platform := device.Platform
	if platform == "" {
		platform = ua.Platform()
	}

	sum := sha256.Sum256([]byte(strings.Join([]string{
		device.ID, browser, major, ua.OS(), platform,
	}, "\x1f")))
	return hex.EncodeToString(sum[:])
}

// CompareFingerprints reports whether the fingerprints match and whether a
// mismatch should be treated as drift of a known device.
func CompareFingerprints(stored, current string) (matched bool, drift bool) {
	matched = subtle.ConstantTimeCompare([]byte(stored), []byte(current)) == 1
	return matched, !matched && stored != ""
}
