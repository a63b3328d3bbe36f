package mtls

import (
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/asn1"
	"fmt"
	"slices"
	"strings"

	"trustmesh/internal/models"
)

// CapabilityExtensionOID carries the capability declaration map:
// SEQUENCE OF SEQUENCE { key UTF8String, value UTF8String }.
var CapabilityExtensionOID = asn1.ObjectIdentifier{1, 3, 6, 1, 4, 1, 59219, 1, 1}

// ProtocolsCapability is the capability key listing supported protocols.
const ProtocolsCapability = "protocols"

type capabilityEntry struct {
	Key   string `asn1:"utf8"`
	Value string `asn1:"utf8"`
}

// ExtractIdentity returns the first URI SAN, falling back to the subject
// common name. The result depends only on the certificate bytes.
func ExtractIdentity(cert Certificate) (string, error) {
	leaf, _, err := cert.parse()
	if err != nil {
		return "", err
	}
	return identityOf(leaf), nil
}

// ExtractCapabilities decodes the capability extension of the leaf.
// A certificate without the extension has no capabilities.
func ExtractCapabilities(cert Certificate) (map[string]string, error) {
	leaf, _, err := cert.parse()
	if err != nil {
		return nil, err
	}
	return capabilitiesOf(leaf)
}

func identityOf(leaf *x509.Certificate) string {
	for _, uri := range leaf.URIs {
		if uri != nil && uri.String() != "" {
			return uri.String()
		}
	}
	return leaf.Subject.CommonName
}

func capabilitiesOf(leaf *x509.Certificate) (map[string]string, error) {
	caps := map[string]string{}
	for _, ext := range leaf.Extensions {
		if !ext.Id.Equal(CapabilityExtensionOID) {
			continue
		}
		var entries []capabilityEntry
		rest, err := asn1.Unmarshal(ext.Value, &entries)
		if err != nil {
			return nil, fmt.Errorf("decode capability extension: %w", err)
		}
		if len(rest) > 0 {
			return nil, fmt.Errorf("decode capability extension: %d trailing bytes", len(rest))
		}
		for _, e := range entries {
			caps[e.Key] = e.Value
		}
	}
	return caps, nil
}

// CapabilityExtension encodes caps for inclusion in a certificate template.
// Keys are sorted so equal maps produce identical bytes.
func CapabilityExtension(caps map[string]string) (pkix.Extension, error) {
	keys := make([]string, 0, len(caps))
	for k := range caps {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	entries := make([]capabilityEntry, 0, len(keys))
	for _, k := range keys {
		entries = append(entries, capabilityEntry{Key: k, Value: caps[k]})
	}
	value, err := asn1.Marshal(entries)
	if err != nil {
		return pkix.Extension{}, fmt.Errorf("encode capability extension: %w", err)
	}
	return pkix.Extension{Id: CapabilityExtensionOID, Value: value}, nil
}

// ProtocolsFromCapabilities reads the comma separated protocol list.
// Unknown names are ignored.
func ProtocolsFromCapabilities(caps map[string]string) []models.ProtocolKind {
	var out []models.ProtocolKind
	for _, name := range strings.Split(caps[ProtocolsCapability], ",") {
		if kind, ok := models.ParseProtocolKind(name); ok && !slices.Contains(out, kind) {
			out = append(out, kind)
		}
	}
	return out
}
