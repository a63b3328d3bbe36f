package config

import (
	"crypto/tls"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"trustmesh/internal/models"
	platformstrings "trustmesh/pkg/platform/strings"
)

// Server captures daemon level configuration.
type Server struct {
	Addr            string
	AdminToken      string
	LogLevel        string
	LogFormat       string
	CoordinatorID   string
	Redis           RedisConfig
	PostgresURL     string
	NATSURL         string
	KafkaBrokers    []string
	AuditTopic      string
	JanitorInterval time.Duration
	Protocol        ProtocolConfiguration
	Identity        IdentityFiles
	RequestTimeout  time.Duration
	// APIClients seed the client store that claim-set authentication reads.
	APIClients []models.APIClient
}

// IdentityFiles locate the coordinator's trust material. An empty CA file
// disables mutual TLS; an empty discovery key disables discovery.
type IdentityFiles struct {
	TLSCAFile      string
	DiscoveryKey   string
	TrustAnchors   []string
	RevokedDevices []string
}

// RedisConfig configures the shared Redis client.
type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// FromEnv builds a Server config from environment variables so main stays lean.
// Unset variables fall back to development defaults.
func FromEnv() (Server, error) {
	var errs []error
	collect := func(err error) {
		if err != nil {
			errs = append(errs, err)
		}
	}

	cfg := Server{
		Addr:          envString("TRUSTMESH_ADDR", ":8080"),
		AdminToken:    os.Getenv("TRUSTMESH_ADMIN_TOKEN"),
		LogLevel:      envString("TRUSTMESH_LOG_LEVEL", "info"),
		LogFormat:     envString("TRUSTMESH_LOG_FORMAT", "json"),
		CoordinatorID: envString("TRUSTMESH_COORDINATOR_ID", "coordinator"),
		PostgresURL:   os.Getenv("TRUSTMESH_POSTGRES_URL"),
		NATSURL:       os.Getenv("TRUSTMESH_NATS_URL"),
		KafkaBrokers:  envList("TRUSTMESH_KAFKA_BROKERS"),
		AuditTopic:    envString("TRUSTMESH_AUDIT_TOPIC", "trustmesh.audit"),
		Redis: RedisConfig{
			URL:          os.Getenv("TRUSTMESH_REDIS_URL"),
			PoolSize:     10,
			MinIdleConns: 2,
			DialTimeout:  5 * time.Second,
			ReadTimeout:  3 * time.Second,
			WriteTimeout: 3 * time.Second,
		},
		Protocol: Default(),
		Identity: IdentityFiles{
			TLSCAFile:      os.Getenv("TRUSTMESH_TLS_CA_FILE"),
			DiscoveryKey:   os.Getenv("TRUSTMESH_DISCOVERY_KEY"),
			TrustAnchors:   envList("TRUSTMESH_DISCOVERY_TRUST_ANCHORS"),
			RevokedDevices: envList("TRUSTMESH_DISCOVERY_REVOKED_DEVICES"),
		},
	}

	var err error
	cfg.JanitorInterval, err = envDuration("TRUSTMESH_JANITOR_INTERVAL", 30*time.Second)
	collect(err)
	cfg.RequestTimeout, err = envDuration("TRUSTMESH_REQUEST_TIMEOUT", 30*time.Second)
	collect(err)
	cfg.APIClients, err = ParseAPIClients(os.Getenv("TRUSTMESH_API_CLIENTS"))
	collect(err)
	cfg.Redis.PoolSize, err = envInt("TRUSTMESH_REDIS_POOL_SIZE", cfg.Redis.PoolSize)
	collect(err)

	p := &cfg.Protocol
	if v := os.Getenv("TRUSTMESH_TLS_MIN_VERSION"); v != "" {
		p.MutualTLS.MinVersion, err = ParseTLSVersion(v)
		collect(err)
	}
	if names := envList("TRUSTMESH_TLS_CIPHER_SUITES"); len(names) > 0 {
		p.MutualTLS.CipherSuites, err = ParseCipherSuites(names)
		collect(err)
	}
	if v := os.Getenv("TRUSTMESH_TLS_STRICTNESS"); v != "" {
		p.MutualTLS.Strictness, err = ParseStrictness(v)
		collect(err)
	}
	p.MutualTLS.HandshakeTimeout, err = envDuration("TRUSTMESH_TLS_HANDSHAKE_TIMEOUT", p.MutualTLS.HandshakeTimeout)
	collect(err)

	p.APIAuth.SigningKey = []byte(envString("TRUSTMESH_API_SIGNING_KEY", "dev-signing-key-change-in-production"))
	if issuers := envList("TRUSTMESH_API_ALLOWED_ISSUERS"); len(issuers) > 0 {
		p.APIAuth.AllowedIssuers = issuers
	}
	p.APIAuth.Audience = envString("TRUSTMESH_API_AUDIENCE", p.APIAuth.Audience)
	p.APIAuth.RequiredScopes = envList("TRUSTMESH_API_REQUIRED_SCOPES")
	p.APIAuth.ClockSkew, err = envDuration("TRUSTMESH_API_CLOCK_SKEW", p.APIAuth.ClockSkew)
	collect(err)

	p.UserPairing.NonceTTL, err = envDuration("TRUSTMESH_PAIRING_NONCE_TTL", p.UserPairing.NonceTTL)
	collect(err)
	p.DeviceDiscovery.Window, err = envDuration("TRUSTMESH_DISCOVERY_WINDOW", p.DeviceDiscovery.Window)
	collect(err)
	p.Session.Timeout, err = envDuration("TRUSTMESH_SESSION_TIMEOUT", p.Session.Timeout)
	collect(err)

	for _, name := range envList("TRUSTMESH_DISABLED_PROTOCOLS") {
		kind, ok := parseProtocol(name)
		if !ok {
			collect(fmt.Errorf("TRUSTMESH_DISABLED_PROTOCOLS: unknown protocol %q", name))
			continue
		}
		p.Negotiation.Disabled = append(p.Negotiation.Disabled, kind)
	}

	if len(errs) > 0 {
		return Server{}, errors.Join(errs...)
	}
	if err := cfg.Protocol.Validate(); err != nil {
		return Server{}, err
	}
	return cfg, nil
}

// ParseAPIClients reads semicolon separated "subject:bcrypt-hash:scopes"
// entries, where scopes are space or comma separated. Secrets are never
// configured in clear text.
func ParseAPIClients(raw string) ([]models.APIClient, error) {
	var out []models.APIClient
	for _, entry := range strings.Split(raw, ";") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		parts := strings.SplitN(entry, ":", 3)
		if len(parts) < 2 || strings.TrimSpace(parts[0]) == "" {
			return nil, fmt.Errorf("TRUSTMESH_API_CLIENTS: malformed entry %q", entry)
		}
		subject, hash := strings.TrimSpace(parts[0]), strings.TrimSpace(parts[1])
		if _, err := bcrypt.Cost([]byte(hash)); err != nil {
			return nil, fmt.Errorf("TRUSTMESH_API_CLIENTS: client %q: secret is not a bcrypt hash: %w", subject, err)
		}
		c := models.APIClient{Subject: subject, SecretHash: hash}
		if len(parts) == 3 {
			c.Scopes = platformstrings.SplitList(strings.ReplaceAll(parts[2], " ", ","))
		}
		out = append(out, c)
	}
	return out, nil
}

// ParseTLSVersion accepts "1.2", "tls1.2", "TLS 1.3" and similar.
func ParseTLSVersion(s string) (uint16, error) {
	v := strings.ToLower(strings.ReplaceAll(strings.TrimSpace(s), " ", ""))
	v = strings.TrimPrefix(v, "tls")
	v = strings.TrimPrefix(v, "v")
	switch v {
	case "1.0", "10":
		return tls.VersionTLS10, nil
	case "1.1", "11":
		return tls.VersionTLS11, nil
	case "1.2", "12":
		return tls.VersionTLS12, nil
	case "1.3", "13":
		return tls.VersionTLS13, nil
	default:
		return 0, fmt.Errorf("unknown TLS version %q", s)
	}
}

// CipherSuiteID resolves an IANA cipher suite name, including insecure suites
// so they can be recognised and rejected.
func CipherSuiteID(name string) (uint16, bool) {
	name = strings.TrimSpace(name)
	for _, cs := range tls.CipherSuites() {
		if cs.Name == name {
			return cs.ID, true
		}
	}
	for _, cs := range tls.InsecureCipherSuites() {
		if cs.Name == name {
			return cs.ID, true
		}
	}
	return 0, false
}

func ParseCipherSuites(names []string) ([]uint16, error) {
	ids := make([]uint16, 0, len(names))
	for _, name := range names {
		id, ok := CipherSuiteID(name)
		if !ok {
			return nil, fmt.Errorf("unknown cipher suite %q", name)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func envString(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func envList(key string) []string {
	return platformstrings.SplitList(os.Getenv(key))
}

func envDuration(key string, fallback time.Duration) (time.Duration, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return d, nil
}

func envInt(key string, fallback int) (int, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return n, nil
}
