package main

import (
	"context"
	"crypto/ed25519"
	"crypto/x509"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/lib/pq"
	"github.com/nats-io/nats.go"
	"github.com/prometheus/client_golang/prometheus"

	"trustmesh/internal/apiauth"
	clientstore "trustmesh/internal/apiauth/store/client"
	"trustmesh/internal/apiauth/store/revocation"
	"trustmesh/internal/coordinator"
	"trustmesh/internal/discovery"
	"trustmesh/internal/discovery/natsbus"
	"trustmesh/internal/discovery/registry"
	"trustmesh/internal/models"
	"trustmesh/internal/mtls"
	"trustmesh/internal/negotiation"
	"trustmesh/internal/pairing"
	pairingstore "trustmesh/internal/pairing/store"
	"trustmesh/internal/platform/config"
	"trustmesh/internal/platform/metrics"
	redisclient "trustmesh/internal/platform/redis"
	"trustmesh/internal/session"
	sessionstore "trustmesh/internal/session/store"
	audit "trustmesh/pkg/platform/audit"
	"trustmesh/pkg/platform/audit/publisher"
	"trustmesh/pkg/platform/audit/sink/kafka"
	auditmemory "trustmesh/pkg/platform/audit/store/memory"
)

type dependencies struct {
	coordinator *coordinator.Coordinator
	auditSink   *kafka.Sink
	revocations *revocation.PostgresTRL
	closers     []func()
}

func (d *dependencies) close() {
	for i := len(d.closers) - 1; i >= 0; i-- {
		d.closers[i]()
	}
	d.closers = nil
}

// buildDependencies picks durable backends where they are configured and
// in-memory ones otherwise.
func buildDependencies(ctx context.Context, cfg config.Server, log *slog.Logger) (_ *dependencies, err error) {
	deps := &dependencies{}
	defer func() {
		if err != nil {
			deps.close()
		}
	}()

	m := metrics.NewWithRegisterer(prometheus.DefaultRegisterer)

	rdb, err := redisclient.New(ctx, cfg.Redis)
	if err != nil {
		return nil, err
	}
	if rdb != nil {
		deps.closers = append(deps.closers, func() { _ = rdb.Close() })
		log.Info("redis connected")
	}

	var pool *pgxpool.Pool
	var db *sql.DB
	if cfg.PostgresURL != "" {
		if pool, err = pgxpool.New(ctx, cfg.PostgresURL); err != nil {
			return nil, fmt.Errorf("connect postgres: %w", err)
		}
		deps.closers = append(deps.closers, pool.Close)
		if db, err = sql.Open("postgres", cfg.PostgresURL); err != nil {
			return nil, fmt.Errorf("open postgres: %w", err)
		}
		deps.closers = append(deps.closers, func() { _ = db.Close() })
		if err := db.PingContext(ctx); err != nil {
			return nil, fmt.Errorf("ping postgres: %w", err)
		}
		log.Info("postgres connected")
	}

	emitter, err := buildAudit(ctx, cfg, deps, log)
	if err != nil {
		return nil, err
	}

	p := cfg.Protocol

	var sessions *session.Manager
	if rdb != nil {
		sessions = session.New(sessionstore.NewRedis(rdb.Client), p.Session, session.WithLogger(log))
	} else {
		sessions = session.New(sessionstore.NewInMemory(), p.Session, session.WithLogger(log))
	}

	var trl apiauth.RevocationList
	switch {
	case db != nil:
		pg := revocation.NewPostgresTRL(db)
		if err := pg.EnsureSchema(ctx); err != nil {
			return nil, fmt.Errorf("revocation schema: %w", err)
		}
		trl = pg
		deps.revocations = pg
	case rdb != nil:
		trl = revocation.NewRedisTRL(rdb.Client, revocation.WithLatencyObserver(m.RevocationCheckLatency))
	default:
		trl = revocation.NewInMemoryTRL()
	}
	clients, err := seedAPIClients(ctx, cfg.APIClients, time.Now())
	if err != nil {
		return nil, err
	}
	if len(cfg.APIClients) == 0 {
		log.Warn("no API clients configured; claim-set authentication will reject every client")
	} else {
		log.Info("API clients loaded", "count", len(cfg.APIClients))
	}
	apiAuth := apiauth.New(p.APIAuth, trl, clients, apiauth.WithLogger(log))

	var bindings pairing.BindingStore = pairingstore.NewInMemory()
	if rdb != nil {
		bindings = pairingstore.NewRedis(rdb.Client)
	}
	pairer := pairing.New(p.UserPairing, bindings, pairing.WithLogger(log))

	opts := []coordinator.Option{
		coordinator.WithLogger(log),
		coordinator.WithMetrics(m),
		coordinator.WithAuditPublisher(emitter),
		coordinator.WithAPIAuthentication(apiAuth),
		coordinator.WithUserPairing(pairer),
	}

	if cfg.Identity.TLSCAFile != "" {
		roots, err := loadRoots(cfg.Identity.TLSCAFile)
		if err != nil {
			return nil, err
		}
		verifier := mtls.NewVerifier(roots, p.MutualTLS)
		opts = append(opts, coordinator.WithMutualTLS(mtls.NewEstablisher(verifier, p.MutualTLS, mtls.WithLogger(log))))
	} else {
		log.Warn("mutual TLS disabled: no CA file configured")
	}

	disc, err := buildDiscovery(ctx, cfg, pool, deps, log)
	if err != nil {
		return nil, err
	}
	if disc != nil {
		opts = append(opts, coordinator.WithDiscovery(disc))
	}

	deps.coordinator = coordinator.New(negotiation.New(p, negotiation.WithLogger(log)), sessions, opts...)
	return deps, nil
}

// buildAudit keeps recent events in memory and, when brokers are configured,
// copies every event to Kafka.
func buildAudit(ctx context.Context, cfg config.Server, deps *dependencies, log *slog.Logger) (audit.Emitter, error) {
	var store audit.Store = auditmemory.NewInMemoryStore()
	if len(cfg.KafkaBrokers) > 0 {
		client, err := kafka.NewClient(ctx, cfg.KafkaBrokers, cfg.AuditTopic)
		if err != nil {
			return nil, err
		}
		deps.closers = append(deps.closers, client.Close)
		sink := kafka.New(client, cfg.AuditTopic, kafka.WithLogger(log))
		deps.closers = append(deps.closers, func() {
			flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := sink.Flush(flushCtx); err != nil {
				log.Warn("audit flush on shutdown failed", "error", err, "pending", sink.Pending())
			}
		})
		deps.auditSink = sink
		store = audit.NewFanOut(store, deps.auditSink)
		log.Info("audit events forwarded to kafka", "topic", cfg.AuditTopic)
	}
	pub := publisher.NewPublisher(store, publisher.WithAsyncBuffer(1024))
	deps.closers = append(deps.closers, pub.Close)
	return pub, nil
}

func buildDiscovery(ctx context.Context, cfg config.Server, pool *pgxpool.Pool, deps *dependencies, log *slog.Logger) (*discovery.Service, error) {
	if cfg.NATSURL == "" || cfg.Identity.DiscoveryKey == "" {
		log.Warn("device discovery disabled: NATS URL or discovery key not configured")
		return nil, nil
	}

	seed, err := hex.DecodeString(cfg.Identity.DiscoveryKey)
	if err != nil || len(seed) != ed25519.SeedSize {
		return nil, errors.New("TRUSTMESH_DISCOVERY_KEY must be a hex-encoded 32-byte ed25519 seed")
	}
	anchors := make([]ed25519.PublicKey, 0, len(cfg.Identity.TrustAnchors))
	for _, a := range cfg.Identity.TrustAnchors {
		key, err := hex.DecodeString(a)
		if err != nil || len(key) != ed25519.PublicKeySize {
			return nil, fmt.Errorf("invalid trust anchor %q", a)
		}
		anchors = append(anchors, ed25519.PublicKey(key))
	}

	nc, err := nats.Connect(cfg.NATSURL, nats.Name("trustmesh-"+cfg.CoordinatorID))
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}
	deps.closers = append(deps.closers, nc.Close)
	bus := natsbus.New(nc, natsbus.WithLogger(log))

	var reg discovery.Registry = registry.NewInMemory()
	if pool != nil {
		pg := registry.NewPostgres(pool)
		if err := pg.EnsureSchema(ctx); err != nil {
			return nil, fmt.Errorf("device registry schema: %w", err)
		}
		reg = pg
	}

	identity := discovery.Identity{ID: cfg.CoordinatorID, Key: ed25519.NewKeyFromSeed(seed)}
	return discovery.New(cfg.Protocol.DeviceDiscovery, identity, bus, bus, reg,
		discovery.WithLogger(log),
		discovery.WithTrustAnchors(anchors...),
		discovery.WithRevokedDevices(cfg.Identity.RevokedDevices...),
	), nil
}

func loadRoots(path string) (*x509.CertPool, error) {
	pem, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read CA file: %w", err)
	}
	roots := x509.NewCertPool()
	if !roots.AppendCertsFromPEM(pem) {
		return nil, fmt.Errorf("no certificates in %s", path)
	}
	return roots, nil
}

// purgeRevocations drops expired revocation rows every interval. Redis expires
// its entries itself.
func purgeRevocations(ctx context.Context, trl *revocation.PostgresTRL, interval time.Duration, log *slog.Logger) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			n, err := trl.Purge(ctx)
			if err != nil {
				log.WarnContext(ctx, "revocation purge failed", "error", err)
				continue
			}
			if n > 0 {
				log.DebugContext(ctx, "purged expired revocations", "count", n)
			}
		}
	}
}

func seedAPIClients(ctx context.Context, seeds []models.APIClient, now time.Time) (*clientstore.InMemoryStore, error) {
	store := clientstore.NewInMemory()
	for _, c := range seeds {
		c.CreatedAt = now
		if err := store.Save(ctx, c); err != nil {
			return nil, fmt.Errorf("seed api client %q: %w", c.Subject, err)
		}
	}
	return store, nil
}
