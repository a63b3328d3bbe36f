package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the coordinator's Prometheus collectors.
type Metrics struct {
	ConnectionsEstablished *prometheus.CounterVec
	EstablishmentFailures  *prometheus.CounterVec
	ConnectionsTerminated  *prometheus.CounterVec
	ActiveConnections      prometheus.Gauge
	SessionRenewals        *prometheus.CounterVec
	SessionValidations     *prometheus.CounterVec
	CleanupFailures        prometheus.Counter
	DevicesDiscovered      prometheus.Counter
	DevicesRegistered      prometheus.Counter
	DeviceOutcomes         *prometheus.CounterVec
	EstablishDuration      *prometheus.HistogramVec
	RevocationCheckLatency prometheus.Histogram
}

// New creates and registers all collectors with the default registry.
func New() *Metrics {
	return NewWithRegisterer(prometheus.DefaultRegisterer)
}

// NewWithRegisterer registers on reg; tests pass a fresh prometheus.NewRegistry().
func NewWithRegisterer(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		ConnectionsEstablished: f.NewCounterVec(prometheus.CounterOpts{
			Name: "trustmesh_connections_established_total",
			Help: "Secure connections established, by protocol",
		}, []string{"protocol"}),
		EstablishmentFailures: f.NewCounterVec(prometheus.CounterOpts{
			Name: "trustmesh_establishment_failures_total",
			Help: "Failed establishment attempts, by protocol and error code",
		}, []string{"protocol", "code"}),
		ConnectionsTerminated: f.NewCounterVec(prometheus.CounterOpts{
			Name: "trustmesh_connections_terminated_total",
			Help: "Connections removed from the registry, by reason",
		}, []string{"reason"}),
		ActiveConnections: f.NewGauge(prometheus.GaugeOpts{
			Name: "trustmesh_active_connections",
			Help: "Connections currently in the registry",
		}),
		SessionRenewals: f.NewCounterVec(prometheus.CounterOpts{
			Name: "trustmesh_session_renewals_total",
			Help: "Session renewals, by outcome",
		}, []string{"outcome"}),
		SessionValidations: f.NewCounterVec(prometheus.CounterOpts{
			Name: "trustmesh_session_validations_total",
			Help: "Session validations, by outcome",
		}, []string{"outcome"}),
		CleanupFailures: f.NewCounter(prometheus.CounterOpts{
			Name: "trustmesh_cleanup_failures_total",
			Help: "Session resource cleanups that reported an error",
		}),
		DevicesDiscovered: f.NewCounter(prometheus.CounterOpts{
			Name: "trustmesh_devices_discovered_total",
			Help: "Devices observed during discovery windows",
		}),
		DevicesRegistered: f.NewCounter(prometheus.CounterOpts{
			Name: "trustmesh_devices_registered_total",
			Help: "Discovered devices written to the device registry",
		}),
		DeviceOutcomes: f.NewCounterVec(prometheus.CounterOpts{
			Name: "trustmesh_device_outcomes_total",
			Help: "Discovered devices by the stage they stopped at and their trust level",
		}, []string{"stage", "trust_level"}),
		EstablishDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "trustmesh_establish_duration_seconds",
			Help:    "Time spent establishing secure connections",
			Buckets: prometheus.DefBuckets,
		}, []string{"protocol"}),
		RevocationCheckLatency: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "trustmesh_token_revocation_check_duration_ms",
			Help:    "Latency of token revocation checks in milliseconds",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 25},
		}),
	}
}
