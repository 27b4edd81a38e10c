// Package metrics exposes optional Prometheus instrumentation for a Yoop
// node. Every counter field is a nil-safe *prometheus.CounterVec/
// *prometheus.HistogramVec: a node that never calls New runs with a nil
// *Metrics, and every recording method on it is a no-op, so instrumentation
// never sits on the mandatory path of a transfer, sync, or discovery
// operation.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/sanchxt/yoop-sub002/yerr"
)

// Metrics holds the counters and histograms a node may publish. All fields
// are safe to read when the *Metrics itself is nil: every method below
// guards on that before touching prometheus.
type Metrics struct {
	registry *prometheus.Registry

	bytesTransferred   *prometheus.CounterVec   // labels: direction (send|receive)
	sessionsStarted    *prometheus.CounterVec   // labels: kind (share|receive|sync)
	sessionsCompleted  *prometheus.CounterVec   // labels: kind, outcome (ok|failed|cancelled)
	sessionDuration    *prometheus.HistogramVec // labels: kind
	errorsByKind       *prometheus.CounterVec   // labels: kind
	discoveryAnnounces prometheus.Counter
	discoveryLookups   prometheus.Counter
	syncEvents         *prometheus.CounterVec // labels: event (create|modify|delete|rename|conflict)
}

// New builds a Metrics instance and registers its collectors with a fresh
// prometheus.Registry. Callers that don't want instrumentation simply never
// call New and pass a nil *Metrics around instead.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		bytesTransferred: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "yoop",
			Subsystem: "transfer",
			Name:      "bytes_total",
			Help:      "Total bytes sent or received across all transfer sessions.",
		}, []string{"direction"}),
		sessionsStarted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "yoop",
			Subsystem: "session",
			Name:      "started_total",
			Help:      "Total sessions started, by kind.",
		}, []string{"kind"}),
		sessionsCompleted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "yoop",
			Subsystem: "session",
			Name:      "completed_total",
			Help:      "Total sessions completed, by kind and outcome.",
		}, []string{"kind", "outcome"}),
		sessionDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "yoop",
			Subsystem: "session",
			Name:      "duration_seconds",
			Help:      "Session duration in seconds, by kind.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"kind"}),
		errorsByKind: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "yoop",
			Subsystem: "errors",
			Name:      "total",
			Help:      "Total errors, by kind.",
		}, []string{"kind"}),
		discoveryAnnounces: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "yoop",
			Subsystem: "discovery",
			Name:      "announces_total",
			Help:      "Total mDNS announcements made.",
		}),
		discoveryLookups: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "yoop",
			Subsystem: "discovery",
			Name:      "lookups_total",
			Help:      "Total mDNS browse lookups performed.",
		}),
		syncEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "yoop",
			Subsystem: "sync",
			Name:      "events_total",
			Help:      "Total sync engine events, by kind.",
		}, []string{"event"}),
	}
	reg.MustRegister(
		m.bytesTransferred,
		m.sessionsStarted,
		m.sessionsCompleted,
		m.sessionDuration,
		m.errorsByKind,
		m.discoveryAnnounces,
		m.discoveryLookups,
		m.syncEvents,
	)
	return m
}

// Handler returns an http.Handler serving the registry in the Prometheus
// text exposition format. Panics if m is nil; callers that didn't call New
// have no registry to serve and shouldn't mount this route.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// AddBytesTransferred records n bytes moved in the given direction
// ("send" or "receive").
func (m *Metrics) AddBytesTransferred(direction string, n uint64) {
	if m == nil {
		return
	}
	m.bytesTransferred.WithLabelValues(direction).Add(float64(n))
}

// SessionStarted records the start of a session of the given kind
// ("share", "receive", or "sync").
func (m *Metrics) SessionStarted(kind string) {
	if m == nil {
		return
	}
	m.sessionsStarted.WithLabelValues(kind).Inc()
}

// SessionCompleted records a session's end, its kind, outcome ("ok",
// "failed", or "cancelled"), and wall-clock duration in seconds.
func (m *Metrics) SessionCompleted(kind, outcome string, durationSeconds float64) {
	if m == nil {
		return
	}
	m.sessionsCompleted.WithLabelValues(kind, outcome).Inc()
	m.sessionDuration.WithLabelValues(kind).Observe(durationSeconds)
}

// RecordError increments the error counter for err's yerr.Kind, if err
// carries one; otherwise it counts against KindUnknown.
func (m *Metrics) RecordError(err error) {
	if m == nil || err == nil {
		return
	}
	m.errorsByKind.WithLabelValues(yerr.KindOf(err).String()).Inc()
}

// DiscoveryAnnounced records one mDNS announcement.
func (m *Metrics) DiscoveryAnnounced() {
	if m == nil {
		return
	}
	m.discoveryAnnounces.Inc()
}

// DiscoveryLookup records one mDNS browse lookup.
func (m *Metrics) DiscoveryLookup() {
	if m == nil {
		return
	}
	m.discoveryLookups.Inc()
}

// SyncEvent records one sync engine event ("create", "modify", "delete",
// "rename", or "conflict").
func (m *Metrics) SyncEvent(event string) {
	if m == nil {
		return
	}
	m.syncEvents.WithLabelValues(event).Inc()
}
