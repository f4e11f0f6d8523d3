// Package metrics holds the prometheus collectors shared by sslocal and
// ssserver. A nil *Metrics is valid and records nothing.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "sstunnel"

// Metrics is the set of collectors for one process.
type Metrics struct {
	sessions       *prometheus.CounterVec
	sessionsFailed *prometheus.CounterVec
	active         *prometheus.GaugeVec
	bytes          *prometheus.CounterVec

	backendFailures  *prometheus.CounterVec
	backendCooldowns *prometheus.CounterVec
}

// New creates the collectors and registers them with reg. A nil reg skips
// registration.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		sessions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_total",
			Help:      "Accepted connections.",
		}, []string{"side"}),
		sessionsFailed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_failed_total",
			Help:      "Connections closed before relaying started.",
		}, []string{"side"}),
		active: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sessions_active",
			Help:      "Connections currently open.",
		}, []string{"side"}),
		bytes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "relayed_bytes_total",
			Help:      "Plaintext bytes relayed.",
		}, []string{"side", "direction"}),
		backendFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "backend_failures_total",
			Help:      "Failed attempts to reach a remote server.",
		}, []string{"server"}),
		backendCooldowns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "backend_cooldowns_total",
			Help:      "Times a remote server was placed in cooldown.",
		}, []string{"server"}),
	}

	if reg != nil {
		reg.MustRegister(m.sessions, m.sessionsFailed, m.active, m.bytes, m.backendFailures, m.backendCooldowns)
	}
	return m
}

// SessionStarted counts an accepted connection on side ("local", "remote",
// "tproxy") and marks it active.
func (m *Metrics) SessionStarted(side string) {
	if m == nil {
		return
	}
	m.sessions.WithLabelValues(side).Inc()
	m.active.WithLabelValues(side).Inc()
}

// SessionEnded marks a connection started with SessionStarted as closed.
func (m *Metrics) SessionEnded(side string) {
	if m == nil {
		return
	}
	m.active.WithLabelValues(side).Dec()
}

func (m *Metrics) SessionFailed(side string) {
	if m == nil {
		return
	}
	m.sessionsFailed.WithLabelValues(side).Inc()
}

// AddBytes records relayed bytes. direction is "up" (toward the destination)
// or "down".
func (m *Metrics) AddBytes(side, direction string, n int64) {
	if m == nil || n <= 0 {
		return
	}
	m.bytes.WithLabelValues(side, direction).Add(float64(n))
}

func (m *Metrics) BackendFailure(server string) {
	if m == nil {
		return
	}
	m.backendFailures.WithLabelValues(server).Inc()
}

func (m *Metrics) BackendCooldown(server string) {
	if m == nil {
		return
	}
	m.backendCooldowns.WithLabelValues(server).Inc()
}
