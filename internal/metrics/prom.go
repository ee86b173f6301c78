// internal/metrics/prom.go
// Package metrics centralises Prometheus metric registration for both
// gpgbridge binaries (host gateway, remote proxy). It exposes typed
// collectors so the rest of the code stays import-cycle-free; callers
// expose them via the /metrics HTTP handler from the Prometheus client
// library.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var once sync.Once

var (
	// SessionsActive is the current number of live sessions in a host
	// gateway's session table.
	SessionsActive = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "gpgbridge",
		Subsystem: "hostgateway",
		Name:      "sessions_active",
		Help:      "Number of sessions currently registered in the host gateway's session table.",
	})

	// AgentConnectDuration times AgentGateway.Connect calls, from dial
	// through greeting completion.
	AgentConnectDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "gpgbridge",
		Subsystem: "hostgateway",
		Name:      "agent_connect_duration_seconds",
		Help:      "Time spent opening a new agent connection and completing the handshake.",
		Buckets:   prometheus.DefBuckets,
	})

	// AgentSendDuration times AgentGateway.Send calls, from write through
	// completion detection.
	AgentSendDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "gpgbridge",
		Subsystem: "hostgateway",
		Name:      "agent_send_duration_seconds",
		Help:      "Time spent writing a command block and reading a complete agent response.",
		Buckets:   prometheus.DefBuckets,
	})

	AgentConnectErrors = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "gpgbridge",
		Subsystem: "hostgateway",
		Name:      "agent_connect_errors_total",
		Help:      "Total number of failed AgentGateway.Connect calls.",
	})

	AgentSendErrors = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "gpgbridge",
		Subsystem: "hostgateway",
		Name:      "agent_send_errors_total",
		Help:      "Total number of failed AgentGateway.Send calls.",
	})

	// FramerErrors counts protocol-violation / buffer-cap transitions to
	// ERROR observed by the remote proxy's state machine.
	FramerErrors = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "gpgbridge",
		Subsystem: "remoteproxy",
		Name:      "framer_errors_total",
		Help:      "Total number of framing or protocol-violation errors observed by the remote proxy.",
	})

	// StateTransitions counts every state-machine transition, labelled by
	// the resulting state, for operator visibility into proxy health.
	StateTransitions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "gpgbridge",
		Subsystem: "remoteproxy",
		Name:      "state_transitions_total",
		Help:      "Total number of per-connection state machine transitions, labelled by destination state.",
	}, []string{"state"})

	// Subscribers is the current number of connected debug-websocket
	// operator clients on the host gateway.
	Subscribers = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "gpgbridge",
		Subsystem: "hostgateway",
		Name:      "debug_subscribers",
		Help:      "Current number of connected debug websocket subscribers.",
	})
)

// Register exports all metrics to the default Prometheus registry; safe to
// call multiple times.
func Register() {
	once.Do(func() {
		prometheus.MustRegister(
			SessionsActive,
			AgentConnectDuration,
			AgentSendDuration,
			AgentConnectErrors,
			AgentSendErrors,
			FramerErrors,
			StateTransitions,
			Subscribers,
		)
	})
}

// Timer wraps prometheus.Timer so callers can `defer
// metrics.NewTimer(h).ObserveDuration()` without importing prometheus
// themselves.
type Timer struct{ t *prometheus.Timer }

// NewTimer starts a timer that will observe into h when stopped.
func NewTimer(h prometheus.Histogram) *Timer {
	return &Timer{t: prometheus.NewTimer(h)}
}

// ObserveDuration stops the timer and records the elapsed duration.
func (t *Timer) ObserveDuration() { t.t.ObserveDuration() }
