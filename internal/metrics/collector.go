// Package metrics implements the Prometheus surface driving p2p.Metrics,
// grounded on dantte-lp-gobfd/internal/metrics — the only example repo that
// owns a Prometheus registry wired into a long-running network daemon the
// way this one is.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"aethercast/internal/p2p"
)

const (
	namespace = "aethercast"
	subsystem = "p2p"

	labelResult = "result"
	labelState  = "state"
)

// Collector holds the P2P connection-manager's Prometheus metrics.
type Collector struct {
	ConnectionAttempts *prometheus.CounterVec
	DeviceState        *prometheus.CounterVec
	IEsPublished       prometheus.Counter
}

// NewCollector creates a Collector with all metrics registered against reg.
// If reg is nil, prometheus.DefaultRegisterer is used.
func NewCollector(reg prometheus.Registerer) *Collector {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	c := &Collector{
		ConnectionAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "connection_attempts_total",
			Help:      "Total P2P connection attempts, labeled by outcome.",
		}, []string{labelResult}),

		DeviceState: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "device_state_entries_total",
			Help:      "Total entries into each device state.",
		}, []string{labelState}),

		IEsPublished: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "wfd_ies_published_total",
			Help:      "Total WFD information element publications.",
		}),
	}

	reg.MustRegister(c.ConnectionAttempts, c.DeviceState, c.IEsPublished)
	return c
}

// ConnectionAttempt implements p2p.Metrics.
func (c *Collector) ConnectionAttempt(result string) {
	c.ConnectionAttempts.WithLabelValues(result).Inc()
}

// StateEntered implements p2p.Metrics.
func (c *Collector) StateEntered(state p2p.DeviceState) {
	c.DeviceState.WithLabelValues(state.String()).Inc()
}

// IEPublished implements p2p.Metrics.
func (c *Collector) IEPublished() {
	c.IEsPublished.Inc()
}

var _ p2p.Metrics = (*Collector)(nil)
