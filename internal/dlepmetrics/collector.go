// Package dlepmetrics provides Prometheus instrumentation for the DLEP
// session core, grounded on internal/metrics/collector.go's Collector.
package dlepmetrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const (
	namespace = "dlep"
	subsystem = "session"
)

// Label names for DLEP metrics.
const (
	labelPeerID = "peer_id"
	labelStatus = "status"
)

// Collector holds all DLEP Prometheus metrics.
//
// Metrics are designed the way internal/metrics/collector.go's BFD
// Collector is: gauges for currently-active state, counters for cumulative
// events, labeled by peer id rather than by (peer addr, local addr) since a
// DLEP peer id already names the connection uniquely (spec.md §3).
type Collector struct {
	// Peers tracks the number of currently registered peers.
	Peers *prometheus.GaugeVec

	// Destinations tracks the number of currently registered destinations
	// per peer.
	Destinations *prometheus.GaugeVec

	// MessagesSent counts signals transmitted per peer.
	MessagesSent *prometheus.CounterVec

	// MessagesReceived counts signals received per peer.
	MessagesReceived *prometheus.CounterVec

	// Retransmits counts Transaction Queue retransmit attempts per peer
	// (spec.md §4.3).
	Retransmits *prometheus.CounterVec

	// Timeouts counts peers terminated for exhausting their retransmit
	// budget or missing their liveness deadline (spec.md §4.3, §4.4).
	Timeouts *prometheus.CounterVec

	// NotInterested counts Destination_Up requests the peer declined
	// (spec.md §4.2, status Not_Interested).
	NotInterested *prometheus.CounterVec

	// StatusResponses counts outbound responses by status code, useful for
	// spotting a peer that is repeatedly rejected (spec.md §7).
	StatusResponses *prometheus.CounterVec
}

// NewCollector creates a Collector with all DLEP metrics registered against
// reg. If reg is nil, prometheus.DefaultRegisterer is used.
func NewCollector(reg prometheus.Registerer) *Collector {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	c := newMetrics()

	reg.MustRegister(
		c.Peers,
		c.Destinations,
		c.MessagesSent,
		c.MessagesReceived,
		c.Retransmits,
		c.Timeouts,
		c.NotInterested,
		c.StatusResponses,
	)

	return c
}

func newMetrics() *Collector {
	peerLabels := []string{labelPeerID}
	statusLabels := []string{labelPeerID, labelStatus}

	return &Collector{
		Peers: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "peers",
			Help:      "Number of currently registered DLEP peers.",
		}, nil),

		Destinations: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "destinations",
			Help:      "Number of currently registered destinations, by peer.",
		}, peerLabels),

		MessagesSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "messages_sent_total",
			Help:      "Total DLEP signals transmitted, by peer.",
		}, peerLabels),

		MessagesReceived: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "messages_received_total",
			Help:      "Total DLEP signals received, by peer.",
		}, peerLabels),

		Retransmits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "retransmits_total",
			Help:      "Total Transaction Queue retransmit attempts, by peer.",
		}, peerLabels),

		Timeouts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "timeouts_total",
			Help:      "Total peers terminated for exhausting retransmits or missing liveness.",
		}, peerLabels),

		NotInterested: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "not_interested_total",
			Help:      "Total Destination_Up requests declined by a peer.",
		}, peerLabels),

		StatusResponses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "status_responses_total",
			Help:      "Total outbound responses, by peer and status code.",
		}, statusLabels),
	}
}

// PeerAdded implements dlep.ManagerMetrics.
func (c *Collector) PeerAdded(peerID string) {
	c.Peers.WithLabelValues().Inc()
	c.Destinations.WithLabelValues(peerID).Set(0)
}

// PeerRemoved implements dlep.ManagerMetrics.
func (c *Collector) PeerRemoved(peerID string) {
	c.Peers.WithLabelValues().Dec()
	c.Destinations.DeleteLabelValues(peerID)
	c.MessagesSent.DeleteLabelValues(peerID)
	c.MessagesReceived.DeleteLabelValues(peerID)
	c.Retransmits.DeleteLabelValues(peerID)
	c.Timeouts.DeleteLabelValues(peerID)
	c.NotInterested.DeleteLabelValues(peerID)
}

// RecordMessageSent increments the transmitted signal counter for peerID.
func (c *Collector) RecordMessageSent(peerID string) {
	c.MessagesSent.WithLabelValues(peerID).Inc()
}

// RecordMessageReceived increments the received signal counter for peerID.
func (c *Collector) RecordMessageReceived(peerID string) {
	c.MessagesReceived.WithLabelValues(peerID).Inc()
}

// RecordRetransmit increments the retransmit counter for peerID.
func (c *Collector) RecordRetransmit(peerID string) {
	c.Retransmits.WithLabelValues(peerID).Inc()
}

// RecordTimeout increments the timeout counter for peerID.
func (c *Collector) RecordTimeout(peerID string) {
	c.Timeouts.WithLabelValues(peerID).Inc()
}

// RecordNotInterested increments the not-interested counter for peerID.
func (c *Collector) RecordNotInterested(peerID string) {
	c.NotInterested.WithLabelValues(peerID).Inc()
}

// RecordStatusResponse increments the status-response counter for peerID
// and status.
func (c *Collector) RecordStatusResponse(peerID, status string) {
	c.StatusResponses.WithLabelValues(peerID, status).Inc()
}

// SetDestinations sets the destination gauge for peerID to n.
func (c *Collector) SetDestinations(peerID string, n int) {
	c.Destinations.WithLabelValues(peerID).Set(float64(n))
}
