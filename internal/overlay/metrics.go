package overlay

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/shizukutanaka/mate/internal/protocol"
)

// Metrics holds the prometheus collectors of one node
type Metrics struct {
	messagesSent     *prometheus.CounterVec
	messagesReceived *prometheus.CounterVec
	decodeErrors     prometheus.Counter
	lookups          *prometheus.CounterVec
	connects         *prometheus.CounterVec
	sends            *prometheus.CounterVec
	evictions        *prometheus.CounterVec
	contacts         prometheus.Gauge
	pending          prometheus.Gauge
}

// NewMetrics registers the node collectors with reg
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		messagesSent: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "mate_messages_sent_total",
			Help: "Datagrams handed to the transport, by message type",
		}, []string{"type"}),
		messagesReceived: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "mate_messages_received_total",
			Help: "Decoded inbound messages, by message type",
		}, []string{"type"}),
		decodeErrors: factory.NewCounter(prometheus.CounterOpts{
			Name: "mate_decode_errors_total",
			Help: "Inbound datagrams that failed to decode",
		}),
		lookups: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "mate_lookups_total",
			Help: "Completed lookups, by result",
		}, []string{"result"}),
		connects: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "mate_connects_total",
			Help: "Completed connect handshakes, by mode and result",
		}, []string{"mode", "result"}),
		sends: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "mate_sends_total",
			Help: "Completed application sends, by result",
		}, []string{"result"}),
		evictions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "mate_evictions_total",
			Help: "Contacts removed from the routing table, by reason",
		}, []string{"reason"}),
		contacts: factory.NewGauge(prometheus.GaugeOpts{
			Name: "mate_contacts",
			Help: "Contacts in the routing table",
		}),
		pending: factory.NewGauge(prometheus.GaugeOpts{
			Name: "mate_pending_operations",
			Help: "Requests waiting for a reply",
		}),
	}
}

func (m *Metrics) sent(t protocol.Type) {
	m.messagesSent.WithLabelValues(t.String()).Inc()
}

func (m *Metrics) received(t protocol.Type) {
	m.messagesReceived.WithLabelValues(t.String()).Inc()
}

func result(err error) string {
	if err != nil {
		return "failure"
	}
	return "success"
}
