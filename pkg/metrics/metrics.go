package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const DefaultNamespace = "tabletop"

// Drop reasons
const (
	ReasonMalformed      = "malformed"
	ReasonRoleViolation  = "role_violation"
	ReasonUnknownPiece   = "unknown_piece"
	ReasonDuplicatePiece = "duplicate_piece"
	ReasonInvalid        = "invalid"
	ReasonSendFailed     = "send_failed"
)

type Metrics struct {
	EnvelopesReceived *prometheus.CounterVec
	EnvelopesSent     *prometheus.CounterVec
	EnvelopesDropped  *prometheus.CounterVec
	ConnectedPlayers  prometheus.Gauge
	Pieces            prometheus.Gauge
}

// NewMetrics creates the replication metrics and registers them with reg.
// A nil reg leaves them unregistered.
func NewMetrics(namespace string, reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		EnvelopesReceived: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "envelopes_received_total",
			Help:      "Envelopes applied or considered, by event type",
		}, []string{"event"}),
		EnvelopesSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "envelopes_sent_total",
			Help:      "Envelopes handed to the transport, by event type",
		}, []string{"event"}),
		EnvelopesDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "envelopes_dropped_total",
			Help:      "Envelopes dropped, by reason",
		}, []string{"reason"}),
		ConnectedPlayers: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "connected_players",
			Help:      "Number of players connected to the host",
		}),
		Pieces: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pieces",
			Help:      "Number of pieces in the local scene",
		}),
	}

	if reg != nil {
		reg.MustRegister(
			m.EnvelopesReceived,
			m.EnvelopesSent,
			m.EnvelopesDropped,
			m.ConnectedPlayers,
			m.Pieces,
		)
	}

	return m
}

func (m *Metrics) IncReceived(event string) {
	m.EnvelopesReceived.WithLabelValues(event).Inc()
}

func (m *Metrics) IncSent(event string) {
	m.EnvelopesSent.WithLabelValues(event).Inc()
}

func (m *Metrics) IncDropped(reason string) {
	m.EnvelopesDropped.WithLabelValues(reason).Inc()
}

func (m *Metrics) SetConnectedPlayers(count int) {
	m.ConnectedPlayers.Set(float64(count))
}

func (m *Metrics) SetPieces(count int) {
	m.Pieces.Set(float64(count))
}
