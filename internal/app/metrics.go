package app

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the relay's Prometheus collectors.
type Metrics struct {
	roomsActive    prometheus.Gauge
	sessionsActive prometheus.Gauge
	joinsTotal     prometheus.Counter
	eventsTotal    *prometheus.CounterVec
	framesDropped  prometheus.Counter
	staleMessages  prometheus.Counter
}

// NewMetrics registers collectors on reg. A nil reg gets a private registry
// so tests can build many instances.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	factory := promauto.With(reg)
	const ns = "inkroom"

	return &Metrics{
		roomsActive: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: ns,
			Name:      "rooms_active",
			Help:      "Number of rooms with at least one participant",
		}),
		sessionsActive: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: ns,
			Name:      "sessions_active",
			Help:      "Number of connected signal sessions",
		}),
		joinsTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: ns,
			Name:      "joins_total",
			Help:      "Total number of room joins",
		}),
		eventsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns,
			Name:      "events_total",
			Help:      "Total number of accepted draw events",
		}, []string{"kind"}),
		framesDropped: factory.NewCounter(prometheus.CounterOpts{
			Namespace: ns,
			Name:      "frames_dropped_total",
			Help:      "Frames not delivered because a recipient queue was full",
		}),
		staleMessages: factory.NewCounter(prometheus.CounterOpts{
			Namespace: ns,
			Name:      "stale_messages_total",
			Help:      "Messages ignored because they target a room the sender is not in",
		}),
	}
}

func (m *Metrics) SessionOpened() {
	m.sessionsActive.Inc()
}

func (m *Metrics) SessionClosed() {
	m.sessionsActive.Dec()
}

func (m *Metrics) Joined() {
	m.joinsTotal.Inc()
}

func (m *Metrics) Event(kind string) {
	m.eventsTotal.WithLabelValues(kind).Inc()
}

func (m *Metrics) Dropped(n int) {
	if n > 0 {
		m.framesDropped.Add(float64(n))
	}
}

func (m *Metrics) Stale() {
	m.staleMessages.Inc()
}
