package realtime

import (
	"github.com/prometheus/client_golang/prometheus"
)

const metricsNamespace = "parley"

// Metrics holds the realtime collectors. A nil *Metrics is valid and records nothing.
type Metrics struct {
	connections   prometheus.Gauge
	authenticated prometheus.Counter
	closes        *prometheus.CounterVec

	published prometheus.Counter
	delivered prometheus.Counter
	dropped   prometheus.Counter
	filtered  prometheus.Counter
}

// NewMetrics creates the realtime collectors and registers them on reg.
// Gauges backed by the registry are added by (*Registry).RegisterMetrics.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		connections: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Subsystem: "ws",
			Name:      "connections",
			Help:      "Open websocket connections, authenticated or not.",
		}),
		authenticated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "ws",
			Name:      "authentications_total",
			Help:      "Successful authenticate frames, including reauthentication.",
		}),
		closes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "ws",
			Name:      "closes_total",
			Help:      "Closed websocket connections by reason.",
		}, []string{"reason"}),
		published: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "fanout",
			Name:      "events_total",
			Help:      "Events handed to the fanout engine.",
		}),
		delivered: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "fanout",
			Name:      "deliveries_total",
			Help:      "Payloads accepted by a session send queue.",
		}),
		dropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "fanout",
			Name:      "drops_total",
			Help:      "Payloads dropped because the session was closing or its queue was full.",
		}),
		filtered: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "fanout",
			Name:      "filtered_total",
			Help:      "Session and event pairs skipped by the scope filter.",
		}),
	}

	if reg != nil {
		for _, c := range []prometheus.Collector{
			m.connections, m.authenticated, m.closes,
			m.published, m.delivered, m.dropped, m.filtered,
		} {
			if err := reg.Register(c); err != nil {
				return nil, err
			}
		}
	}
	return m, nil
}

func (m *Metrics) connOpened() {
	if m != nil {
		m.connections.Inc()
	}
}

func (m *Metrics) connClosed(reason string) {
	if m != nil {
		m.connections.Dec()
		m.closes.WithLabelValues(reason).Inc()
	}
}

func (m *Metrics) authOK() {
	if m != nil {
		m.authenticated.Inc()
	}
}

func (m *Metrics) fanout(events, delivered, dropped, filtered int) {
	if m == nil {
		return
	}
	m.published.Add(float64(events))
	m.delivered.Add(float64(delivered))
	m.dropped.Add(float64(dropped))
	m.filtered.Add(float64(filtered))
}
