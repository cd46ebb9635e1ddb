package coordinator

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics exposes coordinator-level counters and graph gauges.
type Metrics struct {
	RPCRequests   *prometheus.CounterVec
	PushesSent    prometheus.Counter
	PushesDropped prometheus.Counter
	GraphNodes    prometheus.Gauge
	GraphTopics   prometheus.Gauge
	GraphEdges    prometheus.Gauge

	registry *prometheus.Registry
}

func NewMetrics() *Metrics {
	m := &Metrics{
		RPCRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "kite",
				Subsystem: "coordinator",
				Name:      "rpc_requests_total",
				Help:      "RPC requests handled, by method and outcome",
			},
			[]string{"method", "outcome"},
		),
		PushesSent: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "kite",
			Subsystem: "coordinator",
			Name:      "pushes_sent_total",
			Help:      "Target updates successfully written to a node",
		}),
		PushesDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "kite",
			Subsystem: "coordinator",
			Name:      "pushes_dropped_total",
			Help:      "Target updates dropped because the node was unreachable",
		}),
		GraphNodes: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "kite",
			Subsystem: "graph",
			Name:      "nodes",
			Help:      "Registered nodes",
		}),
		GraphTopics: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "kite",
			Subsystem: "graph",
			Name:      "topics",
			Help:      "Known topic keys",
		}),
		GraphEdges: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "kite",
			Subsystem: "graph",
			Name:      "edges",
			Help:      "Publisher to subscriber edges",
		}),
		registry: prometheus.NewRegistry(),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		m.RPCRequests,
		m.PushesSent,
		m.PushesDropped,
		m.GraphNodes,
		m.GraphTopics,
		m.GraphEdges,
	)
	return m
}

// Handler serves the registry in Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) observeRequest(method string, ok bool) {
	outcome := "ok"
	if !ok {
		outcome = "error"
	}
	m.RPCRequests.WithLabelValues(method, outcome).Inc()
}

func (m *Metrics) setGraphSize(nodes, topics, edges int) {
	m.GraphNodes.Set(float64(nodes))
	m.GraphTopics.Set(float64(topics))
	m.GraphEdges.Set(float64(edges))
}
