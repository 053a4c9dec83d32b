package server

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// metrics bundles the prometheus collectors this server exposes,
// grounded on dex's server.go instrumentHandler wiring (request
// count/duration/size histograms) plus two counters specific to this
// domain: pairing transitions and peer-token verifications, the two
// event streams worth graphing over time for a home mesh server.
type metrics struct {
	requestCount    *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	responseSize    *prometheus.HistogramVec

	pairingTransitions *prometheus.CounterVec
	peerTokenVerifies  *prometheus.CounterVec
}

func newMetrics(reg *prometheus.Registry) *metrics {
	if reg == nil {
		return nil
	}

	m := &metrics{
		requestCount: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "salita_http_requests_total",
			Help: "Count of all HTTP requests.",
		}, []string{"code", "method", "handler"}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "salita_http_request_duration_seconds",
			Help:    "A histogram of latencies for requests.",
			Buckets: []float64{.01, .05, .25, .5, 1, 2.5, 5},
		}, []string{"code", "method", "handler"}),
		responseSize: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "salita_http_response_size_bytes",
			Help:    "A histogram of response sizes for requests.",
			Buckets: []float64{200, 500, 900, 1500},
		}, []string{"code", "method", "handler"}),
		pairingTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "salita_pairing_transitions_total",
			Help: "Count of pairing state transitions by resulting state.",
		}, []string{"state"}),
		peerTokenVerifies: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "salita_peer_token_verifications_total",
			Help: "Count of peer bearer token verifications by outcome.",
		}, []string{"outcome"}),
	}

	reg.MustRegister(
		m.requestCount,
		m.requestDuration,
		m.responseSize,
		m.pairingTransitions,
		m.peerTokenVerifies,
	)
	return m
}

// instrument wraps a named handler with the request counters/histograms,
// a no-op passthrough if metrics weren't configured.
func (m *metrics) instrument(handlerName string, handler http.Handler) http.HandlerFunc {
	if m == nil {
		return handler.ServeHTTP
	}
	return promhttp.InstrumentHandlerDuration(
		m.requestDuration.MustCurryWith(prometheus.Labels{"handler": handlerName}),
		promhttp.InstrumentHandlerCounter(
			m.requestCount.MustCurryWith(prometheus.Labels{"handler": handlerName}),
			promhttp.InstrumentHandlerResponseSize(
				m.responseSize.MustCurryWith(prometheus.Labels{"handler": handlerName}), handler,
			),
		),
	)
}

func (m *metrics) recordPairingTransition(state string) {
	if m == nil {
		return
	}
	m.pairingTransitions.WithLabelValues(state).Inc()
}

func (m *metrics) recordPeerTokenVerify(outcome string) {
	if m == nil {
		return
	}
	m.peerTokenVerifies.WithLabelValues(outcome).Inc()
}
