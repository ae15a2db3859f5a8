package metrics

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics defines counters for the pipeline dispatcher.
type Metrics interface {
	IncSubmissions(tool, outcome string)
	ObserveRemoteCall(op, status string, durationSeconds float64)
	IncTrackingFailures(tool string)
}

// GatewayMetrics captures request metrics for the session API.
type GatewayMetrics interface {
	ObserveRequest(method, route, status string, durationSeconds float64)
}

// SessionMetrics tracks the session registry.
type SessionMetrics interface {
	SetActiveSessions(n int)
	IncSessionsEvicted()
}

// Noop implements every metrics interface without emitting anything.
type Noop struct{}

func (Noop) IncSubmissions(string, string)                  {}
func (Noop) ObserveRemoteCall(string, string, float64)      {}
func (Noop) IncTrackingFailures(string)                     {}
func (Noop) ObserveRequest(string, string, string, float64) {}
func (Noop) SetActiveSessions(int)                          {}
func (Noop) IncSessionsEvicted()                            {}

// Prom implements Metrics backed by Prometheus collectors.
type Prom struct {
	submissions      *prometheus.CounterVec
	remoteCalls      *prometheus.CounterVec
	remoteLatency    *prometheus.HistogramVec
	trackingFailures *prometheus.CounterVec
	once             sync.Once
}

func NewProm(namespace string) *Prom {
	p := &Prom{
		submissions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "submissions_total",
			Help:      "Submissions by tool and outcome",
		}, []string{"tool", "outcome"}),
		remoteCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "remote_calls_total",
			Help:      "Remote guardrail calls by operation and status",
		}, []string{"op", "status"}),
		remoteLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "remote_call_duration_seconds",
			Help:      "Remote guardrail call latency by operation",
			Buckets:   prometheus.DefBuckets,
		}, []string{"op"}),
		trackingFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tracking_failures_total",
			Help:      "Interaction tracking calls that failed, by tool",
		}, []string{"tool"}),
	}
	p.register()
	return p
}

func (p *Prom) register() {
	p.once.Do(func() {
		prometheus.MustRegister(p.submissions, p.remoteCalls, p.remoteLatency, p.trackingFailures)
	})
}

func (p *Prom) IncSubmissions(tool, outcome string) {
	p.submissions.WithLabelValues(tool, outcome).Inc()
}

func (p *Prom) ObserveRemoteCall(op, status string, durationSeconds float64) {
	p.remoteCalls.WithLabelValues(op, status).Inc()
	p.remoteLatency.WithLabelValues(op).Observe(durationSeconds)
}

func (p *Prom) IncTrackingFailures(tool string) {
	p.trackingFailures.WithLabelValues(tool).Inc()
}

// Handler returns an HTTP handler for /metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// --- Gateway metrics ---

type gatewayProm struct {
	requests *prometheus.CounterVec
	latency  *prometheus.HistogramVec
	once     sync.Once
}

// NewGatewayProm constructs a GatewayMetrics with counters/histograms.
func NewGatewayProm(namespace string) GatewayMetrics {
	g := &gatewayProm{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by method/route/status",
		}, []string{"method", "route", "status"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by method/route",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
	}
	g.once.Do(func() {
		prometheus.MustRegister(g.requests, g.latency)
	})
	return g
}

func (g *gatewayProm) ObserveRequest(method, route, status string, durationSeconds float64) {
	g.requests.WithLabelValues(method, route, status).Inc()
	g.latency.WithLabelValues(method, route).Observe(durationSeconds)
}

// --- Session metrics ---

type sessionProm struct {
	active  prometheus.Gauge
	evicted prometheus.Counter
	once    sync.Once
}

// NewSessionProm constructs SessionMetrics for the session registry.
func NewSessionProm(namespace string) SessionMetrics {
	s := &sessionProm{
		active: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sessions_active",
			Help:      "Sessions currently held in memory",
		}),
		evicted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_evicted_total",
			Help:      "Sessions dropped by expiry or capacity",
		}),
	}
	s.once.Do(func() {
		prometheus.MustRegister(s.active, s.evicted)
	})
	return s
}

func (s *sessionProm) SetActiveSessions(n int) {
	s.active.Set(float64(n))
}

func (s *sessionProm) IncSessionsEvicted() {
	s.evicted.Inc()
}
