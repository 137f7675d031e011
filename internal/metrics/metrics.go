package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/agenthands/rsgwm/internal/core/monitor"
)

const namespace = "rsg"

// Metrics holds every collector of one server. Each instance registers on
// its own registry so several world models can live in one process.
type Metrics struct {
	Registry *prometheus.Registry

	requests       *prometheus.CounterVec
	latency        *prometheus.HistogramVec
	entities       prometheus.Gauge
	monitorEvents  *prometheus.CounterVec
	mirrorWrites   *prometheus.CounterVec
	publishDropped prometheus.Counter
	subscribers    prometheus.Gauge
}

func New() *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "requests_total",
			Help:      "Envelopes processed by kind, operation and outcome.",
		}, []string{"kind", "operation", "outcome"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "request_duration_seconds",
			Help:      "Time spent applying one envelope.",
			Buckets:   []float64{.0001, .0005, .001, .005, .01, .05, .1, .5, 1},
		}, []string{"kind"}),
		entities: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "entities",
			Help:      "Entities currently in the scene graph, root included.",
		}),
		monitorEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "monitor",
			Name:      "events_total",
			Help:      "Monitor events by monitor kind and outcome.",
		}, []string{"kind", "outcome"}),
		mirrorWrites: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "mirror",
			Name:      "writes_total",
			Help:      "Changes written to the graph mirror by outcome.",
		}, []string{"outcome"}),
		publishDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "publish",
			Name:      "dropped_total",
			Help:      "Fire-and-forget envelopes dropped because the queue was full.",
		}),
		subscribers: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "events",
			Name:      "subscribers",
			Help:      "Connected event stream subscribers.",
		}),
	}
	m.Registry.MustRegister(
		m.requests,
		m.latency,
		m.entities,
		m.monitorEvents,
		m.mirrorWrites,
		m.publishDropped,
		m.subscribers,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

func outcome(ok bool) string {
	if ok {
		return "success"
	}
	return "failure"
}

func (m *Metrics) ObserveRequest(kind, operation string, success bool, elapsed time.Duration) {
	m.requests.WithLabelValues(kind, operation, outcome(success)).Inc()
	m.latency.WithLabelValues(kind).Observe(elapsed.Seconds())
}

func (m *Metrics) SetEntities(n int) {
	m.entities.Set(float64(n))
}

func (m *Metrics) EventDelivered(kind monitor.Kind) {
	m.monitorEvents.WithLabelValues(kind.String(), "delivered").Inc()
}

func (m *Metrics) EventDropped(kind monitor.Kind) {
	m.monitorEvents.WithLabelValues(kind.String(), "dropped").Inc()
}

func (m *Metrics) MirrorWrite(err error) {
	m.mirrorWrites.WithLabelValues(outcome(err == nil)).Inc()
}

func (m *Metrics) PublishDropped() {
	m.publishDropped.Inc()
}

func (m *Metrics) SubscriberConnected()    { m.subscribers.Inc() }
func (m *Metrics) SubscriberDisconnected() { m.subscribers.Dec() }
