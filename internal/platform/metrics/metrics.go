package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the agent.
type Metrics struct {
	TrackedEvents    *prometheus.CounterVec
	FlushPasses      *prometheus.CounterVec
	FlushedEvents    prometheus.Counter
	DeliveryFailures prometheus.Counter
	QueueDepth       prometheus.Gauge
	BreakerOpen      prometheus.Gauge
}

// New creates the metrics and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		TrackedEvents: f.NewCounterVec(prometheus.CounterOpts{
			Name: "beacon_tracked_events_total",
			Help: "Events passed to Track, by outcome (delivered, queued, dropped)",
		}, []string{"outcome"}),
		FlushPasses: f.NewCounterVec(prometheus.CounterOpts{
			Name: "beacon_flush_passes_total",
			Help: "Flush passes by resulting status",
		}, []string{"status"}),
		FlushedEvents: f.NewCounter(prometheus.CounterOpts{
			Name: "beacon_flushed_events_total",
			Help: "Queued events delivered by flush passes",
		}),
		DeliveryFailures: f.NewCounter(prometheus.CounterOpts{
			Name: "beacon_delivery_failures_total",
			Help: "Sink deliveries that returned an error",
		}),
		QueueDepth: f.NewGauge(prometheus.GaugeOpts{
			Name: "beacon_queue_depth",
			Help: "Events waiting in the durable queue",
		}),
		BreakerOpen: f.NewGauge(prometheus.GaugeOpts{
			Name: "beacon_sink_breaker_open",
			Help: "1 when the sink circuit breaker is open",
		}),
	}
}

// ObserveTracked counts one Track call.
func (m *Metrics) ObserveTracked(outcome string) {
	m.TrackedEvents.WithLabelValues(outcome).Inc()
}

// ObserveFlush counts one flush pass.
func (m *Metrics) ObserveFlush(status string, delivered int) {
	m.FlushPasses.WithLabelValues(status).Inc()
	if delivered > 0 {
		m.FlushedEvents.Add(float64(delivered))
	}
}

// IncrementDeliveryFailures counts one failed delivery.
func (m *Metrics) IncrementDeliveryFailures() {
	m.DeliveryFailures.Inc()
}

// SetQueueDepth records the current queue length.
func (m *Metrics) SetQueueDepth(n int) {
	m.QueueDepth.Set(float64(n))
}

// SetBreakerOpen records the breaker state.
func (m *Metrics) SetBreakerOpen(open bool) {
	if open {
		m.BreakerOpen.Set(1)
		return
	}
	m.BreakerOpen.Set(0)
}
