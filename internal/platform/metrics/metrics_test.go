package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMetrics(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.ObserveTracked("queued")
	m.ObserveTracked("queued")
	m.ObserveTracked("delivered")
	assert.Equal(t, 2.0, testutil.ToFloat64(m.TrackedEvents.WithLabelValues("queued")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.TrackedEvents.WithLabelValues("delivered")))

	m.ObserveFlush("delivered", 4)
	m.ObserveFlush("failed", 0)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.FlushPasses.WithLabelValues("delivered")))
	assert.Equal(t, 4.0, testutil.ToFloat64(m.FlushedEvents))

	m.IncrementDeliveryFailures()
	assert.Equal(t, 1.0, testutil.ToFloat64(m.DeliveryFailures))

	m.SetQueueDepth(7)
	assert.Equal(t, 7.0, testutil.ToFloat64(m.QueueDepth))

	m.SetBreakerOpen(true)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.BreakerOpen))
	m.SetBreakerOpen(false)
	assert.Equal(t, 0.0, testutil.ToFloat64(m.BreakerOpen))
}

func TestNew_SeparateRegistries(t *testing.T) {
	assert.NotPanics(t, func() {
		New(prometheus.NewRegistry())
		New(prometheus.NewRegistry())
	})
}
