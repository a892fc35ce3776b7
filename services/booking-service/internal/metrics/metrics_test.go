package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMetricsCount(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.ObserveBooking(OutcomeBooked)
	m.ObserveBooking(OutcomeBooked)
	m.ObserveBooking(OutcomeLimitReached)
	m.ObserveUpsertRetry()
	m.ObserveSlotQuery(CacheHit, 3*time.Millisecond)
	m.ObserveDedup(2)
	m.ObserveDedup(0)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.bookings.WithLabelValues(OutcomeBooked)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.bookings.WithLabelValues(OutcomeLimitReached)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.upsertRetries))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.slotQueries.WithLabelValues(CacheHit)))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.dedupRemoved))
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.ObserveBooking(OutcomeError)
		m.ObserveUpsertRetry()
		m.ObserveSlotQuery(CacheMiss, time.Second)
		m.ObserveDedup(3)
		m.ObserveInvalidation()
	})
}
