package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Booking outcome labels.
const (
	OutcomeBooked       = "booked"
	OutcomeReplayed     = "replayed"
	OutcomeInvalid      = "invalid"
	OutcomeLimitReached = "limit_reached"
	OutcomeSlotConflict = "slot_conflict"
	OutcomeError        = "error"
	CacheHit            = "hit"
	CacheMiss           = "miss"
	CacheBypass         = "bypass"
)

// Metrics is nil-safe: every method is a no-op on a nil receiver.
type Metrics struct {
	bookings      *prometheus.CounterVec
	upsertRetries prometheus.Counter
	slotQueries   *prometheus.CounterVec
	slotLatency   prometheus.Histogram
	dedupRemoved  prometheus.Counter
	invalidations prometheus.Counter
}

func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		bookings: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "zapagenda",
			Subsystem: "booking",
			Name:      "submissions_total",
			Help:      "Booking submissions by outcome.",
		}, []string{"outcome"}),
		upsertRetries: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "zapagenda",
			Subsystem: "clients",
			Name:      "upsert_retries_total",
			Help:      "Client upsert attempts retried after a unique-phone conflict.",
		}),
		slotQueries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "zapagenda",
			Subsystem: "availability",
			Name:      "slot_queries_total",
			Help:      "Slot list queries by cache result.",
		}, []string{"cache"}),
		slotLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "zapagenda",
			Subsystem: "availability",
			Name:      "slot_query_seconds",
			Help:      "Slot list query latency.",
			Buckets:   prometheus.DefBuckets,
		}),
		dedupRemoved: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "zapagenda",
			Subsystem: "clients",
			Name:      "duplicates_removed_total",
			Help:      "Client rows removed by deduplication.",
		}),
		invalidations: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "zapagenda",
			Subsystem: "availability",
			Name:      "cache_invalidations_total",
			Help:      "Slot cache invalidations.",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.bookings, m.upsertRetries, m.slotQueries, m.slotLatency, m.dedupRemoved, m.invalidations)
	}
	return m
}

func (m *Metrics) ObserveBooking(outcome string) {
	if m == nil {
		return
	}
	m.bookings.WithLabelValues(outcome).Inc()
}

func (m *Metrics) ObserveUpsertRetry() {
	if m == nil {
		return
	}
	m.upsertRetries.Inc()
}

func (m *Metrics) ObserveSlotQuery(cache string, took time.Duration) {
	if m == nil {
		return
	}
	m.slotQueries.WithLabelValues(cache).Inc()
	m.slotLatency.Observe(took.Seconds())
}

func (m *Metrics) ObserveDedup(removed int) {
	if m == nil || removed <= 0 {
		return
	}
	m.dedupRemoved.Add(float64(removed))
}

func (m *Metrics) ObserveInvalidation() {
	if m == nil {
		return
	}
	m.invalidations.Inc()
}
