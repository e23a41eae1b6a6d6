// Package prommetrics provides a Prometheus implementation of eventstore.Metrics.
package prommetrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/jarrod-lowe/dynamo-event-store/eventstore"
)

// Default histogram buckets for latency metrics (in seconds).
var defaultBuckets = []float64{
	.001, .0025, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5,
}

type timer struct {
	h     prometheus.Observer
	start time.Time
}

func newTimer(h prometheus.Observer) eventstore.Timer {
	return &timer{h: h, start: time.Now()}
}

func (t *timer) ObserveDuration() {
	t.h.Observe(time.Since(t.start).Seconds())
}

type metrics struct {
	operationDuration    *prometheus.HistogramVec
	eventsPersisted      *prometheus.CounterVec
	concurrencyConflicts *prometheus.CounterVec
	snapshotsPurged      *prometheus.CounterVec
}

// New creates the event store metrics and registers them with reg.
func New(reg prometheus.Registerer) eventstore.Metrics {
	m := &metrics{
		operationDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "eventstore_operation_duration_seconds",
			Help:    "Event store operation latency in seconds",
			Buckets: defaultBuckets,
		}, []string{"operation", "aggregate_type"}),

		eventsPersisted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "eventstore_events_persisted_total",
			Help: "Total number of events written to the journal",
		}, []string{"aggregate_type"}),

		concurrencyConflicts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "eventstore_concurrency_conflicts_total",
			Help: "Total number of optimistic lock failures",
		}, []string{"aggregate_type"}),

		snapshotsPurged: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "eventstore_snapshots_purged_total",
			Help: "Total number of historical snapshots deleted or marked for expiry",
		}, []string{"mode"}),
	}

	reg.MustRegister(
		m.operationDuration,
		m.eventsPersisted,
		m.concurrencyConflicts,
		m.snapshotsPurged,
	)

	return m
}

func (m *metrics) OperationDuration(op, aggregateType string) eventstore.Timer {
	return newTimer(m.operationDuration.WithLabelValues(op, aggregateType))
}

func (m *metrics) EventPersisted(aggregateType string) {
	m.eventsPersisted.WithLabelValues(aggregateType).Inc()
}

func (m *metrics) ConcurrencyConflict(aggregateType string) {
	m.concurrencyConflicts.WithLabelValues(aggregateType).Inc()
}

func (m *metrics) SnapshotsPurged(mode string, count int) {
	m.snapshotsPurged.WithLabelValues(mode).Add(float64(count))
}

var _ eventstore.Metrics = (*metrics)(nil)
