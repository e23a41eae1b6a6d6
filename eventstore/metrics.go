package eventstore

// Timer measures one operation; call ObserveDuration when it completes.
type Timer interface {
	ObserveDuration()
}

// Metrics receives store instrumentation. Implementations must be safe for
// concurrent use.
type Metrics interface {
	OperationDuration(op string, aggregateType string) Timer
	EventPersisted(aggregateType string)
	ConcurrencyConflict(aggregateType string)
	SnapshotsPurged(mode string, count int)
}

// Purge modes reported to Metrics.SnapshotsPurged.
const (
	PurgeModeDelete = "delete"
	PurgeModeTTL    = "ttl"
)

type nopTimer struct{}

func (nopTimer) ObserveDuration() {}

type nopMetrics struct{}

func (nopMetrics) OperationDuration(string, string) Timer { return nopTimer{} }
func (nopMetrics) EventPersisted(string)                  {}
func (nopMetrics) ConcurrencyConflict(string)             {}
func (nopMetrics) SnapshotsPurged(string, int)            {}

// NopMetrics returns a Metrics that records nothing.
func NopMetrics() Metrics { return nopMetrics{} }
