package eventstore

import "context"

// EventStore persists events and snapshots for aggregates of type A with events of type E.
//
// An aggregate moves from non-existent to created through PersistEventAndSnapshot with a
// creation event, and from one version to the next through either PersistEvent or
// PersistEventAndSnapshot with a non-creation event.
type EventStore[A Aggregate[A], E Event] interface {
	// PersistEvent appends a non-creation event and advances the snapshot version
	// from expectedVersion to expectedVersion+1 without replacing the snapshot state.
	PersistEvent(ctx context.Context, event E, expectedVersion uint64) error
	// PersistEventAndSnapshot appends the event and writes aggregate as the latest
	// snapshot. Creation events create the aggregate at version 1; other events
	// advance from aggregate.Version().
	PersistEventAndSnapshot(ctx context.Context, event E, aggregate A) error
	// GetEventsByIDSinceSequenceNumber returns the journal events of id with a
	// sequence number >= seqNr in ascending order.
	GetEventsByIDSinceSequenceNumber(ctx context.Context, id AggregateID, seqNr uint64) ([]E, error)
	// GetLatestSnapshotByID returns the latest snapshot carrying its stored version,
	// or false when the aggregate has none.
	GetLatestSnapshotByID(ctx context.Context, id AggregateID) (A, bool, error)
}

// ValidatePersistEvent rejects creation events on the update-only path.
func ValidatePersistEvent(event Event) error {
	if event.IsCreated() {
		return validationError("creation event %s cannot be persisted without a snapshot", event.ID())
	}
	return nil
}

// ValidatePair rejects an event and aggregate that belong to different aggregates.
func ValidatePair(event Event, aggregateID AggregateID) error {
	if !SameAggregate(event.AggregateID(), aggregateID) {
		return validationError("aggregate id mismatch: event %s, aggregate %s",
			idString(event.AggregateID()), idString(aggregateID))
	}
	return nil
}

func idString(id AggregateID) string {
	if id == nil {
		return "<nil>"
	}
	return id.AsString()
}
