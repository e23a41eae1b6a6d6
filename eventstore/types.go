// Package eventstore defines the persistence contract for event-sourced aggregates:
// an append-only journal of events per aggregate, a "latest" snapshot used for fast
// reconstruction, and optimistic concurrency on the snapshot version.
//
// Concrete stores live in sub-packages (dynamostore) or in this package (MemoryStore).
package eventstore

import "time"

// TypeNamer is implemented by anything carrying a type tag.
type TypeNamer interface {
	TypeName() string
}

// AggregateID identifies an aggregate. TypeName is the aggregate kind and is used
// as the shard namespace; Value is unique within the kind.
type AggregateID interface {
	TypeNamer
	Value() string
	// AsString returns "{typeName}-{value}".
	AsString() string
}

// HasIdentity is implemented by aggregates.
type HasIdentity interface {
	ID() AggregateID
}

// HasSequenceAndVersion exposes the number of events folded into a state and the
// optimistic-lock counter of that state.
type HasSequenceAndVersion interface {
	SequenceNumber() uint64
	Version() uint64
}

// HasCreationFlag marks the first event of an aggregate's lifetime.
type HasCreationFlag interface {
	IsCreated() bool
}

// Aggregate is the foldable state of one entity. A is the concrete aggregate type,
// returned by WithVersion so stores can attach the persisted version.
type Aggregate[A any] interface {
	TypeNamer
	HasIdentity
	HasSequenceAndVersion
	WithVersion(version uint64) A
}

// Event is an immutable fact appended to an aggregate's journal.
type Event interface {
	TypeNamer
	HasCreationFlag
	// ID is the event identity, e.g. a sortable unique id.
	ID() string
	AggregateID() AggregateID
	// SequenceNumber is 1-based and strictly increasing per aggregate.
	SequenceNumber() uint64
	OccurredAt() time.Time
}

// SameAggregate reports whether a and b denote the same aggregate.
func SameAggregate(a, b AggregateID) bool {
	if a == nil || b == nil {
		return false
	}
	return a.AsString() == b.AsString()
}
