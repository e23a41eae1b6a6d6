package eventstore

import (
	"cmp"
	"context"
	"log/slog"
	"slices"
	"sync"
)

// MemoryStore is an EventStore over process-local maps, for tests and local
// development. It has no sharding and no snapshot retention.
type MemoryStore[A Aggregate[A], E Event] struct {
	mu        sync.Mutex
	log       *slog.Logger
	events    map[string][]E
	snapshots map[string]A
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore[A Aggregate[A], E Event]() *MemoryStore[A, E] {
	return &MemoryStore[A, E]{
		log:       slog.Default().With(slog.String("store", "memory")),
		events:    map[string][]E{},
		snapshots: map[string]A{},
	}
}

func (s *MemoryStore[A, E]) PersistEvent(_ context.Context, event E, expectedVersion uint64) error {
	if err := ValidateAggregateID(event.AggregateID()); err != nil {
		return err
	}
	if err := ValidatePersistEvent(event); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	aid := event.AggregateID().AsString()
	snapshot, ok := s.snapshots[aid]
	if !ok {
		return NewOptimisticLockError(aid, false, nil)
	}
	if err := ValidatePair(event, snapshot.ID()); err != nil {
		return err
	}
	if snapshot.Version() != expectedVersion {
		return NewOptimisticLockError(aid, false, nil)
	}
	if s.hasSequenceNumber(aid, event.SequenceNumber()) {
		return NewOptimisticLockError(aid, true, nil)
	}

	s.events[aid] = append(s.events[aid], event)
	s.snapshots[aid] = snapshot.WithVersion(expectedVersion + 1)
	s.log.Debug("persisted event",
		slog.String("aid", aid),
		slog.Uint64("seq_nr", event.SequenceNumber()),
		slog.Uint64("version", expectedVersion+1),
	)
	return nil
}

func (s *MemoryStore[A, E]) PersistEventAndSnapshot(_ context.Context, event E, aggregate A) error {
	if err := ValidateAggregateID(event.AggregateID()); err != nil {
		return err
	}
	if err := ValidatePair(event, aggregate.ID()); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	aid := event.AggregateID().AsString()
	snapshot, exists := s.snapshots[aid]

	var newVersion uint64 = 1
	if event.IsCreated() {
		if exists {
			return NewOptimisticLockError(aid, false, nil)
		}
	} else {
		if !exists || snapshot.Version() != aggregate.Version() {
			return NewOptimisticLockError(aid, false, nil)
		}
		newVersion = snapshot.Version() + 1
	}
	if s.hasSequenceNumber(aid, event.SequenceNumber()) {
		return NewOptimisticLockError(aid, true, nil)
	}

	s.events[aid] = append(s.events[aid], event)
	s.snapshots[aid] = aggregate.WithVersion(newVersion)
	s.log.Debug("persisted event and snapshot",
		slog.String("aid", aid),
		slog.Uint64("seq_nr", event.SequenceNumber()),
		slog.Uint64("version", newVersion),
	)
	return nil
}

func (s *MemoryStore[A, E]) GetEventsByIDSinceSequenceNumber(_ context.Context, id AggregateID, seqNr uint64) ([]E, error) {
	if err := ValidateAggregateID(id); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]E, 0)
	for _, e := range s.events[id.AsString()] {
		if e.SequenceNumber() >= seqNr {
			out = append(out, e)
		}
	}
	slices.SortStableFunc(out, func(a, b E) int {
		return cmp.Compare(a.SequenceNumber(), b.SequenceNumber())
	})
	return out, nil
}

func (s *MemoryStore[A, E]) GetLatestSnapshotByID(_ context.Context, id AggregateID) (A, bool, error) {
	var zero A
	if err := ValidateAggregateID(id); err != nil {
		return zero, false, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot, ok := s.snapshots[id.AsString()]
	return snapshot, ok, nil
}

// caller holds s.mu
func (s *MemoryStore[A, E]) hasSequenceNumber(aid string, seqNr uint64) bool {
	return slices.ContainsFunc(s.events[aid], func(e E) bool {
		return e.SequenceNumber() == seqNr
	})
}
