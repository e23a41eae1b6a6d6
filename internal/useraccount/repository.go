package useraccount

import (
	"context"

	"github.com/jarrod-lowe/dynamo-event-store/eventstore"
)

// Repository loads and stores accounts through an event store.
type Repository struct {
	store eventstore.EventStore[Account, Event]
}

// NewRepository creates a new Repository.
func NewRepository(store eventstore.EventStore[Account, Event]) *Repository {
	return &Repository{store: store}
}

// StoreEvent appends event without a new snapshot.
func (r *Repository) StoreEvent(ctx context.Context, event Event, version uint64) error {
	return r.store.PersistEvent(ctx, event, version)
}

// StoreEventAndSnapshot appends event and replaces the snapshot.
func (r *Repository) StoreEventAndSnapshot(ctx context.Context, event Event, snapshot Account) error {
	return r.store.PersistEventAndSnapshot(ctx, event, snapshot)
}

// FindByID rebuilds the account from its latest snapshot and the events after it.
func (r *Repository) FindByID(ctx context.Context, id ID) (Account, bool, error) {
	snapshot, ok, err := r.store.GetLatestSnapshotByID(ctx, id)
	if err != nil || !ok {
		return Account{}, false, err
	}
	events, err := r.store.GetEventsByIDSinceSequenceNumber(ctx, id, snapshot.SequenceNumber()+1)
	if err != nil {
		return Account{}, false, err
	}
	acc, err := Replay(events, snapshot)
	if err != nil {
		return Account{}, false, err
	}
	return acc, true, nil
}
