package useraccount

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/jarrod-lowe/dynamo-event-store/eventstore"
)

// Event type tags.
const (
	CreatedTypeName = "UserAccountCreated"
	RenamedTypeName = "UserAccountRenamed"
)

// Event is a user account event.
type Event interface {
	eventstore.Event
	Name() string
}

type eventData struct {
	id          string
	aggregateID ID
	name        string
	seqNr       uint64
	occurredAt  time.Time
}

func (d eventData) ID() string                          { return d.id }
func (d eventData) AggregateID() eventstore.AggregateID { return d.aggregateID }
func (d eventData) Name() string                        { return d.name }
func (d eventData) SequenceNumber() uint64              { return d.seqNr }
func (d eventData) OccurredAt() time.Time               { return d.occurredAt }

type eventDTO struct {
	ID             string    `json:"id"`
	AggregateID    idDTO     `json:"aggregateId"`
	Name           string    `json:"name"`
	SequenceNumber uint64    `json:"sequenceNumber"`
	OccurredAt     time.Time `json:"occurredAt"`
}

func (d eventData) MarshalJSON() ([]byte, error) {
	return json.Marshal(eventDTO{
		ID:             d.id,
		AggregateID:    idDTO{Value: d.aggregateID.value},
		Name:           d.name,
		SequenceNumber: d.seqNr,
		OccurredAt:     d.occurredAt,
	})
}

func decodeEventData(data []byte) (eventData, error) {
	var dto eventDTO
	if err := json.Unmarshal(data, &dto); err != nil {
		return eventData{}, err
	}
	return eventData{
		id:          dto.ID,
		aggregateID: NewID(dto.AggregateID.Value),
		name:        dto.Name,
		seqNr:       dto.SequenceNumber,
		occurredAt:  dto.OccurredAt,
	}, nil
}

func newEventData(id ID, name string, seqNr uint64, at time.Time) eventData {
	return eventData{
		id:          uuid.Must(uuid.NewV7()).String(),
		aggregateID: id,
		name:        name,
		seqNr:       seqNr,
		occurredAt:  at,
	}
}

// Created is the first event of an account.
type Created struct{ eventData }

func newCreated(id ID, name string, seqNr uint64, at time.Time) *Created {
	return &Created{newEventData(id, name, seqNr, at)}
}

func (*Created) TypeName() string { return CreatedTypeName }
func (*Created) IsCreated() bool  { return true }

// Renamed records a name change.
type Renamed struct{ eventData }

func newRenamed(id ID, name string, seqNr uint64, at time.Time) *Renamed {
	return &Renamed{newEventData(id, name, seqNr, at)}
}

func (*Renamed) TypeName() string { return RenamedTypeName }
func (*Renamed) IsCreated() bool  { return false }

// ConvertEvent decodes a user account event envelope.
func ConvertEvent(env eventstore.Envelope) (Event, error) {
	switch env.Type {
	case CreatedTypeName:
		d, err := decodeEventData(env.Data)
		if err != nil {
			return nil, fmt.Errorf("failed to decode %s: %w", env.Type, err)
		}
		return &Created{d}, nil
	case RenamedTypeName:
		d, err := decodeEventData(env.Data)
		if err != nil {
			return nil, fmt.Errorf("failed to decode %s: %w", env.Type, err)
		}
		return &Renamed{d}, nil
	default:
		return nil, fmt.Errorf("unknown event type: %s", env.Type)
	}
}

var (
	_ Event = (*Created)(nil)
	_ Event = (*Renamed)(nil)
)
