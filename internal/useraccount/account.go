package useraccount

import (
	"fmt"
	"time"

	jsoniter "github.com/json-iterator/go"

	"github.com/jarrod-lowe/dynamo-event-store/eventstore"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// AccountTypeName is the snapshot type tag of Account.
const AccountTypeName = "UserAccount"

// Account is the user account aggregate. Values are immutable; every change
// returns a new Account.
type Account struct {
	id      ID
	name    string
	seqNr   uint64
	version uint64
}

// Create starts a new account at sequence number 1 and version 1.
func Create(id ID, name string) (Account, Event) {
	acc := Account{id: id, name: name, seqNr: 1, version: 1}
	return acc, newCreated(id, name, acc.seqNr, time.Now().UTC())
}

// Rename changes the name and advances the sequence number. The version is left
// for the store to advance on persist.
func (a Account) Rename(name string) (Account, Event) {
	next := a.renamed(name)
	return next, newRenamed(a.id, name, next.seqNr, time.Now().UTC())
}

func (a Account) renamed(name string) Account {
	a.name = name
	a.seqNr++
	return a
}

// Replay folds events onto snapshot in order.
func Replay(events []Event, snapshot Account) (Account, error) {
	acc := snapshot
	for _, e := range events {
		next, err := acc.apply(e)
		if err != nil {
			return Account{}, err
		}
		acc = next
	}
	return acc, nil
}

func (a Account) apply(e Event) (Account, error) {
	switch e := e.(type) {
	case *Renamed:
		return a.renamed(e.Name()), nil
	default:
		return Account{}, fmt.Errorf("cannot apply %s to %s", e.TypeName(), a.id.AsString())
	}
}

func (a Account) TypeName() string          { return AccountTypeName }
func (a Account) ID() eventstore.AggregateID { return a.id }
func (a Account) AccountID() ID              { return a.id }
func (a Account) Name() string               { return a.name }
func (a Account) SequenceNumber() uint64     { return a.seqNr }
func (a Account) Version() uint64            { return a.version }

func (a Account) WithVersion(version uint64) Account {
	a.version = version
	return a
}

type accountDTO struct {
	ID             idDTO  `json:"id"`
	Name           string `json:"name"`
	SequenceNumber uint64 `json:"sequenceNumber"`
	Version        uint64 `json:"version"`
}

func (a Account) MarshalJSON() ([]byte, error) {
	return json.Marshal(accountDTO{
		ID:             idDTO{Value: a.id.value},
		Name:           a.name,
		SequenceNumber: a.seqNr,
		Version:        a.version,
	})
}

func (a *Account) UnmarshalJSON(data []byte) error {
	var dto accountDTO
	if err := json.Unmarshal(data, &dto); err != nil {
		return err
	}
	*a = Account{
		id:      NewID(dto.ID.Value),
		name:    dto.Name,
		seqNr:   dto.SequenceNumber,
		version: dto.Version,
	}
	return nil
}

// ConvertSnapshot decodes an Account snapshot envelope.
func ConvertSnapshot(env eventstore.Envelope) (Account, error) {
	if env.Type != AccountTypeName {
		return Account{}, fmt.Errorf("unknown snapshot type: %s", env.Type)
	}
	var acc Account
	if err := json.Unmarshal(env.Data, &acc); err != nil {
		return Account{}, fmt.Errorf("failed to decode %s: %w", env.Type, err)
	}
	return acc, nil
}

var _ eventstore.Aggregate[Account] = Account{}
