// Package useraccount is a small event-sourced aggregate used to exercise the
// event stores end to end: an account is created with a name and can be renamed.
package useraccount

import "github.com/jarrod-lowe/dynamo-event-store/eventstore"

// IDTypeName is the key namespace of user account records.
const IDTypeName = "user-account"

// ID identifies a user account.
type ID struct {
	value string
}

// NewID returns the ID with the given value.
func NewID(value string) ID {
	return ID{value: value}
}

func (id ID) TypeName() string { return IDTypeName }
func (id ID) Value() string    { return id.value }
func (id ID) AsString() string { return IDTypeName + "-" + id.value }

type idDTO struct {
	Value string `json:"value"`
}

var _ eventstore.AggregateID = ID{}
