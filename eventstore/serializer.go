package eventstore

import (
	"fmt"

	jsoniter "github.com/json-iterator/go"
)

var jsonAPI = jsoniter.ConfigCompatibleWithStandardLibrary

// Envelope is the decoded form of a stored payload. The store only manages Type;
// Data is handed to the domain's Converter untouched.
type Envelope struct {
	Type string              `json:"type"`
	Data jsoniter.RawMessage `json:"data"`
}

// Converter reconstructs the concrete polymorphic value from an envelope,
// typically by switching on env.Type.
type Converter[T any] func(env Envelope) (T, error)

// Serializer encodes domain objects to opaque payload bytes and back.
type Serializer[T any] interface {
	Serialize(v T) ([]byte, error)
	Deserialize(data []byte, convert Converter[T]) (T, error)
}

// JSONSerializer writes {"type": v.TypeName(), "data": v} as JSON.
type JSONSerializer[T TypeNamer] struct{}

// NewJSONEventSerializer returns the default event serializer.
func NewJSONEventSerializer[E Event]() *JSONSerializer[E] {
	return &JSONSerializer[E]{}
}

// NewJSONSnapshotSerializer returns the default snapshot serializer.
func NewJSONSnapshotSerializer[A Aggregate[A]]() *JSONSerializer[A] {
	return &JSONSerializer[A]{}
}

func (s *JSONSerializer[T]) Serialize(v T) ([]byte, error) {
	data, err := jsonAPI.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s: %w", v.TypeName(), err)
	}
	return jsonAPI.Marshal(Envelope{Type: v.TypeName(), Data: data})
}

func (s *JSONSerializer[T]) Deserialize(data []byte, convert Converter[T]) (T, error) {
	var zero T
	if convert == nil {
		return zero, validationError("converter is nil")
	}
	var env Envelope
	if err := jsonAPI.Unmarshal(data, &env); err != nil {
		return zero, fmt.Errorf("failed to decode envelope: %w", err)
	}
	return convert(env)
}
