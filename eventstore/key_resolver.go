package eventstore

import (
	"strconv"
	"unicode/utf16"
)

// KeyResolver maps an aggregate identity to the partition key (shard) and the
// per-sequence sort key of its records.
type KeyResolver interface {
	ResolvePartitionKey(id AggregateID, shardCount uint64) (string, error)
	ResolveSortKey(id AggregateID, seqNr uint64) (string, error)
}

// DefaultKeyResolver shards by a 31-multiplier rolling hash of the identity string.
//
// The hash runs over UTF-16 code units and wraps at 32 bits, so every writer that
// follows the same recipe agrees on the shard regardless of implementation language.
type DefaultKeyResolver struct{}

// ResolvePartitionKey returns "{typeName}-{hash mod shardCount}".
func (DefaultKeyResolver) ResolvePartitionKey(id AggregateID, shardCount uint64) (string, error) {
	if err := ValidateAggregateID(id); err != nil {
		return "", err
	}
	if shardCount == 0 {
		return "", validationError("shard count must be at least 1")
	}
	shard := uint64(HashString(id.AsString())) % shardCount
	return id.TypeName() + "-" + strconv.FormatUint(shard, 10), nil
}

// ResolveSortKey returns "{typeName}-{value}-{seqNr}".
func (DefaultKeyResolver) ResolveSortKey(id AggregateID, seqNr uint64) (string, error) {
	if err := ValidateAggregateID(id); err != nil {
		return "", err
	}
	return id.TypeName() + "-" + id.Value() + "-" + strconv.FormatUint(seqNr, 10), nil
}

// HashString computes hash = hash*31 + unit over the UTF-16 code units of s,
// truncated to an unsigned 32-bit value.
func HashString(s string) uint32 {
	var h uint32
	for _, unit := range utf16.Encode([]rune(s)) {
		h = h*31 + uint32(unit)
	}
	return h
}

// ValidateAggregateID rejects a nil identity or one with an empty type name or value.
func ValidateAggregateID(id AggregateID) error {
	if id == nil {
		return validationError("aggregate id is nil")
	}
	if id.TypeName() == "" || id.Value() == "" {
		return validationError("aggregate id %q is incomplete", id.AsString())
	}
	return nil
}

var _ KeyResolver = DefaultKeyResolver{}
