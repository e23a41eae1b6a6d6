package dynamo

import (
	"fmt"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// JournalRecord is one event in the journal table.
// PK: {typeName}-{shard}
// SK: {typeName}-{value}-{seqNr}
type JournalRecord struct {
	PKey       string `dynamodbav:"pkey"`
	SKey       string `dynamodbav:"skey"`
	AID        string `dynamodbav:"aid"`
	SeqNr      uint64 `dynamodbav:"seq_nr"`
	Payload    []byte `dynamodbav:"payload"`
	OccurredAt int64  `dynamodbav:"occurred_at"`
}

// SnapshotRecord is one snapshot in the snapshot table. SeqNr 0 is the latest slot;
// higher values are historical snapshots kept for retention.
type SnapshotRecord struct {
	PKey          string `dynamodbav:"pkey"`
	SKey          string `dynamodbav:"skey"`
	AID           string `dynamodbav:"aid"`
	SeqNr         uint64 `dynamodbav:"seq_nr"`
	Payload       []byte `dynamodbav:"payload"`
	Version       uint64 `dynamodbav:"version"`
	TTL           int64  `dynamodbav:"ttl"`
	LastUpdatedAt int64  `dynamodbav:"last_updated_at"`
}

// RecordKey is the primary key of a record.
type RecordKey struct {
	PKey string `dynamodbav:"pkey"`
	SKey string `dynamodbav:"skey"`
}

// Item returns the DynamoDB key map for k.
func (k RecordKey) Item() map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		AttrPKey: &types.AttributeValueMemberS{Value: k.PKey},
		AttrSKey: &types.AttributeValueMemberS{Value: k.SKey},
	}
}

// MarshalRecord converts a record struct into a DynamoDB item.
func MarshalRecord(record any) (map[string]types.AttributeValue, error) {
	item, err := attributevalue.MarshalMap(record)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal record: %w", err)
	}
	return item, nil
}

// UnmarshalRecord converts a DynamoDB item into out, returning the names of
// any required attributes missing from the item.
func UnmarshalRecord(item map[string]types.AttributeValue, out any, required ...string) ([]string, error) {
	var missing []string
	for _, name := range required {
		if _, ok := item[name]; !ok {
			missing = append(missing, name)
		}
	}
	if err := attributevalue.UnmarshalMap(item, out); err != nil {
		return missing, fmt.Errorf("failed to unmarshal record: %w", err)
	}
	return missing, nil
}
