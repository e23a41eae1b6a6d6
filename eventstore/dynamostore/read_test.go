package dynamostore

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jarrod-lowe/dynamo-event-store/eventstore"
	"github.com/jarrod-lowe/dynamo-event-store/internal/dynamo"
	"github.com/jarrod-lowe/dynamo-event-store/internal/useraccount"
)

func journalRecordItem(t *testing.T, event useraccount.Event) map[string]types.AttributeValue {
	t.Helper()
	payload, err := eventstore.NewJSONEventSerializer[useraccount.Event]().Serialize(event)
	require.NoError(t, err)
	item, err := dynamo.MarshalRecord(dynamo.JournalRecord{
		PKey:       "user-account-22",
		SKey:       event.AggregateID().AsString() + "-" + "n",
		AID:        event.AggregateID().AsString(),
		SeqNr:      event.SequenceNumber(),
		Payload:    payload,
		OccurredAt: event.OccurredAt().UnixMilli(),
	})
	require.NoError(t, err)
	return item
}

func snapshotRecordItem(t *testing.T, acc useraccount.Account, version uint64) map[string]types.AttributeValue {
	t.Helper()
	payload, err := eventstore.NewJSONSnapshotSerializer[useraccount.Account]().Serialize(acc)
	require.NoError(t, err)
	item, err := dynamo.MarshalRecord(dynamo.SnapshotRecord{
		PKey:    "user-account-22",
		SKey:    "user-account-x-0",
		AID:     acc.ID().AsString(),
		SeqNr:   0,
		Payload: payload,
		Version: version,
	})
	require.NoError(t, err)
	return item
}

func renameEvents(n int) (useraccount.Account, []useraccount.Event) {
	acc, created := useraccount.Create(useraccount.NewID("x"), "Alice")
	events := []useraccount.Event{created}
	for i := 0; i < n; i++ {
		var e useraccount.Event
		acc, e = acc.Rename("name")
		events = append(events, e)
	}
	return acc, events
}

func TestGetEventsByIDSinceSequenceNumber_Paginates(t *testing.T) {
	_, events := renameEvents(2)
	pageKey := map[string]types.AttributeValue{"pkey": &types.AttributeValueMemberS{Value: "page"}}
	client := &mockDynamoDBClient{
		queryFunc: func(ctx context.Context, input *dynamodb.QueryInput) (*dynamodb.QueryOutput, error) {
			if input.ExclusiveStartKey == nil {
				return &dynamodb.QueryOutput{
					Items:            []map[string]types.AttributeValue{journalRecordItem(t, events[1])},
					LastEvaluatedKey: pageKey,
				}, nil
			}
			return &dynamodb.QueryOutput{
				Items: []map[string]types.AttributeValue{journalRecordItem(t, events[2])},
			}, nil
		},
	}
	store := newTestStore(t, client)

	got, err := store.GetEventsByIDSinceSequenceNumber(context.Background(), useraccount.NewID("x"), 2)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, uint64(2), got[0].SequenceNumber())
	assert.Equal(t, uint64(3), got[1].SequenceNumber())
	assert.Equal(t, useraccount.RenamedTypeName, got[0].TypeName())

	require.Len(t, client.queries, 2)
	first := client.queries[0]
	assert.Equal(t, "journal", aws.ToString(first.TableName))
	assert.Equal(t, "journal-aid-index", aws.ToString(first.IndexName))
	assert.Equal(t, "#aid = :aid AND #seq_nr >= :seq_nr", aws.ToString(first.KeyConditionExpression))
	assert.Equal(t, "user-account-x", attrS(t, first.ExpressionAttributeValues, ":aid"))
	assert.Equal(t, "2", attrN(t, first.ExpressionAttributeValues, ":seq_nr"))
	assert.Equal(t, pageKey, client.queries[1].ExclusiveStartKey)
}

func TestGetEventsByIDSinceSequenceNumber_Empty(t *testing.T) {
	store := newTestStore(t, &mockDynamoDBClient{})

	got, err := store.GetEventsByIDSinceSequenceNumber(context.Background(), useraccount.NewID("unknown"), 1)
	require.NoError(t, err)
	assert.NotNil(t, got)
	assert.Empty(t, got)
}

func TestGetEventsByIDSinceSequenceNumber_MissingPayload(t *testing.T) {
	client := &mockDynamoDBClient{
		queryFunc: func(ctx context.Context, input *dynamodb.QueryInput) (*dynamodb.QueryOutput, error) {
			return &dynamodb.QueryOutput{Items: []map[string]types.AttributeValue{{
				"aid":    &types.AttributeValueMemberS{Value: "user-account-x"},
				"seq_nr": &types.AttributeValueMemberN{Value: "1"},
			}}}, nil
		},
	}
	store := newTestStore(t, client)

	_, err := store.GetEventsByIDSinceSequenceNumber(context.Background(), useraccount.NewID("x"), 1)
	assert.ErrorIs(t, err, eventstore.ErrCorruptedRecord)
}

func TestGetEventsByIDSinceSequenceNumber_QueryError(t *testing.T) {
	queryErr := errors.New("throttled")
	client := &mockDynamoDBClient{
		queryFunc: func(ctx context.Context, input *dynamodb.QueryInput) (*dynamodb.QueryOutput, error) {
			return nil, queryErr
		},
	}
	store := newTestStore(t, client)

	_, err := store.GetEventsByIDSinceSequenceNumber(context.Background(), useraccount.NewID("x"), 1)
	assert.ErrorIs(t, err, queryErr)
}

func TestGetEventsByIDSinceSequenceNumber_InvalidID(t *testing.T) {
	client := &mockDynamoDBClient{}
	store := newTestStore(t, client)

	_, err := store.GetEventsByIDSinceSequenceNumber(context.Background(), nil, 1)
	assert.ErrorIs(t, err, eventstore.ErrValidation)
	assert.Empty(t, client.queries)
}

func TestGetLatestSnapshotByID(t *testing.T) {
	acc, _ := renameEvents(1)
	client := &mockDynamoDBClient{
		queryFunc: func(ctx context.Context, input *dynamodb.QueryInput) (*dynamodb.QueryOutput, error) {
			return &dynamodb.QueryOutput{Items: []map[string]types.AttributeValue{snapshotRecordItem(t, acc, 5)}}, nil
		},
	}
	store := newTestStore(t, client)

	got, ok, err := store.GetLatestSnapshotByID(context.Background(), useraccount.NewID("x"))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, uint64(5), got.Version(), "stored version is attached")
	assert.Equal(t, uint64(2), got.SequenceNumber())
	assert.Equal(t, "name", got.Name())

	require.Len(t, client.queries, 1)
	q := client.queries[0]
	assert.Equal(t, "snapshot", aws.ToString(q.TableName))
	assert.Equal(t, "snapshot-aid-index", aws.ToString(q.IndexName))
	assert.Equal(t, "0", attrN(t, q.ExpressionAttributeValues, ":seq_nr"))
	assert.Equal(t, int32(1), aws.ToInt32(q.Limit))
}

func TestGetLatestSnapshotByID_NotFound(t *testing.T) {
	store := newTestStore(t, &mockDynamoDBClient{})

	_, ok, err := store.GetLatestSnapshotByID(context.Background(), useraccount.NewID("x"))
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestGetLatestSnapshotByID_MissingVersion(t *testing.T) {
	acc, _ := renameEvents(0)
	client := &mockDynamoDBClient{
		queryFunc: func(ctx context.Context, input *dynamodb.QueryInput) (*dynamodb.QueryOutput, error) {
			item := snapshotRecordItem(t, acc, 1)
			delete(item, dynamo.AttrVersion)
			return &dynamodb.QueryOutput{Items: []map[string]types.AttributeValue{item}}, nil
		},
	}
	store := newTestStore(t, client)

	_, _, err := store.GetLatestSnapshotByID(context.Background(), useraccount.NewID("x"))
	assert.ErrorIs(t, err, eventstore.ErrCorruptedRecord)
}

func TestGetLatestSnapshotByID_UndecodablePayload(t *testing.T) {
	acc, _ := renameEvents(0)
	client := &mockDynamoDBClient{
		queryFunc: func(ctx context.Context, input *dynamodb.QueryInput) (*dynamodb.QueryOutput, error) {
			item := snapshotRecordItem(t, acc, 1)
			item[dynamo.AttrPayload] = &types.AttributeValueMemberB{Value: []byte(`{"type":"Other","data":{}}`)}
			return &dynamodb.QueryOutput{Items: []map[string]types.AttributeValue{item}}, nil
		},
	}
	store := newTestStore(t, client)

	_, _, err := store.GetLatestSnapshotByID(context.Background(), useraccount.NewID("x"))
	assert.Error(t, err)
}
