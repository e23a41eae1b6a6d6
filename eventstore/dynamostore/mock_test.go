package dynamostore

import (
	"context"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/stretchr/testify/require"

	"github.com/jarrod-lowe/dynamo-event-store/eventstore"
	"github.com/jarrod-lowe/dynamo-event-store/internal/useraccount"
)

type mockDynamoDBClient struct {
	mu                sync.Mutex
	queryFunc         func(ctx context.Context, input *dynamodb.QueryInput) (*dynamodb.QueryOutput, error)
	transactWriteFunc func(ctx context.Context, input *dynamodb.TransactWriteItemsInput) (*dynamodb.TransactWriteItemsOutput, error)
	updateItemFunc    func(ctx context.Context, input *dynamodb.UpdateItemInput) (*dynamodb.UpdateItemOutput, error)
	batchWriteFunc    func(ctx context.Context, input *dynamodb.BatchWriteItemInput) (*dynamodb.BatchWriteItemOutput, error)

	queries      []*dynamodb.QueryInput
	transactions []*dynamodb.TransactWriteItemsInput
	updates      []*dynamodb.UpdateItemInput
	batches      []*dynamodb.BatchWriteItemInput
}

func (m *mockDynamoDBClient) Query(ctx context.Context, input *dynamodb.QueryInput, opts ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error) {
	m.mu.Lock()
	// Inputs are reused across pages; record a copy.
	cp := *input
	m.queries = append(m.queries, &cp)
	m.mu.Unlock()
	if m.queryFunc != nil {
		return m.queryFunc(ctx, input)
	}
	return &dynamodb.QueryOutput{}, nil
}

func (m *mockDynamoDBClient) TransactWriteItems(ctx context.Context, input *dynamodb.TransactWriteItemsInput, opts ...func(*dynamodb.Options)) (*dynamodb.TransactWriteItemsOutput, error) {
	m.mu.Lock()
	m.transactions = append(m.transactions, input)
	m.mu.Unlock()
	if m.transactWriteFunc != nil {
		return m.transactWriteFunc(ctx, input)
	}
	return &dynamodb.TransactWriteItemsOutput{}, nil
}

func (m *mockDynamoDBClient) UpdateItem(ctx context.Context, input *dynamodb.UpdateItemInput, opts ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error) {
	m.mu.Lock()
	m.updates = append(m.updates, input)
	m.mu.Unlock()
	if m.updateItemFunc != nil {
		return m.updateItemFunc(ctx, input)
	}
	return &dynamodb.UpdateItemOutput{}, nil
}

func (m *mockDynamoDBClient) BatchWriteItem(ctx context.Context, input *dynamodb.BatchWriteItemInput, opts ...func(*dynamodb.Options)) (*dynamodb.BatchWriteItemOutput, error) {
	m.mu.Lock()
	m.batches = append(m.batches, input)
	m.mu.Unlock()
	if m.batchWriteFunc != nil {
		return m.batchWriteFunc(ctx, input)
	}
	return &dynamodb.BatchWriteItemOutput{}, nil
}

type mockScheduler struct {
	scheduleFunc func(ctx context.Context, aid string) error
	scheduled    []string
}

func (m *mockScheduler) SchedulePurge(ctx context.Context, aid string) error {
	m.scheduled = append(m.scheduled, aid)
	if m.scheduleFunc != nil {
		return m.scheduleFunc(ctx, aid)
	}
	return nil
}

var testTables = Tables{
	JournalTableName:     "journal",
	SnapshotTableName:    "snapshot",
	JournalAIDIndexName:  "journal-aid-index",
	SnapshotAIDIndexName: "snapshot-aid-index",
}

type accountStore = Store[useraccount.Account, useraccount.Event]

func newTestStore(t *testing.T, client DynamoDBClient) *accountStore {
	t.Helper()
	s, err := New[useraccount.Account, useraccount.Event](client, testTables, 32, useraccount.ConvertEvent, useraccount.ConvertSnapshot)
	require.NoError(t, err)
	return s
}

func attrS(t *testing.T, item map[string]types.AttributeValue, name string) string {
	t.Helper()
	v, ok := item[name].(*types.AttributeValueMemberS)
	require.True(t, ok, "attribute %s is not a string: %#v", name, item[name])
	return v.Value
}

func attrN(t *testing.T, item map[string]types.AttributeValue, name string) string {
	t.Helper()
	v, ok := item[name].(*types.AttributeValueMemberN)
	require.True(t, ok, "attribute %s is not a number: %#v", name, item[name])
	return v.Value
}

func attrB(t *testing.T, item map[string]types.AttributeValue, name string) []byte {
	t.Helper()
	v, ok := item[name].(*types.AttributeValueMemberB)
	require.True(t, ok, "attribute %s is not binary: %#v", name, item[name])
	return v.Value
}

type recordingMetrics struct {
	mu         sync.Mutex
	operations []string
	persisted  map[string]int
	conflicts  map[string]int
	purged     map[string]int
}

func newRecordingMetrics() *recordingMetrics {
	return &recordingMetrics{
		persisted: map[string]int{},
		conflicts: map[string]int{},
		purged:    map[string]int{},
	}
}

type recordingTimer struct{}

func (recordingTimer) ObserveDuration() {}

func (m *recordingMetrics) OperationDuration(op, _ string) eventstore.Timer {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.operations = append(m.operations, op)
	return recordingTimer{}
}

func (m *recordingMetrics) EventPersisted(aggregateType string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.persisted[aggregateType]++
}

func (m *recordingMetrics) ConcurrencyConflict(aggregateType string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.conflicts[aggregateType]++
}

func (m *recordingMetrics) SnapshotsPurged(mode string, count int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.purged[mode] += count
}
