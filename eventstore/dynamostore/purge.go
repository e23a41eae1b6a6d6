package dynamostore

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/jarrod-lowe/jmap-service-libs/dbclient"
	"github.com/jarrod-lowe/jmap-service-libs/tracing"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/jarrod-lowe/dynamo-event-store/eventstore"
	"github.com/jarrod-lowe/dynamo-event-store/internal/dynamo"
)

// maxConcurrentExpiryUpdates bounds the parallel UpdateItem calls made when
// marking snapshots for expiry.
const maxConcurrentExpiryUpdates = 8

// PurgeClient defines the DynamoDB operations used by Purger.
type PurgeClient interface {
	Query(ctx context.Context, input *dynamodb.QueryInput, opts ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
	UpdateItem(ctx context.Context, input *dynamodb.UpdateItemInput, opts ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
	BatchWriteItem(ctx context.Context, input *dynamodb.BatchWriteItemInput, opts ...func(*dynamodb.Options)) (*dynamodb.BatchWriteItemOutput, error)
}

// Purger removes historical snapshots beyond the retention count.
//
// With a zero delete TTL the oldest excess snapshots are deleted outright.
// Otherwise they are marked with ttl = now + delete TTL and left for DynamoDB's
// TTL sweeper; marked snapshots no longer count towards retention.
type Purger struct {
	client    PurgeClient
	tableName string
	indexName string
	keep      uint32
	deleteTTL time.Duration
	logger    *slog.Logger
	metrics   eventstore.Metrics
	tracer    trace.Tracer
	now       func() time.Time
}

// NewPurger creates a Purger for the given snapshot table and aid index.
func NewPurger(client PurgeClient, tableName, indexName string, keep uint32, deleteTTL time.Duration) *Purger {
	return &Purger{
		client:    client,
		tableName: tableName,
		indexName: indexName,
		keep:      keep,
		deleteTTL: deleteTTL,
		logger:    slog.New(slog.DiscardHandler),
		metrics:   eventstore.NopMetrics(),
		tracer:    tracing.Tracer(tracerName),
		now:       time.Now,
	}
}

func (p *Purger) WithLogger(l *slog.Logger) *Purger {
	c := *p
	c.logger = l
	return &c
}

func (p *Purger) WithMetrics(m eventstore.Metrics) *Purger {
	c := *p
	c.metrics = m
	return &c
}

func (p *Purger) WithTracer(t trace.Tracer) *Purger {
	c := *p
	c.tracer = t
	return &c
}

func (p *Purger) WithClock(now func() time.Time) *Purger {
	c := *p
	c.now = now
	return &c
}

// PurgeExcessSnapshots trims the active historical snapshots of aid down to the
// retention count, oldest first, and returns how many were deleted or marked.
func (p *Purger) PurgeExcessSnapshots(ctx context.Context, aid string) (int, error) {
	if p.keep == 0 {
		return 0, nil
	}
	ctx, span := p.tracer.Start(ctx, "PurgeExcessSnapshots", trace.WithAttributes(
		attribute.String("aggregate.id", aid),
		attribute.Int("retention.keep", int(p.keep)),
	))
	defer span.End()

	active, err := p.countActive(ctx, aid)
	if err != nil {
		return 0, recordError(span, err)
	}
	excess := active - int(p.keep)
	if excess <= 0 {
		return 0, nil
	}

	keys, err := p.oldestKeys(ctx, aid, excess)
	if err != nil {
		return 0, recordError(span, err)
	}
	if len(keys) == 0 {
		return 0, nil
	}

	if p.deleteTTL > 0 {
		err = p.markExpiring(ctx, keys)
	} else {
		err = p.deleteKeys(ctx, keys)
	}
	if err != nil {
		return 0, recordError(span, err)
	}

	mode := eventstore.PurgeModeDelete
	if p.deleteTTL > 0 {
		mode = eventstore.PurgeModeTTL
	}
	p.metrics.SnapshotsPurged(mode, len(keys))
	p.logger.InfoContext(ctx, "purged excess snapshots",
		slog.String("aid", aid),
		slog.String("mode", mode),
		slog.Int("count", len(keys)),
		slog.Int("active", active),
	)
	span.SetAttributes(attribute.Int("purge.count", len(keys)))
	return len(keys), nil
}

// activeHistoricalQuery selects historical snapshots (seq_nr > 0) not yet marked
// for expiry.
func (p *Purger) activeHistoricalQuery(aid string) *dynamodb.QueryInput {
	return &dynamodb.QueryInput{
		TableName:              aws.String(p.tableName),
		IndexName:              aws.String(p.indexName),
		KeyConditionExpression: aws.String("#aid = :aid AND #seq_nr > :zero"),
		FilterExpression:       aws.String("#ttl = :zero"),
		ExpressionAttributeNames: map[string]string{
			"#aid":    dynamo.AttrAID,
			"#seq_nr": dynamo.AttrSeqNr,
			"#ttl":    dynamo.AttrTTL,
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":aid":  &types.AttributeValueMemberS{Value: aid},
			":zero": &types.AttributeValueMemberN{Value: "0"},
		},
	}
}

func (p *Purger) countActive(ctx context.Context, aid string) (int, error) {
	input := p.activeHistoricalQuery(aid)
	input.Select = types.SelectCount

	total := 0
	for {
		output, err := p.client.Query(ctx, input)
		if err != nil {
			return 0, fmt.Errorf("failed to count snapshots: %w", err)
		}
		total += int(output.Count)
		if len(output.LastEvaluatedKey) == 0 {
			return total, nil
		}
		input.ExclusiveStartKey = output.LastEvaluatedKey
	}
}

// oldestKeys returns up to limit keys of active historical snapshots in
// ascending sequence order. No Limit is set on the query because DynamoDB
// applies it before the ttl filter.
func (p *Purger) oldestKeys(ctx context.Context, aid string, limit int) ([]dynamo.RecordKey, error) {
	input := p.activeHistoricalQuery(aid)
	input.ScanIndexForward = aws.Bool(true)
	input.ProjectionExpression = aws.String("#pkey, #skey")
	input.ExpressionAttributeNames["#pkey"] = dynamo.AttrPKey
	input.ExpressionAttributeNames["#skey"] = dynamo.AttrSKey

	keys := make([]dynamo.RecordKey, 0, limit)
	for len(keys) < limit {
		output, err := p.client.Query(ctx, input)
		if err != nil {
			return nil, fmt.Errorf("failed to query snapshot keys: %w", err)
		}
		for _, item := range output.Items {
			var key dynamo.RecordKey
			missing, err := dynamo.UnmarshalRecord(item, &key, dynamo.AttrPKey, dynamo.AttrSKey)
			if err != nil {
				return nil, fmt.Errorf("%w: %w", eventstore.ErrCorruptedRecord, err)
			}
			if len(missing) > 0 {
				return nil, fmt.Errorf("%w: snapshot key of %s is missing %v", eventstore.ErrCorruptedRecord, aid, missing)
			}
			keys = append(keys, key)
			if len(keys) == limit {
				break
			}
		}
		if len(output.LastEvaluatedKey) == 0 {
			break
		}
		input.ExclusiveStartKey = output.LastEvaluatedKey
	}
	return keys, nil
}

func (p *Purger) markExpiring(ctx context.Context, keys []dynamo.RecordKey) error {
	expiry := strconv.FormatInt(p.now().Add(p.deleteTTL).Unix(), 10)

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrentExpiryUpdates)
	for _, key := range keys {
		g.Go(func() error {
			_, err := p.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
				TableName:                aws.String(p.tableName),
				Key:                      key.Item(),
				UpdateExpression:         aws.String("SET #ttl = :ttl"),
				ConditionExpression:      aws.String("attribute_exists(#pkey)"),
				ExpressionAttributeNames: map[string]string{"#ttl": dynamo.AttrTTL, "#pkey": dynamo.AttrPKey},
				ExpressionAttributeValues: map[string]types.AttributeValue{
					":ttl": &types.AttributeValueMemberN{Value: expiry},
				},
			})
			if err != nil {
				// Already removed by a concurrent purge.
				if dbclient.IsConditionalCheckFailed(err) {
					return nil
				}
				return fmt.Errorf("failed to mark snapshot %s for expiry: %w", key.SKey, err)
			}
			return nil
		})
	}
	return g.Wait()
}

func (p *Purger) deleteKeys(ctx context.Context, keys []dynamo.RecordKey) error {
	for start := 0; start < len(keys); start += dynamo.BatchWriteLimit {
		end := min(start+dynamo.BatchWriteLimit, len(keys))
		requests := make([]types.WriteRequest, 0, end-start)
		for _, key := range keys[start:end] {
			requests = append(requests, types.WriteRequest{
				DeleteRequest: &types.DeleteRequest{Key: key.Item()},
			})
		}
		output, err := p.client.BatchWriteItem(ctx, &dynamodb.BatchWriteItemInput{
			RequestItems: map[string][]types.WriteRequest{p.tableName: requests},
		})
		if err != nil {
			return fmt.Errorf("failed to delete snapshots: %w", err)
		}
		// Unprocessed deletes stay active and are picked up by the next purge.
		if n := len(output.UnprocessedItems[p.tableName]); n > 0 {
			p.logger.WarnContext(ctx, "snapshot deletes left unprocessed",
				slog.String("table", p.tableName),
				slog.Int("count", n),
			)
		}
	}
	return nil
}
