package dynamostore

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/jarrod-lowe/dynamo-event-store/eventstore"
	"github.com/jarrod-lowe/dynamo-event-store/internal/dynamo"
)

// GetEventsByIDSinceSequenceNumber returns the journal events of id with a
// sequence number of at least seqNr, in ascending order. An unknown id yields an
// empty slice.
func (s *Store[A, E]) GetEventsByIDSinceSequenceNumber(ctx context.Context, id eventstore.AggregateID, seqNr uint64) ([]E, error) {
	ctx, span := s.startSpan(ctx, "GetEventsByIDSinceSequenceNumber", id)
	defer span.End()
	if err := eventstore.ValidateAggregateID(id); err != nil {
		return nil, recordError(span, err)
	}
	defer s.metrics.OperationDuration("get_events", typeOf(id)).ObserveDuration()

	log := s.cfg.Logger.With(slog.String("aid", id.AsString()))
	log.DebugContext(ctx, "get events: start", slog.Uint64("since_seq_nr", seqNr))

	input := &dynamodb.QueryInput{
		TableName:              aws.String(s.tables.JournalTableName),
		IndexName:              aws.String(s.tables.JournalAIDIndexName),
		KeyConditionExpression: aws.String("#aid = :aid AND #seq_nr >= :seq_nr"),
		ExpressionAttributeNames: map[string]string{
			"#aid":    dynamo.AttrAID,
			"#seq_nr": dynamo.AttrSeqNr,
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":aid":    &types.AttributeValueMemberS{Value: id.AsString()},
			":seq_nr": &types.AttributeValueMemberN{Value: strconv.FormatUint(seqNr, 10)},
		},
		ScanIndexForward: aws.Bool(true),
	}

	events := make([]E, 0)
	for {
		output, err := s.client.Query(ctx, input)
		if err != nil {
			return nil, recordError(span, fmt.Errorf("failed to query journal: %w", err))
		}
		for _, item := range output.Items {
			var rec dynamo.JournalRecord
			missing, err := dynamo.UnmarshalRecord(item, &rec, dynamo.AttrPayload)
			if err != nil {
				return nil, recordError(span, fmt.Errorf("%w: %w", eventstore.ErrCorruptedRecord, err))
			}
			if len(missing) > 0 || len(rec.Payload) == 0 {
				return nil, recordError(span, fmt.Errorf("%w: journal record %s/%d has no payload",
					eventstore.ErrCorruptedRecord, id.AsString(), rec.SeqNr))
			}
			event, err := s.cfg.EventSerializer.Deserialize(rec.Payload, s.eventConverter)
			if err != nil {
				return nil, recordError(span, err)
			}
			events = append(events, event)
		}
		if len(output.LastEvaluatedKey) == 0 {
			break
		}
		input.ExclusiveStartKey = output.LastEvaluatedKey
	}

	log.DebugContext(ctx, "get events: finished", slog.Int("count", len(events)))
	return events, nil
}

// GetLatestSnapshotByID returns the latest snapshot of id with its stored version
// applied. The boolean is false when the aggregate has never been created.
func (s *Store[A, E]) GetLatestSnapshotByID(ctx context.Context, id eventstore.AggregateID) (A, bool, error) {
	var zero A
	ctx, span := s.startSpan(ctx, "GetLatestSnapshotByID", id)
	defer span.End()
	if err := eventstore.ValidateAggregateID(id); err != nil {
		return zero, false, recordError(span, err)
	}
	defer s.metrics.OperationDuration("get_latest_snapshot", typeOf(id)).ObserveDuration()

	output, err := s.client.Query(ctx, &dynamodb.QueryInput{
		TableName:              aws.String(s.tables.SnapshotTableName),
		IndexName:              aws.String(s.tables.SnapshotAIDIndexName),
		KeyConditionExpression: aws.String("#aid = :aid AND #seq_nr = :seq_nr"),
		ExpressionAttributeNames: map[string]string{
			"#aid":    dynamo.AttrAID,
			"#seq_nr": dynamo.AttrSeqNr,
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":aid":    &types.AttributeValueMemberS{Value: id.AsString()},
			":seq_nr": &types.AttributeValueMemberN{Value: strconv.Itoa(dynamo.LatestSeqNr)},
		},
		Limit: aws.Int32(1),
	})
	if err != nil {
		return zero, false, recordError(span, fmt.Errorf("failed to query snapshot: %w", err))
	}
	if len(output.Items) == 0 {
		s.cfg.Logger.DebugContext(ctx, "get latest snapshot: not found", slog.String("aid", id.AsString()))
		return zero, false, nil
	}

	var rec dynamo.SnapshotRecord
	missing, err := dynamo.UnmarshalRecord(output.Items[0], &rec, dynamo.AttrPayload, dynamo.AttrVersion)
	if err != nil {
		return zero, false, recordError(span, fmt.Errorf("%w: %w", eventstore.ErrCorruptedRecord, err))
	}
	if len(missing) > 0 || len(rec.Payload) == 0 {
		return zero, false, recordError(span, fmt.Errorf("%w: snapshot of %s is missing %v",
			eventstore.ErrCorruptedRecord, id.AsString(), missing))
	}

	aggregate, err := s.cfg.SnapshotSerializer.Deserialize(rec.Payload, s.snapshotConverter)
	if err != nil {
		return zero, false, recordError(span, err)
	}
	s.cfg.Logger.DebugContext(ctx, "get latest snapshot: finished",
		slog.String("aid", id.AsString()),
		slog.Uint64("version", rec.Version),
	)
	return aggregate.WithVersion(rec.Version), true, nil
}
