package dynamostore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/jarrod-lowe/jmap-service-libs/dbclient"

	"github.com/jarrod-lowe/dynamo-event-store/eventstore"
	"github.com/jarrod-lowe/dynamo-event-store/internal/dynamo"
)

// latestSnapshotItem is the position of the latest-snapshot write in every
// transaction. Cancellation reasons come back in item order; a failed guard at
// any later position is a journal or historical record that already exists.
const latestSnapshotItem = 0

// PersistEvent appends a non-creation event and bumps the latest snapshot's
// version from expectedVersion to expectedVersion+1. The snapshot payload is left
// as is; readers fold the newer journal entries onto it.
func (s *Store[A, E]) PersistEvent(ctx context.Context, event E, expectedVersion uint64) error {
	aid := event.AggregateID()
	ctx, span := s.startSpan(ctx, "PersistEvent", aid)
	defer span.End()
	defer s.metrics.OperationDuration("persist_event", typeOf(aid)).ObserveDuration()

	if err := eventstore.ValidateAggregateID(aid); err != nil {
		return recordError(span, err)
	}
	if err := eventstore.ValidatePersistEvent(event); err != nil {
		return recordError(span, err)
	}

	log := s.cfg.Logger.With(slog.String("aid", aid.AsString()), slog.Uint64("seq_nr", event.SequenceNumber()))
	log.DebugContext(ctx, "persist event: start", slog.Uint64("expected_version", expectedVersion))

	items, err := s.buildUpdateItems(event, expectedVersion, nil)
	if err != nil {
		return recordError(span, err)
	}
	if err := s.transact(ctx, aid, items); err != nil {
		return recordError(span, err)
	}

	s.metrics.EventPersisted(typeOf(aid))
	s.afterWrite(ctx, aid.AsString())
	log.DebugContext(ctx, "persist event: finished")
	return nil
}

// PersistEventAndSnapshot appends the event and stores aggregate as the latest
// snapshot. A creation event creates both records at version 1; any other event
// updates the snapshot guarded by aggregate.Version().
//
// The guard is the version, not the sequence number: the sequence number moves
// with every event the aggregate applies, while the version moves once per
// persist, so only the version matches what the stored snapshot holds.
func (s *Store[A, E]) PersistEventAndSnapshot(ctx context.Context, event E, aggregate A) error {
	aid := event.AggregateID()
	ctx, span := s.startSpan(ctx, "PersistEventAndSnapshot", aid)
	defer span.End()
	defer s.metrics.OperationDuration("persist_event_and_snapshot", typeOf(aid)).ObserveDuration()

	if err := eventstore.ValidateAggregateID(aid); err != nil {
		return recordError(span, err)
	}
	if err := eventstore.ValidatePair(event, aggregate.ID()); err != nil {
		return recordError(span, err)
	}

	log := s.cfg.Logger.With(slog.String("aid", aid.AsString()), slog.Uint64("seq_nr", event.SequenceNumber()))
	log.DebugContext(ctx, "persist event and snapshot: start",
		slog.Bool("created", event.IsCreated()),
		slog.Uint64("version", aggregate.Version()),
	)

	var (
		items []types.TransactWriteItem
		err   error
	)
	if event.IsCreated() {
		items, err = s.buildCreateItems(event, aggregate)
	} else {
		items, err = s.buildUpdateItems(event, aggregate.Version(), &aggregate)
	}
	if err != nil {
		return recordError(span, err)
	}
	if err := s.transact(ctx, aid, items); err != nil {
		return recordError(span, err)
	}

	s.metrics.EventPersisted(typeOf(aid))
	s.afterWrite(ctx, aid.AsString())
	log.DebugContext(ctx, "persist event and snapshot: finished")
	return nil
}

// buildCreateItems returns the puts for a new aggregate: the latest snapshot at
// version 1, the first journal entry and, with retention enabled, a historical
// snapshot at the aggregate's sequence number.
func (s *Store[A, E]) buildCreateItems(event E, aggregate A) ([]types.TransactWriteItem, error) {
	putSnapshot, err := s.putSnapshot(event, dynamo.LatestSeqNr, 1, aggregate)
	if err != nil {
		return nil, err
	}
	putJournal, err := s.putJournal(event)
	if err != nil {
		return nil, err
	}
	items := []types.TransactWriteItem{
		{Put: putSnapshot},
		{Put: putJournal},
	}
	return s.appendHistoricalSnapshot(items, event, 1, aggregate)
}

// buildUpdateItems returns the version-guarded snapshot update and the journal put.
// When aggregate is nil only the version and timestamp change.
func (s *Store[A, E]) buildUpdateItems(event E, expectedVersion uint64, aggregate *A) ([]types.TransactWriteItem, error) {
	update, err := s.updateSnapshot(event, expectedVersion, aggregate)
	if err != nil {
		return nil, err
	}
	putJournal, err := s.putJournal(event)
	if err != nil {
		return nil, err
	}
	items := []types.TransactWriteItem{
		{Update: update},
		{Put: putJournal},
	}
	if aggregate == nil {
		return items, nil
	}
	return s.appendHistoricalSnapshot(items, event, expectedVersion+1, *aggregate)
}

func (s *Store[A, E]) appendHistoricalSnapshot(items []types.TransactWriteItem, event E, version uint64, aggregate A) ([]types.TransactWriteItem, error) {
	seqNr := aggregate.SequenceNumber()
	if !s.cfg.RetentionEnabled() || seqNr == dynamo.LatestSeqNr {
		return items, nil
	}
	put, err := s.putSnapshot(event, seqNr, version, aggregate)
	if err != nil {
		return nil, err
	}
	return append(items, types.TransactWriteItem{Put: put}), nil
}

func (s *Store[A, E]) keys(id eventstore.AggregateID, seqNr uint64) (dynamo.RecordKey, error) {
	pkey, err := s.cfg.KeyResolver.ResolvePartitionKey(id, s.cfg.ShardCount)
	if err != nil {
		return dynamo.RecordKey{}, err
	}
	skey, err := s.cfg.KeyResolver.ResolveSortKey(id, seqNr)
	if err != nil {
		return dynamo.RecordKey{}, err
	}
	return dynamo.RecordKey{PKey: pkey, SKey: skey}, nil
}

func (s *Store[A, E]) putJournal(event E) (*types.Put, error) {
	key, err := s.keys(event.AggregateID(), event.SequenceNumber())
	if err != nil {
		return nil, err
	}
	payload, err := s.cfg.EventSerializer.Serialize(event)
	if err != nil {
		return nil, err
	}
	item, err := dynamo.MarshalRecord(dynamo.JournalRecord{
		PKey:       key.PKey,
		SKey:       key.SKey,
		AID:        event.AggregateID().AsString(),
		SeqNr:      event.SequenceNumber(),
		Payload:    payload,
		OccurredAt: event.OccurredAt().UnixMilli(),
	})
	if err != nil {
		return nil, err
	}
	return &types.Put{
		TableName:           aws.String(s.tables.JournalTableName),
		Item:                item,
		ConditionExpression: aws.String(dynamo.ConditionNotExists),
	}, nil
}

func (s *Store[A, E]) putSnapshot(event E, seqNr, version uint64, aggregate A) (*types.Put, error) {
	key, err := s.keys(event.AggregateID(), seqNr)
	if err != nil {
		return nil, err
	}
	payload, err := s.cfg.SnapshotSerializer.Serialize(aggregate)
	if err != nil {
		return nil, err
	}
	item, err := dynamo.MarshalRecord(dynamo.SnapshotRecord{
		PKey:          key.PKey,
		SKey:          key.SKey,
		AID:           event.AggregateID().AsString(),
		SeqNr:         seqNr,
		Payload:       payload,
		Version:       version,
		TTL:           0,
		LastUpdatedAt: event.OccurredAt().UnixMilli(),
	})
	if err != nil {
		return nil, err
	}
	return &types.Put{
		TableName:           aws.String(s.tables.SnapshotTableName),
		Item:                item,
		ConditionExpression: aws.String(dynamo.ConditionNotExists),
	}, nil
}

// updateSnapshot builds the compare-and-set on the latest snapshot's version.
func (s *Store[A, E]) updateSnapshot(event E, expectedVersion uint64, aggregate *A) (*types.Update, error) {
	key, err := s.keys(event.AggregateID(), dynamo.LatestSeqNr)
	if err != nil {
		return nil, err
	}
	update := &types.Update{
		TableName:        aws.String(s.tables.SnapshotTableName),
		Key:              key.Item(),
		UpdateExpression: aws.String("SET #version=:after_version, #last_updated_at=:last_updated_at"),
		ExpressionAttributeNames: map[string]string{
			"#version":         dynamo.AttrVersion,
			"#last_updated_at": dynamo.AttrLastUpdatedAt,
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":before_version":  &types.AttributeValueMemberN{Value: strconv.FormatUint(expectedVersion, 10)},
			":after_version":   &types.AttributeValueMemberN{Value: strconv.FormatUint(expectedVersion+1, 10)},
			":last_updated_at": &types.AttributeValueMemberN{Value: strconv.FormatInt(event.OccurredAt().UnixMilli(), 10)},
		},
		ConditionExpression: aws.String("#version=:before_version"),
	}
	if aggregate != nil {
		payload, err := s.cfg.SnapshotSerializer.Serialize(*aggregate)
		if err != nil {
			return nil, err
		}
		// The latest slot keeps seq_nr 0 so the aid index lookup for the latest
		// snapshot still finds it; the state's own sequence number lives in the payload.
		update.UpdateExpression = aws.String("SET #payload=:payload, #seq_nr=:seq_nr, #version=:after_version, #last_updated_at=:last_updated_at")
		update.ExpressionAttributeNames["#payload"] = dynamo.AttrPayload
		update.ExpressionAttributeNames["#seq_nr"] = dynamo.AttrSeqNr
		update.ExpressionAttributeValues[":payload"] = &types.AttributeValueMemberB{Value: payload}
		update.ExpressionAttributeValues[":seq_nr"] = &types.AttributeValueMemberN{Value: strconv.Itoa(dynamo.LatestSeqNr)}
	}
	return update, nil
}

func (s *Store[A, E]) transact(ctx context.Context, id eventstore.AggregateID, items []types.TransactWriteItem) error {
	_, err := s.client.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{
		TransactItems: items,
	})
	if err == nil {
		return nil
	}
	err = translateTransactError(id.AsString(), err)
	if errors.Is(err, eventstore.ErrConcurrencyConflict) {
		s.metrics.ConcurrencyConflict(typeOf(id))
		s.cfg.Logger.InfoContext(ctx, "optimistic lock failed",
			slog.String("aid", id.AsString()),
			slog.String("error", err.Error()),
		)
	}
	return err
}

// translateTransactError maps condition failures and transaction conflicts to an
// OptimisticLockError. Anything else is returned wrapped, so errors.As still
// reaches the AWS error.
func translateTransactError(aid string, err error) error {
	reasons := dbclient.GetTransactionCancellationReasons(err)
	if reasons == nil {
		return fmt.Errorf("failed to write transaction: %w", err)
	}
	var guardFailed, journalFailed bool
	for _, reason := range reasons {
		switch reason.Code {
		case dynamo.CancellationConditionalCheckFailed:
			guardFailed = true
			if reason.Index != latestSnapshotItem {
				journalFailed = true
			}
		case dynamo.CancellationTransactionConflict:
			guardFailed = true
		}
	}
	if !guardFailed {
		return fmt.Errorf("failed to write transaction: %w", err)
	}
	return eventstore.NewOptimisticLockError(aid, journalFailed, err)
}

// afterWrite runs the retention purge. It is not part of the write transaction
// and its failures are only logged; the next write recomputes the excess.
func (s *Store[A, E]) afterWrite(ctx context.Context, aid string) {
	if !s.cfg.RetentionEnabled() {
		return
	}
	if s.scheduler != nil {
		if err := s.scheduler.SchedulePurge(ctx, aid); err != nil {
			s.cfg.Logger.ErrorContext(ctx, "Failed to schedule snapshot purge",
				slog.String("aid", aid),
				slog.String("error", err.Error()),
			)
		}
		return
	}
	if _, err := s.Purger().PurgeExcessSnapshots(ctx, aid); err != nil {
		s.cfg.Logger.ErrorContext(ctx, "Failed to purge excess snapshots",
			slog.String("aid", aid),
			slog.String("error", err.Error()),
		)
	}
}

func validationError(msg string) error {
	return fmt.Errorf("%w: %s", eventstore.ErrValidation, msg)
}
