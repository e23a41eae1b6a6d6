// Package dynamostore implements eventstore.EventStore on DynamoDB.
//
// Events go to a journal table and aggregate state to a snapshot table. Both tables
// are keyed by (pkey, skey) and carry a global secondary index on (aid, seq_nr).
// Every write is a single TransactWriteItems call guarded by conditions, so a
// journal entry and its snapshot change commit together or not at all.
package dynamostore

import (
	"context"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/jarrod-lowe/jmap-service-libs/tracing"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/jarrod-lowe/dynamo-event-store/eventstore"
)

const tracerName = "github.com/jarrod-lowe/dynamo-event-store/eventstore/dynamostore"

// DynamoDBClient defines the DynamoDB operations used by Store.
type DynamoDBClient interface {
	PurgeClient
	TransactWriteItems(ctx context.Context, input *dynamodb.TransactWriteItemsInput, opts ...func(*dynamodb.Options)) (*dynamodb.TransactWriteItemsOutput, error)
}

// PurgeScheduler defers snapshot retention to another process. When set on a
// Store, writes enqueue the aggregate id instead of purging inline.
type PurgeScheduler interface {
	SchedulePurge(ctx context.Context, aid string) error
}

// Tables names the journal and snapshot tables and their aid indexes.
type Tables struct {
	JournalTableName     string
	SnapshotTableName    string
	JournalAIDIndexName  string
	SnapshotAIDIndexName string
}

func (t Tables) validate() error {
	switch {
	case t.JournalTableName == "":
		return validationError("journal table name is empty")
	case t.SnapshotTableName == "":
		return validationError("snapshot table name is empty")
	case t.JournalAIDIndexName == "":
		return validationError("journal aid index name is empty")
	case t.SnapshotAIDIndexName == "":
		return validationError("snapshot aid index name is empty")
	}
	return nil
}

// Store is the DynamoDB EventStore. A Store is immutable: each With method
// returns a new Store and leaves the receiver untouched.
type Store[A eventstore.Aggregate[A], E eventstore.Event] struct {
	client            DynamoDBClient
	tables            Tables
	eventConverter    eventstore.Converter[E]
	snapshotConverter eventstore.Converter[A]
	cfg               eventstore.Config[A, E]
	metrics           eventstore.Metrics
	tracer            trace.Tracer
	scheduler         PurgeScheduler
	now               func() time.Time
}

// New creates a Store with the default configuration for shardCount shards.
func New[A eventstore.Aggregate[A], E eventstore.Event](
	client DynamoDBClient,
	tables Tables,
	shardCount uint64,
	eventConverter eventstore.Converter[E],
	snapshotConverter eventstore.Converter[A],
) (*Store[A, E], error) {
	if client == nil {
		return nil, validationError("client is nil")
	}
	if err := tables.validate(); err != nil {
		return nil, err
	}
	if shardCount == 0 {
		return nil, validationError("shard count must be at least 1")
	}
	if eventConverter == nil || snapshotConverter == nil {
		return nil, validationError("converters are required")
	}
	return &Store[A, E]{
		client:            client,
		tables:            tables,
		eventConverter:    eventConverter,
		snapshotConverter: snapshotConverter,
		cfg:               eventstore.DefaultConfig[A, E](shardCount),
		metrics:           eventstore.NopMetrics(),
		tracer:            tracing.Tracer(tracerName),
		now:               time.Now,
	}, nil
}

// Config returns a copy of the store configuration.
func (s *Store[A, E]) Config() eventstore.Config[A, E] {
	return s.cfg
}

func (s *Store[A, E]) WithKeepSnapshotCount(n uint32) *Store[A, E] {
	return s.withConfig(s.cfg.WithKeepSnapshotCount(n))
}

func (s *Store[A, E]) WithDeleteTTL(ttl time.Duration) *Store[A, E] {
	return s.withConfig(s.cfg.WithDeleteTTL(ttl))
}

func (s *Store[A, E]) WithKeyResolver(r eventstore.KeyResolver) *Store[A, E] {
	return s.withConfig(s.cfg.WithKeyResolver(r))
}

func (s *Store[A, E]) WithEventSerializer(es eventstore.Serializer[E]) *Store[A, E] {
	return s.withConfig(s.cfg.WithEventSerializer(es))
}

func (s *Store[A, E]) WithSnapshotSerializer(ss eventstore.Serializer[A]) *Store[A, E] {
	return s.withConfig(s.cfg.WithSnapshotSerializer(ss))
}

func (s *Store[A, E]) WithLogger(l *slog.Logger) *Store[A, E] {
	return s.withConfig(s.cfg.WithLogger(l))
}

func (s *Store[A, E]) WithMetrics(m eventstore.Metrics) *Store[A, E] {
	c := *s
	c.metrics = m
	return &c
}

func (s *Store[A, E]) WithTracer(t trace.Tracer) *Store[A, E] {
	c := *s
	c.tracer = t
	return &c
}

// WithPurgeScheduler moves the retention purge out of the write path.
func (s *Store[A, E]) WithPurgeScheduler(ps PurgeScheduler) *Store[A, E] {
	c := *s
	c.scheduler = ps
	return &c
}

// WithClock replaces the time source used for purge expiry.
func (s *Store[A, E]) WithClock(now func() time.Time) *Store[A, E] {
	c := *s
	c.now = now
	return &c
}

func (s *Store[A, E]) withConfig(cfg eventstore.Config[A, E]) *Store[A, E] {
	c := *s
	c.cfg = cfg
	return &c
}

// Purger returns the retention purger for this store's snapshot table.
func (s *Store[A, E]) Purger() *Purger {
	return NewPurger(s.client, s.tables.SnapshotTableName, s.tables.SnapshotAIDIndexName, s.cfg.KeepSnapshotCount, s.cfg.DeleteTTL).
		WithLogger(s.cfg.Logger).
		WithMetrics(s.metrics).
		WithTracer(s.tracer).
		WithClock(s.now)
}

func (s *Store[A, E]) startSpan(ctx context.Context, name string, id eventstore.AggregateID) (context.Context, trace.Span) {
	attrs := []attribute.KeyValue{}
	if id != nil {
		attrs = append(attrs,
			attribute.String("aggregate.type", id.TypeName()),
			attribute.String("aggregate.id", id.AsString()),
		)
	}
	return s.tracer.Start(ctx, name, trace.WithAttributes(attrs...))
}

func recordError(span trace.Span, err error) error {
	if err != nil {
		tracing.RecordError(span, err)
	}
	return err
}

func typeOf(id eventstore.AggregateID) string {
	if id == nil {
		return ""
	}
	return id.TypeName()
}
