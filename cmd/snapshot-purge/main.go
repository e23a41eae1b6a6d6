// Package main implements the snapshot-purge SQS consumer Lambda handler.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/jarrod-lowe/jmap-service-libs/awsinit"
	"github.com/jarrod-lowe/jmap-service-libs/dbclient"
	"github.com/jarrod-lowe/jmap-service-libs/logging"
	"github.com/jarrod-lowe/jmap-service-libs/tracing"
	"go.opentelemetry.io/otel/attribute"

	"github.com/jarrod-lowe/dynamo-event-store/eventstore/dynamostore"
	"github.com/jarrod-lowe/dynamo-event-store/internal/purgequeue"
)

var logger = logging.New()

// SnapshotPurger abstracts the retention purge for dependency inversion.
type SnapshotPurger interface {
	PurgeExcessSnapshots(ctx context.Context, aid string) (int, error)
}

// handler implements the snapshot-purge SQS consumer logic.
type handler struct {
	purger SnapshotPurger
}

// newHandler creates a new handler.
func newHandler(purger SnapshotPurger) *handler {
	return &handler{purger: purger}
}

// handle processes an SQS event containing purge requests. Requests for the same
// aggregate within a batch are purged once.
func (h *handler) handle(ctx context.Context, event events.SQSEvent) (events.SQSEventResponse, error) {
	tracer := tracing.Tracer("snapshot-purge")
	ctx, span := tracer.Start(ctx, "SnapshotPurgeHandler")
	defer span.End()

	var failures []events.SQSBatchItemFailure
	done := make(map[string]error, len(event.Records))
	purged := 0

	for _, record := range event.Records {
		msg, err := purgequeue.ParseMessage(record.Body)
		if err != nil {
			logger.ErrorContext(ctx, "Failed to parse SQS message",
				slog.String("message_id", record.MessageId),
				slog.String("error", err.Error()),
			)
			failures = append(failures, events.SQSBatchItemFailure{
				ItemIdentifier: record.MessageId,
			})
			continue
		}

		err, seen := done[msg.AID]
		if !seen {
			var n int
			n, err = h.purger.PurgeExcessSnapshots(ctx, msg.AID)
			done[msg.AID] = err
			purged += n
		}
		if err != nil {
			if !seen {
				logger.ErrorContext(ctx, "Failed to purge snapshots",
					slog.String("aid", msg.AID),
					slog.String("error", err.Error()),
				)
			}
			failures = append(failures, events.SQSBatchItemFailure{
				ItemIdentifier: record.MessageId,
			})
		}
	}

	span.SetAttributes(
		attribute.Int("purge.records", len(event.Records)),
		attribute.Int("purge.snapshots", purged),
	)
	logger.InfoContext(ctx, "Snapshot purge batch completed",
		slog.Int("total", len(event.Records)),
		slog.Int("aggregates", len(done)),
		slog.Int("purged", purged),
		slog.Int("failures", len(failures)),
	)

	return events.SQSEventResponse{
		BatchItemFailures: failures,
	}, nil
}

// purgeConfig is the retention policy read from the environment.
type purgeConfig struct {
	tableName         string
	indexName         string
	keepSnapshotCount uint32
	deleteTTL         time.Duration
}

func loadConfig(getenv func(string) string) (purgeConfig, error) {
	cfg := purgeConfig{
		tableName: getenv("SNAPSHOT_TABLE_NAME"),
		indexName: getenv("SNAPSHOT_AID_INDEX_NAME"),
	}
	if cfg.tableName == "" || cfg.indexName == "" {
		return purgeConfig{}, fmt.Errorf("SNAPSHOT_TABLE_NAME and SNAPSHOT_AID_INDEX_NAME are required")
	}

	keep, err := strconv.ParseUint(getenv("KEEP_SNAPSHOT_COUNT"), 10, 32)
	if err != nil || keep == 0 {
		return purgeConfig{}, fmt.Errorf("KEEP_SNAPSHOT_COUNT must be a positive integer")
	}
	cfg.keepSnapshotCount = uint32(keep)

	if ttl := getenv("DELETE_TTL"); ttl != "" {
		d, err := time.ParseDuration(ttl)
		if err != nil || d < 0 {
			return purgeConfig{}, fmt.Errorf("DELETE_TTL must be a non-negative duration: %q", ttl)
		}
		cfg.deleteTTL = d
	}
	return cfg, nil
}

func main() {
	ctx := context.Background()

	result, err := awsinit.Init(ctx, awsinit.WithFunctionName("snapshot-purge"))
	if err != nil {
		logger.Error("FATAL: Failed to initialize", slog.String("error", err.Error()))
		panic(err)
	}

	pc, err := loadConfig(os.Getenv)
	if err != nil {
		logger.Error("FATAL: Invalid configuration", slog.String("error", err.Error()))
		panic(err)
	}

	// The concrete client also batches writes, which dbclient's interface leaves out.
	client, ok := dbclient.NewClient(result.Config).(dynamostore.PurgeClient)
	if !ok {
		logger.Error("FATAL: DynamoDB client does not support batch writes")
		panic("dynamodb client does not implement dynamostore.PurgeClient")
	}

	purger := dynamostore.NewPurger(client, pc.tableName, pc.indexName, pc.keepSnapshotCount, pc.deleteTTL).
		WithLogger(logger)

	h := newHandler(purger)
	result.Start(h.handle)
}
