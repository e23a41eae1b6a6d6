package eventstore_test

import (
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/jarrod-lowe/dynamo-event-store/eventstore"
	"github.com/jarrod-lowe/dynamo-event-store/internal/useraccount"
)

type stubResolver struct{ eventstore.DefaultKeyResolver }

func TestConfig_WithMethodsReturnCopies(t *testing.T) {
	base := eventstore.DefaultConfig[useraccount.Account, useraccount.Event](32)
	assert.Equal(t, uint64(32), base.ShardCount)
	assert.Equal(t, uint32(0), base.KeepSnapshotCount)
	assert.False(t, base.RetentionEnabled())
	assert.NotNil(t, base.Logger)
	assert.NotNil(t, base.EventSerializer)
	assert.NotNil(t, base.SnapshotSerializer)

	logger := slog.New(slog.DiscardHandler)
	changed := base.
		WithKeepSnapshotCount(3).
		WithDeleteTTL(time.Hour).
		WithKeyResolver(stubResolver{}).
		WithLogger(logger)

	assert.Equal(t, uint32(3), changed.KeepSnapshotCount)
	assert.Equal(t, time.Hour, changed.DeleteTTL)
	assert.IsType(t, stubResolver{}, changed.KeyResolver)
	assert.Same(t, logger, changed.Logger)
	assert.True(t, changed.RetentionEnabled())

	assert.Equal(t, uint32(0), base.KeepSnapshotCount)
	assert.Equal(t, time.Duration(0), base.DeleteTTL)
	assert.IsType(t, eventstore.DefaultKeyResolver{}, base.KeyResolver)
}
