package eventstore

import (
	"log/slog"
	"time"
)

// Config is the immutable configuration shared by store implementations.
// Every With method returns a modified copy; the receiver is never changed.
type Config[A Aggregate[A], E Event] struct {
	ShardCount uint64
	// KeepSnapshotCount enables historical snapshots and the retention purge
	// when greater than zero.
	KeepSnapshotCount uint32
	// DeleteTTL switches the purge from immediate deletion to marking records
	// with an expiry of now+DeleteTTL. Zero means delete immediately.
	DeleteTTL          time.Duration
	KeyResolver        KeyResolver
	EventSerializer    Serializer[E]
	SnapshotSerializer Serializer[A]
	Logger             *slog.Logger
}

// DefaultConfig returns a configuration with the default key resolver, JSON
// serializers and a discarding logger.
func DefaultConfig[A Aggregate[A], E Event](shardCount uint64) Config[A, E] {
	return Config[A, E]{
		ShardCount:         shardCount,
		KeyResolver:        DefaultKeyResolver{},
		EventSerializer:    NewJSONEventSerializer[E](),
		SnapshotSerializer: NewJSONSnapshotSerializer[A](),
		Logger:             slog.New(slog.DiscardHandler),
	}
}

func (c Config[A, E]) WithKeepSnapshotCount(n uint32) Config[A, E] {
	c.KeepSnapshotCount = n
	return c
}

func (c Config[A, E]) WithDeleteTTL(ttl time.Duration) Config[A, E] {
	c.DeleteTTL = ttl
	return c
}

func (c Config[A, E]) WithKeyResolver(r KeyResolver) Config[A, E] {
	c.KeyResolver = r
	return c
}

func (c Config[A, E]) WithEventSerializer(s Serializer[E]) Config[A, E] {
	c.EventSerializer = s
	return c
}

func (c Config[A, E]) WithSnapshotSerializer(s Serializer[A]) Config[A, E] {
	c.SnapshotSerializer = s
	return c
}

func (c Config[A, E]) WithLogger(l *slog.Logger) Config[A, E] {
	c.Logger = l
	return c
}

// RetentionEnabled reports whether historical snapshots are kept and purged.
func (c Config[A, E]) RetentionEnabled() bool {
	return c.KeepSnapshotCount > 0
}
