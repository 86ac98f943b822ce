package tenant

import (
	"context"
	"errors"
	"log/slog"

	"github.com/redis/go-redis/v9"
)

// DefaultInvalidationChannel is the Redis pub/sub channel invalidations
// travel on.
const DefaultInvalidationChannel = "simple-tenant:invalidate"

// Invalidator is the invalidation surface handed to HTTP handlers and other
// callers. A bare Manager satisfies it for single-replica deployments; the
// Broadcaster satisfies it for multi-replica ones.
type Invalidator interface {
	Invalidate(ctx context.Context, cacheKey string)
	InvalidateAll(ctx context.Context)
}

const flushSentinel = "*"

// Broadcaster fans tenant invalidations out to every replica over Redis
// pub/sub. Invalidate drops the local entry first, then publishes the cache
// key; each replica's Run loop drops its own entry on receipt. Without this,
// a billing webhook landing on one replica would leave the others serving a
// stale cached subscription until TTL.
type Broadcaster struct {
	rdb     *redis.Client
	channel string
	mgr     *Manager
	logger  *slog.Logger
}

// NewBroadcaster creates a broadcaster and verifies the Redis connection.
func NewBroadcaster(ctx context.Context, rdb *redis.Client, channel string, mgr *Manager, logger *slog.Logger) (*Broadcaster, error) {
	if channel == "" {
		channel = DefaultInvalidationChannel
	}
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, err
	}
	return &Broadcaster{rdb: rdb, channel: channel, mgr: mgr, logger: logger}, nil
}

// Invalidate drops the key locally and announces it to the other replicas.
// Publish failures are logged, not returned: the local cache is already
// consistent and remote replicas self-heal at TTL.
func (b *Broadcaster) Invalidate(ctx context.Context, cacheKey string) {
	b.mgr.Invalidate(ctx, cacheKey)
	b.publish(ctx, cacheKey)
}

// InvalidateAll flushes the local cache and announces a full flush.
func (b *Broadcaster) InvalidateAll(ctx context.Context) {
	b.mgr.InvalidateAll(ctx)
	b.publish(ctx, flushSentinel)
}

func (b *Broadcaster) publish(ctx context.Context, payload string) {
	if err := b.rdb.Publish(ctx, b.channel, payload).Err(); err != nil {
		b.logger.Warn("failed to publish tenant invalidation",
			"cache_key", payload,
			"error", err,
		)
	}
}

// Run subscribes to the invalidation channel and applies received
// invalidations locally until ctx is cancelled. Run it in its own goroutine.
func (b *Broadcaster) Run(ctx context.Context) error {
	sub := b.rdb.Subscribe(ctx, b.channel)
	defer sub.Close()

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return errors.New("invalidation subscription closed")
			}
			if msg.Payload == flushSentinel {
				b.mgr.InvalidateAll(ctx)
				continue
			}
			b.mgr.Invalidate(ctx, msg.Payload)
		}
	}
}
