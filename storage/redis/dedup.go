// Package redis provides a Redis-backed implementation of the
// billingsync.Deduper interface. Stripe redelivers webhooks until it sees a
// 2xx, so the same event id can arrive more than once; the already-seen keys
// are shared across replicas.
package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const defaultKeyPrefix = "stripesync:events:"

// defaultTTL comfortably covers Stripe's redelivery window.
const defaultTTL = 72 * time.Hour

// Deduper implements billingsync.Deduper using Redis.
type Deduper struct {
	client redis.UniversalClient
	prefix string
	ttl    time.Duration
}

// Config holds deduper configuration.
type Config struct {
	// KeyPrefix namespaces the event keys. Defaults to "stripesync:events:".
	KeyPrefix string

	// TTL is how long an event id is remembered. Defaults to 72h.
	TTL time.Duration
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{KeyPrefix: defaultKeyPrefix, TTL: defaultTTL}
}

// New creates a Redis deduper from an existing client.
func New(client redis.UniversalClient, config Config) (*Deduper, error) {
	if client == nil {
		return nil, fmt.Errorf("redis client is required")
	}
	prefix := config.KeyPrefix
	if prefix == "" {
		prefix = defaultKeyPrefix
	}
	ttl := config.TTL
	if ttl <= 0 {
		ttl = defaultTTL
	}
	return &Deduper{client: client, prefix: prefix, ttl: ttl}, nil
}

// Seen reports whether the event id was already marked. It never marks:
// marking is deferred to MarkSeen so a delivery that fails dispatch is not
// remembered and the provider's redelivery still gets processed.
func (d *Deduper) Seen(ctx context.Context, eventID string) (bool, error) {
	n, err := d.client.Exists(ctx, d.prefix+eventID).Result()
	if err != nil {
		return false, fmt.Errorf("dedup check failed: %w", err)
	}
	return n > 0, nil
}

// MarkSeen records the event id with the configured TTL, after the event was
// dispatched successfully.
func (d *Deduper) MarkSeen(ctx context.Context, eventID string) error {
	if err := d.client.Set(ctx, d.prefix+eventID, 1, d.ttl).Err(); err != nil {
		return fmt.Errorf("dedup mark failed: %w", err)
	}
	return nil
}
