package billingsync

import (
	"time"

	"github.com/rs/zerolog"
)

// Config defines the standard configuration all providers accept.
type Config struct {
	// Store is the relational store billing state is mirrored into. Required.
	Store Store

	// WebhookSecret is the shared secret used to verify inbound webhook
	// signatures. Requests arriving while it is empty are rejected.
	WebhookSecret string

	// APIKey is used for outbound API calls to the billing provider.
	APIKey string

	// Logger receives structured logs for every sync operation. If nil,
	// logging is disabled.
	Logger *zerolog.Logger

	// Metrics is an optional collector for webhook and sync operations.
	// If nil, metrics are silently ignored (no-op).
	// Use metrics/prometheus.NewMetrics for Prometheus metrics.
	Metrics Metrics

	// Deduper optionally short-circuits redelivered events by event id.
	// If nil, every delivery is dispatched; sync operations are idempotent
	// either way.
	Deduper Deduper

	// RetryDelay is the fixed wait before subscription lookups and between
	// price-upsert retries. Defaults to 2s when zero.
	RetryDelay time.Duration

	// MaxRetryAttempts bounds the additional attempts after the first try
	// of a retryable operation. Defaults to 3 when zero.
	MaxRetryAttempts int
}
