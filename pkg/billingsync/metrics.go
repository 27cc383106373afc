package billingsync

import "time"

// Metrics defines the interface for tracking synchronizer operations.
// All methods are optional - implementations should be safe under concurrent
// use, and providers fall back to NoopMetrics when none is configured.
type Metrics interface {
	// RecordWebhookEvent records a webhook event received from the provider.
	// status: "success", "error", or "skipped" (duplicate delivery).
	RecordWebhookEvent(provider, eventType, status string)

	// RecordWebhookProcessingDuration records how long a webhook took end to end.
	RecordWebhookProcessingDuration(provider, eventType string, duration time.Duration)

	// RecordWebhookError records a webhook failure before dispatch.
	// errorType: "auth_failed", "invalid_payload", "unsupported_event", ...
	RecordWebhookError(provider, errorType string)

	// RecordSyncOperation records one record-sync operation against the store.
	// operation: "upsert_product", "upsert_price", "upsert_subscription", ...
	RecordSyncOperation(provider, operation, status string)

	// RecordSyncRetry records a bounded retry of a sync operation.
	RecordSyncRetry(provider, operation string)

	// RecordAPICall records an outbound call to the billing provider.
	RecordAPICall(provider, endpoint, status string)

	// RecordAPICallDuration records how long an outbound call took.
	RecordAPICallDuration(provider, endpoint string, duration time.Duration)
}

// NoopMetrics is a no-op implementation of the Metrics interface.
type NoopMetrics struct{}

func (n *NoopMetrics) RecordWebhookEvent(_, _, _ string)                            {}
func (n *NoopMetrics) RecordWebhookProcessingDuration(_, _ string, _ time.Duration) {}
func (n *NoopMetrics) RecordWebhookError(_, _ string)                               {}
func (n *NoopMetrics) RecordSyncOperation(_, _, _ string)                           {}
func (n *NoopMetrics) RecordSyncRetry(_, _ string)                                  {}
func (n *NoopMetrics) RecordAPICall(_, _, _ string)                                 {}
func (n *NoopMetrics) RecordAPICallDuration(_, _ string, _ time.Duration)           {}
