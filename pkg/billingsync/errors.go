package billingsync

import "errors"

var (
	// ErrSecretNotConfigured reports a request rejected before verification
	// because the signing secret, signature header, or payload is missing.
	ErrSecretNotConfigured = errors.New("webhook secret not found")

	// ErrSignatureInvalid wraps a failed webhook signature verification.
	ErrSignatureInvalid = errors.New("invalid webhook signature")

	// ErrUnsupportedEvent is returned for event types outside the relevant set.
	ErrUnsupportedEvent = errors.New("unsupported event type")

	// ErrStoreWrite is returned when an upsert/delete/select against the
	// store fails. The store's own message is wrapped alongside it.
	ErrStoreWrite = errors.New("store write failed")

	// ErrUpstreamLookup is returned when a provider API call fails.
	ErrUpstreamLookup = errors.New("provider lookup failed")

	// ErrCustomerNotMapped is returned when no customer mapping row exists
	// for the provider customer id on a subscription event.
	ErrCustomerNotMapped = errors.New("customer lookup failed")

	// ErrSubscriptionNotFound is returned when the provider has no
	// subscription for the id carried by the event.
	ErrSubscriptionNotFound = errors.New("no subscription found")

	// ErrUpstreamCreate is returned when creating a provider customer fails.
	ErrUpstreamCreate = errors.New("provider customer creation failed")
)

// Store-level sentinels. Storage backends translate their driver errors into
// these so the synchronizer can classify failures with errors.Is.
var (
	// ErrNotFound is returned by store lookups that match no row.
	ErrNotFound = errors.New("record not found")

	// ErrForeignKeyViolation is returned when a write references a row that
	// does not exist yet (prices can arrive before their product).
	ErrForeignKeyViolation = errors.New("foreign key violation")
)
