package billingsync

import "context"

// Store is the relational store the synchronizer writes billing state into.
// Every write is an idempotent upsert or delete keyed by primary id; applying
// the same event twice must leave the store in the same final state.
//
// Implementations report missing rows as ErrNotFound and writes that
// reference a not-yet-synced row as ErrForeignKeyViolation (both via
// errors.Is), wrapping the backend's own message for operators.
type Store interface {
	UpsertProduct(ctx context.Context, product *Product) error
	DeleteProduct(ctx context.Context, id string) error

	UpsertPrice(ctx context.Context, price *Price) error
	DeletePrice(ctx context.Context, id string) error

	// GetCustomerByUserID resolves the mapping row for an internal user id.
	GetCustomerByUserID(ctx context.Context, userID string) (*Customer, error)
	// GetCustomerByStripeID resolves the mapping row for a provider customer id.
	GetCustomerByStripeID(ctx context.Context, stripeCustomerID string) (*Customer, error)
	UpsertCustomer(ctx context.Context, customer *Customer) error

	UpsertSubscription(ctx context.Context, sub *Subscription) error

	// UpdateUserBillingDetails copies checkout billing details onto the
	// local user record.
	UpdateUserBillingDetails(ctx context.Context, userID string, details *BillingDetails) error
}

// Deduper short-circuits redelivered webhook events by id. Seen is a pure
// check; MarkSeen records the id only after the event was dispatched
// successfully, so a failed delivery stays eligible for the provider's
// redelivery. Callers treat deduper failures as "not seen" - the sync
// operations are idempotent, so processing a duplicate is safe while
// skipping a new event is not.
type Deduper interface {
	Seen(ctx context.Context, eventID string) (bool, error)
	MarkSeen(ctx context.Context, eventID string) error
}
