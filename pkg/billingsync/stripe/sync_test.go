package stripe

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stripe/stripe-go/v83"

	"github.com/mihaimyh/stripesync/pkg/billingsync"
	"github.com/mihaimyh/stripesync/storage/memory"
)

func testPrice() *stripe.Price {
	return &stripe.Price{
		ID:            testPriceID,
		Product:       &stripe.Product{ID: testProductID},
		Active:        true,
		Currency:      stripe.CurrencyUSD,
		Type:          stripe.PriceTypeRecurring,
		UnitAmount:    1500,
		BillingScheme: stripe.PriceBillingSchemePerUnit,
		Recurring: &stripe.PriceRecurring{
			Interval:        stripe.PriceRecurringIntervalMonth,
			IntervalCount:   1,
			TrialPeriodDays: 14,
		},
	}
}

func TestUpsertPrice_FieldMapping(t *testing.T) {
	store := memory.New()
	provider, _ := newTestProvider(t, store, &mockClient{})
	ctx := context.Background()

	if err := store.UpsertProduct(ctx, &billingsync.Product{ID: testProductID, Name: "Pro"}); err != nil {
		t.Fatalf("Failed to seed product: %v", err)
	}
	if err := provider.UpsertPrice(ctx, testPrice()); err != nil {
		t.Fatalf("UpsertPrice failed: %v", err)
	}

	row, err := store.GetPrice(ctx, testPriceID)
	if err != nil {
		t.Fatalf("Price not synced: %v", err)
	}
	if row.ProductID != testProductID {
		t.Errorf("ProductID = %q, want %q", row.ProductID, testProductID)
	}
	if row.Type != billingsync.PricingTypeRecurring {
		t.Errorf("Type = %q, want %q", row.Type, billingsync.PricingTypeRecurring)
	}
	if row.UnitAmount == nil || *row.UnitAmount != 1500 {
		t.Errorf("UnitAmount = %v, want 1500", row.UnitAmount)
	}
	if row.Interval == nil || *row.Interval != billingsync.PricingPlanIntervalMonth {
		t.Errorf("Interval = %v, want month", row.Interval)
	}
	if row.TrialPeriodDays == nil || *row.TrialPeriodDays != 14 {
		t.Errorf("TrialPeriodDays = %v, want 14", row.TrialPeriodDays)
	}
}

func TestUpsertPrice_RetriesOnMissingProduct(t *testing.T) {
	store := memory.New() // product never arrives
	provider, clock := newTestProvider(t, store, &mockClient{})

	err := provider.UpsertPrice(context.Background(), testPrice())
	if !errors.Is(err, billingsync.ErrStoreWrite) {
		t.Fatalf("Expected ErrStoreWrite, got %v", err)
	}

	// Initial try plus maxAttempts retries, with the fixed delay before
	// every retry.
	sleeps := clock.recorded()
	if len(sleeps) != defaultMaxRetryAttempts {
		t.Fatalf("Expected %d delays, got %d", defaultMaxRetryAttempts, len(sleeps))
	}
	for i, d := range sleeps {
		if d != defaultRetryDelay {
			t.Errorf("Delay %d = %v, want %v", i, d, defaultRetryDelay)
		}
	}
}

func TestUpsertPrice_SucceedsWhenProductAppearsMidRetry(t *testing.T) {
	store := memory.New()
	clock := &fakeClock{}
	clock.onSleep = func(n int) {
		if n == 2 {
			err := store.UpsertProduct(context.Background(), &billingsync.Product{ID: testProductID, Name: "Pro"})
			if err != nil {
				t.Errorf("Failed to insert product mid-retry: %v", err)
			}
		}
	}

	provider, err := NewProvider(Config{
		Config:              billingsync.Config{Store: store},
		StripeWebhookSecret: testWebhookSecret,
		Client:              &mockClient{},
		Clock:               clock,
	})
	if err != nil {
		t.Fatalf("Failed to create provider: %v", err)
	}

	if err := provider.UpsertPrice(context.Background(), testPrice()); err != nil {
		t.Fatalf("UpsertPrice should succeed once the product exists: %v", err)
	}
	if len(clock.recorded()) != 2 {
		t.Errorf("Expected 2 delays before success, got %d", len(clock.recorded()))
	}
	if _, err := store.GetPrice(context.Background(), testPriceID); err != nil {
		t.Errorf("Price not synced: %v", err)
	}
}

func TestUpsertPrice_NonFKFailureIsImmediate(t *testing.T) {
	store := &failingStore{Store: memory.New(), err: errors.New("disk full")}
	provider, clock := newTestProvider(t, store, &mockClient{})

	err := provider.UpsertPrice(context.Background(), testPrice())
	if !errors.Is(err, billingsync.ErrStoreWrite) {
		t.Fatalf("Expected ErrStoreWrite, got %v", err)
	}
	if len(clock.recorded()) != 0 {
		t.Errorf("Non-FK failures must not be retried, saw %d delays", len(clock.recorded()))
	}
}

func TestDeletePrice(t *testing.T) {
	store := memory.New()
	provider, _ := newTestProvider(t, store, &mockClient{})
	ctx := context.Background()

	if err := store.UpsertProduct(ctx, &billingsync.Product{ID: testProductID}); err != nil {
		t.Fatalf("Failed to seed product: %v", err)
	}
	if err := provider.UpsertPrice(ctx, testPrice()); err != nil {
		t.Fatalf("UpsertPrice failed: %v", err)
	}
	if err := provider.DeletePrice(ctx, testPriceID); err != nil {
		t.Fatalf("DeletePrice failed: %v", err)
	}
	if _, err := store.GetPrice(ctx, testPriceID); !errors.Is(err, billingsync.ErrNotFound) {
		t.Errorf("Expected price row to be gone, got %v", err)
	}
}

// failingStore wraps the memory store and fails every price upsert with a
// non-FK error.
type failingStore struct {
	*memory.Store
	err error
}

func (s *failingStore) UpsertPrice(context.Context, *billingsync.Price) error {
	return s.err
}

var _ billingsync.Store = (*failingStore)(nil)

// Guard against the retry delay drifting from the documented default.
func TestDefaultRetryConfig(t *testing.T) {
	if defaultRetryDelay != 2*time.Second {
		t.Errorf("defaultRetryDelay = %v, want 2s", defaultRetryDelay)
	}
	if defaultMaxRetryAttempts != 3 {
		t.Errorf("defaultMaxRetryAttempts = %d, want 3", defaultMaxRetryAttempts)
	}
}
