package stripe

import (
	"bytes"
	"context"
	"encoding/hex"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stripe/stripe-go/v83"
	"github.com/stripe/stripe-go/v83/webhook"

	"github.com/mihaimyh/stripesync/pkg/billingsync"
	"github.com/mihaimyh/stripesync/storage/memory"
)

const (
	testWebhookSecret = "whsec_test_secret"
	testUserID        = "user-123"
	testCustomerID    = "cus_test_123"
	testSubID         = "sub_test_123"
	testPriceID       = "price_pro_monthly"
	testProductID     = "prod_test_123"
	testEmail         = "jamie@example.com"

	// 2023-11-14T22:13:20.000Z
	testEpoch = int64(1700000000)
)

// mockClient is a test double for the Stripe API. Unset functions fail the
// operation so tests notice unexpected calls.
type mockClient struct {
	mu sync.Mutex

	retrieveSubscriptionFn func(ctx context.Context, id string) (*stripe.Subscription, error)
	retrieveCustomerFn     func(ctx context.Context, id string) (*stripe.Customer, error)
	findCustomerByEmailFn  func(ctx context.Context, email string) (*stripe.Customer, error)
	createCustomerFn       func(ctx context.Context, email, userID string) (*stripe.Customer, error)
	updateCustomerFn       func(ctx context.Context, id string, params *stripe.CustomerUpdateParams) (*stripe.Customer, error)

	retrieveSubscriptionCalls int
	createCustomerCalls       int
	updateCustomerCalls       int
}

func (m *mockClient) RetrieveSubscription(ctx context.Context, id string) (*stripe.Subscription, error) {
	m.mu.Lock()
	m.retrieveSubscriptionCalls++
	fn := m.retrieveSubscriptionFn
	m.mu.Unlock()
	if fn == nil {
		return nil, fmt.Errorf("unexpected RetrieveSubscription(%s)", id)
	}
	return fn(ctx, id)
}

func (m *mockClient) RetrieveCustomer(ctx context.Context, id string) (*stripe.Customer, error) {
	if m.retrieveCustomerFn == nil {
		return nil, fmt.Errorf("unexpected RetrieveCustomer(%s)", id)
	}
	return m.retrieveCustomerFn(ctx, id)
}

func (m *mockClient) FindCustomerByEmail(ctx context.Context, email string) (*stripe.Customer, error) {
	if m.findCustomerByEmailFn == nil {
		return nil, fmt.Errorf("unexpected FindCustomerByEmail(%s)", email)
	}
	return m.findCustomerByEmailFn(ctx, email)
}

func (m *mockClient) CreateCustomer(ctx context.Context, email, userID string) (*stripe.Customer, error) {
	m.mu.Lock()
	m.createCustomerCalls++
	fn := m.createCustomerFn
	m.mu.Unlock()
	if fn == nil {
		return nil, fmt.Errorf("unexpected CreateCustomer(%s, %s)", email, userID)
	}
	return fn(ctx, email, userID)
}

func (m *mockClient) UpdateCustomer(ctx context.Context, id string, params *stripe.CustomerUpdateParams) (*stripe.Customer, error) {
	m.mu.Lock()
	m.updateCustomerCalls++
	fn := m.updateCustomerFn
	m.mu.Unlock()
	if fn == nil {
		return nil, fmt.Errorf("unexpected UpdateCustomer(%s)", id)
	}
	return fn(ctx, id, params)
}

// fakeClock records requested sleeps instead of waiting, so retry tests run
// without wall-clock delays.
type fakeClock struct {
	mu      sync.Mutex
	sleeps  []time.Duration
	onSleep func(n int) // called with the 1-based sleep count
}

func (c *fakeClock) Sleep(_ context.Context, d time.Duration) error {
	c.mu.Lock()
	c.sleeps = append(c.sleeps, d)
	n := len(c.sleeps)
	hook := c.onSleep
	c.mu.Unlock()
	if hook != nil {
		hook(n)
	}
	return nil
}

func (c *fakeClock) recorded() []time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]time.Duration(nil), c.sleeps...)
}

func newTestProvider(t *testing.T, store billingsync.Store, client APIClient) (*Provider, *fakeClock) {
	t.Helper()
	clock := &fakeClock{}
	provider, err := NewProvider(Config{
		Config:              billingsync.Config{Store: store},
		StripeWebhookSecret: testWebhookSecret,
		Client:              client,
		Clock:               clock,
	})
	if err != nil {
		t.Fatalf("Failed to create provider: %v", err)
	}
	return provider, clock
}

// signedRequest builds a webhook request whose payload passes signature
// verification against testWebhookSecret.
func signedRequest(t *testing.T, payload string) *http.Request {
	t.Helper()
	now := time.Now()
	sig := webhook.ComputeSignature(now, []byte(payload), testWebhookSecret)
	req := httptest.NewRequest(http.MethodPost, "/webhook", bytes.NewReader([]byte(payload)))
	req.Header.Set("Stripe-Signature", fmt.Sprintf("t=%d,v1=%s", now.Unix(), hex.EncodeToString(sig)))
	return req
}

func eventPayload(eventType, object string) string {
	return fmt.Sprintf(`{"id":"evt_test_1","object":"event","type":%q,"data":{"object":%s}}`, eventType, object)
}

// testSubscription builds a full subscription as the Stripe API would return
// it, with the current period on the first item.
func testSubscription() *stripe.Subscription {
	return &stripe.Subscription{
		ID:       testSubID,
		Status:   stripe.SubscriptionStatusActive,
		Customer: &stripe.Customer{ID: testCustomerID},
		Metadata: map[string]string{"plan": "pro"},
		Created:  testEpoch,
		Items: &stripe.SubscriptionItemList{
			Data: []*stripe.SubscriptionItem{
				{
					Price:              &stripe.Price{ID: testPriceID},
					Quantity:           1,
					CurrentPeriodStart: testEpoch,
					CurrentPeriodEnd:   testEpoch + 30*24*3600,
				},
			},
		},
	}
}

// mappedStore returns a memory store with the customer mapping row in place.
func mappedStore(t *testing.T) *memory.Store {
	t.Helper()
	store := memory.New()
	err := store.UpsertCustomer(context.Background(), &billingsync.Customer{
		UserID:           testUserID,
		StripeCustomerID: testCustomerID,
		Created:          time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("Failed to seed customer mapping: %v", err)
	}
	return store
}
