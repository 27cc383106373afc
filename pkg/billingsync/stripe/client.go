package stripe

import (
	"context"

	"github.com/stripe/stripe-go/v83"
)

// APIClient is the subset of the Stripe API the synchronizer calls. It is
// satisfied by the real client below and by test doubles.
type APIClient interface {
	// RetrieveSubscription fetches a subscription with its default payment
	// method expanded.
	RetrieveSubscription(ctx context.Context, id string) (*stripe.Subscription, error)

	// RetrieveCustomer fetches a customer by id.
	RetrieveCustomer(ctx context.Context, id string) (*stripe.Customer, error)

	// FindCustomerByEmail returns the first customer matching the email
	// filter, or nil when none exists.
	FindCustomerByEmail(ctx context.Context, email string) (*stripe.Customer, error)

	// CreateCustomer creates a customer carrying the internal user id in
	// its metadata.
	CreateCustomer(ctx context.Context, email, userID string) (*stripe.Customer, error)

	// UpdateCustomer applies the given fields to a customer.
	UpdateCustomer(ctx context.Context, id string, params *stripe.CustomerUpdateParams) (*stripe.Customer, error)
}

// apiClient wraps the v83 stripe.Client.
type apiClient struct {
	sc *stripe.Client
}

func newAPIClient(apiKey string) *apiClient {
	return &apiClient{sc: stripe.NewClient(apiKey)}
}

func (c *apiClient) RetrieveSubscription(ctx context.Context, id string) (*stripe.Subscription, error) {
	params := &stripe.SubscriptionRetrieveParams{}
	params.AddExpand("default_payment_method")
	return c.sc.V1Subscriptions.Retrieve(ctx, id, params)
}

func (c *apiClient) RetrieveCustomer(ctx context.Context, id string) (*stripe.Customer, error) {
	return c.sc.V1Customers.Retrieve(ctx, id, nil)
}

func (c *apiClient) FindCustomerByEmail(ctx context.Context, email string) (*stripe.Customer, error) {
	params := &stripe.CustomerListParams{Email: stripe.String(email)}
	params.Limit = stripe.Int64(1)
	for cust, err := range c.sc.V1Customers.List(ctx, params) {
		if err != nil {
			return nil, err
		}
		return cust, nil
	}
	return nil, nil
}

func (c *apiClient) CreateCustomer(ctx context.Context, email, userID string) (*stripe.Customer, error) {
	params := &stripe.CustomerCreateParams{Email: stripe.String(email)}
	params.AddMetadata("user_id", userID)
	return c.sc.V1Customers.Create(ctx, params)
}

func (c *apiClient) UpdateCustomer(ctx context.Context, id string, params *stripe.CustomerUpdateParams) (*stripe.Customer, error) {
	return c.sc.V1Customers.Update(ctx, id, params)
}
