package stripe

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/mihaimyh/stripesync/pkg/billingsync"
)

// CreateOrRetrieveCustomer resolves the Stripe customer id for an internal
// user, creating the upstream customer and the local mapping row as needed.
// It is used outside the webhook path (account signup) but shares the store.
//
// Stripe is the source of truth: when the local mapping disagrees with the
// resolved upstream id, the mapping is rewritten to match. Concurrent calls
// for the same user are collapsed so a signup race cannot create duplicate
// Stripe customers.
func (p *Provider) CreateOrRetrieveCustomer(ctx context.Context, email, userID string) (string, error) {
	v, err, _ := p.createGroup.Do(userID, func() (interface{}, error) {
		return p.createOrRetrieveCustomer(ctx, email, userID)
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

func (p *Provider) createOrRetrieveCustomer(ctx context.Context, email, userID string) (string, error) {
	mapping, err := p.store.GetCustomerByUserID(ctx, userID)
	if err != nil && !errors.Is(err, billingsync.ErrNotFound) {
		return "", fmt.Errorf("%w: %v", billingsync.ErrStoreWrite, err)
	}

	stripeID, err := p.resolveUpstreamCustomer(ctx, mapping, email)
	if err != nil {
		return "", err
	}

	if stripeID == "" {
		startTime := time.Now()
		cust, err := p.client.CreateCustomer(ctx, email, userID)
		if err != nil {
			p.metrics.RecordAPICall(providerName, "/customers/create", "error")
			return "", fmt.Errorf("%w: %v", billingsync.ErrUpstreamCreate, err)
		}
		p.metrics.RecordAPICall(providerName, "/customers/create", "success")
		p.metrics.RecordAPICallDuration(providerName, "/customers/create", time.Since(startTime))
		p.logger.Info().Str("user_id", userID).Str("stripe_customer_id", cust.ID).
			Msg("created stripe customer")
		stripeID = cust.ID
	}

	switch {
	case mapping == nil:
		row := &billingsync.Customer{
			UserID:           userID,
			StripeCustomerID: stripeID,
			Created:          time.Now().UTC(),
		}
		if err := p.store.UpsertCustomer(ctx, row); err != nil {
			return "", fmt.Errorf("%w: %v", billingsync.ErrStoreWrite, err)
		}
	case mapping.StripeCustomerID != stripeID:
		p.logger.Warn().Str("user_id", userID).
			Str("mapped_id", mapping.StripeCustomerID).Str("resolved_id", stripeID).
			Msg("customer mapping disagrees with stripe, reconciling")
		mapping.StripeCustomerID = stripeID
		if err := p.store.UpsertCustomer(ctx, mapping); err != nil {
			return "", fmt.Errorf("%w: %v", billingsync.ErrStoreWrite, err)
		}
	}

	return stripeID, nil
}

// resolveUpstreamCustomer finds the Stripe-side customer id: verify the
// cached mapping if one exists, otherwise search by email. An empty result
// means the caller should create the customer.
func (p *Provider) resolveUpstreamCustomer(ctx context.Context, mapping *billingsync.Customer, email string) (string, error) {
	if mapping != nil && mapping.StripeCustomerID != "" {
		cust, err := p.client.RetrieveCustomer(ctx, mapping.StripeCustomerID)
		if err != nil {
			// Keep serving the cached value, but not silently: the mapping
			// may point at a deleted customer and wants operator attention.
			p.metrics.RecordAPICall(providerName, "/customers/retrieve", "error")
			p.logger.Warn().Err(err).Str("stripe_customer_id", mapping.StripeCustomerID).
				Msg("cached stripe customer id failed verification, using cached value")
			return mapping.StripeCustomerID, nil
		}
		p.metrics.RecordAPICall(providerName, "/customers/retrieve", "success")
		return cust.ID, nil
	}

	cust, err := p.client.FindCustomerByEmail(ctx, email)
	if err != nil {
		p.metrics.RecordAPICall(providerName, "/customers/list", "error")
		return "", fmt.Errorf("%w: %v", billingsync.ErrUpstreamLookup, err)
	}
	p.metrics.RecordAPICall(providerName, "/customers/list", "success")
	if cust == nil {
		return "", nil
	}
	return cust.ID, nil
}
