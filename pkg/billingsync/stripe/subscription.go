package stripe

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/stripe/stripe-go/v83"

	"github.com/mihaimyh/stripesync/pkg/billingsync"
)

// ManageSubscriptionStatusChange upserts the full subscription row for a
// creation, update, or deletion event. Deletions arrive as a status change
// and are written the same way, never as a row delete.
//
// isNewCheckout marks the first event after a completed checkout: once the
// subscription upsert has succeeded, the billing details from the default
// payment method are copied onto the Stripe customer and the local user
// record. That copy is comparatively expensive and runs strictly after the
// primary sync; its failure is logged but never propagated, so it cannot
// fail the webhook response or roll back the upsert.
func (p *Provider) ManageSubscriptionStatusChange(ctx context.Context, subscriptionID, customerID string, isNewCheckout bool) error {
	mapping, err := p.store.GetCustomerByStripeID(ctx, customerID)
	if err != nil {
		p.metrics.RecordSyncOperation(providerName, "upsert_subscription", "error")
		if errors.Is(err, billingsync.ErrNotFound) {
			return fmt.Errorf("%w: no user for customer %s", billingsync.ErrCustomerNotMapped, customerID)
		}
		return fmt.Errorf("%w: %v", billingsync.ErrStoreWrite, err)
	}

	sub := p.findSubscription(ctx, subscriptionID)
	if sub == nil {
		p.metrics.RecordSyncOperation(providerName, "upsert_subscription", "error")
		return billingsync.ErrSubscriptionNotFound
	}

	row, err := subscriptionRow(sub, mapping.UserID)
	if err != nil {
		p.metrics.RecordSyncOperation(providerName, "upsert_subscription", "error")
		return err
	}
	if err := p.store.UpsertSubscription(ctx, row); err != nil {
		p.metrics.RecordSyncOperation(providerName, "upsert_subscription", "error")
		return fmt.Errorf("%w: %v", billingsync.ErrStoreWrite, err)
	}

	p.logger.Info().Str("subscription_id", row.ID).Str("user_id", row.UserID).
		Str("status", row.Status).Msg("subscription upserted")
	p.metrics.RecordSyncOperation(providerName, "upsert_subscription", "success")

	if isNewCheckout && sub.DefaultPaymentMethod != nil {
		if err := p.copyBillingDetails(ctx, mapping.UserID, customerID, sub.DefaultPaymentMethod); err != nil {
			p.logger.Warn().Err(err).Str("user_id", mapping.UserID).
				Msg("failed to copy billing details after checkout")
			p.metrics.RecordSyncOperation(providerName, "copy_billing_details", "error")
		} else {
			p.metrics.RecordSyncOperation(providerName, "copy_billing_details", "success")
		}
	}
	return nil
}

// findSubscription fetches the subscription from Stripe after a fixed delay.
// Webhook delivery commonly races Stripe's own propagation, so an
// invalid-request failure (typically "no such subscription" yet) is retried,
// each attempt re-applying the delay. Card-class errors and anything
// unclassified are terminal. Every failure path resolves to nothing found;
// the caller decides how fatal that is.
func (p *Provider) findSubscription(ctx context.Context, id string) *stripe.Subscription {
	for attempt := 0; attempt <= p.maxAttempts; attempt++ {
		if err := p.clock.Sleep(ctx, p.retryDelay); err != nil {
			return nil
		}

		startTime := time.Now()
		sub, err := p.client.RetrieveSubscription(ctx, id)
		p.metrics.RecordAPICallDuration(providerName, "/subscriptions/retrieve", time.Since(startTime))
		if err == nil {
			p.metrics.RecordAPICall(providerName, "/subscriptions/retrieve", "success")
			return sub
		}
		p.metrics.RecordAPICall(providerName, "/subscriptions/retrieve", "error")

		var stripeErr *stripe.Error
		if !errors.As(err, &stripeErr) {
			p.logger.Error().Err(err).Str("subscription_id", id).Msg("subscription lookup failed")
			return nil
		}
		switch stripeErr.Type {
		case stripe.ErrorTypeCard:
			p.logger.Error().Err(err).Str("subscription_id", id).
				Msg("payment instrument error on subscription lookup")
			return nil
		case stripe.ErrorTypeInvalidRequest:
			p.logger.Warn().Err(err).Str("subscription_id", id).
				Int("attempt", attempt+1).Int("max_attempts", p.maxAttempts).
				Msg("subscription not visible yet, retrying")
			p.metrics.RecordSyncRetry(providerName, "find_subscription")
		default:
			p.logger.Error().Err(err).Str("subscription_id", id).Msg("subscription lookup failed")
			return nil
		}
	}

	p.logger.Error().Str("subscription_id", id).Msg("subscription lookup exhausted retries")
	return nil
}

// copyBillingDetails mirrors the name/phone/address of the payment method
// onto the Stripe customer and the local user record.
func (p *Provider) copyBillingDetails(ctx context.Context, userID, customerID string, pm *stripe.PaymentMethod) error {
	bd := pm.BillingDetails
	if bd == nil || bd.Name == "" || bd.Phone == "" || bd.Address == nil {
		return nil
	}

	params := &stripe.CustomerUpdateParams{
		Name:  stripe.String(bd.Name),
		Phone: stripe.String(bd.Phone),
		Address: &stripe.AddressParams{
			City:       stripe.String(bd.Address.City),
			Country:    stripe.String(bd.Address.Country),
			Line1:      stripe.String(bd.Address.Line1),
			Line2:      stripe.String(bd.Address.Line2),
			PostalCode: stripe.String(bd.Address.PostalCode),
			State:      stripe.String(bd.Address.State),
		},
	}
	startTime := time.Now()
	if _, err := p.client.UpdateCustomer(ctx, customerID, params); err != nil {
		p.metrics.RecordAPICall(providerName, "/customers/update", "error")
		return fmt.Errorf("%w: %v", billingsync.ErrUpstreamLookup, err)
	}
	p.metrics.RecordAPICall(providerName, "/customers/update", "success")
	p.metrics.RecordAPICallDuration(providerName, "/customers/update", time.Since(startTime))

	details := &billingsync.BillingDetails{
		Name:  bd.Name,
		Phone: bd.Phone,
		Address: &billingsync.Address{
			City:       bd.Address.City,
			Country:    bd.Address.Country,
			Line1:      bd.Address.Line1,
			Line2:      bd.Address.Line2,
			PostalCode: bd.Address.PostalCode,
			State:      bd.Address.State,
		},
	}
	if err := p.store.UpdateUserBillingDetails(ctx, userID, details); err != nil {
		return fmt.Errorf("%w: %v", billingsync.ErrStoreWrite, err)
	}
	return nil
}

// subscriptionRow builds the full store row from a Stripe subscription.
// Quantity, price, and the current period live on the first subscription
// item; epoch-second timestamps are converted to ISO-8601.
func subscriptionRow(sub *stripe.Subscription, userID string) (*billingsync.Subscription, error) {
	if sub.Items == nil || len(sub.Items.Data) == 0 {
		return nil, fmt.Errorf("subscription %s has no items", sub.ID)
	}
	item := sub.Items.Data[0]

	row := &billingsync.Subscription{
		ID:                 sub.ID,
		UserID:             userID,
		Status:             string(sub.Status),
		Metadata:           sub.Metadata,
		CancelAtPeriodEnd:  sub.CancelAtPeriodEnd,
		Created:            billingsync.ISOTimestamp(sub.Created),
		CurrentPeriodStart: billingsync.ISOTimestamp(item.CurrentPeriodStart),
		CurrentPeriodEnd:   billingsync.ISOTimestamp(item.CurrentPeriodEnd),
		EndedAt:            billingsync.ISOTimestampOrNil(sub.EndedAt),
		CancelAt:           billingsync.ISOTimestampOrNil(sub.CancelAt),
		CanceledAt:         billingsync.ISOTimestampOrNil(sub.CanceledAt),
		TrialStart:         billingsync.ISOTimestampOrNil(sub.TrialStart),
		TrialEnd:           billingsync.ISOTimestampOrNil(sub.TrialEnd),
	}
	if item.Price != nil {
		row.PriceID = item.Price.ID
	}
	if item.Quantity != 0 {
		quantity := item.Quantity
		row.Quantity = &quantity
	}
	return row, nil
}
