package stripe

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/stripe/stripe-go/v83"
	"github.com/stripe/stripe-go/v83/webhook"

	"github.com/mihaimyh/stripesync/pkg/billingsync"
	"github.com/mihaimyh/stripesync/pkg/billingsync/internal"
)

// relevantEvents is the fixed set of event types this system acts on.
// Everything else is rejected with a 400 so Stripe stops redelivering it.
var relevantEvents = map[stripe.EventType]struct{}{
	"product.created":               {},
	"product.updated":               {},
	"product.deleted":               {},
	"price.created":                 {},
	"price.updated":                 {},
	"price.deleted":                 {},
	"customer.subscription.created": {},
	"customer.subscription.updated": {},
	"customer.subscription.deleted": {},
	"checkout.session.completed":    {},
}

// handleWebhook processes incoming Stripe webhook events. There are no
// retries at this layer: a failed delivery is redelivered by Stripe, and
// every sync operation is an idempotent upsert, so redelivery is safe.
func (p *Provider) handleWebhook(w http.ResponseWriter, r *http.Request) {
	startTime := time.Now()
	setSecurityHeaders(w)

	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	body, err := internal.ReadBody(w, r, maxWebhookBodyBytes)
	sig := r.Header.Get("Stripe-Signature")

	// Missing body, missing signature, and missing secret are all treated
	// as the same configuration/auth failure, before any verification.
	if err != nil || sig == "" || len(p.webhookSecret) == 0 {
		if errors.Is(err, internal.ErrPayloadTooLarge) {
			http.Error(w, "payload too large", http.StatusRequestEntityTooLarge)
			p.metrics.RecordWebhookError(providerName, "payload_too_large")
			return
		}
		p.logger.Warn().Err(billingsync.ErrSecretNotConfigured).
			Msg("webhook rejected before verification")
		http.Error(w, "Webhook secret not found.", http.StatusBadRequest)
		p.metrics.RecordWebhookError(providerName, "not_configured")
		return
	}

	// Events created under older API versions are still relevant; only the
	// signature decides authenticity.
	event, err := webhook.ConstructEventWithOptions(body, sig, string(p.webhookSecret),
		webhook.ConstructEventOptions{IgnoreAPIVersionMismatch: true})
	if err != nil {
		err = fmt.Errorf("%w: %v", billingsync.ErrSignatureInvalid, err)
		p.logger.Warn().Err(err).Msg("webhook signature verification failed")
		http.Error(w, fmt.Sprintf("Webhook Error: %v", err), http.StatusBadRequest)
		p.metrics.RecordWebhookError(providerName, "auth_failed")
		return
	}

	eventType := string(event.Type)
	if _, ok := relevantEvents[event.Type]; !ok {
		p.logger.Warn().Str("event_type", eventType).Msg("unsupported event type")
		http.Error(w, fmt.Sprintf("Unsupported event type: %s", eventType), http.StatusBadRequest)
		p.metrics.RecordWebhookError(providerName, "unsupported_event")
		return
	}

	if p.alreadySeen(r.Context(), event.ID) {
		p.logger.Info().Str("event_id", event.ID).Str("event_type", eventType).
			Msg("duplicate delivery, skipping")
		p.metrics.RecordWebhookEvent(providerName, eventType, "skipped")
		p.ack(w)
		return
	}

	p.logger.Info().Str("event_id", event.ID).Str("event_type", eventType).
		Msg("webhook received")

	if err := p.dispatchEvent(r.Context(), &event); err != nil {
		p.logger.Error().Err(err).Str("event_id", event.ID).Str("event_type", eventType).
			Msg("webhook processing failed")
		if errors.Is(err, billingsync.ErrSubscriptionNotFound) {
			http.Error(w, "No subscription found", http.StatusBadRequest)
		} else {
			http.Error(w, fmt.Sprintf("Webhook Error: %v", err), http.StatusBadRequest)
		}
		p.metrics.RecordWebhookEvent(providerName, eventType, "error")
		p.metrics.RecordWebhookProcessingDuration(providerName, eventType, time.Since(startTime))
		return
	}

	p.markSeen(r.Context(), event.ID)
	p.ack(w)
	p.metrics.RecordWebhookEvent(providerName, eventType, "success")
	p.metrics.RecordWebhookProcessingDuration(providerName, eventType, time.Since(startTime))
}

// dispatchEvent routes a verified event to the matching sync operation.
func (p *Provider) dispatchEvent(ctx context.Context, event *stripe.Event) error {
	switch event.Type {
	case "product.created", "product.updated":
		product, err := decodeProduct(event)
		if err != nil {
			return err
		}
		return p.UpsertProduct(ctx, product)

	case "product.deleted":
		product, err := decodeProduct(event)
		if err != nil {
			return err
		}
		return p.DeleteProduct(ctx, product.ID)

	case "price.created", "price.updated":
		price, err := decodePrice(event)
		if err != nil {
			return err
		}
		return p.UpsertPrice(ctx, price)

	case "price.deleted":
		price, err := decodePrice(event)
		if err != nil {
			return err
		}
		return p.DeletePrice(ctx, price.ID)

	case "customer.subscription.created", "customer.subscription.updated", "customer.subscription.deleted":
		var sub stripe.Subscription
		if err := json.Unmarshal(event.Data.Raw, &sub); err != nil {
			return fmt.Errorf("failed to unmarshal subscription: %w", err)
		}
		if sub.Customer == nil {
			return fmt.Errorf("subscription %s has no customer", sub.ID)
		}
		return p.ManageSubscriptionStatusChange(ctx, sub.ID, sub.Customer.ID, false)

	case "checkout.session.completed":
		var session stripe.CheckoutSession
		if err := json.Unmarshal(event.Data.Raw, &session); err != nil {
			return fmt.Errorf("failed to unmarshal checkout session: %w", err)
		}
		if session.Mode != stripe.CheckoutSessionModeSubscription {
			// One-time payment checkouts carry no subscription to sync.
			return nil
		}
		if session.Subscription == nil || session.Customer == nil {
			return fmt.Errorf("checkout session %s missing subscription or customer", session.ID)
		}
		return p.ManageSubscriptionStatusChange(ctx, session.Subscription.ID, session.Customer.ID, true)

	default:
		// Unreachable given the relevant-set check, but treated as fatal
		// to this request rather than silently acked.
		return fmt.Errorf("%w: %s", billingsync.ErrUnsupportedEvent, event.Type)
	}
}

func decodeProduct(event *stripe.Event) (*stripe.Product, error) {
	var product stripe.Product
	if err := json.Unmarshal(event.Data.Raw, &product); err != nil {
		return nil, fmt.Errorf("failed to unmarshal product: %w", err)
	}
	return &product, nil
}

func decodePrice(event *stripe.Event) (*stripe.Price, error) {
	var price stripe.Price
	if err := json.Unmarshal(event.Data.Raw, &price); err != nil {
		return nil, fmt.Errorf("failed to unmarshal price: %w", err)
	}
	return &price, nil
}

// alreadySeen consults the optional deduper. Deduper failures count as "not
// seen": processing a duplicate is safe, skipping a fresh event is not.
func (p *Provider) alreadySeen(ctx context.Context, eventID string) bool {
	if p.deduper == nil || eventID == "" {
		return false
	}
	seen, err := p.deduper.Seen(ctx, eventID)
	if err != nil {
		p.logger.Warn().Err(err).Str("event_id", eventID).Msg("deduper unavailable")
		return false
	}
	return seen
}

// markSeen records the event only after dispatch succeeded, so a failed
// delivery is not remembered and Stripe's redelivery still gets processed.
func (p *Provider) markSeen(ctx context.Context, eventID string) {
	if p.deduper == nil || eventID == "" {
		return
	}
	if err := p.deduper.MarkSeen(ctx, eventID); err != nil {
		p.logger.Warn().Err(err).Str("event_id", eventID).Msg("deduper unavailable")
	}
}

func (p *Provider) ack(w http.ResponseWriter) {
	if err := internal.WriteJSON(w, http.StatusOK, map[string]bool{"received": true}); err != nil {
		p.logger.Warn().Err(err).Msg("failed to write webhook ack")
	}
}

func setSecurityHeaders(w http.ResponseWriter) {
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("X-Content-Type-Options", "nosniff")
}
