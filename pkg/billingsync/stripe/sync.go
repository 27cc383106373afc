package stripe

import (
	"context"
	"errors"
	"fmt"

	"github.com/stripe/stripe-go/v83"

	"github.com/mihaimyh/stripesync/pkg/billingsync"
)

// UpsertProduct mirrors a Stripe product into the store.
func (p *Provider) UpsertProduct(ctx context.Context, product *stripe.Product) error {
	row := productRow(product)
	if err := p.store.UpsertProduct(ctx, row); err != nil {
		p.metrics.RecordSyncOperation(providerName, "upsert_product", "error")
		return fmt.Errorf("%w: %v", billingsync.ErrStoreWrite, err)
	}
	p.logger.Info().Str("product_id", row.ID).Msg("product upserted")
	p.metrics.RecordSyncOperation(providerName, "upsert_product", "success")
	return nil
}

// DeleteProduct removes a product row entirely.
func (p *Provider) DeleteProduct(ctx context.Context, id string) error {
	if err := p.store.DeleteProduct(ctx, id); err != nil {
		p.metrics.RecordSyncOperation(providerName, "delete_product", "error")
		return fmt.Errorf("%w: %v", billingsync.ErrStoreWrite, err)
	}
	p.logger.Info().Str("product_id", id).Msg("product deleted")
	p.metrics.RecordSyncOperation(providerName, "delete_product", "success")
	return nil
}

// UpsertPrice mirrors a Stripe price into the store. Products and prices can
// arrive out of order or concurrently; when the write fails because the
// referenced product row does not exist yet, the upsert waits a fixed delay
// and retries, up to maxAttempts additional attempts. Any other failure is
// surfaced immediately.
func (p *Provider) UpsertPrice(ctx context.Context, price *stripe.Price) error {
	row := priceRow(price)

	for attempt := 0; ; attempt++ {
		err := p.store.UpsertPrice(ctx, row)
		if err == nil {
			p.logger.Info().Str("price_id", row.ID).Msg("price upserted")
			p.metrics.RecordSyncOperation(providerName, "upsert_price", "success")
			return nil
		}

		if !errors.Is(err, billingsync.ErrForeignKeyViolation) || attempt >= p.maxAttempts {
			p.metrics.RecordSyncOperation(providerName, "upsert_price", "error")
			return fmt.Errorf("%w: %v", billingsync.ErrStoreWrite, err)
		}

		p.logger.Warn().Str("price_id", row.ID).Str("product_id", row.ProductID).
			Int("attempt", attempt+1).Int("max_attempts", p.maxAttempts).
			Msg("product not synced yet, retrying price upsert")
		p.metrics.RecordSyncRetry(providerName, "upsert_price")
		if err := p.clock.Sleep(ctx, p.retryDelay); err != nil {
			return fmt.Errorf("%w: %v", billingsync.ErrStoreWrite, err)
		}
	}
}

// DeletePrice removes a price row entirely.
func (p *Provider) DeletePrice(ctx context.Context, id string) error {
	if err := p.store.DeletePrice(ctx, id); err != nil {
		p.metrics.RecordSyncOperation(providerName, "delete_price", "error")
		return fmt.Errorf("%w: %v", billingsync.ErrStoreWrite, err)
	}
	p.logger.Info().Str("price_id", id).Msg("price deleted")
	p.metrics.RecordSyncOperation(providerName, "delete_price", "success")
	return nil
}

func productRow(product *stripe.Product) *billingsync.Product {
	row := &billingsync.Product{
		ID:       product.ID,
		Active:   product.Active,
		Name:     product.Name,
		Metadata: product.Metadata,
	}
	if product.Description != "" {
		desc := product.Description
		row.Description = &desc
	}
	if len(product.Images) > 0 {
		image := product.Images[0]
		row.Image = &image
	}
	return row
}

func priceRow(price *stripe.Price) *billingsync.Price {
	row := &billingsync.Price{
		ID:       price.ID,
		Active:   price.Active,
		Currency: string(price.Currency),
		Type:     billingsync.PricingType(price.Type),
	}
	// The product reference may arrive expanded or as a bare id; anything
	// else leaves the foreign key empty.
	if price.Product != nil {
		row.ProductID = price.Product.ID
	}
	if price.UnitAmount != 0 || price.BillingScheme == stripe.PriceBillingSchemePerUnit {
		amount := price.UnitAmount
		row.UnitAmount = &amount
	}
	if price.Recurring != nil {
		interval := billingsync.PricingPlanInterval(price.Recurring.Interval)
		count := price.Recurring.IntervalCount
		trial := price.Recurring.TrialPeriodDays
		row.Interval = &interval
		row.IntervalCount = &count
		row.TrialPeriodDays = &trial
	}
	return row
}
