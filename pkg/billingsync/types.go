// Package billingsync defines the record types, store contract, and error
// taxonomy shared by the billing-state synchronizer and its storage backends.
package billingsync

import "time"

// PricingType distinguishes one-time prices from recurring ones.
type PricingType string

const (
	PricingTypeOneTime   PricingType = "one_time"
	PricingTypeRecurring PricingType = "recurring"
)

// PricingPlanInterval is the billing interval of a recurring price.
type PricingPlanInterval string

const (
	PricingPlanIntervalDay   PricingPlanInterval = "day"
	PricingPlanIntervalWeek  PricingPlanInterval = "week"
	PricingPlanIntervalMonth PricingPlanInterval = "month"
	PricingPlanIntervalYear  PricingPlanInterval = "year"
)

// Product mirrors a provider product. The ID is provider-assigned and stable
// across updates; deletion removes the row entirely.
type Product struct {
	ID          string
	Active      bool
	Name        string
	Description *string
	Image       *string
	Metadata    map[string]string
}

// Price mirrors a provider price. ProductID may be empty when the source
// reference was not a plain identifier.
type Price struct {
	ID              string
	ProductID       string
	Active          bool
	Currency        string
	Type            PricingType
	UnitAmount      *int64
	Interval        *PricingPlanInterval
	IntervalCount   *int64
	TrialPeriodDays *int64
}

// Customer is the join record between an internal user identity and a
// provider customer identity. At most one row per user; the relationship is
// 1:1 once established.
type Customer struct {
	UserID           string
	StripeCustomerID string
	Created          time.Time
}

// Subscription mirrors a provider subscription. It is always written as a
// full row; deletion events are represented as a status upsert, never a row
// delete. Timestamp columns hold ISO-8601 strings produced by ISOTimestamp.
type Subscription struct {
	ID                 string
	UserID             string
	Status             string
	Metadata           map[string]string
	PriceID            string
	Quantity           *int64
	CancelAtPeriodEnd  bool
	Created            string
	CurrentPeriodStart string
	CurrentPeriodEnd   string
	EndedAt            *string
	CancelAt           *string
	CanceledAt         *string
	TrialStart         *string
	TrialEnd           *string
}

// Address is the subset of a payment method's billing address that gets
// copied onto the local user record.
type Address struct {
	City       string
	Country    string
	Line1      string
	Line2      string
	PostalCode string
	State      string
}

// BillingDetails carries the name/phone/address copied from a subscription's
// default payment method after a completed checkout.
type BillingDetails struct {
	Name    string
	Phone   string
	Address *Address
}

// isoTimestampLayout matches the provider dashboard's millisecond precision.
// The trailing Z is literal; all values are normalized to UTC first.
const isoTimestampLayout = "2006-01-02T15:04:05.000Z"

// ISOTimestamp converts provider epoch-seconds into the ISO-8601 string the
// store expects (seconds are widened to milliseconds before formatting).
func ISOTimestamp(epochSeconds int64) string {
	return time.UnixMilli(epochSeconds * 1000).UTC().Format(isoTimestampLayout)
}

// ISOTimestampOrNil is ISOTimestamp for nullable columns: provider payloads
// encode absent timestamps as zero.
func ISOTimestampOrNil(epochSeconds int64) *string {
	if epochSeconds == 0 {
		return nil
	}
	s := ISOTimestamp(epochSeconds)
	return &s
}
