// Package stripe mirrors Stripe billing state (products, prices, customer
// mappings, subscriptions) into a relational store, driven by verified
// webhook events.
package stripe

import (
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/mihaimyh/stripesync/pkg/billingsync"
	"github.com/mihaimyh/stripesync/pkg/billingsync/internal"
)

const (
	providerName             = "stripe"
	defaultRetryDelay        = 2 * time.Second
	defaultMaxRetryAttempts  = 3
	defaultRateLimitWindow   = time.Minute
	defaultRateLimitRequests = 100
	maxWebhookBodyBytes      = 256 * 1024
)

// Config extends billingsync.Config with Stripe-specific options.
type Config struct {
	billingsync.Config // Base config (Store, WebhookSecret, Metrics, etc.)

	// Stripe-specific. StripeWebhookSecret takes precedence over the base
	// WebhookSecret when both are set.
	StripeAPIKey        string
	StripeWebhookSecret string

	// Client overrides the Stripe-backed API client. Intended for tests;
	// when nil a real client is built from StripeAPIKey.
	Client APIClient

	// Clock overrides the cooperative sleep between retry attempts.
	Clock billingsync.Clock
}

// Provider is the Stripe event gateway plus record synchronizer. It is safe
// for concurrent use: every webhook delivery is handled independently and
// correctness relies on the store's per-row upserts being atomic.
type Provider struct {
	store         billingsync.Store
	client        APIClient
	webhookSecret []byte
	deduper       billingsync.Deduper
	rateLimiter   *internal.RateLimiter
	logger        zerolog.Logger
	metrics       billingsync.Metrics
	clock         billingsync.Clock
	retryDelay    time.Duration
	maxAttempts   int

	// createGroup collapses concurrent CreateOrRetrieveCustomer calls for
	// the same user so signup races cannot create duplicate Stripe customers.
	createGroup singleflight.Group
}

// NewProvider creates a new Stripe synchronizer.
func NewProvider(config Config) (*Provider, error) {
	if config.Store == nil {
		return nil, billingsync.ErrStoreWrite
	}

	client := config.Client
	if client == nil {
		apiKey := strings.TrimSpace(config.StripeAPIKey)
		if apiKey == "" {
			apiKey = strings.TrimSpace(config.APIKey)
		}
		if apiKey == "" {
			return nil, billingsync.ErrUpstreamLookup
		}
		client = newAPIClient(apiKey)
	}

	secret := strings.TrimSpace(config.StripeWebhookSecret)
	if secret == "" {
		secret = strings.TrimSpace(config.WebhookSecret)
	}

	logger := zerolog.Nop()
	if config.Logger != nil {
		logger = config.Logger.With().Str("component", "stripesync").Logger()
	}

	metrics := config.Metrics
	if metrics == nil {
		metrics = &billingsync.NoopMetrics{}
	}

	clock := config.Clock
	if clock == nil {
		clock = billingsync.RealClock{}
	}

	retryDelay := config.RetryDelay
	if retryDelay <= 0 {
		retryDelay = defaultRetryDelay
	}
	maxAttempts := config.MaxRetryAttempts
	if maxAttempts <= 0 {
		maxAttempts = defaultMaxRetryAttempts
	}

	return &Provider{
		store:         config.Store,
		client:        client,
		webhookSecret: []byte(secret),
		deduper:       config.Deduper,
		rateLimiter:   internal.NewRateLimiter(defaultRateLimitRequests, defaultRateLimitWindow),
		logger:        logger,
		metrics:       metrics,
		clock:         clock,
		retryDelay:    retryDelay,
		maxAttempts:   maxAttempts,
	}, nil
}

// Name returns the provider name.
func (p *Provider) Name() string {
	return providerName
}

// WebhookHandler returns the HTTP handler for Stripe webhooks, wrapped with
// per-IP rate limiting.
func (p *Provider) WebhookHandler() http.Handler {
	return p.rateLimiter.Middleware(http.HandlerFunc(p.handleWebhook))
}
