// Package postgres provides a PostgreSQL implementation of the
// billingsync.Store interface on top of pgx connection pooling. All writes
// are single-statement ON CONFLICT upserts, so concurrent webhook deliveries
// for the same row resolve to last-write-wins without any locking here.
package postgres

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mihaimyh/stripesync/pkg/billingsync"
)

//go:embed schema.sql
var schemaSQL string

// pgForeignKeyViolation is the PostgreSQL error code for a write that
// references a missing row.
const pgForeignKeyViolation = "23503"

// Store implements billingsync.Store using PostgreSQL.
type Store struct {
	pool *pgxpool.Pool
}

// Config holds PostgreSQL store configuration.
type Config struct {
	// ConnectionString is the PostgreSQL connection string.
	ConnectionString string

	// Pool configuration.
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
	MaxConnIdleTime time.Duration
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		MaxConns:        10,
		MinConns:        2,
		MaxConnLifetime: time.Hour,
		MaxConnIdleTime: 30 * time.Minute,
	}
}

// New creates a new PostgreSQL store.
func New(ctx context.Context, config Config) (*Store, error) {
	if config.ConnectionString == "" {
		return nil, fmt.Errorf("connection string is required")
	}

	poolConfig, err := pgxpool.ParseConfig(config.ConnectionString)
	if err != nil {
		return nil, fmt.Errorf("failed to parse connection string: %w", err)
	}
	if config.MaxConns > 0 {
		poolConfig.MaxConns = config.MaxConns
	}
	if config.MinConns > 0 {
		poolConfig.MinConns = config.MinConns
	}
	if config.MaxConnLifetime > 0 {
		poolConfig.MaxConnLifetime = config.MaxConnLifetime
	}
	if config.MaxConnIdleTime > 0 {
		poolConfig.MaxConnIdleTime = config.MaxConnIdleTime
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &Store{pool: pool}, nil
}

// Close closes the connection pool.
func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// EnsureSchema creates the billing tables when they do not exist yet.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	return nil
}

// Ping verifies database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func (s *Store) UpsertProduct(ctx context.Context, product *billingsync.Product) error {
	if product == nil || product.ID == "" {
		return fmt.Errorf("invalid product")
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO products (id, active, name, description, image, metadata)
			VALUES ($1, $2, $3, $4, $5, $6)
			ON CONFLICT (id) DO UPDATE SET
				active = EXCLUDED.active,
				name = EXCLUDED.name,
				description = EXCLUDED.description,
				image = EXCLUDED.image,
				metadata = EXCLUDED.metadata`,
		product.ID, product.Active, product.Name, product.Description, product.Image, product.Metadata)
	return translateError(err, "upsert product")
}

func (s *Store) DeleteProduct(ctx context.Context, id string) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM products WHERE id = $1`, id)
	return translateError(err, "delete product")
}

func (s *Store) UpsertPrice(ctx context.Context, price *billingsync.Price) error {
	if price == nil || price.ID == "" {
		return fmt.Errorf("invalid price")
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO prices (id, product_id, active, currency, type,
				unit_amount, interval, interval_count, trial_period_days)
			VALUES ($1, NULLIF($2, ''), $3, $4, $5, $6, $7, $8, $9)
			ON CONFLICT (id) DO UPDATE SET
				product_id = EXCLUDED.product_id,
				active = EXCLUDED.active,
				currency = EXCLUDED.currency,
				type = EXCLUDED.type,
				unit_amount = EXCLUDED.unit_amount,
				interval = EXCLUDED.interval,
				interval_count = EXCLUDED.interval_count,
				trial_period_days = EXCLUDED.trial_period_days`,
		price.ID, price.ProductID, price.Active, price.Currency, string(price.Type),
		price.UnitAmount, price.Interval, price.IntervalCount, price.TrialPeriodDays)
	return translateError(err, "upsert price")
}

func (s *Store) DeletePrice(ctx context.Context, id string) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM prices WHERE id = $1`, id)
	return translateError(err, "delete price")
}

func (s *Store) GetCustomerByUserID(ctx context.Context, userID string) (*billingsync.Customer, error) {
	return s.getCustomer(ctx,
		`SELECT user_id, stripe_customer_id, created FROM customers WHERE user_id = $1`, userID)
}

func (s *Store) GetCustomerByStripeID(ctx context.Context, stripeCustomerID string) (*billingsync.Customer, error) {
	return s.getCustomer(ctx,
		`SELECT user_id, stripe_customer_id, created FROM customers WHERE stripe_customer_id = $1`, stripeCustomerID)
}

func (s *Store) getCustomer(ctx context.Context, query, arg string) (*billingsync.Customer, error) {
	var customer billingsync.Customer
	err := s.pool.QueryRow(ctx, query, arg).
		Scan(&customer.UserID, &customer.StripeCustomerID, &customer.Created)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: customer %q", billingsync.ErrNotFound, arg)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get customer: %w", err)
	}
	return &customer, nil
}

func (s *Store) UpsertCustomer(ctx context.Context, customer *billingsync.Customer) error {
	if customer == nil || customer.UserID == "" {
		return fmt.Errorf("invalid customer mapping")
	}
	created := customer.Created
	if created.IsZero() {
		created = time.Now().UTC()
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO customers (user_id, stripe_customer_id, created)
			VALUES ($1, $2, $3)
			ON CONFLICT (user_id) DO UPDATE SET
				stripe_customer_id = EXCLUDED.stripe_customer_id`,
		customer.UserID, customer.StripeCustomerID, created)
	return translateError(err, "upsert customer")
}

func (s *Store) UpsertSubscription(ctx context.Context, sub *billingsync.Subscription) error {
	if sub == nil || sub.ID == "" {
		return fmt.Errorf("invalid subscription")
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO subscriptions (id, user_id, status, metadata, price_id, quantity,
				cancel_at_period_end, created, current_period_start, current_period_end,
				ended_at, cancel_at, canceled_at, trial_start, trial_end)
			VALUES ($1, $2, $3, $4, $5, $6, $7,
				$8::timestamptz, $9::timestamptz, $10::timestamptz,
				$11::timestamptz, $12::timestamptz, $13::timestamptz,
				$14::timestamptz, $15::timestamptz)
			ON CONFLICT (id) DO UPDATE SET
				user_id = EXCLUDED.user_id,
				status = EXCLUDED.status,
				metadata = EXCLUDED.metadata,
				price_id = EXCLUDED.price_id,
				quantity = EXCLUDED.quantity,
				cancel_at_period_end = EXCLUDED.cancel_at_period_end,
				created = EXCLUDED.created,
				current_period_start = EXCLUDED.current_period_start,
				current_period_end = EXCLUDED.current_period_end,
				ended_at = EXCLUDED.ended_at,
				cancel_at = EXCLUDED.cancel_at,
				canceled_at = EXCLUDED.canceled_at,
				trial_start = EXCLUDED.trial_start,
				trial_end = EXCLUDED.trial_end`,
		sub.ID, sub.UserID, sub.Status, sub.Metadata, sub.PriceID, sub.Quantity,
		sub.CancelAtPeriodEnd, sub.Created, sub.CurrentPeriodStart, sub.CurrentPeriodEnd,
		sub.EndedAt, sub.CancelAt, sub.CanceledAt, sub.TrialStart, sub.TrialEnd)
	return translateError(err, "upsert subscription")
}

func (s *Store) UpdateUserBillingDetails(ctx context.Context, userID string, details *billingsync.BillingDetails) error {
	if details == nil {
		return fmt.Errorf("invalid billing details")
	}
	tag, err := s.pool.Exec(ctx,
		`UPDATE users SET billing_name = $2, billing_phone = $3, billing_address = $4
			WHERE id = $1`,
		userID, details.Name, details.Phone, details.Address)
	if err != nil {
		return translateError(err, "update user billing details")
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: user %q", billingsync.ErrNotFound, userID)
	}
	return nil
}

// translateError maps driver errors onto the store sentinels the
// synchronizer classifies with errors.Is, keeping the backend message.
func translateError(err error, op string) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgForeignKeyViolation {
		return fmt.Errorf("%w: %s: %s", billingsync.ErrForeignKeyViolation, op, pgErr.Message)
	}
	return fmt.Errorf("failed to %s: %w", op, err)
}
