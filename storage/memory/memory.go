// Package memory provides an in-memory implementation of the
// billingsync.Store interface. It is primarily intended for testing and
// development, and enforces the price-to-product foreign key so out-of-order
// arrival behaves the way a relational backend does.
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/mihaimyh/stripesync/pkg/billingsync"
)

// Store implements billingsync.Store using in-memory maps.
type Store struct {
	mu            sync.RWMutex
	products      map[string]*billingsync.Product
	prices        map[string]*billingsync.Price
	customers     map[string]*billingsync.Customer // keyed by user id
	subscriptions map[string]*billingsync.Subscription
	users         map[string]*billingsync.BillingDetails
}

// New creates a new in-memory store.
func New() *Store {
	return &Store{
		products:      make(map[string]*billingsync.Product),
		prices:        make(map[string]*billingsync.Price),
		customers:     make(map[string]*billingsync.Customer),
		subscriptions: make(map[string]*billingsync.Subscription),
		users:         make(map[string]*billingsync.BillingDetails),
	}
}

func (s *Store) UpsertProduct(_ context.Context, product *billingsync.Product) error {
	if product == nil || product.ID == "" {
		return fmt.Errorf("invalid product")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	productCopy := *product
	s.products[product.ID] = &productCopy
	return nil
}

func (s *Store) DeleteProduct(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.products, id)
	return nil
}

func (s *Store) UpsertPrice(_ context.Context, price *billingsync.Price) error {
	if price == nil || price.ID == "" {
		return fmt.Errorf("invalid price")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if price.ProductID != "" {
		if _, ok := s.products[price.ProductID]; !ok {
			return fmt.Errorf("%w: price %q references product %q",
				billingsync.ErrForeignKeyViolation, price.ID, price.ProductID)
		}
	}

	priceCopy := *price
	s.prices[price.ID] = &priceCopy
	return nil
}

func (s *Store) DeletePrice(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.prices, id)
	return nil
}

func (s *Store) GetCustomerByUserID(_ context.Context, userID string) (*billingsync.Customer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	customer, ok := s.customers[userID]
	if !ok {
		return nil, fmt.Errorf("%w: user %q", billingsync.ErrNotFound, userID)
	}
	customerCopy := *customer
	return &customerCopy, nil
}

func (s *Store) GetCustomerByStripeID(_ context.Context, stripeCustomerID string) (*billingsync.Customer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, customer := range s.customers {
		if customer.StripeCustomerID == stripeCustomerID {
			customerCopy := *customer
			return &customerCopy, nil
		}
	}
	return nil, fmt.Errorf("%w: stripe customer %q", billingsync.ErrNotFound, stripeCustomerID)
}

func (s *Store) UpsertCustomer(_ context.Context, customer *billingsync.Customer) error {
	if customer == nil || customer.UserID == "" {
		return fmt.Errorf("invalid customer mapping")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	customerCopy := *customer
	s.customers[customer.UserID] = &customerCopy
	return nil
}

func (s *Store) UpsertSubscription(_ context.Context, sub *billingsync.Subscription) error {
	if sub == nil || sub.ID == "" {
		return fmt.Errorf("invalid subscription")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	subCopy := *sub
	s.subscriptions[sub.ID] = &subCopy
	return nil
}

func (s *Store) UpdateUserBillingDetails(_ context.Context, userID string, details *billingsync.BillingDetails) error {
	if details == nil {
		return fmt.Errorf("invalid billing details")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	detailsCopy := *details
	s.users[userID] = &detailsCopy
	return nil
}

// GetProduct returns a product by id, for tests and examples.
func (s *Store) GetProduct(_ context.Context, id string) (*billingsync.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	product, ok := s.products[id]
	if !ok {
		return nil, fmt.Errorf("%w: product %q", billingsync.ErrNotFound, id)
	}
	productCopy := *product
	return &productCopy, nil
}

// GetPrice returns a price by id, for tests and examples.
func (s *Store) GetPrice(_ context.Context, id string) (*billingsync.Price, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	price, ok := s.prices[id]
	if !ok {
		return nil, fmt.Errorf("%w: price %q", billingsync.ErrNotFound, id)
	}
	priceCopy := *price
	return &priceCopy, nil
}

// GetSubscription returns a subscription by id, for tests and examples.
func (s *Store) GetSubscription(_ context.Context, id string) (*billingsync.Subscription, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sub, ok := s.subscriptions[id]
	if !ok {
		return nil, fmt.Errorf("%w: subscription %q", billingsync.ErrNotFound, id)
	}
	subCopy := *sub
	return &subCopy, nil
}

// GetUserBillingDetails returns the billing details stored for a user, for
// tests and examples.
func (s *Store) GetUserBillingDetails(_ context.Context, userID string) (*billingsync.BillingDetails, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	details, ok := s.users[userID]
	if !ok {
		return nil, fmt.Errorf("%w: user %q", billingsync.ErrNotFound, userID)
	}
	detailsCopy := *details
	return &detailsCopy, nil
}
