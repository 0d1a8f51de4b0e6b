package intent

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/noah-isme/storefront-payments/internal/store"
	"github.com/noah-isme/storefront-payments/internal/stripe"
)

// CustomerGateway is the provider slice the resolver needs.
type CustomerGateway interface {
	CreateCustomer(ctx context.Context, params stripe.CustomerParams) (*stripe.Customer, error)
}

// StoreResolver resolves customer tokens from the local mapping, creating a
// remote token and persisting it on demand.
type StoreResolver struct {
	Customers store.Customers
	Gateway   CustomerGateway
}

// Resolve returns the stored token for the user, "" when none exists.
func (r StoreResolver) Resolve(ctx context.Context, userID string) (string, error) {
	id, err := uuid.Parse(userID)
	if err != nil {
		return "", fmt.Errorf("intent: invalid user id: %w", err)
	}
	return r.Customers.Lookup(ctx, id)
}

// Create creates a fresh remote customer token and persists it against the
// local buyer identity, replacing any stale mapping.
func (r StoreResolver) Create(ctx context.Context, userID string) (string, error) {
	id, err := uuid.Parse(userID)
	if err != nil {
		return "", fmt.Errorf("intent: invalid user id: %w", err)
	}
	cust, err := r.Gateway.CreateCustomer(ctx, stripe.CustomerParams{})
	if err != nil {
		return "", err
	}
	if err := r.Customers.Save(ctx, id, cust.ID); err != nil {
		return "", err
	}
	return cust.ID, nil
}
