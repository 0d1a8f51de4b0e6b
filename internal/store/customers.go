package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Customers maps local buyer identities to remote customer tokens. Tokens
// are mode-scoped: a live token is useless against the test API and vice
// versa.
type Customers struct {
	Pool *pgxpool.Pool
	Mode string
}

// Lookup returns the stored customer token for the user, "" when none exists.
func (s Customers) Lookup(ctx context.Context, userID uuid.UUID) (string, error) {
	var token string
	row := s.Pool.QueryRow(ctx, `
		SELECT customer_id FROM stripe_customers WHERE user_id = $1 AND mode = $2`,
		userID, s.Mode)
	if err := row.Scan(&token); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", nil
		}
		return "", fmt.Errorf("store: lookup customer: %w", err)
	}
	return token, nil
}

// Save upserts the customer token for the user, replacing a stale one.
func (s Customers) Save(ctx context.Context, userID uuid.UUID, token string) error {
	_, err := s.Pool.Exec(ctx, `
		INSERT INTO stripe_customers (user_id, mode, customer_id)
		VALUES ($1, $2, $3)
		ON CONFLICT (user_id, mode) DO UPDATE SET customer_id = EXCLUDED.customer_id, updated_at = now()`,
		userID, s.Mode, token)
	if err != nil {
		return fmt.Errorf("store: save customer: %w", err)
	}
	return nil
}
