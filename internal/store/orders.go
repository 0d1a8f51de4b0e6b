package store

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Order statuses tracked by the storefront.
const (
	OrderStatusPendingPayment = "PENDING_PAYMENT"
	OrderStatusProcessing     = "PROCESSING"
	OrderStatusPaid           = "PAID"
	OrderStatusFailed         = "FAILED"
)

var (
	// ErrNotFound is returned when a row does not exist.
	ErrNotFound = errors.New("store: not found")
	// ErrRefConflict is returned when a compare-and-swap on the stored
	// intent reference loses against a concurrent writer.
	ErrRefConflict = errors.New("store: intent reference changed concurrently")
)

// Order is the durable checkout record. PaymentIntentID is the stored intent
// reference; at most one is active per order.
type Order struct {
	ID              uuid.UUID
	OrderKey        string
	UserID          string
	Email           string
	Total           float64
	Currency        string
	Status          string
	PaymentIntentID string
	IntentSnapshot  []byte
}

// Orders persists orders and their intent references in Postgres.
type Orders struct {
	Pool *pgxpool.Pool
}

// Get fetches one order by id.
func (s Orders) Get(ctx context.Context, id uuid.UUID) (Order, error) {
	var (
		o      Order
		userID *string
		ref    *string
	)
	row := s.Pool.QueryRow(ctx, `
		SELECT id, order_key, user_id, email, total, currency, status, payment_intent_id, intent_snapshot
		FROM orders WHERE id = $1`, id)
	if err := row.Scan(&o.ID, &o.OrderKey, &userID, &o.Email, &o.Total, &o.Currency, &o.Status, &ref, &o.IntentSnapshot); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Order{}, ErrNotFound
		}
		return Order{}, fmt.Errorf("store: get order: %w", err)
	}
	if userID != nil {
		o.UserID = *userID
	}
	if ref != nil {
		o.PaymentIntentID = *ref
	}
	return o, nil
}

// ReplaceIntentRef swaps the stored intent reference using compare-and-swap
// semantics so concurrent reconciliations cannot both win. Pass oldRef as
// seen by the caller and newRef as the superseding reference (empty clears).
func (s Orders) ReplaceIntentRef(ctx context.Context, orderID uuid.UUID, oldRef, newRef string) error {
	tag, err := s.Pool.Exec(ctx, `
		UPDATE orders
		SET payment_intent_id = NULLIF($3, ''), updated_at = now()
		WHERE id = $1 AND payment_intent_id IS NOT DISTINCT FROM NULLIF($2, '')`,
		orderID, strings.TrimSpace(oldRef), strings.TrimSpace(newRef))
	if err != nil {
		return fmt.Errorf("store: replace intent ref: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrRefConflict
	}
	return nil
}

// SaveIntentSnapshot persists a sanitised intent snapshot on the order.
func (s Orders) SaveIntentSnapshot(ctx context.Context, orderID uuid.UUID, snapshot []byte) error {
	tag, err := s.Pool.Exec(ctx, `
		UPDATE orders SET intent_snapshot = $2, updated_at = now() WHERE id = $1`,
		orderID, snapshot)
	if err != nil {
		return fmt.Errorf("store: save intent snapshot: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// UpdateStatusByIntentRef transitions the order pointing at the given intent
// reference. Used by webhook-driven settlement; idempotent with respect to
// repeated notifications for the same terminal status.
func (s Orders) UpdateStatusByIntentRef(ctx context.Context, intentID, status string) (uuid.UUID, error) {
	var id uuid.UUID
	row := s.Pool.QueryRow(ctx, `
		UPDATE orders SET status = $2, updated_at = now()
		WHERE payment_intent_id = $1 AND status <> $2
		RETURNING id`, intentID, status)
	if err := row.Scan(&id); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return uuid.Nil, ErrNotFound
		}
		return uuid.Nil, fmt.Errorf("store: update status by intent: %w", err)
	}
	return id, nil
}

// UpdateStatus transitions one order by id.
func (s Orders) UpdateStatus(ctx context.Context, orderID uuid.UUID, status string) error {
	tag, err := s.Pool.Exec(ctx, `
		UPDATE orders SET status = $2, updated_at = now() WHERE id = $1`, orderID, status)
	if err != nil {
		return fmt.Errorf("store: update status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
