package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/noah-isme/storefront-payments/internal/store"
	"github.com/noah-isme/storefront-payments/internal/stripe"
)

// Enqueuer schedules post-settlement work outside the gate.
type Enqueuer interface {
	EnqueueFinalize(ctx context.Context, orderID uuid.UUID, status string) error
}

// OrderSettler is the slice of the order store the settlement handlers need.
type OrderSettler interface {
	UpdateStatusByIntentRef(ctx context.Context, intentID, status string) (uuid.UUID, error)
}

// OrderEvents holds the handlers that settle orders from intent lifecycle
// notifications. All of them tolerate repeated and out-of-order delivery.
type OrderEvents struct {
	Orders OrderSettler
	Tasks  Enqueuer
	Logger zerolog.Logger
}

// PaymentIntentSucceeded marks the order behind the intent as paid and
// enqueues fulfilment. Unknown references are ignored: the order may belong
// to another install or was already settled.
func (h OrderEvents) PaymentIntentSucceeded(ctx context.Context, object json.RawMessage, _ *Event) error {
	var pi stripe.PaymentIntent
	if err := json.Unmarshal(object, &pi); err != nil {
		return fmt.Errorf("webhook: decode payment intent: %w", err)
	}
	if pi.ID == "" {
		return errors.New("webhook: payment intent without id")
	}
	orderID, err := h.Orders.UpdateStatusByIntentRef(ctx, pi.ID, store.OrderStatusPaid)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			h.Logger.Debug().Str("intent_id", pi.ID).Msg("no pending order for intent, skipping")
			return nil
		}
		return err
	}
	h.Logger.Info().Str("intent_id", pi.ID).Str("order_id", orderID.String()).Msg("order settled from webhook")
	if h.Tasks != nil {
		if err := h.Tasks.EnqueueFinalize(ctx, orderID, store.OrderStatusPaid); err != nil {
			// Settlement already committed; fulfilment can be replayed.
			h.Logger.Error().Err(err).Str("order_id", orderID.String()).Msg("enqueue order finalization failed")
		}
	}
	return nil
}

// PaymentIntentFailed marks the order behind the intent as failed.
func (h OrderEvents) PaymentIntentFailed(ctx context.Context, object json.RawMessage, _ *Event) error {
	var pi stripe.PaymentIntent
	if err := json.Unmarshal(object, &pi); err != nil {
		return fmt.Errorf("webhook: decode payment intent: %w", err)
	}
	if pi.ID == "" {
		return errors.New("webhook: payment intent without id")
	}
	if _, err := h.Orders.UpdateStatusByIntentRef(ctx, pi.ID, store.OrderStatusFailed); err != nil && !errors.Is(err, store.ErrNotFound) {
		return err
	}
	return nil
}

// DefaultRegistry builds the startup dispatch table for order settlement.
func DefaultRegistry(h OrderEvents) *Registry {
	return NewRegistry().
		On("payment_intent.succeeded", h.PaymentIntentSucceeded).
		On("payment_intent.payment_failed", h.PaymentIntentFailed)
}
