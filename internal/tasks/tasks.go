// Package tasks carries post-settlement work out of the webhook path onto
// the background queue.
package tasks

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"

	"github.com/noah-isme/storefront-payments/internal/store"
)

const (
	// TypeOrderFinalize moves a settled order into the fulfilment pipeline.
	TypeOrderFinalize = "order:finalize"
	// QueuePayments is the asynq queue for payment follow-up work.
	QueuePayments = "payments"
)

// OrderFinalizePayload is the task body for order finalization.
type OrderFinalizePayload struct {
	OrderID string `json:"order_id"`
	Status  string `json:"status"`
}

// NewOrderFinalizeTask builds the finalization task for an order.
func NewOrderFinalizeTask(orderID uuid.UUID, status string) (*asynq.Task, error) {
	payload, err := json.Marshal(OrderFinalizePayload{OrderID: orderID.String(), Status: status})
	if err != nil {
		return nil, fmt.Errorf("tasks: marshal payload: %w", err)
	}
	return asynq.NewTask(TypeOrderFinalize, payload), nil
}

// Enqueuer schedules tasks on the payments queue.
type Enqueuer struct {
	Client *asynq.Client
}

// EnqueueFinalize schedules order finalization after settlement.
func (e Enqueuer) EnqueueFinalize(ctx context.Context, orderID uuid.UUID, status string) error {
	task, err := NewOrderFinalizeTask(orderID, status)
	if err != nil {
		return err
	}
	if _, err := e.Client.EnqueueContext(ctx, task, asynq.Queue(QueuePayments), asynq.MaxRetry(5)); err != nil {
		return fmt.Errorf("tasks: enqueue finalize: %w", err)
	}
	return nil
}

// OrderUpdater is the slice of the order store the worker needs.
type OrderUpdater interface {
	UpdateStatus(ctx context.Context, orderID uuid.UUID, status string) error
}

// FinalizeHandler processes order finalization tasks in the worker.
type FinalizeHandler struct {
	Orders OrderUpdater
	Logger zerolog.Logger
}

// ProcessTask transitions paid orders into fulfilment. Repeated deliveries
// are harmless: the transition only applies to orders still marked paid.
func (h FinalizeHandler) ProcessTask(ctx context.Context, t *asynq.Task) error {
	var payload OrderFinalizePayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("tasks: decode payload: %w", err)
	}
	orderID, err := uuid.Parse(payload.OrderID)
	if err != nil {
		return fmt.Errorf("tasks: invalid order id %q: %w", payload.OrderID, err)
	}
	if payload.Status != store.OrderStatusPaid {
		return nil
	}
	if err := h.Orders.UpdateStatus(ctx, orderID, store.OrderStatusProcessing); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			h.Logger.Debug().Str("order_id", payload.OrderID).Msg("order gone before finalization")
			return nil
		}
		return err
	}
	h.Logger.Info().Str("order_id", payload.OrderID).Msg("order moved to fulfilment")
	return nil
}

// NewServeMux wires the worker-side task routes.
func NewServeMux(h FinalizeHandler) *asynq.ServeMux {
	mux := asynq.NewServeMux()
	mux.Handle(TypeOrderFinalize, h)
	return mux
}
