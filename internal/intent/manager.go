// Package intent decides whether a checkout attempt should create, reuse,
// update, or discard a provider-side payment intent. The manager is a pure
// decision function over provided state plus remote round trips: it never
// persists references, callers write them back to the order/session store.
package intent

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/noah-isme/storefront-payments/internal/common"
	"github.com/noah-isme/storefront-payments/internal/installments"
	"github.com/noah-isme/storefront-payments/internal/obs"
	"github.com/noah-isme/storefront-payments/internal/store"
	"github.com/noah-isme/storefront-payments/internal/stripe"
)

// Gateway abstracts the remote payment provider operations the manager needs.
type Gateway interface {
	CreatePaymentIntent(ctx context.Context, params stripe.PaymentIntentParams) (*stripe.PaymentIntent, error)
	RetrievePaymentIntent(ctx context.Context, id string) (*stripe.PaymentIntent, error)
	UpdatePaymentIntent(ctx context.Context, id string, params stripe.PaymentIntentParams) (*stripe.PaymentIntent, error)
	CreateSetupIntent(ctx context.Context, params stripe.SetupIntentParams) (*stripe.SetupIntent, error)
}

// CustomerResolver maps a local buyer identity to a remote customer token.
type CustomerResolver interface {
	Resolve(ctx context.Context, userID string) (string, error)
	Create(ctx context.Context, userID string) (string, error)
}

// Attempt is the ephemeral context of one checkout attempt.
type Attempt struct {
	PaymentMethod   string
	PaymentMethodID string
	UserID          string
}

// Checkout carries the amount source for the attempt: the order when one
// exists, otherwise the active cart total.
type Checkout struct {
	Total    float64
	Currency string
	Order    *store.Order
}

// Result is the authoritative intent plus derived installment data.
type Result struct {
	Intent       *stripe.PaymentIntent
	Installments []installments.Offer
	Created      bool
}

// Manager reconciles checkout attempts against provider-side intent state.
type Manager struct {
	Gateway   Gateway
	Handlers  map[string]MethodHandler
	Customers CustomerResolver
	Logger    zerolog.Logger
}

// Reconcile resolves the authoritative intent for the attempt. A stored
// reference is reused and updated in place when the provider still considers
// it open with the desired confirmation method; otherwise it is discarded and
// a fresh intent created. The discard-and-recreate path is a bounded loop:
// one try with the reference, one without.
func (m *Manager) Reconcile(ctx context.Context, attempt Attempt, ck Checkout, storedRef string) (Result, error) {
	ctx, span := otel.Tracer("intent.Manager").Start(ctx, "Manager.Reconcile")
	defer span.End()

	start := time.Now()
	result := "error"
	defer func() {
		span.SetAttributes(
			attribute.String("intent.method", attempt.PaymentMethod),
			attribute.String("intent.result", result),
			attribute.Float64("intent.duration_ms", obs.DurationMillis(time.Since(start))),
		)
		if obs.PaymentIntentTotal != nil {
			obs.PaymentIntentTotal.WithLabelValues(attempt.PaymentMethod, result).Inc()
		}
	}()

	handler, ok := m.Handlers[attempt.PaymentMethod]
	if !ok {
		return Result{}, common.BusinessError(common.CodeUnknownPaymentMethod,
			fmt.Sprintf("payment method %q is not supported", attempt.PaymentMethod))
	}
	params := m.desiredParams(ctx, attempt, ck, handler)

	ref := strings.TrimSpace(storedRef)
	for try := 0; try < 2; try++ {
		if ref == "" {
			pi, err := m.Gateway.CreatePaymentIntent(ctx, params)
			if err != nil {
				return Result{}, gatewayError(err)
			}
			result = "created"
			m.Logger.Info().Str("intent_id", pi.ID).Str("method", attempt.PaymentMethod).Msg("payment intent created")
			return buildResult(pi, true), nil
		}

		pi, err := m.Gateway.RetrievePaymentIntent(ctx, ref)
		switch {
		case err != nil:
			m.Logger.Warn().Err(err).Str("intent_id", ref).Msg("stored intent unavailable, discarding")
		case !pi.Reusable():
			m.Logger.Info().Str("intent_id", ref).Str("status", string(pi.Status)).Msg("stored intent in terminal status, discarding")
		case pi.ConfirmationMethod != params.ConfirmationMethod:
			m.Logger.Info().Str("intent_id", ref).Msg("confirmation method drifted, discarding")
		default:
			updated, err := m.Gateway.UpdatePaymentIntent(ctx, pi.ID, params)
			if err != nil {
				return Result{}, gatewayError(err)
			}
			result = "updated"
			return buildResult(updated, false), nil
		}
		ref = ""
	}
	return Result{}, errors.New("intent: reconcile loop exhausted")
}

func (m *Manager) desiredParams(ctx context.Context, attempt Attempt, ck Checkout, handler MethodHandler) stripe.PaymentIntentParams {
	total := ck.Total
	currency := ck.Currency
	var order *store.Order
	if ck.Order != nil {
		order = ck.Order
		total = order.Total
		currency = order.Currency
	}
	params := stripe.PaymentIntentParams{
		Amount:              common.MinorUnits(total, currency),
		Currency:            strings.ToLower(strings.TrimSpace(currency)),
		PaymentMethod:       attempt.PaymentMethodID,
		ConfirmationMethod:  handler.ConfirmationMethod(),
		PaymentMethodTypes:  []string{handler.PaymentMethodType()},
		InstallmentsEnabled: handler.InstallmentsAvailable(order),
	}
	if attempt.UserID != "" && m.Customers != nil {
		// Attached opportunistically; a missing mapping is not an error
		// on the charge path.
		if token, err := m.Customers.Resolve(ctx, attempt.UserID); err == nil && token != "" {
			params.Customer = token
		} else if err != nil {
			m.Logger.Warn().Err(err).Str("user_id", attempt.UserID).Msg("customer token resolution failed")
		}
	}
	return params
}

func buildResult(pi *stripe.PaymentIntent, created bool) Result {
	var offers []installments.Offer
	if pi.PaymentMethodOptions.Card.Installments.Enabled {
		offers = installments.FromPlans(pi.PaymentMethodOptions.Card.Installments.AvailablePlans, pi.Amount, pi.Currency)
	}
	return Result{Intent: pi, Installments: offers, Created: created}
}

func gatewayError(err error) *common.AppError {
	appErr := common.BusinessError(common.CodeRemoteGatewayError, err.Error())
	appErr.Err = err
	return appErr
}
