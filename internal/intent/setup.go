package intent

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/noah-isme/storefront-payments/internal/common"
	"github.com/noah-isme/storefront-payments/internal/obs"
	"github.com/noah-isme/storefront-payments/internal/stripe"
)

// CreateSetupIntent opens a setup intent used to save the buyer's payment
// method for future off-session use. Unlike Reconcile it always creates.
// When the provider reports the attached customer token no longer exists, a
// replacement token is created, persisted, and the creation retried exactly
// once; a second failure propagates.
func (m *Manager) CreateSetupIntent(ctx context.Context, attempt Attempt) (*stripe.SetupIntent, error) {
	ctx, span := otel.Tracer("intent.Manager").Start(ctx, "Manager.CreateSetupIntent")
	defer span.End()

	result := "error"
	defer func() {
		span.SetAttributes(
			attribute.String("intent.method", attempt.PaymentMethod),
			attribute.String("intent.result", result),
		)
		if obs.SetupIntentTotal != nil {
			obs.SetupIntentTotal.WithLabelValues(attempt.PaymentMethod, result).Inc()
		}
	}()

	handler, ok := m.Handlers[attempt.PaymentMethod]
	if !ok {
		return nil, common.BusinessError(common.CodeUnknownPaymentMethod,
			fmt.Sprintf("payment method %q is not supported", attempt.PaymentMethod))
	}

	params := stripe.SetupIntentParams{
		Usage:              "off_session",
		PaymentMethodTypes: []string{handler.PaymentMethodType()},
	}
	if attempt.UserID != "" && m.Customers != nil {
		token, err := m.Customers.Resolve(ctx, attempt.UserID)
		if err != nil {
			m.Logger.Warn().Err(err).Str("user_id", attempt.UserID).Msg("customer token resolution failed")
		} else if token != "" {
			params.Customer = token
		}
	}

	si, err := m.Gateway.CreateSetupIntent(ctx, params)
	if err != nil && stripe.IsCustomerMissing(err) && attempt.UserID != "" && m.Customers != nil {
		m.Logger.Info().Str("user_id", attempt.UserID).Msg("customer token missing remotely, recreating")
		token, createErr := m.Customers.Create(ctx, attempt.UserID)
		if createErr != nil {
			return nil, gatewayError(err)
		}
		params.Customer = token
		si, err = m.Gateway.CreateSetupIntent(ctx, params)
	}
	if err != nil {
		return nil, gatewayError(err)
	}
	result = "created"
	return si, nil
}
