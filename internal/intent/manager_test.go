package intent_test

import (
	"context"
	"errors"
	"testing"

	"github.com/noah-isme/storefront-payments/internal/common"
	"github.com/noah-isme/storefront-payments/internal/intent"
	"github.com/noah-isme/storefront-payments/internal/store"
	"github.com/noah-isme/storefront-payments/internal/stripe"
)

type stubGateway struct {
	createFn   func(ctx context.Context, params stripe.PaymentIntentParams) (*stripe.PaymentIntent, error)
	retrieveFn func(ctx context.Context, id string) (*stripe.PaymentIntent, error)
	updateFn   func(ctx context.Context, id string, params stripe.PaymentIntentParams) (*stripe.PaymentIntent, error)
	setupFn    func(ctx context.Context, params stripe.SetupIntentParams) (*stripe.SetupIntent, error)

	creates   int
	retrieves int
	updates   int
	setups    int
}

func (g *stubGateway) CreatePaymentIntent(ctx context.Context, params stripe.PaymentIntentParams) (*stripe.PaymentIntent, error) {
	g.creates++
	return g.createFn(ctx, params)
}

func (g *stubGateway) RetrievePaymentIntent(ctx context.Context, id string) (*stripe.PaymentIntent, error) {
	g.retrieves++
	return g.retrieveFn(ctx, id)
}

func (g *stubGateway) UpdatePaymentIntent(ctx context.Context, id string, params stripe.PaymentIntentParams) (*stripe.PaymentIntent, error) {
	g.updates++
	return g.updateFn(ctx, id, params)
}

func (g *stubGateway) CreateSetupIntent(ctx context.Context, params stripe.SetupIntentParams) (*stripe.SetupIntent, error) {
	g.setups++
	return g.setupFn(ctx, params)
}

type stubResolver struct {
	token     string
	created   string
	resolves  int
	creations int
	createErr error
}

func (r *stubResolver) Resolve(ctx context.Context, userID string) (string, error) {
	r.resolves++
	return r.token, nil
}

func (r *stubResolver) Create(ctx context.Context, userID string) (string, error) {
	r.creations++
	if r.createErr != nil {
		return "", r.createErr
	}
	r.token = r.created
	return r.created, nil
}

func newManager(gw *stubGateway) *intent.Manager {
	return &intent.Manager{Gateway: gw, Handlers: intent.DefaultHandlers()}
}

func cardAttempt() intent.Attempt {
	return intent.Attempt{PaymentMethod: "stripe_card", PaymentMethodID: "pm_123"}
}

func TestReconcileUnknownMethod(t *testing.T) {
	gw := &stubGateway{}
	m := newManager(gw)

	_, err := m.Reconcile(context.Background(), intent.Attempt{PaymentMethod: "stripe_sofort"}, intent.Checkout{Total: 10, Currency: "usd"}, "")
	if err == nil {
		t.Fatal("expected error for unknown payment method")
	}
	appErr := common.AsAppError(err)
	if appErr.Code != common.CodeUnknownPaymentMethod {
		t.Fatalf("unexpected code: %s", appErr.Code)
	}
	if appErr.HTTPStatus != 200 {
		t.Fatalf("business errors report status 200, got %d", appErr.HTTPStatus)
	}
	if gw.creates != 0 || gw.retrieves != 0 {
		t.Fatal("no remote calls expected for unknown method")
	}
}

func TestReconcileCreatesWhenNoReference(t *testing.T) {
	var got stripe.PaymentIntentParams
	gw := &stubGateway{
		createFn: func(_ context.Context, params stripe.PaymentIntentParams) (*stripe.PaymentIntent, error) {
			got = params
			return &stripe.PaymentIntent{ID: "pi_new", Status: stripe.IntentStatusRequiresConfirmation,
				ConfirmationMethod: params.ConfirmationMethod, Amount: params.Amount, Currency: params.Currency}, nil
		},
	}
	m := newManager(gw)

	res, err := m.Reconcile(context.Background(), cardAttempt(), intent.Checkout{Total: 49.99, Currency: "USD"}, "")
	if err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	if !res.Created || res.Intent.ID != "pi_new" {
		t.Fatalf("expected fresh intent, got %+v", res)
	}
	if got.Amount != 4999 {
		t.Fatalf("amount not converted to minor units: %d", got.Amount)
	}
	if got.Currency != "usd" {
		t.Fatalf("currency not normalised: %q", got.Currency)
	}
	if got.ConfirmationMethod != stripe.ConfirmationMethodAutomatic {
		t.Fatalf("card attempts confirm automatically, got %q", got.ConfirmationMethod)
	}
	if got.PaymentMethod != "pm_123" {
		t.Fatalf("payment method not forwarded: %q", got.PaymentMethod)
	}
}

func TestReconcileZeroDecimalCurrency(t *testing.T) {
	gw := &stubGateway{
		createFn: func(_ context.Context, params stripe.PaymentIntentParams) (*stripe.PaymentIntent, error) {
			if params.Amount != 1200 {
				t.Fatalf("jpy amounts carry no fraction, got %d", params.Amount)
			}
			return &stripe.PaymentIntent{ID: "pi_jpy", Status: stripe.IntentStatusRequiresConfirmation}, nil
		},
	}
	m := newManager(gw)
	if _, err := m.Reconcile(context.Background(), cardAttempt(), intent.Checkout{Total: 1200, Currency: "JPY"}, ""); err != nil {
		t.Fatalf("reconcile: %v", err)
	}
}

func TestReconcileUpdatesOpenIntent(t *testing.T) {
	gw := &stubGateway{
		retrieveFn: func(_ context.Context, id string) (*stripe.PaymentIntent, error) {
			return &stripe.PaymentIntent{ID: id, Status: stripe.IntentStatusRequiresPaymentMethod,
				ConfirmationMethod: stripe.ConfirmationMethodAutomatic}, nil
		},
		updateFn: func(_ context.Context, id string, params stripe.PaymentIntentParams) (*stripe.PaymentIntent, error) {
			return &stripe.PaymentIntent{ID: id, Status: stripe.IntentStatusRequiresConfirmation,
				ConfirmationMethod: params.ConfirmationMethod, Amount: params.Amount}, nil
		},
	}
	m := newManager(gw)

	res, err := m.Reconcile(context.Background(), cardAttempt(), intent.Checkout{Total: 20, Currency: "usd"}, "pi_stored")
	if err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	if res.Created {
		t.Fatal("open intent must be reused, not recreated")
	}
	if res.Intent.ID != "pi_stored" {
		t.Fatalf("expected stored intent to survive, got %s", res.Intent.ID)
	}
	if gw.creates != 0 || gw.updates != 1 {
		t.Fatalf("expected update only, creates=%d updates=%d", gw.creates, gw.updates)
	}
}

func TestReconcileDiscardsTerminalIntent(t *testing.T) {
	for _, status := range []stripe.IntentStatus{stripe.IntentStatusSucceeded, stripe.IntentStatusRequiresCapture} {
		gw := &stubGateway{
			retrieveFn: func(_ context.Context, id string) (*stripe.PaymentIntent, error) {
				return &stripe.PaymentIntent{ID: id, Status: status,
					ConfirmationMethod: stripe.ConfirmationMethodAutomatic}, nil
			},
			createFn: func(_ context.Context, params stripe.PaymentIntentParams) (*stripe.PaymentIntent, error) {
				return &stripe.PaymentIntent{ID: "pi_fresh", Status: stripe.IntentStatusRequiresConfirmation}, nil
			},
		}
		m := newManager(gw)

		res, err := m.Reconcile(context.Background(), cardAttempt(), intent.Checkout{Total: 20, Currency: "usd"}, "pi_done")
		if err != nil {
			t.Fatalf("status %s: reconcile: %v", status, err)
		}
		if !res.Created || res.Intent.ID != "pi_fresh" {
			t.Fatalf("status %s: expected fresh intent, got %+v", status, res)
		}
		if gw.updates != 0 {
			t.Fatalf("status %s: terminal intents must never be updated", status)
		}
	}
}

func TestReconcileDiscardsOnConfirmationDrift(t *testing.T) {
	gw := &stubGateway{
		retrieveFn: func(_ context.Context, id string) (*stripe.PaymentIntent, error) {
			return &stripe.PaymentIntent{ID: id, Status: stripe.IntentStatusRequiresPaymentMethod,
				ConfirmationMethod: stripe.ConfirmationMethodAutomatic}, nil
		},
		createFn: func(_ context.Context, params stripe.PaymentIntentParams) (*stripe.PaymentIntent, error) {
			return &stripe.PaymentIntent{ID: "pi_manual", Status: stripe.IntentStatusRequiresConfirmation,
				ConfirmationMethod: params.ConfirmationMethod}, nil
		},
	}
	m := newManager(gw)

	// ACH confirms manually; the stored automatic intent cannot be morphed.
	res, err := m.Reconcile(context.Background(), intent.Attempt{PaymentMethod: "stripe_ach", PaymentMethodID: "pm_ach"},
		intent.Checkout{Total: 20, Currency: "usd"}, "pi_auto")
	if err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	if !res.Created {
		t.Fatal("drifted confirmation method requires a fresh intent")
	}
	if res.Intent.ConfirmationMethod != stripe.ConfirmationMethodManual {
		t.Fatalf("unexpected confirmation method: %q", res.Intent.ConfirmationMethod)
	}
	if gw.updates != 0 {
		t.Fatal("drifted intent must not be updated in place")
	}
}

func TestReconcileRecoversFromMissingStoredIntent(t *testing.T) {
	gw := &stubGateway{
		retrieveFn: func(_ context.Context, id string) (*stripe.PaymentIntent, error) {
			return nil, &stripe.Error{Type: "invalid_request_error", Code: "resource_missing", Message: "No such payment_intent"}
		},
		createFn: func(_ context.Context, params stripe.PaymentIntentParams) (*stripe.PaymentIntent, error) {
			return &stripe.PaymentIntent{ID: "pi_recovered", Status: stripe.IntentStatusRequiresConfirmation}, nil
		},
	}
	m := newManager(gw)

	res, err := m.Reconcile(context.Background(), cardAttempt(), intent.Checkout{Total: 20, Currency: "usd"}, "pi_gone")
	if err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	if !res.Created || res.Intent.ID != "pi_recovered" {
		t.Fatalf("expected recovery via create, got %+v", res)
	}
}

func TestReconcileCreateFailureIsBusinessError(t *testing.T) {
	gw := &stubGateway{
		createFn: func(_ context.Context, params stripe.PaymentIntentParams) (*stripe.PaymentIntent, error) {
			return nil, &stripe.Error{Type: "card_error", Code: "card_declined", Message: "Your card was declined."}
		},
	}
	m := newManager(gw)

	_, err := m.Reconcile(context.Background(), cardAttempt(), intent.Checkout{Total: 20, Currency: "usd"}, "")
	appErr := common.AsAppError(err)
	if appErr.Code != common.CodeRemoteGatewayError {
		t.Fatalf("unexpected code: %s", appErr.Code)
	}
	if appErr.HTTPStatus != 200 {
		t.Fatalf("gateway failures are business errors, got status %d", appErr.HTTPStatus)
	}
	var apiErr *stripe.Error
	if !errors.As(err, &apiErr) {
		t.Fatal("underlying gateway error must stay inspectable")
	}
}

func TestReconcileUsesOrderAmount(t *testing.T) {
	gw := &stubGateway{
		createFn: func(_ context.Context, params stripe.PaymentIntentParams) (*stripe.PaymentIntent, error) {
			if params.Amount != 15000 || params.Currency != "mxn" {
				t.Fatalf("order must drive amount and currency, got %d %s", params.Amount, params.Currency)
			}
			if !params.InstallmentsEnabled {
				t.Fatal("mxn card orders should request installments")
			}
			return &stripe.PaymentIntent{ID: "pi_order", Status: stripe.IntentStatusRequiresConfirmation}, nil
		},
	}
	m := newManager(gw)

	order := &store.Order{Total: 150, Currency: "MXN"}
	if _, err := m.Reconcile(context.Background(), cardAttempt(), intent.Checkout{Total: 1, Currency: "usd", Order: order}, ""); err != nil {
		t.Fatalf("reconcile: %v", err)
	}
}

func TestReconcileDerivesInstallmentOffers(t *testing.T) {
	gw := &stubGateway{
		createFn: func(_ context.Context, params stripe.PaymentIntentParams) (*stripe.PaymentIntent, error) {
			return &stripe.PaymentIntent{
				ID:       "pi_inst",
				Status:   stripe.IntentStatusRequiresConfirmation,
				Amount:   10000,
				Currency: "mxn",
				PaymentMethodOptions: stripe.PaymentMethodOptions{Card: stripe.CardOptions{
					Installments: stripe.CardInstallments{
						Enabled: true,
						AvailablePlans: []stripe.InstallmentPlan{
							{Count: 3, Interval: "month", Type: "fixed_count"},
							{Count: 6, Interval: "month", Type: "fixed_count"},
						},
					},
				}},
			}, nil
		},
	}
	m := newManager(gw)

	res, err := m.Reconcile(context.Background(), cardAttempt(), intent.Checkout{Total: 100, Currency: "mxn"}, "")
	if err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	if len(res.Installments) != 2 {
		t.Fatalf("expected 2 offers, got %d", len(res.Installments))
	}
	if res.Installments[0].InstallmentAmount != 3334 {
		t.Fatalf("per-installment amount must round up, got %d", res.Installments[0].InstallmentAmount)
	}
}

func TestReconcileAttachesResolvedCustomer(t *testing.T) {
	gw := &stubGateway{
		createFn: func(_ context.Context, params stripe.PaymentIntentParams) (*stripe.PaymentIntent, error) {
			if params.Customer != "cus_42" {
				t.Fatalf("expected resolved customer token, got %q", params.Customer)
			}
			return &stripe.PaymentIntent{ID: "pi_cus", Status: stripe.IntentStatusRequiresConfirmation}, nil
		},
	}
	m := newManager(gw)
	m.Customers = &stubResolver{token: "cus_42"}

	attempt := cardAttempt()
	attempt.UserID = "7b0c2a43-4c1e-4f4b-93dd-0f0cf26b4e10"
	if _, err := m.Reconcile(context.Background(), attempt, intent.Checkout{Total: 20, Currency: "usd"}, ""); err != nil {
		t.Fatalf("reconcile: %v", err)
	}
}
