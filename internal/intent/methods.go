package intent

import (
	"strings"

	"github.com/noah-isme/storefront-payments/internal/store"
	"github.com/noah-isme/storefront-payments/internal/stripe"
)

// MethodHandler describes the capabilities of one supported payment method.
// Handlers form a closed set resolved at startup; request-supplied method
// identifiers never index into anything mutable.
type MethodHandler interface {
	ID() string
	PaymentMethodType() string
	ConfirmationMethod() stripe.ConfirmationMethod
	InstallmentsAvailable(order *store.Order) bool
}

// CardHandler handles card payments, with installments offered for orders in
// eligible currencies.
type CardHandler struct {
	InstallmentCurrencies []string
}

func (CardHandler) ID() string                { return "stripe_card" }
func (CardHandler) PaymentMethodType() string { return "card" }

func (CardHandler) ConfirmationMethod() stripe.ConfirmationMethod {
	return stripe.ConfirmationMethodAutomatic
}

// InstallmentsAvailable is false for cart-only attempts; installment plans
// are only offered once an order with an eligible currency exists.
func (h CardHandler) InstallmentsAvailable(order *store.Order) bool {
	if order == nil {
		return false
	}
	currency := strings.ToLower(strings.TrimSpace(order.Currency))
	for _, c := range h.InstallmentCurrencies {
		if strings.ToLower(c) == currency {
			return true
		}
	}
	return false
}

// SEPADebitHandler handles SEPA direct debit payments.
type SEPADebitHandler struct{}

func (SEPADebitHandler) ID() string                { return "stripe_sepa" }
func (SEPADebitHandler) PaymentMethodType() string { return "sepa_debit" }

func (SEPADebitHandler) ConfirmationMethod() stripe.ConfirmationMethod {
	return stripe.ConfirmationMethodAutomatic
}

func (SEPADebitHandler) InstallmentsAvailable(*store.Order) bool { return false }

// ACHDebitHandler handles US bank account debits. Confirmation is manual:
// the server triggers the final confirmation after bank verification.
type ACHDebitHandler struct{}

func (ACHDebitHandler) ID() string                { return "stripe_ach" }
func (ACHDebitHandler) PaymentMethodType() string { return "us_bank_account" }

func (ACHDebitHandler) ConfirmationMethod() stripe.ConfirmationMethod {
	return stripe.ConfirmationMethodManual
}

func (ACHDebitHandler) InstallmentsAvailable(*store.Order) bool { return false }

// DefaultHandlers builds the closed identifier-to-handler mapping used by the
// manager. Built once during process initialisation and read-only after.
func DefaultHandlers() map[string]MethodHandler {
	handlers := []MethodHandler{
		CardHandler{InstallmentCurrencies: []string{"mxn"}},
		SEPADebitHandler{},
		ACHDebitHandler{},
	}
	m := make(map[string]MethodHandler, len(handlers))
	for _, h := range handlers {
		m[h.ID()] = h
	}
	return m
}
