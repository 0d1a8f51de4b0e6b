package stripe

import (
	"net/url"
	"strconv"
	"strings"
)

// PaymentIntentParams captures the desired parameters for a payment intent.
type PaymentIntentParams struct {
	Amount              int64
	Currency            string
	Customer            string
	PaymentMethod       string
	ConfirmationMethod  ConfirmationMethod
	PaymentMethodTypes  []string
	InstallmentsEnabled bool
}

// Values encodes the parameters as a Stripe form body. Confirmation method is
// immutable after creation, so updates encode without it.
func (p PaymentIntentParams) Values(includeConfirmationMethod bool) url.Values {
	v := url.Values{}
	if p.Amount > 0 {
		v.Set("amount", strconv.FormatInt(p.Amount, 10))
	}
	if p.Currency != "" {
		v.Set("currency", strings.ToLower(p.Currency))
	}
	if p.Customer != "" {
		v.Set("customer", p.Customer)
	}
	if p.PaymentMethod != "" {
		v.Set("payment_method", p.PaymentMethod)
	}
	if includeConfirmationMethod && p.ConfirmationMethod != "" {
		v.Set("confirmation_method", string(p.ConfirmationMethod))
	}
	for i, t := range p.PaymentMethodTypes {
		v.Set("payment_method_types["+strconv.Itoa(i)+"]", t)
	}
	v.Set("payment_method_options[card][installments][enabled]", strconv.FormatBool(p.InstallmentsEnabled))
	return v
}

// SetupIntentParams captures the parameters for a setup intent.
type SetupIntentParams struct {
	Customer           string
	Usage              string
	PaymentMethodTypes []string
}

// Values encodes the parameters as a Stripe form body.
func (p SetupIntentParams) Values() url.Values {
	v := url.Values{}
	if p.Customer != "" {
		v.Set("customer", p.Customer)
	}
	if p.Usage != "" {
		v.Set("usage", p.Usage)
	}
	for i, t := range p.PaymentMethodTypes {
		v.Set("payment_method_types["+strconv.Itoa(i)+"]", t)
	}
	return v
}

// CustomerParams captures the parameters for creating a customer token.
type CustomerParams struct {
	Email string
	Name  string
}

// Values encodes the parameters as a Stripe form body.
func (p CustomerParams) Values() url.Values {
	v := url.Values{}
	if p.Email != "" {
		v.Set("email", p.Email)
	}
	if p.Name != "" {
		v.Set("name", p.Name)
	}
	return v
}
