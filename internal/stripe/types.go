package stripe

// IntentStatus enumerates the payment intent lifecycle states.
type IntentStatus string

const (
	IntentStatusRequiresPaymentMethod IntentStatus = "requires_payment_method"
	IntentStatusRequiresConfirmation  IntentStatus = "requires_confirmation"
	IntentStatusRequiresAction        IntentStatus = "requires_action"
	IntentStatusRequiresCapture       IntentStatus = "requires_capture"
	IntentStatusProcessing            IntentStatus = "processing"
	IntentStatusSucceeded             IntentStatus = "succeeded"
	IntentStatusCanceled              IntentStatus = "canceled"
)

// ConfirmationMethod states whether the client or the provider triggers the
// final confirmation step of an intent. Immutable once an intent is created.
type ConfirmationMethod string

const (
	ConfirmationMethodAutomatic ConfirmationMethod = "automatic"
	ConfirmationMethodManual    ConfirmationMethod = "manual"
)

// InstallmentPlan describes one provider-offered schedule for splitting a charge.
type InstallmentPlan struct {
	Count    int64  `json:"count"`
	Interval string `json:"interval"`
	Type     string `json:"type"`
}

// CardInstallments is the installments sub-object nested under card options.
type CardInstallments struct {
	Enabled        bool              `json:"enabled"`
	AvailablePlans []InstallmentPlan `json:"available_plans"`
}

// CardOptions holds card-specific payment method options.
type CardOptions struct {
	Installments CardInstallments `json:"installments"`
}

// PaymentMethodOptions mirrors the nested payment_method_options structure.
type PaymentMethodOptions struct {
	Card CardOptions `json:"card"`
}

// PaymentIntent is the provider-side resource being reconciled.
type PaymentIntent struct {
	ID                   string               `json:"id"`
	Object               string               `json:"object"`
	Amount               int64                `json:"amount"`
	ClientSecret         string               `json:"client_secret"`
	ConfirmationMethod   ConfirmationMethod   `json:"confirmation_method"`
	Currency             string               `json:"currency"`
	Customer             string               `json:"customer"`
	Livemode             bool                 `json:"livemode"`
	PaymentMethod        string               `json:"payment_method"`
	PaymentMethodTypes   []string             `json:"payment_method_types"`
	PaymentMethodOptions PaymentMethodOptions `json:"payment_method_options"`
	Status               IntentStatus         `json:"status"`
	Created              int64                `json:"created"`
}

// Reusable reports whether the intent may still be updated for a new
// checkout attempt. Intents that captured (or can capture) funds are not.
func (pi *PaymentIntent) Reusable() bool {
	if pi == nil {
		return false
	}
	return pi.Status != IntentStatusSucceeded && pi.Status != IntentStatusRequiresCapture
}

// Sanitized returns a copy safe to persist on an order: the client secret is
// stripped so the stored snapshot cannot authorise intent actions.
func (pi PaymentIntent) Sanitized() PaymentIntent {
	pi.ClientSecret = ""
	return pi
}

// SetupIntent represents a saved-payment-method setup resource.
type SetupIntent struct {
	ID                 string       `json:"id"`
	Object             string       `json:"object"`
	ClientSecret       string       `json:"client_secret"`
	Customer           string       `json:"customer"`
	Livemode           bool         `json:"livemode"`
	PaymentMethodTypes []string     `json:"payment_method_types"`
	Status             IntentStatus `json:"status"`
	Usage              string       `json:"usage"`
}

// Customer is the remote customer-token resource.
type Customer struct {
	ID       string `json:"id"`
	Object   string `json:"object"`
	Email    string `json:"email"`
	Name     string `json:"name"`
	Livemode bool   `json:"livemode"`
}
