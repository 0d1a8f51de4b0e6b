package stripe

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"time"

	"github.com/go-resty/resty/v2"
)

const (
	defaultBaseURL = "https://api.stripe.com"
	apiVersion     = "2023-10-16"
)

// Client is a thin HTTP client for the Stripe REST API. Requests are
// form-encoded, responses are JSON.
type Client struct {
	http *resty.Client
}

// Option customises the client.
type Option func(*Client)

// WithBaseURL points the client at an alternate API host.
func WithBaseURL(base string) Option {
	return func(c *Client) {
		c.http.SetBaseURL(base)
	}
}

// WithTimeout bounds each API round trip.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.http.SetTimeout(d)
	}
}

// NewClient builds a client authenticated with the given secret key.
func NewClient(apiKey string, opts ...Option) *Client {
	rc := resty.New().
		SetBaseURL(defaultBaseURL).
		SetAuthToken(apiKey).
		SetTimeout(30 * time.Second).
		SetHeader("Stripe-Version", apiVersion)
	c := &Client{http: rc}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// CreatePaymentIntent opens a new payment intent with the desired parameters.
func (c *Client) CreatePaymentIntent(ctx context.Context, params PaymentIntentParams) (*PaymentIntent, error) {
	var pi PaymentIntent
	if err := c.post(ctx, "/v1/payment_intents", params.Values(true), &pi); err != nil {
		return nil, err
	}
	return &pi, nil
}

// RetrievePaymentIntent fetches the current state of a payment intent.
func (c *Client) RetrievePaymentIntent(ctx context.Context, id string) (*PaymentIntent, error) {
	var pi PaymentIntent
	if err := c.get(ctx, "/v1/payment_intents/"+url.PathEscape(id), &pi); err != nil {
		return nil, err
	}
	return &pi, nil
}

// UpdatePaymentIntent updates an existing intent in place. The confirmation
// method is never sent; Stripe rejects changes to it after creation.
func (c *Client) UpdatePaymentIntent(ctx context.Context, id string, params PaymentIntentParams) (*PaymentIntent, error) {
	var pi PaymentIntent
	if err := c.post(ctx, "/v1/payment_intents/"+url.PathEscape(id), params.Values(false), &pi); err != nil {
		return nil, err
	}
	return &pi, nil
}

// CreateSetupIntent opens a setup intent used to save a payment method.
func (c *Client) CreateSetupIntent(ctx context.Context, params SetupIntentParams) (*SetupIntent, error) {
	var si SetupIntent
	if err := c.post(ctx, "/v1/setup_intents", params.Values(), &si); err != nil {
		return nil, err
	}
	return &si, nil
}

// CreateCustomer creates a remote customer token for a local buyer identity.
func (c *Client) CreateCustomer(ctx context.Context, params CustomerParams) (*Customer, error) {
	var cust Customer
	if err := c.post(ctx, "/v1/customers", params.Values(), &cust); err != nil {
		return nil, err
	}
	return &cust, nil
}

func (c *Client) post(ctx context.Context, path string, form url.Values, out any) error {
	resp, err := c.http.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/x-www-form-urlencoded").
		SetBody(form.Encode()).
		Post(path)
	return c.decode(resp, err, out)
}

func (c *Client) get(ctx context.Context, path string, out any) error {
	resp, err := c.http.R().SetContext(ctx).Get(path)
	return c.decode(resp, err, out)
}

func (c *Client) decode(resp *resty.Response, err error, out any) error {
	if err != nil {
		return fmt.Errorf("stripe: request failed: %w", err)
	}
	if resp.IsError() {
		var body errorResponse
		if jsonErr := json.Unmarshal(resp.Body(), &body); jsonErr == nil && body.Error != nil {
			body.Error.HTTPStatus = resp.StatusCode()
			return body.Error
		}
		return &Error{Type: "api_error", Message: fmt.Sprintf("stripe: unexpected status %d", resp.StatusCode()), HTTPStatus: resp.StatusCode()}
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(resp.Body(), out); err != nil {
		return fmt.Errorf("stripe: decode response: %w", err)
	}
	return nil
}
