package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	redis "github.com/redis/go-redis/v9"
)

// Sessions keeps ephemeral intent references for guest carts in Redis. One
// active reference per session and intent kind; writes supersede.
type Sessions struct {
	R   *redis.Client
	TTL time.Duration
}

const (
	kindPaymentIntent = "payment_intent"
	kindSetupIntent   = "setup_intent"
	kindCart          = "cart"
)

// ErrNoCart is returned when a session has no active cart.
var ErrNoCart = errors.New("store: no active cart for session")

// Cart is the session cart summary written by the cart service.
type Cart struct {
	Total    float64 `json:"total"`
	Currency string  `json:"currency"`
}

func sessionKey(sessionID, kind string) string {
	return fmt.Sprintf("sess:%s:%s", sessionID, kind)
}

func (s Sessions) get(ctx context.Context, sessionID, kind string) (string, error) {
	val, err := s.R.Get(ctx, sessionKey(sessionID, kind)).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("store: session get: %w", err)
	}
	return val, nil
}

func (s Sessions) put(ctx context.Context, sessionID, kind, intentID string) error {
	if err := s.R.Set(ctx, sessionKey(sessionID, kind), intentID, s.ttl()).Err(); err != nil {
		return fmt.Errorf("store: session put: %w", err)
	}
	return nil
}

func (s Sessions) discard(ctx context.Context, sessionID, kind string) error {
	if err := s.R.Del(ctx, sessionKey(sessionID, kind)).Err(); err != nil {
		return fmt.Errorf("store: session discard: %w", err)
	}
	return nil
}

func (s Sessions) ttl() time.Duration {
	if s.TTL > 0 {
		return s.TTL
	}
	return 24 * time.Hour
}

// PaymentIntentRef returns the stored payment intent reference, "" when none.
func (s Sessions) PaymentIntentRef(ctx context.Context, sessionID string) (string, error) {
	return s.get(ctx, sessionID, kindPaymentIntent)
}

// SavePaymentIntentRef stores the payment intent reference for the session.
func (s Sessions) SavePaymentIntentRef(ctx context.Context, sessionID, intentID string) error {
	return s.put(ctx, sessionID, kindPaymentIntent, intentID)
}

// DiscardPaymentIntentRef removes a superseded payment intent reference.
func (s Sessions) DiscardPaymentIntentRef(ctx context.Context, sessionID string) error {
	return s.discard(ctx, sessionID, kindPaymentIntent)
}

// CartTotal returns the active cart total and currency for the session.
func (s Sessions) CartTotal(ctx context.Context, sessionID string) (float64, string, error) {
	raw, err := s.get(ctx, sessionID, kindCart)
	if err != nil {
		return 0, "", err
	}
	if raw == "" {
		return 0, "", ErrNoCart
	}
	var cart Cart
	if err := json.Unmarshal([]byte(raw), &cart); err != nil {
		return 0, "", fmt.Errorf("store: decode cart: %w", err)
	}
	return cart.Total, cart.Currency, nil
}

// SaveCart writes the session cart summary. Exposed for the cart service
// adapter and for tests.
func (s Sessions) SaveCart(ctx context.Context, sessionID string, cart Cart) error {
	raw, err := json.Marshal(cart)
	if err != nil {
		return fmt.Errorf("store: encode cart: %w", err)
	}
	return s.put(ctx, sessionID, kindCart, string(raw))
}

// SetupIntentRef returns the stored setup intent reference, "" when none.
func (s Sessions) SetupIntentRef(ctx context.Context, sessionID string) (string, error) {
	return s.get(ctx, sessionID, kindSetupIntent)
}

// SaveSetupIntentRef stores the setup intent reference for the session.
func (s Sessions) SaveSetupIntentRef(ctx context.Context, sessionID, intentID string) error {
	return s.put(ctx, sessionID, kindSetupIntent, intentID)
}
