// Package webhook authenticates, deduplicates, and routes asynchronous
// provider notifications. No state persists past one invocation.
package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/noah-isme/storefront-payments/internal/common"
	"github.com/noah-isme/storefront-payments/internal/config"
	"github.com/noah-isme/storefront-payments/internal/obs"
	"github.com/noah-isme/storefront-payments/internal/stripe"
)

// DispatchResult summarises one ingestion.
type DispatchResult struct {
	EventType string
	Handled   int
	Skipped   bool
}

// Gate verifies inbound notifications and dispatches them to the registry.
type Gate struct {
	Live      config.WebhookEndpoint
	Test      config.WebhookEndpoint
	Tolerance time.Duration
	Registry  *Registry
	Replay    *redis.Client
	ReplayTTL time.Duration
	Logger    zerolog.Logger
	Now       func() time.Time
}

// Ingest runs one notification through the gate:
// parse, resolve mode, dedupe against the configured webhook identity,
// verify the signature, dispatch. Identity mismatches are accepted silently
// so that multiple endpoints registered on one provider account do not error
// against each other.
func (g *Gate) Ingest(ctx context.Context, body []byte, sigHeader string) (DispatchResult, error) {
	ctx, span := otel.Tracer("webhook.Gate").Start(ctx, "Gate.Ingest")
	defer span.End()

	mode := "unknown"
	result := "error"
	defer func() {
		span.SetAttributes(
			attribute.String("webhook.mode", mode),
			attribute.String("webhook.result", result),
		)
		if obs.WebhookTotal != nil {
			obs.WebhookTotal.WithLabelValues(mode, result).Inc()
		}
	}()

	var event Event
	if err := json.Unmarshal(body, &event); err != nil || event.Type == "" {
		result = "malformed"
		if err == nil {
			err = errors.New("webhook: payload missing event type")
		}
		g.Logger.Info().Err(err).Msg("malformed webhook payload")
		return DispatchResult{}, common.NewAppError(common.CodeMalformedPayload, "invalid request payload", http.StatusBadRequest, err)
	}
	mode = event.Mode()
	endpoint := g.endpointFor(event.Livemode)

	if endpoint.WebhookID != "" {
		if tag := event.WebhookID(); tag != "" && tag != endpoint.WebhookID {
			// Another endpoint on the same account; not ours, not an error.
			result = "skipped"
			g.Logger.Debug().Str("event_type", event.Type).Str("webhook_id", tag).Msg("webhook identity mismatch, ignoring")
			return DispatchResult{EventType: event.Type, Skipped: true}, nil
		}
	}

	if err := stripe.VerifySignature(body, sigHeader, endpoint.SigningSecret, g.Tolerance, g.now()); err != nil {
		result = "signature_invalid"
		g.Logger.Error().Err(err).Str("mode", mode).Msg("webhook signature verification failed, verify that your webhook secret is correct")
		return DispatchResult{}, common.NewAppError(common.CodeSignatureInvalid,
			"invalid signature received, verify that your webhook secret is correct",
			http.StatusUnauthorized, err)
	}

	if dup, err := g.seenBefore(ctx, mode, body); err != nil {
		g.Logger.Warn().Err(err).Msg("webhook replay guard unavailable")
	} else if dup {
		result = "duplicate"
		g.Logger.Info().Str("event_type", event.Type).Msg("duplicate webhook delivery, ignoring")
		return DispatchResult{EventType: event.Type, Skipped: true}, nil
	}

	g.Logger.Info().Str("event_type", event.Type).Str("mode", mode).Msg("webhook notification received")

	handlers := g.Registry.handlers(event.DispatchKey())
	var handlerErrs []error
	for _, h := range handlers {
		if err := h(ctx, event.Data.Object, &event); err != nil {
			// Independent handlers still run; the failure propagates after.
			handlerErrs = append(handlerErrs, err)
			g.Logger.Error().Err(err).Str("event_type", event.Type).Msg("webhook handler failed")
		}
	}
	if len(handlerErrs) > 0 {
		result = "handler_error"
		// Release the replay key so the provider's retry of this delivery is
		// dispatched again instead of dropped as a duplicate.
		g.clearSeen(ctx, mode, body)
		return DispatchResult{EventType: event.Type, Handled: len(handlers)},
			common.NewAppError(common.CodeHandlerError, "error processing webhook notification",
				http.StatusBadRequest, errors.Join(handlerErrs...))
	}

	result = "dispatched"
	return DispatchResult{EventType: event.Type, Handled: len(handlers)}, nil
}

func (g *Gate) endpointFor(live bool) config.WebhookEndpoint {
	if live {
		return g.Live
	}
	return g.Test
}

func (g *Gate) seenBefore(ctx context.Context, mode string, body []byte) (bool, error) {
	if g.Replay == nil || g.ReplayTTL <= 0 {
		return false, nil
	}
	ok, err := g.Replay.SetNX(ctx, g.replayKey(mode, body), "1", g.ReplayTTL).Result()
	if err != nil {
		return false, err
	}
	return !ok, nil
}

func (g *Gate) clearSeen(ctx context.Context, mode string, body []byte) {
	if g.Replay == nil || g.ReplayTTL <= 0 {
		return
	}
	if err := g.Replay.Del(ctx, g.replayKey(mode, body)).Err(); err != nil {
		g.Logger.Warn().Err(err).Msg("webhook replay guard release failed")
	}
}

func (g *Gate) replayKey(mode string, body []byte) string {
	return fmt.Sprintf("wh:%s:%s", mode, common.Sha256Hex(string(body)))
}

func (g *Gate) now() time.Time {
	if g.Now != nil {
		return g.Now()
	}
	return time.Now()
}
