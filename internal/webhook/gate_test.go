package webhook_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	redis "github.com/redis/go-redis/v9"

	"github.com/noah-isme/storefront-payments/internal/common"
	"github.com/noah-isme/storefront-payments/internal/config"
	"github.com/noah-isme/storefront-payments/internal/stripe"
	"github.com/noah-isme/storefront-payments/internal/webhook"
)

const testSecret = "whsec_test_secret"

func eventBody(eventType string, livemode bool, object map[string]any) []byte {
	raw, _ := json.Marshal(object)
	body, _ := json.Marshal(map[string]any{
		"id":       "evt_1",
		"type":     eventType,
		"livemode": livemode,
		"created":  time.Now().Unix(),
		"data":     map[string]any{"object": json.RawMessage(raw)},
	})
	return body
}

func signTest(body []byte) string {
	return stripe.SignPayload(body, testSecret, time.Now())
}

func newGate(reg *webhook.Registry) *webhook.Gate {
	return &webhook.Gate{
		Live:     config.WebhookEndpoint{SigningSecret: "whsec_live"},
		Test:     config.WebhookEndpoint{SigningSecret: testSecret},
		Registry: reg,
	}
}

func TestIngestMalformedPayload(t *testing.T) {
	g := newGate(webhook.NewRegistry())

	for _, body := range [][]byte{[]byte("not json"), []byte(`{"id":"evt_1"}`)} {
		_, err := g.Ingest(context.Background(), body, "t=1,v1=00")
		if err == nil {
			t.Fatalf("expected error for body %q", body)
		}
		appErr := common.AsAppError(err)
		if appErr.Code != common.CodeMalformedPayload {
			t.Fatalf("unexpected code: %s", appErr.Code)
		}
		if appErr.HTTPStatus != http.StatusBadRequest {
			t.Fatalf("unexpected status: %d", appErr.HTTPStatus)
		}
	}
}

func TestIngestSignatureRequired(t *testing.T) {
	g := newGate(webhook.NewRegistry())
	body := eventBody("payment_intent.succeeded", false, map[string]any{"id": "pi_1"})

	_, err := g.Ingest(context.Background(), body, "")
	appErr := common.AsAppError(err)
	if appErr.Code != common.CodeSignatureInvalid {
		t.Fatalf("unexpected code: %s", appErr.Code)
	}
	if appErr.HTTPStatus != http.StatusUnauthorized {
		t.Fatalf("signature failures are the one 401, got %d", appErr.HTTPStatus)
	}
}

func TestIngestRejectsWrongSecret(t *testing.T) {
	g := newGate(webhook.NewRegistry())
	body := eventBody("payment_intent.succeeded", false, map[string]any{"id": "pi_1"})
	header := stripe.SignPayload(body, "whsec_wrong", time.Now())

	_, err := g.Ingest(context.Background(), body, header)
	if common.AsAppError(err).Code != common.CodeSignatureInvalid {
		t.Fatalf("unexpected code: %s", common.AsAppError(err).Code)
	}
}

func TestIngestRejectsStaleSignature(t *testing.T) {
	g := newGate(webhook.NewRegistry())
	g.Tolerance = 600 * time.Second
	body := eventBody("payment_intent.succeeded", false, map[string]any{"id": "pi_1"})
	header := stripe.SignPayload(body, testSecret, time.Now().Add(-time.Hour))

	_, err := g.Ingest(context.Background(), body, header)
	if !errors.Is(err, stripe.ErrSignatureTooOld) {
		t.Fatalf("expected stale signature rejection, got %v", err)
	}
}

func TestIngestDispatchesByNormalisedType(t *testing.T) {
	var seen []string
	reg := webhook.NewRegistry().
		On("payment_intent.succeeded", func(_ context.Context, object json.RawMessage, ev *webhook.Event) error {
			seen = append(seen, ev.Type)
			return nil
		})
	g := newGate(reg)

	body := eventBody("payment_intent.succeeded", false, map[string]any{"id": "pi_1"})
	res, err := g.Ingest(context.Background(), body, stripe.SignPayload(body, testSecret, time.Now()))
	if err != nil {
		t.Fatalf("ingest: %v", err)
	}
	if res.Handled != 1 || len(seen) != 1 {
		t.Fatalf("expected one handler run, got %+v", res)
	}
	if seen[0] != "payment_intent.succeeded" {
		t.Fatalf("handler saw wrong event: %s", seen[0])
	}
}

func TestIngestUnroutedEventSucceeds(t *testing.T) {
	g := newGate(webhook.NewRegistry())
	body := eventBody("charge.refunded", false, map[string]any{"id": "ch_1"})

	res, err := g.Ingest(context.Background(), body, stripe.SignPayload(body, testSecret, time.Now()))
	if err != nil {
		t.Fatalf("unrouted events are accepted: %v", err)
	}
	if res.Handled != 0 {
		t.Fatalf("nothing should run, got %d", res.Handled)
	}
}

func TestIngestSkipsForeignWebhookIdentity(t *testing.T) {
	called := false
	reg := webhook.NewRegistry().
		On("payment_intent.succeeded", func(context.Context, json.RawMessage, *webhook.Event) error {
			called = true
			return nil
		})
	g := newGate(reg)
	g.Test.WebhookID = "wh_ours"

	body := eventBody("payment_intent.succeeded", false, map[string]any{
		"id":       "pi_1",
		"metadata": map[string]string{"webhook_id": "wh_theirs"},
	})
	// No signature on purpose: the identity check runs before verification
	// and the skip must not leak an error to the sender.
	res, err := g.Ingest(context.Background(), body, "")
	if err != nil {
		t.Fatalf("foreign identity must be accepted silently: %v", err)
	}
	if !res.Skipped || called {
		t.Fatalf("no dispatch expected, got %+v called=%v", res, called)
	}
}

func TestIngestMatchingWebhookIdentityDispatches(t *testing.T) {
	called := false
	reg := webhook.NewRegistry().
		On("payment_intent.succeeded", func(context.Context, json.RawMessage, *webhook.Event) error {
			called = true
			return nil
		})
	g := newGate(reg)
	g.Test.WebhookID = "wh_ours"

	body := eventBody("payment_intent.succeeded", false, map[string]any{
		"id":       "pi_1",
		"metadata": map[string]string{"webhook_id": "wh_ours"},
	})
	if _, err := g.Ingest(context.Background(), body, stripe.SignPayload(body, testSecret, time.Now())); err != nil {
		t.Fatalf("ingest: %v", err)
	}
	if !called {
		t.Fatal("matching identity must dispatch")
	}
}

func TestIngestSelectsSecretByLivemode(t *testing.T) {
	reg := webhook.NewRegistry()
	g := newGate(reg)

	body := eventBody("payment_intent.succeeded", true, map[string]any{"id": "pi_1"})
	if _, err := g.Ingest(context.Background(), body, stripe.SignPayload(body, "whsec_live", time.Now())); err != nil {
		t.Fatalf("live payloads verify against the live secret: %v", err)
	}
	if _, err := g.Ingest(context.Background(), body, stripe.SignPayload(body, testSecret, time.Now())); err == nil {
		t.Fatal("live payloads must not verify against the test secret")
	}
}

func TestIngestHandlerErrorsJoinAndPropagate(t *testing.T) {
	first := errors.New("first handler broke")
	ran := 0
	reg := webhook.NewRegistry().
		On("payment_intent.succeeded", func(context.Context, json.RawMessage, *webhook.Event) error {
			ran++
			return first
		}).
		On("payment_intent.succeeded", func(context.Context, json.RawMessage, *webhook.Event) error {
			ran++
			return nil
		})
	g := newGate(reg)

	body := eventBody("payment_intent.succeeded", false, map[string]any{"id": "pi_1"})
	res, err := g.Ingest(context.Background(), body, stripe.SignPayload(body, testSecret, time.Now()))
	if err == nil {
		t.Fatal("handler failure must propagate")
	}
	if ran != 2 {
		t.Fatalf("a failing handler must not stop the rest, ran=%d", ran)
	}
	if res.Handled != 2 {
		t.Fatalf("unexpected handled count: %d", res.Handled)
	}
	appErr := common.AsAppError(err)
	if appErr.Code != common.CodeHandlerError {
		t.Fatalf("unexpected code: %s", appErr.Code)
	}
	if !errors.Is(err, first) {
		t.Fatal("joined error must keep the underlying failure")
	}
}

func TestIngestReplayGuardDropsDuplicates(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	defer mr.Close()
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer func() { _ = client.Close() }()

	ran := 0
	reg := webhook.NewRegistry().
		On("payment_intent.succeeded", func(context.Context, json.RawMessage, *webhook.Event) error {
			ran++
			return nil
		})
	g := newGate(reg)
	g.Replay = client
	g.ReplayTTL = time.Hour

	body := eventBody("payment_intent.succeeded", false, map[string]any{"id": "pi_1"})
	header := stripe.SignPayload(body, testSecret, time.Now())

	for i := 0; i < 2; i++ {
		if _, err := g.Ingest(context.Background(), body, header); err != nil {
			t.Fatalf("delivery %d: %v", i, err)
		}
	}
	if ran != 1 {
		t.Fatalf("duplicate delivery must be dropped, ran=%d", ran)
	}
}

func TestIngestReplayGuardReleasesOnHandlerFailure(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	defer mr.Close()
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer func() { _ = client.Close() }()

	ran := 0
	reg := webhook.NewRegistry().
		On("payment_intent.succeeded", func(context.Context, json.RawMessage, *webhook.Event) error {
			ran++
			if ran == 1 {
				return errors.New("settlement store down")
			}
			return nil
		})
	g := newGate(reg)
	g.Replay = client
	g.ReplayTTL = time.Hour

	body := eventBody("payment_intent.succeeded", false, map[string]any{"id": "pi_1"})
	header := signTest(body)

	if _, err := g.Ingest(context.Background(), body, header); err == nil {
		t.Fatal("first delivery must report the handler failure")
	}
	// The provider retries the same payload after a non-2xx answer; the
	// failed delivery must not occupy the replay key.
	res, err := g.Ingest(context.Background(), body, header)
	if err != nil {
		t.Fatalf("retry delivery: %v", err)
	}
	if res.Skipped || ran != 2 {
		t.Fatalf("retry must dispatch again, ran=%d res=%+v", ran, res)
	}
}

func TestIngestReplayGuardFailsOpen(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer func() { _ = client.Close() }()
	mr.Close() // guard store down before the delivery arrives

	ran := 0
	reg := webhook.NewRegistry().
		On("payment_intent.succeeded", func(context.Context, json.RawMessage, *webhook.Event) error {
			ran++
			return nil
		})
	g := newGate(reg)
	g.Replay = client
	g.ReplayTTL = time.Hour

	body := eventBody("payment_intent.succeeded", false, map[string]any{"id": "pi_1"})
	if _, err := g.Ingest(context.Background(), body, stripe.SignPayload(body, testSecret, time.Now())); err != nil {
		t.Fatalf("guard outage must not block ingestion: %v", err)
	}
	if ran != 1 {
		t.Fatalf("handler should still run, ran=%d", ran)
	}
}

func TestNormalizeKey(t *testing.T) {
	cases := map[string]string{
		"payment_intent.succeeded":   "payment_intent_succeeded",
		"charge.dispute.created":     "charge_dispute_created",
		" payment_intent.canceled ":  "payment_intent_canceled",
		"already_normalised_example": "already_normalised_example",
	}
	for in, want := range cases {
		if got := webhook.NormalizeKey(in); got != want {
			t.Fatalf("NormalizeKey(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestEventWebhookID(t *testing.T) {
	body := eventBody("payment_intent.succeeded", false, map[string]any{
		"id":       "pi_1",
		"metadata": map[string]string{"webhook_id": fmt.Sprintf("wh_%d", 7)},
	})
	var ev webhook.Event
	if err := json.Unmarshal(body, &ev); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got := ev.WebhookID(); got != "wh_7" {
		t.Fatalf("unexpected webhook id: %q", got)
	}
	if ev.Mode() != "test" {
		t.Fatalf("unexpected mode: %q", ev.Mode())
	}
}
