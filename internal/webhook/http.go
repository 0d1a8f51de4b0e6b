package webhook

import (
	"io"
	"net/http"

	"github.com/noah-isme/storefront-payments/internal/common"
)

// HTTPHandler exposes the gate over HTTP.
type HTTPHandler struct {
	Gate *Gate
}

// Post ingests one notification. The response body stays empty on success;
// senders only need the 200.
func (h HTTPHandler) Post(w http.ResponseWriter, r *http.Request) {
	if h.Gate == nil {
		common.JSONError(w, http.StatusInternalServerError, "WEBHOOK_NOT_CONFIGURED", "webhook unavailable", nil)
		return
	}
	body, err := io.ReadAll(r.Body)
	if err != nil {
		common.JSONError(w, http.StatusBadRequest, common.CodeMalformedPayload, "unable to read payload", nil)
		return
	}
	if _, err := h.Gate.Ingest(r.Context(), body, r.Header.Get("Stripe-Signature")); err != nil {
		common.JSONAppError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{})
}

// Get answers browser pokes at the endpoint.
func (h HTTPHandler) Get(w http.ResponseWriter, _ *http.Request) {
	common.JSON(w, http.StatusOK, map[string]string{
		"message": "Stripe sends webhook notifications via the http POST method. You cannot test the webhook using a browser.",
	})
}
