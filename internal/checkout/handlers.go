// Package checkout exposes the HTTP surface for payment and setup intent
// reconciliation. Business-logic failures are answered with transport-level
// 200 and a structured error body; only authentication-class failures use
// real HTTP error statuses.
package checkout

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	validator "github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/noah-isme/storefront-payments/internal/common"
	"github.com/noah-isme/storefront-payments/internal/installments"
	"github.com/noah-isme/storefront-payments/internal/intent"
	"github.com/noah-isme/storefront-payments/internal/store"
	"github.com/noah-isme/storefront-payments/internal/stripe"
)

// OrderStore is the slice of the order store the handlers need.
type OrderStore interface {
	Get(ctx context.Context, id uuid.UUID) (store.Order, error)
	ReplaceIntentRef(ctx context.Context, orderID uuid.UUID, oldRef, newRef string) error
	SaveIntentSnapshot(ctx context.Context, orderID uuid.UUID, snapshot []byte) error
}

// SessionStore is the slice of the session store the handlers need.
type SessionStore interface {
	PaymentIntentRef(ctx context.Context, sessionID string) (string, error)
	SavePaymentIntentRef(ctx context.Context, sessionID, intentID string) error
	SaveSetupIntentRef(ctx context.Context, sessionID, intentID string) error
	CartTotal(ctx context.Context, sessionID string) (float64, string, error)
}

// IntentSyncer retrieves intents for the sync endpoint.
type IntentSyncer interface {
	RetrievePaymentIntent(ctx context.Context, id string) (*stripe.PaymentIntent, error)
}

// Handler exposes the checkout endpoints.
type Handler struct {
	Manager  *intent.Manager
	Orders   OrderStore
	Sessions SessionStore
	Gateway  IntentSyncer
	Validate *validator.Validate
	Logger   zerolog.Logger
}

type intentRequest struct {
	PaymentMethod   string `json:"paymentMethod" validate:"required"`
	PaymentMethodID string `json:"paymentMethodId" validate:"required"`
}

type orderIntentRequest struct {
	PaymentMethod   string `json:"paymentMethod" validate:"required"`
	PaymentMethodID string `json:"paymentMethodId" validate:"required"`
	OrderID         string `json:"orderId" validate:"required,uuid"`
	OrderKey        string `json:"orderKey" validate:"required"`
}

type setupIntentRequest struct {
	PaymentMethod string `json:"paymentMethod" validate:"required"`
	OrderID       string `json:"orderId" validate:"omitempty,uuid"`
	OrderKey      string `json:"orderKey"`
}

type syncRequest struct {
	OrderID      string `json:"orderId" validate:"required,uuid"`
	ClientSecret string `json:"clientSecret" validate:"required"`
}

type intentResponse struct {
	Intent              *stripe.PaymentIntent `json:"intent"`
	Installments        []installments.Offer  `json:"installments"`
	InstallmentsDisplay []string              `json:"installmentsDisplay"`
}

// PaymentIntentFromCart reconciles an intent for a guest/cart attempt. The
// stored reference lives on the session; the cart total drives the amount.
func (h *Handler) PaymentIntentFromCart(w http.ResponseWriter, r *http.Request) {
	var req intentRequest
	if !h.decode(w, r, &req) {
		return
	}
	ctx := r.Context()
	sessionID, ok := common.SessionID(ctx)
	if !ok || sessionID == "" {
		common.JSONAppError(w, common.BusinessError(common.CodeInvalidSession, "invalid session"))
		return
	}
	total, currency, err := h.Sessions.CartTotal(ctx, sessionID)
	if err != nil {
		if errors.Is(err, store.ErrNoCart) {
			common.JSONAppError(w, common.BusinessError(common.CodeInvalidSession, "no active cart for session"))
			return
		}
		common.JSONError(w, http.StatusInternalServerError, "SESSION_STORE_ERROR", "unable to read session", nil)
		return
	}
	storedRef, err := h.Sessions.PaymentIntentRef(ctx, sessionID)
	if err != nil {
		common.JSONError(w, http.StatusInternalServerError, "SESSION_STORE_ERROR", "unable to read session", nil)
		return
	}

	userID, _ := common.UserID(ctx)
	res, err := h.Manager.Reconcile(ctx, intent.Attempt{
		PaymentMethod:   req.PaymentMethod,
		PaymentMethodID: req.PaymentMethodID,
		UserID:          userID,
	}, intent.Checkout{Total: total, Currency: currency}, storedRef)
	if err != nil {
		common.JSONAppError(w, err)
		return
	}
	if err := h.Sessions.SavePaymentIntentRef(ctx, sessionID, res.Intent.ID); err != nil {
		h.Logger.Error().Err(err).Str("session_id", sessionID).Msg("persist session intent reference failed")
	}
	common.JSON(w, http.StatusOK, buildIntentResponse(res))
}

// PaymentIntentFromOrder reconciles an intent for a confirmed order. The
// caller proves authority with the order key; the stored reference lives on
// the order row and is replaced with compare-and-swap semantics.
func (h *Handler) PaymentIntentFromOrder(w http.ResponseWriter, r *http.Request) {
	var req orderIntentRequest
	if !h.decode(w, r, &req) {
		return
	}
	ctx := r.Context()
	order, ok := h.authorizeOrder(w, ctx, req.OrderID, req.OrderKey)
	if !ok {
		return
	}

	userID, _ := common.UserID(ctx)
	if order.UserID != "" {
		userID = order.UserID
	}
	storedRef := order.PaymentIntentID
	res, err := h.Manager.Reconcile(ctx, intent.Attempt{
		PaymentMethod:   req.PaymentMethod,
		PaymentMethodID: req.PaymentMethodID,
		UserID:          userID,
	}, intent.Checkout{Order: &order}, storedRef)
	if err != nil {
		common.JSONAppError(w, err)
		return
	}

	if res.Intent.ID != storedRef {
		if err := h.Orders.ReplaceIntentRef(ctx, order.ID, storedRef, res.Intent.ID); err != nil {
			if errors.Is(err, store.ErrRefConflict) {
				common.JSONError(w, http.StatusConflict, "INTENT_CONFLICT", "another checkout attempt is in progress for this order", nil)
				return
			}
			common.JSONError(w, http.StatusInternalServerError, "ORDER_STORE_ERROR", "unable to persist intent reference", nil)
			return
		}
	}
	if snapshot, err := json.Marshal(res.Intent.Sanitized()); err == nil {
		if err := h.Orders.SaveIntentSnapshot(ctx, order.ID, snapshot); err != nil {
			h.Logger.Error().Err(err).Str("order_id", order.ID.String()).Msg("persist intent snapshot failed")
		}
	}
	common.JSON(w, http.StatusOK, buildIntentResponse(res))
}

// SetupIntent opens a setup intent to save a payment method for future use.
func (h *Handler) SetupIntent(w http.ResponseWriter, r *http.Request) {
	var req setupIntentRequest
	if !h.decode(w, r, &req) {
		return
	}
	ctx := r.Context()

	// A forged order key must be denied before any provider-side resource
	// is provisioned.
	var order store.Order
	hasOrder := req.OrderID != ""
	if hasOrder {
		var ok bool
		order, ok = h.authorizeOrder(w, ctx, req.OrderID, req.OrderKey)
		if !ok {
			return
		}
	}

	userID, _ := common.UserID(ctx)
	si, err := h.Manager.CreateSetupIntent(ctx, intent.Attempt{
		PaymentMethod: req.PaymentMethod,
		UserID:        userID,
	})
	if err != nil {
		common.JSONAppError(w, err)
		return
	}

	response := map[string]any{"intent": si}
	if hasOrder {
		response["orderId"] = order.ID.String()
		response["orderKey"] = order.OrderKey
	}
	if sessionID, ok := common.SessionID(ctx); ok && sessionID != "" {
		if err := h.Sessions.SaveSetupIntentRef(ctx, sessionID, si.ID); err != nil {
			h.Logger.Error().Err(err).Str("session_id", sessionID).Msg("persist session setup intent reference failed")
		}
	}
	common.JSON(w, http.StatusOK, response)
}

// SyncPaymentIntent persists the provider-side intent state onto the order
// after client-side confirmation completes. Possession of the matching
// client secret authorises the write.
func (h *Handler) SyncPaymentIntent(w http.ResponseWriter, r *http.Request) {
	var req syncRequest
	if !h.decode(w, r, &req) {
		return
	}
	ctx := r.Context()
	orderID, err := uuid.Parse(req.OrderID)
	if err != nil {
		common.JSONAppError(w, common.BusinessError(common.CodeAuthorizationDenied, "invalid order id provided"))
		return
	}
	order, err := h.Orders.Get(ctx, orderID)
	if err != nil || order.PaymentIntentID == "" {
		common.JSONAppError(w, common.BusinessError(common.CodeAuthorizationDenied, "invalid order id provided"))
		return
	}
	pi, err := h.Gateway.RetrievePaymentIntent(ctx, order.PaymentIntentID)
	if err != nil {
		common.JSONAppError(w, err)
		return
	}
	if !common.SecureCompare(pi.ClientSecret, req.ClientSecret) {
		common.JSONAppError(w, common.BusinessError(common.CodeAuthorizationDenied, "you are not authorized to update this order"))
		return
	}
	snapshot, err := json.Marshal(pi.Sanitized())
	if err == nil {
		err = h.Orders.SaveIntentSnapshot(ctx, order.ID, snapshot)
	}
	if err != nil {
		common.JSONError(w, http.StatusInternalServerError, "ORDER_STORE_ERROR", "unable to persist intent snapshot", nil)
		return
	}
	common.JSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (h *Handler) authorizeOrder(w http.ResponseWriter, ctx context.Context, orderID, orderKey string) (store.Order, bool) {
	id, err := uuid.Parse(orderID)
	if err != nil {
		common.JSONAppError(w, common.BusinessError(common.CodeAuthorizationDenied, "you are not authorized to update this order"))
		return store.Order{}, false
	}
	order, err := h.Orders.Get(ctx, id)
	if err != nil || !common.SecureCompare(order.OrderKey, orderKey) {
		common.JSONAppError(w, common.BusinessError(common.CodeAuthorizationDenied, "you are not authorized to update this order"))
		return store.Order{}, false
	}
	return order, true
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, req any) bool {
	if err := json.NewDecoder(r.Body).Decode(req); err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid body", nil)
		return false
	}
	if h.Validate != nil {
		if err := h.Validate.Struct(req); err != nil {
			common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "missing or invalid fields", fieldErrors(err))
			return false
		}
	}
	return true
}

func fieldErrors(err error) any {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return nil
	}
	fields := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		fields = append(fields, strings.ToLower(fe.Field()))
	}
	return map[string]any{"fields": fields}
}

func buildIntentResponse(res intent.Result) intentResponse {
	display := make([]string, 0, len(res.Installments))
	for _, offer := range res.Installments {
		display = append(display, offer.Text)
	}
	return intentResponse{
		Intent:              res.Intent,
		Installments:        res.Installments,
		InstallmentsDisplay: display,
	}
}
