// Package auth attaches the caller's identity to request context. Token
// issuing lives elsewhere; this service only validates bearer tokens.
package auth

import (
	"net/http"
	"strings"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwt"

	"github.com/noah-isme/storefront-payments/internal/common"
)

// SessionHeader carries the guest checkout session identifier.
const SessionHeader = "X-Checkout-Session"

// Middleware validates bearer tokens and extracts checkout session ids.
type Middleware struct {
	Secret    []byte
	ClockSkew time.Duration
}

// Authenticate attaches the user identifier when a valid token is present.
// Guest requests pass through untouched; checkout works without an account.
func (m Middleware) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if raw := m.extractToken(r); raw != "" {
			opts := []jwt.ParseOption{
				jwt.WithKey(jwa.HS256, m.Secret),
				jwt.WithValidate(true),
			}
			if m.ClockSkew > 0 {
				opts = append(opts, jwt.WithAcceptableSkew(m.ClockSkew))
			}
			if tok, err := jwt.Parse([]byte(raw), opts...); err == nil && tok.Subject() != "" {
				ctx = common.WithUserID(ctx, tok.Subject())
			}
		}
		if session := strings.TrimSpace(r.Header.Get(SessionHeader)); session != "" {
			ctx = common.WithSessionID(ctx, session)
		}
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (m Middleware) extractToken(r *http.Request) string {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if header == "" {
		return ""
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}
