package stripe

import (
	"errors"
	"fmt"
)

// Error is the structured error returned by the Stripe API.
type Error struct {
	Type       string `json:"type"`
	Code       string `json:"code"`
	Param      string `json:"param"`
	Message    string `json:"message"`
	HTTPStatus int    `json:"-"`
}

func (e *Error) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return fmt.Sprintf("stripe: %s (%s)", e.Type, e.Code)
}

type errorResponse struct {
	Error *Error `json:"error"`
}

// IsCustomerMissing reports whether the provider rejected a request because
// the attached customer token no longer exists.
func IsCustomerMissing(err error) bool {
	var apiErr *Error
	if !errors.As(err, &apiErr) {
		return false
	}
	return apiErr.Code == "resource_missing" && apiErr.Param == "customer"
}
