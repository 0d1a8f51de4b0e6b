package common

import (
	"errors"
	"net/http"
)

// Error codes shared across the checkout and webhook surfaces.
const (
	CodeUnknownPaymentMethod = "UNKNOWN_PAYMENT_METHOD"
	CodeAuthorizationDenied  = "AUTHORIZATION_DENIED"
	CodeInvalidSession       = "INVALID_SESSION"
	CodeRemoteGatewayError   = "REMOTE_GATEWAY_ERROR"
	CodeMalformedPayload     = "MALFORMED_PAYLOAD"
	CodeSignatureInvalid     = "SIGNATURE_INVALID"
	CodeHandlerError         = "HANDLER_ERROR"
)

// AppError represents an error with an attached code and HTTP status.
type AppError struct {
	Code       string
	Message    string
	HTTPStatus int
	Err        error
	Details    any
}

// Error implements the error interface.
func (e *AppError) Error() string {
	if e == nil {
		return ""
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return e.Message
}

// Unwrap allows errors.Is/As to inspect the underlying error.
func (e *AppError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// NewAppError constructs an AppError.
func NewAppError(code, message string, status int, err error) *AppError {
	return &AppError{Code: code, Message: message, HTTPStatus: status, Err: err}
}

// BusinessError builds an AppError that checkout endpoints report with a
// transport-level 200; the embedded status distinguishes business failure
// from transport failure.
func BusinessError(code, message string) *AppError {
	return &AppError{Code: code, Message: message, HTTPStatus: http.StatusOK}
}

// AsAppError extracts an AppError from err, or wraps err in a generic one.
func AsAppError(err error) *AppError {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	return &AppError{Code: "INTERNAL", Message: err.Error(), HTTPStatus: http.StatusInternalServerError, Err: err}
}
