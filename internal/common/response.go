package common

import (
	"encoding/json"
	"net/http"
)

// ErrorBody represents a consistent error payload returned by the API.
// Status mirrors the business status attached to the failure, which may
// differ from the transport status (checkout errors travel over HTTP 200).
type ErrorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Status  int    `json:"status"`
	Details any    `json:"details,omitempty"`
}

// JSON writes the provided value to the response writer as JSON.
func JSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// JSONError renders an error response using the canonical error shape.
func JSONError(w http.ResponseWriter, status int, code, message string, details any) {
	JSON(w, status, map[string]any{
		"error": ErrorBody{
			Code:    code,
			Message: message,
			Status:  status,
			Details: details,
		},
	})
}

// JSONAppError renders an AppError, defaulting the transport status to 200
// for business failures that carry no explicit status.
func JSONAppError(w http.ResponseWriter, err error) {
	appErr := AsAppError(err)
	status := appErr.HTTPStatus
	if status == 0 {
		status = http.StatusOK
	}
	JSONError(w, status, appErr.Code, appErr.Message, appErr.Details)
}
