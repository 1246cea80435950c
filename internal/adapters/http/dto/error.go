package dto

import "net/http"

// ErrorResponse is the body of every failed bridge request. Retryable is set
// when the same request may succeed later without any change.
type ErrorResponse struct {
	Error     string `json:"error"`
	Message   string `json:"message,omitempty"`
	Code      int    `json:"code"`
	Retryable bool   `json:"retryable,omitempty"`
}

func NewErrorResponse(kind, message string, status int) *ErrorResponse {
	return &ErrorResponse{
		Error:     kind,
		Message:   message,
		Code:      status,
		Retryable: status == http.StatusBadGateway || status == http.StatusServiceUnavailable,
	}
}
