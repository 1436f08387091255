// SPDX-License-Identifier: GPL-2.0 OR BSD-3-Clause
package models

import "net/http"

// ErrorResponse represents an API error response
type ErrorResponse struct {
	Error   string      `json:"error"`
	Message string      `json:"message"`
	Details interface{} `json:"details,omitempty"`
	Code    int         `json:"code"`
}

// NewErrorResponse creates a new error response
func NewErrorResponse(code int, err string, message string, details interface{}) *ErrorResponse {
	return &ErrorResponse{
		Error:   err,
		Message: message,
		Details: details,
		Code:    code,
	}
}

// NewValidationError creates a 400 response for malformed input
func NewValidationError(message string, details interface{}) *ErrorResponse {
	return NewErrorResponse(http.StatusBadRequest, "validation_error", message, details)
}
