// Package domain holds the core types of the sales conversation engine.
package domain

import (
	"fmt"
	"net/http"
)

// ErrorType categorizes engine errors. Only invalid-request errors surface
// to callers as hard failures; everything downstream degrades to a fallback
// reply instead.
type ErrorType string

const (
	// ErrorTypeInvalidRequest indicates a malformed or invalid request.
	ErrorTypeInvalidRequest ErrorType = "invalid_request"

	// ErrorTypeAttachment indicates a rejected attachment input.
	ErrorTypeAttachment ErrorType = "attachment"

	// ErrorTypeNotFound indicates a missing session or resource.
	ErrorTypeNotFound ErrorType = "not_found"

	// ErrorTypeModel indicates a model transport failure (timeout, rate
	// limit, network).
	ErrorTypeModel ErrorType = "model"

	// ErrorTypeDispatch indicates a side-effect sink failure.
	ErrorTypeDispatch ErrorType = "dispatch"

	// ErrorTypeServer indicates an internal error.
	ErrorTypeServer ErrorType = "server"
)

// APIError is the canonical error carried through the engine and translated
// to HTTP status codes at the edge.
type APIError struct {
	Type    ErrorType `json:"type"`
	Message string    `json:"message"`
	Param   string    `json:"param,omitempty"`

	// StatusCode overrides the default mapping when non-zero.
	StatusCode int `json:"-"`
}

// Error implements the error interface.
func (e *APIError) Error() string {
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// HTTPStatusCode returns the HTTP status code for this error.
func (e *APIError) HTTPStatusCode() int {
	if e.StatusCode != 0 {
		return e.StatusCode
	}

	switch e.Type {
	case ErrorTypeInvalidRequest, ErrorTypeAttachment:
		return http.StatusBadRequest
	case ErrorTypeNotFound:
		return http.StatusNotFound
	case ErrorTypeModel, ErrorTypeDispatch:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// NewAPIError creates a new API error.
func NewAPIError(errType ErrorType, message string) *APIError {
	return &APIError{
		Type:    errType,
		Message: message,
	}
}

// WithParam adds a parameter name to the error.
func (e *APIError) WithParam(param string) *APIError {
	e.Param = param
	return e
}

// ErrInvalidRequest creates an invalid request error.
func ErrInvalidRequest(message string) *APIError {
	return NewAPIError(ErrorTypeInvalidRequest, message)
}

// ErrNotFound creates a not found error.
func ErrNotFound(message string) *APIError {
	return NewAPIError(ErrorTypeNotFound, message)
}

// ErrAttachment creates an attachment rejection error.
func ErrAttachment(message string) *APIError {
	return NewAPIError(ErrorTypeAttachment, message)
}

// ErrModel creates a model transport error.
func ErrModel(message string) *APIError {
	return NewAPIError(ErrorTypeModel, message)
}
