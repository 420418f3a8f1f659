package common

import "errors"

// Error codes shared across the payment and storefront surfaces. Each code
// maps to one category of the checkout failure taxonomy.
const (
	CodeValidation = "VALIDATION_ERROR"
	CodeGateway    = "GATEWAY_ERROR"
	CodeNetwork    = "NETWORK_ERROR"
	CodeSignature  = "SIGNATURE_ERROR"
	CodeNotFound   = "NOT_FOUND"
	CodeConflict   = "CONFLICT"
	CodeInternal   = "INTERNAL"
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

// ValidationError builds a 400-class error for user-correctable input.
func ValidationError(message string) *AppError {
	return &AppError{Code: CodeValidation, Message: message, HTTPStatus: 400}
}

// GatewayError wraps an upstream provider rejection. The provider message is
// preserved but nothing else about the upstream response leaks to clients.
func GatewayError(message string, err error) *AppError {
	return &AppError{Code: CodeGateway, Message: message, HTTPStatus: 502, Err: err}
}

// NetworkError wraps a transport failure talking to the provider.
func NetworkError(err error) *AppError {
	return &AppError{Code: CodeNetwork, Message: "payment provider unreachable", HTTPStatus: 504, Err: err}
}

// CodeOf extracts the error code, defaulting to INTERNAL.
func CodeOf(err error) string {
	var target *AppError
	if errors.As(err, &target) && target.Code != "" {
		return target.Code
	}
	return CodeInternal
}
