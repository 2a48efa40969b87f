// Package errors defines the error taxonomy surfaced to query clients.
// Every error that reaches the wire is either one of the recognized kinds
// below or, in production mode, normalized into UnknownError.
package errors

import (
	"encoding/json"
	stderrors "errors"
	"fmt"
)

// ErrorCode identifies a recognized error kind on the wire
type ErrorCode string

const (
	// CodeUnknown is used for any error that is not a recognized kind
	CodeUnknown ErrorCode = "UnknownError"
	// CodeForbidden means an identity is present but not allowed
	CodeForbidden ErrorCode = "ForbiddenError"
	// CodeAuthenticationRequired means no identity and the ACL denies
	CodeAuthenticationRequired ErrorCode = "AuthenticationRequiredError"
	// CodeAuthenticationTokenExpired means the bearer token was valid but expired
	CodeAuthenticationTokenExpired ErrorCode = "AuthenticationTokenExpiredError"
	// CodeAuthenticationTokenInvalid means the bearer token could not be validated
	CodeAuthenticationTokenInvalid ErrorCode = "AuthenticationTokenInvalidError"
	// CodeTypeNotFound means a metadata lookup missed
	CodeTypeNotFound ErrorCode = "TypeNotFound"
	// CodeValidation means mutation input broke a field constraint
	CodeValidation ErrorCode = "ValidationError"
)

var defaultMessages = map[ErrorCode]string{
	CodeUnknown:                    "An unknown error has occurred!  Please try again later",
	CodeForbidden:                  "You are not allowed to do this",
	CodeAuthenticationRequired:     "You must be logged in to do this",
	CodeAuthenticationTokenExpired: "Your authentication token has expired",
	CodeAuthenticationTokenInvalid: "Your authentication token could not be validated",
	CodeTypeNotFound:               "Type not found, please check name",
	CodeValidation:                 "Input failed validation",
}

// Error is a recognized, client-facing error
type Error struct {
	Code    ErrorCode
	Message string
	Data    map[string]interface{}

	cause error
}

// New creates an error of the given kind with its default message
func New(code ErrorCode) *Error {
	return &Error{
		Code:    code,
		Message: defaultMessages[code],
	}
}

// Error implements the error interface
func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause, if any
func (e *Error) Unwrap() error {
	return e.cause
}

// Is reports whether target is an *Error of the same code, so that
// errors.Is(err, errors.New(CodeForbidden)) works regardless of data.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

// WithData attaches structured data and returns the error
func (e *Error) WithData(key string, value interface{}) *Error {
	if e.Data == nil {
		e.Data = make(map[string]interface{})
	}
	e.Data[key] = value
	return e
}

// WithCause records the underlying error
func (e *Error) WithCause(err error) *Error {
	e.cause = err
	return e
}

// MarshalJSON renders the wire shape: name, message and optional data
func (e *Error) MarshalJSON() ([]byte, error) {
	out := struct {
		Name    ErrorCode              `json:"name"`
		Message string                 `json:"message"`
		Data    map[string]interface{} `json:"data,omitempty"`
	}{
		Name:    e.Code,
		Message: e.Message,
		Data:    e.Data,
	}
	return json.Marshal(out)
}

// Forbidden creates a ForbiddenError
func Forbidden() *Error { return New(CodeForbidden) }

// AuthenticationRequired creates an AuthenticationRequiredError
func AuthenticationRequired() *Error { return New(CodeAuthenticationRequired) }

// TokenExpired creates an AuthenticationTokenExpiredError
func TokenExpired() *Error { return New(CodeAuthenticationTokenExpired) }

// TokenInvalid creates an AuthenticationTokenInvalidError
func TokenInvalid() *Error { return New(CodeAuthenticationTokenInvalid) }

// TypeNotFound creates a TypeNotFound error for the given type name
func TypeNotFound(name string) *Error {
	return New(CodeTypeNotFound).WithData("name", name)
}

// Validation creates a ValidationError carrying the failing fields
func Validation(fields map[string][]string) *Error {
	return New(CodeValidation).WithData("fields", fields)
}

// Unknown wraps an unrecognized error without exposing its details
func Unknown(cause error) *Error {
	return New(CodeUnknown).WithCause(cause)
}

// Code returns the recognized code of err, or CodeUnknown
func Code(err error) ErrorCode {
	var e *Error
	if stderrors.As(err, &e) {
		return e.Code
	}
	return CodeUnknown
}

// IsRecognized reports whether err is (or wraps) a recognized kind
func IsRecognized(err error) bool {
	var e *Error
	return stderrors.As(err, &e)
}

// Is reports whether err carries the given code
func Is(err error, code ErrorCode) bool {
	var e *Error
	if stderrors.As(err, &e) {
		return e.Code == code
	}
	return false
}

// Normalize prepares err for the wire. Outside production errors pass through
// verbatim. In production a recognized error is returned as is and anything
// else becomes UnknownError with no detail in its message.
func Normalize(err error, production bool) error {
	if err == nil || !production {
		return err
	}
	var e *Error
	if stderrors.As(err, &e) {
		if e.Code == CodeUnknown {
			return New(CodeUnknown)
		}
		return e
	}
	return New(CodeUnknown)
}
