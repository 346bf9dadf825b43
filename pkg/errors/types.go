package errors

import (
	"fmt"
	"maps"
	"net/http"
)

// Error is the structured error returned across the access core. The
// Message is safe to log but is never written to clients verbatim for
// authentication failures; use [Error.Reason] for response bodies.
type Error struct {
	// Code is the machine-readable error code (e.g. "AUTHZ_005").
	Code Code

	// Message is a human-readable description.
	Message string

	// Cause is the underlying error, if any.
	Cause error

	// Details holds structured context such as the offending
	// configuration variable or the denied entitlement key.
	Details map[string]any
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Reason returns the coarse client reason string for the error code.
func (e *Error) Reason() string {
	return e.Code.Reason()
}

// HTTPStatus maps the code category to an HTTP status code.
func (e *Error) HTTPStatus() int {
	switch e.Code.Category() {
	case "VAL":
		return http.StatusBadRequest
	case "AUTH":
		return http.StatusUnauthorized
	case "AUTHZ":
		return http.StatusForbidden
	case "NF":
		return http.StatusNotFound
	case "CONF":
		return http.StatusConflict
	case "UNAVAIL":
		if e.Code == CodeUnavailableOverloaded {
			return http.StatusTooManyRequests
		}
		return http.StatusServiceUnavailable
	case "TIMEOUT":
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// WithDetails returns a copy of e with details merged in.
func (e *Error) WithDetails(details map[string]any) *Error {
	merged := make(map[string]any, len(e.Details)+len(details))
	maps.Copy(merged, e.Details)
	maps.Copy(merged, details)
	return &Error{Code: e.Code, Message: e.Message, Cause: e.Cause, Details: merged}
}

// WithDetail returns a copy of e with a single detail added.
func (e *Error) WithDetail(key string, value any) *Error {
	return e.WithDetails(map[string]any{key: value})
}

// Detail returns the string detail stored under key, or "".
func (e *Error) Detail(key string) string {
	if v, ok := e.Details[key]; ok {
		if s, ok := v.(string); ok {
			return s
		}
		return fmt.Sprint(v)
	}
	return ""
}

// Format implements fmt.Formatter. %+v prints details and the cause chain.
func (e *Error) Format(s fmt.State, verb rune) {
	switch verb {
	case 'v':
		if s.Flag('+') {
			fmt.Fprintf(s, "Error{Code: %q, Message: %q", e.Code, e.Message)
			if len(e.Details) > 0 {
				fmt.Fprintf(s, ", Details: %v", e.Details)
			}
			if e.Cause != nil {
				fmt.Fprintf(s, ", Cause: %+v", e.Cause)
			}
			fmt.Fprint(s, "}")
			return
		}
		fallthrough
	case 's':
		fmt.Fprint(s, e.Error())
	case 'q':
		fmt.Fprintf(s, "%q", e.Error())
	}
}
