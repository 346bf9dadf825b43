package errors

import (
	"errors"
)

// AsError finds the first *Error in err's chain.
func AsError(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// GetCode returns the code of the first *Error in err's chain, or "".
func GetCode(err error) Code {
	if e, ok := AsError(err); ok {
		return e.Code
	}
	return ""
}

// HasCode reports whether err carries code.
func HasCode(err error, code Code) bool {
	return GetCode(err) == code
}

// ReasonOf returns the client reason for err. Foreign errors map to
// the internal reason.
func ReasonOf(err error) string {
	if e, ok := AsError(err); ok {
		return e.Reason()
	}
	return ReasonInternal
}

func hasCategory(err error, category string) bool {
	e, ok := AsError(err)
	return ok && e.Code.Category() == category
}

// IsValidation reports a VAL_xxx error.
func IsValidation(err error) bool { return hasCategory(err, "VAL") }

// IsAuthentication reports an AUTH_xxx error.
func IsAuthentication(err error) bool { return hasCategory(err, "AUTH") }

// IsAuthorization reports an AUTHZ_xxx error.
func IsAuthorization(err error) bool { return hasCategory(err, "AUTHZ") }

// IsNotFound reports an NF_xxx error.
func IsNotFound(err error) bool { return hasCategory(err, "NF") }

// IsConflict reports a CONF_xxx error.
func IsConflict(err error) bool { return hasCategory(err, "CONF") }

// IsInternal reports an INT_xxx error.
func IsInternal(err error) bool { return hasCategory(err, "INT") }

// IsUnavailable reports an UNAVAIL_xxx error.
func IsUnavailable(err error) bool { return hasCategory(err, "UNAVAIL") }

// IsTimeout reports a TIMEOUT_xxx error.
func IsTimeout(err error) bool { return hasCategory(err, "TIMEOUT") }

// IsExpired reports an expired token.
func IsExpired(err error) bool { return HasCode(err, CodeAuthenticationExpired) }

// IsKeyConfiguration reports a key configuration failure.
func IsKeyConfiguration(err error) bool { return HasCode(err, CodeKeyConfiguration) }

// IsOrgContextRequired reports an unresolved organization context.
func IsOrgContextRequired(err error) bool { return HasCode(err, CodeOrgContextRequired) }

// IsSuspended reports a suspended organization.
func IsSuspended(err error) bool { return HasCode(err, CodeOrganizationSuspended) }

// IsRetryable reports timeout and unavailable errors.
func IsRetryable(err error) bool {
	e, ok := AsError(err)
	if !ok {
		return false
	}
	switch e.Code.Category() {
	case "TIMEOUT", "UNAVAIL":
		return true
	default:
		return false
	}
}
