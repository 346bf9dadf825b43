package errors

import (
	"errors"
	"fmt"
)

// Detail keys used by the domain constructors.
const (
	DetailVariable       = "variable"
	DetailOrganizationID = "organization_id"
	DetailEntitlement    = "entitlement"
	DetailPermission     = "permission"
)

// New creates an Error with the given code and message.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Newf creates an Error with a formatted message.
func Newf(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap wraps err with a code and message. Returns nil if err is nil.
//
//	row, err := pool.QueryRow(ctx, sql, orgID)
//	if err != nil {
//	    return errors.Wrap(err, errors.CodeInternalDatabase, "failed to read organization")
//	}
func Wrap(err error, code Code, message string) *Error {
	if err == nil {
		return nil
	}
	return &Error{Code: code, Message: message, Cause: err}
}

// Wrapf wraps err with a code and formatted message. Returns nil if err
// is nil.
func Wrapf(err error, code Code, format string, args ...any) *Error {
	if err == nil {
		return nil
	}
	return &Error{Code: code, Message: fmt.Sprintf(format, args...), Cause: err}
}

// Validationf creates a validation error with a formatted message.
func Validationf(format string, args ...any) *Error {
	return Newf(CodeValidation, format, args...)
}

// Internalf creates an internal error with a formatted message.
func Internalf(format string, args ...any) *Error {
	return Newf(CodeInternal, format, args...)
}

// KeyConfiguration reports a missing or malformed key variable. The
// variable name is recorded in Details so startup logs say exactly which
// setting to fix.
//
//	return errors.KeyConfiguration("AUTH_PUBLIC_KEY", "no PEM block found", nil)
func KeyConfiguration(variable, message string, cause error) *Error {
	return &Error{
		Code:    CodeKeyConfiguration,
		Message: fmt.Sprintf("%s: %s", variable, message),
		Cause:   cause,
		Details: map[string]any{DetailVariable: variable},
	}
}

// SigningUnavailable reports an issuance attempt without a private key.
func SigningUnavailable() *Error {
	return New(CodeSigningUnavailable, "token signing is not configured on this service")
}

// VerificationUnavailable reports a verification attempt without a
// public key.
func VerificationUnavailable() *Error {
	return New(CodeVerificationUnavailable, "token verification is not configured on this service")
}

// TokenExpired wraps the verifier's expiry error.
func TokenExpired(cause error) *Error {
	return &Error{Code: CodeAuthenticationExpired, Message: "token has expired", Cause: cause}
}

// TokenInvalid wraps any other verification failure.
func TokenInvalid(cause error) *Error {
	return &Error{Code: CodeAuthenticationInvalid, Message: "token is invalid", Cause: cause}
}

// OrgContextRequired reports that no organization could be resolved for
// the user.
func OrgContextRequired(userID string) *Error {
	return Newf(CodeOrgContextRequired, "user %q must select an organization", userID)
}

// MembershipRequired reports a non-member acting on an organization.
func MembershipRequired(orgID string) *Error {
	return Newf(CodeMembershipRequired, "not a member of organization %q", orgID).
		WithDetail(DetailOrganizationID, orgID)
}

// EntitlementDenied reports a missing entitlement for an organization.
func EntitlementDenied(orgID, key string) *Error {
	return Newf(CodeEntitlementDenied, "organization %q does not have %q enabled", orgID, key).
		WithDetails(map[string]any{DetailOrganizationID: orgID, DetailEntitlement: key})
}

// OrganizationSuspended reports a suspended organization.
func OrganizationSuspended(orgID string) *Error {
	return Newf(CodeOrganizationSuspended, "organization %q is suspended", orgID).
		WithDetail(DetailOrganizationID, orgID)
}

// PermissionDenied reports a member lacking a user-level permission.
func PermissionDenied(orgID, permission string) *Error {
	return Newf(CodePermissionDenied, "permission %q not granted in organization %q", permission, orgID).
		WithDetails(map[string]any{DetailOrganizationID: orgID, DetailPermission: permission})
}

// FromError returns err as an *Error, wrapping foreign errors as internal.
func FromError(err error) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return Wrap(err, CodeInternal, "an unexpected error occurred")
}
