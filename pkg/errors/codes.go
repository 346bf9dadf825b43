package errors

// Code is a machine-readable error code of the form CATEGORY_NNN. The
// category prefix determines the HTTP status (see [Error.HTTPStatus]).
// Codes are stable once assigned.
type Code string

// Categories:
//
//	VAL_xxx     400 Bad Request
//	AUTH_xxx    401 Unauthorized
//	AUTHZ_xxx   403 Forbidden
//	NF_xxx      404 Not Found
//	CONF_xxx    409 Conflict
//	INT_xxx     500 Internal Server Error
//	UNAVAIL_xxx 503 Service Unavailable
//	TIMEOUT_xxx 504 Gateway Timeout
const (
	// CodeValidation indicates a general validation failure.
	CodeValidation Code = "VAL_001"

	// CodeValidationRequired indicates a required field is missing.
	CodeValidationRequired Code = "VAL_002"

	// CodeValidationFormat indicates a field has an invalid format.
	CodeValidationFormat Code = "VAL_003"

	// CodeValidationRange indicates a value is outside its accepted range.
	CodeValidationRange Code = "VAL_004"

	// CodeAuthentication indicates missing credentials.
	CodeAuthentication Code = "AUTH_001"

	// CodeAuthenticationExpired indicates a token with a valid signature
	// whose expiry has passed.
	CodeAuthenticationExpired Code = "AUTH_002"

	// CodeAuthenticationInvalid covers bad signatures, wrong issuer or
	// audience, wrong token type, missing required claims and malformed
	// structure.
	CodeAuthenticationInvalid Code = "AUTH_003"

	// CodeAuthenticationCredentials indicates a login with an unknown
	// email or a wrong password.
	CodeAuthenticationCredentials Code = "AUTH_004"

	// CodeAuthorization indicates a general authorization failure.
	CodeAuthorization Code = "AUTHZ_001"

	// CodeAuthorizationDenied indicates access to a resource is denied.
	CodeAuthorizationDenied Code = "AUTHZ_002"

	// CodeAuthorizationInsufficientScope indicates the token carries no
	// organization scope where one is needed.
	CodeAuthorizationInsufficientScope Code = "AUTHZ_003"

	// CodeMembershipRequired indicates the caller is not a member of the
	// target organization.
	CodeMembershipRequired Code = "AUTHZ_004"

	// CodeEntitlementDenied indicates the organization does not have the
	// requested entitlement enabled.
	CodeEntitlementDenied Code = "AUTHZ_005"

	// CodeOrganizationSuspended indicates the organization is suspended.
	CodeOrganizationSuspended Code = "AUTHZ_006"

	// CodePermissionDenied indicates the organization has the entitlement
	// but this member was not granted the permission.
	CodePermissionDenied Code = "AUTHZ_007"

	// CodeNotFound indicates a general not found error.
	CodeNotFound Code = "NF_001"

	// CodeNotFoundUser indicates the requested user was not found.
	CodeNotFoundUser Code = "NF_002"

	// CodeNotFoundOrganization indicates the requested organization was
	// not found.
	CodeNotFoundOrganization Code = "NF_003"

	// CodeConflict indicates a general conflict error.
	CodeConflict Code = "CONF_001"

	// CodeConflictAlreadyExists indicates the resource already exists.
	CodeConflictAlreadyExists Code = "CONF_002"

	// CodeConflictVersionMismatch indicates an optimistic locking failure.
	CodeConflictVersionMismatch Code = "CONF_003"

	// CodeOrgContextRequired indicates the active organization could not
	// be resolved and the caller must select one.
	CodeOrgContextRequired Code = "CONF_004"

	// CodeInternal indicates a general internal error.
	CodeInternal Code = "INT_001"

	// CodeInternalDatabase indicates a database operation failed.
	CodeInternalDatabase Code = "INT_002"

	// CodeInternalConfiguration indicates a configuration error.
	CodeInternalConfiguration Code = "INT_003"

	// CodeKeyConfiguration indicates a missing or malformed signing or
	// verification key.
	CodeKeyConfiguration Code = "INT_004"

	// CodeSigningUnavailable indicates token issuance on a service that
	// holds no private key.
	CodeSigningUnavailable Code = "INT_005"

	// CodeUnavailable indicates a general service unavailable error.
	CodeUnavailable Code = "UNAVAIL_001"

	// CodeUnavailableDependency indicates a dependency is unavailable.
	CodeUnavailableDependency Code = "UNAVAIL_002"

	// CodeUnavailableOverloaded indicates the caller is being throttled.
	CodeUnavailableOverloaded Code = "UNAVAIL_003"

	// CodeVerificationUnavailable indicates token verification on a
	// service that holds no public key.
	CodeVerificationUnavailable Code = "UNAVAIL_004"

	// CodeTimeout indicates a general timeout error.
	CodeTimeout Code = "TIMEOUT_001"

	// CodeTimeoutDatabase indicates a database operation timed out.
	CodeTimeoutDatabase Code = "TIMEOUT_002"

	// CodeTimeoutDependency indicates a dependency call timed out.
	CodeTimeoutDependency Code = "TIMEOUT_003"
)

// Client-facing reason strings written in HTTP error bodies.
const (
	ReasonNotAuthenticated      = "not_authenticated"
	ReasonTokenExpired          = "token_expired"
	ReasonInvalidCredentials    = "invalid_credentials"
	ReasonOrgRequired           = "ORG_REQUIRED"
	ReasonMembershipRequired    = "membership_required"
	ReasonEntitlementDenied     = "entitlement_denied"
	ReasonOrganizationSuspended = "organization_suspended"
	ReasonPermissionDenied      = "permission_denied"
	ReasonForbidden             = "forbidden"
	ReasonRateLimited           = "rate_limited"
	ReasonBadRequest            = "bad_request"
	ReasonNotFound              = "not_found"
	ReasonInternal              = "internal_error"
	ReasonUnavailable           = "unavailable"
)

// String returns the string representation of the error code.
func (c Code) String() string {
	return string(c)
}

// Category returns the category prefix of the code (e.g. "AUTHZ").
func (c Code) Category() string {
	s := string(c)
	for i, r := range s {
		if r == '_' {
			return s[:i]
		}
	}
	return s
}

// Reason returns the coarse client reason for the code.
func (c Code) Reason() string {
	switch c {
	case CodeAuthenticationExpired:
		return ReasonTokenExpired
	case CodeAuthentication, CodeAuthenticationInvalid, CodeVerificationUnavailable:
		return ReasonNotAuthenticated
	case CodeAuthenticationCredentials:
		return ReasonInvalidCredentials
	case CodeOrgContextRequired:
		return ReasonOrgRequired
	case CodeMembershipRequired:
		return ReasonMembershipRequired
	case CodeEntitlementDenied:
		return ReasonEntitlementDenied
	case CodeOrganizationSuspended:
		return ReasonOrganizationSuspended
	case CodePermissionDenied:
		return ReasonPermissionDenied
	case CodeUnavailableOverloaded:
		return ReasonRateLimited
	}
	switch c.Category() {
	case "VAL":
		return ReasonBadRequest
	case "AUTH":
		return ReasonNotAuthenticated
	case "AUTHZ":
		return ReasonForbidden
	case "NF":
		return ReasonNotFound
	case "UNAVAIL", "TIMEOUT":
		return ReasonUnavailable
	default:
		return ReasonInternal
	}
}
