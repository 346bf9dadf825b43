// Package errors defines the structured error type shared by every package
// of the access core: key loading, token issuance and verification,
// organization context resolution, the entitlements cache, and the
// authorization gate.
//
// # Taxonomy
//
// Each failure mode the core can produce has a stable code:
//
//   - Key configuration problems ([CodeKeyConfiguration]) are fatal at
//     startup and name the offending variable in Details["variable"].
//   - [CodeSigningUnavailable] is returned when a verify-only service
//     attempts to issue a token.
//   - [CodeAuthenticationExpired] and [CodeAuthenticationInvalid] are the
//     two verification outcomes other than success.
//   - [CodeOrgContextRequired] signals an ambiguous tenant and is
//     recoverable through the select-organization flow.
//   - [CodeEntitlementDenied] and [CodeOrganizationSuspended] are
//     authorization outcomes; suspension always wins.
//
// # Client reasons
//
// Cryptographic detail never reaches clients. [Error.Reason] collapses a
// code into the coarse, machine-readable string written in HTTP bodies
// (for example "token_expired" or "not_authenticated") while the full
// error, including its cause chain, stays in server-side logs.
//
// # Usage
//
//	err := errors.KeyConfiguration("AUTH_PUBLIC_KEY", "public key is required", nil)
//
//	if errors.IsExpired(err) {
//	    // ask the client to refresh silently
//	}
package errors
