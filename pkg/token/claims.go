// Package token issues and verifies the RS256 access and refresh tokens
// shared by every service of the platform.
//
// Access tokens are short-lived and carry the caller's organization
// context: the active organization, the role held there, the
// entitlements version observed at issuance, and the legacy services
// list. Refresh tokens are long-lived and deliberately carry only the
// subject and email, so nothing that can go stale is trusted for their
// whole lifetime.
//
// The [Verifier] distinguishes three outcomes: a valid token yields its
// [Claims]; a correctly signed token past its expiry yields a
// CodeAuthenticationExpired error; anything else (bad signature, wrong
// issuer, audience or type, missing required claims, malformed input)
// yields CodeAuthenticationInvalid. Claims are never returned alongside
// an error.
package token

import (
	"errors"
	"slices"

	"github.com/golang-jwt/jwt/v5"
)

// Type distinguishes access tokens from refresh tokens.
type Type string

const (
	TypeAccess  Type = "access"
	TypeRefresh Type = "refresh"
)

// Valid reports whether t is a known token type.
func (t Type) Valid() bool {
	return t == TypeAccess || t == TypeRefresh
}

// WildcardService in the services list grants every service.
const WildcardService = "*"

var (
	errMissingSubject = errors.New("token is missing the sub claim")
	errUnknownType    = errors.New("token has an unknown type claim")
	errInvalidShape   = errors.New("token claims are malformed")
)

// Claims is the payload of both token types.
type Claims struct {
	jwt.RegisteredClaims

	// Email is the user's email address.
	Email string `json:"email,omitempty"`

	// Role is the user's global role.
	Role string `json:"role,omitempty"`

	// OrganizationID is the active organization. Nil means the token is
	// not scoped to any organization.
	OrganizationID *string `json:"organization_id,omitempty"`

	// OrganizationRole is the role held in OrganizationID.
	OrganizationRole string `json:"org_role,omitempty"`

	// EntitlementsVersion is the organization's entitlements version at
	// issuance. It is advisory only.
	EntitlementsVersion *int64 `json:"entitlements_version,omitempty"`

	// Services is the legacy capability list.
	Services []string `json:"services,omitempty"`

	// Type is "access" or "refresh".
	Type Type `json:"type"`
}

// Organization returns the active organization id and whether one is set.
func (c *Claims) Organization() (string, bool) {
	if c == nil || c.OrganizationID == nil || *c.OrganizationID == "" {
		return "", false
	}
	return *c.OrganizationID, true
}

// SetOrganization scopes the claims to orgID, or clears the scope when
// orgID is empty.
func (c *Claims) SetOrganization(orgID string) {
	if orgID == "" {
		c.OrganizationID = nil
		return
	}
	c.OrganizationID = &orgID
}

// HasService reports whether the legacy services list grants key.
func (c *Claims) HasService(key string) bool {
	return slices.Contains(c.Services, key) || slices.Contains(c.Services, WildcardService)
}

// Validate is called by the jwt parser after the registered claims have
// been checked.
func (c Claims) Validate() error {
	var errs []error
	if c.Subject == "" {
		errs = append(errs, errMissingSubject)
	}
	if !c.Type.Valid() {
		errs = append(errs, errUnknownType)
	}
	if c.OrganizationID != nil && *c.OrganizationID == "" {
		errs = append(errs, errInvalidShape)
	}
	if len(errs) == 0 {
		return nil
	}
	return errors.Join(append(errs, errInvalidShape)...)
}
