// Package tenancy decides which organization a user's next access token
// is scoped to.
//
// A user may belong to many organizations. [Resolver.Resolve] picks the
// active one without asking when it can (the sticky last-active
// organization, or the only membership) and otherwise returns an
// OrgContextRequired error so the caller can send the user to an
// organization chooser. [Resolver.Select] is the explicit switch used by
// that chooser. Both persist the chosen organization as the user's new
// last-active organization.
package tenancy

import (
	"slices"
	"sort"
)

// GlobalRole is a user's platform-wide role.
type GlobalRole string

const (
	RoleStandard   GlobalRole = "Standard"
	RoleSuperAdmin GlobalRole = "SuperAdmin"
)

// OrgRole is the role a member holds within one organization.
type OrgRole string

const (
	RoleAdmin  OrgRole = "Admin"
	RoleMember OrgRole = "Member"
)

// Valid reports whether r is a known organization role.
func (r OrgRole) Valid() bool { return r == RoleAdmin || r == RoleMember }

// AllServices is the services entry granting every service.
const AllServices = "*"

// User is the subset of the user record the resolver needs.
type User struct {
	ID    string
	Email string
	Role  GlobalRole

	// LastActiveOrganizationID is empty when the user has never
	// resolved a context.
	LastActiveOrganizationID string
}

// IsSuperAdmin reports whether the user holds the platform super-admin
// role.
func (u User) IsSuperAdmin() bool { return u.Role == RoleSuperAdmin }

// Membership is a user's membership in one organization, joined with the
// organization fields the resolver embeds in tokens.
type Membership struct {
	OrganizationID   string
	OrganizationName string
	UserID           string
	Role             OrgRole

	// Permissions overrides the role defaults per permission key. A true
	// value grants, a false value revokes.
	Permissions map[string]bool

	// EntitlementsVersion is the organization's version when the
	// membership was read.
	EntitlementsVersion int64
}

// Allows reports whether the member holds permission under roles. Admins
// hold every permission. For members an explicit override wins over the
// role default.
func (m Membership) Allows(permission string, roles RoleServices) bool {
	if m.Role == RoleAdmin {
		return true
	}
	if granted, ok := m.Permissions[permission]; ok {
		return granted
	}
	defaults := roles[m.Role]
	return slices.Contains(defaults, permission) || slices.Contains(defaults, AllServices)
}

// RoleServices maps an organization role to its default services.
type RoleServices map[OrgRole][]string

// DefaultRoleServices grants admins everything and members nothing
// beyond their explicit overrides.
func DefaultRoleServices() RoleServices {
	return RoleServices{
		RoleAdmin:  {AllServices},
		RoleMember: {},
	}
}

// Services computes the legacy services list for m: the role defaults
// plus granted overrides minus revoked overrides, sorted.
func (rs RoleServices) Services(m Membership) []string {
	set := make(map[string]struct{})
	for _, s := range rs[m.Role] {
		set[s] = struct{}{}
	}
	for key, granted := range m.Permissions {
		if granted {
			set[key] = struct{}{}
		} else if m.Role != RoleAdmin {
			delete(set, key)
		}
	}
	out := make([]string, 0, len(set))
	for s := range set {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

// Context is a resolved organization context, ready to embed in an
// access token.
type Context struct {
	OrganizationID      string
	OrganizationName    string
	Role                OrgRole
	Services            []string
	EntitlementsVersion int64
}
