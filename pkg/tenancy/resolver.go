package tenancy

import (
	"context"
	"log/slog"

	sserr "github.com/StricklySoft/stricklysoft-access/pkg/errors"
)

// Store is the membership storage the resolver reads and writes.
type Store interface {
	// Memberships lists every membership of userID.
	Memberships(ctx context.Context, userID string) ([]Membership, error)

	// Membership returns the membership of userID in orgID, or nil when
	// the user is not a member.
	Membership(ctx context.Context, orgID, userID string) (*Membership, error)

	// SetLastActiveOrganization records orgID as the user's sticky
	// organization.
	SetLastActiveOrganization(ctx context.Context, userID, orgID string) error
}

// Option configures a [Resolver].
type Option func(*Resolver)

// WithRoleServices replaces [DefaultRoleServices].
func WithRoleServices(rs RoleServices) Option {
	return func(r *Resolver) { r.roles = rs }
}

// WithLogger sets the logger. The default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(r *Resolver) { r.logger = logger }
}

// Resolver resolves and switches organization contexts.
type Resolver struct {
	store  Store
	roles  RoleServices
	logger *slog.Logger
}

// NewResolver creates a Resolver backed by store.
func NewResolver(store Store, opts ...Option) *Resolver {
	r := &Resolver{store: store, roles: DefaultRoleServices(), logger: slog.Default()}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Roles returns the role-to-services mapping in use.
func (r *Resolver) Roles() RoleServices { return r.roles }

// Resolve picks the organization for user's next token:
//
//  1. the last-active organization, if the user is still a member there;
//  2. otherwise the only membership, if there is exactly one;
//  3. otherwise nothing, reported as an OrgContextRequired error.
//
// The chosen organization is persisted as the new last-active one.
func (r *Resolver) Resolve(ctx context.Context, user User) (Context, error) {
	if user.LastActiveOrganizationID != "" {
		m, err := r.store.Membership(ctx, user.LastActiveOrganizationID, user.ID)
		if err != nil {
			return Context{}, err
		}
		if m != nil {
			return r.activate(ctx, user, *m)
		}
		r.logger.InfoContext(ctx, "last active organization no longer a membership",
			"user_id", user.ID, "organization_id", user.LastActiveOrganizationID)
	}

	memberships, err := r.store.Memberships(ctx, user.ID)
	if err != nil {
		return Context{}, err
	}
	if len(memberships) == 1 {
		return r.activate(ctx, user, memberships[0])
	}
	return Context{}, sserr.OrgContextRequired(user.ID).
		WithDetail("memberships", len(memberships))
}

// Select switches user to orgID. The caller must already have
// authenticated the user; Select only checks membership.
func (r *Resolver) Select(ctx context.Context, user User, orgID string) (Context, error) {
	if orgID == "" {
		return Context{}, sserr.New(sserr.CodeValidationRequired, "tenancy: organization id is required")
	}
	m, err := r.store.Membership(ctx, orgID, user.ID)
	if err != nil {
		return Context{}, err
	}
	if m == nil {
		return Context{}, sserr.MembershipRequired(orgID)
	}
	return r.activate(ctx, user, *m)
}

// Organizations lists the user's memberships for an organization chooser.
func (r *Resolver) Organizations(ctx context.Context, userID string) ([]Membership, error) {
	return r.store.Memberships(ctx, userID)
}

func (r *Resolver) activate(ctx context.Context, user User, m Membership) (Context, error) {
	if m.OrganizationID != user.LastActiveOrganizationID {
		if err := r.store.SetLastActiveOrganization(ctx, user.ID, m.OrganizationID); err != nil {
			return Context{}, err
		}
	}
	return Context{
		OrganizationID:      m.OrganizationID,
		OrganizationName:    m.OrganizationName,
		Role:                m.Role,
		Services:            r.roles.Services(m),
		EntitlementsVersion: m.EntitlementsVersion,
	}, nil
}
