// Package gate is the checkpoint every protected route sits behind.
//
// [Gate.Authenticate] verifies the access token from the Authorization
// header, falling back to a cookie, and answers 401 with reason
// not_authenticated or token_expired so clients know whether to log in
// again or refresh silently. [Gate.Require] adds the entitlement check:
//
//	mux.Handle("GET /api/ledger", g.Require("finance")(ledgerHandler))
//
// SuperAdmins bypass every check. Organization Admins bypass the
// entitlement check but not suspension. Everyone else needs the
// organization to have the entitlement enabled, answered by the
// entitlements cache. [Gate.RequireMember] is the header-driven variant
// that also checks membership and the member's own permission.
package gate

import (
	"context"
	"log/slog"

	"github.com/StricklySoft/stricklysoft-access/pkg/entitlements"
	sserr "github.com/StricklySoft/stricklysoft-access/pkg/errors"
	"github.com/StricklySoft/stricklysoft-access/pkg/metrics"
	"github.com/StricklySoft/stricklysoft-access/pkg/tenancy"
	"github.com/StricklySoft/stricklysoft-access/pkg/token"
)

// Verifier verifies raw tokens. *token.Verifier implements it.
type Verifier interface {
	Verify(ctx context.Context, raw string, want token.Type) (*token.Claims, error)
}

// Checker answers entitlement and status questions.
// *entitlements.Cache implements it.
type Checker interface {
	Authorize(ctx context.Context, orgID string, tokenVersion *int64, key string) error
	OrganizationActive(ctx context.Context, orgID string) error
}

// MembershipReader loads one membership, or nil for a non-member.
// *directory.Store implements it.
type MembershipReader interface {
	Membership(ctx context.Context, orgID, userID string) (*tenancy.Membership, error)
}

var _ Checker = (*entitlements.Cache)(nil)

// Config controls token extraction and the legacy services shim.
type Config struct {
	// CookieName is the access token cookie consulted when the request
	// has no Authorization header.
	CookieName string `json:"cookie_name" yaml:"cookie_name" env:"AUTH_COOKIE_NAME" envDefault:"access_token"`

	// LegacyServices lets the token's services list grant an entitlement
	// the cache denied. Suspension and lookup failures are never
	// overridden. Off unless a deployment still depends on it.
	LegacyServices bool `json:"legacy_services" yaml:"legacy_services" env:"AUTH_LEGACY_SERVICES"`
}

// DefaultConfig returns the defaults declared in the struct tags.
func DefaultConfig() Config { return Config{CookieName: "access_token"} }

// Option configures a [Gate].
type Option func(*Gate)

// WithLogger sets the logger. The default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(g *Gate) { g.logger = logger }
}

// WithMetrics sets the metrics recorder.
func WithMetrics(m *metrics.Metrics) Option {
	return func(g *Gate) { g.metrics = m }
}

// WithMembers enables [Gate.RequireMember].
func WithMembers(members MembershipReader) Option {
	return func(g *Gate) { g.members = members }
}

// WithRoleServices replaces tenancy.DefaultRoleServices for member
// permission defaults.
func WithRoleServices(rs tenancy.RoleServices) Option {
	return func(g *Gate) { g.roles = rs }
}

// Gate combines token verification with entitlement checks.
type Gate struct {
	verifier Verifier
	checker  Checker
	members  MembershipReader
	roles    tenancy.RoleServices
	cfg      Config
	logger   *slog.Logger
	metrics  *metrics.Metrics
}

// New returns a Gate.
func New(verifier Verifier, checker Checker, cfg Config, opts ...Option) *Gate {
	if cfg.CookieName == "" {
		cfg.CookieName = DefaultConfig().CookieName
	}
	g := &Gate{
		verifier: verifier,
		checker:  checker,
		roles:    tenancy.DefaultRoleServices(),
		cfg:      cfg,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Verify checks an access token. Missing tokens are AUTH_001.
func (g *Gate) Verify(ctx context.Context, raw string) (*token.Claims, error) {
	if token.StripBearer(raw) == "" {
		return nil, sserr.New(sserr.CodeAuthentication, "authentication required")
	}
	claims, err := g.verifier.Verify(ctx, raw, token.TypeAccess)
	if err != nil {
		g.logger.InfoContext(ctx, "access token rejected", "reason", sserr.ReasonOf(err), "error", err)
		return nil, err
	}
	return claims, nil
}

// Check decides whether claims may use entitlement key in the token's
// organization.
func (g *Gate) Check(ctx context.Context, claims *token.Claims, key string) error {
	if claims.Role == string(tenancy.RoleSuperAdmin) {
		return nil
	}
	orgID, _ := claims.Organization()
	if orgID != "" && g.orgAdmin(ctx, claims, orgID) {
		return g.checker.OrganizationActive(ctx, orgID)
	}

	err := g.checker.Authorize(ctx, orgID, claims.EntitlementsVersion, key)
	if err == nil || !g.cfg.LegacyServices {
		return err
	}
	e, ok := sserr.AsError(err)
	if !ok || e.Code != sserr.CodeEntitlementDenied || e.Cause != nil || orgID == "" || !claims.HasService(key) {
		return err
	}
	g.metrics.LegacyGrant()
	g.logger.WarnContext(ctx, "entitlement granted by legacy services claim",
		"user_id", claims.Subject, "organization_id", orgID, "entitlement", key)
	return nil
}

// orgAdmin reports whether claims carry the Admin role in orgID. With a
// membership reader the stored role wins over the token's, so a demotion
// takes effect before the token expires. A failed lookup is not admin.
func (g *Gate) orgAdmin(ctx context.Context, claims *token.Claims, orgID string) bool {
	if claims.OrganizationRole != string(tenancy.RoleAdmin) {
		return false
	}
	if g.members == nil {
		return true
	}
	m, err := g.members.Membership(ctx, orgID, claims.Subject)
	if err != nil {
		g.logger.WarnContext(ctx, "org admin role could not be confirmed",
			"user_id", claims.Subject, "organization_id", orgID, "error", err)
		return false
	}
	return m != nil && m.Role == tenancy.RoleAdmin
}

// CheckMember decides whether claims may act on orgID with permission.
// An empty orgID falls back to the token's organization. On success the
// membership is returned; it is nil for SuperAdmins.
func (g *Gate) CheckMember(ctx context.Context, claims *token.Claims, orgID, permission string) (*tenancy.Membership, error) {
	if claims.Role == string(tenancy.RoleSuperAdmin) {
		return nil, nil
	}
	if orgID == "" {
		orgID, _ = claims.Organization()
	}
	if orgID == "" {
		return nil, sserr.OrgContextRequired(claims.Subject)
	}
	if g.members == nil {
		return nil, sserr.Internalf("gate: membership checks are not configured")
	}

	m, err := g.members.Membership(ctx, orgID, claims.Subject)
	if err != nil {
		g.logger.ErrorContext(ctx, "membership lookup failed closed",
			"user_id", claims.Subject, "organization_id", orgID, "error", err)
		denied := sserr.MembershipRequired(orgID)
		denied.Cause = err
		return nil, denied
	}
	if m == nil {
		return nil, sserr.MembershipRequired(orgID)
	}
	if err := g.checker.OrganizationActive(ctx, orgID); err != nil {
		return nil, err
	}
	if m.Role == tenancy.RoleAdmin {
		return m, nil
	}

	// The token's version is only meaningful for the organization it was
	// issued for.
	var version *int64
	if tokenOrg, _ := claims.Organization(); tokenOrg == orgID {
		version = claims.EntitlementsVersion
	}
	if err := g.checker.Authorize(ctx, orgID, version, permission); err != nil {
		return nil, err
	}
	if !m.Allows(permission, g.roles) {
		return nil, sserr.PermissionDenied(orgID, permission)
	}
	return m, nil
}
