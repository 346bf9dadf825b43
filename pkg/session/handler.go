// Package session serves the login, refresh, organization switch,
// logout and JWKS endpoints of the issuing service, plus two read-only
// API routes behind the gate.
//
// Tokens travel as HttpOnly cookies on the shared parent domain. The
// access cookie is readable by every service; the refresh cookie is
// scoped to /auth. Response bodies carry the outcome only:
//
//	{"status":"ok","organization_id":"..."}
//	{"status":"select_org","organizations":[...]}
//
// Errors use the gate's {"error": reason} body so clients parse one
// shape everywhere.
package session

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/StricklySoft/stricklysoft-access/pkg/entitlements"
	sserr "github.com/StricklySoft/stricklysoft-access/pkg/errors"
	"github.com/StricklySoft/stricklysoft-access/pkg/gate"
	"github.com/StricklySoft/stricklysoft-access/pkg/keys"
	"github.com/StricklySoft/stricklysoft-access/pkg/metrics"
	"github.com/StricklySoft/stricklysoft-access/pkg/tenancy"
	"github.com/StricklySoft/stricklysoft-access/pkg/token"
)

// Users authenticates and loads users. *directory.Store implements it.
type Users interface {
	Authenticate(ctx context.Context, email, password string) (tenancy.User, error)
	User(ctx context.Context, id string) (tenancy.User, error)
}

// Revocations records revoked refresh token ids.
// *redis.RevocationList implements it.
type Revocations interface {
	Revoke(ctx context.Context, jti string, expiresAt time.Time) error
	IsRevoked(ctx context.Context, jti string) (bool, error)
}

// Entitlements lists an organization's enabled entitlements.
// *entitlements.Cache implements it.
type Entitlements interface {
	Enabled(ctx context.Context, orgID string) ([]string, entitlements.OrganizationState, error)
}

// Deps are the components a Handler is built from. Revocations and Admin
// are optional: without revocations logout only clears cookies, and
// without Admin the admin routes are not mounted.
type Deps struct {
	Keys         *keys.Material
	Issuer       *token.Issuer
	Verifier     gate.Verifier
	Resolver     *tenancy.Resolver
	Users        Users
	Members      gate.MembershipReader
	Entitlements Entitlements
	Gate         *gate.Gate
	Revocations  Revocations
	Admin        Admin
}

// Option configures a [Handler].
type Option func(*Handler)

// WithLogger sets the logger. The default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(h *Handler) { h.logger = logger }
}

// WithMetrics sets the metrics recorder and instruments every route.
func WithMetrics(m *metrics.Metrics) Option {
	return func(h *Handler) { h.metrics = m }
}

// Handler serves the session endpoints.
type Handler struct {
	deps    Deps
	cfg     Config
	limiter *limiter
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// New validates cfg and deps and returns a Handler.
func New(deps Deps, cfg Config, opts ...Option) (*Handler, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	switch {
	case deps.Keys == nil || deps.Issuer == nil || deps.Verifier == nil:
		return nil, sserr.Internalf("session: keys, issuer and verifier are required")
	case deps.Resolver == nil || deps.Users == nil:
		return nil, sserr.Internalf("session: resolver and users are required")
	case deps.Members == nil || deps.Entitlements == nil || deps.Gate == nil:
		return nil, sserr.Internalf("session: members, entitlements and gate are required")
	}
	if !deps.Keys.CanSign() {
		return nil, sserr.SigningUnavailable()
	}

	h := &Handler{
		deps:    deps,
		cfg:     cfg,
		limiter: newLimiter(cfg.LoginRPS, cfg.LoginBurst, cfg.LimiterIdle),
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(h)
	}
	if deps.Revocations == nil {
		h.logger.Warn("refresh token revocation disabled; logout only clears cookies")
	}
	return h, nil
}

type route struct {
	pattern string
	handler http.HandlerFunc
}

// Register mounts every route on mux. Routes under /api/ sit behind
// gate authentication.
func (h *Handler) Register(mux *http.ServeMux) {
	public := []route{
		{"POST /auth/login", h.login},
		{"POST /auth/refresh", h.refresh},
		{"POST /auth/select-organization", h.selectOrganization},
		{"POST /auth/logout", h.logout},
		{"GET /.well-known/jwks.json", h.jwks},
	}
	authenticated := append([]route{
		{"GET /api/me", h.me},
		{"GET /api/organizations/{id}/entitlements", h.organizationEntitlements},
	}, h.adminRoutes()...)

	for _, rt := range public {
		mux.Handle(rt.pattern, h.metrics.Instrument(rt.pattern, rt.handler))
	}
	for _, rt := range authenticated {
		mux.Handle(rt.pattern, h.metrics.Instrument(rt.pattern, h.deps.Gate.Authenticate(rt.handler)))
	}
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, msg string, err error) {
	e := sserr.FromError(err)
	if e.HTTPStatus() >= http.StatusInternalServerError {
		h.logger.ErrorContext(r.Context(), msg, "path", r.URL.Path, "error", err)
	} else {
		h.logger.InfoContext(r.Context(), msg, "path", r.URL.Path, "reason", e.Reason(), "error", err)
	}
	gate.WriteError(w, e)
}
