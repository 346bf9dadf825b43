package session

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	sserr "github.com/StricklySoft/stricklysoft-access/pkg/errors"
	"github.com/StricklySoft/stricklysoft-access/pkg/gate"
	"github.com/StricklySoft/stricklysoft-access/pkg/tenancy"
	"github.com/StricklySoft/stricklysoft-access/pkg/token"
)

// Outcomes reported in Response.Status.
const (
	StatusOK        = "ok"
	StatusSelectOrg = "select_org"
	StatusLoggedOut = "logged_out"
)

const maxBodyBytes = 16 << 10

// Response is the body of every successful session call.
type Response struct {
	Status           string         `json:"status"`
	OrganizationID   string         `json:"organization_id,omitempty"`
	OrganizationName string         `json:"organization_name,omitempty"`
	OrganizationRole string         `json:"org_role,omitempty"`
	ExpiresAt        *time.Time     `json:"expires_at,omitempty"`
	Organizations    []Organization `json:"organizations,omitempty"`
}

// Organization is one entry of the organization chooser.
type Organization struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Role string `json:"role"`
}

// LoginRequest is the login body.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// SelectRequest is the select-organization body.
type SelectRequest struct {
	OrganizationID string `json:"organization_id"`
}

func decode(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return sserr.Wrap(err, sserr.CodeValidationFormat, "session: malformed request body")
	}
	return nil
}

func (h *Handler) login(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if !h.limiter.allow(clientIP(r, h.cfg.TrustForwardedFor)) {
		w.Header().Set("Retry-After", "2")
		h.fail(w, r, "login rate limited", sserr.New(sserr.CodeUnavailableOverloaded, "session: too many login attempts"))
		return
	}

	var req LoginRequest
	if err := decode(r, &req); err != nil {
		h.fail(w, r, "login rejected", err)
		return
	}
	req.Email = strings.TrimSpace(req.Email)
	if req.Email == "" || req.Password == "" {
		h.fail(w, r, "login rejected", sserr.New(sserr.CodeValidationRequired, "session: email and password are required"))
		return
	}

	user, err := h.deps.Users.Authenticate(ctx, req.Email, req.Password)
	if err != nil {
		h.fail(w, r, "login failed", err)
		return
	}

	refresh, err := h.deps.Issuer.IssueRefresh(ctx, baseClaims(user))
	if err != nil {
		h.fail(w, r, "refresh token issuance failed", err)
		return
	}
	h.metrics.TokenIssued(string(token.TypeRefresh))
	h.setCookie(w, h.cfg.RefreshCookie, refresh.Token, refreshPath, refresh.ExpiresAt)

	h.logger.InfoContext(ctx, "user logged in", "user_id", user.ID)
	h.completeSession(w, r, user)
}

func (h *Handler) refresh(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	claims, err := h.refreshClaims(r)
	if err != nil {
		h.fail(w, r, "refresh rejected", err)
		return
	}
	user, err := h.deps.Users.User(ctx, claims.Subject)
	if err != nil {
		if sserr.IsNotFound(err) {
			err = sserr.TokenInvalid(err)
		}
		h.fail(w, r, "refresh rejected", err)
		return
	}

	tc, err := h.deps.Resolver.Resolve(ctx, user)
	if err == nil {
		h.issueAccess(w, r, user, &tc)
		return
	}
	if sserr.IsOrgContextRequired(err) && user.IsSuperAdmin() {
		memberships, lerr := h.deps.Resolver.Organizations(ctx, user.ID)
		if lerr != nil {
			h.fail(w, r, "organization listing failed", lerr)
			return
		}
		if len(memberships) == 0 {
			h.issueAccess(w, r, user, nil)
			return
		}
	}
	h.fail(w, r, "refresh could not resolve organization", err)
}

func (h *Handler) selectOrganization(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req SelectRequest
	if err := decode(r, &req); err != nil {
		h.fail(w, r, "select organization rejected", err)
		return
	}

	claims, err := h.selectorClaims(r)
	if err != nil {
		h.fail(w, r, "select organization rejected", err)
		return
	}
	user, err := h.deps.Users.User(ctx, claims.Subject)
	if err != nil {
		if sserr.IsNotFound(err) {
			err = sserr.TokenInvalid(err)
		}
		h.fail(w, r, "select organization rejected", err)
		return
	}

	tc, err := h.deps.Resolver.Select(ctx, user, strings.TrimSpace(req.OrganizationID))
	if err != nil {
		h.fail(w, r, "select organization rejected", err)
		return
	}
	h.logger.InfoContext(ctx, "organization selected", "user_id", user.ID, "organization_id", tc.OrganizationID)
	h.issueAccess(w, r, user, &tc)
}

func (h *Handler) logout(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if raw := cookieValue(r, h.cfg.RefreshCookie); raw != "" && h.deps.Revocations != nil {
		claims, err := h.deps.Verifier.Verify(ctx, raw, token.TypeRefresh)
		switch {
		case err != nil:
			h.logger.DebugContext(ctx, "logout with unusable refresh token", "reason", sserr.ReasonOf(err))
		case claims.ExpiresAt != nil:
			if err := h.deps.Revocations.Revoke(ctx, claims.ID, claims.ExpiresAt.Time); err != nil {
				h.logger.ErrorContext(ctx, "refresh token revocation failed", "user_id", claims.Subject, "error", err)
			}
		}
	}
	h.clearCookies(w)
	gate.WriteJSON(w, http.StatusOK, Response{Status: StatusLoggedOut})
}

// completeSession finishes login: a scoped access token when the context
// resolves, otherwise the organization chooser.
func (h *Handler) completeSession(w http.ResponseWriter, r *http.Request, user tenancy.User) {
	ctx := r.Context()
	tc, err := h.deps.Resolver.Resolve(ctx, user)
	if err == nil {
		h.issueAccess(w, r, user, &tc)
		return
	}
	if !sserr.IsOrgContextRequired(err) {
		h.fail(w, r, "organization resolution failed", err)
		return
	}

	memberships, err := h.deps.Resolver.Organizations(ctx, user.ID)
	if err != nil {
		h.fail(w, r, "organization listing failed", err)
		return
	}
	if len(memberships) == 0 && user.IsSuperAdmin() {
		h.issueAccess(w, r, user, nil)
		return
	}

	orgs := make([]Organization, 0, len(memberships))
	for _, m := range memberships {
		orgs = append(orgs, Organization{ID: m.OrganizationID, Name: m.OrganizationName, Role: string(m.Role)})
	}
	// A stale access cookie must not outlive the switch to a chooser.
	h.expireCookie(w, h.cfg.AccessCookie, "/", h.cfg.CookieDomain)
	gate.WriteJSON(w, http.StatusOK, Response{Status: StatusSelectOrg, Organizations: orgs})
}

// issueAccess signs an access token for user scoped to tc, or unscoped
// when tc is nil, and writes it as the access cookie.
func (h *Handler) issueAccess(w http.ResponseWriter, r *http.Request, user tenancy.User, tc *tenancy.Context) {
	claims := baseClaims(user)
	resp := Response{Status: StatusOK}
	if tc != nil {
		version := tc.EntitlementsVersion
		claims.SetOrganization(tc.OrganizationID)
		claims.OrganizationRole = string(tc.Role)
		claims.EntitlementsVersion = &version
		claims.Services = tc.Services
		resp.OrganizationID = tc.OrganizationID
		resp.OrganizationName = tc.OrganizationName
		resp.OrganizationRole = string(tc.Role)
	}

	issued, err := h.deps.Issuer.IssueAccess(r.Context(), claims, 0)
	if err != nil {
		h.fail(w, r, "access token issuance failed", err)
		return
	}
	h.metrics.TokenIssued(string(token.TypeAccess))
	h.setCookie(w, h.cfg.AccessCookie, issued.Token, "/", issued.ExpiresAt)

	resp.ExpiresAt = &issued.ExpiresAt
	gate.WriteJSON(w, http.StatusOK, resp)
}

// refreshClaims verifies the refresh cookie and checks revocation. A
// revocation lookup failure rejects the token.
func (h *Handler) refreshClaims(r *http.Request) (*token.Claims, error) {
	raw := cookieValue(r, h.cfg.RefreshCookie)
	if raw == "" {
		return nil, sserr.New(sserr.CodeAuthentication, "session: refresh token required")
	}
	claims, err := h.deps.Verifier.Verify(r.Context(), raw, token.TypeRefresh)
	if err != nil {
		return nil, err
	}
	if h.deps.Revocations == nil {
		return claims, nil
	}
	revoked, err := h.deps.Revocations.IsRevoked(r.Context(), claims.ID)
	if err != nil {
		return nil, sserr.Wrap(err, sserr.CodeUnavailableDependency, "session: revocation list unavailable")
	}
	if revoked {
		return nil, sserr.TokenInvalid(errRevoked)
	}
	return claims, nil
}

var errRevoked = errors.New("refresh token has been revoked")

// selectorClaims authenticates a select-organization call with the
// access token when it is still valid, otherwise with the refresh token.
func (h *Handler) selectorClaims(r *http.Request) (*token.Claims, error) {
	raw := r.Header.Get("Authorization")
	if raw == "" {
		raw = cookieValue(r, h.cfg.AccessCookie)
	}
	if raw != "" {
		claims, err := h.deps.Verifier.Verify(r.Context(), raw, token.TypeAccess)
		if err == nil {
			return claims, nil
		}
		if sserr.GetCode(err) == sserr.CodeVerificationUnavailable {
			return nil, err
		}
	}
	return h.refreshClaims(r)
}

func baseClaims(user tenancy.User) token.Claims {
	return token.Claims{
		RegisteredClaims: jwt.RegisteredClaims{Subject: user.ID},
		Email:            user.Email,
		Role:             string(user.Role),
	}
}
