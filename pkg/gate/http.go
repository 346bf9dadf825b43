package gate

import (
	"encoding/json"
	"net/http"

	sserr "github.com/StricklySoft/stricklysoft-access/pkg/errors"
)

// HeaderOrganizationID names the organization for RequireMember.
const HeaderOrganizationID = "X-Organization-ID"

// ErrorBody is the JSON body of every gate rejection.
type ErrorBody struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

// Authenticate verifies the access token and stores its claims in the
// request context.
func (g *Gate) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims, err := g.Verify(r.Context(), g.extractToken(r))
		if err != nil {
			g.reject(w, r, err)
			return
		}
		next.ServeHTTP(w, r.WithContext(ContextWithClaims(r.Context(), claims)))
	})
}

// Require authenticates the request and requires entitlement key.
func (g *Gate) Require(key string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return g.Authenticate(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if err := g.Check(r.Context(), MustClaims(r.Context()), key); err != nil {
				g.reject(w, r, err)
				return
			}
			next.ServeHTTP(w, r)
		}))
	}
}

// RequireMember authenticates the request, reads the organization from
// the X-Organization-ID header (falling back to the token), and requires
// membership there plus permission.
func (g *Gate) RequireMember(permission string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return g.Authenticate(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			m, err := g.CheckMember(ctx, MustClaims(ctx), r.Header.Get(HeaderOrganizationID), permission)
			if err != nil {
				g.reject(w, r, err)
				return
			}
			next.ServeHTTP(w, r.WithContext(ContextWithMembership(ctx, m)))
		}))
	}
}

// extractToken prefers the Authorization header over the cookie.
func (g *Gate) extractToken(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		return h
	}
	if c, err := r.Cookie(g.cfg.CookieName); err == nil {
		return c.Value
	}
	return ""
}

func (g *Gate) reject(w http.ResponseWriter, r *http.Request, err error) {
	e := sserr.FromError(err)
	reason := e.Reason()
	g.metrics.GateRejection(reason)
	if e.Code == sserr.CodeAuthenticationExpired || e.Code == sserr.CodeAuthenticationInvalid {
		w.Header().Set("WWW-Authenticate", `Bearer error="invalid_token"`)
	}
	if e.HTTPStatus() >= http.StatusInternalServerError {
		g.logger.ErrorContext(r.Context(), "gate failed", "path", r.URL.Path, "error", err)
	}
	WriteError(w, e)
}

// WriteError writes err as an [ErrorBody] with its HTTP status. Messages
// for authentication failures are coarse; the cause stays server-side.
func WriteError(w http.ResponseWriter, err error) {
	e := sserr.FromError(err)
	body := ErrorBody{Error: e.Reason(), Message: e.Message}
	if sserr.IsAuthentication(e) || e.Code == sserr.CodeVerificationUnavailable {
		body.Message = "authentication required"
		if e.Code == sserr.CodeAuthenticationExpired {
			body.Message = "token expired"
		}
	}
	if sserr.IsInternal(e) {
		body.Message = "internal error"
	}
	WriteJSON(w, e.HTTPStatus(), body)
}

// WriteJSON writes v as JSON with status.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
