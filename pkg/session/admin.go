package session

import (
	"context"
	"net/http"

	sserr "github.com/StricklySoft/stricklysoft-access/pkg/errors"
	"github.com/StricklySoft/stricklysoft-access/pkg/gate"
	"github.com/StricklySoft/stricklysoft-access/pkg/tenancy"
)

// Admin mutates entitlements and organization status.
// *entitlements.Administrator implements it.
type Admin interface {
	Grant(ctx context.Context, orgID, key string) (int64, error)
	Revoke(ctx context.Context, orgID, key string) (int64, error)
	Suspend(ctx context.Context, orgID string) (int64, error)
	Reactivate(ctx context.Context, orgID string) (int64, error)
}

// AdminResult is the body of every admin mutation.
type AdminResult struct {
	OrganizationID      string `json:"organization_id"`
	EntitlementsVersion int64  `json:"entitlements_version"`
}

func (h *Handler) adminRoutes() []route {
	if h.deps.Admin == nil {
		return nil
	}
	entitlement := func(grant bool) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			op := h.deps.Admin.Revoke
			if grant {
				op = h.deps.Admin.Grant
			}
			h.adminMutation(w, r, func(ctx context.Context, orgID string) (int64, error) {
				return op(ctx, orgID, r.PathValue("key"))
			})
		}
	}
	status := func(op func(context.Context, string) (int64, error)) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) { h.adminMutation(w, r, op) }
	}
	return []route{
		{"PUT /api/admin/organizations/{id}/entitlements/{key}", entitlement(true)},
		{"DELETE /api/admin/organizations/{id}/entitlements/{key}", entitlement(false)},
		{"POST /api/admin/organizations/{id}/suspend", status(h.deps.Admin.Suspend)},
		{"POST /api/admin/organizations/{id}/reactivate", status(h.deps.Admin.Reactivate)},
	}
}

func (h *Handler) adminMutation(w http.ResponseWriter, r *http.Request, op func(context.Context, string) (int64, error)) {
	ctx := r.Context()
	claims := gate.MustClaims(ctx)
	if claims.Role != string(tenancy.RoleSuperAdmin) {
		h.fail(w, r, "admin call rejected", sserr.New(sserr.CodeAuthorizationDenied, "session: platform administrators only"))
		return
	}
	orgID := r.PathValue("id")
	version, err := op(ctx, orgID)
	if err != nil {
		h.fail(w, r, "admin call failed", err)
		return
	}
	h.logger.InfoContext(ctx, "admin mutation applied",
		"actor", claims.Subject, "method", r.Method, "path", r.URL.Path, "entitlements_version", version)
	gate.WriteJSON(w, http.StatusOK, AdminResult{OrganizationID: orgID, EntitlementsVersion: version})
}
