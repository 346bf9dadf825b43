package session

import (
	"encoding/json"
	"net/http"

	sserr "github.com/StricklySoft/stricklysoft-access/pkg/errors"
	"github.com/StricklySoft/stricklysoft-access/pkg/gate"
	"github.com/StricklySoft/stricklysoft-access/pkg/tenancy"
)

// Me is the body of GET /api/me.
type Me struct {
	UserID              string   `json:"user_id"`
	Email               string   `json:"email"`
	Role                string   `json:"role"`
	OrganizationID      string   `json:"organization_id,omitempty"`
	OrganizationRole    string   `json:"org_role,omitempty"`
	EntitlementsVersion *int64   `json:"entitlements_version,omitempty"`
	Services            []string `json:"services,omitempty"`
}

// OrganizationEntitlements is the body of
// GET /api/organizations/{id}/entitlements.
type OrganizationEntitlements struct {
	OrganizationID      string   `json:"organization_id"`
	Status              string   `json:"status"`
	EntitlementsVersion int64    `json:"entitlements_version"`
	Entitlements        []string `json:"entitlements"`
}

// jwks is public and cacheable; verifiers poll it for rotated keys.
func (h *Handler) jwks(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "public, max-age=300")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(h.deps.Keys.JWKS())
}

func (h *Handler) me(w http.ResponseWriter, r *http.Request) {
	claims := gate.MustClaims(r.Context())
	orgID, _ := claims.Organization()
	gate.WriteJSON(w, http.StatusOK, Me{
		UserID:              claims.Subject,
		Email:               claims.Email,
		Role:                claims.Role,
		OrganizationID:      orgID,
		OrganizationRole:    claims.OrganizationRole,
		EntitlementsVersion: claims.EntitlementsVersion,
		Services:            claims.Services,
	})
}

// organizationEntitlements lists what an organization has enabled. Any
// member may read it; SuperAdmins may read every organization.
func (h *Handler) organizationEntitlements(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	claims := gate.MustClaims(ctx)
	orgID := r.PathValue("id")

	if claims.Role != string(tenancy.RoleSuperAdmin) {
		m, err := h.deps.Members.Membership(ctx, orgID, claims.Subject)
		if err != nil {
			h.fail(w, r, "membership lookup failed", err)
			return
		}
		if m == nil {
			h.fail(w, r, "entitlements listing rejected", sserr.MembershipRequired(orgID))
			return
		}
	}

	enabled, state, err := h.deps.Entitlements.Enabled(ctx, orgID)
	if err != nil {
		h.fail(w, r, "entitlements listing failed", err)
		return
	}
	gate.WriteJSON(w, http.StatusOK, OrganizationEntitlements{
		OrganizationID:      state.ID,
		Status:              string(state.Status),
		EntitlementsVersion: state.EntitlementsVersion,
		Entitlements:        enabled,
	})
}
