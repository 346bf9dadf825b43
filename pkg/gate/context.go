package gate

import (
	"context"

	"github.com/StricklySoft/stricklysoft-access/pkg/tenancy"
	"github.com/StricklySoft/stricklysoft-access/pkg/token"
)

type contextKey int

const (
	claimsKey contextKey = iota
	membershipKey
)

// ContextWithClaims attaches verified claims to ctx.
func ContextWithClaims(ctx context.Context, claims *token.Claims) context.Context {
	return context.WithValue(ctx, claimsKey, claims)
}

// ClaimsFromContext returns the claims stored by the gate, if any.
func ClaimsFromContext(ctx context.Context) (*token.Claims, bool) {
	claims, ok := ctx.Value(claimsKey).(*token.Claims)
	return claims, ok && claims != nil
}

// MustClaims is ClaimsFromContext for handlers mounted behind the gate.
// It panics when the gate did not run.
func MustClaims(ctx context.Context) *token.Claims {
	claims, ok := ClaimsFromContext(ctx)
	if !ok {
		panic("gate: no claims in context; mount the handler behind Authenticate")
	}
	return claims
}

// ContextWithMembership attaches the membership resolved by RequireMember.
func ContextWithMembership(ctx context.Context, m *tenancy.Membership) context.Context {
	return context.WithValue(ctx, membershipKey, m)
}

// MembershipFromContext returns the membership stored by RequireMember.
// It is absent for SuperAdmins, who need no membership.
func MembershipFromContext(ctx context.Context) (*tenancy.Membership, bool) {
	m, ok := ctx.Value(membershipKey).(*tenancy.Membership)
	return m, ok && m != nil
}
