package redis

import (
	"context"
	"time"

	sserr "github.com/StricklySoft/stricklysoft-access/pkg/errors"
)

// DefaultRevocationPrefix namespaces revocation keys.
const DefaultRevocationPrefix = "access:revoked:"

// RevocationList records revoked token ids (jti) until the token would
// have expired anyway. Lookups return an error rather than false when
// Redis is unreachable so callers can fail closed.
type RevocationList struct {
	client *Client
	prefix string
	now    func() time.Time
}

// NewRevocationList returns a RevocationList storing keys under prefix,
// or DefaultRevocationPrefix when prefix is empty.
func NewRevocationList(client *Client, prefix string) *RevocationList {
	if prefix == "" {
		prefix = DefaultRevocationPrefix
	}
	return &RevocationList{client: client, prefix: prefix, now: time.Now}
}

// Revoke marks jti revoked until expiresAt. A token already past its
// expiry is not recorded.
func (r *RevocationList) Revoke(ctx context.Context, jti string, expiresAt time.Time) error {
	if jti == "" {
		return sserr.Validationf("redis: token id is required")
	}
	ttl := expiresAt.Sub(r.now())
	if ttl <= 0 {
		return nil
	}
	return r.client.Set(ctx, r.prefix+jti, 1, ttl)
}

// IsRevoked reports whether jti has been revoked. Tokens without an id
// are never considered revoked.
func (r *RevocationList) IsRevoked(ctx context.Context, jti string) (bool, error) {
	if jti == "" {
		return false, nil
	}
	return r.client.Exists(ctx, r.prefix+jti)
}
