// Package entitlements answers "does organization O have entitlement E
// enabled" for every request, cheaply and without going stale.
//
// # Consistency protocol
//
// Each organization row carries a status and an entitlements version
// that is bumped in the same transaction as any entitlement change or
// suspension. On every check the [Cache]:
//
//  1. returns allowed unconditionally if enforcement is disabled;
//  2. denies an empty organization id;
//  3. reads the organization's status and version by primary key, never
//     from cache;
//  4. denies a suspended organization outright;
//  5. compares the version with its cached entry, serving the enabled
//     set from memory on a match and re-reading every enabled
//     entitlement for the organization on a mismatch, a miss, or entry
//     expiry;
//  6. treats the version carried in the caller's token as advisory only;
//  7. denies on any database error or timeout.
//
// A revoked entitlement therefore stops working on the first check after
// the version bump, not after a cache TTL. Entries are per process and
// are never shared between instances.
package entitlements

import (
	"context"
	"time"

	sserr "github.com/StricklySoft/stricklysoft-access/pkg/errors"
)

// Status is an organization's lifecycle status.
type Status string

const (
	StatusActive    Status = "Active"
	StatusSuspended Status = "Suspended"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool { return s == StatusActive || s == StatusSuspended }

// OrganizationState is the per-check metadata row.
type OrganizationState struct {
	ID                  string
	Status              Status
	EntitlementsVersion int64
}

// Store reads organization metadata and grants.
type Store interface {
	// OrganizationState reads status and version by primary key. A
	// missing organization is an NF_xxx error.
	OrganizationState(ctx context.Context, orgID string) (OrganizationState, error)

	// EnabledEntitlements lists the keys of every enabled grant.
	EnabledEntitlements(ctx context.Context, orgID string) ([]string, error)
}

// AdminStore mutates grants and status. Implementations must bump the
// organization's entitlements version in the same transaction and
// return the new version.
type AdminStore interface {
	SetEntitlement(ctx context.Context, orgID, key string, enabled bool) (int64, error)
	SetStatus(ctx context.Context, orgID string, status Status) (int64, error)
}

// Config controls the cache.
type Config struct {
	// Enforce is the kill switch. When false every check is allowed;
	// use only for local bring-up.
	Enforce bool `json:"enforce" yaml:"enforce" env:"ENTITLEMENTS_ENFORCE" envDefault:"true"`

	// TTL bounds an entry's lifetime even when its version still matches.
	TTL time.Duration `json:"ttl" yaml:"ttl" env:"ENTITLEMENTS_TTL" envDefault:"5m"`

	// LookupTimeout bounds each database read made during a check.
	LookupTimeout time.Duration `json:"lookup_timeout" yaml:"lookup_timeout" env:"ENTITLEMENTS_LOOKUP_TIMEOUT" envDefault:"2s"`

	// MaxEntries caps the number of cached organizations.
	MaxEntries int `json:"max_entries" yaml:"max_entries" env:"ENTITLEMENTS_MAX_ENTRIES" envDefault:"10000"`
}

// DefaultConfig returns the defaults declared in the struct tags.
func DefaultConfig() Config {
	return Config{
		Enforce:       true,
		TTL:           5 * time.Minute,
		LookupTimeout: 2 * time.Second,
		MaxEntries:    10000,
	}
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	switch {
	case c.TTL <= 0:
		return sserr.Newf(sserr.CodeValidationRange, "entitlements: TTL must be positive, got %s", c.TTL)
	case c.LookupTimeout <= 0:
		return sserr.Newf(sserr.CodeValidationRange, "entitlements: lookup timeout must be positive, got %s", c.LookupTimeout)
	case c.MaxEntries < 1:
		return sserr.Newf(sserr.CodeValidationRange, "entitlements: max entries must be at least 1, got %d", c.MaxEntries)
	}
	return nil
}
