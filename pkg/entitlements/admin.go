package entitlements

import (
	"context"
	"log/slog"

	sserr "github.com/StricklySoft/stricklysoft-access/pkg/errors"
)

// Administrator applies grant and status changes through an AdminStore
// and drops the local cache entry afterwards. Other instances pick the
// change up from the version bump on their next check.
type Administrator struct {
	store  AdminStore
	cache  *Cache
	logger *slog.Logger
}

// NewAdministrator returns an Administrator. cache may be nil.
func NewAdministrator(store AdminStore, cache *Cache, logger *slog.Logger) *Administrator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Administrator{store: store, cache: cache, logger: logger}
}

// Grant enables key for orgID and returns the new version.
func (a *Administrator) Grant(ctx context.Context, orgID, key string) (int64, error) {
	return a.setEntitlement(ctx, orgID, key, true)
}

// Revoke disables key for orgID and returns the new version.
func (a *Administrator) Revoke(ctx context.Context, orgID, key string) (int64, error) {
	return a.setEntitlement(ctx, orgID, key, false)
}

// Suspend marks orgID suspended. Every check for it is denied from the
// next metadata read on, regardless of cached grants.
func (a *Administrator) Suspend(ctx context.Context, orgID string) (int64, error) {
	return a.setStatus(ctx, orgID, StatusSuspended)
}

// Reactivate marks orgID active again.
func (a *Administrator) Reactivate(ctx context.Context, orgID string) (int64, error) {
	return a.setStatus(ctx, orgID, StatusActive)
}

func (a *Administrator) setEntitlement(ctx context.Context, orgID, key string, enabled bool) (int64, error) {
	if orgID == "" || key == "" {
		return 0, sserr.Validationf("entitlements: organization id and entitlement key are required")
	}
	version, err := a.store.SetEntitlement(ctx, orgID, key, enabled)
	if err != nil {
		return 0, err
	}
	a.invalidate(orgID)
	a.logger.InfoContext(ctx, "entitlement updated",
		"organization_id", orgID, "entitlement", key, "enabled", enabled, "version", version)
	return version, nil
}

func (a *Administrator) setStatus(ctx context.Context, orgID string, status Status) (int64, error) {
	if orgID == "" {
		return 0, sserr.Validationf("entitlements: organization id is required")
	}
	version, err := a.store.SetStatus(ctx, orgID, status)
	if err != nil {
		return 0, err
	}
	a.invalidate(orgID)
	a.logger.InfoContext(ctx, "organization status updated",
		"organization_id", orgID, "status", string(status), "version", version)
	return version, nil
}

func (a *Administrator) invalidate(orgID string) {
	if a.cache != nil {
		a.cache.Invalidate(orgID)
	}
}
