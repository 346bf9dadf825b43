//go:build integration

package directory_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/StricklySoft/stricklysoft-access/internal/testutil/containers"
	"github.com/StricklySoft/stricklysoft-access/pkg/clients/postgres"
	"github.com/StricklySoft/stricklysoft-access/pkg/directory"
	"github.com/StricklySoft/stricklysoft-access/pkg/entitlements"
	sserr "github.com/StricklySoft/stricklysoft-access/pkg/errors"
	"github.com/StricklySoft/stricklysoft-access/pkg/tenancy"
)

func TestIntegration_DirectoryDrivesCacheAndResolver(t *testing.T) {
	pg := containers.Postgres(t)
	ctx := context.Background()

	db, err := postgres.NewClient(ctx, postgres.Config{URI: pg.ConnString, MaxConns: 4, MinConns: 1})
	require.NoError(t, err)
	t.Cleanup(db.Close)

	store := directory.New(db, directory.WithBcryptCost(bcrypt.MinCost))
	require.NoError(t, store.Migrate(ctx))
	require.NoError(t, store.Migrate(ctx), "schema must apply twice")

	require.NoError(t, store.DefineEntitlement(ctx, directory.Entitlement{Key: "daily", Description: "Daily logs"}))
	org, err := store.CreateOrganization(ctx, "Acme")
	require.NoError(t, err)
	user, err := store.CreateUser(ctx, "Ada@Example.test", "pw", tenancy.RoleStandard)
	require.NoError(t, err)
	require.NoError(t, store.AddMember(ctx, org.ID, user.ID, tenancy.RoleMember, map[string]bool{"daily": true}))

	_, err = store.CreateUser(ctx, "ada@example.test", "pw2", tenancy.RoleStandard)
	assert.True(t, sserr.HasCode(err, sserr.CodeConflictAlreadyExists), "email is unique case-insensitively: %v", err)

	authed, err := store.Authenticate(ctx, "ADA@example.test", "pw")
	require.NoError(t, err)
	assert.Equal(t, user.ID, authed.ID)

	resolved, err := tenancy.NewResolver(store).Resolve(ctx, authed)
	require.NoError(t, err)
	assert.Equal(t, org.ID, resolved.OrganizationID)

	reloaded, err := store.User(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, org.ID, reloaded.LastActiveOrganizationID)

	cache, err := entitlements.New(store, entitlements.DefaultConfig())
	require.NoError(t, err)
	admin := entitlements.NewAdministrator(store, cache, nil)

	assert.False(t, cache.CheckAccess(ctx, org.ID, &resolved.EntitlementsVersion, "daily"))
	v, err := admin.Grant(ctx, org.ID, "daily")
	require.NoError(t, err)
	assert.Equal(t, int64(2), v)
	assert.True(t, cache.CheckAccess(ctx, org.ID, nil, "daily"))

	other, err := entitlements.New(store, entitlements.DefaultConfig())
	require.NoError(t, err)
	require.True(t, other.CheckAccess(ctx, org.ID, nil, "daily"))

	_, err = admin.Suspend(ctx, org.ID)
	require.NoError(t, err)
	assert.False(t, other.CheckAccess(ctx, org.ID, nil, "daily"), "suspension reaches an instance that never saw the change")
}
