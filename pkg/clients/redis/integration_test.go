//go:build integration

package redis_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/StricklySoft/stricklysoft-access/internal/testutil/containers"
	"github.com/StricklySoft/stricklysoft-access/pkg/clients/redis"
)

func TestIntegration_RevocationList(t *testing.T) {
	rc := containers.Redis(t)
	ctx := context.Background()

	client, err := redis.NewClient(ctx, redis.Config{URI: rc.ConnString})
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })
	require.NoError(t, client.Health(ctx))

	list := redis.NewRevocationList(client, "test:revoked:")
	require.NoError(t, list.Revoke(ctx, "jti-a", time.Now().Add(time.Hour)))

	revoked, err := list.IsRevoked(ctx, "jti-a")
	require.NoError(t, err)
	assert.True(t, revoked)

	revoked, err = list.IsRevoked(ctx, "jti-b")
	require.NoError(t, err)
	assert.False(t, revoked)

	require.NoError(t, list.Revoke(ctx, "jti-short", time.Now().Add(1500*time.Millisecond)))
	assert.Eventually(t, func() bool {
		gone, err := list.IsRevoked(ctx, "jti-short")
		return err == nil && !gone
	}, 5*time.Second, 250*time.Millisecond)
}
