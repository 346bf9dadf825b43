//go:build integration

// Package containers starts throwaway PostgreSQL and Redis instances for
// the integration suites of the directory, revocation, and client
// packages. Everything here carries the integration build tag so unit
// builds never pull in Docker.
//
//	pg := containers.Postgres(t)
//	client, err := postgres.NewClient(ctx, postgres.Config{URI: pg.ConnString})
package containers

import (
	"context"
	"fmt"
	"testing"

	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	tcredis "github.com/testcontainers/testcontainers-go/modules/redis"
)

// Images and credentials for the test containers. The credentials only
// ever guard an ephemeral container bound to localhost.
const (
	PostgresImage    = "docker.io/postgres:16-alpine"
	PostgresDatabase = "access_test"
	PostgresUser     = "access"
	PostgresPassword = "access-test-password"
	RedisImage       = "docker.io/redis:7-alpine"
)

// PostgresResult is a running PostgreSQL container.
type PostgresResult struct {
	Container *tcpostgres.PostgresContainer

	// ConnString is a postgres:// URI with sslmode=disable, suitable for
	// postgres.Config.URI.
	ConnString string
}

// StartPostgres starts a PostgreSQL container. The caller terminates it.
func StartPostgres(ctx context.Context) (*PostgresResult, error) {
	container, err := tcpostgres.Run(ctx,
		PostgresImage,
		tcpostgres.WithDatabase(PostgresDatabase),
		tcpostgres.WithUsername(PostgresUser),
		tcpostgres.WithPassword(PostgresPassword),
		tcpostgres.BasicWaitStrategies(),
	)
	if err != nil {
		return nil, fmt.Errorf("containers: start postgres: %w", err)
	}

	connStr, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		_ = container.Terminate(ctx)
		return nil, fmt.Errorf("containers: postgres connection string: %w", err)
	}
	return &PostgresResult{Container: container, ConnString: connStr}, nil
}

// RedisResult is a running Redis container.
type RedisResult struct {
	Container *tcredis.RedisContainer

	// ConnString is a redis:// URI suitable for redis.Config.URI.
	ConnString string
}

// StartRedis starts an unauthenticated Redis container. The caller
// terminates it.
func StartRedis(ctx context.Context) (*RedisResult, error) {
	container, err := tcredis.Run(ctx, RedisImage)
	if err != nil {
		return nil, fmt.Errorf("containers: start redis: %w", err)
	}

	connStr, err := container.ConnectionString(ctx)
	if err != nil {
		_ = container.Terminate(ctx)
		return nil, fmt.Errorf("containers: redis connection string: %w", err)
	}
	return &RedisResult{Container: container, ConnString: connStr}, nil
}

// Postgres starts a PostgreSQL container for t and terminates it on
// cleanup. It fails the test if the container cannot start.
func Postgres(t *testing.T) *PostgresResult {
	t.Helper()
	ctx := context.Background()
	result, err := StartPostgres(ctx)
	if err != nil {
		t.Fatalf("%v", err)
	}
	t.Cleanup(func() {
		if err := result.Container.Terminate(ctx); err != nil {
			t.Logf("containers: terminate postgres: %v", err)
		}
	})
	return result
}

// Redis starts a Redis container for t and terminates it on cleanup.
func Redis(t *testing.T) *RedisResult {
	t.Helper()
	ctx := context.Background()
	result, err := StartRedis(ctx)
	if err != nil {
		t.Fatalf("%v", err)
	}
	t.Cleanup(func() {
		if err := result.Container.Terminate(ctx); err != nil {
			t.Logf("containers: terminate redis: %v", err)
		}
	})
	return result
}
