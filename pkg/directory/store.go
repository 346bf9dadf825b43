// Package directory is the PostgreSQL system of record for users,
// organizations, memberships, and entitlement grants.
//
// A single [Store] satisfies tenancy.Store, entitlements.Store, and
// entitlements.AdminStore, and checks login credentials with bcrypt.
// Every grant or status change bumps the organization's
// entitlements_version in the same transaction.
package directory

import (
	"context"
	_ "embed"
	"log/slog"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/StricklySoft/stricklysoft-access/pkg/clients/postgres"
	"github.com/StricklySoft/stricklysoft-access/pkg/entitlements"
	"github.com/StricklySoft/stricklysoft-access/pkg/tenancy"
)

//go:embed schema.sql
var schema string

// Schema returns the DDL applied by [Store.Migrate].
func Schema() string { return schema }

var (
	_ tenancy.Store           = (*Store)(nil)
	_ entitlements.Store      = (*Store)(nil)
	_ entitlements.AdminStore = (*Store)(nil)
)

// Option configures a [Store].
type Option func(*Store)

// WithLogger sets the logger. The default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) { s.logger = logger }
}

// WithBcryptCost overrides bcrypt.DefaultCost for new password hashes.
// Tests use bcrypt.MinCost.
func WithBcryptCost(cost int) Option {
	return func(s *Store) { s.cost = cost }
}

// Store reads and writes the directory tables.
type Store struct {
	db     *postgres.Client
	logger *slog.Logger
	cost   int

	// dummyHash is compared against when an email is unknown so that
	// unknown and known emails take the same time to reject.
	dummyHash []byte
}

// New returns a Store over db.
func New(db *postgres.Client, opts ...Option) *Store {
	s := &Store{db: db, logger: slog.Default(), cost: bcrypt.DefaultCost}
	for _, opt := range opts {
		opt(s)
	}
	s.dummyHash, _ = bcrypt.GenerateFromPassword([]byte("directory-timing-equalizer"), s.cost)
	return s
}

// validID reports whether id can be bound to a uuid column.
func validID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}

// Migrate applies the embedded schema.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, schema); err != nil {
		return err
	}
	s.logger.InfoContext(ctx, "directory schema applied")
	return nil
}

// Health pings the database.
func (s *Store) Health(ctx context.Context) error { return s.db.Health(ctx) }
