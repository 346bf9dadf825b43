package directory

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/StricklySoft/stricklysoft-access/pkg/clients/postgres"
	"github.com/StricklySoft/stricklysoft-access/pkg/entitlements"
	sserr "github.com/StricklySoft/stricklysoft-access/pkg/errors"
)

// Entitlement is a catalog row.
type Entitlement struct {
	Key         string `json:"key"`
	Description string `json:"description"`
}

// CreateOrganization inserts an active organization at version 1.
func (s *Store) CreateOrganization(ctx context.Context, name string) (entitlements.OrganizationState, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return entitlements.OrganizationState{}, sserr.Validationf("directory: organization name is required")
	}
	org := entitlements.OrganizationState{ID: uuid.NewString(), Status: entitlements.StatusActive, EntitlementsVersion: 1}
	_, err := s.db.Exec(ctx,
		`INSERT INTO organizations (id, name, status, entitlements_version) VALUES ($1, $2, $3, $4)`,
		org.ID, name, string(org.Status), org.EntitlementsVersion)
	if err != nil {
		return entitlements.OrganizationState{}, err
	}
	return org, nil
}

// OrganizationState reads status and version by primary key. A malformed
// id is NF_003.
func (s *Store) OrganizationState(ctx context.Context, orgID string) (entitlements.OrganizationState, error) {
	if !validID(orgID) {
		return entitlements.OrganizationState{}, sserr.Newf(sserr.CodeNotFoundOrganization,
			"directory: organization %q not found", orgID)
	}
	var (
		st     entitlements.OrganizationState
		status string
	)
	err := s.db.QueryRow(ctx,
		`SELECT id::text, status, entitlements_version FROM organizations WHERE id = $1`, orgID).
		Scan(&st.ID, &status, &st.EntitlementsVersion)
	if err != nil {
		return entitlements.OrganizationState{}, notFound(err, sserr.CodeNotFoundOrganization,
			"directory: organization not found", "directory: load organization failed")
	}
	st.Status = entitlements.Status(status)
	return st, nil
}

// EnabledEntitlements lists the keys enabled for orgID.
func (s *Store) EnabledEntitlements(ctx context.Context, orgID string) ([]string, error) {
	rows, err := s.db.Query(ctx,
		`SELECT entitlement_key FROM organization_entitlements WHERE organization_id = $1 AND enabled`, orgID)
	if err != nil {
		return nil, err
	}
	keys, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, postgres.WrapError(err, "directory: list entitlements failed")
	}
	return keys, nil
}

// SetEntitlement enables or disables key for orgID and bumps the
// organization's version in the same transaction.
func (s *Store) SetEntitlement(ctx context.Context, orgID, key string, enabled bool) (int64, error) {
	var version int64
	err := s.db.InTx(ctx, func(tx pgx.Tx) error {
		var err error
		if version, err = bumpVersion(ctx, tx, orgID, ""); err != nil {
			return err
		}
		_, err = tx.Exec(ctx, `
INSERT INTO organization_entitlements (organization_id, entitlement_key, enabled, updated_at)
VALUES ($1, $2, $3, now())
ON CONFLICT (organization_id, entitlement_key) DO UPDATE SET enabled = EXCLUDED.enabled, updated_at = now()`,
			orgID, key, enabled)
		return postgres.WrapError(err, "directory: write entitlement failed")
	})
	if err != nil {
		return 0, err
	}
	return version, nil
}

// SetStatus changes orgID's status and bumps its version in the same
// transaction.
func (s *Store) SetStatus(ctx context.Context, orgID string, status entitlements.Status) (int64, error) {
	if !status.Valid() {
		return 0, sserr.Validationf("directory: unknown organization status %q", status)
	}
	var version int64
	err := s.db.InTx(ctx, func(tx pgx.Tx) error {
		var err error
		version, err = bumpVersion(ctx, tx, orgID, status)
		return err
	})
	if err != nil {
		return 0, err
	}
	return version, nil
}

// DefineEntitlement adds or describes a catalog key.
func (s *Store) DefineEntitlement(ctx context.Context, e Entitlement) error {
	if e.Key == "" {
		return sserr.Validationf("directory: entitlement key is required")
	}
	_, err := s.db.Exec(ctx, `
INSERT INTO entitlements (key, description) VALUES ($1, $2)
ON CONFLICT (key) DO UPDATE SET description = EXCLUDED.description`, e.Key, e.Description)
	return err
}

// Catalog lists every defined entitlement ordered by key.
func (s *Store) Catalog(ctx context.Context) ([]Entitlement, error) {
	rows, err := s.db.Query(ctx, `SELECT key, description FROM entitlements ORDER BY key`)
	if err != nil {
		return nil, err
	}
	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (Entitlement, error) {
		var e Entitlement
		err := row.Scan(&e.Key, &e.Description)
		return e, err
	})
	if err != nil {
		return nil, postgres.WrapError(err, "directory: list catalog failed")
	}
	return out, nil
}

// bumpVersion increments the version, optionally setting status, and
// returns the new version. The UPDATE row lock serializes concurrent
// mutations of one organization.
func bumpVersion(ctx context.Context, tx pgx.Tx, orgID string, status entitlements.Status) (int64, error) {
	var version int64
	err := tx.QueryRow(ctx, `
UPDATE organizations
SET entitlements_version = entitlements_version + 1,
    status = coalesce(nullif($2, ''), status)
WHERE id = $1
RETURNING entitlements_version`, orgID, string(status)).Scan(&version)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, sserr.Newf(sserr.CodeNotFoundOrganization, "directory: organization %q not found", orgID)
	}
	if err != nil {
		return 0, postgres.WrapError(err, "directory: bump entitlements version failed")
	}
	return version, nil
}
