package directory

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/jackc/pgx/v5"

	"github.com/StricklySoft/stricklysoft-access/pkg/clients/postgres"
	sserr "github.com/StricklySoft/stricklysoft-access/pkg/errors"
	"github.com/StricklySoft/stricklysoft-access/pkg/tenancy"
)

const membershipQuery = `
SELECT m.organization_id::text, o.name, m.user_id::text, m.role, m.permissions, o.entitlements_version
FROM memberships m
JOIN organizations o ON o.id = m.organization_id
`

// Memberships lists userID's memberships ordered by organization name.
func (s *Store) Memberships(ctx context.Context, userID string) ([]tenancy.Membership, error) {
	rows, err := s.db.Query(ctx, membershipQuery+`WHERE m.user_id = $1 ORDER BY o.name, o.id`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []tenancy.Membership
	for rows.Next() {
		m, err := scanMembership(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, postgres.WrapError(err, "directory: list memberships failed")
	}
	return out, nil
}

// Membership returns userID's membership in orgID, or nil when there is
// none. Ids that are not UUIDs cannot match a row and are never queried.
func (s *Store) Membership(ctx context.Context, orgID, userID string) (*tenancy.Membership, error) {
	if !validID(orgID) || !validID(userID) {
		return nil, nil
	}
	row := s.db.QueryRow(ctx, membershipQuery+`WHERE m.organization_id = $1 AND m.user_id = $2`, orgID, userID)
	m, err := scanMembership(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &m, nil
}

// AddMember creates or updates a membership.
func (s *Store) AddMember(ctx context.Context, orgID, userID string, role tenancy.OrgRole, permissions map[string]bool) error {
	if !role.Valid() {
		return sserr.Validationf("directory: unknown organization role %q", role)
	}
	if permissions == nil {
		permissions = map[string]bool{}
	}
	perms, err := json.Marshal(permissions)
	if err != nil {
		return sserr.Wrap(err, sserr.CodeValidation, "directory: permissions cannot be encoded")
	}
	_, err = s.db.Exec(ctx, `
INSERT INTO memberships (organization_id, user_id, role, permissions)
VALUES ($1, $2, $3, $4)
ON CONFLICT (organization_id, user_id) DO UPDATE SET role = EXCLUDED.role, permissions = EXCLUDED.permissions`,
		orgID, userID, string(role), perms)
	return err
}

// RemoveMember deletes a membership. Removing a non-member is not an
// error.
func (s *Store) RemoveMember(ctx context.Context, orgID, userID string) error {
	_, err := s.db.Exec(ctx,
		`DELETE FROM memberships WHERE organization_id = $1 AND user_id = $2`, orgID, userID)
	return err
}

func scanMembership(row pgx.Row) (tenancy.Membership, error) {
	var (
		m     tenancy.Membership
		role  string
		perms []byte
	)
	err := row.Scan(&m.OrganizationID, &m.OrganizationName, &m.UserID, &role, &perms, &m.EntitlementsVersion)
	if errors.Is(err, pgx.ErrNoRows) {
		return m, err
	}
	if err != nil {
		return m, postgres.WrapError(err, "directory: scan membership failed")
	}
	m.Role = tenancy.OrgRole(role)
	if len(perms) > 0 {
		if err := json.Unmarshal(perms, &m.Permissions); err != nil {
			return m, sserr.Wrapf(err, sserr.CodeInternalDatabase,
				"directory: membership %s/%s has malformed permissions", m.OrganizationID, m.UserID)
		}
	}
	return m, nil
}
