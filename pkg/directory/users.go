package directory

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/StricklySoft/stricklysoft-access/pkg/clients/postgres"
	sserr "github.com/StricklySoft/stricklysoft-access/pkg/errors"
	"github.com/StricklySoft/stricklysoft-access/pkg/tenancy"
)

const userColumns = `id::text, email, role, coalesce(last_active_organization_id::text, '')`

// User loads a user by id. A missing user is NF_002.
func (s *Store) User(ctx context.Context, id string) (tenancy.User, error) {
	row := s.db.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
	u, _, err := scanUser(row, false)
	if err != nil {
		return tenancy.User{}, notFound(err, sserr.CodeNotFoundUser, "directory: user not found", "directory: load user failed")
	}
	return u, nil
}

// Authenticate checks an email and password. Unknown emails and wrong
// passwords return the same AUTH_004 error.
func (s *Store) Authenticate(ctx context.Context, email, password string) (tenancy.User, error) {
	row := s.db.QueryRow(ctx,
		`SELECT `+userColumns+`, password_hash FROM users WHERE lower(email) = lower($1)`,
		strings.TrimSpace(email))
	u, hash, err := scanUser(row, true)
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		_ = bcrypt.CompareHashAndPassword(s.dummyHash, []byte(password))
		return tenancy.User{}, invalidCredentials()
	case err != nil:
		return tenancy.User{}, postgres.WrapError(err, "directory: load credentials failed")
	}
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)); err != nil {
		return tenancy.User{}, invalidCredentials()
	}
	return u, nil
}

// CreateUser inserts a user with a bcrypt hash of password. A duplicate
// email is CONF_002.
func (s *Store) CreateUser(ctx context.Context, email, password string, role tenancy.GlobalRole) (tenancy.User, error) {
	email = strings.TrimSpace(email)
	if email == "" || password == "" {
		return tenancy.User{}, sserr.Validationf("directory: email and password are required")
	}
	if role == "" {
		role = tenancy.RoleStandard
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.cost)
	if err != nil {
		return tenancy.User{}, sserr.Wrap(err, sserr.CodeValidation, "directory: password cannot be hashed")
	}
	u := tenancy.User{ID: uuid.NewString(), Email: email, Role: role}
	_, err = s.db.Exec(ctx,
		`INSERT INTO users (id, email, password_hash, role) VALUES ($1, $2, $3, $4)`,
		u.ID, u.Email, string(hash), string(u.Role))
	if err != nil {
		return tenancy.User{}, err
	}
	return u, nil
}

// SetLastActiveOrganization records orgID as the user's sticky
// organization.
func (s *Store) SetLastActiveOrganization(ctx context.Context, userID, orgID string) error {
	tag, err := s.db.Exec(ctx,
		`UPDATE users SET last_active_organization_id = $2 WHERE id = $1`, userID, orgID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return sserr.Newf(sserr.CodeNotFoundUser, "directory: user %q not found", userID)
	}
	return nil
}

func scanUser(row pgx.Row, withHash bool) (tenancy.User, string, error) {
	var (
		u    tenancy.User
		role string
		hash string
	)
	dest := []any{&u.ID, &u.Email, &role, &u.LastActiveOrganizationID}
	if withHash {
		dest = append(dest, &hash)
	}
	if err := row.Scan(dest...); err != nil {
		return tenancy.User{}, "", err
	}
	u.Role = tenancy.GlobalRole(role)
	return u, hash, nil
}

func invalidCredentials() *sserr.Error {
	return sserr.New(sserr.CodeAuthenticationCredentials, "invalid email or password")
}

// notFound maps pgx.ErrNoRows to code and anything else to a database
// error.
func notFound(err error, code sserr.Code, missing, failed string) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return sserr.New(code, missing)
	}
	return postgres.WrapError(err, failed)
}
