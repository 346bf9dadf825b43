package tenancy

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/StricklySoft/stricklysoft-access/internal/testutil"
	"github.com/StricklySoft/stricklysoft-access/internal/testutil/fixtures"
	sserr "github.com/StricklySoft/stricklysoft-access/pkg/errors"
)

// mockStore implements Store with testify/mock.
type mockStore struct {
	mock.Mock
}

func (m *mockStore) Memberships(ctx context.Context, userID string) ([]Membership, error) {
	args := m.Called(ctx, userID)
	ms, _ := args.Get(0).([]Membership)
	return ms, args.Error(1)
}

func (m *mockStore) Membership(ctx context.Context, orgID, userID string) (*Membership, error) {
	args := m.Called(ctx, orgID, userID)
	ms, _ := args.Get(0).(*Membership)
	return ms, args.Error(1)
}

func (m *mockStore) SetLastActiveOrganization(ctx context.Context, userID, orgID string) error {
	return m.Called(ctx, userID, orgID).Error(0)
}

func member(orgID string, role OrgRole) Membership {
	return Membership{
		OrganizationID:      orgID,
		OrganizationName:    fixtures.OrgName,
		UserID:              fixtures.UserID,
		Role:                role,
		EntitlementsVersion: 4,
	}
}

var ctxAny = mock.Anything

func TestResolve_StickyOrganization(t *testing.T) {
	t.Parallel()
	store := &mockStore{}
	m := member(fixtures.AltOrgID, RoleMember)
	store.On("Membership", ctxAny, fixtures.AltOrgID, fixtures.UserID).Return(&m, nil)

	r := NewResolver(store)
	got, err := r.Resolve(context.Background(), User{ID: fixtures.UserID, LastActiveOrganizationID: fixtures.AltOrgID})
	require.NoError(t, err)

	assert.Equal(t, fixtures.AltOrgID, got.OrganizationID)
	assert.Equal(t, RoleMember, got.Role)
	assert.Equal(t, int64(4), got.EntitlementsVersion)
	store.AssertNotCalled(t, "Memberships", ctxAny, ctxAny)
	store.AssertNotCalled(t, "SetLastActiveOrganization", ctxAny, ctxAny, ctxAny)
}

func TestResolve_StaleStickyFallsBackToSingle(t *testing.T) {
	t.Parallel()
	store := &mockStore{}
	store.On("Membership", ctxAny, fixtures.AltOrgID, fixtures.UserID).Return(nil, nil)
	store.On("Memberships", ctxAny, fixtures.UserID).Return([]Membership{member(fixtures.OrgID, RoleAdmin)}, nil)
	store.On("SetLastActiveOrganization", ctxAny, fixtures.UserID, fixtures.OrgID).Return(nil)

	got, err := NewResolver(store).Resolve(context.Background(),
		User{ID: fixtures.UserID, LastActiveOrganizationID: fixtures.AltOrgID})
	require.NoError(t, err)
	assert.Equal(t, fixtures.OrgID, got.OrganizationID)
	assert.Equal(t, []string{AllServices}, got.Services)
	store.AssertExpectations(t)
}

func TestResolve_SingleMembershipAutoSelected(t *testing.T) {
	t.Parallel()
	store := &mockStore{}
	store.On("Memberships", ctxAny, fixtures.UserID).Return([]Membership{member(fixtures.OrgID, RoleMember)}, nil)
	store.On("SetLastActiveOrganization", ctxAny, fixtures.UserID, fixtures.OrgID).Return(nil)

	got, err := NewResolver(store).Resolve(context.Background(), User{ID: fixtures.UserID})
	require.NoError(t, err)
	assert.Equal(t, fixtures.OrgID, got.OrganizationID)
	store.AssertExpectations(t)
}

func TestResolve_AmbiguousRequiresSelection(t *testing.T) {
	t.Parallel()
	for name, ms := range map[string][]Membership{
		"none": {},
		"two":  {member(fixtures.OrgID, RoleMember), member(fixtures.AltOrgID, RoleAdmin)},
	} {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			store := &mockStore{}
			store.On("Memberships", ctxAny, fixtures.UserID).Return(ms, nil)

			got, err := NewResolver(store).Resolve(context.Background(), User{ID: fixtures.UserID})
			testutil.RequireErrorCode(t, err, sserr.CodeOrgContextRequired)
			assert.Empty(t, got.OrganizationID)
			store.AssertNotCalled(t, "SetLastActiveOrganization", ctxAny, ctxAny, ctxAny)
		})
	}
}

func TestResolve_StoreErrors(t *testing.T) {
	t.Parallel()
	dbErr := sserr.Wrap(errors.New("conn reset"), sserr.CodeInternalDatabase, "query failed")

	store := &mockStore{}
	store.On("Membership", ctxAny, fixtures.OrgID, fixtures.UserID).Return(nil, dbErr)
	_, err := NewResolver(store).Resolve(context.Background(),
		User{ID: fixtures.UserID, LastActiveOrganizationID: fixtures.OrgID})
	testutil.RequireErrorCode(t, err, sserr.CodeInternalDatabase)

	store = &mockStore{}
	store.On("Memberships", ctxAny, fixtures.UserID).Return([]Membership{member(fixtures.OrgID, RoleMember)}, nil)
	store.On("SetLastActiveOrganization", ctxAny, fixtures.UserID, fixtures.OrgID).Return(dbErr)
	_, err = NewResolver(store).Resolve(context.Background(), User{ID: fixtures.UserID})
	testutil.RequireErrorCode(t, err, sserr.CodeInternalDatabase)
}

func TestSelect(t *testing.T) {
	t.Parallel()
	store := &mockStore{}
	m := member(fixtures.AltOrgID, RoleMember)
	m.Permissions = map[string]bool{fixtures.EntitlementFinance: true}
	store.On("Membership", ctxAny, fixtures.AltOrgID, fixtures.UserID).Return(&m, nil)
	store.On("Membership", ctxAny, fixtures.OrgID, fixtures.UserID).Return(nil, nil)
	store.On("SetLastActiveOrganization", ctxAny, fixtures.UserID, fixtures.AltOrgID).Return(nil)

	r := NewResolver(store)
	user := User{ID: fixtures.UserID, LastActiveOrganizationID: fixtures.OrgID}

	got, err := r.Select(context.Background(), user, fixtures.AltOrgID)
	require.NoError(t, err)
	assert.Equal(t, fixtures.AltOrgID, got.OrganizationID)
	assert.Equal(t, []string{fixtures.EntitlementFinance}, got.Services)

	_, err = r.Select(context.Background(), user, fixtures.OrgID)
	testutil.RequireErrorCode(t, err, sserr.CodeMembershipRequired)

	_, err = r.Select(context.Background(), user, "")
	testutil.RequireErrorCode(t, err, sserr.CodeValidationRequired)
	store.AssertNumberOfCalls(t, "SetLastActiveOrganization", 1)
}

func TestRoleServices_Services(t *testing.T) {
	t.Parallel()
	roles := RoleServices{
		RoleAdmin:  {AllServices},
		RoleMember: {"daily", "tasks"},
	}
	m := Membership{Role: RoleMember, Permissions: map[string]bool{"finance": true, "tasks": false}}
	assert.Equal(t, []string{"daily", "finance"}, roles.Services(m))

	admin := Membership{Role: RoleAdmin, Permissions: map[string]bool{"finance": false}}
	assert.Equal(t, []string{AllServices}, roles.Services(admin))

	unknown := Membership{Role: OrgRole("Guest")}
	assert.Empty(t, roles.Services(unknown))
}

func TestMembership_Allows(t *testing.T) {
	t.Parallel()
	roles := RoleServices{RoleMember: {"daily"}}

	admin := Membership{Role: RoleAdmin}
	assert.True(t, admin.Allows("payroll", roles))

	m := Membership{Role: RoleMember, Permissions: map[string]bool{"payroll": true, "daily": false}}
	assert.True(t, m.Allows("payroll", roles))
	assert.False(t, m.Allows("daily", roles), "explicit revoke wins over role default")
	assert.False(t, m.Allows("finance", roles))

	plain := Membership{Role: RoleMember}
	assert.True(t, plain.Allows("daily", roles))
}

func TestWithRoleServices(t *testing.T) {
	t.Parallel()
	store := &mockStore{}
	store.On("Memberships", ctxAny, fixtures.UserID).Return([]Membership{member(fixtures.OrgID, RoleMember)}, nil)
	store.On("SetLastActiveOrganization", ctxAny, fixtures.UserID, fixtures.OrgID).Return(nil)

	r := NewResolver(store, WithRoleServices(RoleServices{RoleMember: {"daily"}}))
	got, err := r.Resolve(context.Background(), User{ID: fixtures.UserID})
	require.NoError(t, err)
	assert.Equal(t, []string{"daily"}, got.Services)
	assert.True(t, RoleAdmin.Valid())
	assert.False(t, OrgRole("Owner").Valid())
}
