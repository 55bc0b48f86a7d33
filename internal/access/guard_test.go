package access_test

import (
	"context"
	"testing"
	"time"

	"github.com/caxulex/shiftcore/internal/access"
	"github.com/caxulex/shiftcore/internal/config"
	"github.com/caxulex/shiftcore/internal/identity"
	"github.com/caxulex/shiftcore/internal/kv"
	"github.com/caxulex/shiftcore/internal/store"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testGuard() (*access.Guard, *identity.Service) {
	cfg := config.Config{
		SigningKey: []byte("test-signing-key-not-for-production"),
		AccessTTL:  time.Minute,
		RefreshTTL: time.Hour,
		HashParams: config.DefaultHashParams,
	}
	svc := identity.NewService(cfg, store.NewMemory(), kv.NewMemory())
	limiter := access.NewRateLimiter(kv.NewMemory(), 1000, 1000)
	return access.New(svc, limiter), svc
}

func TestResolve_ValidAccessToken(t *testing.T) {
	guard, svc := testGuard()
	companyID := uuid.New()
	user := store.User{ID: uuid.New(), CompanyID: &companyID, Role: store.RoleTeamLead}

	access_, _, err := svc.IssuePair(context.Background(), user)
	require.NoError(t, err)

	caller, err := guard.Resolve(context.Background(), access_)
	require.NoError(t, err)
	assert.Equal(t, user.ID, caller.UserID)
	assert.Equal(t, companyID, *caller.CompanyID)
	assert.Equal(t, "team_lead", caller.Role)
	assert.NotEmpty(t, caller.JTI)
}

func TestResolve_RejectsGarbageToken(t *testing.T) {
	guard, _ := testGuard()
	_, err := guard.Resolve(context.Background(), "not-a-real-token")
	assert.ErrorIs(t, err, access.ErrUnauthenticated)
}

func TestScope_SuperAdminIsUnscoped(t *testing.T) {
	companyID := uuid.New()
	caller := access.Caller{Role: "super_admin", CompanyID: &companyID}
	assert.Nil(t, caller.Scope())
}

func TestScope_RegularUserIsScopedToOwnCompany(t *testing.T) {
	companyID := uuid.New()
	caller := access.Caller{Role: "regular_user", CompanyID: &companyID}
	require.NotNil(t, caller.Scope())
	assert.Equal(t, companyID, *caller.Scope())
}

func TestRequireRole_HierarchyOrdering(t *testing.T) {
	admin := access.Caller{Role: "company_admin"}
	assert.NoError(t, access.RequireRole(admin, "team_lead"))

	member := access.Caller{Role: "regular_user"}
	assert.ErrorIs(t, access.RequireRole(member, "company_admin"), access.ErrForbidden)
}

func TestRequireExactRole_RejectsHigherRole(t *testing.T) {
	superAdmin := access.Caller{Role: "super_admin"}
	// Even a higher-weighted role must not satisfy an exact-role check
	// for a different role name.
	assert.ErrorIs(t, access.RequireExactRole(superAdmin, "company_admin"), access.ErrForbidden)
}

func TestIsSelfOrCompanyAdmin(t *testing.T) {
	companyID := uuid.New()
	otherCompany := uuid.New()
	selfID := uuid.New()

	self := access.Caller{UserID: selfID, CompanyID: &companyID, Role: "regular_user"}
	assert.True(t, access.IsSelfOrCompanyAdmin(self, selfID, &companyID))

	stranger := access.Caller{UserID: uuid.New(), CompanyID: &companyID, Role: "regular_user"}
	assert.False(t, access.IsSelfOrCompanyAdmin(stranger, selfID, &companyID))

	companyAdmin := access.Caller{UserID: uuid.New(), CompanyID: &companyID, Role: "company_admin"}
	assert.True(t, access.IsSelfOrCompanyAdmin(companyAdmin, selfID, &companyID))

	crossCompanyAdmin := access.Caller{UserID: uuid.New(), CompanyID: &otherCompany, Role: "company_admin"}
	assert.False(t, access.IsSelfOrCompanyAdmin(crossCompanyAdmin, selfID, &companyID))
}
