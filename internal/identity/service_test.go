package identity_test

import (
	"context"
	"testing"
	"time"

	"github.com/caxulex/shiftcore/internal/config"
	"github.com/caxulex/shiftcore/internal/identity"
	"github.com/caxulex/shiftcore/internal/kv"
	"github.com/caxulex/shiftcore/internal/store"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig() config.Config {
	return config.Config{
		SigningKey: []byte("test-signing-key-not-for-production"),
		AccessTTL:  time.Minute,
		RefreshTTL: time.Hour,
		HashParams: config.DefaultHashParams,
	}
}

func TestIssuePair_VerifyRoundTrip(t *testing.T) {
	st := store.NewMemory()
	cache := kv.NewMemory()
	svc := identity.NewService(testConfig(), st, cache)

	companyID := uuid.New()
	user := store.User{ID: uuid.New(), CompanyID: &companyID, Email: "a@example.com", Role: store.RoleRegularUser}

	access, refresh, err := svc.IssuePair(context.Background(), user)
	require.NoError(t, err)
	require.NotEmpty(t, access)
	require.NotEmpty(t, refresh)

	claims, err := svc.Verify(context.Background(), access, identity.KindAccess)
	require.NoError(t, err)
	assert.Equal(t, user.ID.String(), claims.Subject)
	assert.Equal(t, identity.KindAccess, claims.Kind)

	_, err = svc.Verify(context.Background(), refresh, identity.KindAccess)
	assert.ErrorIs(t, err, identity.ErrUnauthenticated, "a refresh token must never verify as an access token")
}

func TestRotate_RevokesPresentedToken(t *testing.T) {
	st := store.NewMemory()
	cache := kv.NewMemory()
	svc := identity.NewService(testConfig(), st, cache)

	companyID := uuid.New()
	user := store.User{ID: uuid.New(), CompanyID: &companyID, Email: "a@example.com", Role: store.RoleRegularUser}
	_, refresh, err := svc.IssuePair(context.Background(), user)
	require.NoError(t, err)

	newAccess, newRefresh, err := svc.Rotate(context.Background(), refresh)
	require.NoError(t, err)
	assert.NotEmpty(t, newAccess)
	assert.NotEmpty(t, newRefresh)

	// P4: the old refresh token must no longer verify after rotation.
	_, err = svc.Verify(context.Background(), refresh, identity.KindRefresh)
	assert.ErrorIs(t, err, identity.ErrUnauthenticated)

	// The newly issued refresh token must still verify.
	_, err = svc.Verify(context.Background(), newRefresh, identity.KindRefresh)
	assert.NoError(t, err)
}

func TestRotate_RejectsReplayedToken(t *testing.T) {
	st := store.NewMemory()
	cache := kv.NewMemory()
	svc := identity.NewService(testConfig(), st, cache)

	companyID := uuid.New()
	user := store.User{ID: uuid.New(), CompanyID: &companyID, Email: "a@example.com", Role: store.RoleRegularUser}
	_, refresh, err := svc.IssuePair(context.Background(), user)
	require.NoError(t, err)

	_, _, err = svc.Rotate(context.Background(), refresh)
	require.NoError(t, err)

	// Replaying the same (now-rotated) refresh token must fail outright.
	_, _, err = svc.Rotate(context.Background(), refresh)
	assert.ErrorIs(t, err, identity.ErrUnauthenticated)
}

func TestRevoke_ClosesRefreshToken(t *testing.T) {
	st := store.NewMemory()
	cache := kv.NewMemory()
	svc := identity.NewService(testConfig(), st, cache)

	companyID := uuid.New()
	user := store.User{ID: uuid.New(), CompanyID: &companyID, Email: "a@example.com", Role: store.RoleRegularUser}
	_, refresh, err := svc.IssuePair(context.Background(), user)
	require.NoError(t, err)

	claims, err := svc.Verify(context.Background(), refresh, identity.KindRefresh)
	require.NoError(t, err)

	err = svc.Revoke(context.Background(), claims.JTI, time.Hour)
	require.NoError(t, err)

	_, err = svc.Verify(context.Background(), refresh, identity.KindRefresh)
	assert.ErrorIs(t, err, identity.ErrUnauthenticated)
}

func TestHash_EnforcesPasswordPolicy(t *testing.T) {
	hasher := identity.NewPasswordHasher(config.DefaultHashParams)

	_, err := hasher.Hash("short1!")
	assert.ErrorIs(t, err, identity.ErrWeakPassword)

	_, err = hasher.Hash("alllowercase12345")
	assert.ErrorIs(t, err, identity.ErrWeakPassword)

	hash, err := hasher.Hash("Str0ng!Passphrase")
	require.NoError(t, err)
	assert.NotEmpty(t, hash)
}

func TestVerify_MatchesAndRejectsWrongPassword(t *testing.T) {
	hasher := identity.NewPasswordHasher(config.DefaultHashParams)

	hash, err := hasher.Hash("Str0ng!Passphrase")
	require.NoError(t, err)

	ok, needsRehash, err := hasher.Verify("Str0ng!Passphrase", hash)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.False(t, needsRehash)

	ok, _, err = hasher.Verify("wrong-password-entirely", hash)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestVerify_TransparentRehashOnParamChange(t *testing.T) {
	oldParams := config.DefaultHashParams
	oldParams.Iterations = 1
	hasher := identity.NewPasswordHasher(oldParams)
	hash, err := hasher.Hash("Str0ng!Passphrase")
	require.NoError(t, err)

	newHasher := identity.NewPasswordHasher(config.DefaultHashParams)
	ok, needsRehash, err := newHasher.Verify("Str0ng!Passphrase", hash)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.True(t, needsRehash)
}
