package access

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

type stubDirectory struct {
	statuses map[uuid.UUID]TenantStatus
	err      error
}

func (s *stubDirectory) Status(ctx context.Context, tenantID uuid.UUID) (TenantStatus, error) {
	if s.err != nil {
		return "", s.err
	}
	status, ok := s.statuses[tenantID]
	if !ok {
		return "", errors.New("unknown tenant")
	}
	return status, nil
}

const testSecret = "resolver-test-secret"

func signToken(t *testing.T, claims IdentityClaims, secret string) string {
	t.Helper()
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	require.NoError(t, err)
	return signed
}

func TestResolveValidToken(t *testing.T) {
	dir := &stubDirectory{statuses: map[uuid.UUID]TenantStatus{tenantA: TenantActive}}
	r := NewResolver(testSecret, dir)

	claims := NewIdentityClaims(tenantA, userOne, RolePharmacist, &branch1, time.Hour)
	p, err := r.Resolve(context.Background(), signToken(t, claims, testSecret))
	require.NoError(t, err)
	require.Equal(t, tenantA, p.TenantID)
	require.Equal(t, userOne, p.UserID)
	require.Equal(t, RolePharmacist, p.Role)
	require.NotNil(t, p.BranchID)
	require.Equal(t, branch1, *p.BranchID)
	require.False(t, p.IsBypassing())
}

func TestResolveTrialTenant(t *testing.T) {
	dir := &stubDirectory{statuses: map[uuid.UUID]TenantStatus{tenantA: TenantTrial}}
	r := NewResolver(testSecret, dir)

	claims := NewIdentityClaims(tenantA, userOne, RoleCashier, nil, time.Hour)
	p, err := r.Resolve(context.Background(), signToken(t, claims, testSecret))
	require.NoError(t, err)
	require.Nil(t, p.BranchID)
}

func TestResolveSuspendedTenant(t *testing.T) {
	dir := &stubDirectory{statuses: map[uuid.UUID]TenantStatus{tenantA: TenantSuspended}}
	r := NewResolver(testSecret, dir)

	claims := NewIdentityClaims(tenantA, userOne, RoleAdmin, nil, time.Hour)
	_, err := r.Resolve(context.Background(), signToken(t, claims, testSecret))
	require.ErrorIs(t, err, ErrTenantSuspended)
}

func TestResolveRejectsBadTokens(t *testing.T) {
	dir := &stubDirectory{statuses: map[uuid.UUID]TenantStatus{tenantA: TenantActive}}
	r := NewResolver(testSecret, dir)
	valid := NewIdentityClaims(tenantA, userOne, RoleCashier, nil, time.Hour)

	cases := map[string]string{
		"empty":        "",
		"garbage":      "not.a.token",
		"wrong secret": signToken(t, valid, "other-secret"),
		"expired":      signToken(t, NewIdentityClaims(tenantA, userOne, RoleCashier, nil, -time.Hour), testSecret),
		"unknown role": signToken(t, NewIdentityClaims(tenantA, userOne, Role("root"), nil, time.Hour), testSecret),
	}
	for name, token := range cases {
		_, err := r.Resolve(context.Background(), token)
		require.Error(t, err, name)
		require.NotErrorIs(t, err, ErrTenantSuspended, name)
	}
}

func TestResolveDirectoryFailure(t *testing.T) {
	dir := &stubDirectory{err: errors.New("connection refused")}
	r := NewResolver(testSecret, dir)

	claims := NewIdentityClaims(tenantA, userOne, RoleCashier, nil, time.Hour)
	_, err := r.Resolve(context.Background(), signToken(t, claims, testSecret))
	require.ErrorIs(t, err, ErrAuthentication)
}
