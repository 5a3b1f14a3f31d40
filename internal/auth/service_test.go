package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/pharmos-erp/pharmos-erp/internal/access"
	"github.com/pharmos-erp/pharmos-erp/internal/audit"
	"github.com/pharmos-erp/pharmos-erp/internal/users"
)

type stubUserRepo struct {
	user *users.User
	err  error
}

func (s *stubUserRepo) FindByEmail(ctx context.Context, email string) (*users.User, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.user, nil
}

type stubTenants struct {
	status access.TenantStatus
	err    error
}

func (s *stubTenants) Status(ctx context.Context, tenantID uuid.UUID) (access.TenantStatus, error) {
	return s.status, s.err
}

type captureAudits struct {
	entries []audit.Entry
}

func (c *captureAudits) RecordAsync(ctx context.Context, e audit.Entry) {
	c.entries = append(c.entries, e)
}

const (
	testSecret   = "auth-test-secret"
	testPassword = "correct horse battery"
)

func testUser(t *testing.T) *users.User {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(testPassword), bcrypt.MinCost)
	require.NoError(t, err)
	branch := uuid.New()
	return &users.User{
		ID:           uuid.New(),
		TenantID:     uuid.New(),
		BranchID:     &branch,
		Email:        "pharmacist@example.com",
		PasswordHash: string(hash),
		Role:         access.RolePharmacist,
		IsActive:     true,
	}
}

func TestLoginSuccess(t *testing.T) {
	user := testUser(t)
	audits := &captureAudits{}
	svc := NewService(&stubUserRepo{user: user}, &stubTenants{status: access.TenantActive}, audits, testSecret, time.Hour)

	result, err := svc.Login(context.Background(), user.Email, testPassword, "10.0.0.9")
	require.NoError(t, err)
	require.Equal(t, string(access.RolePharmacist), result.Role)
	require.True(t, result.ExpiresAt.After(time.Now()))

	claims := &access.IdentityClaims{}
	_, err = jwt.ParseWithClaims(result.Token, claims, func(t *jwt.Token) (any, error) {
		return []byte(testSecret), nil
	})
	require.NoError(t, err)
	require.Equal(t, user.TenantID.String(), claims.TenantID)
	require.Equal(t, user.ID.String(), claims.Subject)
	require.Equal(t, user.BranchID.String(), claims.BranchID)

	require.Len(t, audits.entries, 1)
	require.Equal(t, audit.ActionLogin, audits.entries[0].Action)
	require.True(t, audits.entries[0].Success)
	require.Equal(t, "10.0.0.9", audits.entries[0].IPAddress)
}

func TestLoginWrongPassword(t *testing.T) {
	user := testUser(t)
	audits := &captureAudits{}
	svc := NewService(&stubUserRepo{user: user}, &stubTenants{status: access.TenantActive}, audits, testSecret, time.Hour)

	_, err := svc.Login(context.Background(), user.Email, "wrong", "10.0.0.9")
	require.ErrorIs(t, err, ErrInvalidCredentials)

	require.Len(t, audits.entries, 1)
	require.False(t, audits.entries[0].Success)
	require.Equal(t, "invalid credentials", audits.entries[0].FailureReason)
}

func TestLoginUnknownEmail(t *testing.T) {
	svc := NewService(&stubUserRepo{err: users.ErrNotFound}, &stubTenants{status: access.TenantActive}, &captureAudits{}, testSecret, time.Hour)

	_, err := svc.Login(context.Background(), "nobody@example.com", testPassword, "")
	require.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestLoginInactiveAccount(t *testing.T) {
	user := testUser(t)
	user.IsActive = false
	audits := &captureAudits{}
	svc := NewService(&stubUserRepo{user: user}, &stubTenants{status: access.TenantActive}, audits, testSecret, time.Hour)

	_, err := svc.Login(context.Background(), user.Email, testPassword, "")
	require.ErrorIs(t, err, ErrInvalidCredentials)
	// The reason must not reveal which check rejected the attempt.
	require.Equal(t, "invalid credentials", audits.entries[0].FailureReason)
}

func TestLoginSuspendedTenant(t *testing.T) {
	user := testUser(t)
	svc := NewService(&stubUserRepo{user: user}, &stubTenants{status: access.TenantSuspended}, &captureAudits{}, testSecret, time.Hour)

	_, err := svc.Login(context.Background(), user.Email, testPassword, "")
	require.ErrorIs(t, err, access.ErrTenantSuspended)
}

func TestLoginTenantLookupFailure(t *testing.T) {
	user := testUser(t)
	svc := NewService(&stubUserRepo{user: user}, &stubTenants{err: errors.New("pg down")}, &captureAudits{}, testSecret, time.Hour)

	_, err := svc.Login(context.Background(), user.Email, testPassword, "")
	require.Error(t, err)
	require.NotErrorIs(t, err, ErrInvalidCredentials)
}

func TestLoginTrialTenant(t *testing.T) {
	user := testUser(t)
	svc := NewService(&stubUserRepo{user: user}, &stubTenants{status: access.TenantTrial}, &captureAudits{}, testSecret, time.Hour)

	_, err := svc.Login(context.Background(), user.Email, testPassword, "")
	require.NoError(t, err)
}
