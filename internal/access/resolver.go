package access

import (
	"context"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// TenantStatus mirrors the subscription state of a tenant.
type TenantStatus string

const (
	TenantActive    TenantStatus = "active"
	TenantSuspended TenantStatus = "suspended"
	TenantTrial     TenantStatus = "trial"
)

// TenantDirectory supplies the subscription status of a tenant. It is a
// collaborator port; the engine does not own tenant records.
type TenantDirectory interface {
	Status(ctx context.Context, tenantID uuid.UUID) (TenantStatus, error)
}

// IdentityClaims is the JWT payload shared between token issuance at
// login and resolution on every request.
type IdentityClaims struct {
	TenantID string `json:"tenant_id"`
	Role     string `json:"role"`
	BranchID string `json:"branch_id,omitempty"`
	jwt.RegisteredClaims
}

// Resolver derives a Principal from a bearer token. It performs no
// writes; the tenant status gate runs before any policy evaluation.
type Resolver struct {
	secret  []byte
	tenants TenantDirectory
}

// NewResolver constructs a Resolver.
func NewResolver(secret string, tenants TenantDirectory) *Resolver {
	return &Resolver{secret: []byte(secret), tenants: tenants}
}

// Resolve parses and verifies the token, checks the tenant is active and
// returns a fully populated Principal. Trial tenants resolve normally;
// suspension is the only terminal subscription state.
func (r *Resolver) Resolve(ctx context.Context, token string) (*Principal, error) {
	if token == "" {
		return nil, ErrAuthentication
	}

	claims := &IdentityClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %q", t.Method.Alg())
		}
		return r.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil || !parsed.Valid {
		return nil, fmt.Errorf("%w: %v", ErrAuthentication, err)
	}

	tenantID, err := uuid.Parse(claims.TenantID)
	if err != nil {
		return nil, fmt.Errorf("%w: bad tenant id", ErrAuthentication)
	}
	userID, err := uuid.Parse(claims.Subject)
	if err != nil {
		return nil, fmt.Errorf("%w: bad subject", ErrAuthentication)
	}
	role, ok := ParseRole(claims.Role)
	if !ok {
		return nil, fmt.Errorf("%w: unknown role", ErrAuthentication)
	}

	var branchID *uuid.UUID
	if claims.BranchID != "" {
		id, err := uuid.Parse(claims.BranchID)
		if err != nil {
			return nil, fmt.Errorf("%w: bad branch id", ErrAuthentication)
		}
		branchID = &id
	}

	status, err := r.tenants.Status(ctx, tenantID)
	if err != nil {
		return nil, fmt.Errorf("%w: tenant lookup failed", ErrAuthentication)
	}
	if status == TenantSuspended {
		return nil, ErrTenantSuspended
	}

	return &Principal{
		TenantID: tenantID,
		UserID:   userID,
		Role:     role,
		BranchID: branchID,
	}, nil
}

// NewIdentityClaims builds the claims for a freshly authenticated user.
func NewIdentityClaims(tenantID, userID uuid.UUID, role Role, branchID *uuid.UUID, ttl time.Duration) IdentityClaims {
	claims := IdentityClaims{
		TenantID: tenantID.String(),
		Role:     string(role),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID.String(),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(ttl)),
		},
	}
	if branchID != nil {
		claims.BranchID = branchID.String()
	}
	return claims
}
