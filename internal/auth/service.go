package auth

import (
	"context"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/pharmos-erp/pharmos-erp/internal/access"
	"github.com/pharmos-erp/pharmos-erp/internal/audit"
	"github.com/pharmos-erp/pharmos-erp/internal/users"
)

// AsyncAudit is the fail-open audit port; login events must not stall
// or fail the login itself.
type AsyncAudit interface {
	RecordAsync(ctx context.Context, e audit.Entry)
}

// Service wraps authentication business rules.
type Service struct {
	users    users.Repository
	tenants  access.TenantDirectory
	audits   AsyncAudit
	secret   []byte
	tokenTTL time.Duration
}

// NewService constructs a new Service.
func NewService(repo users.Repository, tenants access.TenantDirectory, audits AsyncAudit, secret string, tokenTTL time.Duration) *Service {
	if tokenTTL <= 0 {
		tokenTTL = 12 * time.Hour
	}
	return &Service{
		users:    repo,
		tenants:  tenants,
		audits:   audits,
		secret:   []byte(secret),
		tokenTTL: tokenTTL,
	}
}

// Login validates credentials and issues a signed identity token. Both
// outcomes leave a login audit entry; the failure entry never names
// which check rejected the attempt.
func (s *Service) Login(ctx context.Context, email, password, ip string) (TokenResult, error) {
	user, err := s.users.FindByEmail(ctx, email)
	if err != nil {
		s.recordFailure(ctx, nil, ip, "invalid credentials")
		return TokenResult{}, ErrInvalidCredentials
	}
	if !user.IsActive {
		s.recordFailure(ctx, user, ip, "invalid credentials")
		return TokenResult{}, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		s.recordFailure(ctx, user, ip, "invalid credentials")
		return TokenResult{}, ErrInvalidCredentials
	}

	status, err := s.tenants.Status(ctx, user.TenantID)
	if err != nil {
		return TokenResult{}, fmt.Errorf("auth: tenant status: %w", err)
	}
	if status == access.TenantSuspended {
		s.recordFailure(ctx, user, ip, "tenant suspended")
		return TokenResult{}, access.ErrTenantSuspended
	}

	claims := access.NewIdentityClaims(user.TenantID, user.ID, user.Role, user.BranchID, s.tokenTTL)
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return TokenResult{}, fmt.Errorf("auth: sign token: %w", err)
	}

	if s.audits != nil {
		s.audits.RecordAsync(ctx, audit.Entry{
			TenantID:    user.TenantID,
			ActorUserID: user.ID,
			ActorRole:   string(user.Role),
			Action:      audit.ActionLogin,
			EntityType:  "session",
			EntityID:    user.ID.String(),
			IPAddress:   ip,
			Success:     true,
		})
	}
	return TokenResult{
		Token:     signed,
		ExpiresAt: claims.ExpiresAt.Time,
		Role:      string(user.Role),
	}, nil
}

func (s *Service) recordFailure(ctx context.Context, user *users.User, ip, reason string) {
	if s.audits == nil || user == nil {
		return
	}
	s.audits.RecordAsync(ctx, audit.Entry{
		TenantID:      user.TenantID,
		ActorUserID:   user.ID,
		ActorRole:     string(user.Role),
		Action:        audit.ActionLogin,
		EntityType:    "session",
		EntityID:      user.ID.String(),
		IPAddress:     ip,
		Success:       false,
		FailureReason: reason,
	})
}
