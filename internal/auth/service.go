package auth

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/zawnaing-2024/vmaster/internal/config"
	"github.com/zawnaing-2024/vmaster/internal/core"
	"github.com/zawnaing-2024/vmaster/internal/db"
)

// Service checks login credentials and issues tokens.
type Service struct {
	repo   *db.Repository
	issuer *Issuer
	admin  config.AuthConfig
	logger *zap.Logger
	now    func() time.Time
}

func NewService(repo *db.Repository, issuer *Issuer, cfg config.AuthConfig, logger *zap.Logger) *Service {
	return &Service{repo: repo, issuer: issuer, admin: cfg, logger: logger, now: time.Now}
}

func (s *Service) Issuer() *Issuer { return s.issuer }

func (s *Service) LoginAdmin(_ context.Context, username, password string) (*Token, error) {
	if s.admin.AdminPasswordHash == "" ||
		subtle.ConstantTimeCompare([]byte(username), []byte(s.admin.AdminUsername)) != 1 ||
		!CheckPassword(s.admin.AdminPasswordHash, password) {
		return nil, ErrInvalidCredentials
	}
	return s.issuer.Issue(core.Actor{Role: core.RoleAdmin, ID: username})
}

// LoginTenant authenticates a tenant by email. Suspended, disabled or
// expired tenants are refused.
func (s *Service) LoginTenant(ctx context.Context, email, password string) (*Token, error) {
	tenant, err := s.repo.GetTenantByEmail(ctx, email)
	if errors.Is(err, core.ErrNotFound) {
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, err
	}
	if !CheckPassword(tenant.PasswordHash, password) {
		return nil, ErrInvalidCredentials
	}
	if err := tenantUsable(tenant, s.now()); err != nil {
		return nil, err
	}
	return s.issuer.Issue(core.Actor{Role: core.RoleTenant, ID: tenant.ID, TenantID: tenant.ID})
}

// LoginEndUser authenticates a mobile client. Both the end user and its
// tenant must be usable.
func (s *Service) LoginEndUser(ctx context.Context, username, password string) (*Token, error) {
	user, err := s.repo.GetEndUserByUsername(ctx, username)
	if errors.Is(err, core.ErrNotFound) {
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, err
	}
	if !CheckPassword(user.PasswordHash, password) {
		return nil, ErrInvalidCredentials
	}
	if user.Status != core.StatusActive {
		return nil, fmt.Errorf("end user is %s: %w", user.Status, core.ErrForbidden)
	}

	tenant, err := s.repo.GetTenant(ctx, user.TenantID)
	if err != nil {
		return nil, err
	}
	if err := tenantUsable(tenant, s.now()); err != nil {
		return nil, err
	}

	s.logger.Debug("End user logged in", zap.String("end_user_id", user.ID))
	return s.issuer.Issue(core.Actor{Role: core.RoleEndUser, ID: user.ID, TenantID: user.TenantID})
}

// CheckActive re-validates a token holder on each request: a tenant or end
// user suspended after login loses access without waiting for the token to
// expire. Admin and system actors always pass.
func (s *Service) CheckActive(ctx context.Context, actor core.Actor) error {
	switch actor.Role {
	case core.RoleTenant:
		tenant, err := s.repo.GetTenant(ctx, actor.TenantID)
		if err != nil {
			return err
		}
		return tenantUsable(tenant, s.now())
	case core.RoleEndUser:
		user, err := s.repo.GetEndUser(ctx, actor.ID)
		if err != nil {
			return err
		}
		if user.Status != core.StatusActive {
			return fmt.Errorf("end user is %s: %w", user.Status, core.ErrForbidden)
		}
		tenant, err := s.repo.GetTenant(ctx, user.TenantID)
		if err != nil {
			return err
		}
		return tenantUsable(tenant, s.now())
	}
	return nil
}

func tenantUsable(t *core.Tenant, now time.Time) error {
	if t.Status != core.StatusActive {
		return fmt.Errorf("tenant is %s: %w", t.Status, core.ErrForbidden)
	}
	if t.IsExpired(now) {
		return fmt.Errorf("tenant subscription expired: %w", core.ErrForbidden)
	}
	return nil
}
