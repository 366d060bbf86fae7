package db

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/lib/pq"

	"github.com/zawnaing-2024/vmaster/internal/core"
)

const tenantColumns = `id, name, email, password_hash, status, max_end_users, max_accounts_per_user,
        max_total_accounts, expires_at, created_at, updated_at`

func (r *Repository) CreateTenant(ctx context.Context, t *core.Tenant) error {
	now := r.timestamp()
	t.CreatedAt, t.UpdatedAt = now, now
	t.ExpiresAt = utcPtr(t.ExpiresAt)
	if t.Status == "" {
		t.Status = core.StatusActive
	}

	query := `
        INSERT INTO tenants (` + tenantColumns + `) VALUES (
            :id, :name, :email, :password_hash, :status, :max_end_users, :max_accounts_per_user,
            :max_total_accounts, :expires_at, :created_at, :updated_at
        )`

	if err := r.namedExec(ctx, query, t); err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("tenant email %s already registered: %w", t.Email, core.ErrConflict)
		}
		return fmt.Errorf("failed to create tenant: %w", err)
	}
	return nil
}

func (r *Repository) GetTenant(ctx context.Context, id string) (*core.Tenant, error) {
	var t core.Tenant
	err := r.get(ctx, &t, `SELECT `+tenantColumns+` FROM tenants WHERE id = ?`, id)
	if isNoRows(err) {
		return nil, core.NotFound("tenant", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get tenant: %w", err)
	}
	return &t, nil
}

func (r *Repository) GetTenantByEmail(ctx context.Context, email string) (*core.Tenant, error) {
	var t core.Tenant
	err := r.get(ctx, &t, `SELECT `+tenantColumns+` FROM tenants WHERE email = ?`, email)
	if isNoRows(err) {
		return nil, core.NotFound("tenant", email)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get tenant: %w", err)
	}
	return &t, nil
}

func (r *Repository) ListTenants(ctx context.Context, limit, offset int) ([]*core.Tenant, error) {
	tenants := []*core.Tenant{}
	query := `
        SELECT ` + tenantColumns + ` FROM tenants
        ORDER BY created_at DESC
        LIMIT ? OFFSET ?`

	if err := r.selectAll(ctx, &tenants, query, limit, offset); err != nil {
		return nil, fmt.Errorf("failed to list tenants: %w", err)
	}
	return tenants, nil
}

// UpdateTenant writes the editable fields. Status changes go through
// UpdateTenantStatus so they can trigger a cascade.
func (r *Repository) UpdateTenant(ctx context.Context, t *core.Tenant) error {
	t.UpdatedAt = r.timestamp()
	t.ExpiresAt = utcPtr(t.ExpiresAt)

	query := `
        UPDATE tenants SET
            name = :name,
            email = :email,
            password_hash = :password_hash,
            max_end_users = :max_end_users,
            max_accounts_per_user = :max_accounts_per_user,
            max_total_accounts = :max_total_accounts,
            expires_at = :expires_at,
            updated_at = :updated_at
        WHERE id = :id`

	if err := r.namedExec(ctx, query, t); err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("tenant email %s already registered: %w", t.Email, core.ErrConflict)
		}
		return fmt.Errorf("failed to update tenant: %w", err)
	}
	return nil
}

func (r *Repository) UpdateTenantStatus(ctx context.Context, id string, status core.Status) error {
	n, err := r.exec(ctx, `UPDATE tenants SET status = ?, updated_at = ? WHERE id = ?`, status, r.timestamp(), id)
	if err != nil {
		return fmt.Errorf("failed to update tenant status: %w", err)
	}
	if n == 0 {
		return core.NotFound("tenant", id)
	}
	return nil
}

func (r *Repository) DeleteTenant(ctx context.Context, id string) error {
	n, err := r.exec(ctx, `DELETE FROM tenants WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete tenant: %w", err)
	}
	if n == 0 {
		return core.NotFound("tenant", id)
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}
