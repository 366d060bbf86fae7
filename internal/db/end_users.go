package db

import (
	"context"
	"fmt"

	"github.com/zawnaing-2024/vmaster/internal/core"
)

const endUserColumns = `id, tenant_id, name, username, password_hash, status, max_accounts, created_at, updated_at`

func (r *Repository) CreateEndUser(ctx context.Context, u *core.EndUser) error {
	now := r.timestamp()
	u.CreatedAt, u.UpdatedAt = now, now
	if u.Status == "" {
		u.Status = core.StatusActive
	}

	query := `
        INSERT INTO end_users (` + endUserColumns + `) VALUES (
            :id, :tenant_id, :name, :username, :password_hash, :status, :max_accounts, :created_at, :updated_at
        )`

	if err := r.namedExec(ctx, query, u); err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("username %s already taken: %w", u.Username, core.ErrConflict)
		}
		return fmt.Errorf("failed to create end user: %w", err)
	}
	return nil
}

func (r *Repository) GetEndUser(ctx context.Context, id string) (*core.EndUser, error) {
	var u core.EndUser
	err := r.get(ctx, &u, `SELECT `+endUserColumns+` FROM end_users WHERE id = ?`, id)
	if isNoRows(err) {
		return nil, core.NotFound("end user", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get end user: %w", err)
	}
	return &u, nil
}

func (r *Repository) GetEndUserByUsername(ctx context.Context, username string) (*core.EndUser, error) {
	var u core.EndUser
	err := r.get(ctx, &u, `SELECT `+endUserColumns+` FROM end_users WHERE username = ?`, username)
	if isNoRows(err) {
		return nil, core.NotFound("end user", username)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get end user: %w", err)
	}
	return &u, nil
}

func (r *Repository) ListEndUsers(ctx context.Context, tenantID string) ([]*core.EndUser, error) {
	users := []*core.EndUser{}
	query := `SELECT ` + endUserColumns + ` FROM end_users WHERE tenant_id = ? ORDER BY created_at, id`
	if err := r.selectAll(ctx, &users, query, tenantID); err != nil {
		return nil, fmt.Errorf("failed to list end users: %w", err)
	}
	return users, nil
}

func (r *Repository) CountEndUsers(ctx context.Context, tenantID string) (int, error) {
	var count int
	err := r.get(ctx, &count, `SELECT COUNT(*) FROM end_users WHERE tenant_id = ?`, tenantID)
	return count, err
}

func (r *Repository) UpdateEndUser(ctx context.Context, u *core.EndUser) error {
	u.UpdatedAt = r.timestamp()

	query := `
        UPDATE end_users SET
            name = :name,
            password_hash = :password_hash,
            max_accounts = :max_accounts,
            updated_at = :updated_at
        WHERE id = :id`

	if err := r.namedExec(ctx, query, u); err != nil {
		return fmt.Errorf("failed to update end user: %w", err)
	}
	return nil
}

func (r *Repository) UpdateEndUserStatus(ctx context.Context, id string, status core.Status) error {
	n, err := r.exec(ctx, `UPDATE end_users SET status = ?, updated_at = ? WHERE id = ?`, status, r.timestamp(), id)
	if err != nil {
		return fmt.Errorf("failed to update end user status: %w", err)
	}
	if n == 0 {
		return core.NotFound("end user", id)
	}
	return nil
}

func (r *Repository) DeleteEndUser(ctx context.Context, id string) error {
	n, err := r.exec(ctx, `DELETE FROM end_users WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete end user: %w", err)
	}
	if n == 0 {
		return core.NotFound("end user", id)
	}
	return nil
}
