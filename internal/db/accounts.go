package db

import (
	"context"
	"fmt"
	"time"

	"github.com/zawnaing-2024/vmaster/internal/core"
)

const accountColumns = `id, tenant_id, end_user_id, backend_id, backend_kind, provider_key_id, access_url,
        username, password, uuid, config_blob, pool_credential_id, managed, plan_months, expires_at,
        status, pending_deletion, last_used_at, created_at, updated_at`

func (r *Repository) CreateAccount(ctx context.Context, a *core.VpnAccount) error {
	now := r.timestamp()
	a.CreatedAt, a.UpdatedAt = now, now
	a.ExpiresAt = utcPtr(a.ExpiresAt)
	if a.Status == "" {
		a.Status = core.StatusActive
	}

	query := `
        INSERT INTO vpn_accounts (` + accountColumns + `) VALUES (
            :id, :tenant_id, :end_user_id, :backend_id, :backend_kind, :provider_key_id, :access_url,
            :username, :password, :uuid, :config_blob, :pool_credential_id, :managed, :plan_months, :expires_at,
            :status, :pending_deletion, :last_used_at, :created_at, :updated_at
        )`

	if err := r.namedExec(ctx, query, a); err != nil {
		return fmt.Errorf("failed to create account: %w", err)
	}
	return nil
}

func (r *Repository) GetAccount(ctx context.Context, id string) (*core.VpnAccount, error) {
	var a core.VpnAccount
	err := r.get(ctx, &a, `SELECT `+accountColumns+` FROM vpn_accounts WHERE id = ?`, id)
	if isNoRows(err) {
		return nil, core.NotFound("account", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get account: %w", err)
	}
	return &a, nil
}

func (r *Repository) ListAccountsByEndUser(ctx context.Context, endUserID string) ([]*core.VpnAccount, error) {
	accounts := []*core.VpnAccount{}
	query := `SELECT ` + accountColumns + ` FROM vpn_accounts WHERE end_user_id = ? ORDER BY created_at, id`
	if err := r.selectAll(ctx, &accounts, query, endUserID); err != nil {
		return nil, fmt.Errorf("failed to list accounts: %w", err)
	}
	return accounts, nil
}

func (r *Repository) ListAccountsByTenant(ctx context.Context, tenantID string) ([]*core.VpnAccount, error) {
	accounts := []*core.VpnAccount{}
	query := `SELECT ` + accountColumns + ` FROM vpn_accounts WHERE tenant_id = ? ORDER BY created_at, id`
	if err := r.selectAll(ctx, &accounts, query, tenantID); err != nil {
		return nil, fmt.Errorf("failed to list accounts: %w", err)
	}
	return accounts, nil
}

func (r *Repository) ListPendingDeletions(ctx context.Context) ([]*core.VpnAccount, error) {
	accounts := []*core.VpnAccount{}
	query := `SELECT ` + accountColumns + ` FROM vpn_accounts WHERE pending_deletion = ? ORDER BY updated_at, id`
	if err := r.selectAll(ctx, &accounts, query, true); err != nil {
		return nil, fmt.Errorf("failed to list pending deletions: %w", err)
	}
	return accounts, nil
}

// CountAccountsByTenant counts accounts that hold a slot against the
// tenant's total cap. Rows pending deletion no longer count.
func (r *Repository) CountAccountsByTenant(ctx context.Context, tenantID string) (int, error) {
	var count int
	query := `SELECT COUNT(*) FROM vpn_accounts WHERE tenant_id = ? AND pending_deletion = ?`
	err := r.get(ctx, &count, query, tenantID, false)
	return count, err
}

func (r *Repository) CountAccountsByEndUser(ctx context.Context, endUserID string) (int, error) {
	var count int
	query := `SELECT COUNT(*) FROM vpn_accounts WHERE end_user_id = ? AND pending_deletion = ?`
	err := r.get(ctx, &count, query, endUserID, false)
	return count, err
}

// SetAccountStatusByEndUser aligns every account of an end user with status.
func (r *Repository) SetAccountStatusByEndUser(ctx context.Context, endUserID string, status core.Status) (int64, error) {
	n, err := r.exec(ctx, `UPDATE vpn_accounts SET status = ?, updated_at = ? WHERE end_user_id = ?`,
		status, r.timestamp(), endUserID)
	if err != nil {
		return 0, fmt.Errorf("failed to update account statuses: %w", err)
	}
	return n, nil
}

func (r *Repository) MarkAccountPendingDeletion(ctx context.Context, id string) error {
	n, err := r.exec(ctx, `UPDATE vpn_accounts SET pending_deletion = ?, updated_at = ? WHERE id = ?`,
		true, r.timestamp(), id)
	if err != nil {
		return fmt.Errorf("failed to mark account for deletion: %w", err)
	}
	if n == 0 {
		return core.NotFound("account", id)
	}
	return nil
}

// DeleteAccountRow removes the row and reports whether it still existed, so
// a resumed deletion never decrements a counter twice.
func (r *Repository) DeleteAccountRow(ctx context.Context, id string) (bool, error) {
	n, err := r.exec(ctx, `DELETE FROM vpn_accounts WHERE id = ?`, id)
	if err != nil {
		return false, fmt.Errorf("failed to delete account: %w", err)
	}
	return n == 1, nil
}

func (r *Repository) TouchAccountLastUsed(ctx context.Context, id string, at time.Time) error {
	n, err := r.exec(ctx, `UPDATE vpn_accounts SET last_used_at = ? WHERE id = ?`, at.UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to record account usage: %w", err)
	}
	if n == 0 {
		return core.NotFound("account", id)
	}
	return nil
}
