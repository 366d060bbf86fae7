package db

import (
	"context"
	"fmt"

	"github.com/zawnaing-2024/vmaster/internal/core"
)

const backendColumns = `id, name, kind, host, port, location, status, api_url, api_cert_sha256,
        max_accounts, current_accounts, created_at, updated_at`

func (r *Repository) CreateBackend(ctx context.Context, b *core.VpnBackend) error {
	now := r.timestamp()
	b.CreatedAt, b.UpdatedAt = now, now
	if b.Status == "" {
		b.Status = core.BackendActive
	}

	query := `
        INSERT INTO vpn_backends (` + backendColumns + `) VALUES (
            :id, :name, :kind, :host, :port, :location, :status, :api_url, :api_cert_sha256,
            :max_accounts, :current_accounts, :created_at, :updated_at
        )`

	if err := r.namedExec(ctx, query, b); err != nil {
		return fmt.Errorf("failed to create backend: %w", err)
	}
	return nil
}

func (r *Repository) GetBackend(ctx context.Context, id string) (*core.VpnBackend, error) {
	var b core.VpnBackend
	err := r.get(ctx, &b, `SELECT `+backendColumns+` FROM vpn_backends WHERE id = ?`, id)
	if isNoRows(err) {
		return nil, core.NotFound("backend", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get backend: %w", err)
	}
	return &b, nil
}

func (r *Repository) ListBackends(ctx context.Context) ([]*core.VpnBackend, error) {
	backends := []*core.VpnBackend{}
	if err := r.selectAll(ctx, &backends, `SELECT `+backendColumns+` FROM vpn_backends ORDER BY name, id`); err != nil {
		return nil, fmt.Errorf("failed to list backends: %w", err)
	}
	return backends, nil
}

// UpdateBackend never touches current_accounts; the counter only moves
// through IncrementBackendUsage and DecrementBackendUsage.
func (r *Repository) UpdateBackend(ctx context.Context, b *core.VpnBackend) error {
	b.UpdatedAt = r.timestamp()

	query := `
        UPDATE vpn_backends SET
            name = :name,
            host = :host,
            port = :port,
            location = :location,
            status = :status,
            api_url = :api_url,
            api_cert_sha256 = :api_cert_sha256,
            max_accounts = :max_accounts,
            updated_at = :updated_at
        WHERE id = :id`

	if err := r.namedExec(ctx, query, b); err != nil {
		return fmt.Errorf("failed to update backend: %w", err)
	}
	return nil
}

func (r *Repository) DeleteBackend(ctx context.Context, id string) error {
	var inUse int
	if err := r.get(ctx, &inUse, `SELECT COUNT(*) FROM vpn_accounts WHERE backend_id = ?`, id); err != nil {
		return fmt.Errorf("failed to count backend accounts: %w", err)
	}
	if inUse > 0 {
		return fmt.Errorf("backend %s still has %d accounts: %w", id, inUse, core.ErrConflict)
	}

	n, err := r.exec(ctx, `DELETE FROM vpn_backends WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete backend: %w", err)
	}
	if n == 0 {
		return core.NotFound("backend", id)
	}
	return nil
}

// IncrementBackendUsage takes one slot on an active backend. The guard in
// the WHERE clause keeps current_accounts <= max_accounts under concurrent
// allocations.
func (r *Repository) IncrementBackendUsage(ctx context.Context, id string) error {
	query := `
        UPDATE vpn_backends SET
            current_accounts = current_accounts + 1,
            updated_at = ?
        WHERE id = ? AND status = ? AND current_accounts < max_accounts`

	n, err := r.exec(ctx, query, r.timestamp(), id, core.BackendActive)
	if err != nil {
		return fmt.Errorf("failed to increment backend usage: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("backend %s has no free slot: %w", id, core.ErrCapacityExceeded)
	}
	return nil
}

// DecrementBackendUsage releases one slot. It reports false when the counter
// was already zero.
func (r *Repository) DecrementBackendUsage(ctx context.Context, id string) (bool, error) {
	query := `
        UPDATE vpn_backends SET
            current_accounts = current_accounts - 1,
            updated_at = ?
        WHERE id = ? AND current_accounts > 0`

	n, err := r.exec(ctx, query, r.timestamp(), id)
	if err != nil {
		return false, fmt.Errorf("failed to decrement backend usage: %w", err)
	}
	return n == 1, nil
}
