package db

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/zawnaing-2024/vmaster/internal/core"
)

const poolColumns = `id, kind, username, password, uuid, config_blob, notes, line_no,
        is_assigned, assigned_account_id, assigned_at, created_at`

// maxClaimAttempts bounds how often a claim retries after losing a race for
// the oldest free credential.
const maxClaimAttempts = 10

func (r *Repository) InsertPoolCredentials(ctx context.Context, creds []*core.PoolCredential) error {
	if len(creds) == 0 {
		return nil
	}

	query := `
        INSERT INTO pool_credentials (` + poolColumns + `) VALUES (
            :id, :kind, :username, :password, :uuid, :config_blob, :notes, :line_no,
            :is_assigned, :assigned_account_id, :assigned_at, :created_at
        )`

	return r.InTx(ctx, func(tx *Repository) error {
		now := tx.timestamp()
		for _, c := range creds {
			if c.ID == "" {
				c.ID = uuid.New().String()
			}
			c.CreatedAt = now
			if err := tx.namedExec(ctx, query, c); err != nil {
				return fmt.Errorf("failed to insert pool credential: %w", err)
			}
		}
		return nil
	})
}

func (r *Repository) GetPoolCredential(ctx context.Context, id string) (*core.PoolCredential, error) {
	var c core.PoolCredential
	err := r.get(ctx, &c, `SELECT `+poolColumns+` FROM pool_credentials WHERE id = ?`, id)
	if isNoRows(err) {
		return nil, core.NotFound("pool credential", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get pool credential: %w", err)
	}
	return &c, nil
}

// ClaimPoolCredential assigns the oldest free credential of kind to
// accountID. The assignment is a conditional update checked by affected row
// count; a claimer that loses the race moves on to the next candidate.
func (r *Repository) ClaimPoolCredential(ctx context.Context, kind core.BackendKind, accountID string) (*core.PoolCredential, error) {
	selectQuery := `
        SELECT id FROM pool_credentials
        WHERE kind = ? AND is_assigned = ?
        ORDER BY created_at, line_no, id
        LIMIT 1`

	claimQuery := `
        UPDATE pool_credentials SET
            is_assigned = ?,
            assigned_account_id = ?,
            assigned_at = ?
        WHERE id = ? AND is_assigned = ?`

	for attempt := 0; attempt < maxClaimAttempts; attempt++ {
		var id string
		err := r.get(ctx, &id, selectQuery, kind, false)
		if isNoRows(err) {
			return nil, fmt.Errorf("no free %s credential in pool: %w", kind, core.ErrNotFound)
		}
		if err != nil {
			return nil, fmt.Errorf("failed to find pool credential: %w", err)
		}

		n, err := r.exec(ctx, claimQuery, true, accountID, r.timestamp(), id, false)
		if err != nil {
			return nil, fmt.Errorf("failed to claim pool credential: %w", err)
		}
		if n == 1 {
			return r.GetPoolCredential(ctx, id)
		}
	}

	return nil, fmt.Errorf("pool credential claim for %s lost %d races: %w", kind, maxClaimAttempts, core.ErrConflict)
}

// ReleasePoolCredential clears the assignment of a credential whose holder
// no longer exists. Releasing a free credential is a no-op; releasing one
// still referenced by an account row is a Conflict.
func (r *Repository) ReleasePoolCredential(ctx context.Context, id string) error {
	query := `
        UPDATE pool_credentials SET
            is_assigned = ?,
            assigned_account_id = NULL,
            assigned_at = NULL
        WHERE id = ?
          AND NOT EXISTS (
              SELECT 1 FROM vpn_accounts a WHERE a.id = pool_credentials.assigned_account_id
          )`

	n, err := r.exec(ctx, query, false, id)
	if err != nil {
		return fmt.Errorf("failed to release pool credential: %w", err)
	}
	if n == 1 {
		return nil
	}

	c, err := r.GetPoolCredential(ctx, id)
	if err != nil {
		return err
	}
	holder := ""
	if c.AssignedAccountID != nil {
		holder = *c.AssignedAccountID
	}
	return fmt.Errorf("pool credential %s is held by account %s: %w", id, holder, core.ErrConflict)
}

// ReleasePoolCredentialFor clears the assignment only while accountID is
// still the holder. It reports whether anything was released.
func (r *Repository) ReleasePoolCredentialFor(ctx context.Context, id, accountID string) (bool, error) {
	query := `
        UPDATE pool_credentials SET
            is_assigned = ?,
            assigned_account_id = NULL,
            assigned_at = NULL
        WHERE id = ? AND assigned_account_id = ?`

	n, err := r.exec(ctx, query, false, id, accountID)
	if err != nil {
		return false, fmt.Errorf("failed to release pool credential: %w", err)
	}
	return n == 1, nil
}

func (r *Repository) DeletePoolCredential(ctx context.Context, id string) error {
	n, err := r.exec(ctx, `DELETE FROM pool_credentials WHERE id = ? AND is_assigned = ?`, id, false)
	if err != nil {
		return fmt.Errorf("failed to delete pool credential: %w", err)
	}
	if n == 1 {
		return nil
	}

	if _, err := r.GetPoolCredential(ctx, id); err != nil {
		return err
	}
	return fmt.Errorf("pool credential %s is assigned: %w", id, core.ErrConflict)
}

type PoolFilter struct {
	Kind     core.BackendKind
	Assigned *bool
	Limit    int
	Offset   int
}

func (r *Repository) ListPoolCredentials(ctx context.Context, f PoolFilter) ([]*core.PoolCredential, error) {
	query := `SELECT ` + poolColumns + ` FROM pool_credentials WHERE 1 = 1`
	args := []interface{}{}

	if f.Kind != "" {
		query += ` AND kind = ?`
		args = append(args, f.Kind)
	}
	if f.Assigned != nil {
		query += ` AND is_assigned = ?`
		args = append(args, *f.Assigned)
	}
	query += ` ORDER BY created_at, line_no, id`

	if f.Limit > 0 {
		query += ` LIMIT ? OFFSET ?`
		args = append(args, f.Limit, f.Offset)
	}

	creds := []*core.PoolCredential{}
	if err := r.selectAll(ctx, &creds, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list pool credentials: %w", err)
	}
	return creds, nil
}

func (r *Repository) PoolStats(ctx context.Context) ([]core.PoolStats, error) {
	query := `
        SELECT kind,
               COUNT(*) AS total,
               SUM(CASE WHEN is_assigned THEN 1 ELSE 0 END) AS assigned,
               SUM(CASE WHEN is_assigned THEN 0 ELSE 1 END) AS available
        FROM pool_credentials
        GROUP BY kind
        ORDER BY kind`

	stats := []core.PoolStats{}
	if err := r.selectAll(ctx, &stats, query); err != nil {
		return nil, fmt.Errorf("failed to get pool stats: %w", err)
	}
	return stats, nil
}
