package lifecycle

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/zawnaing-2024/vmaster/internal/core"
	"github.com/zawnaing-2024/vmaster/internal/notify"
)

// DeleteEndUser removes every account of the end user and then the end
// user. If any account cannot be removed the end user is kept and the
// error wraps the first failure; the report lists each account.
func (c *Controller) DeleteEndUser(ctx context.Context, endUserID string) (*Report, error) {
	user, err := c.repo.GetEndUser(ctx, endUserID)
	if err != nil {
		return nil, err
	}
	if actor := core.ActorFrom(ctx); !actor.CanManageTenant(user.TenantID) {
		return nil, core.NotFound("end user", endUserID)
	}

	report := newReport("end_user", user.ID, user.Status, "")
	if err := c.removeAccounts(ctx, user, report); err != nil {
		return report, err
	}

	if err := c.repo.DeleteEndUser(ctx, user.ID); err != nil {
		return report, err
	}
	c.logger.Info("End user deleted",
		zap.String("end_user_id", user.ID),
		zap.String("tenant_id", user.TenantID),
		zap.Int("accounts", len(report.Accounts)),
	)
	return report, nil
}

// DeleteTenant removes all end users of the tenant, each after its
// accounts, and then the tenant.
func (c *Controller) DeleteTenant(ctx context.Context, tenantID string) (*Report, error) {
	if actor := core.ActorFrom(ctx); actor.Role != core.RoleAdmin && actor.Role != core.RoleSystem {
		return nil, fmt.Errorf("actor %s cannot delete tenants: %w", actor.ID, core.ErrForbidden)
	}

	tenant, err := c.repo.GetTenant(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	users, err := c.repo.ListEndUsers(ctx, tenant.ID)
	if err != nil {
		return nil, err
	}

	report := newReport("tenant", tenant.ID, tenant.Status, "")
	var firstErr error
	for _, u := range users {
		if err := c.removeAccounts(ctx, u, report); err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		if err := c.repo.DeleteEndUser(ctx, u.ID); err != nil {
			return report, err
		}
		report.EndUsersUpdated++
	}
	if firstErr != nil {
		return report, firstErr
	}

	if err := c.repo.DeleteTenant(ctx, tenant.ID); err != nil {
		return report, err
	}
	c.logger.Info("Tenant deleted",
		zap.String("tenant_id", tenant.ID),
		zap.Int("end_users", report.EndUsersUpdated),
		zap.Int("accounts", len(report.Accounts)),
	)
	return report, nil
}

// ResumePendingDeletions finishes removals that were interrupted after the
// account was flagged.
func (c *Controller) ResumePendingDeletions(ctx context.Context) (*Report, error) {
	pending, err := c.repo.ListPendingDeletions(ctx)
	if err != nil {
		return nil, err
	}

	report := newReport("pending_deletions", "", "", "")
	for _, acc := range pending {
		res := c.removeOne(ctx, nil, acc)
		report.add(res)
	}

	c.logger.Info("Resumed pending deletions",
		zap.Int("accounts", len(report.Accounts)),
		zap.Int("failed", report.Count(OutcomeFailed)),
	)
	return report, nil
}

func (c *Controller) removeAccounts(ctx context.Context, user *core.EndUser, report *Report) error {
	accounts, err := c.repo.ListAccountsByEndUser(ctx, user.ID)
	if err != nil {
		return err
	}

	var failed int
	for _, acc := range accounts {
		res := c.removeOne(ctx, user, acc)
		if res.Outcome == OutcomeFailed {
			failed++
		}
		report.add(res)
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d accounts of end user %s could not be removed: %w",
			failed, len(accounts), user.ID, core.ErrBackendUnavailable)
	}
	return nil
}

func (c *Controller) removeOne(ctx context.Context, user *core.EndUser, acc *core.VpnAccount) AccountResult {
	res := AccountResult{
		AccountID: acc.ID,
		EndUserID: acc.EndUserID,
		BackendID: acc.BackendID,
		Kind:      acc.BackendKind,
	}
	logger := c.logger.With(
		zap.String("account_id", acc.ID),
		zap.String("backend_id", acc.BackendID),
		zap.String("kind", string(acc.BackendKind)),
	)

	subject := notify.Subject{Account: acc, EndUser: user}
	if b, err := c.repo.GetBackend(ctx, acc.BackendID); err == nil {
		subject.Backend = b
	}
	return c.remove(ctx, res, subject, logger)
}
