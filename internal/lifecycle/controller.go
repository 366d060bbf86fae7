// Package lifecycle propagates tenant and end user status changes to the
// accounts they own, and removes owners once their accounts are gone.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/zawnaing-2024/vmaster/internal/backends"
	"github.com/zawnaing-2024/vmaster/internal/core"
	"github.com/zawnaing-2024/vmaster/internal/db"
	"github.com/zawnaing-2024/vmaster/internal/metrics"
	"github.com/zawnaing-2024/vmaster/internal/notify"
	"github.com/zawnaing-2024/vmaster/internal/provisioning"
)

type Controller struct {
	repo     *db.Repository
	engine   *provisioning.Engine
	adapters *backends.Registry
	notifier *notify.Service
	metrics  *metrics.Collector
	logger   *zap.Logger
}

func NewController(repo *db.Repository, engine *provisioning.Engine, adapters *backends.Registry,
	notifier *notify.Service, m *metrics.Collector, logger *zap.Logger) *Controller {
	return &Controller{
		repo:     repo,
		engine:   engine,
		adapters: adapters,
		notifier: notifier,
		metrics:  m,
		logger:   logger,
	}
}

// ChangeEndUserStatus sets the end user and every owned account to status,
// then applies the backend side of the change account by account. An end
// user cannot be activated while its tenant is not active or has expired.
func (c *Controller) ChangeEndUserStatus(ctx context.Context, endUserID string, status core.Status) (*Report, error) {
	if !status.Valid() {
		return nil, fmt.Errorf("unknown status %q: %w", status, core.ErrInvalidInput)
	}

	user, err := c.repo.GetEndUser(ctx, endUserID)
	if err != nil {
		return nil, err
	}
	if actor := core.ActorFrom(ctx); !actor.CanManageTenant(user.TenantID) {
		return nil, core.NotFound("end user", endUserID)
	}
	if status == core.StatusActive {
		tenant, err := c.repo.GetTenant(ctx, user.TenantID)
		if err != nil {
			return nil, err
		}
		if tenant.Status != core.StatusActive || tenant.IsExpired(time.Now()) {
			return nil, fmt.Errorf("cannot activate end user %s while tenant %s is %s or expired: %w",
				user.Username, tenant.Name, tenant.Status, core.ErrForbidden)
		}
	}

	report := newReport("end_user", user.ID, user.Status, status)
	if user.Status == status {
		return report, nil
	}

	err = c.repo.InTx(ctx, func(tx *db.Repository) error {
		return setEndUserStatus(ctx, tx, user.ID, status)
	})
	if err != nil {
		return nil, err
	}
	report.EndUsersUpdated = 1

	if err := c.cascadeAccounts(ctx, user, user.Status, status, report); err != nil {
		return report, err
	}
	c.logCascade(report)
	return report, nil
}

// ChangeTenantStatus sets the tenant, all of its end users and their
// accounts to status, then cascades per end user. Only administrators may
// change a tenant's status.
func (c *Controller) ChangeTenantStatus(ctx context.Context, tenantID string, status core.Status) (*Report, error) {
	if !status.Valid() {
		return nil, fmt.Errorf("unknown status %q: %w", status, core.ErrInvalidInput)
	}
	if actor := core.ActorFrom(ctx); actor.Role != core.RoleAdmin && actor.Role != core.RoleSystem {
		return nil, fmt.Errorf("actor %s cannot change tenant status: %w", actor.ID, core.ErrForbidden)
	}

	tenant, err := c.repo.GetTenant(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	report := newReport("tenant", tenant.ID, tenant.Status, status)
	if tenant.Status == status {
		return report, nil
	}

	users, err := c.repo.ListEndUsers(ctx, tenant.ID)
	if err != nil {
		return nil, err
	}

	err = c.repo.InTx(ctx, func(tx *db.Repository) error {
		if err := tx.UpdateTenantStatus(ctx, tenant.ID, status); err != nil {
			return err
		}
		for _, u := range users {
			if u.Status == status {
				continue
			}
			if err := setEndUserStatus(ctx, tx, u.ID, status); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	for _, u := range users {
		if u.Status == status {
			continue
		}
		report.EndUsersUpdated++
		if err := c.cascadeAccounts(ctx, u, u.Status, status, report); err != nil {
			return report, err
		}
	}
	c.logCascade(report)
	return report, nil
}

func setEndUserStatus(ctx context.Context, tx *db.Repository, endUserID string, status core.Status) error {
	if err := tx.UpdateEndUserStatus(ctx, endUserID, status); err != nil {
		return err
	}
	_, err := tx.SetAccountStatusByEndUser(ctx, endUserID, status)
	return err
}

// cascadeAccounts runs the backend side of a from -> to change for every
// account of user. It only returns an error when the accounts cannot be
// listed; per-account failures end up in report.
func (c *Controller) cascadeAccounts(ctx context.Context, user *core.EndUser, from, to core.Status, report *Report) error {
	accounts, err := c.repo.ListAccountsByEndUser(ctx, user.ID)
	if err != nil {
		return err
	}

	for _, acc := range accounts {
		acc.Status = to
		res := c.cascadeAccount(ctx, user, acc, from, to)
		c.metrics.RecordCascadeOutcome(acc.BackendKind, string(res.Outcome))
		report.add(res)
	}
	return nil
}

func (c *Controller) cascadeAccount(ctx context.Context, user *core.EndUser, acc *core.VpnAccount, from, to core.Status) AccountResult {
	res := AccountResult{
		AccountID: acc.ID,
		EndUserID: acc.EndUserID,
		BackendID: acc.BackendID,
		Kind:      acc.BackendKind,
		Outcome:   OutcomeUnchanged,
	}

	logger := c.logger.With(
		zap.String("account_id", acc.ID),
		zap.String("backend_id", acc.BackendID),
		zap.String("kind", string(acc.BackendKind)),
		zap.String("from", string(from)),
		zap.String("to", string(to)),
	)

	backend, err := c.repo.GetBackend(ctx, acc.BackendID)
	if err != nil {
		return c.fail(ctx, res, notify.Subject{Account: acc, EndUser: user}, "load backend", err, logger)
	}
	subject := notify.Subject{Backend: backend, Account: acc, EndUser: user}

	// earlier removals that did not finish are completed whatever the new status
	if acc.PendingDeletion {
		return c.remove(ctx, res, subject, logger)
	}

	deactivating := from == core.StatusActive && to != core.StatusActive
	reactivating := from != core.StatusActive && to == core.StatusActive
	if !deactivating && !reactivating {
		return res
	}

	adapter, err := c.adapters.For(backend.Kind)
	if err != nil {
		return c.fail(ctx, res, subject, "resolve adapter", err, logger)
	}

	switch backend.Kind {
	case core.KindProxyAPI:
		// proxy keys cannot be toggled; deactivation removes them for good
		if deactivating {
			return c.remove(ctx, res, subject, logger)
		}
		return res

	case core.KindAuthTunnel, core.KindRelay:
		if deactivating {
			err = adapter.Suspend(ctx, backend, acc.Credential)
		} else {
			err = adapter.Reactivate(ctx, backend, acc.Credential)
		}

		switch {
		case err == nil && deactivating:
			res.Outcome = OutcomeSuspended
		case err == nil:
			res.Outcome = OutcomeReactivated
		case errors.Is(err, core.ErrUnsupported):
			n := notify.ManualReactivation(subject)
			if deactivating {
				n = notify.ManualDeactivation(subject, to)
			}
			return c.escalate(ctx, res, n, logger)
		default:
			op := "reactivate"
			if deactivating {
				op = "suspend"
			}
			return c.fail(ctx, res, subject, op, err, logger)
		}
		return res
	}

	return c.fail(ctx, res, subject, "cascade", fmt.Errorf("backend kind %q: %w", backend.Kind, core.ErrUnsupported), logger)
}

func (c *Controller) remove(ctx context.Context, res AccountResult, subject notify.Subject, logger *zap.Logger) AccountResult {
	removal, err := c.engine.Remove(ctx, subject.Account)
	if err != nil {
		return c.fail(ctx, res, subject, "deprovision", err, logger)
	}
	res.Outcome = OutcomeDeprovisioned
	if removal.Notification != nil {
		res.Outcome = OutcomeEscalated
		res.NotificationID = removal.Notification.ID
	}
	return res
}

func (c *Controller) escalate(ctx context.Context, res AccountResult, n *core.Notification, logger *zap.Logger) AccountResult {
	res.Outcome = OutcomeEscalated
	if err := c.notifier.Raise(ctx, n); err != nil {
		logger.Error("Could not record escalation", zap.String("title", n.Title), zap.Error(err))
		res.Error = err.Error()
		return res
	}
	res.NotificationID = n.ID
	return res
}

// fail records a per-account failure and raises a critical notification so
// it is never silently dropped.
func (c *Controller) fail(ctx context.Context, res AccountResult, subject notify.Subject, op string, err error, logger *zap.Logger) AccountResult {
	logger.Error("Cascade step failed", zap.String("operation", op), zap.Error(err))

	res.Outcome = OutcomeFailed
	res.Error = err.Error()

	n := notify.AutomationFailed(subject, op, err)
	if raiseErr := c.notifier.Raise(ctx, n); raiseErr == nil {
		res.NotificationID = n.ID
	}
	return res
}

func (c *Controller) logCascade(r *Report) {
	c.logger.Info("Status cascade finished",
		zap.String("scope", r.Scope),
		zap.String("id", r.ID),
		zap.String("from", string(r.From)),
		zap.String("to", string(r.To)),
		zap.Int("end_users", r.EndUsersUpdated),
		zap.Int("accounts", len(r.Accounts)),
		zap.Int("failed", r.Count(OutcomeFailed)),
		zap.Int("escalated", r.Count(OutcomeEscalated)),
	)
}
