// Package provisioning creates and removes VPN accounts on backends.
package provisioning

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/zawnaing-2024/vmaster/internal/backends"
	"github.com/zawnaing-2024/vmaster/internal/core"
	"github.com/zawnaing-2024/vmaster/internal/db"
	"github.com/zawnaing-2024/vmaster/internal/expiry"
	"github.com/zawnaing-2024/vmaster/internal/metrics"
	"github.com/zawnaing-2024/vmaster/internal/notify"
)

type Request struct {
	TenantID  string `json:"-"`
	EndUserID string `json:"end_user_id" binding:"required"`
	BackendID string `json:"backend_id" binding:"required"`

	// At most one of PlanMonths and EndDate; neither means unlimited.
	PlanMonths *int         `json:"plan_months"`
	EndDate    *expiry.Date `json:"end_date"`
	StartDate  *expiry.Date `json:"start_date"`

	// Name labels the credential on the backend; defaults to the end user's username.
	Name string `json:"name"`
}

type Engine struct {
	repo     *db.Repository
	adapters *backends.Registry
	notifier *notify.Service
	calc     *expiry.Calculator
	metrics  *metrics.Collector
	logger   *zap.Logger
	now      func() time.Time
}

func NewEngine(repo *db.Repository, adapters *backends.Registry, notifier *notify.Service,
	calc *expiry.Calculator, m *metrics.Collector, logger *zap.Logger) *Engine {
	return &Engine{
		repo:     repo,
		adapters: adapters,
		notifier: notifier,
		calc:     calc,
		metrics:  m,
		logger:   logger,
		now:      time.Now,
	}
}

// WithClock returns a copy of e that reads the current time from now.
func (e *Engine) WithClock(now func() time.Time) *Engine {
	c := *e
	c.now = now
	c.calc = e.calc.WithClock(now)
	return &c
}

// CreateAccount provisions a credential and persists the account. Either
// the row is written and the backend counter incremented together, or
// neither happens and any remote credential is rolled back.
func (e *Engine) CreateAccount(ctx context.Context, req Request) (*core.VpnAccount, error) {
	backend, endUser, err := e.checkPreconditions(ctx, req)
	if err != nil {
		kind := core.BackendKind("unknown")
		if backend != nil {
			kind = backend.Kind
		}
		e.metrics.RecordProvisionFailure(kind, err)
		return nil, err
	}

	acc, err := e.provision(ctx, req, backend, endUser)
	if err != nil {
		e.metrics.RecordProvisionFailure(backend.Kind, err)
		return nil, err
	}

	e.metrics.RecordProvisioned(backend.Kind, acc.Managed)
	e.logger.Info("Account provisioned",
		zap.String("account_id", acc.ID),
		zap.String("tenant_id", acc.TenantID),
		zap.String("end_user_id", acc.EndUserID),
		zap.String("backend_id", acc.BackendID),
		zap.String("kind", string(acc.BackendKind)),
		zap.Bool("managed", acc.Managed),
		zap.String("actor", core.ActorFrom(ctx).ID),
	)
	return acc, nil
}

// checkPreconditions runs the admission checks in order, the first failing
// check deciding the error.
func (e *Engine) checkPreconditions(ctx context.Context, req Request) (*core.VpnBackend, *core.EndUser, error) {
	actor := core.ActorFrom(ctx)
	if !actor.CanManageTenant(req.TenantID) {
		return nil, nil, fmt.Errorf("actor %s cannot manage tenant %s: %w", actor.ID, req.TenantID, core.ErrForbidden)
	}

	tenant, err := e.repo.GetTenant(ctx, req.TenantID)
	if err != nil {
		return nil, nil, err
	}
	endUser, err := e.repo.GetEndUser(ctx, req.EndUserID)
	if err != nil {
		return nil, nil, err
	}
	if endUser.TenantID != tenant.ID {
		return nil, nil, core.NotFound("end user", req.EndUserID)
	}
	backend, err := e.repo.GetBackend(ctx, req.BackendID)
	if err != nil {
		return nil, nil, err
	}

	if backend.Status != core.BackendActive {
		return backend, nil, fmt.Errorf("backend %s is %s and not accepting accounts: %w",
			backend.Name, backend.Status, core.ErrBackendUnavailable)
	}
	if !backend.HasCapacity() {
		return backend, nil, fmt.Errorf("backend %s is full (%d/%d): %w",
			backend.Name, backend.CurrentAccounts, backend.MaxAccounts, core.ErrCapacityExceeded)
	}

	if err := e.checkQuotas(ctx, e.repo, tenant, endUser); err != nil {
		return backend, nil, err
	}

	now := e.now()
	switch {
	case tenant.Status != core.StatusActive:
		return backend, nil, fmt.Errorf("tenant %s is %s: %w", tenant.Name, tenant.Status, core.ErrForbidden)
	case tenant.IsExpired(now):
		return backend, nil, fmt.Errorf("tenant %s expired on %s: %w",
			tenant.Name, tenant.ExpiresAt.Format(time.DateOnly), core.ErrForbidden)
	case endUser.Status != core.StatusActive:
		return backend, nil, fmt.Errorf("end user %s is %s: %w", endUser.Username, endUser.Status, core.ErrForbidden)
	}

	if req.PlanMonths != nil && req.EndDate != nil {
		return backend, nil, fmt.Errorf("plan_months and end_date are mutually exclusive: %w", core.ErrInvalidInput)
	}
	return backend, endUser, nil
}

// checkQuotas compares live counts against the tenant total cap and the end
// user's effective cap.
func (e *Engine) checkQuotas(ctx context.Context, repo *db.Repository, tenant *core.Tenant, endUser *core.EndUser) error {
	if tenant.MaxTotalAccounts != nil {
		n, err := repo.CountAccountsByTenant(ctx, tenant.ID)
		if err != nil {
			return err
		}
		if n >= *tenant.MaxTotalAccounts {
			return &core.QuotaError{Scope: core.QuotaTenant, Limit: *tenant.MaxTotalAccounts, Current: n}
		}
	}

	if limit := endUser.EffectiveAccountCap(tenant); limit != nil {
		n, err := repo.CountAccountsByEndUser(ctx, endUser.ID)
		if err != nil {
			return err
		}
		if n >= *limit {
			return &core.QuotaError{Scope: core.QuotaEndUser, Limit: *limit, Current: n}
		}
	}
	return nil
}

func (e *Engine) provision(ctx context.Context, req Request, backend *core.VpnBackend, endUser *core.EndUser) (*core.VpnAccount, error) {
	exp, err := e.calc.Calculate(expiry.Input{
		PlanMonths: req.PlanMonths,
		EndDate:    req.EndDate.In(e.calc.Location()),
		StartDate:  req.StartDate.In(e.calc.Location()),
	})
	if err != nil {
		return nil, err
	}

	adapter, err := e.adapters.For(backend.Kind)
	if err != nil {
		return nil, err
	}

	name := req.Name
	if name == "" {
		name = endUser.Username
	}
	acc := &core.VpnAccount{
		ID:          uuid.New().String(),
		TenantID:    endUser.TenantID,
		EndUserID:   endUser.ID,
		BackendID:   backend.ID,
		BackendKind: backend.Kind,
		PlanMonths:  exp.PlanMonths,
		ExpiresAt:   exp.ExpiresAt,
		Status:      core.StatusActive,
	}

	cred, err := adapter.Provision(ctx, backend, backends.Hint{AccountID: acc.ID, Name: name})
	if err != nil {
		return nil, err
	}
	acc.Credential = cred

	err = e.repo.InTx(ctx, func(tx *db.Repository) error {
		tenant, err := tx.GetTenant(ctx, acc.TenantID)
		if err != nil {
			return err
		}
		if err := e.checkQuotas(ctx, tx, tenant, endUser); err != nil {
			return err
		}
		if err := tx.IncrementBackendUsage(ctx, backend.ID); err != nil {
			return err
		}
		return tx.CreateAccount(ctx, acc)
	})
	if err != nil {
		e.compensate(ctx, adapter, backend, acc, err)
		return nil, err
	}
	return acc, nil
}

// compensate undoes the remote side of a provisioning whose local commit
// failed.
func (e *Engine) compensate(ctx context.Context, adapter backends.Adapter, backend *core.VpnBackend, acc *core.VpnAccount, cause error) {
	logger := e.logger.With(
		zap.String("account_id", acc.ID),
		zap.String("backend_id", backend.ID),
		zap.String("kind", string(backend.Kind)),
		zap.NamedError("cause", cause),
	)

	if acc.PoolCredentialID != nil {
		if _, err := e.repo.ReleasePoolCredentialFor(ctx, *acc.PoolCredentialID, acc.ID); err != nil {
			logger.Error("Failed to return pool credential after aborted provisioning",
				zap.String("pool_credential_id", *acc.PoolCredentialID),
				zap.Error(err),
			)
		}
		return
	}
	if !acc.Managed {
		return
	}

	err := adapter.Deprovision(ctx, backend, acc.Credential)
	switch {
	case err == nil:
		logger.Info("Rolled back remote credential after aborted provisioning")
	case errors.Is(err, core.ErrUnsupported):
	default:
		logger.Error("Failed to roll back remote credential after aborted provisioning",
			zap.String("identity", acc.Credential.Identity()),
			zap.Error(err),
		)
		n := notify.AutomationFailed(notify.Subject{Backend: backend, Account: acc}, "rollback", err)
		_ = e.notifier.Raise(ctx, n)
	}
}
