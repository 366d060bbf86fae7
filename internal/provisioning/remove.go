package provisioning

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/zawnaing-2024/vmaster/internal/core"
	"github.com/zawnaing-2024/vmaster/internal/db"
	"github.com/zawnaing-2024/vmaster/internal/notify"
)

// Removal describes a completed account removal.
type Removal struct {
	Account *core.VpnAccount `json:"account"`

	// Notification is set when the backend could not remove the credential
	// itself and an operator has to.
	Notification *core.Notification `json:"notification,omitempty"`
}

// DeleteAccount removes one account on behalf of the actor in ctx.
func (e *Engine) DeleteAccount(ctx context.Context, accountID string) (*Removal, error) {
	acc, err := e.repo.GetAccount(ctx, accountID)
	if err != nil {
		return nil, err
	}
	if actor := core.ActorFrom(ctx); !actor.CanManageTenant(acc.TenantID) {
		return nil, core.NotFound("account", accountID)
	}
	return e.Remove(ctx, acc)
}

// Remove deletes the remote credential, then commits the row delete, pool
// release and counter decrement together. The account is flagged
// pending_deletion first, so a run interrupted after the remote delete can
// be finished by calling Remove again: a missing remote key counts as
// deleted and the counter is only decremented by the run that deletes the
// row.
func (e *Engine) Remove(ctx context.Context, acc *core.VpnAccount) (*Removal, error) {
	logger := e.logger.With(
		zap.String("account_id", acc.ID),
		zap.String("backend_id", acc.BackendID),
		zap.String("kind", string(acc.BackendKind)),
	)

	backend, err := e.repo.GetBackend(ctx, acc.BackendID)
	if err != nil {
		return nil, err
	}
	adapter, err := e.adapters.For(backend.Kind)
	if err != nil {
		return nil, err
	}

	if !acc.PendingDeletion {
		if err := e.repo.MarkAccountPendingDeletion(ctx, acc.ID); err != nil {
			return nil, err
		}
		acc.PendingDeletion = true
	}

	manual := false
	err = adapter.Deprovision(ctx, backend, acc.Credential)
	switch {
	case err == nil:
	case errors.Is(err, core.ErrUnsupported):
		manual = true
	default:
		logger.Error("Remote deprovisioning failed, account left pending deletion",
			zap.String("identity", acc.Credential.Identity()),
			zap.Error(err),
		)
		return nil, err
	}

	var removed bool
	err = e.repo.InTx(ctx, func(tx *db.Repository) error {
		var err error
		removed, err = tx.DeleteAccountRow(ctx, acc.ID)
		if err != nil || !removed {
			return err
		}
		if acc.PoolCredentialID != nil {
			released, err := tx.ReleasePoolCredentialFor(ctx, *acc.PoolCredentialID, acc.ID)
			if err != nil {
				return err
			}
			if !released {
				logger.Warn("Pool credential no longer held by account, left untouched",
					zap.String("pool_credential_id", *acc.PoolCredentialID),
				)
			}
		}
		if ok, err := tx.DecrementBackendUsage(ctx, backend.ID); err != nil {
			return err
		} else if !ok {
			logger.Warn("Backend usage counter already at zero")
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to finish removing account %s: %w", acc.ID, err)
	}

	res := &Removal{Account: acc}
	if !removed {
		logger.Info("Account row already removed by an earlier run")
		return res, nil
	}

	e.metrics.RecordDeleted(backend.Kind)
	logger.Info("Account removed", zap.Bool("manual_followup", manual))

	if manual && acc.Managed {
		res.Notification = e.raise(ctx, notify.ManualDeletion(notify.Subject{Backend: backend, Account: acc}))
	}
	return res, nil
}

// raise persists n, logging instead of failing when the sink is down.
func (e *Engine) raise(ctx context.Context, n *core.Notification) *core.Notification {
	if err := e.notifier.Raise(ctx, n); err != nil {
		return nil
	}
	return n
}
