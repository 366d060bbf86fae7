package provisioning

import (
	"context"
	"time"

	"github.com/zawnaing-2024/vmaster/internal/core"
)

// AccountView is an account as returned to clients, with its expiration
// status evaluated at read time.
type AccountView struct {
	*core.VpnAccount
	ExpirationStatus core.ExpirationStatus `json:"expiration_status"`
	BackendName      string                `json:"backend_name,omitempty"`
	BackendHost      string                `json:"backend_host,omitempty"`
	BackendPort      int                   `json:"backend_port,omitempty"`
}

func NewAccountView(acc *core.VpnAccount, backend *core.VpnBackend, now time.Time) AccountView {
	v := AccountView{VpnAccount: acc, ExpirationStatus: acc.ExpirationStatus(now)}
	if backend != nil {
		v.BackendName = backend.Name
		v.BackendHost = backend.Host
		v.BackendPort = backend.Port
	}
	return v
}

// ListAccounts returns the accounts of one end user, or of the whole tenant
// when endUserID is empty. Accounts being removed are left out.
func (e *Engine) ListAccounts(ctx context.Context, tenantID, endUserID string) ([]AccountView, error) {
	if actor := core.ActorFrom(ctx); !actor.CanManageTenant(tenantID) {
		return nil, core.NotFound("tenant", tenantID)
	}

	var (
		accounts []*core.VpnAccount
		err      error
	)
	if endUserID != "" {
		u, err := e.repo.GetEndUser(ctx, endUserID)
		if err != nil {
			return nil, err
		}
		if u.TenantID != tenantID {
			return nil, core.NotFound("end user", endUserID)
		}
		accounts, err = e.repo.ListAccountsByEndUser(ctx, endUserID)
		if err != nil {
			return nil, err
		}
	} else {
		accounts, err = e.repo.ListAccountsByTenant(ctx, tenantID)
		if err != nil {
			return nil, err
		}
	}
	return e.views(ctx, accounts, false)
}

func (e *Engine) GetAccount(ctx context.Context, accountID string) (*AccountView, error) {
	acc, err := e.repo.GetAccount(ctx, accountID)
	if err != nil {
		return nil, err
	}
	if actor := core.ActorFrom(ctx); !actor.CanManageTenant(acc.TenantID) {
		return nil, core.NotFound("account", accountID)
	}
	backend, err := e.repo.GetBackend(ctx, acc.BackendID)
	if err != nil {
		return nil, err
	}
	v := NewAccountView(acc, backend, e.now())
	return &v, nil
}

// ListActiveForEndUser returns the end user's usable accounts: active status
// and not expired.
func (e *Engine) ListActiveForEndUser(ctx context.Context, endUserID string) ([]AccountView, error) {
	accounts, err := e.repo.ListAccountsByEndUser(ctx, endUserID)
	if err != nil {
		return nil, err
	}
	return e.views(ctx, accounts, true)
}

// ReportUsage records that the end user connected with the account. It
// changes nothing but last_used_at.
func (e *Engine) ReportUsage(ctx context.Context, endUserID, accountID string) error {
	acc, err := e.repo.GetAccount(ctx, accountID)
	if err != nil {
		return err
	}
	if acc.EndUserID != endUserID {
		return core.NotFound("account", accountID)
	}
	return e.repo.TouchAccountLastUsed(ctx, acc.ID, e.now())
}

func (e *Engine) views(ctx context.Context, accounts []*core.VpnAccount, activeOnly bool) ([]AccountView, error) {
	now := e.now()
	backendsByID := map[string]*core.VpnBackend{}

	views := make([]AccountView, 0, len(accounts))
	for _, acc := range accounts {
		if acc.PendingDeletion {
			continue
		}
		if activeOnly && (acc.Status != core.StatusActive || acc.ExpirationStatus(now) == core.ExpirationExpired) {
			continue
		}

		b, ok := backendsByID[acc.BackendID]
		if !ok {
			var err error
			b, err = e.repo.GetBackend(ctx, acc.BackendID)
			if err != nil {
				return nil, err
			}
			backendsByID[acc.BackendID] = b
		}
		views = append(views, NewAccountView(acc, b, now))
	}
	return views, nil
}
