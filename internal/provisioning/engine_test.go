package provisioning_test

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/zawnaing-2024/vmaster/internal/backends"
	"github.com/zawnaing-2024/vmaster/internal/backends/backendstest"
	"github.com/zawnaing-2024/vmaster/internal/core"
	"github.com/zawnaing-2024/vmaster/internal/db"
	"github.com/zawnaing-2024/vmaster/internal/db/dbtest"
	"github.com/zawnaing-2024/vmaster/internal/expiry"
	"github.com/zawnaing-2024/vmaster/internal/notify"
	"github.com/zawnaing-2024/vmaster/internal/pool"
	"github.com/zawnaing-2024/vmaster/internal/provisioning"
	"github.com/zawnaing-2024/vmaster/pkg/radius"
)

var fixedNow = time.Date(2024, 1, 31, 0, 0, 0, 0, time.UTC)

type fixture struct {
	repo    *db.Repository
	pool    *pool.Store
	outline *backendstest.Outline
	radius  *radius.Store
	engine  *provisioning.Engine
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	logger := zap.NewNop()

	repo := dbtest.Repository(t)
	poolStore := pool.NewStore(repo, logger)
	api := backendstest.NewOutline()
	auth := backendstest.RadiusStore(t)

	registry := backends.NewRegistry(time.Minute,
		backends.NewProxyAdapterWithFactory(func(*core.VpnBackend) backends.OutlineAPI { return api }, nil, logger),
		backends.NewRadiusAdapter(auth, poolStore, nil, logger),
		backends.NewRelayAdapter(poolStore, time.Second, nil, logger),
	)
	notifier := notify.NewService(repo, nil, logger)
	engine := provisioning.NewEngine(repo, registry, notifier, expiry.NewCalculator(time.UTC), nil, logger).
		WithClock(func() time.Time { return fixedNow })

	return &fixture{repo: repo, pool: poolStore, outline: api, radius: auth, engine: engine}
}

func intPtr(n int) *int { return &n }

func systemCtx() context.Context {
	return core.WithActor(context.Background(), core.SystemActor("test"))
}

func (f *fixture) tenant(t *testing.T, mutate func(*core.Tenant)) *core.Tenant {
	t.Helper()
	tenant := &core.Tenant{ID: uuid.New().String(), Name: "Acme", Email: uuid.New().String() + "@acme.test", PasswordHash: "x"}
	if mutate != nil {
		mutate(tenant)
	}
	require.NoError(t, f.repo.CreateTenant(context.Background(), tenant))
	return tenant
}

func (f *fixture) endUser(t *testing.T, tenantID string, mutate func(*core.EndUser)) *core.EndUser {
	t.Helper()
	u := &core.EndUser{ID: uuid.New().String(), TenantID: tenantID, Name: "Bob", Username: "u" + uuid.New().String()[:8], PasswordHash: "x"}
	if mutate != nil {
		mutate(u)
	}
	require.NoError(t, f.repo.CreateEndUser(context.Background(), u))
	return u
}

func (f *fixture) backend(t *testing.T, kind core.BackendKind, max int) *core.VpnBackend {
	t.Helper()
	b := &core.VpnBackend{ID: uuid.New().String(), Name: "node-" + string(kind), Kind: kind, Host: "192.0.2.10", Port: 443, MaxAccounts: max}
	if kind == core.KindProxyAPI {
		b.APIURL = "https://192.0.2.10:8443/api"
	}
	require.NoError(t, f.repo.CreateBackend(context.Background(), b))
	return b
}

func (f *fixture) usage(t *testing.T, backendID string) int {
	t.Helper()
	b, err := f.repo.GetBackend(context.Background(), backendID)
	require.NoError(t, err)
	return b.CurrentAccounts
}

func TestCreateAccount_ProxyAPI(t *testing.T) {
	ctx := systemCtx()
	f := newFixture(t)
	tenant := f.tenant(t, nil)
	user := f.endUser(t, tenant.ID, nil)
	b := f.backend(t, core.KindProxyAPI, 5)

	acc, err := f.engine.CreateAccount(ctx, provisioning.Request{
		TenantID: tenant.ID, EndUserID: user.ID, BackendID: b.ID, PlanMonths: intPtr(1),
	})
	require.NoError(t, err)
	assert.True(t, acc.Managed)
	assert.True(t, f.outline.Has(acc.ProviderKeyID))
	require.NotNil(t, acc.ExpiresAt)
	assert.Equal(t, time.Date(2024, 2, 29, 0, 0, 0, 0, time.UTC), acc.ExpiresAt.UTC())
	assert.Equal(t, 1, f.usage(t, b.ID))

	stored, err := f.repo.GetAccount(ctx, acc.ID)
	require.NoError(t, err)
	assert.Equal(t, acc.AccessURL, stored.AccessURL)
	assert.Equal(t, core.StatusActive, stored.Status)
}

func TestCreateAccount_AuthTunnelWritesAuthStore(t *testing.T) {
	ctx := systemCtx()
	f := newFixture(t)
	tenant := f.tenant(t, nil)
	user := f.endUser(t, tenant.ID, nil)
	b := f.backend(t, core.KindAuthTunnel, 5)

	acc, err := f.engine.CreateAccount(ctx, provisioning.Request{TenantID: tenant.ID, EndUserID: user.ID, BackendID: b.ID})
	require.NoError(t, err)
	assert.Nil(t, acc.ExpiresAt)
	assert.Equal(t, core.ExpirationUnlimited, acc.ExpirationStatus(fixedNow))

	exists, err := f.radius.UserExists(ctx, acc.Username)
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestCreateAccount_RelayClaimsPoolCredential(t *testing.T) {
	ctx := systemCtx()
	f := newFixture(t)
	tenant := f.tenant(t, nil)
	user := f.endUser(t, tenant.ID, nil)
	b := f.backend(t, core.KindRelay, 5)

	_, err := f.pool.BulkImport(ctx, core.KindRelay, "0f8fad5b-d9cb-469f-a165-70867728950e\n", "batch")
	require.NoError(t, err)

	acc, err := f.engine.CreateAccount(ctx, provisioning.Request{TenantID: tenant.ID, EndUserID: user.ID, BackendID: b.ID})
	require.NoError(t, err)
	require.NotNil(t, acc.PoolCredentialID)
	assert.Equal(t, "0f8fad5b-d9cb-469f-a165-70867728950e", acc.UUID)

	pc, err := f.repo.GetPoolCredential(ctx, *acc.PoolCredentialID)
	require.NoError(t, err)
	assert.True(t, pc.IsAssigned)
	require.NotNil(t, pc.AssignedAccountID)
	assert.Equal(t, acc.ID, *pc.AssignedAccountID)

	// pool now empty: the next account gets an unmanaged credential
	acc, err = f.engine.CreateAccount(ctx, provisioning.Request{TenantID: tenant.ID, EndUserID: user.ID, BackendID: b.ID})
	require.NoError(t, err)
	assert.False(t, acc.Managed)
	assert.Nil(t, acc.PoolCredentialID)
	assert.Equal(t, 2, f.usage(t, b.ID))
}

func TestCreateAccount_EndUserCapBeatsHigherTenantCap(t *testing.T) {
	ctx := systemCtx()
	f := newFixture(t)
	tenant := f.tenant(t, func(tn *core.Tenant) {
		tn.MaxTotalAccounts = intPtr(10)
		tn.MaxAccountsPerUser = intPtr(5)
	})
	user := f.endUser(t, tenant.ID, func(u *core.EndUser) { u.MaxAccounts = intPtr(2) })
	b := f.backend(t, core.KindProxyAPI, 10)

	req := provisioning.Request{TenantID: tenant.ID, EndUserID: user.ID, BackendID: b.ID}
	for i := 0; i < 2; i++ {
		_, err := f.engine.CreateAccount(ctx, req)
		require.NoError(t, err)
	}

	_, err := f.engine.CreateAccount(ctx, req)
	require.Error(t, err)
	assert.True(t, errors.Is(err, core.ErrQuotaExceeded))

	var qe *core.QuotaError
	require.True(t, errors.As(err, &qe))
	assert.Equal(t, core.QuotaEndUser, qe.Scope)
	assert.Equal(t, 2, qe.Limit)

	assert.Equal(t, 2, f.usage(t, b.ID))
	assert.Equal(t, 2, f.outline.Len())
}

func TestCreateAccount_TenantCap(t *testing.T) {
	ctx := systemCtx()
	f := newFixture(t)
	tenant := f.tenant(t, func(tn *core.Tenant) { tn.MaxTotalAccounts = intPtr(1) })
	u1 := f.endUser(t, tenant.ID, nil)
	u2 := f.endUser(t, tenant.ID, nil)
	b := f.backend(t, core.KindProxyAPI, 10)

	_, err := f.engine.CreateAccount(ctx, provisioning.Request{TenantID: tenant.ID, EndUserID: u1.ID, BackendID: b.ID})
	require.NoError(t, err)

	_, err = f.engine.CreateAccount(ctx, provisioning.Request{TenantID: tenant.ID, EndUserID: u2.ID, BackendID: b.ID})
	var qe *core.QuotaError
	require.True(t, errors.As(err, &qe))
	assert.Equal(t, core.QuotaTenant, qe.Scope)
}

func TestCreateAccount_PreconditionOrder(t *testing.T) {
	ctx := systemCtx()
	f := newFixture(t)

	// full backend and a capped, suspended end user: capacity wins
	tenant := f.tenant(t, nil)
	user := f.endUser(t, tenant.ID, func(u *core.EndUser) {
		u.MaxAccounts = intPtr(0)
		u.Status = core.StatusSuspended
	})
	full := f.backend(t, core.KindProxyAPI, 0)

	_, err := f.engine.CreateAccount(ctx, provisioning.Request{TenantID: tenant.ID, EndUserID: user.ID, BackendID: full.ID})
	assert.True(t, errors.Is(err, core.ErrCapacityExceeded))

	open := f.backend(t, core.KindProxyAPI, 5)
	_, err = f.engine.CreateAccount(ctx, provisioning.Request{TenantID: tenant.ID, EndUserID: user.ID, BackendID: open.ID})
	assert.True(t, errors.Is(err, core.ErrQuotaExceeded))

	require.NoError(t, f.repo.UpdateEndUser(ctx, &core.EndUser{ID: user.ID, Name: user.Name, Username: user.Username, PasswordHash: "x"}))
	_, err = f.engine.CreateAccount(ctx, provisioning.Request{TenantID: tenant.ID, EndUserID: user.ID, BackendID: open.ID})
	assert.True(t, errors.Is(err, core.ErrForbidden))

	assert.Zero(t, f.outline.Len())
	assert.Zero(t, f.usage(t, open.ID))
}

func TestCreateAccount_RejectsBadInput(t *testing.T) {
	ctx := systemCtx()
	f := newFixture(t)
	tenant := f.tenant(t, nil)
	user := f.endUser(t, tenant.ID, nil)
	other := f.tenant(t, nil)
	b := f.backend(t, core.KindProxyAPI, 5)

	_, err := f.engine.CreateAccount(ctx, provisioning.Request{TenantID: other.ID, EndUserID: user.ID, BackendID: b.ID})
	assert.True(t, errors.Is(err, core.ErrNotFound))

	_, err = f.engine.CreateAccount(ctx, provisioning.Request{TenantID: tenant.ID, EndUserID: user.ID, BackendID: "missing"})
	assert.True(t, errors.Is(err, core.ErrNotFound))

	_, err = f.engine.CreateAccount(ctx, provisioning.Request{TenantID: tenant.ID, EndUserID: user.ID, BackendID: b.ID, PlanMonths: intPtr(0)})
	assert.True(t, errors.Is(err, core.ErrInvalidInput))

	end := time.Date(2024, 6, 15, 0, 0, 0, 0, time.UTC)
	_, err = f.engine.CreateAccount(ctx, provisioning.Request{TenantID: tenant.ID, EndUserID: user.ID, BackendID: b.ID, PlanMonths: intPtr(1), EndDate: expiry.At(end)})
	assert.True(t, errors.Is(err, core.ErrInvalidInput))

	tenantActor := core.WithActor(ctx, core.Actor{Role: core.RoleTenant, ID: other.ID, TenantID: other.ID})
	_, err = f.engine.CreateAccount(tenantActor, provisioning.Request{TenantID: tenant.ID, EndUserID: user.ID, BackendID: b.ID})
	assert.True(t, errors.Is(err, core.ErrForbidden))

	assert.Zero(t, f.usage(t, b.ID))
}

func TestCreateAccount_CustomEndDate(t *testing.T) {
	f := newFixture(t)
	tenant := f.tenant(t, nil)
	user := f.endUser(t, tenant.ID, nil)
	b := f.backend(t, core.KindProxyAPI, 5)

	start := time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)
	end := time.Date(2024, 6, 15, 0, 0, 0, 0, time.UTC)
	acc, err := f.engine.CreateAccount(systemCtx(), provisioning.Request{
		TenantID: tenant.ID, EndUserID: user.ID, BackendID: b.ID, EndDate: expiry.At(end), StartDate: expiry.At(start),
	})
	require.NoError(t, err)
	require.NotNil(t, acc.PlanMonths)
	assert.Equal(t, 5, *acc.PlanMonths)
	assert.Equal(t, time.Date(2024, 6, 15, 23, 59, 59, 0, time.UTC), acc.ExpiresAt.UTC())
}

func TestCreateAccount_DateOnlyEndDate(t *testing.T) {
	f := newFixture(t)
	tenant := f.tenant(t, nil)
	user := f.endUser(t, tenant.ID, nil)
	b := f.backend(t, core.KindProxyAPI, 5)

	var req provisioning.Request
	body := `{"end_user_id":"` + user.ID + `","backend_id":"` + b.ID + `","start_date":"2024-01-15","end_date":"2024-06-15"}`
	require.NoError(t, json.Unmarshal([]byte(body), &req))
	req.TenantID = tenant.ID

	acc, err := f.engine.CreateAccount(systemCtx(), req)
	require.NoError(t, err)
	require.NotNil(t, acc.PlanMonths)
	assert.Equal(t, 5, *acc.PlanMonths)
	assert.Equal(t, time.Date(2024, 6, 15, 23, 59, 59, 0, time.UTC), acc.ExpiresAt.UTC())

	err = json.Unmarshal([]byte(`{"end_date":"15/06/2024"}`), &req)
	assert.Error(t, err)
}

func TestCreateAccount_BackendFailureWritesNothing(t *testing.T) {
	ctx := systemCtx()
	f := newFixture(t)
	tenant := f.tenant(t, nil)
	user := f.endUser(t, tenant.ID, nil)
	b := f.backend(t, core.KindProxyAPI, 5)
	f.outline.CreateErr = errors.New("connection reset")

	_, err := f.engine.CreateAccount(ctx, provisioning.Request{TenantID: tenant.ID, EndUserID: user.ID, BackendID: b.ID})
	assert.True(t, errors.Is(err, core.ErrBackendUnavailable))

	accounts, err := f.repo.ListAccountsByEndUser(ctx, user.ID)
	require.NoError(t, err)
	assert.Empty(t, accounts)
	assert.Zero(t, f.usage(t, b.ID))
}

func TestCreateAccount_ConcurrentAtCapacityBoundary(t *testing.T) {
	ctx := systemCtx()
	f := newFixture(t)
	tenant := f.tenant(t, nil)
	user := f.endUser(t, tenant.ID, nil)
	b := f.backend(t, core.KindRelay, 3)

	raw := ""
	for i := 0; i < 10; i++ {
		raw += uuid.New().String() + "\n"
	}
	_, err := f.pool.BulkImport(ctx, core.KindRelay, raw, "")
	require.NoError(t, err)

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
	)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.engine.CreateAccount(ctx, provisioning.Request{TenantID: tenant.ID, EndUserID: user.ID, BackendID: b.ID})
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				succeeded++
				return
			}
			assert.True(t, errors.Is(err, core.ErrCapacityExceeded), "unexpected error: %v", err)
		}()
	}
	wg.Wait()

	assert.Equal(t, 3, succeeded)
	assert.Equal(t, 3, f.usage(t, b.ID))

	stats, err := f.pool.Stats(ctx)
	require.NoError(t, err)
	require.Len(t, stats, 1)
	assert.Equal(t, 3, stats[0].Assigned)
	assert.Equal(t, 7, stats[0].Available)
}

func TestRemove_ProxyAccount(t *testing.T) {
	ctx := systemCtx()
	f := newFixture(t)
	tenant := f.tenant(t, nil)
	user := f.endUser(t, tenant.ID, nil)
	b := f.backend(t, core.KindProxyAPI, 5)

	acc, err := f.engine.CreateAccount(ctx, provisioning.Request{TenantID: tenant.ID, EndUserID: user.ID, BackendID: b.ID})
	require.NoError(t, err)

	res, err := f.engine.DeleteAccount(ctx, acc.ID)
	require.NoError(t, err)
	assert.Nil(t, res.Notification)
	assert.False(t, f.outline.Has(acc.ProviderKeyID))
	assert.Zero(t, f.usage(t, b.ID))

	_, err = f.repo.GetAccount(ctx, acc.ID)
	assert.True(t, errors.Is(err, core.ErrNotFound))
}

func TestRemove_ResumesAfterRemoteFailure(t *testing.T) {
	ctx := systemCtx()
	f := newFixture(t)
	tenant := f.tenant(t, nil)
	user := f.endUser(t, tenant.ID, nil)
	b := f.backend(t, core.KindProxyAPI, 5)

	acc, err := f.engine.CreateAccount(ctx, provisioning.Request{TenantID: tenant.ID, EndUserID: user.ID, BackendID: b.ID})
	require.NoError(t, err)

	f.outline.SetDeleteErr(errors.New("timeout"))
	_, err = f.engine.DeleteAccount(ctx, acc.ID)
	assert.True(t, errors.Is(err, core.ErrBackendUnavailable))

	pending, err := f.repo.ListPendingDeletions(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, 1, f.usage(t, b.ID))

	f.outline.SetDeleteErr(nil)
	_, err = f.engine.Remove(ctx, pending[0])
	require.NoError(t, err)
	assert.Zero(t, f.usage(t, b.ID))

	// a replay of the same removal must not touch the counter again
	_, err = f.engine.Remove(ctx, pending[0])
	require.NoError(t, err)
	assert.Zero(t, f.usage(t, b.ID))
}

func TestRemove_RelayReleasesPoolAndNotifies(t *testing.T) {
	ctx := systemCtx()
	f := newFixture(t)
	tenant := f.tenant(t, nil)
	user := f.endUser(t, tenant.ID, nil)
	b := f.backend(t, core.KindRelay, 5)

	_, err := f.pool.BulkImport(ctx, core.KindRelay, uuid.New().String(), "")
	require.NoError(t, err)
	acc, err := f.engine.CreateAccount(ctx, provisioning.Request{TenantID: tenant.ID, EndUserID: user.ID, BackendID: b.ID})
	require.NoError(t, err)
	require.NotNil(t, acc.PoolCredentialID)

	res, err := f.engine.DeleteAccount(ctx, acc.ID)
	require.NoError(t, err)
	require.NotNil(t, res.Notification)
	assert.Equal(t, core.NotificationManualDeletion, res.Notification.Type)

	pc, err := f.repo.GetPoolCredential(ctx, *acc.PoolCredentialID)
	require.NoError(t, err)
	assert.False(t, pc.IsAssigned)
	assert.Nil(t, pc.AssignedAccountID)

	again, err := f.pool.Claim(ctx, core.KindRelay, uuid.New().String())
	require.NoError(t, err)
	assert.Equal(t, pc.ID, again.ID)
}

func TestPoolRelease_RefusedWhileAccountHoldsCredential(t *testing.T) {
	ctx := systemCtx()
	f := newFixture(t)
	tenant := f.tenant(t, nil)
	user := f.endUser(t, tenant.ID, nil)
	b := f.backend(t, core.KindRelay, 5)

	_, err := f.pool.BulkImport(ctx, core.KindRelay, "0123456789abcdef0123456789abcdef", "")
	require.NoError(t, err)
	first, err := f.engine.CreateAccount(ctx, provisioning.Request{TenantID: tenant.ID, EndUserID: user.ID, BackendID: b.ID})
	require.NoError(t, err)
	require.NotNil(t, first.PoolCredentialID)

	err = f.pool.Release(ctx, *first.PoolCredentialID)
	assert.True(t, errors.Is(err, core.ErrConflict))

	second, err := f.engine.CreateAccount(ctx, provisioning.Request{TenantID: tenant.ID, EndUserID: user.ID, BackendID: b.ID})
	require.NoError(t, err)
	assert.Nil(t, second.PoolCredentialID)
	assert.NotEqual(t, first.UUID, second.UUID)

	pc, err := f.repo.GetPoolCredential(ctx, *first.PoolCredentialID)
	require.NoError(t, err)
	require.NotNil(t, pc.AssignedAccountID)
	assert.Equal(t, first.ID, *pc.AssignedAccountID)
}

func TestRemove_LeavesCredentialOfAnotherHolder(t *testing.T) {
	ctx := systemCtx()
	f := newFixture(t)
	tenant := f.tenant(t, nil)
	user := f.endUser(t, tenant.ID, nil)
	b := f.backend(t, core.KindRelay, 5)

	_, err := f.pool.BulkImport(ctx, core.KindRelay, uuid.New().String(), "")
	require.NoError(t, err)
	acc, err := f.engine.CreateAccount(ctx, provisioning.Request{TenantID: tenant.ID, EndUserID: user.ID, BackendID: b.ID})
	require.NoError(t, err)
	require.NotNil(t, acc.PoolCredentialID)

	// the credential has since moved to another holder
	stale := *acc
	stale.ID = uuid.New().String()
	require.NoError(t, f.repo.CreateAccount(ctx, &stale))
	moved, err := f.repo.ReleasePoolCredentialFor(ctx, *acc.PoolCredentialID, acc.ID)
	require.NoError(t, err)
	require.True(t, moved)
	_, err = f.pool.Claim(ctx, core.KindRelay, stale.ID)
	require.NoError(t, err)

	_, err = f.engine.DeleteAccount(ctx, acc.ID)
	require.NoError(t, err)

	pc, err := f.repo.GetPoolCredential(ctx, *acc.PoolCredentialID)
	require.NoError(t, err)
	assert.True(t, pc.IsAssigned)
	require.NotNil(t, pc.AssignedAccountID)
	assert.Equal(t, stale.ID, *pc.AssignedAccountID)
}

func TestCreateAccount_WithoutActorIsForbidden(t *testing.T) {
	f := newFixture(t)
	tenant := f.tenant(t, nil)
	user := f.endUser(t, tenant.ID, nil)
	b := f.backend(t, core.KindProxyAPI, 5)

	_, err := f.engine.CreateAccount(context.Background(), provisioning.Request{TenantID: tenant.ID, EndUserID: user.ID, BackendID: b.ID})
	assert.True(t, errors.Is(err, core.ErrForbidden))
	assert.Zero(t, f.outline.Len())
}

func TestListAccounts(t *testing.T) {
	ctx := systemCtx()
	f := newFixture(t)
	tenant := f.tenant(t, nil)
	user := f.endUser(t, tenant.ID, nil)
	b := f.backend(t, core.KindProxyAPI, 5)

	past := time.Date(2023, 12, 1, 0, 0, 0, 0, time.UTC)
	_, err := f.engine.CreateAccount(ctx, provisioning.Request{TenantID: tenant.ID, EndUserID: user.ID, BackendID: b.ID, EndDate: expiry.At(past)})
	require.NoError(t, err)
	_, err = f.engine.CreateAccount(ctx, provisioning.Request{TenantID: tenant.ID, EndUserID: user.ID, BackendID: b.ID})
	require.NoError(t, err)

	views, err := f.engine.ListAccounts(ctx, tenant.ID, user.ID)
	require.NoError(t, err)
	require.Len(t, views, 2)
	statuses := []core.ExpirationStatus{views[0].ExpirationStatus, views[1].ExpirationStatus}
	assert.ElementsMatch(t, []core.ExpirationStatus{core.ExpirationExpired, core.ExpirationUnlimited}, statuses)
	assert.Equal(t, b.Name, views[0].BackendName)

	active, err := f.engine.ListActiveForEndUser(ctx, user.ID)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, core.ExpirationUnlimited, active[0].ExpirationStatus)

	require.NoError(t, f.engine.ReportUsage(ctx, user.ID, active[0].ID))
	stored, err := f.repo.GetAccount(ctx, active[0].ID)
	require.NoError(t, err)
	require.NotNil(t, stored.LastUsedAt)

	other := f.endUser(t, tenant.ID, nil)
	assert.True(t, errors.Is(f.engine.ReportUsage(ctx, other.ID, active[0].ID), core.ErrNotFound))
}
