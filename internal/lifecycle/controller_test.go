package lifecycle_test

import (
	"context"
	"errors"
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
	"github.com/zawnaing-2024/vmaster/internal/lifecycle"
	"github.com/zawnaing-2024/vmaster/internal/notify"
	"github.com/zawnaing-2024/vmaster/internal/pool"
	"github.com/zawnaing-2024/vmaster/internal/provisioning"
	"github.com/zawnaing-2024/vmaster/pkg/radius"
)

func systemCtx() context.Context {
	return core.WithActor(context.Background(), core.SystemActor("test"))
}

type fixture struct {
	repo       *db.Repository
	pool       *pool.Store
	outline    *backendstest.Outline
	radius     *radius.Store
	engine     *provisioning.Engine
	controller *lifecycle.Controller

	tenant *core.Tenant
	user   *core.EndUser
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := systemCtx()
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
	engine := provisioning.NewEngine(repo, registry, notifier, expiry.NewCalculator(time.UTC), nil, logger)
	controller := lifecycle.NewController(repo, engine, registry, notifier, nil, logger)

	tenant := &core.Tenant{ID: uuid.New().String(), Name: "Acme", Email: "ops@acme.test", PasswordHash: "x"}
	require.NoError(t, repo.CreateTenant(ctx, tenant))
	user := &core.EndUser{ID: uuid.New().String(), TenantID: tenant.ID, Name: "Bob", Username: "bob", PasswordHash: "x"}
	require.NoError(t, repo.CreateEndUser(ctx, user))

	return &fixture{
		repo: repo, pool: poolStore, outline: api, radius: auth,
		engine: engine, controller: controller, tenant: tenant, user: user,
	}
}

func (f *fixture) backend(t *testing.T, kind core.BackendKind) *core.VpnBackend {
	t.Helper()
	b := &core.VpnBackend{ID: uuid.New().String(), Name: "node-" + string(kind), Kind: kind, Host: "192.0.2.20", Port: 443, MaxAccounts: 10}
	if kind == core.KindProxyAPI {
		b.APIURL = "https://192.0.2.20:8443/api"
	}
	require.NoError(t, f.repo.CreateBackend(context.Background(), b))
	return b
}

func (f *fixture) account(t *testing.T, b *core.VpnBackend) *core.VpnAccount {
	t.Helper()
	acc, err := f.engine.CreateAccount(systemCtx(), provisioning.Request{
		TenantID: f.tenant.ID, EndUserID: f.user.ID, BackendID: b.ID,
	})
	require.NoError(t, err)
	return acc
}

func (f *fixture) usage(t *testing.T, backendID string) int {
	t.Helper()
	b, err := f.repo.GetBackend(context.Background(), backendID)
	require.NoError(t, err)
	return b.CurrentAccounts
}

func (f *fixture) notifications(t *testing.T) []*core.Notification {
	t.Helper()
	list, err := f.repo.ListNotifications(context.Background(), core.NotificationFilters{Limit: 100})
	require.NoError(t, err)
	return list
}

func outcomes(r *lifecycle.Report) map[string]lifecycle.Outcome {
	m := map[string]lifecycle.Outcome{}
	for _, a := range r.Accounts {
		m[a.AccountID] = a.Outcome
	}
	return m
}

func TestTenantSuspend_ProxyRemovedAuthTunnelSuspended(t *testing.T) {
	ctx := systemCtx()
	f := newFixture(t)
	proxyBackend := f.backend(t, core.KindProxyAPI)
	tunnelBackend := f.backend(t, core.KindAuthTunnel)
	proxyAcc := f.account(t, proxyBackend)
	tunnelAcc := f.account(t, tunnelBackend)

	report, err := f.controller.ChangeTenantStatus(ctx, f.tenant.ID, core.StatusSuspended)
	require.NoError(t, err)
	assert.Equal(t, 1, report.EndUsersUpdated)
	assert.Equal(t, lifecycle.OutcomeDeprovisioned, outcomes(report)[proxyAcc.ID])
	assert.Equal(t, lifecycle.OutcomeSuspended, outcomes(report)[tunnelAcc.ID])

	_, err = f.repo.GetAccount(ctx, proxyAcc.ID)
	assert.True(t, errors.Is(err, core.ErrNotFound))
	assert.False(t, f.outline.Has(proxyAcc.ProviderKeyID))
	assert.Zero(t, f.usage(t, proxyBackend.ID))

	stored, err := f.repo.GetAccount(ctx, tunnelAcc.ID)
	require.NoError(t, err)
	assert.Equal(t, core.StatusSuspended, stored.Status)
	assert.Equal(t, 1, f.usage(t, tunnelBackend.ID))

	rejected, err := f.radius.IsRejected(ctx, tunnelAcc.Username)
	require.NoError(t, err)
	assert.True(t, rejected)
	exists, err := f.radius.UserExists(ctx, tunnelAcc.Username)
	require.NoError(t, err)
	assert.True(t, exists)

	user, err := f.repo.GetEndUser(ctx, f.user.ID)
	require.NoError(t, err)
	assert.Equal(t, core.StatusSuspended, user.Status)
	assert.Empty(t, f.notifications(t))

	// back to active: the tunnel account is reachable again, the proxy key is not recreated
	report, err = f.controller.ChangeTenantStatus(ctx, f.tenant.ID, core.StatusActive)
	require.NoError(t, err)
	require.Len(t, report.Accounts, 1)
	assert.Equal(t, lifecycle.OutcomeReactivated, report.Accounts[0].Outcome)

	rejected, err = f.radius.IsRejected(ctx, tunnelAcc.Username)
	require.NoError(t, err)
	assert.False(t, rejected)
	assert.Zero(t, f.outline.Len())

	stored, err = f.repo.GetAccount(ctx, tunnelAcc.ID)
	require.NoError(t, err)
	assert.Equal(t, core.StatusActive, stored.Status)
}

func TestTenantSuspend_RelayEscalates(t *testing.T) {
	ctx := systemCtx()
	f := newFixture(t)
	relay := f.backend(t, core.KindRelay)
	_, err := f.pool.BulkImport(ctx, core.KindRelay, uuid.New().String(), "")
	require.NoError(t, err)
	acc := f.account(t, relay)

	report, err := f.controller.ChangeTenantStatus(ctx, f.tenant.ID, core.StatusSuspended)
	require.NoError(t, err)
	require.Len(t, report.Accounts, 1)
	assert.Equal(t, lifecycle.OutcomeEscalated, report.Accounts[0].Outcome)

	stored, err := f.repo.GetAccount(ctx, acc.ID)
	require.NoError(t, err)
	assert.Equal(t, core.StatusSuspended, stored.Status)
	assert.Equal(t, 1, f.usage(t, relay.ID))

	pc, err := f.repo.GetPoolCredential(ctx, *acc.PoolCredentialID)
	require.NoError(t, err)
	assert.True(t, pc.IsAssigned)

	list := f.notifications(t)
	require.Len(t, list, 1)
	n := list[0]
	assert.Equal(t, core.SeverityWarning, n.Severity)
	assert.Equal(t, core.NotificationManualDeactivation, n.Type)
	require.NotNil(t, n.AccountID)
	assert.Equal(t, acc.ID, *n.AccountID)
	require.NotNil(t, n.TenantID)
	assert.Equal(t, f.tenant.ID, *n.TenantID)
	require.NotNil(t, n.ActionRequired)
	assert.Contains(t, *n.ActionRequired, acc.UUID)
	assert.Contains(t, n.Title, relay.Name)
	assert.Equal(t, report.Accounts[0].NotificationID, n.ID)
}

func TestCascade_FailureIsRecordedAndDoesNotStopOthers(t *testing.T) {
	ctx := systemCtx()
	f := newFixture(t)
	tunnel := f.backend(t, core.KindAuthTunnel)
	proxy := f.backend(t, core.KindProxyAPI)
	tunnelAcc := f.account(t, tunnel)
	proxyAcc := f.account(t, proxy)

	require.NoError(t, f.radius.Close())

	report, err := f.controller.ChangeEndUserStatus(ctx, f.user.ID, core.StatusDisabled)
	require.NoError(t, err)
	assert.Equal(t, lifecycle.OutcomeFailed, outcomes(report)[tunnelAcc.ID])
	assert.Equal(t, lifecycle.OutcomeDeprovisioned, outcomes(report)[proxyAcc.ID])

	stored, err := f.repo.GetAccount(ctx, tunnelAcc.ID)
	require.NoError(t, err)
	assert.Equal(t, core.StatusDisabled, stored.Status)

	list := f.notifications(t)
	require.Len(t, list, 1)
	assert.Equal(t, core.SeverityCritical, list[0].Severity)
	assert.Equal(t, core.NotificationAutomationFailed, list[0].Type)
}

func TestEndUserSuspendedToDisabled_NoRemoteCalls(t *testing.T) {
	ctx := systemCtx()
	f := newFixture(t)
	relay := f.backend(t, core.KindRelay)
	acc := f.account(t, relay)

	_, err := f.controller.ChangeEndUserStatus(ctx, f.user.ID, core.StatusSuspended)
	require.NoError(t, err)
	before := len(f.notifications(t))

	report, err := f.controller.ChangeEndUserStatus(ctx, f.user.ID, core.StatusDisabled)
	require.NoError(t, err)
	require.Len(t, report.Accounts, 1)
	assert.Equal(t, lifecycle.OutcomeUnchanged, report.Accounts[0].Outcome)
	assert.Len(t, f.notifications(t), before)

	stored, err := f.repo.GetAccount(ctx, acc.ID)
	require.NoError(t, err)
	assert.Equal(t, core.StatusDisabled, stored.Status)

	// same status is a no-op
	report, err = f.controller.ChangeEndUserStatus(ctx, f.user.ID, core.StatusDisabled)
	require.NoError(t, err)
	assert.Empty(t, report.Accounts)
	assert.Zero(t, report.EndUsersUpdated)
}

func TestChangeStatus_Authorization(t *testing.T) {
	f := newFixture(t)
	tenantCtx := core.WithActor(context.Background(), core.Actor{Role: core.RoleTenant, ID: f.tenant.ID, TenantID: f.tenant.ID})

	_, err := f.controller.ChangeTenantStatus(tenantCtx, f.tenant.ID, core.StatusSuspended)
	assert.True(t, errors.Is(err, core.ErrForbidden))

	_, err = f.controller.ChangeEndUserStatus(tenantCtx, f.user.ID, core.StatusSuspended)
	assert.NoError(t, err)

	otherCtx := core.WithActor(context.Background(), core.Actor{Role: core.RoleTenant, ID: "other", TenantID: "other"})
	_, err = f.controller.ChangeEndUserStatus(otherCtx, f.user.ID, core.StatusActive)
	assert.True(t, errors.Is(err, core.ErrNotFound))

	_, err = f.controller.ChangeEndUserStatus(systemCtx(), f.user.ID, core.Status("paused"))
	assert.True(t, errors.Is(err, core.ErrInvalidInput))
}

func TestEndUserActivation_RefusedWhileTenantSuspended(t *testing.T) {
	ctx := systemCtx()
	f := newFixture(t)
	tunnel := f.backend(t, core.KindAuthTunnel)
	acc := f.account(t, tunnel)

	_, err := f.controller.ChangeTenantStatus(ctx, f.tenant.ID, core.StatusSuspended)
	require.NoError(t, err)

	tenantCtx := core.WithActor(context.Background(), core.Actor{Role: core.RoleTenant, ID: f.tenant.ID, TenantID: f.tenant.ID})
	_, err = f.controller.ChangeEndUserStatus(tenantCtx, f.user.ID, core.StatusActive)
	assert.True(t, errors.Is(err, core.ErrForbidden))
	_, err = f.controller.ChangeEndUserStatus(ctx, f.user.ID, core.StatusActive)
	assert.True(t, errors.Is(err, core.ErrForbidden))

	user, err := f.repo.GetEndUser(ctx, f.user.ID)
	require.NoError(t, err)
	assert.Equal(t, core.StatusSuspended, user.Status)
	stored, err := f.repo.GetAccount(ctx, acc.ID)
	require.NoError(t, err)
	assert.Equal(t, core.StatusSuspended, stored.Status)
	rejected, err := f.radius.IsRejected(ctx, acc.Username)
	require.NoError(t, err)
	assert.True(t, rejected)

	// Suspending again stays allowed.
	_, err = f.controller.ChangeEndUserStatus(tenantCtx, f.user.ID, core.StatusSuspended)
	assert.NoError(t, err)

	_, err = f.controller.ChangeTenantStatus(ctx, f.tenant.ID, core.StatusActive)
	require.NoError(t, err)
	_, err = f.controller.ChangeEndUserStatus(tenantCtx, f.user.ID, core.StatusActive)
	assert.NoError(t, err)
}

func TestDeleteEndUser_ReleasesAccountsFirst(t *testing.T) {
	ctx := systemCtx()
	f := newFixture(t)
	proxy := f.backend(t, core.KindProxyAPI)
	tunnel := f.backend(t, core.KindAuthTunnel)
	relay := f.backend(t, core.KindRelay)
	_, err := f.pool.BulkImport(ctx, core.KindRelay, uuid.New().String(), "")
	require.NoError(t, err)

	proxyAcc := f.account(t, proxy)
	tunnelAcc := f.account(t, tunnel)
	relayAcc := f.account(t, relay)

	report, err := f.controller.DeleteEndUser(ctx, f.user.ID)
	require.NoError(t, err)
	assert.Equal(t, lifecycle.OutcomeDeprovisioned, outcomes(report)[proxyAcc.ID])
	assert.Equal(t, lifecycle.OutcomeDeprovisioned, outcomes(report)[tunnelAcc.ID])
	assert.Equal(t, lifecycle.OutcomeEscalated, outcomes(report)[relayAcc.ID])

	_, err = f.repo.GetEndUser(ctx, f.user.ID)
	assert.True(t, errors.Is(err, core.ErrNotFound))

	exists, err := f.radius.UserExists(ctx, tunnelAcc.Username)
	require.NoError(t, err)
	assert.False(t, exists)
	assert.Zero(t, f.outline.Len())

	for _, b := range []*core.VpnBackend{proxy, tunnel, relay} {
		assert.Zero(t, f.usage(t, b.ID))
	}
	pc, err := f.repo.GetPoolCredential(ctx, *relayAcc.PoolCredentialID)
	require.NoError(t, err)
	assert.False(t, pc.IsAssigned)
}

func TestDeleteEndUser_KeptWhenAccountRemovalFails(t *testing.T) {
	ctx := systemCtx()
	f := newFixture(t)
	proxy := f.backend(t, core.KindProxyAPI)
	acc := f.account(t, proxy)

	f.outline.SetDeleteErr(errors.New("connection refused"))
	report, err := f.controller.DeleteEndUser(ctx, f.user.ID)
	require.Error(t, err)
	assert.True(t, errors.Is(err, core.ErrBackendUnavailable))
	assert.Equal(t, 1, report.Count(lifecycle.OutcomeFailed))

	_, err = f.repo.GetEndUser(ctx, f.user.ID)
	require.NoError(t, err)
	pending, err := f.repo.ListPendingDeletions(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, acc.ID, pending[0].ID)

	f.outline.SetDeleteErr(nil)
	report, err = f.controller.ResumePendingDeletions(ctx)
	require.NoError(t, err)
	require.Len(t, report.Accounts, 1)
	assert.Equal(t, lifecycle.OutcomeDeprovisioned, report.Accounts[0].Outcome)
	assert.Zero(t, f.usage(t, proxy.ID))

	_, err = f.controller.DeleteEndUser(ctx, f.user.ID)
	require.NoError(t, err)
}

func TestDeleteTenant(t *testing.T) {
	ctx := systemCtx()
	f := newFixture(t)
	proxy := f.backend(t, core.KindProxyAPI)
	f.account(t, proxy)

	report, err := f.controller.DeleteTenant(ctx, f.tenant.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, report.EndUsersUpdated)

	_, err = f.repo.GetTenant(ctx, f.tenant.ID)
	assert.True(t, errors.Is(err, core.ErrNotFound))
	assert.Zero(t, f.usage(t, proxy.ID))
}
