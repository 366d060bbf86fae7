package scheduler_test

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/zawnaing-2024/vmaster/internal/backends"
	"github.com/zawnaing-2024/vmaster/internal/backends/backendstest"
	"github.com/zawnaing-2024/vmaster/internal/config"
	"github.com/zawnaing-2024/vmaster/internal/core"
	"github.com/zawnaing-2024/vmaster/internal/db/dbtest"
	"github.com/zawnaing-2024/vmaster/internal/expiry"
	"github.com/zawnaing-2024/vmaster/internal/lifecycle"
	"github.com/zawnaing-2024/vmaster/internal/metrics"
	"github.com/zawnaing-2024/vmaster/internal/notify"
	"github.com/zawnaing-2024/vmaster/internal/pool"
	"github.com/zawnaing-2024/vmaster/internal/provisioning"
	"github.com/zawnaing-2024/vmaster/internal/scheduler"
)

func backendUp(t *testing.T, families []*dto.MetricFamily, backendID string) (float64, bool) {
	t.Helper()
	for _, mf := range families {
		if mf.GetName() != "vmaster_backend_up" {
			continue
		}
		for _, m := range mf.GetMetric() {
			for _, lp := range m.GetLabel() {
				if lp.GetName() == "backend_id" && lp.GetValue() == backendID {
					return m.GetGauge().GetValue(), true
				}
			}
		}
	}
	return 0, false
}

func TestRunOnce_ChecksAndResumes(t *testing.T) {
	ctx := core.WithActor(context.Background(), core.SystemActor("test"))
	logger := zap.NewNop()

	reg := prometheus.NewRegistry()
	m := metrics.NewCollector(reg)
	repo := dbtest.Repository(t)
	poolStore := pool.NewStore(repo, logger)
	api := backendstest.NewOutline()

	registry := backends.NewRegistry(time.Hour,
		backends.NewProxyAdapterWithFactory(func(*core.VpnBackend) backends.OutlineAPI { return api }, m, logger),
		backends.NewRelayAdapter(poolStore, time.Second, m, logger),
	)
	notifier := notify.NewService(repo, m, logger)
	engine := provisioning.NewEngine(repo, registry, notifier, expiry.NewCalculator(time.UTC), m, logger)
	controller := lifecycle.NewController(repo, engine, registry, notifier, m, logger)

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer listener.Close()
	upAddr := listener.Addr().(*net.TCPAddr)

	closed, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	downAddr := closed.Addr().(*net.TCPAddr)
	require.NoError(t, closed.Close())

	mk := func(kind core.BackendKind, port int, status core.BackendStatus) *core.VpnBackend {
		b := &core.VpnBackend{ID: uuid.New().String(), Name: "node", Kind: kind, Host: "127.0.0.1", Port: port, Status: status, MaxAccounts: 5}
		if kind == core.KindProxyAPI {
			b.APIURL = "https://127.0.0.1:1/api"
		}
		require.NoError(t, repo.CreateBackend(ctx, b))
		return b
	}
	up := mk(core.KindRelay, upAddr.Port, core.BackendActive)
	down := mk(core.KindRelay, downAddr.Port, core.BackendActive)
	proxy := mk(core.KindProxyAPI, 443, core.BackendActive)
	maintenance := mk(core.KindRelay, upAddr.Port, core.BackendMaintenance)

	// An account whose removal was interrupted by a backend failure
	tenant := &core.Tenant{ID: uuid.New().String(), Name: "Acme", Email: "ops@acme.test", PasswordHash: "x"}
	require.NoError(t, repo.CreateTenant(ctx, tenant))
	user := &core.EndUser{ID: uuid.New().String(), TenantID: tenant.ID, Name: "Bob", Username: "bob", PasswordHash: "x"}
	require.NoError(t, repo.CreateEndUser(ctx, user))

	acc, err := engine.CreateAccount(ctx, provisioning.Request{TenantID: tenant.ID, EndUserID: user.ID, BackendID: proxy.ID})
	require.NoError(t, err)
	api.SetDeleteErr(errors.New("timeout"))
	_, err = engine.DeleteAccount(ctx, acc.ID)
	require.Error(t, err)
	api.SetDeleteErr(nil)

	s := scheduler.NewScheduler(repo, registry, controller, m, logger, config.SchedulerConfig{WorkerCount: 2})
	s.RunOnce(ctx)

	pending, err := repo.ListPendingDeletions(ctx)
	require.NoError(t, err)
	assert.Empty(t, pending)
	b, err := repo.GetBackend(ctx, proxy.ID)
	require.NoError(t, err)
	assert.Zero(t, b.CurrentAccounts)
	assert.Zero(t, api.Len())

	families, err := reg.Gather()
	require.NoError(t, err)

	v, ok := backendUp(t, families, up.ID)
	require.True(t, ok)
	assert.Equal(t, 1.0, v)

	v, ok = backendUp(t, families, down.ID)
	require.True(t, ok)
	assert.Equal(t, 0.0, v)

	v, ok = backendUp(t, families, proxy.ID)
	require.True(t, ok)
	assert.Equal(t, 1.0, v)

	_, ok = backendUp(t, families, maintenance.ID)
	assert.False(t, ok, "backends out of service are not checked")
}

func TestStart_StopsOnCancel(t *testing.T) {
	logger := zap.NewNop()
	repo := dbtest.Repository(t)
	registry := backends.NewRegistry(time.Minute)
	notifier := notify.NewService(repo, nil, logger)
	engine := provisioning.NewEngine(repo, registry, notifier, expiry.NewCalculator(time.UTC), nil, logger)
	controller := lifecycle.NewController(repo, engine, registry, notifier, nil, logger)

	s := scheduler.NewScheduler(repo, registry, controller, nil, logger, config.SchedulerConfig{Interval: 10 * time.Millisecond})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Start(ctx)
		close(done)
	}()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("scheduler did not stop")
	}
}
