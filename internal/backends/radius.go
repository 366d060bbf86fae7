package backends

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/zawnaing-2024/vmaster/internal/core"
	"github.com/zawnaing-2024/vmaster/internal/metrics"
	"github.com/zawnaing-2024/vmaster/pkg/radius"
)

// AuthStore is the subset of the RADIUS store the auth-tunnel adapter uses.
type AuthStore interface {
	Ping(ctx context.Context) error
	CreateUser(ctx context.Context, username, password string) error
	AddReject(ctx context.Context, username string) error
	RemoveReject(ctx context.Context, username string) error
	DeleteUser(ctx context.Context, username string) (int64, error)
}

// RadiusAdapter manages auth-tunnel backends. With an auth store configured
// it owns user rows there; without one it hands out pooled credentials that
// operators maintain on the tunnel server by hand.
type RadiusAdapter struct {
	store   AuthStore
	pool    PoolClaimer
	metrics *metrics.Collector
	logger  *zap.Logger
}

// NewRadiusAdapter builds the adapter. store may be nil when no auth store
// is configured.
func NewRadiusAdapter(store AuthStore, pool PoolClaimer, m *metrics.Collector, logger *zap.Logger) *RadiusAdapter {
	return &RadiusAdapter{store: store, pool: pool, metrics: m, logger: logger}
}

func (a *RadiusAdapter) Kind() core.BackendKind { return core.KindAuthTunnel }

func (a *RadiusAdapter) Configured() bool { return a.store != nil }

// ready verifies the store is reachable before any other call is made.
func (a *RadiusAdapter) ready(ctx context.Context, b *core.VpnBackend, op string) error {
	start := time.Now()
	err := a.store.Ping(ctx)
	a.metrics.ObserveRemoteCall(a.Kind(), "ping", start, err)
	if err != nil {
		a.logger.Error("Auth store unreachable",
			zap.String("backend_id", b.ID),
			zap.String("operation", op),
			zap.Error(err),
		)
		return core.Unavailable(b.ID, a.Kind(), op, err)
	}
	return nil
}

func (a *RadiusAdapter) Provision(ctx context.Context, b *core.VpnBackend, hint Hint) (core.Credential, error) {
	if !a.Configured() {
		return claimOrGenerate(ctx, a.pool, a.Kind(), hint, a.metrics, a.logger, func() core.Credential {
			return core.Credential{Username: "vpn_" + randomHex(4), Password: randomHex(8)}
		})
	}

	if err := a.ready(ctx, b, "create user"); err != nil {
		return core.Credential{}, err
	}

	cred := core.Credential{
		Username: "vpn_" + randomHex(4),
		Password: randomHex(8),
		Managed:  true,
	}

	start := time.Now()
	err := a.store.CreateUser(ctx, cred.Username, cred.Password)
	a.metrics.ObserveRemoteCall(a.Kind(), "create", start, err)
	switch {
	case errors.Is(err, radius.ErrUserExists):
		return core.Credential{}, fmt.Errorf("auth-tunnel username %s: %w", cred.Username, core.ErrConflict)
	case err != nil:
		a.logger.Error("Failed to create auth store user",
			zap.String("backend_id", b.ID),
			zap.String("account_id", hint.AccountID),
			zap.String("username", cred.Username),
			zap.Error(err),
		)
		return core.Credential{}, core.Unavailable(b.ID, a.Kind(), "create user "+cred.Username, err)
	}
	return cred, nil
}

func (a *RadiusAdapter) Deprovision(ctx context.Context, b *core.VpnBackend, cred core.Credential) error {
	return a.apply(ctx, b, cred, "delete user", func(ctx context.Context, username string) error {
		_, err := a.store.DeleteUser(ctx, username)
		return err
	})
}

// Suspend adds a reject rule and keeps the password row.
func (a *RadiusAdapter) Suspend(ctx context.Context, b *core.VpnBackend, cred core.Credential) error {
	return a.apply(ctx, b, cred, "add reject rule", func(ctx context.Context, username string) error {
		return a.store.AddReject(ctx, username)
	})
}

func (a *RadiusAdapter) Reactivate(ctx context.Context, b *core.VpnBackend, cred core.Credential) error {
	return a.apply(ctx, b, cred, "remove reject rule", func(ctx context.Context, username string) error {
		return a.store.RemoveReject(ctx, username)
	})
}

func (a *RadiusAdapter) apply(ctx context.Context, b *core.VpnBackend, cred core.Credential, op string, fn func(context.Context, string) error) error {
	if !a.Configured() {
		return unsupported(a.Kind(), op+" without an auth store")
	}
	if cred.Username == "" {
		return fmt.Errorf("auth-tunnel credential has no username: %w", core.ErrInvalidInput)
	}
	if err := a.ready(ctx, b, op); err != nil {
		return err
	}

	start := time.Now()
	err := fn(ctx, cred.Username)
	a.metrics.ObserveRemoteCall(a.Kind(), op, start, err)
	if err != nil {
		a.logger.Error("Auth store operation failed",
			zap.String("backend_id", b.ID),
			zap.String("username", cred.Username),
			zap.String("operation", op),
			zap.Error(err),
		)
		return core.Unavailable(b.ID, a.Kind(), op+" "+cred.Username, err)
	}
	return nil
}

func (a *RadiusAdapter) TestConnection(ctx context.Context, b *core.VpnBackend) error {
	if !a.Configured() {
		return unsupported(a.Kind(), "connection test without an auth store")
	}
	return a.ready(ctx, b, "ping")
}

var _ Adapter = (*RadiusAdapter)(nil)
