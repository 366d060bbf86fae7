package backends

import (
	"context"
	"errors"
	"net"
	"strconv"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/zawnaing-2024/vmaster/internal/core"
	"github.com/zawnaing-2024/vmaster/internal/metrics"
)

// RelayAdapter serves relay backends, which have no management API.
// Credentials come from the pool; everything past provisioning is manual.
type RelayAdapter struct {
	pool        PoolClaimer
	dialTimeout time.Duration
	metrics     *metrics.Collector
	logger      *zap.Logger
}

func NewRelayAdapter(pool PoolClaimer, dialTimeout time.Duration, m *metrics.Collector, logger *zap.Logger) *RelayAdapter {
	return &RelayAdapter{pool: pool, dialTimeout: dialTimeout, metrics: m, logger: logger}
}

func (a *RelayAdapter) Kind() core.BackendKind { return core.KindRelay }

func (a *RelayAdapter) Provision(ctx context.Context, _ *core.VpnBackend, hint Hint) (core.Credential, error) {
	return claimOrGenerate(ctx, a.pool, a.Kind(), hint, a.metrics, a.logger, func() core.Credential {
		return core.Credential{UUID: uuid.NewString()}
	})
}

func (a *RelayAdapter) Deprovision(context.Context, *core.VpnBackend, core.Credential) error {
	return unsupported(a.Kind(), "deprovision")
}

func (a *RelayAdapter) Suspend(context.Context, *core.VpnBackend, core.Credential) error {
	return unsupported(a.Kind(), "suspend")
}

func (a *RelayAdapter) Reactivate(context.Context, *core.VpnBackend, core.Credential) error {
	return unsupported(a.Kind(), "reactivate")
}

// TestConnection only checks that the relay port accepts TCP connections.
func (a *RelayAdapter) TestConnection(ctx context.Context, b *core.VpnBackend) error {
	dialer := net.Dialer{Timeout: a.dialTimeout}
	start := time.Now()
	conn, err := dialer.DialContext(ctx, "tcp", net.JoinHostPort(b.Host, strconv.Itoa(b.Port)))
	a.metrics.ObserveRemoteCall(a.Kind(), "test", start, err)
	if err != nil {
		return core.Unavailable(b.ID, a.Kind(), "dial", err)
	}
	return conn.Close()
}

// claimOrGenerate takes the oldest free pool credential of kind, or builds
// an unmanaged one with generate when the pool is empty.
func claimOrGenerate(ctx context.Context, pool PoolClaimer, kind core.BackendKind, hint Hint,
	m *metrics.Collector, logger *zap.Logger, generate func() core.Credential) (core.Credential, error) {

	if pool != nil {
		pc, err := pool.Claim(ctx, kind, hint.AccountID)
		m.RecordPoolClaim(kind, err)
		switch {
		case err == nil:
			return pc.AsCredential(), nil
		case !errors.Is(err, core.ErrNotFound):
			return core.Credential{}, err
		}
	}

	logger.Warn("Credential pool exhausted, issuing unmanaged credential",
		zap.String("kind", string(kind)),
		zap.String("account_id", hint.AccountID),
	)
	cred := generate()
	cred.Managed = false
	cred.PoolCredentialID = nil
	return cred, nil
}

var _ Adapter = (*RelayAdapter)(nil)
