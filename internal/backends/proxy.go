package backends

import (
	"context"
	"encoding/base64"
	"errors"
	"net/url"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/zawnaing-2024/vmaster/internal/core"
	"github.com/zawnaing-2024/vmaster/internal/metrics"
	"github.com/zawnaing-2024/vmaster/pkg/outline"
)

const localCipher = "chacha20-ietf-poly1305"

// OutlineAPI is the subset of the management client the proxy adapter uses.
type OutlineAPI interface {
	GetServer(ctx context.Context) (*outline.ServerInfo, error)
	CreateAccessKey(ctx context.Context, name string) (*outline.AccessKey, error)
	DeleteAccessKey(ctx context.Context, id string) error
	RenameAccessKey(ctx context.Context, id, name string) error
}

// OutlineFactory builds a client for one backend's management endpoint.
type OutlineFactory func(b *core.VpnBackend) OutlineAPI

// ProxyAdapter manages proxy-api backends through their management API.
// Suspension is not a toggle on these backends; the cascade deprovisions
// instead.
type ProxyAdapter struct {
	clients OutlineFactory
	metrics *metrics.Collector
	logger  *zap.Logger
}

func NewProxyAdapter(timeout time.Duration, m *metrics.Collector, logger *zap.Logger) *ProxyAdapter {
	factory := func(b *core.VpnBackend) OutlineAPI {
		return outline.NewClient(b.APIURL, b.APICertSHA256, timeout, logger)
	}
	return NewProxyAdapterWithFactory(factory, m, logger)
}

func NewProxyAdapterWithFactory(factory OutlineFactory, m *metrics.Collector, logger *zap.Logger) *ProxyAdapter {
	return &ProxyAdapter{clients: factory, metrics: m, logger: logger}
}

func (a *ProxyAdapter) Kind() core.BackendKind { return core.KindProxyAPI }

// Provision creates an access key on the backend. Without a configured
// management API it issues a local, unmanaged access URL instead; a
// configured API that fails aborts the provisioning.
func (a *ProxyAdapter) Provision(ctx context.Context, b *core.VpnBackend, hint Hint) (core.Credential, error) {
	if !b.HasAPI() {
		a.logger.Warn("Proxy backend has no management API, issuing local credential",
			zap.String("backend_id", b.ID),
			zap.String("account_id", hint.AccountID),
		)
		return localAccessKey(b, hint.Name), nil
	}

	start := time.Now()
	key, err := a.clients(b).CreateAccessKey(ctx, hint.Name)
	a.metrics.ObserveRemoteCall(a.Kind(), "create", start, err)
	if err != nil {
		a.logger.Error("Failed to create access key",
			zap.String("backend_id", b.ID),
			zap.String("account_id", hint.AccountID),
			zap.String("api_url", b.APIURL),
			zap.String("operation", "POST /access-keys"),
			zap.Error(err),
		)
		return core.Credential{}, core.Unavailable(b.ID, a.Kind(), "create access key", err)
	}

	if hint.Name != "" && key.Name != hint.Name {
		a.label(ctx, b, key.ID, hint)
	}

	return core.Credential{
		ProviderKeyID: key.ID,
		AccessURL:     key.AccessURL,
		Managed:       true,
	}, nil
}

// label names a key the server created without the requested name. The key
// is usable either way, so failure only logs.
func (a *ProxyAdapter) label(ctx context.Context, b *core.VpnBackend, keyID string, hint Hint) {
	start := time.Now()
	err := a.clients(b).RenameAccessKey(ctx, keyID, hint.Name)
	a.metrics.ObserveRemoteCall(a.Kind(), "rename", start, err)
	if err != nil {
		a.logger.Warn("Failed to name access key",
			zap.String("backend_id", b.ID),
			zap.String("account_id", hint.AccountID),
			zap.String("key_id", keyID),
			zap.String("operation", "PUT /access-keys/"+keyID+"/name"),
			zap.Error(err),
		)
	}
}

// Deprovision deletes the access key. A key the server no longer knows
// counts as deleted, so the call can be repeated after a partial failure.
func (a *ProxyAdapter) Deprovision(ctx context.Context, b *core.VpnBackend, cred core.Credential) error {
	if !cred.Managed || cred.ProviderKeyID == "" {
		return nil
	}
	if !b.HasAPI() {
		return core.Unavailable(b.ID, a.Kind(), "delete access key", errors.New("management API is no longer configured"))
	}

	start := time.Now()
	err := a.clients(b).DeleteAccessKey(ctx, cred.ProviderKeyID)
	if errors.Is(err, outline.ErrKeyNotFound) {
		a.logger.Info("Access key already absent on backend",
			zap.String("backend_id", b.ID),
			zap.String("key_id", cred.ProviderKeyID),
		)
		err = nil
	}
	a.metrics.ObserveRemoteCall(a.Kind(), "delete", start, err)
	if err != nil {
		a.logger.Error("Failed to delete access key",
			zap.String("backend_id", b.ID),
			zap.String("api_url", b.APIURL),
			zap.String("operation", "DELETE /access-keys/"+cred.ProviderKeyID),
			zap.Error(err),
		)
		return core.Unavailable(b.ID, a.Kind(), "delete access key "+cred.ProviderKeyID, err)
	}
	return nil
}

func (a *ProxyAdapter) Suspend(context.Context, *core.VpnBackend, core.Credential) error {
	return unsupported(a.Kind(), "suspend")
}

func (a *ProxyAdapter) Reactivate(context.Context, *core.VpnBackend, core.Credential) error {
	return unsupported(a.Kind(), "reactivate")
}

func (a *ProxyAdapter) TestConnection(ctx context.Context, b *core.VpnBackend) error {
	if !b.HasAPI() {
		return unsupported(a.Kind(), "connection test without a management API")
	}

	start := time.Now()
	_, err := a.clients(b).GetServer(ctx)
	a.metrics.ObserveRemoteCall(a.Kind(), "test", start, err)
	if err != nil {
		return core.Unavailable(b.ID, a.Kind(), "get server", err)
	}
	return nil
}

// localAccessKey builds a shadowsocks access URL that no management API
// knows about.
func localAccessKey(b *core.VpnBackend, name string) core.Credential {
	userInfo := base64.RawURLEncoding.EncodeToString([]byte(localCipher + ":" + randomHex(12)))
	u := url.URL{
		Scheme:   "ss",
		User:     url.User(userInfo),
		Host:     b.Host + ":" + strconv.Itoa(b.Port),
		Path:     "/",
		RawQuery: "outline=1",
		Fragment: name,
	}
	return core.Credential{
		AccessURL: u.String(),
		Managed:   false,
	}
}

var _ Adapter = (*ProxyAdapter)(nil)
