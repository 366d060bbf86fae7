// Package backends holds the per-kind adapters that issue, suspend and
// remove credentials on VPN backends.
package backends

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"

	"github.com/zawnaing-2024/vmaster/internal/core"
)

// Hint carries what an adapter may use to name a new credential. AccountID
// is the id the account row will be inserted with.
type Hint struct {
	AccountID string
	Name      string
}

// Adapter is the capability set every backend kind exposes. A capability
// the kind does not have returns an error wrapping core.ErrUnsupported;
// remote failures return an error wrapping core.ErrBackendUnavailable.
type Adapter interface {
	Kind() core.BackendKind
	Provision(ctx context.Context, b *core.VpnBackend, hint Hint) (core.Credential, error)
	Deprovision(ctx context.Context, b *core.VpnBackend, cred core.Credential) error
	Suspend(ctx context.Context, b *core.VpnBackend, cred core.Credential) error
	Reactivate(ctx context.Context, b *core.VpnBackend, cred core.Credential) error
	TestConnection(ctx context.Context, b *core.VpnBackend) error
}

// PoolClaimer is the part of the credential pool adapters draw from.
type PoolClaimer interface {
	Claim(ctx context.Context, kind core.BackendKind, accountID string) (*core.PoolCredential, error)
}

func unsupported(kind core.BackendKind, op string) error {
	return fmt.Errorf("%s on %s backends: %w", op, kind, core.ErrUnsupported)
}

func randomHex(n int) string {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		panic(fmt.Sprintf("crypto/rand failed: %v", err))
	}
	return hex.EncodeToString(b)
}
