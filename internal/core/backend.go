package core

import "time"

// BackendKind is the closed set of provisioning targets.
type BackendKind string

const (
	KindProxyAPI   BackendKind = "proxy-api"
	KindAuthTunnel BackendKind = "auth-tunnel"
	KindRelay      BackendKind = "relay"
)

// Kinds lists every backend kind in a stable order.
var Kinds = []BackendKind{KindProxyAPI, KindAuthTunnel, KindRelay}

func (k BackendKind) Valid() bool {
	switch k {
	case KindProxyAPI, KindAuthTunnel, KindRelay:
		return true
	}
	return false
}

// Pooled reports whether credentials of this kind can be bulk imported into the pool.
func (k BackendKind) Pooled() bool {
	return k == KindAuthTunnel || k == KindRelay
}

type BackendStatus string

const (
	BackendActive      BackendStatus = "active"
	BackendMaintenance BackendStatus = "maintenance"
	BackendDisabled    BackendStatus = "disabled"
)

type VpnBackend struct {
	ID       string        `json:"id" db:"id"`
	Name     string        `json:"name" db:"name"`
	Kind     BackendKind   `json:"kind" db:"kind"`
	Host     string        `json:"host" db:"host"`
	Port     int           `json:"port" db:"port"`
	Location string        `json:"location" db:"location"`
	Status   BackendStatus `json:"status" db:"status"`

	// Remote management endpoint; empty when the backend is not automated.
	APIURL        string `json:"api_url,omitempty" db:"api_url"`
	APICertSHA256 string `json:"-" db:"api_cert_sha256"`

	MaxAccounts     int `json:"max_accounts" db:"max_accounts"`
	CurrentAccounts int `json:"current_accounts" db:"current_accounts"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

func (b *VpnBackend) HasCapacity() bool {
	return b.CurrentAccounts < b.MaxAccounts
}

func (b *VpnBackend) HasAPI() bool {
	return b.APIURL != ""
}
