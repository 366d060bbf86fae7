package core

import "time"

// Credential is the backend-issued part of an account. Which fields are set
// depends on the backend kind.
type Credential struct {
	// proxy-api
	ProviderKeyID string `json:"provider_key_id,omitempty" db:"provider_key_id"`
	AccessURL     string `json:"access_url,omitempty" db:"access_url"`

	// auth-tunnel, and relay pool entries imported as username:password
	Username string `json:"username,omitempty" db:"username"`
	Password string `json:"password,omitempty" db:"password"`

	// relay
	UUID       string `json:"uuid,omitempty" db:"uuid"`
	ConfigBlob string `json:"config_blob,omitempty" db:"config_blob"`

	PoolCredentialID *string `json:"pool_credential_id,omitempty" db:"pool_credential_id"`

	// Managed is false for locally generated credentials that no live
	// backend or pool entry knows about.
	Managed bool `json:"managed" db:"managed"`
}

// Identity returns the human readable identity of the credential, used in
// logs and operator notifications.
func (c *Credential) Identity() string {
	switch {
	case c.Username != "":
		return c.Username
	case c.UUID != "":
		return c.UUID
	case c.ProviderKeyID != "":
		return "key:" + c.ProviderKeyID
	case c.PoolCredentialID != nil:
		return "pool:" + *c.PoolCredentialID
	}
	return "unknown"
}

type ExpirationStatus string

const (
	ExpirationUnlimited ExpirationStatus = "unlimited"
	ExpirationExpired   ExpirationStatus = "expired"
	ExpirationActive    ExpirationStatus = "active"
)

type VpnAccount struct {
	ID          string      `json:"id" db:"id"`
	TenantID    string      `json:"tenant_id" db:"tenant_id"`
	EndUserID   string      `json:"end_user_id" db:"end_user_id"`
	BackendID   string      `json:"backend_id" db:"backend_id"`
	BackendKind BackendKind `json:"backend_kind" db:"backend_kind"`

	Credential

	PlanMonths *int       `json:"plan_months" db:"plan_months"`
	ExpiresAt  *time.Time `json:"expires_at" db:"expires_at"`
	Status     Status     `json:"status" db:"status"`

	// PendingDeletion marks an account whose remote credential is being
	// removed; the row goes away once the local cleanup commits.
	PendingDeletion bool `json:"-" db:"pending_deletion"`

	LastUsedAt *time.Time `json:"last_used_at" db:"last_used_at"`
	CreatedAt  time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at" db:"updated_at"`
}

// ExpirationStatus is derived on every read and never stored.
func (a *VpnAccount) ExpirationStatus(now time.Time) ExpirationStatus {
	if a.ExpiresAt == nil {
		return ExpirationUnlimited
	}
	if a.ExpiresAt.Before(now) {
		return ExpirationExpired
	}
	return ExpirationActive
}

type PoolCredential struct {
	ID         string      `json:"id" db:"id"`
	Kind       BackendKind `json:"kind" db:"kind"`
	Username   string      `json:"username,omitempty" db:"username"`
	Password   string      `json:"-" db:"password"`
	UUID       string      `json:"uuid,omitempty" db:"uuid"`
	ConfigBlob string      `json:"config_blob,omitempty" db:"config_blob"`
	Notes      string      `json:"notes" db:"notes"`

	// LineNo keeps import order stable for credentials sharing a timestamp.
	LineNo int `json:"-" db:"line_no"`

	IsAssigned        bool       `json:"is_assigned" db:"is_assigned"`
	AssignedAccountID *string    `json:"assigned_account_id" db:"assigned_account_id"`
	AssignedAt        *time.Time `json:"assigned_at" db:"assigned_at"`
	CreatedAt         time.Time  `json:"created_at" db:"created_at"`
}

// AsCredential converts a claimed pool entry into an account credential.
func (p *PoolCredential) AsCredential() Credential {
	id := p.ID
	return Credential{
		Username:         p.Username,
		Password:         p.Password,
		UUID:             p.UUID,
		ConfigBlob:       p.ConfigBlob,
		PoolCredentialID: &id,
		Managed:          true,
	}
}

type PoolStats struct {
	Kind      BackendKind `json:"kind" db:"kind"`
	Total     int         `json:"total" db:"total"`
	Assigned  int         `json:"assigned" db:"assigned"`
	Available int         `json:"available" db:"available"`
}
