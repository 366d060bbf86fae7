package core

import "time"

type Status string

const (
	StatusActive    Status = "active"
	StatusSuspended Status = "suspended"
	StatusDisabled  Status = "disabled"
)

func (s Status) Valid() bool {
	switch s {
	case StatusActive, StatusSuspended, StatusDisabled:
		return true
	}
	return false
}

type Tenant struct {
	ID           string `json:"id" db:"id"`
	Name         string `json:"name" db:"name"`
	Email        string `json:"email" db:"email"`
	PasswordHash string `json:"-" db:"password_hash"`
	Status       Status `json:"status" db:"status"`

	// Limits, nil means unlimited
	MaxEndUsers        *int `json:"max_end_users" db:"max_end_users"`
	MaxAccountsPerUser *int `json:"max_accounts_per_user" db:"max_accounts_per_user"`
	MaxTotalAccounts   *int `json:"max_total_accounts" db:"max_total_accounts"`

	ExpiresAt *time.Time `json:"expires_at" db:"expires_at"`
	CreatedAt time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt time.Time  `json:"updated_at" db:"updated_at"`
}

// IsExpired reports whether the tenant subscription has lapsed at now.
func (t *Tenant) IsExpired(now time.Time) bool {
	return t.ExpiresAt != nil && t.ExpiresAt.Before(now)
}

type EndUser struct {
	ID           string `json:"id" db:"id"`
	TenantID     string `json:"tenant_id" db:"tenant_id"`
	Name         string `json:"name" db:"name"`
	Username     string `json:"username" db:"username"`
	PasswordHash string `json:"-" db:"password_hash"`
	Status       Status `json:"status" db:"status"`

	// MaxAccounts overrides the tenant's per-user default when set.
	MaxAccounts *int `json:"max_accounts" db:"max_accounts"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// EffectiveAccountCap resolves the account cap for an end user owned by tenant.
// A nil result means unlimited.
func (u *EndUser) EffectiveAccountCap(tenant *Tenant) *int {
	if u.MaxAccounts != nil {
		return u.MaxAccounts
	}
	if tenant != nil {
		return tenant.MaxAccountsPerUser
	}
	return nil
}
