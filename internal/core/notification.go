package core

import "time"

type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// Notification types raised by the engine.
const (
	NotificationManualDeactivation = "manual_deactivation"
	NotificationManualReactivation = "manual_reactivation"
	NotificationManualDeletion     = "manual_deletion"
	NotificationAutomationFailed   = "automation_failed"
)

type Notification struct {
	ID             string     `json:"id" db:"id"`
	Type           string     `json:"type" db:"type"`
	Severity       Severity   `json:"severity" db:"severity"`
	Title          string     `json:"title" db:"title"`
	Message        string     `json:"message" db:"message"`
	TenantID       *string    `json:"tenant_id" db:"tenant_id"`
	EndUserID      *string    `json:"end_user_id" db:"end_user_id"`
	AccountID      *string    `json:"account_id" db:"account_id"`
	ActionRequired *string    `json:"action_required" db:"action_required"`
	IsRead         bool       `json:"is_read" db:"is_read"`
	ReadAt         *time.Time `json:"read_at" db:"read_at"`
	CreatedAt      time.Time  `json:"created_at" db:"created_at"`
}

type NotificationFilters struct {
	TenantID   string
	UnreadOnly bool
	Limit      int
	Offset     int
}
