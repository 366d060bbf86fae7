// Package notify records actions the engine could not complete on its own
// so an operator can finish them.
package notify

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/zawnaing-2024/vmaster/internal/core"
	"github.com/zawnaing-2024/vmaster/internal/db"
	"github.com/zawnaing-2024/vmaster/internal/metrics"
)

type Service struct {
	repo    *db.Repository
	metrics *metrics.Collector
	logger  *zap.Logger
}

func NewService(repo *db.Repository, m *metrics.Collector, logger *zap.Logger) *Service {
	return &Service{repo: repo, metrics: m, logger: logger}
}

// Raise persists n. Notifications never change account state.
func (s *Service) Raise(ctx context.Context, n *core.Notification) error {
	if err := s.repo.CreateNotification(ctx, n); err != nil {
		s.logger.Error("Failed to persist notification",
			zap.String("type", n.Type),
			zap.String("title", n.Title),
			zap.Error(err),
		)
		return err
	}

	s.metrics.RecordNotification(n)
	s.logger.Info("Notification raised",
		zap.String("notification_id", n.ID),
		zap.String("type", n.Type),
		zap.String("severity", string(n.Severity)),
	)
	return nil
}

func (s *Service) List(ctx context.Context, f core.NotificationFilters) ([]*core.Notification, error) {
	if f.Limit <= 0 || f.Limit > 200 {
		f.Limit = 50
	}
	return s.repo.ListNotifications(ctx, f)
}

func (s *Service) Get(ctx context.Context, id string) (*core.Notification, error) {
	return s.repo.GetNotification(ctx, id)
}

func (s *Service) UnreadCount(ctx context.Context, tenantID string) (int, error) {
	return s.repo.CountUnreadNotifications(ctx, tenantID)
}

func (s *Service) MarkRead(ctx context.Context, id string) error {
	return s.repo.MarkNotificationRead(ctx, id)
}

func (s *Service) MarkAllRead(ctx context.Context, tenantID string) (int64, error) {
	return s.repo.MarkAllNotificationsRead(ctx, tenantID)
}

// Subject is what a notification is about.
type Subject struct {
	Backend *core.VpnBackend
	Account *core.VpnAccount
	EndUser *core.EndUser
}

func (s Subject) build(typ string, sev core.Severity, title, message, action string) *core.Notification {
	n := &core.Notification{
		Type:     typ,
		Severity: sev,
		Title:    title,
		Message:  message,
	}
	if action != "" {
		n.ActionRequired = &action
	}
	if s.Account != nil {
		n.TenantID = strPtr(s.Account.TenantID)
		n.EndUserID = strPtr(s.Account.EndUserID)
		n.AccountID = strPtr(s.Account.ID)
	}
	if s.EndUser != nil {
		n.TenantID = strPtr(s.EndUser.TenantID)
		n.EndUserID = strPtr(s.EndUser.ID)
	}
	return n
}

func (s Subject) owner() string {
	if s.EndUser != nil {
		return fmt.Sprintf("%s (%s)", s.EndUser.Name, s.EndUser.Username)
	}
	if s.Account != nil {
		return "end user " + s.Account.EndUserID
	}
	return "unknown owner"
}

func (s Subject) backendName() string {
	if s.Backend == nil {
		return "unknown backend"
	}
	return fmt.Sprintf("%s (%s, %s:%d)", s.Backend.Name, s.Backend.Kind, s.Backend.Host, s.Backend.Port)
}

func (s Subject) identity() string {
	if s.Account == nil {
		return "unknown"
	}
	return s.Account.Credential.Identity()
}

// ManualDeactivation asks an operator to block a credential on a backend
// the engine cannot reach.
func ManualDeactivation(s Subject, status core.Status) *core.Notification {
	verb := "Suspend"
	if status == core.StatusDisabled {
		verb = "Disable"
	}
	return s.build(core.NotificationManualDeactivation, core.SeverityWarning,
		fmt.Sprintf("Manual %s required on %s", strings.ToLower(verb), s.backendName()),
		fmt.Sprintf("Account %s of %s was set to %s, but %s cannot be deactivated automatically.",
			s.identity(), s.owner(), status, s.backendName()),
		steps(
			fmt.Sprintf("Log in to %s.", s.backendName()),
			fmt.Sprintf("%s the credential %s.", verb, s.identity()),
			"Mark this notification as read.",
		),
	)
}

// ManualReactivation asks an operator to restore a credential that was
// blocked by hand.
func ManualReactivation(s Subject) *core.Notification {
	return s.build(core.NotificationManualReactivation, core.SeverityInfo,
		fmt.Sprintf("Manual reactivation on %s", s.backendName()),
		fmt.Sprintf("Account %s of %s is active again. If it was blocked by hand, restore it.",
			s.identity(), s.owner()),
		steps(
			fmt.Sprintf("Log in to %s.", s.backendName()),
			fmt.Sprintf("Re-enable the credential %s if it was blocked.", s.identity()),
		),
	)
}

// ManualDeletion asks an operator to remove a credential from a backend
// after its account row was deleted.
func ManualDeletion(s Subject) *core.Notification {
	return s.build(core.NotificationManualDeletion, core.SeverityWarning,
		fmt.Sprintf("Manual removal required on %s", s.backendName()),
		fmt.Sprintf("Account %s of %s was deleted, but %s has no automated removal.",
			s.identity(), s.owner(), s.backendName()),
		steps(
			fmt.Sprintf("Log in to %s.", s.backendName()),
			fmt.Sprintf("Remove the credential %s.", s.identity()),
		),
	)
}

// AutomationFailed reports a remote call that failed during a cascade or
// deletion, with the error needed to replay it.
func AutomationFailed(s Subject, op string, err error) *core.Notification {
	return s.build(core.NotificationAutomationFailed, core.SeverityCritical,
		fmt.Sprintf("Automatic %s failed on %s", op, s.backendName()),
		fmt.Sprintf("Could not %s account %s of %s: %v", op, s.identity(), s.owner(), err),
		steps(
			fmt.Sprintf("Check that %s is reachable.", s.backendName()),
			fmt.Sprintf("Retry the %s, or %s the credential %s by hand.", op, op, s.identity()),
		),
	)
}

func steps(lines ...string) string {
	var b strings.Builder
	for i, l := range lines {
		if i > 0 {
			b.WriteByte('\n')
		}
		fmt.Fprintf(&b, "%d. %s", i+1, l)
	}
	return b.String()
}

func strPtr(s string) *string { return &s }
