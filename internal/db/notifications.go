package db

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/zawnaing-2024/vmaster/internal/core"
)

const notificationColumns = `id, type, severity, title, message, tenant_id, end_user_id, account_id,
        action_required, is_read, read_at, created_at`

func (r *Repository) CreateNotification(ctx context.Context, n *core.Notification) error {
	if n.ID == "" {
		n.ID = uuid.New().String()
	}
	n.CreatedAt = r.timestamp()

	query := `
        INSERT INTO notifications (` + notificationColumns + `) VALUES (
            :id, :type, :severity, :title, :message, :tenant_id, :end_user_id, :account_id,
            :action_required, :is_read, :read_at, :created_at
        )`

	if err := r.namedExec(ctx, query, n); err != nil {
		return fmt.Errorf("failed to create notification: %w", err)
	}
	return nil
}

func (r *Repository) GetNotification(ctx context.Context, id string) (*core.Notification, error) {
	var n core.Notification
	err := r.get(ctx, &n, `SELECT `+notificationColumns+` FROM notifications WHERE id = ?`, id)
	if isNoRows(err) {
		return nil, core.NotFound("notification", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get notification: %w", err)
	}
	return &n, nil
}

func (r *Repository) ListNotifications(ctx context.Context, f core.NotificationFilters) ([]*core.Notification, error) {
	query := `SELECT ` + notificationColumns + ` FROM notifications WHERE 1 = 1`
	args := []interface{}{}

	if f.TenantID != "" {
		query += ` AND tenant_id = ?`
		args = append(args, f.TenantID)
	}
	if f.UnreadOnly {
		query += ` AND is_read = ?`
		args = append(args, false)
	}
	query += ` ORDER BY created_at DESC, id`

	if f.Limit > 0 {
		query += ` LIMIT ? OFFSET ?`
		args = append(args, f.Limit, f.Offset)
	}

	notifications := []*core.Notification{}
	if err := r.selectAll(ctx, &notifications, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list notifications: %w", err)
	}
	return notifications, nil
}

func (r *Repository) CountUnreadNotifications(ctx context.Context, tenantID string) (int, error) {
	query := `SELECT COUNT(*) FROM notifications WHERE is_read = ?`
	args := []interface{}{false}
	if tenantID != "" {
		query += ` AND tenant_id = ?`
		args = append(args, tenantID)
	}

	var count int
	err := r.get(ctx, &count, query, args...)
	return count, err
}

func (r *Repository) MarkNotificationRead(ctx context.Context, id string) error {
	n, err := r.exec(ctx, `UPDATE notifications SET is_read = ?, read_at = ? WHERE id = ?`, true, r.timestamp(), id)
	if err != nil {
		return fmt.Errorf("failed to mark notification read: %w", err)
	}
	if n == 0 {
		return core.NotFound("notification", id)
	}
	return nil
}

func (r *Repository) MarkAllNotificationsRead(ctx context.Context, tenantID string) (int64, error) {
	query := `UPDATE notifications SET is_read = ?, read_at = ? WHERE is_read = ?`
	args := []interface{}{true, r.timestamp(), false}
	if tenantID != "" {
		query += ` AND tenant_id = ?`
		args = append(args, tenantID)
	}

	n, err := r.exec(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("failed to mark notifications read: %w", err)
	}
	return n, nil
}
