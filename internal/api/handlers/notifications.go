package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/zawnaing-2024/vmaster/internal/api/middleware"
	"github.com/zawnaing-2024/vmaster/internal/core"
)

// notificationScope is the tenant filter for the actor. Tenants always see
// their own; administrators may narrow with ?tenant_id.
func notificationScope(c *gin.Context) string {
	actor := middleware.Actor(c)
	if actor.Role == core.RoleTenant {
		return actor.TenantID
	}
	return c.Query("tenant_id")
}

func (h *Handler) ListNotifications(c *gin.Context) {
	page, limit, offset := pagination(c, 50, 200)

	list, err := h.notifier.List(c.Request.Context(), core.NotificationFilters{
		TenantID:   notificationScope(c),
		UnreadOnly: c.Query("unread") == "true",
		Limit:      limit,
		Offset:     offset,
	})
	if err != nil {
		h.respondError(c, err, "Failed to list notifications", nil)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"notifications": list,
		"pagination": gin.H{
			"page":  page,
			"limit": limit,
		},
	})
}

func (h *Handler) UnreadNotifications(c *gin.Context) {
	count, err := h.notifier.UnreadCount(c.Request.Context(), notificationScope(c))
	if err != nil {
		h.respondError(c, err, "Failed to count notifications", nil)
		return
	}
	c.JSON(http.StatusOK, gin.H{"unread": count})
}

func (h *Handler) MarkNotificationRead(c *gin.Context) {
	ctx := c.Request.Context()
	id := c.Param("id")

	n, err := h.notifier.Get(ctx, id)
	if err != nil {
		h.respondError(c, err, "Failed to get notification", nil)
		return
	}
	actor := middleware.Actor(c)
	if actor.Role == core.RoleTenant && (n.TenantID == nil || *n.TenantID != actor.TenantID) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Notification not found"})
		return
	}

	if err := h.notifier.MarkRead(ctx, id); err != nil {
		h.respondError(c, err, "Failed to mark notification read", nil)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Notification marked as read"})
}

func (h *Handler) MarkAllNotificationsRead(c *gin.Context) {
	n, err := h.notifier.MarkAllRead(c.Request.Context(), notificationScope(c))
	if err != nil {
		h.respondError(c, err, "Failed to mark notifications read", nil)
		return
	}
	c.JSON(http.StatusOK, gin.H{"updated": n})
}
