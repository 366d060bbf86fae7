package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/zawnaing-2024/vmaster/internal/api/middleware"
	"github.com/zawnaing-2024/vmaster/internal/core"
	"github.com/zawnaing-2024/vmaster/internal/provisioning"
)

// CreateAccount provisions an account for an end user. Tenants act on
// their own end users; administrators on any.
func (h *Handler) CreateAccount(c *gin.Context) {
	var req provisioning.Request
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	actor := middleware.Actor(c)
	if actor.Role == core.RoleTenant {
		req.TenantID = actor.TenantID
	} else {
		user, err := h.repo.GetEndUser(c.Request.Context(), req.EndUserID)
		if err != nil {
			h.respondError(c, err, "Failed to get end user", nil)
			return
		}
		req.TenantID = user.TenantID
	}

	acc, err := h.engine.CreateAccount(c.Request.Context(), req)
	if err != nil {
		h.respondError(c, err, "Failed to create account", nil)
		return
	}
	c.JSON(http.StatusCreated, acc)
}

func (h *Handler) ListAccounts(c *gin.Context) {
	views, err := h.engine.ListAccounts(c.Request.Context(), c.Param("id"), c.Query("end_user_id"))
	if err != nil {
		h.respondError(c, err, "Failed to list accounts", nil)
		return
	}
	c.JSON(http.StatusOK, gin.H{"accounts": views})
}

func (h *Handler) GetAccount(c *gin.Context) {
	view, err := h.engine.GetAccount(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.respondError(c, err, "Failed to get account", nil)
		return
	}
	c.JSON(http.StatusOK, view)
}

// DeleteAccount removes the account and releases its backend slot. When
// the backend needs manual cleanup the response carries the notification.
func (h *Handler) DeleteAccount(c *gin.Context) {
	removal, err := h.engine.DeleteAccount(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.respondError(c, err, "Failed to delete account", nil)
		return
	}
	c.JSON(http.StatusOK, removal)
}

func (h *Handler) ResumeDeletions(c *gin.Context) {
	report, err := h.lifecycle.ResumePendingDeletions(c.Request.Context())
	if err != nil {
		h.respondError(c, err, "Failed to resume pending deletions", nil)
		return
	}
	c.JSON(http.StatusOK, report)
}
