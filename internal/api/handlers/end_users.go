package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/zawnaing-2024/vmaster/internal/api/middleware"
	"github.com/zawnaing-2024/vmaster/internal/auth"
	"github.com/zawnaing-2024/vmaster/internal/core"
)

type CreateEndUserRequest struct {
	Name        string `json:"name" binding:"required,min=1,max=255"`
	Username    string `json:"username" binding:"required,min=3,max=64"`
	Password    string `json:"password" binding:"required,min=6"`
	MaxAccounts *int   `json:"max_accounts" binding:"omitempty,min=0"`
}

// UpdateEndUserRequest changes name and password only when present. The
// account cap is always replaced; null falls back to the tenant default.
type UpdateEndUserRequest struct {
	Name        *string `json:"name" binding:"omitempty,min=1,max=255"`
	Password    *string `json:"password" binding:"omitempty,min=6"`
	MaxAccounts *int    `json:"max_accounts" binding:"omitempty,min=0"`
}

func (h *Handler) CreateEndUser(c *gin.Context) {
	var req CreateEndUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ctx := c.Request.Context()
	tenantID := c.Param("id")
	if !middleware.Actor(c).CanManageTenant(tenantID) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Tenant not found"})
		return
	}

	tenant, err := h.repo.GetTenant(ctx, tenantID)
	if err != nil {
		h.respondError(c, err, "Failed to get tenant", nil)
		return
	}

	if tenant.MaxEndUsers != nil {
		count, err := h.repo.CountEndUsers(ctx, tenantID)
		if err != nil {
			h.respondError(c, err, "Failed to count end users", nil)
			return
		}
		if count >= *tenant.MaxEndUsers {
			c.JSON(http.StatusPaymentRequired, gin.H{
				"error": "End user limit reached for this tenant",
				"limit": *tenant.MaxEndUsers,
			})
			return
		}
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		h.respondError(c, err, "Failed to hash password", nil)
		return
	}

	// New end users follow the tenant's status
	user := &core.EndUser{
		ID:           uuid.New().String(),
		TenantID:     tenantID,
		Name:         req.Name,
		Username:     req.Username,
		PasswordHash: hash,
		Status:       tenant.Status,
		MaxAccounts:  req.MaxAccounts,
	}
	if err := h.repo.CreateEndUser(ctx, user); err != nil {
		h.respondError(c, err, "Failed to create end user", nil)
		return
	}

	h.logger.Info("End user created",
		zap.String("end_user_id", user.ID),
		zap.String("tenant_id", tenantID),
	)
	c.JSON(http.StatusCreated, user)
}

func (h *Handler) ListEndUsers(c *gin.Context) {
	tenantID := c.Param("id")
	if !middleware.Actor(c).CanManageTenant(tenantID) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Tenant not found"})
		return
	}

	users, err := h.repo.ListEndUsers(c.Request.Context(), tenantID)
	if err != nil {
		h.respondError(c, err, "Failed to list end users", nil)
		return
	}
	c.JSON(http.StatusOK, gin.H{"end_users": users})
}

// endUser loads the end user named in the path if the actor may see it.
func (h *Handler) endUser(c *gin.Context) (*core.EndUser, bool) {
	user, err := h.repo.GetEndUser(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.respondError(c, err, "Failed to get end user", nil)
		return nil, false
	}
	if !middleware.Actor(c).CanManageTenant(user.TenantID) {
		c.JSON(http.StatusNotFound, gin.H{"error": "End user not found"})
		return nil, false
	}
	return user, true
}

func (h *Handler) GetEndUser(c *gin.Context) {
	user, ok := h.endUser(c)
	if !ok {
		return
	}

	count, err := h.repo.CountAccountsByEndUser(c.Request.Context(), user.ID)
	if err != nil {
		h.respondError(c, err, "Failed to count accounts", nil)
		return
	}
	c.JSON(http.StatusOK, gin.H{"end_user": user, "accounts": count})
}

func (h *Handler) UpdateEndUser(c *gin.Context) {
	var req UpdateEndUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	user, ok := h.endUser(c)
	if !ok {
		return
	}

	if req.Name != nil {
		user.Name = *req.Name
	}
	if req.Password != nil {
		hash, err := auth.HashPassword(*req.Password)
		if err != nil {
			h.respondError(c, err, "Failed to hash password", nil)
			return
		}
		user.PasswordHash = hash
	}
	user.MaxAccounts = req.MaxAccounts

	if err := h.repo.UpdateEndUser(c.Request.Context(), user); err != nil {
		h.respondError(c, err, "Failed to update end user", nil)
		return
	}
	c.JSON(http.StatusOK, user)
}

func (h *Handler) ChangeEndUserStatus(c *gin.Context) {
	var req StatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	report, err := h.lifecycle.ChangeEndUserStatus(c.Request.Context(), c.Param("id"), req.Status)
	if err != nil {
		h.respondError(c, err, "Failed to change end user status", gin.H{"report": report})
		return
	}
	c.JSON(http.StatusOK, report)
}

func (h *Handler) DeleteEndUser(c *gin.Context) {
	report, err := h.lifecycle.DeleteEndUser(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.respondError(c, err, "Failed to delete end user", gin.H{"report": report})
		return
	}
	c.JSON(http.StatusOK, report)
}
