package handlers

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/zawnaing-2024/vmaster/internal/api/middleware"
	"github.com/zawnaing-2024/vmaster/internal/auth"
	"github.com/zawnaing-2024/vmaster/internal/core"
)

type CreateTenantRequest struct {
	Name               string     `json:"name" binding:"required,min=1,max=255"`
	Email              string     `json:"email" binding:"required,email"`
	Password           string     `json:"password" binding:"required,min=8"`
	MaxEndUsers        *int       `json:"max_end_users" binding:"omitempty,min=0"`
	MaxAccountsPerUser *int       `json:"max_accounts_per_user" binding:"omitempty,min=0"`
	MaxTotalAccounts   *int       `json:"max_total_accounts" binding:"omitempty,min=0"`
	ExpiresAt          *time.Time `json:"expires_at"`
}

// UpdateTenantRequest changes only the fields present in the body. For
// limits and expiry an explicit null clears the value (unlimited).
type UpdateTenantRequest struct {
	Name               *string             `json:"name" binding:"omitempty,min=1,max=255"`
	Email              *string             `json:"email" binding:"omitempty,email"`
	Password           *string             `json:"password" binding:"omitempty,min=8"`
	MaxEndUsers        Nullable[int]       `json:"max_end_users"`
	MaxAccountsPerUser Nullable[int]       `json:"max_accounts_per_user"`
	MaxTotalAccounts   Nullable[int]       `json:"max_total_accounts"`
	ExpiresAt          Nullable[time.Time] `json:"expires_at"`
}

// Nullable separates a field left out of a JSON body from one sent as null.
type Nullable[T any] struct {
	Set   bool
	Value *T
}

func (n *Nullable[T]) UnmarshalJSON(b []byte) error {
	n.Set = true
	if bytes.Equal(b, []byte("null")) {
		n.Value = nil
		return nil
	}
	var v T
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	n.Value = &v
	return nil
}

// apply overwrites *dst when the field was sent.
func (n Nullable[T]) apply(dst **T) {
	if n.Set {
		*dst = n.Value
	}
}

func (r UpdateTenantRequest) validate() error {
	for name, v := range map[string]Nullable[int]{
		"max_end_users":         r.MaxEndUsers,
		"max_accounts_per_user": r.MaxAccountsPerUser,
		"max_total_accounts":    r.MaxTotalAccounts,
	} {
		if v.Value != nil && *v.Value < 0 {
			return fmt.Errorf("%s must not be negative", name)
		}
	}
	return nil
}

type StatusRequest struct {
	Status core.Status `json:"status" binding:"required,oneof=active suspended disabled"`
}

func (h *Handler) CreateTenant(c *gin.Context) {
	var req CreateTenantRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		h.respondError(c, err, "Failed to hash password", nil)
		return
	}

	tenant := &core.Tenant{
		ID:                 uuid.New().String(),
		Name:               req.Name,
		Email:              req.Email,
		PasswordHash:       hash,
		Status:             core.StatusActive,
		MaxEndUsers:        req.MaxEndUsers,
		MaxAccountsPerUser: req.MaxAccountsPerUser,
		MaxTotalAccounts:   req.MaxTotalAccounts,
		ExpiresAt:          req.ExpiresAt,
	}
	if err := h.repo.CreateTenant(c.Request.Context(), tenant); err != nil {
		h.respondError(c, err, "Failed to create tenant", nil)
		return
	}

	h.logger.Info("Tenant created",
		zap.String("tenant_id", tenant.ID),
		zap.String("actor", middleware.Actor(c).ID),
	)
	c.JSON(http.StatusCreated, tenant)
}

func (h *Handler) ListTenants(c *gin.Context) {
	page, limit, offset := pagination(c, 20, 100)

	tenants, err := h.repo.ListTenants(c.Request.Context(), limit, offset)
	if err != nil {
		h.respondError(c, err, "Failed to list tenants", nil)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"tenants": tenants,
		"pagination": gin.H{
			"page":  page,
			"limit": limit,
		},
	})
}

func (h *Handler) GetTenant(c *gin.Context) {
	tenantID := c.Param("id")
	if !middleware.Actor(c).CanManageTenant(tenantID) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Tenant not found"})
		return
	}

	tenant, err := h.repo.GetTenant(c.Request.Context(), tenantID)
	if err != nil {
		h.respondError(c, err, "Failed to get tenant", nil)
		return
	}

	endUsers, err := h.repo.CountEndUsers(c.Request.Context(), tenantID)
	if err != nil {
		h.respondError(c, err, "Failed to count end users", nil)
		return
	}
	accounts, err := h.repo.CountAccountsByTenant(c.Request.Context(), tenantID)
	if err != nil {
		h.respondError(c, err, "Failed to count accounts", nil)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"tenant":    tenant,
		"expired":   tenant.IsExpired(time.Now()),
		"end_users": endUsers,
		"accounts":  accounts,
	})
}

func (h *Handler) UpdateTenant(c *gin.Context) {
	var req UpdateTenantRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := req.validate(); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	tenant, err := h.repo.GetTenant(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.respondError(c, err, "Failed to get tenant", nil)
		return
	}

	if req.Name != nil {
		tenant.Name = *req.Name
	}
	if req.Email != nil {
		tenant.Email = *req.Email
	}
	if req.Password != nil {
		hash, err := auth.HashPassword(*req.Password)
		if err != nil {
			h.respondError(c, err, "Failed to hash password", nil)
			return
		}
		tenant.PasswordHash = hash
	}
	req.MaxEndUsers.apply(&tenant.MaxEndUsers)
	req.MaxAccountsPerUser.apply(&tenant.MaxAccountsPerUser)
	req.MaxTotalAccounts.apply(&tenant.MaxTotalAccounts)
	req.ExpiresAt.apply(&tenant.ExpiresAt)

	if err := h.repo.UpdateTenant(c.Request.Context(), tenant); err != nil {
		h.respondError(c, err, "Failed to update tenant", nil)
		return
	}
	c.JSON(http.StatusOK, tenant)
}

// ChangeTenantStatus applies the status to the tenant, its end users and
// their accounts, and returns the per-account report.
func (h *Handler) ChangeTenantStatus(c *gin.Context) {
	var req StatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	report, err := h.lifecycle.ChangeTenantStatus(c.Request.Context(), c.Param("id"), req.Status)
	if err != nil {
		h.respondError(c, err, "Failed to change tenant status", gin.H{"report": report})
		return
	}
	c.JSON(http.StatusOK, report)
}

func (h *Handler) DeleteTenant(c *gin.Context) {
	report, err := h.lifecycle.DeleteTenant(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.respondError(c, err, "Failed to delete tenant", gin.H{"report": report})
		return
	}
	c.JSON(http.StatusOK, report)
}
