package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/zawnaing-2024/vmaster/internal/api/middleware"
	"github.com/zawnaing-2024/vmaster/internal/core"
)

type CreateBackendRequest struct {
	Name          string           `json:"name" binding:"required,min=1,max=255"`
	Kind          core.BackendKind `json:"kind" binding:"required,oneof=proxy-api auth-tunnel relay"`
	Host          string           `json:"host" binding:"required"`
	Port          int              `json:"port" binding:"required,min=1,max=65535"`
	Location      string           `json:"location"`
	APIURL        string           `json:"api_url" binding:"omitempty,url"`
	APICertSHA256 string           `json:"api_cert_sha256"`
	MaxAccounts   int              `json:"max_accounts" binding:"required,min=1"`
}

type UpdateBackendRequest struct {
	Name          *string             `json:"name" binding:"omitempty,min=1,max=255"`
	Host          *string             `json:"host"`
	Port          *int                `json:"port" binding:"omitempty,min=1,max=65535"`
	Location      *string             `json:"location"`
	Status        *core.BackendStatus `json:"status" binding:"omitempty,oneof=active maintenance disabled"`
	APIURL        *string             `json:"api_url" binding:"omitempty"`
	APICertSHA256 *string             `json:"api_cert_sha256"`
	MaxAccounts   *int                `json:"max_accounts" binding:"omitempty,min=1"`
}

func (h *Handler) CreateBackend(c *gin.Context) {
	var req CreateBackendRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	b := &core.VpnBackend{
		ID:            uuid.New().String(),
		Name:          req.Name,
		Kind:          req.Kind,
		Host:          req.Host,
		Port:          req.Port,
		Location:      req.Location,
		Status:        core.BackendActive,
		APIURL:        req.APIURL,
		APICertSHA256: req.APICertSHA256,
		MaxAccounts:   req.MaxAccounts,
	}
	if err := h.repo.CreateBackend(c.Request.Context(), b); err != nil {
		h.respondError(c, err, "Failed to create backend", nil)
		return
	}

	h.logger.Info("Backend created",
		zap.String("backend_id", b.ID),
		zap.String("kind", string(b.Kind)),
		zap.Bool("managed_api", b.HasAPI()),
	)
	c.JSON(http.StatusCreated, b)
}

// ListBackends shows tenants only active backends, without management
// endpoints.
func (h *Handler) ListBackends(c *gin.Context) {
	list, err := h.repo.ListBackends(c.Request.Context())
	if err != nil {
		h.respondError(c, err, "Failed to list backends", nil)
		return
	}

	if middleware.Actor(c).Role != core.RoleAdmin {
		visible := make([]*core.VpnBackend, 0, len(list))
		for _, b := range list {
			if b.Status != core.BackendActive {
				continue
			}
			redacted := *b
			redacted.APIURL = ""
			visible = append(visible, &redacted)
		}
		list = visible
	}
	c.JSON(http.StatusOK, gin.H{"backends": list})
}

func (h *Handler) GetBackend(c *gin.Context) {
	b, err := h.repo.GetBackend(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.respondError(c, err, "Failed to get backend", nil)
		return
	}
	c.JSON(http.StatusOK, b)
}

func (h *Handler) UpdateBackend(c *gin.Context) {
	var req UpdateBackendRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ctx := c.Request.Context()
	b, err := h.repo.GetBackend(ctx, c.Param("id"))
	if err != nil {
		h.respondError(c, err, "Failed to get backend", nil)
		return
	}

	if req.Name != nil {
		b.Name = *req.Name
	}
	if req.Host != nil {
		b.Host = *req.Host
	}
	if req.Port != nil {
		b.Port = *req.Port
	}
	if req.Location != nil {
		b.Location = *req.Location
	}
	if req.Status != nil {
		b.Status = *req.Status
	}
	if req.APIURL != nil {
		b.APIURL = *req.APIURL
	}
	if req.APICertSHA256 != nil {
		b.APICertSHA256 = *req.APICertSHA256
	}
	if req.MaxAccounts != nil {
		if *req.MaxAccounts < b.CurrentAccounts {
			c.JSON(http.StatusConflict, gin.H{
				"error":            "max_accounts is below the number of allocated accounts",
				"current_accounts": b.CurrentAccounts,
			})
			return
		}
		b.MaxAccounts = *req.MaxAccounts
	}

	if err := h.repo.UpdateBackend(ctx, b); err != nil {
		h.respondError(c, err, "Failed to update backend", nil)
		return
	}
	h.registry.Forget(b.ID)
	c.JSON(http.StatusOK, b)
}

func (h *Handler) DeleteBackend(c *gin.Context) {
	ctx := c.Request.Context()
	b, err := h.repo.GetBackend(ctx, c.Param("id"))
	if err != nil {
		h.respondError(c, err, "Failed to get backend", nil)
		return
	}
	if err := h.repo.DeleteBackend(ctx, b.ID); err != nil {
		h.respondError(c, err, "Failed to delete backend", nil)
		return
	}
	h.registry.Forget(b.ID)
	h.metrics.ForgetBackend(b.ID, b.Kind)

	h.logger.Info("Backend deleted", zap.String("backend_id", b.ID))
	c.JSON(http.StatusOK, gin.H{"message": "Backend deleted successfully"})
}

// TestBackend checks the backend's management interface. Results are
// cached briefly per backend; ?refresh=true skips the cache.
func (h *Handler) TestBackend(c *gin.Context) {
	ctx := c.Request.Context()
	b, err := h.repo.GetBackend(ctx, c.Param("id"))
	if err != nil {
		h.respondError(c, err, "Failed to get backend", nil)
		return
	}

	if c.Query("refresh") == "true" {
		h.registry.Forget(b.ID)
	}
	result, err := h.registry.TestConnection(ctx, b)
	if err != nil {
		h.respondError(c, err, "Failed to test backend", nil)
		return
	}
	c.JSON(http.StatusOK, result)
}
