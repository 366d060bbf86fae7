package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

type AdminLoginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type TenantLoginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

type MobileLoginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

func (h *Handler) AdminLogin(c *gin.Context) {
	var req AdminLoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	token, err := h.auth.LoginAdmin(c.Request.Context(), req.Username, req.Password)
	if err != nil {
		h.respondError(c, err, "Admin login failed", nil)
		return
	}
	c.JSON(http.StatusOK, token)
}

func (h *Handler) TenantLogin(c *gin.Context) {
	var req TenantLoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	token, err := h.auth.LoginTenant(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		h.respondError(c, err, "Tenant login failed", nil)
		return
	}
	c.JSON(http.StatusOK, token)
}

func (h *Handler) MobileLogin(c *gin.Context) {
	var req MobileLoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	token, err := h.auth.LoginEndUser(c.Request.Context(), req.Username, req.Password)
	if err != nil {
		h.respondError(c, err, "Mobile login failed", nil)
		return
	}
	c.JSON(http.StatusOK, token)
}
