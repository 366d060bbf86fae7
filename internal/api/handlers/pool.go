package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/zawnaing-2024/vmaster/internal/core"
	"github.com/zawnaing-2024/vmaster/internal/db"
)

type ImportPoolRequest struct {
	Kind  core.BackendKind `json:"kind" binding:"required,oneof=auth-tunnel relay"`
	Data  string           `json:"data" binding:"required"`
	Notes string           `json:"notes"`
}

func (h *Handler) ImportPool(c *gin.Context) {
	var req ImportPoolRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	n, err := h.pool.BulkImport(c.Request.Context(), req.Kind, req.Data, req.Notes)
	if err != nil {
		h.respondError(c, err, "Failed to import pool credentials", nil)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"kind": req.Kind, "imported": n})
}

func (h *Handler) ListPool(c *gin.Context) {
	page, limit, offset := pagination(c, 50, 500)

	filter := db.PoolFilter{
		Kind:   core.BackendKind(c.Query("kind")),
		Limit:  limit,
		Offset: offset,
	}
	if filter.Kind != "" && !filter.Kind.Valid() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Unknown backend kind"})
		return
	}
	if v := c.Query("assigned"); v != "" {
		assigned, err := strconv.ParseBool(v)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "assigned must be true or false"})
			return
		}
		filter.Assigned = &assigned
	}

	creds, err := h.pool.List(c.Request.Context(), filter)
	if err != nil {
		h.respondError(c, err, "Failed to list pool credentials", nil)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"credentials": creds,
		"pagination": gin.H{
			"page":  page,
			"limit": limit,
		},
	})
}

func (h *Handler) PoolStats(c *gin.Context) {
	stats, err := h.pool.Stats(c.Request.Context())
	if err != nil {
		h.respondError(c, err, "Failed to get pool stats", nil)
		return
	}
	c.JSON(http.StatusOK, gin.H{"stats": stats})
}

func (h *Handler) DeletePoolCredential(c *gin.Context) {
	if err := h.pool.Delete(c.Request.Context(), c.Param("id")); err != nil {
		h.respondError(c, err, "Failed to delete pool credential", nil)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Pool credential deleted"})
}

func (h *Handler) ReleasePoolCredential(c *gin.Context) {
	if err := h.pool.Release(c.Request.Context(), c.Param("id")); err != nil {
		h.respondError(c, err, "Failed to release pool credential", nil)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Pool credential released"})
}
