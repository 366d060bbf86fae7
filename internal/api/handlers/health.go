package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "healthy",
		"service": "vmaster",
		"time":    time.Now().Unix(),
	})
}

// Ready reports whether the store answers, along with the number of
// deletions still waiting to be finished by the sweeper.
func (h *Handler) Ready(c *gin.Context) {
	ctx := c.Request.Context()
	if err := h.repo.Ping(ctx); err != nil {
		h.logger.Warn("Readiness check failed", zap.Error(err))
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status":   "not ready",
			"database": "unreachable",
		})
		return
	}

	pending, err := h.repo.ListPendingDeletions(ctx)
	if err != nil {
		h.respondError(c, err, "Failed to read pending deletions", nil)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":            "ready",
		"database":          "ok",
		"pending_deletions": len(pending),
	})
}
