package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/zawnaing-2024/vmaster/internal/auth"
	"github.com/zawnaing-2024/vmaster/internal/core"
)

// statusFor maps the error taxonomy onto HTTP statuses. Unknown errors are
// internal.
func statusFor(err error) int {
	var quota *core.QuotaError
	switch {
	case errors.As(err, &quota):
		return http.StatusPaymentRequired
	case errors.Is(err, auth.ErrInvalidCredentials):
		return http.StatusUnauthorized
	case errors.Is(err, core.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, core.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, core.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, core.ErrCapacityExceeded), errors.Is(err, core.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, core.ErrUnsupported):
		return http.StatusNotImplemented
	case errors.Is(err, core.ErrBackendUnavailable):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

// respondError writes err with its mapped status. extra is merged into the
// body, e.g. a partial cascade report.
func (h *Handler) respondError(c *gin.Context, err error, msg string, extra gin.H) {
	status := statusFor(err)

	body := gin.H{}
	for k, v := range extra {
		body[k] = v
	}

	if status == http.StatusInternalServerError {
		h.logger.Error(msg, zap.String("path", c.FullPath()), zap.Error(err))
		body["error"] = "Internal server error"
		c.JSON(status, body)
		return
	}

	body["error"] = err.Error()
	var quota *core.QuotaError
	if errors.As(err, &quota) {
		body["quota"] = gin.H{
			"scope":   quota.Scope,
			"limit":   quota.Limit,
			"current": quota.Current,
		}
	}
	_ = c.Error(err)
	c.JSON(status, body)
}
