package handlers

import (
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/zawnaing-2024/vmaster/internal/auth"
	"github.com/zawnaing-2024/vmaster/internal/backends"
	"github.com/zawnaing-2024/vmaster/internal/db"
	"github.com/zawnaing-2024/vmaster/internal/lifecycle"
	"github.com/zawnaing-2024/vmaster/internal/metrics"
	"github.com/zawnaing-2024/vmaster/internal/notify"
	"github.com/zawnaing-2024/vmaster/internal/pool"
	"github.com/zawnaing-2024/vmaster/internal/provisioning"
)

// Deps bundles the services the handlers call into.
type Deps struct {
	Repo      *db.Repository
	Auth      *auth.Service
	Engine    *provisioning.Engine
	Lifecycle *lifecycle.Controller
	Registry  *backends.Registry
	Pool      *pool.Store
	Notifier  *notify.Service
	Metrics   *metrics.Collector
	Logger    *zap.Logger
}

type Handler struct {
	repo      *db.Repository
	auth      *auth.Service
	engine    *provisioning.Engine
	lifecycle *lifecycle.Controller
	registry  *backends.Registry
	pool      *pool.Store
	notifier  *notify.Service
	metrics   *metrics.Collector
	logger    *zap.Logger
}

func NewHandler(d Deps) *Handler {
	return &Handler{
		repo:      d.Repo,
		auth:      d.Auth,
		engine:    d.Engine,
		lifecycle: d.Lifecycle,
		registry:  d.Registry,
		pool:      d.Pool,
		notifier:  d.Notifier,
		metrics:   d.Metrics,
		logger:    d.Logger,
	}
}

// pagination reads page and limit query parameters.
func pagination(c *gin.Context, defaultLimit, maxLimit int) (page, limit, offset int) {
	page, _ = strconv.Atoi(c.DefaultQuery("page", "1"))
	limit, _ = strconv.Atoi(c.DefaultQuery("limit", strconv.Itoa(defaultLimit)))

	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > maxLimit {
		limit = defaultLimit
	}
	return page, limit, (page - 1) * limit
}
