package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/tallyline/backend/internal/infrastructure/logger"
	"github.com/tallyline/backend/internal/interfaces/http/dto"
	"go.uber.org/zap"
)

const healthPingTimeout = 2 * time.Second

// Pinger checks a dependency is reachable
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthHandler reports liveness
type HealthHandler struct {
	BaseHandler
	db Pinger
}

// NewHealthHandler creates a new HealthHandler
func NewHealthHandler(db Pinger) *HealthHandler {
	return &HealthHandler{db: db}
}

// Health godoc
//
//	@Summary	Liveness with a database ping
//	@Tags		system
//	@Produce	json
//	@Success	200	{object}	dto.Response{data=dto.HealthStatus}
//	@Failure	503	{object}	dto.Response{data=dto.HealthStatus}
//	@Router		/health [get]
func (h *HealthHandler) Health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), healthPingTimeout)
	defer cancel()

	if err := h.db.Ping(ctx); err != nil {
		logger.GetGinLogger(c).Warn("Health check database ping failed", zap.Error(err))
		c.JSON(http.StatusServiceUnavailable, dto.Response{
			Success: false,
			Data:    dto.HealthStatus{Status: "degraded", Database: "unreachable"},
			Error:   dto.NewErrorResponse(dto.ErrCodeServiceUnavailable, "Database unreachable").Error,
		})
		return
	}
	h.Success(c, dto.HealthStatus{Status: "ok", Database: "ok"})
}
