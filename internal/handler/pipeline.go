package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"coinpicks/internal/service"
)

// PipelineHandler exposes the manual/administrative trigger. It invokes the
// same entrypoints as the cron schedule; the pipeline lock keeps a manual run
// from overlapping a scheduled one.
type PipelineHandler struct {
	Pipeline *service.Pipeline
	Logger   *zap.Logger
}

func (h *PipelineHandler) Register(r *gin.Engine) {
	group := r.Group("/api/v1/admin")
	group.POST("/pipeline/run", h.run)
}

func (h *PipelineHandler) run(c *gin.Context) {
	if h.Pipeline == nil {
		Error(c, http.StatusInternalServerError, "pipeline unavailable", nil)
		return
	}
	ctx := c.Request.Context()
	if err := h.Pipeline.RunRound(ctx); err != nil {
		if h.Logger != nil {
			h.Logger.Warn("manual round capture failed", zap.Error(err))
		}
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	result, err := h.Pipeline.RunSettlement(ctx)
	if err != nil {
		if errors.Is(err, service.ErrPipelineBusy) {
			Error(c, http.StatusConflict, "settlement already running", nil)
			return
		}
		if h.Logger != nil {
			h.Logger.Warn("manual settlement failed", zap.Error(err))
		}
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	Ok(c, result, nil)
}
