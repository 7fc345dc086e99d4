package handlers

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/ReimaoHenrique/api-mercadolivre/internal/processing"
	"github.com/ReimaoHenrique/api-mercadolivre/internal/recovery"
	"github.com/ReimaoHenrique/api-mercadolivre/kit/observability"
)

type ReprocessContract interface {
	Reprocess(ctx context.Context, ref string, force bool) (processing.Result, error)
	ReprocessAll(ctx context.Context) (recovery.Summary, error)
}

type WatcherStatusContract interface {
	Status() recovery.Status
}

type Monitor struct {
	recovery ReprocessContract
	watcher  WatcherStatusContract
	logger   *observability.Logger
}

func NewMonitor(svc ReprocessContract, watcher WatcherStatusContract, logger *observability.Logger) *Monitor {
	return &Monitor{recovery: svc, watcher: watcher, logger: logger}
}

func (h *Monitor) Reprocess(c *gin.Context) {
	ref := c.Param("ref")
	force, _ := strconv.ParseBool(c.Query("force"))

	res, err := h.recovery.Reprocess(c.Request.Context(), ref, force)
	data := gin.H{"external_reference": ref, "outcome": res.Outcome, "forced": force}
	if res.Record != nil {
		data["processing_state"] = res.Record.ProcessingState
	}
	if err != nil {
		h.logger.Warn("reprocess failed", "layer", "handler", "component", "monitor", "method", "Reprocess", "external_reference", ref, "err", err)
		if res.Outcome == processing.OutcomePartial {
			data["error"] = err.Error()
			respond(c, http.StatusAccepted, "payment partially processed", data)
			return
		}
		fail(c, err)
		return
	}
	respond(c, http.StatusOK, "payment reprocessed", data)
}

func (h *Monitor) ReprocessAll(c *gin.Context) {
	sum, err := h.recovery.ReprocessAll(c.Request.Context())
	if err != nil {
		h.logger.Error("reprocess all failed", "layer", "handler", "component", "monitor", "method", "ReprocessAll", "err", err)
		fail(c, err)
		return
	}
	respond(c, http.StatusOK, "reprocess finished", sum)
}

func (h *Monitor) Status(c *gin.Context) {
	if h.watcher == nil {
		respond(c, http.StatusOK, "watcher disabled", recovery.Status{})
		return
	}
	respond(c, http.StatusOK, "watcher status", h.watcher.Status())
}
