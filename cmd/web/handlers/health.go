package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/ReimaoHenrique/api-mercadolivre/internal/health"
)

type HealthContract interface {
	Check(ctx context.Context) health.Result
}

type Health struct {
	svc HealthContract
}

func NewHealth(svc HealthContract) *Health { return &Health{svc: svc} }

func (h *Health) Handler(c *gin.Context) {
	res := h.svc.Check(c.Request.Context())
	status, code := "ok", http.StatusOK
	if !res.OK {
		status, code = "down", http.StatusServiceUnavailable
	}
	c.JSON(code, gin.H{"status": status, "at": res.At, "checks": res.Checks})
}
