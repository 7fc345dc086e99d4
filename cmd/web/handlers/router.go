package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/ReimaoHenrique/api-mercadolivre/kit/observability"
)

type Routes struct {
	Webhook *Webhook
	Payment *Payment
	Monitor *Monitor
	Health  *Health
	Metrics http.Handler
	Logger  *observability.Logger
}

func NewRouter(r Routes) *gin.Engine {
	engine := gin.New()
	engine.Use(gin.Recovery(), requestID(), accessLog(r.Logger))

	engine.POST("/webhook/mercadopago", r.Webhook.MercadoPago)

	storage := engine.Group("/payment-storage")
	storage.GET("/all", r.Payment.All)
	storage.GET("/stats", r.Payment.Stats)
	storage.GET("/by-reference/:ref", r.Payment.ByReference)
	storage.GET("/by-reference/:ref/history", r.Payment.History)
	storage.DELETE("/by-reference/:ref", r.Payment.Delete)
	storage.DELETE("/clear", r.Payment.Clear)

	monitor := engine.Group("/payment-monitor")
	monitor.POST("/reprocess/:ref", r.Monitor.Reprocess)
	monitor.POST("/reprocess-all", r.Monitor.ReprocessAll)
	monitor.GET("/status", r.Monitor.Status)

	engine.POST("/payments/preference", r.Payment.CreatePreference)

	engine.GET("/health", r.Health.Handler)
	if r.Metrics != nil {
		engine.GET("/metrics", gin.WrapH(r.Metrics))
	}
	return engine
}

const requestIDKey = "request_id"

// requestID echoes the caller's x-request-id or assigns one. The request
// header itself is left alone since webhook signatures cover it.
func requestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader("x-request-id")
		if id == "" {
			id = uuid.NewString()
		}
		c.Set(requestIDKey, id)
		c.Header("x-request-id", id)
		c.Next()
	}
}

func accessLog(logger *observability.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Info("http request",
			"layer", "http", "method", c.Request.Method, "path", c.FullPath(), "status", c.Writer.Status(),
			"duration", time.Since(start).String(), "request_id", c.GetString(requestIDKey))
	}
}
