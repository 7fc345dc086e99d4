package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/ReimaoHenrique/api-mercadolivre/cmd/web/validator"
	"github.com/ReimaoHenrique/api-mercadolivre/internal/webhook"
	"github.com/ReimaoHenrique/api-mercadolivre/kit/observability"
)

type WebhookServiceContract interface {
	Handle(ctx context.Context, req webhook.Request) (webhook.Result, error)
}

type Webhook struct {
	json    *validator.JSON
	service WebhookServiceContract
	logger  *observability.Logger
}

func NewWebhook(jsonV *validator.JSON, svc WebhookServiceContract, logger *observability.Logger) *Webhook {
	return &Webhook{json: jsonV, service: svc, logger: logger}
}

// MercadoPago answers 200 for everything past the signature check so the
// gateway does not redeliver; processing problems are only logged. An
// undecodable body is acknowledged as ignored.
func (h *Webhook) MercadoPago(c *gin.Context) {
	raw, err := h.json.ReadBody(c.Writer, c.Request)
	if err != nil {
		h.logger.Warn("webhook body unreadable", "layer", "handler", "component", "webhook", "method", "MercadoPago", "err", err)
		c.JSON(http.StatusBadRequest, gin.H{"status": "error", "message": err.Error()})
		return
	}
	var body webhook.Notification
	if err := validator.DecodeLenient(raw, &body); err != nil {
		// nothing to verify or fetch; acknowledge so the gateway stops redelivering
		h.logger.Warn("webhook body malformed, ignoring", "layer", "handler", "component", "webhook", "method", "MercadoPago", "data_id", c.Query("data.id"), "err", err)
		c.JSON(http.StatusOK, gin.H{"status": "ignored"})
		return
	}

	req := webhook.Request{
		Body:        body,
		RawBody:     raw,
		QueryDataID: c.Query("data.id"),
		Signature:   c.GetHeader("x-signature"),
		RequestID:   c.GetHeader("x-request-id"),
	}
	res, err := h.service.Handle(c.Request.Context(), req)
	switch res.Status {
	case webhook.StatusUnauthorized:
		c.JSON(http.StatusUnauthorized, gin.H{"status": "unauthorized", "message": res.Message})
	case webhook.StatusIgnored:
		c.JSON(http.StatusOK, gin.H{"status": "ignored"})
	default:
		if err != nil {
			h.logger.Error("webhook processing failed", "layer", "handler", "component", "webhook", "method", "MercadoPago", "data_id", res.DataID, "err", err)
		}
		c.JSON(http.StatusOK, gin.H{"status": "success"})
	}
}
