package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/ReimaoHenrique/api-mercadolivre/cmd/web/validator"
	"github.com/ReimaoHenrique/api-mercadolivre/internal/processing"
	"github.com/ReimaoHenrique/api-mercadolivre/kit/db"
	gateway "github.com/ReimaoHenrique/api-mercadolivre/kit/external_payment_gateway"
)

// Envelope wraps every admin response.
type Envelope struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Code    int    `json:"code"`
	Data    any    `json:"data,omitempty"`
}

func respond(c *gin.Context, code int, msg string, data any) {
	c.JSON(code, Envelope{Success: code < http.StatusBadRequest, Message: msg, Code: code, Data: data})
}

// fail maps domain errors onto status codes.
func fail(c *gin.Context, err error) {
	code, msg := http.StatusInternalServerError, "internal error"
	switch {
	case db.IsNotFound(err):
		code, msg = http.StatusNotFound, "not found"
	case db.IsInvalid(err), errors.Is(err, validator.ErrInvalidJSON):
		code, msg = http.StatusBadRequest, err.Error()
	case errors.Is(err, validator.ErrBodyTooLarge):
		code, msg = http.StatusRequestEntityTooLarge, err.Error()
	case errors.Is(err, processing.ErrNotApproved):
		code, msg = http.StatusConflict, "payment is not approved"
	case errors.Is(err, gateway.ErrClient):
		code, msg = http.StatusBadRequest, err.Error()
	case errors.Is(err, gateway.ErrCircuitOpen), errors.Is(err, gateway.ErrTimeout), errors.Is(err, gateway.ErrServer):
		code, msg = http.StatusBadGateway, "payment gateway unavailable"
	}
	respond(c, code, msg, nil)
}
