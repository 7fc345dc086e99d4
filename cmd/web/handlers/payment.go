package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"github.com/ReimaoHenrique/api-mercadolivre/cmd/web/validator"
	"github.com/ReimaoHenrique/api-mercadolivre/internal/payment"
	"github.com/ReimaoHenrique/api-mercadolivre/kit/db"
	gateway "github.com/ReimaoHenrique/api-mercadolivre/kit/external_payment_gateway"
	"github.com/ReimaoHenrique/api-mercadolivre/kit/observability"
)

type PaymentServiceContract interface {
	Get(ctx context.Context, ref string) (*payment.PaymentRecord, error)
	List(ctx context.Context) (*payment.Listing, error)
	Delete(ctx context.Context, ref string) (bool, error)
	Clear(ctx context.Context) (int, error)
	Stats(ctx context.Context) (payment.Stats, error)
	History(ctx context.Context, ref string) []db.Entry
	CreatePreference(ctx context.Context, req gateway.PreferenceRequest) (*gateway.Preference, error)
}

type Payment struct {
	json    *validator.JSON
	payment PaymentServiceContract
	logger  *observability.Logger
}

func NewPayment(jsonV *validator.JSON, paymentSvc PaymentServiceContract, logger *observability.Logger) *Payment {
	return &Payment{json: jsonV, payment: paymentSvc, logger: logger}
}

func (h *Payment) All(c *gin.Context) {
	listing, err := h.payment.List(c.Request.Context())
	if err != nil {
		h.logger.Error("list payments failed", "layer", "handler", "component", "payment", "method", "All", "err", err)
		fail(c, err)
		return
	}
	respond(c, http.StatusOK, "payments retrieved", gin.H{
		"records": listing.Records,
		"invalid": listing.Invalid,
		"count":   len(listing.Records),
	})
}

func (h *Payment) ByReference(c *gin.Context) {
	ref := c.Param("ref")
	rec, err := h.payment.Get(c.Request.Context(), ref)
	if err != nil {
		h.logger.Warn("get payment failed", "layer", "handler", "component", "payment", "method", "ByReference", "external_reference", ref, "err", err)
		fail(c, err)
		return
	}
	respond(c, http.StatusOK, "payment retrieved", rec)
}

func (h *Payment) History(c *gin.Context) {
	ref := c.Param("ref")
	if err := payment.ValidateReference(ref); err != nil {
		fail(c, err)
		return
	}
	entries := h.payment.History(c.Request.Context(), ref)
	respond(c, http.StatusOK, "history retrieved", gin.H{"external_reference": ref, "entries": entries, "count": len(entries)})
}

func (h *Payment) Stats(c *gin.Context) {
	st, err := h.payment.Stats(c.Request.Context())
	if err != nil {
		h.logger.Error("stats failed", "layer", "handler", "component", "payment", "method", "Stats", "err", err)
		fail(c, err)
		return
	}
	respond(c, http.StatusOK, "stats computed", st)
}

func (h *Payment) Delete(c *gin.Context) {
	ref := c.Param("ref")
	deleted, err := h.payment.Delete(c.Request.Context(), ref)
	if err != nil {
		fail(c, err)
		return
	}
	if !deleted {
		respond(c, http.StatusNotFound, "not found", nil)
		return
	}
	respond(c, http.StatusOK, "payment deleted", gin.H{"external_reference": ref})
}

func (h *Payment) Clear(c *gin.Context) {
	n, err := h.payment.Clear(c.Request.Context())
	if err != nil {
		fail(c, err)
		return
	}
	respond(c, http.StatusOK, "payments cleared", gin.H{"removed": n})
}

type payerReq struct {
	Email     string `json:"email"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	AreaCode  string `json:"area_code"`
	Phone     string `json:"phone"`
}

type createPreferenceReq struct {
	Title             string           `json:"title"`
	Description       string           `json:"description"`
	Quantity          int              `json:"quantity"`
	UnitPrice         decimal.Decimal  `json:"unit_price"`
	CurrencyID        string           `json:"currency_id"`
	ExternalReference string           `json:"external_reference"`
	Payer             *payerReq        `json:"payer"`
	BackURLs          gateway.BackURLs `json:"back_urls"`
}

func (r createPreferenceReq) toDomain() gateway.PreferenceRequest {
	out := gateway.PreferenceRequest{
		Title:             r.Title,
		Description:       r.Description,
		Quantity:          r.Quantity,
		UnitPrice:         r.UnitPrice,
		CurrencyID:        r.CurrencyID,
		ExternalReference: r.ExternalReference,
		BackURLs:          r.BackURLs,
	}
	if r.Payer != nil {
		out.Payer = &gateway.Payer{Email: r.Payer.Email, FirstName: r.Payer.FirstName, LastName: r.Payer.LastName}
		if r.Payer.Phone != "" {
			out.Payer.Phone = &gateway.Phone{AreaCode: r.Payer.AreaCode, Number: r.Payer.Phone}
		}
	}
	return out
}

func (h *Payment) CreatePreference(c *gin.Context) {
	var req createPreferenceReq
	if err := h.json.Decode(c.Writer, c.Request, &req); err != nil {
		h.logger.Warn("invalid preference request", "layer", "handler", "component", "payment", "method", "CreatePreference", "err", err)
		fail(c, err)
		return
	}
	pref, err := h.payment.CreatePreference(c.Request.Context(), req.toDomain())
	if err != nil {
		h.logger.Error("create preference failed", "layer", "handler", "component", "payment", "method", "CreatePreference", "external_reference", req.ExternalReference, "err", err)
		fail(c, err)
		return
	}
	respond(c, http.StatusCreated, "preference created", pref)
}
