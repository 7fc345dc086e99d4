package external_payment_gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/ReimaoHenrique/api-mercadolivre/kit/observability"
)

const DefaultBaseURL = "https://api.mercadopago.com"

type MercadoPagoConfig struct {
	BaseURL     string
	AccessToken string
	Timeout     time.Duration
}

type MercadoPagoClient struct {
	baseURL string
	token   string
	http    *http.Client
	logger  *observability.Logger
}

func NewMercadoPagoClient(cfg MercadoPagoConfig, logger *observability.Logger) *MercadoPagoClient {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	return &MercadoPagoClient{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		token:   cfg.AccessToken,
		http:    &http.Client{Timeout: cfg.Timeout},
		logger:  logger,
	}
}

func (c *MercadoPagoClient) FetchPayment(ctx context.Context, paymentID string) (*PaymentDetail, error) {
	endpoint := c.baseURL + "/v1/payments/" + url.PathEscape(paymentID)
	body, err := c.do(ctx, http.MethodGet, endpoint, nil, "")
	if err != nil {
		c.logger.Error("fetch payment", "layer", "gateway", "component", "mercadopago", "method", "FetchPayment", "payment_id", paymentID, "err", err)
		return nil, err
	}

	var d PaymentDetail
	if err := json.Unmarshal(body, &d); err != nil {
		return nil, errors.Join(ErrServer, fmt.Errorf("decode payment %s: %w", paymentID, err))
	}
	d.Raw = json.RawMessage(body)
	c.logger.Info("payment fetched", "layer", "gateway", "component", "mercadopago", "payment_id", d.ID, "status", d.Status, "external_reference", d.ExternalReference)
	return &d, nil
}

type preferenceItem struct {
	ID          string          `json:"id"`
	Title       string          `json:"title"`
	Description string          `json:"description,omitempty"`
	Quantity    int             `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	CurrencyID  string          `json:"currency_id"`
}

type preferenceBody struct {
	Items             []preferenceItem `json:"items"`
	Payer             *Payer           `json:"payer,omitempty"`
	ExternalReference string           `json:"external_reference,omitempty"`
	NotificationURL   string           `json:"notification_url,omitempty"`
	BackURLs          BackURLs         `json:"back_urls"`
	AutoReturn        string           `json:"auto_return,omitempty"`
}

func (c *MercadoPagoClient) CreatePreference(ctx context.Context, req PreferenceRequest) (*Preference, error) {
	currency := req.CurrencyID
	if currency == "" {
		currency = "BRL"
	}
	autoReturn := req.AutoReturn
	if autoReturn == "" {
		autoReturn = "approved"
	}
	payload, err := json.Marshal(preferenceBody{
		Items: []preferenceItem{{
			ID:          "item_" + uuid.NewString(),
			Title:       req.Title,
			Description: req.Description,
			Quantity:    req.Quantity,
			UnitPrice:   req.UnitPrice,
			CurrencyID:  currency,
		}},
		Payer:             req.Payer,
		ExternalReference: req.ExternalReference,
		NotificationURL:   req.NotificationURL,
		BackURLs:          req.BackURLs,
		AutoReturn:        autoReturn,
	})
	if err != nil {
		return nil, errors.Join(ErrClient, err)
	}

	body, err := c.do(ctx, http.MethodPost, c.baseURL+"/checkout/preferences", payload, uuid.NewString())
	if err != nil {
		c.logger.Error("create preference", "layer", "gateway", "component", "mercadopago", "method", "CreatePreference", "external_reference", req.ExternalReference, "err", err)
		return nil, err
	}

	var p Preference
	if err := json.Unmarshal(body, &p); err != nil {
		return nil, errors.Join(ErrServer, fmt.Errorf("decode preference: %w", err))
	}
	c.logger.Info("preference created", "layer", "gateway", "component", "mercadopago", "preference_id", p.ID, "external_reference", p.ExternalReference)
	return &p, nil
}

func (c *MercadoPagoClient) do(ctx context.Context, method, endpoint string, payload []byte, idempotencyKey string) ([]byte, error) {
	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return nil, errors.Join(ErrClient, err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if idempotencyKey != "" {
		req.Header.Set("X-Idempotency-Key", idempotencyKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		if isTimeout(err) {
			return nil, errors.Join(ErrTimeout, err)
		}
		return nil, errors.Join(ErrServer, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, errors.Join(ErrServer, err)
	}

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, ErrNotFound
	case resp.StatusCode >= 500:
		return nil, fmt.Errorf("%w: status %d", ErrServer, resp.StatusCode)
	case resp.StatusCode >= 400:
		return nil, fmt.Errorf("%w: status %d: %s", ErrClient, resp.StatusCode, truncate(body, 256))
	}
	return body, nil
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
