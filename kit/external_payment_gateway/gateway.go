package external_payment_gateway

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

var ErrTimeout = errors.New("gateway timeout")
var ErrServer = errors.New("gateway 5xx")
var ErrClient = errors.New("gateway 4xx")
var ErrNotFound = errors.New("gateway: payment not found")
var ErrCircuitOpen = errors.New("circuit open")

// Gateway is the subset of the Mercado Pago API the service consumes.
type Gateway interface {
	FetchPayment(ctx context.Context, paymentID string) (*PaymentDetail, error)
	CreatePreference(ctx context.Context, req PreferenceRequest) (*Preference, error)
}

type Phone struct {
	AreaCode string `json:"area_code,omitempty"`
	Number   string `json:"number,omitempty"`
}

type Payer struct {
	Email     string `json:"email,omitempty"`
	FirstName string `json:"first_name,omitempty"`
	LastName  string `json:"last_name,omitempty"`
	Phone     *Phone `json:"phone,omitempty"`
}

// PaymentDetail is the canonical payment as reported by the gateway.
type PaymentDetail struct {
	ID                int64           `json:"id"`
	Status            string          `json:"status"`
	StatusDetail      string          `json:"status_detail"`
	ExternalReference string          `json:"external_reference"`
	TransactionAmount decimal.Decimal `json:"transaction_amount"`
	CurrencyID        string          `json:"currency_id"`
	PaymentMethodID   string          `json:"payment_method_id"`
	PaymentTypeID     string          `json:"payment_type_id"`
	DateCreated       *time.Time      `json:"date_created,omitempty"`
	DateApproved      *time.Time      `json:"date_approved,omitempty"`
	DateLastUpdated   *time.Time      `json:"date_last_updated,omitempty"`
	LiveMode          bool            `json:"live_mode"`
	CollectorID       int64           `json:"collector_id"`
	Payer             Payer           `json:"payer"`

	// Raw is the response body exactly as received.
	Raw json.RawMessage `json:"-"`
}

type BackURLs struct {
	Success string `json:"success,omitempty"`
	Failure string `json:"failure,omitempty"`
	Pending string `json:"pending,omitempty"`
}

type PreferenceRequest struct {
	Title             string          `json:"title"`
	Description       string          `json:"description,omitempty"`
	Quantity          int             `json:"quantity"`
	UnitPrice         decimal.Decimal `json:"unit_price"`
	CurrencyID        string          `json:"currency_id,omitempty"`
	Payer             *Payer          `json:"payer,omitempty"`
	ExternalReference string          `json:"external_reference,omitempty"`
	NotificationURL   string          `json:"notification_url,omitempty"`
	BackURLs          BackURLs        `json:"back_urls"`
	AutoReturn        string          `json:"auto_return,omitempty"`
}

type Preference struct {
	ID                string     `json:"id"`
	InitPoint         string     `json:"init_point"`
	SandboxInitPoint  string     `json:"sandbox_init_point"`
	ExternalReference string     `json:"external_reference"`
	CollectorID       int64      `json:"collector_id"`
	DateCreated       *time.Time `json:"date_created,omitempty"`
}
