package payment

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

type Status string

const (
	StatusPending     Status = "pending"
	StatusApproved    Status = "approved"
	StatusRejected    Status = "rejected"
	StatusCancelled   Status = "cancelled"
	StatusRefunded    Status = "refunded"
	StatusInProcess   Status = "in_process"
	StatusAuthorized  Status = "authorized"
	StatusInMediation Status = "in_mediation"
	StatusChargedBack Status = "charged_back"
)

func (s Status) Known() bool {
	switch s {
	case StatusPending, StatusApproved, StatusRejected, StatusCancelled, StatusRefunded,
		StatusInProcess, StatusAuthorized, StatusInMediation, StatusChargedBack:
		return true
	}
	return false
}

func (s Status) Terminal() bool {
	switch s {
	case StatusApproved, StatusRejected, StatusCancelled, StatusRefunded:
		return true
	}
	return false
}

// ProcessingState tracks the approved-payment side effects. The boolean flags
// are sticky: once true, no merge turns them back to false.
type ProcessingState struct {
	ProcessingStartedAt     *time.Time `json:"processingStartedAt,omitempty"`
	ProcessingCompletedAt   *time.Time `json:"processingCompletedAt,omitempty"`
	BusinessActivated       bool       `json:"businessActivated,omitempty"`
	NotificationSent        bool       `json:"notificationSent,omitempty"`
	DownstreamSyncAttempted bool       `json:"downstreamSyncAttempted,omitempty"`
	DownstreamSyncSucceeded bool       `json:"downstreamSyncSucceeded,omitempty"`
	// DownstreamSyncError is last-writer-wins; a non-nil empty string clears it.
	DownstreamSyncError *string    `json:"downstreamSyncError,omitempty"`
	Attempts            int        `json:"attempts,omitempty"`
	LastAttemptAt       *time.Time `json:"lastAttemptAt,omitempty"`
}

type BusinessLogic struct {
	ReferenceType             string `json:"referenceType,omitempty"`
	ProcessedWithDefaultLogic bool   `json:"processedWithDefaultLogic,omitempty"`
}

// PaymentRecord is the persisted view of one payment attempt, keyed by
// ExternalReference. Zero values mean "not provided" when merging.
type PaymentRecord struct {
	ExternalReference string           `json:"externalReference"`
	PaymentID         string           `json:"paymentId,omitempty"`
	Status            Status           `json:"status,omitempty"`
	Amount            *decimal.Decimal `json:"amount,omitempty"`
	Currency          string           `json:"currency,omitempty"`
	PayerEmail        string           `json:"payerEmail,omitempty"`
	PayerName         string           `json:"payerName,omitempty"`
	PayerPhone        string           `json:"payerPhone,omitempty"`
	PaymentMethodID   string           `json:"paymentMethodId,omitempty"`
	PaymentTypeID     string           `json:"paymentTypeId,omitempty"`
	StatusDetail      string           `json:"statusDetail,omitempty"`
	DateCreated       *time.Time       `json:"dateCreated,omitempty"`
	DateApproved      *time.Time       `json:"dateApproved,omitempty"`
	DateLastUpdated   time.Time        `json:"dateLastUpdated"`
	LiveMode          *bool            `json:"liveMode,omitempty"`
	UserID            string           `json:"userId,omitempty"`
	RawGatewayPayload json.RawMessage  `json:"rawGatewayPayload,omitempty"`
	ProcessingState   ProcessingState  `json:"processingState"`
	BusinessLogic     BusinessLogic    `json:"businessLogic"`
}

func (r *PaymentRecord) Completed() bool {
	return r.ProcessingState.ProcessingCompletedAt != nil
}

// NeedsProcessing reports an approved record whose side effects have not all completed.
func (r *PaymentRecord) NeedsProcessing() bool {
	return r.Status == StatusApproved && !r.Completed()
}

func (r *PaymentRecord) Clone() *PaymentRecord {
	if r == nil {
		return nil
	}
	b, err := json.Marshal(r)
	if err != nil {
		cpy := *r
		return &cpy
	}
	var out PaymentRecord
	if err := json.Unmarshal(b, &out); err != nil {
		cpy := *r
		return &cpy
	}
	return &out
}

// InvalidSlot is a stored slot that could not be decoded into a record.
type InvalidSlot struct {
	Reference string `json:"reference"`
	Reason    string `json:"reason"`
}

type Listing struct {
	Records []*PaymentRecord `json:"records"`
	Invalid []InvalidSlot    `json:"invalid"`
}

type Stats struct {
	Count                int             `json:"count"`
	CountByStatus        map[string]int  `json:"countByStatus"`
	CountByPaymentMethod map[string]int  `json:"countByPaymentMethod"`
	TotalAmount          decimal.Decimal `json:"totalAmount"`
	GeneratedAt          time.Time       `json:"generatedAt"`
}
