package payment

import (
	"strconv"
	"strings"
	"time"

	"github.com/ReimaoHenrique/api-mercadolivre/internal/events"
	gateway "github.com/ReimaoHenrique/api-mercadolivre/kit/external_payment_gateway"
)

// FromDetail builds the record fields carried by a fetched gateway payment.
func FromDetail(d *gateway.PaymentDetail) *PaymentRecord {
	amount := d.TransactionAmount
	live := d.LiveMode
	rec := &PaymentRecord{
		ExternalReference: d.ExternalReference,
		PaymentID:         strconv.FormatInt(d.ID, 10),
		Status:            Status(d.Status),
		Amount:            &amount,
		Currency:          d.CurrencyID,
		PayerEmail:        d.Payer.Email,
		PayerName:         strings.TrimSpace(d.Payer.FirstName + " " + d.Payer.LastName),
		PaymentMethodID:   d.PaymentMethodID,
		PaymentTypeID:     d.PaymentTypeID,
		StatusDetail:      d.StatusDetail,
		DateCreated:       d.DateCreated,
		DateApproved:      d.DateApproved,
		LiveMode:          &live,
		RawGatewayPayload: d.Raw,
	}
	if d.ID == 0 {
		rec.PaymentID = ""
	}
	if d.CollectorID != 0 {
		rec.UserID = strconv.FormatInt(d.CollectorID, 10)
	}
	if d.Payer.Phone != nil && d.Payer.Phone.Number != "" {
		rec.PayerPhone = strings.TrimSpace(d.Payer.Phone.AreaCode + " " + d.Payer.Phone.Number)
	}
	return rec
}

// FromPreference is the pending record written when a checkout preference is created.
func FromPreference(req gateway.PreferenceRequest, now time.Time) *PaymentRecord {
	amount := req.UnitPrice.Mul(decimalFromInt(req.Quantity))
	created := now.UTC()
	rec := &PaymentRecord{
		ExternalReference: req.ExternalReference,
		Status:            StatusPending,
		Amount:            &amount,
		Currency:          req.CurrencyID,
		DateCreated:       &created,
	}
	if rec.Currency == "" {
		rec.Currency = "BRL"
	}
	if req.Payer != nil {
		rec.PayerEmail = req.Payer.Email
		rec.PayerName = strings.TrimSpace(req.Payer.FirstName + " " + req.Payer.LastName)
	}
	return rec
}

func ToStatusObservedEvent(rec *PaymentRecord, source string) events.PaymentStatusObserved {
	return events.PaymentStatusObserved{
		ExternalReference: rec.ExternalReference,
		PaymentID:         rec.PaymentID,
		Status:            string(rec.Status),
		Source:            source,
		At:                time.Now().UTC(),
	}
}

func ToPreferenceCreatedEvent(ref, preferenceID string) events.PreferenceCreated {
	return events.PreferenceCreated{ExternalReference: ref, PreferenceID: preferenceID, At: time.Now().UTC()}
}

func ToRecordDeletedEvent(ref string) events.PaymentRecordDeleted {
	return events.PaymentRecordDeleted{ExternalReference: ref, At: time.Now().UTC()}
}

func ToRecordsClearedEvent(count int) events.PaymentRecordsCleared {
	return events.PaymentRecordsCleared{Count: count, At: time.Now().UTC()}
}
