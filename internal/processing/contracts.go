package processing

import (
	"context"

	"github.com/ReimaoHenrique/api-mercadolivre/internal/activation"
	"github.com/ReimaoHenrique/api-mercadolivre/internal/payment"
)

// ActivatorContract runs the business activation for an approved record.
type ActivatorContract interface {
	Activate(ctx context.Context, rec *payment.PaymentRecord) (activation.Kind, error)
}

// SyncerContract pushes a status to the downstream events API.
type SyncerContract interface {
	SyncStatus(ctx context.Context, ref string, status payment.Status) (bool, error)
}

// NotifierContract sends the payer confirmation.
type NotifierContract interface {
	SendConfirmation(ctx context.Context, rec *payment.PaymentRecord) error
}

// ProcessorContract is what the router and the reconciliation paths call.
type ProcessorContract interface {
	ProcessApproved(ctx context.Context, rec *payment.PaymentRecord, opts Options) (Result, error)
}
