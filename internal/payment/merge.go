package payment

import "time"

// Merge folds incoming onto prev and returns a new record. Empty incoming
// fields keep the stored value, overlapping scalars take the incoming value,
// processing flags are sticky-true and ProcessingStartedAt keeps the earliest
// value. DateLastUpdated is left to the store.
func Merge(prev, incoming *PaymentRecord) *PaymentRecord {
	if prev == nil {
		out := incoming.Clone()
		if out.ProcessingState.DownstreamSyncError != nil && *out.ProcessingState.DownstreamSyncError == "" {
			out.ProcessingState.DownstreamSyncError = nil
		}
		return out
	}
	out := prev.Clone()
	in := incoming

	if in.ExternalReference != "" {
		out.ExternalReference = in.ExternalReference
	}
	mergeString(&out.PaymentID, in.PaymentID)
	if in.Status != "" {
		out.Status = in.Status
	}
	if in.Amount != nil {
		a := *in.Amount
		out.Amount = &a
	}
	mergeString(&out.Currency, in.Currency)
	mergeString(&out.PayerEmail, in.PayerEmail)
	mergeString(&out.PayerName, in.PayerName)
	mergeString(&out.PayerPhone, in.PayerPhone)
	mergeString(&out.PaymentMethodID, in.PaymentMethodID)
	mergeString(&out.PaymentTypeID, in.PaymentTypeID)
	mergeString(&out.StatusDetail, in.StatusDetail)
	mergeTime(&out.DateCreated, in.DateCreated)
	mergeTime(&out.DateApproved, in.DateApproved)
	if in.LiveMode != nil {
		v := *in.LiveMode
		out.LiveMode = &v
	}
	mergeString(&out.UserID, in.UserID)
	if len(in.RawGatewayPayload) > 0 {
		out.RawGatewayPayload = append([]byte(nil), in.RawGatewayPayload...)
	}

	mergeProcessing(&out.ProcessingState, &in.ProcessingState)

	mergeString(&out.BusinessLogic.ReferenceType, in.BusinessLogic.ReferenceType)
	out.BusinessLogic.ProcessedWithDefaultLogic = out.BusinessLogic.ProcessedWithDefaultLogic || in.BusinessLogic.ProcessedWithDefaultLogic

	return out
}

func mergeProcessing(dst, in *ProcessingState) {
	if in.ProcessingStartedAt != nil {
		if dst.ProcessingStartedAt == nil || in.ProcessingStartedAt.Before(*dst.ProcessingStartedAt) {
			t := *in.ProcessingStartedAt
			dst.ProcessingStartedAt = &t
		}
	}
	mergeTime(&dst.ProcessingCompletedAt, in.ProcessingCompletedAt)
	mergeTime(&dst.LastAttemptAt, in.LastAttemptAt)

	dst.BusinessActivated = dst.BusinessActivated || in.BusinessActivated
	dst.NotificationSent = dst.NotificationSent || in.NotificationSent
	dst.DownstreamSyncAttempted = dst.DownstreamSyncAttempted || in.DownstreamSyncAttempted
	dst.DownstreamSyncSucceeded = dst.DownstreamSyncSucceeded || in.DownstreamSyncSucceeded

	if in.DownstreamSyncError != nil {
		if *in.DownstreamSyncError == "" {
			dst.DownstreamSyncError = nil
		} else {
			e := *in.DownstreamSyncError
			dst.DownstreamSyncError = &e
		}
	}
	if in.Attempts > dst.Attempts {
		dst.Attempts = in.Attempts
	}
}

func mergeString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func mergeTime(dst **time.Time, v *time.Time) {
	if v != nil {
		t := *v
		*dst = &t
	}
}

// nextLastUpdated keeps DateLastUpdated monotonic for a key even if the clock steps back.
func nextLastUpdated(now, prev time.Time) time.Time {
	if prev.After(now) {
		return prev
	}
	return now
}
