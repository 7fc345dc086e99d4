package payment

import (
	"time"

	"github.com/shopspring/decimal"
)

func ComputeStats(records []*PaymentRecord, now time.Time) Stats {
	st := Stats{
		CountByStatus:        map[string]int{},
		CountByPaymentMethod: map[string]int{},
		TotalAmount:          decimal.Zero,
		GeneratedAt:          now.UTC(),
	}
	for _, r := range records {
		st.Count++
		st.CountByStatus[string(r.Status)]++
		if r.PaymentMethodID != "" {
			st.CountByPaymentMethod[r.PaymentMethodID]++
		}
		if r.Amount != nil {
			st.TotalAmount = st.TotalAmount.Add(*r.Amount)
		}
	}
	return st
}

func decimalFromInt(n int) decimal.Decimal {
	return decimal.NewFromInt(int64(n))
}
