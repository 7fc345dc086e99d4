package external_payment_gateway

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

// FakeGateway serves payment details from memory. It backs local development
// and tests.
type FakeGateway struct {
	mu       sync.RWMutex
	payments map[string]PaymentDetail
	errs     map[string]error
	delay    time.Duration

	fetches atomic.Int64
	seq     atomic.Int64
}

func NewFakeGateway() *FakeGateway {
	return &FakeGateway{payments: make(map[string]PaymentDetail), errs: make(map[string]error)}
}

func (g *FakeGateway) Put(d PaymentDetail) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.payments[fmt.Sprint(d.ID)] = d
}

// FailWith makes FetchPayment for paymentID return err until cleared with nil.
func (g *FakeGateway) FailWith(paymentID string, err error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err == nil {
		delete(g.errs, paymentID)
		return
	}
	g.errs[paymentID] = err
}

func (g *FakeGateway) SetDelay(d time.Duration) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.delay = d
}

func (g *FakeGateway) Fetches() int64 { return g.fetches.Load() }

func (g *FakeGateway) FetchPayment(ctx context.Context, paymentID string) (*PaymentDetail, error) {
	g.fetches.Add(1)

	g.mu.RLock()
	d, ok := g.payments[paymentID]
	err := g.errs[paymentID]
	delay := g.delay
	g.mu.RUnlock()

	if delay > 0 {
		select {
		case <-ctx.Done():
			return nil, ErrTimeout
		case <-time.After(delay):
		}
	}
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrNotFound
	}
	return &d, nil
}

func (g *FakeGateway) CreatePreference(ctx context.Context, req PreferenceRequest) (*Preference, error) {
	if req.Title == "" || req.Quantity <= 0 {
		return nil, fmt.Errorf("%w: title and quantity are required", ErrClient)
	}
	n := g.seq.Add(1)
	id := fmt.Sprintf("pref_%d", n)
	now := time.Now().UTC()
	return &Preference{
		ID:                id,
		InitPoint:         "https://www.mercadopago.com/checkout/v1/redirect?pref_id=" + id,
		SandboxInitPoint:  "https://sandbox.mercadopago.com/checkout/v1/redirect?pref_id=" + id,
		ExternalReference: req.ExternalReference,
		DateCreated:       &now,
	}, nil
}
