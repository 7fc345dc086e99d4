package recovery

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/ReimaoHenrique/api-mercadolivre/internal/activation"
	"github.com/ReimaoHenrique/api-mercadolivre/internal/payment"
	"github.com/ReimaoHenrique/api-mercadolivre/internal/processing"
)

type ProcessorMock struct {
	mock.Mock
	processing.ProcessorContract
}

func (m *ProcessorMock) ProcessApproved(ctx context.Context, rec *payment.PaymentRecord, opts processing.Options) (processing.Result, error) {
	args := m.Called(ctx, rec, opts)
	return args.Get(0).(processing.Result), args.Error(1)
}

type DeadLetterMock struct {
	mock.Mock
	DeadLetterContract
}

func (m *DeadLetterMock) SendToDLQ(ctx context.Context, ref string, reason string, payload any) {
	m.Called(ctx, ref, reason, payload)
}

type ListerMock struct {
	mock.Mock
	Lister
}

func (m *ListerMock) ListAll(ctx context.Context) (*payment.Listing, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*payment.Listing), args.Error(1)
}

// sideEffects counts activations, syncs and notifications.
type sideEffects struct {
	activations   atomic.Int32
	syncs         atomic.Int32
	notifications atomic.Int32
}

func (s *sideEffects) Activate(ctx context.Context, rec *payment.PaymentRecord) (activation.Kind, error) {
	s.activations.Add(1)
	return activation.Classify(rec.ExternalReference), nil
}

func (s *sideEffects) SyncStatus(ctx context.Context, ref string, status payment.Status) (bool, error) {
	s.syncs.Add(1)
	return true, nil
}

func (s *sideEffects) SendConfirmation(ctx context.Context, rec *payment.PaymentRecord) error {
	s.notifications.Add(1)
	return nil
}

// chanSource emits whatever is sent on ch.
type chanSource struct {
	ch chan Change
}

func newChanSource() *chanSource { return &chanSource{ch: make(chan Change)} }

func (s *chanSource) Name() string     { return "chan" }
func (s *chanSource) Location() string { return "memory" }

func (s *chanSource) Run(ctx context.Context, emit func(Change)) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case c := <-s.ch:
			emit(c)
		}
	}
}

func noSleep(ctx context.Context, d time.Duration) error { return ctx.Err() }
