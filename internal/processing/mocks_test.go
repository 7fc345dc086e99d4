package processing

import (
	"context"
	"sync/atomic"

	"github.com/stretchr/testify/mock"

	"github.com/ReimaoHenrique/api-mercadolivre/internal/activation"
	"github.com/ReimaoHenrique/api-mercadolivre/internal/payment"
)

type StoreMock struct {
	mock.Mock
	payment.RepositoryContract
}

func (m *StoreMock) Upsert(ctx context.Context, rec *payment.PaymentRecord) (*payment.PaymentRecord, error) {
	args := m.Called(ctx, rec)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*payment.PaymentRecord), args.Error(1)
}

func (m *StoreMock) Get(ctx context.Context, ref string) (*payment.PaymentRecord, error) {
	args := m.Called(ctx, ref)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*payment.PaymentRecord), args.Error(1)
}

type ActivatorMock struct {
	mock.Mock
	ActivatorContract
}

func (m *ActivatorMock) Activate(ctx context.Context, rec *payment.PaymentRecord) (activation.Kind, error) {
	args := m.Called(ctx, rec)
	return args.Get(0).(activation.Kind), args.Error(1)
}

type SyncerMock struct {
	mock.Mock
	SyncerContract
}

func (m *SyncerMock) SyncStatus(ctx context.Context, ref string, status payment.Status) (bool, error) {
	args := m.Called(ctx, ref, status)
	return args.Bool(0), args.Error(1)
}

type NotifierMock struct {
	mock.Mock
	NotifierContract
}

func (m *NotifierMock) SendConfirmation(ctx context.Context, rec *payment.PaymentRecord) error {
	args := m.Called(ctx, rec)
	return args.Error(0)
}

type ProcessorMock struct {
	mock.Mock
	ProcessorContract
}

func (m *ProcessorMock) ProcessApproved(ctx context.Context, rec *payment.PaymentRecord, opts Options) (Result, error) {
	args := m.Called(ctx, rec, opts)
	return args.Get(0).(Result), args.Error(1)
}

// counters records side effects without any expectations, for concurrent tests.
type counters struct {
	activations   atomic.Int32
	syncs         atomic.Int32
	notifications atomic.Int32
}

func (c *counters) Activate(ctx context.Context, rec *payment.PaymentRecord) (activation.Kind, error) {
	c.activations.Add(1)
	return activation.Classify(rec.ExternalReference), nil
}

func (c *counters) SyncStatus(ctx context.Context, ref string, status payment.Status) (bool, error) {
	c.syncs.Add(1)
	return true, nil
}

func (c *counters) SendConfirmation(ctx context.Context, rec *payment.PaymentRecord) error {
	c.notifications.Add(1)
	return nil
}
