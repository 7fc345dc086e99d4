package handlers

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/ReimaoHenrique/api-mercadolivre/internal/health"
	"github.com/ReimaoHenrique/api-mercadolivre/internal/payment"
	"github.com/ReimaoHenrique/api-mercadolivre/internal/processing"
	"github.com/ReimaoHenrique/api-mercadolivre/internal/recovery"
	"github.com/ReimaoHenrique/api-mercadolivre/internal/webhook"
	"github.com/ReimaoHenrique/api-mercadolivre/kit/db"
	gateway "github.com/ReimaoHenrique/api-mercadolivre/kit/external_payment_gateway"
)

type paymentServiceMock struct{ mock.Mock }

func (m *paymentServiceMock) Get(ctx context.Context, ref string) (*payment.PaymentRecord, error) {
	args := m.Called(ctx, ref)
	p, _ := args.Get(0).(*payment.PaymentRecord)
	return p, args.Error(1)
}

func (m *paymentServiceMock) List(ctx context.Context) (*payment.Listing, error) {
	args := m.Called(ctx)
	l, _ := args.Get(0).(*payment.Listing)
	return l, args.Error(1)
}

func (m *paymentServiceMock) Delete(ctx context.Context, ref string) (bool, error) {
	args := m.Called(ctx, ref)
	return args.Bool(0), args.Error(1)
}

func (m *paymentServiceMock) Clear(ctx context.Context) (int, error) {
	args := m.Called(ctx)
	return args.Int(0), args.Error(1)
}

func (m *paymentServiceMock) Stats(ctx context.Context) (payment.Stats, error) {
	args := m.Called(ctx)
	return args.Get(0).(payment.Stats), args.Error(1)
}

func (m *paymentServiceMock) History(ctx context.Context, ref string) []db.Entry {
	args := m.Called(ctx, ref)
	e, _ := args.Get(0).([]db.Entry)
	return e
}

func (m *paymentServiceMock) CreatePreference(ctx context.Context, req gateway.PreferenceRequest) (*gateway.Preference, error) {
	args := m.Called(ctx, req)
	p, _ := args.Get(0).(*gateway.Preference)
	return p, args.Error(1)
}

type webhookServiceMock struct{ mock.Mock }

func (m *webhookServiceMock) Handle(ctx context.Context, req webhook.Request) (webhook.Result, error) {
	args := m.Called(ctx, req)
	return args.Get(0).(webhook.Result), args.Error(1)
}

type reprocessMock struct{ mock.Mock }

func (m *reprocessMock) Reprocess(ctx context.Context, ref string, force bool) (processing.Result, error) {
	args := m.Called(ctx, ref, force)
	return args.Get(0).(processing.Result), args.Error(1)
}

func (m *reprocessMock) ReprocessAll(ctx context.Context) (recovery.Summary, error) {
	args := m.Called(ctx)
	return args.Get(0).(recovery.Summary), args.Error(1)
}

type watcherMock struct{ mock.Mock }

func (m *watcherMock) Status() recovery.Status {
	return m.Called().Get(0).(recovery.Status)
}

type healthMock struct{ mock.Mock }

func (m *healthMock) Check(ctx context.Context) health.Result {
	return m.Called(ctx).Get(0).(health.Result)
}
