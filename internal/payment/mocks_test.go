package payment

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/ReimaoHenrique/api-mercadolivre/kit/broker"
	"github.com/ReimaoHenrique/api-mercadolivre/kit/db"
	gateway "github.com/ReimaoHenrique/api-mercadolivre/kit/external_payment_gateway"
)

type RepositoryMock struct {
	mock.Mock
	RepositoryContract
}

func (m *RepositoryMock) Upsert(ctx context.Context, rec *PaymentRecord) (*PaymentRecord, error) {
	args := m.Called(ctx, rec)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*PaymentRecord), args.Error(1)
}

func (m *RepositoryMock) Get(ctx context.Context, ref string) (*PaymentRecord, error) {
	args := m.Called(ctx, ref)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*PaymentRecord), args.Error(1)
}

func (m *RepositoryMock) ListAll(ctx context.Context) (*Listing, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*Listing), args.Error(1)
}

func (m *RepositoryMock) Delete(ctx context.Context, ref string) (bool, error) {
	args := m.Called(ctx, ref)
	return args.Bool(0), args.Error(1)
}

func (m *RepositoryMock) Clear(ctx context.Context) (int, error) {
	args := m.Called(ctx)
	return args.Int(0), args.Error(1)
}

func (m *RepositoryMock) Stats(ctx context.Context) (Stats, error) {
	args := m.Called(ctx)
	return args.Get(0).(Stats), args.Error(1)
}

type PublisherMock struct {
	mock.Mock
	PublisherContract
}

func (m *PublisherMock) Publish(ctx context.Context, evt broker.Event) []error {
	args := m.Called(ctx, evt)
	if args.Get(0) == nil {
		return nil
	}
	return args.Get(0).([]error)
}

type HistoryMock struct {
	mock.Mock
	HistoryContract
}

func (m *HistoryMock) Append(ctx context.Context, streamID string, evt broker.Event) (db.Entry, error) {
	args := m.Called(ctx, streamID, evt)
	return args.Get(0).(db.Entry), args.Error(1)
}

func (m *HistoryMock) Load(ctx context.Context, streamID string) []db.Entry {
	args := m.Called(ctx, streamID)
	return args.Get(0).([]db.Entry)
}

type PreferenceCreatorMock struct {
	mock.Mock
	PreferenceCreatorContract
}

func (m *PreferenceCreatorMock) CreatePreference(ctx context.Context, req gateway.PreferenceRequest) (*gateway.Preference, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*gateway.Preference), args.Error(1)
}
