package handlers

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/ReimaoHenrique/api-mercadolivre/internal/audit"
	"github.com/ReimaoHenrique/api-mercadolivre/kit/broker"
)

type AuditorMock struct {
	mock.Mock
	AuditorContract
}

func (m *AuditorMock) Record(ctx context.Context, evt broker.Event) (audit.Entry, error) {
	args := m.Called(ctx, evt)
	return args.Get(0).(audit.Entry), args.Error(1)
}

type MetricsMock struct {
	mock.Mock
	MetricsContract
}

func (m *MetricsMock) EventPublished(name string) {
	m.Called(name)
}
