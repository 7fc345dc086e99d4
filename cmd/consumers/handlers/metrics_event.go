package handlers

import (
	"context"

	"github.com/ReimaoHenrique/api-mercadolivre/kit/broker"
)

type MetricsEvent struct {
	m MetricsContract
}

func NewMetricsEvent(m MetricsContract) *MetricsEvent {
	return &MetricsEvent{m: m}
}

func (h *MetricsEvent) HandleAny(ctx context.Context, evt broker.Event) error {
	if h.m == nil {
		return nil
	}
	h.m.EventPublished(evt.Name())
	return nil
}
