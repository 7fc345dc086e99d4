package handlers

import (
	"context"

	"github.com/ReimaoHenrique/api-mercadolivre/internal/audit"
	"github.com/ReimaoHenrique/api-mercadolivre/kit/broker"
)

type AuditorContract interface {
	Record(ctx context.Context, evt broker.Event) (audit.Entry, error)
}

type MetricsContract interface {
	EventPublished(name string)
}

// Subscriber is the part of the bus the handlers attach to.
type Subscriber interface {
	Subscribe(eventName string, h broker.Handler)
}
