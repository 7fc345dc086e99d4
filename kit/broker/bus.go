package broker

import (
	"context"
	"fmt"
	"sync"

	"github.com/ReimaoHenrique/api-mercadolivre/kit/observability"
)

type Event interface {
	Name() string
}

type Publisher interface {
	Publish(ctx context.Context, evt Event) []error
}

type Handler func(ctx context.Context, evt Event) error

// Bus is a synchronous in-process pub/sub. Handlers run in subscription order;
// a failing or panicking handler never stops the others.
type Bus struct {
	logger *observability.Logger

	mu       sync.RWMutex
	handlers map[string][]Handler
}

func New(logger *observability.Logger) *Bus {
	return &Bus{logger: logger, handlers: make(map[string][]Handler)}
}

func (b *Bus) Subscribe(eventName string, h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[eventName] = append(b.handlers[eventName], h)
}

func (b *Bus) SubscribeMany(eventNames []string, h Handler) {
	for _, name := range eventNames {
		b.Subscribe(name, h)
	}
}

func (b *Bus) Publish(ctx context.Context, evt Event) []error {
	b.mu.RLock()
	hs := append([]Handler(nil), b.handlers[evt.Name()]...)
	b.mu.RUnlock()

	var errs []error
	for i, h := range hs {
		if err := b.dispatch(ctx, evt, i, h); err != nil {
			errs = append(errs, err)
		}
	}
	return errs
}

func (b *Bus) dispatch(ctx context.Context, evt Event, idx int, h Handler) (err error) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("broker handler panic", "layer", "broker", "event", evt.Name(), "handler_index", idx, "panic", r)
			err = fmt.Errorf("broker: handler %d panicked on %s: %v", idx, evt.Name(), r)
		}
	}()
	if err = h(ctx, evt); err != nil {
		b.logger.Warn("broker handler error", "layer", "broker", "event", evt.Name(), "handler_index", idx, "err", err)
	}
	return err
}
