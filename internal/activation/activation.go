// Package activation runs the business action tied to an approved payment,
// chosen by the prefix of its external reference.
package activation

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/ReimaoHenrique/api-mercadolivre/internal/payment"
	"github.com/ReimaoHenrique/api-mercadolivre/kit/observability"
)

type Kind string

const (
	KindCourse       Kind = "course"
	KindProduct      Kind = "product"
	KindService      Kind = "service"
	KindSubscription Kind = "subscription"
	KindDefault      Kind = "default"
)

var prefixes = []struct {
	prefix string
	kind   Kind
}{
	{prefix: "COURSE_", kind: KindCourse},
	{prefix: "PRODUCT_", kind: KindProduct},
	{prefix: "SERVICE_", kind: KindService},
	{prefix: "SUBSCRIPTION_", kind: KindSubscription},
}

// Classify maps an external reference onto its activation kind.
func Classify(ref string) Kind {
	for _, p := range prefixes {
		if strings.HasPrefix(ref, p.prefix) {
			return p.kind
		}
	}
	return KindDefault
}

// Activator performs one kind of business activation.
type Activator interface {
	Activate(ctx context.Context, rec *payment.PaymentRecord) error
}

type ActivatorFunc func(ctx context.Context, rec *payment.PaymentRecord) error

func (f ActivatorFunc) Activate(ctx context.Context, rec *payment.PaymentRecord) error {
	return f(ctx, rec)
}

type Dispatcher struct {
	logger *observability.Logger

	mu         sync.RWMutex
	activators map[Kind]Activator
}

// NewDispatcher registers the logging activators for every kind.
func NewDispatcher(logger *observability.Logger) *Dispatcher {
	d := &Dispatcher{logger: logger, activators: make(map[Kind]Activator)}
	for _, k := range []Kind{KindCourse, KindProduct, KindService, KindSubscription, KindDefault} {
		d.activators[k] = loggingActivator(k, logger)
	}
	return d
}

func (d *Dispatcher) Register(kind Kind, a Activator) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.activators[kind] = a
}

// Activate runs the activator for rec's kind. A panicking activator is
// reported as an error.
func (d *Dispatcher) Activate(ctx context.Context, rec *payment.PaymentRecord) (kind Kind, err error) {
	kind = Classify(rec.ExternalReference)

	d.mu.RLock()
	a, ok := d.activators[kind]
	if !ok {
		a, ok = d.activators[KindDefault]
	}
	d.mu.RUnlock()
	if !ok {
		return kind, fmt.Errorf("activation: no activator for %s", kind)
	}

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("activation: %s activator panicked: %v", kind, r)
		}
	}()
	if err := a.Activate(ctx, rec); err != nil {
		return kind, fmt.Errorf("activation %s: %w", kind, err)
	}
	return kind, nil
}

func loggingActivator(kind Kind, logger *observability.Logger) Activator {
	msg := map[Kind]string{
		KindCourse:       "activating course access",
		KindProduct:      "enabling product download",
		KindService:      "activating service",
		KindSubscription: "activating subscription",
		KindDefault:      "applying default business logic",
	}[kind]
	return ActivatorFunc(func(ctx context.Context, rec *payment.PaymentRecord) error {
		logger.Info(msg,
			"layer", "service", "component", "activation", "kind", string(kind),
			"external_reference", rec.ExternalReference, "payment_id", rec.PaymentID, "payer_email", rec.PayerEmail)
		return nil
	})
}
