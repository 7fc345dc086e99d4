package processing

import (
	"context"
	"time"

	"github.com/ReimaoHenrique/api-mercadolivre/internal/dedup"
	"github.com/ReimaoHenrique/api-mercadolivre/internal/events"
	"github.com/ReimaoHenrique/api-mercadolivre/internal/payment"
	"github.com/ReimaoHenrique/api-mercadolivre/kit/broker"
	gateway "github.com/ReimaoHenrique/api-mercadolivre/kit/external_payment_gateway"
	"github.com/ReimaoHenrique/api-mercadolivre/kit/observability"
)

// Route actions.
const (
	ActionProcessed        = "processed"
	ActionAlreadyProcessed = "already_processed"
	ActionInFlight         = "in_flight"
	ActionStored           = "stored"
	ActionIgnored          = "ignored"
)

type RouteResult struct {
	Reference string
	Status    payment.Status
	Action    string
	Outcome   Outcome
}

type routeFunc func(ctx context.Context, rec *payment.PaymentRecord, source string) (RouteResult, error)

type Router struct {
	store     payment.RepositoryContract
	claimer   dedup.Claimer
	processor ProcessorContract
	history   payment.HistoryContract
	bus       payment.PublisherContract
	metrics   *observability.Metrics
	logger    *observability.Logger
	claimTTL  time.Duration
	now       func() time.Time

	routes map[payment.Status]routeFunc
}

type RouterDeps struct {
	Store     payment.RepositoryContract
	Claimer   dedup.Claimer
	Processor ProcessorContract
	History   payment.HistoryContract
	Bus       payment.PublisherContract
	Metrics   *observability.Metrics
	Logger    *observability.Logger
	// ClaimTTL defaults to dedup.DefaultTTL.
	ClaimTTL time.Duration
}

func NewRouter(deps RouterDeps) *Router {
	if deps.ClaimTTL <= 0 {
		deps.ClaimTTL = dedup.DefaultTTL
	}
	r := &Router{
		store:     deps.Store,
		claimer:   deps.Claimer,
		processor: deps.Processor,
		history:   deps.History,
		bus:       deps.Bus,
		metrics:   deps.Metrics,
		logger:    deps.Logger,
		claimTTL:  deps.ClaimTTL,
		now:       time.Now,
	}
	r.routes = map[payment.Status]routeFunc{
		payment.StatusApproved:    r.approved,
		payment.StatusPending:     r.storeWith("payment pending"),
		payment.StatusRejected:    r.storeWith("payment rejected"),
		payment.StatusCancelled:   r.storeWith("payment cancelled"),
		payment.StatusRefunded:    r.storeWith("payment refunded"),
		payment.StatusInProcess:   r.storeWith("payment status updated"),
		payment.StatusAuthorized:  r.storeWith("payment status updated"),
		payment.StatusInMediation: r.storeWith("payment status updated"),
		payment.StatusChargedBack: r.storeWith("payment status updated"),
	}
	return r
}

// Route records a fetched payment and, for approved payments, triggers
// processing unless another trigger already holds the claim. Unknown
// statuses and details without a reference are logged and skipped.
func (r *Router) Route(ctx context.Context, detail *gateway.PaymentDetail, source string) (RouteResult, error) {
	rec := payment.FromDetail(detail)
	res := RouteResult{Reference: rec.ExternalReference, Status: rec.Status, Action: ActionIgnored}

	if rec.ExternalReference == "" {
		r.logger.Warn("payment without external reference, skipping", "layer", "service", "component", "router", "payment_id", rec.PaymentID, "status", string(rec.Status))
		return res, nil
	}
	route, ok := r.routes[rec.Status]
	if !ok {
		r.logger.Warn("unknown payment status, ignoring", "layer", "service", "component", "router", "external_reference", rec.ExternalReference, "status", string(rec.Status))
		return res, nil
	}
	return route(ctx, rec, source)
}

func (r *Router) approved(ctx context.Context, rec *payment.PaymentRecord, source string) (RouteResult, error) {
	ref := rec.ExternalReference
	res := RouteResult{Reference: ref, Status: rec.Status}

	token, ok := r.claimer.TryClaim(ctx, ref, r.claimTTL)
	if !ok {
		stored, err := r.store.Upsert(ctx, rec)
		if err != nil {
			r.logger.Error("store duplicate notification failed", "layer", "service", "component", "router", "external_reference", ref, "err", err)
			return res, err
		}
		r.metrics.DuplicateSuppressed(source)
		r.publish(ctx, events.DuplicateSuppressed{Key: ref, Source: source, At: r.now()})
		if stored.Completed() {
			r.logger.Info("already processed", "layer", "service", "component", "router", "external_reference", ref, "source", source)
			res.Action = ActionAlreadyProcessed
		} else {
			r.logger.Info("processing in flight", "layer", "service", "component", "router", "external_reference", ref, "source", source)
			res.Action = ActionInFlight
		}
		return res, nil
	}

	// The gateway detail is the freshest view of the payment; store it first
	// so the processor decides on what is persisted, not on this copy.
	if _, err := r.store.Upsert(ctx, rec); err != nil {
		r.logger.Error("store approved payment failed", "layer", "service", "component", "router", "external_reference", ref, "err", err)
		r.claimer.Release(ctx, ref, token)
		res.Action = string(OutcomeFailed)
		res.Outcome = OutcomeFailed
		return res, err
	}

	r.emit(ctx, ref, payment.ToStatusObservedEvent(rec, source))
	result, err := r.processor.ProcessApproved(ctx, rec, Options{Source: source})
	res.Outcome = result.Outcome
	if err != nil {
		// let the next trigger retry straight away
		r.claimer.Release(ctx, ref, token)
		res.Action = string(result.Outcome)
		return res, err
	}
	if result.Outcome == OutcomeAlreadyProcessed {
		res.Action = ActionAlreadyProcessed
	} else {
		res.Action = ActionProcessed
	}
	return res, nil
}

func (r *Router) storeWith(msg string) routeFunc {
	return func(ctx context.Context, rec *payment.PaymentRecord, source string) (RouteResult, error) {
		res := RouteResult{Reference: rec.ExternalReference, Status: rec.Status}
		if _, err := r.store.Upsert(ctx, rec); err != nil {
			r.logger.Error("store payment failed", "layer", "service", "component", "router", "external_reference", rec.ExternalReference, "status", string(rec.Status), "err", err)
			return res, err
		}
		r.logger.Info(msg, "layer", "service", "component", "router", "external_reference", rec.ExternalReference, "payment_id", rec.PaymentID, "status", string(rec.Status), "status_detail", rec.StatusDetail, "source", source)
		r.emit(ctx, rec.ExternalReference, payment.ToStatusObservedEvent(rec, source))
		res.Action = ActionStored
		return res, nil
	}
}

func (r *Router) emit(ctx context.Context, ref string, evt broker.Event) {
	if r.history != nil {
		if _, err := r.history.Append(ctx, ref, evt); err != nil {
			r.logger.Warn("history append failed", "layer", "service", "component", "router", "external_reference", ref, "event", evt.Name(), "err", err)
		}
	}
	r.publish(ctx, evt)
}

func (r *Router) publish(ctx context.Context, evt broker.Event) {
	if r.bus != nil {
		r.bus.Publish(ctx, evt)
	}
}
