// Package webhook turns gateway notifications into routed payment updates.
package webhook

import (
	"context"
	"errors"
	"time"

	"github.com/ReimaoHenrique/api-mercadolivre/internal/events"
	"github.com/ReimaoHenrique/api-mercadolivre/internal/processing"
	"github.com/ReimaoHenrique/api-mercadolivre/kit/broker"
	gateway "github.com/ReimaoHenrique/api-mercadolivre/kit/external_payment_gateway"
	"github.com/ReimaoHenrique/api-mercadolivre/kit/observability"
)

const DefaultFetchTimeout = 5 * time.Second

var ErrUnauthorized = errors.New("webhook: invalid signature")

type Status string

const (
	StatusIgnored      Status = "ignored"
	StatusSuccess      Status = "success"
	StatusUnauthorized Status = "unauthorized"
)

type Result struct {
	Status  Status
	DataID  string
	Message string
}

type VerifierContract interface {
	Verify(header, requestID, eventID string, rawBody []byte) error
}

type FetcherContract interface {
	FetchPayment(ctx context.Context, id string) (*gateway.PaymentDetail, error)
}

type RouterContract interface {
	Route(ctx context.Context, detail *gateway.PaymentDetail, source string) (processing.RouteResult, error)
}

type Service struct {
	verifier     VerifierContract
	fetcher      FetcherContract
	router       RouterContract
	bus          broker.Publisher
	metrics      *observability.Metrics
	logger       *observability.Logger
	fetchTimeout time.Duration
	now          func() time.Time
}

type Deps struct {
	Verifier VerifierContract
	Fetcher  FetcherContract
	Router   RouterContract
	Bus      broker.Publisher
	Metrics  *observability.Metrics
	Logger   *observability.Logger
	// FetchTimeout defaults to DefaultFetchTimeout.
	FetchTimeout time.Duration
}

func NewService(deps Deps) *Service {
	if deps.FetchTimeout <= 0 {
		deps.FetchTimeout = DefaultFetchTimeout
	}
	return &Service{
		verifier:     deps.Verifier,
		fetcher:      deps.Fetcher,
		router:       deps.Router,
		bus:          deps.Bus,
		metrics:      deps.Metrics,
		logger:       deps.Logger,
		fetchTimeout: deps.FetchTimeout,
		now:          time.Now,
	}
}

// Handle verifies and routes one notification. Anything after a valid
// signature reports StatusSuccess so the gateway stops redelivering; the
// error, if any, is for logging.
func (s *Service) Handle(ctx context.Context, req Request) (Result, error) {
	dataID := req.DataID()
	log := s.logger.With("layer", "service", "component", "webhook", "method", "Handle", "request_id", req.RequestID, "data_id", dataID, "type", req.Body.Type)

	if req.Body.Type != "payment" || dataID == "" {
		log.Info("notification ignored", "action", req.Body.Action)
		s.metrics.WebhookReceived(string(StatusIgnored))
		return Result{Status: StatusIgnored, DataID: dataID, Message: "notification ignored"}, nil
	}

	if err := s.verifier.Verify(req.Signature, req.RequestID, dataID, req.RawBody); err != nil {
		log.Warn("notification rejected", "err", err)
		s.metrics.WebhookReceived(string(StatusUnauthorized))
		s.publish(ctx, events.WebhookRejected{RequestID: req.RequestID, DataID: dataID, Reason: err.Error(), At: s.now()})
		return Result{Status: StatusUnauthorized, DataID: dataID, Message: "invalid signature"}, errors.Join(ErrUnauthorized, err)
	}

	s.metrics.WebhookReceived(string(StatusSuccess))
	s.publish(ctx, events.WebhookReceived{
		NotificationID: req.Body.ID.String(),
		RequestID:      req.RequestID,
		Type:           req.Body.Type,
		Action:         req.Body.Action,
		DataID:         dataID,
		LiveMode:       req.Body.LiveMode,
		At:             s.now(),
	})

	fctx, cancel := context.WithTimeout(ctx, s.fetchTimeout)
	detail, err := s.fetcher.FetchPayment(fctx, dataID)
	cancel()
	if err != nil {
		log.Error("fetch payment failed", "err", err)
		return Result{Status: StatusSuccess, DataID: dataID, Message: "payment fetch failed"}, err
	}

	res, err := s.router.Route(ctx, detail, events.SourceWebhook)
	if err != nil {
		log.Error("route payment failed", "external_reference", res.Reference, "status", string(res.Status), "err", err)
		return Result{Status: StatusSuccess, DataID: dataID, Message: "payment processing failed"}, err
	}
	log.Info("notification handled", "external_reference", res.Reference, "status", string(res.Status), "action", res.Action)
	return Result{Status: StatusSuccess, DataID: dataID, Message: res.Action}, nil
}

func (s *Service) publish(ctx context.Context, evt broker.Event) {
	if s.bus != nil {
		s.bus.Publish(ctx, evt)
	}
}
