package payment

import (
	"context"
	"errors"
	"time"

	"github.com/ReimaoHenrique/api-mercadolivre/kit/broker"
	"github.com/ReimaoHenrique/api-mercadolivre/kit/db"
	gateway "github.com/ReimaoHenrique/api-mercadolivre/kit/external_payment_gateway"
	"github.com/ReimaoHenrique/api-mercadolivre/kit/observability"
)

// PreferenceDefaults fills the checkout URLs a caller leaves empty.
type PreferenceDefaults struct {
	NotificationURL string
	SuccessURL      string
	FailureURL      string
	PendingURL      string
}

type Service struct {
	repository RepositoryContract
	history    HistoryContract
	bus        PublisherContract
	gateway    PreferenceCreatorContract
	defaults   PreferenceDefaults
	logger     *observability.Logger
}

func NewService(repo RepositoryContract, history HistoryContract, bus PublisherContract, gw PreferenceCreatorContract, defaults PreferenceDefaults, logger *observability.Logger) *Service {
	return &Service{
		repository: repo,
		history:    history,
		bus:        bus,
		gateway:    gw,
		defaults:   defaults,
		logger:     logger,
	}
}

func (s *Service) Get(ctx context.Context, ref string) (*PaymentRecord, error) {
	return s.repository.Get(ctx, ref)
}

func (s *Service) List(ctx context.Context) (*Listing, error) {
	listing, err := s.repository.ListAll(ctx)
	if err != nil {
		return nil, err
	}
	for _, inv := range listing.Invalid {
		s.logger.Warn("malformed payment record", "layer", "service", "component", "payment", "method", "List", "external_reference", inv.Reference, "reason", inv.Reason)
	}
	return listing, nil
}

func (s *Service) Delete(ctx context.Context, ref string) (bool, error) {
	deleted, err := s.repository.Delete(ctx, ref)
	if err != nil {
		s.logger.Error("delete failed", "layer", "service", "component", "payment", "method", "Delete", "external_reference", ref, "err", err)
		return false, err
	}
	if deleted {
		s.emit(ctx, ref, ToRecordDeletedEvent(ref))
	}
	return deleted, nil
}

func (s *Service) Clear(ctx context.Context) (int, error) {
	n, err := s.repository.Clear(ctx)
	if err != nil {
		s.logger.Error("clear failed", "layer", "service", "component", "payment", "method", "Clear", "removed", n, "err", err)
		return n, err
	}
	s.logger.Info("payment records cleared", "layer", "service", "component", "payment", "removed", n)
	if s.bus != nil {
		s.bus.Publish(ctx, ToRecordsClearedEvent(n))
	}
	return n, nil
}

func (s *Service) Stats(ctx context.Context) (Stats, error) {
	return s.repository.Stats(ctx)
}

func (s *Service) History(ctx context.Context, ref string) []db.Entry {
	if s.history == nil {
		return []db.Entry{}
	}
	return s.history.Load(ctx, ref)
}

// CreatePreference opens a checkout with the gateway and stores a pending record for it.
func (s *Service) CreatePreference(ctx context.Context, req gateway.PreferenceRequest) (*gateway.Preference, error) {
	if req.Title == "" || req.Quantity <= 0 || !req.UnitPrice.IsPositive() {
		return nil, errors.Join(db.ErrInvalid, errors.New("title, positive quantity and positive unit_price are required"))
	}
	if req.ExternalReference != "" {
		if err := ValidateReference(req.ExternalReference); err != nil {
			return nil, err
		}
	}
	if s.gateway == nil {
		return nil, errors.Join(db.ErrInternal, errors.New("gateway not configured"))
	}

	if req.NotificationURL == "" {
		req.NotificationURL = s.defaults.NotificationURL
	}
	if req.BackURLs.Success == "" {
		req.BackURLs.Success = s.defaults.SuccessURL
	}
	if req.BackURLs.Failure == "" {
		req.BackURLs.Failure = s.defaults.FailureURL
	}
	if req.BackURLs.Pending == "" {
		req.BackURLs.Pending = s.defaults.PendingURL
	}

	pref, err := s.gateway.CreatePreference(ctx, req)
	if err != nil {
		s.logger.Error("create preference failed", "layer", "service", "component", "payment", "method", "CreatePreference", "external_reference", req.ExternalReference, "err", err)
		return nil, err
	}

	if req.ExternalReference != "" {
		rec := FromPreference(req, time.Now())
		if prev, err := s.repository.Get(ctx, req.ExternalReference); err == nil && prev.Status != "" {
			rec.Status = ""
		}
		if _, err := s.repository.Upsert(ctx, rec); err != nil {
			s.logger.Error("store pending record failed", "layer", "service", "component", "payment", "method", "CreatePreference", "external_reference", req.ExternalReference, "err", err)
			return pref, err
		}
		s.emit(ctx, req.ExternalReference, ToPreferenceCreatedEvent(req.ExternalReference, pref.ID))
	}
	return pref, nil
}

func (s *Service) emit(ctx context.Context, ref string, evt broker.Event) {
	if s.history != nil {
		if _, err := s.history.Append(ctx, ref, evt); err != nil {
			s.logger.Warn("history append failed", "layer", "service", "component", "payment", "external_reference", ref, "event", evt.Name(), "err", err)
		}
	}
	if s.bus != nil {
		s.bus.Publish(ctx, evt)
	}
}
