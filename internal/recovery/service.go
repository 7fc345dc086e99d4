package recovery

import (
	"context"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/ReimaoHenrique/api-mercadolivre/internal/events"
	"github.com/ReimaoHenrique/api-mercadolivre/internal/payment"
	"github.com/ReimaoHenrique/api-mercadolivre/internal/processing"
	"github.com/ReimaoHenrique/api-mercadolivre/kit/observability"
)

const DefaultConcurrency = 4

type Summary struct {
	Total            int               `json:"total"`
	Processed        int               `json:"processed"`
	AlreadyProcessed int               `json:"alreadyProcessed"`
	Failed           int               `json:"failed"`
	Failures         map[string]string `json:"failures"`
}

// Service reprocesses stored records on demand, bypassing deduplication.
type Service struct {
	store       payment.RepositoryContract
	processor   processing.ProcessorContract
	concurrency int
	logger      *observability.Logger
}

func NewService(store payment.RepositoryContract, processor processing.ProcessorContract, concurrency int, logger *observability.Logger) *Service {
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}
	return &Service{store: store, processor: processor, concurrency: concurrency, logger: logger}
}

// Reprocess runs the approved-payment flow for ref. Steps already done are
// skipped unless force is set.
func (s *Service) Reprocess(ctx context.Context, ref string, force bool) (processing.Result, error) {
	if err := payment.ValidateReference(ref); err != nil {
		return processing.Result{Outcome: processing.OutcomeSkipped}, err
	}
	rec, err := s.store.Get(ctx, ref)
	if err != nil {
		s.logger.Error("reprocess load failed", "layer", "service", "component", "recovery", "method", "Reprocess", "external_reference", ref, "err", err)
		return processing.Result{Outcome: processing.OutcomeFailed}, err
	}
	if rec.Status != payment.StatusApproved {
		s.logger.Info("payment is not approved, nothing to reprocess", "layer", "service", "component", "recovery", "method", "Reprocess", "external_reference", ref, "status", string(rec.Status))
		return processing.Result{Outcome: processing.OutcomeSkipped, Record: rec}, processing.ErrNotApproved
	}
	s.logger.Info("reprocessing payment", "layer", "service", "component", "recovery", "method", "Reprocess", "external_reference", ref, "force", force)
	return s.processor.ProcessApproved(ctx, rec, processing.Options{Source: events.SourceReprocess, Force: force})
}

// ReprocessAll runs Reprocess over every approved record with bounded
// concurrency. Per-record failures are collected in the summary.
func (s *Service) ReprocessAll(ctx context.Context) (Summary, error) {
	sum := Summary{Failures: map[string]string{}}

	listing, err := s.store.ListAll(ctx)
	if err != nil {
		return sum, err
	}

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for _, rec := range listing.Records {
		if rec.Status != payment.StatusApproved {
			continue
		}
		rec := rec
		sum.Total++
		g.Go(func() error {
			res, err := s.processor.ProcessApproved(gctx, rec, processing.Options{Source: events.SourceReprocess})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err != nil:
				sum.Failed++
				sum.Failures[rec.ExternalReference] = err.Error()
			case res.Outcome == processing.OutcomeAlreadyProcessed:
				sum.AlreadyProcessed++
			default:
				sum.Processed++
			}
			return nil
		})
	}
	_ = g.Wait()

	s.logger.Info("reprocess all finished", "layer", "service", "component", "recovery", "method", "ReprocessAll",
		"total", sum.Total, "processed", sum.Processed, "already_processed", sum.AlreadyProcessed, "failed", sum.Failed)
	return sum, ctx.Err()
}

// SendToDLQ parks a record the watcher gave up retrying. It stays on disk and
// can still be reprocessed by hand.
func (s *Service) SendToDLQ(ctx context.Context, ref string, reason string, payload any) {
	s.logger.Error("dlq", "layer", "service", "component", "recovery", "external_reference", ref, "reason", reason, "payload", payload)
}
