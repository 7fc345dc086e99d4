// Package processing applies the side effects of an approved payment exactly
// once per external reference, and routes fetched payment details by status.
package processing

import (
	"context"
	"errors"
	"time"

	"github.com/ReimaoHenrique/api-mercadolivre/internal/activation"
	"github.com/ReimaoHenrique/api-mercadolivre/internal/events"
	"github.com/ReimaoHenrique/api-mercadolivre/internal/payment"
	"github.com/ReimaoHenrique/api-mercadolivre/kit/broker"
	"github.com/ReimaoHenrique/api-mercadolivre/kit/db"
	"github.com/ReimaoHenrique/api-mercadolivre/kit/keylock"
	"github.com/ReimaoHenrique/api-mercadolivre/kit/observability"
)

const DefaultSyncTimeout = 10 * time.Second

var (
	ErrMissingReference = errors.New("processing: record has no external reference")
	ErrNotApproved      = errors.New("processing: payment is not approved")
)

type Outcome string

const (
	OutcomeProcessed        Outcome = "processed"
	OutcomeAlreadyProcessed Outcome = "already_processed"
	OutcomePartial          Outcome = "partial"
	OutcomeFailed           Outcome = "failed"
	OutcomeSkipped          Outcome = "skipped"
)

type Options struct {
	Source string
	// Force re-runs every step even when its sticky flag is already set.
	Force bool
}

type Result struct {
	Outcome Outcome
	Kind    activation.Kind
	Record  *payment.PaymentRecord
}

type Processor struct {
	store       payment.RepositoryContract
	activator   ActivatorContract
	syncer      SyncerContract
	notifier    NotifierContract
	history     payment.HistoryContract
	bus         payment.PublisherContract
	metrics     *observability.Metrics
	logger      *observability.Logger
	locks       *keylock.Locker
	syncTimeout time.Duration
	now         func() time.Time
}

type ProcessorDeps struct {
	Store     payment.RepositoryContract
	Activator ActivatorContract
	Syncer    SyncerContract
	Notifier  NotifierContract
	History   payment.HistoryContract
	Bus       payment.PublisherContract
	Metrics   *observability.Metrics
	Logger    *observability.Logger
	// SyncTimeout defaults to DefaultSyncTimeout.
	SyncTimeout time.Duration
}

func NewProcessor(deps ProcessorDeps) *Processor {
	if deps.SyncTimeout <= 0 {
		deps.SyncTimeout = DefaultSyncTimeout
	}
	return &Processor{
		store:       deps.Store,
		activator:   deps.Activator,
		syncer:      deps.Syncer,
		notifier:    deps.Notifier,
		history:     deps.History,
		bus:         deps.Bus,
		metrics:     deps.Metrics,
		logger:      deps.Logger,
		locks:       keylock.New(),
		syncTimeout: deps.SyncTimeout,
		now:         time.Now,
	}
}

// ProcessApproved runs activation, downstream sync and confirmation for rec,
// skipping every step whose flag is already set in the stored record. The
// record is marked completed only when activation and sync both succeeded.
func (p *Processor) ProcessApproved(ctx context.Context, rec *payment.PaymentRecord, opts Options) (Result, error) {
	if rec == nil || rec.ExternalReference == "" {
		return Result{Outcome: OutcomeSkipped}, ErrMissingReference
	}
	ref := rec.ExternalReference
	log := p.logger.With("layer", "service", "component", "processing", "method", "ProcessApproved", "external_reference", ref, "source", opts.Source)

	unlock := p.locks.Lock(ref)
	defer unlock()

	stored, err := p.store.Get(ctx, ref)
	switch {
	case err == nil:
	case db.IsNotFound(err):
		stored = nil
	case db.IsInvalid(err):
		log.Warn("stored record is malformed, it will be overwritten", "err", err)
		stored = nil
	default:
		log.Error("load record failed", "err", err)
		return Result{Outcome: OutcomeFailed}, err
	}

	if stored != nil && stored.Completed() && !opts.Force {
		log.Info("already processed", "completed_at", *stored.ProcessingState.ProcessingCompletedAt)
		p.emit(ctx, ref, events.PaymentAlreadyProcessed{
			ExternalReference: ref,
			Source:            opts.Source,
			CompletedAt:       *stored.ProcessingState.ProcessingCompletedAt,
			At:                p.now(),
		})
		p.metrics.PaymentProcessed(opts.Source, string(OutcomeAlreadyProcessed))
		return Result{Outcome: OutcomeAlreadyProcessed, Kind: activation.Classify(ref), Record: stored}, nil
	}

	// A stored record wins over the caller's copy, which may have been read
	// before a later refund or chargeback landed.
	base := rec
	if stored != nil {
		base = stored
	}
	if base.Status != payment.StatusApproved {
		log.Warn("record is not approved, skipping", "status", string(base.Status))
		return Result{Outcome: OutcomeSkipped, Record: base}, ErrNotApproved
	}

	now := p.now()
	start := &payment.PaymentRecord{ExternalReference: ref}
	if stored == nil {
		start = rec.Clone()
	}
	start.ProcessingState.ProcessingStartedAt = &now
	start.ProcessingState.LastAttemptAt = &now
	start.ProcessingState.Attempts = 1
	if stored != nil {
		start.ProcessingState.Attempts = stored.ProcessingState.Attempts + 1
	}
	cur, err := p.store.Upsert(ctx, start)
	if err != nil {
		log.Error("record processing start failed", "err", err)
		return Result{Outcome: OutcomeFailed}, err
	}
	if cur.Status != payment.StatusApproved {
		log.Warn("record is not approved, skipping", "status", string(cur.Status))
		return Result{Outcome: OutcomeSkipped, Record: cur}, ErrNotApproved
	}

	log.Info("processing approved payment", "payment_id", cur.PaymentID, "attempt", cur.ProcessingState.Attempts, "forced", opts.Force)

	var stepErrs []error
	kind := activation.Classify(ref)

	activated := cur.ProcessingState.BusinessActivated && !opts.Force
	if !activated {
		k, err := p.activator.Activate(ctx, cur)
		if err != nil {
			log.Error("business activation failed", "kind", string(k), "err", err)
			stepErrs = append(stepErrs, err)
		} else {
			kind = k
			cur, err = p.patch(ctx, cur, func(r *payment.PaymentRecord) {
				r.ProcessingState.BusinessActivated = true
				r.BusinessLogic.ReferenceType = string(k)
				r.BusinessLogic.ProcessedWithDefaultLogic = k == activation.KindDefault
			})
			if err != nil {
				stepErrs = append(stepErrs, err)
			} else {
				activated = true
			}
		}
	}

	synced := cur.ProcessingState.DownstreamSyncSucceeded && !opts.Force
	if !synced {
		sctx, cancel := context.WithTimeout(ctx, p.syncTimeout)
		_, err := p.syncer.SyncStatus(sctx, ref, cur.Status)
		cancel()
		if err != nil {
			msg := err.Error()
			stepErrs = append(stepErrs, err)
			p.metrics.DownstreamSync("failed")
			cur, _ = p.patch(ctx, cur, func(r *payment.PaymentRecord) {
				r.ProcessingState.DownstreamSyncAttempted = true
				r.ProcessingState.DownstreamSyncError = &msg
			})
		} else {
			cleared := ""
			p.metrics.DownstreamSync("succeeded")
			cur, err = p.patch(ctx, cur, func(r *payment.PaymentRecord) {
				r.ProcessingState.DownstreamSyncAttempted = true
				r.ProcessingState.DownstreamSyncSucceeded = true
				r.ProcessingState.DownstreamSyncError = &cleared
			})
			if err != nil {
				stepErrs = append(stepErrs, err)
			} else {
				synced = true
			}
		}
	}

	if !cur.ProcessingState.NotificationSent || opts.Force {
		if err := p.notifier.SendConfirmation(ctx, cur); err != nil {
			log.Warn("confirmation not sent", "err", err)
			p.metrics.Notification("failed")
		} else {
			p.metrics.Notification("sent")
			if next, err := p.patch(ctx, cur, func(r *payment.PaymentRecord) {
				r.ProcessingState.NotificationSent = true
			}); err == nil {
				cur = next
			}
		}
	}

	if activated && synced {
		done := p.now()
		next, err := p.patch(ctx, cur, func(r *payment.PaymentRecord) {
			r.ProcessingState.ProcessingCompletedAt = &done
		})
		if err != nil {
			log.Error("record completion failed", "err", err)
			stepErrs = append(stepErrs, err)
		} else {
			cur = next
			log.Info("approved payment processed", "kind", string(kind), "attempt", cur.ProcessingState.Attempts)
			p.emit(ctx, ref, events.PaymentProcessed{
				ExternalReference: ref,
				PaymentID:         cur.PaymentID,
				ReferenceKind:     string(kind),
				Source:            opts.Source,
				Forced:            opts.Force,
				Attempts:          cur.ProcessingState.Attempts,
				At:                done,
			})
			p.metrics.PaymentProcessed(opts.Source, string(OutcomeProcessed))
			return Result{Outcome: OutcomeProcessed, Kind: kind, Record: cur}, nil
		}
	}

	joined := errors.Join(stepErrs...)
	reason := joined.Error()
	if next, err := p.patch(ctx, cur, func(r *payment.PaymentRecord) {
		r.ProcessingState.DownstreamSyncError = &reason
	}); err == nil {
		cur = next
	}
	log.Error("approved payment partially processed", "attempt", cur.ProcessingState.Attempts, "err", joined)
	p.emit(ctx, ref, events.PaymentProcessingFailed{
		ExternalReference: ref,
		PaymentID:         cur.PaymentID,
		Source:            opts.Source,
		Reason:            reason,
		Attempts:          cur.ProcessingState.Attempts,
		At:                p.now(),
	})
	p.metrics.PaymentProcessed(opts.Source, string(OutcomePartial))
	return Result{Outcome: OutcomePartial, Kind: kind, Record: cur}, joined
}

// patch upserts a record carrying only the fields set by fn.
func (p *Processor) patch(ctx context.Context, cur *payment.PaymentRecord, fn func(r *payment.PaymentRecord)) (*payment.PaymentRecord, error) {
	delta := &payment.PaymentRecord{ExternalReference: cur.ExternalReference}
	fn(delta)
	next, err := p.store.Upsert(ctx, delta)
	if err != nil {
		p.logger.Error("record update failed", "layer", "service", "component", "processing", "method", "patch", "external_reference", cur.ExternalReference, "err", err)
		return cur, err
	}
	return next, nil
}

func (p *Processor) emit(ctx context.Context, ref string, evt broker.Event) {
	if p.history != nil {
		if _, err := p.history.Append(ctx, ref, evt); err != nil {
			p.logger.Warn("history append failed", "layer", "service", "component", "processing", "external_reference", ref, "event", evt.Name(), "err", err)
		}
	}
	if p.bus != nil {
		p.bus.Publish(ctx, evt)
	}
}
