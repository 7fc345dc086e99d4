// Package recovery reconciles stored payment records whose approved-payment
// processing never completed, both continuously and on demand.
package recovery

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ReimaoHenrique/api-mercadolivre/internal/dedup"
	"github.com/ReimaoHenrique/api-mercadolivre/internal/events"
	"github.com/ReimaoHenrique/api-mercadolivre/internal/payment"
	"github.com/ReimaoHenrique/api-mercadolivre/internal/processing"
	"github.com/ReimaoHenrique/api-mercadolivre/kit/db"
	"github.com/ReimaoHenrique/api-mercadolivre/kit/observability"
)

var ErrAlreadyRunning = errors.New("recovery: watcher already running")

type SleepFunc func(ctx context.Context, d time.Duration) error

func DefaultSleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

type WatcherConfig struct {
	// SettleDelay lets a writer finish before the record is re-read.
	SettleDelay time.Duration
	// RetryBackoff is the minimum time between two attempts on one record.
	RetryBackoff time.Duration
	// SweepInterval re-runs the sweep so failed records get retried; zero disables it.
	SweepInterval time.Duration
	ClaimTTL      time.Duration
	// MaxAttempts sends a record to the dead-letter log instead of retrying; zero means no limit.
	MaxAttempts int
}

func DefaultWatcherConfig() WatcherConfig {
	return WatcherConfig{
		SettleDelay:   time.Second,
		RetryBackoff:  30 * time.Second,
		SweepInterval: time.Minute,
		ClaimTTL:      dedup.DefaultTTL,
		MaxAttempts:   10,
	}
}

type DeadLetterContract interface {
	SendToDLQ(ctx context.Context, ref string, reason string, payload any)
}

type Status struct {
	Active         bool       `json:"active"`
	Source         string     `json:"source"`
	Directory      string     `json:"directory"`
	InFlight       int64      `json:"inFlight"`
	ProcessedCount int64      `json:"processedCount"`
	FailedCount    int64      `json:"failedCount"`
	LastSweepAt    *time.Time `json:"lastSweepAt,omitempty"`
}

type WatcherDeps struct {
	Store      payment.RepositoryContract
	Claimer    dedup.Claimer
	Processor  processing.ProcessorContract
	Source     ChangeSource
	DeadLetter DeadLetterContract
	Metrics    *observability.Metrics
	Logger     *observability.Logger
	Sleep      SleepFunc
}

// Watcher sweeps the store at start and then reacts to record changes,
// processing approved records that are not completed yet.
type Watcher struct {
	store      payment.RepositoryContract
	claimer    dedup.Claimer
	processor  processing.ProcessorContract
	source     ChangeSource
	deadLetter DeadLetterContract
	metrics    *observability.Metrics
	logger     *observability.Logger
	cfg        WatcherConfig
	sleep      SleepFunc
	now        func() time.Time

	inFlight  atomic.Int64
	processed atomic.Int64
	failed    atomic.Int64

	mu        sync.Mutex
	active    bool
	cancel    context.CancelFunc
	done      chan struct{}
	wg        sync.WaitGroup
	// claims maps each held reference to its claim token.
	claims    map[string]string
	parked    map[string]struct{}
	lastSweep *time.Time
}

func NewWatcher(deps WatcherDeps, cfg WatcherConfig) *Watcher {
	def := DefaultWatcherConfig()
	if cfg.SettleDelay < 0 {
		cfg.SettleDelay = 0
	}
	if cfg.RetryBackoff < 0 {
		cfg.RetryBackoff = def.RetryBackoff
	}
	if cfg.ClaimTTL <= 0 {
		cfg.ClaimTTL = def.ClaimTTL
	}
	if deps.Sleep == nil {
		deps.Sleep = DefaultSleep
	}
	return &Watcher{
		store:      deps.Store,
		claimer:    deps.Claimer,
		processor:  deps.Processor,
		source:     deps.Source,
		deadLetter: deps.DeadLetter,
		metrics:    deps.Metrics,
		logger:     deps.Logger.With("layer", "watcher", "component", "recovery"),
		cfg:        cfg,
		sleep:      deps.Sleep,
		now:        time.Now,
		claims:     map[string]string{},
		parked:     map[string]struct{}{},
	}
}

// Start runs the startup sweep and then observes the change source in the
// background until Stop or ctx is done.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.active {
		w.mu.Unlock()
		return ErrAlreadyRunning
	}
	runCtx, cancel := context.WithCancel(ctx)
	w.active = true
	w.cancel = cancel
	w.done = make(chan struct{})
	done := w.done
	w.mu.Unlock()

	w.logger.Info("watcher starting", "source", w.source.Name(), "location", w.source.Location())
	w.Sweep(runCtx, events.SourceSweep)

	go func() {
		defer close(done)
		var tick <-chan time.Time
		if w.cfg.SweepInterval > 0 {
			t := time.NewTicker(w.cfg.SweepInterval)
			defer t.Stop()
			tick = t.C
		}
		srcDone := make(chan error, 1)
		go func() {
			srcDone <- w.source.Run(runCtx, func(c Change) { w.dispatch(runCtx, c) })
		}()
		for {
			select {
			case <-runCtx.Done():
				<-srcDone
				return
			case err := <-srcDone:
				if err != nil {
					w.logger.Error("change source stopped", "source", w.source.Name(), "err", err)
				}
				<-runCtx.Done()
				return
			case <-tick:
				w.Sweep(runCtx, events.SourceSweep)
			}
		}
	}()
	return nil
}

// Stop stops observing, waits for in-flight callbacks and releases the
// claims the watcher still holds.
func (w *Watcher) Stop() {
	w.mu.Lock()
	if !w.active {
		w.mu.Unlock()
		return
	}
	w.cancel()
	done := w.done
	w.mu.Unlock()

	<-done
	w.wg.Wait()

	w.mu.Lock()
	for key, token := range w.claims {
		w.claimer.Release(context.Background(), key, token)
	}
	w.claims = map[string]string{}
	w.active = false
	w.mu.Unlock()
	w.logger.Info("watcher stopped")
}

func (w *Watcher) Status() Status {
	w.mu.Lock()
	defer w.mu.Unlock()
	st := Status{
		Active:         w.active,
		Source:         w.source.Name(),
		Directory:      w.source.Location(),
		InFlight:       w.inFlight.Load(),
		ProcessedCount: w.processed.Load(),
		FailedCount:    w.failed.Load(),
	}
	if w.lastSweep != nil {
		t := *w.lastSweep
		st.LastSweepAt = &t
	}
	return st
}

// Sweep claims and processes every approved record that is not completed.
func (w *Watcher) Sweep(ctx context.Context, source string) {
	listing, err := w.store.ListAll(ctx)
	if err != nil {
		w.logger.Error("sweep listing failed", "err", err)
		return
	}
	for _, inv := range listing.Invalid {
		w.logger.Warn("skipping malformed record", "external_reference", inv.Reference, "reason", inv.Reason)
	}

	pending := 0
	for _, rec := range listing.Records {
		if ctx.Err() != nil {
			return
		}
		if !rec.NeedsProcessing() {
			continue
		}
		pending++
		if !w.claim(ctx, rec.ExternalReference, source) {
			continue
		}
		w.consider(ctx, rec, source)
	}

	now := w.now()
	w.mu.Lock()
	w.lastSweep = &now
	w.mu.Unlock()
	w.metrics.SweepCompleted()
	w.logger.Info("sweep finished", "records", len(listing.Records), "pending", pending)
}

func (w *Watcher) dispatch(ctx context.Context, c Change) {
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		w.onChange(ctx, c)
	}()
}

func (w *Watcher) onChange(ctx context.Context, c Change) {
	w.metrics.WatcherChange(string(c.Op))
	if c.Op == OpRemoved {
		w.logger.Info("record removed", "external_reference", c.Reference)
		return
	}
	if !w.claim(ctx, c.Reference, events.SourceWatcher) {
		return
	}
	if err := w.sleep(ctx, w.cfg.SettleDelay); err != nil {
		w.release(c.Reference)
		return
	}

	rec, err := w.store.Get(ctx, c.Reference)
	switch {
	case err == nil:
	case db.IsNotFound(err):
		w.logger.Debug("record gone before processing", "external_reference", c.Reference)
		w.release(c.Reference)
		return
	default:
		w.logger.Warn("record read failed", "external_reference", c.Reference, "err", err)
		w.release(c.Reference)
		return
	}
	w.consider(ctx, rec, events.SourceWatcher)
}

// consider processes rec when it still needs it. It is called with the claim held.
func (w *Watcher) consider(ctx context.Context, rec *payment.PaymentRecord, source string) {
	ref := rec.ExternalReference
	if !rec.NeedsProcessing() {
		w.logger.Debug("record needs no processing", "external_reference", ref, "status", string(rec.Status), "completed", rec.Completed())
		w.release(ref)
		return
	}
	if last := rec.ProcessingState.LastAttemptAt; last != nil && w.now().Sub(*last) < w.cfg.RetryBackoff {
		w.logger.Debug("record inside retry backoff", "external_reference", ref, "last_attempt_at", *last)
		w.release(ref)
		return
	}
	if w.cfg.MaxAttempts > 0 && rec.ProcessingState.Attempts >= w.cfg.MaxAttempts {
		w.park(ctx, rec)
		w.release(ref)
		return
	}

	w.inFlight.Add(1)
	res, err := w.processor.ProcessApproved(ctx, rec, processing.Options{Source: source})
	w.inFlight.Add(-1)
	if err != nil {
		w.failed.Add(1)
		w.logger.Error("reconciliation failed", "external_reference", ref, "source", source, "outcome", string(res.Outcome), "err", err)
		w.release(ref)
		return
	}
	if res.Outcome == processing.OutcomeProcessed {
		w.processed.Add(1)
		w.logger.Info("record reconciled", "external_reference", ref, "source", source)
	}
	// the claim stays with the claimer until its TTL absorbs the echo of our own writes
	w.mu.Lock()
	delete(w.claims, ref)
	w.mu.Unlock()
}

func (w *Watcher) claim(ctx context.Context, ref, source string) bool {
	token, ok := w.claimer.TryClaim(ctx, ref, w.cfg.ClaimTTL)
	if !ok {
		w.logger.Debug("duplicate trigger suppressed", "external_reference", ref, "source", source)
		w.metrics.DuplicateSuppressed(source)
		return false
	}
	w.mu.Lock()
	w.claims[ref] = token
	w.mu.Unlock()
	return true
}

func (w *Watcher) release(ref string) {
	w.mu.Lock()
	token, ok := w.claims[ref]
	delete(w.claims, ref)
	w.mu.Unlock()
	if ok {
		w.claimer.Release(context.Background(), ref, token)
	}
}

func (w *Watcher) park(ctx context.Context, rec *payment.PaymentRecord) {
	w.mu.Lock()
	_, seen := w.parked[rec.ExternalReference]
	w.parked[rec.ExternalReference] = struct{}{}
	w.mu.Unlock()
	if seen {
		return
	}
	reason := "max attempts reached"
	if e := rec.ProcessingState.DownstreamSyncError; e != nil {
		reason = *e
	}
	if w.deadLetter != nil {
		w.deadLetter.SendToDLQ(ctx, rec.ExternalReference, reason, map[string]any{"attempts": rec.ProcessingState.Attempts, "payment_id": rec.PaymentID})
	}
}
