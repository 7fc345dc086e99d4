package recovery

import (
	"context"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/ReimaoHenrique/api-mercadolivre/internal/payment"
	"github.com/ReimaoHenrique/api-mercadolivre/kit/observability"
)

type Op string

const (
	OpModified Op = "modified"
	OpRemoved  Op = "removed"
)

type Change struct {
	Reference string
	Op        Op
}

// ChangeSource reports record changes until ctx is done.
type ChangeSource interface {
	Run(ctx context.Context, emit func(Change)) error
	Name() string
	Location() string
}

// FSNotifySource watches the record directory of a FileRepository. The
// directory is attached at construction so no change is missed between
// NewFSNotifySource and Run.
type FSNotifySource struct {
	dir     string
	watcher *fsnotify.Watcher
	logger  *observability.Logger
}

func NewFSNotifySource(dir string, logger *observability.Logger) (*FSNotifySource, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := w.Add(dir); err != nil {
		w.Close()
		return nil, err
	}
	return &FSNotifySource{dir: dir, watcher: w, logger: logger}, nil
}

func (s *FSNotifySource) Name() string     { return "fsnotify" }
func (s *FSNotifySource) Location() string { return s.dir }

func (s *FSNotifySource) Run(ctx context.Context, emit func(Change)) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-s.watcher.Events:
			if !ok {
				return nil
			}
			ref, ok := payment.ReferenceFromPath(ev.Name)
			if !ok {
				continue
			}
			switch {
			case ev.Has(fsnotify.Create), ev.Has(fsnotify.Write):
				emit(Change{Reference: ref, Op: OpModified})
			case ev.Has(fsnotify.Remove), ev.Has(fsnotify.Rename):
				emit(Change{Reference: ref, Op: OpRemoved})
			}
		case err, ok := <-s.watcher.Errors:
			if !ok {
				return nil
			}
			s.logger.Error("fsnotify error", "layer", "source", "component", "recovery", "dir", s.dir, "err", err)
		}
	}
}

func (s *FSNotifySource) Close() error {
	return s.watcher.Close()
}

type Lister interface {
	ListAll(ctx context.Context) (*payment.Listing, error)
}

// PollingSource diffs periodic listings on DateLastUpdated. It serves stores
// that have no change feed, such as the SQL repository.
type PollingSource struct {
	lister   Lister
	interval time.Duration
	logger   *observability.Logger
}

func NewPollingSource(lister Lister, interval time.Duration, logger *observability.Logger) *PollingSource {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	return &PollingSource{lister: lister, interval: interval, logger: logger}
}

func (s *PollingSource) Name() string     { return "polling" }
func (s *PollingSource) Location() string { return s.interval.String() }

func (s *PollingSource) Run(ctx context.Context, emit func(Change)) error {
	// the first listing is the baseline, existing records are the sweep's job
	seen, err := s.snapshot(ctx)
	if err != nil {
		s.logger.Warn("initial listing failed", "layer", "source", "component", "recovery", "err", err)
		seen = map[string]time.Time{}
	}

	t := time.NewTicker(s.interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
		}
		next, err := s.snapshot(ctx)
		if err != nil {
			s.logger.Warn("listing failed", "layer", "source", "component", "recovery", "err", err)
			continue
		}
		for ref, updated := range next {
			if prev, ok := seen[ref]; !ok || !prev.Equal(updated) {
				emit(Change{Reference: ref, Op: OpModified})
			}
		}
		for ref := range seen {
			if _, ok := next[ref]; !ok {
				emit(Change{Reference: ref, Op: OpRemoved})
			}
		}
		seen = next
	}
}

func (s *PollingSource) snapshot(ctx context.Context) (map[string]time.Time, error) {
	listing, err := s.lister.ListAll(ctx)
	if err != nil {
		return nil, err
	}
	out := make(map[string]time.Time, len(listing.Records))
	for _, r := range listing.Records {
		out[r.ExternalReference] = r.DateLastUpdated
	}
	return out, nil
}
