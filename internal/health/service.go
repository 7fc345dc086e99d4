package health

import (
	"context"
	"errors"
	"sync"
	"time"
)

const DefaultCheckTimeout = 2 * time.Second

type CheckFunc func(ctx context.Context) error

type Service struct {
	mu sync.Mutex

	checks  map[string]CheckFunc
	ttl     time.Duration
	timeout time.Duration
	now     func() time.Time

	nextCheckAt time.Time
	lastResult  Result
}

type Result struct {
	At     time.Time         `json:"at"`
	OK     bool              `json:"ok"`
	Checks map[string]string `json:"checks"`
}

// NewService caches check results for ttl. Each check gets DefaultCheckTimeout.
func NewService(ttl time.Duration, checks map[string]CheckFunc) *Service {
	return &Service{
		ttl:        ttl,
		timeout:    DefaultCheckTimeout,
		checks:     checks,
		now:        time.Now,
		lastResult: Result{Checks: map[string]string{}},
	}
}

func (s *Service) Check(ctx context.Context) Result {
	s.mu.Lock()
	if s.now().Before(s.nextCheckAt) {
		res := s.lastResult
		s.mu.Unlock()
		return res
	}
	s.mu.Unlock()

	res := Result{At: s.now().UTC(), OK: true, Checks: make(map[string]string, len(s.checks))}
	for name, fn := range s.checks {
		if fn == nil {
			res.OK = false
			res.Checks[name] = "invalid check"
			continue
		}
		cctx, cancel := context.WithTimeout(ctx, s.timeout)
		err := fn(cctx)
		cancel()
		if err != nil {
			res.OK = false
			res.Checks[name] = err.Error()
			continue
		}
		res.Checks[name] = "ok"
	}

	s.mu.Lock()
	s.lastResult = res
	s.nextCheckAt = s.now().Add(s.ttl)
	s.mu.Unlock()

	return res
}

var ErrCircuitOpen = errors.New("circuit open")

type Pinger interface {
	Ping(ctx context.Context) error
}

// PingCheck reports the Ping result of a store or cache.
func PingCheck(p Pinger) CheckFunc {
	return func(ctx context.Context) error { return p.Ping(ctx) }
}

// CircuitCheck fails while state reports the gateway circuit as open.
func CircuitCheck(open func() bool) CheckFunc {
	return func(ctx context.Context) error {
		if open() {
			return ErrCircuitOpen
		}
		return nil
	}
}

// WatcherCheck fails when the reconciliation watcher is not running.
func WatcherCheck(active func() bool) CheckFunc {
	return func(ctx context.Context) error {
		if !active() {
			return errors.New("watcher inactive")
		}
		return nil
	}
}
