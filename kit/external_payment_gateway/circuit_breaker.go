package external_payment_gateway

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/ReimaoHenrique/api-mercadolivre/kit/observability"
)

type CircuitBreakerConfig struct {
	FailureThreshold int
	SuccessThreshold int
	OpenTimeout      time.Duration
	IsFailure        func(error) bool
}

type CircuitState int

const (
	StateClosed CircuitState = iota
	StateOpen
	StateHalfOpen
)

func (s CircuitState) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

// CircuitBreakerGateway short-circuits calls to next after repeated transient
// failures. Client errors such as a missing payment do not count.
type CircuitBreakerGateway struct {
	next   Gateway
	cfg    CircuitBreakerConfig
	logger *observability.Logger
	now    func() time.Time

	mu           sync.Mutex
	state        CircuitState
	failures     int
	successes    int
	openedAt     time.Time
	halfInFlight bool
}

func NewCircuitBreakerGateway(next Gateway, cfg CircuitBreakerConfig, logger *observability.Logger) *CircuitBreakerGateway {
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = 5
	}
	if cfg.SuccessThreshold <= 0 {
		cfg.SuccessThreshold = 1
	}
	if cfg.OpenTimeout <= 0 {
		cfg.OpenTimeout = 10 * time.Second
	}
	if cfg.IsFailure == nil {
		cfg.IsFailure = func(err error) bool {
			return errors.Is(err, ErrTimeout) || errors.Is(err, ErrServer) || errors.Is(err, context.DeadlineExceeded)
		}
	}
	return &CircuitBreakerGateway{next: next, cfg: cfg, logger: logger, now: time.Now, state: StateClosed}
}

func (g *CircuitBreakerGateway) FetchPayment(ctx context.Context, paymentID string) (*PaymentDetail, error) {
	if err := g.beforeCall(); err != nil {
		return nil, err
	}
	d, err := g.next.FetchPayment(ctx, paymentID)
	g.afterCall(err)
	return d, err
}

func (g *CircuitBreakerGateway) CreatePreference(ctx context.Context, req PreferenceRequest) (*Preference, error) {
	if err := g.beforeCall(); err != nil {
		return nil, err
	}
	p, err := g.next.CreatePreference(ctx, req)
	g.afterCall(err)
	return p, err
}

func (g *CircuitBreakerGateway) State() CircuitState {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.state
}

func (g *CircuitBreakerGateway) beforeCall() error {
	g.mu.Lock()
	defer g.mu.Unlock()

	switch g.state {
	case StateClosed:
		return nil
	case StateOpen:
		if g.now().Sub(g.openedAt) < g.cfg.OpenTimeout {
			return ErrCircuitOpen
		}
		g.transition(StateHalfOpen)
		g.successes = 0
		g.halfInFlight = false
		fallthrough
	case StateHalfOpen:
		if g.halfInFlight {
			return ErrCircuitOpen
		}
		g.halfInFlight = true
		return nil
	default:
		return ErrCircuitOpen
	}
}

func (g *CircuitBreakerGateway) afterCall(err error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.state == StateHalfOpen {
		g.halfInFlight = false
	}

	if err == nil || !g.cfg.IsFailure(err) {
		switch g.state {
		case StateClosed:
			g.failures = 0
		case StateHalfOpen:
			g.successes++
			if g.successes >= g.cfg.SuccessThreshold {
				g.transition(StateClosed)
				g.failures = 0
				g.successes = 0
			}
		}
		return
	}

	switch g.state {
	case StateClosed:
		g.failures++
		if g.failures >= g.cfg.FailureThreshold {
			g.open()
		}
	case StateHalfOpen:
		g.open()
	}
}

func (g *CircuitBreakerGateway) open() {
	g.transition(StateOpen)
	g.openedAt = g.now()
	g.failures = g.cfg.FailureThreshold
	g.successes = 0
	g.halfInFlight = false
}

func (g *CircuitBreakerGateway) transition(to CircuitState) {
	if g.state == to {
		return
	}
	g.logger.Warn("circuit state change", "layer", "gateway", "component", "circuit_breaker", "from", g.state.String(), "to", to.String())
	g.state = to
}
