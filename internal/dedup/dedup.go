// Package dedup collapses bursts of duplicate triggers for the same key.
//
// Claims are short-lived and best-effort. Durable idempotency lives in the
// sticky processing flags of the payment record, not here.
package dedup

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ReimaoHenrique/api-mercadolivre/kit/observability"
)

const DefaultTTL = 5 * time.Second

type Claimer interface {
	// TryClaim reserves key for ttl if nobody holds it and returns the
	// token that identifies this claim.
	TryClaim(ctx context.Context, key string, ttl time.Duration) (token string, ok bool)
	// Release drops the claim on key only while token still owns it. A
	// claim that expired and was taken by someone else is left alone.
	Release(ctx context.Context, key, token string)
	Close() error
}

type claim struct {
	token string
	exp   time.Time
}

// MemoryClaimer keeps claims in a process-local map.
type MemoryClaimer struct {
	logger *observability.Logger
	now    func() time.Time

	mu     sync.Mutex
	claims map[string]claim

	stop chan struct{}
	done chan struct{}
	once sync.Once
}

// NewMemoryClaimer starts a janitor that purges expired claims every sweep.
// A non-positive sweep disables the janitor.
func NewMemoryClaimer(sweep time.Duration, logger *observability.Logger) *MemoryClaimer {
	c := &MemoryClaimer{
		logger: logger,
		now:    time.Now,
		claims: make(map[string]claim),
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
	}
	if sweep > 0 {
		go c.janitor(sweep)
	} else {
		close(c.done)
	}
	return c
}

func (c *MemoryClaimer) TryClaim(ctx context.Context, key string, ttl time.Duration) (string, bool) {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	now := c.now()

	c.mu.Lock()
	defer c.mu.Unlock()
	if cl, ok := c.claims[key]; ok && now.Before(cl.exp) {
		return "", false
	}
	token := uuid.NewString()
	c.claims[key] = claim{token: token, exp: now.Add(ttl)}
	return token, true
}

func (c *MemoryClaimer) Release(ctx context.Context, key, token string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if cl, ok := c.claims[key]; ok && cl.token == token {
		delete(c.claims, key)
	}
}

// Len reports the number of claims currently tracked, expired or not.
func (c *MemoryClaimer) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.claims)
}

// Close stops the janitor and drops every claim.
func (c *MemoryClaimer) Close() error {
	c.once.Do(func() {
		close(c.stop)
		<-c.done
		c.mu.Lock()
		n := len(c.claims)
		c.claims = make(map[string]claim)
		c.mu.Unlock()
		c.logger.Debug("dedup claims released", "layer", "dedup", "component", "memory", "released", n)
	})
	return nil
}

func (c *MemoryClaimer) purge() int {
	now := c.now()
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for k, cl := range c.claims {
		if !now.Before(cl.exp) {
			delete(c.claims, k)
			n++
		}
	}
	return n
}

func (c *MemoryClaimer) janitor(every time.Duration) {
	defer close(c.done)
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-c.stop:
			return
		case <-t.C:
			c.purge()
		}
	}
}
