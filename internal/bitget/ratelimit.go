package bitget

import (
	"context"
	"sync"
	"time"
)

// EndpointClass groups endpoints sharing a rate budget.
type EndpointClass uint8

const (
	ClassPublic EndpointClass = iota
	ClassTrade
	ClassAccount
)

// tokenBucket is a simple refill-on-demand token bucket.
type tokenBucket struct {
	mu       sync.Mutex
	tokens   float64
	burst    float64
	rate     float64 // tokens per second
	lastFill time.Time
}

func newTokenBucket(rate float64, burst int) *tokenBucket {
	if rate <= 0 {
		rate = 1
	}
	if burst <= 0 {
		burst = 1
	}
	return &tokenBucket{
		tokens:   float64(burst),
		burst:    float64(burst),
		rate:     rate,
		lastFill: time.Now(),
	}
}

// take removes a token if available, otherwise returns the wait until
// the next token.
func (b *tokenBucket) take(now time.Time) (bool, time.Duration) {
	b.mu.Lock()
	defer b.mu.Unlock()

	elapsed := now.Sub(b.lastFill).Seconds()
	b.tokens += elapsed * b.rate
	if b.tokens > b.burst {
		b.tokens = b.burst
	}
	b.lastFill = now

	if b.tokens >= 1 {
		b.tokens -= 1
		return true, 0
	}
	missing := 1 - b.tokens
	return false, time.Duration(missing / b.rate * float64(time.Second))
}

// Limiter enforces per-endpoint-class budgets. A call that exceeds the
// budget blocks up to MaxWait instead of being sent, to avoid
// exchange-side throttling penalties.
type Limiter struct {
	buckets map[EndpointClass]*tokenBucket
	maxWait time.Duration
}

// LimiterConfig defines per-class request budgets.
type LimiterConfig struct {
	PublicPerSecond  float64
	TradePerSecond   float64
	AccountPerSecond float64
	Burst            int
	MaxWait          time.Duration
}

// DefaultLimiterConfig matches the exchange's documented per-endpoint
// budgets with headroom.
func DefaultLimiterConfig() LimiterConfig {
	return LimiterConfig{
		PublicPerSecond:  18,
		TradePerSecond:   8,
		AccountPerSecond: 8,
		Burst:            5,
		MaxWait:          2 * time.Second,
	}
}

// NewLimiter creates a limiter from the config.
func NewLimiter(cfg LimiterConfig) *Limiter {
	if cfg.MaxWait <= 0 {
		cfg.MaxWait = 2 * time.Second
	}
	return &Limiter{
		buckets: map[EndpointClass]*tokenBucket{
			ClassPublic:  newTokenBucket(cfg.PublicPerSecond, cfg.Burst),
			ClassTrade:   newTokenBucket(cfg.TradePerSecond, cfg.Burst),
			ClassAccount: newTokenBucket(cfg.AccountPerSecond, cfg.Burst),
		},
		maxWait: cfg.MaxWait,
	}
}

// Wait blocks until a token is available for the class. Returns
// ErrRateBudget if the wait would exceed the bounded budget.
func (l *Limiter) Wait(ctx context.Context, class EndpointClass) error {
	bucket, ok := l.buckets[class]
	if !ok {
		bucket = l.buckets[ClassPublic]
	}
	waited := time.Duration(0)
	for {
		ok, wait := bucket.take(time.Now())
		if ok {
			return nil
		}
		if waited+wait > l.maxWait {
			return ErrRateBudget
		}
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
		waited += wait
	}
}
