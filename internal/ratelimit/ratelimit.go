// Package ratelimit holds the per-pass scrape budget and the pacer that
// spaces delivery calls.
package ratelimit

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Budget is a countdown of optional network operations allowed in one pass.
// A nil *Budget allows nothing.
type Budget struct {
	mu        sync.Mutex
	remaining int
	spent     int
}

// NewBudget returns a budget with n attempts. Negative n is treated as zero.
func NewBudget(n int) *Budget {
	if n < 0 {
		n = 0
	}
	return &Budget{remaining: n}
}

// Take consumes one attempt. It reports false once the budget is exhausted.
// Callers take before trying, so a failed attempt still costs one.
func (b *Budget) Take() bool {
	if b == nil {
		return false
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.remaining <= 0 {
		return false
	}
	b.remaining--
	b.spent++
	return true
}

// Remaining returns the attempts left.
func (b *Budget) Remaining() int {
	if b == nil {
		return 0
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.remaining
}

// Spent returns how many attempts were taken.
func (b *Budget) Spent() int {
	if b == nil {
		return 0
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.spent
}

// Pacer enforces a minimum gap between consecutive calls.
type Pacer struct {
	limiter *rate.Limiter
}

// NewPacer returns a pacer allowing one call per interval. A zero interval
// disables pacing.
func NewPacer(interval time.Duration) *Pacer {
	if interval <= 0 {
		return &Pacer{limiter: rate.NewLimiter(rate.Inf, 1)}
	}
	return &Pacer{limiter: rate.NewLimiter(rate.Every(interval), 1)}
}

// Wait blocks until the next call is allowed or ctx is done.
func (p *Pacer) Wait(ctx context.Context) error {
	if p == nil {
		return nil
	}
	return p.limiter.Wait(ctx)
}
