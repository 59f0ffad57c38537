package backend

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// maxThrottle bounds how far Throttle can stretch a key's interval.
const maxThrottle = 8

// Pacer spaces out calls per backend key with a token bucket. Every key gets
// one token per interval and a burst of one, so the first call on a key is
// immediate and consecutive calls are at least interval apart. A Pacer is
// shared by all runs in a process.
type Pacer struct {
	interval time.Duration

	mu       sync.Mutex
	limiters map[string]*pacedKey
}

type pacedKey struct {
	lim    *rate.Limiter
	factor int
}

// NewPacer creates a Pacer. A non-positive interval disables pacing.
func NewPacer(interval time.Duration) *Pacer {
	return &Pacer{
		interval: interval,
		limiters: make(map[string]*pacedKey),
	}
}

// Interval returns the configured base interval.
func (p *Pacer) Interval() time.Duration {
	if p == nil {
		return 0
	}
	return p.interval
}

// Wait blocks until key may be called again or ctx is done.
func (p *Pacer) Wait(ctx context.Context, key string) error {
	if p == nil || p.interval <= 0 {
		return ctx.Err()
	}
	return p.limiter(key).lim.Wait(ctx)
}

// Throttle doubles the spacing for key, up to a fixed ceiling. Called after
// the upstream signals a rate limit.
func (p *Pacer) Throttle(key string) {
	if p == nil || p.interval <= 0 {
		return
	}
	k := p.limiter(key)

	p.mu.Lock()
	defer p.mu.Unlock()
	if k.factor >= maxThrottle {
		return
	}
	k.factor *= 2
	k.lim.SetLimit(rate.Every(p.interval * time.Duration(k.factor)))
}

// Recover restores the base spacing for key after a successful call.
func (p *Pacer) Recover(key string) {
	if p == nil || p.interval <= 0 {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	k, ok := p.limiters[key]
	if !ok || k.factor == 1 {
		return
	}
	k.factor = 1
	k.lim.SetLimit(rate.Every(p.interval))
}

// currentInterval reports the effective spacing for key.
func (p *Pacer) currentInterval(key string) time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	k, ok := p.limiters[key]
	if !ok {
		return p.interval
	}
	return p.interval * time.Duration(k.factor)
}

func (p *Pacer) limiter(key string) *pacedKey {
	p.mu.Lock()
	defer p.mu.Unlock()
	k, ok := p.limiters[key]
	if !ok {
		k = &pacedKey{lim: rate.NewLimiter(rate.Every(p.interval), 1), factor: 1}
		p.limiters[key] = k
	}
	return k
}
