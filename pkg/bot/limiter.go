package bot

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// per-user submission limiter pool
type limiterEntry struct {
	l        *rate.Limiter
	lastSeen time.Time
}

type limiterPool struct {
	mu            sync.Mutex
	m             map[int64]*limiterEntry
	limit         rate.Limit
	burst         int
	startCleanup  sync.Once
	ttl           time.Duration
	cleanupPeriod time.Duration
	stopCh        chan struct{}
	stopOnce      sync.Once
	now           func() time.Time
}

// newLimiterPool allows rps sustained submissions per user with the given
// burst. A zero rps disables limiting.
func newLimiterPool(rps float64, burst int) *limiterPool {
	if burst < 1 {
		burst = 1
	}
	return &limiterPool{limit: rate.Limit(rps), burst: burst, ttl: 30 * time.Minute, cleanupPeriod: time.Minute, now: time.Now}
}

// get limiter for key, create if missing; start cleanup once
func (p *limiterPool) get(key int64) *rate.Limiter {
	p.startCleanup.Do(func() {
		p.mu.Lock()
		p.stopCh = make(chan struct{})
		p.mu.Unlock()
		go p.cleanupLoop()
	})

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.m == nil {
		p.m = make(map[int64]*limiterEntry)
	}
	if e, ok := p.m[key]; ok {
		e.lastSeen = p.now()
		return e.l
	}
	l := rate.NewLimiter(p.limit, p.burst)
	p.m[key] = &limiterEntry{l: l, lastSeen: p.now()}
	return l
}

// Allow reports whether key may submit now.
func (p *limiterPool) Allow(key int64) bool {
	if p.limit <= 0 {
		return true
	}
	return p.get(key).AllowN(p.now(), 1)
}

// Shutdown stops the cleanup goroutine.
func (p *limiterPool) Shutdown() {
	p.mu.Lock()
	ch := p.stopCh
	p.mu.Unlock()
	if ch != nil {
		p.stopOnce.Do(func() { close(ch) })
	}
}

// cleanupLoop removes limiters unused > TTL.
func (p *limiterPool) cleanupLoop() {
	p.mu.Lock()
	stop := p.stopCh
	p.mu.Unlock()
	ticker := time.NewTicker(p.cleanupPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			p.sweep()
		case <-stop:
			return
		}
	}
}

func (p *limiterPool) sweep() {
	cutoff := p.now().Add(-p.ttl)
	p.mu.Lock()
	for k, e := range p.m {
		if e.lastSeen.Before(cutoff) {
			delete(p.m, k)
		}
	}
	p.mu.Unlock()
}
