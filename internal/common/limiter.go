package common

import (
	"net/http"
	"sync"

	"golang.org/x/time/rate"

	"guestbook/internal/config"
)

// LimiterPool keeps one token bucket per key (user id or client address).
type LimiterPool struct {
	mu      sync.Mutex
	m       map[string]*rate.Limiter
	rps     float64
	burst   int
	enabled bool
	trusted []string
}

func NewLimiterPool(cfg *config.Config) *LimiterPool {
	return &LimiterPool{
		m:       make(map[string]*rate.Limiter),
		rps:     cfg.RateLimit.RPS,
		burst:   cfg.RateLimit.Burst,
		enabled: cfg.RateLimit.Enabled,
		trusted: cfg.RateLimit.TrustedProxies,
	}
}

func (p *LimiterPool) get(key string) *rate.Limiter {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.m == nil {
		p.m = make(map[string]*rate.Limiter)
	}
	if l, ok := p.m[key]; ok {
		return l
	}
	rps := p.rps
	if rps <= 0 {
		rps = 5
	}
	burst := p.burst
	if burst <= 0 {
		burst = 10
	}
	l := rate.NewLimiter(rate.Limit(rps), burst)
	p.m[key] = l
	return l
}

func (p *LimiterPool) Allow(key string) bool {
	if p == nil || !p.enabled {
		return true
	}
	return p.get(key).Allow()
}

// Key is the bucket key for r, see ClientKey.
func (p *LimiterPool) Key(r *http.Request) string {
	if p == nil {
		return ClientKey(r, nil)
	}
	return ClientKey(r, p.trusted)
}
