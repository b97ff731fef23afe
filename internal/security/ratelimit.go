package security

import (
	"errors"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// ErrRateLimited is returned when a bucket has no tokens left.
var ErrRateLimited = errors.New("rate limit exceeded")

// Limited request kinds.
const (
	KindAuth     = "auth"
	KindAssemble = "assemble"
)

// RateLimitConfig sets per-minute budgets. Zero selects the default; a
// negative value turns the limit off.
type RateLimitConfig struct {
	// AuthPerMin bounds failed authentication attempts. Default 60.
	AuthPerMin int `yaml:"auth_per_min"`
	// AssemblePerMin bounds /v1/assemble calls. Default 600.
	AssemblePerMin int `yaml:"assemble_per_min"`
}

// RateLimiter keeps one token bucket per kind. A bucket holds a minute's
// budget and refills evenly over the minute.
type RateLimiter struct {
	mu     sync.RWMutex
	limits map[string]*rate.Limiter
	now    func() time.Time
}

// NewRateLimiter builds the buckets described by cfg.
func NewRateLimiter(cfg RateLimitConfig) *RateLimiter {
	rl := &RateLimiter{limits: map[string]*rate.Limiter{}, now: time.Now}
	rl.Configure(cfg)
	return rl
}

// Configure applies new budgets. A bucket that stays enabled keeps the
// tokens it holds, capped at its new size.
func (rl *RateLimiter) Configure(cfg RateLimitConfig) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	rl.set(KindAuth, cfg.AuthPerMin, 60)
	rl.set(KindAssemble, cfg.AssemblePerMin, 600)
}

func (rl *RateLimiter) set(kind string, perMin, def int) {
	if perMin == 0 {
		perMin = def
	}
	if perMin < 0 {
		delete(rl.limits, kind)
		return
	}
	every := rate.Every(time.Minute / time.Duration(perMin))
	if lim, ok := rl.limits[kind]; ok {
		now := rl.now()
		lim.SetLimitAt(now, every)
		lim.SetBurstAt(now, perMin)
		return
	}
	rl.limits[kind] = rate.NewLimiter(every, perMin)
}

func (rl *RateLimiter) bucket(kind string) (*rate.Limiter, bool) {
	rl.mu.RLock()
	defer rl.mu.RUnlock()
	lim, ok := rl.limits[kind]
	return lim, ok
}

// Allow takes one token from the kind's bucket. Kinds without a bucket
// are never limited.
func (rl *RateLimiter) Allow(kind string) error {
	return rl.AllowN(kind, 1)
}

// Exhausted reports whether the kind's bucket has less than one token
// left, without taking any.
func (rl *RateLimiter) Exhausted(kind string) bool {
	lim, ok := rl.bucket(kind)
	return ok && lim.TokensAt(rl.now()) < 1
}

// AllowN takes n tokens at once, or none.
func (rl *RateLimiter) AllowN(kind string, n int) error {
	lim, ok := rl.bucket(kind)
	if !ok || lim.AllowN(rl.now(), n) {
		return nil
	}
	return ErrRateLimited
}
