package ratelimit

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// idleAfter is how long an unused key keeps its bucket
const idleAfter = 10 * time.Minute

type bucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// Limiter allows maxHits requests per window for each key, refilling evenly
type Limiter struct {
	mu      sync.Mutex
	limits  map[string]*bucket
	every   rate.Limit
	maxHits int
	now     func() time.Time
}

func NewLimiter(window time.Duration, maxHits int) *Limiter {
	if maxHits < 1 {
		maxHits = 1
	}
	return &Limiter{
		limits:  make(map[string]*bucket),
		every:   rate.Every(window / time.Duration(maxHits)),
		maxHits: maxHits,
		now:     time.Now,
	}
}

func (l *Limiter) Allow(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	l.evictIdle(now)

	b, exists := l.limits[key]
	if !exists {
		b = &bucket{limiter: rate.NewLimiter(l.every, l.maxHits)}
		l.limits[key] = b
	}
	b.lastSeen = now

	return b.limiter.AllowN(now, 1)
}

func (l *Limiter) evictIdle(now time.Time) {
	for key, b := range l.limits {
		if now.Sub(b.lastSeen) > idleAfter {
			delete(l.limits, key)
		}
	}
}
