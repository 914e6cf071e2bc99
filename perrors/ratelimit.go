package perrors

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// WarnLimiter rate-limits one structured WARN log per distinct Kind per
// window (default 60s, per spec.md §7's "exactly one WARN log per distinct
// error kind per 60s" rule). Callers call Allow(kind) before logging; a
// false result means the kind was already logged within the window.
type WarnLimiter struct {
	window time.Duration

	mu       sync.Mutex
	limiters map[Kind]*rate.Limiter
}

// NewWarnLimiter builds a limiter allowing one event per window per Kind.
func NewWarnLimiter(window time.Duration) *WarnLimiter {
	if window <= 0 {
		window = 60 * time.Second
	}
	return &WarnLimiter{window: window, limiters: make(map[Kind]*rate.Limiter)}
}

// Allow reports whether a WARN for kind should be emitted now.
func (w *WarnLimiter) Allow(kind Kind) bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	lim, ok := w.limiters[kind]
	if !ok {
		lim = rate.NewLimiter(rate.Every(w.window), 1)
		w.limiters[kind] = lim
	}
	return lim.Allow()
}
