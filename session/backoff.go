package session

import (
	"math/rand"
	"time"
)

// backoffMax and backoffBase bound the reconnect delay: min(30s, 1s*2^attempt),
// jittered by +/-20% (spec.md §4.6, "reconnection backoff").
const (
	backoffBase = time.Second
	backoffMax  = 30 * time.Second

	// stableResetAfter is how long a session must stay READY before the
	// backoff attempt counter resets to zero.
	stableResetAfter = 60 * time.Second
)

// backoffState tracks reconnect attempts and the time the session last
// entered READY, so a long-lived connection doesn't carry stale backoff
// history into its next reconnect.
type backoffState struct {
	attempt      int
	readySince   time.Time
}

func (b *backoffState) next() time.Duration {
	delay := backoffMax
	if b.attempt < 30 { // larger shifts would overflow time.Duration
		if d := backoffBase * time.Duration(1<<uint(b.attempt)); d < backoffMax {
			delay = d
		}
	}
	b.attempt++

	jitter := 1 + (rand.Float64()*0.4 - 0.2) // +/-20%
	return time.Duration(float64(delay) * jitter)
}

func (b *backoffState) markReady(now time.Time) {
	b.readySince = now
}

// maybeReset clears the attempt counter once the session has been READY for
// longer than stableResetAfter.
func (b *backoffState) maybeReset(now time.Time) {
	if !b.readySince.IsZero() && now.Sub(b.readySince) >= stableResetAfter {
		b.attempt = 0
		b.readySince = time.Time{}
	}
}
