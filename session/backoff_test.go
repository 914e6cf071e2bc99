package session

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBackoffState_NextGrowsAndCaps(t *testing.T) {
	var b backoffState

	first := b.next()
	assert.InDelta(t, time.Second, first, float64(300*time.Millisecond))

	for i := 0; i < 10; i++ {
		b.next()
	}
	capped := b.next()
	assert.LessOrEqual(t, capped, time.Duration(float64(backoffMax)*1.21))
}

func TestBackoffState_MaybeResetClearsAfterStablePeriod(t *testing.T) {
	var b backoffState
	b.next()
	b.next()

	now := time.Now()
	b.markReady(now)
	b.maybeReset(now.Add(30 * time.Second))
	assert.Equal(t, 2, b.attempt, "reset should not fire before stableResetAfter elapses")

	b.maybeReset(now.Add(stableResetAfter + time.Second))
	assert.Equal(t, 0, b.attempt)
}
