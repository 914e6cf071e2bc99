package session

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/elegoo-bridge/core/model"
)

func TestStatusTracker_ApplyDelta_MergesAndTracksLastUpdateID(t *testing.T) {
	var tr statusTracker

	snap, refresh := tr.applyDelta(model.StatusEvent{
		LastUpdateID: 1,
		Tree:         map[string]any{"machine": map[string]any{"status": "idle"}},
	})
	require.False(t, refresh)
	assert.Equal(t, "idle", snap.Machine.Status)
	assert.Equal(t, uint64(1), snap.LastUpdateID)

	snap, refresh = tr.applyDelta(model.StatusEvent{
		LastUpdateID: 2,
		Tree:         map[string]any{"machine": map[string]any{"status": "printing"}},
	})
	require.False(t, refresh)
	assert.Equal(t, "printing", snap.Machine.Status)
}

func TestStatusTracker_NonContinuousTriggersRefreshAtFive(t *testing.T) {
	var tr statusTracker

	_, _ = tr.applyDelta(model.StatusEvent{LastUpdateID: 1, Tree: map[string]any{}})

	var lastRefresh bool
	for i := 0; i < 5; i++ {
		// Skipping ahead by 10 each time is a discontinuity relative to +1.
		_, lastRefresh = tr.applyDelta(model.StatusEvent{LastUpdateID: uint64(100 + i*10), Tree: map[string]any{}})
	}
	assert.True(t, lastRefresh)
}

func TestStatusTracker_UnknownTopLevelKeyGoesToExtensions(t *testing.T) {
	var tr statusTracker
	snap, _ := tr.applyDelta(model.StatusEvent{
		LastUpdateID: 1,
		Tree:         map[string]any{"futureWidget": map[string]any{"level": 3.0}},
	})
	assert.Contains(t, snap.Extensions, "futureWidget")
}

func TestStatusTracker_RegressionForcesRefreshWithoutMovingIDBackwards(t *testing.T) {
	var tr statusTracker
	_, _ = tr.applyDelta(model.StatusEvent{LastUpdateID: 10, Tree: map[string]any{"machine": map[string]any{"status": "idle"}}})

	snap, refresh := tr.applyDelta(model.StatusEvent{LastUpdateID: 3, Tree: map[string]any{}})
	assert.True(t, refresh)
	assert.Equal(t, uint64(10), snap.LastUpdateID)
	assert.Equal(t, uint64(10), tr.lastUpdateID)
}

func TestStatusTracker_PrintingWithoutFilenameIsTainted(t *testing.T) {
	var tr statusTracker
	snap, refresh := tr.applyDelta(model.StatusEvent{
		LastUpdateID: 1,
		Tree:         map[string]any{"machine": map[string]any{"status": "printing"}},
	})
	assert.True(t, snap.Tainted)
	assert.True(t, refresh)
}

func TestStatusTracker_SetStaleMarksSnapshot(t *testing.T) {
	var tr statusTracker
	_, _ = tr.applyDelta(model.StatusEvent{LastUpdateID: 1, Tree: map[string]any{}})

	tr.setStale(true)
	assert.True(t, tr.snapshot().Stale)

	snap := tr.replaceFull(model.StatusEvent{LastUpdateID: 2, Tree: map[string]any{}})
	assert.False(t, snap.Stale)
}

func TestStatusTracker_ReplaceFullResetsContinuity(t *testing.T) {
	var tr statusTracker
	_, _ = tr.applyDelta(model.StatusEvent{LastUpdateID: 1, Tree: map[string]any{}})
	_, _ = tr.applyDelta(model.StatusEvent{LastUpdateID: 500, Tree: map[string]any{}}) // one gap, not yet 5

	snap := tr.replaceFull(model.StatusEvent{LastUpdateID: 9, Tree: map[string]any{"machine": map[string]any{"status": "idle"}}})
	assert.Equal(t, uint64(9), snap.LastUpdateID)

	_, refresh := tr.applyDelta(model.StatusEvent{LastUpdateID: 10, Tree: map[string]any{}})
	assert.False(t, refresh)
}
