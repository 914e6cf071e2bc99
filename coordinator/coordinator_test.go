package coordinator

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/elegoo-bridge/core/model"
)

type fakeSession struct {
	state    model.SessionState
	snapshot model.StatusSnapshot
	calls    atomic.Int32
	block    chan struct{}
}

func (f *fakeSession) RefreshStatus(ctx context.Context) (model.StatusSnapshot, error) {
	f.calls.Add(1)
	if f.block != nil {
		select {
		case <-f.block:
		case <-ctx.Done():
			return model.StatusSnapshot{}, ctx.Err()
		}
	}
	return f.snapshot, nil
}

func (f *fakeSession) Snapshot() model.StatusSnapshot { return f.snapshot }
func (f *fakeSession) State() model.SessionState      { return f.state }

var _ SessionLike = (*fakeSession)(nil)

func TestCoordinator_PublishesOnChange(t *testing.T) {
	fs := &fakeSession{state: model.StateReady, snapshot: model.StatusSnapshot{Machine: model.MachineSection{Status: "idle"}}}
	c := New(fs, 10*time.Millisecond)
	sub := c.Subscribe()
	c.Start()
	defer c.Stop()

	select {
	case snap := <-sub:
		assert.Equal(t, "idle", snap.Machine.Status)
	case <-time.After(time.Second):
		t.Fatal("expected a published snapshot")
	}
}

func TestCoordinator_SkipsDuplicatePublish(t *testing.T) {
	fs := &fakeSession{state: model.StateReady, snapshot: model.StatusSnapshot{Machine: model.MachineSection{Status: "idle"}}}
	c := New(fs, 5*time.Millisecond)
	sub := c.Subscribe()
	c.Start()
	defer c.Stop()

	require.Eventually(t, func() bool {
		select {
		case <-sub:
			return true
		default:
			return false
		}
	}, time.Second, 5*time.Millisecond)

	// Drain any further sends for a bit; since the snapshot never changes,
	// nothing further should arrive even though RefreshStatus keeps firing.
	select {
	case <-sub:
		t.Fatal("unexpected second publish for an unchanged snapshot")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestCoordinator_SkipsTickWhilePollInFlight(t *testing.T) {
	fs := &fakeSession{state: model.StateReady, block: make(chan struct{})}
	c := New(fs, 5*time.Millisecond)
	c.Start()
	defer c.Stop()

	time.Sleep(50 * time.Millisecond)
	assert.EqualValues(t, 1, fs.calls.Load(), "a blocked poll should suppress further ticks")
	close(fs.block)
}

func TestCoordinator_SnapshotFallsBackToSessionBeforeFirstPoll(t *testing.T) {
	fs := &fakeSession{state: model.StateReady, snapshot: model.StatusSnapshot{Machine: model.MachineSection{Status: "printing"}}}
	c := New(fs, time.Hour)
	assert.Equal(t, "printing", c.Snapshot().Machine.Status)
}
