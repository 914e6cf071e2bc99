// Package coordinator drives a session's periodic status refresh and
// republishes diffed snapshots to its own subscribers. It is the
// sdcp-generalized descendant of the teacher's printer.StatePoller: a
// ticker-driven poll loop with Start/Stop over a stop channel, except here
// the poll is a Session.RefreshStatus call rather than an HTTP GET, and the
// callback becomes a fan-out channel.
package coordinator

import (
	"context"
	"log/slog"
	"reflect"
	"sync"
	"sync/atomic"
	"time"

	"github.com/elegoo-bridge/core/model"
)

// defaultInterval matches spec.md §4.7's 2s refresh cadence.
const defaultInterval = 2 * time.Second

// pollTimeout bounds a single in-flight RefreshStatus call so a stuck
// printer can't wedge the ticker loop forever.
const pollTimeout = 5 * time.Second

// SessionLike is the subset of session.Session the Coordinator depends on.
// Declaring it here (rather than importing *session.Session directly) keeps
// the coordinator testable against a fake and avoids a needless concrete
// dependency on the session package's internals.
type SessionLike interface {
	RefreshStatus(ctx context.Context) (model.StatusSnapshot, error)
	Snapshot() model.StatusSnapshot
	State() model.SessionState
}

// Coordinator polls a session on a fixed interval, skipping ticks that
// arrive while a poll is already outstanding (debounce, not queueing), and
// emits a snapshot on its subscription stream whenever the result differs
// from the last one published.
//
// Reconnection itself remains the session's responsibility: its own
// heartbeat loop detects silence and redials with backoff. The Coordinator
// never redials — it only notices when State() reports DEGRADED or CLOSED,
// at which point it still polls (cheaply failing) rather than running a
// second, competing reconnect path.
type Coordinator struct {
	session  SessionLike
	interval time.Duration
	logger   *slog.Logger

	mu        sync.Mutex
	last      model.StatusSnapshot
	haveLast  bool
	subs      []chan model.StatusSnapshot

	inFlight atomic.Bool
	stopCh   chan struct{}
	stopOnce sync.Once
}

// New builds a Coordinator for the given session. A zero interval selects
// defaultInterval.
func New(session SessionLike, interval time.Duration) *Coordinator {
	if interval <= 0 {
		interval = defaultInterval
	}
	return &Coordinator{
		session:  session,
		interval: interval,
		logger:   slog.Default().With("component", "coordinator"),
		stopCh:   make(chan struct{}),
	}
}

// Start begins the poll loop in a background goroutine.
func (c *Coordinator) Start() {
	go c.run()
}

// Stop halts the poll loop. Safe to call more than once.
func (c *Coordinator) Stop() {
	c.stopOnce.Do(func() { close(c.stopCh) })
}

// Subscribe returns a channel of diffed snapshots: one value per poll whose
// result differs from the previously published snapshot.
func (c *Coordinator) Subscribe() <-chan model.StatusSnapshot {
	ch := make(chan model.StatusSnapshot, 8)
	c.mu.Lock()
	c.subs = append(c.subs, ch)
	c.mu.Unlock()
	return ch
}

// Snapshot returns the most recently published snapshot, or the session's
// current snapshot if the coordinator has not polled yet.
func (c *Coordinator) Snapshot() model.StatusSnapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.haveLast {
		return c.last
	}
	return c.session.Snapshot()
}

func (c *Coordinator) run() {
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-c.stopCh:
			return
		case <-ticker.C:
			c.tick()
		}
	}
}

func (c *Coordinator) tick() {
	if !c.inFlight.CompareAndSwap(false, true) {
		// A previous poll is still outstanding; skip this tick rather than
		// queueing it up behind the running one.
		return
	}
	defer c.inFlight.Store(false)

	ctx, cancel := context.WithTimeout(context.Background(), pollTimeout)
	defer cancel()

	snap, err := c.session.RefreshStatus(ctx)
	if err != nil {
		c.logger.Warn("poll failed", "error", err, "session_state", c.session.State())
		return
	}

	c.publishIfChanged(snap)
}

func (c *Coordinator) publishIfChanged(snap model.StatusSnapshot) {
	c.mu.Lock()
	changed := !c.haveLast || snapshotsDiffer(c.last, snap)
	c.last = snap
	c.haveLast = true
	subs := append([]chan model.StatusSnapshot(nil), c.subs...)
	c.mu.Unlock()

	if !changed {
		return
	}

	for _, ch := range subs {
		select {
		case ch <- snap.Clone():
		default:
		}
	}
}

// snapshotsDiffer compares the fields that matter to a consumer watching
// for change, ignoring LastUpdateID (which advances on every poll
// regardless of content) so an unchanged status doesn't spuriously fire.
func snapshotsDiffer(a, b model.StatusSnapshot) bool {
	a.LastUpdateID, b.LastUpdateID = 0, 0
	return !reflect.DeepEqual(a, b)
}
