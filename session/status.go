package session

import (
	"encoding/json"
	"sync"

	"github.com/elegoo-bridge/core/model"
)

// knownSections lists the status-tree top-level keys the typed
// StatusSnapshot fields understand. Anything else is preserved verbatim in
// StatusSnapshot.Extensions (spec.md §4.6).
var knownSections = map[string]bool{
	"machine":  true,
	"print":    true,
	"extruder": true,
	"bed":      true,
	"fans":     true,
	"led":      true,
	"position": true,
}

// maxNonContinuous is the number of sequence-number gaps, counted
// cumulatively since the last full refresh, at which a full refresh is
// requested instead of continuing to trust the merged delta (spec.md §4.6,
// "continuity tracking").
const maxNonContinuous = 5

// statusTracker owns the merged status tree for one session: it applies
// inbound deltas, derives the typed StatusSnapshot, and tracks sequence
// continuity to decide when a full re-sync is warranted.
type statusTracker struct {
	mu   sync.Mutex
	tree map[string]any

	lastUpdateID    uint64
	haveFirstUpdate bool
	nonContinuous   int
	stale           bool
}

// applyDelta merges event into the cached tree and returns the refreshed
// snapshot plus whether a full refresh should now be requested.
func (t *statusTracker) applyDelta(event model.StatusEvent) (model.StatusSnapshot, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.haveFirstUpdate && event.LastUpdateID < t.lastUpdateID {
		// Regression: the cached id must never move backwards (spec.md §3,
		// §8). Merge the delta's fields in for freshness but force a refresh
		// to recover a known-good baseline instead of trusting the id.
		t.tree = deepMerge(t.tree, normalizeTree(event.Tree))
		return t.snapshotLocked(), true
	}

	needsRefresh := false
	if t.haveFirstUpdate && event.LastUpdateID != t.lastUpdateID && event.LastUpdateID != t.lastUpdateID+1 {
		// Cumulative across the whole gap-prone stretch, not reset on every
		// contiguous arrival in between — otherwise scattered single-gap
		// drops never accumulate to the threshold.
		t.nonContinuous++
		if t.nonContinuous >= maxNonContinuous {
			needsRefresh = true
			t.nonContinuous = 0
		}
	}

	t.tree = deepMerge(t.tree, normalizeTree(event.Tree))
	t.lastUpdateID = event.LastUpdateID
	t.haveFirstUpdate = true

	snap := t.snapshotLocked()
	return snap, needsRefresh || snap.Tainted
}

// replaceFull discards the cached tree and starts fresh from a full status
// response, used after registration and after a continuity-triggered
// refresh (spec.md §4.6).
func (t *statusTracker) replaceFull(event model.StatusEvent) model.StatusSnapshot {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.tree = normalizeTree(event.Tree)
	t.lastUpdateID = event.LastUpdateID
	t.haveFirstUpdate = true
	t.nonContinuous = 0
	t.stale = false

	return t.snapshotLocked()
}

func (t *statusTracker) snapshot() model.StatusSnapshot {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.snapshotLocked()
}

// setStale marks (or clears) the cached snapshot as last-known-but-not-current
// while the transport is down (spec.md §4.4).
func (t *statusTracker) setStale(v bool) {
	t.mu.Lock()
	t.stale = v
	t.mu.Unlock()
}

func (t *statusTracker) snapshotLocked() model.StatusSnapshot {
	snap := decodeSnapshot(t.tree)
	snap.LastUpdateID = t.lastUpdateID
	snap.Stale = t.stale
	if snap.Machine.Status == model.MachineStatusPrinting && (snap.Print.Filename == "" || snap.Print.UUID == "") {
		snap.Tainted = true
	}
	return snap
}

// decodeSnapshot projects a merged generic tree into the typed
// StatusSnapshot shape via a JSON round-trip, stashing unrecognized
// top-level keys in Extensions.
func decodeSnapshot(tree map[string]any) model.StatusSnapshot {
	var snap model.StatusSnapshot
	if tree == nil {
		return snap
	}

	raw, err := json.Marshal(tree)
	if err == nil {
		_ = json.Unmarshal(raw, &snap)
	}

	for k, v := range tree {
		if knownSections[k] {
			continue
		}
		if snap.Extensions == nil {
			snap.Extensions = make(map[string]any)
		}
		snap.Extensions[k] = v
	}
	return snap
}

// normalizeTree folds known firmware field-name variants (e.g.
// "TotalLayers" alongside "total_layer") onto the canonical key the typed
// struct expects, without discarding the original so Extensions round-trips
// still see what the firmware actually sent.
func normalizeTree(tree map[string]any) map[string]any {
	if tree == nil {
		return nil
	}
	if print, ok := tree["print"].(map[string]any); ok {
		if v, ok := print["TotalLayers"]; ok {
			if _, already := print["total_layer"]; !already {
				print["total_layer"] = v
			}
		}
	}
	return tree
}
