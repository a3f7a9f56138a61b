// Package snapshot implements periodic materialization of a coordinate's
// state so that reconstruction never has to replay its whole delta
// history. A snapshot records the head delta it was taken at; replaying
// only the deltas strictly newer than that head reproduces the current
// state.
package snapshot

import (
	"time"

	"github.com/chartlylabs/vstate/pkg/delta"
	vstateerrors "github.com/chartlylabs/vstate/pkg/errors"
	"github.com/chartlylabs/vstate/pkg/store"
)

// DefaultInterval is the default snapshot cadence: a snapshot is taken
// every DefaultInterval deltas.
const DefaultInterval = 128

// Manager decides when to snapshot and reconstructs state from a
// snapshot plus a run of forward deltas.
type Manager struct {
	Interval int
}

// NewManager returns a Manager with the given cadence, or DefaultInterval
// if interval is not positive.
func NewManager(interval int) *Manager {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Manager{Interval: interval}
}

// ShouldSnapshot reports whether a coordinate with n deltas (after the
// append that just happened) is due for a snapshot.
func (m *Manager) ShouldSnapshot(n int) bool {
	if m.Interval <= 0 {
		return n%DefaultInterval == 0
	}
	return n%m.Interval == 0
}

// Reconstruct applies forwardDeltas, in order, on top of snap.State. It
// trusts its input completely: it is the caller's responsibility to pass
// only deltas strictly newer than snap.HeadDeltaID. Passing deltas that
// are already baked into the snapshot would double-apply them and
// silently corrupt the result; Reconstruct has no way to detect that
// from the deltas alone, so it does not try.
func (m *Manager) Reconstruct(snap store.Snapshot, forwardDeltas []store.Delta) (delta.Value, error) {
	state := delta.Clone(snap.State)
	for _, d := range forwardDeltas {
		next, err := delta.ApplyPatch(state, d.Ops)
		if err != nil {
			return delta.Value{}, vstateerrors.ReconstructionFailedErr(d.ID, err)
		}
		state = next
	}
	return state, nil
}

// CreateSnapshot builds a Snapshot for coordID at the given head delta
// and state.
func CreateSnapshot(coordID, headDeltaID string, state delta.Value, createdAt time.Time) (store.Snapshot, error) {
	h, err := delta.HashState(state)
	if err != nil {
		return store.Snapshot{}, err
	}
	return store.Snapshot{
		ID:          SnapshotID(h),
		CoordID:     coordID,
		HeadDeltaID: headDeltaID,
		StateHash:   h,
		State:       delta.Clone(state),
		CreatedAt:   createdAt,
	}, nil
}

// SnapshotID derives a snapshot id from a state hash: the first 32 hex
// characters (16 bytes) of the hash.
func SnapshotID(stateHashHex string) string {
	if len(stateHashHex) < 32 {
		return stateHashHex
	}
	return stateHashHex[:32]
}

// VerifySnapshot recomputes snap.State's hash and compares it against
// snap.StateHash.
func VerifySnapshot(snap store.Snapshot) error {
	h, err := delta.HashState(snap.State)
	if err != nil {
		return err
	}
	if h != snap.StateHash {
		return vstateerrors.HashMismatchErr(snap.StateHash, h)
	}
	return nil
}

// FindNearestSnapshot returns the latest snapshot in snapshots (assumed
// sorted oldest-first by CreatedAt), or false if snapshots is empty.
func FindNearestSnapshot(snapshots []store.Snapshot) (store.Snapshot, bool) {
	if len(snapshots) == 0 {
		return store.Snapshot{}, false
	}
	return snapshots[len(snapshots)-1], true
}
