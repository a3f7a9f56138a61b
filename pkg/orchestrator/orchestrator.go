// Package orchestrator implements the engine's four use cases — Append,
// Recall, Verify, and ForceSnapshot — composing coordinate derivation,
// the delta engine, the chain linker, the snapshot manager, and a
// storage Repository into the write/read path clients actually call.
package orchestrator

import (
	"context"
	"sync"
	"time"

	"github.com/chartlylabs/vstate/pkg/chain"
	"github.com/chartlylabs/vstate/pkg/coordinate"
	"github.com/chartlylabs/vstate/pkg/delta"
	vstateerrors "github.com/chartlylabs/vstate/pkg/errors"
	"github.com/chartlylabs/vstate/pkg/snapshot"
	"github.com/chartlylabs/vstate/pkg/store"
)

// maxCollisionRetries bounds how many nonce-mixed coordinate derivations
// Append will attempt before giving up on a caller-requested new
// coordinate. A collision this many times running is indistinguishable
// from a misbehaving clock or a Repository bug.
const maxCollisionRetries = 16

// Orchestrator ties the engine's components to a Repository.
type Orchestrator struct {
	repo     store.Repository
	snapshot *snapshot.Manager

	locksMu sync.Mutex
	locks   map[string]*sync.Mutex
}

// New returns an Orchestrator backed by repo, snapshotting every
// snapshotInterval deltas (snapshot.DefaultInterval if <= 0).
func New(repo store.Repository, snapshotInterval int) *Orchestrator {
	return &Orchestrator{
		repo:     repo,
		snapshot: snapshot.NewManager(snapshotInterval),
		locks:    make(map[string]*sync.Mutex),
	}
}

func (o *Orchestrator) lockFor(coordID string) *sync.Mutex {
	o.locksMu.Lock()
	defer o.locksMu.Unlock()
	l, ok := o.locks[coordID]
	if !ok {
		l = &sync.Mutex{}
		o.locks[coordID] = l
	}
	return l
}

// AppendRequest is the input to Append.
type AppendRequest struct {
	// CoordID, if set, appends to an existing (or newly named) history.
	// If empty, a coordinate id is derived from State and Now.
	CoordID string
	State   delta.Value
	Tags    []string
	Author  string
	Now     time.Time
}

// AppendResult is the output of Append.
type AppendResult struct {
	CoordID         string
	DeltaID         string
	SnapshotCreated bool
}

// Append resolves (or derives) a coordinate, computes the delta between
// its current reconstructed state and the new state, links it into the
// chain, persists it, and snapshots if the cadence calls for it. The
// whole operation runs under a per-coordinate lock so concurrent appends
// to the same coordinate serialize while appends to different
// coordinates run fully in parallel.
func (o *Orchestrator) Append(ctx context.Context, req AppendRequest) (AppendResult, error) {
	now := req.Now
	if now.IsZero() {
		now = time.Now().UTC()
	}

	coordID, created, err := o.resolveCoordinate(ctx, req.CoordID, req.State, now)
	if err != nil {
		return AppendResult{}, err
	}

	lock := o.lockFor(coordID)
	lock.Lock()
	defer lock.Unlock()

	if !created {
		exists, err := o.repo.CoordinateExists(ctx, coordID)
		if err != nil {
			return AppendResult{}, err
		}
		if !exists {
			if err := o.repo.InsertCoordinate(ctx, store.Coordinate{ID: coordID, CreatedAt: now, Metadata: delta.Null()}); err != nil {
				return AppendResult{}, err
			}
		}
	}

	prevState, deltas, err := o.reconstructCurrent(ctx, coordID)
	if err != nil {
		return AppendResult{}, err
	}

	ops := delta.ComputeDelta(prevState, req.State)
	deltaHash, err := delta.HashDelta(ops)
	if err != nil {
		return AppendResult{}, err
	}
	deltaID := delta.GenerateDeltaID(deltaHash)

	var parentID, parentHash string
	if len(deltas) > 0 {
		last := deltas[len(deltas)-1]
		parentID = last.ID
		parentHash = last.ChainHash
	}
	chainHash := chain.ComputeChainHash(parentHash, deltaHash)

	d := store.Delta{
		ID:         deltaID,
		CoordID:    coordID,
		ParentID:   parentID,
		ParentHash: parentHash,
		DeltaHash:  deltaHash,
		ChainHash:  chainHash,
		Ops:        ops,
		CreatedAt:  now,
		Tags:       req.Tags,
		Author:     req.Author,
	}
	if err := o.repo.InsertDelta(ctx, d); err != nil {
		return AppendResult{}, err
	}

	count, err := o.repo.CountDeltas(ctx, coordID)
	if err != nil {
		return AppendResult{}, err
	}

	snapshotCreated := false
	if o.snapshot.ShouldSnapshot(count) {
		snap, err := snapshot.CreateSnapshot(coordID, deltaID, req.State, now)
		if err != nil {
			return AppendResult{}, err
		}
		if err := o.repo.InsertSnapshot(ctx, snap); err != nil {
			return AppendResult{}, err
		}
		snapshotCreated = true
	}

	return AppendResult{CoordID: coordID, DeltaID: deltaID, SnapshotCreated: snapshotCreated}, nil
}

// resolveCoordinate derives a coordinate id for req.CoordID == "", retrying
// with a mixed-in nonce on derivation collision, or validates and passes
// through an explicit id. The returned bool reports whether a brand new
// coordinate id was derived (and has already been inserted here).
func (o *Orchestrator) resolveCoordinate(ctx context.Context, coordID string, state delta.Value, now time.Time) (string, bool, error) {
	if coordID != "" {
		if err := coordinate.Validate(coordID); err != nil {
			return "", false, err
		}
		return coordID, false, nil
	}

	id, err := coordinate.GenerateWithNonce(state, now, nil)
	if err != nil {
		return "", false, err
	}
	for attempt := uint32(0); attempt < maxCollisionRetries; attempt++ {
		exists, err := o.repo.CoordinateExists(ctx, id)
		if err != nil {
			return "", false, err
		}
		if !exists {
			if err := o.repo.InsertCoordinate(ctx, store.Coordinate{ID: id, CreatedAt: now, Metadata: delta.Null()}); err != nil {
				if e2, ok := vstateerrors.AsError(err); ok && e2.Code == vstateerrors.CoordinateCollision {
					nonce := attempt + 1
					id, err = coordinate.GenerateWithNonce(state, now, &nonce)
					if err != nil {
						return "", false, err
					}
					continue
				}
				return "", false, err
			}
			return id, true, nil
		}
		nonce := attempt + 1
		id, err = coordinate.GenerateWithNonce(state, now, &nonce)
		if err != nil {
			return "", false, err
		}
	}
	return "", false, vstateerrors.CoordinateCollisionErr(id)
}

// reconstructCurrent returns the current reconstructed state of coordID
// and its full delta history (oldest first). With no deltas at all the
// state is an empty object, matching a coordinate that has never been
// appended to.
func (o *Orchestrator) reconstructCurrent(ctx context.Context, coordID string) (delta.Value, []store.Delta, error) {
	deltas, err := o.repo.GetDeltas(ctx, coordID)
	if err != nil {
		return delta.Value{}, nil, err
	}
	if len(deltas) == 0 {
		return delta.Object(), nil, nil
	}

	snap, ok, err := o.repo.GetLatestSnapshot(ctx, coordID)
	if err != nil {
		return delta.Value{}, nil, err
	}
	if !ok {
		state, err := foldFromEmpty(deltas)
		if err != nil {
			return delta.Value{}, nil, err
		}
		return state, deltas, nil
	}

	forward := deltasAfter(deltas, snap.HeadDeltaID)
	state, err := o.snapshot.Reconstruct(snap, forward)
	if err != nil {
		return delta.Value{}, nil, err
	}
	return state, deltas, nil
}

// deltasAfter returns the suffix of deltas (assumed oldest-first) that
// follows headDeltaID. This is the filtering step the orchestrator owns:
// snapshot.Reconstruct trusts whatever it is given, so passing it every
// delta instead of just the ones after the snapshot's head would
// double-apply the deltas already baked into snap.State.
func deltasAfter(deltas []store.Delta, headDeltaID string) []store.Delta {
	if headDeltaID == "" {
		return deltas
	}
	for i, d := range deltas {
		if d.ID == headDeltaID {
			return deltas[i+1:]
		}
	}
	return deltas
}

func foldFromEmpty(deltas []store.Delta) (delta.Value, error) {
	state := delta.Object()
	for _, d := range deltas {
		next, err := delta.ApplyPatch(state, d.Ops)
		if err != nil {
			return delta.Value{}, vstateerrors.ReconstructionFailedErr(d.ID, err)
		}
		state = next
	}
	return state, nil
}

// RecallResult is the output of Recall.
type RecallResult struct {
	CoordID    string
	State      delta.Value
	DeltaCount int
}

// Recall reconstructs a coordinate's current state.
func (o *Orchestrator) Recall(ctx context.Context, coordID string) (RecallResult, error) {
	if err := coordinate.Validate(coordID); err != nil {
		return RecallResult{}, err
	}
	if _, err := o.repo.GetCoordinate(ctx, coordID); err != nil {
		return RecallResult{}, err
	}
	state, deltas, err := o.reconstructCurrent(ctx, coordID)
	if err != nil {
		return RecallResult{}, err
	}
	if len(deltas) == 0 {
		return RecallResult{}, vstateerrors.New(vstateerrors.NotFound, "coordinate has no recorded deltas")
	}
	return RecallResult{CoordID: coordID, State: state, DeltaCount: len(deltas)}, nil
}

// VerifyResult is the output of Verify.
type VerifyResult struct {
	CoordID        string
	VerifiedDeltas int
	TotalDeltas    int
	ChainValid     bool
	FirstBreak     *int
}

// Verify checks a coordinate's full delta history for chain integrity.
func (o *Orchestrator) Verify(ctx context.Context, coordID string) (VerifyResult, error) {
	if err := coordinate.Validate(coordID); err != nil {
		return VerifyResult{}, err
	}
	deltas, err := o.repo.GetDeltas(ctx, coordID)
	if err != nil {
		return VerifyResult{}, err
	}

	links := make([]chain.Link, len(deltas))
	for i, d := range deltas {
		links[i] = chain.Link{
			DeltaID:    d.ID,
			ParentID:   d.ParentID,
			ParentHash: d.ParentHash,
			DeltaHash:  d.DeltaHash,
			ChainHash:  d.ChainHash,
		}
	}

	verified, verr := chain.VerifyChainIntegrity(links)
	result := VerifyResult{
		CoordID:        coordID,
		VerifiedDeltas: verified,
		TotalDeltas:    len(deltas),
		ChainValid:     verr == nil,
	}
	if verr != nil {
		result.FirstBreak = &verified
	}
	return result, nil
}

// ForceSnapshot reconstructs a coordinate's current state and writes a
// snapshot regardless of cadence.
func (o *Orchestrator) ForceSnapshot(ctx context.Context, coordID string, now time.Time) (store.Snapshot, error) {
	if err := coordinate.Validate(coordID); err != nil {
		return store.Snapshot{}, err
	}
	if now.IsZero() {
		now = time.Now().UTC()
	}

	lock := o.lockFor(coordID)
	lock.Lock()
	defer lock.Unlock()

	state, deltas, err := o.reconstructCurrent(ctx, coordID)
	if err != nil {
		return store.Snapshot{}, err
	}
	var headDeltaID string
	if len(deltas) > 0 {
		headDeltaID = deltas[len(deltas)-1].ID
	}

	snap, err := snapshot.CreateSnapshot(coordID, headDeltaID, state, now)
	if err != nil {
		return store.Snapshot{}, err
	}
	if err := o.repo.InsertSnapshot(ctx, snap); err != nil {
		return store.Snapshot{}, err
	}
	return snap, nil
}

// ListCoordinates and Stats pass straight through to the Repository;
// they carry no orchestration logic of their own.
func (o *Orchestrator) ListCoordinates(ctx context.Context, limit int) ([]store.Coordinate, error) {
	return o.repo.ListCoordinates(ctx, limit)
}

func (o *Orchestrator) Stats(ctx context.Context) (store.Stats, error) {
	return o.repo.GetStats(ctx)
}
