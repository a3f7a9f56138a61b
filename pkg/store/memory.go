package store

import (
	"context"
	"sort"
	"sync"

	vstateerrors "github.com/chartlylabs/vstate/pkg/errors"
)

// MemoryRepository is an in-process Repository backed by maps guarded by
// a single mutex. It never persists anything; it exists for tests and
// for single-process deployments that don't need durability.
type MemoryRepository struct {
	mu sync.Mutex

	coords    map[string]Coordinate
	deltas    map[string]Delta
	deltasBy  map[string][]string // coordID -> delta ids, insertion order
	snapshots map[string]Snapshot
	snapsBy   map[string][]string // coordID -> snapshot ids, insertion order
}

// NewMemoryRepository returns an empty MemoryRepository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		coords:    make(map[string]Coordinate),
		deltas:    make(map[string]Delta),
		deltasBy:  make(map[string][]string),
		snapshots: make(map[string]Snapshot),
		snapsBy:   make(map[string][]string),
	}
}

func (r *MemoryRepository) InsertCoordinate(_ context.Context, c Coordinate) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.coords[c.ID]; exists {
		return vstateerrors.CoordinateCollisionErr(c.ID)
	}
	r.coords[c.ID] = c
	return nil
}

func (r *MemoryRepository) GetCoordinate(_ context.Context, id string) (Coordinate, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.coords[id]
	if !ok {
		return Coordinate{}, vstateerrors.New(vstateerrors.NotFound, "coordinate not found")
	}
	return c, nil
}

func (r *MemoryRepository) CoordinateExists(_ context.Context, id string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.coords[id]
	return ok, nil
}

func (r *MemoryRepository) ListCoordinates(_ context.Context, limit int) ([]Coordinate, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Coordinate, 0, len(r.coords))
	for _, c := range r.coords {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *MemoryRepository) InsertDelta(_ context.Context, d Delta) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.deltas[d.ID]; exists {
		return vstateerrors.Newf(vstateerrors.Io, "delta %s already exists", d.ID)
	}
	r.deltas[d.ID] = d
	r.deltasBy[d.CoordID] = append(r.deltasBy[d.CoordID], d.ID)
	return nil
}

func (r *MemoryRepository) GetDelta(_ context.Context, id string) (Delta, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.deltas[id]
	if !ok {
		return Delta{}, vstateerrors.New(vstateerrors.NotFound, "delta not found")
	}
	return d, nil
}

func (r *MemoryRepository) GetDeltas(_ context.Context, coordID string) ([]Delta, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ids := r.deltasBy[coordID]
	out := make([]Delta, 0, len(ids))
	for _, id := range ids {
		out = append(out, r.deltas[id])
	}
	return out, nil
}

func (r *MemoryRepository) CountDeltas(_ context.Context, coordID string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.deltasBy[coordID]), nil
}

func (r *MemoryRepository) InsertSnapshot(_ context.Context, s Snapshot) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.snapshots[s.ID] = s
	r.snapsBy[s.CoordID] = append(r.snapsBy[s.CoordID], s.ID)
	return nil
}

func (r *MemoryRepository) GetSnapshot(_ context.Context, id string) (Snapshot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.snapshots[id]
	if !ok {
		return Snapshot{}, vstateerrors.New(vstateerrors.NotFound, "snapshot not found")
	}
	return s, nil
}

func (r *MemoryRepository) GetLatestSnapshot(_ context.Context, coordID string) (Snapshot, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ids := r.snapsBy[coordID]
	if len(ids) == 0 {
		return Snapshot{}, false, nil
	}
	return r.snapshots[ids[len(ids)-1]], true, nil
}

func (r *MemoryRepository) GetStats(_ context.Context) (Stats, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return Stats{
		CoordinateCount: uint64(len(r.coords)),
		DeltaCount:      uint64(len(r.deltas)),
		SnapshotCount:   uint64(len(r.snapshots)),
	}, nil
}
