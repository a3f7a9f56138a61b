// Package store defines the engine's domain types and the repository
// contract every storage backend (in-memory, SQLite, Postgres)
// implements: coordinates, deltas, and periodic snapshots.
package store

import (
	"context"
	"time"

	"github.com/chartlylabs/vstate/pkg/delta"
)

// Coordinate is a named version history: the root a delta chain hangs
// off of.
type Coordinate struct {
	ID        string      `json:"id"`
	CreatedAt time.Time   `json:"created_at"`
	Metadata  delta.Value `json:"metadata"`
}

// Delta is one recorded state transition within a coordinate's history.
type Delta struct {
	ID         string
	CoordID    string
	ParentID   string // empty for the first delta in the coordinate
	ParentHash string // empty iff ParentID is empty
	DeltaHash  string
	ChainHash  string
	Ops        delta.Patch
	CreatedAt  time.Time
	Tags       []string
	Author     string
}

// Snapshot is a materialized state at a point in a coordinate's history,
// used to bound reconstruction cost.
type Snapshot struct {
	ID          string
	CoordID     string
	HeadDeltaID string
	StateHash   string
	State       delta.Value
	CreatedAt   time.Time
}

// Stats summarizes repository-wide counts.
type Stats struct {
	CoordinateCount uint64
	DeltaCount      uint64
	SnapshotCount   uint64
}

// Repository is the storage contract every backend implements. All
// methods take a context so callers can bound slow I/O. GetCoordinate,
// GetDelta and GetSnapshot report a missing row as *errors.Error with
// code pkg/errors.NotFound; GetLatestSnapshot reports absence through
// its bool result instead.
type Repository interface {
	InsertCoordinate(ctx context.Context, c Coordinate) error
	GetCoordinate(ctx context.Context, id string) (Coordinate, error)
	CoordinateExists(ctx context.Context, id string) (bool, error)
	ListCoordinates(ctx context.Context, limit int) ([]Coordinate, error)

	InsertDelta(ctx context.Context, d Delta) error
	GetDelta(ctx context.Context, id string) (Delta, error)
	GetDeltas(ctx context.Context, coordID string) ([]Delta, error)
	CountDeltas(ctx context.Context, coordID string) (int, error)

	InsertSnapshot(ctx context.Context, s Snapshot) error
	GetSnapshot(ctx context.Context, id string) (Snapshot, error)
	GetLatestSnapshot(ctx context.Context, coordID string) (Snapshot, bool, error)

	GetStats(ctx context.Context) (Stats, error)
}
