package store

import (
	"context"
	"testing"
	"time"

	vstateerrors "github.com/chartlylabs/vstate/pkg/errors"
)

func TestMemoryRepositoryCoordinateLifecycle(t *testing.T) {
	ctx := context.Background()
	r := NewMemoryRepository()

	c := Coordinate{ID: "COORD1", CreatedAt: time.Now()}
	if err := r.InsertCoordinate(ctx, c); err != nil {
		t.Fatal(err)
	}
	if err := r.InsertCoordinate(ctx, c); err == nil {
		t.Fatal("expected collision error on duplicate insert")
	} else if vstateerrors.CodeOf(err) != vstateerrors.CoordinateCollision {
		t.Fatalf("expected CoordinateCollision, got %v", err)
	}

	got, err := r.GetCoordinate(ctx, "COORD1")
	if err != nil {
		t.Fatal(err)
	}
	if got.ID != "COORD1" {
		t.Fatalf("unexpected coordinate: %+v", got)
	}

	if _, err := r.GetCoordinate(ctx, "MISSING"); vstateerrors.CodeOf(err) != vstateerrors.NotFound {
		t.Fatalf("expected NotFound, got %v", err)
	}

	if exists, err := r.CoordinateExists(ctx, "COORD1"); err != nil || !exists {
		t.Fatalf("expected COORD1 to exist, got exists=%v err=%v", exists, err)
	}
	if exists, err := r.CoordinateExists(ctx, "MISSING"); err != nil || exists {
		t.Fatalf("expected MISSING to not exist, got exists=%v err=%v", exists, err)
	}
}

func TestMemoryRepositoryListCoordinatesOrdering(t *testing.T) {
	ctx := context.Background()
	r := NewMemoryRepository()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	if err := r.InsertCoordinate(ctx, Coordinate{ID: "OLD", CreatedAt: base}); err != nil {
		t.Fatal(err)
	}
	if err := r.InsertCoordinate(ctx, Coordinate{ID: "NEW", CreatedAt: base.Add(time.Hour)}); err != nil {
		t.Fatal(err)
	}

	list, err := r.ListCoordinates(ctx, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 2 || list[0].ID != "NEW" || list[1].ID != "OLD" {
		t.Fatalf("expected newest-first ordering, got %+v", list)
	}

	limited, err := r.ListCoordinates(ctx, 1)
	if err != nil {
		t.Fatal(err)
	}
	if len(limited) != 1 || limited[0].ID != "NEW" {
		t.Fatalf("expected limit to apply to newest-first order, got %+v", limited)
	}
}

func TestMemoryRepositoryDeltaLifecycle(t *testing.T) {
	ctx := context.Background()
	r := NewMemoryRepository()

	d1 := Delta{ID: "D1", CoordID: "COORD1", CreatedAt: time.Now()}
	d2 := Delta{ID: "D2", CoordID: "COORD1", ParentID: "D1", CreatedAt: time.Now()}
	if err := r.InsertDelta(ctx, d1); err != nil {
		t.Fatal(err)
	}
	if err := r.InsertDelta(ctx, d2); err != nil {
		t.Fatal(err)
	}
	if err := r.InsertDelta(ctx, d1); err == nil {
		t.Fatal("expected error inserting duplicate delta id")
	}

	deltas, err := r.GetDeltas(ctx, "COORD1")
	if err != nil {
		t.Fatal(err)
	}
	if len(deltas) != 2 || deltas[0].ID != "D1" || deltas[1].ID != "D2" {
		t.Fatalf("expected insertion-order deltas, got %+v", deltas)
	}

	count, err := r.CountDeltas(ctx, "COORD1")
	if err != nil {
		t.Fatal(err)
	}
	if count != 2 {
		t.Fatalf("expected count 2, got %d", count)
	}

	if _, err := r.GetDelta(ctx, "MISSING"); vstateerrors.CodeOf(err) != vstateerrors.NotFound {
		t.Fatalf("expected NotFound, got %v", err)
	}
}

func TestMemoryRepositorySnapshotLifecycle(t *testing.T) {
	ctx := context.Background()
	r := NewMemoryRepository()

	if _, ok, err := r.GetLatestSnapshot(ctx, "COORD1"); err != nil || ok {
		t.Fatalf("expected no snapshot yet, got ok=%v err=%v", ok, err)
	}

	s1 := Snapshot{ID: "S1", CoordID: "COORD1", CreatedAt: time.Now()}
	s2 := Snapshot{ID: "S2", CoordID: "COORD1", CreatedAt: time.Now()}
	if err := r.InsertSnapshot(ctx, s1); err != nil {
		t.Fatal(err)
	}
	if err := r.InsertSnapshot(ctx, s2); err != nil {
		t.Fatal(err)
	}

	latest, ok, err := r.GetLatestSnapshot(ctx, "COORD1")
	if err != nil || !ok || latest.ID != "S2" {
		t.Fatalf("expected latest snapshot S2, got %+v ok=%v err=%v", latest, ok, err)
	}

	got, err := r.GetSnapshot(ctx, "S1")
	if err != nil || got.ID != "S1" {
		t.Fatalf("expected S1, got %+v err=%v", got, err)
	}
}

func TestMemoryRepositoryStats(t *testing.T) {
	ctx := context.Background()
	r := NewMemoryRepository()

	if err := r.InsertCoordinate(ctx, Coordinate{ID: "C1", CreatedAt: time.Now()}); err != nil {
		t.Fatal(err)
	}
	if err := r.InsertDelta(ctx, Delta{ID: "D1", CoordID: "C1", CreatedAt: time.Now()}); err != nil {
		t.Fatal(err)
	}
	if err := r.InsertSnapshot(ctx, Snapshot{ID: "S1", CoordID: "C1", CreatedAt: time.Now()}); err != nil {
		t.Fatal(err)
	}

	stats, err := r.GetStats(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if stats.CoordinateCount != 1 || stats.DeltaCount != 1 || stats.SnapshotCount != 1 {
		t.Fatalf("unexpected stats: %+v", stats)
	}
}
