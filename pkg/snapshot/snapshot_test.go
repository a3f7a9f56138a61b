package snapshot

import (
	"testing"
	"time"

	"github.com/chartlylabs/vstate/pkg/delta"
	"github.com/chartlylabs/vstate/pkg/store"
)

func TestShouldSnapshotCadence(t *testing.T) {
	m := NewManager(128)
	for n := 1; n < 256; n++ {
		want := n%128 == 0
		if got := m.ShouldSnapshot(n); got != want {
			t.Fatalf("ShouldSnapshot(%d) = %v, want %v", n, got, want)
		}
	}
}

func TestShouldSnapshotDefaultInterval(t *testing.T) {
	m := NewManager(0)
	if !m.ShouldSnapshot(128) {
		t.Fatal("expected default interval of 128 to trigger at n=128")
	}
	if m.ShouldSnapshot(129) {
		t.Fatal("did not expect a snapshot at n=129 under default interval")
	}
}

func TestReconstructAppliesOnlyGivenDeltas(t *testing.T) {
	m := NewManager(128)
	base := delta.Object(delta.Member{Key: "a", Value: delta.Number("1")})
	snap, err := CreateSnapshot("COORD", "delta-0", base, time.Now())
	if err != nil {
		t.Fatal(err)
	}

	after := delta.Object(delta.Member{Key: "a", Value: delta.Number("2")})
	patch := delta.ComputeDelta(base, after)
	forward := []store.Delta{{ID: "delta-1", Ops: patch}}

	got, err := m.Reconstruct(snap, forward)
	if err != nil {
		t.Fatal(err)
	}
	if !delta.Equal(got, after) {
		t.Fatalf("reconstruction mismatch: %+v vs %+v", got, after)
	}
}

func TestVerifySnapshotDetectsTamperedState(t *testing.T) {
	base := delta.Object(delta.Member{Key: "a", Value: delta.Number("1")})
	snap, err := CreateSnapshot("COORD", "delta-0", base, time.Now())
	if err != nil {
		t.Fatal(err)
	}
	if err := VerifySnapshot(snap); err != nil {
		t.Fatalf("expected fresh snapshot to verify, got %v", err)
	}
	snap.State = delta.Object(delta.Member{Key: "a", Value: delta.Number("999")})
	if err := VerifySnapshot(snap); err == nil {
		t.Fatal("expected tampered snapshot to fail verification")
	}
}

func TestFindNearestSnapshot(t *testing.T) {
	if _, ok := FindNearestSnapshot(nil); ok {
		t.Fatal("expected no snapshot for empty slice")
	}
	snaps := []store.Snapshot{{ID: "s1"}, {ID: "s2"}}
	got, ok := FindNearestSnapshot(snaps)
	if !ok || got.ID != "s2" {
		t.Fatalf("expected latest snapshot s2, got %+v", got)
	}
}
