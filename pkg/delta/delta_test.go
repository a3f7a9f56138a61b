package delta

import "testing"

func obj(pairs ...Member) Value { return Object(pairs...) }

func TestDiffAndApplyRoundTripObject(t *testing.T) {
	before := obj(
		Member{Key: "a", Value: Number("1")},
		Member{Key: "b", Value: String("keep")},
		Member{Key: "c", Value: Number("3")},
	)
	after := obj(
		Member{Key: "a", Value: Number("2")},
		Member{Key: "b", Value: String("keep")},
		Member{Key: "d", Value: Bool(true)},
	)
	patch := ComputeDelta(before, after)
	got, err := ApplyPatch(before, patch)
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if !Equal(got, after) {
		t.Fatalf("round trip mismatch: %+v vs %+v", got, after)
	}
}

func TestDiffArrayInsertAndRemove(t *testing.T) {
	before := Array(Number("1"), Number("2"), Number("3"))
	after := Array(Number("2"), Number("4"), Number("3"))
	patch := ComputeDelta(before, after)
	got, err := ApplyPatch(before, patch)
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if !Equal(got, after) {
		t.Fatalf("array round trip mismatch: %+v vs %+v", got, after)
	}
}

func TestDiffArrayAllRemoved(t *testing.T) {
	before := Array(Number("1"), Number("2"), Number("3"))
	after := Array()
	patch := ComputeDelta(before, after)
	got, err := ApplyPatch(before, patch)
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if !Equal(got, after) {
		t.Fatalf("mismatch: %+v vs %+v", got, after)
	}
}

func TestDiffNoopWhenEqual(t *testing.T) {
	v := obj(Member{Key: "a", Value: Number("1")})
	patch := ComputeDelta(v, v)
	if len(patch) != 0 {
		t.Fatalf("expected empty patch for identical values, got %v", patch)
	}
}

func TestDiffTypeChangeIsSingleReplace(t *testing.T) {
	before := obj(Member{Key: "a", Value: Number("1")})
	after := obj(Member{Key: "a", Value: String("now a string")})
	patch := ComputeDelta(before, after)
	if len(patch) != 1 || patch[0].Op != OpReplace {
		t.Fatalf("expected single replace op, got %v", patch)
	}
}

func TestHashDeltaDeterministic(t *testing.T) {
	before := obj(Member{Key: "a", Value: Number("1")})
	after := obj(Member{Key: "a", Value: Number("2")})
	p1 := ComputeDelta(before, after)
	p2 := ComputeDelta(before, after)
	h1, err := HashDelta(p1)
	if err != nil {
		t.Fatal(err)
	}
	h2, err := HashDelta(p2)
	if err != nil {
		t.Fatal(err)
	}
	if h1 != h2 {
		t.Fatalf("expected deterministic hash, got %s vs %s", h1, h2)
	}
	if len(GenerateDeltaID(h1)) != 32 {
		t.Fatalf("expected 32-hex-char delta id, got %q", GenerateDeltaID(h1))
	}
}

func TestHashStateDeterministicUnderKeyPermutation(t *testing.T) {
	a := obj(Member{Key: "x", Value: Number("1")}, Member{Key: "y", Value: Number("2")})
	b := obj(Member{Key: "y", Value: Number("2")}, Member{Key: "x", Value: Number("1")})
	ha, err := HashState(a)
	if err != nil {
		t.Fatal(err)
	}
	hb, err := HashState(b)
	if err != nil {
		t.Fatal(err)
	}
	if ha != hb {
		t.Fatalf("expected hash invariance under key order, got %s vs %s", ha, hb)
	}
}

func TestVerifyDeltaHash(t *testing.T) {
	before := obj(Member{Key: "a", Value: Number("1")})
	after := obj(Member{Key: "a", Value: Number("2")})
	patch := ComputeDelta(before, after)
	h, err := HashDelta(patch)
	if err != nil {
		t.Fatal(err)
	}
	ok, err := VerifyDeltaHash(patch, h)
	if err != nil {
		t.Fatal(err)
	}
	if !ok {
		t.Fatal("expected hash to verify")
	}
	ok, err = VerifyDeltaHash(patch, "deadbeef")
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Fatal("expected mismatched hash to fail verification")
	}
}

func TestApplyRemoveMissingKeyFails(t *testing.T) {
	v := obj(Member{Key: "a", Value: Number("1")})
	patch := Patch{{Op: OpRemove, Path: "/missing"}}
	if _, err := ApplyPatch(v, patch); err == nil {
		t.Fatal("expected error removing a missing key")
	}
}

func TestPathEscaping(t *testing.T) {
	before := obj(Member{Key: "a/b", Value: Number("1")}, Member{Key: "c~d", Value: Number("2")})
	after := obj(Member{Key: "a/b", Value: Number("9")}, Member{Key: "c~d", Value: Number("2")})
	patch := ComputeDelta(before, after)
	if len(patch) != 1 {
		t.Fatalf("expected one op, got %v", patch)
	}
	if patch[0].Path != "/a~1b" {
		t.Fatalf("expected escaped path /a~1b, got %s", patch[0].Path)
	}
	got, err := ApplyPatch(before, patch)
	if err != nil {
		t.Fatal(err)
	}
	if !Equal(got, after) {
		t.Fatalf("mismatch after escaped-path apply: %+v vs %+v", got, after)
	}
}
