package coordinate

import (
	"testing"
	"time"

	"github.com/chartlylabs/vstate/pkg/delta"
)

func sampleState() delta.Value {
	return delta.Object(delta.Member{Key: "hello", Value: delta.String("world")})
}

func TestGenerateLengthAndAlphabet(t *testing.T) {
	ts := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	id, err := Generate(sampleState(), ts)
	if err != nil {
		t.Fatal(err)
	}
	if len(id) != Len {
		t.Fatalf("expected %d chars, got %d (%q)", Len, len(id), id)
	}
	if err := Validate(id); err != nil {
		t.Fatalf("generated id failed validation: %v", err)
	}
}

func TestGenerateDeterministic(t *testing.T) {
	ts := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	id1, err := Generate(sampleState(), ts)
	if err != nil {
		t.Fatal(err)
	}
	id2, err := Generate(sampleState(), ts)
	if err != nil {
		t.Fatal(err)
	}
	if id1 != id2 {
		t.Fatalf("expected deterministic id, got %s vs %s", id1, id2)
	}
}

func TestGenerateDiffersByState(t *testing.T) {
	ts := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	other := delta.Object(delta.Member{Key: "hello", Value: delta.String("elsewhere")})
	id1, err := Generate(sampleState(), ts)
	if err != nil {
		t.Fatal(err)
	}
	id2, err := Generate(other, ts)
	if err != nil {
		t.Fatal(err)
	}
	if id1 == id2 {
		t.Fatal("expected different states to produce different coordinates")
	}
}

func TestGenerateWithNonceDistinct(t *testing.T) {
	ts := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	seen := make(map[string]bool)
	for n := uint32(0); n < 8; n++ {
		id, err := GenerateWithNonce(sampleState(), ts, &n)
		if err != nil {
			t.Fatal(err)
		}
		if seen[id] {
			t.Fatalf("nonce %d produced a coordinate already seen: %s", n, id)
		}
		seen[id] = true
	}
}

// TestGenerateMatchesSpecScenario1 pins the worked example: state
// {"a":1,"b":2} at 2025-10-28T12:00:00Z must hash
// canonical(state) || "|" || "2025-10-28T12:00:00+00:00" — note the
// numeric "+00:00" offset, not "Z" — so a regression in the timestamp
// layout (e.g. reverting to time.RFC3339Nano, which renders "Z" for a
// zero UTC offset) changes every coordinate id derived from a UTC
// timestamp without breaking any other test.
func TestGenerateMatchesSpecScenario1(t *testing.T) {
	state := delta.Object(
		delta.Member{Key: "a", Value: delta.Number("1")},
		delta.Member{Key: "b", Value: delta.Number("2")},
	)
	ts := time.Date(2025, 10, 28, 12, 0, 0, 0, time.UTC)

	id, err := Generate(state, ts)
	if err != nil {
		t.Fatal(err)
	}
	const want = "SS3GUCBUXK6FHRAODV6OLXIMXE"
	if id != want {
		t.Fatalf("expected spec Scenario 1 id %s, got %s", want, id)
	}
}

func TestValidateRejectsWrongLength(t *testing.T) {
	if err := Validate("TOOSHORT"); err == nil {
		t.Fatal("expected error for short id")
	}
}

func TestValidateRejectsLowercase(t *testing.T) {
	id := "abcdefghijklmnopqrstuvwxyz"[:26]
	if err := Validate(id); err == nil {
		t.Fatal("expected error for lowercase id")
	}
}

func TestValidateRejectsInvalidChars(t *testing.T) {
	// '0', '1', '8', '9' are not in the RFC4648 base32 alphabet.
	id := "AAAAAAAAAAAAAAAAAAAAAAAAA0"
	if err := Validate(id); err == nil {
		t.Fatal("expected error for disallowed character")
	}
}
