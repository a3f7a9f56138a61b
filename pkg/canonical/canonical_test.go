package canonical

import "testing"

func TestCanonicalizeSortsKeys(t *testing.T) {
	v := Object(
		Member{Key: "z", Value: Number("1")},
		Member{Key: "a", Value: Number("2")},
		Member{Key: "m", Value: Number("3")},
	)
	got, err := Canonicalize(v)
	if err != nil {
		t.Fatalf("canonicalize: %v", err)
	}
	want := `{"a":2,"m":3,"z":1}`
	if string(got) != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestCanonicalizeNestedAndArrays(t *testing.T) {
	v := Object(
		Member{Key: "outer", Value: Object(
			Member{Key: "z", Value: Number("1")},
			Member{Key: "a", Value: Number("2")},
		)},
		Member{Key: "array", Value: Array(Number("3"), Number("2"), Number("1"))},
	)
	got, err := Canonicalize(v)
	if err != nil {
		t.Fatalf("canonicalize: %v", err)
	}
	want := `{"array":[3,2,1],"outer":{"a":2,"z":1}}`
	if string(got) != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestCanonicalizeKeyOrderInvariance(t *testing.T) {
	a := Object(Member{Key: "x", Value: Bool(true)}, Member{Key: "y", Value: String("s")})
	b := Object(Member{Key: "y", Value: String("s")}, Member{Key: "x", Value: Bool(true)})
	ca, err := Canonicalize(a)
	if err != nil {
		t.Fatal(err)
	}
	cb, err := Canonicalize(b)
	if err != nil {
		t.Fatal(err)
	}
	if string(ca) != string(cb) {
		t.Fatalf("canonical forms differ by key order: %q vs %q", ca, cb)
	}
}

func TestCanonicalizeVerbatimNumbers(t *testing.T) {
	v := Object(Member{Key: "n", Value: Number("1.50000")})
	got, err := Canonicalize(v)
	if err != nil {
		t.Fatal(err)
	}
	want := `{"n":1.50000}`
	if string(got) != want {
		t.Fatalf("got %q, want %q (numbers must not be reformatted)", got, want)
	}
}

func TestCanonicalizeDuplicateKeysLastWriteWins(t *testing.T) {
	v := Object(
		Member{Key: "a", Value: Number("1")},
		Member{Key: "a", Value: Number("2")},
	)
	got, err := Canonicalize(v)
	if err != nil {
		t.Fatal(err)
	}
	want := `{"a":2}`
	if string(got) != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestCanonicalizeStringEscaping(t *testing.T) {
	v := String("a\"b\\c\nd")
	got, err := Canonicalize(v)
	if err != nil {
		t.Fatal(err)
	}
	want := `"a\"b\\c\nd"`
	if string(got) != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestJSONRoundTrip(t *testing.T) {
	v := Object(
		Member{Key: "b", Value: Array(Number("1"), String("two"), Bool(true), Null())},
		Member{Key: "a", Value: Number("3.14")},
	)
	b, err := v.MarshalJSON()
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var round Value
	if err := round.UnmarshalJSON(b); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !Equal(v, round) {
		t.Fatalf("round trip mismatch: %+v vs %+v", v, round)
	}
}

func TestParseJSONPreservesNumberLiteral(t *testing.T) {
	v, err := ParseJSON([]byte(`{"n": 1.50000}`))
	if err != nil {
		t.Fatal(err)
	}
	n, ok := v.Get("n")
	if !ok || n.Number != "1.50000" {
		t.Fatalf("expected verbatim literal 1.50000, got %+v", n)
	}
}
