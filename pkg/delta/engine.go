package delta

import (
	"github.com/chartlylabs/vstate/pkg/canonical"
	"github.com/chartlylabs/vstate/pkg/hashing"
)

// ComputeDelta computes the patch that transforms before into after.
func ComputeDelta(before, after Value) Patch {
	return Diff(before, after)
}

// ApplyPatch replays patch against base, producing the resulting state.
func ApplyPatch(base Value, patch Patch) (Value, error) {
	return Apply(base, patch)
}

// HashState returns H(canonicalize(v)), the content hash of a state tree.
func HashState(v Value) (string, error) {
	canon, err := canonical.Canonicalize(v)
	if err != nil {
		return "", err
	}
	return hashing.Hash(canon), nil
}

// HashDelta returns H(canonicalize(ops-as-array)), the content hash of a
// patch. This is the value recorded as a delta's delta_hash and fed into
// the chain linker.
func HashDelta(patch Patch) (string, error) {
	canon, err := canonical.Canonicalize(patchValue(patch))
	if err != nil {
		return "", err
	}
	return hashing.Hash(canon), nil
}

// GenerateDeltaID derives a delta id from a delta hash: the first 16
// bytes of the hash, as 32 lowercase hex characters.
func GenerateDeltaID(deltaHashHex string) string {
	if len(deltaHashHex) < 32 {
		return deltaHashHex
	}
	return deltaHashHex[:32]
}

// VerifyDeltaHash recomputes patch's hash and compares it to expected.
func VerifyDeltaHash(patch Patch, expected string) (bool, error) {
	got, err := HashDelta(patch)
	if err != nil {
		return false, err
	}
	return got == expected, nil
}

// CompressionRatio reports how much smaller a delta is than the full
// state it was computed against; 0 when compressedBytes is 0 to avoid a
// division by zero for an empty patch.
func CompressionRatio(originalBytes, compressedBytes int) float64 {
	if compressedBytes == 0 {
		return 0
	}
	return float64(originalBytes) / float64(compressedBytes)
}

// patchValue renders a Patch as the Value tree canonicalized to produce
// its hash: an array of objects, one per operation, carrying exactly the
// fields RFC 6902 defines for that operation kind.
func patchValue(patch Patch) Value {
	items := make([]Value, len(patch))
	for i, op := range patch {
		items[i] = opValue(op)
	}
	return Array(items...)
}

func opValue(op Operation) Value {
	members := []Member{
		{Key: "op", Value: String(string(op.Op))},
		{Key: "path", Value: String(op.Path)},
	}
	if op.From != "" {
		members = append(members, Member{Key: "from", Value: String(op.From)})
	}
	switch op.Op {
	case OpAdd, OpReplace, OpTest:
		members = append(members, Member{Key: "value", Value: op.Value})
	}
	return Object(members...)
}
