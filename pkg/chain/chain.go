// Package chain links deltas into a tamper-evident hash chain and
// verifies that chain end to end. Each link's chain hash is computed
// over the hex-string bytes of its parent's chain hash concatenated with
// its own delta hash — a deliberate on-wire contract, not an
// implementation detail: verifiers must reproduce the concatenation over
// the hex text, not over raw digest bytes, or every hash downstream of
// the first link will disagree.
package chain

import (
	vstateerrors "github.com/chartlylabs/vstate/pkg/errors"
	"github.com/chartlylabs/vstate/pkg/hashing"
)

// Link is the minimal view of a delta the chain linker needs: its own
// id, its delta hash, and the id/hash of the delta it chains from.
type Link struct {
	DeltaID    string
	ParentID   string // empty for the first delta in a coordinate's history
	ParentHash string // must be set whenever ParentID is set
	DeltaHash  string
	ChainHash  string
}

// ComputeChainHash links a delta hash to its parent's chain hash:
//
//	chain_hash = H(utf8(parent_hash_hex) || utf8(delta_hash_hex))
//
// For the first delta in a history (no parent), chain_hash == delta_hash.
func ComputeChainHash(parentHash, deltaHash string) string {
	if parentHash == "" {
		return deltaHash
	}
	return hashing.HashConcat([]byte(parentHash), []byte(deltaHash))
}

// VerifyLink recomputes a single link's chain hash from its recorded
// parent hash and delta hash and compares it to the recorded chain hash.
// It also enforces the defense-in-depth linkage check: a parent_id
// present without a parent_hash is a broken chain even before any hash
// comparison happens.
func VerifyLink(l Link) error {
	if l.ParentID != "" && l.ParentHash == "" {
		return vstateerrors.MerkleChainBrokenErr(l.DeltaID)
	}
	expected := ComputeChainHash(l.ParentHash, l.DeltaHash)
	if expected != l.ChainHash {
		return vstateerrors.HashMismatchErr(expected, l.ChainHash)
	}
	return nil
}

// VerifyChain walks links in order (oldest first) checking that each
// link's recorded parent_id matches the previous link's delta id and
// that its chain hash is correctly derived. It returns the count of
// links verified before a break, and the error describing the break (nil
// if the whole chain verified).
func VerifyChain(links []Link) (int, error) {
	var prevID string
	for i, l := range links {
		if i > 0 && l.ParentID != prevID {
			return i, vstateerrors.MerkleChainBrokenErr(l.DeltaID)
		}
		if err := VerifyLink(l); err != nil {
			return i, err
		}
		prevID = l.DeltaID
	}
	return len(links), nil
}

// FindBreakPoint returns the index of the first link that fails
// verification, or -1 if the chain is intact.
func FindBreakPoint(links []Link) int {
	verified, err := VerifyChain(links)
	if err == nil {
		return -1
	}
	return verified
}

// VerifyChainIntegrity is the orchestrator-facing entry point: it
// reports how many links verified successfully and, if the chain broke,
// the error describing where and why.
func VerifyChainIntegrity(links []Link) (int, error) {
	return VerifyChain(links)
}
