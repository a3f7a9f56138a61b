// Package hashing implements the engine's single hash primitive: SHA3-256
// over arbitrary bytes, rendered as lowercase hex. Every content hash in
// the system (delta hashes, chain hashes, coordinate derivation, snapshot
// ids) is built from this one function so that changing the digest
// algorithm is a one-package change.
package hashing

import (
	"encoding/hex"

	"golang.org/x/crypto/sha3"
)

// Size is the digest length in bytes.
const Size = 32

// Hash computes SHA3-256(data) and returns it as lowercase hex.
func Hash(data []byte) string {
	sum := sha3.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// HashBytes computes SHA3-256(data) and returns the raw digest.
func HashBytes(data []byte) [Size]byte {
	return sha3.Sum256(data)
}

// HashConcat hashes the concatenation of its arguments without allocating
// an intermediate joined slice for the common two-part case used by the
// hash chain linker.
func HashConcat(parts ...[]byte) string {
	h := sha3.New256()
	for _, p := range parts {
		h.Write(p)
	}
	sum := h.Sum(nil)
	return hex.EncodeToString(sum)
}
