// Package coordinate derives and validates coordinate ids: the content-
// addressed identifiers that name a version history in the engine. A
// coordinate id is deterministic in the state and timestamp that produced
// it (plus an optional nonce used only to break collisions), never random.
package coordinate

import (
	"encoding/base32"
	"encoding/binary"
	"regexp"
	"time"

	"github.com/chartlylabs/vstate/pkg/canonical"
	"github.com/chartlylabs/vstate/pkg/delta"
	vstateerrors "github.com/chartlylabs/vstate/pkg/errors"
	"github.com/chartlylabs/vstate/pkg/hashing"
)

// IDBytes is the number of leading hash bytes folded into a coordinate id
// before base32 encoding.
const IDBytes = 16

// Len is the fixed length of an encoded coordinate id.
const Len = 26

var encoding = base32.StdEncoding.WithPadding(base32.NoPadding)

var validPattern = regexp.MustCompile(`^[A-Z2-7]{26}$`)

// rfc3339NumericOffset is time.RFC3339Nano with the zone directive changed
// from "Z07:00" to "-07:00": the former renders the literal letter "Z" for
// a zero UTC offset, but the coordinate derivation input must match the
// original implementation's chrono to_rfc3339() output, which always
// prints a numeric offset ("+00:00" for UTC), never "Z".
const rfc3339NumericOffset = "2006-01-02T15:04:05.999999999-07:00"

// Generate derives a coordinate id from state and timestamp:
//
//	id = base32(H(canonical(state) || "|" || RFC3339(ts))[:16])
func Generate(state delta.Value, ts time.Time) (string, error) {
	return GenerateWithNonce(state, ts, nil)
}

// GenerateNow derives a coordinate id using the current time.
func GenerateNow(state delta.Value) (string, error) {
	return Generate(state, time.Now().UTC())
}

// GenerateWithNonce derives a coordinate id, optionally mixing in a nonce
// to produce a distinct id for the same state and timestamp. nonce may be
// nil to omit it entirely.
func GenerateWithNonce(state delta.Value, ts time.Time, nonce *uint32) (string, error) {
	canon, err := canonical.Canonicalize(state)
	if err != nil {
		return "", vstateerrors.Wrap(vstateerrors.Serialization, err, "canonicalize state for coordinate derivation")
	}

	buf := make([]byte, 0, len(canon)+1+32+1+4)
	buf = append(buf, canon...)
	buf = append(buf, '|')
	buf = append(buf, []byte(ts.UTC().Format(rfc3339NumericOffset))...)
	if nonce != nil {
		buf = append(buf, '|')
		nb := make([]byte, 4)
		binary.LittleEndian.PutUint32(nb, *nonce)
		buf = append(buf, nb...)
	}

	digest := hashing.HashBytes(buf)
	return encoding.EncodeToString(digest[:IDBytes]), nil
}

// Validate reports whether id has the shape of a coordinate id: 26
// characters drawn from the RFC4648 base32 alphabet restricted to
// uppercase letters and digits 2-7 (no padding, no lowercase).
func Validate(id string) error {
	if !validPattern.MatchString(id) {
		return vstateerrors.Newf(vstateerrors.InvalidCoordinate, "coordinate id %q is not 26 base32 characters", id)
	}
	return nil
}
