// Package delta implements the state value tree, the structural diff
// engine that turns one tree into an RFC 6902 JSON Patch against another,
// and the apply semantics that replay a patch to reproduce a later
// state. The tree type itself is an alias over pkg/canonical's Value so
// that both packages operate on exactly the same representation without
// an import cycle (canonical encodes; delta diffs and patches).
package delta

import "github.com/chartlylabs/vstate/pkg/canonical"

type Kind = canonical.Kind

const (
	KindNull   = canonical.KindNull
	KindBool   = canonical.KindBool
	KindNumber = canonical.KindNumber
	KindString = canonical.KindString
	KindArray  = canonical.KindArray
	KindObject = canonical.KindObject
)

type Value = canonical.Value
type Member = canonical.Member

var (
	Null   = canonical.Null
	Bool   = canonical.Bool
	Number = canonical.Number
	String = canonical.String
	Array  = canonical.Array
	Object = canonical.Object
	Equal  = canonical.Equal
	Clone  = canonical.Clone

	ParseJSON = canonical.ParseJSON
)

func objectIndex(v Value) map[string]Value {
	m := make(map[string]Value, len(v.Object))
	for _, mem := range v.Object {
		m[mem.Key] = mem.Value
	}
	return m
}
