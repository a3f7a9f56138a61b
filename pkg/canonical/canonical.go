// Package canonical implements the Value tagged union and the
// deterministic byte encoding of Value trees described by the
// versioned-state engine's canonicalization contract: sorted object
// keys, compact separators, verbatim numbers, minimal string escaping.
// Two values with identical semantic content always canonicalize to
// identical bytes, regardless of input key order.
package canonical

import (
	"sort"
	"strings"

	vstateerrors "github.com/chartlylabs/vstate/pkg/errors"
)

// Canonicalize produces the canonical byte encoding of v per the
// versioned-state engine's canonicalization contract (§4.1):
//   - object keys sorted lexicographically by UTF-8 byte order, no
//     whitespace, last-write-wins on duplicate keys
//   - arrays in given order
//   - strings escaped with the minimal JSON escape set
//   - numbers emitted verbatim
//   - single "," and ":" separators
func Canonicalize(v Value) ([]byte, error) {
	var buf strings.Builder
	if err := encode(&buf, v); err != nil {
		return nil, err
	}
	return []byte(buf.String()), nil
}

func encode(buf *strings.Builder, v Value) error {
	switch v.Kind {
	case KindNull:
		buf.WriteString("null")
	case KindBool:
		if v.Bool {
			buf.WriteString("true")
		} else {
			buf.WriteString("false")
		}
	case KindNumber:
		if v.Number == "" {
			return vstateerrors.Newf(vstateerrors.Serialization, "empty number literal")
		}
		buf.WriteString(v.Number)
	case KindString:
		encodeString(buf, v.Str)
	case KindArray:
		buf.WriteByte('[')
		for i, e := range v.Array {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := encode(buf, e); err != nil {
				return err
			}
		}
		buf.WriteByte(']')
	case KindObject:
		keys := dedupeLastWriteWins(v.Object)
		sort.Strings(keys)
		byKey := make(map[string]Value, len(v.Object))
		for _, m := range v.Object {
			byKey[m.Key] = m.Value
		}
		buf.WriteByte('{')
		for i, k := range keys {
			if i > 0 {
				buf.WriteByte(',')
			}
			encodeString(buf, k)
			buf.WriteByte(':')
			if err := encode(buf, byKey[k]); err != nil {
				return err
			}
		}
		buf.WriteByte('}')
	default:
		return vstateerrors.Newf(vstateerrors.Serialization, "unknown value kind %d", v.Kind)
	}
	return nil
}

func dedupeLastWriteWins(members []Member) []string {
	seen := make(map[string]struct{}, len(members))
	keys := make([]string, 0, len(members))
	for _, m := range members {
		if _, ok := seen[m.Key]; ok {
			continue
		}
		seen[m.Key] = struct{}{}
		keys = append(keys, m.Key)
	}
	return keys
}

// encodeString writes s with the minimal JSON escape set: quote,
// backslash, and the C0 control range. Every other code point is emitted
// as its raw UTF-8 bytes.
func encodeString(buf *strings.Builder, s string) {
	buf.WriteByte('"')
	for _, r := range s {
		switch {
		case r == '"':
			buf.WriteString(`\"`)
		case r == '\\':
			buf.WriteString(`\\`)
		case r < 0x20:
			switch r {
			case '\n':
				buf.WriteString(`\n`)
			case '\r':
				buf.WriteString(`\r`)
			case '\t':
				buf.WriteString(`\t`)
			default:
				buf.WriteString(`\u`)
				const hex = "0123456789abcdef"
				buf.WriteByte(hex[(r>>12)&0xf])
				buf.WriteByte(hex[(r>>8)&0xf])
				buf.WriteByte(hex[(r>>4)&0xf])
				buf.WriteByte(hex[r&0xf])
			}
		default:
			buf.WriteRune(r)
		}
	}
	buf.WriteByte('"')
}
