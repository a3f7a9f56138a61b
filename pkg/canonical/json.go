package canonical

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
)

// MarshalJSON renders v as standard JSON, preserving object key order and
// array order exactly as built (unlike Canonicalize, which sorts keys).
// It is used wherever a Value needs to cross the encoding/json boundary:
// HTTP bodies, repository columns, CLI output.
func (v Value) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	if err := marshalOrdered(&buf, v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func marshalOrdered(buf *bytes.Buffer, v Value) error {
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
			buf.WriteString("0")
		} else {
			buf.WriteString(v.Number)
		}
	case KindString:
		b, err := json.Marshal(v.Str)
		if err != nil {
			return err
		}
		buf.Write(b)
	case KindArray:
		buf.WriteByte('[')
		for i, e := range v.Array {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := marshalOrdered(buf, e); err != nil {
				return err
			}
		}
		buf.WriteByte(']')
	case KindObject:
		buf.WriteByte('{')
		for i, m := range v.Object {
			if i > 0 {
				buf.WriteByte(',')
			}
			kb, err := json.Marshal(m.Key)
			if err != nil {
				return err
			}
			buf.Write(kb)
			buf.WriteByte(':')
			if err := marshalOrdered(buf, m.Value); err != nil {
				return err
			}
		}
		buf.WriteByte('}')
	default:
		return fmt.Errorf("canonical: unknown value kind %d", v.Kind)
	}
	return nil
}

// UnmarshalJSON parses standard JSON into v, preserving object key order
// and array order exactly as they appear in the source text and keeping
// number literals verbatim (never reformatted through float64).
func (v *Value) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	val, err := decodeValue(dec)
	if err != nil {
		return err
	}
	*v = val
	return nil
}

func decodeValue(dec *json.Decoder) (Value, error) {
	tok, err := dec.Token()
	if err != nil {
		return Value{}, err
	}
	return decodeToken(dec, tok)
}

func decodeToken(dec *json.Decoder, tok json.Token) (Value, error) {
	switch t := tok.(type) {
	case nil:
		return Null(), nil
	case bool:
		return Bool(t), nil
	case json.Number:
		return Number(t.String()), nil
	case string:
		return String(t), nil
	case json.Delim:
		switch t {
		case '[':
			items := []Value{}
			for dec.More() {
				item, err := decodeValue(dec)
				if err != nil {
					return Value{}, err
				}
				items = append(items, item)
			}
			if _, err := dec.Token(); err != nil { // consume ']'
				return Value{}, err
			}
			return Value{Kind: KindArray, Array: items}, nil
		case '{':
			members := []Member{}
			for dec.More() {
				keyTok, err := dec.Token()
				if err != nil {
					return Value{}, err
				}
				key, ok := keyTok.(string)
				if !ok {
					return Value{}, fmt.Errorf("canonical: expected object key, got %v", keyTok)
				}
				val, err := decodeValue(dec)
				if err != nil {
					return Value{}, err
				}
				members = append(members, Member{Key: key, Value: val})
			}
			if _, err := dec.Token(); err != nil { // consume '}'
				return Value{}, err
			}
			return Value{Kind: KindObject, Object: members}, nil
		default:
			return Value{}, fmt.Errorf("canonical: unexpected delimiter %v", t)
		}
	default:
		return Value{}, fmt.Errorf("canonical: unexpected token %v", tok)
	}
}

// ParseJSON parses a standalone JSON document into a Value. Unlike
// UnmarshalJSON it also rejects trailing garbage after the document.
func ParseJSON(data []byte) (Value, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	v, err := decodeValue(dec)
	if err != nil {
		return Value{}, err
	}
	if _, err := dec.Token(); err != io.EOF {
		return Value{}, fmt.Errorf("canonical: trailing data after JSON document")
	}
	return v, nil
}
