package delta

import vstateerrors "github.com/chartlylabs/vstate/pkg/errors"

// Apply replays patch against base and returns the resulting value. base
// is never mutated; every step produces a new tree.
func Apply(base Value, patch Patch) (Value, error) {
	cur := Clone(base)
	for i, op := range patch {
		next, err := applyOp(cur, op)
		if err != nil {
			return Value{}, vstateerrors.Wrap(vstateerrors.DeltaCompression, err, "apply patch operation "+itoa(i))
		}
		cur = next
	}
	return cur, nil
}

func applyOp(root Value, op Operation) (Value, error) {
	tokens, err := splitPath(op.Path)
	if err != nil {
		return Value{}, err
	}
	switch op.Op {
	case OpAdd:
		return setAt(root, tokens, Clone(op.Value), false)
	case OpReplace:
		if len(tokens) == 0 {
			return Clone(op.Value), nil
		}
		return setAt(root, tokens, Clone(op.Value), true)
	case OpRemove:
		if len(tokens) == 0 {
			return Value{}, vstateerrors.Newf(vstateerrors.DeltaCompression, "cannot remove document root")
		}
		return removeAt(root, tokens)
	case OpMove:
		fromTokens, err := splitPath(op.From)
		if err != nil {
			return Value{}, err
		}
		val, err := getAt(root, fromTokens)
		if err != nil {
			return Value{}, err
		}
		removed, err := removeAt(root, fromTokens)
		if err != nil {
			return Value{}, err
		}
		return setAt(removed, tokens, val, false)
	case OpCopy:
		fromTokens, err := splitPath(op.From)
		if err != nil {
			return Value{}, err
		}
		val, err := getAt(root, fromTokens)
		if err != nil {
			return Value{}, err
		}
		return setAt(root, tokens, Clone(val), false)
	case OpTest:
		val, err := getAt(root, tokens)
		if err != nil {
			return Value{}, err
		}
		if !Equal(val, op.Value) {
			return Value{}, vstateerrors.Newf(vstateerrors.DeltaCompression, "test failed at %q", op.Path)
		}
		return root, nil
	default:
		return Value{}, vstateerrors.Newf(vstateerrors.DeltaCompression, "unknown operation %q", op.Op)
	}
}

// getAt reads the value at the given reference tokens.
func getAt(v Value, tokens []string) (Value, error) {
	if len(tokens) == 0 {
		return v, nil
	}
	tok := tokens[0]
	rest := tokens[1:]
	switch v.Kind {
	case KindObject:
		child, ok := v.Get(tok)
		if !ok {
			return Value{}, vstateerrors.Newf(vstateerrors.DeltaCompression, "key %q not found", tok)
		}
		return getAt(child, rest)
	case KindArray:
		idx, ok := parseArrayIndex(tok, len(v.Array))
		if !ok || idx >= len(v.Array) {
			return Value{}, vstateerrors.Newf(vstateerrors.DeltaCompression, "array index %q out of range", tok)
		}
		return getAt(v.Array[idx], rest)
	default:
		return Value{}, vstateerrors.Newf(vstateerrors.DeltaCompression, "cannot descend into %s at %q", v.Kind, tok)
	}
}

// setAt writes newVal at the given reference tokens. When mustExist is
// true (replace semantics) the target must already be present; when
// false (add semantics) an object key is created or overwritten and an
// array index inserts (shifting later elements right), with "-" and an
// index equal to the array length both meaning append.
func setAt(v Value, tokens []string, newVal Value, mustExist bool) (Value, error) {
	if len(tokens) == 0 {
		return newVal, nil
	}
	tok := tokens[0]
	rest := tokens[1:]

	switch v.Kind {
	case KindObject:
		if len(rest) == 0 {
			return setObjectKey(v, tok, newVal, mustExist)
		}
		child, ok := v.Get(tok)
		if !ok {
			return Value{}, vstateerrors.Newf(vstateerrors.DeltaCompression, "key %q not found", tok)
		}
		newChild, err := setAt(child, rest, newVal, mustExist)
		if err != nil {
			return Value{}, err
		}
		return Value{Kind: KindObject, Object: replaceMember(v.Object, tok, newChild)}, nil

	case KindArray:
		idx, ok := parseArrayIndex(tok, len(v.Array))
		if !ok {
			return Value{}, vstateerrors.Newf(vstateerrors.DeltaCompression, "array index %q invalid", tok)
		}
		if len(rest) == 0 {
			if mustExist {
				if idx >= len(v.Array) {
					return Value{}, vstateerrors.Newf(vstateerrors.DeltaCompression, "array index %d out of range", idx)
				}
				out := append([]Value(nil), v.Array...)
				out[idx] = newVal
				return Value{Kind: KindArray, Array: out}, nil
			}
			if idx > len(v.Array) {
				return Value{}, vstateerrors.Newf(vstateerrors.DeltaCompression, "array index %d out of range", idx)
			}
			out := make([]Value, 0, len(v.Array)+1)
			out = append(out, v.Array[:idx]...)
			out = append(out, newVal)
			out = append(out, v.Array[idx:]...)
			return Value{Kind: KindArray, Array: out}, nil
		}
		if idx >= len(v.Array) {
			return Value{}, vstateerrors.Newf(vstateerrors.DeltaCompression, "array index %d out of range", idx)
		}
		newChild, err := setAt(v.Array[idx], rest, newVal, mustExist)
		if err != nil {
			return Value{}, err
		}
		out := append([]Value(nil), v.Array...)
		out[idx] = newChild
		return Value{Kind: KindArray, Array: out}, nil

	default:
		return Value{}, vstateerrors.Newf(vstateerrors.DeltaCompression, "cannot descend into %s at %q", v.Kind, tok)
	}
}

func setObjectKey(v Value, key string, newVal Value, mustExist bool) (Value, error) {
	for _, m := range v.Object {
		if m.Key == key {
			return Value{Kind: KindObject, Object: replaceMember(v.Object, key, newVal)}, nil
		}
	}
	if mustExist {
		return Value{}, vstateerrors.Newf(vstateerrors.DeltaCompression, "key %q not found", key)
	}
	out := append([]Member(nil), v.Object...)
	out = append(out, Member{Key: key, Value: newVal})
	return Value{Kind: KindObject, Object: out}, nil
}

func replaceMember(members []Member, key string, newVal Value) []Member {
	out := append([]Member(nil), members...)
	for i := range out {
		if out[i].Key == key {
			out[i].Value = newVal
		}
	}
	return out
}

// removeAt deletes the value named by the given reference tokens.
func removeAt(v Value, tokens []string) (Value, error) {
	tok := tokens[0]
	rest := tokens[1:]

	switch v.Kind {
	case KindObject:
		if len(rest) == 0 {
			out := make([]Member, 0, len(v.Object))
			found := false
			for _, m := range v.Object {
				if m.Key == tok {
					found = true
					continue
				}
				out = append(out, m)
			}
			if !found {
				return Value{}, vstateerrors.Newf(vstateerrors.DeltaCompression, "key %q not found", tok)
			}
			return Value{Kind: KindObject, Object: out}, nil
		}
		child, ok := v.Get(tok)
		if !ok {
			return Value{}, vstateerrors.Newf(vstateerrors.DeltaCompression, "key %q not found", tok)
		}
		newChild, err := removeAt(child, rest)
		if err != nil {
			return Value{}, err
		}
		return Value{Kind: KindObject, Object: replaceMember(v.Object, tok, newChild)}, nil

	case KindArray:
		idx, ok := parseArrayIndex(tok, len(v.Array))
		if !ok || idx >= len(v.Array) {
			return Value{}, vstateerrors.Newf(vstateerrors.DeltaCompression, "array index %q out of range", tok)
		}
		if len(rest) == 0 {
			out := make([]Value, 0, len(v.Array)-1)
			out = append(out, v.Array[:idx]...)
			out = append(out, v.Array[idx+1:]...)
			return Value{Kind: KindArray, Array: out}, nil
		}
		newChild, err := removeAt(v.Array[idx], rest)
		if err != nil {
			return Value{}, err
		}
		out := append([]Value(nil), v.Array...)
		out[idx] = newChild
		return Value{Kind: KindArray, Array: out}, nil

	default:
		return Value{}, vstateerrors.Newf(vstateerrors.DeltaCompression, "cannot descend into %s at %q", v.Kind, tok)
	}
}
