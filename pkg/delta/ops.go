package delta

import (
	"strconv"
	"strings"

	vstateerrors "github.com/chartlylabs/vstate/pkg/errors"
)

// Op names the RFC 6902 JSON Patch operation kind. The diff engine only
// ever emits add, remove and replace; test/move/copy are accepted by
// Apply for forward compatibility with externally supplied patches.
type Op string

const (
	OpAdd     Op = "add"
	OpRemove  Op = "remove"
	OpReplace Op = "replace"
	OpMove    Op = "move"
	OpCopy    Op = "copy"
	OpTest    Op = "test"
)

// Operation is one step of an RFC 6902 JSON Patch.
type Operation struct {
	Op    Op     `json:"op"`
	Path  string `json:"path"`
	From  string `json:"from,omitempty"`
	Value Value  `json:"value,omitempty"`
}

// Patch is an ordered sequence of operations, applied left to right.
type Patch []Operation

// encodeToken escapes one JSON Pointer (RFC 6901) reference token: "~"
// becomes "~0" and "/" becomes "~1", in that order.
func encodeToken(tok string) string {
	tok = strings.ReplaceAll(tok, "~", "~0")
	tok = strings.ReplaceAll(tok, "/", "~1")
	return tok
}

// decodeToken reverses encodeToken.
func decodeToken(tok string) string {
	tok = strings.ReplaceAll(tok, "~1", "/")
	tok = strings.ReplaceAll(tok, "~0", "~")
	return tok
}

// joinPath appends an already-unescaped token to a pointer path.
func joinPath(base string, tok string) string {
	return base + "/" + encodeToken(tok)
}

// splitPath splits a JSON Pointer into its unescaped reference tokens.
// The root pointer "" yields an empty slice.
func splitPath(path string) ([]string, error) {
	if path == "" {
		return nil, nil
	}
	if path[0] != '/' {
		return nil, vstateerrors.Newf(vstateerrors.DeltaCompression, "path %q must start with '/'", path)
	}
	parts := strings.Split(path[1:], "/")
	out := make([]string, len(parts))
	for i, p := range parts {
		out[i] = decodeToken(p)
	}
	return out, nil
}

func parseArrayIndex(tok string, length int) (int, bool) {
	if tok == "-" {
		return length, true
	}
	if tok == "" {
		return 0, false
	}
	if tok[0] == '0' && len(tok) > 1 {
		return 0, false
	}
	n, err := strconv.Atoi(tok)
	if err != nil || n < 0 {
		return 0, false
	}
	return n, true
}
