package delta

import "sort"

// Diff computes the RFC 6902 patch that transforms before into after. It
// performs a recursive structural diff: objects are compared by the union
// of their keys (additions, removals, and replacements on common keys
// whose values differ); arrays are compared with an LCS-style diff so
// that small insertions or deletions in the middle of a list don't
// replace the whole array; any other value pair (scalars, or a pair
// whose kinds differ) is reduced to a single replace at that path.
func Diff(before, after Value) Patch {
	var patch Patch
	diffValue("", before, after, &patch)
	return patch
}

func diffValue(path string, before, after Value, patch *Patch) {
	if Equal(before, after) {
		return
	}
	if before.Kind != after.Kind {
		*patch = append(*patch, Operation{Op: OpReplace, Path: path, Value: after})
		return
	}
	switch before.Kind {
	case KindObject:
		diffObject(path, before, after, patch)
	case KindArray:
		diffArray(path, before, after, patch)
	default:
		*patch = append(*patch, Operation{Op: OpReplace, Path: path, Value: after})
	}
}

func diffObject(path string, before, after Value, patch *Patch) {
	beforeIdx := objectIndex(before)
	afterIdx := objectIndex(after)

	var removed, added, common []string
	for k := range beforeIdx {
		if _, ok := afterIdx[k]; !ok {
			removed = append(removed, k)
		} else {
			common = append(common, k)
		}
	}
	for k := range afterIdx {
		if _, ok := beforeIdx[k]; !ok {
			added = append(added, k)
		}
	}
	sort.Strings(removed)
	sort.Strings(added)
	sort.Strings(common)

	for _, k := range removed {
		*patch = append(*patch, Operation{Op: OpRemove, Path: joinPath(path, k)})
	}
	for _, k := range common {
		diffValue(joinPath(path, k), beforeIdx[k], afterIdx[k], patch)
	}
	for _, k := range added {
		*patch = append(*patch, Operation{Op: OpAdd, Path: joinPath(path, k), Value: afterIdx[k]})
	}
}

// diffArray emits an LCS-style edit script: all removals first, applied
// at strictly decreasing before-indices (so an earlier removal never
// invalidates the index recorded for a later one), followed by all
// insertions applied at their final (after) index in increasing order.
func diffArray(path string, before, after Value, patch *Patch) {
	b := before.Array
	a := after.Array
	matchB, matchA := lcs(b, a)

	for bi := len(b) - 1; bi >= 0; bi-- {
		if !matchB[bi] {
			*patch = append(*patch, Operation{Op: OpRemove, Path: joinPath(path, itoa(bi))})
		}
	}
	for ai := 0; ai < len(a); ai++ {
		if !matchA[ai] {
			*patch = append(*patch, Operation{Op: OpAdd, Path: joinPath(path, itoa(ai)), Value: a[ai]})
		}
	}
}

// lcs computes the longest common subsequence of a and b under Equal,
// returning boolean membership masks for each side.
func lcs(b, a []Value) (matchB, matchA []bool) {
	m, n := len(b), len(a)
	matchB = make([]bool, m)
	matchA = make([]bool, n)
	if m == 0 || n == 0 {
		return matchB, matchA
	}

	dp := make([][]int, m+1)
	for i := range dp {
		dp[i] = make([]int, n+1)
	}
	for i := m - 1; i >= 0; i-- {
		for j := n - 1; j >= 0; j-- {
			if Equal(b[i], a[j]) {
				dp[i][j] = dp[i+1][j+1] + 1
			} else if dp[i+1][j] >= dp[i][j+1] {
				dp[i][j] = dp[i+1][j]
			} else {
				dp[i][j] = dp[i][j+1]
			}
		}
	}

	i, j := 0, 0
	for i < m && j < n {
		switch {
		case Equal(b[i], a[j]):
			matchB[i] = true
			matchA[j] = true
			i++
			j++
		case dp[i+1][j] >= dp[i][j+1]:
			i++
		default:
			j++
		}
	}
	return matchB, matchA
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var buf [20]byte
	pos := len(buf)
	for n > 0 {
		pos--
		buf[pos] = byte('0' + n%10)
		n /= 10
	}
	if neg {
		pos--
		buf[pos] = '-'
	}
	return string(buf[pos:])
}
