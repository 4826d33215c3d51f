package kv

import (
	"bytes"
	"sort"
)

// Verb is the vector mutation operation applied by the delta engine.
type Verb int

const (
	// VerbSet replaces the vector outright: final = new, relative to old.
	VerbSet Verb = iota
	// VerbPlus unions new into old.
	VerbPlus
	// VerbMinus removes new's members from old.
	VerbMinus
)

// DeltaResult is the outcome of one merge-walk: the vector to commit
// (final) and the two change sets (plus/minus) used for abs_delta
// bookkeeping and for driving WITH_REL reciprocal writes.
type DeltaResult struct {
	Final [][]byte
	Plus  [][]byte
	Minus [][]byte
}

// Delta runs the three-way merge-walk of spec.md §4.3 between a
// currently-stored sorted vector (old) and a caller-supplied sorted
// vector (next), under the given verb.
func Delta(verb Verb, old, next [][]byte) DeltaResult {
	var res DeltaResult
	i, j := 0, 0
	for i < len(old) || j < len(next) {
		switch {
		case j >= len(next) || (i < len(old) && bytes.Compare(old[i], next[j]) < 0):
			// item only in old
			switch verb {
			case VerbSet:
				res.Minus = append(res.Minus, old[i])
			case VerbPlus:
				res.Final = append(res.Final, old[i])
			case VerbMinus:
				res.Final = append(res.Final, old[i])
			}
			i++
		case i >= len(old) || bytes.Compare(next[j], old[i]) < 0:
			// item only in next
			switch verb {
			case VerbSet:
				res.Plus = append(res.Plus, next[j])
				res.Final = append(res.Final, next[j])
			case VerbPlus:
				res.Plus = append(res.Plus, next[j])
				res.Final = append(res.Final, next[j])
			case VerbMinus:
				// nothing to remove that wasn't present
			}
			j++
		default:
			// item in both
			switch verb {
			case VerbSet:
				res.Final = append(res.Final, old[i])
			case VerbPlus:
				res.Final = append(res.Final, old[i])
			case VerbMinus:
				res.Minus = append(res.Minus, old[i])
			}
			i++
			j++
		}
	}
	return res
}

// AbsDelta is the cumulative plus/minus ledger maintained per relation
// key across mutations and read back through Store.AbsDeltaFor. The
// worker export path (EncodeSynced) does not consult it.
type AbsDelta struct {
	Plus  [][]byte
	Minus [][]byte
}

// applyAbsDelta folds one mutation's local Plus/Minus into the
// previously recorded AbsDelta, suppressing contradictions: an item
// that is both newly added and previously recorded as removed cancels
// out (and vice versa), since the net effect since the reference point
// is "no change" (spec.md §4.3, open question on abs_delta accounting).
func applyAbsDelta(prior AbsDelta, localPlus, localMinus [][]byte) AbsDelta {
	plusAdd := subtractSorted(localPlus, prior.Minus)
	minusAdd := subtractSorted(localMinus, prior.Plus)

	priorPlusRemain := subtractSorted(prior.Plus, localMinus)
	priorMinusRemain := subtractSorted(prior.Minus, localPlus)

	return AbsDelta{
		Plus:  unionSorted(priorPlusRemain, plusAdd),
		Minus: unionSorted(priorMinusRemain, minusAdd),
	}
}

// subtractSorted returns items of a not present in b (both sorted, no dupes).
func subtractSorted(a, b [][]byte) [][]byte {
	if len(a) == 0 {
		return nil
	}
	var out [][]byte
	for _, item := range a {
		i := sort.Search(len(b), func(i int) bool { return bytes.Compare(b[i], item) >= 0 })
		if i < len(b) && bytes.Equal(b[i], item) {
			continue
		}
		out = append(out, item)
	}
	return out
}

// unionSorted merges two sorted, duplicate-free item vectors.
func unionSorted(a, b [][]byte) [][]byte {
	var out [][]byte
	i, j := 0, 0
	for i < len(a) && j < len(b) {
		c := bytes.Compare(a[i], b[j])
		switch {
		case c < 0:
			out = append(out, a[i])
			i++
		case c > 0:
			out = append(out, b[j])
			j++
		default:
			out = append(out, a[i])
			i++
			j++
		}
	}
	out = append(out, a[i:]...)
	out = append(out, b[j:]...)
	return out
}

// SortItems sorts a vector's items lexicographically and drops exact
// duplicates, matching the invariant that stored vectors are ordered
// sets (spec.md §3.3 invariant 6).
func SortItems(items [][]byte) [][]byte {
	cp := make([][]byte, len(items))
	copy(cp, items)
	sort.Slice(cp, func(i, j int) bool { return bytes.Compare(cp[i], cp[j]) < 0 })
	out := cp[:0]
	for i, it := range cp {
		if i > 0 && bytes.Equal(it, cp[i-1]) {
			continue
		}
		out = append(out, it)
	}
	return out
}
