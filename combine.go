package carvpath

import "sort"

// A classifier decides whether a stretch of bytes belongs in a result,
// given whether it is covered by the first and second operand.
type classifier func(inA, inB bool) bool

var (
	either = func(a, b bool) bool { return a || b }
	both   = func(a, b bool) bool { return a && b }
	onlyA  = func(a, b bool) bool { return a && !b }
	onlyB  = func(a, b bool) bool { return !a && b }
)

// sweep walks the byte positions covered by a or b in increasing order,
// calling f once for each maximal stretch [lo, hi)
// over which membership in a and in b does not change.
// Stretches covered by neither operand are skipped.
// If f returns false the walk stops.
//
// Only fragments take part: sparse segments have no position.
func sweep(a, b Entity, f func(lo, hi uint64, inA, inB bool) bool) {
	fa, fb := fragments(a), fragments(b)

	bounds := make([]uint64, 0, 2*(len(fa)+len(fb)))
	for _, s := range fa {
		bounds = append(bounds, s.off, s.end())
	}
	for _, s := range fb {
		bounds = append(bounds, s.off, s.end())
	}
	sort.Slice(bounds, func(i, j int) bool { return bounds[i] < bounds[j] })

	var ia, ib int
	for i := 0; i+1 < len(bounds); i++ {
		lo, hi := bounds[i], bounds[i+1]
		if lo == hi {
			continue
		}
		for ia < len(fa) && fa[ia].end() <= lo {
			ia++
		}
		for ib < len(fb) && fb[ib].end() <= lo {
			ib++
		}
		inA := ia < len(fa) && fa[ia].off <= lo
		inB := ib < len(fb) && fb[ib].off <= lo
		if !inA && !inB {
			continue
		}
		if !f(lo, hi, inA, inB) {
			return
		}
	}
}

// fragments returns the sorted, disjoint fragments of e.
func fragments(e Entity) []Segment {
	if e.normal() {
		return e.segs
	}
	return e.StripSparse().segs
}

// combine classifies every stretch of a and b with each of the classifiers,
// producing one Entity per classifier
// holding the stretches for which it returned true.
func combine(a, b Entity, cls ...classifier) []Entity {
	out := make([]Entity, len(cls))
	sweep(a, b, func(lo, hi uint64, inA, inB bool) bool {
		for i, c := range cls {
			if c(inA, inB) {
				out[i].push(Fragment(lo, hi-lo))
			}
		}
		return true
	})
	return out
}

// Merge adds the bytes of other to those of e.
// It returns the union,
// the bytes of other that were already in e,
// and the bytes of other that were not.
//
// Both operands are treated as byte sets (see StripSparse).
func (e Entity) Merge(other Entity) (merged, already, absorbed Entity) {
	r := combine(e, other, either, both, onlyB)
	return r[0], r[1], r[2]
}

// Unmerge removes the bytes of other from those of e.
// It returns what remains of e,
// the bytes of other that were not in e,
// and the bytes of other that were removed from e.
//
// For byte sets a and b,
// unmerging b from the result of merging b into a yields a again.
func (e Entity) Unmerge(other Entity) (remaining, absent, dropped Entity) {
	r := combine(e, other, onlyA, onlyB, both)
	return r[0], r[1], r[2]
}

// Intersect produces the bytes e and other have in common.
func (e Entity) Intersect(other Entity) Entity {
	return combine(e, other, both)[0]
}

// Overlaps tells whether e and other share any bytes.
func (e Entity) Overlaps(other Entity) bool {
	var found bool
	sweep(e, other, func(_, _ uint64, inA, inB bool) bool {
		found = inA && inB
		return !found
	})
	return found
}

// Density is the fraction of e's total size that other also covers,
// a number in [0, 1].
// The density of an empty Entity is 0.
func (e Entity) Density(other Entity) float64 {
	if e.total == 0 {
		return 0
	}
	return float64(e.Intersect(other).total) / float64(e.total)
}
