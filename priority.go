package carvpath

import (
	"sort"

	"github.com/pkg/errors"
)

// PrioritySort orders a set of registered keys
// by a composite key built from criteria,
// a string of single-letter criteria,
// most significant first:
//
//	S  logical size of the key's Entity
//	O  lowest offset the Entity touches in the Top
//	R  whether the Entity overlaps the outermost refcount layer that sets the keys apart
//	r  whether the Entity overlaps the bytes held by exactly k entities,
//	   for the lowest k that sets the keys apart (k=1 is "held by this Entity alone")
//	D  the Entity's density in the outermost layer that sets the keys apart
//	W  the sum of the Entity's densities in every layer
//
// Boolean criteria count as 0 or 1.
// A layer "sets the keys apart" if the criterion does not have the same value for every key;
// if no layer does, the criterion is 0 for all keys.
//
// If active is nil, all registered keys are sorted.
// If less is nil,
// composite keys are compared lexicographically, smaller first.
// The reverse flag inverts the order.
// Keys with equal composite keys stay in lexicographic order.
//
// The error wraps ErrUnknownKey for an unregistered key in active,
// or for an unrecognized criterion letter.
func (b *Box) PrioritySort(criteria string, active []string, less func(a, b []float64) bool, reverse bool) ([]string, error) {
	if active == nil {
		active = b.Keys()
	}
	keys := make([]string, len(active))
	copy(keys, active)
	sort.Strings(keys)

	ents := make([]*boxEntry, len(keys))
	for i, key := range keys {
		entry, ok := b.entries[key]
		if !ok {
			return nil, errors.Wrapf(ErrUnknownKey, "%s", key)
		}
		ents[i] = entry
	}

	composite := make([][]float64, len(keys))
	for i := range composite {
		composite[i] = make([]float64, 0, len(criteria))
	}
	for _, letter := range criteria {
		vals, err := b.criterion(letter, ents)
		if err != nil {
			return nil, err
		}
		for i, v := range vals {
			composite[i] = append(composite[i], v)
		}
	}

	if less == nil {
		less = lexLess
	}
	idx := make([]int, len(keys))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(i, j int) bool {
		a, c := composite[idx[i]], composite[idx[j]]
		if reverse {
			return less(c, a)
		}
		return less(a, c)
	})

	out := make([]string, len(keys))
	for i, n := range idx {
		out[i] = keys[n]
	}
	return out, nil
}

// PriorityPick is the first key PrioritySort would produce.
// The boolean is false if there are no keys to choose from.
func (b *Box) PriorityPick(criteria string, active []string, less func(a, b []float64) bool, reverse bool) (string, bool, error) {
	sorted, err := b.PrioritySort(criteria, active, less, reverse)
	if err != nil || len(sorted) == 0 {
		return "", false, err
	}
	return sorted[0], true, nil
}

func lexLess(a, b []float64) bool {
	for i := 0; i < len(a) && i < len(b); i++ {
		if a[i] != b[i] {
			return a[i] < b[i]
		}
	}
	return len(a) < len(b)
}

func (b *Box) criterion(letter rune, ents []*boxEntry) ([]float64, error) {
	vals := make([]float64, len(ents))
	switch letter {
	case 'S':
		for i, entry := range ents {
			vals[i] = float64(entry.size)
		}

	case 'O':
		for i, entry := range ents {
			if entry.ent.Len() > 0 {
				vals[i] = float64(entry.ent.segs[0].off)
			}
		}

	case 'R':
		for level := len(b.layers) - 1; level >= 1; level-- {
			if distinguish(vals, ents, overlapWith(b.layers[level])) {
				break
			}
		}

	case 'r':
		for k := 1; k <= len(b.layers); k++ {
			band := b.layers[k-1]
			if k < len(b.layers) {
				band, _, _ = band.Unmerge(b.layers[k])
			}
			if distinguish(vals, ents, overlapWith(band)) {
				break
			}
		}

	case 'D':
		for level := len(b.layers) - 1; level >= 0; level-- {
			layer := b.layers[level]
			f := func(e Entity) float64 { return e.Density(layer) }
			if distinguish(vals, ents, f) {
				break
			}
		}

	case 'W':
		for i, entry := range ents {
			for _, layer := range b.layers {
				vals[i] += entry.ent.Density(layer)
			}
		}

	default:
		return nil, errors.Wrapf(ErrUnknownKey, "priority criterion %q", letter)
	}
	return vals, nil
}

// distinguish fills vals with f applied to each entry's Entity
// and reports whether the values differ.
// If they do not, vals is reset to zero.
func distinguish(vals []float64, ents []*boxEntry, f func(Entity) float64) bool {
	if len(ents) == 0 {
		return false
	}
	for i, entry := range ents {
		vals[i] = f(entry.ent)
	}
	for _, v := range vals[1:] {
		if v != vals[0] {
			return true
		}
	}
	for i := range vals {
		vals[i] = 0
	}
	return false
}

func overlapWith(layer Entity) func(Entity) float64 {
	return func(e Entity) float64 {
		if e.Overlaps(layer) {
			return 1
		}
		return 0
	}
}
