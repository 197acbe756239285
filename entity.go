package carvpath

import (
	"sort"
	"strings"

	"github.com/pkg/errors"
)

// Entity is an ordered sequence of segments
// addressing a possibly fragmented and sparse range of some parent data.
// An Entity has its own coordinate space starting at logical offset 0.
//
// Entities are kept in canonical form:
// a fragment directly continuing the fragment before it,
// or a sparse segment following another sparse segment,
// is folded into its predecessor,
// and zero-size segments are dropped.
// The empty Entity (the zero value) encodes as "S0".
//
// Entity is a value type.
// Assigning or passing an Entity never lets a later Append or Grow on one copy
// affect another.
type Entity struct {
	segs  []Segment
	total uint64
}

// NewEntity produces the canonical Entity made of the given segments, in order.
func NewEntity(segs ...Segment) Entity {
	var e Entity
	for _, s := range segs {
		e.push(s)
	}
	return e
}

// Concat produces the Entity consisting of a followed by b,
// merging the tail of a with the head of b where possible.
func Concat(a, b Entity) Entity {
	out := Entity{segs: make([]Segment, 0, len(a.segs)+len(b.segs))}
	for _, s := range a.segs {
		out.push(s)
	}
	for _, s := range b.segs {
		out.push(s)
	}
	return out
}

// push appends s in place.
// Callers must own e.segs exclusively.
func (e *Entity) push(s Segment) {
	if s.size == 0 {
		return
	}
	e.total += s.size
	if n := len(e.segs); n > 0 && e.segs[n-1].adjoins(s) {
		e.segs[n-1] = e.segs[n-1].grow(s.size)
		return
	}
	e.segs = append(e.segs, s)
}

// own makes e.segs private to e,
// with room for extra more segments.
func (e *Entity) own(extra int) {
	segs := make([]Segment, len(e.segs), len(e.segs)+extra)
	copy(segs, e.segs)
	e.segs = segs
}

// Append adds segments to the end of e, keeping e canonical.
func (e *Entity) Append(segs ...Segment) {
	e.own(len(segs))
	for _, s := range segs {
		e.push(s)
	}
}

// AppendEntity adds the segments of other to the end of e.
func (e *Entity) AppendEntity(other Entity) {
	e.Append(other.segs...)
}

// Grow extends e by n bytes.
// The last segment is extended,
// or, if e is empty,
// it becomes the fragment [0, n).
//
// Grow is meant for entities describing growing data,
// such as the Top of a repository.
// Entities registered in a Box must not be grown.
func (e *Entity) Grow(n uint64) {
	if n == 0 {
		return
	}
	if len(e.segs) == 0 {
		e.segs = []Segment{Fragment(0, n)}
		e.total = n
		return
	}
	e.own(0)
	last := len(e.segs) - 1
	e.segs[last] = e.segs[last].grow(n)
	e.total += n
}

// Segments returns a copy of the segments of e.
func (e Entity) Segments() []Segment {
	out := make([]Segment, len(e.segs))
	copy(out, e.segs)
	return out
}

// Len is the number of segments in e.
func (e Entity) Len() int {
	return len(e.segs)
}

// At is the i'th segment of e.
func (e Entity) At(i int) Segment {
	return e.segs[i]
}

// TotalSize is the number of logical bytes e covers, sparse regions included.
func (e Entity) TotalSize() uint64 {
	return e.total
}

// IsEmpty tells whether e covers no bytes.
func (e Entity) IsEmpty() bool {
	return e.total == 0
}

// Clone produces a copy of e with its own segment storage.
func (e Entity) Clone() Entity {
	out := e
	out.own(0)
	return out
}

// String produces the carvpath text of e,
// never substituting a digest for long text.
// See Context.Encode for that.
func (e Entity) String() string {
	if len(e.segs) == 0 {
		return "S0"
	}
	var b strings.Builder
	for i, s := range e.segs {
		if i > 0 {
			b.WriteByte('_')
		}
		b.WriteString(s.String())
	}
	return b.String()
}

// Equal tells whether e and other have the same canonical segments.
func (e Entity) Equal(other Entity) bool {
	return e.Compare(other) == 0
}

// Compare orders entities structurally:
// the empty Entity first,
// then segment by segment (see Segment.Compare),
// then shorter before longer.
func (e Entity) Compare(other Entity) int {
	switch {
	case e.total == 0 && other.total == 0:
		return 0
	case e.total == 0:
		return -1
	case other.total == 0:
		return 1
	}
	n := len(e.segs)
	if len(other.segs) < n {
		n = len(other.segs)
	}
	for i := 0; i < n; i++ {
		if c := e.segs[i].Compare(other.segs[i]); c != 0 {
			return c
		}
	}
	switch {
	case len(e.segs) < len(other.segs):
		return -1
	case len(e.segs) > len(other.segs):
		return 1
	}
	return 0
}

// Less tells whether e sorts before other.
func (e Entity) Less(other Entity) bool {
	return e.Compare(other) < 0
}

// StripSparse produces the set of bytes e refers to in its parent:
// sparse segments are dropped,
// and the fragments are sorted and coalesced
// so that no two of them touch or overlap.
//
// This is the form in which a Box reference-counts entities.
func (e Entity) StripSparse() Entity {
	frags := make([]Segment, 0, len(e.segs))
	for _, s := range e.segs {
		if !s.IsSparse() {
			frags = append(frags, s)
		}
	}
	sort.Slice(frags, func(i, j int) bool { return frags[i].Less(frags[j]) })

	out := Entity{segs: make([]Segment, 0, len(frags))}
	for _, f := range frags {
		n := len(out.segs)
		if n > 0 && f.off <= out.segs[n-1].end() {
			last := out.segs[n-1]
			if f.end() > last.end() {
				out.total += f.end() - last.end()
				out.segs[n-1] = Fragment(last.off, f.end()-last.off)
			}
			continue
		}
		out.push(f)
	}
	return out
}

// normal tells whether e is already in StripSparse form.
func (e Entity) normal() bool {
	for i, s := range e.segs {
		if s.IsSparse() {
			return false
		}
		if i > 0 && s.off <= e.segs[i-1].end() {
			return false
		}
	}
	return true
}

// Subentity projects child,
// whose coordinates are relative to e,
// onto the coordinate space e itself lives in.
// Sparse segments of child pass through unchanged;
// parts of child falling inside sparse segments of e become sparse.
//
// The error wraps ErrOutOfBounds if child addresses bytes beyond the end of e.
func (e Entity) Subentity(child Entity) (Entity, error) {
	// starts[i] is the logical offset within e at which e.segs[i] begins.
	starts := make([]uint64, len(e.segs))
	var pos uint64
	for i, s := range e.segs {
		starts[i] = pos
		pos += s.size
	}

	out := Entity{segs: make([]Segment, 0, len(child.segs))}
	for _, c := range child.segs {
		if c.IsSparse() {
			out.push(c)
			continue
		}
		if c.size > e.total || c.off > e.total-c.size {
			return Entity{}, errors.Wrapf(ErrOutOfBounds, "%s exceeds parent size %d", c, e.total)
		}
		i := sort.Search(len(starts), func(n int) bool {
			return starts[n]+e.segs[n].size > c.off
		})
		var (
			off  = c.off
			left = c.size
		)
		for ; left > 0; i++ {
			var (
				p     = e.segs[i]
				delta = off - starts[i]
				chunk = p.size - delta
			)
			if chunk > left {
				chunk = left
			}
			if p.IsSparse() {
				out.push(Sparse(chunk))
			} else {
				out.push(Fragment(p.off+delta, chunk))
			}
			off += chunk
			left -= chunk
		}
	}
	return out, nil
}

// ParseEntity parses a single level of carvpath text,
// such as "0+4096_S8192_4096+4096".
// It does not resolve digest tokens or "/"-separated paths;
// see Context.Parse for those.
//
// The error wraps ErrParse if the text is malformed.
func ParseEntity(text string) (Entity, error) {
	if text == "" {
		return Entity{}, errors.Wrap(ErrParse, "empty carvpath")
	}
	tokens := strings.Split(text, "_")
	out := Entity{segs: make([]Segment, 0, len(tokens))}
	for _, tok := range tokens {
		s, err := parseSegment(tok)
		if err != nil {
			return Entity{}, err
		}
		out.push(s)
	}
	return out, nil
}
