package carvpath

import "strconv"

// Segment is the atomic unit of an Entity.
// It is either a fragment,
// a contiguous run of real bytes in the underlying data,
// or a sparse region,
// a run of logical zero bytes with no image in the underlying data.
//
// The zero Segment is the canonical empty segment, Sparse(0).
type Segment struct {
	off    uint64
	size   uint64
	sparse bool
}

// Fragment produces a fragment segment covering [offset, offset+size).
// A zero-size fragment is normalized to Sparse(0).
func Fragment(offset, size uint64) Segment {
	if size == 0 {
		return Segment{}
	}
	return Segment{off: offset, size: size}
}

// Sparse produces a sparse segment of the given size.
func Sparse(size uint64) Segment {
	if size == 0 {
		return Segment{}
	}
	return Segment{size: size, sparse: true}
}

// IsSparse tells whether s is a sparse segment.
// Every zero-size segment is sparse.
func (s Segment) IsSparse() bool {
	return s.sparse || s.size == 0
}

// Size is the number of bytes s covers.
func (s Segment) Size() uint64 {
	return s.size
}

// Offset is the offset of a fragment in its parent's coordinate space.
// The boolean is false for sparse segments, which have no offset.
func (s Segment) Offset() (uint64, bool) {
	if s.IsSparse() {
		return 0, false
	}
	return s.off, true
}

// End is the (exclusive) end offset of a fragment.
// The boolean is false for sparse segments.
func (s Segment) End() (uint64, bool) {
	if s.IsSparse() {
		return 0, false
	}
	return s.off + s.size, true
}

func (s Segment) end() uint64 {
	return s.off + s.size
}

// String produces the carvpath token for s:
// "<offset>+<size>" for a fragment,
// "S<size>" for a sparse segment.
func (s Segment) String() string {
	if s.IsSparse() {
		return "S" + strconv.FormatUint(s.size, 10)
	}
	return strconv.FormatUint(s.off, 10) + "+" + strconv.FormatUint(s.size, 10)
}

// Compare orders segments.
// Sparse segments sort before fragments,
// fragments sort by offset and then size,
// and sparse segments sort by size.
// The result is negative, zero, or positive, like strings.Compare.
func (s Segment) Compare(other Segment) int {
	if s.IsSparse() != other.IsSparse() {
		if s.IsSparse() {
			return -1
		}
		return 1
	}
	if !s.IsSparse() && s.off != other.off {
		if s.off < other.off {
			return -1
		}
		return 1
	}
	switch {
	case s.size < other.size:
		return -1
	case s.size > other.size:
		return 1
	}
	return 0
}

// Less tells whether s sorts before other.
func (s Segment) Less(other Segment) bool {
	return s.Compare(other) < 0
}

// grow extends s by n bytes.
func (s Segment) grow(n uint64) Segment {
	if s.size == 0 {
		// Growing the empty segment yields a sparse region.
		return Sparse(n)
	}
	s.size += n
	return s
}

// adjoins tells whether next can be folded into s
// when next directly follows s in an Entity.
func (s Segment) adjoins(next Segment) bool {
	if s.IsSparse() != next.IsSparse() {
		return false
	}
	if s.IsSparse() {
		return true
	}
	return s.end() == next.off
}
