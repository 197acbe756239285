package carvpath

import (
	"encoding/hex"
	"hash"
	"sort"
)

// OpportunisticHash computes the digest of an Entity's content
// as a side effect of ordinary I/O on the data beneath it.
// Feed it every chunk of data read from or written to the parent,
// at the parent's offsets;
// it picks out the bytes that continue the Entity in logical order.
// Once every logical byte has been seen, in order,
// the digest is complete.
//
// Bytes arriving out of logical order are ignored,
// leaving the digest incomplete rather than wrong.
// A write that changes bytes already hashed restarts hashing from the beginning.
//
// An OpportunisticHash is not safe for concurrent use.
type OpportunisticHash struct {
	ent     Entity
	starts  []uint64 // starts[i] is the logical offset at which ent.segs[i] begins
	newHash func() hash.Hash
	h       hash.Hash
	offset  uint64 // next expected logical offset
	result  string

	// [lo, hi) in parent coordinates bounds the fragments
	// that still have unhashed bytes.
	// Reads outside this range cannot advance the hash.
	lo, hi uint64

	// [fullLo, fullHi) bounds all of ent's fragments.
	// Writes outside this range cannot affect the hash.
	fullLo, fullHi uint64
}

// Incomplete is the text conventionally shown in place of an unfinished digest.
const Incomplete = "INCOMPLETE-OPPORTUNISTIC_HASHING"

// NewOpportunisticHash produces an OpportunisticHash for e,
// which must be in its parent's coordinates
// (as produced by Context.Parse or Top.Project).
// If newHash is nil, HashBLAKE2b is used.
func NewOpportunisticHash(e Entity, newHash func() hash.Hash) *OpportunisticHash {
	if newHash == nil {
		newHash = HashBLAKE2b
	}
	oh := &OpportunisticHash{
		ent:     e.Clone(),
		starts:  make([]uint64, e.Len()),
		newHash: newHash,
	}
	var pos uint64
	for i, s := range oh.ent.segs {
		oh.starts[i] = pos
		pos += s.size
	}
	oh.fullLo, oh.fullHi = oh.roi(0)
	oh.restart()
	return oh
}

func (oh *OpportunisticHash) restart() {
	oh.h = oh.newHash()
	oh.offset = 0
	oh.result = ""
	oh.advance()
}

// Offset is the number of logical bytes hashed so far.
func (oh *OpportunisticHash) Offset() uint64 {
	return oh.offset
}

// Done tells whether the digest is complete.
func (oh *OpportunisticHash) Done() bool {
	return oh.result != ""
}

// Result is the hex digest of the Entity's content.
// The boolean is false,
// and the string empty,
// if hashing is incomplete.
func (oh *OpportunisticHash) Result() (string, bool) {
	return oh.result, oh.result != ""
}

// Read reports that data was read from the parent at the given offset.
func (oh *OpportunisticHash) Read(offset uint64, data []byte) {
	if oh.Done() || !overlaps(offset, uint64(len(data)), oh.lo, oh.hi) {
		return
	}
	oh.feed(offset, data, false)
}

// Written reports that data was written to the parent at the given offset.
func (oh *OpportunisticHash) Written(offset uint64, data []byte) {
	if !overlaps(offset, uint64(len(data)), oh.fullLo, oh.fullHi) {
		return
	}
	oh.feed(offset, data, true)
}

func overlaps(off, size, lo, hi uint64) bool {
	return size > 0 && lo < hi && off < hi && off+size > lo
}

// feed walks the fragments of the Entity in logical order,
// handing each piece of data that lands in one to chunk.
func (oh *OpportunisticHash) feed(offset uint64, data []byte, write bool) {
	end := offset + uint64(len(data))
	for i, s := range oh.ent.segs {
		if s.IsSparse() || s.off >= end || s.end() <= offset {
			continue
		}
		lo, hi := s.off, s.end()
		if lo < offset {
			lo = offset
		}
		if hi > end {
			hi = end
		}
		logical := oh.starts[i] + (lo - s.off)
		oh.chunk(logical, data[lo-offset:hi-offset], write)
	}
}

func (oh *OpportunisticHash) chunk(logical uint64, data []byte, write bool) {
	if write && logical < oh.offset {
		// Already-hashed bytes changed.
		oh.restart()
	}
	if oh.Done() {
		return
	}
	end := logical + uint64(len(data))
	if logical > oh.offset || end <= oh.offset {
		return
	}
	oh.h.Write(data[oh.offset-logical:])
	oh.offset = end
	oh.advance()
}

var zeros [64 * 1024]byte

// advance hashes any sparse segments at the current offset,
// finishes the digest if the end has been reached,
// and recomputes the range of interest.
func (oh *OpportunisticHash) advance() {
	for oh.offset < oh.ent.total {
		i := oh.segAt(oh.offset)
		s := oh.ent.segs[i]
		if !s.IsSparse() {
			break
		}
		left := oh.starts[i] + s.size - oh.offset
		for left > 0 {
			n := uint64(len(zeros))
			if n > left {
				n = left
			}
			oh.h.Write(zeros[:n])
			left -= n
		}
		oh.offset = oh.starts[i] + s.size
	}
	if oh.offset >= oh.ent.total {
		oh.result = hex.EncodeToString(oh.h.Sum(nil))
		oh.lo, oh.hi = 0, 0
		return
	}
	oh.lo, oh.hi = oh.roi(oh.offset)
}

// segAt is the index of the segment holding logical offset pos.
func (oh *OpportunisticHash) segAt(pos uint64) int {
	return sort.Search(len(oh.starts), func(n int) bool {
		return oh.starts[n]+oh.ent.segs[n].size > pos
	})
}

// roi bounds, in parent coordinates,
// the fragment bytes at logical offset from or later.
func (oh *OpportunisticHash) roi(from uint64) (lo, hi uint64) {
	first := true
	for i, s := range oh.ent.segs {
		if s.IsSparse() || oh.starts[i]+s.size <= from {
			continue
		}
		start := s.off
		if oh.starts[i] < from {
			start += from - oh.starts[i]
		}
		if first || start < lo {
			lo = start
		}
		if first || s.end() > hi {
			hi = s.end()
		}
		first = false
	}
	return lo, hi
}
