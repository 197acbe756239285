package carvpath

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/pkg/errors"
)

// Advisor is told when bytes of the underlying data
// become wanted (referenced by at least one Entity in a Box)
// or unwanted (referenced by none).
// A typical implementation passes the hint on to the OS page cache.
type Advisor interface {
	Advise(offset, size uint64, want bool)
}

// AdviceFunc is a function implementing Advisor.
type AdviceFunc func(offset, size uint64, want bool)

// Advise implements Advisor.
func (f AdviceFunc) Advise(offset, size uint64, want bool) {
	f(offset, size, want)
}

// Box keeps reference counts on the entities in use within some Top,
// and on the bytes they cover.
// It reports bytes going from zero references to one and back to its Advisor,
// and it runs an OpportunisticHash for each registered Entity.
//
// Reference counts on bytes are kept as a stack of layers.
// Layer L is the set of bytes referenced by more than L registered entities,
// so layer 0 is everything in use,
// and each layer is a subset of the one below it.
//
// Box is not safe for concurrent use.
type Box struct {
	c       *Context
	top     *Top
	adv     Advisor
	entries map[string]*boxEntry
	layers  []Entity
	err     error // sticky ErrConsistency
}

type boxEntry struct {
	ent  Entity // in Top coordinates, sparse stripped
	size uint64 // logical size, sparse included
	refs int
	hash *OpportunisticHash
}

func newBox(c *Context, top *Top, adv Advisor) *Box {
	if adv == nil {
		adv = AdviceFunc(func(uint64, uint64, bool) {})
	}
	return &Box{
		c:       c,
		top:     top,
		adv:     adv,
		entries: make(map[string]*boxEntry),
	}
}

// Err is the error that broke b, if any.
// Once b's bookkeeping is found to be inconsistent,
// Register and Unregister refuse to do anything further.
func (b *Box) Err() error {
	return b.err
}

// Register adds a reference to the Entity named by key,
// a carvpath as understood by Context.Parse.
// It returns the bytes that went from zero references to one,
// which have also been reported to the Advisor.
// Registering a key that is already present
// only increments its count and returns an empty Entity.
//
// The error wraps ErrParse, ErrDigestMiss, or ErrOutOfBounds
// if key does not name an Entity within the Box's Top.
func (b *Box) Register(ctx context.Context, key string) (Entity, error) {
	if b.err != nil {
		return Entity{}, b.err
	}
	if entry, ok := b.entries[key]; ok {
		entry.refs++
		return Entity{}, nil
	}

	ent, err := b.c.Parse(ctx, key)
	if err != nil {
		return Entity{}, errors.Wrapf(err, "parsing %s", key)
	}
	ent, err = b.top.Project(ent)
	if err != nil {
		return Entity{}, errors.Wrapf(err, "checking %s", key)
	}

	entry := &boxEntry{
		ent:  ent.StripSparse(),
		size: ent.TotalSize(),
		refs: 1,
		hash: NewOpportunisticHash(ent, b.c.newHash),
	}
	b.entries[key] = entry

	claimed := b.extend(entry.ent)
	for _, s := range claimed.segs {
		b.adv.Advise(s.off, s.size, true)
	}
	return claimed, nil
}

// Unregister drops a reference to the Entity named by key.
// When its count reaches zero,
// the Entity and its OpportunisticHash are discarded.
// It returns the bytes that went from one reference to zero,
// which have also been reported to the Advisor.
//
// The error wraps ErrUnknownKey if key is not registered,
// or ErrConsistency if the Box's bookkeeping has gone wrong,
// after which the Box is unusable.
func (b *Box) Unregister(key string) (Entity, error) {
	if b.err != nil {
		return Entity{}, b.err
	}
	entry, ok := b.entries[key]
	if !ok {
		return Entity{}, errors.Wrapf(ErrUnknownKey, "unregistering %s", key)
	}
	entry.refs--
	if entry.refs > 0 {
		return Entity{}, nil
	}
	delete(b.entries, key)

	released, err := b.diminish(entry.ent)
	if err != nil {
		b.err = errors.Wrapf(err, "unregistering %s", key)
		return Entity{}, b.err
	}
	for _, s := range released.segs {
		b.adv.Advise(s.off, s.size, false)
	}
	return released, nil
}

// extend adds the bytes of e to the layer stack.
// Whatever is already present in a layer moves on to the next,
// creating it if necessary.
// It returns the bytes newly added to layer 0.
func (b *Box) extend(e Entity) Entity {
	var claimed Entity
	for level := 0; !e.IsEmpty(); level++ {
		if level == len(b.layers) {
			b.layers = append(b.layers, Entity{})
		}
		merged, already, absorbed := b.layers[level].Merge(e)
		b.layers[level] = merged
		if level == 0 {
			claimed = absorbed
		}
		e = already
	}
	return claimed
}

// diminish removes the bytes of e from the layer stack,
// each byte from the deepest layer containing it,
// working from the top of the stack down.
// It returns the bytes removed from layer 0.
func (b *Box) diminish(e Entity) (Entity, error) {
	var released Entity
	for level := len(b.layers) - 1; level >= 0 && !e.IsEmpty(); level-- {
		remaining, absent, dropped := b.layers[level].Unmerge(e)
		b.layers[level] = remaining
		if level == 0 {
			released = dropped
		}
		e = absent
	}
	for n := len(b.layers); n > 0 && b.layers[n-1].IsEmpty(); n-- {
		b.layers = b.layers[:n-1]
	}
	if !e.IsEmpty() {
		return released, errors.Wrapf(ErrConsistency, "%s left over below layer 0", e)
	}
	return released, nil
}

// Refcount is the number of times key is registered.
func (b *Box) Refcount(key string) int {
	if entry, ok := b.entries[key]; ok {
		return entry.refs
	}
	return 0
}

// Entity is the set of bytes named by a registered key,
// in the coordinates of the Box's Top.
//
// The error wraps ErrUnknownKey if key is not registered.
func (b *Box) Entity(key string) (Entity, error) {
	entry, ok := b.entries[key]
	if !ok {
		return Entity{}, errors.Wrapf(ErrUnknownKey, "%s", key)
	}
	return entry.ent, nil
}

// Keys lists the registered keys in lexicographic order.
func (b *Box) Keys() []string {
	keys := make([]string, 0, len(b.entries))
	for key := range b.entries {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

// Layers returns the reference-count layers, layer 0 first.
func (b *Box) Layers() []Entity {
	out := make([]Entity, len(b.layers))
	copy(out, b.layers)
	return out
}

// Volume is the number of bytes referenced by at least one registered Entity.
func (b *Box) Volume() uint64 {
	if len(b.layers) == 0 {
		return 0
	}
	return b.layers[0].TotalSize()
}

// Overlapping lists, in lexicographic order,
// the registered keys whose entities share bytes with [offset, offset+size).
func (b *Box) Overlapping(offset, size uint64) []string {
	probe := NewEntity(Fragment(offset, size))
	var out []string
	for _, key := range b.Keys() {
		if b.entries[key].ent.Overlaps(probe) {
			out = append(out, key)
		}
	}
	return out
}

// Written reports that data was written to the underlying data at the given offset,
// for the benefit of opportunistic hashing.
func (b *Box) Written(offset uint64, data []byte) {
	for _, entry := range b.entries {
		entry.hash.Written(offset, data)
	}
}

// Read reports that data was read from the underlying data at the given offset,
// for the benefit of opportunistic hashing.
func (b *Box) Read(offset uint64, data []byte) {
	for _, entry := range b.entries {
		entry.hash.Read(offset, data)
	}
}

// HashState describes the progress of opportunistic hashing for one key.
type HashState struct {
	// Offset is the number of logical bytes hashed so far.
	Offset uint64

	// Done tells whether Result is valid.
	Done bool

	// Result is the hex digest of the Entity's content, when Done.
	Result string
}

// Hashing reports the opportunistic hashing progress for key.
//
// The error wraps ErrUnknownKey if key is not registered.
func (b *Box) Hashing(key string) (HashState, error) {
	entry, ok := b.entries[key]
	if !ok {
		return HashState{}, errors.Wrapf(ErrUnknownKey, "%s", key)
	}
	result, done := entry.hash.Result()
	return HashState{Offset: entry.hash.Offset(), Done: done, Result: result}, nil
}

// String describes the layers and registered keys of b.
func (b *Box) String() string {
	var sb strings.Builder
	for i, layer := range b.layers {
		fmt.Fprintf(&sb, "   + L%d : %s\n", i, layer)
	}
	for _, key := range b.Keys() {
		fmt.Fprintf(&sb, "   * %s : %d\n", key, b.entries[key].refs)
	}
	return sb.String()
}
