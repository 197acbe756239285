package carvpath

// Top represents the full extent of some underlying data,
// such as a disk image or a repository file,
// and validates entities against it.
// It is the single fragment [0, size).
//
// Top is not safe for concurrent use.
type Top struct {
	ent Entity
}

// NewTop produces a Top for data of the given size.
func NewTop(size uint64) *Top {
	return &Top{ent: NewEntity(Fragment(0, size))}
}

// Size is the size of the underlying data.
func (t *Top) Size() uint64 {
	return t.ent.TotalSize()
}

// Entity is t as an Entity.
func (t *Top) Entity() Entity {
	return t.ent.Clone()
}

// Grow records that n bytes were added to the end of the underlying data.
// Call it before validating any Entity that refers to the new bytes.
func (t *Top) Grow(n uint64) {
	t.ent.Grow(n)
}

// Test tells whether e lies entirely within t.
func (t *Top) Test(e Entity) bool {
	_, err := t.Project(e)
	return err == nil
}

// Project produces e in the coordinates of the underlying data.
// Since a Top is a single fragment starting at zero,
// this is e itself, once validated.
//
// The error wraps ErrOutOfBounds if e does not fit in t.
func (t *Top) Project(e Entity) (Entity, error) {
	return t.ent.Subentity(e)
}
