package carvpath

import "github.com/pkg/errors"

var (
	// ErrParse is the error returned (wrapped) for malformed carvpath text.
	ErrParse = errors.New("malformed carvpath")

	// ErrOutOfBounds is the error returned (wrapped) when an Entity addresses bytes
	// beyond the end of the Entity or Top it is projected onto.
	ErrOutOfBounds = errors.New("out of bounds")

	// ErrUnknownKey is the error returned (wrapped) by Box operations on a key
	// that is not registered.
	ErrUnknownKey = errors.New("unknown key")

	// ErrDigestMiss is the error returned (wrapped) when a digest token
	// has no entry in the long-path Store.
	ErrDigestMiss = errors.New("digest not in long-path store")

	// ErrConsistency is the error returned (wrapped) when a Box's refcount layers
	// no longer agree with its registered entities.
	// A Box that has returned this error refuses all further changes.
	ErrConsistency = errors.New("box layer stack inconsistent")
)
