package carvpath

import (
	"context"
	"errors"
)

// Getter is a read-only long-path Store (qv).
type Getter interface {
	// Get gets the carvpath text for a digest token.
	Get(ctx context.Context, digest string) (string, error)

	// List calls a function for each digest token in the store in lexicographic order,
	// beginning with the first digest _after_ the specified one.
	//
	// The calls reflect at least the set of digests
	// known at the moment List was called.
	// It is unspecified whether later changes,
	// that happen concurrently with List,
	// are reflected.
	//
	// If the callback function returns an error,
	// List exits with that error.
	List(ctx context.Context, start string, f func(digest string) error) error
}

// Store is a long-path store.
// It holds carvpath text too long to be used directly as a name,
// indexed by its digest token (see Digest).
// Since the digest is computed from the text,
// a Store is content-addressable,
// and many processes may share one.
type Store interface {
	Getter

	// Put adds path to the store if it was not already present.
	// It returns path's digest token and a boolean that is true iff the path had to be added.
	Put(ctx context.Context, path string) (digest string, added bool, err error)
}

// ErrNotFound is the error returned
// when a Getter tries to access a non-existent digest.
var ErrNotFound = errors.New("not found")
