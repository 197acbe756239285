// Package mem implements an in-memory long-path store.
package mem

import (
	"context"
	"sort"
	"sync"

	"github.com/bobg/carvpath"
	"github.com/bobg/carvpath/longpath"
)

var _ carvpath.Store = &Store{}

// Store is a memory-based implementation of a long-path store.
type Store struct {
	mu    sync.Mutex
	paths map[string]string
}

// New produces a new Store.
func New() *Store {
	return &Store{
		paths: make(map[string]string),
	}
}

// Get gets the carvpath text for a digest token.
func (s *Store) Get(_ context.Context, digest string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if path, ok := s.paths[digest]; ok {
		return path, nil
	}
	return "", carvpath.ErrNotFound
}

// Put adds a carvpath to the store if it wasn't already present.
func (s *Store) Put(_ context.Context, path string) (string, bool, error) {
	digest := carvpath.Digest(path)

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.paths[digest]; ok {
		return digest, false, nil
	}
	s.paths[digest] = path
	return digest, true, nil
}

// List produces all digests in the store, in lexicographic order.
func (s *Store) List(_ context.Context, start string, f func(string) error) error {
	s.mu.Lock()
	digests := make([]string, 0, len(s.paths))
	for digest := range s.paths {
		digests = append(digests, digest)
	}
	s.mu.Unlock()

	sort.Strings(digests)
	index := sort.Search(len(digests), func(n int) bool {
		return digests[n] > start
	})

	for i := index; i < len(digests); i++ {
		err := f(digests[i])
		if err != nil {
			return err
		}
	}
	return nil
}

func init() {
	longpath.Register("mem", func(context.Context, map[string]interface{}) (carvpath.Store, error) {
		return New(), nil
	})
}
