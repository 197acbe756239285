// Package lru implements a long-path store that acts as a least-recently-used cache for a nested long-path store.
package lru

import (
	"context"

	lru "github.com/hashicorp/golang-lru"
	"github.com/mitchellh/mapstructure"
	"github.com/pkg/errors"

	"github.com/bobg/carvpath"
	"github.com/bobg/carvpath/longpath"
)

var _ carvpath.Store = &Store{}

// Store implements a memory-based least-recently-used cache for a long-path store.
// Writes pass through to the underlying store.
//
// Since a digest names its path forever,
// cached entries never go stale.
type Store struct {
	c *lru.Cache // digest->path
	s carvpath.Store
}

// New produces a new Store backed by `s` and caching up to `size` paths.
func New(s carvpath.Store, size int) (*Store, error) {
	c, err := lru.New(size)
	return &Store{s: s, c: c}, errors.Wrap(err, "creating cache")
}

// Get gets the carvpath text for a digest token.
func (s *Store) Get(ctx context.Context, digest string) (string, error) {
	if got, ok := s.c.Get(digest); ok {
		return got.(string), nil
	}
	path, err := s.s.Get(ctx, digest)
	if err != nil {
		return "", err
	}
	s.c.Add(digest, path)
	return path, nil
}

// Put adds a carvpath to the store if it wasn't already present.
func (s *Store) Put(ctx context.Context, path string) (string, bool, error) {
	digest, added, err := s.s.Put(ctx, path)
	if err != nil {
		return digest, added, err
	}
	s.c.Add(digest, path)
	return digest, added, nil
}

// List produces all digests in the nested store, in lexicographic order.
func (s *Store) List(ctx context.Context, start string, f func(string) error) error {
	return s.s.List(ctx, start, f)
}

// Config is the configuration of an lru Store.
type Config struct {
	Size   int                    `mapstructure:"size"`
	Nested map[string]interface{} `mapstructure:"nested"`
}

func init() {
	longpath.Register("lru", func(ctx context.Context, conf map[string]interface{}) (carvpath.Store, error) {
		var c Config
		if err := mapstructure.Decode(conf, &c); err != nil {
			return nil, errors.Wrap(err, "decoding lru store config")
		}
		if c.Size <= 0 {
			return nil, errors.New(`missing "size" parameter`)
		}
		if c.Nested == nil {
			return nil, errors.New(`missing "nested" parameter`)
		}
		nestedType, ok := c.Nested["type"].(string)
		if !ok {
			return nil, errors.New(`"nested" parameter missing "type"`)
		}
		nestedStore, err := longpath.Create(ctx, nestedType, c.Nested)
		if err != nil {
			return nil, errors.Wrap(err, "creating nested store")
		}
		return New(nestedStore, c.Size)
	})
}
