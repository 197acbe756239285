// Package logging implements a long-path store that delegates everything to a nested store,
// logging operations as they happen.
package logging

import (
	"context"
	"log"

	"github.com/mitchellh/mapstructure"
	"github.com/pkg/errors"

	"github.com/bobg/carvpath"
	"github.com/bobg/carvpath/longpath"
)

var _ carvpath.Store = &Store{}

type Store struct {
	s carvpath.Store
}

func New(s carvpath.Store) *Store {
	return &Store{s: s}
}

func (s *Store) Get(ctx context.Context, digest string) (string, error) {
	path, err := s.s.Get(ctx, digest)
	if err != nil {
		log.Printf("ERROR Get %s: %s", digest, err)
	} else {
		log.Printf("Get %s", digest)
	}
	return path, err
}

func (s *Store) List(ctx context.Context, start string, f func(string) error) error {
	log.Printf("List, start=%s", start)
	return s.s.List(ctx, start, func(digest string) error {
		err := f(digest)
		if err != nil {
			log.Printf("  ERROR in List: %s: %s", digest, err)
		} else {
			log.Printf("  List: %s", digest)
		}
		return err
	})
}

func (s *Store) Put(ctx context.Context, path string) (string, bool, error) {
	digest, added, err := s.s.Put(ctx, path)
	if err != nil {
		log.Printf("ERROR in Put: %s", err)
	} else {
		log.Printf("Put %s, added=%v", digest, added)
	}
	return digest, added, err
}

func init() {
	longpath.Register("logging", func(ctx context.Context, conf map[string]interface{}) (carvpath.Store, error) {
		var c struct {
			Nested map[string]interface{} `mapstructure:"nested"`
		}
		if err := mapstructure.Decode(conf, &c); err != nil {
			return nil, errors.Wrap(err, "decoding logging store config")
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
		return New(nestedStore), nil
	})
}
