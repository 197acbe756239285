// Package badger implements a long-path store in a BadgerDB key-value database.
package badger

import (
	"context"
	stderrs "errors"

	"github.com/dgraph-io/badger/v4"
	"github.com/mitchellh/mapstructure"
	"github.com/pkg/errors"

	"github.com/bobg/carvpath"
	"github.com/bobg/carvpath/longpath"
)

var _ carvpath.Store = &Store{}

// Store is a BadgerDB-based long-path store.
type Store struct {
	db *badger.DB
}

// New produces a new Store using `db` for storage.
func New(db *badger.DB) *Store {
	return &Store{db: db}
}

// Open opens (creating if necessary) a BadgerDB database in dir
// and produces a Store using it.
// Close the Store when done.
func Open(dir string) (*Store, error) {
	opts := badger.DefaultOptions(dir).WithLoggingLevel(badger.WARNING)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, errors.Wrapf(err, "opening badger db at %s", dir)
	}
	return New(db), nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

const keyPrefix = "l:"

func key(digest string) []byte {
	return []byte(keyPrefix + digest)
}

// Get gets the carvpath text for a digest token.
func (s *Store) Get(_ context.Context, digest string) (string, error) {
	var path string
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key(digest))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			path = string(val)
			return nil
		})
	})
	if stderrs.Is(err, badger.ErrKeyNotFound) {
		return "", carvpath.ErrNotFound
	}
	return path, errors.Wrapf(err, "getting %s", digest)
}

// Put adds a carvpath to the store if it wasn't already present.
func (s *Store) Put(ctx context.Context, path string) (string, bool, error) {
	digest := carvpath.Digest(path)
	for {
		var added bool
		err := s.db.Update(func(txn *badger.Txn) error {
			_, err := txn.Get(key(digest))
			if err == nil {
				return nil
			}
			if !stderrs.Is(err, badger.ErrKeyNotFound) {
				return err
			}
			added = true
			return txn.Set(key(digest), []byte(path))
		})
		if stderrs.Is(err, badger.ErrConflict) {
			// Someone else wrote the same key concurrently.
			if err := ctx.Err(); err != nil {
				return "", false, err
			}
			continue
		}
		if err != nil {
			return "", false, errors.Wrapf(err, "storing %s", digest)
		}
		return digest, added, nil
	}
}

// List produces all digests in the store, in lexicographic order.
func (s *Store) List(ctx context.Context, start string, f func(string) error) error {
	var digests []string
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = []byte(keyPrefix)

		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(key(start)); it.Valid(); it.Next() {
			digest := string(it.Item().Key()[len(keyPrefix):])
			if digest <= start {
				continue
			}
			digests = append(digests, digest)
		}
		return nil
	})
	if err != nil {
		return errors.Wrap(err, "iterating over keys")
	}

	for _, digest := range digests {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := f(digest); err != nil {
			return err
		}
	}
	return nil
}

// Config is the configuration of a badger Store.
type Config struct {
	Dir string `mapstructure:"dir"`
}

func init() {
	longpath.Register("badger", func(_ context.Context, conf map[string]interface{}) (carvpath.Store, error) {
		var c Config
		if err := mapstructure.Decode(conf, &c); err != nil {
			return nil, errors.Wrap(err, "decoding badger store config")
		}
		if c.Dir == "" {
			return nil, errors.New(`missing "dir" parameter`)
		}
		return Open(c.Dir)
	})
}
