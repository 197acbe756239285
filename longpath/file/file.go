// Package file implements a long-path store as a file hierarchy.
package file

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/mitchellh/mapstructure"
	"github.com/pkg/errors"

	"github.com/bobg/carvpath"
	"github.com/bobg/carvpath/longpath"
)

var _ carvpath.Store = &Store{}

// Store is a file-based implementation of a long-path store.
// Each path lives in a file named for its digest,
// two directory levels down.
// Many processes may share the same root.
type Store struct {
	root string
}

// New produces a new Store storing data beneath `root`.
func New(root string) *Store {
	return &Store{root: root}
}

func (s *Store) pathroot() string {
	return filepath.Join(s.root, "longpaths")
}

func (s *Store) filepath(digest string) string {
	h := strings.TrimPrefix(digest, "D")
	return filepath.Join(s.pathroot(), h[:2], h[:4], digest)
}

// Get gets the carvpath text for a digest token.
func (s *Store) Get(_ context.Context, digest string) (string, error) {
	if !carvpath.IsDigest(digest) {
		return "", carvpath.ErrNotFound
	}
	path := s.filepath(digest)
	b, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return "", carvpath.ErrNotFound
	}
	return string(b), errors.Wrapf(err, "reading %s", path)
}

// Put adds a carvpath to the store if it wasn't already present.
// The text is written to a temporary file first
// and then linked into place,
// so concurrent readers never see a partial file.
func (s *Store) Put(_ context.Context, text string) (string, bool, error) {
	var (
		digest = carvpath.Digest(text)
		path   = s.filepath(digest)
		dir    = filepath.Dir(path)
	)

	if _, err := os.Stat(path); err == nil {
		return digest, false, nil
	}

	err := os.MkdirAll(dir, 0755)
	if err != nil {
		return "", false, errors.Wrapf(err, "ensuring path %s exists", dir)
	}

	f, err := os.CreateTemp(dir, "tmp-")
	if err != nil {
		return "", false, errors.Wrapf(err, "creating temp file in %s", dir)
	}
	tmpname := f.Name()
	defer os.Remove(tmpname)

	_, err = f.WriteString(text)
	if err != nil {
		f.Close()
		return "", false, errors.Wrapf(err, "writing data to %s", tmpname)
	}
	if err = f.Close(); err != nil {
		return "", false, errors.Wrapf(err, "closing %s", tmpname)
	}

	err = os.Link(tmpname, path)
	if errors.Is(err, os.ErrExist) {
		return digest, false, nil
	}
	if err != nil {
		return "", false, errors.Wrapf(err, "linking %s", path)
	}
	return digest, true, nil
}

// List produces all digests in the store, in lexicographic order.
func (s *Store) List(ctx context.Context, start string, f func(string) error) error {
	startHex := strings.TrimPrefix(start, "D")

	topLevel, err := readDirNames(s.pathroot(), 2)
	if err != nil {
		return err
	}
	topIndex := sort.Search(len(topLevel), func(n int) bool {
		return topLevel[n] >= prefix(startHex, 2)
	})
	for _, topName := range topLevel[topIndex:] {
		topDir := filepath.Join(s.pathroot(), topName)
		midLevel, err := readDirNames(topDir, 4)
		if err != nil {
			return err
		}
		midIndex := sort.Search(len(midLevel), func(n int) bool {
			return midLevel[n] >= prefix(startHex, 4)
		})
		for _, midName := range midLevel[midIndex:] {
			entries, err := os.ReadDir(filepath.Join(topDir, midName))
			if err != nil {
				return errors.Wrapf(err, "reading dir %s/%s", topDir, midName)
			}
			index := sort.Search(len(entries), func(n int) bool {
				return entries[n].Name() > start
			})
			for _, entry := range entries[index:] {
				if entry.IsDir() || !carvpath.IsDigest(entry.Name()) {
					continue
				}
				if err := ctx.Err(); err != nil {
					return err
				}
				if err := f(entry.Name()); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

// readDirNames lists the subdirectories of dir
// whose names are lowercase hex strings of length n,
// in sorted order.
// A nonexistent dir has none.
func readDirNames(dir string, n int) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrapf(err, "reading dir %s", dir)
	}
	var names []string
	for _, entry := range entries {
		name := entry.Name()
		if !entry.IsDir() || len(name) != n || strings.Trim(name, "0123456789abcdef") != "" {
			continue
		}
		names = append(names, name)
	}
	return names, nil
}

func prefix(s string, n int) string {
	if len(s) < n {
		return s
	}
	return s[:n]
}

// Config is the configuration of a file Store.
type Config struct {
	Root string `mapstructure:"root"`
}

func init() {
	longpath.Register("file", func(_ context.Context, conf map[string]interface{}) (carvpath.Store, error) {
		var c Config
		if err := mapstructure.Decode(conf, &c); err != nil {
			return nil, errors.Wrap(err, "decoding file store config")
		}
		if c.Root == "" {
			return nil, errors.New(`missing "root" parameter`)
		}
		return New(c.Root), nil
	})
}
