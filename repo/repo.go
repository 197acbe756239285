// Package repo implements a carvpath repository:
// a single large file that only ever grows,
// whose byte ranges are handed out as mutable carvpaths
// and tracked in a carvpath.Box.
//
// Several processes may share a repository file.
// Growth is serialized among them with an advisory lock on a companion file.
// Within one process,
// a Repository is safe for concurrent use.
package repo

import (
	"context"
	"io"
	"os"
	"sync"

	"github.com/bobg/flock"
	"github.com/bobg/hashsplit"
	"github.com/pkg/errors"

	"github.com/bobg/carvpath"
)

// Backing is the storage underneath a Repository.
// An *os.File is a Backing.
type Backing interface {
	io.ReaderAt
	io.WriterAt
	io.Closer
	Stat() (os.FileInfo, error)
	Truncate(size int64) error
}

// Repository is an open repository file.
type Repository struct {
	lockPath string
	f        Backing
	flocker  flock.Locker

	c   *carvpath.Context
	adv carvpath.Advisor

	mu  sync.Mutex // protects top and box
	top *carvpath.Top
	box *carvpath.Box
}

// Option is the type of a config option that can be passed to Open.
type Option func(*Repository)

// WithAdvisor tells Open to send cache advice to adv
// instead of to the operating system's page cache.
func WithAdvisor(adv carvpath.Advisor) Option {
	return func(r *Repository) {
		r.adv = adv
	}
}

// Open opens the repository file at path, creating it if needed.
// All of its existing bytes start out unwanted.
func Open(path string, c *carvpath.Context, opts ...Option) (*Repository, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return nil, errors.Wrapf(err, "opening %s", path)
	}
	r, err := New(f, path+".lock", c, opts...)
	if err != nil {
		f.Close()
		return nil, err
	}
	return r, nil
}

// New produces a Repository on an already-open Backing.
// Growth is serialized by locking the file at lockPath,
// which is created if needed.
// Unless WithAdvisor is given,
// cache advice goes to the operating system when b is an *os.File
// and is discarded otherwise.
func New(b Backing, lockPath string, c *carvpath.Context, opts ...Option) (*Repository, error) {
	info, err := b.Stat()
	if err != nil {
		return nil, errors.Wrap(err, "statting repository")
	}
	lf, err := os.OpenFile(lockPath, os.O_RDONLY|os.O_CREATE, 0644)
	if err != nil {
		return nil, errors.Wrapf(err, "creating lock file %s", lockPath)
	}
	lf.Close()

	r := &Repository{
		lockPath: lockPath,
		f:        b,
		c:        c,
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.adv == nil {
		if f, ok := b.(*os.File); ok {
			r.adv = newFadvisor(f)
		} else {
			r.adv = carvpath.AdviceFunc(func(uint64, uint64, bool) {})
		}
	}

	size := uint64(info.Size())
	if size > 0 {
		r.adv.Advise(0, size, false)
	}
	r.top = c.NewTop(size)
	r.box = c.NewBox(r.top, r.adv)

	return r, nil
}

// Close closes the repository's Backing.
func (r *Repository) Close() error {
	return r.f.Close()
}

// grow extends the repository file by n bytes
// and returns the offset of the first new byte.
// The file's current size is read under the lock,
// so growth by other processes sharing the file is accounted for.
// Caller must hold r.mu.
func (r *Repository) grow(n uint64) (uint64, error) {
	if err := r.flocker.Lock(r.lockPath); err != nil {
		return 0, errors.Wrap(err, "locking repository")
	}
	defer r.flocker.Unlock(r.lockPath)

	info, err := r.f.Stat()
	if err != nil {
		return 0, errors.Wrap(err, "statting repository")
	}
	start := uint64(info.Size())
	if start < r.top.Size() {
		return 0, errors.Wrapf(carvpath.ErrConsistency, "repository shrank from %d to %d bytes", r.top.Size(), start)
	}
	if err = r.f.Truncate(int64(start + n)); err != nil {
		return 0, errors.Wrapf(err, "growing repository to %d bytes", start+n)
	}
	r.top.Grow(start + n - r.top.Size())
	return start, nil
}

// AllocateMutable extends the repository by size bytes
// and registers the new range in the repository's Box.
// It returns the range's carvpath,
// which the caller should eventually Release.
func (r *Repository) AllocateMutable(ctx context.Context, size uint64) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	start, err := r.grow(size)
	if err != nil {
		return "", err
	}
	key, err := r.c.Encode(ctx, carvpath.NewEntity(carvpath.Fragment(start, size)))
	if err != nil {
		return "", errors.Wrap(err, "encoding new range")
	}
	if _, err = r.box.Register(ctx, key); err != nil {
		return "", errors.Wrapf(err, "registering %s", key)
	}
	return key, nil
}

// Register adds a reference to the entity denoted by path,
// which must lie within the repository.
func (r *Repository) Register(ctx context.Context, path string) (carvpath.Entity, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.box.Register(ctx, path)
}

// Release drops a reference taken by AllocateMutable, Ingest, or Register.
func (r *Repository) Release(key string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, err := r.box.Unregister(key)
	return err
}

// Volume is the number of repository bytes referenced by at least one registered entity.
func (r *Repository) Volume() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.box.Volume()
}

// Size is the size of the repository file as last seen by this process.
func (r *Repository) Size() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.top.Size()
}

// Hashing reports the progress of the opportunistic hash for a registered key.
func (r *Repository) Hashing(key string) (carvpath.HashState, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.box.Hashing(key)
}

// Box calls f with the repository's Box, under the repository's lock.
func (r *Repository) Box(f func(*carvpath.Box) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return f(r.box)
}

// ReadAt implements io.ReaderAt.
// Bytes read are offered to the opportunistic hashes of registered entities.
func (r *Repository) ReadAt(p []byte, off int64) (int, error) {
	n, err := r.f.ReadAt(p, off)
	if n > 0 {
		r.mu.Lock()
		r.box.Read(uint64(off), p[:n])
		r.mu.Unlock()
	}
	return n, err
}

// WriteAt implements io.WriterAt.
// Bytes written are offered to the opportunistic hashes of registered entities,
// restarting any whose result they invalidate.
func (r *Repository) WriteAt(p []byte, off int64) (int, error) {
	n, err := r.f.WriteAt(p, off)
	if n > 0 {
		r.mu.Lock()
		r.box.Written(uint64(off), p[:n])
		r.mu.Unlock()
	}
	return n, err
}

const copyBufSize = 64 * 1024

// WriteEntityTo writes the logical content of the entity at path to w.
// Sparse segments produce zeroes.
func (r *Repository) WriteEntityTo(ctx context.Context, path string, w io.Writer) (int64, error) {
	e, err := r.c.Parse(ctx, path)
	if err != nil {
		return 0, errors.Wrapf(err, "parsing %s", path)
	}
	r.mu.Lock()
	e, err = r.top.Project(e)
	r.mu.Unlock()
	if err != nil {
		return 0, errors.Wrapf(err, "projecting %s", path)
	}

	var (
		buf     = make([]byte, copyBufSize)
		written int64
	)
	for _, seg := range e.Segments() {
		off, ok := seg.Offset()
		remaining := seg.Size()
		for remaining > 0 {
			if err = ctx.Err(); err != nil {
				return written, err
			}
			chunk := buf
			if uint64(len(chunk)) > remaining {
				chunk = chunk[:remaining]
			}
			if ok {
				if _, err = r.ReadAt(chunk, int64(off)); err != nil {
					return written, errors.Wrapf(err, "reading %d bytes at %d", len(chunk), off)
				}
				off += uint64(len(chunk))
			} else {
				for i := range chunk {
					chunk[i] = 0
				}
			}
			n, err := w.Write(chunk)
			written += int64(n)
			if err != nil {
				return written, errors.Wrap(err, "writing output")
			}
			remaining -= uint64(len(chunk))
		}
	}
	return written, nil
}

// Ingested is the result of Ingest.
type Ingested struct {
	// Key is the carvpath of the whole ingested stream.
	Key string

	// Chunks are the carvpaths of the stream's content-defined chunks, in order.
	Chunks []string
}

// Ingest copies the content of inp into newly allocated space in the repository,
// splitting it into chunks with a rolling-checksum splitter.
// Each chunk is allocated and registered separately,
// so each gets its own opportunistic hash,
// computed as its bytes are written.
// The whole stream is registered too, under Key.
//
// On error, any ranges already registered are released.
func (r *Repository) Ingest(ctx context.Context, inp io.Reader) (*Ingested, error) {
	var (
		result Ingested
		whole  carvpath.Entity
	)

	release := func() {
		for _, key := range result.Chunks {
			r.Release(key)
		}
	}

	spl := hashsplit.NewSplitter(func(chunk []byte, level uint) error {
		if len(chunk) == 0 {
			return nil
		}
		key, err := r.AllocateMutable(ctx, uint64(len(chunk)))
		if err != nil {
			return errors.Wrap(err, "allocating chunk")
		}
		result.Chunks = append(result.Chunks, key)

		r.mu.Lock()
		e, err := r.box.Entity(key)
		r.mu.Unlock()
		if err != nil {
			return errors.Wrapf(err, "looking up %s", key)
		}
		whole.AppendEntity(e)

		off, _ := e.At(0).Offset()
		if _, err = r.WriteAt(chunk, int64(off)); err != nil {
			return errors.Wrapf(err, "writing chunk %s", key)
		}
		return nil
	})
	spl.MinSize = 1024
	spl.SplitBits = 14

	if _, err := io.Copy(spl, inp); err != nil {
		release()
		return nil, errors.Wrap(err, "splitting input")
	}
	if err := spl.Close(); err != nil {
		release()
		return nil, errors.Wrap(err, "closing splitter")
	}

	key, err := r.c.Encode(ctx, whole)
	if err != nil {
		release()
		return nil, errors.Wrap(err, "encoding ingested entity")
	}
	r.mu.Lock()
	_, err = r.box.Register(ctx, key)
	r.mu.Unlock()
	if err != nil {
		release()
		return nil, errors.Wrapf(err, "registering %s", key)
	}
	result.Key = key

	return &result, nil
}
