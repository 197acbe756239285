// Package replica implements a long-path store that fans writes out to several nested stores.
package replica

import (
	"context"
	"sync"

	"github.com/mitchellh/mapstructure"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"github.com/bobg/carvpath"
	"github.com/bobg/carvpath/longpath"
)

var _ carvpath.Store = (*Store)(nil)

// Store is a long-path store that delegates reads and writes to two sets of nested stores.
// One set is synchronous:
// writes to all of these must succeed before a call to Put returns,
// and an error from any will cause Put to fail.
// The other set is asynchronous:
// a call to Put queues writes on these stores but does not wait for them to finish.
// However, if any asynchronous write encounters an error,
// the whole Store is put into an error state and further operations will fail.
type Store struct {
	sync   []carvpath.Store
	queues []chan<- string
	cancel context.CancelFunc

	mu  sync.Mutex // protects err
	err error      // the error from an async goroutine, if any
}

// New produces a new Store.
// The set of synchronous stores must be non-empty.
// The set of asynchronous stores may be empty.
// If there are any asynchronous stores,
// goroutines are launched for them,
// and canceling the given context causes those to exit,
// placing the Store in an error state.
//
// Each asynchronous store has a queue of length n,
// which must be 1 or greater.
// If any async store falls that far behind,
// Put blocks until its request can be queued.
func New(ctx context.Context, sync, async []carvpath.Store, n int) *Store {
	s := &Store{sync: sync}
	if len(async) == 0 {
		return s
	}

	ctx, s.cancel = context.WithCancel(ctx)
	for _, a := range async {
		q := make(chan string, n)
		s.queues = append(s.queues, q)
		go s.runAsync(ctx, a, q)
	}
	return s
}

// Runs as a goroutine until ctx is canceled or a write fails.
func (s *Store) runAsync(ctx context.Context, nested carvpath.Store, paths <-chan string) {
	for {
		select {
		case <-ctx.Done():
			s.fail(ctx.Err())
			return

		case path := <-paths:
			if _, _, err := nested.Put(ctx, path); err != nil {
				s.fail(errors.Wrap(err, "in async store"))
				return
			}
		}
	}
}

func (s *Store) fail(err error) {
	s.mu.Lock()
	if s.err == nil {
		s.err = err
	}
	s.mu.Unlock()
	s.cancel()
}

func (s *Store) checkErr() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Put stores path in all synchronous nested stores
// and queues it for the asynchronous ones.
//
// Some nested stores may already have the path and others may not.
// The boolean result is true if any synchronous store added it.
func (s *Store) Put(ctx context.Context, path string) (string, bool, error) {
	if err := s.checkErr(); err != nil {
		return "", false, err
	}

	var (
		mu    sync.Mutex
		added bool
	)
	g, gctx := errgroup.WithContext(ctx)
	for _, nested := range s.sync {
		nested := nested
		g.Go(func() error {
			_, a, err := nested.Put(gctx, path)
			if err != nil {
				return err
			}
			mu.Lock()
			added = added || a
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return "", false, err
	}

	for _, q := range s.queues {
		select {
		case <-ctx.Done():
			return "", false, ctx.Err()
		case q <- path:
		}
	}

	return carvpath.Digest(path), added, nil
}

// Get delegates the request to all of the synchronous stores in s,
// returning the result from the first one to respond without error
// and canceling the request to the others.
// If none has the digest, the error wraps carvpath.ErrNotFound.
func (s *Store) Get(ctx context.Context, digest string) (string, error) {
	if err := s.checkErr(); err != nil {
		return "", err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	type result struct {
		path string
		err  error
	}
	ch := make(chan result, len(s.sync))
	for _, nested := range s.sync {
		nested := nested
		go func() {
			path, err := nested.Get(ctx, digest)
			ch <- result{path: path, err: err}
		}()
	}

	var firstErr error
	for range s.sync {
		r := <-ch
		if r.err == nil {
			return r.path, nil
		}
		if firstErr == nil || errors.Is(firstErr, carvpath.ErrNotFound) {
			firstErr = r.err
		}
	}
	return "", firstErr
}

// List produces the union of the digests in the synchronous stores,
// in lexicographic order, each once.
func (s *Store) List(ctx context.Context, start string, f func(string) error) error {
	if err := s.checkErr(); err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)

	chans := make([]chan string, len(s.sync))
	for i, nested := range s.sync {
		var (
			ch     = make(chan string, 1)
			nested = nested
		)
		chans[i] = ch
		g.Go(func() error {
			defer close(ch)
			return nested.List(gctx, start, func(digest string) error {
				select {
				case <-gctx.Done():
					return gctx.Err()
				case ch <- digest:
					return nil
				}
			})
		})
	}

	// next[i] is the next digest from chans[i], or nil when it is exhausted.
	next := make([]*string, len(chans))
	advance := func(i int) {
		if digest, ok := <-chans[i]; ok {
			next[i] = &digest
		} else {
			next[i] = nil
		}
	}
	for i := range chans {
		advance(i)
	}

	for {
		var best *string
		for _, d := range next {
			if d != nil && (best == nil || *d < *best) {
				best = d
			}
		}
		if best == nil {
			break
		}
		digest := *best
		if err := f(digest); err != nil {
			cancel()
			g.Wait()
			return err
		}
		for i, d := range next {
			if d != nil && *d == digest {
				advance(i)
			}
		}
	}

	return g.Wait()
}

// Config is the configuration of a replica Store.
// Sync and Async are the configurations of the nested stores.
type Config struct {
	Sync     []map[string]interface{} `mapstructure:"sync"`
	Async    []map[string]interface{} `mapstructure:"async"`
	QueueLen int                      `mapstructure:"queuelen"`
}

func createNested(ctx context.Context, confs []map[string]interface{}, kind string) ([]carvpath.Store, error) {
	var result []carvpath.Store
	for _, nested := range confs {
		nestedType, ok := nested["type"].(string)
		if !ok {
			return nil, errors.Errorf(`%q item missing "type"`, kind)
		}
		s, err := longpath.Create(ctx, nestedType, nested)
		if err != nil {
			return nil, errors.Wrapf(err, "creating nested %s store", kind)
		}
		result = append(result, s)
	}
	return result, nil
}

func init() {
	longpath.Register("replica", func(ctx context.Context, conf map[string]interface{}) (carvpath.Store, error) {
		var c Config
		if err := mapstructure.WeakDecode(conf, &c); err != nil {
			return nil, errors.Wrap(err, "decoding replica store config")
		}
		if len(c.Sync) == 0 {
			return nil, errors.New(`missing "sync" parameter`)
		}
		syncStores, err := createNested(ctx, c.Sync, "sync")
		if err != nil {
			return nil, err
		}
		asyncStores, err := createNested(ctx, c.Async, "async")
		if err != nil {
			return nil, err
		}
		if c.QueueLen <= 0 {
			c.QueueLen = 10
		}
		return New(ctx, syncStores, asyncStores, c.QueueLen), nil
	})
}
