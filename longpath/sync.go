package longpath

import (
	"context"
	"sort"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"github.com/bobg/carvpath"
)

// Sync synchronizes two or more long-path stores.
// It runs List on all input stores.
// When a digest is found to be in some but not all stores,
// its carvpath text is added to the stores where it's missing.
func Sync(ctx context.Context, stores []carvpath.Store) error {
	if len(stores) < 2 {
		return nil
	}

	type tuple struct {
		s      carvpath.Store
		ch     <-chan string
		digest *string
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	eg, ctx2 := errgroup.WithContext(ctx)

	tuples := make([]*tuple, 0, len(stores))
	for _, s := range stores {
		s := s
		ch := make(chan string)
		eg.Go(func() error {
			defer close(ch)
			return s.List(ctx2, "", func(digest string) error {
				select {
				case <-ctx2.Done():
					return ctx2.Err()
				case ch <- digest:
				}
				return nil
			})
		})
		tuples = append(tuples, &tuple{s: s, ch: ch})
	}

	errch := make(chan error, 1)

	go func() {
		if err := eg.Wait(); err != nil {
			errch <- err
		}
		close(errch)
	}()

	errs := (<-chan error)(errch)
	havers := tuples
	for {
		for _, tup := range havers {
			for received := false; !received; {
				select {
				case <-ctx.Done():
					return ctx.Err()
				case err, ok := <-errs:
					if ok {
						return err
					}
					errs = nil
				case digest, ok := <-tup.ch:
					received = true
					if ok {
						tup.digest = &digest
					} else {
						tup.digest = nil
					}
				}
			}
		}

		sort.Slice(tuples, func(i, j int) bool {
			di := tuples[i].digest
			dj := tuples[j].digest
			if di != nil {
				if dj != nil {
					return *di < *dj
				}
				return true
			}
			return false
		})

		if tuples[0].digest == nil {
			// We've reached the end of input on all channels.
			return eg.Wait()
		}

		digest := *(tuples[0].digest)

		havers = []*tuple{tuples[0]}
		i := 1
		for i < len(tuples) && tuples[i].digest != nil && *(tuples[i].digest) == digest {
			havers = append(havers, tuples[i])
			i++
		}

		if i == len(tuples) {
			continue
		}

		needers := tuples[i:]

		path, err := havers[0].s.Get(ctx, digest)
		if err != nil {
			return errors.Wrapf(err, "getting path for %s", digest)
		}

		for _, tup := range needers {
			if _, _, err = tup.s.Put(ctx, path); err != nil {
				return errors.Wrapf(err, "storing path for %s", digest)
			}
		}
	}
}
