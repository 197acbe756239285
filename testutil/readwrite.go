package testutil

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/bobg/carvpath"
)

// LongPath produces carvpath text of n fragments,
// long enough to need a digest token.
func LongPath(n int) string {
	frags := make([]string, 0, n)
	for i := 0; i < n; i++ {
		frags = append(frags, fmt.Sprintf("%d+100", 101*i))
	}
	return strings.Join(frags, "_")
}

// ReadWrite permits testing a Store implementation
// by storing some long paths in it,
// then reading them back out to make sure they're the same.
// The store must be empty to begin with.
func ReadWrite(ctx context.Context, t *testing.T, store carvpath.Store) {
	var (
		paths   []string
		digests []string
	)
	for n := 20; n < 30; n++ {
		paths = append(paths, LongPath(n))
	}

	t1 := time.Now()
	for _, path := range paths {
		digest, added, err := store.Put(ctx, path)
		if err != nil {
			t.Fatal(err)
		}
		if !added {
			t.Errorf("path of length %d not added", len(path))
		}
		if want := carvpath.Digest(path); digest != want {
			t.Errorf("got digest %s, want %s", digest, want)
		}
		digests = append(digests, digest)
	}
	t.Logf("wrote %d paths in %s", len(paths), time.Since(t1))

	_, added, err := store.Put(ctx, paths[0])
	if err != nil {
		t.Fatal(err)
	}
	if added {
		t.Error("path added twice")
	}

	t2 := time.Now()
	for i, digest := range digests {
		got, err := store.Get(ctx, digest)
		if err != nil {
			t.Fatal(err)
		}
		if got != paths[i] {
			t.Errorf("mismatch for %s", digest)
		}
	}
	t.Logf("read %d paths in %s", len(digests), time.Since(t2))

	_, err = store.Get(ctx, carvpath.Digest("0+1"))
	if !errors.Is(err, carvpath.ErrNotFound) {
		t.Errorf("got error %v for missing digest, want ErrNotFound", err)
	}

	sorted := make([]string, len(digests))
	copy(sorted, digests)
	sort.Strings(sorted)

	var listed []string
	err = store.List(ctx, sorted[4], func(digest string) error {
		listed = append(listed, digest)
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(sorted[5:], listed); diff != "" {
		t.Errorf("List mismatch (-want +got):\n%s", diff)
	}

	stop := errors.New("stop")
	var count int
	err = store.List(ctx, "", func(string) error {
		count++
		if count == 3 {
			return stop
		}
		return nil
	})
	if !errors.Is(err, stop) {
		t.Errorf("got error %v from List, want callback error", err)
	}
}
