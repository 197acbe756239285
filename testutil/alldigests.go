package testutil

import (
	"context"
	"sort"
	"testing"
	"testing/quick"

	"github.com/google/go-cmp/cmp"

	"github.com/bobg/carvpath"
)

// AllDigests writes a random set of random paths to an empty store
// and makes sure that the right set of digests comes back in a call to List.
func AllDigests(ctx context.Context, t *testing.T, storeFactory func() carvpath.Store) {
	if err := quick.Check(allDigestsHelper(ctx, t, storeFactory), nil); err != nil {
		t.Error(err)
	}
}

func allDigestsHelper(ctx context.Context, t *testing.T, storeFactory func() carvpath.Store) func([]string) bool {
	return func(paths []string) bool {
		var (
			store = storeFactory()
			want  []string
		)
		for _, path := range paths {
			digest, added, err := store.Put(ctx, path)
			if err != nil {
				t.Fatal(err)
			}
			if added {
				want = append(want, digest)
			}
		}
		var got []string
		err := store.List(ctx, "", func(digest string) error {
			got = append(got, digest)
			return nil
		})
		if err != nil {
			t.Fatal(err)
		}

		sort.Strings(want)

		if diff := cmp.Diff(want, got); diff != "" {
			t.Logf("mismatch (-want +got):\n%s", diff)
			return false
		}
		return true
	}
}
