package replica

import (
	"context"
	"errors"
	"sort"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/bobg/carvpath"
	"github.com/bobg/carvpath/longpath"
	"github.com/bobg/carvpath/longpath/mem"
	"github.com/bobg/carvpath/testutil"
)

func TestReplicaSets(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var (
		m1 = mem.New()
		m2 = mem.New()
		s  = New(ctx, []carvpath.Store{m1, m2}, nil, 1)
	)

	d1, _, err := m1.Put(ctx, testutil.LongPath(20))
	if err != nil {
		t.Fatal(err)
	}
	d2, _, err := m2.Put(ctx, testutil.LongPath(21))
	if err != nil {
		t.Fatal(err)
	}
	d3, added, err := s.Put(ctx, testutil.LongPath(22))
	if err != nil {
		t.Fatal(err)
	}
	if !added {
		t.Error("new path not added")
	}

	checkReplica(ctx, t, "m1", m1, d1, d3)
	checkReplica(ctx, t, "m2", m2, d2, d3)
	checkReplica(ctx, t, "replica", s, d1, d2, d3)

	// Each digest is found in whichever store has it.
	for _, d := range []string{d1, d2, d3} {
		if _, err = s.Get(ctx, d); err != nil {
			t.Errorf("getting %s: %s", d, err)
		}
	}
	if _, err = s.Get(ctx, carvpath.Digest("0+1")); !errors.Is(err, carvpath.ErrNotFound) {
		t.Errorf("got error %v, want ErrNotFound", err)
	}
}

func checkReplica(ctx context.Context, t *testing.T, name string, s carvpath.Store, want ...string) {
	t.Run(name, func(t *testing.T) {
		var got []string
		err := s.List(ctx, "", func(digest string) error {
			got = append(got, digest)
			return nil
		})
		if err != nil {
			t.Fatal(err)
		}
		if diff := cmp.Diff(sorted(want), got); diff != "" {
			t.Errorf("mismatch (-want +got):\n%s", diff)
		}
	})
}

func sorted(digests []string) []string {
	out := append([]string(nil), digests...)
	sort.Strings(out)
	return out
}

func TestAsync(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var (
		m1 = mem.New()
		m2 = mem.New()
		s  = New(ctx, []carvpath.Store{m1}, []carvpath.Store{m2}, 1)
	)

	digest, _, err := s.Put(ctx, testutil.LongPath(30))
	if err != nil {
		t.Fatal(err)
	}

	deadline := time.Now().Add(5 * time.Second)
	for {
		_, err := m2.Get(ctx, digest)
		if err == nil {
			break
		}
		if !errors.Is(err, carvpath.ErrNotFound) {
			t.Fatal(err)
		}
		if time.Now().After(deadline) {
			t.Fatal("path never reached the async store")
		}
		time.Sleep(10 * time.Millisecond)
	}

	// Canceling the context puts the store in an error state.
	cancel()
	deadline = time.Now().Add(5 * time.Second)
	for s.checkErr() == nil {
		if time.Now().After(deadline) {
			t.Fatal("no error state after cancel")
		}
		time.Sleep(10 * time.Millisecond)
	}
	if _, _, err = s.Put(context.Background(), testutil.LongPath(31)); err == nil {
		t.Error("Put succeeded in error state")
	}
}

func TestAllDigests(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	testutil.AllDigests(ctx, t, func() carvpath.Store {
		return New(ctx, []carvpath.Store{mem.New(), mem.New()}, nil, 1)
	})
}

func TestReadWrite(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	s := New(ctx, []carvpath.Store{mem.New(), mem.New()}, []carvpath.Store{mem.New()}, 4)
	testutil.ReadWrite(ctx, t, s)
}

func TestRegistry(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	s, err := longpath.Create(ctx, "replica", map[string]interface{}{
		"sync":     []map[string]interface{}{{"type": "mem"}, {"type": "mem"}},
		"async":    []map[string]interface{}{{"type": "mem"}},
		"queuelen": "3",
	})
	if err != nil {
		t.Fatal(err)
	}
	testutil.ReadWrite(ctx, t, s)

	if _, err = longpath.Create(ctx, "replica", map[string]interface{}{}); err == nil {
		t.Error("no error without sync stores")
	}
}
