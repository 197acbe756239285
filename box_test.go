package carvpath_test

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"golang.org/x/crypto/blake2b"

	"github.com/bobg/carvpath"
	"github.com/bobg/carvpath/longpath/mem"
)

const boxSpace = 1000

// advice tracks the bytes an Advisor has been told are wanted.
type advice struct {
	t      *testing.T
	wanted [boxSpace]bool
	calls  int
}

func (a *advice) Advise(offset, size uint64, want bool) {
	a.calls++
	for i := offset; i < offset+size; i++ {
		if a.wanted[i] == want {
			a.t.Errorf("redundant advice %v for byte %d", want, i)
		}
		a.wanted[i] = want
	}
}

func newTestBox(t *testing.T) (*carvpath.Box, *advice) {
	var (
		cp  = carvpath.NewContext(mem.New())
		top = cp.NewTop(boxSpace)
		adv = &advice{t: t}
	)
	return cp.NewBox(top, adv), adv
}

func contains(e carvpath.Entity, pos uint64) bool {
	for _, s := range e.Segments() {
		off, ok := s.Offset()
		if ok && off <= pos && pos < off+s.Size() {
			return true
		}
	}
	return false
}

// checkLayers verifies that each byte is in exactly as many layers
// as there are registered entities covering it,
// and that the advisor's view matches layer 0.
func checkLayers(t *testing.T, box *carvpath.Box, adv *advice) {
	t.Helper()

	var counts [boxSpace]int
	for _, key := range box.Keys() {
		e, err := box.Entity(key)
		if err != nil {
			t.Fatal(err)
		}
		for pos := uint64(0); pos < boxSpace; pos++ {
			if contains(e, pos) {
				counts[pos]++
			}
		}
	}

	layers := box.Layers()
	for i, layer := range layers {
		if layer.IsEmpty() {
			t.Errorf("layer %d is empty", i)
		}
	}
	for pos := uint64(0); pos < boxSpace; pos++ {
		var depth int
		for _, layer := range layers {
			if !contains(layer, pos) {
				break
			}
			depth++
		}
		for _, layer := range layers[depth:] {
			if contains(layer, pos) {
				t.Fatalf("byte %d is in a layer above a gap", pos)
			}
		}
		if depth != counts[pos] {
			t.Fatalf("byte %d: in %d layers, covered by %d entities\n%s", pos, depth, counts[pos], box)
		}
		if adv.wanted[pos] != (counts[pos] > 0) {
			t.Fatalf("byte %d: advised %v, covered by %d entities", pos, adv.wanted[pos], counts[pos])
		}
	}

	var volume uint64
	for _, c := range counts {
		if c > 0 {
			volume++
		}
	}
	if got := box.Volume(); got != volume {
		t.Errorf("got volume %d, want %d", got, volume)
	}
}

func TestBoxRegister(t *testing.T) {
	var (
		ctx      = context.Background()
		box, adv = newTestBox(t)
	)

	claimed, err := box.Register(ctx, "0+100_200+100")
	if err != nil {
		t.Fatal(err)
	}
	if got := claimed.String(); got != "0+100_200+100" {
		t.Errorf("claimed %s", got)
	}
	if adv.calls != 2 {
		t.Errorf("got %d advice calls, want 2", adv.calls)
	}

	claimed, err = box.Register(ctx, "50+200")
	if err != nil {
		t.Fatal(err)
	}
	if got := claimed.String(); got != "100+100" {
		t.Errorf("claimed %s, want 100+100", got)
	}
	checkLayers(t, box, adv)
	if got := len(box.Layers()); got != 2 {
		t.Errorf("got %d layers, want 2", got)
	}

	// Registering again only counts.
	claimed, err = box.Register(ctx, "50+200")
	if err != nil {
		t.Fatal(err)
	}
	if !claimed.IsEmpty() {
		t.Errorf("claimed %s on re-registration", claimed)
	}
	if got := box.Refcount("50+200"); got != 2 {
		t.Errorf("got refcount %d, want 2", got)
	}
	checkLayers(t, box, adv)

	released, err := box.Unregister("50+200")
	if err != nil {
		t.Fatal(err)
	}
	if !released.IsEmpty() {
		t.Errorf("released %s with a reference outstanding", released)
	}

	released, err = box.Unregister("50+200")
	if err != nil {
		t.Fatal(err)
	}
	if got := released.String(); got != "100+100" {
		t.Errorf("released %s, want 100+100", got)
	}
	checkLayers(t, box, adv)
	if got := len(box.Layers()); got != 1 {
		t.Errorf("got %d layers, want 1", got)
	}

	released, err = box.Unregister("0+100_200+100")
	if err != nil {
		t.Fatal(err)
	}
	if got := released.String(); got != "0+100_200+100" {
		t.Errorf("released %s", got)
	}
	if len(box.Layers()) != 0 || box.Volume() != 0 {
		t.Errorf("box not empty after unregistering everything:\n%s", box)
	}
	checkLayers(t, box, adv)
}

func TestBoxErrors(t *testing.T) {
	var (
		ctx    = context.Background()
		box, _ = newTestBox(t)
	)

	if _, err := box.Register(ctx, "900+200"); !errors.Is(err, carvpath.ErrOutOfBounds) {
		t.Errorf("got %v, want ErrOutOfBounds", err)
	}
	if _, err := box.Register(ctx, "bogus"); !errors.Is(err, carvpath.ErrParse) {
		t.Errorf("got %v, want ErrParse", err)
	}
	if _, err := box.Register(ctx, carvpath.Digest("0+1")); !errors.Is(err, carvpath.ErrDigestMiss) {
		t.Errorf("got %v, want ErrDigestMiss", err)
	}
	if _, err := box.Unregister("0+10"); !errors.Is(err, carvpath.ErrUnknownKey) {
		t.Errorf("got %v, want ErrUnknownKey", err)
	}
	if _, err := box.Entity("0+10"); !errors.Is(err, carvpath.ErrUnknownKey) {
		t.Errorf("got %v, want ErrUnknownKey", err)
	}
	if _, err := box.Hashing("0+10"); !errors.Is(err, carvpath.ErrUnknownKey) {
		t.Errorf("got %v, want ErrUnknownKey", err)
	}
	if len(box.Keys()) != 0 {
		t.Errorf("failed registrations left keys %v", box.Keys())
	}
	if box.Err() != nil {
		t.Errorf("box broken: %s", box.Err())
	}
}

func TestBoxRandom(t *testing.T) {
	var (
		ctx      = context.Background()
		box, adv = newTestBox(t)
		rng      = rand.New(rand.NewSource(5))
		keys     []string
	)

	randKey := func() string {
		var e carvpath.Entity
		for n := 1 + rng.Intn(4); n > 0; n-- {
			if rng.Intn(5) == 0 {
				e.Append(carvpath.Sparse(uint64(1 + rng.Intn(50))))
				continue
			}
			off := rng.Intn(boxSpace - 100)
			e.Append(carvpath.Fragment(uint64(off), uint64(1+rng.Intn(100))))
		}
		return e.String()
	}

	for iter := 0; iter < 300; iter++ {
		if len(keys) > 0 && rng.Intn(3) == 0 {
			i := rng.Intn(len(keys))
			if _, err := box.Unregister(keys[i]); err != nil {
				t.Fatal(err)
			}
			keys = append(keys[:i], keys[i+1:]...)
		} else {
			key := randKey()
			if _, err := box.Register(ctx, key); err != nil {
				t.Fatal(err)
			}
			keys = append(keys, key)
		}
		checkLayers(t, box, adv)
	}

	for len(keys) > 0 {
		if _, err := box.Unregister(keys[0]); err != nil {
			t.Fatal(err)
		}
		keys = keys[1:]
		checkLayers(t, box, adv)
	}
	if len(box.Layers()) != 0 {
		t.Errorf("layers left over:\n%s", box)
	}
}

func TestBoxHashing(t *testing.T) {
	var (
		ctx    = context.Background()
		box, _ = newTestBox(t)
		data   = make([]byte, boxSpace)
	)
	for i := range data {
		data[i] = byte(i * 7)
	}

	const key = "100+50_S10_0+20"
	if _, err := box.Register(ctx, key); err != nil {
		t.Fatal(err)
	}

	state, err := box.Hashing(key)
	if err != nil {
		t.Fatal(err)
	}
	if state.Done || state.Offset != 0 {
		t.Errorf("got %+v before any I/O", state)
	}

	// The tail of the entity comes first in the data, too early to be hashed.
	box.Written(0, data[:100])
	box.Written(100, data[100:])
	state, err = box.Hashing(key)
	if err != nil {
		t.Fatal(err)
	}
	if state.Done || state.Offset != 60 {
		t.Errorf("got %+v after writing, want offset 60", state)
	}

	box.Read(0, data[:20])
	state, err = box.Hashing(key)
	if err != nil {
		t.Fatal(err)
	}
	if !state.Done {
		t.Fatalf("got %+v, want done", state)
	}

	var want []byte
	want = append(want, data[100:150]...)
	want = append(want, make([]byte, 10)...)
	want = append(want, data[0:20]...)
	sum := blake2b.Sum256(want)
	if state.Result != fmt.Sprintf("%x", sum[:]) {
		t.Errorf("got %s, want %x", state.Result, sum[:])
	}
}

func TestBoxOverlapping(t *testing.T) {
	var (
		ctx    = context.Background()
		box, _ = newTestBox(t)
	)
	for _, key := range []string{"0+100", "50+100", "300+10", "S50_400+10"} {
		if _, err := box.Register(ctx, key); err != nil {
			t.Fatal(err)
		}
	}

	cases := []struct {
		off, size uint64
		want      []string
	}{
		{off: 0, size: 10, want: []string{"0+100"}},
		{off: 60, size: 10, want: []string{"0+100", "50+100"}},
		{off: 200, size: 100, want: nil},
		{off: 200, size: 101, want: []string{"300+10"}},
		{off: 405, size: 1, want: []string{"S50_400+10"}},
	}
	for _, c := range cases {
		got := box.Overlapping(c.off, c.size)
		if diff := cmp.Diff(c.want, got); diff != "" {
			t.Errorf("Overlapping(%d, %d) mismatch (-want +got):\n%s", c.off, c.size, diff)
		}
	}
}

func TestBoxString(t *testing.T) {
	var (
		ctx    = context.Background()
		box, _ = newTestBox(t)
	)
	for _, key := range []string{"0+100", "50+100", "50+100"} {
		if _, err := box.Register(ctx, key); err != nil {
			t.Fatal(err)
		}
	}
	got := box.String()
	for _, want := range []string{"L0 : 0+150", "L1 : 50+50", "0+100 : 1", "50+100 : 2"} {
		if !strings.Contains(got, want) {
			t.Errorf("dump lacks %q:\n%s", want, got)
		}
	}
}

func TestPrioritySort(t *testing.T) {
	var (
		ctx    = context.Background()
		box, _ = newTestBox(t)
	)

	// a and b share 50+50; c is alone; d is inside a.
	keys := map[string]string{
		"a": "0+100",
		"b": "50+150",
		"c": "500+10",
		"d": "10+10",
	}
	for _, key := range keys {
		if _, err := box.Register(ctx, key); err != nil {
			t.Fatal(err)
		}
	}

	cases := []struct {
		criteria string
		reverse  bool
		want     []string
	}{
		// By size. Ties stay in key order.
		{criteria: "S", want: []string{"d", "c", "a", "b"}},
		{criteria: "S", reverse: true, want: []string{"b", "a", "d", "c"}},

		// By lowest offset.
		{criteria: "O", want: []string{"a", "d", "b", "c"}},

		// Overlap with layer 1 (bytes held twice): c is the only key without any.
		{criteria: "RS", want: []string{"c", "d", "a", "b"}},

		// Bytes held by exactly one entity: d has none.
		{criteria: "rS", want: []string{"d", "c", "a", "b"}},

		// Density in layer 1: c=0, a=(10+50)/100, b=50/150, d=1.
		{criteria: "D", want: []string{"c", "b", "a", "d"}},

		// Summed density: c=1, b=1+1/3, a=1.6, d=2.
		{criteria: "W", want: []string{"c", "b", "a", "d"}},
	}
	for _, c := range cases {
		t.Run(fmt.Sprintf("%s_%v", c.criteria, c.reverse), func(t *testing.T) {
			sorted, err := box.PrioritySort(c.criteria, nil, nil, c.reverse)
			if err != nil {
				t.Fatal(err)
			}
			var got []string
			for _, key := range sorted {
				for name, k := range keys {
					if k == key {
						got = append(got, name)
					}
				}
			}
			if diff := cmp.Diff(c.want, got); diff != "" {
				t.Errorf("mismatch (-want +got):\n%s", diff)
			}
		})
	}

	pick, ok, err := box.PriorityPick("S", []string{keys["a"], keys["b"]}, nil, false)
	if err != nil {
		t.Fatal(err)
	}
	if !ok || pick != keys["a"] {
		t.Errorf("got %s, %v; want %s, true", pick, ok, keys["a"])
	}

	if _, err = box.PrioritySort("X", nil, nil, false); !errors.Is(err, carvpath.ErrUnknownKey) {
		t.Errorf("got %v for bad criterion, want ErrUnknownKey", err)
	}
	if _, err = box.PrioritySort("S", []string{"999+1"}, nil, false); !errors.Is(err, carvpath.ErrUnknownKey) {
		t.Errorf("got %v for unregistered key, want ErrUnknownKey", err)
	}

	_, ok, err = box.PriorityPick("S", []string{}, nil, false)
	if err != nil || ok {
		t.Errorf("got %v, %v picking from nothing", ok, err)
	}
}
