package carvpath_test

import (
	"context"
	"errors"
	"testing"

	"github.com/bobg/carvpath"
	"github.com/bobg/carvpath/longpath/mem"
	"github.com/bobg/carvpath/testutil"
)

const (
	long     = "0+100_101+100_202+100_303+100_404+100_505+100_606+100_707+100_808+100_909+100_1010+100_1111+100_1212+100_1313+100_1414+100_1515+100_1616+100_1717+100_1818+100_1919+100_2020+100_2121+100_2222+100_2323+100_2424+100"
	longD    = "D901141262aa24eaaddbce2f470615b6a47639f7a62b3bc7c65335251fe3fa480"
	shiftedD = "D0e2ded6b35aa15baabd679f7d8b0a7f0ad393948988b6b2f28db7c283240e3b6"
)

// flatten parses a path and encodes the result.
func flatten(ctx context.Context, t *testing.T, cp *carvpath.Context, path string) string {
	t.Helper()
	e, err := cp.Parse(ctx, path)
	if err != nil {
		t.Fatalf("parsing %s: %s", path, err)
	}
	out, err := cp.Encode(ctx, e)
	if err != nil {
		t.Fatalf("encoding %s: %s", e, err)
	}
	return out
}

func TestFlatten(t *testing.T) {
	var (
		ctx = context.Background()
		cp  = carvpath.NewContext(mem.New())
	)

	cases := []struct {
		in, want string
	}{
		{in: "0+0", want: "S0"},
		{in: "S0", want: "S0"},
		{in: "0+0/0+0", want: "S0"},
		{in: "20000+0", want: "S0"},
		{in: "20000+0_89765+0", want: "S0"},
		{in: "1000+0_2000+0/0+0", want: "S0"},
		{in: "0+5", want: "0+5"},
		{in: "S1_S1", want: "S2"},
		{in: "S100_S200", want: "S300"},
		{in: "0+20000_20000+20000", want: "0+40000"},
		{in: "0+20000_20000+20000/0+40000", want: "0+40000"},
		{in: "0+20000_20000+20000/0+30000", want: "0+30000"},
		{in: "0+20000_20000+20000/10000+30000", want: "10000+30000"},
		{in: "0+20000_40000+20000/10000+20000", want: "10000+10000_40000+10000"},
		{in: "0+20000_40000+20000/10000+20000/5000+10000", want: "15000+5000_40000+5000"},
		{in: "0+20000_40000+20000/10000+20000/5000+10000/2500+5000", want: "17500+2500_40000+2500"},
		{in: "0+20000_40000+20000/10000+20000/5000+10000/2500+5000/1250+2500", want: "18750+1250_40000+1250"},
		{in: "0+20000_40000+20000/10000+20000/5000+10000/2500+5000/1250+2500/625+1250", want: "19375+625_40000+625"},
		{in: long, want: longD},
		{in: long + "/1+2488", want: shiftedD},

		// These depend on the long paths stored by the cases above.
		{in: longD + "/1+2488", want: shiftedD},
		{in: longD + "/350+100", want: "353+50_404+50"},

		{in: "S200000/1000+9000", want: "S9000"},
	}
	for _, c := range cases {
		t.Run(c.in, func(t *testing.T) {
			got := flatten(ctx, t, cp, c.in)
			if got != c.want {
				t.Errorf("got %s, want %s", got, c.want)
			}

			// Flattening is idempotent.
			if again := flatten(ctx, t, cp, got); again != got {
				t.Errorf("reflattening %s gave %s", got, again)
			}
		})
	}
}

func TestSize(t *testing.T) {
	var (
		ctx = context.Background()
		cp  = carvpath.NewContext(mem.New())
	)
	if _, _, err := cp.Store().Put(ctx, long); err != nil {
		t.Fatal(err)
	}

	cases := []struct {
		in   string
		want uint64
	}{
		{in: "20000+0_89765+0", want: 0},
		{in: "0+20000_40000+20000/10000+20000/5000+10000", want: 10000},
		{in: longD + "/350+100", want: 100},
	}
	for _, c := range cases {
		t.Run(c.in, func(t *testing.T) {
			e, err := cp.Parse(ctx, c.in)
			if err != nil {
				t.Fatal(err)
			}
			if got := e.TotalSize(); got != c.want {
				t.Errorf("got %d, want %d", got, c.want)
			}
		})
	}
}

func TestRange(t *testing.T) {
	var (
		ctx = context.Background()
		cp  = carvpath.NewContext(mem.New())
	)

	cases := []struct {
		top  uint64
		path string
		want bool
	}{
		{top: 200000000000, path: "0+100000000000/0+50000000", want: true},
		{top: 20000, path: "0+100000000000/0+50000000", want: false},
		{top: 20000, path: "0+20000", want: true},
		{top: 20000, path: "1+20000", want: false},
		{top: 20000, path: "S1000000", want: true},
	}
	for _, c := range cases {
		t.Run(c.path, func(t *testing.T) {
			e, err := cp.Parse(ctx, c.path)
			if err != nil {
				t.Fatal(err)
			}
			top := cp.NewTop(c.top)
			if got := top.Test(e); got != c.want {
				t.Errorf("got %v, want %v", got, c.want)
			}
		})
	}
}

func TestParseErrors(t *testing.T) {
	var (
		ctx = context.Background()
		cp  = carvpath.NewContext(mem.New())
	)

	cases := []struct {
		in   string
		want error
	}{
		{in: "", want: carvpath.ErrParse},
		{in: "0+10/", want: carvpath.ErrParse},
		{in: "0+10//0+1", want: carvpath.ErrParse},
		{in: "Dxyz", want: carvpath.ErrParse},
		{in: "D901141262AA24EADDBCE2F470615B6A47639F7A62B3BC7C65335251FE3FA480", want: carvpath.ErrParse},
		{in: longD, want: carvpath.ErrDigestMiss},
		{in: "0+10/5+10", want: carvpath.ErrOutOfBounds},
		{in: "0+10_20+10/0+10/10+1", want: carvpath.ErrOutOfBounds},
	}
	for _, c := range cases {
		t.Run(c.in, func(t *testing.T) {
			_, err := cp.Parse(ctx, c.in)
			if !errors.Is(err, c.want) {
				t.Errorf("got error %v, want %v", err, c.want)
			}
		})
	}
}

func TestEncodeThreshold(t *testing.T) {
	var (
		ctx   = context.Background()
		store = mem.New()
		cp    = carvpath.NewContext(store, carvpath.WithMaxTokenLen(8))
	)

	e, err := carvpath.ParseEntity("0+5_10+5")
	if err != nil {
		t.Fatal(err)
	}
	got, err := cp.Encode(ctx, e)
	if err != nil {
		t.Fatal(err)
	}
	if got != "0+5_10+5" {
		t.Errorf("got %s, want text unchanged at the threshold", got)
	}

	e.Append(carvpath.Fragment(20, 5))
	got, err = cp.Encode(ctx, e)
	if err != nil {
		t.Fatal(err)
	}
	if want := carvpath.Digest("0+5_10+5_20+5"); got != want {
		t.Errorf("got %s, want %s", got, want)
	}
	text, err := store.Get(ctx, got)
	if err != nil {
		t.Fatal(err)
	}
	if text != "0+5_10+5_20+5" {
		t.Errorf("stored %s", text)
	}

	back, err := cp.Parse(ctx, got)
	if err != nil {
		t.Fatal(err)
	}
	if !back.Equal(e) {
		t.Errorf("round trip gave %s, want %s", back, e)
	}
}

func TestDigest(t *testing.T) {
	if got := carvpath.Digest(long); got != longD {
		t.Errorf("got %s, want %s", got, longD)
	}
	if !carvpath.IsDigest(longD) {
		t.Errorf("%s not recognized as a digest", longD)
	}
	if carvpath.IsDigest(long) {
		t.Error("carvpath text recognized as a digest")
	}
	if got := carvpath.Digest(testutil.LongPath(25)); got != longD {
		t.Errorf("LongPath(25) digest is %s, want %s", got, longD)
	}
}
