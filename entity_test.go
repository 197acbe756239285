package carvpath

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func mustParse(t *testing.T, text string) Entity {
	t.Helper()
	e, err := ParseEntity(text)
	if err != nil {
		t.Fatalf("parsing %s: %s", text, err)
	}
	return e
}

func TestParseEntity(t *testing.T) {
	cases := []struct {
		in, want string
		size     uint64
	}{
		{in: "0+0", want: "S0"},
		{in: "S0", want: "S0"},
		{in: "20000+0_89765+0", want: "S0"},
		{in: "0+5", want: "0+5", size: 5},
		{in: "S1_S1", want: "S2", size: 2},
		{in: "S100_S200", want: "S300", size: 300},
		{in: "0+20000_20000+20000", want: "0+40000", size: 40000},
		{in: "0+1000_S0_1000+1000", want: "0+2000", size: 2000},
		{in: "0+1000_S2000_3000+1000", want: "0+1000_S2000_3000+1000", size: 4000},
		{in: "1000+1000_0+1000", want: "1000+1000_0+1000", size: 2000},
	}
	for _, c := range cases {
		t.Run(c.in, func(t *testing.T) {
			e := mustParse(t, c.in)
			if got := e.String(); got != c.want {
				t.Errorf("got %s, want %s", got, c.want)
			}
			if got := e.TotalSize(); got != c.size {
				t.Errorf("got size %d, want %d", got, c.size)
			}
		})
	}
}

func TestParseEntityErrors(t *testing.T) {
	cases := []string{
		"",
		"_",
		"0+",
		"+5",
		"5",
		"S",
		"Sx",
		"0+5_",
		"-1+5",
		"0+5+5",
		"1+18446744073709551615",
		"0+99999999999999999999",
		"0x10+5",
	}
	for _, c := range cases {
		t.Run(c, func(t *testing.T) {
			_, err := ParseEntity(c)
			if !errors.Is(err, ErrParse) {
				t.Errorf("got error %v, want ErrParse", err)
			}
		})
	}
}

func TestConcat(t *testing.T) {
	cases := []struct {
		a, b, want string
	}{
		{a: "0+1000_S2000_1000+2000", b: "3000+1000_6000+1000", want: "0+1000_S2000_1000+3000_6000+1000"},
		{a: "0+1000_S2000", b: "S1000_3000+1000", want: "0+1000_S3000_3000+1000"},
		{a: "S0", b: "0+5", want: "0+5"},
		{a: "0+5", b: "S0", want: "0+5"},
	}
	for _, c := range cases {
		t.Run(c.a+"+"+c.b, func(t *testing.T) {
			a, b := mustParse(t, c.a), mustParse(t, c.b)
			if got := Concat(a, b).String(); got != c.want {
				t.Errorf("Concat: got %s, want %s", got, c.want)
			}
			a.AppendEntity(b)
			if got := a.String(); got != c.want {
				t.Errorf("AppendEntity: got %s, want %s", got, c.want)
			}
		})
	}
}

func TestAppendDoesNotAlias(t *testing.T) {
	a := mustParse(t, "0+10_20+10")
	b := a
	b.Append(Fragment(30, 10))
	b.Grow(5)
	if got := a.String(); got != "0+10_20+10" {
		t.Errorf("original changed to %s", got)
	}
	if got := b.String(); got != "0+10_20+25" {
		t.Errorf("got %s, want 0+10_20+25", got)
	}
}

func TestGrow(t *testing.T) {
	var e Entity
	e.Grow(100)
	if got := e.String(); got != "0+100" {
		t.Errorf("got %s, want 0+100", got)
	}
	e.Grow(0)
	e.Grow(50)
	if got := e.String(); got != "0+150" {
		t.Errorf("got %s, want 0+150", got)
	}

	s := NewEntity(Sparse(10))
	s.Grow(10)
	if got := s.String(); got != "S20" {
		t.Errorf("got %s, want S20", got)
	}
}

func TestCompare(t *testing.T) {
	sorted := []string{
		"S0",
		"S10",
		"S10_0+5",
		"S20",
		"0+5",
		"0+5_S5",
		"0+5_10+5",
		"0+10",
		"5+1",
	}
	for i := 0; i < len(sorted); i++ {
		for j := 0; j < len(sorted); j++ {
			a, b := mustParse(t, sorted[i]), mustParse(t, sorted[j])
			var want int
			switch {
			case i < j:
				want = -1
			case i > j:
				want = 1
			}
			if got := a.Compare(b); got != want {
				t.Errorf("Compare(%s, %s) = %d, want %d", a, b, got, want)
			}
		}
	}
}

func TestStripSparse(t *testing.T) {
	cases := []struct {
		in, want string
	}{
		{in: "0+1000_S2000_1000+2000", want: "0+3000"},
		{in: "1000+2000_S2000_0+1000", want: "0+3000"},
		{in: "0+1000_S2000_4000+2000", want: "0+1000_4000+2000"},
		{in: "4000+2000_S2000_0+1000", want: "0+1000_4000+2000"},
		{in: "0+100_50+100", want: "0+150"},
		{in: "0+100_10+20", want: "0+100"},
		{in: "S500", want: "S0"},
	}
	for _, c := range cases {
		t.Run(c.in, func(t *testing.T) {
			got := mustParse(t, c.in).StripSparse()
			if got.String() != c.want {
				t.Errorf("got %s, want %s", got, c.want)
			}
			if !got.normal() {
				t.Errorf("%s not normal", got)
			}
		})
	}
}

func TestSubentity(t *testing.T) {
	cases := []struct {
		parent, child, want string
	}{
		{parent: "0+20000_20000+20000", child: "0+40000", want: "0+40000"},
		{parent: "0+20000_20000+20000", child: "0+30000", want: "0+30000"},
		{parent: "0+20000_20000+20000", child: "10000+30000", want: "10000+30000"},
		{parent: "0+20000_40000+20000", child: "10000+20000", want: "10000+10000_40000+10000"},
		{parent: "S200000", child: "1000+9000", want: "S9000"},
		{parent: "0+100_S100_500+100", child: "50+200", want: "50+50_S100_500+50"},
		{parent: "0+100", child: "S50_10+10", want: "S50_10+10"},
		{parent: "0+100", child: "0+0", want: "S0"},
	}
	for _, c := range cases {
		t.Run(c.parent+"/"+c.child, func(t *testing.T) {
			got, err := mustParse(t, c.parent).Subentity(mustParse(t, c.child))
			if err != nil {
				t.Fatal(err)
			}
			if got.String() != c.want {
				t.Errorf("got %s, want %s", got, c.want)
			}
		})
	}
}

func TestSubentityOutOfBounds(t *testing.T) {
	parent := mustParse(t, "0+100_200+100")
	for _, child := range []string{"0+201", "200+1", "150+100", "18446744073709551614+1"} {
		_, err := parent.Subentity(mustParse(t, child))
		if !errors.Is(err, ErrOutOfBounds) {
			t.Errorf("%s: got error %v, want ErrOutOfBounds", child, err)
		}
	}
}

func TestSegments(t *testing.T) {
	e := mustParse(t, "0+10_S5_20+10")
	want := []Segment{Fragment(0, 10), Sparse(5), Fragment(20, 10)}
	if diff := cmp.Diff(want, e.Segments(), cmp.AllowUnexported(Segment{})); diff != "" {
		t.Errorf("mismatch (-want +got):\n%s", diff)
	}
	if off, ok := e.At(2).Offset(); !ok || off != 20 {
		t.Errorf("got offset %d, %v; want 20, true", off, ok)
	}
	if _, ok := e.At(1).End(); ok {
		t.Error("sparse segment has an end")
	}
}
