package ir

import (
	"bytes"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestFormatRendersInfix(t *testing.T) {
	a := NewArena()
	x := a.Var("x")
	y := a.Var("y")
	root := a.Query(a.Binary(Lt, x, y), a.Binary(Add, x, a.Const(1)), a.BitField("y", 3, 1))

	got := Format(a, root)
	want := "((x<y)?(x+1):y[3:1])"
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("format mismatch (-want +got):\n%s", diff)
	}
}

func TestCanonicalTextIgnoresSignalNames(t *testing.T) {
	a := NewArena()
	first := a.Binary(Add, a.Var("x"), a.Unary(Complement, a.Var("y")))
	second := a.Binary(Add, a.Var("p"), a.Unary(Complement, a.Var("q")))
	swapped := a.Binary(Add, a.Var("y"), a.Unary(Complement, a.Var("x")))

	if got, want := CanonicalText(a, first), "(v0+~(v1))"; got != want {
		t.Fatalf("canonical text = %q, want %q", got, want)
	}
	if CanonicalText(a, first) != CanonicalText(a, second) {
		t.Fatalf("expected renamed expressions to share canonical text")
	}
	if CanonicalText(a, first) != CanonicalText(a, swapped) {
		t.Fatalf("canonical text must depend on occurrence order only")
	}
}

func TestCanonicalTextSharesSliceSource(t *testing.T) {
	a := NewArena()
	root := a.Concat(a.BitField("bus", 7, 4), a.Var("c"), a.BitField("bus", 3, 0))
	if got, want := CanonicalText(a, root), "{v0[7:4],v1,v0[3:0]}"; got != want {
		t.Fatalf("canonical text = %q, want %q", got, want)
	}
	if diff := cmp.Diff([]string{"bus", "c"}, a.SignalNames(root)); diff != "" {
		t.Fatalf("signal names mismatch (-want +got):\n%s", diff)
	}
}

func TestLeavesVisitsSharedNodesOnce(t *testing.T) {
	a := NewArena()
	x := a.Var("x")
	one := a.Const(1)
	sum := a.Binary(Add, x, one)
	root := a.Binary(Mul, sum, sum)

	got := a.Leaves(root)
	want := []NodeID{x, one}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("leaves mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]NodeID{x}, a.Signals(root)); diff != "" {
		t.Fatalf("signals mismatch (-want +got):\n%s", diff)
	}
}

func TestDumpListsOperandsFirst(t *testing.T) {
	a := NewArena()
	root := a.ToInt(a.ToBool(a.Var("en")), 4)

	var buf bytes.Buffer
	Dump(a, root, &buf)
	want := "" +
		"  n0    var        en\n" +
		"  n1    bool       n0\n" +
		"  n2    int()      width=4 n1\n"
	if diff := cmp.Diff(want, buf.String()); diff != "" {
		t.Fatalf("dump mismatch (-want +got):\n%s", diff)
	}
}

func TestBuilderRejectsWrongArity(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatalf("expected panic for non-binary kind")
		}
	}()
	a := NewArena()
	a.Binary(Not, a.Var("x"), a.Var("y"))
}
