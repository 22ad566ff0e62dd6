package passes

import (
	"github.com/pkg/errors"

	"exprsynth/internal/diag"
	"exprsynth/internal/ir"
)

// LiteralWidth is the width of an integer literal that has no leaf mapping.
const LiteralWidth = 64

// maxShiftAmountWidth bounds the shift-amount width of a left shift; the
// result width l + 2^r - 1 overflows int32 beyond it.
const maxShiftAmountWidth = 30

// WidthInference computes the bit width of every node of an expression tree.
type WidthInference struct {
	reporter *diag.Reporter
}

// NewWidthInference constructs the pass. reporter is optional; when set each
// failure is also reported there.
func NewWidthInference(reporter *diag.Reporter) *WidthInference {
	return &WidthInference{reporter: reporter}
}

// Name returns the pass name.
func (w *WidthInference) Name() string {
	return "width-inference"
}

// Run returns the width of every node reachable from root.
func (w *WidthInference) Run(a *ir.Arena, root ir.NodeID, leaves ir.LeafMap) (map[ir.NodeID]int, error) {
	if a == nil || !a.Valid(root) {
		return nil, errors.New("width inference requires a valid expression")
	}
	widths := make(map[ir.NodeID]int)
	var visit func(id ir.NodeID) (int, error)
	visit = func(id ir.NodeID) (int, error) {
		if width, ok := widths[id]; ok {
			return width, nil
		}
		n := a.Node(id)
		var width int
		var err error
		if n.Kind.IsLeaf() {
			leaf, mapped := leaves[id]
			width, _, err = LeafWidth(n, leaf, mapped)
		} else {
			args := make([]int, len(n.Args))
			for i, arg := range n.Args {
				if args[i], err = visit(arg); err != nil {
					return 0, err
				}
			}
			width, err = OperatorWidth(n, args)
		}
		if err != nil {
			if w.reporter != nil {
				w.reporter.Error(int(id), err.Error())
			}
			return 0, errors.Wrapf(err, "node n%d", id)
		}
		widths[id] = width
		return width, nil
	}
	if _, err := visit(root); err != nil {
		return nil, err
	}
	return widths, nil
}

// LeafWidth returns the width of a leaf node. For a BitField it also returns
// the high index after clamping it to the source width.
func LeafWidth(n *ir.Node, leaf ir.Leaf, mapped bool) (width, hi int, err error) {
	switch n.Kind {
	case ir.Var:
		if !mapped {
			return 0, 0, errors.Wrapf(ir.ErrSemantic, "variable %q has no leaf mapping", n.Name)
		}
		if leaf.Width <= 0 {
			return 0, 0, errors.Wrapf(ir.ErrSemantic, "variable %q has width %d", leaf.Name, leaf.Width)
		}
		return leaf.Width, 0, nil
	case ir.BitField:
		if !mapped {
			return 0, 0, errors.Wrapf(ir.ErrSemantic, "bit-field of %q has no leaf mapping", n.Name)
		}
		hi, err := ClampSlice(n.Hi, n.Lo, leaf.Width)
		if err != nil {
			return 0, 0, errors.Wrapf(err, "bit-field of %q", n.Name)
		}
		return hi - n.Lo + 1, hi, nil
	case ir.Int:
		if mapped {
			if leaf.Width <= 0 {
				return 0, 0, errors.Wrapf(ir.ErrSemantic, "constant mapped to %q has width %d", leaf.Name, leaf.Width)
			}
			return leaf.Width, 0, nil
		}
		return LiteralWidth, 0, nil
	case ir.True, ir.False:
		if mapped {
			if leaf.Width <= 0 {
				return 0, 0, errors.Wrapf(ir.ErrSemantic, "constant mapped to %q has width %d", leaf.Name, leaf.Width)
			}
			return leaf.Width, 0, nil
		}
		return 1, 0, nil
	}
	return 0, 0, errors.Wrapf(ir.ErrUnsupported, "%s is not a leaf", n.Kind)
}

// ClampSlice returns hi clamped to source-1 and checks the slice is not empty.
func ClampSlice(hi, lo, source int) (int, error) {
	if source <= 0 {
		return 0, errors.Wrapf(ir.ErrSemantic, "source width %d", source)
	}
	if hi >= source {
		hi = source - 1
	}
	if lo < 0 || lo > hi {
		return 0, errors.Wrapf(ir.ErrSemantic, "empty slice [%d:%d] of %d-bit signal", hi, lo, source)
	}
	return hi, nil
}

// OperatorWidth returns the result width of an interior node given the
// widths of its operands.
func OperatorWidth(n *ir.Node, args []int) (int, error) {
	switch {
	case n.Kind.IsUnary():
		return args[0], nil
	case n.Kind.IsCompare():
		return 1, nil
	}
	switch n.Kind {
	case ir.And, ir.Or, ir.Xor:
		return max(args[0], args[1]), nil
	case ir.Add, ir.Sub:
		return max(args[0], args[1]) + 1, nil
	case ir.Mul:
		return args[0] + args[1], nil
	case ir.Div:
		return args[0], nil
	case ir.Mod:
		return args[1], nil
	case ir.Shl:
		if args[1] > maxShiftAmountWidth {
			return 0, errors.Wrapf(ir.ErrSemantic, "left shift by a %d-bit amount is too wide (size a literal amount with int(n, w))", args[1])
		}
		return args[0] + (1 << args[1]) - 1, nil
	case ir.Shr, ir.Asr:
		return args[0], nil
	case ir.Query:
		if args[0] != 1 {
			return 0, errors.Wrapf(ir.ErrSemantic, "select condition has width %d, want 1", args[0])
		}
		return max(args[1], args[2]), nil
	case ir.Concat:
		sum := 0
		for _, w := range args {
			sum += w
		}
		return sum, nil
	case ir.BuiltinBool:
		return 1, nil
	case ir.BuiltinInt:
		if n.Width > 0 {
			return n.Width, nil
		}
		if args[0] != 1 {
			return 0, errors.Wrapf(ir.ErrSemantic, "int() of a %d-bit value needs an explicit width", args[0])
		}
		return 1, nil
	}
	return 0, errors.Wrapf(ir.ErrUnsupported, "node kind %s", n.Kind)
}
