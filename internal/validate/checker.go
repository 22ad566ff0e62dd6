package validate

import (
	"fmt"

	"github.com/pkg/errors"

	"exprsynth/internal/diag"
	"exprsynth/internal/ir"
)

// CheckExpression validates that the tree below root only uses lowerable
// node kinds with the right number of operands, and that every signal leaf
// has a usable leaf mapping. All problems are reported before returning.
func CheckExpression(a *ir.Arena, root ir.NodeID, leaves ir.LeafMap, reporter *diag.Reporter) error {
	if a == nil || !a.Valid(root) {
		return errors.New("no expression provided for validation")
	}
	if reporter == nil {
		return errors.New("no reporter provided for validation")
	}
	c := &checker{arena: a, leaves: leaves, reporter: reporter, seen: make(map[ir.NodeID]bool)}
	c.visit(root)
	if c.errCount > 0 {
		return errors.Errorf("validation failed with %d issue(s)", c.errCount)
	}
	return nil
}

type checker struct {
	arena    *ir.Arena
	leaves   ir.LeafMap
	reporter *diag.Reporter
	seen     map[ir.NodeID]bool
	errCount int
}

func (c *checker) errorf(id ir.NodeID, format string, args ...any) {
	c.errCount++
	c.reporter.Error(int(id), fmt.Sprintf(format, args...))
}

func (c *checker) visit(id ir.NodeID) {
	if c.seen[id] {
		return
	}
	c.seen[id] = true
	if !c.arena.Valid(id) {
		c.errorf(id, "reference to missing node")
		return
	}
	n := c.arena.Node(id)
	c.checkArity(id, n)
	switch n.Kind {
	case ir.Var, ir.BitField:
		c.checkSignal(id, n)
	case ir.Int, ir.True, ir.False:
		if leaf, ok := c.leaves[id]; ok && leaf.Width <= 0 {
			c.errorf(id, "constant mapped to %q has width %d", leaf.Name, leaf.Width)
		}
	case ir.BuiltinInt:
		if n.Width < 0 {
			c.errorf(id, "int() target width %d is negative", n.Width)
		}
	}
	for _, arg := range n.Args {
		c.visit(arg)
	}
}

func (c *checker) checkArity(id ir.NodeID, n *ir.Node) {
	want := -1
	switch {
	case n.Kind.IsLeaf():
		want = 0
	case n.Kind.IsUnary(), n.Kind == ir.BuiltinBool, n.Kind == ir.BuiltinInt:
		want = 1
	case n.Kind.IsBinary():
		want = 2
	case n.Kind == ir.Query:
		want = 3
	case n.Kind == ir.Concat:
		if len(n.Args) == 0 {
			c.errorf(id, "empty concatenation")
		}
		return
	default:
		c.errorf(id, "unsupported construct %s", n.Kind)
		return
	}
	if len(n.Args) != want {
		c.errorf(id, "%s takes %d operand(s), has %d", n.Kind, want, len(n.Args))
	}
}

func (c *checker) checkSignal(id ir.NodeID, n *ir.Node) {
	leaf, ok := c.leaves[id]
	if !ok {
		c.errorf(id, "signal %q has no leaf mapping", n.Name)
		return
	}
	if leaf.Width <= 0 {
		c.errorf(id, "signal %q has width %d", leaf.Name, leaf.Width)
		return
	}
	if n.Kind == ir.BitField {
		if n.Lo < 0 || n.Lo > n.Hi {
			c.errorf(id, "bit-field %s[%d:%d] is empty", n.Name, n.Hi, n.Lo)
		} else if n.Lo >= leaf.Width {
			c.errorf(id, "bit-field %s[%d:%d] starts past the %d-bit source", n.Name, n.Hi, n.Lo, leaf.Width)
		} else if n.Hi >= leaf.Width {
			c.reporter.Warning(int(id), fmt.Sprintf("bit-field %s[%d:%d] clamped to the %d-bit source", n.Name, n.Hi, n.Lo, leaf.Width))
		}
	}
}
