package verilog

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"

	"exprsynth/internal/ir"
	"exprsynth/internal/passes"
)

// Operand is a compiled value: the wire that carries it and its width.
type Operand struct {
	Name  string
	Width int
}

// Compiler lowers expression nodes to one wire per node. Each node is
// emitted at most once; compiling it again returns the same operand.
type Compiler struct {
	arena    *ir.Arena
	leaves   ir.LeafMap
	prefix   string
	next     int
	body     strings.Builder
	memo     map[ir.NodeID]Operand
	literals map[string]Operand
}

// NewCompiler returns a compiler whose temporaries are named prefix0,
// prefix1, ... The caller picks a prefix that no port shares.
func NewCompiler(a *ir.Arena, leaves ir.LeafMap, prefix string) *Compiler {
	return &Compiler{
		arena:    a,
		leaves:   leaves,
		prefix:   prefix,
		memo:     make(map[ir.NodeID]Operand),
		literals: make(map[string]Operand),
	}
}

// Body returns the declarations emitted so far.
func (c *Compiler) Body() string {
	return c.body.String()
}

// Temps returns the number of temporaries emitted so far.
func (c *Compiler) Temps() int {
	return c.next
}

// Compile emits id and everything below it and returns the wire holding its
// value.
func (c *Compiler) Compile(id ir.NodeID) (Operand, error) {
	if op, ok := c.memo[id]; ok {
		return op, nil
	}
	if c.arena == nil || !c.arena.Valid(id) {
		return Operand{}, errors.Wrapf(ir.ErrSemantic, "node n%d does not exist", id)
	}
	op, err := c.compileNode(id, c.arena.Node(id))
	if err != nil {
		return Operand{}, err
	}
	c.memo[id] = op
	return op, nil
}

func (c *Compiler) compileNode(id ir.NodeID, n *ir.Node) (Operand, error) {
	if n.Kind.IsLeaf() {
		return c.compileLeaf(id, n)
	}
	args := make([]Operand, len(n.Args))
	widths := make([]int, len(n.Args))
	for i, arg := range n.Args {
		op, err := c.Compile(arg)
		if err != nil {
			return Operand{}, err
		}
		args[i] = op
		widths[i] = op.Width
	}
	width, err := passes.OperatorWidth(n, widths)
	if err != nil {
		return Operand{}, errors.Wrapf(err, "node n%d", id)
	}

	switch {
	case n.Kind.IsUnary():
		sym := "~"
		if n.Kind == ir.Neg {
			sym = "-"
		}
		return c.emit(width, sym+args[0].Name), nil
	case n.Kind.IsCompare():
		return c.emit(width, binaryExpr(args[0], n.Kind, args[1])), nil
	}

	switch n.Kind {
	case ir.And, ir.Or, ir.Xor, ir.Shr, ir.Asr:
		return c.emit(width, binaryExpr(args[0], n.Kind, args[1])), nil
	case ir.Add, ir.Sub, ir.Mul:
		l := c.Resize(args[0], width)
		r := c.Resize(args[1], width)
		return c.emit(width, binaryExpr(l, n.Kind, r)), nil
	case ir.Shl:
		l := c.Resize(args[0], width)
		return c.emit(width, binaryExpr(l, n.Kind, args[1])), nil
	case ir.Div, ir.Mod:
		full := c.emit(max(args[0].Width, args[1].Width), binaryExpr(args[0], n.Kind, args[1]))
		return c.Resize(full, width), nil
	case ir.Query:
		return c.emit(width, fmt.Sprintf("%s ? %s : %s", args[0].Name, args[1].Name, args[2].Name)), nil
	case ir.Concat:
		names := make([]string, len(args))
		for i, arg := range args {
			names[i] = arg.Name
		}
		return c.emit(width, "{"+strings.Join(names, ", ")+"}"), nil
	case ir.BuiltinBool:
		return c.emit(width, args[0].Name+" ? 1'b1 : 1'b0"), nil
	case ir.BuiltinInt:
		return c.Resize(args[0], width), nil
	}
	return Operand{}, errors.Wrapf(ir.ErrUnsupported, "node n%d of kind %s", id, n.Kind)
}

func (c *Compiler) compileLeaf(id ir.NodeID, n *ir.Node) (Operand, error) {
	leaf, mapped := c.leaves[id]
	width, hi, err := passes.LeafWidth(n, leaf, mapped)
	if err != nil {
		return Operand{}, errors.Wrapf(err, "node n%d", id)
	}
	if mapped && n.Kind != ir.BitField {
		return c.emit(width, leaf.Name), nil
	}
	switch n.Kind {
	case ir.BitField:
		ref := leaf.Name
		switch {
		case hi == leaf.Width-1 && n.Lo == 0:
		case hi == n.Lo:
			ref = fmt.Sprintf("%s[%d]", leaf.Name, n.Lo)
		default:
			ref = fmt.Sprintf("%s[%d:%d]", leaf.Name, hi, n.Lo)
		}
		return c.emit(width, ref), nil
	case ir.Int:
		return c.literal(width, fmt.Sprintf("%d'd%d", width, n.Value)), nil
	case ir.True:
		return c.literal(width, "1'b1"), nil
	case ir.False:
		return c.literal(width, "1'b0"), nil
	}
	return Operand{}, errors.Wrapf(ir.ErrUnsupported, "leaf n%d of kind %s", id, n.Kind)
}

// literal shares one wire between all unmapped literals with the same text.
func (c *Compiler) literal(width int, text string) Operand {
	if op, ok := c.literals[text]; ok {
		return op
	}
	op := c.emit(width, text)
	c.literals[text] = op
	return op
}

// Resize zero-extends or truncates op to width, emitting a new wire only
// when the widths differ.
func (c *Compiler) Resize(op Operand, width int) Operand {
	switch {
	case op.Width < width:
		return c.emit(width, fmt.Sprintf("{%d'd0, %s}", width-op.Width, op.Name))
	case op.Width > width:
		if width == 1 {
			return c.emit(width, fmt.Sprintf("%s[0]", op.Name))
		}
		return c.emit(width, fmt.Sprintf("%s[%d:0]", op.Name, width-1))
	}
	return op
}

func (c *Compiler) emit(width int, rhs string) Operand {
	name := fmt.Sprintf("%s%d", c.prefix, c.next)
	c.next++
	fmt.Fprintf(&c.body, "\twire [%d:0] %s = %s;\n", width-1, name, rhs)
	return Operand{Name: name, Width: width}
}

var operatorSymbols = map[ir.Kind]string{
	ir.And: "&",
	ir.Or:  "|",
	ir.Xor: "^",
	ir.Add: "+",
	ir.Sub: "-",
	ir.Mul: "*",
	ir.Div: "/",
	ir.Mod: "%",
	ir.Shl: "<<",
	ir.Shr: ">>",
	ir.Asr: ">>>",
	ir.Lt:  "<",
	ir.Gt:  ">",
	ir.Le:  "<=",
	ir.Ge:  ">=",
	ir.Eq:  "==",
	ir.Ne:  "!=",
}

func binaryExpr(l Operand, kind ir.Kind, r Operand) string {
	return l.Name + " " + operatorSymbols[kind] + " " + r.Name
}
