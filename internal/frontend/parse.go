package frontend

import (
	"fmt"
	"go/ast"
	"go/parser"
	"go/token"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"golang.org/x/tools/go/ast/astutil"

	"exprsynth/internal/diag"
	"exprsynth/internal/ir"
)

// Expression is a parsed expression tree.
type Expression struct {
	Arena  *ir.Arena
	Root   ir.NodeID
	Source string
}

// ParseExpression reads an expression written in Go operator syntax:
//
//	x + y, a & ^b, c == 3        operators (^x is bitwise complement)
//	x[3:1], x[2]                 bit-fields, high index first
//	sel(c, a, b)                 c ? a : b
//	cat(a, b, c)                 concatenation, most significant first
//	asr(x, n)                    arithmetic shift right
//	bool(x), int(x), int(x, 8)   conversions
//
// Every syntax or construct error is reported before returning.
func ParseExpression(src string, reporter *diag.Reporter) (*Expression, error) {
	a := ir.NewArena()
	root, err := ParseInto(a, src, reporter)
	if err != nil {
		return nil, err
	}
	return &Expression{Arena: a, Root: root, Source: src}, nil
}

// ParseInto parses src and adds its nodes to a.
func ParseInto(a *ir.Arena, src string, reporter *diag.Reporter) (ir.NodeID, error) {
	if reporter == nil {
		reporter = diag.NewReporter(nil, "text")
	}
	fset := token.NewFileSet()
	node, err := parser.ParseExprFrom(fset, "expr", src, 0)
	if err != nil {
		reporter.Errorf("%v", err)
		return ir.InvalidNode, errors.New("expression parsing failed")
	}
	b := &builder{arena: a, fset: fset, reporter: reporter}
	root := b.build(node)
	if b.errCount > 0 {
		return ir.InvalidNode, errors.Errorf("expression parsing failed with %d issue(s)", b.errCount)
	}
	return root, nil
}

// ParseWidths parses name=width pairs.
func ParseWidths(specs []string) (map[string]int, error) {
	widths := make(map[string]int, len(specs))
	for _, spec := range specs {
		for _, item := range strings.Split(spec, ",") {
			item = strings.TrimSpace(item)
			if item == "" {
				continue
			}
			name, value, ok := strings.Cut(item, "=")
			if !ok {
				return nil, errors.Errorf("width %q is not name=width", item)
			}
			w, err := strconv.Atoi(strings.TrimSpace(value))
			if err != nil || w <= 0 {
				return nil, errors.Errorf("width %q must be a positive integer", item)
			}
			widths[strings.TrimSpace(name)] = w
		}
	}
	return widths, nil
}

type builder struct {
	arena    *ir.Arena
	fset     *token.FileSet
	reporter *diag.Reporter
	errCount int
}

func (b *builder) errorf(pos token.Pos, format string, args ...any) ir.NodeID {
	b.errCount++
	b.reporter.Errorf("%s: %s", b.fset.Position(pos), fmt.Sprintf(format, args...))
	return ir.InvalidNode
}

var binaryKinds = map[token.Token]ir.Kind{
	token.AND:  ir.And,
	token.LAND: ir.And,
	token.OR:   ir.Or,
	token.LOR:  ir.Or,
	token.XOR:  ir.Xor,
	token.ADD:  ir.Add,
	token.SUB:  ir.Sub,
	token.MUL:  ir.Mul,
	token.QUO:  ir.Div,
	token.REM:  ir.Mod,
	token.SHL:  ir.Shl,
	token.SHR:  ir.Shr,
	token.LSS:  ir.Lt,
	token.GTR:  ir.Gt,
	token.LEQ:  ir.Le,
	token.GEQ:  ir.Ge,
	token.EQL:  ir.Eq,
	token.NEQ:  ir.Ne,
}

var unaryKinds = map[token.Token]ir.Kind{
	token.NOT: ir.Not,
	token.XOR: ir.Complement,
	token.SUB: ir.Neg,
}

func (b *builder) build(e ast.Expr) ir.NodeID {
	switch n := astutil.Unparen(e).(type) {
	case *ast.Ident:
		switch n.Name {
		case "true":
			return b.arena.Bool(true)
		case "false":
			return b.arena.Bool(false)
		}
		return b.arena.Var(n.Name)
	case *ast.BasicLit:
		if n.Kind != token.INT {
			return b.errorf(n.Pos(), "unsupported literal %s", n.Value)
		}
		v, err := strconv.ParseUint(strings.ReplaceAll(n.Value, "_", ""), 0, 64)
		if err != nil {
			return b.errorf(n.Pos(), "bad integer %s: %v", n.Value, err)
		}
		return b.arena.Const(v)
	case *ast.UnaryExpr:
		kind, ok := unaryKinds[n.Op]
		if !ok {
			return b.errorf(n.Pos(), "unsupported unary operator %s", n.Op)
		}
		x := b.build(n.X)
		if x == ir.InvalidNode {
			return x
		}
		return b.arena.Unary(kind, x)
	case *ast.BinaryExpr:
		kind, ok := binaryKinds[n.Op]
		if !ok {
			return b.errorf(n.OpPos, "unsupported binary operator %s", n.Op)
		}
		l := b.build(n.X)
		r := b.build(n.Y)
		if l == ir.InvalidNode || r == ir.InvalidNode {
			return ir.InvalidNode
		}
		return b.arena.Binary(kind, l, r)
	case *ast.SliceExpr:
		name, ok := n.X.(*ast.Ident)
		if !ok || n.Low == nil || n.High == nil || n.Slice3 {
			return b.errorf(n.Pos(), "bit-fields take the form name[hi:lo]")
		}
		hi, okHi := b.index(n.Low)
		lo, okLo := b.index(n.High)
		if !okHi || !okLo {
			return ir.InvalidNode
		}
		return b.arena.BitField(name.Name, hi, lo)
	case *ast.IndexExpr:
		name, ok := n.X.(*ast.Ident)
		if !ok {
			return b.errorf(n.Pos(), "bit selects take the form name[i]")
		}
		bit, ok := b.index(n.Index)
		if !ok {
			return ir.InvalidNode
		}
		return b.arena.BitField(name.Name, bit, bit)
	case *ast.CallExpr:
		return b.call(n)
	default:
		return b.errorf(e.Pos(), "unsupported construct %T", n)
	}
}

func (b *builder) index(e ast.Expr) (int, bool) {
	lit, ok := astutil.Unparen(e).(*ast.BasicLit)
	if !ok || lit.Kind != token.INT {
		b.errorf(e.Pos(), "bit index must be an integer literal")
		return 0, false
	}
	v, err := strconv.Atoi(lit.Value)
	if err != nil || v < 0 {
		b.errorf(e.Pos(), "bad bit index %s", lit.Value)
		return 0, false
	}
	return v, true
}

func (b *builder) call(n *ast.CallExpr) ir.NodeID {
	fn, ok := n.Fun.(*ast.Ident)
	if !ok {
		return b.errorf(n.Pos(), "unsupported call")
	}
	arity := map[string][2]int{
		"sel":  {3, 3},
		"cat":  {1, -1},
		"asr":  {2, 2},
		"bool": {1, 1},
		"int":  {1, 2},
	}
	bounds, known := arity[fn.Name]
	if !known {
		return b.errorf(n.Pos(), "unknown function %s", fn.Name)
	}
	if len(n.Args) < bounds[0] || (bounds[1] >= 0 && len(n.Args) > bounds[1]) {
		return b.errorf(n.Pos(), "%s called with %d argument(s)", fn.Name, len(n.Args))
	}
	if fn.Name == "int" && len(n.Args) == 2 {
		x := b.build(n.Args[0])
		w, ok := b.index(n.Args[1])
		if x == ir.InvalidNode || !ok {
			return ir.InvalidNode
		}
		if w == 0 {
			return b.errorf(n.Args[1].Pos(), "int() width must be positive")
		}
		return b.arena.ToInt(x, w)
	}
	args := make([]ir.NodeID, len(n.Args))
	failed := false
	for i, arg := range n.Args {
		args[i] = b.build(arg)
		failed = failed || args[i] == ir.InvalidNode
	}
	if failed {
		return ir.InvalidNode
	}
	switch fn.Name {
	case "sel":
		return b.arena.Query(args[0], args[1], args[2])
	case "cat":
		return b.arena.Concat(args...)
	case "asr":
		return b.arena.Binary(ir.Asr, args[0], args[1])
	case "bool":
		return b.arena.ToBool(args[0])
	default:
		return b.arena.ToInt(args[0], 0)
	}
}
