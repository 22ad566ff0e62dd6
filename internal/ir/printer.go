package ir

import (
	"fmt"
	"io"
	"strconv"
	"strings"
)

var infixOps = map[Kind]string{
	And: "&",
	Or:  "|",
	Xor: "^",
	Add: "+",
	Sub: "-",
	Mul: "*",
	Div: "/",
	Mod: "%",
	Shl: "<<",
	Shr: ">>",
	Asr: ">>>",
	Lt:  "<",
	Gt:  ">",
	Le:  "<=",
	Ge:  ">=",
	Eq:  "==",
	Ne:  "!=",
}

var prefixOps = map[Kind]string{
	Not:        "!",
	Complement: "~",
	Neg:        "-",
}

// Format renders the expression below root in a fully parenthesised infix
// form using the original signal names.
func Format(a *Arena, root NodeID) string {
	var sb strings.Builder
	writeExpr(&sb, a, root, func(name string) string { return name })
	return sb.String()
}

// CanonicalText renders the expression with every signal renamed to v<k>,
// k being the position of the signal's first occurrence. The result has no
// whitespace, so two expressions that differ only in their signal names
// share one canonical text.
func CanonicalText(a *Arena, root NodeID) string {
	index := make(map[string]int)
	for i, name := range a.SignalNames(root) {
		index[name] = i
	}
	var sb strings.Builder
	writeExpr(&sb, a, root, func(name string) string {
		return "v" + strconv.Itoa(index[name])
	})
	return sb.String()
}

func writeExpr(sb *strings.Builder, a *Arena, id NodeID, rename func(string) string) {
	n := a.Node(id)
	switch {
	case n.Kind == Var:
		sb.WriteString(rename(n.Name))
	case n.Kind == Int:
		sb.WriteString(strconv.FormatUint(n.Value, 10))
	case n.Kind == True:
		sb.WriteString("true")
	case n.Kind == False:
		sb.WriteString("false")
	case n.Kind == BitField:
		fmt.Fprintf(sb, "%s[%d:%d]", rename(n.Name), n.Hi, n.Lo)
	case n.Kind.IsUnary():
		sb.WriteString(prefixOps[n.Kind])
		sb.WriteByte('(')
		writeExpr(sb, a, n.Args[0], rename)
		sb.WriteByte(')')
	case n.Kind.IsBinary():
		sb.WriteByte('(')
		writeExpr(sb, a, n.Args[0], rename)
		sb.WriteString(infixOps[n.Kind])
		writeExpr(sb, a, n.Args[1], rename)
		sb.WriteByte(')')
	case n.Kind == Query:
		sb.WriteByte('(')
		writeExpr(sb, a, n.Args[0], rename)
		sb.WriteByte('?')
		writeExpr(sb, a, n.Args[1], rename)
		sb.WriteByte(':')
		writeExpr(sb, a, n.Args[2], rename)
		sb.WriteByte(')')
	case n.Kind == Concat:
		sb.WriteByte('{')
		for i, part := range n.Args {
			if i > 0 {
				sb.WriteByte(',')
			}
			writeExpr(sb, a, part, rename)
		}
		sb.WriteByte('}')
	case n.Kind == BuiltinBool:
		sb.WriteString("bool(")
		writeExpr(sb, a, n.Args[0], rename)
		sb.WriteByte(')')
	case n.Kind == BuiltinInt:
		sb.WriteString("int(")
		writeExpr(sb, a, n.Args[0], rename)
		if n.Width > 0 {
			fmt.Fprintf(sb, ",%d", n.Width)
		}
		sb.WriteByte(')')
	default:
		fmt.Fprintf(sb, "<%s>", n.Kind)
	}
}

// Dump writes one line per node reachable from root, operands first.
func Dump(a *Arena, root NodeID, w io.Writer) {
	if a == nil || !a.Valid(root) {
		fmt.Fprintln(w, "<nil expression>")
		return
	}
	seen := make(map[NodeID]bool)
	var walk func(id NodeID)
	walk = func(id NodeID) {
		if seen[id] {
			return
		}
		seen[id] = true
		n := a.Node(id)
		for _, arg := range n.Args {
			walk(arg)
		}
		fmt.Fprintf(w, "  n%-4d %-10s%s\n", id, n.Kind, nodeDetail(n))
	}
	walk(root)
}

func nodeDetail(n *Node) string {
	switch n.Kind {
	case Var:
		return " " + n.Name
	case Int:
		return " " + strconv.FormatUint(n.Value, 10)
	case BitField:
		return fmt.Sprintf(" %s[%d:%d]", n.Name, n.Hi, n.Lo)
	case BuiltinInt:
		return fmt.Sprintf(" width=%d %s", n.Width, argList(n.Args))
	}
	if len(n.Args) == 0 {
		return ""
	}
	return " " + argList(n.Args)
}

func argList(args []NodeID) string {
	parts := make([]string, len(args))
	for i, arg := range args {
		parts[i] = fmt.Sprintf("n%d", arg)
	}
	return strings.Join(parts, ", ")
}
