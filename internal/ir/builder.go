package ir

import "fmt"

// Var adds a variable leaf.
func (a *Arena) Var(name string) NodeID {
	return a.alloc(Node{Kind: Var, Name: name})
}

// Const adds an unsigned integer literal.
func (a *Arena) Const(v uint64) NodeID {
	return a.alloc(Node{Kind: Int, Value: v})
}

// Bool adds a true or false literal.
func (a *Arena) Bool(v bool) NodeID {
	if v {
		return a.alloc(Node{Kind: True})
	}
	return a.alloc(Node{Kind: False})
}

// Unary adds a not, complement or negate node.
func (a *Arena) Unary(kind Kind, x NodeID) NodeID {
	if !kind.IsUnary() {
		panic(fmt.Sprintf("ir: %s is not a unary operator", kind))
	}
	return a.alloc(Node{Kind: kind, Args: []NodeID{x}})
}

// Binary adds a two-operand node.
func (a *Arena) Binary(kind Kind, l, r NodeID) NodeID {
	if !kind.IsBinary() {
		panic(fmt.Sprintf("ir: %s is not a binary operator", kind))
	}
	return a.alloc(Node{Kind: kind, Args: []NodeID{l, r}})
}

// Query adds a ternary select cond ? t : f.
func (a *Arena) Query(cond, t, f NodeID) NodeID {
	return a.alloc(Node{Kind: Query, Args: []NodeID{cond, t, f}})
}

// Concat adds a concatenation; parts are most significant first.
func (a *Arena) Concat(parts ...NodeID) NodeID {
	if len(parts) == 0 {
		panic("ir: empty concatenation")
	}
	args := make([]NodeID, len(parts))
	copy(args, parts)
	return a.alloc(Node{Kind: Concat, Args: args})
}

// BitField adds a slice name[hi:lo] of a named source signal.
func (a *Arena) BitField(name string, hi, lo int) NodeID {
	return a.alloc(Node{Kind: BitField, Name: name, Hi: hi, Lo: lo})
}

// ToBool adds bool(x), which is 1 when x is non-zero.
func (a *Arena) ToBool(x NodeID) NodeID {
	return a.alloc(Node{Kind: BuiltinBool, Args: []NodeID{x}})
}

// ToInt adds int(x, width). A width of zero converts a 1-bit operand to a
// 1-bit integer.
func (a *Arena) ToInt(x NodeID, width int) NodeID {
	return a.alloc(Node{Kind: BuiltinInt, Width: width, Args: []NodeID{x}})
}

// Leaves returns the leaf nodes reachable from root in left-to-right
// traversal order. Every node is reported once even when shared.
func (a *Arena) Leaves(root NodeID) []NodeID {
	var out []NodeID
	seen := make(map[NodeID]bool)
	var walk func(id NodeID)
	walk = func(id NodeID) {
		if seen[id] {
			return
		}
		seen[id] = true
		n := a.Node(id)
		if n.Kind.IsLeaf() {
			out = append(out, id)
			return
		}
		for _, arg := range n.Args {
			walk(arg)
		}
	}
	walk(root)
	return out
}

// Signals returns the distinct variable and bit-field leaves reachable from
// root, in first-occurrence order.
func (a *Arena) Signals(root NodeID) []NodeID {
	var out []NodeID
	for _, id := range a.Leaves(root) {
		k := a.Node(id).Kind
		if k == Var || k == BitField {
			out = append(out, id)
		}
	}
	return out
}

// SignalNames returns the distinct source names of the variable and
// bit-field leaves below root, in first-occurrence order.
func (a *Arena) SignalNames(root NodeID) []string {
	var names []string
	seen := make(map[string]bool)
	for _, id := range a.Signals(root) {
		name := a.Node(id).Name
		if !seen[name] {
			seen[name] = true
			names = append(names, name)
		}
	}
	return names
}
