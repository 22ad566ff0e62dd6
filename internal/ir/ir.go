package ir

import "fmt"

// NodeID identifies a node inside an Arena. IDs are stable for the lifetime
// of the arena and are the identity used for memoization.
type NodeID int32

// InvalidNode is returned by lookups that do not resolve to a node.
const InvalidNode NodeID = -1

// Kind enumerates the supported expression node kinds.
type Kind int

const (
	Var Kind = iota
	Int
	True
	False

	// unary
	Not
	Complement
	Neg

	// binary
	And
	Or
	Xor
	Add
	Sub
	Mul
	Div
	Mod
	Shl
	Shr
	Asr
	Lt
	Gt
	Le
	Ge
	Eq
	Ne

	Query
	Concat
	BitField
	BuiltinBool
	BuiltinInt
)

var kindNames = map[Kind]string{
	Var:         "var",
	Int:         "int",
	True:        "true",
	False:       "false",
	Not:         "not",
	Complement:  "complement",
	Neg:         "neg",
	And:         "and",
	Or:          "or",
	Xor:         "xor",
	Add:         "add",
	Sub:         "sub",
	Mul:         "mul",
	Div:         "div",
	Mod:         "mod",
	Shl:         "shl",
	Shr:         "shr",
	Asr:         "asr",
	Lt:          "lt",
	Gt:          "gt",
	Le:          "le",
	Ge:          "ge",
	Eq:          "eq",
	Ne:          "ne",
	Query:       "query",
	Concat:      "concat",
	BitField:    "bitfield",
	BuiltinBool: "bool",
	BuiltinInt:  "int()",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// IsLeaf reports whether nodes of this kind carry no operands.
func (k Kind) IsLeaf() bool {
	switch k {
	case Var, Int, True, False, BitField:
		return true
	}
	return false
}

// IsConst reports whether the kind is a literal constant.
func (k Kind) IsConst() bool {
	return k == Int || k == True || k == False
}

// IsUnary reports whether the kind takes exactly one operand.
func (k Kind) IsUnary() bool {
	return k == Not || k == Complement || k == Neg
}

// IsBinary reports whether the kind takes exactly two operands.
func (k Kind) IsBinary() bool {
	return k >= And && k <= Ne
}

// IsCompare reports whether the kind is a relational operator.
func (k Kind) IsCompare() bool {
	return k >= Lt && k <= Ne
}

// Node is one expression node. Only the fields relevant to Kind are set.
type Node struct {
	Kind Kind
	// Name holds the variable name for Var and the source signal for BitField.
	Name string
	// Value holds the literal for Int.
	Value uint64
	// Hi and Lo are the inclusive bounds of a BitField.
	Hi, Lo int
	// Width is the target width of BuiltinInt. Zero means "same as operand",
	// which is only legal for a 1-bit operand.
	Width int
	// Args holds the operands: one for unary and builtin nodes, two for
	// binary nodes, three for Query (cond, then, else) and any number of
	// parts for Concat (most significant first).
	Args []NodeID
}

// Arena owns every node of one or more expression trees.
type Arena struct {
	nodes []Node
}

// NewArena returns an empty arena.
func NewArena() *Arena {
	return &Arena{}
}

// Len returns the number of nodes allocated so far.
func (a *Arena) Len() int {
	return len(a.nodes)
}

// Node returns the node for id. It panics on out-of-range IDs, mirroring a
// slice index.
func (a *Arena) Node(id NodeID) *Node {
	return &a.nodes[id]
}

// Valid reports whether id refers to a node of this arena.
func (a *Arena) Valid(id NodeID) bool {
	return id >= 0 && int(id) < len(a.nodes)
}

func (a *Arena) alloc(n Node) NodeID {
	a.nodes = append(a.nodes, n)
	return NodeID(len(a.nodes) - 1)
}
