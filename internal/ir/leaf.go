package ir

import "github.com/pkg/errors"

var (
	// ErrSemantic marks inconsistent widths, missing leaf mappings and other
	// caller data bugs.
	ErrSemantic = errors.New("semantic error")
	// ErrUnsupported marks node kinds that cannot be lowered.
	ErrUnsupported = errors.New("unsupported construct")
)

// Leaf names the signal that drives a leaf node. For a BitField the width is
// the width of the whole source signal, not of the slice.
type Leaf struct {
	Name  string
	Width int
}

// LeafMap binds leaf nodes to signals. Every Var and BitField node must be
// present; an entry for a constant replaces its literal value.
type LeafMap map[NodeID]Leaf

// BindSignals builds a LeafMap for the Var and BitField leaves below root,
// looking the width of each source signal up in widths.
func BindSignals(a *Arena, root NodeID, widths map[string]int) (LeafMap, error) {
	leaves := make(LeafMap)
	for _, id := range a.Signals(root) {
		name := a.Node(id).Name
		w, ok := widths[name]
		if !ok {
			return nil, errors.Wrapf(ErrSemantic, "no width for signal %q", name)
		}
		leaves[id] = Leaf{Name: name, Width: w}
	}
	return leaves, nil
}

// SignalWidths returns the width of each distinct source signal below root in
// first-occurrence order.
func SignalWidths(a *Arena, root NodeID, leaves LeafMap) ([]int, error) {
	var out []int
	seen := make(map[string]bool)
	for _, id := range a.Signals(root) {
		leaf, ok := leaves[id]
		if !ok {
			return nil, errors.Wrapf(ErrSemantic, "node n%d has no leaf mapping", id)
		}
		if seen[leaf.Name] {
			continue
		}
		seen[leaf.Name] = true
		out = append(out, leaf.Width)
	}
	return out, nil
}
