package verilog

import (
	"fmt"
	"io"
	"strings"

	"github.com/pkg/errors"

	"exprsynth/internal/ir"
)

// Port is a named module port or hidden wire.
type Port struct {
	Name  string
	Width int
}

// Assign drives a port or hidden wire with an expression.
type Assign struct {
	Port
	Root ir.NodeID
}

// Module describes one synthesizable expression block.
type Module struct {
	Name    string
	Inputs  []Port
	Outputs []Assign
	// Hidden holds intermediate signals shared between outputs. They are
	// declared as wires and assigned before the outputs.
	Hidden []Assign
	// VectorizeAll prints 1-bit ports as [0:0] vectors.
	VectorizeAll bool
}

// Inputs collects the input ports referenced through leaves by the trees
// below roots, in first-occurrence order. Mapped constants become inputs too.
func Inputs(a *ir.Arena, leaves ir.LeafMap, roots ...ir.NodeID) ([]Port, error) {
	var ports []Port
	seen := make(map[string]int)
	for _, root := range roots {
		for _, id := range a.Leaves(root) {
			leaf, ok := leaves[id]
			if !ok {
				continue
			}
			if idx, dup := seen[leaf.Name]; dup {
				if ports[idx].Width != leaf.Width {
					return nil, errors.Wrapf(ir.ErrSemantic, "signal %q used with widths %d and %d",
						leaf.Name, ports[idx].Width, leaf.Width)
				}
				continue
			}
			seen[leaf.Name] = len(ports)
			ports = append(ports, Port{Name: leaf.Name, Width: leaf.Width})
		}
	}
	return ports, nil
}

// Emit writes m as a Verilog module. Ports that share a name are declared
// once.
func Emit(w io.Writer, a *ir.Arena, leaves ir.LeafMap, m *Module) error {
	if m == nil || m.Name == "" {
		return errors.New("verilog: module needs a name")
	}
	inputs := dedupe(m.Inputs)
	outputs := dedupe(assignPorts(m.Outputs))
	hidden := dedupe(assignPorts(m.Hidden))
	for _, group := range [][]Port{inputs, outputs, hidden} {
		for _, p := range group {
			if p.Width <= 0 {
				return errors.Wrapf(ir.ErrSemantic, "port %q has width %d", p.Name, p.Width)
			}
		}
	}

	names := make([]string, 0, len(inputs)+len(outputs)+len(hidden))
	for _, group := range [][]Port{inputs, outputs, hidden} {
		for _, p := range group {
			names = append(names, p.Name)
		}
	}
	prefix, err := TempPrefix(names)
	if err != nil {
		return err
	}

	comp := NewCompiler(a, leaves, prefix)
	var assigns strings.Builder
	compileAll := func(list []Assign) error {
		done := make(map[string]bool)
		for _, as := range list {
			if done[as.Name] {
				continue
			}
			done[as.Name] = true
			op, err := comp.Compile(as.Root)
			if err != nil {
				return errors.Wrapf(err, "compile %s", as.Name)
			}
			op = comp.Resize(op, as.Width)
			fmt.Fprintf(&assigns, "\tassign %s = %s;\n", as.Name, op.Name)
		}
		return nil
	}
	if err := compileAll(m.Hidden); err != nil {
		return err
	}
	if err := compileAll(m.Outputs); err != nil {
		return err
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "// generated expression module for %s\n", m.Name)
	portNames := make([]string, 0, len(inputs)+len(outputs))
	for _, p := range inputs {
		portNames = append(portNames, p.Name)
	}
	for _, p := range outputs {
		portNames = append(portNames, p.Name)
	}
	fmt.Fprintf(&sb, "module %s (%s );\n", m.Name, strings.Join(portNames, ", "))
	for _, p := range inputs {
		sb.WriteString(declare("input", p, m.VectorizeAll))
	}
	for _, p := range outputs {
		sb.WriteString(declare("output", p, m.VectorizeAll))
	}
	for _, p := range hidden {
		sb.WriteString(declare("wire", p, m.VectorizeAll))
	}
	sb.WriteString(comp.Body())
	sb.WriteString(assigns.String())
	sb.WriteString("endmodule\n")

	_, err = io.WriteString(w, sb.String())
	return err
}

// TempPrefix picks the first of _xtpa.._xtpz that no name starts with.
func TempPrefix(names []string) (string, error) {
	for c := 'a'; c <= 'z'; c++ {
		prefix := "_xtp" + string(c)
		clash := false
		for _, name := range names {
			if strings.HasPrefix(name, prefix) {
				clash = true
				break
			}
		}
		if !clash {
			return prefix, nil
		}
	}
	return "", errors.New("verilog: could not find a unique temporary prefix")
}

func declare(kind string, p Port, vectorize bool) string {
	if p.Width == 1 && !vectorize {
		return fmt.Sprintf("\t%s %s ;\n", kind, p.Name)
	}
	return fmt.Sprintf("\t%s [%d:0] %s ;\n", kind, p.Width-1, p.Name)
}

func assignPorts(list []Assign) []Port {
	ports := make([]Port, len(list))
	for i, as := range list {
		ports[i] = as.Port
	}
	return ports
}

func dedupe(ports []Port) []Port {
	seen := make(map[string]bool)
	out := make([]Port, 0, len(ports))
	for _, p := range ports {
		if seen[p.Name] {
			continue
		}
		seen[p.Name] = true
		out = append(out, p)
	}
	return out
}
