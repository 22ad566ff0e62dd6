// Package translate converts mapped netlists into the host cell format by
// running the v2act translator.
package translate

import (
	"context"
	"os"
	"os/exec"
	"strings"

	"github.com/pkg/errors"

	"exprsynth/internal/config"
	"exprsynth/internal/logging"
)

// Target selects the cell library a netlist is translated against.
type Target int

const (
	// QDI uses channel-typed wires.
	QDI Target = iota
	// BundledData uses plain boolean wires.
	BundledData
)

// ParseTarget maps "qdi" and "bd" to a Target.
func ParseTarget(name string) (Target, error) {
	switch name {
	case "qdi":
		return QDI, nil
	case "bd":
		return BundledData, nil
	}
	return 0, errors.Errorf("translate: unknown target %q", name)
}

// Translator appends translated netlists to an output file.
type Translator struct {
	Binary    string
	CellLib   string
	Namespace string
	// WireType is the wire type of the generated ports; "bool" runs the
	// translator in synchronous mode, anything else as a channel type.
	WireType string
	Output   string
}

// New reads the translator options of target. output is the file that
// receives the translated netlists.
func New(cfg *config.Store, target Target, output string) (*Translator, error) {
	lib, ns, wire := config.CellLibQDI, config.CellLibQDINS, config.CellLibQDIWire
	if target == BundledData {
		lib, ns, wire = config.CellLibBD, config.CellLibBDNS, config.CellLibBDWire
	}
	t := &Translator{Binary: "v2act", Output: output}
	var ok bool
	if t.CellLib, ok = cfg.Path(lib); !ok {
		return nil, errors.Wrapf(config.ErrMissing, "translate: %s", lib)
	}
	var err error
	if t.Namespace, err = cfg.String(ns); err != nil {
		return nil, err
	}
	if t.WireType, err = cfg.String(wire); err != nil {
		return nil, err
	}
	if p, ok := cfg.Path(config.V2ActPath); ok {
		t.Binary = p
	}
	return t, nil
}

// Args returns the translator arguments for netlist.
func (t *Translator) Args(netlist string) []string {
	var args []string
	if t.WireType != "bool" {
		args = append(args, "-a", "-C", t.WireType)
	}
	return append(args, "-l", t.CellLib, "-n", t.Namespace, netlist)
}

// Append translates netlist and appends the result to the output file.
func (t *Translator) Append(ctx context.Context, netlist string) error {
	out, err := os.OpenFile(t.Output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return errors.Wrap(err, "translate: open output")
	}
	defer out.Close()
	args := t.Args(netlist)
	cmd := exec.CommandContext(ctx, t.Binary, args...)
	cmd.Stdout = out
	cmd.Stderr = os.Stderr
	logging.Step("%s %s >> %s", t.Binary, strings.Join(args, " "), t.Output)
	if err := cmd.Run(); err != nil {
		return errors.Wrapf(err, "translate: %s failed", t.Binary)
	}
	return nil
}
